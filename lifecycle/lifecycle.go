// Package lifecycle implements the ServerTrait and single-driver event
// loop: one goroutine owns every piece of mutable business state (sessions,
// back sessions, routing, cluster membership) and reaches it only by
// draining engine.Engine's events channel plus a timer.Wheel tick. Every
// other goroutine in the process — one reader/writer pair per connection —
// only ever produces engine.Event values; nothing outside this loop ever
// touches a session or cluster map.
//
// The phased Init/LateInit/Run/Dispose contract and the context-
// cancellation-plus-WaitGroup drain pattern follow the accept-loop-plus-
// graceful-shutdown shape of a long-running TCP server.
package lifecycle

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pantyhose/backsession"
	"pantyhose/cluster"
	"pantyhose/config"
	"pantyhose/engine"
	"pantyhose/errs"
	"pantyhose/forward"
	"pantyhose/logging"
	"pantyhose/message"
	"pantyhose/router"
	"pantyhose/session"
	"pantyhose/timer"
	"pantyhose/transport"
	"pantyhose/wireframe"
)

// announceTTLSeconds is the etcd lease TTL for the master's optional fleet
// announce, long enough that a missed KeepAlive round doesn't flap the key.
const announceTTLSeconds = 15

// ServerTrait is the four-phase contract every pantyhose process
// implements.
type ServerTrait interface {
	Init(serverID uint32, cfg *config.ServerConfig) error
	LateInit() error
	Run(ctx context.Context) error
	Dispose() error
}

// Server wires together every component package into the single-driver
// loop. It implements ServerTrait.
type Server struct {
	serverID   uint32
	serverType string
	cfg        *config.ServerConfig

	log   *zap.Logger
	guard *logging.Guard

	codec    *wireframe.Codec
	factory  *message.Factory
	engine   *engine.Engine
	fronts   *session.Manager
	backs    *backsession.Manager
	rpc      *router.RpcManager
	dispatch *forward.Dispatcher
	cl       *cluster.Manager
	wheel    *timer.Wheel

	masterAddr     string // back_tcp address of the master, for non-master nodes to dial
	announcer      *cluster.Announcer
	announceCtx    context.Context
	announceCancel context.CancelFunc
}

func New() *Server {
	return &Server{}
}

// Init implements ServerTrait: reads the parsed config, resolves this process's
// identity, and builds every component. No network activity happens yet.
func (s *Server) Init(serverID uint32, cfg *config.ServerConfig) error {
	s.serverID = serverID
	s.cfg = cfg

	serverType, ok := cfg.ServerTypeOf(serverID)
	if !ok {
		return errs.New(errs.ProtocolError, "lifecycle.Init", unknownServerIDErr{serverID})
	}
	s.serverType = serverType

	logger, guard, err := logging.Build(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	s.log, s.guard = logger, guard

	s.codec = wireframe.NewCodec(wireframe.Width2, wireframe.DefaultMaxPayload)
	s.factory = message.NewFactory()
	s.engine = engine.New(s.codec, s.log)
	s.fronts = session.NewManager(s.log)
	s.backs = backsession.NewManager()
	s.rpc = router.NewRpcManager(s.backs)
	s.dispatch = forward.NewDispatcher(s.factory, s.log)
	s.cl = cluster.NewManager(backsession.Key{ServerType: serverType, ServerID: serverID}, s.backs, cfg.Author.Key)
	s.wheel = timer.NewWheel()

	if master, ok := cfg.FindInstance("master", 1); ok && !config.IsMaster(serverType) {
		s.masterAddr = "127.0.0.1:" + strconv.Itoa(master.BackTCPPort)
	}
	return nil
}

// Dispatcher exposes the forward dispatcher so a host binary can register
// its own business handlers before Run starts.
func (s *Server) Dispatcher() *forward.Dispatcher { return s.dispatch }

// LateInit implements ServerTrait: opens listeners/dialers. Split from
// Init so a host binary can register business handlers in between (handler
// registration must happen before the first connection can arrive).
func (s *Server) LateInit() error {
	inst, ok := s.cfg.FindInstance(s.serverType, s.serverID)
	if !ok {
		return errs.New(errs.ProtocolError, "lifecycle.LateInit", unknownServerIDErr{s.serverID})
	}

	if inst.BackTCPPort != 0 {
		if err := s.engine.ListenTCP("0.0.0.0:"+strconv.Itoa(inst.BackTCPPort), engine.RoleBackTCP); err != nil {
			return err
		}
	}
	if inst.FrontTCPPort != 0 {
		if err := s.engine.ListenTCP("0.0.0.0:"+strconv.Itoa(inst.FrontTCPPort), engine.RoleFrontTCP); err != nil {
			return err
		}
	}
	if inst.FrontWSPort != 0 {
		if err := s.engine.ListenWS("0.0.0.0:" + strconv.Itoa(inst.FrontWSPort)); err != nil {
			return err
		}
	}

	if s.masterAddr != "" {
		s.engine.DialBack(s.masterAddr)
	}

	if config.IsMaster(s.serverType) && s.cfg.Etcd.Endpoints != "" {
		endpoints := strings.Split(s.cfg.Etcd.Endpoints, ",")
		ann, err := cluster.NewAnnouncer(endpoints, s.cfg.Etcd.Prefix)
		if err != nil {
			s.log.Warn("etcd announce sink unavailable, continuing without it", zap.Error(err))
		} else {
			s.announcer = ann
			s.announceCtx, s.announceCancel = context.WithCancel(context.Background())
		}
	}
	return nil
}

// Run implements ServerTrait: the single-threaded driver loop. It returns
// when ctx is cancelled, after every front session and registered back
// session has been closed with errs.ServerShutdown and the engine stopped.
func (s *Server) Run(ctx context.Context) error {
	heartbeat := time.NewTicker(cluster.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		var tickAfter <-chan time.Time
		if deadline, ok := s.wheel.NextDeadline(); ok {
			tickAfter = time.After(time.Until(deadline))
		}

		select {
		case <-ctx.Done():
			return s.drain()
		case ev := <-s.engine.Events():
			s.handleEvent(ev)
		case now := <-heartbeat.C:
			s.onHeartbeatTick(now)
		case now := <-tickAfter:
			s.wheel.Tick(now)
		}
	}
}

// Dispose implements ServerTrait: releases logging resources. Network
// teardown already happened in drain (called from Run).
func (s *Server) Dispose() error {
	if s.announceCancel != nil {
		s.announceCancel()
	}
	if s.announcer != nil {
		s.announcer.Close()
	}
	if s.guard != nil {
		return s.guard.Close()
	}
	return nil
}

func (s *Server) drain() error {
	shutdown := errs.New(errs.ServerShutdown, "lifecycle.drain", nil)
	for _, fs := range s.fronts.All() {
		fs.Conn.Close(shutdown)
	}
	for _, bs := range s.backs.All() {
		bs.Conn.Close(shutdown)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.engine.Stop(ctx)
}

func (s *Server) handleEvent(ev engine.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		s.onConnected(ev)
	case transport.EventDisconnected:
		s.onDisconnected(ev)
	case transport.EventFrame:
		s.onFrame(ev)
	}
}

func (s *Server) onConnected(ev engine.Event) {
	switch ev.Role {
	case engine.RoleFrontTCP, engine.RoleFrontWS:
		fs := s.fronts.Create(ev.Conn)
		s.log.Debug("front session created", zap.Uint64("front_session_id", fs.ID), zap.String("remote", ev.Conn.RemoteAddr()))
	case engine.RoleBackTCP:
		s.backs.OnAccept(ev.Conn, time.Now())
		s.log.Debug("back connection pending registration", zap.String("remote", ev.Conn.RemoteAddr()))
	}
}

func (s *Server) onDisconnected(ev engine.Event) {
	switch ev.Role {
	case engine.RoleFrontTCP, engine.RoleFrontWS:
		if fs, ok := s.fronts.Find(ev.Conn); ok {
			s.rpc.Release(fs.Meta.Sticky)
			s.fronts.Remove(fs.ID)
		}
	case engine.RoleBackTCP:
		if key, ok := s.backs.OnClose(ev.Conn); ok {
			notify := s.cl.HandleLeave(key, "connection closed")
			s.broadcastToBacks(&notify, nil)
			s.announceLeave(key)
		}
	}
}

func (s *Server) onFrame(ev engine.Event) {
	msg, err := s.factory.Decode(ev.Frame.MsgID, ev.Frame.Payload)
	if err != nil {
		s.log.Warn("decode failed", zap.Error(err), zap.String("remote", ev.Conn.RemoteAddr()))
		return
	}
	switch m := msg.(type) {
	case *message.RpcMessageFRequest:
		s.onFRequest(ev.Conn, m)
	case *message.RpcForwardMessageBRequest:
		s.onBRequest(ev.Conn, m)
	case *message.RpcForwardMessageBResponse:
		s.onBResponse(m)
	case *message.RpcMessageFNotify:
		s.onFNotify(ev.Conn, m)
	case *message.RpcForwardMessageBNotify:
		s.dispatch.DispatchNotify(*m)
	case *message.NodeRegisterBRequest:
		s.onNodeRegister(ev.Conn, m)
	case *message.HeartbeatBNotify:
		s.backs.OnHeartbeat(backsession.Key{ServerType: m.ServerType, ServerID: m.ServerID})
	}
}

func (s *Server) onFRequest(conn transport.Connection, req *message.RpcMessageFRequest) {
	fs := s.findFrontSession(conn)
	if fs == nil {
		return
	}
	bs, err := s.rpc.Resolve(fs.ID, fs.Meta.Sticky, req.ServerType)
	if err != nil {
		s.replyFError(conn, req.MsgUniqueID, req.MsgID, errs.NoRoute)
		return
	}
	breq := forward.BuildBRequest(fs.ID, *req, fs.Meta.Extra)
	id, payload, _ := s.factory.Encode(&breq)
	if err := bs.Conn.Send(id, payload); err != nil {
		s.closeOnConnectionLevelErr(bs.Conn, "lifecycle.onFRequest", err)
		s.replyFError(conn, req.MsgUniqueID, req.MsgID, errs.SendBackpressure)
	}
}

func (s *Server) onFNotify(conn transport.Connection, note *message.RpcMessageFNotify) {
	fs := s.findFrontSession(conn)
	if fs == nil {
		return
	}
	bs, err := s.rpc.Resolve(fs.ID, fs.Meta.Sticky, note.ServerType)
	if err != nil {
		return
	}
	bnotify := forward.BuildBNotify(fs.ID, *note)
	id, payload, _ := s.factory.Encode(&bnotify)
	if err := bs.Conn.Send(id, payload); err != nil {
		s.closeOnConnectionLevelErr(bs.Conn, "lifecycle.onFNotify", err)
	}
}

func (s *Server) onBRequest(conn transport.Connection, req *message.RpcForwardMessageBRequest) {
	reply := func(payload []byte, kind errs.Kind) {
		resp := message.RpcForwardMessageBResponse{
			MsgUniqueID:    req.MsgUniqueID,
			FrontSessionID: req.FrontSessionID,
			MsgID:          req.MsgID,
			Message:        payload,
			ErrorKind:      string(kind),
		}
		id, out, _ := s.factory.Encode(&resp)
		if err := conn.Send(id, out); err != nil {
			s.closeOnConnectionLevelErr(conn, "lifecycle.onBRequest.reply", err)
		}
	}
	s.dispatch.Dispatch(*req, reply)
}

func (s *Server) onBResponse(resp *message.RpcForwardMessageBResponse) {
	fs, ok := s.fronts.Get(resp.FrontSessionID)
	if !ok {
		return
	}
	fresp := forward.BuildFResponse(*resp)
	id, payload, _ := s.factory.Encode(&fresp)
	if err := fs.Conn.Send(id, payload); err != nil {
		s.closeOnConnectionLevelErr(fs.Conn, "lifecycle.onBResponse", err)
	}
}

func (s *Server) onNodeRegister(conn transport.Connection, req *message.NodeRegisterBRequest) {
	resp, notify, err := s.cl.HandleRegister(*req)
	id, payload, _ := s.factory.Encode(&resp)
	if sendErr := conn.Send(id, payload); sendErr != nil && s.closeOnConnectionLevelErr(conn, "lifecycle.onNodeRegister", sendErr) {
		return
	}
	if err != nil {
		conn.Close(err)
		return
	}
	key := backsession.Key{ServerType: req.ServerType, ServerID: req.ServerID}
	if _, err := s.backs.OnRegister(conn, key, req.Endpoints, req.ServerType); err != nil {
		conn.Close(err)
		return
	}
	s.broadcastToBacks(&notify, conn)
	s.announceJoin(req.ServerType, req.ServerID, req.Endpoints)
}

// closeOnConnectionLevelErr logs a failed send and, when err's Kind carries
// a connection-level propagation policy (errs.IsConnectionLevel), closes
// conn so a backpressured or already-gone peer stops being sent to again.
// Reports whether it closed conn.
func (s *Server) closeOnConnectionLevelErr(conn transport.Connection, op string, err error) bool {
	kind, _ := errs.KindOf(err)
	if !errs.IsConnectionLevel(kind) {
		s.log.Warn("send failed", zap.String("op", op), zap.Error(err))
		return false
	}
	s.log.Error("connection-level send failure, closing connection", zap.String("op", op), zap.Error(err))
	conn.Close(err)
	return true
}

// announceJoin best-effort mirrors a newly registered back session into the
// optional etcd fleet sink. It never blocks the driver loop: the etcd round
// trip runs on its own goroutine, and a failure is just a log line.
func (s *Server) announceJoin(serverType string, serverID uint32, endpoints string) {
	if s.announcer == nil {
		return
	}
	go func() {
		if err := s.announcer.Announce(s.announceCtx, serverType, serverID, endpoints, announceTTLSeconds); err != nil {
			s.log.Warn("etcd announce failed", zap.String("server_type", serverType), zap.Uint32("server_id", serverID), zap.Error(err))
		}
	}()
}

// announceLeave best-effort withdraws a departed back session's etcd key.
func (s *Server) announceLeave(key backsession.Key) {
	if s.announcer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.announcer.Withdraw(ctx, key.ServerType, key.ServerID); err != nil {
			s.log.Warn("etcd withdraw failed", zap.String("server_type", key.ServerType), zap.Uint32("server_id", key.ServerID), zap.Error(err))
		}
	}()
}

// broadcastToBacks sends v to every registered back session except the one
// on connection except (nil excludes none).
func (s *Server) broadcastToBacks(v message.TypedMessage, except transport.Connection) {
	id, payload, err := s.factory.Encode(v)
	if err != nil {
		return
	}
	for _, bs := range s.backs.All() {
		if except != nil && bs.Conn == except {
			continue
		}
		if err := bs.Conn.Send(id, payload); err != nil {
			s.closeOnConnectionLevelErr(bs.Conn, "lifecycle.broadcastToBacks", err)
		}
	}
}

func (s *Server) replyFError(conn transport.Connection, msgUniqueID, msgID uint32, kind errs.Kind) {
	resp := message.RpcMessageFResponse{MsgUniqueID: msgUniqueID, MsgID: msgID, ErrorKind: string(kind)}
	id, payload, _ := s.factory.Encode(&resp)
	if err := conn.Send(id, payload); err != nil {
		s.closeOnConnectionLevelErr(conn, "lifecycle.replyFError", err)
	}
}

func (s *Server) findFrontSession(conn transport.Connection) *session.FrontSession {
	fs, ok := s.fronts.Find(conn)
	if !ok {
		return nil
	}
	return fs
}

func (s *Server) onHeartbeatTick(now time.Time) {
	for _, conn := range s.backs.ExpirePending(now) {
		conn.Close(errs.New(errs.RegistrationTimeout, "lifecycle.onHeartbeatTick", errRegistrationTimeout{}))
	}
	for _, key := range s.backs.Tick(cluster.SuspectAfterMisses, cluster.EvictAfterMisses) {
		notify := s.cl.HandleLeave(key, "heartbeat timeout")
		s.broadcastToBacks(&notify, nil)
		s.announceLeave(key)
	}
}

type unknownServerIDErr struct{ id uint32 }

func (e unknownServerIDErr) Error() string { return "server id not found in config" }

type errRegistrationTimeout struct{}

func (errRegistrationTimeout) Error() string { return "registration not completed before deadline" }
