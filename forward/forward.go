// Package forward implements the RPC forward/response state machine: the
// four-hop relay FRequest -> ForwardBRequest -> ForwardBResponse ->
// FResponse, carrying (front_session_id, msg_unique_id) on every hop so
// that neither the front nor the back server needs a pending-call table —
// the wire itself is the only state.
//
// The dispatch table looks a handler up by the frozen uint16 message id
// rather than by reflecting over a method name at runtime: ids are
// assigned once at startup by message.Factory and never change, so
// reflection buys nothing here.
package forward

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pantyhose/errs"
	"pantyhose/message"
)

// HandlerSoftDeadline is the soft handler deadline: handlers running past
// this are logged, not cancelled — forwarding is stateless transit, so
// there is nothing to roll back even for a handler that never replies.
const HandlerSoftDeadline = 30 * time.Second

// HandlerContext is passed to a registered HandlerFunc. Reply may be
// called from any goroutine, synchronously or later from a goroutine the
// handler spawns; it is safe to call at most once, subsequent calls are
// no-ops.
type HandlerContext struct {
	FrontSessionID uint64
	MsgUniqueID    uint32
	Meta           map[string]string

	replied atomic.Bool
	reply   func(payload []byte, errKind errs.Kind)
	timer   *time.Timer
}

// Reply sends payload back to the originating front session. errKind is
// empty on success; set it to report a business-level failure that still
// completes the RPC.
func (c *HandlerContext) Reply(payload []byte, errKind errs.Kind) {
	if c.replied.CompareAndSwap(false, true) {
		if c.timer != nil {
			c.timer.Stop()
		}
		c.reply(payload, errKind)
	}
}

// HandlerFunc handles one decoded business message. It receives the typed
// message the Factory decoded so the handler's signature stays concrete
// instead of operating on raw bytes.
type HandlerFunc func(ctx *HandlerContext, msg message.TypedMessage)

// Dispatcher maps a frozen message id to the handler registered for it.
type Dispatcher struct {
	factory  *message.Factory
	handlers map[uint16]HandlerFunc
	log      *zap.Logger
}

func NewDispatcher(factory *message.Factory, log *zap.Logger) *Dispatcher {
	return &Dispatcher{factory: factory, handlers: make(map[uint16]HandlerFunc), log: log}
}

// Register binds name (as known to the Factory) to h. Returns an error if
// name was never registered with the Factory.
func (d *Dispatcher) Register(name string, h HandlerFunc) error {
	id, ok := d.factory.IDOf(name)
	if !ok {
		return fmt.Errorf("forward.Register: unknown message %q", name)
	}
	d.handlers[id] = h
	return nil
}

// Dispatch decodes req.Message as req.MsgID and invokes the handler bound
// to that id, if any. reply is called at most once, either by this method
// (on decode/lookup failure) or later by the handler via HandlerContext.Reply;
// a handler that never replies leaves it uncalled (the soft deadline only logs).
func (d *Dispatcher) Dispatch(req message.RpcForwardMessageBRequest, reply func(payload []byte, errKind errs.Kind)) {
	msgID := uint16(req.MsgID)
	msg, err := d.factory.Decode(msgID, req.Message)
	if err != nil {
		d.log.Warn("decode failed for forwarded request", zap.Uint16("msg_id", msgID), zap.Error(err))
		reply(nil, errs.DecodeFailed)
		return
	}
	h, ok := d.handlers[msgID]
	if !ok {
		d.log.Warn("no handler registered", zap.Uint16("msg_id", msgID), zap.String("msg_name", msg.MsgName()))
		reply(nil, errs.UnknownHandler)
		return
	}

	ctx := &HandlerContext{FrontSessionID: req.FrontSessionID, MsgUniqueID: req.MsgUniqueID, Meta: req.Meta, reply: reply}
	ctx.timer = time.AfterFunc(HandlerSoftDeadline, func() {
		if !ctx.replied.Load() {
			d.log.Warn("handler exceeded soft deadline without replying",
				zap.Uint16("msg_id", msgID), zap.String("msg_name", msg.MsgName()),
				zap.Uint64("front_session_id", req.FrontSessionID))
		}
	})
	h(ctx, msg)
}

// DispatchNotify is Dispatch's fire-and-forget counterpart: no reply is
// ever sent, and a missing handler is logged but not otherwise reported —
// notify delivery is best-effort.
func (d *Dispatcher) DispatchNotify(note message.RpcForwardMessageBNotify) {
	msgID := uint16(note.MsgID)
	msg, err := d.factory.Decode(msgID, note.Message)
	if err != nil {
		d.log.Warn("decode failed for forwarded notify", zap.Uint16("msg_id", msgID), zap.Error(err))
		return
	}
	h, ok := d.handlers[msgID]
	if !ok {
		d.log.Debug("no handler registered for notify", zap.String("msg_name", msg.MsgName()))
		return
	}
	reply := func([]byte, errs.Kind) {} // notify replies are discarded
	ctx := &HandlerContext{FrontSessionID: note.FrontSessionID, MsgUniqueID: note.MsgUniqueID, reply: reply}
	h(ctx, msg)
}

// BuildBRequest is the stateless front-side transit step: wrap a client's
// FRequest into a ForwardBRequest addressed to targetType, stamping in the
// originating front_session_id so the eventual ForwardBResponse can be
// routed back without any pending-call bookkeeping.
func BuildBRequest(frontSessionID uint64, req message.RpcMessageFRequest, meta map[string]string) message.RpcForwardMessageBRequest {
	return message.RpcForwardMessageBRequest{
		MsgUniqueID:    req.MsgUniqueID,
		FrontSessionID: frontSessionID,
		Meta:           meta,
		MsgID:          req.MsgID,
		Message:        req.Message,
	}
}

// BuildFResponse is the stateless front-side transit step on the return
// hop: unwrap a back server's ForwardBResponse into the FResponse sent down
// to the client. front_session_id is not part of FResponse — the frame
// already identifies the client connection the response travels on.
func BuildFResponse(resp message.RpcForwardMessageBResponse) message.RpcMessageFResponse {
	return message.RpcMessageFResponse{
		MsgUniqueID: resp.MsgUniqueID,
		MsgID:       resp.MsgID,
		Message:     resp.Message,
		ErrorKind:   resp.ErrorKind,
	}
}

// BuildBNotify is the notify-path analogue of BuildBRequest: no response
// hop exists, so there is nothing to stamp beyond the forwarding envelope
// itself; msg_unique_id on the notify family is advisory only.
func BuildBNotify(frontSessionID uint64, note message.RpcMessageFNotify) message.RpcForwardMessageBNotify {
	return message.RpcForwardMessageBNotify{
		MsgUniqueID:    note.MsgUniqueID,
		FrontSessionID: frontSessionID,
		MsgID:          note.MsgID,
		Message:        note.Message,
	}
}
