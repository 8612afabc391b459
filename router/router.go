// Package router implements the RpcManager: picking which back server
// instance of a given server_type should handle a forwarded request. The
// Strategy interface and its three implementations share one Pick method
// per strategy, selected by name, operating on backsession.BackSession and
// extended with a session-sticky strategy so a front session stays pinned
// to whichever instance first handled it for a server_type, rather than
// being load-balanced fresh on every call.
package router

import (
	"fmt"
	"hash/crc32"
	"sync/atomic"

	"pantyhose/backsession"
)

// Strategy picks one back session out of the registered instances of a
// server_type to route a request to. RpcManager passes every registered
// instance, healthy or not; StickyStrategy skips unhealthy ones, the other
// strategies do not.
type Strategy interface {
	Pick(frontSessionID uint64, candidates []*backsession.BackSession) (*backsession.BackSession, error)
	Name() string
}

var errNoCandidates = fmt.Errorf("no live instances available")

// RoundRobinStrategy cycles through candidates using an atomic counter, the
// same lock-free idiom as loadbalance.RoundRobinBalancer.
type RoundRobinStrategy struct {
	counter atomic.Int64
}

func (s *RoundRobinStrategy) Name() string { return "round_robin" }

func (s *RoundRobinStrategy) Pick(_ uint64, candidates []*backsession.BackSession) (*backsession.BackSession, error) {
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}
	idx := s.counter.Add(1) % int64(len(candidates))
	return candidates[idx], nil
}

// HashOnSessionStrategy deterministically maps a front_session_id onto one
// of the candidates, generalizing loadbalance.ConsistentHashBalancer's
// crc32-of-key idea without the hash-ring machinery (the candidate set here
// is small and re-picked on every call, so ring stability across adds isn't
// needed — plain modulo hashing is sufficient and simpler).
type HashOnSessionStrategy struct{}

func (HashOnSessionStrategy) Name() string { return "hash_on_session" }

func (HashOnSessionStrategy) Pick(frontSessionID uint64, candidates []*backsession.BackSession) (*backsession.BackSession, error) {
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}
	var key [8]byte
	for i := 0; i < 8; i++ {
		key[i] = byte(frontSessionID >> (8 * i))
	}
	hash := crc32.ChecksumIEEE(key[:])
	return candidates[int(hash)%len(candidates)], nil
}

// StickyStrategy picks the least-loaded live candidate, by connection count
// (BackSession.Load), and relies on the caller (RpcManager.Resolve) to
// persist that choice into the front session's metadata, so every
// subsequent call for the same (front_session_id, server_type) pair reuses
// it without consulting the strategy again. ServerID breaks ties so the
// pick is stable when several candidates carry equal load.
type StickyStrategy struct{}

func (StickyStrategy) Name() string { return "sticky" }

func (StickyStrategy) Pick(_ uint64, candidates []*backsession.BackSession) (*backsession.BackSession, error) {
	var best *backsession.BackSession
	for _, c := range candidates {
		if !c.Healthy {
			continue
		}
		if best == nil || c.Load < best.Load || (c.Load == best.Load && c.Key.ServerID < best.Key.ServerID) {
			best = c
		}
	}
	if best == nil {
		return nil, errNoCandidates
	}
	return best, nil
}

// RpcManager resolves a (front_session_id, server_type) pair to a live back
// session, applying the configured strategy per server_type and persisting
// sticky choices.
type RpcManager struct {
	backs      *backsession.Manager
	strategies map[string]Strategy
	defaultStr Strategy
}

func NewRpcManager(backs *backsession.Manager) *RpcManager {
	return &RpcManager{
		backs:      backs,
		strategies: make(map[string]Strategy),
		defaultStr: StickyStrategy{},
	}
}

// SetStrategy overrides the routing strategy for one server_type. Types
// with no override use the sticky default.
func (r *RpcManager) SetStrategy(serverType string, s Strategy) {
	r.strategies[serverType] = s
}

// Resolve picks a back session for targetType and, for session-sticky
// routing, records the choice in meta so future calls for the same session
// reuse it even if the strategy would otherwise pick differently (e.g. a
// round-robin counter has moved on). A sticky pin counts against its back
// session's Load for as long as it holds; releasing or replacing a pin
// decrements it so StickyStrategy sees an accurate connection count.
func (r *RpcManager) Resolve(frontSessionID uint64, sticky map[string]uint32, targetType string) (*backsession.BackSession, error) {
	if id, ok := sticky[targetType]; ok {
		if bs, ok := r.backs.Get(backsession.Key{ServerType: targetType, ServerID: id}); ok && bs.Healthy {
			return bs, nil
		}
		r.releasePin(targetType, id)
		delete(sticky, targetType)
	}

	candidates := r.backs.IterByType(targetType)
	strategy := r.strategies[targetType]
	if strategy == nil {
		strategy = r.defaultStr
	}
	bs, err := strategy.Pick(frontSessionID, candidates)
	if err != nil {
		return nil, err
	}
	if _, isSticky := strategy.(StickyStrategy); isSticky {
		sticky[targetType] = bs.Key.ServerID
		bs.Load++
	}
	return bs, nil
}

// Release drops every sticky pin a front session held, decrementing the
// Load each pin counted against. Callers remove it when the owning front
// session disconnects, so a gone client's pins don't keep a back instance
// looking busier than it is.
func (r *RpcManager) Release(sticky map[string]uint32) {
	for targetType, id := range sticky {
		r.releasePin(targetType, id)
		delete(sticky, targetType)
	}
}

func (r *RpcManager) releasePin(targetType string, id uint32) {
	if bs, ok := r.backs.Get(backsession.Key{ServerType: targetType, ServerID: id}); ok && bs.Load > 0 {
		bs.Load--
	}
}
