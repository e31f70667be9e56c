package engine

import "sync/atomic"

// GateReason explains why the gate is closed. The public SyncStatus keeps
// the single "offline" value for both causes (matching what UI indicators
// show today); the reason is carried on status events for anything that
// wants the distinction.
type GateReason int

const (
	GateOpen GateReason = iota
	GateOffline
	GateUnverified
)

func (r GateReason) String() string {
	switch r {
	case GateOffline:
		return "offline"
	case GateUnverified:
		return "unverified"
	default:
		return "open"
	}
}

// Gate permits or blocks all sync activity. It is a pure predicate over two
// cached signals: device network reachability and the account-verified flag
// set once by the authentication flow. Failing the gate is not an error; it
// is a no-op deferral.
type Gate struct {
	online   atomic.Bool
	verified atomic.Bool
}

// NewGate creates a gate. Both signals start false; the owner feeds them
// from the connectivity watcher and the auth subsystem.
func NewGate() *Gate {
	return &Gate{}
}

// SetOnline records the network reachability signal.
func (g *Gate) SetOnline(online bool) {
	g.online.Store(online)
}

// SetVerified records the account verification signal.
func (g *Gate) SetVerified(verified bool) {
	g.verified.Store(verified)
}

// Online returns the last recorded reachability signal.
func (g *Gate) Online() bool {
	return g.online.Load()
}

// CanSync reports whether any remote I/O may happen right now.
func (g *Gate) CanSync() bool {
	return g.online.Load() && g.verified.Load()
}

// Reason returns why the gate is closed. Network takes precedence: an
// offline unverified device reads as offline.
func (g *Gate) Reason() GateReason {
	if !g.online.Load() {
		return GateOffline
	}
	if !g.verified.Load() {
		return GateUnverified
	}
	return GateOpen
}
