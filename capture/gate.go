package capture

import "sync/atomic"

// Trigger names what resolved a Gate.
type Trigger string

const (
	TriggerReady Trigger = "ready"
	TriggerTimer Trigger = "timer"
)

// Gate is a one-shot latch over several competing trigger sources: the first
// Fire wins and every later Fire is a no-op.
type Gate struct {
	fired atomic.Bool
	ch    chan Trigger
}

// NewGate returns an unresolved Gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan Trigger, 1)}
}

// Fire resolves the gate with t.  It reports whether this call won.
func (g *Gate) Fire(t Trigger) bool {
	if !g.fired.CompareAndSwap(false, true) {
		return false
	}
	g.ch <- t
	return true
}

// C delivers the winning trigger exactly once.
func (g *Gate) C() <-chan Trigger { return g.ch }

// Fired reports whether the gate has been resolved.
func (g *Gate) Fired() bool { return g.fired.Load() }
