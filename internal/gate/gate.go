// Package gate provides the process-wide busy flag that serializes ingestion
// runs and analysis refreshes.
package gate

import "sync/atomic"

// State is the observable gate state.
type State string

const (
	Idle State = "IDLE"
	Busy State = "BUSY"
)

// BusyGate is a two-state mutual-exclusion flag. Acquisition never blocks and
// never queues: a caller either flips IDLE to BUSY or learns that someone else did.
// The zero value is an idle gate; create one per process and share it.
type BusyGate struct {
	busy atomic.Bool
}

// New returns an idle gate.
func New() *BusyGate {
	return &BusyGate{}
}

// TryAcquire flips the gate from IDLE to BUSY and reports whether this caller did it.
func (g *BusyGate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release returns the gate to IDLE. It is safe to call on an idle gate.
func (g *BusyGate) Release() {
	g.busy.Store(false)
}

// Busy reports whether guarded work is in progress.
func (g *BusyGate) Busy() bool {
	return g.busy.Load()
}

// State reports the current state.
func (g *BusyGate) State() State {
	if g.Busy() {
		return Busy
	}
	return Idle
}

// Run executes fn while holding the gate and reports whether fn ran.
// The gate is released when fn returns or panics.
func (g *BusyGate) Run(fn func()) bool {
	if !g.TryAcquire() {
		return false
	}
	defer g.Release()
	fn()
	return true
}
