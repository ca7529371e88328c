package planvm

import (
	"sync"

	"dscore/pkg/dserr"
)

// NetworkGate is the process-wide egress block: Execute sets
// blocked=true on entry and blocked=false on exit, including the
// panic and error paths.
//
// A single boolean egress block consulted by the external transport's
// check_egress(destination) probe.
type NetworkGate struct {
	mu      sync.Mutex
	blocked bool
}

// NewNetworkGate returns an open (not blocked) gate.
func NewNetworkGate() *NetworkGate {
	return &NetworkGate{}
}

// Engage sets blocked=true. Called on Execute entry.
func (g *NetworkGate) Engage() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked = true
}

// Release sets blocked=false. Called on Execute exit, via defer, so a
// panic or early return still releases the gate.
func (g *NetworkGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked = false
}

// Blocked reports the current gate state.
func (g *NetworkGate) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocked
}

// CheckEgress is the probe the external transport calls before any
// outbound call. It raises NetworkBlocked whenever the gate is
// engaged, regardless of which operator is currently running — there
// is no allowlisted destination while a plan is executing.
func (g *NetworkGate) CheckEgress(destination string) error {
	if g.Blocked() {
		return dserr.NetworkBlocked(destination)
	}
	return nil
}
