package health

import (
	"context"
	"fmt"
	"sync"
)

// Gate is a readiness flag for a startup milestone. It starts not-ready and
// is flipped by the owning component once the milestone is reached (e.g. the
// voice gateway connected, the realtime session opened). A Gate can go back
// to not-ready when the dependency drops.
//
// Gate is safe for concurrent use.
type Gate struct {
	mu     sync.Mutex
	ready  bool
	reason string
}

// NewGate returns a Gate in the not-ready state with the given initial reason.
func NewGate(reason string) *Gate {
	return &Gate{reason: reason}
}

// SetReady marks the milestone as reached.
func (g *Gate) SetReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = true
	g.reason = ""
}

// SetNotReady marks the milestone as lost, with a reason for the readiness
// response.
func (g *Gate) SetNotReady(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = false
	g.reason = reason
}

// Ready reports the current state.
func (g *Gate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Checker adapts the gate into a named readiness [Checker].
func (g *Gate) Checker(name string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.ready {
				return nil
			}
			if g.reason != "" {
				return fmt.Errorf("not ready: %s", g.reason)
			}
			return fmt.Errorf("not ready")
		},
	}
}
