package candidate

import (
	"context"
	"sync"
)

// Availability is the result of probing a proposer service.
type Availability struct {
	ok     bool
	Reason string
}

// Available reports a reachable service.
func Available() Availability { return Availability{ok: true} }

// Unavailable reports an unreachable service and why.
func Unavailable(reason string) Availability { return Availability{Reason: reason} }

// OK reports whether the service was available.
func (a Availability) OK() bool { return a.ok }

func (a Availability) String() string {
	if a.ok {
		return "available"
	}
	return "unavailable: " + a.Reason
}

// Prober is implemented by proposers backed by a remote service.
type Prober interface {
	Probe(ctx context.Context) error
}

// AvailabilityCheck probes once and remembers the answer until Reset.
//
// Thread-safety: AvailabilityCheck is safe for concurrent use. Concurrent
// callers of Check during the first probe wait for its result.
type AvailabilityCheck struct {
	prober Prober

	mu     sync.Mutex
	result *Availability
}

// NewAvailabilityCheck creates a check around p.
func NewAvailabilityCheck(p Prober) *AvailabilityCheck {
	return &AvailabilityCheck{prober: p}
}

// Check returns the remembered result, probing first if there is none.
func (c *AvailabilityCheck) Check(ctx context.Context) Availability {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.result != nil {
		return *c.result
	}
	a := Available()
	if err := c.prober.Probe(ctx); err != nil {
		a = Unavailable(err.Error())
	}
	c.result = &a
	return a
}

// Reset forgets the remembered result. The next Check probes again.
func (c *AvailabilityCheck) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = nil
}
