// Package balancer provides the Balancer facade described in spec.md §4.F:
// one Connect call per inbound connection, handed off to a destination's
// Dispatcher, and the Router that lazily creates and caches a Balancer per
// destination name.
//
// Grounded on original_source/src/balancer/mod.rs (Balancer::connect) and on
// the teacher's ports.LoadBalancer abstraction
// (_examples/thushan-olla/internal/core/ports -- a thin strategy-selection
// facade in front of the endpoint repository).
package balancer

import (
	"context"
	"net"

	"github.com/tcplb/tcplb/internal/dispatch"
	"github.com/tcplb/tcplb/internal/domain"
)

// Balancer is the per-destination connect facade: it owns nothing itself
// beyond a reference to the destination's Dispatcher, and exists so callers
// never need to know about Waiter/Queue plumbing.
type Balancer struct {
	dstName    domain.Path
	dispatcher *dispatch.Dispatcher
}

func New(dstName domain.Path, d *dispatch.Dispatcher) *Balancer {
	return &Balancer{dstName: dstName, dispatcher: d}
}

// Connect submits a connect request and blocks until the dispatcher pairs it
// with an outbound connection, ctx is cancelled, or the dispatch queue
// rejects it (full, or the dispatcher has exited).
func (b *Balancer) Connect(ctx context.Context) (net.Conn, error) {
	w := dispatch.NewWaiter()
	if err := b.dispatcher.Submit(ctx, w); err != nil {
		return nil, err
	}

	select {
	case res := <-w.Conn:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DstName reports the destination this Balancer serves.
func (b *Balancer) DstName() domain.Path {
	return b.dstName
}
