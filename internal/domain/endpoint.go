package domain

import (
	"net"
	"sync/atomic"
)

// WeightedAddress is a concrete backend socket address paired with a
// resolver-assigned weight in [0.0, 1.0]. Weight 0 means "drain, do not
// select"; weight 1 means "no de-preference".
type WeightedAddress struct {
	Addr   net.Addr
	Weight float64
}

// Key returns the string form of Addr, used as the map key within a pool.
func (w WeightedAddress) Key() string {
	return w.Addr.String()
}

// Endpoint is the per-backend record tracked by an EndpointPool: address,
// weight, counters and failure history. All counter mutation is done with
// atomics because stream-completion callbacks (running on per-connection
// goroutines) and the single dispatcher goroutine both touch the same
// Endpoint value.
type Endpoint struct {
	dstName Path
	addr    net.Addr

	// weightBits stores the float64 weight via math.Float64bits so it can be
	// read/written atomically without a mutex.
	weightBits atomic.Uint64

	consecutiveFailures atomic.Int64
	openConns           atomic.Int64
	pendingConns        atomic.Int64
}

// NewEndpoint constructs an Endpoint for addr at the given initial weight,
// scoped to dstName for context propagation (spec.md §3, Endpoint.dst_name).
func NewEndpoint(dstName Path, addr net.Addr, weight float64) *Endpoint {
	e := &Endpoint{dstName: dstName, addr: addr}
	e.SetWeight(weight)
	return e
}

func (e *Endpoint) PeerAddr() net.Addr { return e.addr }
func (e *Endpoint) DstName() Path      { return e.dstName }

func (e *Endpoint) Weight() float64 {
	return float64frombits(e.weightBits.Load())
}

// SetWeight updates the resolver-reported weight. Values outside [0,1] are
// clamped rather than rejected: a misbehaving naming service should degrade
// selection quality, not crash the dispatcher.
func (e *Endpoint) SetWeight(w float64) {
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	e.weightBits.Store(float64bits(w))
}

// Load implements spec.md §4.C: open + pending connections plus the squared
// consecutive-failure count, which sharply deprioritises flapping endpoints
// even before they are demoted to the failed partition.
func (e *Endpoint) Load() float64 {
	fails := float64(e.consecutiveFailures.Load())
	return float64(e.openConns.Load()) + float64(e.pendingConns.Load()) + fails*fails
}

// WeightedLoad divides Load by Weight (or returns Load when Weight is 0).
// Selection does not use it; P2C uses the (load+1)*(1-weight) scoring
// directly (see internal/dispatch).
func (e *Endpoint) WeightedLoad() float64 {
	w := e.Weight()
	if w == 0 {
		return e.Load()
	}
	return e.Load() / w
}

func (e *Endpoint) ConsecutiveFailures() int64 { return e.consecutiveFailures.Load() }
func (e *Endpoint) OpenConns() int64           { return e.openConns.Load() }
func (e *Endpoint) PendingConns() int64        { return e.pendingConns.Load() }

// RecordSuccess resets the failure streak to zero, per the invariant that
// consecutive_failures = 0 whenever the last outcome was a success.
func (e *Endpoint) RecordSuccess() {
	e.consecutiveFailures.Store(0)
}

// RecordFailure increments the consecutive-failure counter. Demotion to the
// failed partition is decided by the pool's sweep, not here.
func (e *Endpoint) RecordFailure() {
	e.consecutiveFailures.Add(1)
}

func (e *Endpoint) IncPending() { e.pendingConns.Add(1) }
func (e *Endpoint) DecPending() {
	if e.pendingConns.Add(-1) < 0 {
		e.pendingConns.Store(0)
	}
}
func (e *Endpoint) IncOpen() { e.openConns.Add(1) }
func (e *Endpoint) DecOpen() {
	if e.openConns.Add(-1) < 0 {
		e.openConns.Store(0)
	}
}

// IsIdle reports whether the endpoint holds no open or pending connections,
// the retirement-eligibility definition settled in SPEC_FULL.md open
// question 3.
func (e *Endpoint) IsIdle() bool {
	return e.openConns.Load() == 0 && e.pendingConns.Load() == 0
}
