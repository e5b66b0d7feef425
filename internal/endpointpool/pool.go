// Package endpointpool implements the three-partition endpoint set described
// in spec.md §3-4.D: available / failed / retired endpoints for a single
// destination name, reconciled against resolver updates and a failure-timer
// sweep. Grounded on thushan-olla's internal/adapter/discovery/repository.go
// (the map-of-endpoints-with-reconciliation shape) and its
// internal/adapter/health/circuit_breaker.go (the failure-threshold /
// recovery-timeout shape), folded into linkerd-tcp's Endpoints reconciliation
// algorithm (original_source/src/balancer/endpoints.rs).
package endpointpool

import (
	"net"
	"sync"
	"time"

	"github.com/tcplb/tcplb/internal/domain"
)

const (
	// DefaultFailLimit is the number of consecutive connect failures that
	// demotes an endpoint from available to failed.
	DefaultFailLimit = 3
	// DefaultFailPenalty is how long a failed endpoint is sidelined before
	// the sweep promotes it back to available.
	DefaultFailPenalty = 5 * time.Second
)

type failedEntry struct {
	since time.Time
	ep    *domain.Endpoint
}

// Pool is the endpoint set for one destination name. Several goroutines
// use it: the dispatcher sweeps and reads it, the resolver applies new
// resolutions, per-connect goroutines record connect outcomes, and metrics
// collection takes snapshots. An internal mutex guards every partition.
type Pool struct {
	dstName     domain.Path
	failLimit   int
	failPenalty time.Duration

	mu        sync.Mutex
	available map[string]*domain.Endpoint
	failed    map[string]*failedEntry
	retired   map[string]*domain.Endpoint

	nowFn func() time.Time
}

// Config configures fail_limit and fail_penalty (spec.md §4.D).
type Config struct {
	FailLimit   int
	FailPenalty time.Duration
}

// New constructs an empty pool for dstName.
func New(dstName domain.Path, cfg Config) *Pool {
	if cfg.FailLimit <= 0 {
		cfg.FailLimit = DefaultFailLimit
	}
	if cfg.FailPenalty <= 0 {
		cfg.FailPenalty = DefaultFailPenalty
	}
	return &Pool{
		dstName:     dstName,
		failLimit:   cfg.FailLimit,
		failPenalty: cfg.FailPenalty,
		available:   make(map[string]*domain.Endpoint),
		failed:      make(map[string]*failedEntry),
		retired:     make(map[string]*domain.Endpoint),
		nowFn:       time.Now,
	}
}

// UpdatedAvailable runs the failure-timer sweep and returns a snapshot slice
// of the available partition. Callers (the dispatcher) must call
// ApplyResolution separately when a new resolution arrives; UpdatedAvailable
// itself only sweeps failure timers, matching spec.md §4.D's split between
// "drain any pending resolver updates" (done by the caller feeding
// ApplyResolution through its mutation queue) and the sweep performed here.
func (p *Pool) UpdatedAvailable() []*domain.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	return snapshot(p.available)
}

func snapshot(m map[string]*domain.Endpoint) []*domain.Endpoint {
	out := make([]*domain.Endpoint, 0, len(m))
	for _, ep := range m {
		out = append(out, ep)
	}
	return out
}

// sweepLocked demotes available endpoints past fail_limit into failed, and
// promotes failed endpoints whose penalty has elapsed back to available. The
// fail-open guarantee unconditionally promotes every failed endpoint if
// available would otherwise be left empty.
func (p *Pool) sweepLocked() {
	now := p.nowFn()

	for addr, ep := range p.available {
		if ep.ConsecutiveFailures() >= int64(p.failLimit) {
			delete(p.available, addr)
			p.failed[addr] = &failedEntry{since: now, ep: ep}
		}
	}

	for addr, fe := range p.failed {
		if fe.since.Add(p.failPenalty).Before(now) || fe.since.Add(p.failPenalty).Equal(now) {
			delete(p.failed, addr)
			p.available[addr] = fe.ep
		}
	}

	if len(p.available) == 0 && len(p.failed) > 0 {
		for addr, fe := range p.failed {
			p.available[addr] = fe.ep
		}
		p.failed = make(map[string]*failedEntry)
	}
}

// ApplyResolution reconciles the three partitions against a fresh resolution
// set, following spec.md §4.D's reconciliation rules exactly. Applying the
// same set twice in a row is a no-op (idempotence law, spec.md §8).
func (p *Pool) ApplyResolution(addrs []domain.WeightedAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byAddr := make(map[string]float64, len(addrs))
	byAddrAddr := make(map[string]net.Addr, len(addrs))
	for _, wa := range addrs {
		key := wa.Key()
		byAddr[key] = wa.Weight
		byAddrAddr[key] = wa.Addr
	}

	// retired -> available (salvage) or dropped if idle, else remains retired.
	for addr, ep := range p.retired {
		if _, ok := byAddr[addr]; ok {
			delete(p.retired, addr)
			p.available[addr] = ep
		} else if ep.IsIdle() {
			delete(p.retired, addr)
		}
	}

	// available -> retired if absent from R and not idle; dropped if idle.
	for addr, ep := range p.available {
		if _, ok := byAddr[addr]; ok {
			continue
		}
		delete(p.available, addr)
		if !ep.IsIdle() {
			p.retired[addr] = ep
		}
	}

	// failed -> retired if absent from R and not idle; dropped if idle.
	for addr, fe := range p.failed {
		if _, ok := byAddr[addr]; ok {
			continue
		}
		delete(p.failed, addr)
		if !fe.ep.IsIdle() {
			p.retired[addr] = fe.ep
		}
	}

	// New addresses become fresh available endpoints; existing endpoints get
	// their weight refreshed wherever they currently live.
	for addr, weight := range byAddr {
		if ep, ok := p.available[addr]; ok {
			ep.SetWeight(weight)
			continue
		}
		if fe, ok := p.failed[addr]; ok {
			fe.ep.SetWeight(weight)
			continue
		}
		if ep, ok := p.retired[addr]; ok {
			ep.SetWeight(weight)
			continue
		}
		p.available[addr] = domain.NewEndpoint(p.dstName, byAddrAddr[addr], weight)
	}
}

// RecordConnectSuccess resets the endpoint's failure streak.
func (p *Pool) RecordConnectSuccess(addr string) {
	p.mu.Lock()
	ep := p.find(addr)
	p.mu.Unlock()
	if ep != nil {
		ep.RecordSuccess()
	}
}

// RecordConnectFailure increments the endpoint's failure streak. Demotion
// happens lazily on the next UpdatedAvailable sweep.
func (p *Pool) RecordConnectFailure(addr string, _ domain.FailureCause) {
	p.mu.Lock()
	ep := p.find(addr)
	p.mu.Unlock()
	if ep != nil {
		ep.RecordFailure()
	}
}

func (p *Pool) find(addr string) *domain.Endpoint {
	if ep, ok := p.available[addr]; ok {
		return ep
	}
	if fe, ok := p.failed[addr]; ok {
		return fe.ep
	}
	if ep, ok := p.retired[addr]; ok {
		return ep
	}
	return nil
}

// Stats is a point-in-time count snapshot used by the metrics exposition.
type Stats struct {
	Available, Failed, Retired int
	OpenConns, PendingConns    int64
}

// Snapshot returns partition sizes and aggregate connection counters across
// all three partitions, for /metrics gauges.
func (p *Pool) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s Stats
	s.Available = len(p.available)
	s.Failed = len(p.failed)
	s.Retired = len(p.retired)

	for _, ep := range p.available {
		s.OpenConns += ep.OpenConns()
		s.PendingConns += ep.PendingConns()
	}
	for _, fe := range p.failed {
		s.OpenConns += fe.ep.OpenConns()
		s.PendingConns += fe.ep.PendingConns()
	}
	for _, ep := range p.retired {
		s.OpenConns += ep.OpenConns()
		s.PendingConns += ep.PendingConns()
	}
	return s
}
