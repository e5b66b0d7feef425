package balancer

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/tcplb/tcplb/internal/connector"
	"github.com/tcplb/tcplb/internal/dispatch"
	"github.com/tcplb/tcplb/internal/domain"
	"github.com/tcplb/tcplb/internal/endpointpool"
	"github.com/tcplb/tcplb/internal/metrics"
)

// Resolver attaches a destination to its resolution stream, applying every
// update it produces onto pool until ctx is cancelled. The balancer package
// only depends on this narrow interface so internal/resolver can depend on
// internal/balancer's sibling packages without an import cycle.
type Resolver interface {
	Attach(ctx context.Context, dstName domain.Path, pool *endpointpool.Pool)
}

// Router is the destination-name -> Balancer cache from spec.md §4.G: the
// first Balancer lookup for a given destination lazily builds its pool,
// connector, dispatcher and resolver attachment; every later lookup reuses
// them.
//
// Grounded on the teacher's repository pattern
// (_examples/thushan-olla/internal/adapter/discovery/repository.go) for the
// lazy-create-on-miss shape, using xsync.Map for the lock-free fast path the
// teacher's stats collector also relies on.
type Router struct {
	ctx             context.Context
	connectorFac    *connector.Factory
	poolCfg         endpointpool.Config
	dispatchCfg     dispatch.Config
	resolver        Resolver
	metrics         *metrics.Registry

	entries *xsync.Map[string, *entry]
	mu      sync.Mutex // guards lazy-create race on a given destination
}

type entry struct {
	balancer *Balancer
	pool     *endpointpool.Pool
}

// Config bundles the per-destination construction parameters a Router needs.
type Config struct {
	ConnectorFactory *connector.Factory
	PoolConfig       endpointpool.Config
	DispatchConfig   dispatch.Config
	Resolver         Resolver
	Metrics          *metrics.Registry
}

// NewRouter constructs a Router. ctx bounds the lifetime of every dispatcher
// and resolver goroutine the router spawns; cancelling it shuts the whole
// router down.
func NewRouter(ctx context.Context, cfg Config) *Router {
	return &Router{
		ctx:          ctx,
		connectorFac: cfg.ConnectorFactory,
		poolCfg:      cfg.PoolConfig,
		dispatchCfg:  cfg.DispatchConfig,
		resolver:     cfg.Resolver,
		metrics:      cfg.Metrics,
		entries:      xsync.NewMap[string, *entry](),
	}
}

// Balancer returns the Balancer for dstName, creating and wiring it (pool,
// connector, dispatcher goroutine, resolver attachment) on first use.
func (r *Router) Balancer(dstName domain.Path) (*Balancer, error) {
	if e, ok := r.entries.Load(string(dstName)); ok {
		return e.balancer, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries.Load(string(dstName)); ok {
		return e.balancer, nil
	}

	conn, err := r.connectorFac.MakeConnector(dstName)
	if err != nil {
		return nil, err
	}

	pool := endpointpool.New(dstName, r.poolCfg)
	d := dispatch.New(dstName, r.dispatchCfg, pool, conn, r.metrics)
	go d.Run(r.ctx)

	if r.resolver != nil {
		go r.resolver.Attach(r.ctx, dstName, pool)
	}

	b := New(dstName, d)
	r.entries.Store(string(dstName), &entry{balancer: b, pool: pool})
	return b, nil
}

// PoolStats returns a point-in-time endpointpool.Stats snapshot for every
// destination the router has created a Balancer for, keyed by destination
// name, for the admin /metrics handler.
func (r *Router) PoolStats() map[string]endpointpool.Stats {
	out := make(map[string]endpointpool.Stats)
	r.entries.Range(func(k string, e *entry) bool {
		out[k] = e.pool.Snapshot()
		return true
	})
	return out
}
