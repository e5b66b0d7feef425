package dispatch

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tcplb/tcplb/internal/connector"
	"github.com/tcplb/tcplb/internal/domain"
	"github.com/tcplb/tcplb/internal/endpointpool"
	"github.com/tcplb/tcplb/internal/metrics"
)

// Config configures a Dispatcher: spec.md §4.E's max_waiters (send-queue
// capacity), min_connections (idle pre-warm count) and the tick interval.
// The Dispatcher does not read ConnectTimeout; connect timeouts are applied
// by the connector.Connector it dials through.
type Config struct {
	MaxWaiters     int
	MinConnections int
	ConnectTimeout time.Duration
	PollInterval   time.Duration
}

const (
	DefaultMaxWaiters     = 256
	DefaultMinConnections = 0
	DefaultPollInterval   = 10 * time.Millisecond
)

// Dispatcher owns one destination's endpoint pool and dispatch queue, and
// runs the connect/pair loop described in spec.md §4.E on its own goroutine.
type Dispatcher struct {
	dstName    domain.Path
	cfg        Config
	pool       *endpointpool.Pool
	connector  *connector.Connector
	queue      *Queue
	metrics    *metrics.Registry

	needed  atomic.Int64
	rng     *rand.Rand
	rngMu   sync.Mutex

	submitCh chan submission
	done     chan struct{}
	lostOnce sync.Once
	lost     atomic.Bool
}

type submission struct {
	waiter *Waiter
	result chan bool
}

// New constructs a Dispatcher. Call Run to start its goroutine.
func New(dstName domain.Path, cfg Config, pool *endpointpool.Pool, conn *connector.Connector, reg *metrics.Registry) *Dispatcher {
	if cfg.MaxWaiters <= 0 && cfg.MaxWaiters != 0 {
		cfg.MaxWaiters = DefaultMaxWaiters
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	d := &Dispatcher{
		dstName:   dstName,
		cfg:       cfg,
		pool:      pool,
		connector: conn,
		queue:     NewQueue(cfg.MaxWaiters),
		metrics:   reg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		submitCh:  make(chan submission),
		done:      make(chan struct{}),
	}
	d.needed.Store(int64(cfg.MinConnections))
	return d
}

// SetRandSource overrides the PRNG source, for deterministic tests of P2C
// selection.
func (d *Dispatcher) SetRandSource(src rand.Source) {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	d.rng = rand.New(src)
}

// Submit offers w to the dispatch queue. It returns domain.ErrCapacityExceeded
// if the queue is full, domain.ErrDispatcherLost if Run has exited, and nil
// on success (the caller should then block on w.Conn).
//
// max_waiters == 0 is the boundary case from spec.md §8: every submission
// fails immediately without ever touching the queue or the dispatcher
// goroutine.
func (d *Dispatcher) Submit(ctx context.Context, w *Waiter) error {
	if d.cfg.MaxWaiters == 0 {
		return domain.ErrCapacityExceeded
	}
	if d.lost.Load() {
		return domain.ErrDispatcherLost
	}

	result := make(chan bool, 1)
	select {
	case d.submitCh <- submission{waiter: w, result: result}:
	case <-d.done:
		return domain.ErrDispatcherLost
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case ok := <-result:
		if !ok {
			return domain.ErrCapacityExceeded
		}
		return nil
	case <-d.done:
		return domain.ErrDispatcherLost
	}
}

// Run drives the dispatcher loop until ctx is cancelled: draining
// submissions, launching outbound connects, and pairing completed
// connections with waiters. It must run on its own goroutine; callers learn
// of termination via Submit returning ErrDispatcherLost.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	defer d.lost.Store(true)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-d.submitCh:
			accepted := d.queue.Offer(sub.waiter)
			if accepted {
				d.needed.Add(1)
			}
			sub.result <- accepted
		case <-ticker.C:
			d.pollComplete(ctx)
		}
	}
}

// pollComplete is the per-tick body: it runs initConnecting, which sweeps
// the pool's failure timers through UpdatedAvailable only when at least one
// connect is needed, then records the poll metrics.
func (d *Dispatcher) pollComplete(ctx context.Context) {
	t0 := time.Now()
	d.initConnecting(ctx)
	if d.metrics != nil {
		d.metrics.ObserveDispatchPoll(d.dstName, time.Since(t0))
		d.metrics.SetWaiters(d.dstName, d.queue.Len())
	}
}

func (d *Dispatcher) initConnecting(ctx context.Context) {
	needed := int(d.needed.Load())
	if space := d.queue.AvailableCapacity(); space < needed {
		needed = space
	}
	if needed <= 0 {
		return
	}

	available := d.pool.UpdatedAvailable()
	if len(available) == 0 {
		if d.metrics != nil {
			d.metrics.IncUnavailable(d.dstName)
		}
		return
	}

	for i := 0; i < needed; i++ {
		d.rngMu.Lock()
		ep := SelectP2C(d.rng, available)
		d.rngMu.Unlock()
		if ep == nil {
			if d.metrics != nil {
				d.metrics.IncUnavailable(d.dstName)
			}
			return
		}

		if d.metrics != nil {
			d.metrics.IncAttempts(d.dstName)
		}
		ep.IncPending()
		go d.connectAndDispatch(ctx, ep)
	}
}

// connectAndDispatch dials ep, then claims a waiter from the queue and hands
// it the established connection. This is the Go analogue of
// dispatcher.rs::dispatch: rather than a future chained through the
// dispatch queue's recv side, it is a plain goroutine -- the Dispatcher
// keeps no handle to it, matching the "no back-pointer" design note in
// spec.md §9.
func (d *Dispatcher) connectAndDispatch(ctx context.Context, ep *domain.Endpoint) {
	start := time.Now()
	conn, err := d.connector.Dial(ctx, ep.PeerAddr())
	ep.DecPending()

	if err != nil {
		cause := connector.ClassifyFailure(err)
		ep.RecordFailure()
		d.pool.RecordConnectFailure(ep.PeerAddr().String(), cause)
		d.needed.Add(-1)
		if d.metrics != nil {
			d.metrics.IncFailure(d.dstName, cause)
		}
		return
	}

	ep.RecordSuccess()
	d.pool.RecordConnectSuccess(ep.PeerAddr().String())
	ep.IncOpen()
	if d.metrics != nil {
		d.metrics.ObserveConnectLatency(d.dstName, time.Since(start))
		d.metrics.IncConnects(d.dstName)
	}

	claimCh := d.queue.Claim()
	select {
	case w := <-claimCh:
		d.needed.Add(-1)
		deliver(w, conn, ep)
	case <-ctx.Done():
		ep.DecOpen()
		_ = conn.Close()
	}
}

func deliver(w *Waiter, conn net.Conn, ep *domain.Endpoint) {
	select {
	case w.Conn <- Result{Conn: conn}:
	default:
		// Requester already cancelled (closed/abandoned its receive side);
		// per SPEC_FULL.md open question 1, orphaned connections are
		// dropped rather than cached for reuse.
		ep.DecOpen()
		_ = conn.Close()
	}
}
