// Package resolver polls a naming service for a destination's weighted
// address set and fans updates out to every endpointpool.Pool attached to
// that destination, per spec.md §4.I.
//
// Grounded on the teacher's discovery.ModelDiscoveryService
// (_examples/thushan-olla/internal/adapter/discovery/service.go -- the
// ticker-driven poll loop, consecutive-failure tracking and Start/Stop
// lifecycle) with its HTTP transport replaced by
// github.com/hashicorp/go-retryablehttp per SPEC_FULL.md's domain-stack
// wiring (grounded on _examples/nabbar-golib/artifact/gitlab/model.go's use
// of retryablehttp.Request), and fan-out coordinated with
// golang.org/x/sync/errgroup the way discovery.go's discoverConcurrently
// fans out per-endpoint discovery work.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/tcplb/tcplb/internal/domain"
	"github.com/tcplb/tcplb/internal/endpointpool"
	"github.com/tcplb/tcplb/internal/logger"
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	MaxConsecutiveFailures = 5
)

// Address is the wire shape of one entry in a naming service response.
type Address struct {
	Addr   string  `json:"addr"`
	Weight float64 `json:"weight"`
}

// Client fetches the current address set for a destination name from a
// naming service. io.l5d.fs-style static interpreters implement this
// in-process (see StaticClient); io.l5d.stream talks over HTTP.
type Client interface {
	Resolve(ctx context.Context, dstName domain.Path) ([]Address, error)
}

// HTTPClient resolves destinations against a naming service that exposes
// GET <baseURL>/<dstName> -> JSON array of Address.
type HTTPClient struct {
	baseURL string
	http    *retryablehttp.Client
}

// NewHTTPClient builds an HTTPClient whose retryablehttp.Client retries
// transient naming-service failures with exponential backoff, the same
// resilience pattern the teacher's discovery client applies per-endpoint
// with its own RetryAttempts/RetryBackoff config.
func NewHTTPClient(baseURL string, requestTimeout time.Duration) *HTTPClient {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = requestTimeout
	rc.Logger = nil
	return &HTTPClient{baseURL: baseURL, http: rc}
}

func (c *HTTPClient) Resolve(ctx context.Context, dstName domain.Path) ([]Address, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, dstName.String())
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolver: naming service returned status %d for %s", resp.StatusCode, dstName)
	}

	var addrs []Address
	if err := json.NewDecoder(resp.Body).Decode(&addrs); err != nil {
		return nil, fmt.Errorf("resolver: decoding response for %s: %w", dstName, err)
	}
	return addrs, nil
}

// StaticClient is the io.l5d.fs-equivalent interpreter: a fixed, in-memory
// address set configured at startup, used by tests and by deployments that
// don't run a naming service.
type StaticClient struct {
	mu   sync.RWMutex
	sets map[string][]Address
}

func NewStaticClient(sets map[string][]Address) *StaticClient {
	s := &StaticClient{sets: make(map[string][]Address, len(sets))}
	for k, v := range sets {
		s.sets[k] = v
	}
	return s
}

func (c *StaticClient) Resolve(_ context.Context, dstName domain.Path) ([]Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sets[dstName.String()], nil
}

// Set replaces the address set for dstName, letting tests or an
// fsnotify-driven config reload push a new fixed resolution.
func (c *StaticClient) Set(dstName domain.Path, addrs []Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[dstName.String()] = addrs
}

// Resolver polls a Client on an interval and applies every successful
// resolution onto every pool attached to that destination (spec.md §4.I:
// "multiple subscribers attach to one resolution stream").
type Resolver struct {
	client       Client
	pollInterval time.Duration
	logger       logger.StyledLogger

	mu    sync.Mutex
	pools map[string][]*endpointpool.Pool

	consecutiveFailures map[string]int
}

// New builds a Resolver. log may be nil, in which case resolution errors are
// swallowed rather than logged; callers should pass a real StyledLogger
// (cmd/tcplb/main.go always does) so a naming-service outage is visible
// instead of silently stalling the pool on its last-good resolution.
func New(client Client, pollInterval time.Duration, log logger.StyledLogger) *Resolver {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Resolver{
		client:              client,
		pollInterval:        pollInterval,
		logger:              log,
		pools:               make(map[string][]*endpointpool.Pool),
		consecutiveFailures: make(map[string]int),
	}
}

// Attach registers pool as a subscriber of dstName's resolution stream. If
// this is the first subscriber for dstName, Attach starts the polling loop;
// later subscribers for the same destination just join the fan-out list and
// receive the next tick's update, matching linkerd-tcp's
// Interpreter::resolve attach-to-existing-stream behaviour.
func (r *Resolver) Attach(ctx context.Context, dstName domain.Path, pool *endpointpool.Pool) {
	r.mu.Lock()
	existing := r.pools[dstName.String()]
	r.pools[dstName.String()] = append(existing, pool)
	first := len(existing) == 0
	r.mu.Unlock()

	if !first {
		return
	}
	go r.pollLoop(ctx, dstName)
}

func (r *Resolver) pollLoop(ctx context.Context, dstName domain.Path) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.tick(ctx, dstName)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, dstName)
		}
	}
}

func (r *Resolver) tick(ctx context.Context, dstName domain.Path) {
	addrs, err := r.client.Resolve(ctx, dstName)
	key := dstName.String()

	if err != nil {
		r.mu.Lock()
		r.consecutiveFailures[key]++
		failures := r.consecutiveFailures[key]
		r.mu.Unlock()

		if r.logger != nil {
			if failures >= MaxConsecutiveFailures {
				r.logger.WarnWithDest("resolution failing repeatedly, pool retains last-good state", key, "error", err, "consecutive_failures", failures)
			} else {
				r.logger.WarnWithDest("resolution failed, pool retains last-good state", key, "error", err, "consecutive_failures", failures)
			}
		}
		return
	}

	r.mu.Lock()
	r.consecutiveFailures[key] = 0
	subscribers := append([]*endpointpool.Pool(nil), r.pools[key]...)
	r.mu.Unlock()

	weighted := make([]domain.WeightedAddress, 0, len(addrs))
	for _, a := range addrs {
		netAddr, err := resolveNetAddr(a.Addr)
		if err != nil {
			continue
		}
		weighted = append(weighted, domain.WeightedAddress{Addr: netAddr, Weight: a.Weight})
	}

	var g errgroup.Group
	for _, p := range subscribers {
		p := p
		g.Go(func() error {
			p.ApplyResolution(weighted)
			return nil
		})
	}
	_ = g.Wait()
}
