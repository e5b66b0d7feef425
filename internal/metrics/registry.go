// Package metrics centralises the counters and gauges spec.md §6 exposes at
// GET /metrics: one set of per-destination counters keyed by Path, reported
// in Prometheus text exposition format.
//
// Grounded on the teacher's internal/adapter/stats collector
// (_examples/thushan-olla/internal/adapter/stats/collector.go): a
// lock-free, per-endpoint map of xsync.Counter fields rather than a
// mutex-guarded struct, which is the same contention profile a
// per-destination dispatcher poll loop produces here.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/tcplb/tcplb/internal/domain"
)

type destStats struct {
	attempts    *xsync.Counter
	connects    *xsync.Counter
	failures    [4]*xsync.Counter // indexed by domain.FailureCause
	unavailable *xsync.Counter

	waiters atomic.Int64

	connectLatencyNs atomic.Int64
	connectSamples   atomic.Int64
	pollLatencyNs    atomic.Int64
	pollSamples      atomic.Int64
}

func newDestStats() *destStats {
	d := &destStats{
		attempts:    xsync.NewCounter(),
		connects:    xsync.NewCounter(),
		unavailable: xsync.NewCounter(),
	}
	for i := range d.failures {
		d.failures[i] = xsync.NewCounter()
	}
	return d
}

// Registry is the process-wide metrics sink. It is safe for concurrent use
// by every dispatcher, pool and server goroutine.
type Registry struct {
	dests *xsync.Map[string, *destStats]
}

func NewRegistry() *Registry {
	return &Registry{dests: xsync.NewMap[string, *destStats]()}
}

func (r *Registry) stats(dst domain.Path) *destStats {
	d, _ := r.dests.LoadOrCompute(string(dst), func() (*destStats, bool) {
		return newDestStats(), false
	})
	return d
}

func (r *Registry) IncAttempts(dst domain.Path)   { r.stats(dst).attempts.Inc() }
func (r *Registry) IncConnects(dst domain.Path)   { r.stats(dst).connects.Inc() }
func (r *Registry) IncUnavailable(dst domain.Path) { r.stats(dst).unavailable.Inc() }

func (r *Registry) IncFailure(dst domain.Path, cause domain.FailureCause) {
	s := r.stats(dst)
	if int(cause) >= 0 && int(cause) < len(s.failures) {
		s.failures[cause].Inc()
	}
}

func (r *Registry) SetWaiters(dst domain.Path, n int) {
	r.stats(dst).waiters.Store(int64(n))
}

func (r *Registry) ObserveConnectLatency(dst domain.Path, d time.Duration) {
	s := r.stats(dst)
	s.connectLatencyNs.Add(d.Nanoseconds())
	s.connectSamples.Add(1)
}

func (r *Registry) ObserveDispatchPoll(dst domain.Path, d time.Duration) {
	s := r.stats(dst)
	s.pollLatencyNs.Add(d.Nanoseconds())
	s.pollSamples.Add(1)
}

// WriteProm renders every tracked destination's counters and gauges in
// Prometheus text exposition format, used by the admin GET /metrics handler.
func (r *Registry) WriteProm(w *strings.Builder) {
	names := make([]string, 0)
	r.dests.Range(func(k string, _ *destStats) bool {
		names = append(names, k)
		return true
	})
	sort.Strings(names)

	fmt.Fprintln(w, "# HELP tcplb_connect_attempts_total Outbound connect attempts per destination.")
	fmt.Fprintln(w, "# TYPE tcplb_connect_attempts_total counter")
	fmt.Fprintln(w, "# HELP tcplb_connects_total Successful outbound connects per destination.")
	fmt.Fprintln(w, "# TYPE tcplb_connects_total counter")
	fmt.Fprintln(w, "# HELP tcplb_connect_failures_total Failed outbound connects per destination, by cause.")
	fmt.Fprintln(w, "# TYPE tcplb_connect_failures_total counter")
	fmt.Fprintln(w, "# HELP tcplb_unavailable_total Dispatch ticks with zero available endpoints.")
	fmt.Fprintln(w, "# TYPE tcplb_unavailable_total counter")
	fmt.Fprintln(w, "# HELP tcplb_waiters Current queued connect waiters per destination.")
	fmt.Fprintln(w, "# TYPE tcplb_waiters gauge")
	fmt.Fprintln(w, "# HELP tcplb_connect_latency_seconds_avg Mean connect latency per destination.")
	fmt.Fprintln(w, "# TYPE tcplb_connect_latency_seconds_avg gauge")
	fmt.Fprintln(w, "# HELP tcplb_dispatch_poll_seconds_avg Mean dispatcher poll duration per destination.")
	fmt.Fprintln(w, "# TYPE tcplb_dispatch_poll_seconds_avg gauge")

	causes := []domain.FailureCause{domain.FailureOther, domain.FailureTimeout, domain.FailureRefused, domain.FailureReset}

	for _, name := range names {
		s, ok := r.dests.Load(name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "tcplb_connect_attempts_total{dst=%q} %d\n", name, s.attempts.Value())
		fmt.Fprintf(w, "tcplb_connects_total{dst=%q} %d\n", name, s.connects.Value())
		for _, c := range causes {
			fmt.Fprintf(w, "tcplb_connect_failures_total{dst=%q,cause=%q} %d\n", name, c.String(), s.failures[c].Value())
		}
		fmt.Fprintf(w, "tcplb_unavailable_total{dst=%q} %d\n", name, s.unavailable.Value())
		fmt.Fprintf(w, "tcplb_waiters{dst=%q} %d\n", name, s.waiters.Load())

		if samples := s.connectSamples.Load(); samples > 0 {
			avg := time.Duration(s.connectLatencyNs.Load()/samples).Seconds()
			fmt.Fprintf(w, "tcplb_connect_latency_seconds_avg{dst=%q} %f\n", name, avg)
		}
		if samples := s.pollSamples.Load(); samples > 0 {
			avg := time.Duration(s.pollLatencyNs.Load()/samples).Seconds()
			fmt.Fprintf(w, "tcplb_dispatch_poll_seconds_avg{dst=%q} %f\n", name, avg)
		}
	}
}
