// Package admin implements the administrative HTTP surface from spec.md §6:
// GET /metrics, POST /shutdown, POST /abort, and GET /admin/ping.
//
// Grounded on the teacher's app.startWebServer / handler_process.go
// (_examples/thushan-olla/internal/app/server.go,
// _examples/thushan-olla/internal/app/handler_process.go) for the
// http.ServeMux + JSON-handler shape and the process-stats endpoint idea,
// on _examples/thushan-olla/internal/adapter/security/request_rate_limit.go
// for golang.org/x/time/rate usage, and on
// _examples/jroosing-HydraDNS/internal/api/handlers/health.go for reporting
// system-wide CPU/memory via github.com/shirou/gopsutil/v3.
package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/time/rate"

	"github.com/tcplb/tcplb/internal/endpointpool"
	"github.com/tcplb/tcplb/internal/logger"
	"github.com/tcplb/tcplb/internal/metrics"
)

const (
	ContentTypeHeader = "Content-Type"
	ContentTypeJSON   = "application/json"
	ContentTypeText   = "text/plain; version=0.0.4"
)

// PoolStatsProvider reports a point-in-time view of every destination's
// endpoint pool, for the /metrics gauges the Registry itself doesn't know
// about (balancer.Router owns the pools).
type PoolStatsProvider interface {
	PoolStats() map[string]endpointpool.Stats
}

// Shutdowner is invoked by POST /shutdown to begin a graceful drain.
type Shutdowner interface {
	Shutdown(ctx context.Context, grace time.Duration) error
}

// Config configures the admin server.
type Config struct {
	Addr           string
	Registry       *metrics.Registry
	Pools          PoolStatsProvider
	App            Shutdowner
	Logger         logger.StyledLogger
	ShutdownGrace  time.Duration
	RequestsPerSec float64
	Burst          int
}

// Server is the admin HTTP listener. One Server runs per process.
type Server struct {
	cfg     Config
	limiter *rate.Limiter
	http    *http.Server
	start   time.Time

	mu       sync.Mutex
	aborting bool
}

func New(cfg Config) *Server {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}

	s := &Server{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		start:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.withRateLimit(s.handleMetrics))
	mux.HandleFunc("/shutdown", s.withRateLimit(s.handleShutdown))
	mux.HandleFunc("/abort", s.withRateLimit(s.handleAbort))
	mux.HandleFunc("/admin/ping", s.withRateLimit(s.handlePing))

	s.http = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe blocks serving the admin mux until ctx is cancelled or the
// listener errors.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "pong"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.App == nil {
		http.Error(w, "shutdown not wired", http.StatusServiceUnavailable)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		if err := s.cfg.App.Shutdown(ctx, s.cfg.ShutdownGrace); err != nil && s.cfg.Logger != nil {
			s.cfg.Logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("shutting down\n"))
}

// handleAbort responds 202 and then exits the process with status 1 about
// 100ms later, with no drain, per spec.md §6's distinction between a
// graceful /shutdown and a hard /abort.
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	if s.aborting {
		s.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.aborting = true
	s.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("aborting\n"))

	if s.cfg.Logger != nil {
		s.cfg.Logger.Warn("admin abort requested, exiting")
	}
	go abortProcess()
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var b strings.Builder
	if s.cfg.Registry != nil {
		s.cfg.Registry.WriteProm(&b)
	}
	if s.cfg.Pools != nil {
		writePoolGauges(&b, s.cfg.Pools.PoolStats())
	}
	writeProcessGauges(&b, s.start)

	w.Header().Set(ContentTypeHeader, ContentTypeText)
	_, _ = w.Write([]byte(b.String()))
}

func writePoolGauges(b *strings.Builder, stats map[string]endpointpool.Stats) {
	b.WriteString("# HELP tcplb_pool_available Endpoints currently available per destination.\n")
	b.WriteString("# TYPE tcplb_pool_available gauge\n")
	b.WriteString("# HELP tcplb_pool_failed Endpoints currently sidelined per destination.\n")
	b.WriteString("# TYPE tcplb_pool_failed gauge\n")
	b.WriteString("# HELP tcplb_pool_retired Endpoints retired (absent from resolution, draining) per destination.\n")
	b.WriteString("# TYPE tcplb_pool_retired gauge\n")
	b.WriteString("# HELP tcplb_open_connections Open outbound connections per destination.\n")
	b.WriteString("# TYPE tcplb_open_connections gauge\n")
	b.WriteString("# HELP tcplb_pending_connections In-flight outbound connects per destination.\n")
	b.WriteString("# TYPE tcplb_pending_connections gauge\n")

	for dst, s := range stats {
		b.WriteString(quoted("tcplb_pool_available", dst, float64(s.Available)))
		b.WriteString(quoted("tcplb_pool_failed", dst, float64(s.Failed)))
		b.WriteString(quoted("tcplb_pool_retired", dst, float64(s.Retired)))
		b.WriteString(quoted("tcplb_open_connections", dst, float64(s.OpenConns)))
		b.WriteString(quoted("tcplb_pending_connections", dst, float64(s.PendingConns)))
	}
}

func quoted(metric, dst string, v float64) string {
	return metric + "{dst=\"" + dst + "\"} " + fmtFloat(v) + "\n"
}

// writeProcessGauges reports process uptime plus system-wide (not
// per-process) CPU and memory utilisation using gopsutil, for operators
// without a separate system monitor wired up.
func writeProcessGauges(b *strings.Builder, start time.Time) {
	b.WriteString("# HELP tcplb_uptime_seconds Process uptime.\n")
	b.WriteString("# TYPE tcplb_uptime_seconds gauge\n")
	b.WriteString("tcplb_uptime_seconds " + fmtFloat(time.Since(start).Seconds()) + "\n")

	if vmStat, err := mem.VirtualMemory(); err == nil {
		b.WriteString("# HELP tcplb_system_memory_used_percent System memory utilisation.\n")
		b.WriteString("# TYPE tcplb_system_memory_used_percent gauge\n")
		b.WriteString("tcplb_system_memory_used_percent " + fmtFloat(vmStat.UsedPercent) + "\n")
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		b.WriteString("# HELP tcplb_system_cpu_used_percent System CPU utilisation, sampled instantaneously.\n")
		b.WriteString("# TYPE tcplb_system_cpu_used_percent gauge\n")
		b.WriteString("tcplb_system_cpu_used_percent " + fmtFloat(pct[0]) + "\n")
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
