package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tcplb/tcplb/internal/endpointpool"
	"github.com/tcplb/tcplb/internal/metrics"
)

type fakePools map[string]endpointpool.Stats

func (f fakePools) PoolStats() map[string]endpointpool.Stats { return f }

type fakeShutdowner struct{ called chan struct{} }

func (f *fakeShutdowner) Shutdown(ctx context.Context, grace time.Duration) error {
	close(f.called)
	return nil
}

func newTestServer() *Server {
	return New(Config{
		Addr:           "127.0.0.1:0",
		Registry:       metrics.NewRegistry(),
		Pools:          fakePools{"svc/a": {Available: 2, Failed: 1}},
		RequestsPerSec: 1000,
		Burst:          1000,
	})
}

func TestHandlePingReturnsPong(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	rec := httptest.NewRecorder()
	s.handlePing(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "pong" {
		t.Fatalf("body = %+v", body)
	}
}

func TestHandlePingRejectsNonGet(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/admin/ping", nil)
	rec := httptest.NewRecorder()
	s.handlePing(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandleMetricsIncludesPoolGauges(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handleMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `tcplb_pool_available{dst="svc/a"} 2`) {
		t.Fatalf("body missing expected pool gauge line:\n%s", body)
	}
}

func TestHandleShutdownInvokesApp(t *testing.T) {
	shut := &fakeShutdowner{called: make(chan struct{})}
	s := New(Config{
		Addr:           "127.0.0.1:0",
		App:            shut,
		RequestsPerSec: 1000,
		Burst:          1000,
		ShutdownGrace:  time.Second,
	})

	req := httptest.NewRequest(http.MethodPost, "/shutdown", nil)
	rec := httptest.NewRecorder()
	s.handleShutdown(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	select {
	case <-shut.called:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Shutdown to be invoked")
	}
}

func TestHandleShutdownWithoutAppIsUnavailable(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/shutdown", nil)
	rec := httptest.NewRecorder()
	s.handleShutdown(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", RequestsPerSec: 1, Burst: 1})

	ok := 0
	limited := 0
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
		rec := httptest.NewRecorder()
		s.withRateLimit(s.handlePing)(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		} else {
			ok++
		}
	}
	if limited == 0 {
		t.Fatal("expected at least one request to be rate limited with burst=1")
	}
}
