package domain

import (
	"net"
	"testing"
)

func TestPathElementsTrimsSlashes(t *testing.T) {
	p := Path("/svc/a/")
	got := p.Elements()
	want := []string{"svc", "a"}
	if len(got) != len(want) {
		t.Fatalf("elements = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("elements = %v, want %v", got, want)
		}
	}
}

func TestPathElementsEmpty(t *testing.T) {
	if got := Path("/").Elements(); got != nil {
		t.Fatalf("elements = %v, want nil", got)
	}
}

func TestPathHasPrefix(t *testing.T) {
	if !Path("/svc/a/b").HasPrefix(Path("/svc/a")) {
		t.Fatal("expected /svc/a/b to have prefix /svc/a")
	}
	if Path("/svc/ab").HasPrefix(Path("/svc/a")) {
		t.Fatal("did not expect /svc/ab to have element-wise prefix /svc/a")
	}
	if Path("/svc/a").HasPrefix(Path("/svc/a/b")) {
		t.Fatal("a shorter path cannot have a longer prefix")
	}
}

func TestFailureCauseString(t *testing.T) {
	cases := map[FailureCause]string{
		FailureTimeout:   "timeout",
		FailureRefused:   "refused",
		FailureReset:     "reset",
		FailureOther:     "other",
		FailureCause(99): "other",
	}
	for cause, want := range cases {
		if got := cause.String(); got != want {
			t.Fatalf("%v.String() = %q, want %q", int(cause), got, want)
		}
	}
}

func TestErrEndpointNotFoundMessage(t *testing.T) {
	err := &ErrEndpointNotFound{Addr: "10.0.0.1:80"}
	want := "tcplb: endpoint not found: 10.0.0.1:80"
	if err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

func testAddr(t *testing.T) net.Addr {
	t.Helper()
	addr, err := net.ResolveTCPAddr("tcp", "10.0.0.1:80")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return addr
}

func TestEndpointWeightClamped(t *testing.T) {
	e := NewEndpoint("/svc/a", testAddr(t), 5)
	if e.Weight() != 1 {
		t.Fatalf("weight = %v, want clamped to 1", e.Weight())
	}
	e.SetWeight(-1)
	if e.Weight() != 0 {
		t.Fatalf("weight = %v, want clamped to 0", e.Weight())
	}
}

func TestEndpointLoadCountsConnsAndSquaresFailures(t *testing.T) {
	e := NewEndpoint("/svc/a", testAddr(t), 1)
	e.IncOpen()
	e.IncPending()
	e.RecordFailure()
	e.RecordFailure()
	// 1 open + 1 pending + 2^2 failures = 6
	if got := e.Load(); got != 6 {
		t.Fatalf("load = %v, want 6", got)
	}
}

func TestEndpointRecordSuccessResetsFailures(t *testing.T) {
	e := NewEndpoint("/svc/a", testAddr(t), 1)
	e.RecordFailure()
	e.RecordFailure()
	e.RecordSuccess()
	if e.ConsecutiveFailures() != 0 {
		t.Fatalf("consecutive failures = %d, want 0", e.ConsecutiveFailures())
	}
}

func TestEndpointDecCountersFloorAtZero(t *testing.T) {
	e := NewEndpoint("/svc/a", testAddr(t), 1)
	e.DecOpen()
	e.DecPending()
	if e.OpenConns() != 0 || e.PendingConns() != 0 {
		t.Fatalf("counters went negative: open=%d pending=%d", e.OpenConns(), e.PendingConns())
	}
}

func TestEndpointIsIdle(t *testing.T) {
	e := NewEndpoint("/svc/a", testAddr(t), 1)
	if !e.IsIdle() {
		t.Fatal("fresh endpoint should be idle")
	}
	e.IncOpen()
	if e.IsIdle() {
		t.Fatal("endpoint with an open connection should not be idle")
	}
	e.DecOpen()
	if !e.IsIdle() {
		t.Fatal("endpoint should be idle again after DecOpen")
	}
}

func TestEndpointWeightedLoadZeroWeightFallsBackToLoad(t *testing.T) {
	e := NewEndpoint("/svc/a", testAddr(t), 0)
	e.IncOpen()
	if got := e.WeightedLoad(); got != e.Load() {
		t.Fatalf("weighted load = %v, want %v", got, e.Load())
	}
}

func TestWeightedAddressKey(t *testing.T) {
	w := WeightedAddress{Addr: testAddr(t), Weight: 0.5}
	if w.Key() != "10.0.0.1:80" {
		t.Fatalf("key = %q, want 10.0.0.1:80", w.Key())
	}
}
