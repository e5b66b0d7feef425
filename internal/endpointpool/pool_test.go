package endpointpool

import (
	"net"
	"testing"
	"time"

	"github.com/tcplb/tcplb/internal/domain"
)

func addr(t *testing.T, hostport string) net.Addr {
	t.Helper()
	a, err := net.ResolveTCPAddr("tcp", hostport)
	if err != nil {
		t.Fatalf("resolve %s: %v", hostport, err)
	}
	return a
}

func TestApplyResolutionAddsNewEndpoints(t *testing.T) {
	p := New("dst", Config{})
	p.ApplyResolution([]domain.WeightedAddress{
		{Addr: addr(t, "10.0.0.1:80"), Weight: 1},
		{Addr: addr(t, "10.0.0.2:80"), Weight: 0.5},
	})

	avail := p.UpdatedAvailable()
	if len(avail) != 2 {
		t.Fatalf("available = %d, want 2", len(avail))
	}
}

func TestApplyResolutionIsIdempotent(t *testing.T) {
	p := New("dst", Config{})
	addrs := []domain.WeightedAddress{{Addr: addr(t, "10.0.0.1:80"), Weight: 1}}
	p.ApplyResolution(addrs)
	first := p.UpdatedAvailable()[0]
	p.ApplyResolution(addrs)
	second := p.UpdatedAvailable()[0]

	if first != second {
		t.Fatalf("applying the same resolution twice replaced the endpoint")
	}
}

func TestApplyResolutionRetiresBusyRemovedEndpoint(t *testing.T) {
	p := New("dst", Config{})
	a := addr(t, "10.0.0.1:80")
	p.ApplyResolution([]domain.WeightedAddress{{Addr: a, Weight: 1}})

	ep := p.UpdatedAvailable()[0]
	ep.IncOpen() // not idle

	p.ApplyResolution(nil) // a is gone from the resolution

	stats := p.Snapshot()
	if stats.Available != 0 || stats.Retired != 1 {
		t.Fatalf("stats = %+v, want 0 available, 1 retired", stats)
	}
}

func TestApplyResolutionDropsIdleRemovedEndpoint(t *testing.T) {
	p := New("dst", Config{})
	a := addr(t, "10.0.0.1:80")
	p.ApplyResolution([]domain.WeightedAddress{{Addr: a, Weight: 1}})
	p.ApplyResolution(nil) // idle endpoint, absent from R -> dropped entirely

	stats := p.Snapshot()
	if stats.Available != 0 || stats.Failed != 0 || stats.Retired != 0 {
		t.Fatalf("stats = %+v, want all zero", stats)
	}
}

func TestApplyResolutionSalvagesRetiredEndpoint(t *testing.T) {
	p := New("dst", Config{})
	a := addr(t, "10.0.0.1:80")
	p.ApplyResolution([]domain.WeightedAddress{{Addr: a, Weight: 1}})
	ep := p.UpdatedAvailable()[0]
	ep.IncOpen()
	p.ApplyResolution(nil) // -> retired (busy)

	p.ApplyResolution([]domain.WeightedAddress{{Addr: a, Weight: 0.3}}) // reappears

	stats := p.Snapshot()
	if stats.Available != 1 || stats.Retired != 0 {
		t.Fatalf("stats = %+v, want 1 available, 0 retired", stats)
	}
	if ep.Weight() != 0.3 {
		t.Fatalf("weight = %f, want 0.3 (salvage must refresh weight)", ep.Weight())
	}
}

func TestSweepDemotesPastFailLimit(t *testing.T) {
	p := New("dst", Config{FailLimit: 2, FailPenalty: time.Hour})
	a := addr(t, "10.0.0.1:80")
	healthy := addr(t, "10.0.0.2:80")
	// The healthy endpoint keeps available non-empty, so fail-open does not
	// promote a straight back in the same sweep.
	p.ApplyResolution([]domain.WeightedAddress{{Addr: a, Weight: 1}, {Addr: healthy, Weight: 1}})

	p.RecordConnectFailure(a.String(), domain.FailureTimeout)
	p.RecordConnectFailure(a.String(), domain.FailureTimeout)

	avail := p.UpdatedAvailable()
	if len(avail) != 1 || avail[0].PeerAddr().String() != healthy.String() {
		t.Fatalf("available = %d, want only the healthy endpoint after a hits fail_limit", len(avail))
	}
	stats := p.Snapshot()
	if stats.Failed != 1 {
		t.Fatalf("failed = %d, want 1", stats.Failed)
	}
}

func TestSweepPromotesAfterFailPenalty(t *testing.T) {
	p := New("dst", Config{FailLimit: 1, FailPenalty: 10 * time.Millisecond})
	a := addr(t, "10.0.0.1:80")
	p.ApplyResolution([]domain.WeightedAddress{{Addr: a, Weight: 1}})
	p.RecordConnectFailure(a.String(), domain.FailureTimeout)
	p.UpdatedAvailable() // sweeps it into failed

	time.Sleep(20 * time.Millisecond)

	avail := p.UpdatedAvailable()
	if len(avail) != 1 {
		t.Fatalf("available = %d, want 1 after fail_penalty elapses", len(avail))
	}
}

func TestFailOpenGuarantee(t *testing.T) {
	p := New("dst", Config{FailLimit: 1, FailPenalty: time.Hour})
	a1 := addr(t, "10.0.0.1:80")
	a2 := addr(t, "10.0.0.2:80")
	p.ApplyResolution([]domain.WeightedAddress{{Addr: a1, Weight: 1}, {Addr: a2, Weight: 1}})

	p.RecordConnectFailure(a1.String(), domain.FailureTimeout)
	p.RecordConnectFailure(a2.String(), domain.FailureTimeout)

	avail := p.UpdatedAvailable()
	if len(avail) != 2 {
		t.Fatalf("available = %d, want 2 (fail-open must promote everything rather than leave available empty)", len(avail))
	}
}

func TestRecordConnectSuccessResetsFailureStreak(t *testing.T) {
	p := New("dst", Config{FailLimit: 3})
	a := addr(t, "10.0.0.1:80")
	p.ApplyResolution([]domain.WeightedAddress{{Addr: a, Weight: 1}})

	p.RecordConnectFailure(a.String(), domain.FailureOther)
	p.RecordConnectFailure(a.String(), domain.FailureOther)
	p.RecordConnectSuccess(a.String())

	ep := p.UpdatedAvailable()[0]
	if ep.ConsecutiveFailures() != 0 {
		t.Fatalf("consecutive failures = %d, want 0 after success", ep.ConsecutiveFailures())
	}
}
