package connector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/tcplb/tcplb/internal/domain"
)

func TestDialSucceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	c := New(Config{ConnectTimeout: time.Second})
	conn, err := c.Dial(context.Background(), ln.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestDialRefusedIsClassified(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr()
	ln.Close() // nothing listening now

	c := New(Config{ConnectTimeout: time.Second})
	_, err = c.Dial(context.Background(), addr)
	if err == nil {
		t.Fatal("expected an error dialing a closed listener")
	}
	if cause := ClassifyFailure(err); cause != domain.FailureRefused {
		t.Fatalf("cause = %v, want FailureRefused", cause)
	}
}

func TestDialTimeoutIsClassified(t *testing.T) {
	// 10.255.255.1 is a non-routable address commonly used to force a dial
	// timeout in tests without depending on external network behaviour.
	addr, err := net.ResolveTCPAddr("tcp", "10.255.255.1:81")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	c := New(Config{ConnectTimeout: 50 * time.Millisecond})
	_, err = c.Dial(context.Background(), addr)
	if err == nil {
		t.Skip("dial unexpectedly succeeded in this network environment")
	}
	if cause := ClassifyFailure(err); cause != domain.FailureTimeout && cause != domain.FailureOther {
		t.Fatalf("cause = %v, want FailureTimeout or FailureOther depending on environment", cause)
	}
}

func TestFactoryGlobalKind(t *testing.T) {
	f, err := NewFactory(FactoryConfig{Kind: "io.l5d.global", Global: Config{ConnectTimeout: time.Second}})
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	c, err := f.MakeConnector("svc/a")
	if err != nil {
		t.Fatalf("make connector: %v", err)
	}
	if c == nil {
		t.Fatal("expected a non-nil connector")
	}
}

func TestFactoryStaticKindLongestPrefixWins(t *testing.T) {
	f, err := NewFactory(FactoryConfig{
		Kind: "io.l5d.static",
		Configs: []PrefixConfig{
			{Prefix: "svc", ConnectTimeoutMs: 1000},
			{Prefix: "svc/a", ConnectTimeoutMs: 50},
		},
	})
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}

	c, err := f.MakeConnector("svc/a")
	if err != nil {
		t.Fatalf("make connector: %v", err)
	}
	if c.cfg.ConnectTimeout != 50*time.Millisecond {
		t.Fatalf("connect timeout = %v, want 50ms from the more specific prefix", c.cfg.ConnectTimeout)
	}
}

func TestFactoryUnknownKindErrors(t *testing.T) {
	if _, err := NewFactory(FactoryConfig{Kind: "nonsense"}); err == nil {
		t.Fatal("expected an error for an unknown client kind")
	}
}
