package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/tcplb/tcplb/internal/balancer"
	"github.com/tcplb/tcplb/internal/connector"
	"github.com/tcplb/tcplb/internal/dispatch"
	"github.com/tcplb/tcplb/internal/logger"
	"github.com/tcplb/tcplb/internal/resolver"
	"github.com/tcplb/tcplb/internal/stream"
)

func echoUpstream(t *testing.T) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						if _, werr := c.Write(buf[:n]); werr != nil {
							return
						}
					}
					if err != nil {
						return
					}
				}
			}(c)
		}
	}()
	return ln.Addr()
}

func discardLogger() logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestListenerProxiesBytesEndToEnd(t *testing.T) {
	upstreamAddr := echoUpstream(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	static := resolver.NewStaticClient(map[string][]resolver.Address{
		"dst": {{Addr: upstreamAddr.String(), Weight: 1}},
	})
	res := resolver.New(static, 5*time.Millisecond, nil)

	fac, err := connector.NewFactory(connector.FactoryConfig{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	router := balancer.NewRouter(ctx, balancer.Config{
		ConnectorFactory: fac,
		DispatchConfig:   dispatch.Config{MaxWaiters: 4, MinConnections: 1, PollInterval: 5 * time.Millisecond},
		Resolver:         res,
	})

	reserve, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := reserve.Addr().String()
	reserve.Close()

	lnCfg := Config{Addr: addr, DstName: "dst", IdleTimeout: time.Second}
	bufPool := stream.NewBufferPool(1024)
	listener := NewListener(lnCfg, router, bufPool, discardLogger())

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- listener.Serve(ctx) }()

	var client net.Conn
	for i := 0; i < 50; i++ {
		client, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial listener: %v", err)
	}
	defer client.Close()

	msg := []byte("round trip\n")
	if _, err := client.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]byte, len(msg))
	n := 0
	for n < len(msg) {
		k, err := client.Read(got[n:])
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		n += k
	}
	if string(got) != string(msg) {
		t.Fatalf("got %q, want %q", got, msg)
	}
}
