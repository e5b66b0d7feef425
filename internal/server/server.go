// Package server runs the per-listener accept loop and the
// Routing->Connecting->Streaming state machine for each inbound connection
// described in spec.md §4.H.
//
// Grounded on _examples/nishisan-dev-n-backup/internal/server/server.go for
// the accept-loop-with-backoff shape (TLS-or-plain net.Listener, a
// context-cancellation goroutine that closes the listener, consecutive
// error backoff), and on the teacher's Application lifecycle
// (_examples/thushan-olla/internal/app/app.go: Start/Stop, an error
// channel) for App's multi-listener coordination.
package server

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/tcplb/tcplb/internal/balancer"
	"github.com/tcplb/tcplb/internal/domain"
	"github.com/tcplb/tcplb/internal/logger"
	"github.com/tcplb/tcplb/internal/stream"
)

// Config describes one inbound listener from spec.md §6's `servers[]`
// entries: the bind address, optional server-side TLS, the router it feeds,
// and a destination name (or SNI hook) used to pick a Balancer.
type Config struct {
	Addr        string
	TLS         *tls.Config
	DstName     domain.Path
	DstFromSNI  bool
	IdleTimeout time.Duration
	ConnTimeout time.Duration
}

const (
	maxBackoff        = 5 * time.Second
	backoffStep       = 100 * time.Millisecond
	backoffThreshold  = 5
)

// Listener runs one accept loop, routing every accepted connection through
// a Router to obtain a Balancer, then streaming bytes in both directions.
type Listener struct {
	cfg    Config
	router *balancer.Router
	pool   *stream.BufferPool
	logger logger.StyledLogger
}

func NewListener(cfg Config, router *balancer.Router, pool *stream.BufferPool, log logger.StyledLogger) *Listener {
	return &Listener{cfg: cfg, router: router, pool: pool, logger: log}
}

// Serve blocks accepting connections on cfg.Addr until ctx is cancelled.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := l.listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	l.logger.Info("listening", "addr", l.cfg.Addr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			consecutiveErrors++
			l.logger.Warn("accept error", "error", err, "consecutive_errors", consecutiveErrors)
			if consecutiveErrors > backoffThreshold {
				delay := time.Duration(consecutiveErrors) * backoffStep
				if delay > maxBackoff {
					delay = maxBackoff
				}
				time.Sleep(delay)
			}
			continue
		}
		consecutiveErrors = 0
		go l.handle(ctx, conn)
	}
}

func (l *Listener) listen() (net.Listener, error) {
	if l.cfg.TLS != nil {
		return tls.Listen("tcp", l.cfg.Addr, l.cfg.TLS)
	}
	return net.Listen("tcp", l.cfg.Addr)
}

// handle implements the per-connection Routing -> Connecting -> Streaming
// state machine: resolve a destination name, obtain a Balancer from the
// Router, dial an outbound endpoint through it, then run a full-duplex
// byte copy between the two sockets until either side closes.
func (l *Listener) handle(ctx context.Context, client net.Conn) {
	defer client.Close()

	dstName := l.cfg.DstName
	if l.cfg.DstFromSNI {
		if replacement, sni, ok := sniDstName(client); ok {
			client = replacement
			dstName = sni
		}
	}

	b, err := l.router.Balancer(dstName)
	if err != nil {
		l.logger.WarnWithDest("routing failed", dstName.String(), "error", err)
		return
	}

	connectCtx := ctx
	if l.cfg.ConnTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, l.cfg.ConnTimeout)
		defer cancel()
	}

	upstream, err := b.Connect(connectCtx)
	if err != nil {
		l.logger.WarnWithDest("connect failed", dstName.String(), "error", err)
		return
	}
	defer upstream.Close()

	summary, err := stream.Run(client, upstream, l.pool, l.cfg.IdleTimeout)
	if err != nil {
		l.logger.Debug("stream ended", "dst", dstName.String(), "bytes_to_dst", summary.BytesToDst, "bytes_to_src", summary.BytesToSrc, "error", err)
	}
}
