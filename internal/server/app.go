package server

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tcplb/tcplb/internal/admin"
	"github.com/tcplb/tcplb/internal/logger"
)

// App owns every inbound Listener plus the admin server, and coordinates
// their shutdown -- the multi-listener analogue of spec.md §6's `servers[]`
// list, supplementing the single-server scope of the distilled spec.
//
// Grounded on the teacher's Application (_examples/thushan-olla/internal/
// app/app.go: Start/Stop with a shared shutdown timeout) with Start/Stop
// fanned out across N listeners via golang.org/x/sync/errgroup instead of
// one HTTP server.
type App struct {
	listeners []*Listener
	admin     *admin.Server
	logger    logger.StyledLogger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewApp(listeners []*Listener, adminSrv *admin.Server, log logger.StyledLogger) *App {
	return &App{listeners: listeners, admin: adminSrv, logger: log}
}

// SetAdmin attaches the admin server after construction, for the common
// wiring case where admin.Config.App must itself reference the App.
func (a *App) SetAdmin(adminSrv *admin.Server) {
	a.admin = adminSrv
}

// Run blocks serving every listener and the admin server until ctx is
// cancelled or one of them returns a fatal error.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	defer close(a.done)

	g, gctx := errgroup.WithContext(runCtx)
	for _, l := range a.listeners {
		l := l
		g.Go(func() error { return l.Serve(gctx) })
	}
	if a.admin != nil {
		g.Go(func() error { return a.admin.ListenAndServe(gctx) })
	}

	return g.Wait()
}

// Shutdown cancels every listener's context and waits up to grace for Run
// to return, implementing admin.Shutdowner for the POST /shutdown handler.
func (a *App) Shutdown(ctx context.Context, grace time.Duration) error {
	if a.cancel == nil {
		return nil
	}
	a.cancel()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-a.done:
		return nil
	case <-timer.C:
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}
