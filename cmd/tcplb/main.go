// Command tcplb runs the layer-4 load-balancing reverse proxy described by
// every internal/ package in this module.
//
// Grounded on the teacher's main.go (_examples/thushan-olla/main.go):
// styled-logger bootstrap, SIGINT/SIGTERM-driven graceful shutdown via a
// cancelled context, and deferred logger cleanup on exit.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tcplb/tcplb/internal/admin"
	"github.com/tcplb/tcplb/internal/balancer"
	"github.com/tcplb/tcplb/internal/config"
	"github.com/tcplb/tcplb/internal/connector"
	"github.com/tcplb/tcplb/internal/dispatch"
	"github.com/tcplb/tcplb/internal/domain"
	"github.com/tcplb/tcplb/internal/endpointpool"
	"github.com/tcplb/tcplb/internal/logger"
	"github.com/tcplb/tcplb/internal/metrics"
	"github.com/tcplb/tcplb/internal/resolver"
	"github.com/tcplb/tcplb/internal/server"
	"github.com/tcplb/tcplb/internal/stream"
)

func main() {
	configPath := flag.String("config", "tcplb.yaml", "path to the configuration document")
	flag.Parse()

	lcfg := logger.Config{
		Level:      envOr("TCPLB_LOG_LEVEL", "info"),
		FileOutput: envBool("TCPLB_FILE_OUTPUT", false),
		LogDir:     envOr("TCPLB_LOG_DIR", "./logs"),
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		PrettyLogs: true,
	}
	rootLog, cleanup, err := logger.New(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(rootLog)
	styled := logger.NewStyledLogger(rootLog)

	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		styled.Warn("falling back to default config", "error", err, "path", *configPath)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		styled.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	reg := metrics.NewRegistry()
	bufPool := stream.NewBufferPool(cfg.BufferSizeKB * 1024)

	routers := make([]*balancer.Router, 0, len(cfg.Routers))
	listeners := make([]*server.Listener, 0)

	for _, rc := range cfg.Routers {
		router, err := buildRouter(ctx, rc, reg, styled)
		if err != nil {
			logger.FatalWithLogger(styled, "failed to build router", "router", rc.Label, "error", err)
		}
		routers = append(routers, router)

		for _, sc := range rc.Servers {
			lc := server.Config{
				Addr:        sc.Addr,
				DstName:     domain.Path(sc.DstName),
				DstFromSNI:  sc.DstFromSNI,
				IdleTimeout: sc.IdleTimeout,
				ConnTimeout: sc.ConnTimeout,
			}
			if sc.TLS != nil {
				lc.TLS, err = buildServerTLS(sc.TLS)
				if err != nil {
					logger.FatalWithLogger(styled, "failed to build server TLS", "server", sc.Addr, "error", err)
				}
			}
			listeners = append(listeners, server.NewListener(lc, router, bufPool, styled.With("router", rc.Label)))
		}
	}

	app := server.NewApp(listeners, nil, styled)
	adminSrv := admin.New(admin.Config{
		Addr:           cfg.Admin.Addr,
		Registry:       reg,
		Pools:          multiRouterPools(routers),
		App:            app,
		Logger:         styled,
		ShutdownGrace:  cfg.Admin.ShutdownGrace,
		RequestsPerSec: cfg.Admin.RequestsPerSec,
		Burst:          cfg.Admin.Burst,
	})
	app.SetAdmin(adminSrv)

	styled.Info("tcplb starting", "pid", os.Getpid(), "routers", len(routers), "listeners", len(listeners))

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		styled.Error("fatal error, exiting", "error", err)
		os.Exit(1)
	}

	styled.Info("tcplb stopped")
}

// buildRouter wires one routers[] entry into a balancer.Router: its
// connector factory (client tagged union), its resolver (interpreter
// tagged union), and dispatcher/pool defaults.
func buildRouter(ctx context.Context, rc config.RouterConfig, reg *metrics.Registry, log logger.StyledLogger) (*balancer.Router, error) {
	connFactory, err := buildConnectorFactory(rc.Client)
	if err != nil {
		return nil, err
	}

	res, err := buildResolver(rc.Interpreter, log)
	if err != nil {
		return nil, err
	}

	return balancer.NewRouter(ctx, balancer.Config{
		ConnectorFactory: connFactory,
		PoolConfig: endpointpool.Config{
			FailLimit:   rc.Pool.FailLimit,
			FailPenalty: rc.Pool.FailPenalty,
		},
		DispatchConfig: dispatch.Config{
			MaxWaiters:     rc.Dispatch.MaxWaiters,
			MinConnections: rc.Dispatch.MinConnections,
			PollInterval:   rc.Dispatch.PollInterval,
		},
		Resolver: res,
		Metrics:  reg,
	}), nil
}

func buildConnectorFactory(cc config.ClientConfig) (*connector.Factory, error) {
	fc := connector.FactoryConfig{Kind: cc.Kind}

	if cc.Global.ConnectTimeout > 0 || cc.Global.IdleTimeout > 0 || cc.Global.TLS != nil {
		tlsCfg, err := buildClientTLS(cc.Global.TLS)
		if err != nil {
			return nil, err
		}
		fc.Global = connector.Config{
			TLS:            tlsCfg,
			ConnectTimeout: cc.Global.ConnectTimeout,
			IdleTimeout:    cc.Global.IdleTimeout,
			KeepAlive:      cc.Global.KeepAlive,
		}
	}

	for _, pc := range cc.Prefixes {
		tlsCfg, err := buildClientTLS(pc.TLS)
		if err != nil {
			return nil, err
		}
		fc.Configs = append(fc.Configs, connector.PrefixConfig{
			Prefix:           domain.Path(pc.Prefix),
			TLS:              tlsCfg,
			ConnectTimeoutMs: pc.ConnectTimeoutMs,
			IdleTimeoutMs:    pc.IdleTimeoutMs,
		})
	}

	return connector.NewFactory(fc)
}

func buildResolver(ic config.InterpreterConfig, log logger.StyledLogger) (*resolver.Resolver, error) {
	switch ic.Kind {
	case "", "io.l5d.fs":
		sets := make(map[string][]resolver.Address, len(ic.Static))
		for dst, addrs := range ic.Static {
			converted := make([]resolver.Address, len(addrs))
			for i, a := range addrs {
				converted[i] = resolver.Address{Addr: a.Addr, Weight: a.Weight}
			}
			sets[dst] = converted
		}
		client := resolver.NewStaticClient(sets)
		return resolver.New(client, ic.PollInterval, log), nil
	case "io.l5d.stream":
		client := resolver.NewHTTPClient(ic.BaseURL, 0)
		return resolver.New(client, ic.PollInterval, log), nil
	default:
		return nil, fmt.Errorf("unknown interpreter kind %q", ic.Kind)
	}
}

func buildClientTLS(tc *config.TLSConfig) (*tls.Config, error) {
	if tc == nil {
		return nil, nil
	}
	pool, err := loadCAPool(tc.CAFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{RootCAs: pool}, nil
}

func buildServerTLS(tc *config.TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(tc.CertFile, tc.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading server cert/key: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA file %s: %w", caFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates parsed from %s", caFile)
	}
	return pool, nil
}

type multiRouterPools []*balancer.Router

func (m multiRouterPools) PoolStats() map[string]endpointpool.Stats {
	out := make(map[string]endpointpool.Stats)
	for _, r := range m {
		for dst, s := range r.PoolStats() {
			out[dst] = s
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "1" || v == "true"
}
