package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pires/go-proxyproto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"golang.org/x/time/rate"

	"relaymux-go/internal/bridge"
	"relaymux-go/internal/client"
	"relaymux-go/internal/config"
	"relaymux-go/internal/handler"
	"relaymux-go/internal/metrics"
	"relaymux-go/internal/middleware"
	"relaymux-go/internal/relay"
	"relaymux-go/internal/route"
	"relaymux-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("relaymux"),
		kong.Description("Host-routing raw relay and HTTP reverse proxy."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newRouteTable,
			newEcho,
			client.NewUpstreamClient,
			newProxyService,
			newRelayEngine,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer, startRelay, startWatcher),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newRouteTable(cfg *config.Config) (*route.Table, error) {
	routes, err := route.FromConfig(cfg.Routes)
	if err != nil {
		return nil, err
	}
	return route.NewTable(routes), nil
}

// newProxyService wires the HTTP forwarding engine: hosts resolve against the
// route table and upstream failures come back as JSON errors.
func newProxyService(c *client.UpstreamClient, table *route.Table, logger *slog.Logger) *service.ProxyService {
	return service.NewProxyService(c, route.HTTPResolver(table), handler.JSONErrorHandler, logger)
}

// newRelayEngine wires the raw relay: relay-mode hosts are spliced to their
// upstream, everything else is bridged through the same proxy service the
// HTTP plane uses.
func newRelayEngine(cfg *config.Config, table *route.Table, svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *relay.Engine {
	fallback := bridge.New(svc.Handle, logger)
	resolver := route.RawResolver(table, fallback)
	dialer := &net.Dialer{Timeout: time.Duration(cfg.Relay.DialTimeoutSeconds) * time.Second}
	return relay.NewEngine(resolver, dialer, logger, m)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Header reads are bounded; body reads are not, so large uploads and
	// long streamed responses pass through uncut. IdleTimeout reaps
	// keep-alive connections between requests.
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.ReadTimeout = 0
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.MetricsMiddleware(m))
	e.Use(middleware.HopByHop())

	if cfg.Server.BodyMaxBytes > 0 {
		e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	}

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimit(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting http server", "addr", addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("http server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down http server")
			return e.Shutdown(ctx)
		},
	})
}

func startRelay(lc fx.Lifecycle, engine *relay.Engine, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Relay.Enabled {
		return
	}

	logger = logger.With("component", "relay_listener")

	var (
		ln     net.Listener
		cancel context.CancelFunc
	)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Relay.Addr()
			inner, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			ln = inner
			if cfg.Relay.ProxyProtocol {
				ln = &proxyproto.Listener{
					Listener:          inner,
					ReadHeaderTimeout: 10 * time.Second,
				}
			}

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			var limiter *rate.Limiter
			if cfg.Relay.MaxConnsPerSecond > 0 {
				burst := int(cfg.Relay.MaxConnsPerSecond)
				if burst < 1 {
					burst = 1
				}
				limiter = rate.NewLimiter(rate.Limit(cfg.Relay.MaxConnsPerSecond), burst)
				logger.Info("relay accept limiter enabled", "conns_per_second", cfg.Relay.MaxConnsPerSecond)
			}

			logger.Info("starting relay listener", "addr", addr, "proxy_protocol", cfg.Relay.ProxyProtocol)
			go acceptLoop(ctx, ln, engine, limiter, logger)
			return nil
		},
		OnStop: func(_ context.Context) error {
			logger.Info("shutting down relay listener")
			cancel()
			return ln.Close()
		},
	})
}

// acceptLoop serves relay connections until the listener closes. Each
// connection runs in its own goroutine; the loop never blocks on one.
func acceptLoop(ctx context.Context, ln net.Listener, engine *relay.Engine, limiter *rate.Limiter, logger *slog.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("accept failed", "err", err)
			// Transient accept errors (EMFILE and friends) must not spin.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if limiter != nil && !limiter.Allow() {
			logger.Debug("connection rejected by accept limiter", "remote_addr", conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}

		go func() {
			defer conn.Close()
			if err := engine.Serve(ctx, conn); err != nil {
				logger.Debug("relay connection ended with error", "err", err)
			}
		}()
	}
}

func startWatcher(lc fx.Lifecycle, cfg *config.Config, table *route.Table, logger *slog.Logger, m *metrics.Metrics) {
	if !cfg.Reload.Enabled {
		return
	}

	reload := func() ([]route.Route, error) {
		entries, err := config.LoadRoutes(cfg.FilePath())
		if err != nil {
			return nil, err
		}
		return route.FromConfig(entries)
	}

	w := route.NewWatcher(cfg.FilePath(), table, reload, time.Duration(cfg.Reload.DebounceMS)*time.Millisecond, logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				if err := w.Watch(ctx); err != nil {
					logger.Error("route watcher stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
