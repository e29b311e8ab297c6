package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"changefeed-gateway/internal/config"
	"changefeed-gateway/internal/logger"
	"changefeed-gateway/internal/server"
	"changefeed-gateway/pkg/auth"
	"changefeed-gateway/pkg/diff"
	"changefeed-gateway/pkg/feed"
	"changefeed-gateway/pkg/metrics"
	"changefeed-gateway/pkg/ratelimit"
	"changefeed-gateway/pkg/websocket"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("gateway stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics("gateway")

	var (
		store   ratelimit.Store
		janitor *ratelimit.MemoryStore
	)
	if cfg.RateLimit.Backend == "redis" {
		client, err := ratelimit.ConnectRedis(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			return fmt.Errorf("rate limit store: %w", err)
		}
		defer client.Close()
		store = ratelimit.NewRedisStore(client)
	} else {
		janitor = ratelimit.NewMemoryStore()
		store = janitor
	}
	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window, log)
	authenticator := auth.NewAuthenticator([]byte(cfg.Auth.Secret), cfg.Auth.FreshnessWindow)

	registry := websocket.NewRegistry(log, m)
	gatekeeper := websocket.NewHandler(registry, limiter, authenticator, websocket.Config{
		SendBuffer:   cfg.Websocket.SendBuffer,
		WriteTimeout: cfg.Websocket.WriteTimeout,
		PingInterval: cfg.Websocket.PingInterval,
		ReadLimit:    cfg.Websocket.ReadLimit,
		InboundRate:  cfg.Websocket.InboundRate,
		InboundBurst: cfg.Websocket.InboundBurst,
	}, log, m)

	source, err := feed.NewSource(cfg.Feed, log)
	if err != nil {
		return fmt.Errorf("invalid feed configuration: %w", err)
	}
	adapter := feed.NewAdapter(source, registry, log, m)
	if err := adapter.Start(ctx); err != nil {
		return err
	}
	log.WithField("feed", feed.Redact(cfg.Feed.URL)).Info("change feed ready")

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Router{
			Gatekeeper: gatekeeper,
			Diff:       diff.NewHandler(cfg.Diff.MaxBodyBytes, log, m),
			Registry:   registry,
			Validator:  authenticator,
			Metrics:    m,
			Logger:     log,
		}.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return adapter.Run(gctx)
	})

	if janitor != nil {
		g.Go(func() error {
			return janitor.Run(gctx, cfg.RateLimit.Window)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		// hijacked websocket connections are not tracked by Shutdown
		registry.CloseAll()
		return err
	})

	return g.Wait()
}
