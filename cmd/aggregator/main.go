// The aggregator daemon drains the relay into the canonical audit store and
// serves the canonical audit-log and notification APIs plus the aggregator
// fan-out gateway.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"auditflow/internal/audit/consumer"
	audithandler "auditflow/internal/audit/handler"
	auditstore "auditflow/internal/audit/store/postgres"
	"auditflow/internal/fanout"
	"auditflow/internal/jwt"
	"auditflow/internal/notification"
	notifhandler "auditflow/internal/notification/handler"
	"auditflow/internal/notification/projector"
	notifstore "auditflow/internal/notification/store/postgres"
	"auditflow/internal/notification/unread"
	"auditflow/internal/platform/config"
	"auditflow/internal/platform/httpserver"
	"auditflow/internal/platform/logger"
	"auditflow/internal/platform/postgres"
	"auditflow/internal/platform/redis"
	"auditflow/internal/platform/relay"
)

const (
	serviceName   = "aggregation-service"
	statsInterval = 30 * time.Second
)

func main() {
	cfg := config.AggregatorFromEnv()
	log := logger.New(serviceName)

	if err := run(cfg, log); err != nil {
		log.Error("aggregator exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Aggregator, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(db, postgres.MigrationsAudit); err != nil {
		return err
	}
	if err := postgres.Migrate(db, postgres.MigrationsNotifications); err != nil {
		return err
	}

	pool, err := postgres.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		// The SQL store is authoritative; the aggregator works without
		// the counter cache.
		log.Warn("redis unavailable, unread counts served from postgres", "error", err)
	}

	canonical := auditstore.New(db)
	gateway := fanout.NewGateway(serviceName, log)

	notifService := notification.NewService(
		notifstore.New(pool),
		gateway,
		unread.New(redisClient, log),
		log,
	)
	proj := projector.New(notifService, log)
	central := consumer.New(canonical, gateway, proj, log)

	relayConsumer := relay.NewConsumer(cfg.RelayTopic, cfg.RelayGroup, log)
	if err := relayConsumer.Connect(ctx, cfg.Brokers); err != nil {
		return err
	}
	defer relayConsumer.Close()

	jwtService := jwt.New(cfg.JWTSigningKey, serviceName)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws", gateway.ServeWS)
	audithandler.NewAggregator(canonical, log, jwtService).Register(router)
	notifhandler.New(notifService, log, jwtService).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gateway.Run(ctx, statsInterval)
		return nil
	})
	g.Go(func() error {
		if err := relayConsumer.Run(ctx, central); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("aggregator listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		gateway.Shutdown()
		return err
	})

	return g.Wait()
}
