// The producer daemon runs one producing service's side of the audit
// pipeline: local store, relay publisher, fan-out gateway and the audit
// query API.
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

	audithandler "auditflow/internal/audit/handler"
	"auditflow/internal/audit/recorder"
	auditstore "auditflow/internal/audit/store/postgres"
	"auditflow/internal/fanout"
	"auditflow/internal/jwt"
	"auditflow/internal/platform/config"
	"auditflow/internal/platform/httpserver"
	"auditflow/internal/platform/logger"
	"auditflow/internal/platform/postgres"
	"auditflow/internal/platform/relay"
)

const statsInterval = 30 * time.Second

func main() {
	cfg := config.ProducerFromEnv()
	log := logger.New(cfg.Service)

	if err := run(cfg, log); err != nil {
		log.Error("producer exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Producer, log *slog.Logger) error {
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

	store := auditstore.New(db)

	producer := relay.NewProducer(cfg.RelayTopic, cfg.RelayKey, log)
	if err := producer.Connect(ctx, cfg.Brokers); err != nil {
		// The service keeps recording locally; every publish is counted
		// lost until the broker is reachable again.
		log.Error("relay connect failed, publishing disabled", "error", err)
	}
	defer producer.Close(context.Background())

	gateway := fanout.NewGateway(cfg.Service, log)
	rec := recorder.New(store, producer, gateway, log)

	jwtService := jwt.New(cfg.JWTSigningKey, cfg.App)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws", gateway.ServeWS)
	audithandler.NewProducer(store, rec, cfg.App, cfg.Service, log, jwtService).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gateway.Run(ctx, statsInterval)
		return nil
	})
	g.Go(func() error {
		log.Info("producer listening", "addr", cfg.Addr, "service", cfg.Service)
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
