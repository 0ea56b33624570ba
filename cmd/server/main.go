package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"custodia/internal/certificate"
	"custodia/internal/disposal"
	"custodia/internal/ledger"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/kafka"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	platformredis "custodia/internal/platform/redis"
	"custodia/internal/posture"
	"custodia/internal/records"
	"custodia/internal/retention"
	httptransport "custodia/internal/transport/http"
	"custodia/pkg/platform/audit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metric := metrics.New()
	health := map[string]httptransport.HealthCheck{}

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		recordStore records.Store     = records.NewInMemoryStore()
		certStore   certificate.Store = certificate.NewInMemoryStore()
	)

	hasher, err := ledger.NewFingerprinter(cfg.Ledger.FingerprintSalt)
	if err != nil {
		return err
	}
	var ledgerStore ledger.Store = ledger.NewInMemoryStore(hasher)

	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		if err := db.PingContext(ctx); err != nil {
			return err
		}

		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		recordStore = records.NewPostgresStore(db)
		certStore = certificate.NewPostgresStore(db)
		ledgerStore = ledger.NewPostgresStore(pool, hasher, log)
		health["postgres"] = db.PingContext
		log.Info("postgres stores enabled")
	} else {
		log.Warn("no database configured, using in-memory stores")
	}

	// Audit: Kafka when brokers are configured, otherwise events stay in
	// process and only reach the logs.
	var publisher audit.Publisher = audit.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = audit.NewKafkaPublisher(producer, audit.DefaultTopics(), log)
		health["kafka"] = producer.Ping
		log.Info("kafka audit publisher enabled", "brokers", cfg.Kafka.Brokers)
	} else {
		log.Warn("no kafka brokers configured, audit events are not published")
	}

	// Posture cache: Redis when configured, in-memory otherwise.
	var postureCache posture.Cache = posture.NewMemoryCache(cfg.Redis.PostureTTL)
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		postureCache = posture.NewRedisCache(redisClient, cfg.Redis.PostureTTL)
		health["redis"] = redisClient.Health
		log.Info("redis posture cache enabled")
	}

	retentionSvc, err := retention.New(recordStore, cfg.Retention,
		retention.WithLogger(log),
		retention.WithAuditPublisher(publisher),
		retention.WithMetrics(metric),
	)
	if err != nil {
		return err
	}

	ledgerSvc, err := ledger.New(ledgerStore, hasher,
		ledger.WithLogger(log),
		ledger.WithAuditPublisher(publisher),
		ledger.WithMetrics(metric),
	)
	if err != nil {
		return err
	}

	disposalOpts := []disposal.Option{
		disposal.WithLogger(log),
		disposal.WithAuditPublisher(publisher),
		disposal.WithMetrics(metric),
	}
	if cfg.Ledger.AnchorURL != "" {
		anchorer, err := disposal.NewHTTPAnchorer(cfg.Ledger.AnchorURL, cfg.Ledger.AnchorTimeout)
		if err != nil {
			return err
		}
		disposalOpts = append(disposalOpts, disposal.WithAnchorer(anchorer))
		log.Info("certificate anchoring enabled", "url", cfg.Ledger.AnchorURL)
	}
	disposalSvc, err := disposal.New(recordStore, retentionSvc, ledgerSvc, certStore,
		disposal.NewStoreDestroyer(recordStore), cfg.Retention, disposalOpts...)
	if err != nil {
		return err
	}

	postureSvc, err := posture.New(recordStore, certStore, postureCache,
		posture.WithLogger(log),
		posture.WithMetrics(metric),
	)
	if err != nil {
		return err
	}

	if cfg.Sweep.Enabled {
		sweeper, err := disposal.NewSweeper(disposalSvc, retentionSvc, ledgerSvc, recordStore, cfg.Sweep,
			disposal.SweeperWithLogger(log),
			disposal.SweeperWithAuditPublisher(publisher),
			disposal.SweeperWithMetrics(metric),
		)
		if err != nil {
			return err
		}
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop()
		log.Info("retention sweep scheduled", "schedule", cfg.Sweep.Schedule)
	}

	handler := httptransport.NewHandler(
		log,
		middleware.NewHMACValidator(cfg.Server.JWTSigningKey),
		retentionSvc, disposalSvc, postureSvc, ledgerSvc,
		health,
	)
	srv := httpserver.New(cfg.Server.Addr, handler.Router())

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting custodia", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
