// Command server runs the capture service: webhook intake, classification
// pipeline, note-store writes, audit trail, and operator endpoints.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"inkdrop/internal/admin"
	"inkdrop/internal/audit"
	"inkdrop/internal/classify"
	"inkdrop/internal/dedupe"
	inkhttp "inkdrop/internal/http"
	"inkdrop/internal/intake"
	"inkdrop/internal/notestore"
	"inkdrop/internal/pipeline"
	"inkdrop/internal/platform/config"
	"inkdrop/internal/platform/httpserver"
	"inkdrop/internal/platform/kafka"
	"inkdrop/internal/platform/logger"
	platformredis "inkdrop/internal/platform/redis"
	"inkdrop/internal/registry"
	"inkdrop/internal/reply"
	"inkdrop/internal/writer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks []inkhttp.HealthChecker

	// Stores: Postgres when configured, then Redis, then in-memory for
	// development. The dedupe guarantee is only as durable as the backend.
	var (
		db          *sql.DB
		dedupeStore dedupe.Store
		auditStore  audit.Store
	)
	switch {
	case cfg.Postgres.DSN != "":
		var err error
		db, err = sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		dedupeStore = dedupe.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		checks = append(checks, inkhttp.NewCheck("postgres", db.PingContext))
		log.Info("using postgres stores")
	default:
		dedupeStore = dedupe.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		log.Warn("no postgres DSN configured, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks = append(checks, inkhttp.NewCheck("redis", redisClient.Health))
		if db == nil {
			dedupeStore = dedupe.NewRedisStore(redisClient.Client)
			log.Info("using redis dedupe store")
		}
	}

	// Audit trail: durable store always, Kafka stream when brokers are set.
	auditOpts := []audit.PublisherOption{}
	var auditWorker *audit.Worker
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer producer.Close()
		auditWorker = audit.NewWorker(audit.NewKafkaSink(producer), log)
		auditOpts = append(auditOpts, audit.WithWorker(auditWorker))
		log.Info("audit stream enabled", "topic", cfg.Kafka.AuditTopic)
	}
	auditor := audit.NewPublisher(auditStore, log, auditOpts...)

	resolver, err := registry.NewResolver(ctx, registry.FileSource{Path: cfg.Registry.Path}, log)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	log.Info("registry loaded", "version", resolver.Version())

	notes := notestore.NewClient(cfg.NoteStore)
	contentWriter := writer.New(notes, log, writer.WithMaxAttempts(cfg.NoteStore.MaxAttempts))
	classifier := classify.NewClient(cfg.Classifier)
	replier := reply.NewNotifier(cfg.Reply)

	orchestrator := pipeline.New(classifier, resolver, dedupeStore, contentWriter, auditor, replier, log,
		pipeline.WithConfidenceThreshold(cfg.Classifier.ConfidenceMin),
		pipeline.WithTracer(otel.Tracer("inkdrop/pipeline")),
	)

	dispatcher := intake.NewDispatcher(orchestrator, log, cfg.Intake.MaxInFlight)
	intakeHandler := intake.NewHandler(cfg.Intake, dispatcher, log)
	adminHandler := admin.NewHandler(resolver, admin.NewTokenVerifier(cfg.Admin.JWTSigningKey), log)

	router := inkhttp.NewRouter(checks, intakeHandler, adminHandler)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if auditWorker != nil {
		g.Go(func() error {
			auditWorker.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}

		// In-flight pipeline runs finish before the process exits so no
		// acknowledged capture is dropped.
		dispatcher.Drain()
		if auditWorker != nil {
			auditWorker.Wait()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
