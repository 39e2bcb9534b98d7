package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/probekit/mailtrace/internal/api"
	"github.com/probekit/mailtrace/internal/config"
	"github.com/probekit/mailtrace/internal/health"
	"github.com/probekit/mailtrace/internal/imapx"
	"github.com/probekit/mailtrace/internal/ingest"
	"github.com/probekit/mailtrace/internal/logger"
	"github.com/probekit/mailtrace/internal/metrics"
	appmw "github.com/probekit/mailtrace/internal/middleware"
	"github.com/probekit/mailtrace/internal/repository"
)

func main() {
	cfg := config.Load()

	appLogger := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	slog.SetDefault(appLogger)

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	statsCollector := metrics.NewDBStatsCollector(db.DB)
	statsCollector.Start(30 * time.Second)
	defer statsCollector.Stop()

	emailRepo := repository.NewEmailRepo(db)
	emailHandler := api.NewEmailHandler(emailRepo, appLogger)

	// Poller lifecycle is tied to this context; cancelling it releases the
	// IMAP session.
	pollCtx, stopPoller := context.WithCancel(context.Background())
	defer stopPoller()
	pollerDone := make(chan struct{})
	var pollerProbe func() error

	if cfg.IMAP.Host == "" {
		appLogger.Warn("IMAP not configured; skipping mailbox polling. Define IMAP_* env vars to enable.")
		close(pollerDone)
	} else {
		pipeline := ingest.NewPipeline(emailRepo, appLogger)
		poller := ingest.NewPoller(imapx.Options{
			Host:               cfg.IMAP.Host,
			Port:               cfg.IMAP.Port,
			Username:           cfg.IMAP.User,
			Password:           cfg.IMAP.Password,
			UseTLS:             cfg.IMAP.UseTLS,
			InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
			Mailbox:            cfg.IMAP.Mailbox,
		}, cfg.Poll.Interval, cfg.Poll.SubjectMarker, pipeline, appLogger)
		pollerProbe = poller.Healthy

		go func() {
			defer close(pollerDone)
			poller.Run(pollCtx)
		}()
	}

	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(appmw.StructuredLogger(appLogger))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	healthHandler := health.NewHandler(health.Config{DB: db, Poller: pollerProbe})
	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		api.RegisterEmailRoutes(r, emailHandler)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthHandler.SetReady(false)
	stopPoller()
	<-pollerDone

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("Server exited")
}

// setupDatabase opens and verifies the database connection
func setupDatabase(cfg *config.Config, log *slog.Logger) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Connected to database",
		slog.String("name", cfg.Database.DBName),
		slog.String("host", cfg.Database.Host),
		slog.String("port", cfg.Database.Port),
	)
	return db, nil
}
