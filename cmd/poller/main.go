// Command poller runs the mailbox ingestion loop without the read API, for
// deployments that split polling from serving.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/probekit/mailtrace/internal/config"
	"github.com/probekit/mailtrace/internal/imapx"
	"github.com/probekit/mailtrace/internal/ingest"
	"github.com/probekit/mailtrace/internal/logger"
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

	if cfg.IMAP.Host == "" {
		appLogger.Error("IMAP_HOST is required for the poller")
		os.Exit(1)
	}

	db, err := setupDatabase(cfg)
	if err != nil {
		appLogger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	emailRepo := repository.NewEmailRepo(db)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poller.Run(ctx)
	appLogger.Info("Poller exited")
}

// setupDatabase opens and verifies the database connection
func setupDatabase(cfg *config.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
