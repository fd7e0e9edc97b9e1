package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/jmswint/marginalia/internal/adapter/driven/github"
	sqliteadapter "github.com/jmswint/marginalia/internal/adapter/driven/sqlite"
	"github.com/jmswint/marginalia/internal/application"
	"github.com/jmswint/marginalia/internal/config"
	"github.com/jmswint/marginalia/internal/domain/model"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"db_path", cfg.DBPath,
		"sync_interval", cfg.SyncInterval,
		"watches", len(cfg.Watches),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	commentStore := sqliteadapter.NewCommentRepo(db)
	ghClient := githubadapter.NewClient(cfg.GitHubToken)

	// 6. Build the watch list.
	watches := make([]application.Watch, 0, len(cfg.Watches))
	for _, w := range cfg.Watches {
		watches = append(watches, application.Watch{
			Scope: model.FileScope{
				RepoKey:  w.RepoKey,
				FilePath: w.FilePath,
				Branch:   w.Branch,
			},
			PR: model.PullRequestRef{Number: w.PRNumber},
		})
	}

	// 7. Create and start the sync service. Push failures surface as
	// warnings; the local comment is never rolled back.
	syncSvc := application.NewSyncService(
		commentStore,
		ghClient,
		ghClient,
		watches,
		cfg.SyncInterval,
		func(commentID, message string) {
			slog.Warn(message, "comment", commentID)
		},
	)

	slog.Info("marginalia started", "sync_interval", cfg.SyncInterval)

	// 8. Block in the sync loop until the shutdown signal; in-flight passes
	// complete and apply their idempotent writes.
	syncSvc.Start(ctx)

	slog.Info("shutdown complete")
	return nil
}
