package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"docqa/internal/activities"
	"docqa/internal/config"
	"docqa/internal/storage"
	"docqa/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Error("dial temporal", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		cancel()
		log.Error("connect postgres", "err", err)
		os.Exit(1)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		cancel()
		log.Error("ensure schema", "err", err)
		os.Exit(1)
	}
	cancel()
	defer db.Close()

	a, err := activities.New(cfg, db)
	if err != nil {
		log.Error("build activities", "err", err)
		os.Exit(1)
	}
	activities.Register(w, a)

	log.Info("worker started", "temporal", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue, "embed_providers", cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}
