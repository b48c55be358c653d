package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"docqa/internal/api"
	"docqa/internal/config"
	"docqa/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

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
	db.Close()

	h := api.NewServer(cfg, log)
	log.Info("api listening", "addr", cfg.APIAddr, "embed_providers", cfg.EmbedProviders, "llm_providers", cfg.LLMProviders)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Error("serve", "err", err)
		os.Exit(1)
	}
}
