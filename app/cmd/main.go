package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"knowledge/app/server"
	"knowledge/config"
	"knowledge/logger"

	"github.com/joho/godotenv"
)

func init() {
	loadEnvVariables()
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.NewServer(cfg).Run(ctx); err != nil {
		log.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}
}
