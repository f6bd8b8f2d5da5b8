package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"StatArb/internal/di"
	"StatArb/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s feed=%s backend=%s symbols=%v exchanges=%v",
		cfg.Environment, cfg.Feed.Mode, cfg.Backend.Type, cfg.Feed.Symbols, cfg.Feed.Exchanges)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Blocks until SIGINT/SIGTERM or a fatal ledger error.
	if err := app.Run(context.Background()); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
