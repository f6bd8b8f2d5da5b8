// Command replay feeds a recorded quote log through the engine offline and
// prints the resulting ledger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StatArb/internal/di"
	"StatArb/internal/domain/models"
	"StatArb/internal/repository"
	"StatArb/internal/services/ledger"
	"StatArb/internal/usecase"
	"StatArb/pkg/config"
	"StatArb/pkg/logger"
	"StatArb/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	input := flag.String("input", "", "quote log (JSON lines) to replay")
	flag.Parse()

	if *input == "" {
		log.Fatal("-input is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stderr"})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status, board, err := replay(ctx, cfg, *input, l)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"status": status, "leaderboard": board})
}

func replay(ctx context.Context, cfg *config.Config, path string, l *logger.Logger) (models.SimulationStatus, []models.LeaderboardEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.SimulationStatus{}, nil, err
	}
	defer f.Close()

	led := ledger.New(cfg.Ledger.RecentCapacity, cfg.Feed.Symbols)
	rec := usecase.NewTradeRecorder(usecase.RecorderConfig{Backend: usecase.BackendNone}, led, nil, nil, nil, metrics.Nop{}, l)

	ecfg := di.EngineConfig(cfg)
	// Offline input has no producer to shed; wait for the symbol worker instead.
	ecfg.DispatchTimeout = time.Minute
	eng, err := usecase.NewEngine(ecfg, led, rec, metrics.Nop{}, l)
	if err != nil {
		return models.SimulationStatus{}, nil, err
	}

	recErr := make(chan error, 1)
	go func() { recErr <- rec.Run(context.Background()) }()
	eng.Start(context.Background())

	n, readErr := repository.ReadQuotes(ctx, f, func(q *models.Quote) error {
		return eng.Dispatch(ctx, q)
	})
	eng.Stop()
	rec.Close()
	if err := <-recErr; err != nil {
		return models.SimulationStatus{}, nil, fmt.Errorf("ledger: %w", err)
	}
	if readErr != nil {
		return models.SimulationStatus{}, nil, fmt.Errorf("after %d quotes: %w", n, readErr)
	}
	l.Info("replay finished", logger.Int("quotes", n))

	return led.Status(), led.Leaderboard(), nil
}
