package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "StatArb/internal/middleware"
	"StatArb/internal/usecase"
	xhttp "StatArb/pkg/http"
	pkgkafka "StatArb/pkg/kafka"
	"StatArb/pkg/logger"
	"StatArb/pkg/queue"
)

// Closer releases an infrastructure client after everything using it stopped.
type Closer struct {
	Name  string
	Close func() error
}

// Components is everything the App starts and stops. Only Engine and
// Recorder are required.
type Components struct {
	Engine     *usecase.Engine
	Recorder   *usecase.TradeRecorder
	Pipeline   *mid.QuotePipeline
	Collectors []*usecase.QuoteCollector
	Consumer   *pkgkafka.Consumer
	Queue      *queue.RedisQueue
	Mirror     *usecase.MarketMirror
	HTTP       *xhttp.Server
	Closers    []Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	c               Components
	logger          *logger.Logger
	shutdownTimeout time.Duration

	recErr  chan error
	stopBg  context.CancelFunc
	mirrorD chan struct{}
}

func New(c Components, l *logger.Logger, shutdownTimeout time.Duration) *App {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &App{c: c, logger: l, shutdownTimeout: shutdownTimeout}
}

// Run starts every component and blocks until ctx ends, SIGINT/SIGTERM
// arrives or a component fails. A recorder failure is returned after the
// shutdown completed.
func (a *App) Run(ctx context.Context) error {
	if a.c.Engine == nil || a.c.Recorder == nil {
		return errors.New("app needs an engine and a trade recorder")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.logger.Error("startup failed", logger.Error(err))
		if serr := a.shutdown(); serr != nil {
			return errors.Join(err, serr)
		}
		return err
	}
	a.logger.Info("statarb running")

	var httpErr <-chan error
	if a.c.HTTP != nil {
		httpErr = a.c.HTTP.Err()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-a.recErr:
		// the recorder is gone; put the error back for shutdown to report
		a.recErr <- err
		a.logger.Error("trade recorder stopped", logger.Error(err))
	case err := <-httpErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	if err := a.shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// start brings components up in dependency order: writers before the
// producers that feed them.
func (a *App) start(ctx context.Context) error {
	// The recorder and the engine outlive ctx; shutdown stops them in order.
	bg, cancel := context.WithCancel(context.Background())
	a.stopBg = cancel

	a.recErr = make(chan error, 1)
	go func() { a.recErr <- a.c.Recorder.Run(bg) }()
	a.c.Engine.Start(bg)

	if a.c.Pipeline != nil {
		a.c.Pipeline.Start(bg)
	}
	if a.c.Queue != nil {
		if err := a.c.Queue.Start(bg); err != nil {
			return fmt.Errorf("start job queue: %w", err)
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}
	for _, col := range a.c.Collectors {
		if err := col.Start(ctx); err != nil {
			return fmt.Errorf("start collector: %w", err)
		}
	}
	if a.c.Mirror != nil {
		a.mirrorD = make(chan struct{})
		go func() {
			defer close(a.mirrorD)
			a.c.Mirror.Run(bg)
		}()
	}
	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
	}
	return nil
}

// shutdown stops the readers first, then the feeds, then the engine, and
// only then the recorder so every trade a task closed is recorded.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down")

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			a.logger.Warn("http shutdown", logger.Error(err))
		}
	}
	for _, col := range a.c.Collectors {
		if err := col.Shutdown(ctx); err != nil {
			a.logger.Warn("collector shutdown", logger.Exchange(col.Exchange()), logger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop", logger.Error(err))
		}
	}
	if a.c.Pipeline != nil {
		a.c.Pipeline.Stop()
	}

	var recErr error
	if a.recErr != nil {
		a.c.Engine.Stop()
		a.c.Recorder.Close()
		select {
		case recErr = <-a.recErr:
		case <-ctx.Done():
			recErr = fmt.Errorf("trade recorder did not drain: %w", ctx.Err())
		}
	}

	if a.stopBg != nil {
		a.stopBg()
	}
	if a.mirrorD != nil {
		<-a.mirrorD
	}
	if a.c.Queue != nil {
		if err := a.c.Queue.Stop(ctx); err != nil {
			a.logger.Warn("job queue stop", logger.Error(err))
		}
	}
	for i := len(a.c.Closers) - 1; i >= 0; i-- {
		cl := a.c.Closers[i]
		if err := cl.Close(); err != nil {
			a.logger.Warn("close", logger.String("resource", cl.Name), logger.Error(err))
		}
	}

	st := a.c.Engine.Ledger().Status()
	a.logger.Info("shutdown complete",
		logger.Int("trades", st.TotalTrades),
		logger.Float64("total_pnl", st.TotalPnL))
	return recErr
}
