// Package exchange holds the market data adapters. Each adapter owns one
// connection and emits normalized top-of-book quotes.
package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"StatArb/internal/domain/models"
	"StatArb/pkg/logger"
)

const (
	readLimit     = 1 << 20
	writeDeadline = 5 * time.Second
	quoteBuffer   = 1024
)

// parseFunc turns one frame into zero or more quotes. recv is the local
// receive time, used when the venue does not stamp its messages.
type parseFunc func(frame []byte, recv time.Time) ([]*models.Quote, error)

// wsConn is the connection plumbing shared by the websocket adapters.
type wsConn struct {
	exchange     string
	url          string
	pingInterval time.Duration
	log          *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	now       func() time.Time
}

func newWSConn(exchange, url string, pingInterval time.Duration, log *logger.Logger) *wsConn {
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	return &wsConn{
		exchange:     exchange,
		url:          url,
		pingInterval: pingInterval,
		log:          log.With(logger.Exchange(exchange)),
		now:          time.Now,
	}
}

func (c *wsConn) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%s connect: %w", c.exchange, err)
	}
	conn.SetReadLimit(readLimit)
	deadline := 3 * c.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("websocket connected", logger.String("url", c.url))
	return nil
}

// writeJSON serializes writes; gorilla allows one concurrent writer.
func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("%s not connected", c.exchange)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("%s not connected", c.exchange)
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
}

func (c *wsConn) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// read pumps frames through parse until the connection fails. The error
// channel receives exactly one error, then both channels close.
func (c *wsConn) read(ctx context.Context, parse parseFunc) (<-chan *models.Quote, <-chan error) {
	quotes := make(chan *models.Quote, quoteBuffer)
	errs := make(chan error, 1)
	conn := c.current()

	readCtx, cancel := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(c.pingInterval)
		defer t.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-t.C:
				if err := c.ping(); err != nil {
					c.log.Debug("ping failed", logger.Error(err))
					return
				}
			}
		}
	}()

	go func() {
		defer cancel()
		defer close(quotes)
		defer close(errs)

		if conn == nil {
			errs <- fmt.Errorf("%s not connected", c.exchange)
			return
		}
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() != nil {
					return
				}
				errs <- fmt.Errorf("%s read: %w", c.exchange, err)
				return
			}
			qs, err := parse(frame, c.now())
			if err != nil {
				c.log.Warn("frame rejected", logger.Error(err))
				continue
			}
			for _, q := range qs {
				select {
				case quotes <- q:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return quotes, errs
}

func (c *wsConn) close() error {
	c.connected.Store(false)
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (c *wsConn) isConnected() bool { return c.connected.Load() }
