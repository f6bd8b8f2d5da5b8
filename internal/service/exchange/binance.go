package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"StatArb/internal/domain/models"
	drepo "StatArb/internal/domain/repository"
	"StatArb/pkg/logger"
)

const Binance = "binance"

// BinanceFeed streams bookTicker (top of book) and miniTicker (24h base
// volume) over one combined-stream connection.
type BinanceFeed struct {
	ws      *wsConn
	symbols *symbolMap

	mu     sync.Mutex
	volume map[string]float64
}

func NewBinanceFeed(url string, symbols []string, pingInterval time.Duration, log *logger.Logger) (*BinanceFeed, error) {
	sm, err := newSymbolMap(symbols, binancePair)
	if err != nil {
		return nil, err
	}
	return &BinanceFeed{
		ws:      newWSConn(Binance, url, pingInterval, log),
		symbols: sm,
		volume:  make(map[string]float64, len(symbols)),
	}, nil
}

func (f *BinanceFeed) Exchange() string { return Binance }

func (f *BinanceFeed) Connect(ctx context.Context) error { return f.ws.dial(ctx) }

func (f *BinanceFeed) Subscribe(ctx context.Context) error {
	params := make([]string, 0, 2*len(f.symbols.toVenue))
	for _, v := range f.symbols.venues() {
		s := strings.ToLower(v)
		params = append(params, s+"@bookTicker", s+"@miniTicker")
	}
	req := map[string]interface{}{"method": "SUBSCRIBE", "params": params, "id": 1}
	if err := f.ws.writeJSON(req); err != nil {
		return fmt.Errorf("binance subscribe: %w", err)
	}
	f.ws.log.Info("subscribed", logger.Strings("streams", params))
	return nil
}

func (f *BinanceFeed) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	return f.ws.read(ctx, f.parse)
}

func (f *BinanceFeed) Reconnect(ctx context.Context) error {
	_ = f.ws.close()
	if err := f.ws.dial(ctx); err != nil {
		return err
	}
	return f.Subscribe(ctx)
}

func (f *BinanceFeed) Close() error { return f.ws.close() }

func (f *BinanceFeed) IsConnected() bool { return f.ws.isConnected() }

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceBookTicker struct {
	Symbol  string `json:"s"`
	Bid     string `json:"b"`
	BidSize string `json:"B"`
	Ask     string `json:"a"`
	AskSize string `json:"A"`
}

// Event is declared so "e" does not fold onto "E".
type binanceMiniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Volume    string `json:"v"`
}

// parse handles one combined-stream frame. Subscription acks carry no
// stream and are ignored. bookTicker has no event time, so quotes are
// stamped with the receive time.
func (f *BinanceFeed) parse(frame []byte, recv time.Time) ([]*models.Quote, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("binance frame: %w", err)
	}
	if env.Stream == "" {
		return nil, nil
	}

	switch {
	case strings.HasSuffix(env.Stream, "@miniTicker"):
		var m binanceMiniTicker
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("binance miniTicker: %w", err)
		}
		v, err := decimal.NewFromString(m.Volume)
		if err != nil {
			return nil, fmt.Errorf("binance volume %q: %w", m.Volume, err)
		}
		f.mu.Lock()
		f.volume[m.Symbol] = v.InexactFloat64()
		f.mu.Unlock()
		return nil, nil

	case strings.HasSuffix(env.Stream, "@bookTicker"):
		var b binanceBookTicker
		if err := json.Unmarshal(env.Data, &b); err != nil {
			return nil, fmt.Errorf("binance bookTicker: %w", err)
		}
		sym, ok := f.symbols.canonical(b.Symbol)
		if !ok {
			return nil, nil
		}
		px, err := parseDecimals(b.Bid, b.Ask, b.BidSize, b.AskSize)
		if err != nil {
			return nil, fmt.Errorf("binance %s: %w", b.Symbol, err)
		}
		f.mu.Lock()
		vol := f.volume[b.Symbol]
		f.mu.Unlock()
		return []*models.Quote{{
			Exchange:   Binance,
			Symbol:     sym,
			Bid:        px[0],
			Ask:        px[1],
			BidSize:    px[2],
			AskSize:    px[3],
			BaseVolume: vol,
			Timestamp:  recv,
		}}, nil
	}
	return nil, nil
}

// parseDecimals parses exchange decimal strings exactly before converting.
func parseDecimals(vals ...string) ([]float64, error) {
	out := make([]float64, len(vals))
	for i, s := range vals {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("decimal %q: %w", s, err)
		}
		out[i] = d.InexactFloat64()
	}
	return out, nil
}

var _ drepo.FeedAdapter = (*BinanceFeed)(nil)
