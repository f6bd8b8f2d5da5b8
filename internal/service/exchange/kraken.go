package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"StatArb/internal/domain/models"
	drepo "StatArb/internal/domain/repository"
	"StatArb/pkg/logger"
)

const Kraken = "kraken"

// KrakenFeed subscribes to the v1 public ticker channel, which carries best
// bid/ask with lot volumes and the rolling 24h base volume in one message.
type KrakenFeed struct {
	ws      *wsConn
	symbols *symbolMap
}

func NewKrakenFeed(url string, symbols []string, pingInterval time.Duration, log *logger.Logger) (*KrakenFeed, error) {
	sm, err := newSymbolMap(symbols, krakenPair)
	if err != nil {
		return nil, err
	}
	return &KrakenFeed{ws: newWSConn(Kraken, url, pingInterval, log), symbols: sm}, nil
}

func (f *KrakenFeed) Exchange() string { return Kraken }

func (f *KrakenFeed) Connect(ctx context.Context) error { return f.ws.dial(ctx) }

func (f *KrakenFeed) Subscribe(ctx context.Context) error {
	pairs := f.symbols.venues()
	req := map[string]interface{}{
		"event":        "subscribe",
		"pair":         pairs,
		"subscription": map[string]string{"name": "ticker"},
	}
	if err := f.ws.writeJSON(req); err != nil {
		return fmt.Errorf("kraken subscribe: %w", err)
	}
	f.ws.log.Info("subscribed", logger.Strings("pairs", pairs))
	return nil
}

func (f *KrakenFeed) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	return f.ws.read(ctx, f.parse)
}

func (f *KrakenFeed) Reconnect(ctx context.Context) error {
	_ = f.ws.close()
	if err := f.ws.dial(ctx); err != nil {
		return err
	}
	return f.Subscribe(ctx)
}

func (f *KrakenFeed) Close() error { return f.ws.close() }

func (f *KrakenFeed) IsConnected() bool { return f.ws.isConnected() }

type krakenEvent struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	Pair         string `json:"pair"`
	ErrorMessage string `json:"errorMessage"`
}

// krakenTicker: a = [price, wholeLotVolume, lotVolume], b likewise,
// v = [today, last24Hours]. Kraken mixes quoted and bare numbers.
type krakenTicker struct {
	Ask    []json.Number `json:"a"`
	Bid    []json.Number `json:"b"`
	Volume []json.Number `json:"v"`
}

// parse handles event objects and ticker arrays of the form
// [channelID, {ticker}, "ticker", "XBT/USDT"].
func (f *KrakenFeed) parse(frame []byte, recv time.Time) ([]*models.Quote, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, nil
	}

	if frame[0] == '{' {
		var ev krakenEvent
		if err := json.Unmarshal(frame, &ev); err != nil {
			return nil, fmt.Errorf("kraken event: %w", err)
		}
		if ev.Event == "subscriptionStatus" && ev.Status == "error" {
			return nil, fmt.Errorf("kraken subscription %s: %s", ev.Pair, ev.ErrorMessage)
		}
		// heartbeat, systemStatus, successful subscriptionStatus
		return nil, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(frame, &parts); err != nil {
		return nil, fmt.Errorf("kraken frame: %w", err)
	}
	if len(parts) < 4 {
		return nil, fmt.Errorf("kraken frame: %d elements", len(parts))
	}
	var channel, pair string
	if err := json.Unmarshal(parts[len(parts)-2], &channel); err != nil {
		return nil, fmt.Errorf("kraken channel: %w", err)
	}
	if channel != "ticker" {
		return nil, nil
	}
	if err := json.Unmarshal(parts[len(parts)-1], &pair); err != nil {
		return nil, fmt.Errorf("kraken pair: %w", err)
	}
	sym, ok := f.symbols.canonical(pair)
	if !ok {
		return nil, nil
	}

	var t krakenTicker
	if err := json.Unmarshal(parts[1], &t); err != nil {
		return nil, fmt.Errorf("kraken ticker %s: %w", pair, err)
	}
	if len(t.Ask) < 3 || len(t.Bid) < 3 || len(t.Volume) < 2 {
		return nil, fmt.Errorf("kraken ticker %s: short level arrays", pair)
	}
	px, err := parseDecimals(t.Bid[0].String(), t.Ask[0].String(), t.Bid[2].String(), t.Ask[2].String(), t.Volume[1].String())
	if err != nil {
		return nil, fmt.Errorf("kraken %s: %w", pair, err)
	}
	return []*models.Quote{{
		Exchange:   Kraken,
		Symbol:     sym,
		Bid:        px[0],
		Ask:        px[1],
		BidSize:    px[2],
		AskSize:    px[3],
		BaseVolume: px[4],
		Timestamp:  recv,
	}}, nil
}

var _ drepo.FeedAdapter = (*KrakenFeed)(nil)
