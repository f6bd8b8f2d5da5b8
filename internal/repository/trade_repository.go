package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"StatArb/internal/domain/models"
	domrepo "StatArb/internal/domain/repository"
	pkgch "StatArb/pkg/clickhouse"
	applogger "StatArb/pkg/logger"
)

const tradeColumns = "id, ts, opened_at, symbol, side, buy_exchange, buy_price, sell_exchange, sell_price, amount, fees, pnl, entry_z, exit_z, exit_reason"

// TradeSchema creates the trade history table. ReplacingMergeTree on id
// makes redelivered trades idempotent.
func TradeSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            id            String,
            ts            DateTime64(3, 'UTC'),
            opened_at     DateTime64(3, 'UTC'),
            symbol        LowCardinality(String),
            side          LowCardinality(String),
            buy_exchange  LowCardinality(String),
            buy_price     Float64,
            sell_exchange LowCardinality(String),
            sell_price    Float64,
            amount        Float64,
            fees          Float64,
            pnl           Float64,
            entry_z       Float64,
            exit_z        Float64,
            exit_reason   LowCardinality(String)
        ) ENGINE = ReplacingMergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (symbol, ts, id)`, database, table),
	}
}

// ClickHouseTradeStore keeps the full trade history behind the bounded
// in-memory ledger.
type ClickHouseTradeStore struct {
	client   *pkgch.Client
	db       *sql.DB
	database string
	table    string
	l        *applogger.Logger
}

func NewClickHouseTradeStore(client *pkgch.Client, database, table string, l *applogger.Logger) *ClickHouseTradeStore {
	return &ClickHouseTradeStore{client: client, db: client.DB(), database: database, table: table, l: l}
}

func (s *ClickHouseTradeStore) fqtn() string { return s.database + "." + s.table }

func (s *ClickHouseTradeStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, TradeSchema(s.database, s.table))
}

func (s *ClickHouseTradeStore) Store(ctx context.Context, t *models.Trade) error {
	return s.StoreBatch(ctx, []*models.Trade{t})
}

func (s *ClickHouseTradeStore) StoreBatch(ctx context.Context, trades []*models.Trade) error {
	const chunkSize = 2000
	for start := 0; start < len(trades); start += chunkSize {
		end := start + chunkSize
		if end > len(trades) {
			end = len(trades)
		}
		q, args := insertTrades(s.fqtn(), trades[start:end])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert trades",
				applogger.String("table", s.fqtn()),
				applogger.Int("rows", len(args)/15),
				applogger.Error(err))
			return fmt.Errorf("insert trades: %w", err)
		}
	}
	return nil
}

// insertTrades builds one multi-row INSERT. Trades without an id are skipped.
func insertTrades(table string, trades []*models.Trade) (string, []interface{}) {
	values := make([]string, 0, len(trades))
	args := make([]interface{}, 0, len(trades)*15)
	for _, t := range trades {
		if t == nil || t.ID == "" {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			t.ID,
			t.Timestamp.UTC(),
			t.OpenedAt.UTC(),
			t.Symbol,
			string(t.Side),
			t.BuyExchange,
			t.BuyPrice,
			t.SellExchange,
			t.SellPrice,
			t.Amount,
			t.Fees,
			t.PnL,
			t.EntryZScore,
			t.ExitZScore,
			string(t.ExitReason),
		)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, tradeColumns, strings.Join(values, ",")), args
}

// Query returns trades newest first. An empty symbol matches all symbols; a
// zero to means now.
func (s *ClickHouseTradeStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Trade, error) {
	start := time.Now()
	q, args := selectTrades(s.fqtn(), symbol, from, to, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Trade, 0, limit)
	for rows.Next() {
		var (
			t                models.Trade
			side, exitReason string
		)
		if err := rows.Scan(&t.ID, &t.Timestamp, &t.OpenedAt, &t.Symbol, &side,
			&t.BuyExchange, &t.BuyPrice, &t.SellExchange, &t.SellPrice,
			&t.Amount, &t.Fees, &t.PnL, &t.EntryZScore, &t.ExitZScore, &exitReason); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = models.Side(side)
		t.ExitReason = models.ExitReason(exitReason)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse query trades",
		applogger.Symbol(symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func selectTrades(table, symbol string, from, to time.Time, limit int) (string, []interface{}) {
	if to.IsZero() {
		to = time.Now()
	}
	where := []string{"ts >= ?", "ts <= ?"}
	args := []interface{}{from.UTC(), to.UTC()}
	if symbol != "" {
		where = append([]string{"symbol = ?"}, where...)
		args = append([]interface{}{symbol}, args...)
	}
	args = append(args, limit)
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE %s ORDER BY ts DESC LIMIT ?",
		tradeColumns, table, strings.Join(where, " AND "))
	return q, args
}

func (s *ClickHouseTradeStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the client is owned by the DI container.
func (s *ClickHouseTradeStore) Close() error { return nil }

var _ domrepo.TradeStore = (*ClickHouseTradeStore)(nil)
