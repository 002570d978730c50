// Package storage - postgres.go implements Store against Postgres using
// database/sql with the lib/pq driver — the same driver internal/eventlog
// already uses for LISTEN/NOTIFY, here exercised for its other job,
// ordinary query/exec over a connection pool.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ashare/tradeengine/internal/order"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id         TEXT PRIMARY KEY,
	account_id       TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	type             TEXT NOT NULL,
	quantity         INTEGER NOT NULL,
	price            NUMERIC NOT NULL,
	tif              TEXT NOT NULL,
	status           TEXT NOT NULL,
	filled_quantity  INTEGER NOT NULL,
	avg_fill_price   NUMERIC NOT NULL,
	reject_reason    TEXT NOT NULL DEFAULT '',
	metadata         JSONB,
	broker_order_id  TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	submitted_at     TIMESTAMPTZ,
	filled_at        TIMESTAMPTZ,
	canceled_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS trades (
	id           BIGSERIAL PRIMARY KEY,
	strategy_id  TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	quantity     INTEGER NOT NULL,
	entry_price  NUMERIC NOT NULL,
	exit_price   NUMERIC NOT NULL DEFAULT 0,
	entry_time   TIMESTAMPTZ NOT NULL,
	exit_time    TIMESTAMPTZ,
	pnl          NUMERIC NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS signals (
	id               BIGSERIAL PRIMARY KEY,
	strategy_id      TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	kind             TEXT NOT NULL,
	strength         DOUBLE PRECISION NOT NULL,
	reason           TEXT NOT NULL,
	approved         BOOLEAN NOT NULL,
	rejection_reason TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_trades_status ON trades (status);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades (strategy_id);
CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals (created_at);
`

// PostgresStore implements Store against a Postgres database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, fmt.Errorf("postgres store: connection string is required")
	}
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("postgres store: apply schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (ps *PostgresStore) Close() error { return ps.db.Close() }

func (ps *PostgresStore) SaveOrder(ctx context.Context, o *order.Order) error {
	metadata, err := json.Marshal(o.Metadata)
	if err != nil {
		return fmt.Errorf("postgres store: marshal order metadata: %w", err)
	}
	_, err = ps.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, account_id, symbol, side, type, quantity, price, tif,
			status, filled_quantity, avg_fill_price, reject_reason, metadata, broker_order_id,
			created_at, submitted_at, filled_at, canceled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			filled_quantity = EXCLUDED.filled_quantity,
			avg_fill_price = EXCLUDED.avg_fill_price,
			reject_reason = EXCLUDED.reject_reason,
			broker_order_id = EXCLUDED.broker_order_id,
			submitted_at = EXCLUDED.submitted_at,
			filled_at = EXCLUDED.filled_at,
			canceled_at = EXCLUDED.canceled_at
	`, o.OrderID, o.AccountID, o.Symbol, string(o.Side), string(o.Type), o.Quantity,
		o.Price.String(), string(o.TIF), string(o.Status), o.FilledQuantity, o.AvgFillPrice.String(),
		o.RejectReason, metadata, o.BrokerOrderID, o.CreatedAt, o.SubmittedAt, o.FilledAt, o.CanceledAt)
	if err != nil {
		return fmt.Errorf("postgres store: save order %s: %w", o.OrderID, err)
	}
	return nil
}

func (ps *PostgresStore) LoadNonTerminal(ctx context.Context) ([]*order.Order, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT order_id, account_id, symbol, side, type, quantity, price, tif, status,
			filled_quantity, avg_fill_price, reject_reason, metadata, broker_order_id,
			created_at, submitted_at, filled_at, canceled_at
		FROM orders
		WHERE status NOT IN ('FILLED','CANCELED','REJECTED','EXPIRED')
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load non-terminal orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		var o order.Order
		var side, typ, tif, status, price, avgFillPrice string
		var metadata []byte
		if err := rows.Scan(&o.OrderID, &o.AccountID, &o.Symbol, &side, &typ, &o.Quantity,
			&price, &tif, &status, &o.FilledQuantity, &avgFillPrice, &o.RejectReason, &metadata,
			&o.BrokerOrderID, &o.CreatedAt, &o.SubmittedAt, &o.FilledAt, &o.CanceledAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan order: %w", err)
		}
		o.Side = order.Side(side)
		o.Type = order.Type(typ)
		o.TIF = order.TIF(tif)
		o.Status = order.Status(status)
		o.Price, _ = decimal.NewFromString(price)
		o.AvgFillPrice, _ = decimal.NewFromString(avgFillPrice)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &o.Metadata)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) SaveTrade(ctx context.Context, t *TradeRecord) error {
	return ps.db.QueryRowContext(ctx, `
		INSERT INTO trades (strategy_id, symbol, side, quantity, entry_price, exit_price,
			entry_time, exit_time, pnl, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, t.StrategyID, t.Symbol, t.Side, t.Quantity, t.EntryPrice, t.ExitPrice,
		t.EntryTime, t.ExitTime, t.PnL, t.Status).Scan(&t.ID)
}

func (ps *PostgresStore) GetOpenTrades(ctx context.Context) ([]TradeRecord, error) {
	return ps.queryTrades(ctx, `SELECT id, strategy_id, symbol, side, quantity, entry_price,
		exit_price, entry_time, exit_time, pnl, status, created_at FROM trades WHERE status = 'open'`)
}

func (ps *PostgresStore) GetTradesByStrategy(ctx context.Context, strategyID string) ([]TradeRecord, error) {
	return ps.queryTrades(ctx, `SELECT id, strategy_id, symbol, side, quantity, entry_price,
		exit_price, entry_time, exit_time, pnl, status, created_at FROM trades
		WHERE strategy_id = $1 ORDER BY entry_time DESC`, strategyID)
}

func (ps *PostgresStore) queryTrades(ctx context.Context, query string, args ...any) ([]TradeRecord, error) {
	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.StrategyID, &t.Symbol, &t.Side, &t.Quantity, &t.EntryPrice,
			&t.ExitPrice, &t.EntryTime, &t.ExitTime, &t.PnL, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) CloseTrade(ctx context.Context, tradeID int64, exitPrice float64, exitTime time.Time) error {
	res, err := ps.db.ExecContext(ctx, `
		UPDATE trades SET exit_price = $2, exit_time = $3, status = 'closed',
			pnl = ($2 - entry_price) * quantity
		WHERE id = $1
	`, tradeID, exitPrice, exitTime)
	if err != nil {
		return fmt.Errorf("postgres store: close trade %d: %w", tradeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("postgres store: trade %d not found", tradeID)
	}
	return nil
}

func (ps *PostgresStore) SaveSignal(ctx context.Context, s *SignalRecord) error {
	return ps.db.QueryRowContext(ctx, `
		INSERT INTO signals (strategy_id, symbol, kind, strength, reason, approved, rejection_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, s.StrategyID, s.Symbol, s.Kind, s.Strength, s.Reason, s.Approved, s.RejectionReason).Scan(&s.ID)
}

func (ps *PostgresStore) GetSignalsByDate(ctx context.Context, date time.Time) ([]SignalRecord, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.AddDate(0, 0, 1)
	rows, err := ps.db.QueryContext(ctx, `
		SELECT id, strategy_id, symbol, kind, strength, reason, approved, rejection_reason, created_at
		FROM signals WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var s SignalRecord
		if err := rows.Scan(&s.ID, &s.StrategyID, &s.Symbol, &s.Kind, &s.Strength, &s.Reason,
			&s.Approved, &s.RejectionReason, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) GetDailyPnL(ctx context.Context, date time.Time) (float64, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.AddDate(0, 0, 1)
	var pnl sql.NullFloat64
	err := ps.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE exit_time >= $1 AND exit_time < $2
	`, start, end).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("postgres store: daily pnl: %w", err)
	}
	return pnl.Float64, nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}
