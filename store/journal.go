// Package store persists executed trades to a local sqlite file.
// The journal is an audit trail only; it is never read back to restore
// a position after restart.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pibot/trader"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id          TEXT PRIMARY KEY,
	pair        TEXT NOT NULL,
	side        TEXT NOT NULL,
	manual      INTEGER NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL DEFAULT '',
	price       REAL NOT NULL,
	amount      REAL NOT NULL,
	quote       REAL NOT NULL,
	entry_price REAL NOT NULL DEFAULT 0,
	pnl         REAL NOT NULL DEFAULT 0,
	pnl_pct     REAL NOT NULL DEFAULT 0,
	order_id    TEXT NOT NULL DEFAULT '',
	at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_at ON trades(at);
`

// Journal is a sqlite-backed trader.Journal and trader.History.
type Journal struct {
	db  *sql.DB
	log zerolog.Logger
}

var (
	_ trader.Journal = (*Journal)(nil)
	_ trader.History = (*Journal)(nil)
)

// Open opens (or creates) the journal at path and applies the schema.
func Open(path string, log zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, log: log.With().Str("component", "journal").Logger()}
	if err := j.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	j.log.Info().Str("path", path).Msg("📒 [流水] 交易流水已打开")
	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init journal schema: %w", err)
	}
	return nil
}

// Record inserts one trade. An empty ID is replaced with a new uuid.
func (j *Journal) Record(ctx context.Context, e trader.JournalEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trades (id, pair, side, manual, reason, price, amount, quote, entry_price, pnl, pnl_pct, order_id, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Pair, e.Side, e.Manual, e.Reason, e.Price, e.Amount, e.Quote,
		e.EntryPrice, e.PnL, e.PnLPct, e.OrderID, e.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit trades, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]trader.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, pair, side, manual, reason, price, amount, quote, entry_price, pnl, pnl_pct, order_id, at
		 FROM trades ORDER BY at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []trader.JournalEntry
	for rows.Next() {
		var (
			e  trader.JournalEntry
			at int64
		)
		if err := rows.Scan(&e.ID, &e.Pair, &e.Side, &e.Manual, &e.Reason, &e.Price, &e.Amount, &e.Quote,
			&e.EntryPrice, &e.PnL, &e.PnLPct, &e.OrderID, &at); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		e.At = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summary aggregates realized results over all closed trades.
type Summary struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	TotalPnL float64 `json:"total_pnl"`
}

// Summarize computes win/loss counts and cumulative P/L of sell rows.
func (j *Journal) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(pnl), 0)
		FROM trades WHERE side = 'sell'`).Scan(&s.Trades, &s.Wins, &s.Losses, &s.TotalPnL)
	if err != nil {
		return s, fmt.Errorf("summarize trades: %w", err)
	}
	return s, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
