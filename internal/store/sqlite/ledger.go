// Package sqlite implements domain.PositionLedger on a local SQLite file.
// This is the default driver: the ledger is small, single-process, and must
// survive restarts without any external service.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS condition_stocks (
	buy_order_number TEXT PRIMARY KEY,
	stock_code TEXT NOT NULL,
	amount INTEGER NOT NULL,
	price REAL NOT NULL,
	sell_order_number TEXT
);

CREATE INDEX IF NOT EXISTS idx_condition_stocks_sell
	ON condition_stocks(sell_order_number);
`

// Ledger is a SQLite-backed position ledger.
type Ledger struct {
	db *sql.DB
}

// NewLedger opens (or creates) the ledger database at path and ensures the
// schema exists.
func NewLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer connection; both watchers mutate the ledger concurrently
	// and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// InsertOpen records a newly filled buy.
func (l *Ledger) InsertOpen(ctx context.Context, rec domain.PositionRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO condition_stocks (buy_order_number, stock_code, amount, price)
		VALUES (?, ?, ?, ?)`,
		rec.BuyOrderID, rec.StockCode, rec.Quantity, rec.EntryPrice,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("sqlite: insert position %s: %w", rec.BuyOrderID, err)
	}
	return nil
}

// MarkSellPlaced stores the sell order number on an existing record.
func (l *Ledger) MarkSellPlaced(ctx context.Context, buyOrderID, sellOrderID string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE condition_stocks SET sell_order_number = ?
		WHERE buy_order_number = ?`,
		sellOrderID, buyOrderID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark sell placed %s: %w", buyOrderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: mark sell placed %s: %w", buyOrderID, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Remove deletes the record whose sell order number matches.
func (l *Ledger) Remove(ctx context.Context, sellOrderID string) error {
	res, err := l.db.ExecContext(ctx, `
		DELETE FROM condition_stocks WHERE sell_order_number = ?`,
		sellOrderID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: remove position %s: %w", sellOrderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: remove position %s: %w", sellOrderID, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListAll returns a snapshot of every record.
func (l *Ledger) ListAll(ctx context.Context) ([]domain.PositionRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT buy_order_number, stock_code, amount, price, sell_order_number
		FROM condition_stocks`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list positions: %w", err)
	}
	defer rows.Close()

	var records []domain.PositionRecord
	for rows.Next() {
		var rec domain.PositionRecord
		var sellOrderID sql.NullString
		if err := rows.Scan(&rec.BuyOrderID, &rec.StockCode, &rec.Quantity, &rec.EntryPrice, &sellOrderID); err != nil {
			return nil, fmt.Errorf("sqlite: scan position: %w", err)
		}
		rec.SellOrderID = sellOrderID.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list positions: %w", err)
	}
	return records, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Compile-time interface check.
var _ domain.PositionLedger = (*Ledger)(nil)
