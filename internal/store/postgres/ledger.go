package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Ledger is a PostgreSQL-backed position ledger.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// InsertOpen records a newly filled buy.
func (l *Ledger) InsertOpen(ctx context.Context, rec domain.PositionRecord) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO condition_stocks (buy_order_number, stock_code, amount, price)
		VALUES ($1, $2, $3, $4)`,
		rec.BuyOrderID, rec.StockCode, rec.Quantity, rec.EntryPrice,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("postgres: insert position %s: %w", rec.BuyOrderID, err)
	}
	return nil
}

// MarkSellPlaced stores the sell order number on an existing record.
func (l *Ledger) MarkSellPlaced(ctx context.Context, buyOrderID, sellOrderID string) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE condition_stocks SET sell_order_number = $2
		WHERE buy_order_number = $1`,
		buyOrderID, sellOrderID,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark sell placed %s: %w", buyOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Remove deletes the record whose sell order number matches.
func (l *Ledger) Remove(ctx context.Context, sellOrderID string) error {
	tag, err := l.pool.Exec(ctx, `
		DELETE FROM condition_stocks WHERE sell_order_number = $1`,
		sellOrderID,
	)
	if err != nil {
		return fmt.Errorf("postgres: remove position %s: %w", sellOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListAll returns a snapshot of every record.
func (l *Ledger) ListAll(ctx context.Context) ([]domain.PositionRecord, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT buy_order_number, stock_code, amount, price, sell_order_number
		FROM condition_stocks`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var records []domain.PositionRecord
	for rows.Next() {
		var rec domain.PositionRecord
		var sellOrderID *string
		if err := rows.Scan(&rec.BuyOrderID, &rec.StockCode, &rec.Quantity, &rec.EntryPrice, &sellOrderID); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		if sellOrderID != nil {
			rec.SellOrderID = *sellOrderID
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	return records, nil
}

// Compile-time interface check.
var _ domain.PositionLedger = (*Ledger)(nil)
