package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/martin/jobpilot/internal/types"
)

// ErrInsufficientCredits is returned when a debit would drive the balance
// negative. The conditional update guarantees the spend is never persisted.
var ErrInsufficientCredits = errors.New("insufficient credits")

// CreditBalance retrieves the current balance for a user. A user with no
// balance row has zero credits.
func (db *DB) CreditBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	var balance int
	err := db.pool.QueryRow(ctx,
		`SELECT balance FROM credit_balances WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get credit balance: %w", err)
	}
	return balance, nil
}

// FindLedgerEntry retrieves the ledger entry for an idempotency key and
// reason, or nil. Used to detect replayed debits before charging again.
func (db *DB) FindLedgerEntry(ctx context.Context, userID uuid.UUID, operationKey string, reason types.CreditReason) (*types.CreditLedgerEntry, error) {
	var e types.CreditLedgerEntry
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, amount, reason, operation_key, balance_after, created_at
		 FROM credit_ledger
		 WHERE user_id = $1 AND operation_key = $2 AND reason = $3
		 ORDER BY created_at DESC LIMIT 1`,
		userID, operationKey, string(reason),
	).Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &e.OperationKey, &e.BalanceAfter, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}
	return &e, nil
}

// DebitCredits atomically spends amount credits. The balance update is
// conditional on sufficiency, so two concurrent spends can never both
// succeed against one credit. Returns ErrInsufficientCredits without writing
// anything when the balance is too low.
func (db *DB) DebitCredits(ctx context.Context, userID uuid.UUID, amount int, reason types.CreditReason, operationKey *string) (*types.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	var entry types.CreditLedgerEntry
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		var balanceAfter int
		err := tx.QueryRow(ctx,
			`UPDATE credit_balances
			 SET balance = balance - $2, updated_at = NOW()
			 WHERE user_id = $1 AND balance >= $2
			 RETURNING balance`,
			userID, amount,
		).Scan(&balanceAfter)
		if err != nil {
			if err == pgx.ErrNoRows {
				return ErrInsufficientCredits
			}
			return fmt.Errorf("failed to debit balance: %w", err)
		}

		return tx.QueryRow(ctx,
			`INSERT INTO credit_ledger (user_id, amount, reason, operation_key, balance_after)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, user_id, amount, reason, operation_key, balance_after, created_at`,
			userID, -amount, string(reason), operationKey, balanceAfter,
		).Scan(&entry.ID, &entry.UserID, &entry.Amount, &entry.Reason,
			&entry.OperationKey, &entry.BalanceAfter, &entry.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreditCredits atomically adds amount credits (refund, top-up, grant),
// creating the balance row on first use.
func (db *DB) CreditCredits(ctx context.Context, userID uuid.UUID, amount int, reason types.CreditReason, operationKey *string) (*types.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	var entry types.CreditLedgerEntry
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		var balanceAfter int
		err := tx.QueryRow(ctx,
			`INSERT INTO credit_balances (user_id, balance)
			 VALUES ($1, $2)
			 ON CONFLICT (user_id) DO UPDATE SET
			   balance = credit_balances.balance + $2, updated_at = NOW()
			 RETURNING balance`,
			userID, amount,
		).Scan(&balanceAfter)
		if err != nil {
			return fmt.Errorf("failed to credit balance: %w", err)
		}

		return tx.QueryRow(ctx,
			`INSERT INTO credit_ledger (user_id, amount, reason, operation_key, balance_after)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, user_id, amount, reason, operation_key, balance_after, created_at`,
			userID, amount, string(reason), operationKey, balanceAfter,
		).Scan(&entry.ID, &entry.UserID, &entry.Amount, &entry.Reason,
			&entry.OperationKey, &entry.BalanceAfter, &entry.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListLedger retrieves a user's ledger entries, newest first.
func (db *DB) ListLedger(ctx context.Context, userID uuid.UUID, limit int) ([]types.CreditLedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, amount, reason, operation_key, balance_after, created_at
		 FROM credit_ledger WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var entries []types.CreditLedgerEntry
	for rows.Next() {
		var e types.CreditLedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason,
			&e.OperationKey, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
