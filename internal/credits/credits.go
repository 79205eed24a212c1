// Package credits manages user credit balances on top of the ledger store.
// Spends are atomic and refuse to drive a balance negative; refunds and
// grants are plain credits.
package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martin/jobpilot/internal/db"
	"github.com/martin/jobpilot/internal/types"
)

// Store is the ledger persistence surface.
type Store interface {
	CreditBalance(ctx context.Context, userID uuid.UUID) (int, error)
	FindLedgerEntry(ctx context.Context, userID uuid.UUID, operationKey string, reason types.CreditReason) (*types.CreditLedgerEntry, error)
	DebitCredits(ctx context.Context, userID uuid.UUID, amount int, reason types.CreditReason, operationKey *string) (*types.CreditLedgerEntry, error)
	CreditCredits(ctx context.Context, userID uuid.UUID, amount int, reason types.CreditReason, operationKey *string) (*types.CreditLedgerEntry, error)
	ListLedger(ctx context.Context, userID uuid.UUID, limit int) ([]types.CreditLedgerEntry, error)
}

// Service exposes balance reads and the spend/refund/grant movements.
type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

// Balance returns the user's current credit balance, zero for a user with
// no balance row.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.CreditBalance(ctx, userID)
}

// Spend debits amount credits under reason. An insufficient balance surfaces
// as a QuotaError carrying the required amount and the current balance.
func (s *Service) Spend(ctx context.Context, userID uuid.UUID, amount int, reason types.CreditReason, operationKey *string) (*types.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("spend amount must be positive, got %d", amount),
		}
	}
	entry, err := s.store.DebitCredits(ctx, userID, amount, reason, operationKey)
	if err != nil {
		if errors.Is(err, db.ErrInsufficientCredits) {
			balance, balErr := s.store.CreditBalance(ctx, userID)
			if balErr != nil {
				return nil, fmt.Errorf("failed to read balance: %w", balErr)
			}
			return nil, &types.QuotaError{Required: amount, Balance: balance}
		}
		return nil, fmt.Errorf("failed to debit credits: %w", err)
	}
	s.log.Info("credits spent",
		zap.String("user_id", userID.String()),
		zap.Int("amount", amount),
		zap.String("reason", string(reason)),
		zap.Int("balance_after", entry.BalanceAfter))
	return entry, nil
}

// Refund returns amount credits to the user, tagged with the original
// operation key so the refund is traceable to its spend.
func (s *Service) Refund(ctx context.Context, userID uuid.UUID, amount int, operationKey *string) (*types.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("refund amount must be positive, got %d", amount),
		}
	}
	entry, err := s.store.CreditCredits(ctx, userID, amount, types.ReasonRefund, operationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to refund credits: %w", err)
	}
	s.log.Info("credits refunded",
		zap.String("user_id", userID.String()),
		zap.Int("amount", amount),
		zap.Int("balance_after", entry.BalanceAfter))
	return entry, nil
}

// Grant adds amount credits under a non-refund reason, for top-ups and
// promotional grants.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, amount int, reason types.CreditReason) (*types.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("grant amount must be positive, got %d", amount),
		}
	}
	if reason != types.ReasonTopUp && reason != types.ReasonGrant {
		return nil, &types.ValidationError{
			Code:    types.CodeInvalidInput,
			Message: fmt.Sprintf("invalid grant reason %q", reason),
		}
	}
	return s.store.CreditCredits(ctx, userID, amount, reason, nil)
}

// FindSpend looks up a prior debit by its idempotency key.
func (s *Service) FindSpend(ctx context.Context, userID uuid.UUID, operationKey string, reason types.CreditReason) (*types.CreditLedgerEntry, error) {
	return s.store.FindLedgerEntry(ctx, userID, operationKey, reason)
}

// Ledger returns the newest ledger entries for a user.
func (s *Service) Ledger(ctx context.Context, userID uuid.UUID, limit int) ([]types.CreditLedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListLedger(ctx, userID, limit)
}
