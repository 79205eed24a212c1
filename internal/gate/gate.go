// Package gate is the shared precondition for every metered operation: a
// per-user rate-limit check, a credit debit before the completion call, and
// an exact refund when the call fails. Replays of an already-charged
// operation key run free, so a retried request never double-charges.
package gate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martin/jobpilot/internal/credits"
	"github.com/martin/jobpilot/internal/logger"
	"github.com/martin/jobpilot/internal/ratelimit"
	"github.com/martin/jobpilot/internal/types"
)

// Gate wires the limiter and the credit service in front of an operation.
type Gate struct {
	credits *credits.Service
	limiter ratelimit.Limiter
	log     *zap.Logger
}

func New(creditSvc *credits.Service, limiter ratelimit.Limiter, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{credits: creditSvc, limiter: limiter, log: log}
}

// Metered describes one gated operation. A zero Cost skips the debit but
// keeps the rate limit. OperationKey is the idempotency key; empty disables
// replay detection.
type Metered struct {
	UserID       uuid.UUID
	Family       ratelimit.Family
	Cost         int
	Reason       types.CreditReason
	OperationKey string
}

// Key builds the canonical idempotency key for an operation over its
// identifying IDs.
func Key(operation string, ids ...uuid.UUID) string {
	key := operation
	for _, id := range ids {
		key += ":" + id.String()
	}
	return key
}

// Run executes fn behind the gate. Order is fixed: rate limit, debit, fn,
// refund on fn failure. The refund is exact and the operation's error is
// what surfaces, so a failed call leaves the balance unchanged.
func (g *Gate) Run(ctx context.Context, m Metered, fn func(context.Context) error) error {
	log := logger.WithOperation(g.log, string(m.Family), m.UserID.String())

	if err := g.limiter.Allow(ctx, m.UserID, m.Family); err != nil {
		return err
	}

	charged := false
	if m.Cost > 0 {
		replay, err := g.alreadyCharged(ctx, m)
		if err != nil {
			return err
		}
		if !replay {
			var key *string
			if m.OperationKey != "" {
				key = &m.OperationKey
			}
			if _, err := g.credits.Spend(ctx, m.UserID, m.Cost, m.Reason, key); err != nil {
				return err
			}
			charged = true
		} else {
			log.Info("replaying charged operation without debit",
				zap.String("operation_key", m.OperationKey))
		}
	}

	if err := fn(ctx); err != nil {
		if charged {
			key := m.OperationKey
			refundKey := &key
			if m.OperationKey == "" {
				refundKey = nil
			}
			if _, refundErr := g.credits.Refund(ctx, m.UserID, m.Cost, refundKey); refundErr != nil {
				log.Error("refund failed after operation failure",
					zap.String("operation_key", m.OperationKey),
					zap.Error(refundErr))
				return fmt.Errorf("operation failed and refund failed: %w", refundErr)
			}
		}
		return err
	}
	return nil
}

// alreadyCharged reports whether the operation key carries a debit that was
// not refunded, meaning the work was already paid for.
func (g *Gate) alreadyCharged(ctx context.Context, m Metered) (bool, error) {
	if m.OperationKey == "" {
		return false, nil
	}
	spend, err := g.credits.FindSpend(ctx, m.UserID, m.OperationKey, m.Reason)
	if err != nil {
		return false, fmt.Errorf("failed to check prior charge: %w", err)
	}
	if spend == nil {
		return false, nil
	}
	refund, err := g.credits.FindSpend(ctx, m.UserID, m.OperationKey, types.ReasonRefund)
	if err != nil {
		return false, fmt.Errorf("failed to check prior refund: %w", err)
	}
	if refund != nil && !refund.CreatedAt.Before(spend.CreatedAt) {
		return false, nil
	}
	return true, nil
}
