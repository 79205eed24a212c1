package types

import (
	"time"

	"github.com/google/uuid"
)

// CreditReason is the business reason attached to a ledger entry.
type CreditReason string

const (
	ReasonScan     CreditReason = "scan"
	ReasonOutreach CreditReason = "outreach"
	ReasonSprint   CreditReason = "sprint"
	ReasonRefund   CreditReason = "refund"
	ReasonTopUp    CreditReason = "top_up"
	ReasonGrant    CreditReason = "grant"
)

// Valid reports whether the value is part of the closed vocabulary.
func (r CreditReason) Valid() bool {
	switch r {
	case ReasonScan, ReasonOutreach, ReasonSprint, ReasonRefund, ReasonTopUp, ReasonGrant:
		return true
	default:
		return false
	}
}

// Advertised operation costs in credits. Extraction and kit generation are
// free; kits are bundled with a completed scan.
const (
	CostScan     = 1
	CostOutreach = 1
	CostSprint   = 5
)

// CreditLedgerEntry is one signed movement on a user's balance. The balance
// is the running sum; a spend is never persisted if it would drive the
// balance negative.
type CreditLedgerEntry struct {
	ID           uuid.UUID    `json:"id"`
	UserID       uuid.UUID    `json:"user_id"`
	Amount       int          `json:"amount"` // negative for spends
	Reason       CreditReason `json:"reason"`
	OperationKey *string      `json:"operation_key,omitempty"` // idempotency key
	BalanceAfter int          `json:"balance_after"`
	CreatedAt    time.Time    `json:"created_at"`
}
