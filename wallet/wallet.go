// Package wallet is the append-only balance ledger of every rider.
package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/internal/fault"
)

type Type string

const (
	TypeDeposit Type = "DEPOSIT"
	TypeCharge  Type = "CHARGE"
	TypeRefund  Type = "REFUND"
	// TypeSecurityDeposit is held against eligibility and never counts toward
	// the spendable balance.
	TypeSecurityDeposit Type = "SECURITY_DEPOSIT"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Transaction amounts are signed: charges are negative.
type Transaction struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"userId"`
	Type      Type       `db:"type" json:"type"`
	Amount    int64      `db:"amount" json:"amount"`
	Status    Status     `db:"status" json:"status"`
	Reference string     `db:"reference" json:"reference"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	SettledAt *time.Time `db:"settled_at" json:"settledAt,omitempty"`
}

var (
	ErrNotFound           = fmt.Errorf("wallet transaction %w", fault.ErrNotFound)
	ErrInsufficientFunds  = fmt.Errorf("%w: charge would exceed the negative balance ceiling", fault.ErrInsufficientFunds)
	ErrDuplicateReference = fmt.Errorf("%w: transaction reference already recorded", fault.ErrConflict)
	ErrAlreadySettled     = fmt.Errorf("%w: transaction already settled", fault.ErrAlreadyResolved)
)

// Store persists transactions. Rows are only ever inserted; the single
// permitted update is a PENDING row settling to COMPLETED or FAILED.
type Store interface {
	Append(ctx context.Context, t Transaction) (Transaction, error)
	// AppendCharge inserts a charge only if the spendable balance after it
	// stays at or above floor.
	AppendCharge(ctx context.Context, t Transaction, floor int64) (Transaction, error)
	Settle(ctx context.Context, reference string, status Status) (Transaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	SecurityDeposit(ctx context.Context, userID uuid.UUID) (int64, error)
	Transactions(ctx context.Context, userID uuid.UUID) ([]Transaction, error)
}

// Counts reports whether a transaction contributes to the spendable balance.
func (t Transaction) Counts() bool {
	return t.Status == StatusCompleted && t.Type != TypeSecurityDeposit
}
