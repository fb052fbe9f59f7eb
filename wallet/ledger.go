package wallet

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/internal/fault"
)

// Gateway starts an asynchronous payment. Its outcome arrives later and is
// fed back through CompleteDeposit or FailDeposit.
type Gateway interface {
	InitiateDeposit(ctx context.Context, userID uuid.UUID, amount int64, method string) (reference string, err error)
}

type Summary struct {
	UserID          uuid.UUID     `json:"userId"`
	Balance         int64         `json:"balance"`
	SecurityDeposit int64         `json:"securityDeposit"`
	Ceiling         int64         `json:"negativeBalanceCeiling"`
	Transactions    []Transaction `json:"transactions"`
}

type Ledger struct {
	store   Store
	ceiling int64
	logger  *slog.Logger
	now     func() time.Time
}

// NewLedger builds a ledger that tolerates a spendable balance down to
// -ceiling before refusing charges.
func NewLedger(store Store, ceiling int64, logger *slog.Logger) *Ledger {
	if ceiling < 0 {
		ceiling = -ceiling
	}
	return &Ledger{store: store, ceiling: ceiling, logger: logger, now: time.Now}
}

// Floor is the lowest spendable balance a charge may leave behind.
func (l *Ledger) Floor() int64 {
	return -l.ceiling
}

func (l *Ledger) Charge(ctx context.Context, userID uuid.UUID, amount int64, reference string) (Transaction, error) {
	t, err := l.newTransaction(userID, TypeCharge, amount, reference, StatusCompleted)
	if err != nil {
		return Transaction{}, err
	}
	t.Amount = -amount
	t, err = l.store.AppendCharge(ctx, t, l.Floor())
	if err != nil {
		l.logger.WarnContext(ctx, "wallet charge refused", "userId", userID, "amount", amount, "error", err)
		return Transaction{}, err
	}
	return t, nil
}

func (l *Ledger) Refund(ctx context.Context, userID uuid.UUID, amount int64, reference string) (Transaction, error) {
	return l.append(ctx, userID, TypeRefund, amount, reference, StatusCompleted)
}

func (l *Ledger) Deposit(ctx context.Context, userID uuid.UUID, amount int64, reference string) (Transaction, error) {
	return l.append(ctx, userID, TypeDeposit, amount, reference, StatusCompleted)
}

func (l *Ledger) LodgeSecurityDeposit(ctx context.Context, userID uuid.UUID, amount int64, reference string) (Transaction, error) {
	return l.append(ctx, userID, TypeSecurityDeposit, amount, reference, StatusCompleted)
}

// InitiateDeposit asks the gateway to collect amount and records a PENDING
// deposit under the gateway's reference.
func (l *Ledger) InitiateDeposit(ctx context.Context, gw Gateway, userID uuid.UUID, amount int64, method string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, fault.Invalid("amount", "must be positive")
	}
	if method == "" {
		return Transaction{}, fault.Invalid("paymentMethod", "is required")
	}
	ref, err := gw.InitiateDeposit(ctx, userID, amount, method)
	if err != nil {
		return Transaction{}, err
	}
	return l.append(ctx, userID, TypeDeposit, amount, ref, StatusPending)
}

func (l *Ledger) CompleteDeposit(ctx context.Context, reference string) (Transaction, error) {
	return l.store.Settle(ctx, reference, StatusCompleted)
}

func (l *Ledger) FailDeposit(ctx context.Context, reference string) (Transaction, error) {
	return l.store.Settle(ctx, reference, StatusFailed)
}

func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return l.store.Balance(ctx, userID)
}

func (l *Ledger) SecurityDeposit(ctx context.Context, userID uuid.UUID) (int64, error) {
	return l.store.SecurityDeposit(ctx, userID)
}

func (l *Ledger) Summary(ctx context.Context, userID uuid.UUID) (Summary, error) {
	balance, err := l.store.Balance(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	deposit, err := l.store.SecurityDeposit(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	txs, err := l.store.Transactions(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		UserID:          userID,
		Balance:         balance,
		SecurityDeposit: deposit,
		Ceiling:         l.ceiling,
		Transactions:    txs,
	}, nil
}

// NewChargeTransaction prepares a COMPLETED charge row without writing it, for
// callers that persist the charge inside their own transaction.
func (l *Ledger) NewChargeTransaction(userID uuid.UUID, amount int64, reference string) (Transaction, error) {
	t, err := l.newTransaction(userID, TypeCharge, amount, reference, StatusCompleted)
	if err != nil {
		return Transaction{}, err
	}
	t.Amount = -amount
	return t, nil
}

func (l *Ledger) append(ctx context.Context, userID uuid.UUID, typ Type, amount int64, reference string, status Status) (Transaction, error) {
	t, err := l.newTransaction(userID, typ, amount, reference, status)
	if err != nil {
		return Transaction{}, err
	}
	if amount == 0 {
		return Transaction{}, fault.Invalid("amount", "must be positive")
	}
	return l.store.Append(ctx, t)
}

func (l *Ledger) newTransaction(userID uuid.UUID, typ Type, amount int64, reference string, status Status) (Transaction, error) {
	if userID == uuid.Nil {
		return Transaction{}, fault.Invalid("userId", "is required")
	}
	if amount < 0 {
		return Transaction{}, fault.Invalid("amount", "must not be negative")
	}
	if reference == "" {
		return Transaction{}, fault.Invalid("reference", "is required")
	}
	return Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Amount:    amount,
		Status:    status,
		Reference: reference,
		CreatedAt: l.now(),
	}, nil
}
