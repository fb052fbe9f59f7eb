package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Append(ctx context.Context, t Transaction) (Transaction, error) {
	return insert(ctx, r.db, t)
}

func (r *Repository) AppendCharge(ctx context.Context, t Transaction, floor int64) (Transaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback()

	t, err = AppendChargeTx(ctx, tx, t, floor)
	if err != nil {
		return Transaction{}, err
	}
	return t, tx.Commit()
}

// AppendChargeTx checks the floor and inserts the charge inside tx. The
// per-user advisory lock serialises concurrent charges against one balance.
func AppendChargeTx(ctx context.Context, tx *sqlx.Tx, t Transaction, floor int64) (Transaction, error) {
	if _, err := tx.ExecContext(ctx, lockUserLedger, t.UserID.String()); err != nil {
		return Transaction{}, err
	}

	var balance int64
	if err := tx.GetContext(ctx, &balance, balanceQuery, t.UserID); err != nil {
		return Transaction{}, err
	}
	if balance+t.Amount < floor {
		return Transaction{}, ErrInsufficientFunds
	}
	return insert(ctx, tx, t)
}

const lockUserLedger = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

func insert(ctx context.Context, q sqlx.QueryerContext, t Transaction) (Transaction, error) {
	err := sqlx.GetContext(ctx, q, &t, insertTransaction,
		t.ID, t.UserID, t.Type, t.Amount, t.Status, t.Reference, t.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Transaction{}, ErrDuplicateReference
	}
	return t, err
}

const insertTransaction = `
INSERT INTO wallet_transactions (id, user_id, type, amount, status, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING *
`

func (r *Repository) Settle(ctx context.Context, reference string, status Status) (Transaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback()

	var t Transaction
	err = tx.GetContext(ctx, &t, pendingByReference, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	if t.Status != StatusPending {
		return t, ErrAlreadySettled
	}

	err = tx.GetContext(ctx, &t, settleTransaction, t.ID, status)
	if err != nil {
		return Transaction{}, err
	}
	return t, tx.Commit()
}

const pendingByReference = `
SELECT * FROM wallet_transactions
WHERE reference = $1 AND type = 'DEPOSIT'
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE
`

const settleTransaction = `
UPDATE wallet_transactions SET status = $2, settled_at = now()
WHERE id = $1 AND status = 'PENDING'
RETURNING *
`

func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.GetContext(ctx, &balance, balanceQuery, userID)
	return balance, err
}

const balanceQuery = `
SELECT COALESCE(SUM(amount), 0)::bigint FROM wallet_transactions
WHERE user_id = $1 AND status = 'COMPLETED' AND type <> 'SECURITY_DEPOSIT'
`

func (r *Repository) SecurityDeposit(ctx context.Context, userID uuid.UUID) (int64, error) {
	var deposit int64
	err := r.db.GetContext(ctx, &deposit, securityDepositQuery, userID)
	return deposit, err
}

const securityDepositQuery = `
SELECT COALESCE(SUM(amount), 0)::bigint FROM wallet_transactions
WHERE user_id = $1 AND status = 'COMPLETED' AND type = 'SECURITY_DEPOSIT'
`

func (r *Repository) Transactions(ctx context.Context, userID uuid.UUID) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.SelectContext(ctx, &txs, transactionsQuery, userID)
	return txs, err
}

const transactionsQuery = `SELECT * FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC`
