// Package customer holds rider accounts and decides whether a rider may hold
// a bike.
package customer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/internal/fault"
)

type Customer struct {
	ID        uuid.UUID
	Auth0ID   string         `db:"auth0_id"`
	StripeID  sql.NullString `db:"stripe_id"`
	Email     sql.NullString `db:"email"`
	Name      sql.NullString `db:"name"`
	Verified  bool           `db:"verified"`
	CreatedAt time.Time      `db:"created_at"`
}

var (
	ErrNotFound      = fmt.Errorf("customer %w", fault.ErrNotFound)
	ErrUnverified    = fmt.Errorf("%w: identity has not been verified", fault.ErrIneligible)
	ErrDepositTooLow = fmt.Errorf("%w: security deposit below the required amount", fault.ErrIneligible)
)

type Store interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetCustomerByAuth0ID(ctx context.Context, auth0ID string) (*Customer, error)
	CreateCustomer(ctx context.Context, auth0ID string) (*Customer, error)
	AddStripeIDToCustomer(ctx context.Context, auth0ID, stripeID string) error
	UpdateProfile(ctx context.Context, auth0ID, email, name string) error
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
}

type DepositReader interface {
	SecurityDeposit(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Eligibility requires a verified identity and a lodged security deposit of
// at least the configured amount.
type Eligibility struct {
	customers Store
	deposits  DepositReader
	required  int64
}

func NewEligibility(customers Store, deposits DepositReader, required int64) *Eligibility {
	return &Eligibility{customers: customers, deposits: deposits, required: required}
}

func (e *Eligibility) CheckEligible(ctx context.Context, userID uuid.UUID) error {
	c, err := e.customers.GetCustomer(ctx, userID)
	if err != nil {
		return err
	}
	if !c.Verified {
		return ErrUnverified
	}
	if e.required <= 0 {
		return nil
	}
	deposit, err := e.deposits.SecurityDeposit(ctx, userID)
	if err != nil {
		return err
	}
	if deposit < e.required {
		return ErrDepositTooLow
	}
	return nil
}
