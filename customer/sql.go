package customer

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return r.get(ctx, getCustomerQuery, id)
}

const getCustomerQuery = "SELECT * FROM customers WHERE id = $1"

func (r *Repository) GetCustomerByAuth0ID(ctx context.Context, auth0ID string) (*Customer, error) {
	return r.get(ctx, getCustomerByAuth0IDQuery, auth0ID)
}

const getCustomerByAuth0IDQuery = "SELECT * FROM customers WHERE auth0_id = $1"

func (r *Repository) get(ctx context.Context, query string, arg any) (*Customer, error) {
	var customer Customer
	err := r.db.GetContext(ctx, &customer, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}
	return &customer, nil
}

func (r *Repository) CreateCustomer(ctx context.Context, auth0ID string) (*Customer, error) {
	var customer Customer
	err := r.db.GetContext(ctx, &customer, createCustomerQuery, uuid.New(), auth0ID)
	return &customer, err
}

const createCustomerQuery = `
INSERT INTO customers (id, auth0_id) VALUES ($1, $2)
ON CONFLICT (auth0_id) DO UPDATE SET auth0_id = EXCLUDED.auth0_id
RETURNING *
`

func (r *Repository) AddStripeIDToCustomer(ctx context.Context, auth0ID, stripeID string) error {
	_, err := r.db.ExecContext(ctx, addStripeIDToCustomerQuery, stripeID, auth0ID)
	return err
}

const addStripeIDToCustomerQuery = "UPDATE customers SET stripe_id = $1 WHERE auth0_id = $2"

func (r *Repository) UpdateProfile(ctx context.Context, auth0ID, email, name string) error {
	_, err := r.db.ExecContext(ctx, updateProfileQuery, email, name, auth0ID)
	return err
}

const updateProfileQuery = `UPDATE customers SET email = NULLIF($1, ''), name = NULLIF($2, '') WHERE auth0_id = $3`

func (r *Repository) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	res, err := r.db.ExecContext(ctx, setVerifiedQuery, verified, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const setVerifiedQuery = "UPDATE customers SET verified = $1 WHERE id = $2"
