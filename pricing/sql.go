package pricing

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
	return &Repository{db: db}
}

func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID) (Plan, error) {
	var p Plan
	err := r.db.GetContext(ctx, &p, getPlan, id)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

const getPlan = `SELECT * FROM pricing_plans WHERE id = $1`
