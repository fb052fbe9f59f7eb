package subscription

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ActiveForUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	var subs []Subscription
	err := r.db.SelectContext(ctx, &subs, activeForUser, userID)
	return subs, err
}

const activeForUser = `SELECT * FROM subscriptions WHERE user_id = $1 AND status = 'ACTIVE'`
