// Package subscription reads rider subscriptions. Subscriptions are sold and
// renewed by the billing service; this module never writes them.
package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

type Subscription struct {
	ID          uuid.UUID `db:"id" yaml:"id"`
	UserID      uuid.UUID `db:"user_id" yaml:"userId"`
	PlanName    string    `db:"plan_name" yaml:"planName"`
	PackageType string    `db:"package_type" yaml:"packageType"`
	StartDate   time.Time `db:"start_date" yaml:"startDate"`
	EndDate     time.Time `db:"end_date" yaml:"endDate"`
	Status      Status    `db:"status" yaml:"status"`
}

// ErrMultipleActive means the billing service let a rider hold two ACTIVE
// subscriptions at once. Settlement refuses to guess which one applies.
var ErrMultipleActive = errors.New("more than one active subscription")

type Store interface {
	// ActiveForUser returns the subscriptions marked ACTIVE for a user.
	ActiveForUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error)
}

// Covers reports whether the subscription is ACTIVE and its date range
// contains t.
func (s Subscription) Covers(t time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	return !t.Before(s.StartDate) && t.Before(s.EndDate)
}

// Resolve picks the subscription applicable at t, or nil when none is.
func Resolve(ctx context.Context, store Store, userID uuid.UUID, at time.Time) (*Subscription, error) {
	subs, err := store.ActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var active []Subscription
	for _, s := range subs {
		if s.Status == StatusActive {
			active = append(active, s)
		}
	}
	if len(active) > 1 {
		return nil, ErrMultipleActive
	}
	if len(active) == 0 || !active[0].Covers(at) {
		return nil, nil
	}
	return &active[0], nil
}
