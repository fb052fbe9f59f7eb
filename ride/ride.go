// Package ride owns metered usage sessions, from unlock approval until lock
// approval.
package ride

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/semanticallynull/rental-backend/internal/fault"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

type Ride struct {
	ID              uuid.UUID  `db:"id"`
	BikeID          uuid.UUID  `db:"bike_id"`
	UserID          uuid.UUID  `db:"user_id"`
	UnlockRequestID uuid.UUID  `db:"unlock_request_id"`
	ReservationID   *uuid.UUID `db:"reservation_id"`
	PaymentMethod   string     `db:"payment_method"`
	StartTime       time.Time  `db:"start_time"`
	EndTime         *time.Time `db:"end_time"`
	// Distance is in metres, accrued from the location feed.
	Distance     float64      `db:"distance"`
	LastPosition pgtype.Point `db:"last_position"`
	// Duration is in seconds and only meaningful once the ride is closed.
	Duration int64  `db:"duration"`
	Cost     *int64 `db:"cost"`
	Charged  *int64 `db:"charged"`
	Covered  bool   `db:"covered"`
	Status   Status `db:"status"`
}

var (
	ErrNotFound       = fmt.Errorf("ride %w", fault.ErrNotFound)
	ErrNoActiveRide   = fmt.Errorf("active ride %w", fault.ErrNotFound)
	ErrRideInProgress = fmt.Errorf("%w: bike already has an active ride", fault.ErrConflict)
)

// Store reads rides and accrues distance. Rides are created and closed only
// by the unlock and lock gates' stores.
type Store interface {
	GetRide(ctx context.Context, id uuid.UUID) (Ride, error)
	ActiveRideForBike(ctx context.Context, bikeID uuid.UUID) (Ride, error)
	ActiveRideForUser(ctx context.Context, userID uuid.UUID) (Ride, error)
	ListRides(ctx context.Context, userID uuid.UUID) ([]Ride, error)
	// ListActiveRides returns ACTIVE rides started before the given time.
	ListActiveRides(ctx context.Context, startedBefore time.Time) ([]Ride, error)
	AccrueDistance(ctx context.Context, id uuid.UUID, metres float64, position pgtype.Point) error
}
