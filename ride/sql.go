package ride

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
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

func (r *Repository) GetRide(ctx context.Context, id uuid.UUID) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, getRide, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNotFound
	}
	return ride, err
}

const getRide = `SELECT * FROM rides WHERE id = $1`

func (r *Repository) ActiveRideForBike(ctx context.Context, bikeID uuid.UUID) (Ride, error) {
	return r.active(ctx, activeRideForBike, bikeID)
}

const activeRideForBike = `SELECT * FROM rides WHERE bike_id = $1 AND status = 'ACTIVE'`

func (r *Repository) ActiveRideForUser(ctx context.Context, userID uuid.UUID) (Ride, error) {
	return r.active(ctx, activeRideForUser, userID)
}

const activeRideForUser = `SELECT * FROM rides WHERE user_id = $1 AND status = 'ACTIVE' ORDER BY start_time DESC LIMIT 1`

func (r *Repository) active(ctx context.Context, query string, id uuid.UUID) (Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNoActiveRide
	}
	return ride, err
}

func (r *Repository) ListRides(ctx context.Context, userID uuid.UUID) ([]Ride, error) {
	var rides []Ride
	err := r.db.SelectContext(ctx, &rides, listRides, userID)
	return rides, err
}

const listRides = `SELECT * FROM rides WHERE user_id = $1 ORDER BY start_time DESC`

func (r *Repository) ListActiveRides(ctx context.Context, startedBefore time.Time) ([]Ride, error) {
	var rides []Ride
	err := r.db.SelectContext(ctx, &rides, listActiveRides, startedBefore)
	return rides, err
}

const listActiveRides = `SELECT * FROM rides WHERE status = 'ACTIVE' AND start_time < $1 ORDER BY start_time ASC`

func (r *Repository) AccrueDistance(ctx context.Context, id uuid.UUID, metres float64, position pgtype.Point) error {
	res, err := r.db.ExecContext(ctx, accrueDistance, id, metres, position)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoActiveRide
	}
	return nil
}

const accrueDistance = `
UPDATE rides SET distance = distance + $2, last_position = $3
WHERE id = $1 AND status = 'ACTIVE'
`

// HasActiveRide reports, inside tx, whether the bike is mid-ride.
func HasActiveRide(ctx context.Context, tx *sqlx.Tx, bikeID uuid.UUID) (bool, error) {
	var active bool
	err := tx.GetContext(ctx, &active, hasActiveRide, bikeID)
	return active, err
}

const hasActiveRide = `SELECT EXISTS(SELECT 1 FROM rides WHERE bike_id = $1 AND status = 'ACTIVE')`

// InsertRide creates a ride inside tx.
func InsertRide(ctx context.Context, tx *sqlx.Tx, ride Ride) (Ride, error) {
	err := tx.GetContext(ctx, &ride, insertRide,
		ride.ID, ride.BikeID, ride.UserID, ride.UnlockRequestID, ride.ReservationID, ride.PaymentMethod, ride.StartTime)
	return ride, err
}

const insertRide = `
INSERT INTO rides (id, bike_id, user_id, unlock_request_id, reservation_id, payment_method, start_time, distance, duration, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, 'ACTIVE')
RETURNING *
`

// CloseRide completes an ACTIVE ride inside tx.
func CloseRide(ctx context.Context, tx *sqlx.Tx, ride Ride) (Ride, error) {
	err := tx.GetContext(ctx, &ride, closeRide,
		ride.ID, ride.EndTime, ride.Duration, ride.Cost, ride.Charged, ride.Covered)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNoActiveRide
	}
	return ride, err
}

const closeRide = `
UPDATE rides SET status = 'COMPLETED', end_time = $2, duration = $3, cost = $4, charged = $5, covered = $6
WHERE id = $1 AND status = 'ACTIVE'
RETURNING *
`

// RideForUpdate row-locks a ride inside tx.
func RideForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (Ride, error) {
	var ride Ride
	err := tx.GetContext(ctx, &ride, rideForUpdate, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNotFound
	}
	return ride, err
}

const rideForUpdate = `SELECT * FROM rides WHERE id = $1 FOR UPDATE`
