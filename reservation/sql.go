package reservation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/rental-backend/bike"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateReservation inserts a reservation and flips the bike to RESERVED.
func (r *Repository) CreateReservation(ctx context.Context, res Reservation) (Reservation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Reservation{}, err
	}
	defer tx.Rollback()

	status, err := bike.StatusForUpdate(ctx, tx, res.BikeID)
	if err != nil {
		return Reservation{}, err
	}
	if status != bike.StatusAvailable {
		return Reservation{}, ErrBikeNotAvailable
	}

	var open bool
	if err := tx.GetContext(ctx, &open, hasOpenReservation, res.BikeID); err != nil {
		return Reservation{}, err
	}
	if open {
		return Reservation{}, ErrAlreadyReserved
	}

	// A direct unlock request holds the bike while it waits for an admin.
	var pending bool
	if err := tx.GetContext(ctx, &pending, hasPendingUnlock, res.BikeID); err != nil {
		return Reservation{}, err
	}
	if pending {
		return Reservation{}, ErrBikeNotAvailable
	}

	if err := bike.CompareAndSet(ctx, tx, res.BikeID, bike.StatusAvailable, bike.StatusReserved); err != nil {
		return Reservation{}, err
	}

	err = tx.GetContext(ctx, &res, createReservation,
		res.ID, res.BikeID, res.UserID, res.StartTime, res.EndTime, res.PackageType, res.QuotedCost, res.CreatedAt)
	if err != nil {
		return Reservation{}, err
	}

	return res, tx.Commit()
}

const hasOpenReservation = `SELECT EXISTS(SELECT 1 FROM reservations WHERE bike_id = $1 AND status = 'ACTIVE')`

const hasPendingUnlock = `SELECT EXISTS(SELECT 1 FROM unlock_requests WHERE bike_id = $1 AND status = 'PENDING')`

const createReservation = `
INSERT INTO reservations (id, bike_id, user_id, start_time, end_time, package_type, status, quoted_cost, created_at)
VALUES ($1, $2, $3, $4, $5, $6, 'ACTIVE', $7, $8)
RETURNING *
`

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	var res Reservation
	err := r.db.GetContext(ctx, &res, getReservation, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	return res, err
}

const getReservation = `SELECT * FROM reservations WHERE id = $1`

// CancelReservation cancels an ACTIVE reservation owned by userID and returns
// the bike to AVAILABLE if it is still RESERVED.
func (r *Repository) CancelReservation(ctx context.Context, id, userID uuid.UUID, reason string) (Reservation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Reservation{}, err
	}
	defer tx.Rollback()

	var res Reservation
	err = tx.GetContext(ctx, &res, getReservationForUpdate, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	if err != nil {
		return Reservation{}, err
	}

	if res.UserID != userID {
		return Reservation{}, ErrNotAuthorized
	}
	if res.Status != StatusActive {
		return Reservation{}, ErrCannotCancel
	}

	var pending bool
	if err := tx.GetContext(ctx, &pending, hasPendingUnlockForReservation, id); err != nil {
		return Reservation{}, err
	}
	if pending {
		return Reservation{}, ErrCannotCancel
	}

	res, err = cancelTx(ctx, tx, res, reason)
	if err != nil {
		return Reservation{}, err
	}
	return res, tx.Commit()
}

const getReservationForUpdate = `SELECT * FROM reservations WHERE id = $1 FOR UPDATE`

const hasPendingUnlockForReservation = `SELECT EXISTS(SELECT 1 FROM unlock_requests WHERE reservation_id = $1 AND status = 'PENDING')`

func cancelTx(ctx context.Context, tx *sqlx.Tx, res Reservation, reason string) (Reservation, error) {
	err := tx.GetContext(ctx, &res, cancelReservation, res.ID, reason)
	if err != nil {
		return Reservation{}, err
	}

	status, err := bike.StatusForUpdate(ctx, tx, res.BikeID)
	if err != nil {
		return Reservation{}, err
	}
	if status == bike.StatusReserved {
		if err := bike.CompareAndSet(ctx, tx, res.BikeID, bike.StatusReserved, bike.StatusAvailable); err != nil {
			return Reservation{}, err
		}
	}
	return res, nil
}

const cancelReservation = `
UPDATE reservations SET status = 'CANCELLED', cancel_reason = $2, cancelled_at = now()
WHERE id = $1
RETURNING *
`

func (r *Repository) ListReservations(ctx context.Context, userID uuid.UUID) ([]Reservation, error) {
	var res []Reservation
	err := r.db.SelectContext(ctx, &res, listReservations, userID)
	return res, err
}

const listReservations = `SELECT * FROM reservations WHERE user_id = $1 ORDER BY start_time ASC`

func (r *Repository) ExpireReservations(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var overdue []Reservation
	if err := tx.SelectContext(ctx, &overdue, overdueReservations, cutoff); err != nil {
		return nil, err
	}

	expired := make([]Reservation, 0, len(overdue))
	for _, res := range overdue {
		res, err = cancelTx(ctx, tx, res, "expired")
		if err != nil {
			return nil, err
		}
		expired = append(expired, res)
	}
	return expired, tx.Commit()
}

const overdueReservations = `
SELECT * FROM reservations r
WHERE r.status = 'ACTIVE'
  AND r.end_time < $1
  AND NOT EXISTS (SELECT 1 FROM unlock_requests u WHERE u.reservation_id = r.id AND u.status = 'PENDING')
FOR UPDATE SKIP LOCKED
`
