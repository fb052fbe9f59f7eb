package unlock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/reservation"
	"github.com/semanticallynull/rental-backend/ride"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUnlockRequest(ctx context.Context, req Request) (Request, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Request{}, err
	}
	defer tx.Rollback()

	status, err := bike.StatusForUpdate(ctx, tx, req.BikeID)
	if err != nil {
		return Request{}, err
	}

	if req.ReservationID != nil {
		res, err := reservationForUpdate(ctx, tx, *req.ReservationID)
		if err != nil {
			return Request{}, err
		}
		if res.Status != reservation.StatusActive || res.UserID != req.UserID || res.BikeID != req.BikeID {
			return Request{}, ErrReservationInvalid
		}
		if req.CreatedAt.Add(EarlyUnlock).Before(res.StartTime) {
			return Request{}, ErrTooEarly
		}
		if status != bike.StatusReserved {
			return Request{}, ErrBikeNotAvailable
		}
	} else if status != bike.StatusAvailable {
		return Request{}, ErrBikeNotAvailable
	}

	var pending bool
	if err := tx.GetContext(ctx, &pending, hasPendingUnlock, req.BikeID); err != nil {
		return Request{}, err
	}
	if pending {
		return Request{}, ErrPending
	}
	active, err := ride.HasActiveRide(ctx, tx, req.BikeID)
	if err != nil {
		return Request{}, err
	}
	if active {
		return Request{}, ErrRideInProgress
	}

	err = tx.GetContext(ctx, &req, createUnlockRequest,
		req.ID, req.BikeID, req.UserID, req.ReservationID, req.Inspection, req.PaymentMethod, req.CreatedAt)
	if err != nil {
		return Request{}, err
	}
	return req, tx.Commit()
}

const hasPendingUnlock = `SELECT EXISTS(SELECT 1 FROM unlock_requests WHERE bike_id = $1 AND status = 'PENDING')`

const createUnlockRequest = `
INSERT INTO unlock_requests (id, bike_id, user_id, reservation_id, status, inspection, payment_method, created_at)
VALUES ($1, $2, $3, $4, 'PENDING', $5, $6, $7)
RETURNING *
`

func reservationForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (reservation.Reservation, error) {
	var res reservation.Reservation
	err := tx.GetContext(ctx, &res, getReservationForUpdate, id)
	if errors.Is(err, sql.ErrNoRows) {
		return res, reservation.ErrNotFound
	}
	return res, err
}

const getReservationForUpdate = `SELECT * FROM reservations WHERE id = $1 FOR UPDATE`

func (r *Repository) GetUnlockRequest(ctx context.Context, id uuid.UUID) (Request, error) {
	var req Request
	err := r.db.GetContext(ctx, &req, getUnlockRequest, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return req, err
}

const getUnlockRequest = `SELECT * FROM unlock_requests WHERE id = $1`

func (r *Repository) ListUnlockRequests(ctx context.Context, status Status) ([]Request, error) {
	var reqs []Request
	var err error
	if status == "" {
		err = r.db.SelectContext(ctx, &reqs, listUnlockRequests)
	} else {
		err = r.db.SelectContext(ctx, &reqs, listUnlockRequestsByStatus, status)
	}
	return reqs, err
}

const listUnlockRequests = `SELECT * FROM unlock_requests ORDER BY created_at ASC`
const listUnlockRequestsByStatus = `SELECT * FROM unlock_requests WHERE status = $1 ORDER BY created_at ASC`

func (r *Repository) ApproveUnlock(ctx context.Context, id uuid.UUID, admin, note string, at time.Time) (Request, ride.Ride, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Request{}, ride.Ride{}, err
	}
	defer tx.Rollback()

	req, err := pendingForUpdate(ctx, tx, id)
	if err != nil {
		return Request{}, ride.Ride{}, err
	}

	active, err := ride.HasActiveRide(ctx, tx, req.BikeID)
	if err != nil {
		return Request{}, ride.Ride{}, err
	}
	if active {
		return Request{}, ride.Ride{}, ErrRideInProgress
	}

	from := bike.StatusAvailable
	if req.ReservationID != nil {
		from = bike.StatusReserved
		res, err := reservationForUpdate(ctx, tx, *req.ReservationID)
		if err != nil {
			return Request{}, ride.Ride{}, err
		}
		if res.Status != reservation.StatusActive {
			return Request{}, ride.Ride{}, ErrReservationInvalid
		}
		if _, err := tx.ExecContext(ctx, consumeReservation, res.ID); err != nil {
			return Request{}, ride.Ride{}, err
		}
	}
	if err := bike.CompareAndSet(ctx, tx, req.BikeID, from, bike.StatusInUse); err != nil {
		return Request{}, ride.Ride{}, err
	}

	rd, err := ride.InsertRide(ctx, tx, ride.Ride{
		ID:              uuid.New(),
		BikeID:          req.BikeID,
		UserID:          req.UserID,
		UnlockRequestID: req.ID,
		ReservationID:   req.ReservationID,
		PaymentMethod:   req.PaymentMethod,
		StartTime:       at,
	})
	if err != nil {
		return Request{}, ride.Ride{}, err
	}

	err = tx.GetContext(ctx, &req, approveUnlock, req.ID, admin, nullable(note), rd.ID, at)
	if err != nil {
		return Request{}, ride.Ride{}, err
	}
	return req, rd, tx.Commit()
}

const consumeReservation = `UPDATE reservations SET status = 'CONSUMED' WHERE id = $1`

const approveUnlock = `
UPDATE unlock_requests SET status = 'APPROVED', resolved_by = $2, admin_note = $3, ride_id = $4, resolved_at = $5
WHERE id = $1
RETURNING *
`

func (r *Repository) RejectUnlock(ctx context.Context, id uuid.UUID, admin, reason string, at time.Time) (Request, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Request{}, err
	}
	defer tx.Rollback()

	req, err := pendingForUpdate(ctx, tx, id)
	if err != nil {
		return Request{}, err
	}
	err = tx.GetContext(ctx, &req, rejectUnlock, req.ID, admin, reason, at)
	if err != nil {
		return Request{}, err
	}
	return req, tx.Commit()
}

const rejectUnlock = `
UPDATE unlock_requests SET status = 'REJECTED', resolved_by = $2, rejection_reason = $3, resolved_at = $4
WHERE id = $1
RETURNING *
`

func (r *Repository) CancelUnlock(ctx context.Context, id, userID uuid.UUID, at time.Time) (Request, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Request{}, err
	}
	defer tx.Rollback()

	req, err := requestForUpdate(ctx, tx, id)
	if err != nil {
		return Request{}, err
	}
	if req.UserID != userID {
		return Request{}, ErrNotAuthorized
	}
	if req.Status != StatusPending {
		return Request{}, ErrAlreadyResolved
	}
	err = tx.GetContext(ctx, &req, closeUnlock, req.ID, StatusCancelled, at)
	if err != nil {
		return Request{}, err
	}
	return req, tx.Commit()
}

func (r *Repository) ExpireUnlocks(ctx context.Context, cutoff time.Time) ([]Request, error) {
	var reqs []Request
	err := r.db.SelectContext(ctx, &reqs, expireUnlocks, cutoff)
	return reqs, err
}

const closeUnlock = `
UPDATE unlock_requests SET status = $2, resolved_at = $3
WHERE id = $1
RETURNING *
`

const expireUnlocks = `
UPDATE unlock_requests SET status = 'EXPIRED', resolved_at = now()
WHERE id IN (
	SELECT id FROM unlock_requests
	WHERE status = 'PENDING' AND created_at < $1
	FOR UPDATE SKIP LOCKED
)
RETURNING *
`

func requestForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (Request, error) {
	var req Request
	err := tx.GetContext(ctx, &req, getUnlockRequestForUpdate, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return req, err
}

func pendingForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (Request, error) {
	req, err := requestForUpdate(ctx, tx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending {
		return Request{}, ErrAlreadyResolved
	}
	return req, nil
}

const getUnlockRequestForUpdate = `SELECT * FROM unlock_requests WHERE id = $1 FOR UPDATE`

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
