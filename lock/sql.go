package lock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/wallet"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateLockRequest(ctx context.Context, req Request) (Request, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Request{}, err
	}
	defer tx.Rollback()

	rd, err := ride.RideForUpdate(ctx, tx, req.RideID)
	if errors.Is(err, ride.ErrNotFound) {
		return Request{}, ErrNoActiveRide
	}
	if err != nil {
		return Request{}, err
	}
	if rd.Status != ride.StatusActive {
		return Request{}, ErrNoActiveRide
	}
	if rd.UserID != req.UserID {
		return Request{}, ErrNotAuthorized
	}

	var pending bool
	if err := tx.GetContext(ctx, &pending, hasPendingLock, rd.ID); err != nil {
		return Request{}, err
	}
	if pending {
		return Request{}, ErrPending
	}

	err = tx.GetContext(ctx, &req, createLockRequest,
		req.ID, rd.BikeID, req.UserID, rd.ID, req.Location, req.Inspection, req.CreatedAt)
	if err != nil {
		return Request{}, err
	}
	return req, tx.Commit()
}

const hasPendingLock = `SELECT EXISTS(SELECT 1 FROM lock_requests WHERE ride_id = $1 AND status = 'PENDING')`

const createLockRequest = `
INSERT INTO lock_requests (id, bike_id, user_id, ride_id, status, location, inspection, created_at)
VALUES ($1, $2, $3, $4, 'PENDING', $5, $6, $7)
RETURNING *
`

func (r *Repository) GetLockRequest(ctx context.Context, id uuid.UUID) (Request, error) {
	var req Request
	err := r.db.GetContext(ctx, &req, getLockRequest, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return req, err
}

const getLockRequest = `SELECT * FROM lock_requests WHERE id = $1`

func (r *Repository) ListLockRequests(ctx context.Context, status Status) ([]Request, error) {
	var reqs []Request
	var err error
	if status == "" {
		err = r.db.SelectContext(ctx, &reqs, listLockRequests)
	} else {
		err = r.db.SelectContext(ctx, &reqs, listLockRequestsByStatus, status)
	}
	return reqs, err
}

const listLockRequests = `SELECT * FROM lock_requests ORDER BY created_at ASC`
const listLockRequestsByStatus = `SELECT * FROM lock_requests WHERE status = $1 ORDER BY created_at ASC`

func (r *Repository) ApproveLock(ctx context.Context, a Approval) (Request, ride.Ride, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Request{}, ride.Ride{}, err
	}
	defer tx.Rollback()

	req, err := pendingForUpdate(ctx, tx, a.RequestID)
	if err != nil {
		return Request{}, ride.Ride{}, err
	}
	rd, err := ride.RideForUpdate(ctx, tx, req.RideID)
	if err != nil {
		return Request{}, ride.Ride{}, err
	}
	if rd.Status != ride.StatusActive || rd.ID != a.Ride.ID {
		return Request{}, ride.Ride{}, ErrNoActiveRide
	}

	if _, err := wallet.AppendChargeTx(ctx, tx, a.Charge, a.Floor); err != nil {
		return Request{}, ride.Ride{}, err
	}
	closed, err := ride.CloseRide(ctx, tx, a.Ride)
	if err != nil {
		return Request{}, ride.Ride{}, err
	}

	err = tx.GetContext(ctx, &req, approveLock, req.ID, a.AdminID, nullable(a.Note), a.At)
	if err != nil {
		return Request{}, ride.Ride{}, err
	}

	// A bike escalated to MAINTENANCE mid-ride stays there.
	status, err := bike.StatusForUpdate(ctx, tx, req.BikeID)
	if err != nil {
		return Request{}, ride.Ride{}, err
	}
	if status == bike.StatusInUse {
		if err := bike.CompareAndSet(ctx, tx, req.BikeID, bike.StatusInUse, bike.StatusAvailable); err != nil {
			return Request{}, ride.Ride{}, err
		}
	}

	return req, closed, tx.Commit()
}

const approveLock = `
UPDATE lock_requests SET status = 'APPROVED', resolved_by = $2, admin_note = $3, resolved_at = $4
WHERE id = $1
RETURNING *
`

func (r *Repository) RejectLock(ctx context.Context, id uuid.UUID, admin, reason string, at time.Time) (Request, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Request{}, err
	}
	defer tx.Rollback()

	req, err := pendingForUpdate(ctx, tx, id)
	if err != nil {
		return Request{}, err
	}
	err = tx.GetContext(ctx, &req, rejectLock, req.ID, admin, reason, at)
	if err != nil {
		return Request{}, err
	}
	return req, tx.Commit()
}

const rejectLock = `
UPDATE lock_requests SET status = 'REJECTED', resolved_by = $2, rejection_reason = $3, resolved_at = $4
WHERE id = $1
RETURNING *
`

func (r *Repository) CancelLock(ctx context.Context, id, userID uuid.UUID, at time.Time) (Request, error) {
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
	err = tx.GetContext(ctx, &req, cancelLock, req.ID, at)
	if err != nil {
		return Request{}, err
	}
	return req, tx.Commit()
}

const cancelLock = `
UPDATE lock_requests SET status = 'CANCELLED', resolved_at = $2
WHERE id = $1
RETURNING *
`

func (r *Repository) ExpireLocks(ctx context.Context, cutoff time.Time) ([]Request, error) {
	var reqs []Request
	err := r.db.SelectContext(ctx, &reqs, expireLocks, cutoff)
	return reqs, err
}

const expireLocks = `
UPDATE lock_requests SET status = 'EXPIRED', resolved_at = now()
WHERE id IN (
	SELECT id FROM lock_requests
	WHERE status = 'PENDING' AND created_at < $1
	FOR UPDATE SKIP LOCKED
)
RETURNING *
`

func requestForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (Request, error) {
	var req Request
	err := tx.GetContext(ctx, &req, getLockRequestForUpdate, id)
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

const getLockRequestForUpdate = `SELECT * FROM lock_requests WHERE id = $1 FOR UPDATE`

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
