// Package lock mediates the end of a ride. Approval closes the ride, settles
// its cost against the rider's wallet and frees the bike in one atomic unit.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/semanticallynull/rental-backend/inspection"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/wallet"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

type Request struct {
	ID              uuid.UUID          `db:"id"`
	BikeID          uuid.UUID          `db:"bike_id"`
	UserID          uuid.UUID          `db:"user_id"`
	RideID          uuid.UUID          `db:"ride_id"`
	Status          Status             `db:"status"`
	Location        pgtype.Point       `db:"location"`
	Inspection      inspection.Payload `db:"inspection"`
	AdminNote       *string            `db:"admin_note"`
	RejectionReason *string            `db:"rejection_reason"`
	ResolvedBy      *string            `db:"resolved_by"`
	CreatedAt       time.Time          `db:"created_at"`
	ResolvedAt      *time.Time         `db:"resolved_at"`
}

var (
	ErrNotFound        = fmt.Errorf("lock request %w", fault.ErrNotFound)
	ErrPending         = fmt.Errorf("%w: ride already has a pending lock request", fault.ErrConflict)
	ErrAlreadyResolved = fmt.Errorf("lock request %w", fault.ErrAlreadyResolved)
	ErrNotAuthorized   = fmt.Errorf("%w: ride belongs to another rider", fault.ErrForbidden)
	ErrNoActiveRide    = ride.ErrNoActiveRide
)

// Approval carries everything the store needs to commit a settlement. Ride
// holds the closing figures; Charge is the wallet row to append.
type Approval struct {
	RequestID uuid.UUID
	AdminID   string
	Note      string
	Ride      ride.Ride
	Charge    wallet.Transaction
	Floor     int64
	At        time.Time
}

// Store persists lock requests. ApproveLock must write the wallet charge,
// close the ride, approve the request and release the bike together or not
// at all.
type Store interface {
	CreateLockRequest(ctx context.Context, req Request) (Request, error)
	GetLockRequest(ctx context.Context, id uuid.UUID) (Request, error)
	ListLockRequests(ctx context.Context, status Status) ([]Request, error)
	ApproveLock(ctx context.Context, a Approval) (Request, ride.Ride, error)
	RejectLock(ctx context.Context, id uuid.UUID, admin, reason string, at time.Time) (Request, error)
	CancelLock(ctx context.Context, id, userID uuid.UUID, at time.Time) (Request, error)
	ExpireLocks(ctx context.Context, cutoff time.Time) ([]Request, error)
}
