// Package unlock mediates a rider's request to start riding. Every request
// waits for an administrator; approval is the only way a Ride comes into
// existence.
package unlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/inspection"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/ride"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	// StatusCancelled is set when the rider withdraws a pending request.
	StatusCancelled Status = "CANCELLED"
	// StatusExpired is set when no admin decided within the pending TTL.
	StatusExpired Status = "EXPIRED"
)

type Request struct {
	ID              uuid.UUID          `db:"id"`
	BikeID          uuid.UUID          `db:"bike_id"`
	UserID          uuid.UUID          `db:"user_id"`
	ReservationID   *uuid.UUID         `db:"reservation_id"`
	Status          Status             `db:"status"`
	Inspection      inspection.Payload `db:"inspection"`
	PaymentMethod   string             `db:"payment_method"`
	AdminNote       *string            `db:"admin_note"`
	RejectionReason *string            `db:"rejection_reason"`
	ResolvedBy      *string            `db:"resolved_by"`
	RideID          *uuid.UUID         `db:"ride_id"`
	CreatedAt       time.Time          `db:"created_at"`
	ResolvedAt      *time.Time         `db:"resolved_at"`
}

// EarlyUnlock is how long before a reservation's start its holder may ask to
// unlock.
const EarlyUnlock = 15 * time.Minute

var (
	ErrNotFound           = fmt.Errorf("unlock request %w", fault.ErrNotFound)
	ErrPending            = fmt.Errorf("%w: bike already has a pending unlock request", fault.ErrConflict)
	ErrAlreadyResolved    = fmt.Errorf("unlock request %w", fault.ErrAlreadyResolved)
	ErrBikeNotAvailable   = fmt.Errorf("%w: bike cannot be unlocked in its current status", fault.ErrConflict)
	ErrReservationInvalid = fmt.Errorf("%w: reservation is not active for this bike and rider", fault.ErrConflict)
	ErrTooEarly           = fmt.Errorf("%w: reservation has not started yet", fault.ErrConflict)
	ErrNotAuthorized      = fmt.Errorf("%w: unlock request belongs to another rider", fault.ErrForbidden)
	ErrRideInProgress     = ride.ErrRideInProgress
)

// Store persists unlock requests. ApproveUnlock creates the ride, consumes the
// reservation and moves the bike to IN_USE as one atomic unit.
type Store interface {
	CreateUnlockRequest(ctx context.Context, req Request) (Request, error)
	GetUnlockRequest(ctx context.Context, id uuid.UUID) (Request, error)
	ListUnlockRequests(ctx context.Context, status Status) ([]Request, error)
	ApproveUnlock(ctx context.Context, id uuid.UUID, admin, note string, at time.Time) (Request, ride.Ride, error)
	RejectUnlock(ctx context.Context, id uuid.UUID, admin, reason string, at time.Time) (Request, error)
	CancelUnlock(ctx context.Context, id, userID uuid.UUID, at time.Time) (Request, error)
	// ExpireUnlocks marks PENDING requests created before cutoff as EXPIRED.
	ExpireUnlocks(ctx context.Context, cutoff time.Time) ([]Request, error)
}

type Eligibility interface {
	CheckEligible(ctx context.Context, userID uuid.UUID) error
}
