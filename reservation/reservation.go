// Package reservation books a bike ahead of use. A bike has at most one
// ACTIVE reservation, and holding one keeps the bike RESERVED.
package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/pricing"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusConsumed  Status = "CONSUMED"
	StatusCancelled Status = "CANCELLED"
)

type Reservation struct {
	ID           uuid.UUID       `db:"id"`
	BikeID       uuid.UUID       `db:"bike_id"`
	UserID       uuid.UUID       `db:"user_id"`
	StartTime    time.Time       `db:"start_time"`
	EndTime      time.Time       `db:"end_time"`
	PackageType  pricing.Package `db:"package_type"`
	Status       Status          `db:"status"`
	QuotedCost   int64           `db:"quoted_cost"`
	CancelReason *string         `db:"cancel_reason"`
	CreatedAt    time.Time       `db:"created_at"`
	CancelledAt  *time.Time      `db:"cancelled_at"`
}

var (
	ErrNotFound         = fmt.Errorf("reservation %w", fault.ErrNotFound)
	ErrBikeNotAvailable = fmt.Errorf("%w: bike is not available for reservation", fault.ErrConflict)
	ErrAlreadyReserved  = fmt.Errorf("%w: bike already has an open reservation", fault.ErrConflict)
	ErrCannotCancel     = fmt.Errorf("%w: reservation can no longer be cancelled", fault.ErrConflict)
	ErrNotAuthorized    = fmt.Errorf("%w: reservation belongs to another rider", fault.ErrForbidden)
)

// Store persists reservations. Create and Cancel move the bike's status in
// the same atomic unit as the reservation row.
type Store interface {
	CreateReservation(ctx context.Context, r Reservation) (Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error)
	CancelReservation(ctx context.Context, id, userID uuid.UUID, reason string) (Reservation, error)
	ListReservations(ctx context.Context, userID uuid.UUID) ([]Reservation, error)
	// ExpireReservations cancels ACTIVE reservations that ended before cutoff
	// and have no pending unlock request.
	ExpireReservations(ctx context.Context, cutoff time.Time) ([]Reservation, error)
}

// Eligibility is the identity and deposit gate consulted before a rider may
// hold a bike.
type Eligibility interface {
	CheckEligible(ctx context.Context, userID uuid.UUID) error
}
