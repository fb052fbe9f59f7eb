// Package incident records problems riders report against bikes. Critical
// incidents pull the bike out of circulation immediately.
package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/reservation"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Type string

const (
	TypeBrakeFailure   Type = "brake_failure"
	TypeTheft          Type = "theft"
	TypeElectronics    Type = "electronics"
	TypePhysicalDamage Type = "physical_damage"
	TypeFlatTire       Type = "flat_tire"
	TypeOther          Type = "other"
)

// DefaultSeverity is used when a report leaves severity blank.
func (t Type) DefaultSeverity() Severity {
	switch t {
	case TypeBrakeFailure, TypeTheft, TypeElectronics, TypePhysicalDamage:
		return SeverityCritical
	case TypeFlatTire:
		return SeverityMedium
	}
	return SeverityLow
}

func (t Type) Valid() bool {
	switch t {
	case TypeBrakeFailure, TypeTheft, TypeElectronics, TypePhysicalDamage, TypeFlatTire, TypeOther:
		return true
	}
	return false
}

type Incident struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	BikeID      uuid.UUID  `db:"bike_id" json:"bikeId"`
	ReporterID  uuid.UUID  `db:"reporter_id" json:"reporterId"`
	RideID      *uuid.UUID `db:"ride_id" json:"rideId,omitempty"`
	Type        Type       `db:"type" json:"type"`
	Severity    Severity   `db:"severity" json:"severity"`
	Description string     `db:"description" json:"description"`
	// PreviousStatus is the bike's status before an escalation moved it to
	// MAINTENANCE.
	PreviousStatus *bike.Status `db:"previous_status" json:"previousStatus,omitempty"`
	Escalated      bool         `db:"escalated" json:"escalated"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
}

var (
	ErrRideInProgress = fmt.Errorf("%w: bike has an active ride", fault.ErrConflict)
	ErrNotMaintenance = fmt.Errorf("%w: bike is not under maintenance", fault.ErrConflict)
)

// Escalation reports what an escalated incident did besides the bike status.
type Escalation struct {
	// CancelledReservation is the bike's ACTIVE reservation, cancelled
	// because the bike was withdrawn.
	CancelledReservation *reservation.Reservation
	// ActiveRide is left running; the rider may still lock.
	ActiveRide *uuid.UUID
}

// Store persists incidents. RecordIncident with escalate set moves the bike
// to MAINTENANCE from any status in the same atomic unit as the insert.
type Store interface {
	RecordIncident(ctx context.Context, inc Incident, escalate bool) (Incident, Escalation, error)
	ListIncidents(ctx context.Context, bikeID uuid.UUID) ([]Incident, error)
	// ClearMaintenance returns a MAINTENANCE bike to AVAILABLE unless a ride
	// on it is still ACTIVE.
	ClearMaintenance(ctx context.Context, bikeID uuid.UUID) error
}
