// Package bike is the registry of rentable bikes and their occupancy status.
package bike

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusReserved    Status = "RESERVED"
	StatusInUse       Status = "IN_USE"
	StatusMaintenance Status = "MAINTENANCE"
	StatusUnavailable Status = "UNAVAILABLE"
)

// Bike represents a bike which can be reserved, unlocked and ridden.
type Bike struct {
	// ID is an internal identifier for a bike
	ID uuid.UUID `db:"id"`
	// Label is a physical label which is on the bike. It should be scannable (e.g. "CARGO-123")
	// in QR Code or Code-128 format.
	Label string `db:"label"`
	// IMEI is the identifier of the SIM card used in the bike. This is what is transmitted by the lock
	IMEI string `db:"imei"`

	Status       Status       `db:"status"`
	BatteryLevel int          `db:"battery_level"`
	Location     pgtype.Point `db:"location"`

	PricingPlanID uuid.UUID `db:"pricing_plan_id"`

	// DisplayName is a user-friendly name for the bike type (e.g., "Bergamont Cargoville LJ")
	DisplayName *string   `db:"display_name"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Registry is the single source of truth for bike status and position.
// Transition is a compare-and-set: it fails with ErrStatusConflict when the
// bike is not currently in the expected status.
type Registry interface {
	GetBikes(ctx context.Context) ([]Bike, error)
	GetBike(ctx context.Context, label string) (Bike, error)
	GetBikeByID(ctx context.Context, id uuid.UUID) (Bike, error)
	GetBikeByIMEI(ctx context.Context, imei string) (Bike, error)
	Transition(ctx context.Context, id uuid.UUID, from, to Status) error
	UpdateTelemetry(ctx context.Context, id uuid.UUID, location pgtype.Point, batteryLevel int) error
}

func Point(lat, lng float64) pgtype.Point {
	return pgtype.Point{P: pgtype.Vec2{X: lat, Y: lng}, Valid: true}
}
