package incident

import (
	"context"

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

func (r *Repository) RecordIncident(ctx context.Context, inc Incident, escalate bool) (Incident, Escalation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Incident{}, Escalation{}, err
	}
	defer tx.Rollback()

	var esc Escalation
	status, err := bike.StatusForUpdate(ctx, tx, inc.BikeID)
	if err != nil {
		return Incident{}, Escalation{}, err
	}

	var rideIDs []uuid.UUID
	if err := tx.SelectContext(ctx, &rideIDs, activeRideOnBike, inc.BikeID); err != nil {
		return Incident{}, Escalation{}, err
	}
	if len(rideIDs) > 0 {
		inc.RideID = &rideIDs[0]
	}

	if escalate {
		inc.Escalated = true
		inc.PreviousStatus = &status
		if _, err := tx.ExecContext(ctx, forceMaintenance, inc.BikeID); err != nil {
			return Incident{}, Escalation{}, err
		}

		var open []reservation.Reservation
		if err := tx.SelectContext(ctx, &open, withdrawReservation, inc.BikeID, WithdrawnReason); err != nil {
			return Incident{}, Escalation{}, err
		}
		if len(open) > 0 {
			esc.CancelledReservation = &open[0]
		}
		esc.ActiveRide = inc.RideID
	}

	err = tx.GetContext(ctx, &inc, insertIncident,
		inc.ID, inc.BikeID, inc.ReporterID, inc.RideID, inc.Type, inc.Severity, inc.Description,
		inc.PreviousStatus, inc.Escalated, inc.CreatedAt)
	if err != nil {
		return Incident{}, Escalation{}, err
	}
	return inc, esc, tx.Commit()
}

const activeRideOnBike = `SELECT id FROM rides WHERE bike_id = $1 AND status = 'ACTIVE'`

const forceMaintenance = `UPDATE bikes SET status = 'MAINTENANCE', updated_at = now() WHERE id = $1`

const withdrawReservation = `
UPDATE reservations SET status = 'CANCELLED', cancel_reason = $2, cancelled_at = now()
WHERE bike_id = $1 AND status = 'ACTIVE'
RETURNING *
`

const insertIncident = `
INSERT INTO incidents (id, bike_id, reporter_id, ride_id, type, severity, description, previous_status, escalated, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING *
`

func (r *Repository) ListIncidents(ctx context.Context, bikeID uuid.UUID) ([]Incident, error) {
	var incs []Incident
	err := r.db.SelectContext(ctx, &incs, listIncidents, bikeID)
	return incs, err
}

const listIncidents = `SELECT * FROM incidents WHERE bike_id = $1 ORDER BY created_at DESC`

func (r *Repository) ClearMaintenance(ctx context.Context, bikeID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status, err := bike.StatusForUpdate(ctx, tx, bikeID)
	if err != nil {
		return err
	}
	if status != bike.StatusMaintenance {
		return ErrNotMaintenance
	}
	active, err := ride.HasActiveRide(ctx, tx, bikeID)
	if err != nil {
		return err
	}
	if active {
		return ErrRideInProgress
	}
	if err := bike.CompareAndSet(ctx, tx, bikeID, bike.StatusMaintenance, bike.StatusAvailable); err != nil {
		return err
	}
	return tx.Commit()
}
