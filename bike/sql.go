package bike

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/rental-backend/internal/fault"
)

var (
	ErrNotFound       = fmt.Errorf("bike %w", fault.ErrNotFound)
	ErrStatusConflict = fmt.Errorf("%w: bike is not in the expected status", fault.ErrConflict)
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetBikes(ctx context.Context) ([]Bike, error) {
	var bikes []Bike
	err := r.db.SelectContext(ctx, &bikes, getBikes)
	return bikes, err
}

const getBikes = `SELECT * FROM bikes ORDER BY label`

func (r *Repository) GetBike(ctx context.Context, label string) (Bike, error) {
	return r.get(ctx, getBike, label)
}

const getBike = `SELECT * FROM bikes WHERE label = $1`

func (r *Repository) GetBikeByID(ctx context.Context, id uuid.UUID) (Bike, error) {
	return r.get(ctx, getBikeByID, id)
}

const getBikeByID = `SELECT * FROM bikes WHERE id = $1`

func (r *Repository) GetBikeByIMEI(ctx context.Context, imei string) (Bike, error) {
	return r.get(ctx, getBikeByIMEI, imei)
}

const getBikeByIMEI = `SELECT * FROM bikes WHERE imei = $1`

func (r *Repository) get(ctx context.Context, query string, arg any) (Bike, error) {
	var b Bike
	err := r.db.GetContext(ctx, &b, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from, to Status) error {
	return CompareAndSet(ctx, r.db, id, from, to)
}

// CompareAndSet moves a bike from one status to another inside whatever
// transaction ex belongs to. Other repositories use it so that every status
// change goes through the same guarded statement.
func CompareAndSet(ctx context.Context, ex sqlx.ExtContext, id uuid.UUID, from, to Status) error {
	res, err := ex.ExecContext(ctx, compareAndSet, id, from, to)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := sqlx.GetContext(ctx, ex, &exists, bikeExists, id); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusConflict
}

const compareAndSet = `UPDATE bikes SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`
const bikeExists = `SELECT EXISTS(SELECT 1 FROM bikes WHERE id = $1)`

// StatusForUpdate reads and row-locks a bike's status.
func StatusForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (Status, error) {
	var s Status
	err := tx.GetContext(ctx, &s, statusForUpdate, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return s, err
}

const statusForUpdate = `SELECT status FROM bikes WHERE id = $1 FOR UPDATE`

func (r *Repository) UpdateTelemetry(ctx context.Context, id uuid.UUID, location pgtype.Point, batteryLevel int) error {
	res, err := r.db.ExecContext(ctx, updateTelemetry, id, location, batteryLevel)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const updateTelemetry = `UPDATE bikes SET location = $2, battery_level = $3, updated_at = now() WHERE id = $1`
