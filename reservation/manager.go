package reservation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/internal/metrics"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/pricing"
)

var tracer = otel.Tracer("github.com/semanticallynull/rental-backend/reservation")

// maxLeadTime bounds how far ahead a reservation may start.
const maxLeadTime = 30 * 24 * time.Hour

type Manager struct {
	store       Store
	bikes       bike.Registry
	plans       pricing.Store
	eligibility Eligibility
	notifier    notify.Notifier
	logger      *slog.Logger
	now         func() time.Time
}

func NewManager(store Store, bikes bike.Registry, plans pricing.Store, eligibility Eligibility,
	notifier notify.Notifier, logger *slog.Logger) *Manager {
	return &Manager{
		store:       store,
		bikes:       bikes,
		plans:       plans,
		eligibility: eligibility,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

type ReserveParams struct {
	BikeID      uuid.UUID
	UserID      uuid.UUID
	PackageType pricing.Package
	// StartTime defaults to now when zero.
	StartTime time.Time
}

func (m *Manager) Reserve(ctx context.Context, p ReserveParams) (Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservation.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("bike.id", p.BikeID.String()))

	now := m.now()
	if p.BikeID == uuid.Nil {
		return Reservation{}, fault.Invalid("bikeId", "is required")
	}
	window, ok := p.PackageType.Window()
	if !ok {
		return Reservation{}, fault.Invalid("packageType", "must be one of hourly, daily, weekly, monthly")
	}
	if p.StartTime.IsZero() {
		p.StartTime = now
	}
	if p.StartTime.Before(now.Add(-time.Minute)) {
		return Reservation{}, fault.Invalid("startTime", "must not be in the past")
	}
	if p.StartTime.After(now.Add(maxLeadTime)) {
		return Reservation{}, fault.Invalid("startTime", "is too far in the future")
	}

	if err := m.eligibility.CheckEligible(ctx, p.UserID); err != nil {
		return Reservation{}, err
	}

	b, err := m.bikes.GetBikeByID(ctx, p.BikeID)
	if err != nil {
		return Reservation{}, err
	}
	if b.Status != bike.StatusAvailable {
		return Reservation{}, ErrBikeNotAvailable
	}
	plan, err := m.plans.GetPlan(ctx, b.PricingPlanID)
	if err != nil {
		return Reservation{}, err
	}
	quote, _ := plan.Quote(p.PackageType)

	r, err := m.store.CreateReservation(ctx, Reservation{
		ID:          uuid.New(),
		BikeID:      p.BikeID,
		UserID:      p.UserID,
		StartTime:   p.StartTime,
		EndTime:     p.StartTime.Add(window),
		PackageType: p.PackageType,
		Status:      StatusActive,
		QuotedCost:  quote,
		CreatedAt:   now,
	})
	if err != nil {
		return Reservation{}, err
	}

	metrics.Transitions.WithLabelValues("reservation", string(StatusActive)).Inc()
	m.logger.InfoContext(ctx, "bike reserved", "reservationId", r.ID, "bikeId", r.BikeID, "userId", r.UserID)
	notify.Send(ctx, m.notifier, m.logger, r.UserID.String(), notify.Event{
		Type:      notify.ReservationCreated,
		BikeID:    r.BikeID.String(),
		SubjectID: r.ID.String(),
	})
	return r, nil
}

func (m *Manager) Cancel(ctx context.Context, id, userID uuid.UUID) (Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservation.Cancel")
	defer span.End()

	r, err := m.store.CancelReservation(ctx, id, userID, "cancelled by rider")
	if err != nil {
		return Reservation{}, err
	}

	metrics.Transitions.WithLabelValues("reservation", string(StatusCancelled)).Inc()
	m.logger.InfoContext(ctx, "reservation cancelled", "reservationId", r.ID, "bikeId", r.BikeID)
	notify.Send(ctx, m.notifier, m.logger, r.UserID.String(), notify.Event{
		Type:      notify.ReservationCancelled,
		BikeID:    r.BikeID.String(),
		SubjectID: r.ID.String(),
	})
	return r, nil
}

func (m *Manager) Get(ctx context.Context, id, userID uuid.UUID) (Reservation, error) {
	r, err := m.store.GetReservation(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if r.UserID != userID {
		return Reservation{}, ErrNotAuthorized
	}
	return r, nil
}

func (m *Manager) List(ctx context.Context, userID uuid.UUID) ([]Reservation, error) {
	return m.store.ListReservations(ctx, userID)
}
