package lock

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/rental-backend/billing"
	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/inspection"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/internal/metrics"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/wallet"
)

var tracer = otel.Tracer("github.com/semanticallynull/rental-backend/lock")

type Decision string

const (
	Approve Decision = "APPROVED"
	Reject  Decision = "REJECTED"
)

// Pricer computes the authoritative cost of a ride ending at a given time.
type Pricer interface {
	Settle(ctx context.Context, r ride.Ride, end time.Time) (billing.Usage, billing.Settlement, error)
}

type Ledger interface {
	NewChargeTransaction(userID uuid.UUID, amount int64, reference string) (wallet.Transaction, error)
	Floor() int64
}

type Gate struct {
	store    Store
	rides    ride.Store
	pricer   Pricer
	ledger   Ledger
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewGate(store Store, rides ride.Store, pricer Pricer, ledger Ledger, notifier notify.Notifier, logger *slog.Logger) *Gate {
	return &Gate{
		store:    store,
		rides:    rides,
		pricer:   pricer,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the gate's clock.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

type RequestParams struct {
	RideID     uuid.UUID
	UserID     uuid.UUID
	Latitude   float64
	Longitude  float64
	Inspection inspection.Payload
}

func (g *Gate) RequestLock(ctx context.Context, p RequestParams) (Request, error) {
	ctx, span := tracer.Start(ctx, "lock.RequestLock")
	defer span.End()
	span.SetAttributes(attribute.String("ride.id", p.RideID.String()))

	if p.RideID == uuid.Nil {
		return Request{}, fault.Invalid("rideId", "is required")
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return Request{}, fault.Invalid("latitude", "must be between -90 and 90")
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return Request{}, fault.Invalid("longitude", "must be between -180 and 180")
	}

	r, err := g.rides.GetRide(ctx, p.RideID)
	if errors.Is(err, ride.ErrNotFound) {
		return Request{}, ErrNoActiveRide
	}
	if err != nil {
		return Request{}, err
	}

	req, err := g.store.CreateLockRequest(ctx, Request{
		ID:         uuid.New(),
		BikeID:     r.BikeID,
		UserID:     p.UserID,
		RideID:     r.ID,
		Status:     StatusPending,
		Location:   bike.Point(p.Latitude, p.Longitude),
		Inspection: p.Inspection,
		CreatedAt:  g.now(),
	})
	if err != nil {
		return Request{}, err
	}

	metrics.Transitions.WithLabelValues("lock_request", string(StatusPending)).Inc()
	g.logger.InfoContext(ctx, "lock requested", "requestId", req.ID, "rideId", req.RideID, "userId", req.UserID)
	notify.Send(ctx, g.notifier, g.logger, notify.Admins, notify.Event{
		Type:      notify.LockRequested,
		BikeID:    req.BikeID.String(),
		SubjectID: req.ID.String(),
		Data:      map[string]any{"rideId": req.RideID.String(), "failedChecks": req.Inspection.Failed()},
	})
	return req, nil
}

type ResolveParams struct {
	RequestID       uuid.UUID
	Decision        Decision
	AdminID         string
	AdminNote       string
	RejectionReason string
}

// Outcome is what an approval committed.
type Outcome struct {
	Ride       ride.Ride          `json:"ride"`
	Settlement billing.Settlement `json:"settlement"`
}

func (g *Gate) Resolve(ctx context.Context, p ResolveParams) (Request, *Outcome, error) {
	ctx, span := tracer.Start(ctx, "lock.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("lock.id", p.RequestID.String()), attribute.String("decision", string(p.Decision)))

	switch p.Decision {
	case Approve:
		return g.approve(ctx, p)
	case Reject:
		reason := strings.TrimSpace(p.RejectionReason)
		if reason == "" {
			return Request{}, nil, fault.Invalid("rejectionReason", "is required when rejecting")
		}
		req, err := g.store.RejectLock(ctx, p.RequestID, p.AdminID, reason, g.now())
		if err != nil {
			g.logResolveError(ctx, p, err)
			return Request{}, nil, err
		}
		metrics.Transitions.WithLabelValues("lock_request", string(StatusRejected)).Inc()
		g.logger.InfoContext(ctx, "lock rejected", "requestId", req.ID, "admin", p.AdminID, "reason", reason)
		notify.Send(ctx, g.notifier, g.logger, req.UserID.String(), notify.Event{
			Type:      notify.LockRejected,
			BikeID:    req.BikeID.String(),
			SubjectID: req.ID.String(),
			Message:   reason,
		})
		return req, nil, nil
	}
	return Request{}, nil, fault.Invalid("decision", "must be APPROVED or REJECTED")
}

func (g *Gate) approve(ctx context.Context, p ResolveParams) (Request, *Outcome, error) {
	req, err := g.store.GetLockRequest(ctx, p.RequestID)
	if err != nil {
		return Request{}, nil, err
	}
	if req.Status != StatusPending {
		g.logResolveError(ctx, p, ErrAlreadyResolved)
		return Request{}, nil, ErrAlreadyResolved
	}

	r, err := g.rides.GetRide(ctx, req.RideID)
	if err != nil {
		return Request{}, nil, err
	}
	if r.Status != ride.StatusActive {
		return Request{}, nil, ErrNoActiveRide
	}

	end := g.now()
	usage, settlement, err := g.pricer.Settle(ctx, r, end)
	if err != nil {
		return Request{}, nil, err
	}
	charge, err := g.ledger.NewChargeTransaction(r.UserID, settlement.Charged, r.ID.String())
	if err != nil {
		return Request{}, nil, err
	}

	cost, charged := settlement.Cost, settlement.Charged
	r.EndTime = &end
	r.Duration = int64(usage.Duration / time.Second)
	r.Cost = &cost
	r.Charged = &charged
	r.Covered = settlement.Covered

	req, closed, err := g.store.ApproveLock(ctx, Approval{
		RequestID: req.ID,
		AdminID:   p.AdminID,
		Note:      p.AdminNote,
		Ride:      r,
		Charge:    charge,
		Floor:     g.ledger.Floor(),
		At:        end,
	})
	if errors.Is(err, wallet.ErrInsufficientFunds) {
		metrics.SettlementFailures.WithLabelValues("insufficient_funds").Inc()
		g.logger.WarnContext(ctx, "settlement refused", "requestId", p.RequestID, "rideId", r.ID, "charged", charged)
		ev := notify.Event{
			Type:      notify.SettlementFailed,
			BikeID:    r.BikeID.String(),
			SubjectID: p.RequestID.String(),
			Message:   "wallet balance too low to settle ride",
			Data:      map[string]any{"rideId": r.ID.String(), "amount": charged},
		}
		notify.Send(ctx, g.notifier, g.logger, r.UserID.String(), ev)
		notify.Send(ctx, g.notifier, g.logger, notify.Admins, ev)
		return Request{}, nil, err
	}
	if err != nil {
		g.logResolveError(ctx, p, err)
		return Request{}, nil, err
	}

	coverage := "charged"
	if settlement.Covered {
		coverage = "covered"
	}
	metrics.Transitions.WithLabelValues("lock_request", string(StatusApproved)).Inc()
	metrics.Transitions.WithLabelValues("ride", string(ride.StatusCompleted)).Inc()
	metrics.SettledAmount.WithLabelValues(coverage).Add(float64(charged))
	g.logger.InfoContext(ctx, "lock approved", "requestId", req.ID, "rideId", closed.ID,
		"duration", closed.Duration, "cost", cost, "charged", charged, "covered", settlement.Covered)
	notify.Send(ctx, g.notifier, g.logger, req.UserID.String(), notify.Event{
		Type:      notify.LockApproved,
		BikeID:    req.BikeID.String(),
		SubjectID: req.ID.String(),
		Message:   p.AdminNote,
		Data: map[string]any{
			"rideId":  closed.ID.String(),
			"cost":    cost,
			"charged": charged,
			"savings": settlement.Savings(),
		},
	})
	return req, &Outcome{Ride: closed, Settlement: settlement}, nil
}

func (g *Gate) logResolveError(ctx context.Context, p ResolveParams, err error) {
	if errors.Is(err, fault.ErrAlreadyResolved) {
		g.logger.InfoContext(ctx, "duplicate lock resolution ignored", "requestId", p.RequestID, "admin", p.AdminID)
		return
	}
	g.logger.WarnContext(ctx, "lock resolution failed", "requestId", p.RequestID, "error", err)
}

func (g *Gate) Cancel(ctx context.Context, id, userID uuid.UUID) (Request, error) {
	ctx, span := tracer.Start(ctx, "lock.Cancel")
	defer span.End()

	req, err := g.store.CancelLock(ctx, id, userID, g.now())
	if err != nil {
		return Request{}, err
	}
	metrics.Transitions.WithLabelValues("lock_request", string(StatusCancelled)).Inc()
	notify.Send(ctx, g.notifier, g.logger, notify.Admins, notify.Event{
		Type:      notify.LockCancelled,
		BikeID:    req.BikeID.String(),
		SubjectID: req.ID.String(),
	})
	return req, nil
}

func (g *Gate) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	return g.store.GetLockRequest(ctx, id)
}

func (g *Gate) List(ctx context.Context, status Status) ([]Request, error) {
	return g.store.ListLockRequests(ctx, status)
}
