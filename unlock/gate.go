package unlock

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/rental-backend/inspection"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/internal/metrics"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/ride"
)

var tracer = otel.Tracer("github.com/semanticallynull/rental-backend/unlock")

type Decision string

const (
	Approve Decision = "APPROVED"
	Reject  Decision = "REJECTED"
)

type Gate struct {
	store       Store
	eligibility Eligibility
	notifier    notify.Notifier
	logger      *slog.Logger
	now         func() time.Time
}

func NewGate(store Store, eligibility Eligibility, notifier notify.Notifier, logger *slog.Logger) *Gate {
	return &Gate{
		store:       store,
		eligibility: eligibility,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock replaces the gate's clock.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

type RequestParams struct {
	BikeID        uuid.UUID
	UserID        uuid.UUID
	ReservationID *uuid.UUID
	Inspection    inspection.Payload
	PaymentMethod string
}

func (g *Gate) RequestUnlock(ctx context.Context, p RequestParams) (Request, error) {
	ctx, span := tracer.Start(ctx, "unlock.RequestUnlock")
	defer span.End()
	span.SetAttributes(attribute.String("bike.id", p.BikeID.String()))

	if p.BikeID == uuid.Nil {
		return Request{}, fault.Invalid("bikeId", "is required")
	}
	if strings.TrimSpace(p.PaymentMethod) == "" {
		return Request{}, fault.Invalid("paymentMethod", "is required")
	}
	if err := g.eligibility.CheckEligible(ctx, p.UserID); err != nil {
		return Request{}, err
	}

	req, err := g.store.CreateUnlockRequest(ctx, Request{
		ID:            uuid.New(),
		BikeID:        p.BikeID,
		UserID:        p.UserID,
		ReservationID: p.ReservationID,
		Status:        StatusPending,
		Inspection:    p.Inspection,
		PaymentMethod: p.PaymentMethod,
		CreatedAt:     g.now(),
	})
	if err != nil {
		return Request{}, err
	}

	metrics.Transitions.WithLabelValues("unlock_request", string(StatusPending)).Inc()
	g.logger.InfoContext(ctx, "unlock requested", "requestId", req.ID, "bikeId", req.BikeID, "userId", req.UserID)
	notify.Send(ctx, g.notifier, g.logger, notify.Admins, notify.Event{
		Type:      notify.UnlockRequested,
		BikeID:    req.BikeID.String(),
		SubjectID: req.ID.String(),
		Data:      map[string]any{"failedChecks": req.Inspection.Failed()},
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

// Resolve records an admin decision. Approval returns the new ride.
func (g *Gate) Resolve(ctx context.Context, p ResolveParams) (Request, *ride.Ride, error) {
	ctx, span := tracer.Start(ctx, "unlock.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("unlock.id", p.RequestID.String()), attribute.String("decision", string(p.Decision)))

	switch p.Decision {
	case Approve:
		req, r, err := g.store.ApproveUnlock(ctx, p.RequestID, p.AdminID, p.AdminNote, g.now())
		if err != nil {
			g.logResolveError(ctx, p, err)
			return Request{}, nil, err
		}
		metrics.Transitions.WithLabelValues("unlock_request", string(StatusApproved)).Inc()
		metrics.Transitions.WithLabelValues("ride", string(ride.StatusActive)).Inc()
		g.logger.InfoContext(ctx, "unlock approved", "requestId", req.ID, "rideId", r.ID, "admin", p.AdminID)
		notify.Send(ctx, g.notifier, g.logger, req.UserID.String(), notify.Event{
			Type:      notify.UnlockApproved,
			BikeID:    req.BikeID.String(),
			SubjectID: req.ID.String(),
			Message:   p.AdminNote,
			Data:      map[string]any{"rideId": r.ID.String()},
		})
		return req, &r, nil

	case Reject:
		reason := strings.TrimSpace(p.RejectionReason)
		if reason == "" {
			return Request{}, nil, fault.Invalid("rejectionReason", "is required when rejecting")
		}
		req, err := g.store.RejectUnlock(ctx, p.RequestID, p.AdminID, reason, g.now())
		if err != nil {
			g.logResolveError(ctx, p, err)
			return Request{}, nil, err
		}
		metrics.Transitions.WithLabelValues("unlock_request", string(StatusRejected)).Inc()
		g.logger.InfoContext(ctx, "unlock rejected", "requestId", req.ID, "admin", p.AdminID, "reason", reason)
		notify.Send(ctx, g.notifier, g.logger, req.UserID.String(), notify.Event{
			Type:      notify.UnlockRejected,
			BikeID:    req.BikeID.String(),
			SubjectID: req.ID.String(),
			Message:   reason,
		})
		return req, nil, nil
	}
	return Request{}, nil, fault.Invalid("decision", "must be APPROVED or REJECTED")
}

func (g *Gate) logResolveError(ctx context.Context, p ResolveParams, err error) {
	if errors.Is(err, fault.ErrAlreadyResolved) {
		g.logger.InfoContext(ctx, "duplicate unlock resolution ignored", "requestId", p.RequestID, "admin", p.AdminID)
		return
	}
	g.logger.WarnContext(ctx, "unlock resolution failed", "requestId", p.RequestID, "error", err)
}

// Cancel withdraws a rider's own pending request.
func (g *Gate) Cancel(ctx context.Context, id, userID uuid.UUID) (Request, error) {
	ctx, span := tracer.Start(ctx, "unlock.Cancel")
	defer span.End()

	req, err := g.store.CancelUnlock(ctx, id, userID, g.now())
	if err != nil {
		return Request{}, err
	}
	metrics.Transitions.WithLabelValues("unlock_request", string(StatusCancelled)).Inc()
	notify.Send(ctx, g.notifier, g.logger, notify.Admins, notify.Event{
		Type:      notify.UnlockCancelled,
		BikeID:    req.BikeID.String(),
		SubjectID: req.ID.String(),
	})
	return req, nil
}

func (g *Gate) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	return g.store.GetUnlockRequest(ctx, id)
}

func (g *Gate) List(ctx context.Context, status Status) ([]Request, error) {
	return g.store.ListUnlockRequests(ctx, status)
}
