package incident

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/internal/metrics"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/reservation"
)

// WithdrawnReason is recorded on reservations cancelled by an escalation.
const WithdrawnReason = "bike withdrawn for maintenance"

var tracer = otel.Tracer("github.com/semanticallynull/rental-backend/incident")

type Hook struct {
	store    Store
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewHook(store Store, notifier notify.Notifier, logger *slog.Logger) *Hook {
	return &Hook{store: store, notifier: notifier, logger: logger, now: time.Now}
}

type ReportParams struct {
	BikeID      uuid.UUID
	ReporterID  uuid.UUID
	Type        Type
	Severity    Severity
	Description string
}

func (h *Hook) ReportIncident(ctx context.Context, p ReportParams) (Incident, error) {
	ctx, span := tracer.Start(ctx, "incident.ReportIncident")
	defer span.End()

	if p.BikeID == uuid.Nil {
		return Incident{}, fault.Invalid("bikeId", "is required")
	}
	if !p.Type.Valid() {
		return Incident{}, fault.Invalid("type", "is not a known incident type")
	}
	if p.Severity == "" {
		p.Severity = p.Type.DefaultSeverity()
	}
	if !p.Severity.Valid() {
		return Incident{}, fault.Invalid("severity", "must be low, medium, high or critical")
	}
	span.SetAttributes(attribute.String("severity", string(p.Severity)))

	escalate := p.Severity == SeverityCritical
	inc, esc, err := h.store.RecordIncident(ctx, Incident{
		ID:          uuid.New(),
		BikeID:      p.BikeID,
		ReporterID:  p.ReporterID,
		Type:        p.Type,
		Severity:    p.Severity,
		Description: strings.TrimSpace(p.Description),
		CreatedAt:   h.now(),
	}, escalate)
	if err != nil {
		return Incident{}, err
	}

	metrics.Incidents.WithLabelValues(string(inc.Severity)).Inc()
	h.logger.InfoContext(ctx, "incident reported", "incidentId", inc.ID, "bikeId", inc.BikeID,
		"type", inc.Type, "severity", inc.Severity, "escalated", inc.Escalated)
	notify.Send(ctx, h.notifier, h.logger, notify.Admins, notify.Event{
		Type:      notify.IncidentReported,
		BikeID:    inc.BikeID.String(),
		SubjectID: inc.ID.String(),
		Message:   inc.Description,
		Data:      map[string]any{"type": string(inc.Type), "severity": string(inc.Severity)},
	})

	if inc.Escalated {
		metrics.Transitions.WithLabelValues("bike", string(bike.StatusMaintenance)).Inc()
		data := map[string]any{"incidentId": inc.ID.String()}
		if esc.ActiveRide != nil {
			data["rideId"] = esc.ActiveRide.String()
		}
		notify.Send(ctx, h.notifier, h.logger, notify.Admins, notify.Event{
			Type:      notify.BikeMaintenance,
			BikeID:    inc.BikeID.String(),
			SubjectID: inc.ID.String(),
			Data:      data,
		})
		if res := esc.CancelledReservation; res != nil {
			metrics.Transitions.WithLabelValues("reservation", string(reservation.StatusCancelled)).Inc()
			h.logger.InfoContext(ctx, "reservation cancelled by escalation", "reservationId", res.ID, "bikeId", inc.BikeID)
			notify.Send(ctx, h.notifier, h.logger, res.UserID.String(), notify.Event{
				Type:      notify.ReservationCancelled,
				BikeID:    res.BikeID.String(),
				SubjectID: res.ID.String(),
				Message:   WithdrawnReason,
			})
		}
	}
	return inc, nil
}

func (h *Hook) ClearMaintenance(ctx context.Context, bikeID uuid.UUID, adminID string) error {
	ctx, span := tracer.Start(ctx, "incident.ClearMaintenance")
	defer span.End()

	if err := h.store.ClearMaintenance(ctx, bikeID); err != nil {
		return err
	}
	metrics.Transitions.WithLabelValues("bike", string(bike.StatusAvailable)).Inc()
	h.logger.InfoContext(ctx, "maintenance cleared", "bikeId", bikeID, "admin", adminID)
	notify.Send(ctx, h.notifier, h.logger, notify.Admins, notify.Event{
		Type:   notify.BikeCleared,
		BikeID: bikeID.String(),
	})
	return nil
}

func (h *Hook) List(ctx context.Context, bikeID uuid.UUID) ([]Incident, error) {
	return h.store.ListIncidents(ctx, bikeID)
}
