package ride

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/billing"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/subscription"
)

var tracer = otel.Tracer("github.com/semanticallynull/rental-backend/ride")

const (
	// Fixes closer than this to the previous one are GPS jitter.
	minHopMetres = 3.0
	// A single hop longer than this is a bad fix rather than riding.
	maxHopMetres = 5000.0
)

// Session is a read-time view of an active ride. None of its figures are
// stored; the cost committed at settlement is recomputed by the lock gate.
type Session struct {
	Ride     Ride               `json:"ride"`
	Elapsed  time.Duration      `json:"elapsed"`
	Distance float64            `json:"distance"`
	Estimate billing.Settlement `json:"estimate"`
}

// Tracker derives elapsed time, distance and cost for active rides from the
// server clock and the location feed.
type Tracker struct {
	rides  Store
	bikes  bike.Registry
	plans  pricing.Store
	subs   subscription.Store
	engine *billing.Engine
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(rides Store, bikes bike.Registry, plans pricing.Store, subs subscription.Store,
	engine *billing.Engine, logger *slog.Logger) *Tracker {
	return &Tracker{
		rides:  rides,
		bikes:  bikes,
		plans:  plans,
		subs:   subs,
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the tracker's clock.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) CurrentElapsed(r Ride) time.Duration {
	return elapsed(r, t.now())
}

func elapsed(r Ride, at time.Time) time.Duration {
	if r.EndTime != nil {
		at = *r.EndTime
	}
	d := at.Sub(r.StartTime).Truncate(time.Second)
	if d < 0 {
		return 0
	}
	return d
}

func (t *Tracker) CurrentDistanceEstimate(r Ride) float64 {
	return r.Distance
}

func (t *Tracker) CurrentCostEstimate(ctx context.Context, r Ride) (billing.Settlement, error) {
	_, s, err := t.Settle(ctx, r, t.now())
	return s, err
}

// Settle prices a ride as if it ended at end. The lock gate uses it with the
// approval time to obtain the authoritative cost.
func (t *Tracker) Settle(ctx context.Context, r Ride, end time.Time) (billing.Usage, billing.Settlement, error) {
	b, err := t.bikes.GetBikeByID(ctx, r.BikeID)
	if err != nil {
		return billing.Usage{}, billing.Settlement{}, err
	}
	plan, err := t.plans.GetPlan(ctx, b.PricingPlanID)
	if err != nil {
		return billing.Usage{}, billing.Settlement{}, err
	}
	sub, err := subscription.Resolve(ctx, t.subs, r.UserID, r.StartTime)
	if err != nil {
		return billing.Usage{}, billing.Settlement{}, err
	}

	usage := billing.Usage{StartedAt: r.StartTime, Duration: elapsed(r, end)}
	return usage, t.engine.Settle(usage, plan, sub), nil
}

// Current returns the rider's active ride with live figures.
func (t *Tracker) Current(ctx context.Context, userID uuid.UUID) (Session, error) {
	ctx, span := tracer.Start(ctx, "ride.Current")
	defer span.End()

	r, err := t.rides.ActiveRideForUser(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	est, err := t.CurrentCostEstimate(ctx, r)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Ride:     r,
		Elapsed:  t.CurrentElapsed(r),
		Distance: t.CurrentDistanceEstimate(r),
		Estimate: est,
	}, nil
}

// Position is one fix from the location feed.
type Position struct {
	IMEI         string
	Latitude     float64
	Longitude    float64
	BatteryLevel int
}

// RecordPosition stores a bike's latest telemetry and, when the bike is on an
// active ride, accrues the distance travelled since the previous fix.
func (t *Tracker) RecordPosition(ctx context.Context, p Position) error {
	ctx, span := tracer.Start(ctx, "ride.RecordPosition")
	defer span.End()

	b, err := t.bikes.GetBikeByIMEI(ctx, p.IMEI)
	if err != nil {
		return err
	}
	point := bike.Point(p.Latitude, p.Longitude)
	if err := t.bikes.UpdateTelemetry(ctx, b.ID, point, p.BatteryLevel); err != nil {
		return err
	}

	r, err := t.rides.ActiveRideForBike(ctx, b.ID)
	if errors.Is(err, ErrNoActiveRide) {
		return nil
	}
	if err != nil {
		return err
	}

	var hop float64
	if r.LastPosition.Valid {
		hop = haversine(r.LastPosition, point)
		if hop < minHopMetres {
			return nil
		}
		if hop > maxHopMetres {
			t.logger.WarnContext(ctx, "discarding implausible position hop",
				"rideId", r.ID, "bikeId", b.ID, "metres", hop)
			hop = 0
		}
	}
	return t.rides.AccrueDistance(ctx, r.ID, hop, point)
}
