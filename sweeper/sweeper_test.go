package sweeper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/internal/memstore"
	"github.com/semanticallynull/rental-backend/internal/metrics"
	"github.com/semanticallynull/rental-backend/lock"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/reservation"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/unlock"
)

var start = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memstore.Store
	sweeper *Sweeper
	events  *notify.Recorder
	plan    pricing.Plan
	now     time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: start, events: &notify.Recorder{}}
	clock := func() time.Time { return f.now }
	f.store = memstore.New().WithClock(clock)
	f.plan = f.store.AddPlan(pricing.Plan{Name: "standard", HourlyRate: 120})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.sweeper = New(f.store, f.store, f.store, f.store, f.events, logger, DefaultConfig()).WithClock(clock)
	return f
}

func (f *fixture) bike(label string) bike.Bike {
	return f.store.AddBike(bike.Bike{Label: label, IMEI: "imei-" + label, PricingPlanID: f.plan.ID})
}

func (f *fixture) ride(t *testing.T, b bike.Bike, user uuid.UUID) ride.Ride {
	t.Helper()
	req, err := f.store.CreateUnlockRequest(t.Context(), unlock.Request{ID: uuid.New(), BikeID: b.ID, UserID: user, PaymentMethod: "wallet", CreatedAt: f.now})
	require.NoError(t, err)
	_, r, err := f.store.ApproveUnlock(t.Context(), req.ID, "admin", "", f.now)
	require.NoError(t, err)
	return r
}

func TestSweepExpiresStalePendingRequests(t *testing.T) {
	f := setup(t)
	user := uuid.New()

	unlockReq, err := f.store.CreateUnlockRequest(t.Context(), unlock.Request{
		ID: uuid.New(), BikeID: f.bike("U").ID, UserID: user, PaymentMethod: "wallet", CreatedAt: f.now,
	})
	require.NoError(t, err)
	r := f.ride(t, f.bike("L"), user)
	lockReq, err := f.store.CreateLockRequest(t.Context(), lock.Request{ID: uuid.New(), UserID: user, RideID: r.ID, CreatedAt: f.now})
	require.NoError(t, err)

	f.now = start.Add(14 * time.Minute)
	f.sweeper.SweepOnce(t.Context())
	u, _ := f.store.GetUnlockRequest(t.Context(), unlockReq.ID)
	require.Equal(t, unlock.StatusPending, u.Status)

	f.now = start.Add(16 * time.Minute)
	f.sweeper.SweepOnce(t.Context())
	u, _ = f.store.GetUnlockRequest(t.Context(), unlockReq.ID)
	require.Equal(t, unlock.StatusExpired, u.Status)
	l, _ := f.store.GetLockRequest(t.Context(), lockReq.ID)
	require.Equal(t, lock.StatusExpired, l.Status)

	// The ride itself is untouched.
	active, err := f.store.GetRide(t.Context(), r.ID)
	require.NoError(t, err)
	require.Equal(t, ride.StatusActive, active.Status)

	require.Equal(t, []notify.EventType{notify.UnlockExpired, notify.LockExpired}, f.events.Types(user.String()))
}

func TestSweepExpiresLapsedReservations(t *testing.T) {
	f := setup(t)
	user := uuid.New()
	b := f.bike("R")
	res, err := f.store.CreateReservation(t.Context(), reservation.Reservation{
		ID: uuid.New(), BikeID: b.ID, UserID: user, StartTime: start, EndTime: start.Add(time.Hour),
		PackageType: pricing.PackageHourly, CreatedAt: start,
	})
	require.NoError(t, err)

	// Inside the grace period.
	f.now = start.Add(70 * time.Minute)
	f.sweeper.SweepOnce(t.Context())
	got, _ := f.store.GetReservation(t.Context(), res.ID)
	require.Equal(t, reservation.StatusActive, got.Status)

	f.now = start.Add(80 * time.Minute)
	f.sweeper.SweepOnce(t.Context())
	got, _ = f.store.GetReservation(t.Context(), res.ID)
	require.Equal(t, reservation.StatusCancelled, got.Status)
	require.Equal(t, "expired", *got.CancelReason)

	freed, _ := f.store.GetBikeByID(t.Context(), b.ID)
	require.Equal(t, bike.StatusAvailable, freed.Status)
	require.Contains(t, f.events.Types(user.String()), notify.ReservationExpired)
}

func TestSweepSkipsReservationWithPendingUnlock(t *testing.T) {
	f := setup(t)
	f.sweeper.cfg.PendingTTL = 0
	user := uuid.New()
	b := f.bike("R")
	res, err := f.store.CreateReservation(t.Context(), reservation.Reservation{
		ID: uuid.New(), BikeID: b.ID, UserID: user, StartTime: start, EndTime: start.Add(time.Hour),
		PackageType: pricing.PackageHourly, CreatedAt: start,
	})
	require.NoError(t, err)
	_, err = f.store.CreateUnlockRequest(t.Context(), unlock.Request{
		ID: uuid.New(), BikeID: b.ID, UserID: user, ReservationID: &res.ID, PaymentMethod: "wallet", CreatedAt: start.Add(50 * time.Minute),
	})
	require.NoError(t, err)

	f.now = start.Add(2 * time.Hour)
	f.sweeper.SweepOnce(t.Context())
	got, _ := f.store.GetReservation(t.Context(), res.ID)
	require.Equal(t, reservation.StatusActive, got.Status)
}

func TestSweepFlagsButNeverClosesLongRides(t *testing.T) {
	f := setup(t)
	user := uuid.New()
	r := f.ride(t, f.bike("S"), user)

	f.now = start.Add(25 * time.Hour)
	f.sweeper.SweepOnce(t.Context())

	require.Equal(t, []notify.EventType{notify.RideStale}, f.events.Types(notify.Admins))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.ActiveRides))

	still, _ := f.store.GetRide(t.Context(), r.ID)
	require.Equal(t, ride.StatusActive, still.Status)
}

func TestStartStopsWithContext(t *testing.T) {
	f := setup(t)
	f.sweeper.cfg.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		f.sweeper.run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
