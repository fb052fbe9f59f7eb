package lock_test

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/billing"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/internal/memstore"
	"github.com/semanticallynull/rental-backend/lock"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/subscription"
	"github.com/semanticallynull/rental-backend/unlock"
	"github.com/semanticallynull/rental-backend/wallet"
)

var start = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memstore.Store
	gate   *lock.Gate
	ledger *wallet.Ledger
	events *notify.Recorder
	bike   bike.Bike
	rider  uuid.UUID
	ride   ride.Ride
	now    time.Time
}

// setup puts rider on an active ride that started at start, with balance in
// the wallet and a negative balance ceiling of 100.
func setup(t *testing.T, balance int64) *fixture {
	t.Helper()
	f := &fixture{now: start}
	clock := func() time.Time { return f.now }

	f.store = memstore.New().WithClock(clock)
	plan := f.store.AddPlan(pricing.Plan{Name: "standard", HourlyRate: 120})
	f.bike = f.store.AddBike(bike.Bike{Label: "B1", IMEI: "imei-1", PricingPlanID: plan.ID})
	f.rider = uuid.New()
	require.NoError(t, f.store.Apply(&memstore.Seed{Customers: []memstore.SeedCustomer{
		{ID: f.rider, Auth0ID: "rider", Verified: true, Balance: balance},
	}}))

	req, err := f.store.CreateUnlockRequest(t.Context(), unlock.Request{
		ID: uuid.New(), BikeID: f.bike.ID, UserID: f.rider, PaymentMethod: "wallet", CreatedAt: start,
	})
	require.NoError(t, err)
	_, f.ride, err = f.store.ApproveUnlock(t.Context(), req.ID, "admin", "", start)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.events = &notify.Recorder{}
	f.ledger = wallet.NewLedger(f.store, 100, logger)
	tracker := ride.NewTracker(f.store, f.store, f.store, f.store, billing.NewEngine(time.UTC), logger).WithClock(clock)
	f.gate = lock.NewGate(f.store, f.store, tracker, f.ledger, f.events, logger).WithClock(clock)
	return f
}

func (f *fixture) request(t *testing.T) lock.Request {
	t.Helper()
	req, err := f.gate.RequestLock(t.Context(), lock.RequestParams{
		RideID: f.ride.ID, UserID: f.rider, Latitude: -1.28, Longitude: 36.82,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) approve(t *testing.T, id uuid.UUID) (lock.Request, *lock.Outcome, error) {
	t.Helper()
	return f.gate.Resolve(t.Context(), lock.ResolveParams{RequestID: id, Decision: lock.Approve, AdminID: "admin"})
}

func TestRequestLockLeavesRideRunning(t *testing.T) {
	f := setup(t, 0)
	req := f.request(t)

	require.Equal(t, lock.StatusPending, req.Status)
	require.Equal(t, f.bike.ID, req.BikeID)
	require.InDelta(t, -1.28, req.Location.P.X, 1e-9)

	r, err := f.store.GetRide(t.Context(), f.ride.ID)
	require.NoError(t, err)
	require.Equal(t, ride.StatusActive, r.Status)
	require.Contains(t, f.events.Types(notify.Admins), notify.LockRequested)
}

func TestRequestLockValidation(t *testing.T) {
	f := setup(t, 0)

	_, err := f.gate.RequestLock(t.Context(), lock.RequestParams{RideID: f.ride.ID, UserID: f.rider, Latitude: 91})
	require.True(t, fault.IsValidation(err))
	_, err = f.gate.RequestLock(t.Context(), lock.RequestParams{RideID: f.ride.ID, UserID: f.rider, Longitude: -181})
	require.True(t, fault.IsValidation(err))

	_, err = f.gate.RequestLock(t.Context(), lock.RequestParams{RideID: uuid.New(), UserID: f.rider})
	require.ErrorIs(t, err, lock.ErrNoActiveRide)

	_, err = f.gate.RequestLock(t.Context(), lock.RequestParams{RideID: f.ride.ID, UserID: uuid.New()})
	require.ErrorIs(t, err, lock.ErrNotAuthorized)

	f.request(t)
	_, err = f.gate.RequestLock(t.Context(), lock.RequestParams{RideID: f.ride.ID, UserID: f.rider})
	require.ErrorIs(t, err, lock.ErrPending)
}

func TestApproveSettlesAtApprovalTime(t *testing.T) {
	f := setup(t, 500)
	f.now = start.Add(20 * time.Minute)
	req := f.request(t)

	// The admin takes ten more minutes; the rider pays for them.
	f.now = start.Add(30 * time.Minute)
	approved, out, err := f.approve(t, req.ID)
	require.NoError(t, err)
	require.Equal(t, lock.StatusApproved, approved.Status)
	require.Equal(t, int64(1800), out.Ride.Duration)
	require.Equal(t, int64(60), out.Settlement.Charged)
	require.Equal(t, ride.StatusCompleted, out.Ride.Status)
	require.Equal(t, f.now, *out.Ride.EndTime)

	balance, err := f.ledger.Balance(t.Context(), f.rider)
	require.NoError(t, err)
	require.Equal(t, int64(440), balance)

	b, _ := f.store.GetBikeByID(t.Context(), f.bike.ID)
	require.Equal(t, bike.StatusAvailable, b.Status)

	events := f.events.Events
	last := events[len(events)-1]
	require.Equal(t, notify.LockApproved, last.Type)
	require.Equal(t, int64(60), last.Data["charged"])
}

func TestApproveInsufficientFundsChangesNothing(t *testing.T) {
	f := setup(t, 0)
	f.now = start.Add(2 * time.Hour)
	req := f.request(t)

	_, out, err := f.approve(t, req.ID)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)
	require.Nil(t, out)

	got, _ := f.gate.Get(t.Context(), req.ID)
	require.Equal(t, lock.StatusPending, got.Status)
	r, _ := f.store.GetRide(t.Context(), f.ride.ID)
	require.Equal(t, ride.StatusActive, r.Status)
	require.Nil(t, r.EndTime)
	b, _ := f.store.GetBikeByID(t.Context(), f.bike.ID)
	require.Equal(t, bike.StatusInUse, b.Status)
	txs, _ := f.ledger.Summary(t.Context(), f.rider)
	require.Empty(t, txs.Transactions)

	require.Contains(t, f.events.Types(f.rider.String()), notify.SettlementFailed)
	require.Contains(t, f.events.Types(notify.Admins), notify.SettlementFailed)
}

func TestApproveWithinCeiling(t *testing.T) {
	f := setup(t, 0)
	f.now = start.Add(50 * time.Minute)
	req := f.request(t)

	_, out, err := f.approve(t, req.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), out.Settlement.Charged)

	balance, _ := f.ledger.Balance(t.Context(), f.rider)
	require.Equal(t, int64(-100), balance)
}

func TestCoveredRideRecordsZeroCharge(t *testing.T) {
	f := setup(t, 0)
	f.store.AddSubscription(subscription.Subscription{
		UserID:      f.rider,
		PackageType: "daily",
		StartDate:   start.AddDate(0, 0, -1),
		EndDate:     start.AddDate(0, 0, 1),
		Status:      subscription.StatusActive,
	})
	f.now = start.Add(3 * time.Hour)
	req := f.request(t)

	_, out, err := f.approve(t, req.ID)
	require.NoError(t, err)
	require.True(t, out.Settlement.Covered)
	require.True(t, out.Ride.Covered)
	require.Equal(t, int64(0), *out.Ride.Charged)
	require.Equal(t, int64(360), *out.Ride.Cost)

	sum, _ := f.ledger.Summary(t.Context(), f.rider)
	require.Len(t, sum.Transactions, 1)
	require.Equal(t, wallet.TypeCharge, sum.Transactions[0].Type)
	require.Equal(t, int64(0), sum.Transactions[0].Amount)
	require.Equal(t, f.ride.ID.String(), sum.Transactions[0].Reference)
}

func TestConcurrentApprovalsChargeOnce(t *testing.T) {
	f := setup(t, 1000)
	f.now = start.Add(time.Hour)
	req := f.request(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.approve(t, req.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, fault.ErrAlreadyResolved), errors.Is(err, lock.ErrNoActiveRide):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)
	balance, _ := f.ledger.Balance(t.Context(), f.rider)
	require.Equal(t, int64(880), balance)
}

func TestRejectKeepsRideAndAllowsRetry(t *testing.T) {
	f := setup(t, 0)
	req := f.request(t)

	_, _, err := f.gate.Resolve(t.Context(), lock.ResolveParams{RequestID: req.ID, Decision: lock.Reject, AdminID: "admin"})
	require.True(t, fault.IsValidation(err))

	rejected, out, err := f.gate.Resolve(t.Context(), lock.ResolveParams{
		RequestID: req.ID, Decision: lock.Reject, AdminID: "admin", RejectionReason: "not parked in a bay",
	})
	require.NoError(t, err)
	require.Nil(t, out)
	require.Equal(t, lock.StatusRejected, rejected.Status)

	_, _, err = f.approve(t, req.ID)
	require.ErrorIs(t, err, lock.ErrAlreadyResolved)

	r, _ := f.store.GetRide(t.Context(), f.ride.ID)
	require.Equal(t, ride.StatusActive, r.Status)
	f.request(t)
}

func TestLockKeepsMaintenanceBikeWithdrawn(t *testing.T) {
	f := setup(t, 500)
	require.NoError(t, f.store.Transition(t.Context(), f.bike.ID, bike.StatusInUse, bike.StatusMaintenance))
	req := f.request(t)

	_, _, err := f.approve(t, req.ID)
	require.NoError(t, err)
	b, _ := f.store.GetBikeByID(t.Context(), f.bike.ID)
	require.Equal(t, bike.StatusMaintenance, b.Status)
}
