package memstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/lock"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/unlock"
	"github.com/semanticallynull/rental-backend/wallet"
)

var at = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, bike.Bike) {
	t.Helper()
	s := New().WithClock(func() time.Time { return at })
	plan := s.AddPlan(pricing.Plan{Name: "standard", HourlyRate: 120})
	b := s.AddBike(bike.Bike{Label: "B1", IMEI: "imei-1", PricingPlanID: plan.ID})
	return s, b
}

func tx(user uuid.UUID, typ wallet.Type, amount int64, ref string, status wallet.Status) wallet.Transaction {
	return wallet.Transaction{ID: uuid.New(), UserID: user, Type: typ, Amount: amount, Status: status, Reference: ref, CreatedAt: at}
}

func TestWalletBalanceCountsCompletedSpendableRows(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()
	user := uuid.New()

	for _, row := range []wallet.Transaction{
		tx(user, wallet.TypeDeposit, 500, "d1", wallet.StatusCompleted),
		tx(user, wallet.TypeDeposit, 300, "d2", wallet.StatusPending),
		tx(user, wallet.TypeSecurityDeposit, 1000, "sd1", wallet.StatusCompleted),
		tx(user, wallet.TypeCharge, -120, "r1", wallet.StatusCompleted),
		tx(uuid.New(), wallet.TypeDeposit, 999, "other", wallet.StatusCompleted),
	} {
		_, err := s.Append(ctx, row)
		require.NoError(t, err)
	}

	balance, err := s.Balance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, int64(380), balance)

	deposit, err := s.SecurityDeposit(ctx, user)
	require.NoError(t, err)
	require.Equal(t, int64(1000), deposit)

	txs, err := s.Transactions(ctx, user)
	require.NoError(t, err)
	require.Len(t, txs, 4)
	require.Equal(t, "r1", txs[0].Reference)
}

func TestWalletReferencesAreUniquePerType(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()
	user := uuid.New()

	_, err := s.Append(ctx, tx(user, wallet.TypeCharge, 0, "ride-1", wallet.StatusCompleted))
	require.NoError(t, err)
	_, err = s.Append(ctx, tx(user, wallet.TypeCharge, -50, "ride-1", wallet.StatusCompleted))
	require.ErrorIs(t, err, wallet.ErrDuplicateReference)
	_, err = s.Append(ctx, tx(user, wallet.TypeRefund, 50, "ride-1", wallet.StatusCompleted))
	require.NoError(t, err)
}

func TestAppendChargeRespectsFloor(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()
	user := uuid.New()

	_, err := s.AppendCharge(ctx, tx(user, wallet.TypeCharge, -100, "c1", wallet.StatusCompleted), -100)
	require.NoError(t, err)
	_, err = s.AppendCharge(ctx, tx(user, wallet.TypeCharge, -1, "c2", wallet.StatusCompleted), -100)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	balance, _ := s.Balance(ctx, user)
	require.Equal(t, int64(-100), balance)
}

func TestSettleDepositOnce(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()
	user := uuid.New()

	_, err := s.Append(ctx, tx(user, wallet.TypeDeposit, 200, "pi_1", wallet.StatusPending))
	require.NoError(t, err)

	settled, err := s.Settle(ctx, "pi_1", wallet.StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, wallet.StatusCompleted, settled.Status)
	require.NotNil(t, settled.SettledAt)

	_, err = s.Settle(ctx, "pi_1", wallet.StatusFailed)
	require.ErrorIs(t, err, wallet.ErrAlreadySettled)
	_, err = s.Settle(ctx, "pi_unknown", wallet.StatusCompleted)
	require.ErrorIs(t, err, wallet.ErrNotFound)

	balance, _ := s.Balance(ctx, user)
	require.Equal(t, int64(200), balance)
}

func TestApproveUnlockStatusMismatchChangesNothing(t *testing.T) {
	s, b := newStore(t)
	ctx := t.Context()
	user := uuid.New()

	req, err := s.CreateUnlockRequest(ctx, unlock.Request{ID: uuid.New(), BikeID: b.ID, UserID: user, PaymentMethod: "wallet", CreatedAt: at})
	require.NoError(t, err)

	// An admin pulls the bike between request and approval.
	require.NoError(t, s.Transition(ctx, b.ID, bike.StatusAvailable, bike.StatusUnavailable))

	_, _, err = s.ApproveUnlock(ctx, req.ID, "admin", "", at)
	require.ErrorIs(t, err, bike.ErrStatusConflict)

	got, err := s.GetUnlockRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, unlock.StatusPending, got.Status)
	_, err = s.ActiveRideForBike(ctx, b.ID)
	require.ErrorIs(t, err, ride.ErrNoActiveRide)
}

func TestApproveUnlockThenLock(t *testing.T) {
	s, b := newStore(t)
	ctx := t.Context()
	user := uuid.New()

	req, err := s.CreateUnlockRequest(ctx, unlock.Request{ID: uuid.New(), BikeID: b.ID, UserID: user, PaymentMethod: "wallet", CreatedAt: at})
	require.NoError(t, err)
	approved, r, err := s.ApproveUnlock(ctx, req.ID, "admin", "ok", at)
	require.NoError(t, err)
	require.Equal(t, unlock.StatusApproved, approved.Status)
	require.Equal(t, &r.ID, approved.RideID)

	got, _ := s.GetBikeByID(ctx, b.ID)
	require.Equal(t, bike.StatusInUse, got.Status)

	_, err = s.CreateUnlockRequest(ctx, unlock.Request{ID: uuid.New(), BikeID: b.ID, UserID: uuid.New(), PaymentMethod: "wallet", CreatedAt: at})
	require.ErrorIs(t, err, unlock.ErrBikeNotAvailable)

	l, err := s.CreateLockRequest(ctx, lock.Request{ID: uuid.New(), BikeID: b.ID, UserID: user, RideID: r.ID, CreatedAt: at})
	require.NoError(t, err)
	_, err = s.CreateLockRequest(ctx, lock.Request{ID: uuid.New(), BikeID: b.ID, UserID: user, RideID: r.ID, CreatedAt: at})
	require.ErrorIs(t, err, lock.ErrPending)

	end := at.Add(time.Hour)
	cost, charged := int64(120), int64(120)
	closed := r
	closed.EndTime, closed.Cost, closed.Charged = &end, &cost, &charged

	// Nothing on the wallet and no tolerance.
	_, _, err = s.ApproveLock(ctx, lock.Approval{
		RequestID: l.ID, AdminID: "admin", Ride: closed,
		Charge: tx(user, wallet.TypeCharge, -120, r.ID.String(), wallet.StatusCompleted),
		Floor:  0, At: end,
	})
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)
	still, _ := s.GetRide(ctx, r.ID)
	require.Equal(t, ride.StatusActive, still.Status)
	pending, _ := s.GetLockRequest(ctx, l.ID)
	require.Equal(t, lock.StatusPending, pending.Status)

	done, finished, err := s.ApproveLock(ctx, lock.Approval{
		RequestID: l.ID, AdminID: "admin", Ride: closed,
		Charge: tx(user, wallet.TypeCharge, -120, r.ID.String(), wallet.StatusCompleted),
		Floor:  -200, At: end,
	})
	require.NoError(t, err)
	require.Equal(t, lock.StatusApproved, done.Status)
	require.Equal(t, ride.StatusCompleted, finished.Status)

	got, _ = s.GetBikeByID(ctx, b.ID)
	require.Equal(t, bike.StatusAvailable, got.Status)
	balance, _ := s.Balance(ctx, user)
	require.Equal(t, int64(-120), balance)
}

func TestExpireUnlocksOnlyPastCutoff(t *testing.T) {
	s, b := newStore(t)
	ctx := t.Context()
	plan := s.AddPlan(pricing.Plan{Name: "other", HourlyRate: 60})
	b2 := s.AddBike(bike.Bike{Label: "B2", IMEI: "imei-2", PricingPlanID: plan.ID})

	old, err := s.CreateUnlockRequest(ctx, unlock.Request{ID: uuid.New(), BikeID: b.ID, UserID: uuid.New(), PaymentMethod: "wallet", CreatedAt: at.Add(-time.Hour)})
	require.NoError(t, err)
	fresh, err := s.CreateUnlockRequest(ctx, unlock.Request{ID: uuid.New(), BikeID: b2.ID, UserID: uuid.New(), PaymentMethod: "wallet", CreatedAt: at})
	require.NoError(t, err)

	expired, err := s.ExpireUnlocks(ctx, at.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, old.ID, expired[0].ID)
	require.Equal(t, unlock.StatusExpired, expired[0].Status)

	got, _ := s.GetUnlockRequest(ctx, fresh.ID)
	require.Equal(t, unlock.StatusPending, got.Status)
}

func TestLoadSeed(t *testing.T) {
	planID := uuid.New()
	userID := uuid.New()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	err := os.WriteFile(path, []byte(`
plans:
  - id: `+planID.String()+`
    name: standard
    hourlyRate: 120
    dailyRate: 600
bikes:
  - label: KE-001
    imei: "356938035643809"
    planId: `+planID.String()+`
    latitude: -1.2921
    longitude: 36.8219
    batteryLevel: 80
    displayName: Green one
customers:
  - id: `+userID.String()+`
    auth0Id: auth0|rider
    verified: true
    securityDeposit: 1000
    balance: 250
`), 0o600)
	require.NoError(t, err)

	seed, err := LoadSeed(path)
	require.NoError(t, err)

	s := New()
	require.NoError(t, s.Apply(seed))
	ctx := t.Context()

	b, err := s.GetBike(ctx, "KE-001")
	require.NoError(t, err)
	require.Equal(t, bike.StatusAvailable, b.Status)
	require.Equal(t, planID, b.PricingPlanID)
	require.Equal(t, "Green one", *b.DisplayName)

	c, err := s.GetCustomerByAuth0ID(ctx, "auth0|rider")
	require.NoError(t, err)
	require.True(t, c.Verified)
	balance, _ := s.Balance(ctx, userID)
	require.Equal(t, int64(250), balance)
	deposit, _ := s.SecurityDeposit(ctx, userID)
	require.Equal(t, int64(1000), deposit)
}

func TestApplyRejectsBikeWithUnknownPlan(t *testing.T) {
	s := New()
	err := s.Apply(&Seed{Bikes: []SeedBike{{Label: "X", IMEI: "x", PlanID: uuid.New()}}})
	require.ErrorIs(t, err, pricing.ErrNotFound)
}
