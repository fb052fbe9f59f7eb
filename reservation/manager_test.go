package reservation_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/customer"
	"github.com/semanticallynull/rental-backend/internal/fault"
	"github.com/semanticallynull/rental-backend/internal/memstore"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/reservation"
)

var now = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type eligibility struct{ err error }

func (e eligibility) CheckEligible(context.Context, uuid.UUID) error { return e.err }

func setup(t *testing.T, elig reservation.Eligibility) (*memstore.Store, *reservation.Manager, *notify.Recorder, bike.Bike) {
	t.Helper()
	clock := func() time.Time { return now }
	store := memstore.New().WithClock(clock)
	plan := store.AddPlan(pricing.Plan{Name: "standard", HourlyRate: 120, DailyRate: 800, Discount: 10})
	b := store.AddBike(bike.Bike{Label: "B1", IMEI: "imei-1", PricingPlanID: plan.ID})
	events := &notify.Recorder{}
	m := reservation.NewManager(store, store, store, elig, events, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(clock)
	return store, m, events, b
}

func TestReserveHoldsBike(t *testing.T) {
	store, m, events, b := setup(t, eligibility{})
	user := uuid.New()

	res, err := m.Reserve(t.Context(), reservation.ReserveParams{BikeID: b.ID, UserID: user, PackageType: pricing.PackageDaily})
	require.NoError(t, err)
	require.Equal(t, reservation.StatusActive, res.Status)
	require.Equal(t, now, res.StartTime)
	require.Equal(t, now.Add(24*time.Hour), res.EndTime)
	require.Equal(t, int64(720), res.QuotedCost)

	got, _ := store.GetBikeByID(t.Context(), b.ID)
	require.Equal(t, bike.StatusReserved, got.Status)
	require.Equal(t, []notify.EventType{notify.ReservationCreated}, events.Types(user.String()))

	_, err = m.Reserve(t.Context(), reservation.ReserveParams{BikeID: b.ID, UserID: uuid.New(), PackageType: pricing.PackageHourly})
	require.ErrorIs(t, err, reservation.ErrBikeNotAvailable)
}

func TestReserveValidation(t *testing.T) {
	_, m, _, b := setup(t, eligibility{})
	user := uuid.New()

	_, err := m.Reserve(t.Context(), reservation.ReserveParams{BikeID: b.ID, UserID: user, PackageType: "fortnightly"})
	require.True(t, fault.IsValidation(err))
	_, err = m.Reserve(t.Context(), reservation.ReserveParams{UserID: user, PackageType: pricing.PackageHourly})
	require.True(t, fault.IsValidation(err))
	_, err = m.Reserve(t.Context(), reservation.ReserveParams{BikeID: b.ID, UserID: user, PackageType: pricing.PackageHourly, StartTime: now.Add(-time.Hour)})
	require.True(t, fault.IsValidation(err))
	_, err = m.Reserve(t.Context(), reservation.ReserveParams{BikeID: b.ID, UserID: user, PackageType: pricing.PackageHourly, StartTime: now.AddDate(0, 2, 0)})
	require.True(t, fault.IsValidation(err))
}

func TestReserveRequiresEligibility(t *testing.T) {
	store, m, _, b := setup(t, eligibility{err: customer.ErrUnverified})

	_, err := m.Reserve(t.Context(), reservation.ReserveParams{BikeID: b.ID, UserID: uuid.New(), PackageType: pricing.PackageHourly})
	require.ErrorIs(t, err, fault.ErrIneligible)

	got, _ := store.GetBikeByID(t.Context(), b.ID)
	require.Equal(t, bike.StatusAvailable, got.Status)
}

func TestCancelReleasesBike(t *testing.T) {
	store, m, _, b := setup(t, eligibility{})
	user := uuid.New()
	res, err := m.Reserve(t.Context(), reservation.ReserveParams{BikeID: b.ID, UserID: user, PackageType: pricing.PackageHourly})
	require.NoError(t, err)

	_, err = m.Cancel(t.Context(), res.ID, uuid.New())
	require.ErrorIs(t, err, reservation.ErrNotAuthorized)

	cancelled, err := m.Cancel(t.Context(), res.ID, user)
	require.NoError(t, err)
	require.Equal(t, reservation.StatusCancelled, cancelled.Status)

	got, _ := store.GetBikeByID(t.Context(), b.ID)
	require.Equal(t, bike.StatusAvailable, got.Status)

	_, err = m.Cancel(t.Context(), res.ID, user)
	require.ErrorIs(t, err, reservation.ErrCannotCancel)

	list, err := m.List(t.Context(), user)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
