package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/subscription"
)

var (
	plan = pricing.Plan{ID: uuid.New(), HourlyRate: 200}
	day  = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
)

func dailySub() *subscription.Subscription {
	return &subscription.Subscription{
		ID:          uuid.New(),
		PackageType: "daily",
		StartDate:   day.AddDate(0, 0, -10),
		EndDate:     day.AddDate(0, 0, 20),
		Status:      subscription.StatusActive,
	}
}

func TestSettle_NoSubscription(t *testing.T) {
	e := NewEngine(time.UTC)
	s := e.Settle(Usage{StartedAt: day.Add(10 * time.Hour), Duration: 2820 * time.Second}, plan, nil)

	require.Equal(t, int64(157), s.Cost)
	require.Equal(t, int64(157), s.Charged)
	require.False(t, s.Covered)
	require.False(t, s.Breakdown.Overtime)
}

func TestSettle_InsideDailyWindow(t *testing.T) {
	e := NewEngine(time.UTC)
	s := e.Settle(Usage{StartedAt: day.Add(10 * time.Hour), Duration: 2820 * time.Second}, plan, dailySub())

	require.True(t, s.Covered)
	require.Equal(t, int64(0), s.Charged)
	require.Equal(t, int64(157), s.Cost)
	require.Equal(t, int64(157), s.Savings())
	require.Equal(t, "08:00-19:00", s.Breakdown.CoveredWindow)
}

func TestSettle_Overtime(t *testing.T) {
	e := NewEngine(time.UTC)
	s := e.Settle(Usage{StartedAt: day.Add(20*time.Hour + 30*time.Minute), Duration: 2820 * time.Second}, plan, dailySub())

	require.False(t, s.Covered)
	require.True(t, s.Breakdown.Overtime)
	require.Equal(t, int64(79), s.Cost)
	require.Equal(t, int64(79), s.Charged)
}

func TestSettle_ZeroDuration(t *testing.T) {
	e := NewEngine(time.UTC)
	for _, sub := range []*subscription.Subscription{nil, dailySub()} {
		for _, start := range []time.Time{day.Add(10 * time.Hour), day.Add(23 * time.Hour)} {
			s := e.Settle(Usage{StartedAt: start, Duration: 0}, plan, sub)
			require.Equal(t, int64(0), s.Cost)
			require.Equal(t, int64(0), s.Charged)
		}
	}
}

func TestSettle_Windows(t *testing.T) {
	e := NewEngine(time.UTC)
	tests := []struct {
		pkg      string
		start    time.Duration
		overtime bool
	}{
		{"daily", 8 * time.Hour, false},
		{"daily", 7*time.Hour + 59*time.Minute, true},
		{"daily", 19 * time.Hour, true},
		{"morning", 6 * time.Hour, false},
		{"morning", 12 * time.Hour, true},
		{"evening", 19 * time.Hour, false},
		{"evening", 21*time.Hour + 59*time.Minute, false},
		{"evening", 22 * time.Hour, true},
		{"weekly", 3 * time.Hour, false},
		{"monthly", 23 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.pkg+"@"+tt.start.String(), func(t *testing.T) {
			sub := dailySub()
			sub.PackageType = tt.pkg
			s := e.Settle(Usage{StartedAt: day.Add(tt.start), Duration: time.Hour}, plan, sub)
			require.Equal(t, tt.overtime, s.Breakdown.Overtime)
			require.Equal(t, !tt.overtime, s.Covered)
			if tt.overtime {
				require.Equal(t, int64(100), s.Charged)
			} else {
				require.Equal(t, int64(0), s.Charged)
			}
		})
	}
}

func TestSettle_SubscriptionOutsideDateRange(t *testing.T) {
	e := NewEngine(time.UTC)
	sub := dailySub()
	sub.EndDate = day

	s := e.Settle(Usage{StartedAt: day.Add(10 * time.Hour), Duration: 2820 * time.Second}, plan, sub)
	require.False(t, s.Covered)
	require.Equal(t, int64(157), s.Charged)
	require.Empty(t, s.Breakdown.SubscriptionID)
}

func TestSettle_UsesEngineLocation(t *testing.T) {
	loc := time.FixedZone("WAT", 3600)
	e := NewEngine(loc)
	// 07:30 UTC is 08:30 local, inside the daily window.
	s := e.Settle(Usage{StartedAt: day.Add(7*time.Hour + 30*time.Minute), Duration: time.Hour}, plan, dailySub())
	require.True(t, s.Covered)
}

func TestBaseCost(t *testing.T) {
	require.Equal(t, int64(157), BaseCost(2820*time.Second, 200))
	require.Equal(t, int64(100), BaseCost(30*time.Minute, 200))
	require.Equal(t, int64(100), BaseCost(20*time.Minute, 300))
	require.Equal(t, int64(1), BaseCost(time.Second, 200))
	require.Equal(t, int64(0), BaseCost(0, 200))
}
