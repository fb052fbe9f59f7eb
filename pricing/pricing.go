// Package pricing holds the immutable rate cards bikes are billed against.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/internal/fault"
)

// Plan rates are in whole currency units.
type Plan struct {
	ID          uuid.UUID `db:"id" yaml:"id"`
	Name        string    `db:"name" yaml:"name"`
	HourlyRate  int64     `db:"hourly_rate" yaml:"hourlyRate"`
	DailyRate   int64     `db:"daily_rate" yaml:"dailyRate"`
	WeeklyRate  int64     `db:"weekly_rate" yaml:"weeklyRate"`
	MonthlyRate int64     `db:"monthly_rate" yaml:"monthlyRate"`
	// Discount is a percentage shown to riders on package quotes.
	Discount int `db:"discount" yaml:"discount"`
}

type Package string

const (
	PackageHourly  Package = "hourly"
	PackageDaily   Package = "daily"
	PackageWeekly  Package = "weekly"
	PackageMonthly Package = "monthly"
)

var ErrNotFound = fmt.Errorf("pricing plan %w", fault.ErrNotFound)

// Store reads pricing plans.
type Store interface {
	GetPlan(ctx context.Context, id uuid.UUID) (Plan, error)
}

// Window returns how long a reservation for the package holds the bike.
func (p Package) Window() (time.Duration, bool) {
	switch p {
	case PackageHourly:
		return time.Hour, true
	case PackageDaily:
		return 24 * time.Hour, true
	case PackageWeekly:
		return 7 * 24 * time.Hour, true
	case PackageMonthly:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

// Quote is the package rate after the plan discount, rounded up.
func (p Plan) Quote(pkg Package) (int64, bool) {
	var rate int64
	switch pkg {
	case PackageHourly:
		rate = p.HourlyRate
	case PackageDaily:
		rate = p.DailyRate
	case PackageWeekly:
		rate = p.WeeklyRate
	case PackageMonthly:
		rate = p.MonthlyRate
	default:
		return 0, false
	}
	if p.Discount <= 0 || p.Discount > 100 {
		return rate, true
	}
	discounted := rate * int64(100-p.Discount)
	return (discounted + 99) / 100, true
}
