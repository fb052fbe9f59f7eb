// Package billing turns a ride's duration into a cost and decides whether a
// subscription covers it. Everything here is pure: no storage, no clock.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/subscription"
)

// OvertimeRate is the fraction of the base cost charged outside a
// subscription's covered window.
var OvertimeRate = decimal.NewFromFloat(0.5)

var secondsPerHour = decimal.NewFromInt(3600)

// Usage is the metered part of a ride.
type Usage struct {
	StartedAt time.Time
	Duration  time.Duration
}

type Breakdown struct {
	DurationSeconds int64  `json:"durationSeconds"`
	HourlyRate      int64  `json:"hourlyRate"`
	BaseCost        int64  `json:"baseCost"`
	SubscriptionID  string `json:"subscriptionId,omitempty"`
	PackageType     string `json:"packageType,omitempty"`
	CoveredWindow   string `json:"coveredWindow,omitempty"`
	Overtime        bool   `json:"overtime"`
}

// Settlement is the outcome of billing a ride. Cost is the ride's price; when
// Covered is true the rider is charged nothing and Cost only feeds the
// savings display.
type Settlement struct {
	Cost      int64     `json:"cost"`
	Charged   int64     `json:"charged"`
	Covered   bool      `json:"covered"`
	Breakdown Breakdown `json:"breakdown"`
}

// Savings is what the subscription saved the rider on this ride.
func (s Settlement) Savings() int64 {
	return s.Breakdown.BaseCost - s.Charged
}

type window struct {
	from, to time.Duration // offsets from local midnight, to is exclusive
}

func (w window) contains(t time.Time) bool {
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
	return offset >= w.from && offset < w.to
}

func (w window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d",
		int(w.from.Hours()), int(w.from.Minutes())%60, int(w.to.Hours()), int(w.to.Minutes())%60)
}

var coveredWindows = map[string]window{
	"daily":   {from: 8 * time.Hour, to: 19 * time.Hour},
	"morning": {from: 6 * time.Hour, to: 12 * time.Hour},
	"evening": {from: 19 * time.Hour, to: 22 * time.Hour},
}

// Engine evaluates time-of-day windows in a fixed location so results do not
// depend on the server's zone.
type Engine struct {
	loc *time.Location
}

func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc}
}

// BaseCost is the standard-rate cost of a duration, rounded up to the next
// whole currency unit.
func BaseCost(d time.Duration, hourlyRate int64) int64 {
	seconds := int64(d / time.Second)
	if seconds <= 0 || hourlyRate <= 0 {
		return 0
	}
	return decimal.NewFromInt(seconds).
		Mul(decimal.NewFromInt(hourlyRate)).
		Div(secondsPerHour).
		Ceil().
		IntPart()
}

// Settle prices a ride. sub may be nil; a subscription that is not ACTIVE or
// whose dates do not contain the ride start is ignored.
func (e *Engine) Settle(u Usage, plan pricing.Plan, sub *subscription.Subscription) Settlement {
	base := BaseCost(u.Duration, plan.HourlyRate)
	bd := Breakdown{
		DurationSeconds: max(int64(u.Duration/time.Second), 0),
		HourlyRate:      plan.HourlyRate,
		BaseCost:        base,
	}

	if sub == nil || !sub.Covers(u.StartedAt) {
		return Settlement{Cost: base, Charged: base, Breakdown: bd}
	}

	bd.SubscriptionID = sub.ID.String()
	bd.PackageType = sub.PackageType

	w, windowed := coveredWindows[sub.PackageType]
	if windowed {
		bd.CoveredWindow = w.String()
	}
	if !windowed || w.contains(u.StartedAt.In(e.loc)) {
		return Settlement{Cost: base, Charged: 0, Covered: true, Breakdown: bd}
	}

	bd.Overtime = true
	cost := decimal.NewFromInt(base).Mul(OvertimeRate).Round(0).IntPart()
	return Settlement{Cost: cost, Charged: cost, Breakdown: bd}
}
