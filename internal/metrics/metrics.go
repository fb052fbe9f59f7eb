// Package metrics holds the domain counters of the rental service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_transitions_total",
			Help: "State transitions by entity and resulting status",
		},
		[]string{"entity", "status"},
	)

	SettledAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_settled_amount_total",
			Help: "Sum of charged ride amounts in currency units",
		},
		[]string{"coverage"},
	)

	SettlementFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_settlement_failures_total",
			Help: "Lock approvals whose settlement could not be committed",
		},
		[]string{"reason"},
	)

	Incidents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_incidents_total",
			Help: "Reported incidents by severity",
		},
		[]string{"severity"},
	)

	Expired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_expired_total",
			Help: "Pending requests and reservations expired by the sweeper",
		},
		[]string{"entity"},
	)

	ActiveRides = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rental_active_rides",
			Help: "Rides currently ACTIVE as of the last sweep",
		},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(Transitions, SettledAmount, SettlementFailures, Incidents, Expired, ActiveRides)
}
