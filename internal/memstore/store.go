// Package memstore keeps every rental entity in process memory behind one
// mutex. Each multi-entity operation holds the lock for its whole duration,
// which gives it the same all-or-nothing behaviour the postgres repositories
// get from a transaction.
package memstore

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/customer"
	"github.com/semanticallynull/rental-backend/incident"
	"github.com/semanticallynull/rental-backend/lock"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/reservation"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/subscription"
	"github.com/semanticallynull/rental-backend/unlock"
	"github.com/semanticallynull/rental-backend/wallet"
)

type Store struct {
	mu sync.Mutex

	bikes         map[uuid.UUID]*bike.Bike
	plans         map[uuid.UUID]pricing.Plan
	subscriptions map[uuid.UUID]subscription.Subscription
	customers     map[uuid.UUID]*customer.Customer
	reservations  map[uuid.UUID]*reservation.Reservation
	unlocks       map[uuid.UUID]*unlock.Request
	rides         map[uuid.UUID]*ride.Ride
	locks         map[uuid.UUID]*lock.Request
	incidents     []incident.Incident

	// transactions is append-only; references indexes it by type and
	// reference.
	transactions []wallet.Transaction
	references   map[string]int

	now func() time.Time
}

func New() *Store {
	return &Store{
		bikes:         make(map[uuid.UUID]*bike.Bike),
		plans:         make(map[uuid.UUID]pricing.Plan),
		subscriptions: make(map[uuid.UUID]subscription.Subscription),
		customers:     make(map[uuid.UUID]*customer.Customer),
		reservations:  make(map[uuid.UUID]*reservation.Reservation),
		unlocks:       make(map[uuid.UUID]*unlock.Request),
		rides:         make(map[uuid.UUID]*ride.Ride),
		locks:         make(map[uuid.UUID]*lock.Request),
		references:    make(map[string]int),
		now:           time.Now,
	}
}

// WithClock replaces the clock used for updated_at style timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) AddBike(b bike.Bike) bike.Bike {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = bike.StatusAvailable
	}
	b.UpdatedAt = s.now()
	s.bikes[b.ID] = &b
	return b
}

func (s *Store) AddPlan(p pricing.Plan) pricing.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.plans[p.ID] = p
	return p
}

func (s *Store) AddSubscription(sub subscription.Subscription) subscription.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	s.subscriptions[sub.ID] = sub
	return sub
}

func sortedByTime[T any](items []T, at func(T) time.Time) []T {
	sort.SliceStable(items, func(i, j int) bool { return at(items[i]).Before(at(items[j])) })
	return items
}
