package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/subscription"
)

func (s *Store) GetBikes(_ context.Context) ([]bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bikes := make([]bike.Bike, 0, len(s.bikes))
	for _, b := range s.bikes {
		bikes = append(bikes, *b)
	}
	sort.Slice(bikes, func(i, j int) bool { return bikes[i].Label < bikes[j].Label })
	return bikes, nil
}

func (s *Store) GetBike(_ context.Context, label string) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bikes {
		if b.Label == label {
			return *b, nil
		}
	}
	return bike.Bike{}, bike.ErrNotFound
}

func (s *Store) GetBikeByID(_ context.Context, id uuid.UUID) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[id]
	if !ok {
		return bike.Bike{}, bike.ErrNotFound
	}
	return *b, nil
}

func (s *Store) GetBikeByIMEI(_ context.Context, imei string) (bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bikes {
		if b.IMEI == imei {
			return *b, nil
		}
	}
	return bike.Bike{}, bike.ErrNotFound
}

func (s *Store) Transition(_ context.Context, id uuid.UUID, from, to bike.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compareAndSet(id, from, to)
}

// compareAndSet must be called with s.mu held.
func (s *Store) compareAndSet(id uuid.UUID, from, to bike.Status) error {
	b, ok := s.bikes[id]
	if !ok {
		return bike.ErrNotFound
	}
	if b.Status != from {
		return bike.ErrStatusConflict
	}
	b.Status = to
	b.UpdatedAt = s.now()
	return nil
}

func (s *Store) UpdateTelemetry(_ context.Context, id uuid.UUID, location pgtype.Point, batteryLevel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[id]
	if !ok {
		return bike.ErrNotFound
	}
	b.Location = location
	b.BatteryLevel = batteryLevel
	b.UpdatedAt = s.now()
	return nil
}

func (s *Store) GetPlan(_ context.Context, id uuid.UUID) (pricing.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[id]
	if !ok {
		return pricing.Plan{}, pricing.ErrNotFound
	}
	return p, nil
}

func (s *Store) ActiveForUser(_ context.Context, userID uuid.UUID) ([]subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.Status == subscription.StatusActive {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// activeRideOn must be called with s.mu held.
func (s *Store) activeRideOn(bikeID uuid.UUID) *ride.Ride {
	for _, r := range s.rides {
		if r.BikeID == bikeID && r.Status == ride.StatusActive {
			return r
		}
	}
	return nil
}
