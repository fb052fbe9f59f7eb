package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/semanticallynull/rental-backend/ride"
)

func (s *Store) GetRide(_ context.Context, id uuid.UUID) (ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rides[id]
	if !ok {
		return ride.Ride{}, ride.ErrNotFound
	}
	return *r, nil
}

func (s *Store) ActiveRideForBike(_ context.Context, bikeID uuid.UUID) (ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r := s.activeRideOn(bikeID); r != nil {
		return *r, nil
	}
	return ride.Ride{}, ride.ErrNoActiveRide
}

func (s *Store) ActiveRideForUser(_ context.Context, userID uuid.UUID) (ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *ride.Ride
	for _, r := range s.rides {
		if r.UserID == userID && r.Status == ride.StatusActive {
			if latest == nil || r.StartTime.After(latest.StartTime) {
				latest = r
			}
		}
	}
	if latest == nil {
		return ride.Ride{}, ride.ErrNoActiveRide
	}
	return *latest, nil
}

// ListRides returns a user's rides newest first.
func (s *Store) ListRides(_ context.Context, userID uuid.UUID) ([]ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ride.Ride
	for _, r := range s.rides {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	out = sortedByTime(out, func(r ride.Ride) time.Time { return r.StartTime })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) ListActiveRides(_ context.Context, startedBefore time.Time) ([]ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ride.Ride
	for _, r := range s.rides {
		if r.Status == ride.StatusActive && r.StartTime.Before(startedBefore) {
			out = append(out, *r)
		}
	}
	return sortedByTime(out, func(r ride.Ride) time.Time { return r.StartTime }), nil
}

func (s *Store) AccrueDistance(_ context.Context, id uuid.UUID, metres float64, position pgtype.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rides[id]
	if !ok || r.Status != ride.StatusActive {
		return ride.ErrNoActiveRide
	}
	r.Distance += metres
	r.LastPosition = position
	return nil
}
