package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/reservation"
	"github.com/semanticallynull/rental-backend/unlock"
)

func (s *Store) CreateReservation(_ context.Context, res reservation.Reservation) (reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[res.BikeID]
	if !ok {
		return reservation.Reservation{}, bike.ErrNotFound
	}
	if b.Status != bike.StatusAvailable {
		return reservation.Reservation{}, reservation.ErrBikeNotAvailable
	}
	for _, r := range s.reservations {
		if r.BikeID == res.BikeID && r.Status == reservation.StatusActive {
			return reservation.Reservation{}, reservation.ErrAlreadyReserved
		}
	}
	if s.pendingUnlockFor(func(u *unlock.Request) bool { return u.BikeID == res.BikeID }) {
		return reservation.Reservation{}, reservation.ErrBikeNotAvailable
	}
	if err := s.compareAndSet(res.BikeID, bike.StatusAvailable, bike.StatusReserved); err != nil {
		return reservation.Reservation{}, err
	}

	res.Status = reservation.StatusActive
	s.reservations[res.ID] = &res
	return res, nil
}

func (s *Store) pendingUnlockFor(match func(*unlock.Request) bool) bool {
	for _, u := range s.unlocks {
		if u.Status == unlock.StatusPending && match(u) {
			return true
		}
	}
	return false
}

func (s *Store) GetReservation(_ context.Context, id uuid.UUID) (reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return reservation.Reservation{}, reservation.ErrNotFound
	}
	return *r, nil
}

func (s *Store) CancelReservation(_ context.Context, id, userID uuid.UUID, reason string) (reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return reservation.Reservation{}, reservation.ErrNotFound
	}
	if r.UserID != userID {
		return reservation.Reservation{}, reservation.ErrNotAuthorized
	}
	if r.Status != reservation.StatusActive {
		return reservation.Reservation{}, reservation.ErrCannotCancel
	}
	if s.pendingUnlockFor(func(u *unlock.Request) bool { return u.ReservationID != nil && *u.ReservationID == id }) {
		return reservation.Reservation{}, reservation.ErrCannotCancel
	}
	s.cancelReservation(r, reason)
	return *r, nil
}

// cancelReservation must be called with s.mu held.
func (s *Store) cancelReservation(r *reservation.Reservation, reason string) {
	at := s.now()
	r.Status = reservation.StatusCancelled
	r.CancelReason = &reason
	r.CancelledAt = &at
	if b, ok := s.bikes[r.BikeID]; ok && b.Status == bike.StatusReserved {
		b.Status = bike.StatusAvailable
		b.UpdatedAt = at
	}
}

func (s *Store) ListReservations(_ context.Context, userID uuid.UUID) ([]reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []reservation.Reservation
	for _, r := range s.reservations {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return sortedByTime(out, func(r reservation.Reservation) time.Time { return r.StartTime }), nil
}

func (s *Store) ExpireReservations(_ context.Context, cutoff time.Time) ([]reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []reservation.Reservation
	for _, r := range s.reservations {
		if r.Status != reservation.StatusActive || !r.EndTime.Before(cutoff) {
			continue
		}
		id := r.ID
		if s.pendingUnlockFor(func(u *unlock.Request) bool { return u.ReservationID != nil && *u.ReservationID == id }) {
			continue
		}
		s.cancelReservation(r, "expired")
		expired = append(expired, *r)
	}
	return expired, nil
}
