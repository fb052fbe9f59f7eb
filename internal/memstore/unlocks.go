package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/reservation"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/unlock"
)

func (s *Store) CreateUnlockRequest(_ context.Context, req unlock.Request) (unlock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[req.BikeID]
	if !ok {
		return unlock.Request{}, bike.ErrNotFound
	}

	if req.ReservationID != nil {
		res, ok := s.reservations[*req.ReservationID]
		if !ok {
			return unlock.Request{}, reservation.ErrNotFound
		}
		if res.Status != reservation.StatusActive || res.UserID != req.UserID || res.BikeID != req.BikeID {
			return unlock.Request{}, unlock.ErrReservationInvalid
		}
		if req.CreatedAt.Add(unlock.EarlyUnlock).Before(res.StartTime) {
			return unlock.Request{}, unlock.ErrTooEarly
		}
		if b.Status != bike.StatusReserved {
			return unlock.Request{}, unlock.ErrBikeNotAvailable
		}
	} else if b.Status != bike.StatusAvailable {
		return unlock.Request{}, unlock.ErrBikeNotAvailable
	}

	if s.pendingUnlockFor(func(u *unlock.Request) bool { return u.BikeID == req.BikeID }) {
		return unlock.Request{}, unlock.ErrPending
	}
	if s.activeRideOn(req.BikeID) != nil {
		return unlock.Request{}, unlock.ErrRideInProgress
	}

	req.Status = unlock.StatusPending
	s.unlocks[req.ID] = &req
	return req, nil
}

func (s *Store) GetUnlockRequest(_ context.Context, id uuid.UUID) (unlock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.unlocks[id]
	if !ok {
		return unlock.Request{}, unlock.ErrNotFound
	}
	return *u, nil
}

func (s *Store) ListUnlockRequests(_ context.Context, status unlock.Status) ([]unlock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []unlock.Request
	for _, u := range s.unlocks {
		if status == "" || u.Status == status {
			out = append(out, *u)
		}
	}
	return sortedByTime(out, func(u unlock.Request) time.Time { return u.CreatedAt }), nil
}

func (s *Store) pendingUnlock(id uuid.UUID) (*unlock.Request, error) {
	u, ok := s.unlocks[id]
	if !ok {
		return nil, unlock.ErrNotFound
	}
	if u.Status != unlock.StatusPending {
		return nil, unlock.ErrAlreadyResolved
	}
	return u, nil
}

func (s *Store) ApproveUnlock(_ context.Context, id uuid.UUID, admin, note string, at time.Time) (unlock.Request, ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.pendingUnlock(id)
	if err != nil {
		return unlock.Request{}, ride.Ride{}, err
	}
	if s.activeRideOn(u.BikeID) != nil {
		return unlock.Request{}, ride.Ride{}, unlock.ErrRideInProgress
	}

	b, ok := s.bikes[u.BikeID]
	if !ok {
		return unlock.Request{}, ride.Ride{}, bike.ErrNotFound
	}
	from := bike.StatusAvailable
	var res *reservation.Reservation
	if u.ReservationID != nil {
		from = bike.StatusReserved
		res, ok = s.reservations[*u.ReservationID]
		if !ok {
			return unlock.Request{}, ride.Ride{}, reservation.ErrNotFound
		}
		if res.Status != reservation.StatusActive {
			return unlock.Request{}, ride.Ride{}, unlock.ErrReservationInvalid
		}
	}
	if b.Status != from {
		return unlock.Request{}, ride.Ride{}, bike.ErrStatusConflict
	}

	// Every check has passed; nothing below can fail.
	if res != nil {
		res.Status = reservation.StatusConsumed
	}
	b.Status = bike.StatusInUse
	b.UpdatedAt = at

	r := &ride.Ride{
		ID:              uuid.New(),
		BikeID:          u.BikeID,
		UserID:          u.UserID,
		UnlockRequestID: u.ID,
		ReservationID:   u.ReservationID,
		PaymentMethod:   u.PaymentMethod,
		StartTime:       at,
		Status:          ride.StatusActive,
	}
	s.rides[r.ID] = r

	u.Status = unlock.StatusApproved
	u.ResolvedBy = &admin
	if note != "" {
		u.AdminNote = &note
	}
	u.RideID = &r.ID
	u.ResolvedAt = &at
	return *u, *r, nil
}

func (s *Store) RejectUnlock(_ context.Context, id uuid.UUID, admin, reason string, at time.Time) (unlock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.pendingUnlock(id)
	if err != nil {
		return unlock.Request{}, err
	}
	u.Status = unlock.StatusRejected
	u.ResolvedBy = &admin
	u.RejectionReason = &reason
	u.ResolvedAt = &at
	return *u, nil
}

func (s *Store) CancelUnlock(_ context.Context, id, userID uuid.UUID, at time.Time) (unlock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.unlocks[id]
	if !ok {
		return unlock.Request{}, unlock.ErrNotFound
	}
	if u.UserID != userID {
		return unlock.Request{}, unlock.ErrNotAuthorized
	}
	if u.Status != unlock.StatusPending {
		return unlock.Request{}, unlock.ErrAlreadyResolved
	}
	u.Status = unlock.StatusCancelled
	u.ResolvedAt = &at
	return *u, nil
}

func (s *Store) ExpireUnlocks(_ context.Context, cutoff time.Time) ([]unlock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	var out []unlock.Request
	for _, u := range s.unlocks {
		if u.Status == unlock.StatusPending && u.CreatedAt.Before(cutoff) {
			u.Status = unlock.StatusExpired
			u.ResolvedAt = &at
			out = append(out, *u)
		}
	}
	return out, nil
}
