package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/lock"
	"github.com/semanticallynull/rental-backend/ride"
)

func (s *Store) CreateLockRequest(_ context.Context, req lock.Request) (lock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rides[req.RideID]
	if !ok || r.Status != ride.StatusActive {
		return lock.Request{}, lock.ErrNoActiveRide
	}
	if r.UserID != req.UserID {
		return lock.Request{}, lock.ErrNotAuthorized
	}
	for _, l := range s.locks {
		if l.RideID == r.ID && l.Status == lock.StatusPending {
			return lock.Request{}, lock.ErrPending
		}
	}

	req.BikeID = r.BikeID
	req.Status = lock.StatusPending
	s.locks[req.ID] = &req
	return req, nil
}

func (s *Store) GetLockRequest(_ context.Context, id uuid.UUID) (lock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		return lock.Request{}, lock.ErrNotFound
	}
	return *l, nil
}

func (s *Store) ListLockRequests(_ context.Context, status lock.Status) ([]lock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []lock.Request
	for _, l := range s.locks {
		if status == "" || l.Status == status {
			out = append(out, *l)
		}
	}
	return sortedByTime(out, func(l lock.Request) time.Time { return l.CreatedAt }), nil
}

func (s *Store) pendingLock(id uuid.UUID) (*lock.Request, error) {
	l, ok := s.locks[id]
	if !ok {
		return nil, lock.ErrNotFound
	}
	if l.Status != lock.StatusPending {
		return nil, lock.ErrAlreadyResolved
	}
	return l, nil
}

func (s *Store) ApproveLock(_ context.Context, a lock.Approval) (lock.Request, ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.pendingLock(a.RequestID)
	if err != nil {
		return lock.Request{}, ride.Ride{}, err
	}
	r, ok := s.rides[l.RideID]
	if !ok || r.Status != ride.StatusActive || r.ID != a.Ride.ID {
		return lock.Request{}, ride.Ride{}, lock.ErrNoActiveRide
	}

	// The charge is the only step that can be refused, so it goes first.
	if _, err := s.appendChargeLocked(a.Charge, a.Floor); err != nil {
		return lock.Request{}, ride.Ride{}, err
	}

	r.Status = ride.StatusCompleted
	r.EndTime = a.Ride.EndTime
	r.Duration = a.Ride.Duration
	r.Cost = a.Ride.Cost
	r.Charged = a.Ride.Charged
	r.Covered = a.Ride.Covered

	l.Status = lock.StatusApproved
	l.ResolvedBy = &a.AdminID
	if a.Note != "" {
		note := a.Note
		l.AdminNote = &note
	}
	at := a.At
	l.ResolvedAt = &at

	if b, ok := s.bikes[l.BikeID]; ok && b.Status == bike.StatusInUse {
		b.Status = bike.StatusAvailable
		b.UpdatedAt = at
	}
	return *l, *r, nil
}

func (s *Store) RejectLock(_ context.Context, id uuid.UUID, admin, reason string, at time.Time) (lock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.pendingLock(id)
	if err != nil {
		return lock.Request{}, err
	}
	l.Status = lock.StatusRejected
	l.ResolvedBy = &admin
	l.RejectionReason = &reason
	l.ResolvedAt = &at
	return *l, nil
}

func (s *Store) CancelLock(_ context.Context, id, userID uuid.UUID, at time.Time) (lock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		return lock.Request{}, lock.ErrNotFound
	}
	if l.UserID != userID {
		return lock.Request{}, lock.ErrNotAuthorized
	}
	if l.Status != lock.StatusPending {
		return lock.Request{}, lock.ErrAlreadyResolved
	}
	l.Status = lock.StatusCancelled
	l.ResolvedAt = &at
	return *l, nil
}

func (s *Store) ExpireLocks(_ context.Context, cutoff time.Time) ([]lock.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	var out []lock.Request
	for _, l := range s.locks {
		if l.Status == lock.StatusPending && l.CreatedAt.Before(cutoff) {
			l.Status = lock.StatusExpired
			l.ResolvedAt = &at
			out = append(out, *l)
		}
	}
	return out, nil
}
