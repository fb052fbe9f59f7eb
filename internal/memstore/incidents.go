package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/incident"
	"github.com/semanticallynull/rental-backend/reservation"
)

func (s *Store) RecordIncident(_ context.Context, inc incident.Incident, escalate bool) (incident.Incident, incident.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[inc.BikeID]
	if !ok {
		return incident.Incident{}, incident.Escalation{}, bike.ErrNotFound
	}

	var esc incident.Escalation
	if r := s.activeRideOn(inc.BikeID); r != nil {
		id := r.ID
		inc.RideID = &id
	}

	if escalate {
		prev := b.Status
		inc.Escalated = true
		inc.PreviousStatus = &prev
		b.Status = bike.StatusMaintenance
		b.UpdatedAt = s.now()

		for _, res := range s.reservations {
			if res.BikeID == inc.BikeID && res.Status == reservation.StatusActive {
				s.cancelReservation(res, incident.WithdrawnReason)
				cp := *res
				esc.CancelledReservation = &cp
			}
		}
		esc.ActiveRide = inc.RideID
	}

	s.incidents = append(s.incidents, inc)
	return inc, esc, nil
}

// ListIncidents returns a bike's incidents newest first.
func (s *Store) ListIncidents(_ context.Context, bikeID uuid.UUID) ([]incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []incident.Incident
	for i := len(s.incidents) - 1; i >= 0; i-- {
		if s.incidents[i].BikeID == bikeID {
			out = append(out, s.incidents[i])
		}
	}
	return out, nil
}

func (s *Store) ClearMaintenance(_ context.Context, bikeID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bikes[bikeID]
	if !ok {
		return bike.ErrNotFound
	}
	if b.Status != bike.StatusMaintenance {
		return incident.ErrNotMaintenance
	}
	if s.activeRideOn(bikeID) != nil {
		return incident.ErrRideInProgress
	}
	return s.compareAndSet(bikeID, bike.StatusMaintenance, bike.StatusAvailable)
}
