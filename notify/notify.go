// Package notify delivers state-change events to riders and administrators.
// Delivery is fire-and-forget: a failed notification never undoes the
// transition that produced it.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Admins is the recipient for events addressed to the admin console.
const Admins = "admins"

type EventType string

const (
	ReservationCreated   EventType = "reservation.created"
	ReservationCancelled EventType = "reservation.cancelled"
	ReservationExpired   EventType = "reservation.expired"
	UnlockRequested      EventType = "unlock.requested"
	UnlockApproved       EventType = "unlock.approved"
	UnlockRejected       EventType = "unlock.rejected"
	UnlockCancelled      EventType = "unlock.cancelled"
	UnlockExpired        EventType = "unlock.expired"
	LockRequested        EventType = "lock.requested"
	LockApproved         EventType = "lock.approved"
	LockRejected         EventType = "lock.rejected"
	LockCancelled        EventType = "lock.cancelled"
	LockExpired          EventType = "lock.expired"
	SettlementFailed     EventType = "settlement.failed"
	IncidentReported     EventType = "incident.reported"
	BikeMaintenance      EventType = "bike.maintenance"
	BikeCleared          EventType = "bike.cleared"
	RideStale            EventType = "ride.stale"
	DepositSettled       EventType = "wallet.deposit_settled"
)

type Event struct {
	Type      EventType      `json:"type"`
	Recipient string         `json:"recipient"`
	BikeID    string         `json:"bikeId,omitempty"`
	SubjectID string         `json:"subjectId,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, recipient string, ev Event) error
}

// Send delivers ev and only logs on failure.
func Send(ctx context.Context, n Notifier, logger *slog.Logger, recipient string, ev Event) {
	if n == nil {
		return
	}
	ev.Recipient = recipient
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := n.Notify(ctx, recipient, ev); err != nil {
		logger.WarnContext(ctx, "notification failed",
			"recipient", recipient, "event", ev.Type, "error", err)
	}
}

// Multi fans an event out to several notifiers, attempting every one.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, recipient string, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, recipient, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to a logger. Used when no broker is configured.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, recipient string, ev Event) error {
	l.Logger.InfoContext(ctx, "notification", "recipient", recipient, "event", ev.Type, "subject", ev.SubjectID)
	return nil
}

// Recorder keeps every event in memory, for tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
	Err    error
}

func (r *Recorder) Notify(_ context.Context, recipient string, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Recipient = recipient
	r.Events = append(r.Events, ev)
	return r.Err
}

// Types returns the recorded event types delivered to recipient, in order.
func (r *Recorder) Types(recipient string) []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []EventType
	for _, ev := range r.Events {
		if ev.Recipient == recipient {
			types = append(types, ev.Type)
		}
	}
	return types
}
