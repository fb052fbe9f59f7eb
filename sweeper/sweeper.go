// Package sweeper periodically closes out work nobody finished: pending
// requests no admin decided, reservations never picked up, and rides left
// running far too long.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/semanticallynull/rental-backend/internal/metrics"
	"github.com/semanticallynull/rental-backend/lock"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/reservation"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/unlock"
)

type Config struct {
	Interval time.Duration
	// PendingTTL is how long an unlock or lock request may wait for an admin.
	PendingTTL time.Duration
	// ReservationGrace is how long past its end a reservation is kept.
	ReservationGrace time.Duration
	// MaxRideAge flags rides running longer than this to the admins.
	MaxRideAge time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:         time.Minute,
		PendingTTL:       15 * time.Minute,
		ReservationGrace: 15 * time.Minute,
		MaxRideAge:       24 * time.Hour,
	}
}

type Sweeper struct {
	reservations reservation.Store
	unlocks      unlock.Store
	locks        lock.Store
	rides        ride.Store
	notifier     notify.Notifier
	logger       *slog.Logger
	cfg          Config
	now          func() time.Time
}

func New(reservations reservation.Store, unlocks unlock.Store, locks lock.Store, rides ride.Store,
	notifier notify.Notifier, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Sweeper{
		reservations: reservations,
		unlocks:      unlocks,
		locks:        locks,
		rides:        rides,
		notifier:     notifier,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
	s.logger.Info("sweeper started", "interval", s.cfg.Interval)
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.SweepOnce(ctx)
		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// SweepOnce runs every pass once. A failing pass is logged and does not stop
// the others.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := s.now()
	if s.cfg.PendingTTL > 0 {
		s.expireUnlocks(ctx, now.Add(-s.cfg.PendingTTL))
		s.expireLocks(ctx, now.Add(-s.cfg.PendingTTL))
	}
	s.expireReservations(ctx, now.Add(-s.cfg.ReservationGrace))
	s.flagStaleRides(ctx, now)
}

func (s *Sweeper) expireUnlocks(ctx context.Context, cutoff time.Time) {
	expired, err := s.unlocks.ExpireUnlocks(ctx, cutoff)
	if err != nil {
		s.logger.WarnContext(ctx, "sweeper: expiring unlock requests failed", "error", err)
		return
	}
	for _, req := range expired {
		metrics.Expired.WithLabelValues("unlock_request").Inc()
		notify.Send(ctx, s.notifier, s.logger, req.UserID.String(), notify.Event{
			Type:      notify.UnlockExpired,
			BikeID:    req.BikeID.String(),
			SubjectID: req.ID.String(),
		})
	}
	if len(expired) > 0 {
		s.logger.InfoContext(ctx, "sweeper: expired unlock requests", "count", len(expired))
	}
}

func (s *Sweeper) expireLocks(ctx context.Context, cutoff time.Time) {
	expired, err := s.locks.ExpireLocks(ctx, cutoff)
	if err != nil {
		s.logger.WarnContext(ctx, "sweeper: expiring lock requests failed", "error", err)
		return
	}
	for _, req := range expired {
		metrics.Expired.WithLabelValues("lock_request").Inc()
		notify.Send(ctx, s.notifier, s.logger, req.UserID.String(), notify.Event{
			Type:      notify.LockExpired,
			BikeID:    req.BikeID.String(),
			SubjectID: req.ID.String(),
			Data:      map[string]any{"rideId": req.RideID.String()},
		})
	}
	if len(expired) > 0 {
		s.logger.InfoContext(ctx, "sweeper: expired lock requests", "count", len(expired))
	}
}

func (s *Sweeper) expireReservations(ctx context.Context, cutoff time.Time) {
	expired, err := s.reservations.ExpireReservations(ctx, cutoff)
	if err != nil {
		s.logger.WarnContext(ctx, "sweeper: expiring reservations failed", "error", err)
		return
	}
	for _, res := range expired {
		metrics.Expired.WithLabelValues("reservation").Inc()
		notify.Send(ctx, s.notifier, s.logger, res.UserID.String(), notify.Event{
			Type:      notify.ReservationExpired,
			BikeID:    res.BikeID.String(),
			SubjectID: res.ID.String(),
		})
	}
	if len(expired) > 0 {
		s.logger.InfoContext(ctx, "sweeper: expired reservations", "count", len(expired))
	}
}

// flagStaleRides never closes a ride; only an approved lock request does.
func (s *Sweeper) flagStaleRides(ctx context.Context, now time.Time) {
	active, err := s.rides.ListActiveRides(ctx, now)
	if err != nil {
		s.logger.WarnContext(ctx, "sweeper: listing active rides failed", "error", err)
		return
	}
	metrics.ActiveRides.Set(float64(len(active)))
	if s.cfg.MaxRideAge <= 0 {
		return
	}

	cutoff := now.Add(-s.cfg.MaxRideAge)
	for _, r := range active {
		if !r.StartTime.Before(cutoff) {
			continue
		}
		s.logger.WarnContext(ctx, "sweeper: ride running past limit", "rideId", r.ID, "bikeId", r.BikeID,
			"startedAt", r.StartTime)
		notify.Send(ctx, s.notifier, s.logger, notify.Admins, notify.Event{
			Type:      notify.RideStale,
			BikeID:    r.BikeID.String(),
			SubjectID: r.ID.String(),
			Data:      map[string]any{"userId": r.UserID.String(), "startedAt": r.StartTime},
		})
	}
}
