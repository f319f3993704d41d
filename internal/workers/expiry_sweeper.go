package workers

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/groupspeak/internal/models"
	pgrepo "github.com/yoockh/groupspeak/internal/repositories/postgres"
	"github.com/yoockh/groupspeak/internal/services"
)

// ExpirySweeper moves sessions whose persisted deadline has passed. Every move
// is a conditional transition, so any number of replicas can sweep at once.
type ExpirySweeper struct {
	Sessions  pgrepo.SessionRepository
	Lifecycle services.SessionService
	Interval  time.Duration
	BatchSize int
	Logger    *logrus.Logger

	now func() time.Time
}

type sweepRule struct {
	from  models.SessionStatus
	to    models.SessionStatus
	grace func(services.SessionSettings) time.Duration
}

var sweepRules = []sweepRule{
	{models.StatusWaiting, models.StatusExpired, func(services.SessionSettings) time.Duration { return 0 }},
	{models.StatusPreparation, models.StatusExpired, func(c services.SessionSettings) time.Duration { return c.PreparationDuration }},
	{models.StatusDiscussion, models.StatusEvaluation, func(c services.SessionSettings) time.Duration { return c.DiscussionDuration }},
}

func (w *ExpirySweeper) Start(ctx context.Context) error {
	if w.Sessions == nil || w.Lifecycle == nil {
		return errors.New("ExpirySweeper missing dependency: Sessions/Lifecycle must be set")
	}
	if w.Interval <= 0 {
		w.Interval = 15 * time.Second
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 100
	}
	if w.Logger == nil {
		w.Logger = logrus.New()
	}
	if w.now == nil {
		w.now = func() time.Time { return time.Now().UTC() }
	}

	go func() {
		t := time.NewTicker(w.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				w.Sweep(ctx)
			}
		}
	}()
	return nil
}

// Sweep runs one pass and returns how many transitions this caller applied.
func (w *ExpirySweeper) Sweep(ctx context.Context) int {
	if w.now == nil {
		w.now = func() time.Time { return time.Now().UTC() }
	}
	if w.Logger == nil {
		w.Logger = logrus.New()
	}
	cfg := w.Lifecycle.Settings()
	now := w.now()

	applied := 0
	for _, rule := range sweepRules {
		due, err := w.Sessions.ListDue(ctx, rule.from, now.Add(-rule.grace(cfg)), w.BatchSize)
		if err != nil {
			w.Logger.WithError(err).WithField("status", rule.from).Warn("sweep query failed")
			continue
		}
		for _, s := range due {
			ok, err := w.Lifecycle.Transition(ctx, s.ID, rule.from, rule.to, nil)
			if err != nil {
				w.Logger.WithError(err).WithField("session_id", s.ID).Warn("sweep transition failed")
				continue
			}
			if ok {
				applied++
				w.Logger.WithFields(logrus.Fields{"session_id": s.ID, "from": rule.from, "to": rule.to}).Info("session deadline passed")
			}
		}
	}
	return applied
}
