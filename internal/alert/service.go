package alert

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Clock answers market-hours queries.
type Clock interface {
	IsOpen(t time.Time) bool
	NextOpen(t time.Time) time.Duration
}

// Service drives the evaluator on a single goroutine. While the market is
// open it polls at a fixed interval; when it closes, polling stops and the
// service sleeps until the next session open. Running everything on one
// loop means a slow pass delays the next tick instead of overlapping it,
// and the one-shot wake-up replaces the recurring tick rather than stacking
// on top of it.
type Service struct {
	evaluator *Evaluator
	clock     Clock
	interval  time.Duration
	now       func() time.Time
}

func NewService(evaluator *Evaluator, clock Clock, interval time.Duration) *Service {
	return &Service{
		evaluator: evaluator,
		clock:     clock,
		interval:  interval,
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Info("alert service started")

	for {
		now := s.now()
		if !s.clock.IsOpen(now) {
			wait := s.clock.NextOpen(now)
			log.Infof("market is closed, next alert check in %s", wait.Round(time.Second))
			if !sleep(ctx, wait) {
				return
			}
			log.Info("market is now open, resuming polling")
			continue
		}

		s.evaluator.CheckAlerts(ctx)

		if !sleep(ctx, s.interval) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
