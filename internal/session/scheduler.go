package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	TriggerTimer = "timer"
	TriggerFocus = "focus"
)

// tickerFunc starts a periodic source and returns its channel and a stop func.
type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func newTimeTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Scheduler renews the session in the background on a fixed interval and
// whenever Focus is called.
type Scheduler struct {
	sessions *Manager
	interval time.Duration
	focus    chan struct{}
	tick     tickerFunc
	wg       sync.WaitGroup
	log      *zap.SugaredLogger
}

func NewScheduler(sessions *Manager, interval time.Duration, log *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Scheduler{
		sessions: sessions,
		interval: interval,
		focus:    make(chan struct{}, 1),
		tick:     newTimeTicker,
		log:      log,
	}
}

// Focus signals that the user returned. It never blocks; bursts collapse into one check.
func (s *Scheduler) Focus() {
	select {
	case s.focus <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done, then waits for running checks to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	ticks, stop := s.tick(s.interval)
	defer stop()
	defer s.wg.Wait()

	s.log.Infow("refresh scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("refresh scheduler stopped")
			return nil
		case <-ticks:
			s.spawn(ctx, TriggerTimer)
		case <-s.focus:
			s.spawn(ctx, TriggerFocus)
		}
	}
}

// Triggers run concurrently; the coordinator collapses overlapping refreshes.
func (s *Scheduler) spawn(ctx context.Context, trigger string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Check(ctx, trigger)
	}()
}

// Check refreshes the session if it is due.
func (s *Scheduler) Check(ctx context.Context, trigger string) {
	if !s.sessions.RefreshDue(ctx) {
		return
	}
	s.log.Debugw("session refresh due", "trigger", trigger)
	if _, err := s.sessions.Refresh(ctx); err != nil {
		s.log.Warnw("background refresh failed", "trigger", trigger, "error", err)
	}
}
