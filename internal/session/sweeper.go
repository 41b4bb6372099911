// Package session – idle sweeper
//
// Periodically ends sessions that have been quiet past the idle threshold.
// The loop stops on context cancellation or an explicit Stop call; both are
// safe to use together and Stop is idempotent.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper drives Registry.SweepIdleSessions on a fixed interval.
type Sweeper struct {
	Registry    *Registry
	Interval    time.Duration
	IdleTimeout time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSweeper builds a Sweeper with defaults applied.
func NewSweeper(reg *Registry, interval, idleTimeout time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Sweeper{
		Registry:    reg,
		Interval:    interval,
		IdleTimeout: idleTimeout,
		stop:        make(chan struct{}),
	}
}

// Run blocks, sweeping every Interval until the context is canceled or
// Stop is called. Intended to run in its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.Interval).
		Dur("idle_timeout", s.IdleTimeout).
		Msg("idle sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("idle sweeper stopped: context canceled")
			return
		case <-s.stop:
			log.Info().Msg("idle sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Registry.SweepIdleSessions(ctx, s.IdleTimeout); err != nil {
				log.Error().Err(err).Msg("idle sweep failed")
			}
		}
	}
}

// Stop signals Run to exit. Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
