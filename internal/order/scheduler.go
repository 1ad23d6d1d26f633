package order

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

func formatAmount(n int64) string { return strconv.FormatInt(n, 10) }

// Scheduler runs the auto-release sweep on a fixed interval. It exists
// so sellers get paid even when a buyer never confirms delivery.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	grace    time.Duration
	log      zerolog.Logger
}

func NewScheduler(svc *Service, interval, grace time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		svc:      svc,
		interval: interval,
		grace:    grace,
		log:      log.With().Str("component", "auto-release").Logger(),
	}
}

// Run blocks until ctx is cancelled. Call it from its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().
		Dur("interval", s.interval).
		Dur("grace", s.grace).
		Msg("auto-release scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("auto-release scheduler stopped")
			return
		case <-ticker.C:
			released, err := s.svc.Sweep(ctx, s.grace)
			if err != nil {
				s.log.Error().Err(err).Msg("sweep failed")
				continue
			}
			if released > 0 {
				s.log.Info().Int("released", released).Msg("sweep complete")
			}
		}
	}
}
