package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"payment-platform/internal/usecase"
)

// ReconciliationScheduler runs the daily reconciliation for every registered
// processor once per day at a fixed wall-clock time, reconciling the previous
// UTC day. Re-running after a restart is safe: finished runs are returned
// as-is by the use case.
type ReconciliationScheduler struct {
	reconUC    usecase.ReconciliationUseCase
	providers  func() []string
	runAt      string // "HH:MM", UTC
	runTimeout time.Duration
	log        *zerolog.Logger
}

func NewReconciliationScheduler(reconUC usecase.ReconciliationUseCase, providers func() []string, runAt string, runTimeout time.Duration, logger *zerolog.Logger) *ReconciliationScheduler {
	compLog := logger.With().Str("component", "ReconciliationScheduler").Logger()
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	return &ReconciliationScheduler{
		reconUC:    reconUC,
		providers:  providers,
		runAt:      runAt,
		runTimeout: runTimeout,
		log:        &compLog,
	}
}

func (s *ReconciliationScheduler) Run(ctx context.Context) error {
	s.log.Info().Str("run_at", s.runAt).Msg("starting reconciliation scheduler")
	for {
		wait := time.Until(s.nextRun(time.Now().UTC()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("stopping reconciliation scheduler")
			return ctx.Err()
		case <-timer.C:
			s.runAll(ctx)
		}
	}
}

// nextRun returns the next occurrence of runAt after now, in UTC.
func (s *ReconciliationScheduler) nextRun(now time.Time) time.Time {
	at, err := time.Parse("15:04", s.runAt)
	if err != nil {
		at, _ = time.Parse("15:04", "02:00")
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *ReconciliationScheduler) runAll(ctx context.Context) {
	day := time.Now().UTC().AddDate(0, 0, -1)
	for _, provider := range s.providers() {
		runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
		rec, err := s.reconUC.Run(runCtx, provider, day)
		cancel()
		if err != nil {
			s.log.Error().Err(err).Str("provider", provider).Msg("scheduled reconciliation failed")
			continue
		}
		s.log.Info().Str("provider", provider).Str("record_id", rec.ID).
			Str("status", string(rec.Status)).Msg("scheduled reconciliation finished")
	}
}
