// Package scheduler runs the two recurring jobs of the worker role: a weekly
// pool re-import and a daily renewal sweep. Both fire at configured local
// wall-clock times rather than on fixed intervals, so a restart never shifts
// the schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/lifecycle"
	"github.com/albedosehen/certvault/internal/observability"
)

// Scheduler fires the weekly refresh and daily renewal jobs.
type Scheduler struct {
	cfg       config.ScheduleConfig
	producer  events.Producer
	lifecycle lifecycle.Service
	logger    observability.Logger
	now       func() time.Time
}

// NewScheduler creates the job runner.
func NewScheduler(
	cfg config.ScheduleConfig,
	producer events.Producer,
	svc lifecycle.Service,
	logger observability.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		producer:  producer,
		lifecycle: svc,
		logger:    logger.WithFields(observability.Component("scheduler")),
		now:       time.Now,
	}
}

// Run blocks until the context is canceled, firing each job at its next
// wall-clock occurrence. A disabled schedule returns immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info(ctx, "schedule disabled, scheduler not running")
		return nil
	}

	weekday, err := s.cfg.Weekday()
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "scheduler started",
		observability.String("weekly_day", s.cfg.WeeklyDay),
		observability.Int("weekly_hour", s.cfg.WeeklyHour),
		observability.Int("daily_hour", s.cfg.DailyHour))

	for {
		now := s.now()
		nextWeekly := nextWeeklyRun(now, weekday, s.cfg.WeeklyHour, s.cfg.WeeklyMinute)
		nextDaily := nextDailyRun(now, s.cfg.DailyHour, s.cfg.DailyMinute)

		next := nextDaily
		if nextWeekly.Before(next) {
			next = nextWeekly
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info(ctx, "scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		// Coincident times run both; the refresh goes first so the renewal
		// sweep sees freshly imported rows.
		if !nextWeekly.After(next) {
			s.runWeeklyRefresh(ctx)
		}
		if !nextDaily.After(next) {
			s.runDailyRenewal(ctx)
		}
	}
}

// runWeeklyRefresh asks the worker to re-import every pool-backed store.
func (s *Scheduler) runWeeklyRefresh(ctx context.Context) {
	for _, store := range certstore.Stores {
		if !store.HasPoolDir() {
			continue
		}
		if err := s.producer.PublishRefresh(ctx, store, events.TriggerScheduled); err != nil {
			s.logger.Error(ctx, err, "failed to emit scheduled refresh",
				observability.Store(store.String()))
			continue
		}
		s.logger.Info(ctx, "scheduled refresh emitted",
			observability.Store(store.String()))
	}
}

// runDailyRenewal recomputes expiry and renews certificates in the window.
func (s *Scheduler) runDailyRenewal(ctx context.Context) {
	report, err := s.lifecycle.AutoRenew(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "daily renewal sweep failed")
		return
	}
	s.logger.Info(ctx, "daily renewal sweep finished",
		observability.Int64("recomputed", report.Recomputed),
		observability.Int("candidates", report.Candidates),
		observability.Int("renewed", report.Renewed),
		observability.Int("failed", report.Failed),
		observability.Int("skipped", report.Skipped))
}

// nextDailyRun returns the next occurrence of hour:minute strictly after now.
func nextDailyRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// nextWeeklyRun returns the next occurrence of day hour:minute strictly
// after now.
func nextWeeklyRun(now time.Time, day time.Weekday, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	days := (int(day) - int(now.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, days)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}
