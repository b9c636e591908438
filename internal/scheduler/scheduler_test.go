package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/lifecycle"
	certvaulttesting "github.com/albedosehen/certvault/internal/testing"
)

// renewRecorder stubs the one method the scheduler calls; everything else
// panics if reached.
type renewRecorder struct {
	lifecycle.Service
	calls  int
	report *lifecycle.RenewalReport
	err    error
}

func (r *renewRecorder) AutoRenew(ctx context.Context) (*lifecycle.RenewalReport, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.report, nil
}

func newTestScheduler(cfg config.ScheduleConfig) (*Scheduler, *certvaulttesting.RecordingProducer, *renewRecorder) {
	producer := certvaulttesting.NewRecordingProducer()
	svc := &renewRecorder{report: &lifecycle.RenewalReport{}}
	s := NewScheduler(cfg, producer, svc, certvaulttesting.NewNopLogger())
	return s, producer, svc
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", value)
	require.NoError(t, err)
	return parsed
}

func TestNextDailyRun(t *testing.T) {
	tests := []struct {
		name   string
		now    string
		hour   int
		minute int
		want   string
	}{
		{name: "later today", now: "2026-08-25 00:30:00", hour: 1, minute: 0, want: "2026-08-26 01:00:00"},
		{name: "before target", now: "2026-08-25 00:30:00", hour: 2, minute: 15, want: "2026-08-25 02:15:00"},
		{name: "already passed", now: "2026-08-25 03:00:00", hour: 1, minute: 0, want: "2026-08-26 01:00:00"},
		{name: "exact moment rolls over", now: "2026-08-25 01:00:00", hour: 1, minute: 0, want: "2026-08-26 01:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextDailyRun(mustTime(t, tt.now), tt.hour, tt.minute)
			assert.Equal(t, mustTime(t, tt.want), got)
		})
	}
}

func TestNextWeeklyRun(t *testing.T) {
	// 2026-08-25 is a Tuesday.
	tests := []struct {
		name string
		now  string
		day  time.Weekday
		hour int
		want string
	}{
		{name: "later this week", now: "2026-08-25 12:00:00", day: time.Friday, hour: 2, want: "2026-08-28 02:00:00"},
		{name: "same day before target", now: "2026-08-25 01:00:00", day: time.Tuesday, hour: 2, want: "2026-08-25 02:00:00"},
		{name: "same day after target", now: "2026-08-25 03:00:00", day: time.Tuesday, hour: 2, want: "2026-09-01 02:00:00"},
		{name: "earlier weekday wraps", now: "2026-08-25 12:00:00", day: time.Monday, hour: 2, want: "2026-08-31 02:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextWeeklyRun(mustTime(t, tt.now), tt.day, tt.hour, 0)
			assert.Equal(t, mustTime(t, tt.want), got)
		})
	}
}

func TestRunWeeklyRefreshEmitsPoolStoresOnly(t *testing.T) {
	s, producer, _ := newTestScheduler(config.ScheduleConfig{Enabled: true})

	s.runWeeklyRefresh(context.Background())

	refreshes := producer.EventsOfType(events.TypeOperationRefresh)
	require.Len(t, refreshes, 2)

	var stores []certstore.Store
	for _, ev := range refreshes {
		assert.Equal(t, events.TriggerScheduled, ev.Trigger)
		stores = append(stores, ev.Store)
	}
	assert.ElementsMatch(t, []certstore.Store{certstore.StoreWebsites, certstore.StoreAPIs}, stores)
}

func TestRunWeeklyRefreshContinuesPastPublishFailure(t *testing.T) {
	s, producer, _ := newTestScheduler(config.ScheduleConfig{Enabled: true})
	producer.Err = errors.New("broker down")

	// Both stores are attempted even though every publish fails.
	s.runWeeklyRefresh(context.Background())
	assert.Empty(t, producer.Events())
}

func TestRunDailyRenewal(t *testing.T) {
	s, _, svc := newTestScheduler(config.ScheduleConfig{Enabled: true})
	svc.report = &lifecycle.RenewalReport{Candidates: 3, Renewed: 2, Failed: 1}

	s.runDailyRenewal(context.Background())
	assert.Equal(t, 1, svc.calls)

	// A sweep error is logged, not fatal.
	svc.err = errors.New("database gone")
	s.runDailyRenewal(context.Background())
	assert.Equal(t, 2, svc.calls)
}

func TestRunDisabledReturnsImmediately(t *testing.T) {
	s, _, _ := newTestScheduler(config.ScheduleConfig{Enabled: false})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("disabled scheduler did not return")
	}
}

func TestRunRejectsBadWeekday(t *testing.T) {
	s, _, _ := newTestScheduler(config.ScheduleConfig{Enabled: true, WeeklyDay: "noday"})

	err := s.Run(context.Background())
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _ := newTestScheduler(config.ScheduleConfig{
		Enabled: true, WeeklyDay: "mon", WeeklyHour: 2, DailyHour: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}

func TestRunFiresDueJobs(t *testing.T) {
	s, producer, svc := newTestScheduler(config.ScheduleConfig{
		Enabled: true, WeeklyDay: "tue", WeeklyHour: 2, DailyHour: 2,
	})

	// Pin the clock just before a coincident weekly+daily slot so the
	// timer fires within milliseconds.
	base := mustTime(t, "2026-08-25 01:59:59").Add(950 * time.Millisecond)
	s.now = func() time.Time { return base }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	certvaulttesting.AssertEventuallyTrue(t, func() bool {
		return len(producer.EventsOfType(events.TypeOperationRefresh)) >= 2
	}, 3*time.Second, "weekly refresh did not fire")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after firing")
	}

	assert.GreaterOrEqual(t, svc.calls, 1)
}
