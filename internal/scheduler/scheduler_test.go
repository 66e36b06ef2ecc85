package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardwatch/internal/config"
	"hazardwatch/internal/notifications/core"
	"hazardwatch/internal/observability"
	"hazardwatch/internal/types"
)

var now = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type harness struct {
	clock       *clockwork.FakeClock
	monitor     *fakeMonitor
	deliverer   *fakeDeliverer
	alerts      *fakeAlerts
	subscribers *fakeSubscribers
	sms         *fakeSMS
	history     *fakeHistory
	metrics     *observability.Metrics
	sched       *Scheduler
}

func newHarness(t *testing.T, at time.Time) *harness {
	t.Helper()
	h := &harness{
		clock:       clockwork.NewFakeClockAt(at),
		monitor:     &fakeMonitor{},
		deliverer:   &fakeDeliverer{results: map[string]core.RegionResult{}, errs: map[string]error{}},
		alerts:      &fakeAlerts{},
		subscribers: &fakeSubscribers{},
		sms:         &fakeSMS{failFor: map[string]bool{}},
		history:     newFakeHistory(),
		metrics:     observability.NewMetricsForTesting(),
	}
	h.sched = NewScheduler(Config{
		Monitor:     h.monitor,
		Deliverer:   h.deliverer,
		Alerts:      h.alerts,
		Subscribers: h.subscribers,
		SMS:         h.sms,
		History:     h.history,
		Metrics:     h.metrics,
		Clock:       h.clock,
		DigestAt:    config.TimeOfDay{Hour: 7},
		ExpiryAt:    config.TimeOfDay{},
	})
	return h
}

func TestRunNow_DeliversEveryAlert(t *testing.T) {
	h := newHarness(t, now)
	h.monitor.alerts = []types.Alert{
		{ID: "a1", Region: "Dodoma", Type: types.HazardFlood, Severity: types.SeverityHigh},
		{ID: "a2", Region: "Tanga", Type: types.HazardCyclone, Severity: types.SeverityCritical},
	}
	h.deliverer.results["a1"] = core.RegionResult{AlertID: "a1", Recipients: 4, Delivered: 3, Failed: 1}
	h.deliverer.results["a2"] = core.RegionResult{AlertID: "a2", Recipients: 2, Delivered: 2}

	report, err := h.sched.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, JobHazardSweep, report.Job)
	assert.Equal(t, 2, report.Alerts)
	assert.Equal(t, 5, report.Delivered)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"Dodoma", "Tanga"}, h.deliverer.regions)

	stats := h.sched.Stats()
	assert.Equal(t, int64(5), stats.AlertsDelivered)
	assert.Equal(t, int64(1), stats.DeliveryFailures)
	assert.Equal(t, "83.33%", stats.SuccessRate)

	require.Contains(t, h.history.entries, int64(1))
	entry := h.history.entries[1]
	assert.Equal(t, "hazard_sweep", entry.job)
	assert.Equal(t, "success", entry.status)
	assert.Equal(t, 2, entry.items)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.JobRuns.WithLabelValues("hazard_sweep", "success")))
}

func TestRunNow_RegionFailureDoesNotStopOthers(t *testing.T) {
	h := newHarness(t, now)
	h.monitor.alerts = []types.Alert{
		{ID: "a1", Region: "Dodoma"},
		{ID: "a2", Region: "Tanga"},
	}
	h.deliverer.errs["a1"] = types.NewAppError(types.ErrCodeInternalDB, "failed to list subscribers", nil)
	h.deliverer.results["a2"] = core.RegionResult{Delivered: 1}

	report, err := h.sched.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Dodoma", "Tanga"}, h.deliverer.regions)
	assert.Equal(t, 1, report.Delivered)
}

func TestRunNow_SweepErrorIsReported(t *testing.T) {
	h := newHarness(t, now)
	h.monitor.alerts = []types.Alert{{ID: "a1", Region: "Dodoma"}}
	h.monitor.err = context.DeadlineExceeded
	h.deliverer.results["a1"] = core.RegionResult{Delivered: 2}

	report, err := h.sched.RunNow(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, report.Delivered, "alerts from the partial sweep are still delivered")
	assert.Equal(t, "failed", h.history.entries[1].status)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.JobRuns.WithLabelValues("hazard_sweep", "failure")))
}

func TestRunNow_SkipsWhenAlreadyRunning(t *testing.T) {
	h := newHarness(t, now)
	require.True(t, h.sched.acquire(JobHazardSweep))

	_, err := h.sched.RunNow(context.Background())
	require.ErrorIs(t, err, ErrJobRunning)
	assert.Equal(t, types.ErrCodeConflictJobRunning, types.CodeOf(err))
	assert.Zero(t, h.monitor.calls)
	assert.Empty(t, h.history.entries)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.JobRuns.WithLabelValues("hazard_sweep", "skipped")))

	h.sched.release(JobHazardSweep)
	_, err = h.sched.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.monitor.calls)
}

func TestRunJob_UnknownJob(t *testing.T) {
	h := newHarness(t, now)
	_, err := h.sched.RunJob(context.Background(), "vacuum")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationInvalidJob, types.CodeOf(err))
}

func TestRunJob_RetrySweep(t *testing.T) {
	h := newHarness(t, now)
	h.deliverer.retry = core.RetryResult{Candidates: 5, Retried: 4, Succeeded: 3, Failed: 1}

	report, err := h.sched.RunJob(context.Background(), "retry_sweep")
	require.NoError(t, err)
	assert.Equal(t, 4, report.Items)
	require.NotNil(t, h.sched.Stats().LastRetrySweep)
	assert.True(t, h.sched.Stats().LastRetrySweep.Equal(now))
}

func TestRunJob_RetrySweepError(t *testing.T) {
	h := newHarness(t, now)
	h.deliverer.retryErr = errors.New("boom")

	_, err := h.sched.RunJob(context.Background(), "retry_sweep")
	require.Error(t, err)
	assert.Nil(t, h.sched.Stats().LastRetrySweep)
}

func TestRunJob_Digest(t *testing.T) {
	h := newHarness(t, now)
	h.alerts.active = []types.Alert{
		{ID: "a1", Region: "Dodoma", Type: types.HazardFlood, Severity: types.SeverityHigh},
		{ID: "a2", Region: "Mwanza", Type: types.HazardHeatwave, Severity: types.SeverityMedium},
	}
	h.subscribers.digest = []types.Subscriber{
		{ID: "s1", Phone: "+255700000001", Region: "Dodoma", Language: "en"},
		{ID: "s2", Phone: "+255700000002", Region: "Mwanza", Language: "sw"},
		{ID: "s3", Phone: "+255700000003", Region: "Arusha", Language: "en"},
	}
	h.sms.failFor["+255700000003"] = true

	report, err := h.sched.RunJob(context.Background(), "digest")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Items)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, h.alerts.since.Equal(now.Add(-24*time.Hour)))
	require.Len(t, h.sms.sent, 2)
	assert.Equal(t, "HazardWatch daily: 1 active alerts. Dodoma FLOOD/HIGH", h.sms.sent[0].body)
	assert.Contains(t, h.sms.sent[1].body, "Mwanza JOTO KALI/WASTANI")
	assert.NotNil(t, h.sched.Stats().LastDigest)
}

func TestRunJob_DigestListError(t *testing.T) {
	h := newHarness(t, now)
	h.alerts.listErr = types.NewAppError(types.ErrCodeInternalDB, "failed to query active alerts", nil)

	_, err := h.sched.RunJob(context.Background(), "digest")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	assert.Empty(t, h.sms.sent)
	assert.Nil(t, h.sched.Stats().LastDigest)
}

func TestRunJob_Expiry(t *testing.T) {
	h := newHarness(t, now)
	h.subscribers.expiring = []types.Subscriber{
		{ID: "s1", Phone: "+255700000001", Language: "en", Subscription: types.Subscription{
			ID: "p1", Plan: types.PlanPremium, ExpiresAt: now.Add(48 * time.Hour),
		}},
		{ID: "s2", Phone: "+255700000002", Language: "en", Subscription: types.Subscription{
			ID: "p2", Plan: types.PlanBasic, ExpiresAt: now.Add(24 * time.Hour),
		}},
	}
	h.sms.failFor["+255700000002"] = true
	h.subscribers.lapsed = 3
	h.alerts.expired = 2

	report, err := h.sched.RunJob(context.Background(), "expiry")
	require.NoError(t, err)

	assert.Equal(t, 72*time.Hour, h.subscribers.window)
	assert.Equal(t, []string{"p1"}, h.subscribers.reminded, "a failed reminder is retried on the next run")
	require.Len(t, h.sms.sent, 1)
	assert.Equal(t, "Your HazardWatch premium plan expires on 12 Mar 2026. Renew to keep receiving alerts.", h.sms.sent[0].body)
	assert.Equal(t, 4, report.Items)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, h.alerts.expiredAt.Equal(now))
	assert.NotNil(t, h.sched.Stats().LastExpiry)
}

func TestRunJob_ExpiryRunsEveryStep(t *testing.T) {
	h := newHarness(t, now)
	h.subscribers.expiringErr = errors.New("list failed")
	h.subscribers.lapsedErr = errors.New("update failed")
	h.alerts.expired = 1

	_, err := h.sched.RunJob(context.Background(), "expiry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing expiring subscriptions")
	assert.Contains(t, err.Error(), "expiring subscriptions: update failed")
	assert.True(t, h.alerts.expiredAt.Equal(now), "alerts are expired even when the subscription steps fail")
	assert.Equal(t, "failed", h.history.entries[1].status)
}

func TestStartStop_IntervalJobFires(t *testing.T) {
	h := newHarness(t, now)
	h.deliverer.retried = make(chan struct{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.sched.Start(ctx)
	assert.True(t, h.sched.Running())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SchedulerRunning))

	require.NoError(t, h.clock.BlockUntilContext(ctx, 4))
	h.clock.Advance(15 * time.Minute)

	select {
	case <-h.deliverer.retried:
	case <-ctx.Done():
		t.Fatal("retry sweep did not run after one interval")
	}

	h.sched.Stop()
	assert.False(t, h.sched.Running())
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.SchedulerRunning))
	assert.Zero(t, h.monitor.calls, "hazard sweep waits a full hour")
}

func TestStartStop_WallClockJobFires(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 10, 6, 50, 0, 0, time.UTC))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.sched.Start(ctx)
	defer h.sched.Stop()

	require.NoError(t, h.clock.BlockUntilContext(ctx, 4))
	h.clock.Advance(10 * time.Minute)

	require.Eventually(t, func() bool {
		return h.sched.Stats().LastDigest != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Nil(t, h.sched.Stats().LastExpiry)
}

func TestStart_IsIdempotent(t *testing.T) {
	h := newHarness(t, now)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.sched.Start(ctx)
	h.sched.Start(ctx)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 4))

	h.sched.Stop()
	h.sched.Stop()
	assert.False(t, h.sched.Running())
}

func TestNextRun(t *testing.T) {
	eat := time.FixedZone("EAT", 3*60*60)
	tests := []struct {
		name string
		now  time.Time
		at   config.TimeOfDay
		loc  *time.Location
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC),
			at:   config.TimeOfDay{Hour: 7},
			loc:  time.UTC,
			want: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC),
		},
		{
			name: "already passed",
			now:  time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
			at:   config.TimeOfDay{Hour: 7},
			loc:  time.UTC,
			want: time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly now rolls over",
			now:  time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC),
			at:   config.TimeOfDay{Hour: 7},
			loc:  time.UTC,
			want: time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC),
		},
		{
			name: "local midnight",
			now:  time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC),
			at:   config.TimeOfDay{},
			loc:  eat,
			want: time.Date(2026, 3, 11, 21, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.now, tt.at, tt.loc)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestParseJob(t *testing.T) {
	for _, j := range Jobs {
		got, err := ParseJob(string(j))
		require.NoError(t, err)
		assert.Equal(t, j, got)
	}
	_, err := ParseJob("")
	assert.Error(t, err)
}
