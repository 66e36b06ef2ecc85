// Package scheduler drives the four recurring HazardWatch jobs: the hourly
// hazard sweep, the retry sweep, the daily digest and the midnight expiry
// run. Interval jobs use tickers; wall-clock jobs sleep until the next
// occurrence of their time of day in the configured location.
//
// A job never overlaps with itself. A tick or RunNow that arrives while the
// same job is in flight is skipped.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"hazardwatch/internal/config"
	"hazardwatch/internal/notifications/core"
	"hazardwatch/internal/observability"
	"hazardwatch/internal/types"
)

// JobName identifies a scheduled job.
type JobName string

const (
	JobHazardSweep JobName = "hazard_sweep"
	JobRetrySweep  JobName = "retry_sweep"
	JobDigest      JobName = "digest"
	JobExpiry      JobName = "expiry"
)

// Jobs lists every job in a stable order.
var Jobs = []JobName{JobHazardSweep, JobRetrySweep, JobDigest, JobExpiry}

// ParseJob validates a job name received from the admin API or a Lambda event.
func ParseJob(s string) (JobName, error) {
	for _, j := range Jobs {
		if string(j) == s {
			return j, nil
		}
	}
	return "", types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidJob, "unknown job", nil,
		map[string]any{"job": s})
}

// ErrJobRunning is returned when a job is requested while it is in flight.
var ErrJobRunning = types.NewAppError(types.ErrCodeConflictJobRunning, "job is already running", nil)

// HazardMonitor runs one sweep over the monitored regions.
type HazardMonitor interface {
	Sweep(ctx context.Context) ([]types.Alert, error)
}

// Deliverer is the subset of core.Orchestrator the jobs use.
type Deliverer interface {
	DeliverToRegion(ctx context.Context, alert *types.Alert) (core.RegionResult, error)
	RetryFailedDeliveries(ctx context.Context) (core.RetryResult, error)
}

// AlertStore is the subset of db.AlertRepository the jobs use.
type AlertStore interface {
	ListActive(ctx context.Context, region string, since time.Time) ([]types.Alert, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// SubscriberStore is the subset of db.SubscriberRepository the digest and
// expiry jobs use.
type SubscriberStore interface {
	ListDigestRecipients(ctx context.Context, now time.Time) ([]types.Subscriber, error)
	ListExpiringUnreminded(ctx context.Context, now time.Time, window time.Duration) ([]types.Subscriber, error)
	MarkReminderSent(ctx context.Context, subscriptionID string, at time.Time) error
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// TextSender sends a pre-rendered SMS body. Implemented by sms.Channel.
type TextSender interface {
	SendText(ctx context.Context, phone, body string) (types.MethodResult, error)
}

// JobHistory persists one row per job run. Implemented by
// db.JobHistoryRepository.
type JobHistory interface {
	Start(ctx context.Context, job string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, jobErr error) error
}

// RunReport summarizes one job run. Alerts, Delivered and Failed are filled
// by the hazard sweep; Items counts the units the other jobs processed.
type RunReport struct {
	Job        JobName       `json:"job"`
	Alerts     int           `json:"alerts"`
	Delivered  int           `json:"delivered"`
	Failed     int           `json:"failed"`
	Items      int           `json:"items,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Config holds the dependencies for a Scheduler.
type Config struct {
	Monitor     HazardMonitor
	Deliverer   Deliverer
	Alerts      AlertStore
	Subscribers SubscriberStore
	SMS         TextSender
	History     JobHistory // optional
	Stats       *observability.RunStats
	Metrics     *observability.Metrics // optional
	Clock       clockwork.Clock
	Location    *time.Location

	HazardInterval time.Duration
	RetryInterval  time.Duration
	DigestAt       config.TimeOfDay
	ExpiryAt       config.TimeOfDay
	ReminderWindow time.Duration

	Logger *slog.Logger
}

// Scheduler owns the job timers and the in-flight guard.
type Scheduler struct {
	monitor     HazardMonitor
	deliverer   Deliverer
	alerts      AlertStore
	subscribers SubscriberStore
	sms         TextSender
	history     JobHistory
	stats       *observability.RunStats
	metrics     *observability.Metrics
	clock       clockwork.Clock
	location    *time.Location

	hazardInterval time.Duration
	retryInterval  time.Duration
	digestAt       config.TimeOfDay
	expiryAt       config.TimeOfDay
	reminderWindow time.Duration

	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[JobName]bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewScheduler(cfg Config) *Scheduler {
	s := &Scheduler{
		monitor:        cfg.Monitor,
		deliverer:      cfg.Deliverer,
		alerts:         cfg.Alerts,
		subscribers:    cfg.Subscribers,
		sms:            cfg.SMS,
		history:        cfg.History,
		stats:          cfg.Stats,
		metrics:        cfg.Metrics,
		clock:          cfg.Clock,
		location:       cfg.Location,
		hazardInterval: cfg.HazardInterval,
		retryInterval:  cfg.RetryInterval,
		digestAt:       cfg.DigestAt,
		expiryAt:       cfg.ExpiryAt,
		reminderWindow: cfg.ReminderWindow,
		logger:         cfg.Logger,
		inFlight:       make(map[JobName]bool, len(Jobs)),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.stats == nil {
		s.stats = observability.NewRunStats(s.clock)
	}
	if s.hazardInterval <= 0 {
		s.hazardInterval = time.Hour
	}
	if s.retryInterval <= 0 {
		s.retryInterval = 15 * time.Minute
	}
	if s.reminderWindow <= 0 {
		s.reminderWindow = 72 * time.Hour
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Start arms the four job timers. Calling Start on a running scheduler is a
// no-op. The timers stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(4)
	go s.every(ctx, JobHazardSweep, s.hazardInterval)
	go s.every(ctx, JobRetrySweep, s.retryInterval)
	go s.daily(ctx, JobDigest, s.digestAt)
	go s.daily(ctx, JobExpiry, s.expiryAt)

	if s.metrics != nil {
		s.metrics.SchedulerRunning.Set(1)
	}
	s.logger.InfoContext(ctx, "scheduler started",
		"hazard_interval", s.hazardInterval.String(),
		"retry_interval", s.retryInterval.String(),
		"digest_at", s.digestAt.String(),
		"expiry_at", s.expiryAt.String(),
		"timezone", s.location.String(),
	)
}

// Stop cancels the timers and waits for in-flight scheduled runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()

	if s.metrics != nil {
		s.metrics.SchedulerRunning.Set(0)
	}
	s.logger.Info("scheduler stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Stats returns the cumulative run counters.
func (s *Scheduler) Stats() observability.StatsSnapshot {
	return s.stats.Snapshot()
}

// RunNow runs the hazard sweep synchronously.
func (s *Scheduler) RunNow(ctx context.Context) (RunReport, error) {
	return s.run(ctx, JobHazardSweep)
}

// RunJob runs the named job synchronously. Used by the admin API and the
// job-runner Lambda.
func (s *Scheduler) RunJob(ctx context.Context, name string) (RunReport, error) {
	job, err := ParseJob(name)
	if err != nil {
		return RunReport{}, err
	}
	return s.run(ctx, job)
}

func (s *Scheduler) every(ctx context.Context, job JobName, interval time.Duration) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.scheduled(ctx, job)
		}
	}
}

func (s *Scheduler) daily(ctx context.Context, job JobName, at config.TimeOfDay) {
	defer s.wg.Done()
	for {
		now := s.clock.Now()
		next := NextRun(now, at, s.location)
		timer := s.clock.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
			s.scheduled(ctx, job)
		}
	}
}

// scheduled runs a timer-triggered job. Errors are already logged by run.
func (s *Scheduler) scheduled(ctx context.Context, job JobName) {
	_, _ = s.run(ctx, job)
}

func (s *Scheduler) acquire(job JobName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[job] {
		return false
	}
	s.inFlight[job] = true
	return true
}

func (s *Scheduler) release(job JobName) {
	s.mu.Lock()
	delete(s.inFlight, job)
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context, job JobName) (RunReport, error) {
	if !s.acquire(job) {
		s.logger.WarnContext(ctx, "job already running, skipping", "job", job)
		s.countRun(job, "skipped")
		return RunReport{Job: job}, ErrJobRunning
	}
	defer s.release(job)

	historyID := s.startHistory(ctx, job)
	start := s.clock.Now()

	var (
		report RunReport
		err    error
	)
	switch job {
	case JobHazardSweep:
		report, err = s.runHazardSweep(ctx)
	case JobRetrySweep:
		report, err = s.runRetrySweep(ctx)
	case JobDigest:
		report, err = s.runDigest(ctx)
	case JobExpiry:
		report, err = s.runExpiry(ctx)
	}
	report.Job = job
	report.Duration = s.clock.Since(start)
	report.DurationMS = report.Duration.Milliseconds()

	items := report.Items
	if job == JobHazardSweep {
		items = report.Alerts
	}
	s.finishHistory(ctx, historyID, items, err)

	if s.metrics != nil {
		s.metrics.JobDuration.WithLabelValues(string(job)).Observe(report.Duration.Seconds())
	}
	if err != nil {
		s.countRun(job, "failure")
		s.logger.ErrorContext(ctx, "job failed",
			"job", job,
			"duration_ms", report.DurationMS,
			"error", err,
		)
		return report, err
	}

	s.countRun(job, "success")
	s.logger.InfoContext(ctx, "job complete",
		"job", job,
		"alerts", report.Alerts,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"items", report.Items,
		"duration_ms", report.DurationMS,
	)
	return report, nil
}

func (s *Scheduler) countRun(job JobName, outcome string) {
	if s.metrics != nil {
		s.metrics.JobRuns.WithLabelValues(string(job), outcome).Inc()
	}
}

// startHistory returns 0 when history is disabled or the insert failed; the
// job still runs.
func (s *Scheduler) startHistory(ctx context.Context, job JobName) int64 {
	if s.history == nil {
		return 0
	}
	id, err := s.history.Start(ctx, string(job))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record job start", "job", job, "error", err)
		return 0
	}
	return id
}

func (s *Scheduler) finishHistory(ctx context.Context, id int64, items int, jobErr error) {
	if s.history == nil || id == 0 {
		return
	}
	status := "success"
	if jobErr != nil {
		status = "failed"
	}
	// The run context may already be cancelled on shutdown.
	if err := s.history.Finish(context.WithoutCancel(ctx), id, status, items, jobErr); err != nil {
		s.logger.WarnContext(ctx, "failed to record job finish", "history_id", id, "error", err)
	}
}
