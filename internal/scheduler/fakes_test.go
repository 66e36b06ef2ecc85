package scheduler

import (
	"context"
	"sync"
	"time"

	"hazardwatch/internal/notifications/core"
	"hazardwatch/internal/types"
)

type fakeMonitor struct {
	alerts []types.Alert
	err    error
	calls  int
	// block, when set, holds Sweep until it is closed.
	block chan struct{}
}

func (m *fakeMonitor) Sweep(ctx context.Context) ([]types.Alert, error) {
	m.calls++
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.alerts, m.err
}

type fakeDeliverer struct {
	mu       sync.Mutex
	results  map[string]core.RegionResult
	errs     map[string]error
	regions  []string
	retry    core.RetryResult
	retryErr error
	retried  chan struct{}
}

func (d *fakeDeliverer) DeliverToRegion(_ context.Context, alert *types.Alert) (core.RegionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regions = append(d.regions, alert.Region)
	if err := d.errs[alert.ID]; err != nil {
		return core.RegionResult{AlertID: alert.ID}, err
	}
	return d.results[alert.ID], nil
}

func (d *fakeDeliverer) RetryFailedDeliveries(context.Context) (core.RetryResult, error) {
	if d.retried != nil {
		d.retried <- struct{}{}
	}
	return d.retry, d.retryErr
}

type fakeAlerts struct {
	active    []types.Alert
	listErr   error
	since     time.Time
	expired   int64
	expireErr error
	expiredAt time.Time
}

func (a *fakeAlerts) ListActive(_ context.Context, _ string, since time.Time) ([]types.Alert, error) {
	a.since = since
	return a.active, a.listErr
}

func (a *fakeAlerts) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	a.expiredAt = now
	return a.expired, a.expireErr
}

type fakeSubscribers struct {
	digest      []types.Subscriber
	expiring    []types.Subscriber
	window      time.Duration
	reminded    []string
	lapsed      int64
	lapsedErr   error
	expiringErr error
}

func (s *fakeSubscribers) ListDigestRecipients(context.Context, time.Time) ([]types.Subscriber, error) {
	return s.digest, nil
}

func (s *fakeSubscribers) ListExpiringUnreminded(_ context.Context, _ time.Time, window time.Duration) ([]types.Subscriber, error) {
	s.window = window
	return s.expiring, s.expiringErr
}

func (s *fakeSubscribers) MarkReminderSent(_ context.Context, subscriptionID string, _ time.Time) error {
	s.reminded = append(s.reminded, subscriptionID)
	return nil
}

func (s *fakeSubscribers) ExpireLapsed(context.Context, time.Time) (int64, error) {
	return s.lapsed, s.lapsedErr
}

type sentText struct {
	phone string
	body  string
}

// fakeSMS fails any number listed in failFor.
type fakeSMS struct {
	sent    []sentText
	failFor map[string]bool
}

func (f *fakeSMS) SendText(_ context.Context, phone, body string) (types.MethodResult, error) {
	if f.failFor[phone] {
		err := types.NewAppError(types.ErrCodeUpstreamSMS, "gateway down", nil)
		return types.MethodResult{Method: types.MethodSMS, Status: types.DeliveryFailed, Error: err.Error()}, err
	}
	f.sent = append(f.sent, sentText{phone: phone, body: body})
	return types.MethodResult{Method: types.MethodSMS, Success: true, Status: types.DeliverySent}, nil
}

type historyEntry struct {
	job    string
	status string
	items  int
	err    error
}

type fakeHistory struct {
	mu      sync.Mutex
	entries map[int64]*historyEntry
	nextID  int64
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: map[int64]*historyEntry{}}
}

func (h *fakeHistory) Start(_ context.Context, job string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.entries[h.nextID] = &historyEntry{job: job, status: "running"}
	return h.nextID, nil
}

func (h *fakeHistory) Finish(_ context.Context, id int64, status string, items int, jobErr error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entries[id]
	e.status, e.items, e.err = status, items, jobErr
	return nil
}
