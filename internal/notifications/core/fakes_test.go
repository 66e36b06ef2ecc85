package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"hazardwatch/internal/types"
)

// fakeChannel returns a fixed outcome and tracks concurrency.
type fakeChannel struct {
	method   types.DeliveryMethod
	provider string
	err      error
	delay    time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (c *fakeChannel) Method() types.DeliveryMethod { return c.method }

func (c *fakeChannel) Deliver(_ context.Context, alert *types.Alert, sub *types.Subscriber) (types.MethodResult, error) {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		prev := c.maxSeen.Load()
		if n <= prev || c.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	res := types.MethodResult{Method: c.method, Provider: c.provider}
	if c.err != nil {
		res.Status = types.DeliveryFailed
		res.Error = c.err.Error()
		return res, c.err
	}
	res.Success = true
	res.Status = types.DeliverySent
	if c.method == types.MethodPush {
		res.Status = types.DeliveryDelivered
	}
	res.ProviderMessageID = c.provider + "-" + alert.ID + "-" + sub.ID
	return res, nil
}

// fakeDeliveryStore mimics the deliveries table, including the conditional
// claim.
type fakeDeliveryStore struct {
	mu        sync.Mutex
	records   map[string]*types.DeliveryRecord
	recordErr error
	nextID    int
	claimFail map[string]bool
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{records: map[string]*types.DeliveryRecord{}}
}

func (s *fakeDeliveryStore) Record(_ context.Context, d *types.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.nextID++
	d.ID = fmt.Sprintf("d%d", s.nextID)
	d.Attempts = 1
	cp := *d
	s.records[d.ID] = &cp
	return nil
}

func (s *fakeDeliveryStore) put(d types.DeliveryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[d.ID] = &d
}

func (s *fakeDeliveryStore) get(id string) types.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

func (s *fakeDeliveryStore) forSubscriber(subID string) []types.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.DeliveryRecord
	for _, r := range s.records {
		if r.SubscriberID == subID {
			out = append(out, *r)
		}
	}
	return out
}

// successfulBetween counts sent and delivered records for subID with sent_at
// in [start, end).
func (s *fakeDeliveryStore) successfulBetween(subID string, start, end time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.SubscriberID != subID {
			continue
		}
		if r.Status != types.DeliverySent && r.Status != types.DeliveryDelivered {
			continue
		}
		if !r.SentAt.Before(start) && r.SentAt.Before(end) {
			n++
		}
	}
	return n
}

func (s *fakeDeliveryStore) ListRetryable(_ context.Context, since time.Time, maxAttempts, limit int) ([]types.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.DeliveryRecord
	for _, r := range s.records {
		if r.Status == types.DeliveryFailed && r.Attempts < maxAttempts && !r.SentAt.Before(since) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeDeliveryStore) ClaimRetry(_ context.Context, id string, maxAttempts int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || s.claimFail[id] || r.Status != types.DeliveryFailed || r.Attempts >= maxAttempts {
		return 0, false, nil
	}
	r.Attempts++
	return r.Attempts, true, nil
}

func (s *fakeDeliveryStore) RecordRetryOutcome(_ context.Context, d *types.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[d.ID]
	r.Status = d.Status
	r.Provider = d.Provider
	r.ProviderMessageID = d.ProviderMessageID
	r.LastError = d.LastError
	r.DeliveredAt = d.DeliveredAt
	return nil
}

// fakeSubscriberStore mimics the daily cap upsert: the count is the
// subscriber's sent and delivered records for the local day in deliveries,
// plus outstanding holds.
type fakeSubscriberStore struct {
	mu         sync.Mutex
	subs       []types.Subscriber
	deliveries *fakeDeliveryStore
	holds      map[string]int
	usage      map[string]int
	listErr    error
	released   int
}

func newFakeSubscriberStore(deliveries *fakeDeliveryStore, subs ...types.Subscriber) *fakeSubscriberStore {
	return &fakeSubscriberStore{subs: subs, deliveries: deliveries, holds: map[string]int{}, usage: map[string]int{}}
}

func (s *fakeSubscriberStore) ListActiveByRegion(_ context.Context, region string, _ time.Time) ([]types.Subscriber, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []types.Subscriber
	for _, sub := range s.subs {
		if sub.CoversRegion(region) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeSubscriberStore) GetByID(_ context.Context, id string) (*types.Subscriber, error) {
	for _, sub := range s.subs {
		if sub.ID == id {
			cp := sub
			return &cp, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundSubscriber, "subscriber not found", nil)
}

func (s *fakeSubscriberStore) ReserveDailySlot(_ context.Context, id string, day time.Time, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	if s.deliveries.successfulBetween(id, start, start.AddDate(0, 0, 1))+s.holds[id] >= max {
		return false, nil
	}
	s.holds[id]++
	return true, nil
}

func (s *fakeSubscriberStore) ReleaseDailySlot(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holds[id] > 0 {
		s.holds[id]--
	}
	s.released++
	return nil
}

func (s *fakeSubscriberStore) RecordUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[id]++
	return nil
}

type fakeAlertReader struct {
	alerts map[string]*types.Alert
}

func (r *fakeAlertReader) GetByID(_ context.Context, id string) (*types.Alert, error) {
	if a, ok := r.alerts[id]; ok {
		return a, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", nil)
}

type fakeDeadLetters struct {
	mu    sync.Mutex
	kinds []string
}

func (d *fakeDeadLetters) Publish(_ context.Context, kind string, _ any, _ error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kinds = append(d.kinds, kind)
	return nil
}

var errGateway = errors.New("gateway unavailable")
