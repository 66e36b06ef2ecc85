// Package external is the anti-corruption layer between HazardWatch and
// third-party weather and SMS vendors. Every outbound call goes through
// BaseClient, which applies circuit breaking, bounded retries with backoff,
// request-id propagation and mapping of failures to AppErrors.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"hazardwatch/internal/types"
)

const userAgent = "HazardWatch/1.0"

// RetryPolicy bounds the retries BaseClient performs on 429 and 5xx.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy is used by vendor clients unless overridden.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// BaseClient wraps an *http.Client with a gobreaker circuit breaker. Vendor
// clients hold one each so an outage in one vendor never opens another's
// breaker.
type BaseClient struct {
	client       *http.Client
	breaker      *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy  RetryPolicy
	upstreamCode types.ErrorCode
	sleep        func(ctx context.Context, d time.Duration) error
}

// BaseClientOption configures a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces the context-aware wait between retries.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) BaseClientOption {
	return func(c *BaseClient) { c.sleep = fn }
}

// WithUpstreamCode sets the code used when the vendor is unreachable
// (network error or exhausted 5xx retries).
func WithUpstreamCode(code types.ErrorCode) BaseClientOption {
	return func(c *BaseClient) { c.upstreamCode = code }
}

// NewBaseClient builds a BaseClient whose breaker opens after more than five
// consecutive failures and half-opens after 30s.
func NewBaseClient(httpClient *http.Client, name string, policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	bc := &BaseClient{
		client: httpClient,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		retryPolicy:  policy,
		upstreamCode: types.ErrCodeUpstreamUnavailable,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// BreakerState reports the breaker state, e.g. for health probes.
func (c *BaseClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Do executes req, retrying 429 and 5xx responses. Any other response is
// returned to the caller, who must close the body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if id := types.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	req.Header.Set("User-Agent", userAgent)

	var body []byte
	if req.Body != nil {
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
		}
		req.Body.Close()
	}

	var (
		lastResp *http.Response
		lastErr  error
	)
	for attempt := 0; attempt <= c.retryPolicy.MaxRetries; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, err := c.client.Do(req)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp, lastErr = resp, err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if attempt == c.retryPolicy.MaxRetries {
			break
		}
		if sleepErr := c.sleep(ctx, c.backoff(attempt, resp)); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// GetJSON issues a GET and decodes a 2xx JSON body into out. Non-2xx
// responses become AppErrors carrying the status code.
func (c *BaseClient) GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppErrorWithDetails(c.upstreamCode,
			fmt.Sprintf("upstream returned %d", resp.StatusCode), nil,
			map[string]any{"status": resp.StatusCode, "body": string(snippet)})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(c.upstreamCode, "failed to decode upstream response", err)
	}
	return nil
}

// backoff honors Retry-After (seconds or HTTP date), otherwise applies
// jittered exponential backoff within [MinWait, MaxWait].
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	p := c.retryPolicy
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				return min(time.Duration(secs)*time.Second, p.MaxWait)
			}
			if at, err := http.ParseTime(ra); err == nil {
				return max(min(time.Until(at), p.MaxWait), p.MinWait)
			}
		}
	}

	ceiling := math.Min(float64(p.MinWait)*math.Pow(2, float64(attempt)), float64(p.MaxWait))
	if ceiling <= float64(p.MinWait) {
		return p.MinWait
	}
	return time.Duration(float64(p.MinWait) + rand.Float64()*(ceiling-float64(p.MinWait)))
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return types.NewAppError(c.upstreamCode, "circuit breaker open", err)
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
	case resp != nil && resp.StatusCode >= 500:
		return types.NewAppError(c.upstreamCode, fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
	default:
		return types.NewAppError(c.upstreamCode, "upstream request failed", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
