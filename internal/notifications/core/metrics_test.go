package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"hazardwatch/internal/observability"
	"hazardwatch/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dims(d []cwtypes.Dimension) map[string]string {
	out := make(map[string]string, len(d))
	for _, x := range d {
		out[aws.ToString(x.Name)] = aws.ToString(x.Value)
	}
	return out
}

func TestCloudWatchDeliveryMetrics_RecordDelivery(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchDeliveryMetrics(cw, "HazardWatch", nil)

	m.RecordDelivery(context.Background(), types.MethodSMS, MetricSuccess)

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.calls))
	}
	input := cw.calls[0]
	if aws.ToString(input.Namespace) != "HazardWatch" {
		t.Errorf("expected namespace HazardWatch, got %q", aws.ToString(input.Namespace))
	}
	datum := input.MetricData[0]
	if aws.ToString(datum.MetricName) != MetricDeliveryAttempt {
		t.Errorf("expected metric %q, got %q", MetricDeliveryAttempt, aws.ToString(datum.MetricName))
	}
	if datum.Unit != cwtypes.StandardUnitCount {
		t.Errorf("expected unit Count, got %s", datum.Unit)
	}
	d := dims(datum.Dimensions)
	if d[DimMethod] != "sms" || d[DimResult] != "success" {
		t.Errorf("unexpected dimensions: %v", d)
	}
}

func TestCloudWatchDeliveryMetrics_RecordLatency(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchDeliveryMetrics(cw, "HazardWatch", nil)

	m.RecordLatency(context.Background(), types.MethodPush, 250*time.Millisecond)

	datum := cw.calls[0].MetricData[0]
	if aws.ToFloat64(datum.Value) != 250 {
		t.Errorf("expected 250ms, got %f", aws.ToFloat64(datum.Value))
	}
	if datum.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("expected unit Milliseconds, got %s", datum.Unit)
	}
}

func TestCloudWatchDeliveryMetrics_CapAndRetry(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchDeliveryMetrics(cw, "HazardWatch", nil)

	m.RecordCapSkip(context.Background())
	m.RecordRetry(context.Background(), MetricSkipped)

	if len(cw.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(cw.calls))
	}
	if aws.ToString(cw.calls[0].MetricData[0].MetricName) != MetricDailyCapSkip {
		t.Errorf("unexpected metric %q", aws.ToString(cw.calls[0].MetricData[0].MetricName))
	}
	if dims(cw.calls[1].MetricData[0].Dimensions)[DimResult] != "skipped" {
		t.Error("retry metric should carry the result dimension")
	}
}

func TestCloudWatchDeliveryMetrics_ErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: fmt.Errorf("throttled")}
	m := NewCloudWatchDeliveryMetrics(cw, "HazardWatch", nil)

	// Must not panic or propagate.
	m.RecordDelivery(context.Background(), types.MethodSMS, MetricFailed)
	if len(cw.calls) != 1 {
		t.Fatalf("expected the call to be attempted once, got %d", len(cw.calls))
	}
}

func TestPrometheusDeliveryMetrics(t *testing.T) {
	om := observability.NewMetricsForTesting()
	m := NewPrometheusDeliveryMetrics(om)

	m.RecordDelivery(context.Background(), types.MethodSMS, MetricFailed)
	m.RecordCapSkip(context.Background())
	m.RecordRetry(context.Background(), MetricSuccess)

	if got := testutil.ToFloat64(om.Deliveries.WithLabelValues("sms", "failed")); got != 1 {
		t.Errorf("deliveries: got %v", got)
	}
	if got := testutil.ToFloat64(om.DailyCapSkips); got != 1 {
		t.Errorf("cap skips: got %v", got)
	}
	if got := testutil.ToFloat64(om.Retries.WithLabelValues("success")); got != 1 {
		t.Errorf("retries: got %v", got)
	}
}
