package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"hazardwatch/internal/observability"
	"hazardwatch/internal/types"
)

// CloudWatch metric and dimension names.
const (
	MetricDeliveryAttempt = "DeliveryAttempt"
	MetricDeliveryLatency = "DeliveryAttemptLatency"
	MetricDailyCapSkip    = "DailyCapSkip"
	MetricDeliveryRetry   = "DeliveryRetry"
	DimMethod             = "Method"
	DimResult             = "Result"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchDeliveryMetrics emits delivery metrics to AWS CloudWatch.
// Failures to emit are logged and never surface to the caller.
type CloudWatchDeliveryMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ DeliveryMetrics = (*CloudWatchDeliveryMetrics)(nil)

func NewCloudWatchDeliveryMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchDeliveryMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchDeliveryMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchDeliveryMetrics) RecordDelivery(ctx context.Context, method types.DeliveryMethod, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDeliveryAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimMethod), Value: aws.String(string(method))},
			{Name: aws.String(DimResult), Value: aws.String(string(result))},
		},
	})
}

// RecordLatency is recorded in milliseconds.
func (m *CloudWatchDeliveryMetrics) RecordLatency(ctx context.Context, method types.DeliveryMethod, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDeliveryLatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimMethod), Value: aws.String(string(method))},
		},
	})
}

func (m *CloudWatchDeliveryMetrics) RecordCapSkip(ctx context.Context) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDailyCapSkip),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	})
}

func (m *CloudWatchDeliveryMetrics) RecordRetry(ctx context.Context, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDeliveryRetry),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimResult), Value: aws.String(string(result))},
		},
	})
}

func (m *CloudWatchDeliveryMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to record delivery metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err,
		)
	}
}

// PrometheusDeliveryMetrics records into the process Prometheus metrics.
type PrometheusDeliveryMetrics struct {
	metrics *observability.Metrics
}

var _ DeliveryMetrics = (*PrometheusDeliveryMetrics)(nil)

func NewPrometheusDeliveryMetrics(m *observability.Metrics) *PrometheusDeliveryMetrics {
	return &PrometheusDeliveryMetrics{metrics: m}
}

func (p *PrometheusDeliveryMetrics) RecordDelivery(_ context.Context, method types.DeliveryMethod, result MetricResult) {
	p.metrics.Deliveries.WithLabelValues(string(method), string(result)).Inc()
}

// RecordLatency is a no-op; job duration histograms cover timing.
func (p *PrometheusDeliveryMetrics) RecordLatency(context.Context, types.DeliveryMethod, time.Duration) {
}

func (p *PrometheusDeliveryMetrics) RecordCapSkip(context.Context) {
	p.metrics.DailyCapSkips.Inc()
}

func (p *PrometheusDeliveryMetrics) RecordRetry(_ context.Context, result MetricResult) {
	p.metrics.Retries.WithLabelValues(string(result)).Inc()
}
