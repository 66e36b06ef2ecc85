// Package app wires the HazardWatch components from a loaded Config. Both
// the long-running scheduler service and the Lambda job runner build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hazardwatch/internal/config"
	"hazardwatch/internal/core"
	"hazardwatch/internal/db"
	"hazardwatch/internal/external"
	"hazardwatch/internal/monitor"
	notifcore "hazardwatch/internal/notifications/core"
	"hazardwatch/internal/notifications/email"
	"hazardwatch/internal/notifications/push"
	"hazardwatch/internal/notifications/sms"
	"hazardwatch/internal/observability"
	"hazardwatch/internal/queue"
	"hazardwatch/internal/risk"
	"hazardwatch/internal/scheduler"
	"hazardwatch/internal/types"
	"hazardwatch/internal/weather"
)

// App holds the wired components and the resources to release on Close.
type App struct {
	Config    *config.Config
	Pool      *pgxpool.Pool
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Scheduler *scheduler.Scheduler
	Server    *core.Server

	push   push.Publisher
	logger *slog.Logger
}

// New connects to the database and AWS, builds every component and mounts
// the admin routes. The returned App owns the pool and push connection.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clock := clockwork.NewRealClock()

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	digestAt, err := config.ParseTimeOfDay(cfg.Scheduler.DigestTime)
	if err != nil {
		return nil, fmt.Errorf("parse digest time: %w", err)
	}
	expiryAt, err := config.ParseTimeOfDay(cfg.Scheduler.ExpiryTime)
	if err != nil {
		return nil, fmt.Errorf("parse expiry time: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &App{Config: cfg, Pool: pool, logger: logger}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = observability.NewMetrics(a.Registry)
	stats := observability.NewRunStats(clock)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	deadLetters, err := queue.NewDeadLetterPublisher(sqsClient, cfg.AWS.DeadLetterQueueURL, logger.With("component", "dead_letter"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create dead-letter publisher: %w", err)
	}
	if !deadLetters.Enabled() {
		logger.Warn("SQS_DEAD_LETTER_URL not set; persistence failures will only be logged")
	}

	var deliveryMetrics notifcore.DeliveryMetrics
	switch cfg.Observability.MetricsBackend {
	case "cloudwatch":
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		deliveryMetrics = notifcore.NewCloudWatchDeliveryMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
	default:
		deliveryMetrics = notifcore.NewPrometheusDeliveryMetrics(a.Metrics)
	}

	clients, err := external.NewClientRegistry(cfg, clock, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create vendor clients: %w", err)
	}

	var probes []core.HealthProbe
	probes = append(probes, core.NewPingProbe("database", pool.Ping))

	switch cfg.Push.Backend {
	case "redis":
		rp := push.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password.Unmask(), cfg.Redis.DB, logger.With("component", "push"))
		probes = append(probes, core.NewPingProbe("redis", rp.Ping))
		a.push = rp
	case "kafka":
		a.push = push.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.With("component", "push"))
	default:
		logger.Warn("push backend disabled; push deliveries will fail as not configured")
	}

	smsChannel := sms.NewChannel(sms.ChannelConfig{
		Primary:   clients.PrimarySMS,
		Secondary: clients.SecondarySMS,
		SenderID:  cfg.SMS.SenderID,
		Logger:    logger.With("channel", "sms"),
	})

	alerts := db.NewAlertRepository(pool)
	subscribers := db.NewSubscriberRepository(pool)

	regionMonitor := monitor.NewRegionMonitor(monitor.Config{
		Regions:     cfg.Regions,
		Provider:    weather.NewChain(clients.Weather, logger),
		Engine:      risk.NewEngine(cfg.Thresholds),
		Alerts:      alerts,
		DeadLetters: deadLetters,
		Stats:       stats,
		Metrics:     a.Metrics,
		Clock:       clock,
		RegionDelay: cfg.Weather.RegionDelay,
		AlertTTL:    cfg.Scheduler.AlertTTL,
		DedupWindow: cfg.Scheduler.DedupWindow,
		Logger:      logger.With("component", "monitor"),
	})

	orchestrator := notifcore.NewOrchestrator(notifcore.Config{
		Channels: []types.DeliveryChannel{
			smsChannel,
			push.NewChannel(a.push, cfg.Push.ChannelPrefix, logger.With("channel", "push")),
			email.NewChannel(logger.With("channel", "email")),
		},
		Deliveries:      db.NewDeliveryRepository(pool),
		Subscribers:     subscribers,
		Alerts:          alerts,
		DeadLetters:     deadLetters,
		Metrics:         deliveryMetrics,
		Clock:           clock,
		Location:        loc,
		DefaultMethods:  deliveryMethods(cfg.Delivery.DefaultMethods),
		MaxAlertsPerDay: cfg.Delivery.MaxAlertsPerDay,
		MaxAttempts:     cfg.Delivery.MaxAttempts,
		RetryWindow:     cfg.Delivery.RetryWindow,
		MaxConcurrency:  cfg.Delivery.MaxConcurrency,
		Logger:          logger.With("component", "orchestrator"),
	})

	a.Scheduler = scheduler.NewScheduler(scheduler.Config{
		Monitor:        regionMonitor,
		Deliverer:      orchestrator,
		Alerts:         alerts,
		Subscribers:    subscribers,
		SMS:            smsChannel,
		History:        db.NewJobHistoryRepository(pool),
		Stats:          stats,
		Metrics:        a.Metrics,
		Clock:          clock,
		Location:       loc,
		HazardInterval: cfg.Scheduler.HazardInterval,
		RetryInterval:  cfg.Scheduler.RetryInterval,
		DigestAt:       digestAt,
		ExpiryAt:       expiryAt,
		ReminderWindow: cfg.Scheduler.ReminderWindow,
		Logger:         logger.With("component", "scheduler"),
	})

	a.Server, err = core.NewServer(cfg, a.Scheduler, alerts, logger.With("component", "api"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create admin server: %w", err)
	}
	a.Server.Metrics = a.Metrics
	a.Server.Gatherer = a.Registry
	a.Server.HealthProbes = probes
	a.Server.MountRoutes()

	logger.Info("hazardwatch wired",
		"regions", len(cfg.Regions),
		"weather_providers", len(clients.Weather),
		"push_backend", cfg.Push.Backend,
		"metrics_backend", cfg.Observability.MetricsBackend,
		"timezone", loc.String(),
	)
	return a, nil
}

// Close releases the push connection and the database pool.
func (a *App) Close() {
	if a.push != nil {
		if err := a.push.Close(); err != nil {
			a.logger.Warn("failed to close push publisher", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func deliveryMethods(names []string) []types.DeliveryMethod {
	methods := make([]types.DeliveryMethod, 0, len(names))
	for _, n := range names {
		methods = append(methods, types.DeliveryMethod(n))
	}
	return methods
}
