// Package main runs a single HazardWatch job, either as an EventBridge-driven
// Lambda or from the command line.
//
// Lambda events are JSON objects naming the job:
//
//	{"job": "hazard_sweep"}
//
// An empty job name runs the hazard sweep. Locally:
//
//	go run ./cmd/job-runner --job=digest
//	go run ./cmd/job-runner --list
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/aws/aws-lambda-go/lambda"

	"hazardwatch/internal/app"
	"hazardwatch/internal/config"
	"hazardwatch/internal/scheduler"
)

// JobEvent is the Lambda payload.
type JobEvent struct {
	Job string `json:"job"`
}

// Runner is the subset of scheduler.Scheduler the handler needs.
type Runner interface {
	RunNow(ctx context.Context) (scheduler.RunReport, error)
	RunJob(ctx context.Context, name string) (scheduler.RunReport, error)
}

var _ Runner = (*scheduler.Scheduler)(nil)

var jobDescriptions = map[scheduler.JobName]string{
	scheduler.JobHazardSweep: "Evaluate every monitored region and deliver new alerts",
	scheduler.JobRetrySweep:  "Retry failed deliveries inside the retry window",
	scheduler.JobDigest:      "Send the daily digest to premium and enterprise subscribers",
	scheduler.JobExpiry:      "Expire lapsed alerts and subscriptions, send renewal reminders",
}

func newHandler(runner Runner, logger *slog.Logger) func(context.Context, JobEvent) (scheduler.RunReport, error) {
	return func(ctx context.Context, event JobEvent) (scheduler.RunReport, error) {
		job := strings.TrimSpace(event.Job)
		logger.InfoContext(ctx, "job invocation received", "job", job)

		var (
			report scheduler.RunReport
			err    error
		)
		if job == "" {
			report, err = runner.RunNow(ctx)
		} else {
			report, err = runner.RunJob(ctx, job)
		}
		if err != nil {
			logger.ErrorContext(ctx, "job failed", "job", job, "error", err)
			return report, err
		}

		logger.InfoContext(ctx, "job completed",
			"job", string(report.Job),
			"alerts", report.Alerts,
			"delivered", report.Delivered,
			"failed", report.Failed,
			"items", report.Items,
			"duration_ms", report.DurationMS,
		)
		return report, nil
	}
}

func main() {
	jobFlag := flag.String("job", "", "Job to run once and exit (runs as a Lambda when empty)")
	listFlag := flag.Bool("list", false, "List the available jobs and exit")
	flag.Parse()

	if *listFlag {
		printJobs()
		return
	}

	logger := newLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = newLogger(cfg.LogLevel).With("service", cfg.Service, "env", cfg.Environment)

	if *jobFlag != "" {
		os.Exit(runOnce(cfg, *jobFlag, logger))
	}

	logger.Info("job-runner Lambda initializing (cold start)")
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to wire job runner", "error", err)
		os.Exit(1)
	}
	lambda.Start(newHandler(a.Scheduler, logger))
}

func runOnce(cfg *config.Config, job string, logger *slog.Logger) int {
	if _, err := scheduler.ParseJob(job); err != nil {
		fmt.Fprintf(os.Stderr, "error: unknown job %q\n\n", job)
		printJobs()
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire job runner", "error", err)
		return 1
	}
	defer a.Close()

	report, err := newHandler(a.Scheduler, logger)(ctx, JobEvent{Job: job})
	if err != nil {
		return 1
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	return 0
}

func printJobs() {
	fmt.Fprintf(os.Stderr, "Available jobs:\n")
	for _, j := range scheduler.Jobs {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", j, jobDescriptions[j])
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
