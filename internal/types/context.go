package types

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	jobNameKey   contextKey = "job_name"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithJobName tags the context with the scheduled job that owns it. Outbound
// vendor calls forward it as a correlation header.
func WithJobName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, jobNameKey, name)
}

// GetJobName returns the scheduled job name stored in the context, if any.
func GetJobName(ctx context.Context) string {
	name, _ := ctx.Value(jobNameKey).(string)
	return name
}
