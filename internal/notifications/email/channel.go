// Package email is the email delivery channel. No email provider is wired
// for alerts, so every delivery fails as not configured and is recorded
// like any other failed method.
package email

import (
	"context"
	"log/slog"
	"strings"

	"hazardwatch/internal/types"
)

// Channel is the email delivery channel.
type Channel struct {
	logger *slog.Logger
}

var _ types.DeliveryChannel = (*Channel)(nil)

func NewChannel(logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{logger: logger}
}

func (c *Channel) Method() types.DeliveryMethod { return types.MethodEmail }

func (c *Channel) Deliver(ctx context.Context, alert *types.Alert, sub *types.Subscriber) (types.MethodResult, error) {
	err := types.NewAppError(types.ErrCodeDeliveryNotConfigured, "email provider not configured", nil)
	c.logger.DebugContext(ctx, "email delivery skipped",
		"alert_id", alert.ID,
		"subscriber_id", sub.ID,
		"to", RedactEmail(sub.Email),
	)
	return types.MethodResult{
		Method: types.MethodEmail,
		Status: types.DeliveryFailed,
		Error:  err.Error(),
	}, err
}

// RedactEmail masks all but the first character of the local part, e.g.
// "juma@example.co.tz" becomes "j***@example.co.tz".
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}
