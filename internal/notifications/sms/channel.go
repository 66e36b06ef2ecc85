// Package sms delivers alerts as short messages through a primary gateway,
// failing over once to a secondary gateway when one is configured.
package sms

import (
	"context"
	"log/slog"
	"strings"

	"hazardwatch/internal/external"
	"hazardwatch/internal/types"
)

// Channel is the SMS delivery channel.
type Channel struct {
	primary   external.SMSGateway
	secondary external.SMSGateway
	senderID  string
	logger    *slog.Logger
}

var _ types.DeliveryChannel = (*Channel)(nil)

// ChannelConfig holds the dependencies for a Channel. Secondary may be nil.
type ChannelConfig struct {
	Primary   external.SMSGateway
	Secondary external.SMSGateway
	SenderID  string
	Logger    *slog.Logger
}

func NewChannel(cfg ChannelConfig) *Channel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		senderID:  cfg.SenderID,
		logger:    logger,
	}
}

func (c *Channel) Method() types.DeliveryMethod { return types.MethodSMS }

// Deliver renders the alert in the subscriber's language and sends it.
func (c *Channel) Deliver(ctx context.Context, alert *types.Alert, sub *types.Subscriber) (types.MethodResult, error) {
	return c.SendText(ctx, sub.Phone, RenderAlert(sub.Language, alert))
}

// SendText sends an already rendered body. The secondary gateway is tried
// once when the primary fails.
func (c *Channel) SendText(ctx context.Context, phone, body string) (types.MethodResult, error) {
	res := types.MethodResult{Method: types.MethodSMS, Status: types.DeliveryFailed}

	if c.primary == nil {
		err := types.NewAppError(types.ErrCodeDeliveryNotConfigured, "no sms gateway configured", nil)
		res.Error = err.Error()
		return res, err
	}
	if phone == "" {
		err := types.NewAppError(types.ErrCodeDeliveryRejected, "subscriber has no phone number", nil)
		res.Provider = c.primary.Name()
		res.Error = err.Error()
		return res, err
	}

	res.Provider = c.primary.Name()
	id, err := c.primary.Send(ctx, phone, body, c.senderID)
	if err != nil && c.secondary != nil {
		c.logger.WarnContext(ctx, "primary sms gateway failed, trying secondary",
			"gateway", c.primary.Name(),
			"secondary", c.secondary.Name(),
			"to", RedactPhone(phone),
			"error", err,
		)
		res.Provider = c.secondary.Name()
		id, err = c.secondary.Send(ctx, phone, body, c.senderID)
	}
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	res.Success = true
	res.Status = types.DeliverySent
	res.ProviderMessageID = id
	return res, nil
}

// RedactPhone keeps the country prefix and the last two digits.
func RedactPhone(phone string) string {
	p := strings.TrimSpace(phone)
	if len(p) <= 6 {
		return "***"
	}
	return p[:4] + strings.Repeat("*", len(p)-6) + p[len(p)-2:]
}
