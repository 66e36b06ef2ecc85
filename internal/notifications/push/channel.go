// Package push fans an alert out to real-time topics: the subscriber's own
// topic when it has one, the region topic and the global topic.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"hazardwatch/internal/types"
)

// Payload is the JSON body published for an alert.
type Payload struct {
	AlertID       string           `json:"alert_id"`
	Type          types.HazardType `json:"type"`
	Severity      types.Severity   `json:"severity"`
	Confidence    int              `json:"confidence"`
	Region        string           `json:"region"`
	Title         string           `json:"title"`
	ForecastDate  time.Time        `json:"forecast_date"`
	LeadTimeHours int              `json:"lead_time_hours"`
}

// Channel is the push delivery channel.
type Channel struct {
	publisher Publisher
	prefix    string
	logger    *slog.Logger
}

var _ types.DeliveryChannel = (*Channel)(nil)

// NewChannel returns a channel publishing under prefix. A nil publisher makes
// every delivery fail as not configured.
func NewChannel(publisher Publisher, prefix string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "alerts"
	}
	return &Channel{publisher: publisher, prefix: prefix, logger: logger}
}

func (c *Channel) Method() types.DeliveryMethod { return types.MethodPush }

// Topics returns the topics an alert for sub is published to, in order.
func (c *Channel) Topics(alert *types.Alert, sub *types.Subscriber) []string {
	var topics []string
	if sub != nil && sub.PushChannelID != "" {
		topics = append(topics, c.prefix+".subscriber."+sub.PushChannelID)
	}
	return append(topics,
		c.prefix+".region."+slug(alert.Region),
		c.prefix+".global",
	)
}

// Deliver publishes to every topic. Publishing is fire-and-forget: the
// delivery counts as delivered when at least one topic accepted it.
func (c *Channel) Deliver(ctx context.Context, alert *types.Alert, sub *types.Subscriber) (types.MethodResult, error) {
	res := types.MethodResult{Method: types.MethodPush, Status: types.DeliveryFailed}
	if c.publisher == nil {
		err := types.NewAppError(types.ErrCodeDeliveryNotConfigured, "no push backend configured", nil)
		res.Error = err.Error()
		return res, err
	}
	res.Provider = c.publisher.Name()

	body, err := json.Marshal(Payload{
		AlertID:       alert.ID,
		Type:          alert.Type,
		Severity:      alert.Severity,
		Confidence:    alert.Confidence,
		Region:        alert.Region,
		Title:         alert.Title,
		ForecastDate:  alert.ForecastDate,
		LeadTimeHours: alert.LeadTimeHours,
	})
	if err != nil {
		res.Error = err.Error()
		return res, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode push payload", err)
	}

	var (
		published int
		lastErr   error
	)
	for _, topic := range c.Topics(alert, sub) {
		if err := c.publisher.Publish(ctx, topic, body); err != nil {
			c.logger.WarnContext(ctx, "push publish failed",
				"topic", topic,
				"alert_id", alert.ID,
				"error", err,
			)
			lastErr = err
			continue
		}
		published++
	}

	if published == 0 {
		res.Error = lastErr.Error()
		return res, lastErr
	}
	res.Success = true
	res.Status = types.DeliveryDelivered
	return res, nil
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}
