package types

import (
	"strings"
	"time"
)

// DeliveryMethod is a channel an alert can be delivered over.
type DeliveryMethod string

const (
	MethodSMS     DeliveryMethod = "sms"
	MethodPush    DeliveryMethod = "push"
	MethodEmail   DeliveryMethod = "email"
	MethodWebhook DeliveryMethod = "webhook"
)

// DeliveryStatus is the state of a single delivery record.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryRead      DeliveryStatus = "read"
)

// Succeeded reports whether the status counts as a successful delivery.
func (s DeliveryStatus) Succeeded() bool {
	return s == DeliverySent || s == DeliveryDelivered || s == DeliveryRead
}

// DeliveryRecord tracks one (alert, subscriber, method) delivery. Attempts
// starts at 1 on the first send and is bumped by every retry.
type DeliveryRecord struct {
	ID                string         `json:"id"`
	AlertID           string         `json:"alert_id"`
	SubscriberID      string         `json:"subscriber_id"`
	Method            DeliveryMethod `json:"method"`
	Status            DeliveryStatus `json:"status"`
	Provider          string         `json:"provider,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	Attempts          int            `json:"attempts"`
	LastError         string         `json:"last_error,omitempty"`
	SentAt            time.Time      `json:"sent_at"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty"`
}

// MethodResult is the outcome of one delivery method for one subscriber.
type MethodResult struct {
	Method            DeliveryMethod `json:"method"`
	Success           bool           `json:"success"`
	Status            DeliveryStatus `json:"status"`
	Provider          string         `json:"provider,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// DeliveryResult aggregates the per-method results of one deliverAlert call.
// Success is true iff at least one method succeeded.
type DeliveryResult struct {
	AlertID      string         `json:"alert_id"`
	SubscriberID string         `json:"subscriber_id"`
	Success      bool           `json:"success"`
	Methods      []MethodResult `json:"methods"`
}

// PermanentDeliveryCodes are failure codes a resend cannot fix. The retry
// sweep leaves records carrying them alone.
var PermanentDeliveryCodes = []ErrorCode{ErrCodeDeliveryNotConfigured, ErrCodeDeliveryUnsupportedMethod}

// PermanentFailure reports whether lastError, as stored on a DeliveryRecord
// (AppError.Error form "code: message"), carries a permanent code.
func PermanentFailure(lastError string) bool {
	for _, code := range PermanentDeliveryCodes {
		if strings.HasPrefix(lastError, string(code)+":") {
			return true
		}
	}
	return false
}
