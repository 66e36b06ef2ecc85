package types

import "time"

// PlanTier is the subscription plan a subscriber is on.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanBasic      PlanTier = "basic"
	PlanPremium    PlanTier = "premium"
	PlanEnterprise PlanTier = "enterprise"
)

// ReceivesDigest reports whether the plan includes the daily digest.
func (p PlanTier) ReceivesDigest() bool {
	return p == PlanPremium || p == PlanEnterprise
}

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription is the plan a subscriber holds. AlertsRemaining is nil for
// unlimited plans.
type Subscription struct {
	ID              string             `json:"id"`
	Plan            PlanTier           `json:"plan"`
	Status          SubscriptionStatus `json:"status"`
	ExpiresAt       time.Time          `json:"expires_at"`
	AutoRenew       bool               `json:"auto_renew"`
	AlertsRemaining *int               `json:"alerts_remaining,omitempty"`
	AlertsUsed      int                `json:"alerts_used"`
}

// Subscriber is an alert recipient. It is owned by the subscription system and
// only read here. Regions lists additional regions beyond the primary one.
type Subscriber struct {
	ID            string       `json:"id"`
	Name          string       `json:"name,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Email         string       `json:"email,omitempty"`
	Region        string       `json:"region"`
	Regions       []string     `json:"regions,omitempty"`
	Language      string       `json:"language"`
	PushChannelID string       `json:"push_channel_id,omitempty"`
	Subscription  Subscription `json:"subscription"`
}

// CoversRegion reports whether the subscriber follows the named region.
func (s Subscriber) CoversRegion(region string) bool {
	if s.Region == region {
		return true
	}
	for _, r := range s.Regions {
		if r == region {
			return true
		}
	}
	return false
}
