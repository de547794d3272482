package subscription

import "time"

// Subscription is the persisted record of a user's recurring billing state.
// It is the source of truth for entitlement decisions elsewhere in the app;
// the gateway's own subscription object is mirrored into it, never the other
// way around. At most one row per user may be in a live status at a time.
type Subscription struct {
	ID     string `json:"id" gorm:"primaryKey"`
	UserID string `json:"userId" gorm:"index"`

	Status      Status `json:"status" gorm:"index"`
	TrialActive bool   `json:"trialActive"`
	TrialDays   int    `json:"trialDays"`

	Tier         Tier         `json:"tier"`
	BillingCycle BillingCycle `json:"billingCycle"`
	Region       Region       `json:"region"`

	GatewaySubscriptionID string `json:"gatewaySubscriptionId" gorm:"column:razorpay_subscription_id;index"`
	GatewayCustomerID     string `json:"gatewayCustomerId" gorm:"column:razorpay_customer_id"`

	CurrentPeriodStart time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd"`
	CancelledAt        *time.Time `json:"cancelledAt"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Live reports whether this row counts against the one-live-row-per-user rule
func (s *Subscription) Live() bool {
	for _, status := range LiveStatuses {
		if s.Status == status {
			return true
		}
	}
	return false
}

// WebhookEvent is the dedup log of gateway callback deliveries. The gateway
// retries deliveries, so the event id is the idempotency key.
type WebhookEvent struct {
	ID         string    `json:"id" gorm:"primaryKey"` // gateway event id
	Kind       string    `json:"kind"`
	ReceivedAt time.Time `json:"receivedAt"`
}
