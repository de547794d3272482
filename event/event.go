package event

import (
	"context"
	"time"
)

// Type identifies a billing lifecycle transition
type Type string

// Defining lifecycle transitions published to the broker
const (
	TypeTrialActivated  Type = "TrialActivated"
	TypeCancelled       Type = "Cancelled"
	TypeReactivated     Type = "Reactivated"
	TypeGatewayObserved Type = "GatewayObserved"
)

// Lifecycle is the message published whenever a subscription changes state.
// GatewayEvent is only set for TypeGatewayObserved (webhook-driven transitions).
type Lifecycle struct {
	Type                  Type      `json:"type"`
	UserID                string    `json:"userId"`
	SubscriptionID        string    `json:"subscriptionId"`
	GatewaySubscriptionID string    `json:"gatewaySubscriptionId"`
	PaymentMethod         string    `json:"paymentMethod,omitempty"`
	AmountPaise           int64     `json:"amountPaise,omitempty"`
	GatewayEvent          string    `json:"gatewayEvent,omitempty"`
	OccurredAt            time.Time `json:"occurredAt"`
}

// Producer defines a producer sending lifecycle events via message broker
type Producer interface {
	Close()
	PublishLifecycle(e *Lifecycle) error
}

// Consumer defines a consumer receiving lifecycle events via message broker
type Consumer interface {
	Close()
	ReceiveLifecycle(ctx context.Context) (<-chan *Lifecycle, error)
}
