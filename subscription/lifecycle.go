package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/resumly/billing/event"
	"github.com/resumly/billing/gateway"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type lifecycleStore interface {
	GetLiveByUserID(ctx context.Context, userID string) (*Subscription, error)
	MarkCancelled(ctx context.Context, subscriptionID string, at time.Time) error
	HasPriorSubscription(ctx context.Context, userID string) (bool, error)
	Create(ctx context.Context, sub *Subscription) error
}

var _ lifecycleStore = &Manager{}

// Mandate charge counts requested from the gateway on a fresh subscription
const (
	monthlyMandateCount int64 = 120
	annualMandateCount        = 10
)

// LifecycleOptions contains the configuration for the cancellation and
// reactivation orchestrator
type LifecycleOptions struct {
	Store    lifecycleStore
	Gateway  Gateway
	Table    PricingTable
	Producer event.Producer // optional
	Logger   *zap.Logger
}

// Lifecycle handles explicit cancellation and cancel-then-recreate
// reactivation sequences
type Lifecycle struct {
	LifecycleOptions
}

// NewLifecycle will create the cancellation/reactivation orchestrator
func NewLifecycle(option LifecycleOptions) (*Lifecycle, error) {
	if option.Store == nil {
		return nil, fmt.Errorf("nil Store is invalid")
	}
	if option.Gateway == nil {
		return nil, fmt.Errorf("nil Gateway is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Lifecycle{
		LifecycleOptions: option,
	}, nil
}

// Cancel cancels the caller's mandate on the gateway and mirrors the row to
// Cancelled. current_period_end stays untouched, so entitlement survives
// until the paid period runs out.
func (l *Lifecycle) Cancel(ctx context.Context, user User) error {
	sub, err := l.Store.GetLiveByUserID(ctx, user.ID)
	if err != nil {
		return ErrInternal(err)
	}
	if sub == nil {
		return ErrNoActiveSubscription()
	}
	if !l.Gateway.Configured() {
		return ErrGatewayNotConfigured()
	}

	if err := l.Gateway.CancelSubscription(ctx, sub.GatewaySubscriptionID); err != nil {
		return ErrGatewayUnreachable(err)
	}

	if err := l.Store.MarkCancelled(ctx, sub.ID, time.Now()); err != nil {
		return ErrInternal(err)
	}

	l.publish(&event.Lifecycle{
		Type:                  event.TypeCancelled,
		UserID:                user.ID,
		SubscriptionID:        sub.ID,
		GatewaySubscriptionID: sub.GatewaySubscriptionID,
		OccurredAt:            time.Now(),
	})
	return nil
}

// ReactivateResult describes the fresh mandate the user has to authenticate
type ReactivateResult struct {
	Subscription *Subscription `json:"subscription"`
	ShortURL     string        `json:"shortUrl"`
	TrialDays    int           `json:"trialDays"`
}

// Reactivate creates a brand-new gateway subscription for a user whose
// previous one was cancelled. UPI mandates cannot be resumed out-of-band, so
// reactivation is always cancel-then-recreate with a fresh mandate. Users
// with any prior subscription history get no repeat trial.
func (l *Lifecycle) Reactivate(ctx context.Context, user User, tier Tier, cycle BillingCycle, region Region) (*ReactivateResult, error) {
	live, err := l.Store.GetLiveByUserID(ctx, user.ID)
	if err != nil {
		return nil, ErrInternal(err)
	}
	if live != nil {
		return nil, ErrSubscriptionExists()
	}

	// history check, not just the absence of a live row: one trial per user
	prior, err := l.Store.HasPriorSubscription(ctx, user.ID)
	if err != nil {
		return nil, ErrInternal(err)
	}
	trialDays := TrialDays
	if prior {
		trialDays = 0
	}

	if !l.Gateway.Configured() {
		return nil, ErrGatewayNotConfigured()
	}

	planID, err := l.Table.PlanID(tier, cycle)
	if err != nil {
		return nil, ErrPricingUnavailable(err)
	}

	totalCount := monthlyMandateCount
	if cycle == CycleAnnual {
		totalCount = annualMandateCount
	}

	gwSub, err := l.Gateway.CreateSubscription(ctx, gateway.SubscriptionParams{
		PlanID:         planID,
		TotalCount:     totalCount,
		CustomerNotify: true,
		Notes: map[string]string{
			"user_id":       user.ID,
			"tier":          string(tier),
			"billing_cycle": string(cycle),
			"trial_days":    fmt.Sprintf("%d", trialDays),
		},
	})
	if err != nil {
		return nil, ErrGatewayUnreachable(err)
	}

	sub := &Subscription{
		ID:                    uuid.New().String(),
		UserID:                user.ID,
		Status:                StatusCreated,
		TrialActive:           false, // flips on when the mandate authenticates
		TrialDays:             trialDays,
		Tier:                  tier,
		BillingCycle:          cycle,
		Region:                region,
		GatewaySubscriptionID: gwSub.ID,
		GatewayCustomerID:     gwSub.CustomerID,
	}
	if err := l.Store.Create(ctx, sub); err != nil {
		if typed, ok := err.(*Error); ok {
			return nil, typed
		}
		return nil, ErrInternal(err)
	}

	l.publish(&event.Lifecycle{
		Type:                  event.TypeReactivated,
		UserID:                user.ID,
		SubscriptionID:        sub.ID,
		GatewaySubscriptionID: gwSub.ID,
		OccurredAt:            time.Now(),
	})

	return &ReactivateResult{
		Subscription: sub,
		ShortURL:     gwSub.ShortURL,
		TrialDays:    trialDays,
	}, nil
}

func (l *Lifecycle) publish(e *event.Lifecycle) {
	if l.Producer == nil {
		return
	}
	if err := l.Producer.PublishLifecycle(e); err != nil {
		l.Logger.Error("Cannot publish lifecycle event",
			zap.String("Type", string(e.Type)),
			zap.Error(err),
		)
	}
}
