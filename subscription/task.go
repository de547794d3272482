package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/resumly/billing/event"
	"github.com/resumly/billing/gateway"

	"go.uber.org/zap"
)

type taskStore interface {
	ListStaleCreated(ctx context.Context, before time.Time, limit int) ([]Subscription, error)
	SyncGatewayStatus(ctx context.Context, opt SyncGatewayOptions) error
}

var _ taskStore = &Manager{}

// TaskOptions contains the configuration for the background Task
type TaskOptions struct {
	Store    taskStore
	Gateway  Gateway
	Consumer event.Consumer
	Logger   *zap.Logger
}

// Task runs the background halves of the billing core: draining the
// lifecycle event queue for conversion tracking and sweeping rows stuck
// waiting on mandate authentication against the live gateway state.
type Task struct {
	TaskOptions
}

// NewTask will create the background billing task
func NewTask(option TaskOptions) (*Task, error) {
	if option.Store == nil {
		return nil, fmt.Errorf("nil Store is invalid")
	}
	if option.Gateway == nil {
		return nil, fmt.Errorf("nil Gateway is invalid")
	}
	if option.Consumer == nil {
		return nil, fmt.Errorf("nil Consumer is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Task{
		TaskOptions: option,
	}, nil
}

// HandleLifecycle drains lifecycle events for conversion tracking
func (t *Task) HandleLifecycle(ctx context.Context) error {
	eChan, err := t.Consumer.ReceiveLifecycle(ctx)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-eChan:
				t.Logger.Info("Observed lifecycle event",
					zap.String("Type", string(e.Type)),
					zap.String("UserID", e.UserID),
					zap.String("SubscriptionID", e.SubscriptionID),
					zap.String("PaymentMethod", e.PaymentMethod),
					zap.String("GatewayEvent", e.GatewayEvent),
					zap.Int64("AmountPaise", e.AmountPaise),
				)
			}
		}
	}()
	return nil
}

// mapGatewayStatus mirrors a gateway status string onto the local Status.
// Unknown statuses return false and are left untouched.
func mapGatewayStatus(gwStatus string) (Status, bool) {
	switch gwStatus {
	case gateway.StatusCreated:
		return StatusCreated, true
	case gateway.StatusAuthenticated:
		return StatusAuthenticated, true
	case gateway.StatusActive:
		return StatusActive, true
	case gateway.StatusCancelled, gateway.StatusCompleted, gateway.StatusHalted, gateway.StatusExpired:
		return StatusCancelled, true
	default:
		return "", false
	}
}

// HandleReconcile periodically refreshes rows stuck in Pending/Created
// against the gateway, in case a webhook delivery was missed
func (t *Task) HandleReconcile(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.reconcile(ctx)
			}
		}
	}()
}

func (t *Task) reconcile(ctx context.Context) {
	stale, err := t.Store.ListStaleCreated(ctx, time.Now().Add(-time.Hour), 50)
	if err != nil {
		t.Logger.Error("Cannot list stale subscriptions",
			zap.Error(err),
		)
		return
	}
	for _, sub := range stale {
		gwSub, err := t.Gateway.GetSubscription(ctx, sub.GatewaySubscriptionID)
		if err != nil {
			t.Logger.Error("Cannot fetch gateway subscription for reconciliation",
				zap.String("GatewaySubscriptionID", sub.GatewaySubscriptionID),
				zap.Error(err),
			)
			continue
		}
		status, ok := mapGatewayStatus(gwSub.Status)
		if !ok || status == sub.Status {
			continue
		}
		opt := SyncGatewayOptions{
			GatewaySubscriptionID: sub.GatewaySubscriptionID,
			Status:                status,
			StartTrial:            status == StatusAuthenticated,
		}
		if gwSub.CurrentStart > 0 {
			opt.PeriodStart = time.Unix(gwSub.CurrentStart, 0)
		}
		if gwSub.CurrentEnd > 0 {
			opt.PeriodEnd = time.Unix(gwSub.CurrentEnd, 0)
		}
		if err := t.Store.SyncGatewayStatus(ctx, opt); err != nil {
			t.Logger.Error("Cannot synchronize subscription during reconciliation",
				zap.String("GatewaySubscriptionID", sub.GatewaySubscriptionID),
				zap.Error(err),
			)
			continue
		}
		t.Logger.Info("Reconciled subscription against gateway",
			zap.String("GatewaySubscriptionID", sub.GatewaySubscriptionID),
			zap.String("Status", string(status)),
		)
	}
}
