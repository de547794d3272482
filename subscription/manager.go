package subscription

import (
	"context"
	"errors"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to Subscriptions
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for subscriptions
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if logger == nil {
		return nil, errors.New("nil Logger is invalid")
	}
	if db == nil {
		return nil, errors.New("nil DB is invalid")
	}
	if err := db.AutoMigrate(&Subscription{}, &WebhookEvent{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize subscription.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

func liveStatusStrings() []string {
	list := make([]string, 0, len(LiveStatuses))
	for _, s := range LiveStatuses {
		list = append(list, string(s))
	}
	return list
}

// Create will persist a new subscription row, enforcing at most one live row
// per user. The uniqueness rule is application-enforced, inside a serializable
// transaction rather than a schema constraint.
func (m *Manager) Create(ctx context.Context, sub *Subscription) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		result := tx.Model(&Subscription{}).
			Where("user_id = ?", sub.UserID).
			Where("status IN ?", liveStatusStrings()).
			Count(&count)
		if result.Error != nil {
			m.logger.Error("Database returned error",
				zap.Error(result.Error),
			)
			return extErrors.Wrap(result.Error, "Cannot check for live subscriptions")
		}
		if count > 0 {
			return ErrSubscriptionExists()
		}
		if result := tx.Create(sub); result.Error != nil {
			m.logger.Error("Unable to create new subscription in database",
				zap.Error(result.Error),
			)
			return extErrors.Wrap(result.Error, "Cannot create subscription")
		}
		return nil
	})
}

// GetLiveByUserID returns the user's live subscription row, or nil when the
// user has none
func (m *Manager) GetLiveByUserID(ctx context.Context, userID string) (*Subscription, error) {
	var sub Subscription
	result := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("status IN ?", liveStatusStrings()).
		First(&sub)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription by user id")
	}
	return &sub, nil
}

// GetByGatewayID returns the subscription row mirroring the given gateway
// subscription, or nil when none exists
func (m *Manager) GetByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*Subscription, error) {
	var sub Subscription
	result := m.db.WithContext(ctx).
		Where("razorpay_subscription_id = ?", gatewaySubscriptionID).
		First(&sub)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription by gateway id")
	}
	return &sub, nil
}

// HasPriorSubscription reports whether the user has ever held a subscription,
// including cancelled ones. Used to deny repeat trials on reactivation.
func (m *Manager) HasPriorSubscription(ctx context.Context, userID string) (bool, error) {
	var count int64
	result := m.db.WithContext(ctx).Model(&Subscription{}).
		Where("user_id = ?", userID).
		Count(&count)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return false, extErrors.Wrap(result.Error, "Cannot check subscription history")
	}
	return count > 0, nil
}

// DeactivateTrial flips trial_active to false with a compare-and-set on the
// current value, so two concurrent activation calls cannot both succeed. The
// losing caller observes zero affected rows and gets ErrAlreadyActivated.
func (m *Manager) DeactivateTrial(ctx context.Context, subscriptionID string) error {
	result := m.db.WithContext(ctx).Model(&Subscription{}).
		Where("id = ?", subscriptionID).
		Where("trial_active = ?", true).
		Where("status IN ?", liveStatusStrings()).
		Update("trial_active", false)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot deactivate trial")
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyActivated()
	}
	return nil
}

// MarkCancelled sets the row to Cancelled. current_period_end is left
// untouched so entitlement checks keep granting access until then.
func (m *Manager) MarkCancelled(ctx context.Context, subscriptionID string, at time.Time) error {
	result := m.db.WithContext(ctx).Model(&Subscription{}).
		Where("id = ?", subscriptionID).
		Updates(map[string]interface{}{
			"status":       StatusCancelled,
			"trial_active": false,
			"cancelled_at": at,
		})
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot mark subscription as cancelled")
	}
	return nil
}

// SyncGatewayOptions describes a status observation from the gateway
type SyncGatewayOptions struct {
	GatewaySubscriptionID string
	Status                Status
	PeriodStart           time.Time
	PeriodEnd             time.Time
	StartTrial            bool // only rows granted trial days actually start one
	EndTrial              bool
}

// SyncGatewayStatus mirrors a gateway-observed status onto the local row.
// Used by the webhook entry point and the reconciliation sweep.
func (m *Manager) SyncGatewayStatus(ctx context.Context, opt SyncGatewayOptions) error {
	updates := map[string]interface{}{
		"status": opt.Status,
	}
	if !opt.PeriodStart.IsZero() {
		updates["current_period_start"] = opt.PeriodStart
	}
	if !opt.PeriodEnd.IsZero() {
		updates["current_period_end"] = opt.PeriodEnd
	}
	if opt.StartTrial {
		updates["trial_active"] = gorm.Expr("trial_days > 0")
	}
	if opt.EndTrial {
		updates["trial_active"] = false
	}
	if opt.Status == StatusCancelled {
		updates["cancelled_at"] = time.Now()
	}
	result := m.db.WithContext(ctx).Model(&Subscription{}).
		Where("razorpay_subscription_id = ?", opt.GatewaySubscriptionID).
		Updates(updates)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot synchronize gateway status")
	}
	return nil
}

// RecordWebhookEvent inserts the gateway event id into the dedup log. It
// returns false when the event was already seen, in which case the caller
// must treat the delivery as a no-op.
func (m *Manager) RecordWebhookEvent(ctx context.Context, eventID, kind string) (bool, error) {
	var fresh bool
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing WebhookEvent
		result := tx.Where("id = ?", eventID).First(&existing)
		if result.Error == nil {
			fresh = false
			return nil
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if result := tx.Create(&WebhookEvent{
			ID:         eventID,
			Kind:       kind,
			ReceivedAt: time.Now(),
		}); result.Error != nil {
			return result.Error
		}
		fresh = true
		return nil
	})
	if err != nil {
		m.logger.Error("Database returned error",
			zap.Error(err),
		)
		return false, extErrors.Wrap(err, "Cannot record webhook event")
	}
	return fresh, nil
}

// ListStaleCreated returns live rows that have been waiting on mandate
// authentication since before the cutoff. The reconciliation sweep refreshes
// them against the gateway.
func (m *Manager) ListStaleCreated(ctx context.Context, before time.Time, limit int) ([]Subscription, error) {
	results := make([]Subscription, 0, limit)
	result := m.db.WithContext(ctx).
		Where("status IN ?", []string{string(StatusPending), string(StatusCreated)}).
		Where("updated_at < ?", before).
		Limit(limit).
		Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list stale subscriptions")
	}
	return results, nil
}
