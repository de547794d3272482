package subscription

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/resumly/billing/event"
	"github.com/resumly/billing/gateway"
	resp "github.com/resumly/billing/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
)

type webhookStore interface {
	RecordWebhookEvent(ctx context.Context, eventID, kind string) (bool, error)
	SyncGatewayStatus(ctx context.Context, opt SyncGatewayOptions) error
	GetByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*Subscription, error)
}

var _ webhookStore = &Manager{}

// WebhookOptions contains the configuration for the gateway callback endpoint
type WebhookOptions struct {
	Store    webhookStore
	Secret   string
	Producer event.Producer // optional
	Logger   *zap.Logger
}

// Webhook is the out-of-band entry point through which the gateway delivers
// mandate authentication and charge settlement events. Deliveries are
// retried by the gateway, so handling is idempotent: each event id is applied
// at most once.
type Webhook struct {
	WebhookOptions
}

// NewWebhook will create the gateway callback endpoint
func NewWebhook(option WebhookOptions) (*Webhook, error) {
	if option.Store == nil {
		return nil, fmt.Errorf("nil Store is invalid")
	}
	if len(option.Secret) == 0 {
		return nil, fmt.Errorf("empty Secret is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Webhook{
		WebhookOptions: option,
	}, nil
}

type webhookEnvelope struct {
	Entity  string `json:"entity"`
	Event   string `json:"event"`
	Payload struct {
		Subscription struct {
			Entity gateway.Subscription `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

func (h *Webhook) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *Webhook) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Cannot read request body"))
		return
	}

	signature := r.Header.Get(signatureHeader)
	if len(signature) == 0 || !h.verifySignature(body, signature) {
		h.Logger.Warn("Rejected webhook delivery with bad signature")
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid signature"))
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	logger := h.Logger.With(
		zap.String("Event", envelope.Event),
		zap.String("GatewaySubscriptionID", envelope.Payload.Subscription.Entity.ID),
	)

	eventID := r.Header.Get(eventIDHeader)
	if len(eventID) > 0 {
		fresh, err := h.Store.RecordWebhookEvent(ctx, eventID, envelope.Event)
		if err != nil {
			logger.Error("Cannot record webhook event",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected())
			return
		}
		if !fresh {
			// retried delivery, already applied
			resp.WriteResponse(w, r, map[string]bool{"duplicate": true})
			return
		}
	} else {
		logger.Warn("Webhook delivery carries no event id, applying without dedup")
	}

	if err := h.apply(ctx, logger, &envelope); err != nil {
		logger.Error("Cannot apply webhook event",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, map[string]bool{"processed": true})
}

func (h *Webhook) apply(ctx context.Context, logger *zap.Logger, envelope *webhookEnvelope) error {
	gwSub := &envelope.Payload.Subscription.Entity

	opt := SyncGatewayOptions{
		GatewaySubscriptionID: gwSub.ID,
	}
	if gwSub.CurrentStart > 0 {
		opt.PeriodStart = time.Unix(gwSub.CurrentStart, 0)
	}
	if gwSub.CurrentEnd > 0 {
		opt.PeriodEnd = time.Unix(gwSub.CurrentEnd, 0)
	}

	switch envelope.Event {
	case "subscription.authenticated":
		opt.Status = StatusAuthenticated
		opt.StartTrial = true
	case "subscription.activated":
		opt.Status = StatusActive
	case "subscription.charged":
		// a successful charge ends any running trial
		opt.Status = StatusActive
		opt.EndTrial = true
	case "subscription.pending":
		// renewal charge failing; the gateway retries up to 3 times over 10
		// days before halting, nothing to mirror yet
		logger.Warn("Gateway reports renewal charge pending retry")
		return nil
	case "subscription.halted", "subscription.cancelled", "subscription.completed":
		opt.Status = StatusCancelled
		opt.EndTrial = true
	default:
		logger.Info("Ignoring unhandled webhook event")
		return nil
	}

	if err := h.Store.SyncGatewayStatus(ctx, opt); err != nil {
		return err
	}

	if h.Producer != nil {
		sub, err := h.Store.GetByGatewayID(ctx, gwSub.ID)
		if err == nil && sub != nil {
			if err := h.Producer.PublishLifecycle(&event.Lifecycle{
				Type:                  event.TypeGatewayObserved,
				UserID:                sub.UserID,
				SubscriptionID:        sub.ID,
				GatewaySubscriptionID: gwSub.ID,
				GatewayEvent:          envelope.Event,
				OccurredAt:            time.Now(),
			}); err != nil {
				logger.Error("Cannot publish lifecycle event",
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// Router returns the webhook routes. This router must be mounted without the
// bearer auth middleware; the gateway authenticates with its signature.
func (h *Webhook) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/razorpay", h.handleEvent)

	return r
}
