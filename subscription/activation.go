package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/resumly/billing/event"
	"github.com/resumly/billing/gateway"

	"go.uber.org/zap"
)

// Gateway is the payment gateway capability surface consumed by the
// orchestrators. *gateway.Client implements it; tests substitute fakes.
type Gateway interface {
	Configured() bool
	GetSubscription(ctx context.Context, id string) (*gateway.Subscription, error)
	ListCustomerTokens(ctx context.Context, customerID string) ([]gateway.Token, error)
	CreateInvoice(ctx context.Context, params gateway.InvoiceParams) (*gateway.Invoice, error)
	CreatePaymentLink(ctx context.Context, params gateway.PaymentLinkParams) (*gateway.PaymentLink, error)
	CreateSubscription(ctx context.Context, params gateway.SubscriptionParams) (*gateway.Subscription, error)
	CancelSubscription(ctx context.Context, id string) error
}

var _ Gateway = &gateway.Client{}

type activationStore interface {
	GetLiveByUserID(ctx context.Context, userID string) (*Subscription, error)
	DeactivateTrial(ctx context.Context, subscriptionID string) error
}

var _ activationStore = &Manager{}

// User identifies the authenticated caller acting on their own subscription
type User struct {
	ID      string
	Email   string
	Contact string
}

// ActivationResult is the descriptor returned to the caller on a successful
// early trial activation. Exactly one of InvoiceID/PaymentLinkID is set,
// matching PaymentMethod. The charge itself settles asynchronously; the
// webhook entry point observes completion.
type ActivationResult struct {
	Message       string        `json:"message"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	InvoiceID     string        `json:"invoiceId,omitempty"`
	PaymentLinkID string        `json:"paymentLinkId,omitempty"`
	ShortURL      string        `json:"shortUrl,omitempty"`
	Amount        float64       `json:"amount,omitempty"` // major units (rupees)
}

// ActivatorOptions contains the configuration for the trial activation
// orchestrator
type ActivatorOptions struct {
	Store    activationStore
	Gateway  Gateway
	Resolver *Resolver
	Producer event.Producer // optional
	Logger   *zap.Logger
	BaseURL  string // application base URL for payment link callbacks
}

// Activator decides whether an early trial activation is possible and runs
// the flow matching the user's payment instrument
type Activator struct {
	ActivatorOptions
}

// NewActivator will create the trial activation orchestrator
func NewActivator(option ActivatorOptions) (*Activator, error) {
	if option.Store == nil {
		return nil, fmt.Errorf("nil Store is invalid")
	}
	if option.Gateway == nil {
		return nil, fmt.Errorf("nil Gateway is invalid")
	}
	if option.Resolver == nil {
		return nil, fmt.Errorf("nil Resolver is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Activator{
		ActivatorOptions: option,
	}, nil
}

// Activate runs the early activation state machine for the caller's own
// subscription. Local state is only mutated after the gateway confirms
// invoice or payment link creation; every failure leaves the row untouched
// except for the compare-and-set losing a concurrent race.
func (a *Activator) Activate(ctx context.Context, user User) (*ActivationResult, error) {
	logger := a.Logger.With(zap.String("UserID", user.ID))

	sub, err := a.Store.GetLiveByUserID(ctx, user.ID)
	if err != nil {
		return nil, ErrInternal(err)
	}
	if sub == nil || (sub.Status != StatusActive && sub.Status != StatusAuthenticated) {
		return nil, ErrNoActiveSubscription()
	}
	if !sub.TrialActive {
		return nil, ErrTrialAlreadyCompleted()
	}
	if !a.Gateway.Configured() {
		return nil, ErrGatewayNotConfigured()
	}

	logger = logger.With(zap.String("GatewaySubscriptionID", sub.GatewaySubscriptionID))

	gwSub, err := a.Gateway.GetSubscription(ctx, sub.GatewaySubscriptionID)
	if err != nil {
		return nil, ErrGatewayUnreachable(err)
	}

	switch gwSub.Status {
	case gateway.StatusCreated:
		// mandate setup never finished; user-actionable, not a system error
		return nil, ErrMandateNotAuthenticated(gwSub.ShortURL)
	case gateway.StatusAuthenticated, gateway.StatusActive, gateway.StatusCancelled:
		// chargeable
	default:
		return nil, ErrInvalidSubscriptionStatus(gwSub.Status)
	}

	method, source := DetectPaymentMethod(ctx, a.Gateway, gwSub, logger)
	logger.Info("Detected payment method for early activation",
		zap.String("PaymentMethod", string(method)),
		zap.String("DetectionSource", string(source)),
	)

	amount, err := a.Resolver.Amount(ctx, sub.Tier, sub.Region, sub.BillingCycle)
	if err != nil {
		return nil, ErrPricingUnavailable(err)
	}

	description := fmt.Sprintf("%s plan (%s)", sub.Tier, sub.BillingCycle)

	var result *ActivationResult
	switch method {
	case MethodCard:
		customerID := gwSub.CustomerID
		if len(customerID) == 0 {
			customerID = sub.GatewayCustomerID
		}
		invoice, err := a.Gateway.CreateInvoice(ctx, gateway.InvoiceParams{
			CustomerID:     customerID,
			SubscriptionID: sub.GatewaySubscriptionID,
			Amount:         amount,
			Currency:       "INR",
			Description:    description,
		})
		if err != nil {
			return nil, ErrInvoiceCreationFailed(gatewayDescription(err), err)
		}
		result = &ActivationResult{
			Message:       "Trial activated, invoice issued",
			PaymentMethod: MethodCard,
			InvoiceID:     invoice.ID,
			ShortURL:      invoice.ShortURL,
		}
	case MethodUPI:
		link, err := a.Gateway.CreatePaymentLink(ctx, gateway.PaymentLinkParams{
			Amount:          amount,
			Currency:        "INR",
			Description:     description,
			CustomerEmail:   user.Email,
			CustomerContact: user.Contact,
			CallbackURL:     a.BaseURL + "/billing/conversion",
			NotifySMS:       true,
			NotifyEmail:     true,
			Notes: map[string]string{
				"user_id":         user.ID,
				"subscription_id": sub.GatewaySubscriptionID,
				"tier":            string(sub.Tier),
				"billing_cycle":   string(sub.BillingCycle),
				"activated_early": "true",
			},
		})
		if err != nil {
			return nil, ErrPaymentLinkCreationFailed(gatewayDescription(err), err)
		}
		result = &ActivationResult{
			Message:       "Trial activated, complete the payment to continue",
			PaymentMethod: MethodUPI,
			PaymentLinkID: link.ID,
			ShortURL:      link.ShortURL,
			Amount:        float64(amount) / 100,
		}
	}

	// persist only after the gateway has confirmed; the CAS surfaces a
	// concurrent activation instead of double-charging
	if err := a.Store.DeactivateTrial(ctx, sub.ID); err != nil {
		if typed, ok := err.(*Error); ok {
			return nil, typed
		}
		return nil, ErrInternal(err)
	}

	a.publish(&event.Lifecycle{
		Type:                  event.TypeTrialActivated,
		UserID:                user.ID,
		SubscriptionID:        sub.ID,
		GatewaySubscriptionID: sub.GatewaySubscriptionID,
		PaymentMethod:         string(method),
		AmountPaise:           amount,
		OccurredAt:            time.Now(),
	})

	return result, nil
}

func (a *Activator) publish(e *event.Lifecycle) {
	if a.Producer == nil {
		return
	}
	if err := a.Producer.PublishLifecycle(e); err != nil {
		a.Logger.Error("Cannot publish lifecycle event",
			zap.String("Type", string(e.Type)),
			zap.Error(err),
		)
	}
}

// gatewayDescription extracts the gateway's own error description for the
// user-visible message, falling back to a generic phrase
func gatewayDescription(err error) string {
	if apiErr, ok := err.(*gateway.APIError); ok && len(apiErr.Description) > 0 {
		return apiErr.Description
	}
	if err == gateway.ErrNotConfigured {
		return "payment gateway is not configured"
	}
	return "payment gateway rejected the request"
}
