package subscription

import (
	"context"
	"time"

	"github.com/resumly/billing/event"
	"github.com/resumly/billing/gateway"
)

// fakeStore is an in-memory stand-in for Manager
type fakeStore struct {
	sub           *Subscription
	getErr        error
	deactivateErr error
	deactivated   []string
	cancelled     []string
	prior         bool
	priorErr      error
	created       []*Subscription
	createErr     error
	recorded      map[string]string
	synced        []SyncGatewayOptions
	syncErr       error
	stale         []Subscription
}

func (f *fakeStore) GetLiveByUserID(ctx context.Context, userID string) (*Subscription, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.sub == nil || f.sub.UserID != userID {
		return nil, nil
	}
	return f.sub, nil
}

func (f *fakeStore) DeactivateTrial(ctx context.Context, subscriptionID string) error {
	if f.deactivateErr != nil {
		return f.deactivateErr
	}
	f.deactivated = append(f.deactivated, subscriptionID)
	if f.sub != nil && f.sub.ID == subscriptionID {
		f.sub.TrialActive = false
	}
	return nil
}

func (f *fakeStore) MarkCancelled(ctx context.Context, subscriptionID string, at time.Time) error {
	f.cancelled = append(f.cancelled, subscriptionID)
	if f.sub != nil && f.sub.ID == subscriptionID {
		f.sub.Status = StatusCancelled
	}
	return nil
}

func (f *fakeStore) HasPriorSubscription(ctx context.Context, userID string) (bool, error) {
	return f.prior, f.priorErr
}

func (f *fakeStore) Create(ctx context.Context, sub *Subscription) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, sub)
	return nil
}

func (f *fakeStore) RecordWebhookEvent(ctx context.Context, eventID, kind string) (bool, error) {
	if f.recorded == nil {
		f.recorded = make(map[string]string)
	}
	if _, seen := f.recorded[eventID]; seen {
		return false, nil
	}
	f.recorded[eventID] = kind
	return true, nil
}

func (f *fakeStore) SyncGatewayStatus(ctx context.Context, opt SyncGatewayOptions) error {
	if f.syncErr != nil {
		return f.syncErr
	}
	f.synced = append(f.synced, opt)
	return nil
}

func (f *fakeStore) GetByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*Subscription, error) {
	if f.sub != nil && f.sub.GatewaySubscriptionID == gatewaySubscriptionID {
		return f.sub, nil
	}
	return nil, nil
}

func (f *fakeStore) ListStaleCreated(ctx context.Context, before time.Time, limit int) ([]Subscription, error) {
	return f.stale, nil
}

// fakeGateway is a scripted stand-in for the gateway client
type fakeGateway struct {
	configured   bool
	sub          *gateway.Subscription
	subErr       error
	tokens       []gateway.Token
	tokensErr    error
	invoice      *gateway.Invoice
	invoiceErr   error
	link         *gateway.PaymentLink
	linkErr      error
	newSub       *gateway.Subscription
	newSubErr    error
	cancelErr    error
	getCalls     int
	tokenCalls   int
	invoiceCalls int
	linkCalls    int
	createCalls  int
	cancelCalls  int
	lastInvoice  gateway.InvoiceParams
	lastLink     gateway.PaymentLinkParams
	lastCreate   gateway.SubscriptionParams
	lastCancelID string
}

func (f *fakeGateway) Configured() bool {
	return f.configured
}

func (f *fakeGateway) GetSubscription(ctx context.Context, id string) (*gateway.Subscription, error) {
	f.getCalls++
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.sub, nil
}

func (f *fakeGateway) ListCustomerTokens(ctx context.Context, customerID string) ([]gateway.Token, error) {
	f.tokenCalls++
	if f.tokensErr != nil {
		return nil, f.tokensErr
	}
	return f.tokens, nil
}

func (f *fakeGateway) CreateInvoice(ctx context.Context, params gateway.InvoiceParams) (*gateway.Invoice, error) {
	f.invoiceCalls++
	f.lastInvoice = params
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	return f.invoice, nil
}

func (f *fakeGateway) CreatePaymentLink(ctx context.Context, params gateway.PaymentLinkParams) (*gateway.PaymentLink, error) {
	f.linkCalls++
	f.lastLink = params
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	return f.link, nil
}

func (f *fakeGateway) CreateSubscription(ctx context.Context, params gateway.SubscriptionParams) (*gateway.Subscription, error) {
	f.createCalls++
	f.lastCreate = params
	if f.newSubErr != nil {
		return nil, f.newSubErr
	}
	return f.newSub, nil
}

func (f *fakeGateway) CancelSubscription(ctx context.Context, id string) error {
	f.cancelCalls++
	f.lastCancelID = id
	return f.cancelErr
}

// fixedRate returns a constant USD to INR rate
type fixedRate struct {
	rate float64
	err  error
}

func (r fixedRate) USDToINR(ctx context.Context) (float64, error) {
	return r.rate, r.err
}

// recordingProducer captures published lifecycle events
type recordingProducer struct {
	events []*event.Lifecycle
}

func (p *recordingProducer) Close() {}

func (p *recordingProducer) PublishLifecycle(e *event.Lifecycle) error {
	p.events = append(p.events, e)
	return nil
}
