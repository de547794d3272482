package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultBaseURL is the production endpoint of the payment gateway
const DefaultBaseURL = "https://api.razorpay.com/v1"

// ErrNotConfigured is returned before any network call when the key pair is absent
var ErrNotConfigured = fmt.Errorf("payment gateway credentials are not configured")

// APIError is a non-2xx response decoded from the gateway's error envelope
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned HTTP %d: %s (%s)", e.StatusCode, e.Description, e.Code)
}

type apiErrorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// Options provides initialization parameters for Client
type Options struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	HTTP      *http.Client
	Logger    *zap.Logger
}

// Client is a thin REST client over the payment gateway API. All calls
// authenticate with the shared key pair via basic auth.
type Client struct {
	Options
}

// NewClient returns a gateway Client. An empty key pair is allowed at
// construction time so that boot does not depend on billing configuration;
// every call will then fail with ErrNotConfigured.
func NewClient(option Options) (*Client, error) {
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.BaseURL == "" {
		option.BaseURL = DefaultBaseURL
	}
	if option.HTTP == nil {
		option.HTTP = &http.Client{
			Timeout: time.Second * 15,
		}
	}
	return &Client{
		Options: option,
	}, nil
}

// Configured reports whether the shared credential pair is present
func (c *Client) Configured() bool {
	return len(c.KeyID) > 0 && len(c.KeySecret) > 0
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var reqBody *bytes.Buffer = &bytes.Buffer{}
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return extErrors.Wrap(err, "Cannot encode request body")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return extErrors.Wrap(err, "Cannot construct gateway request")
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return extErrors.Wrap(err, "Cannot reach payment gateway")
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: res.StatusCode,
		}
		var envelope apiErrorEnvelope
		if err := json.NewDecoder(res.Body).Decode(&envelope); err == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		c.Logger.Error("Payment gateway returned error",
			zap.String("Method", method),
			zap.String("Path", path),
			zap.Int("StatusCode", res.StatusCode),
			zap.String("Description", apiErr.Description),
		)
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return extErrors.Wrap(err, "Cannot decode gateway response")
		}
	}
	return nil
}

// GetSubscription fetches the live gateway subscription by its id
func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+id, nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListCustomerTokens returns the payment instruments bound to a gateway
// customer. An empty list is a valid result.
func (c *Client) ListCustomerTokens(ctx context.Context, customerID string) ([]Token, error) {
	var collection tokenCollection
	if err := c.do(ctx, http.MethodGet, "/customers/"+customerID+"/tokens", nil, &collection); err != nil {
		return nil, err
	}
	return collection.Items, nil
}

// CreateInvoice issues an immediate charge request against an existing mandate
func (c *Client) CreateInvoice(ctx context.Context, params InvoiceParams) (*Invoice, error) {
	body := map[string]interface{}{
		"type":            "invoice",
		"customer_id":     params.CustomerID,
		"subscription_id": params.SubscriptionID,
		"description":     params.Description,
		"line_items": []map[string]interface{}{
			{
				"name":     params.Description,
				"amount":   params.Amount,
				"currency": params.Currency,
			},
		},
	}
	var invoice Invoice
	if err := c.do(ctx, http.MethodPost, "/invoices", body, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// CreatePaymentLink creates a hosted checkout page for a one-off collection
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*PaymentLink, error) {
	customer := map[string]interface{}{
		"email": params.CustomerEmail,
	}
	if len(params.CustomerContact) > 0 {
		customer["contact"] = params.CustomerContact
	}
	body := map[string]interface{}{
		"amount":      params.Amount,
		"currency":    params.Currency,
		"description": params.Description,
		"customer":    customer,
		"notify": map[string]bool{
			"sms":   params.NotifySMS,
			"email": params.NotifyEmail,
		},
		"callback_url":    params.CallbackURL,
		"callback_method": "get",
		"notes":           params.Notes,
	}
	var link PaymentLink
	if err := c.do(ctx, http.MethodPost, "/payment_links", body, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// CreateSubscription requests a fresh mandate on the gateway
func (c *Client) CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error) {
	notify := 0
	if params.CustomerNotify {
		notify = 1
	}
	body := map[string]interface{}{
		"plan_id":         params.PlanID,
		"total_count":     params.TotalCount,
		"customer_notify": notify,
		"notes":           params.Notes,
	}
	var sub Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CancelSubscription cancels the mandate on the gateway immediately
func (c *Client) CancelSubscription(ctx context.Context, id string) error {
	body := map[string]interface{}{
		"cancel_at_cycle_end": 0,
	}
	return c.do(ctx, http.MethodPost, "/subscriptions/"+id+"/cancel", body, nil)
}
