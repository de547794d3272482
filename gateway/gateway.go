package gateway

import "encoding/json"

// Subscription mirrors the gateway's recurring-billing object. It is owned by
// the gateway and only ever read by this service.
type Subscription struct {
	ID           string `json:"id"`
	PlanID       string `json:"plan_id"`
	CustomerID   string `json:"customer_id"`
	Status       string `json:"status"`
	CurrentStart int64  `json:"current_start"`
	CurrentEnd   int64  `json:"current_end"`
	ShortURL     string `json:"short_url"`
	TotalCount   int64  `json:"total_count"`
	PaidCount    int64  `json:"paid_count"`
	Notes        Notes  `json:"notes"`
}

// Gateway-side subscription statuses
const (
	StatusCreated       string = "created"
	StatusAuthenticated        = "authenticated"
	StatusActive               = "active"
	StatusPending              = "pending"
	StatusHalted               = "halted"
	StatusCancelled            = "cancelled"
	StatusCompleted            = "completed"
	StatusExpired              = "expired"
)

// Notes is the free-form key/value bag the gateway attaches to its objects.
// The gateway serializes an empty bag as [] instead of {}, so decoding has to
// tolerate both.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		*n = Notes{}
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

// TokenVPA carries the UPI address of a upi-method token
type TokenVPA struct {
	Username string `json:"username"`
	Handle   string `json:"handle"`
	Address  string `json:"address"`
}

// TokenCard carries the card metadata of a card-method token
type TokenCard struct {
	Network string `json:"network"`
	Last4   string `json:"last4"`
	Issuer  string `json:"issuer"`
}

// Token is a payment instrument bound to a gateway customer
type Token struct {
	ID     string     `json:"id"`
	Method string     `json:"method"`
	Card   *TokenCard `json:"card,omitempty"`
	VPA    *TokenVPA  `json:"vpa,omitempty"`
}

type tokenCollection struct {
	Count int64   `json:"count"`
	Items []Token `json:"items"`
}

// InvoiceParams describes an immediate charge against an existing mandate
type InvoiceParams struct {
	CustomerID     string
	SubscriptionID string
	Amount         int64 // minor units (paise)
	Currency       string
	Description    string
}

// Invoice is the gateway's charge-request object
type Invoice struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	ShortURL string `json:"short_url"`
	Amount   int64  `json:"amount"`
}

// PaymentLinkParams describes a gateway-hosted checkout page
type PaymentLinkParams struct {
	Amount          int64 // minor units (paise)
	Currency        string
	Description     string
	CustomerEmail   string
	CustomerContact string
	CallbackURL     string
	NotifySMS       bool
	NotifyEmail     bool
	Notes           map[string]string
}

// PaymentLink is the gateway's hosted checkout object
type PaymentLink struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
}

// SubscriptionParams describes a new mandate request on the gateway
type SubscriptionParams struct {
	PlanID         string
	TotalCount     int64
	CustomerNotify bool
	Notes          map[string]string
}
