package subscription

// Status is the custom type to define the current lifecycle state of a
// Subscription. It mirrors the gateway-side status.
type Status string

// Defining different Statuses for a Subscription
const (
	StatusPending       Status = "Pending"
	StatusCreated       Status = "Created"
	StatusAuthenticated Status = "Authenticated"
	StatusActive        Status = "Active"
	StatusCancelled     Status = "Cancelled"
)

// LiveStatuses are the statuses counted against the one-live-row-per-user rule
var LiveStatuses = []Status{StatusPending, StatusCreated, StatusAuthenticated, StatusActive}

// Tier is the custom type to identify the product tier of a Subscription
type Tier string

// Defining product tiers
const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Region is the custom type for the pricing/settlement bucket of a user
type Region string

// Defining pricing regions. RegionRow ("rest of world") is priced in USD and
// converted to INR for settlement.
const (
	RegionIndia Region = "india"
	RegionRow   Region = "row"
)

// BillingCycle is the custom type for the renewal interval of a Subscription
type BillingCycle string

// Defining billing cycles
const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

// PaymentMethod is the closed set of instrument classes the activation flow
// branches on. Adding a third instrument requires revisiting every switch
// over this type.
type PaymentMethod string

// Defining payment methods
const (
	MethodCard PaymentMethod = "card"
	MethodUPI  PaymentMethod = "upi"
)

// TrialDays is the trial length granted to a first-time subscriber
const TrialDays = 14
