package subscription

import "fmt"

// ErrorCode classifies every failure the orchestrators can surface. The
// HTTP layer maps each code onto a status class; nothing below the HTTP
// layer knows about status codes.
type ErrorCode string

// Defining error codes
const (
	// user-actionable (400-class)
	CodeMandateNotAuthenticated   ErrorCode = "MANDATE_NOT_AUTHENTICATED"
	CodeTrialAlreadyCompleted     ErrorCode = "TRIAL_ALREADY_COMPLETED"
	CodeInvalidSubscriptionStatus ErrorCode = "INVALID_SUBSCRIPTION_STATUS"
	CodeAlreadyActivated          ErrorCode = "ALREADY_ACTIVATED"
	CodeSubscriptionExists        ErrorCode = "SUBSCRIPTION_EXISTS"

	// not-found (404-class)
	CodeNoActiveSubscription ErrorCode = "NO_ACTIVE_SUBSCRIPTION"

	// configuration/infrastructure (500-class)
	CodeGatewayNotConfigured      ErrorCode = "GATEWAY_NOT_CONFIGURED"
	CodeGatewayUnreachable        ErrorCode = "GATEWAY_UNREACHABLE"
	CodePricingUnavailable        ErrorCode = "PRICING_UNAVAILABLE"
	CodeInvoiceCreationFailed     ErrorCode = "INVOICE_CREATION_FAILED"
	CodePaymentLinkCreationFailed ErrorCode = "PAYMENT_LINK_CREATION_FAILED"
	CodeInternal                  ErrorCode = "INTERNAL"
)

// Error is a classified orchestrator failure. ShortURL is only set for
// CodeMandateNotAuthenticated, where it carries the gateway page the user
// must visit to finish mandate setup.
type Error struct {
	Code     ErrorCode
	Message  string
	ShortURL string
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func wrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// ErrMandateNotAuthenticated is recoverable: the caller should redirect the
// user to shortURL to complete mandate setup.
func ErrMandateNotAuthenticated(shortURL string) *Error {
	e := newError(CodeMandateNotAuthenticated, "Payment mandate is not authenticated yet")
	e.ShortURL = shortURL
	return e
}

func ErrTrialAlreadyCompleted() *Error {
	return newError(CodeTrialAlreadyCompleted, "Trial already completed")
}

func ErrInvalidSubscriptionStatus(gatewayStatus string) *Error {
	return newError(CodeInvalidSubscriptionStatus, fmt.Sprintf("Subscription is in status %q and cannot be activated", gatewayStatus))
}

func ErrAlreadyActivated() *Error {
	return newError(CodeAlreadyActivated, "Trial was already activated by a concurrent request")
}

func ErrSubscriptionExists() *Error {
	return newError(CodeSubscriptionExists, "A live subscription already exists")
}

func ErrNoActiveSubscription() *Error {
	return newError(CodeNoActiveSubscription, "No active subscription found")
}

func ErrGatewayNotConfigured() *Error {
	return newError(CodeGatewayNotConfigured, "Payment gateway is not configured")
}

func ErrGatewayUnreachable(cause error) *Error {
	return wrapError(CodeGatewayUnreachable, "Cannot reach payment gateway", cause)
}

func ErrPricingUnavailable(cause error) *Error {
	return wrapError(CodePricingUnavailable, "Cannot resolve subscription pricing", cause)
}

func ErrInvoiceCreationFailed(description string, cause error) *Error {
	return wrapError(CodeInvoiceCreationFailed, fmt.Sprintf("Cannot create invoice: %s", description), cause)
}

func ErrPaymentLinkCreationFailed(description string, cause error) *Error {
	return wrapError(CodePaymentLinkCreationFailed, fmt.Sprintf("Cannot create payment link: %s", description), cause)
}

func ErrInternal(cause error) *Error {
	return wrapError(CodeInternal, "An unexpected error has occured", cause)
}
