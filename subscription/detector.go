package subscription

import (
	"context"

	"github.com/resumly/billing/gateway"

	"go.uber.org/zap"
)

// DetectionSource names which signal decided the payment method. Unknown is
// an explicit outcome, not an error: activation must proceed on the default.
type DetectionSource string

// Defining detection sources
const (
	DetectedFromNotes DetectionSource = "notes"
	DetectedFromToken DetectionSource = "token"
	DetectionUnknown  DetectionSource = "unknown"
)

type tokenLister interface {
	ListCustomerTokens(ctx context.Context, customerID string) ([]gateway.Token, error)
}

// DetectPaymentMethod classifies the instrument bound to a gateway
// subscription. The default on any missing or failed signal is UPI: the UPI
// flow (payment link) is safe against any instrument, while the card flow
// charges a mandate directly and must never run against a non-card one.
// Detection failures are logged and swallowed, never propagated.
func DetectPaymentMethod(ctx context.Context, lister tokenLister, sub *gateway.Subscription, logger *zap.Logger) (PaymentMethod, DetectionSource) {
	if method, ok := sub.Notes["payment_method"]; ok && len(method) > 0 {
		if method == "card" {
			return MethodCard, DetectedFromNotes
		}
		return MethodUPI, DetectedFromNotes
	}

	if len(sub.CustomerID) > 0 {
		tokens, err := lister.ListCustomerTokens(ctx, sub.CustomerID)
		if err != nil {
			logger.Warn("Cannot list customer tokens, defaulting payment method to UPI",
				zap.String("GatewayCustomerID", sub.CustomerID),
				zap.Error(err),
			)
			return MethodUPI, DetectionUnknown
		}
		if len(tokens) > 0 {
			first := tokens[0]
			if first.Method == "card" {
				return MethodCard, DetectedFromToken
			}
			if first.Method == "upi" || first.VPA != nil {
				return MethodUPI, DetectedFromToken
			}
		}
	}

	logger.Warn("Payment method undeterminable, defaulting to UPI",
		zap.String("GatewaySubscriptionID", sub.ID),
	)
	return MethodUPI, DetectionUnknown
}
