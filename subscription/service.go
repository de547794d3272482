package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/resumly/billing/auth"
	resp "github.com/resumly/billing/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

type serviceStore interface {
	GetLiveByUserID(ctx context.Context, userID string) (*Subscription, error)
}

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Store     serviceStore
	Activator *Activator
	Lifecycle *Lifecycle
	Logger    *zap.Logger
}

// Service is the subscription API router. All routes act on the caller's own
// subscription; the auth middleware must be applied by the parent router.
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the subscription API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Store == nil {
		return nil, fmt.Errorf("nil Store is invalid")
	}
	if option.Activator == nil {
		return nil, fmt.Errorf("nil Activator is invalid")
	}
	if option.Lifecycle == nil {
		return nil, fmt.Errorf("nil Lifecycle is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func userFromClaims(claims *auth.Claims) User {
	return User{
		ID:      claims.ID,
		Email:   claims.Email,
		Contact: claims.Contact,
	}
}

// writeDomainError maps the orchestrator error taxonomy onto HTTP statuses.
// The error code and remediation URL ride in the result field so clients can
// branch without parsing message text.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	typed, ok := err.(*Error)
	if !ok {
		logger.Error("Unclassified error reached the HTTP boundary",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	result := map[string]string{
		"errorCode": string(typed.Code),
	}
	if len(typed.ShortURL) > 0 {
		result["shortUrl"] = typed.ShortURL
	}

	switch typed.Code {
	case CodeMandateNotAuthenticated,
		CodeTrialAlreadyCompleted,
		CodeInvalidSubscriptionStatus,
		CodeAlreadyActivated,
		CodeSubscriptionExists:
		resp.WriteError(w, r, resp.ErrBadRequest().WithMessage(typed.Message).WithResult(result))
	case CodeNoActiveSubscription:
		resp.WriteError(w, r, resp.ErrNotFound().WithMessage(typed.Message).WithResult(result))
	default:
		logger.Error("Subscription operation failed",
			zap.String("ErrorCode", string(typed.Code)),
			zap.Error(typed),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().WithMessage(typed.Message).WithResult(result))
	}
}

func (s *Service) getSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	sub, err := s.Store.GetLiveByUserID(ctx, claims.ID)
	if err != nil {
		logger.Error("Unable to query subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the subscription"))
		return
	}
	if sub == nil {
		writeDomainError(w, r, logger, ErrNoActiveSubscription())
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) activateTrial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	result, err := s.Activator.Activate(ctx, userFromClaims(claims))
	if err != nil {
		writeDomainError(w, r, logger, err)
		return
	}

	logger.Info("Trial activated early",
		zap.String("PaymentMethod", string(result.PaymentMethod)),
	)
	resp.WriteResponse(w, r, result)
}

func (s *Service) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	if err := s.Lifecycle.Cancel(ctx, userFromClaims(claims)); err != nil {
		writeDomainError(w, r, logger, err)
		return
	}

	logger.Info("Subscription cancelled")
	resp.WriteResponse(w, r, map[string]string{"status": string(StatusCancelled)})
}

// ReactivateRequest is the model of user request for a fresh subscription
type ReactivateRequest struct {
	Tier         string `json:"tier" validate:"required"`
	BillingCycle string `json:"billingCycle" validate:"required,oneof=monthly annual"`
	Region       string `json:"region" validate:"required,oneof=india row"`
}

func (s *Service) reactivateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	var req ReactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	result, err := s.Lifecycle.Reactivate(ctx, userFromClaims(claims), Tier(req.Tier), BillingCycle(req.BillingCycle), Region(req.Region))
	if err != nil {
		writeDomainError(w, r, logger, err)
		return
	}

	logger.Info("Subscription reactivated",
		zap.String("GatewaySubscriptionID", result.Subscription.GatewaySubscriptionID),
		zap.Int("TrialDays", result.TrialDays),
	)
	resp.WriteResponse(w, r, result)
}

// Router returns the authenticated subscription routes
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.getSubscription)
	r.Post("/activate-trial", s.activateTrial)
	r.Post("/cancel", s.cancelSubscription)
	r.Post("/reactivate", s.reactivateSubscription)

	return r
}
