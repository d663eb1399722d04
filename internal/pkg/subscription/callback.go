package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AndriyMelnyk/FinTrack/app/models"
	"github.com/AndriyMelnyk/FinTrack/app/repository"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/liqpay"
)

// UserDirectory resolves users referenced by callback order ids.
type UserDirectory interface {
	GetByID(id uuid.UUID) (*models.User, error)
}

// PlanCatalog resolves plans referenced by callback order ids.
type PlanCatalog interface {
	GetPlanByCode(code string) (*models.SubscriptionPlan, error)
}

// StatusFetcher queries the provider for the confirmed state of a payment.
// A nil status with nil error means the state could not be determined.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, orderID, paymentID string) (*liqpay.PaymentStatus, error)
}

// SubscriptionOps is the slice of the subscription service the callback flow
// drives.
type SubscriptionOps interface {
	ActivateSubscription(user *models.User, plan *models.SubscriptionPlan, in ActivationInput) (*models.UserSubscription, bool, error)
	MarkPendingPayment(user *models.User, plan *models.SubscriptionPlan, orderID, providerStatus, customerToken, providerSubscriptionID string, billingAt *time.Time) error
	MarkPaymentFailed(user *models.User, orderID, failureStatus, failureMessage, providerSubscriptionID string) error
	MarkCancelledByProvider(user *models.User, orderID, providerStatus string, effectiveAt *time.Time) error
	FindCurrent(userID uuid.UUID) (*models.UserSubscription, error)
}

// CallbackService turns verified provider callbacks into subscription state
// transitions. Validation is strictly ordered: signature, payload shape,
// action, order id, then entity lookups, so an attacker learns nothing about
// existing users or plans from an unsigned or malformed request.
type CallbackService struct {
	privateKey string
	users      UserDirectory
	plans      PlanCatalog
	ops        SubscriptionOps
	status     StatusFetcher
	flow       *FlowLogger
}

// NewCallbackService wires a callback service.
func NewCallbackService(privateKey string, users UserDirectory, plans PlanCatalog, ops SubscriptionOps, status StatusFetcher, flow *FlowLogger) *CallbackService {
	return &CallbackService{
		privateKey: privateKey,
		users:      users,
		plans:      plans,
		ops:        ops,
		status:     status,
		flow:       flow,
	}
}

// repositoryUserDirectory adapts the user repository to UserDirectory,
// mapping the gorm not-found error to ErrUnknownUser.
type repositoryUserDirectory struct {
	users repository.UserRepository
}

// NewRepositoryUserDirectory wraps a user repository as a UserDirectory.
func NewRepositoryUserDirectory(users repository.UserRepository) UserDirectory {
	return &repositoryUserDirectory{users: users}
}

func (d *repositoryUserDirectory) GetByID(id uuid.UUID) (*models.User, error) {
	user, err := d.users.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}
	return user, nil
}

// ProcessCallback handles one provider notification. The data and signature
// arrive as the raw form fields of the webhook request.
func (s *CallbackService) ProcessCallback(ctx context.Context, data, signature string) (*CallbackResult, error) {
	if data == "" {
		return nil, ErrMissingPayload
	}
	if !liqpay.VerifySignature(s.privateKey, data, signature) {
		s.flow.Step("signature_rejected", "", "", nil)
		return nil, ErrInvalidSignature
	}

	cb, err := liqpay.DecodeCallback(data)
	if err != nil {
		s.flow.Step("payload_rejected", "", "", NewContext().Set("error", err.Error()))
		return nil, err
	}

	s.flow.Step("callback_received", "", cb.OrderID, NewContext().
		Set("action", cb.RawAction).
		Set("status", string(cb.Status)).
		Set("payment_id", cb.PaymentID))

	if cb.Action == liqpay.ActionUnknown {
		s.flow.Step("action_rejected", "", cb.OrderID, NewContext().Set("action", cb.RawAction))
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, cb.RawAction)
	}

	ref, err := liqpay.ParseOrderID(cb.OrderID)
	if err != nil {
		s.flow.Step("order_rejected", "", cb.OrderID, nil)
		return nil, err
	}

	user, err := s.users.GetByID(ref.UserID)
	if err != nil {
		s.flow.Step("user_rejected", ref.UserID.String(), cb.OrderID, nil)
		return nil, err
	}

	plan, err := s.plans.GetPlanByCode(ref.PlanCode)
	if err != nil {
		s.flow.Step("plan_rejected", user.ID.String(), cb.OrderID, NewContext().Set("plan_code", ref.PlanCode))
		return nil, err
	}
	if plan.IsTrialPlan() {
		s.flow.Step("trial_plan_rejected", user.ID.String(), cb.OrderID, NewContext().Set("plan_code", plan.Code))
		return nil, ErrTrialPlanNotPurchasable
	}

	providerSubID, err := s.resolveProviderSubscriptionID(user, cb)
	if err != nil {
		s.flow.Step("provider_id_missing", user.ID.String(), cb.OrderID, nil)
		return nil, err
	}

	result := &CallbackResult{
		OrderID:        cb.OrderID,
		UserID:         user.ID,
		PlanCode:       plan.Code,
		ProviderStatus: string(cb.Status),
	}

	switch cb.Action {
	case liqpay.ActionSubscribe:
		err = s.handleSubscribe(ctx, user, plan, cb, providerSubID, result)
	case liqpay.ActionUnsubscribe:
		err = s.handleUnsubscribe(user, cb, result)
	case liqpay.ActionPay:
		err = s.handlePay(user, cb, providerSubID, result)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveProviderSubscriptionID takes the payment id from the payload,
// falling back to the identifier stored on the user's current subscription.
// Without either the callback cannot be tied to a provider-side subscription
// and is rejected.
func (s *CallbackService) resolveProviderSubscriptionID(user *models.User, cb *liqpay.Callback) (string, error) {
	if cb.PaymentID != "" {
		return cb.PaymentID, nil
	}
	sub, err := s.ops.FindCurrent(user.ID)
	if err != nil {
		return "", err
	}
	if sub != nil && sub.PaymentSubscriptionID != "" {
		return sub.PaymentSubscriptionID, nil
	}
	return "", ErrProviderSubscriptionIDMissing
}

// handleSubscribe processes a subscribe confirmation. The provider confirms
// the mandate before the first charge settles, so the flow records a pending
// payment and then reconciles against the status API: the subscription only
// activates on a confirmed charge.
func (s *CallbackService) handleSubscribe(ctx context.Context, user *models.User, plan *models.SubscriptionPlan, cb *liqpay.Callback, providerSubID string, result *CallbackResult) error {
	switch {
	case cb.Status.IsSubscribeSuccess():
		// continue below
	case cb.Status.IsUnsubscribeSuccess():
		// Providers reuse the subscribe action to announce a terminated
		// mandate, for example "subscribecanceled".
		return s.handleUnsubscribe(user, cb, result)
	default:
		s.flow.Step("subscribe_status_rejected", user.ID.String(), cb.OrderID, NewContext().Set("status", string(cb.Status)))
		return fmt.Errorf("%w: subscribe with status %q", ErrUnexpectedStatus, cb.Status)
	}

	if err := s.ops.MarkPendingPayment(user, plan, cb.OrderID, string(cb.Status), cb.CardToken, providerSubID, cb.SubscribeDateStart); err != nil {
		return err
	}
	s.flow.Step("subscribe_pending", user.ID.String(), cb.OrderID, NewContext().Set("provider_subscription_id", providerSubID))

	status, err := s.status.FetchStatus(ctx, cb.OrderID, cb.PaymentID)
	if err != nil {
		s.flow.Step("status_fetch_failed", user.ID.String(), cb.OrderID, NewContext().Set("error", err.Error()))
		result.ActivationPending = true
		return nil
	}
	if status == nil {
		s.flow.Step("status_undetermined", user.ID.String(), cb.OrderID, nil)
		result.ActivationPending = true
		return nil
	}

	switch {
	case status.Status.IsPaySuccess():
		_, renewed, err := s.ops.ActivateSubscription(user, plan, ActivationInput{
			OrderID:                cb.OrderID,
			ProviderSubscriptionID: providerSubID,
			PaymentCustomerToken:   cb.CardToken,
			ProviderStatus:         string(status.Status),
			PeriodEndsAt:           cb.SubscribeDateEnd,
		})
		if err != nil {
			return err
		}
		result.Activated = !renewed
		result.Renewed = renewed
		s.flow.Step("subscription_activated", user.ID.String(), cb.OrderID, NewContext().
			Set("plan_code", plan.Code).
			Set("renewal", fmt.Sprintf("%t", renewed)))
	case status.Status.IsPayFailure():
		if err := s.ops.MarkPaymentFailed(user, cb.OrderID, string(status.Status), status.FailureReason(), providerSubID); err != nil {
			return err
		}
		result.PaymentFailed = true
		s.flow.Step("payment_failed", user.ID.String(), cb.OrderID, NewContext().Set("reason", status.FailureReason()))
	default:
		result.ActivationPending = true
		s.flow.Step("status_pending", user.ID.String(), cb.OrderID, NewContext().Set("status", string(status.Status)))
	}
	return nil
}

// handleUnsubscribe processes a provider-side subscription termination.
func (s *CallbackService) handleUnsubscribe(user *models.User, cb *liqpay.Callback, result *CallbackResult) error {
	if !cb.Status.IsUnsubscribeSuccess() {
		s.flow.Step("unsubscribe_status_rejected", user.ID.String(), cb.OrderID, NewContext().Set("status", string(cb.Status)))
		return fmt.Errorf("%w: unsubscribe with status %q", ErrUnexpectedStatus, cb.Status)
	}
	if err := s.ops.MarkCancelledByProvider(user, cb.OrderID, string(cb.Status), cb.SubscribeDateEnd); err != nil {
		return err
	}
	result.Cancelled = true
	s.flow.Step("subscription_cancelled", user.ID.String(), cb.OrderID, NewContext().Set("status", string(cb.Status)))
	return nil
}

// handlePay processes one-off charge notifications. Only failures change
// anything: a pay success alone does not prove an active mandate, the
// subscribe flow owns activation, so it is logged and acknowledged.
func (s *CallbackService) handlePay(user *models.User, cb *liqpay.Callback, providerSubID string, result *CallbackResult) error {
	if cb.Status.IsPayFailure() {
		reason := cb.ErrDescription
		if reason == "" {
			reason = cb.ErrCode
		}
		if err := s.ops.MarkPaymentFailed(user, cb.OrderID, string(cb.Status), reason, providerSubID); err != nil {
			return err
		}
		result.PaymentFailed = true
		s.flow.Step("payment_failed", user.ID.String(), cb.OrderID, NewContext().
			Set("status", string(cb.Status)).
			Set("reason", reason))
		return nil
	}

	result.Ignored = true
	s.flow.Step("pay_acknowledged", user.ID.String(), cb.OrderID, NewContext().Set("status", string(cb.Status)))
	return nil
}

// IsProtocolError reports whether processing failed because the request
// itself was invalid: bad signature, malformed payload or order id, or an
// unsupported action.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrMissingPayload) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, liqpay.ErrMalformedPayload) ||
		errors.Is(err, liqpay.ErrMalformedOrderID)
}

// IsIgnorableError reports whether a well-formed callback referenced state
// this application cannot act on. Such callbacks are acknowledged so the
// provider stops retrying.
func IsIgnorableError(err error) bool {
	return errors.Is(err, ErrUnknownUser) ||
		errors.Is(err, ErrUnknownPlan) ||
		errors.Is(err, ErrTrialPlanNotPurchasable) ||
		errors.Is(err, ErrProviderSubscriptionIDMissing) ||
		errors.Is(err, ErrUnexpectedStatus)
}
