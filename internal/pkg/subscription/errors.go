package subscription

import "errors"

var (
	// ErrInvalidSignature is returned when a callback signature does not match.
	ErrInvalidSignature = errors.New("subscription: invalid callback signature")
	// ErrMissingPayload is returned when a callback arrives without data.
	ErrMissingPayload = errors.New("subscription: missing callback payload")
	// ErrUnknownAction is returned for callback actions outside the supported set.
	ErrUnknownAction = errors.New("subscription: unknown callback action")
	// ErrUnknownUser is returned when the order id references no existing user.
	ErrUnknownUser = errors.New("subscription: unknown user")
	// ErrUnknownPlan is returned when a plan code references no existing plan.
	ErrUnknownPlan = errors.New("subscription: unknown plan")
	// ErrTrialPlanNotPurchasable is returned when a payment callback references a trial plan.
	ErrTrialPlanNotPurchasable = errors.New("subscription: trial plan cannot be purchased")
	// ErrProviderSubscriptionIDMissing is returned when no provider payment
	// identifier can be resolved for a callback.
	ErrProviderSubscriptionIDMissing = errors.New("subscription: provider subscription id missing")
	// ErrNoCancellableSubscription is returned when a user tries to cancel
	// without a subscription in a cancellable state.
	ErrNoCancellableSubscription = errors.New("subscription: no cancellable subscription")
	// ErrUnexpectedStatus is returned when a callback status fits neither the
	// success nor the failure group for its action.
	ErrUnexpectedStatus = errors.New("subscription: unexpected callback status")
)
