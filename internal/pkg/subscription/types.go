package subscription

import "github.com/google/uuid"

// CallbackResult summarizes what a processed callback did. Exactly one of
// the outcome flags is set for a successfully processed callback.
type CallbackResult struct {
	OrderID        string
	UserID         uuid.UUID
	PlanCode       string
	ProviderStatus string

	Activated         bool
	Renewed           bool
	ActivationPending bool
	PaymentFailed     bool
	Cancelled         bool
	Ignored           bool
}
