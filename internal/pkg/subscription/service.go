package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AndriyMelnyk/FinTrack/app/models"
	"github.com/AndriyMelnyk/FinTrack/app/repository"
)

// trialReminderLeadTime is how long before the trial end the reminder goes out.
const trialReminderLeadTime = 3 * 24 * time.Hour

// trialExpiredReminderDelay is how long after expiry the follow-up goes out.
const trialExpiredReminderDelay = 3 * 24 * time.Hour

// ProviderGateway cancels a recurring subscription on the payment provider
// side. Errors from the gateway abort the local cancellation: the provider
// must never keep charging a user the application considers cancelled.
type ProviderGateway interface {
	CancelSubscription(ctx context.Context, sub *models.UserSubscription) error
}

// Notifier sends lifecycle emails. Implementations must be best effort and
// never return control flow to the caller; see NotificationService.
type Notifier interface {
	SendSubscriptionActivated(user *models.User, sub *models.UserSubscription)
	SendPaymentFailed(user *models.User, sub *models.UserSubscription, reason string)
	SendCancellationConfirmation(user *models.User, sub *models.UserSubscription)
	SendTrialWelcome(user *models.User, sub *models.UserSubscription)
	SendTrialEndingSoon(user *models.User, sub *models.UserSubscription)
	SendTrialExpired(user *models.User, sub *models.UserSubscription)
}

// EventRecorder appends billing audit events; see EventLogService.
type EventRecorder interface {
	RecordPurchase(user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context)
	RecordRenewal(user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context)
	RecordCancellation(user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context)
	RecordPaymentPending(user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context)
	RecordPaymentFailure(user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context)
}

// Service owns all subscription state transitions. Every mutating operation
// takes a per-user lock around load, mutate and save, so concurrent provider
// callbacks for the same user serialize instead of clobbering each other.
// Notifications go out after the lock is released.
type Service struct {
	users         repository.UserRepository
	subs          repository.UserSubscriptionRepository
	plans         repository.SubscriptionPlanRepository
	cancellations repository.SubscriptionCancellationRepository

	provider ProviderGateway
	notifier Notifier
	events   EventRecorder

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	now func() time.Time
}

// NewService wires a subscription service.
func NewService(
	users repository.UserRepository,
	subs repository.UserSubscriptionRepository,
	plans repository.SubscriptionPlanRepository,
	cancellations repository.SubscriptionCancellationRepository,
	provider ProviderGateway,
	notifier Notifier,
	events EventRecorder,
) *Service {
	return &Service{
		users:         users,
		subs:          subs,
		plans:         plans,
		cancellations: cancellations,
		provider:      provider,
		notifier:      notifier,
		events:        events,
		locks:         make(map[uuid.UUID]*sync.Mutex),
		now:           time.Now,
	}
}

func (s *Service) userLock(userID uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if mu, ok := s.locks[userID]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	s.locks[userID] = mu
	return mu
}

// ActivationInput carries the provider data for a confirmed payment.
type ActivationInput struct {
	OrderID                string
	ProviderSubscriptionID string
	PaymentCustomerToken   string
	ProviderStatus         string
	PeriodEndsAt           *time.Time
}

// ActivateSubscription applies a confirmed payment. A payment for the plan
// the user is already actively subscribed to is a renewal and extends the
// period; anything else activates the plan fresh. Returns the subscription
// and whether this was a renewal.
func (s *Service) ActivateSubscription(user *models.User, plan *models.SubscriptionPlan, in ActivationInput) (*models.UserSubscription, bool, error) {
	mu := s.userLock(user.ID)
	mu.Lock()

	now := s.now().UTC()
	sub, err := s.findCurrentLocked(user.ID)
	if err != nil {
		mu.Unlock()
		return nil, false, err
	}

	renewal := sub != nil && sub.IsActive() && sub.PlanID == plan.ID

	periodStart := now
	periodEnd := plan.PeriodFrom(periodStart)
	if in.PeriodEndsAt != nil && in.PeriodEndsAt.After(now) {
		periodEnd = in.PeriodEndsAt.UTC()
	}

	created := false
	if sub == nil {
		sub = &models.UserSubscription{UserID: user.ID}
		created = true
	}

	sub.PlanID = plan.ID
	sub.Plan = plan
	sub.Status = models.SubscriptionStatusActive
	sub.CurrentPeriodStartedAt = &periodStart
	sub.CurrentPeriodEndsAt = &periodEnd
	sub.NextBillingAt = &periodEnd
	sub.AutoRenew = true
	sub.CancelledAt = nil
	sub.CancellationEffectiveAt = nil
	if in.ProviderSubscriptionID != "" {
		sub.PaymentSubscriptionID = in.ProviderSubscriptionID
	}
	if in.PaymentCustomerToken != "" {
		sub.PaymentCustomerToken = in.PaymentCustomerToken
	}
	if in.OrderID != "" {
		sub.LastOrderID = in.OrderID
	}

	if created {
		err = s.subs.Create(sub)
	} else {
		err = s.subs.Save(sub)
	}
	if err != nil {
		mu.Unlock()
		return nil, false, fmt.Errorf("activate subscription: %w", err)
	}

	ctx := NewContext().
		Set("provider_status", in.ProviderStatus).
		Set("provider_subscription_id", in.ProviderSubscriptionID).
		Set("payment_customer_token_present", fmt.Sprintf("%t", in.PaymentCustomerToken != ""))
	if renewal {
		s.events.RecordRenewal(user, sub, in.OrderID, "subscription renewed", ctx)
	} else {
		s.events.RecordPurchase(user, sub, in.OrderID, "subscription activated", ctx)
	}
	mu.Unlock()

	if !renewal {
		s.notifier.SendSubscriptionActivated(user, sub)
	}
	return sub, renewal, nil
}

// MarkPendingPayment records that the provider accepted a subscribe request
// but the charge is not yet confirmed. The subscription status is left
// untouched; only provider linkage is captured. A first subscribe
// confirmation arrives before any subscription row exists, so one is
// created statusless to hold the linkage until reconciliation settles it.
func (s *Service) MarkPendingPayment(user *models.User, plan *models.SubscriptionPlan, orderID, providerStatus, customerToken, providerSubscriptionID string, billingAt *time.Time) error {
	mu := s.userLock(user.ID)
	mu.Lock()
	defer mu.Unlock()

	sub, err := s.findCurrentLocked(user.ID)
	if err != nil {
		return err
	}
	created := false
	if sub == nil {
		sub = &models.UserSubscription{UserID: user.ID}
		if plan != nil {
			sub.PlanID = plan.ID
			sub.Plan = plan
		}
		created = true
	}

	changed := created
	if providerSubscriptionID != "" && sub.PaymentSubscriptionID != providerSubscriptionID {
		sub.PaymentSubscriptionID = providerSubscriptionID
		changed = true
	}
	if customerToken != "" && sub.PaymentCustomerToken != customerToken {
		sub.PaymentCustomerToken = customerToken
		changed = true
	}
	if orderID != "" && sub.LastOrderID != orderID {
		sub.LastOrderID = orderID
		changed = true
	}
	if billingAt != nil {
		at := billingAt.UTC()
		sub.NextBillingAt = &at
		changed = true
	}
	if changed {
		if created {
			err = s.subs.Create(sub)
		} else {
			err = s.subs.Save(sub)
		}
		if err != nil {
			return fmt.Errorf("mark pending payment: %w", err)
		}
	}

	ctx := NewContext().
		Set("provider_status", providerStatus).
		Set("provider_subscription_id", providerSubscriptionID).
		Set("payment_customer_token_present", fmt.Sprintf("%t", customerToken != ""))
	if billingAt != nil {
		ctx.Set("billing_at", billingAt.UTC().Format(time.RFC3339))
	}
	s.events.RecordPaymentPending(user, sub, orderID, "payment pending confirmation", ctx)
	return nil
}

// MarkPaymentFailed records a failed charge. The subscription keeps its
// current status: a single failed renewal must not cut off access the user
// already paid for, and dunning is driven off the event log.
func (s *Service) MarkPaymentFailed(user *models.User, orderID, failureStatus, failureMessage, providerSubscriptionID string) error {
	mu := s.userLock(user.ID)
	mu.Lock()

	sub, err := s.findCurrentLocked(user.ID)
	if err != nil {
		mu.Unlock()
		return err
	}

	ctx := NewContext().
		Set("failure_status", failureStatus).
		Set("failure_message", failureMessage).
		Set("provider_subscription_id", providerSubscriptionID)
	s.events.RecordPaymentFailure(user, sub, orderID, "payment failed", ctx)
	mu.Unlock()

	reason := failureMessage
	if reason == "" {
		reason = failureStatus
	}
	s.notifier.SendPaymentFailed(user, sub, reason)
	return nil
}

// MarkCancelledByProvider applies a provider-side cancellation, for example
// after an unsubscribe confirmation or a chargeback.
func (s *Service) MarkCancelledByProvider(user *models.User, orderID, providerStatus string, effectiveAt *time.Time) error {
	mu := s.userLock(user.ID)
	mu.Lock()

	sub, err := s.findCurrentLocked(user.ID)
	if err != nil {
		mu.Unlock()
		return err
	}
	if sub == nil {
		mu.Unlock()
		fiberlog.Infof("[Subscription] provider cancellation for user %s without subscription (order=%s)", user.ID, orderID)
		return nil
	}

	s.applyCancellation(sub, effectiveAt)
	if err := s.subs.Save(sub); err != nil {
		mu.Unlock()
		return fmt.Errorf("mark cancelled by provider: %w", err)
	}

	ctx := NewContext().
		Set("provider_status", providerStatus).
		Set("provider_subscription_id", sub.PaymentSubscriptionID)
	s.events.RecordCancellation(user, sub, orderID, "subscription cancelled by provider", ctx)
	mu.Unlock()

	s.notifier.SendCancellationConfirmation(user, sub)
	return nil
}

// Cancel performs a user-initiated cancellation. For subscriptions with a
// recurring charge the provider is told first; if that fails the local state
// is left untouched and the error propagates, so the user can retry.
func (s *Service) Cancel(ctx context.Context, user *models.User, reasonType, details string) (*models.UserSubscription, error) {
	if !models.IsValidCancellationReason(reasonType) {
		reasonType = models.CancellationReasonOther
	}

	mu := s.userLock(user.ID)
	mu.Lock()

	sub, err := s.findCurrentLocked(user.ID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if sub == nil || !isCancellableStatus(sub.Status) {
		mu.Unlock()
		return nil, ErrNoCancellableSubscription
	}

	if sub.Status == models.SubscriptionStatusActive || sub.Status == models.SubscriptionStatusPastDue {
		if err := s.provider.CancelSubscription(ctx, sub); err != nil {
			mu.Unlock()
			return nil, fmt.Errorf("cancel on provider: %w", err)
		}
	}

	s.applyCancellation(sub, nil)
	if err := s.subs.Save(sub); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}

	record := &models.SubscriptionCancellation{
		SubscriptionID:    sub.ID,
		ReasonType:        reasonType,
		AdditionalDetails: strings.TrimSpace(details),
	}
	if err := s.cancellations.Create(record); err != nil {
		fiberlog.Errorf("[Subscription] failed to persist cancellation record for %s: %v", sub.ID, err)
	}

	evtCtx := NewContext().
		Set("reason", reasonType).
		Set("details", details)
	s.events.RecordCancellation(user, sub, sub.LastOrderID, "subscription cancelled by user", evtCtx)
	mu.Unlock()

	s.notifier.SendCancellationConfirmation(user, sub)
	return sub, nil
}

func isCancellableStatus(status string) bool {
	switch status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrial, models.SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// applyCancellation moves a subscription to CANCELLED and resolves when the
// cancellation takes effect: the provider-supplied date when it is in the
// future, otherwise the end of the already paid period, otherwise the trial
// end, otherwise immediately.
func (s *Service) applyCancellation(sub *models.UserSubscription, candidate *time.Time) {
	now := s.now().UTC()

	effective := now
	switch {
	case candidate != nil && candidate.After(now):
		effective = candidate.UTC()
	case sub.CurrentPeriodEndsAt != nil && sub.CurrentPeriodEndsAt.After(now):
		effective = sub.CurrentPeriodEndsAt.UTC()
	case sub.TrialEndsAt != nil && sub.TrialEndsAt.After(now):
		effective = sub.TrialEndsAt.UTC()
	}

	sub.Status = models.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	sub.CancellationEffectiveAt = &effective
	sub.AutoRenew = false
	sub.NextBillingAt = nil
}

// ProvisionTrial starts the free trial for a user without any subscription
// history.
func (s *Service) ProvisionTrial(user *models.User) (*models.UserSubscription, error) {
	trialPlan, err := s.plans.FindActiveByType(models.PlanTypeTrial)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownPlan
		}
		return nil, err
	}

	mu := s.userLock(user.ID)
	mu.Lock()

	existing, err := s.findCurrentLocked(user.ID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if existing != nil {
		mu.Unlock()
		return existing, nil
	}

	now := s.now().UTC()
	trialEnd := now.AddDate(0, 0, trialPlan.TrialPeriodDays)
	sub := &models.UserSubscription{
		UserID:         user.ID,
		PlanID:         trialPlan.ID,
		Plan:           trialPlan,
		Status:         models.SubscriptionStatusTrial,
		TrialStartedAt: &now,
		TrialEndsAt:    &trialEnd,
	}
	if err := s.subs.Create(sub); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("provision trial: %w", err)
	}
	mu.Unlock()

	s.notifier.SendTrialWelcome(user, sub)
	return sub, nil
}

// FindCurrent returns the user's current subscription, or nil when there is
// none.
func (s *Service) FindCurrent(userID uuid.UUID) (*models.UserSubscription, error) {
	return s.findCurrentLocked(userID)
}

func (s *Service) findCurrentLocked(userID uuid.UUID) (*models.UserSubscription, error) {
	sub, err := s.subs.FindCurrentByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// HasActiveAccess reports whether the user can use paid features right now.
// Cancelled subscriptions keep access until their effective date.
func (s *Service) HasActiveAccess(userID uuid.UUID) (bool, error) {
	sub, err := s.FindCurrent(userID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}

	now := s.now().UTC()
	switch sub.Status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusPastDue:
		return true, nil
	case models.SubscriptionStatusTrial:
		return sub.TrialEndsAt == nil || sub.TrialEndsAt.After(now), nil
	case models.SubscriptionStatusCancelled:
		return sub.CancellationEffectiveAt != nil && sub.CancellationEffectiveAt.After(now), nil
	default:
		return false, nil
	}
}

// IsTrialExpired reports whether the user's current subscription is a trial
// past its end date.
func (s *Service) IsTrialExpired(userID uuid.UUID) (bool, error) {
	sub, err := s.FindCurrent(userID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}
	if sub.Status == models.SubscriptionStatusExpired {
		return true, nil
	}
	return sub.IsTrial() && sub.TrialEndsAt != nil && !sub.TrialEndsAt.After(s.now().UTC()), nil
}

// RequiresPayment reports whether the user must pick a paid plan to keep
// using the product.
func (s *Service) RequiresPayment(userID uuid.UUID) (bool, error) {
	active, err := s.HasActiveAccess(userID)
	if err != nil {
		return false, err
	}
	return !active, nil
}

// HasActiveSubscriptionForPlan reports whether the user is actively
// subscribed to the given plan code.
func (s *Service) HasActiveSubscriptionForPlan(userID uuid.UUID, planCode string) (bool, error) {
	sub, err := s.FindCurrent(userID)
	if err != nil {
		return false, err
	}
	return sub != nil && sub.IsActive() && sub.Plan != nil && sub.Plan.Code == planCode, nil
}

// SendTrialEndingSoonReminders emails users whose trial ends within the
// lead time and who have not been reminded yet. Intended to run from a
// periodic job.
func (s *Service) SendTrialEndingSoonReminders() (int, error) {
	now := s.now().UTC()
	subs, err := s.subs.FindTrialsEndingBetween(models.SubscriptionStatusTrial, now, now.Add(trialReminderLeadTime))
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		if sub.TrialReminderSentAt != nil {
			continue
		}
		user, err := s.users.GetByID(sub.UserID)
		if err != nil {
			fiberlog.Errorf("[Subscription] trial reminder: user %s not found: %v", sub.UserID, err)
			continue
		}
		sub.TrialReminderSentAt = &now
		if err := s.subs.Save(sub); err != nil {
			fiberlog.Errorf("[Subscription] trial reminder: save %s: %v", sub.ID, err)
			continue
		}
		s.notifier.SendTrialEndingSoon(user, sub)
		sent++
	}
	return sent, nil
}

// HandleTrialExpirations moves overdue trials to EXPIRED and notifies their
// users. Intended to run from a periodic job.
func (s *Service) HandleTrialExpirations() (int, error) {
	now := s.now().UTC()
	subs, err := s.subs.FindTrialsExpiredBefore(models.SubscriptionStatusTrial, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range subs {
		sub := &subs[i]
		sub.Status = models.SubscriptionStatusExpired
		sub.TrialExpiredNotifiedAt = &now
		if err := s.subs.Save(sub); err != nil {
			fiberlog.Errorf("[Subscription] trial expiration: save %s: %v", sub.ID, err)
			continue
		}
		expired++
		if user, err := s.users.GetByID(sub.UserID); err == nil {
			s.notifier.SendTrialExpired(user, sub)
		}
	}
	return expired, nil
}

// SendTrialExpiredReminders sends a follow-up to users whose trial expired a
// while ago and who never picked a plan.
func (s *Service) SendTrialExpiredReminders() (int, error) {
	now := s.now().UTC()
	cutoff := now.Add(-trialExpiredReminderDelay)
	subs, err := s.subs.FindTrialsExpiredBefore(models.SubscriptionStatusExpired, cutoff)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		if sub.TrialExpiredReminderSentAt != nil {
			continue
		}
		user, err := s.users.GetByID(sub.UserID)
		if err != nil {
			continue
		}
		sub.TrialExpiredReminderSentAt = &now
		if err := s.subs.Save(sub); err != nil {
			fiberlog.Errorf("[Subscription] trial expired reminder: save %s: %v", sub.ID, err)
			continue
		}
		s.notifier.SendTrialExpired(user, sub)
		sent++
	}
	return sent, nil
}
