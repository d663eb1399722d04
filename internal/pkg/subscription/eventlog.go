package subscription

import (
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/AndriyMelnyk/FinTrack/app/models"
	"github.com/AndriyMelnyk/FinTrack/app/repository"
)

// maxEventContextValueLength caps each value in the rendered context column.
const maxEventContextValueLength = 1000

// EventLogService writes the billing audit trail. Recording never fails the
// calling flow: persistence errors are logged and swallowed, the business
// outcome of a callback must not depend on audit bookkeeping.
type EventLogService struct {
	events repository.SubscriptionEventLogRepository
}

// NewEventLogService creates an event log service.
func NewEventLogService(events repository.SubscriptionEventLogRepository) *EventLogService {
	return &EventLogService{events: events}
}

// RecordPurchase logs the first activation of a paid subscription.
func (s *EventLogService) RecordPurchase(user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context) {
	s.record(models.EventTypePurchase, user, sub, orderID, message, ctx)
}

// RecordRenewal logs a recurring charge on an already active subscription.
func (s *EventLogService) RecordRenewal(user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context) {
	s.record(models.EventTypeRenewal, user, sub, orderID, message, ctx)
}

// RecordCancellation logs a user- or provider-initiated cancellation.
func (s *EventLogService) RecordCancellation(user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context) {
	s.record(models.EventTypeCancellation, user, sub, orderID, message, ctx)
}

// RecordPaymentPending logs a subscribe confirmation awaiting charge confirmation.
func (s *EventLogService) RecordPaymentPending(user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context) {
	s.record(models.EventTypePaymentPending, user, sub, orderID, message, ctx)
}

// RecordPaymentFailure logs a failed or reverted charge.
func (s *EventLogService) RecordPaymentFailure(user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context) {
	s.record(models.EventTypePaymentFailure, user, sub, orderID, message, ctx)
}

func (s *EventLogService) record(eventType string, user *models.User, sub *models.UserSubscription, orderID, message string, ctx *Context) {
	if user == nil || sub == nil {
		fiberlog.Errorf("[EventLog] dropping %s event with missing user or subscription (order=%s)", eventType, orderID)
		return
	}

	entry := &models.SubscriptionEventLog{
		UserID:    user.ID,
		EventType: eventType,
		OrderID:   orderID,
		Message:   message,
		Context:   renderEventContext(enrichEventContext(ctx, sub)),
	}
	if sub.ID != uuid.Nil {
		id := sub.ID
		entry.SubscriptionID = &id
	}

	if err := s.events.Create(entry); err != nil {
		fiberlog.Errorf("[EventLog] failed to persist %s event for user %s: %v", eventType, user.ID, err)
	}
}

// enrichEventContext prefixes the caller's context with the subscription
// snapshot so every event carries the state it was recorded against.
func enrichEventContext(ctx *Context, sub *models.UserSubscription) *Context {
	out := NewContext()
	if sub != nil {
		if sub.Plan != nil {
			out.Set("plan_code", sub.Plan.Code)
		}
		if sub.Status != "" {
			out.Set("status", sub.Status)
		}
		if sub.CurrentPeriodEndsAt != nil {
			out.Set("current_period_ends_at", sub.CurrentPeriodEndsAt.UTC().Format(time.RFC3339))
		}
		if sub.NextBillingAt != nil {
			out.Set("next_billing_at", sub.NextBillingAt.UTC().Format(time.RFC3339))
		}
	}
	if ctx != nil {
		for _, key := range ctx.Keys() {
			value, _ := ctx.Get(key)
			out.Set(key, value)
		}
	}
	return out
}

// renderEventContext serializes a context to "key=value;key=value". Values
// keep their leading and trailing whitespace; only line breaks are collapsed
// so one event stays one row. Blank values are omitted entirely and each
// value is truncated on its own, keeping every pair intact.
func renderEventContext(ctx *Context) string {
	if ctx.Len() == 0 {
		return ""
	}
	var parts []string
	for _, key := range ctx.Keys() {
		value, _ := ctx.Get(key)
		value = collapseLineBreaks(value)
		if value == "" {
			continue
		}
		if len(value) > maxEventContextValueLength {
			value = value[:maxEventContextValueLength]
		}
		parts = append(parts, key+"="+value)
	}
	return strings.Join(parts, ";")
}

func collapseLineBreaks(v string) string {
	if !strings.ContainsAny(v, "\r\n") {
		return v
	}
	v = strings.ReplaceAll(v, "\r\n", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return v
}
