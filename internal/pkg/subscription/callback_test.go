package subscription

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndriyMelnyk/FinTrack/app/models"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/liqpay"
)

const testPrivateKey = "test-private-key"

type callbackFixture struct {
	*serviceFixture
	callbacks *CallbackService
	status    *fakeStatusFetcher
}

func newCallbackFixture(t *testing.T) *callbackFixture {
	t.Helper()
	base := newServiceFixture(t)
	status := &fakeStatusFetcher{}
	svc := NewCallbackService(
		testPrivateKey,
		NewRepositoryUserDirectory(base.users),
		NewPlanServiceWithCache(base.plans, newMemoryCache()),
		base.service,
		status,
		NewFlowLogger(""),
	)
	return &callbackFixture{serviceFixture: base, callbacks: svc, status: status}
}

func (f *callbackFixture) signedPayload(t *testing.T, payload string) (string, string) {
	t.Helper()
	data := base64.StdEncoding.EncodeToString([]byte(payload))
	return data, liqpay.Sign(testPrivateKey, data)
}

func (f *callbackFixture) orderID(planCode string) string {
	return liqpay.BuildOrderID(f.user.ID, planCode, "x1y2z3")
}

func (f *callbackFixture) process(t *testing.T, payload string) (*CallbackResult, error) {
	t.Helper()
	data, sig := f.signedPayload(t, payload)
	return f.callbacks.ProcessCallback(context.Background(), data, sig)
}

func TestProcessCallbackRejectsMissingPayload(t *testing.T) {
	f := newCallbackFixture(t)
	_, err := f.callbacks.ProcessCallback(context.Background(), "", "sig")
	assert.ErrorIs(t, err, ErrMissingPayload)
	assert.True(t, IsProtocolError(err))
}

func TestProcessCallbackRejectsBadSignature(t *testing.T) {
	f := newCallbackFixture(t)
	data, _ := f.signedPayload(t, `{"action":"subscribe","status":"success","order_id":"`+f.orderID("STANDARD_MONTHLY")+`"}`)

	_, err := f.callbacks.ProcessCallback(context.Background(), data, "wrong")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.True(t, IsProtocolError(err))
	assert.Empty(t, f.events.all())
}

func TestProcessCallbackRejectsMalformedPayload(t *testing.T) {
	f := newCallbackFixture(t)
	_, err := f.process(t, "{not json")
	assert.ErrorIs(t, err, liqpay.ErrMalformedPayload)
	assert.True(t, IsProtocolError(err))
}

func TestProcessCallbackRejectsUnknownActionBeforeLookups(t *testing.T) {
	f := newCallbackFixture(t)
	// the order id references a user that does not exist; the action check
	// must fire first
	orderID := liqpay.BuildOrderID(uuid.New(), "STANDARD_MONTHLY", "abc")

	_, err := f.process(t, `{"action":"hold","status":"success","order_id":"`+orderID+`","payment_id":1}`)
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.NotErrorIs(t, err, ErrUnknownUser)
	assert.True(t, IsProtocolError(err))
}

func TestProcessCallbackRejectsMalformedOrderID(t *testing.T) {
	f := newCallbackFixture(t)
	_, err := f.process(t, `{"action":"subscribe","status":"success","order_id":"just-a-string","payment_id":1}`)
	assert.ErrorIs(t, err, liqpay.ErrMalformedOrderID)
	assert.True(t, IsProtocolError(err))
}

func TestProcessCallbackUnknownUser(t *testing.T) {
	f := newCallbackFixture(t)
	orderID := liqpay.BuildOrderID(uuid.New(), "STANDARD_MONTHLY", "abc")

	_, err := f.process(t, `{"action":"subscribe","status":"success","order_id":"`+orderID+`","payment_id":1}`)
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.False(t, IsProtocolError(err))
	assert.True(t, IsIgnorableError(err))
}

func TestProcessCallbackUnknownPlan(t *testing.T) {
	f := newCallbackFixture(t)
	_, err := f.process(t, `{"action":"subscribe","status":"success","order_id":"`+f.orderID("GOLD")+`","payment_id":1}`)
	assert.ErrorIs(t, err, ErrUnknownPlan)
	assert.True(t, IsIgnorableError(err))
}

func TestProcessCallbackRejectsTrialPlan(t *testing.T) {
	f := newCallbackFixture(t)
	_, err := f.process(t, `{"action":"subscribe","status":"success","order_id":"`+f.orderID("TRIAL")+`","payment_id":1}`)
	assert.ErrorIs(t, err, ErrTrialPlanNotPurchasable)
	assert.True(t, IsIgnorableError(err))
}

func TestProcessCallbackRequiresProviderSubscriptionID(t *testing.T) {
	f := newCallbackFixture(t)
	_, err := f.process(t, `{"action":"subscribe","status":"success","order_id":"`+f.orderID("STANDARD_MONTHLY")+`"}`)
	assert.ErrorIs(t, err, ErrProviderSubscriptionIDMissing)
	assert.True(t, IsIgnorableError(err))
}

func TestProcessCallbackFallsBackToStoredProviderID(t *testing.T) {
	f := newCallbackFixture(t)
	require.NoError(t, f.subs.Create(&models.UserSubscription{
		UserID:                f.user.ID,
		PlanID:                f.monthlyPlan.ID,
		Status:                models.SubscriptionStatusActive,
		PaymentSubscriptionID: "stored-77",
	}))
	f.status.status = &liqpay.PaymentStatus{Status: "success"}

	result, err := f.process(t, `{"action":"subscribe","status":"success","order_id":"`+f.orderID("STANDARD_MONTHLY")+`"}`)
	require.NoError(t, err)
	assert.True(t, result.Activated || result.Renewed)
	assert.Equal(t, "stored-77", f.currentSub(t).PaymentSubscriptionID)
}

func TestProcessCallbackSubscribeActivates(t *testing.T) {
	f := newCallbackFixture(t)
	f.status.status = &liqpay.PaymentStatus{Status: "success"}

	end := time.Now().AddDate(0, 1, 0).UTC().Format("2006-01-02 15:04:05")
	result, err := f.process(t, `{
		"action": "subscribe",
		"status": "subscribed",
		"order_id": "`+f.orderID("STANDARD_MONTHLY")+`",
		"payment_id": 555,
		"card_token": "tok-9",
		"subscribe_date_end": "`+end+`"
	}`)
	require.NoError(t, err)
	assert.True(t, result.Activated)
	assert.False(t, result.Renewed)
	assert.Equal(t, f.user.ID, result.UserID)
	assert.Equal(t, "STANDARD_MONTHLY", result.PlanCode)

	sub := f.currentSub(t)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "555", sub.PaymentSubscriptionID)
	assert.Equal(t, "tok-9", sub.PaymentCustomerToken)

	eventTypes := []string{}
	for _, e := range f.events.all() {
		eventTypes = append(eventTypes, e.EventType)
	}
	assert.Equal(t, []string{models.EventTypePaymentPending, models.EventTypePurchase}, eventTypes)
}

func TestProcessCallbackSubscribePendingWhenUndetermined(t *testing.T) {
	f := newCallbackFixture(t)
	f.status.status = nil

	result, err := f.process(t, `{"action":"subscribe","status":"success","order_id":"`+f.orderID("STANDARD_MONTHLY")+`","payment_id":1,"card_token":"tok-9"}`)
	require.NoError(t, err)
	assert.True(t, result.ActivationPending)
	assert.False(t, result.Activated)

	// nothing activated, but the card token from the callback survives
	// until a later activation settles the subscription
	sub := f.currentSub(t)
	assert.NotEqual(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "tok-9", sub.PaymentCustomerToken)
	assert.Equal(t, "1", sub.PaymentSubscriptionID)
}

func TestProcessCallbackSubscribePendingWhenFetchFails(t *testing.T) {
	f := newCallbackFixture(t)
	f.status.err = assert.AnError

	result, err := f.process(t, `{"action":"subscribe","status":"success","order_id":"`+f.orderID("STANDARD_MONTHLY")+`","payment_id":1}`)
	require.NoError(t, err)
	assert.True(t, result.ActivationPending)
}

func TestProcessCallbackSubscribePaymentFailed(t *testing.T) {
	f := newCallbackFixture(t)
	f.status.status = &liqpay.PaymentStatus{
		Status:         "failure",
		ErrCode:        "limit",
		ErrDescription: "card limit reached",
	}

	result, err := f.process(t, `{"action":"subscribe","status":"success","order_id":"`+f.orderID("STANDARD_MONTHLY")+`","payment_id":1}`)
	require.NoError(t, err)
	assert.True(t, result.PaymentFailed)

	events := f.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventTypePaymentFailure, events[1].EventType)
	assert.Contains(t, events[1].Context, "failure_message=card limit reached")
	assert.Contains(t, f.notifier.sent(), "payment_failed:card limit reached")
}

func TestProcessCallbackSubscribeCarriesCancellation(t *testing.T) {
	f := newCallbackFixture(t)
	_, _, err := f.service.ActivateSubscription(f.user, f.monthlyPlan, ActivationInput{OrderID: "o", ProviderSubscriptionID: "p"})
	require.NoError(t, err)

	result, err := f.process(t, `{"action":"subscribe","status":"subscribecanceled","order_id":"`+f.orderID("STANDARD_MONTHLY")+`","payment_id":1}`)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, models.SubscriptionStatusCancelled, f.currentSub(t).Status)
}

func TestProcessCallbackSubscribeUnexpectedStatus(t *testing.T) {
	f := newCallbackFixture(t)
	_, err := f.process(t, `{"action":"subscribe","status":"wait_accept","order_id":"`+f.orderID("STANDARD_MONTHLY")+`","payment_id":1}`)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.True(t, IsIgnorableError(err))
}

func TestProcessCallbackUnsubscribe(t *testing.T) {
	f := newCallbackFixture(t)
	_, _, err := f.service.ActivateSubscription(f.user, f.monthlyPlan, ActivationInput{OrderID: "o", ProviderSubscriptionID: "p"})
	require.NoError(t, err)

	end := time.Now().AddDate(0, 2, 0).UTC().Truncate(time.Second)
	result, err := f.process(t, `{
		"action": "unsubscribe",
		"status": "unsubscribed",
		"order_id": "`+f.orderID("STANDARD_MONTHLY")+`",
		"payment_id": 1,
		"subscribe_date_end": "`+end.Format("2006-01-02 15:04:05")+`"
	}`)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)

	sub := f.currentSub(t)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	require.NotNil(t, sub.CancellationEffectiveAt)
	assert.Equal(t, end, sub.CancellationEffectiveAt.UTC())
}

func TestProcessCallbackUnsubscribeUnexpectedStatus(t *testing.T) {
	f := newCallbackFixture(t)
	_, err := f.process(t, `{"action":"unsubscribe","status":"failure","order_id":"`+f.orderID("STANDARD_MONTHLY")+`","payment_id":1}`)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestProcessCallbackPayFailure(t *testing.T) {
	f := newCallbackFixture(t)
	_, _, err := f.service.ActivateSubscription(f.user, f.monthlyPlan, ActivationInput{OrderID: "o", ProviderSubscriptionID: "p"})
	require.NoError(t, err)

	result, err := f.process(t, `{
		"action": "pay",
		"status": "reversed",
		"order_id": "`+f.orderID("STANDARD_MONTHLY")+`",
		"payment_id": 1,
		"err_description": "charge reversed"
	}`)
	require.NoError(t, err)
	assert.True(t, result.PaymentFailed)

	// access stays until dunning decides otherwise
	assert.Equal(t, models.SubscriptionStatusActive, f.currentSub(t).Status)
	assert.Contains(t, f.notifier.sent(), "payment_failed:charge reversed")
}

func TestProcessCallbackPaySuccessIsLogOnly(t *testing.T) {
	f := newCallbackFixture(t)

	result, err := f.process(t, `{"action":"pay","status":"success","order_id":"`+f.orderID("STANDARD_MONTHLY")+`","payment_id":1}`)
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.False(t, result.Activated)

	// a lone pay success never activates anything and records no event
	_, repoErr := f.subs.FindCurrentByUser(f.user.ID)
	assert.Error(t, repoErr)
	assert.Empty(t, f.events.all())
	assert.Empty(t, f.notifier.sent())
}

func TestProcessCallbackPayUnrecognizedStatusIsLogOnly(t *testing.T) {
	f := newCallbackFixture(t)

	result, err := f.process(t, `{"action":"pay","status":"wait_secure","order_id":"`+f.orderID("STANDARD_MONTHLY")+`","payment_id":1}`)
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.Empty(t, f.events.all())
}
