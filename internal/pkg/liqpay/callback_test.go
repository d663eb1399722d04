package liqpay

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePayload(t *testing.T, payload string) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestDecodeCallback(t *testing.T) {
	userID := uuid.New()
	data := encodePayload(t, `{
		"action": "Subscribe",
		"status": "SUCCESS",
		"order_id": "`+userID.String()+`--STANDARD_MONTHLY--a1b2c3",
		"payment_id": 123456789,
		"card_token": "tok_abc",
		"subscribe_date_start": "2026-01-15 10:30:00",
		"subscribe_date_end": "2026-02-15 10:30:00",
		"amount": 4.99,
		"currency": "EUR"
	}`)

	cb, err := DecodeCallback(data)
	require.NoError(t, err)

	assert.Equal(t, ActionSubscribe, cb.Action)
	assert.Equal(t, Status("success"), cb.Status)
	assert.Equal(t, "123456789", cb.PaymentID)
	assert.Equal(t, "tok_abc", cb.CardToken)
	assert.Equal(t, "EUR", cb.Currency)
	require.NotNil(t, cb.SubscribeDateStart)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC), *cb.SubscribeDateStart)
	require.NotNil(t, cb.SubscribeDateEnd)
	assert.Equal(t, time.Date(2026, 2, 15, 10, 30, 0, 0, time.UTC), *cb.SubscribeDateEnd)
}

func TestDecodeCallbackStringPaymentID(t *testing.T) {
	data := encodePayload(t, `{"action":"pay","status":"failure","payment_id":"987","err_code":"limit","err_description":"card limit reached"}`)

	cb, err := DecodeCallback(data)
	require.NoError(t, err)

	assert.Equal(t, ActionPay, cb.Action)
	assert.Equal(t, "987", cb.PaymentID)
	assert.Equal(t, "limit", cb.ErrCode)
	assert.Equal(t, "card limit reached", cb.ErrDescription)
}

func TestDecodeCallbackRejectsGarbage(t *testing.T) {
	_, err := DecodeCallback("not base64!!!")
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodeCallback(encodePayload(t, "{broken json"))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestParseAction(t *testing.T) {
	assert.Equal(t, ActionSubscribe, ParseAction("subscribe"))
	assert.Equal(t, ActionSubscribe, ParseAction("  SUBSCRIBE "))
	assert.Equal(t, ActionUnsubscribe, ParseAction("Unsubscribe"))
	assert.Equal(t, ActionPay, ParseAction("pay"))
	assert.Equal(t, ActionUnknown, ParseAction("hold"))
	assert.Equal(t, ActionUnknown, ParseAction(""))
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, ParseStatus("success").IsPaySuccess())
	assert.True(t, ParseStatus("SANDBOX").IsPaySuccess())
	assert.True(t, ParseStatus("subscribed").IsPaySuccess())
	assert.False(t, ParseStatus("wait_accept").IsPaySuccess())

	assert.True(t, ParseStatus("failure").IsPayFailure())
	assert.True(t, ParseStatus("reversed").IsPayFailure())
	assert.True(t, ParseStatus("expired").IsPayFailure())
	assert.False(t, ParseStatus("success").IsPayFailure())
	// an unrecognized status belongs to neither group
	assert.False(t, ParseStatus("processing").IsPaySuccess())
	assert.False(t, ParseStatus("processing").IsPayFailure())

	assert.True(t, ParseStatus("subscribed").IsSubscribeSuccess())
	assert.False(t, ParseStatus("unsubscribed").IsSubscribeSuccess())

	assert.True(t, ParseStatus("unsubscribed").IsUnsubscribeSuccess())
	assert.True(t, ParseStatus("ok").IsUnsubscribeSuccess())
	assert.True(t, ParseStatus("subscribecanceled").IsUnsubscribeSuccess())
	assert.False(t, ParseStatus("failure").IsUnsubscribeSuccess())
}

func TestParseOrderID(t *testing.T) {
	userID := uuid.New()
	ref, err := ParseOrderID(userID.String() + "--STANDARD_YEARLY--f81xk2")
	require.NoError(t, err)
	assert.Equal(t, userID, ref.UserID)
	assert.Equal(t, "STANDARD_YEARLY", ref.PlanCode)
	assert.Equal(t, "f81xk2", ref.Suffix)
}

func TestParseOrderIDRejectsMalformed(t *testing.T) {
	userID := uuid.New().String()

	cases := []string{
		"",
		"just-a-string",
		userID + "--ONLY_TWO",
		userID + "--A--B--C",
		userID + "----suffix",
		"not-a-uuid--PLAN--suffix",
	}
	for _, orderID := range cases {
		_, err := ParseOrderID(orderID)
		assert.ErrorIs(t, err, ErrMalformedOrderID, "order id %q", orderID)
	}
}

func TestBuildOrderIDRoundTrip(t *testing.T) {
	userID := uuid.New()
	orderID := BuildOrderID(userID, "TRIAL", "abc123")
	ref, err := ParseOrderID(orderID)
	require.NoError(t, err)
	assert.Equal(t, userID, ref.UserID)
	assert.Equal(t, "TRIAL", ref.PlanCode)
	assert.Equal(t, "abc123", ref.Suffix)
}

func TestParseProviderTime(t *testing.T) {
	got := ParseProviderTime("2026-03-01 08:15:30")
	if assert.NotNil(t, got) {
		assert.Equal(t, time.Date(2026, 3, 1, 8, 15, 30, 0, time.UTC), *got)
	}

	// epoch seconds fallback
	got = ParseProviderTime("1767225600")
	if assert.NotNil(t, got) {
		assert.Equal(t, time.Unix(1767225600, 0).UTC(), *got)
	}

	// epoch milliseconds fallback
	got = ParseProviderTime("1767225600000")
	if assert.NotNil(t, got) {
		assert.Equal(t, time.UnixMilli(1767225600000).UTC(), *got)
	}

	assert.Nil(t, ParseProviderTime(""))
	assert.Nil(t, ParseProviderTime("yesterday"))
}
