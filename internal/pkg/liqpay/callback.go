package liqpay

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMalformedPayload = errors.New("liqpay: malformed callback payload")
	ErrMalformedOrderID = errors.New("liqpay: malformed order id")
)

// Action is the decoded callback action. The provider sends free-form
// strings; anything outside the known set decodes to ActionUnknown and the
// caller decides how to handle it.
type Action int

const (
	ActionUnknown Action = iota
	ActionSubscribe
	ActionUnsubscribe
	ActionPay
)

func (a Action) String() string {
	switch a {
	case ActionSubscribe:
		return "subscribe"
	case ActionUnsubscribe:
		return "unsubscribe"
	case ActionPay:
		return "pay"
	default:
		return "unknown"
	}
}

// ParseAction decodes a raw action string, case-insensitively.
func ParseAction(raw string) Action {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "subscribe":
		return ActionSubscribe
	case "unsubscribe":
		return ActionUnsubscribe
	case "pay":
		return ActionPay
	default:
		return ActionUnknown
	}
}

// Status is the raw provider status, normalized to lower case. Classification
// into success and failure groups happens through the predicates below; an
// unrecognized status belongs to no group.
type Status string

func ParseStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

var paySuccessStatuses = map[Status]bool{
	"success":    true,
	"sandbox":    true,
	"payok":      true,
	"subscribed": true,
}

var payFailureStatuses = map[Status]bool{
	"failure":      true,
	"fail":         true,
	"error":        true,
	"reversed":     true,
	"refund":       true,
	"refunded":     true,
	"chargeback":   true,
	"canceled":     true,
	"cancelled":    true,
	"expired":      true,
	"unsubscribed": true,
}

var subscribeSuccessStatuses = map[Status]bool{
	"success":    true,
	"sandbox":    true,
	"subscribed": true,
}

var unsubscribeSuccessStatuses = map[Status]bool{
	"success":            true,
	"sandbox":            true,
	"ok":                 true,
	"unsubscribed":       true,
	"unsubscribesuccess": true,
	"subscribecanceled":  true,
	"canceled":           true,
	"cancelled":          true,
}

// IsPaySuccess reports whether the status confirms a completed payment.
func (s Status) IsPaySuccess() bool { return paySuccessStatuses[s] }

// IsPayFailure reports whether the status is a terminal payment failure.
func (s Status) IsPayFailure() bool { return payFailureStatuses[s] }

// IsSubscribeSuccess reports whether the status confirms a subscribe request.
func (s Status) IsSubscribeSuccess() bool { return subscribeSuccessStatuses[s] }

// IsUnsubscribeSuccess reports whether the status confirms an unsubscribe.
func (s Status) IsUnsubscribeSuccess() bool { return unsubscribeSuccessStatuses[s] }

// Callback is the decoded payload of one provider notification.
type Callback struct {
	Action             Action
	RawAction          string
	Status             Status
	OrderID            string
	Info               string
	CardToken          string
	PaymentID          string
	SubscribeDateStart *time.Time
	SubscribeDateEnd   *time.Time
	ErrCode            string
	ErrDescription     string
	Amount             string
	Currency           string
}

// rawCallback mirrors the provider JSON. Numeric fields arrive as either
// numbers or strings depending on the provider version, so json.Number is
// used for them.
type rawCallback struct {
	Action             string      `json:"action"`
	Status             string      `json:"status"`
	OrderID            string      `json:"order_id"`
	Info               string      `json:"info"`
	CardToken          string      `json:"card_token"`
	PaymentID          json.Number `json:"payment_id"`
	SubscribeDateStart string      `json:"subscribe_date_start"`
	SubscribeDateEnd   string      `json:"subscribe_date_end"`
	ErrCode            string      `json:"err_code"`
	ErrDescription     string      `json:"err_description"`
	Amount             json.Number `json:"amount"`
	Currency           string      `json:"currency"`
}

// DecodeCallback decodes the base64 data field of a callback into a
// structured payload. It does not verify the signature; callers must do that
// first with VerifySignature.
func DecodeCallback(data string) (*Callback, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var raw rawCallback
	dec := json.NewDecoder(strings.NewReader(string(decoded)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	cb := &Callback{
		Action:         ParseAction(raw.Action),
		RawAction:      raw.Action,
		Status:         ParseStatus(raw.Status),
		OrderID:        strings.TrimSpace(raw.OrderID),
		Info:           raw.Info,
		CardToken:      strings.TrimSpace(raw.CardToken),
		PaymentID:      raw.PaymentID.String(),
		ErrCode:        strings.TrimSpace(raw.ErrCode),
		ErrDescription: strings.TrimSpace(raw.ErrDescription),
		Amount:         raw.Amount.String(),
		Currency:       strings.TrimSpace(raw.Currency),
	}
	if t := ParseProviderTime(raw.SubscribeDateStart); t != nil {
		cb.SubscribeDateStart = t
	}
	if t := ParseProviderTime(raw.SubscribeDateEnd); t != nil {
		cb.SubscribeDateEnd = t
	}
	return cb, nil
}

// OrderRef is the decomposed order identifier. Order ids are built as
// "{userID}--{planCode}--{suffix}" when a checkout is created, so every
// callback carries enough information to find the user and plan.
type OrderRef struct {
	UserID   uuid.UUID
	PlanCode string
	Suffix   string
}

// ParseOrderID splits an order id into its three segments. Anything that
// does not produce exactly three non-empty segments with a valid UUID first
// segment is rejected.
func ParseOrderID(orderID string) (*OrderRef, error) {
	parts := strings.Split(orderID, "--")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedOrderID, orderID)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedOrderID, orderID)
		}
	}
	userID, err := uuid.Parse(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedOrderID, orderID)
	}
	return &OrderRef{
		UserID:   userID,
		PlanCode: parts[1],
		Suffix:   parts[2],
	}, nil
}

// BuildOrderID composes an order id for a new checkout.
func BuildOrderID(userID uuid.UUID, planCode, suffix string) string {
	return fmt.Sprintf("%s--%s--%s", userID, planCode, suffix)
}

const providerTimeLayout = "2006-01-02 15:04:05"

// ParseProviderTime parses the provider's date format, falling back to epoch
// seconds or milliseconds for older payload versions. Returns nil when the
// value is empty or unparseable.
func ParseProviderTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(providerTimeLayout, raw); err == nil {
		t = t.UTC()
		return &t
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		var t time.Time
		if n > 1e12 {
			t = time.UnixMilli(n).UTC()
		} else {
			t = time.Unix(n, 0).UTC()
		}
		return &t
	}
	return nil
}
