package liqpay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/AndriyMelnyk/FinTrack/internal/pkg/env"
)

const defaultAPIURL = "https://www.liqpay.ua/api/request"

// Client talks to the LiqPay server API. A zero-valued client (no keys) is
// "unconfigured" and all calls become no-ops so local environments work
// without provider credentials.
type Client struct {
	PublicKey  string
	PrivateKey string
	APIURL     string
	HTTPClient *http.Client
}

// NewClient creates a client with the given key pair.
func NewClient(publicKey, privateKey string) *Client {
	return &Client{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		APIURL:     defaultAPIURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientFromEnv creates a client configured from LIQPAY_PUBLIC_KEY and
// LIQPAY_PRIVATE_KEY.
func NewClientFromEnv() *Client {
	return NewClient(
		env.GetEnv("LIQPAY_PUBLIC_KEY", ""),
		env.GetEnv("LIQPAY_PRIVATE_KEY", ""),
	)
}

// IsConfigured reports whether provider credentials are present.
func (c *Client) IsConfigured() bool {
	return c != nil && c.PublicKey != "" && c.PrivateKey != ""
}

// PaymentStatus is the subset of the status API response the billing core
// cares about.
type PaymentStatus struct {
	Status         Status      `json:"-"`
	RawStatus      string      `json:"status"`
	PaymentID      json.Number `json:"payment_id"`
	ErrCode        string      `json:"err_code"`
	ErrDescription string      `json:"err_description"`
}

// FailureReason returns the most descriptive failure text available,
// preferring the human-readable description over the error code over the raw
// status.
func (p *PaymentStatus) FailureReason() string {
	if p.ErrDescription != "" {
		return p.ErrDescription
	}
	if p.ErrCode != "" {
		return p.ErrCode
	}
	return string(p.Status)
}

// FetchStatus queries the provider for the current state of a payment. It
// returns (nil, nil) when the client is unconfigured, when no identifier is
// available, or when the provider response carries no usable status, so
// callers treat nil as "undetermined".
func (c *Client) FetchStatus(ctx context.Context, orderID, paymentID string) (*PaymentStatus, error) {
	if !c.IsConfigured() {
		return nil, nil
	}
	req := map[string]string{
		"version":    "3",
		"action":     "status",
		"public_key": c.PublicKey,
	}
	switch {
	case paymentID != "":
		req["payment_id"] = paymentID
	case orderID != "":
		req["order_id"] = orderID
	default:
		return nil, nil
	}

	body, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var status PaymentStatus
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	if err := dec.Decode(&status); err != nil {
		return nil, fmt.Errorf("liqpay: decode status response: %w", err)
	}
	if strings.TrimSpace(status.RawStatus) == "" {
		return nil, nil
	}
	status.Status = ParseStatus(status.RawStatus)
	return &status, nil
}

// Unsubscribe cancels a recurring subscription on the provider side. The
// provider accepts either the payment id or the subscribe order id; when the
// first identifier is unknown to the provider the call is retried once with
// the alternate one.
func (c *Client) Unsubscribe(ctx context.Context, orderID, paymentID string) error {
	if !c.IsConfigured() {
		fiberlog.Infof("[LiqPay] unsubscribe skipped, client not configured (order=%s)", orderID)
		return nil
	}

	identifiers := make([]map[string]string, 0, 2)
	if paymentID != "" {
		identifiers = append(identifiers, map[string]string{"payment_id": paymentID})
	}
	if orderID != "" {
		identifiers = append(identifiers, map[string]string{"order_id": orderID})
	}
	if len(identifiers) == 0 {
		return fmt.Errorf("liqpay: unsubscribe requires an order id or payment id")
	}

	var lastErr error
	for _, ident := range identifiers {
		req := map[string]string{
			"version":    "3",
			"action":     "unsubscribe",
			"public_key": c.PublicKey,
		}
		for k, v := range ident {
			req[k] = v
		}

		body, err := c.post(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}

		var resp struct {
			Status         string `json:"status"`
			ErrCode        string `json:"err_code"`
			ErrDescription string `json:"err_description"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			lastErr = fmt.Errorf("liqpay: decode unsubscribe response: %w", err)
			continue
		}
		if ParseStatus(resp.Status).IsUnsubscribeSuccess() {
			return nil
		}
		lastErr = fmt.Errorf("liqpay: unsubscribe rejected: status=%s err_code=%s err_description=%s",
			resp.Status, resp.ErrCode, resp.ErrDescription)
		if !isNotFoundResponse(resp.Status, resp.ErrCode) {
			return lastErr
		}
		// Identifier unknown to the provider, retry with the alternate one.
	}
	return lastErr
}

func isNotFoundResponse(status, errCode string) bool {
	s := strings.ToLower(status)
	code := strings.ToLower(errCode)
	return code == "payment_not_found" || code == "order_not_found" ||
		s == "payment_not_found" || s == "order_not_found"
}

func (c *Client) post(ctx context.Context, request map[string]string) ([]byte, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("liqpay: encode request: %w", err)
	}
	data := base64.StdEncoding.EncodeToString(payload)
	signature := Sign(c.PrivateKey, data)

	form := url.Values{}
	form.Set("data", data)
	form.Set("signature", signature)

	apiURL := c.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("liqpay: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("liqpay: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("liqpay: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("liqpay: unexpected response code %d", resp.StatusCode)
	}
	return body, nil
}
