package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*ZarinPalProcessor)(nil)

// ZarinPalProcessor implements the processor port on ZarinPal REST v4 for
// request/verify and GraphQL v4 for refunds. ZarinPal has no customer or
// subscription objects, so those capabilities are off and the orchestrator
// never routes subscription work here.
type ZarinPalProcessor struct {
	merchantID      string
	callback        string
	sandbox         bool
	webhookSecret   string
	client          *http.Client
	accessToken     string // OAuth2 access token (GraphQL refunds)
	graphqlEndpoint string

	mu       sync.Mutex
	sessions map[string]*zarinpalSession // authority -> session state
}

// zarinpalSession tracks what verify.json needs but the port's confirm call
// does not carry: the requested amount, plus the ref id once verified.
type zarinpalSession struct {
	amount   int64
	currency string
	status   adapter.IntentStatus
	refID    string
	payURL   string
}

func NewZarinPalProcessor(merchantID, callbackURL, webhookSecret string, sandbox bool) (*ZarinPalProcessor, error) {
	if merchantID == "" {
		return nil, errors.New("merchant id empty")
	}
	if _, err := url.Parse(callbackURL); err != nil {
		return nil, fmt.Errorf("invalid callback url: %w", err)
	}
	return &ZarinPalProcessor{
		merchantID:      merchantID,
		callback:        callbackURL,
		sandbox:         sandbox,
		webhookSecret:   webhookSecret,
		client:          &http.Client{Timeout: 15 * time.Second},
		graphqlEndpoint: "https://api.zarinpal.com/api/v4/graphql",
		sessions:        map[string]*zarinpalSession{},
	}, nil
}

// SetRefundAuth configures OAuth and the GraphQL endpoint for refunds.
func (z *ZarinPalProcessor) SetRefundAuth(accessToken, graphqlEndpoint string) {
	z.accessToken = accessToken
	if graphqlEndpoint != "" {
		z.graphqlEndpoint = graphqlEndpoint
	}
}

func (z *ZarinPalProcessor) Name() string { return "zarinpal" }

func (z *ZarinPalProcessor) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{Subscriptions: false, Refunds: true, TransactionListing: false}
}

func (z *ZarinPalProcessor) endpoint(path string) string {
	base := "https://api.zarinpal.com/pg/v4"
	if z.sandbox {
		base = "https://sandbox.zarinpal.com/pg/v4"
	}
	return base + path
}

func (z *ZarinPalProcessor) netErr(err error) error {
	return adapter.NewProcessorError(z.Name(), adapter.CategoryNetwork, "", err)
}

func (z *ZarinPalProcessor) session(authority string) (*zarinpalSession, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	s, ok := z.sessions[authority]
	return s, ok
}

func (z *ZarinPalProcessor) toIntent(authority string, s *zarinpalSession) *adapter.PaymentIntent {
	return &adapter.PaymentIntent{
		ID:           authority,
		Status:       s.status,
		ClientSecret: s.payURL,
		Processor:    z.Name(),
		Amount:       s.amount,
		Currency:     s.currency,
	}
}

// CreatePaymentIntent calls /payment/request.json; the returned authority is
// the intent id and the StartPay URL takes the client-secret slot.
func (z *ZarinPalProcessor) CreatePaymentIntent(ctx context.Context, params adapter.CreateIntentParams) (*adapter.PaymentIntent, error) {
	payload := map[string]any{
		"merchant_id":  z.merchantID,
		"amount":       params.Amount.MinorUnits(),
		"description":  params.Description,
		"callback_url": z.callback,
	}
	meta := map[string]any{}
	for k, v := range params.Metadata {
		meta[k] = v
	}
	if params.IdempotencyKey != "" {
		meta["idempotency_key"] = params.IdempotencyKey
	}
	if len(meta) > 0 {
		payload["metadata"] = meta
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.endpoint("/payment/request.json"), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := z.client.Do(req)
	if err != nil {
		return nil, z.netErr(err)
	}
	defer resp.Body.Close()
	var out struct {
		Data struct {
			Authority string `json:"authority"`
			Code      int    `json:"code"`
		} `json:"data"`
		Errors any `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, z.netErr(err)
	}
	if out.Data.Code != 100 || out.Data.Authority == "" {
		return nil, adapter.NewProcessorError(z.Name(), adapter.CategoryInvalidRequest,
			fmt.Sprintf("%d", out.Data.Code), errors.New("zarinpal request failed"))
	}
	payURL := fmt.Sprintf("https://www.zarinpal.com/pg/StartPay/%s", out.Data.Authority)
	if z.sandbox {
		payURL = fmt.Sprintf("https://sandbox.zarinpal.com/pg/StartPay/%s", out.Data.Authority)
	}
	s := &zarinpalSession{
		amount:   params.Amount.MinorUnits(),
		currency: params.Amount.Currency(),
		status:   adapter.IntentStatusPending,
		payURL:   payURL,
	}
	z.mu.Lock()
	z.sessions[out.Data.Authority] = s
	z.mu.Unlock()
	return z.toIntent(out.Data.Authority, s), nil
}

// ConfirmPaymentIntent verifies the authority via /payment/verify.json.
// Code 101 means already verified, which is the idempotent success case.
func (z *ZarinPalProcessor) ConfirmPaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	s, ok := z.session(intentID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	payload := map[string]any{
		"merchant_id": z.merchantID,
		"amount":      s.amount,
		"authority":   intentID,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.endpoint("/payment/verify.json"), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := z.client.Do(req)
	if err != nil {
		return nil, z.netErr(err)
	}
	defer resp.Body.Close()
	var out struct {
		Data struct {
			Code  int   `json:"code"`
			RefID int64 `json:"ref_id"`
		} `json:"data"`
		Errors any `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, z.netErr(err)
	}
	if (out.Data.Code != 100 && out.Data.Code != 101) || out.Data.RefID == 0 {
		return nil, adapter.NewProcessorError(z.Name(), adapter.CategoryDeclined,
			fmt.Sprintf("%d", out.Data.Code), errors.New("zarinpal verify failed"))
	}
	z.mu.Lock()
	s.status = adapter.IntentStatusSucceeded
	s.refID = fmt.Sprintf("%d", out.Data.RefID)
	z.mu.Unlock()
	return z.toIntent(intentID, s), nil
}

// CancelPaymentIntent abandons an unverified session. ZarinPal has no remote
// cancel call; an unverified authority simply expires.
func (z *ZarinPalProcessor) CancelPaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	s, ok := z.session(intentID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	z.mu.Lock()
	if s.status == adapter.IntentStatusSucceeded {
		z.mu.Unlock()
		return nil, adapter.NewProcessorError(z.Name(), adapter.CategoryInvalidRequest, "verified",
			errors.New("cannot cancel a verified payment"))
	}
	s.status = adapter.IntentStatusCanceled
	z.mu.Unlock()
	return z.toIntent(intentID, s), nil
}

func (z *ZarinPalProcessor) GetPaymentIntent(ctx context.Context, intentID string) (*adapter.PaymentIntent, error) {
	s, ok := z.session(intentID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return z.toIntent(intentID, s), nil
}

// CreateRefund issues a refund via the GraphQL AddRefund mutation against the
// verified session's ref id.
func (z *ZarinPalProcessor) CreateRefund(ctx context.Context, params adapter.RefundParams) (*adapter.Refund, error) {
	if z.accessToken == "" {
		return nil, adapter.NewProcessorError(z.Name(), adapter.CategoryConfig, "access_token",
			errors.New("zarinpal refund requires access token"))
	}
	sessionID := params.IntentID
	if s, ok := z.session(params.IntentID); ok && s.refID != "" {
		sessionID = s.refID
	}
	reqBody := map[string]any{
		"query": `mutation AddRefund($session_id: ID!, $amount: BigInteger!, $description: String) {
  resource: AddRefund(session_id: $session_id, amount: $amount, description: $description) {
    id
    amount
    timeline { refund_amount refund_time refund_status }
  }
}`,
		"variables": map[string]any{
			"session_id":  sessionID,
			"amount":      params.Amount.MinorUnits(),
			"description": params.Reason,
		},
	}
	b, _ := json.Marshal(reqBody)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, z.graphqlEndpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+z.accessToken)
	resp, err := z.client.Do(httpReq)
	if err != nil {
		return nil, z.netErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cat := adapter.CategoryUnavailable
		if resp.StatusCode == http.StatusTooManyRequests {
			cat = adapter.CategoryRateLimited
		}
		return nil, adapter.NewProcessorError(z.Name(), cat,
			fmt.Sprintf("%d", resp.StatusCode), fmt.Errorf("refund http %d", resp.StatusCode))
	}
	var out struct {
		Data struct {
			Resource struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Timeline struct {
					RefundAmount int64  `json:"refund_amount"`
					RefundStatus string `json:"refund_status"`
				} `json:"timeline"`
			} `json:"resource"`
		} `json:"data"`
		Errors any `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, z.netErr(err)
	}
	if out.Errors != nil {
		return nil, adapter.NewProcessorError(z.Name(), adapter.CategoryInvalidRequest, "gql",
			fmt.Errorf("refund gql error: %v", out.Errors))
	}
	return &adapter.Refund{
		ID:     out.Data.Resource.ID,
		Status: out.Data.Resource.Timeline.RefundStatus,
		Amount: out.Data.Resource.Timeline.RefundAmount,
	}, nil
}

func (z *ZarinPalProcessor) CreateCustomer(ctx context.Context, params adapter.CustomerParams) (*adapter.Customer, error) {
	return nil, domain.ErrProcessorCapability
}

func (z *ZarinPalProcessor) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return domain.ErrProcessorCapability
}

func (z *ZarinPalProcessor) CreateSubscription(ctx context.Context, params adapter.SubscriptionParams) (*adapter.ProviderSubscription, error) {
	return nil, domain.ErrProcessorCapability
}

func (z *ZarinPalProcessor) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*adapter.ProviderSubscription, error) {
	return nil, domain.ErrProcessorCapability
}

func (z *ZarinPalProcessor) UpdateSubscriptionPlan(ctx context.Context, subscriptionID, priceID string, proration adapter.ProrationPolicy) (*adapter.ProviderSubscription, error) {
	return nil, domain.ErrProcessorCapability
}

func (z *ZarinPalProcessor) PauseSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	return nil, domain.ErrProcessorCapability
}

func (z *ZarinPalProcessor) ResumeSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	return nil, domain.ErrProcessorCapability
}

func (z *ZarinPalProcessor) ReactivateSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	return nil, domain.ErrProcessorCapability
}

func (z *ZarinPalProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	return nil, domain.ErrProcessorCapability
}

func (z *ZarinPalProcessor) ListSubscriptions(ctx context.Context, customerID string) ([]*adapter.ProviderSubscription, error) {
	return nil, domain.ErrProcessorCapability
}

func (z *ZarinPalProcessor) ListTransactions(ctx context.Context, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
	return nil, domain.ErrProcessorCapability
}

// VerifyWebhook checks HMAC-SHA256(amount + authority + status + secret) in
// hex against the supplied signature, then normalizes the callback into an
// intent event.
func (z *ZarinPalProcessor) VerifyWebhook(payload []byte, signature string) (*adapter.WebhookEvent, error) {
	if z.webhookSecret == "" {
		return nil, adapter.NewProcessorError(z.Name(), adapter.CategoryConfig, "webhook_secret",
			errors.New("webhook secret not configured"))
	}
	var body struct {
		Amount    int64  `json:"amount"`
		Authority string `json:"authority"`
		Status    string `json:"status"`
		RefID     string `json:"ref_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("unmarshal callback: %w", err)
	}
	signed := fmt.Sprintf("%d%s%s%s", body.Amount, body.Authority, body.Status, z.webhookSecret)
	h := hmac.New(sha256.New, []byte(z.webhookSecret))
	h.Write([]byte(signed))
	expected := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(expected, signature) {
		return nil, domain.ErrWebhookSignature
	}

	eventType := "payment_intent.payment_failed"
	failure := "payment not completed"
	if strings.EqualFold(body.Status, "OK") || body.Status == "100" {
		eventType = "payment_intent.succeeded"
		failure = ""
	}
	currency := "IRR"
	if s, ok := z.session(body.Authority); ok {
		currency = s.currency
	}
	return &adapter.WebhookEvent{
		ID:        fmt.Sprintf("%s:%s", body.Authority, body.Status),
		Type:      eventType,
		Provider:  z.Name(),
		CreatedAt: time.Now().UTC(),
		Intent: &adapter.IntentEventData{
			IntentID:      body.Authority,
			Amount:        body.Amount,
			Currency:      currency,
			FailureReason: failure,
		},
	}, nil
}
