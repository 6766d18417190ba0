package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*StripeProcessor)(nil)

// StripeProcessor implements the processor port on the Stripe API. It is the
// full-capability processor: intents, refunds, customers, subscriptions,
// webhook verification and charge listing for reconciliation.
type StripeProcessor struct {
	client        *stripe.Client
	webhookSecret string
}

func NewStripeProcessor(apiKey, webhookSecret string) (*StripeProcessor, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("stripe api key empty")
	}
	return &StripeProcessor{
		client:        stripe.NewClient(apiKey),
		webhookSecret: webhookSecret,
	}, nil
}

func (s *StripeProcessor) Name() string { return "stripe" }

func (s *StripeProcessor) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{Subscriptions: true, Refunds: true, TransactionListing: true}
}

// translate converts Stripe errors into the domain-safe categories; the core
// never sees provider error types.
func (s *StripeProcessor) translate(err error) error {
	if err == nil {
		return nil
	}
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return adapter.NewProcessorError(s.Name(), adapter.CategoryNetwork, "", err)
	}
	category := adapter.CategoryUnavailable
	switch serr.Type {
	case stripe.ErrorTypeCard:
		category = adapter.CategoryDeclined
	case stripe.ErrorTypeInvalidRequest:
		category = adapter.CategoryInvalidRequest
	case stripe.ErrorType("authentication_error"):
		category = adapter.CategoryConfig
	}
	if serr.HTTPStatusCode == 429 {
		category = adapter.CategoryRateLimited
	}
	return adapter.NewProcessorError(s.Name(), category, string(serr.Code), err)
}

func intentStatus(st stripe.PaymentIntentStatus) adapter.IntentStatus {
	switch st {
	case stripe.PaymentIntentStatusSucceeded:
		return adapter.IntentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return adapter.IntentStatusCanceled
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return adapter.IntentStatusProcessing
	default:
		return adapter.IntentStatusPending
	}
}

func (s *StripeProcessor) toIntent(pi *stripe.PaymentIntent) *adapter.PaymentIntent {
	return &adapter.PaymentIntent{
		ID:           pi.ID,
		Status:       intentStatus(pi.Status),
		ClientSecret: pi.ClientSecret,
		Processor:    s.Name(),
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
	}
}

func (s *StripeProcessor) CreatePaymentIntent(ctx context.Context, params adapter.CreateIntentParams) (*adapter.PaymentIntent, error) {
	p := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(params.Amount.MinorUnits()),
		Currency: stripe.String(strings.ToLower(params.Amount.Currency())),
	}
	if params.Description != "" {
		p.Description = stripe.String(params.Description)
	}
	if params.CustomerID != "" {
		p.Customer = stripe.String(params.CustomerID)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}
	pi, err := s.client.V1PaymentIntents.Create(ctx, p)
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toIntent(pi), nil
}

func (s *StripeProcessor) ConfirmPaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	p := &stripe.PaymentIntentConfirmParams{}
	if idempotencyKey != "" {
		p.SetIdempotencyKey(idempotencyKey)
	}
	pi, err := s.client.V1PaymentIntents.Confirm(ctx, intentID, p)
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toIntent(pi), nil
}

func (s *StripeProcessor) CancelPaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	p := &stripe.PaymentIntentCancelParams{}
	if idempotencyKey != "" {
		p.SetIdempotencyKey(idempotencyKey)
	}
	pi, err := s.client.V1PaymentIntents.Cancel(ctx, intentID, p)
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toIntent(pi), nil
}

func (s *StripeProcessor) GetPaymentIntent(ctx context.Context, intentID string) (*adapter.PaymentIntent, error) {
	pi, err := s.client.V1PaymentIntents.Retrieve(ctx, intentID, nil)
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toIntent(pi), nil
}

func (s *StripeProcessor) CreateRefund(ctx context.Context, params adapter.RefundParams) (*adapter.Refund, error) {
	p := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(params.IntentID),
		Amount:        stripe.Int64(params.Amount.MinorUnits()),
	}
	if params.Reason != "" {
		p.Reason = stripe.String(params.Reason)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}
	re, err := s.client.V1Refunds.Create(ctx, p)
	if err != nil {
		return nil, s.translate(err)
	}
	return &adapter.Refund{ID: re.ID, Status: string(re.Status), Amount: re.Amount}, nil
}

func (s *StripeProcessor) CreateCustomer(ctx context.Context, params adapter.CustomerParams) (*adapter.Customer, error) {
	p := &stripe.CustomerCreateParams{}
	if params.Email != "" {
		p.Email = stripe.String(params.Email)
	}
	if params.Name != "" {
		p.Name = stripe.String(params.Name)
	}
	if params.UserID != "" {
		p.AddMetadata("user_id", params.UserID)
	}
	c, err := s.client.V1Customers.Create(ctx, p)
	if err != nil {
		return nil, s.translate(err)
	}
	return &adapter.Customer{ID: c.ID}, nil
}

func (s *StripeProcessor) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	_, err := s.client.V1PaymentMethods.Attach(ctx, paymentMethodID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	})
	return s.translate(err)
}

func (s *StripeProcessor) toSubscription(sub *stripe.Subscription) *adapter.ProviderSubscription {
	out := &adapter.ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		out.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	return out
}

func (s *StripeProcessor) CreateSubscription(ctx context.Context, params adapter.SubscriptionParams) (*adapter.ProviderSubscription, error) {
	p := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(params.CustomerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(params.PriceID)},
		},
	}
	if params.TrialDays > 0 {
		p.TrialPeriodDays = stripe.Int64(int64(params.TrialDays))
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}
	sub, err := s.client.V1Subscriptions.Create(ctx, p)
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toSubscription(sub), nil
}

func (s *StripeProcessor) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*adapter.ProviderSubscription, error) {
	if atPeriodEnd {
		sub, err := s.client.V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		})
		if err != nil {
			return nil, s.translate(err)
		}
		return s.toSubscription(sub), nil
	}
	sub, err := s.client.V1Subscriptions.Cancel(ctx, subscriptionID, nil)
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toSubscription(sub), nil
}

func (s *StripeProcessor) UpdateSubscriptionPlan(ctx context.Context, subscriptionID, priceID string, proration adapter.ProrationPolicy) (*adapter.ProviderSubscription, error) {
	current, err := s.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, s.translate(err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, adapter.NewProcessorError(s.Name(), adapter.CategoryInvalidRequest, "no_items", errors.New("subscription has no items"))
	}
	if proration == "" {
		proration = adapter.ProrationCreateProrations
	}
	sub, err := s.client.V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
		ProrationBehavior: stripe.String(string(proration)),
		Items: []*stripe.SubscriptionUpdateItemParams{
			{ID: stripe.String(current.Items.Data[0].ID), Price: stripe.String(priceID)},
		},
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toSubscription(sub), nil
}

func (s *StripeProcessor) PauseSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	sub, err := s.client.V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
		PauseCollection: &stripe.SubscriptionUpdatePauseCollectionParams{
			Behavior: stripe.String("void"),
		},
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toSubscription(sub), nil
}

func (s *StripeProcessor) ResumeSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	// Clearing pause_collection requires the empty-value form.
	p := &stripe.SubscriptionUpdateParams{}
	p.AddExtra("pause_collection", "")
	sub, err := s.client.V1Subscriptions.Update(ctx, subscriptionID, p)
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toSubscription(sub), nil
}

func (s *StripeProcessor) ReactivateSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	sub, err := s.client.V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toSubscription(sub), nil
}

func (s *StripeProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	sub, err := s.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, s.translate(err)
	}
	return s.toSubscription(sub), nil
}

func (s *StripeProcessor) ListSubscriptions(ctx context.Context, customerID string) ([]*adapter.ProviderSubscription, error) {
	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(customerID)
	var out []*adapter.ProviderSubscription
	for sub, err := range s.client.V1Subscriptions.List(ctx, params) {
		if err != nil {
			return nil, s.translate(err)
		}
		out = append(out, s.toSubscription(sub))
	}
	return out, nil
}

// ListTransactions lists charges for one UTC day, cursor-paginated for the
// reconciliation engine's page budget.
func (s *StripeProcessor) ListTransactions(ctx context.Context, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
	day := params.Day.UTC().Truncate(24 * time.Hour)
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	lp := &stripe.ChargeListParams{
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: day.Unix(),
			LesserThan:         day.Add(24 * time.Hour).Unix(),
		},
	}
	lp.Limit = stripe.Int64(int64(limit))
	if params.Cursor != "" {
		lp.StartingAfter = stripe.String(params.Cursor)
	}
	page := &adapter.TransactionPage{}
	for ch, err := range s.client.V1Charges.List(ctx, lp) {
		if err != nil {
			return nil, s.translate(err)
		}
		txn := adapter.Transaction{
			ID:             ch.ID,
			Amount:         ch.Amount,
			Currency:       strings.ToUpper(string(ch.Currency)),
			Status:         string(ch.Status),
			RefundedAmount: ch.AmountRefunded,
			CreatedAt:      time.Unix(ch.Created, 0).UTC(),
		}
		if ch.Refunded {
			txn.Status = "refunded"
		}
		if ch.PaymentIntent != nil {
			txn.IntentID = ch.PaymentIntent.ID
		}
		page.Transactions = append(page.Transactions, txn)
		if len(page.Transactions) >= limit {
			page.HasMore = true
			page.NextCursor = ch.ID
			break
		}
	}
	return page, nil
}

// Minimal payload shapes for webhook normalization. Parsing locally keeps the
// anti-corruption boundary tight and tolerant of expanded vs id-only fields.
type stripeSubscriptionPayload struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoicePayload struct {
	ID            string `json:"id"`
	Subscription  string `json:"subscription"`
	PaymentIntent string `json:"payment_intent"`
	AmountPaid    int64  `json:"amount_paid"`
	AmountDue     int64  `json:"amount_due"`
	Currency      string `json:"currency"`
	PeriodStart   int64  `json:"period_start"`
	PeriodEnd     int64  `json:"period_end"`
	Lines         struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

type stripeChargePayload struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Refunds        struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"refunds"`
}

type stripeDisputePayload struct {
	ID              string `json:"id"`
	PaymentIntent   string `json:"payment_intent"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason"`
	EvidenceDetails struct {
		DueBy int64 `json:"due_by"`
	} `json:"evidence_details"`
}

// VerifyWebhook checks the Stripe-Signature header against the shared secret
// and returns the normalized event.
func (s *StripeProcessor) VerifyWebhook(payload []byte, signature string) (*adapter.WebhookEvent, error) {
	if s.webhookSecret == "" {
		return nil, adapter.NewProcessorError(s.Name(), adapter.CategoryConfig, "webhook_secret", errors.New("webhook secret not configured"))
	}
	event, err := stripe.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWebhookSignature, err)
	}
	out := &adapter.WebhookEvent{
		ID:        event.ID,
		Type:      string(event.Type),
		Provider:  s.Name(),
		CreatedAt: time.Unix(event.Created, 0).UTC(),
	}
	raw := event.Data.Raw

	switch {
	case strings.HasPrefix(out.Type, "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("unmarshal payment intent: %w", err)
		}
		data := &adapter.IntentEventData{
			IntentID:  pi.ID,
			PaymentID: pi.Metadata[adapter.MetadataPaymentID],
			Amount:    pi.Amount,
			Currency:  strings.ToUpper(string(pi.Currency)),
		}
		if pi.LastPaymentError != nil {
			data.FailureReason = pi.LastPaymentError.Msg
		}
		out.Intent = data

	case strings.HasPrefix(out.Type, "customer.subscription."):
		var sub stripeSubscriptionPayload
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("unmarshal subscription: %w", err)
		}
		data := &adapter.SubscriptionEventData{
			SubscriptionID:    sub.ID,
			CustomerID:        sub.Customer,
			Status:            sub.Status,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}
		if len(sub.Items.Data) > 0 {
			item := sub.Items.Data[0]
			data.PriceID = item.Price.ID
			data.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
			data.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
		out.Subscription = data

	case strings.HasPrefix(out.Type, "invoice."):
		var inv stripeInvoicePayload
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("unmarshal invoice: %w", err)
		}
		data := &adapter.InvoiceEventData{
			InvoiceID:      inv.ID,
			SubscriptionID: inv.Subscription,
			IntentID:       inv.PaymentIntent,
			AmountPaid:     inv.AmountPaid,
			Currency:       strings.ToUpper(inv.Currency),
			PeriodStart:    time.Unix(inv.PeriodStart, 0).UTC(),
			PeriodEnd:      time.Unix(inv.PeriodEnd, 0).UTC(),
		}
		// Line periods carry the service window; the invoice-level period is
		// only the billing moment.
		if len(inv.Lines.Data) > 0 {
			data.PeriodStart = time.Unix(inv.Lines.Data[0].Period.Start, 0).UTC()
			data.PeriodEnd = time.Unix(inv.Lines.Data[0].Period.End, 0).UTC()
		}
		out.Invoice = data

	case strings.HasPrefix(out.Type, "charge.dispute."):
		var d stripeDisputePayload
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("unmarshal dispute: %w", err)
		}
		out.Dispute = &adapter.DisputeEventData{
			DisputeID:     d.ID,
			IntentID:      d.PaymentIntent,
			Amount:        d.Amount,
			Currency:      strings.ToUpper(d.Currency),
			Reason:        d.Reason,
			EvidenceDueBy: time.Unix(d.EvidenceDetails.DueBy, 0).UTC(),
		}

	case strings.HasPrefix(out.Type, "charge."):
		var ch stripeChargePayload
		if err := json.Unmarshal(raw, &ch); err != nil {
			return nil, fmt.Errorf("unmarshal charge: %w", err)
		}
		data := &adapter.ChargeEventData{
			ChargeID:       ch.ID,
			IntentID:       ch.PaymentIntent,
			AmountRefunded: ch.AmountRefunded,
			Currency:       strings.ToUpper(ch.Currency),
		}
		if n := len(ch.Refunds.Data); n > 0 {
			data.RefundID = ch.Refunds.Data[n-1].ID
		}
		out.Charge = data
	}
	return out, nil
}
