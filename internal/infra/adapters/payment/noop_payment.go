package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*NoopProcessor)(nil)

// NoopProcessor is a simple in-memory processor to use in tests and dev mode.
// Err, when set, is returned from every mutating call to exercise failover.
type NoopProcessor struct {
	mu      sync.Mutex
	name    string
	seq     int64
	intents map[string]*adapter.PaymentIntent
	subs    map[string]*adapter.ProviderSubscription
	txns    []adapter.Transaction

	Err error
}

func NewNoopProcessor(name string) *NoopProcessor {
	if name == "" {
		name = "noop"
	}
	return &NoopProcessor{
		name:    name,
		intents: make(map[string]*adapter.PaymentIntent),
		subs:    make(map[string]*adapter.ProviderSubscription),
	}
}

func (g *NoopProcessor) Name() string { return g.name }

func (g *NoopProcessor) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{Subscriptions: true, Refunds: true, TransactionListing: true}
}

func (g *NoopProcessor) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s-%s-%d", prefix, g.name, g.seq)
}

func (g *NoopProcessor) CreatePaymentIntent(ctx context.Context, params adapter.CreateIntentParams) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	in := &adapter.PaymentIntent{
		ID:           g.next("pi"),
		Status:       adapter.IntentStatusPending,
		ClientSecret: g.next("secret"),
		Processor:    g.name,
		Amount:       params.Amount.MinorUnits(),
		Currency:     params.Amount.Currency(),
	}
	g.intents[in.ID] = in
	return in, nil
}

func (g *NoopProcessor) ConfirmPaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	in, ok := g.intents[intentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	in.Status = adapter.IntentStatusSucceeded
	return in, nil
}

func (g *NoopProcessor) CancelPaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	in, ok := g.intents[intentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	in.Status = adapter.IntentStatusCanceled
	return in, nil
}

func (g *NoopProcessor) GetPaymentIntent(ctx context.Context, intentID string) (*adapter.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[intentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (g *NoopProcessor) CreateRefund(ctx context.Context, params adapter.RefundParams) (*adapter.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	return &adapter.Refund{ID: g.next("re"), Status: "succeeded", Amount: params.Amount.MinorUnits()}, nil
}

func (g *NoopProcessor) CreateCustomer(ctx context.Context, params adapter.CustomerParams) (*adapter.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	return &adapter.Customer{ID: g.next("cus")}, nil
}

func (g *NoopProcessor) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return g.Err
}

func (g *NoopProcessor) CreateSubscription(ctx context.Context, params adapter.SubscriptionParams) (*adapter.ProviderSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	now := time.Now().UTC()
	sub := &adapter.ProviderSubscription{
		ID:                 g.next("sub"),
		CustomerID:         params.CustomerID,
		PriceID:            params.PriceID,
		Status:             "active",
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   params.Interval.PeriodEnd(now),
	}
	g.subs[sub.ID] = sub
	return sub, nil
}

func (g *NoopProcessor) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*adapter.ProviderSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	sub, ok := g.subs[subscriptionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
	} else {
		sub.Status = "canceled"
	}
	return sub, nil
}

func (g *NoopProcessor) UpdateSubscriptionPlan(ctx context.Context, subscriptionID, priceID string, proration adapter.ProrationPolicy) (*adapter.ProviderSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	sub, ok := g.subs[subscriptionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	sub.PriceID = priceID
	return sub, nil
}

func (g *NoopProcessor) setSubStatus(subscriptionID, status string) (*adapter.ProviderSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	sub, ok := g.subs[subscriptionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	sub.Status = status
	sub.CancelAtPeriodEnd = false
	return sub, nil
}

func (g *NoopProcessor) PauseSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	return g.setSubStatus(subscriptionID, "paused")
}

func (g *NoopProcessor) ResumeSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	return g.setSubStatus(subscriptionID, "active")
}

func (g *NoopProcessor) ReactivateSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	return g.setSubStatus(subscriptionID, "active")
}

func (g *NoopProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.subs[subscriptionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (g *NoopProcessor) ListSubscriptions(ctx context.Context, customerID string) ([]*adapter.ProviderSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*adapter.ProviderSubscription
	for _, s := range g.subs {
		if s.CustomerID == customerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SeedTransactions loads provider-side transactions for reconciliation tests.
func (g *NoopProcessor) SeedTransactions(txns ...adapter.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txns = append(g.txns, txns...)
}

func (g *NoopProcessor) ListTransactions(ctx context.Context, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	return &adapter.TransactionPage{Transactions: append([]adapter.Transaction(nil), g.txns...)}, nil
}

func (g *NoopProcessor) VerifyWebhook(payload []byte, signature string) (*adapter.WebhookEvent, error) {
	if signature == "" {
		return nil, domain.ErrWebhookSignature
	}
	return &adapter.WebhookEvent{ID: "evt-noop", Type: "noop", Provider: g.name, CreatedAt: time.Now().UTC()}, nil
}
