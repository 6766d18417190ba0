package usecase

import (
	"context"

	"payment-platform/internal/domain/ports/adapter"
)

// ProcessorRouter is the slice of the orchestrator the use cases consume:
// failover-selected creation plus by-name routing for everything that must go
// back to the processor that owns the entity.
type ProcessorRouter interface {
	CreatePaymentIntent(ctx context.Context, params adapter.CreateIntentParams) (*adapter.PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, processorName, intentID, idempotencyKey string) (*adapter.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, processorName, intentID, idempotencyKey string) (*adapter.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, processorName, intentID string) (*adapter.PaymentIntent, error)
	CreateRefund(ctx context.Context, processorName string, params adapter.RefundParams) (*adapter.Refund, error)

	CreateSubscription(ctx context.Context, custParams adapter.CustomerParams, subParams adapter.SubscriptionParams) (*adapter.ProviderSubscription, string, error)
	CancelSubscription(ctx context.Context, processorName, subscriptionID string, atPeriodEnd bool) (*adapter.ProviderSubscription, error)
	UpdateSubscriptionPlan(ctx context.Context, processorName, subscriptionID, priceID string, proration adapter.ProrationPolicy) (*adapter.ProviderSubscription, error)
	PauseSubscription(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error)
	ResumeSubscription(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error)
	ReactivateSubscription(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error)

	VerifyWebhook(processorName string, payload []byte, signature string) (*adapter.WebhookEvent, error)
	ListTransactions(ctx context.Context, processorName string, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error)
	ProcessorNames() []string
}
