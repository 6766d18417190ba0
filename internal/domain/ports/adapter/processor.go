package adapter

import (
	"context"
	"time"

	"payment-platform/internal/domain/model"
)

// Capabilities declares what a processor can do; the orchestrator consults the
// flags before routing rather than calling into a gap and catching the error.
type Capabilities struct {
	Subscriptions      bool
	Refunds            bool
	TransactionListing bool
}

// IntentStatus is the normalized payment-intent status across providers.
type IntentStatus string

const (
	IntentStatusPending    IntentStatus = "pending" // awaiting confirmation or payment method
	IntentStatusProcessing IntentStatus = "processing"
	IntentStatusSucceeded  IntentStatus = "succeeded"
	IntentStatusCanceled   IntentStatus = "canceled"
	IntentStatusFailed     IntentStatus = "failed"
)

type CreateIntentParams struct {
	Amount         model.Money
	Method         model.PaymentMethod
	CustomerID     string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentIntent is the provider-agnostic view of an intent. Processor names
// which registered processor served it, so follow-up calls route by name.
type PaymentIntent struct {
	ID           string
	Status       IntentStatus
	ClientSecret string
	Processor    string
	Amount       int64 // minor units
	Currency     string
}

type RefundParams struct {
	IntentID       string
	Amount         model.Money
	Reason         string
	IdempotencyKey string
}

type Refund struct {
	ID     string
	Status string
	Amount int64 // minor units
}

type CustomerParams struct {
	UserID string
	Email  string
	Name   string
}

type Customer struct {
	ID string
}

// ProrationPolicy selects how mid-cycle plan changes are billed.
type ProrationPolicy string

const (
	ProrationCreateProrations ProrationPolicy = "create_prorations"
	ProrationNone             ProrationPolicy = "none"
	ProrationAlwaysInvoice    ProrationPolicy = "always_invoice"
)

type SubscriptionParams struct {
	CustomerID     string
	PriceID        string
	Amount         model.Money
	Interval       model.BillingInterval
	TrialDays      int
	Metadata       map[string]string
	IdempotencyKey string
}

// ProviderSubscription mirrors the provider-side subscription state.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	PriceID            string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

type ListTransactionsParams struct {
	Day    time.Time // UTC day to list
	Cursor string
	Limit  int
}

// Transaction is one provider-reported settled transaction, the reconciliation
// engine's unit of comparison.
type Transaction struct {
	ID             string
	IntentID       string
	Amount         int64 // minor units
	Currency       string
	Status         string // succeeded | refunded
	RefundedAmount int64
	CreatedAt      time.Time
}

type TransactionPage struct {
	Transactions []Transaction
	NextCursor   string
	HasMore      bool
}

// WebhookEvent is the normalized provider event. Exactly one of the data
// sections is populated, keyed by the Type prefix.
type WebhookEvent struct {
	ID        string // provider event id, dedup key together with Provider
	Type      string
	Provider  string
	CreatedAt time.Time

	Intent       *IntentEventData
	Subscription *SubscriptionEventData
	Invoice      *InvoiceEventData
	Charge       *ChargeEventData
	Dispute      *DisputeEventData
}

// Metadata keys carrying our ids on provider objects, so webhook events can
// be tied back without a lookup table.
const (
	MetadataPaymentID      = "payment_id"
	MetadataSubscriptionID = "subscription_id"
)

type IntentEventData struct {
	IntentID      string
	PaymentID     string // carried through metadata at intent creation
	Amount        int64
	Currency      string
	FailureReason string
}

type SubscriptionEventData struct {
	SubscriptionID     string
	CustomerID         string
	PriceID            string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

type InvoiceEventData struct {
	InvoiceID      string
	SubscriptionID string
	IntentID       string
	AmountPaid     int64
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	FailureReason  string
}

type ChargeEventData struct {
	ChargeID       string
	IntentID       string
	RefundID       string
	AmountRefunded int64 // cumulative, minor units
	Currency       string
}

type DisputeEventData struct {
	DisputeID     string
	IntentID      string
	Amount        int64
	Currency      string
	Reason        string
	EvidenceDueBy time.Time
}

// PaymentProcessor is the hex port a concrete gateway integration implements.
// Every mutating call accepts an idempotency key so a retried request has
// effect at most once at the provider. Processors without a capability return
// domain.ErrProcessorCapability from the uncovered methods and report it via
// Capabilities.
type PaymentProcessor interface {
	Name() string
	Capabilities() Capabilities

	CreatePaymentIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)

	CreateRefund(ctx context.Context, params RefundParams) (*Refund, error)

	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	CreateSubscription(ctx context.Context, params SubscriptionParams) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*ProviderSubscription, error)
	UpdateSubscriptionPlan(ctx context.Context, subscriptionID, priceID string, proration ProrationPolicy) (*ProviderSubscription, error)
	PauseSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	ResumeSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	ReactivateSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]*ProviderSubscription, error)

	ListTransactions(ctx context.Context, params ListTransactionsParams) (*TransactionPage, error)

	// VerifyWebhook checks the payload against the signature using the
	// provider-specific shared secret and returns the normalized event.
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
