//go:build !integration

package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/adapter"
	"payment-platform/internal/domain/ports/repository"
)

type mockPaymentRepo struct {
	SaveFunc                   func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	UpdateFunc                 func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	FindByIDFunc               func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error)
	FindByProviderIntentIDFunc func(ctx context.Context, tx repository.Tx, provider, intentID string) (*model.Payment, error)
	ListSettledByDayFunc       func(ctx context.Context, tx repository.Tx, provider string, day time.Time) ([]*model.Payment, error)
}

func (m *mockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	return nil
}

func (m *mockPaymentRepo) Update(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, p)
	}
	return nil
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaymentRepo) FindByProviderIntentID(ctx context.Context, tx repository.Tx, provider, intentID string) (*model.Payment, error) {
	if m.FindByProviderIntentIDFunc != nil {
		return m.FindByProviderIntentIDFunc(ctx, tx, provider, intentID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaymentRepo) ListSettledByDay(ctx context.Context, tx repository.Tx, provider string, day time.Time) ([]*model.Payment, error) {
	if m.ListSettledByDayFunc != nil {
		return m.ListSettledByDayFunc(ctx, tx, provider, day)
	}
	return nil, nil
}

type mockSubscriptionRepo struct {
	SaveFunc                         func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	UpdateFunc                       func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	FindByIDFunc                     func(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error)
	FindByProviderSubscriptionIDFunc func(ctx context.Context, tx repository.Tx, providerSubID string) (*model.Subscription, error)
	ListByUserFunc                   func(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error)
}

func (m *mockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, s)
	}
	return nil
}

func (m *mockSubscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, s)
	}
	return nil
}

func (m *mockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubscriptionRepo) FindByProviderSubscriptionID(ctx context.Context, tx repository.Tx, providerSubID string) (*model.Subscription, error) {
	if m.FindByProviderSubscriptionIDFunc != nil {
		return m.FindByProviderSubscriptionIDFunc(ctx, tx, providerSubID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, tx, userID)
	}
	return nil, nil
}

// mockWebhookEventRepo keeps the ledger in a map so duplicate tests exercise
// the real record/was-processed interplay.
type mockWebhookEventRepo struct {
	RecordFunc       func(ctx context.Context, tx repository.Tx, rec *model.WebhookEventRecord) error
	WasProcessedFunc func(ctx context.Context, tx repository.Tx, eventID, provider string) (bool, error)
	seen             map[string]bool
}

func newMockWebhookEventRepo() *mockWebhookEventRepo {
	return &mockWebhookEventRepo{seen: map[string]bool{}}
}

func (m *mockWebhookEventRepo) Record(ctx context.Context, tx repository.Tx, rec *model.WebhookEventRecord) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, tx, rec)
	}
	key := rec.Provider + ":" + rec.EventID
	if m.seen[key] {
		return domain.ErrAlreadyExists
	}
	m.seen[key] = true
	return nil
}

func (m *mockWebhookEventRepo) WasProcessed(ctx context.Context, tx repository.Tx, eventID, provider string) (bool, error) {
	if m.WasProcessedFunc != nil {
		return m.WasProcessedFunc(ctx, tx, eventID, provider)
	}
	return m.seen[provider+":"+eventID], nil
}

type mockReconciliationRepo struct {
	SaveRecordFunc        func(ctx context.Context, tx repository.Tx, r *model.ReconciliationRecord) error
	UpdateRecordFunc      func(ctx context.Context, tx repository.Tx, r *model.ReconciliationRecord) error
	FindRecordFunc        func(ctx context.Context, tx repository.Tx, provider string, date time.Time) (*model.ReconciliationRecord, error)
	ListRecordsFunc       func(ctx context.Context, tx repository.Tx, provider string, from, to time.Time) ([]*model.ReconciliationRecord, error)
	SaveDiscrepanciesFunc func(ctx context.Context, tx repository.Tx, ds []*model.Discrepancy) error
	ListDiscrepanciesFunc func(ctx context.Context, tx repository.Tx, recordID string) ([]*model.Discrepancy, error)
}

func (m *mockReconciliationRepo) SaveRecord(ctx context.Context, tx repository.Tx, r *model.ReconciliationRecord) error {
	if m.SaveRecordFunc != nil {
		return m.SaveRecordFunc(ctx, tx, r)
	}
	return nil
}

func (m *mockReconciliationRepo) UpdateRecord(ctx context.Context, tx repository.Tx, r *model.ReconciliationRecord) error {
	if m.UpdateRecordFunc != nil {
		return m.UpdateRecordFunc(ctx, tx, r)
	}
	return nil
}

func (m *mockReconciliationRepo) FindRecord(ctx context.Context, tx repository.Tx, provider string, date time.Time) (*model.ReconciliationRecord, error) {
	if m.FindRecordFunc != nil {
		return m.FindRecordFunc(ctx, tx, provider, date)
	}
	return nil, domain.ErrNotFound
}

func (m *mockReconciliationRepo) ListRecords(ctx context.Context, tx repository.Tx, provider string, from, to time.Time) ([]*model.ReconciliationRecord, error) {
	if m.ListRecordsFunc != nil {
		return m.ListRecordsFunc(ctx, tx, provider, from, to)
	}
	return nil, nil
}

func (m *mockReconciliationRepo) SaveDiscrepancies(ctx context.Context, tx repository.Tx, ds []*model.Discrepancy) error {
	if m.SaveDiscrepanciesFunc != nil {
		return m.SaveDiscrepanciesFunc(ctx, tx, ds)
	}
	return nil
}

func (m *mockReconciliationRepo) ListDiscrepancies(ctx context.Context, tx repository.Tx, recordID string) ([]*model.Discrepancy, error) {
	if m.ListDiscrepanciesFunc != nil {
		return m.ListDiscrepanciesFunc(ctx, tx, recordID)
	}
	return nil, nil
}

type mockRouter struct {
	CreatePaymentIntentFunc    func(ctx context.Context, params adapter.CreateIntentParams) (*adapter.PaymentIntent, error)
	ConfirmPaymentIntentFunc   func(ctx context.Context, processorName, intentID, idempotencyKey string) (*adapter.PaymentIntent, error)
	CancelPaymentIntentFunc    func(ctx context.Context, processorName, intentID, idempotencyKey string) (*adapter.PaymentIntent, error)
	GetPaymentIntentFunc       func(ctx context.Context, processorName, intentID string) (*adapter.PaymentIntent, error)
	CreateRefundFunc           func(ctx context.Context, processorName string, params adapter.RefundParams) (*adapter.Refund, error)
	CreateSubscriptionFunc     func(ctx context.Context, custParams adapter.CustomerParams, subParams adapter.SubscriptionParams) (*adapter.ProviderSubscription, string, error)
	CancelSubscriptionFunc     func(ctx context.Context, processorName, subscriptionID string, atPeriodEnd bool) (*adapter.ProviderSubscription, error)
	UpdateSubscriptionPlanFunc func(ctx context.Context, processorName, subscriptionID, priceID string, proration adapter.ProrationPolicy) (*adapter.ProviderSubscription, error)
	PauseSubscriptionFunc      func(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error)
	ResumeSubscriptionFunc     func(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error)
	ReactivateSubscriptionFunc func(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error)
	VerifyWebhookFunc          func(processorName string, payload []byte, signature string) (*adapter.WebhookEvent, error)
	ListTransactionsFunc       func(ctx context.Context, processorName string, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error)
	ProcessorNamesFunc         func() []string
}

func (m *mockRouter) CreatePaymentIntent(ctx context.Context, params adapter.CreateIntentParams) (*adapter.PaymentIntent, error) {
	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, params)
	}
	return &adapter.PaymentIntent{ID: "pi_1", Status: adapter.IntentStatusPending, Processor: "stripe"}, nil
}

func (m *mockRouter) ConfirmPaymentIntent(ctx context.Context, processorName, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	if m.ConfirmPaymentIntentFunc != nil {
		return m.ConfirmPaymentIntentFunc(ctx, processorName, intentID, idempotencyKey)
	}
	return &adapter.PaymentIntent{ID: intentID, Status: adapter.IntentStatusSucceeded, Processor: processorName}, nil
}

func (m *mockRouter) CancelPaymentIntent(ctx context.Context, processorName, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	if m.CancelPaymentIntentFunc != nil {
		return m.CancelPaymentIntentFunc(ctx, processorName, intentID, idempotencyKey)
	}
	return &adapter.PaymentIntent{ID: intentID, Status: adapter.IntentStatusCanceled, Processor: processorName}, nil
}

func (m *mockRouter) GetPaymentIntent(ctx context.Context, processorName, intentID string) (*adapter.PaymentIntent, error) {
	if m.GetPaymentIntentFunc != nil {
		return m.GetPaymentIntentFunc(ctx, processorName, intentID)
	}
	return &adapter.PaymentIntent{ID: intentID, Processor: processorName}, nil
}

func (m *mockRouter) CreateRefund(ctx context.Context, processorName string, params adapter.RefundParams) (*adapter.Refund, error) {
	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, processorName, params)
	}
	return &adapter.Refund{ID: "re_1", Status: "succeeded", Amount: params.Amount.MinorUnits()}, nil
}

func (m *mockRouter) CreateSubscription(ctx context.Context, custParams adapter.CustomerParams, subParams adapter.SubscriptionParams) (*adapter.ProviderSubscription, string, error) {
	if m.CreateSubscriptionFunc != nil {
		return m.CreateSubscriptionFunc(ctx, custParams, subParams)
	}
	return &adapter.ProviderSubscription{ID: "sub_1", CustomerID: "cus_1", Status: "active"}, "stripe", nil
}

func (m *mockRouter) CancelSubscription(ctx context.Context, processorName, subscriptionID string, atPeriodEnd bool) (*adapter.ProviderSubscription, error) {
	if m.CancelSubscriptionFunc != nil {
		return m.CancelSubscriptionFunc(ctx, processorName, subscriptionID, atPeriodEnd)
	}
	return &adapter.ProviderSubscription{ID: subscriptionID, Status: "canceled"}, nil
}

func (m *mockRouter) UpdateSubscriptionPlan(ctx context.Context, processorName, subscriptionID, priceID string, proration adapter.ProrationPolicy) (*adapter.ProviderSubscription, error) {
	if m.UpdateSubscriptionPlanFunc != nil {
		return m.UpdateSubscriptionPlanFunc(ctx, processorName, subscriptionID, priceID, proration)
	}
	return &adapter.ProviderSubscription{ID: subscriptionID, PriceID: priceID, Status: "active"}, nil
}

func (m *mockRouter) PauseSubscription(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error) {
	if m.PauseSubscriptionFunc != nil {
		return m.PauseSubscriptionFunc(ctx, processorName, subscriptionID)
	}
	return &adapter.ProviderSubscription{ID: subscriptionID, Status: "paused"}, nil
}

func (m *mockRouter) ResumeSubscription(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error) {
	if m.ResumeSubscriptionFunc != nil {
		return m.ResumeSubscriptionFunc(ctx, processorName, subscriptionID)
	}
	return &adapter.ProviderSubscription{ID: subscriptionID, Status: "active"}, nil
}

func (m *mockRouter) ReactivateSubscription(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error) {
	if m.ReactivateSubscriptionFunc != nil {
		return m.ReactivateSubscriptionFunc(ctx, processorName, subscriptionID)
	}
	return &adapter.ProviderSubscription{ID: subscriptionID, Status: "active"}, nil
}

func (m *mockRouter) VerifyWebhook(processorName string, payload []byte, signature string) (*adapter.WebhookEvent, error) {
	if m.VerifyWebhookFunc != nil {
		return m.VerifyWebhookFunc(processorName, payload, signature)
	}
	return nil, domain.ErrWebhookSignature
}

func (m *mockRouter) ListTransactions(ctx context.Context, processorName string, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, processorName, params)
	}
	return &adapter.TransactionPage{}, nil
}

func (m *mockRouter) ProcessorNames() []string {
	if m.ProcessorNamesFunc != nil {
		return m.ProcessorNamesFunc()
	}
	return []string{"stripe"}
}

// mockNotifier counts deliveries per event kind.
type mockNotifier struct {
	Created   int
	Completed int
	Failed    int
	Refunded  int
	Disputed  int
}

func (m *mockNotifier) SendPaymentCreated(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency string) {
	m.Created++
}

func (m *mockNotifier) SendPaymentCompleted(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency string) {
	m.Completed++
}

func (m *mockNotifier) SendPaymentFailed(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency, reason string) {
	m.Failed++
}

func (m *mockNotifier) SendRefundProcessed(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency string) {
	m.Refunded++
}

func (m *mockNotifier) SendDisputeAlert(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency, evidenceDueBy string) {
	m.Disputed++
}

type mockGuard struct {
	ReserveFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseFunc func(ctx context.Context, key, token string) error
	Releases    int
}

func (m *mockGuard) Reserve(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, key, ttl)
	}
	return "token", nil
}

func (m *mockGuard) Release(ctx context.Context, key, token string) error {
	m.Releases++
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, key, token)
	}
	return nil
}

// mockTxManager runs the function directly; repositories receive NoTX.
type mockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func (m *mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}
