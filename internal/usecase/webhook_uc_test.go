//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/adapter"
	"payment-platform/internal/domain/ports/repository"
)

func newWebhookUC(payments *mockPaymentRepo, subs *mockSubscriptionRepo, events *mockWebhookEventRepo, notifier *mockNotifier) *webhookUC {
	return NewWebhookUseCase(payments, subs, events, &mockTxManager{}, &mockGuard{}, notifier, time.Minute, nopLogger())
}

func intentEvent(id, typ, paymentID string) *adapter.WebhookEvent {
	return &adapter.WebhookEvent{
		ID:       id,
		Type:     typ,
		Provider: "stripe",
		Intent:   &adapter.IntentEventData{IntentID: "pi_1", PaymentID: paymentID},
	}
}

func TestWebhookIdempotence(t *testing.T) {
	ctx := context.Background()

	p, err := model.NewPayment("pay_1", "user_1", "u@example.com", usd(t, 1000), model.PaymentMethodCard, "")
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	p.SetProviderIntent("stripe", "pi_1")

	updates := 0
	payments := &mockPaymentRepo{
		FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
			return p, nil
		},
		UpdateFunc: func(ctx context.Context, tx repository.Tx, p *model.Payment) error {
			updates++
			return nil
		},
	}
	notifier := &mockNotifier{}
	uc := newWebhookUC(payments, &mockSubscriptionRepo{}, newMockWebhookEventRepo(), notifier)

	ev := intentEvent("evt_1", "payment_intent.succeeded", "pay_1")
	outcome, err := uc.Process(ctx, ev)
	if err != nil || outcome != OutcomeProcessed {
		t.Fatalf("first delivery: outcome=%s err=%v", outcome, err)
	}
	if p.Status != model.PaymentStatusCompleted {
		t.Errorf("status = %s, want completed", p.Status)
	}

	outcome, err = uc.Process(ctx, ev)
	if err != nil || outcome != OutcomeDuplicate {
		t.Fatalf("second delivery: outcome=%s err=%v", outcome, err)
	}
	if updates != 1 {
		t.Errorf("entity updates = %d, want 1", updates)
	}
	if notifier.Completed != 1 {
		t.Errorf("completion notifications = %d, want 1", notifier.Completed)
	}
}

func TestWebhookConcurrentDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("held reservation yields duplicate without touching entities", func(t *testing.T) {
		finds := 0
		payments := &mockPaymentRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
				finds++
				return nil, domain.ErrNotFound
			},
		}
		uc := NewWebhookUseCase(payments, &mockSubscriptionRepo{}, newMockWebhookEventRepo(), &mockTxManager{},
			&mockGuard{ReserveFunc: func(ctx context.Context, key string, ttl time.Duration) (string, error) {
				return "", domain.ErrAlreadyExists
			}}, &mockNotifier{}, time.Minute, nopLogger())

		outcome, err := uc.Process(ctx, intentEvent("evt_1", "payment_intent.succeeded", "pay_1"))
		if err != nil || outcome != OutcomeDuplicate {
			t.Fatalf("outcome=%s err=%v", outcome, err)
		}
		if finds != 0 {
			t.Errorf("entity lookups = %d, want 0", finds)
		}
	})

	t.Run("ledger conflict inside the transaction yields duplicate", func(t *testing.T) {
		events := newMockWebhookEventRepo()
		events.RecordFunc = func(ctx context.Context, tx repository.Tx, rec *model.WebhookEventRecord) error {
			return domain.ErrAlreadyExists
		}
		uc := newWebhookUC(&mockPaymentRepo{}, &mockSubscriptionRepo{}, events, &mockNotifier{})

		outcome, err := uc.Process(ctx, intentEvent("evt_1", "payment_intent.succeeded", "pay_missing"))
		if err != nil || outcome != OutcomeDuplicate {
			t.Fatalf("outcome=%s err=%v", outcome, err)
		}
	})

	t.Run("reservation failure falls open to the ledger", func(t *testing.T) {
		events := newMockWebhookEventRepo()
		uc := NewWebhookUseCase(&mockPaymentRepo{}, &mockSubscriptionRepo{}, events, &mockTxManager{},
			&mockGuard{ReserveFunc: func(ctx context.Context, key string, ttl time.Duration) (string, error) {
				return "", errors.New("redis down")
			}}, &mockNotifier{}, time.Minute, nopLogger())

		outcome, err := uc.Process(ctx, intentEvent("evt_1", "payment_intent.succeeded", "pay_missing"))
		if err != nil || outcome != OutcomeProcessed {
			t.Fatalf("outcome=%s err=%v", outcome, err)
		}
	})
}

func TestWebhookTransientFailure(t *testing.T) {
	ctx := context.Background()

	p, err := model.NewPayment("pay_1", "user_1", "u@example.com", usd(t, 1000), model.PaymentMethodCard, "")
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	p.SetProviderIntent("stripe", "pi_1")

	payments := &mockPaymentRepo{
		FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
			return p, nil
		},
		UpdateFunc: func(ctx context.Context, tx repository.Tx, p *model.Payment) error {
			return domain.ErrOperationFailed
		},
	}
	events := newMockWebhookEventRepo()
	guard := &mockGuard{}
	uc := NewWebhookUseCase(payments, &mockSubscriptionRepo{}, events, &mockTxManager{}, guard, &mockNotifier{}, time.Minute, nopLogger())

	outcome, err := uc.Process(ctx, intentEvent("evt_1", "payment_intent.succeeded", "pay_1"))
	if outcome != OutcomeFailed || !errors.Is(err, domain.ErrOperationFailed) {
		t.Fatalf("outcome=%s err=%v", outcome, err)
	}
	if guard.Releases != 1 {
		t.Errorf("reservation releases = %d, want 1", guard.Releases)
	}
	// The event stays unrecorded so the provider's retry can succeed.
	if seen, _ := events.WasProcessed(ctx, repository.NoTX, "evt_1", "stripe"); seen {
		t.Error("failed event must not be marked processed")
	}
}

func TestWebhookUnknownEntities(t *testing.T) {
	ctx := context.Background()

	// Unknown entities are permanently unrecoverable; redelivery must come
	// back as a duplicate, not loop forever.
	uc := newWebhookUC(&mockPaymentRepo{}, &mockSubscriptionRepo{}, newMockWebhookEventRepo(), &mockNotifier{})

	ev := intentEvent("evt_1", "payment_intent.succeeded", "pay_missing")
	outcome, err := uc.Process(ctx, ev)
	if err != nil || outcome != OutcomeProcessed {
		t.Fatalf("first delivery: outcome=%s err=%v", outcome, err)
	}
	outcome, err = uc.Process(ctx, ev)
	if err != nil || outcome != OutcomeDuplicate {
		t.Fatalf("second delivery: outcome=%s err=%v", outcome, err)
	}
}

func TestWebhookOutOfOrderDelivery(t *testing.T) {
	ctx := context.Background()

	p := completedPayment(t, 1000)
	updates := 0
	payments := &mockPaymentRepo{
		FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
			return p, nil
		},
		UpdateFunc: func(ctx context.Context, tx repository.Tx, p *model.Payment) error {
			updates++
			return nil
		},
	}
	notifier := &mockNotifier{}
	uc := newWebhookUC(payments, &mockSubscriptionRepo{}, newMockWebhookEventRepo(), notifier)

	// A late failure event for an already-completed payment is dropped by the
	// state guard but still counts as processed.
	outcome, err := uc.Process(ctx, intentEvent("evt_late", "payment_intent.payment_failed", "pay_1"))
	if err != nil || outcome != OutcomeProcessed {
		t.Fatalf("outcome=%s err=%v", outcome, err)
	}
	if p.Status != model.PaymentStatusCompleted {
		t.Errorf("status = %s, want completed", p.Status)
	}
	if updates != 0 || notifier.Failed != 0 {
		t.Errorf("updates=%d failed notifications=%d, want 0/0", updates, notifier.Failed)
	}
}

func TestWebhookSubscriptionEvents(t *testing.T) {
	ctx := context.Background()

	newSub := func(t *testing.T) *model.Subscription {
		t.Helper()
		s, err := model.NewSubscription("sub_local", "user_1", "u@example.com", usd(t, 999), model.BillingIntervalMonth, "")
		if err != nil {
			t.Fatalf("NewSubscription: %v", err)
		}
		s.BindProvider("stripe", "sub_1", "cus_1", "price_1")
		return s
	}

	subEvent := func(typ, status string) *adapter.WebhookEvent {
		return &adapter.WebhookEvent{
			ID:       "evt_1",
			Type:     typ,
			Provider: "stripe",
			Subscription: &adapter.SubscriptionEventData{
				SubscriptionID: "sub_1",
				Status:         status,
			},
		}
	}

	cases := []struct {
		name       string
		event      *adapter.WebhookEvent
		prepare    func(*model.Subscription)
		wantStatus model.SubscriptionStatus
	}{
		{
			name:       "active status activates",
			event:      subEvent("customer.subscription.updated", "active"),
			wantStatus: model.SubscriptionStatusActive,
		},
		{
			name:  "past_due marks past due",
			event: subEvent("customer.subscription.updated", "past_due"),
			prepare: func(s *model.Subscription) {
				if err := s.Activate(); err != nil {
					t.Fatalf("Activate: %v", err)
				}
			},
			wantStatus: model.SubscriptionStatusPastDue,
		},
		{
			name:       "deleted cancels immediately",
			event:      subEvent("customer.subscription.deleted", "canceled"),
			wantStatus: model.SubscriptionStatusCanceled,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSub(t)
			if tc.prepare != nil {
				tc.prepare(s)
			}
			subs := &mockSubscriptionRepo{
				FindByProviderSubscriptionIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
					return s, nil
				},
			}
			uc := newWebhookUC(&mockPaymentRepo{}, subs, newMockWebhookEventRepo(), &mockNotifier{})

			outcome, err := uc.Process(ctx, tc.event)
			if err != nil || outcome != OutcomeProcessed {
				t.Fatalf("outcome=%s err=%v", outcome, err)
			}
			if s.Status != tc.wantStatus {
				t.Errorf("status = %s, want %s", s.Status, tc.wantStatus)
			}
		})
	}
}

func TestWebhookInvoiceEvents(t *testing.T) {
	ctx := context.Background()

	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	invoiceEvent := func(typ string, amountPaid int64) *adapter.WebhookEvent {
		return &adapter.WebhookEvent{
			ID:       "evt_1",
			Type:     typ,
			Provider: "stripe",
			Invoice: &adapter.InvoiceEventData{
				InvoiceID:      "in_1",
				SubscriptionID: "sub_1",
				IntentID:       "pi_inv",
				AmountPaid:     amountPaid,
				Currency:       "USD",
				PeriodStart:    periodStart,
				PeriodEnd:      periodEnd,
			},
		}
	}

	activeSub := func(t *testing.T) *model.Subscription {
		t.Helper()
		s, err := model.NewSubscription("sub_local", "user_1", "u@example.com", usd(t, 999), model.BillingIntervalMonth, "")
		if err != nil {
			t.Fatalf("NewSubscription: %v", err)
		}
		s.BindProvider("stripe", "sub_1", "cus_1", "price_1")
		return s
	}

	t.Run("payment_succeeded advances the period and records a payment", func(t *testing.T) {
		s := activeSub(t)
		subs := &mockSubscriptionRepo{
			FindByProviderSubscriptionIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
				return s, nil
			},
		}
		var saved *model.Payment
		payments := &mockPaymentRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, p *model.Payment) error {
				saved = p
				return nil
			},
		}
		notifier := &mockNotifier{}
		uc := newWebhookUC(payments, subs, newMockWebhookEventRepo(), notifier)

		outcome, err := uc.Process(ctx, invoiceEvent("invoice.payment_succeeded", 999))
		if err != nil || outcome != OutcomeProcessed {
			t.Fatalf("outcome=%s err=%v", outcome, err)
		}
		if s.Status != model.SubscriptionStatusActive {
			t.Errorf("subscription status = %s, want active", s.Status)
		}
		if !s.CurrentPeriodStart.Equal(periodStart) || !s.CurrentPeriodEnd.Equal(periodEnd) {
			t.Errorf("period = %v..%v, want %v..%v", s.CurrentPeriodStart, s.CurrentPeriodEnd, periodStart, periodEnd)
		}
		if saved == nil {
			t.Fatal("expected an invoice-driven payment")
		}
		if saved.Status != model.PaymentStatusCompleted || saved.Amount.MinorUnits() != 999 {
			t.Errorf("payment = (%s, %d), want (completed, 999)", saved.Status, saved.Amount.MinorUnits())
		}
		if saved.ProviderIntentID != "pi_inv" {
			t.Errorf("intent id = %q, want pi_inv", saved.ProviderIntentID)
		}
		if notifier.Completed != 1 {
			t.Errorf("completion notifications = %d, want 1", notifier.Completed)
		}
	})

	t.Run("zero-amount invoice records no payment", func(t *testing.T) {
		s := activeSub(t)
		subs := &mockSubscriptionRepo{
			FindByProviderSubscriptionIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
				return s, nil
			},
		}
		saves := 0
		payments := &mockPaymentRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, p *model.Payment) error {
				saves++
				return nil
			},
		}
		uc := newWebhookUC(payments, subs, newMockWebhookEventRepo(), &mockNotifier{})

		outcome, err := uc.Process(ctx, invoiceEvent("invoice.payment_succeeded", 0))
		if err != nil || outcome != OutcomeProcessed {
			t.Fatalf("outcome=%s err=%v", outcome, err)
		}
		if saves != 0 {
			t.Errorf("payment saves = %d, want 0", saves)
		}
	})

	t.Run("invoice for an already-recorded intent records no second payment", func(t *testing.T) {
		s := activeSub(t)
		existing := completedPayment(t, 999)
		subs := &mockSubscriptionRepo{
			FindByProviderSubscriptionIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
				return s, nil
			},
		}
		saves := 0
		payments := &mockPaymentRepo{
			FindByProviderIntentIDFunc: func(ctx context.Context, tx repository.Tx, provider, intentID string) (*model.Payment, error) {
				return existing, nil
			},
			SaveFunc: func(ctx context.Context, tx repository.Tx, p *model.Payment) error {
				saves++
				return nil
			},
		}
		uc := newWebhookUC(payments, subs, newMockWebhookEventRepo(), &mockNotifier{})

		outcome, err := uc.Process(ctx, invoiceEvent("invoice.payment_succeeded", 999))
		if err != nil || outcome != OutcomeProcessed {
			t.Fatalf("outcome=%s err=%v", outcome, err)
		}
		if saves != 0 {
			t.Errorf("payment saves = %d, want 0", saves)
		}
	})

	t.Run("payment_failed marks the subscription past due", func(t *testing.T) {
		s := activeSub(t)
		if err := s.Activate(); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		subs := &mockSubscriptionRepo{
			FindByProviderSubscriptionIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
				return s, nil
			},
		}
		uc := newWebhookUC(&mockPaymentRepo{}, subs, newMockWebhookEventRepo(), &mockNotifier{})

		outcome, err := uc.Process(ctx, invoiceEvent("invoice.payment_failed", 0))
		if err != nil || outcome != OutcomeProcessed {
			t.Fatalf("outcome=%s err=%v", outcome, err)
		}
		if s.Status != model.SubscriptionStatusPastDue {
			t.Errorf("status = %s, want past_due", s.Status)
		}
	})
}

func TestWebhookChargeRefunded(t *testing.T) {
	ctx := context.Background()

	chargeEvent := func(cumulative int64, refundID string) *adapter.WebhookEvent {
		return &adapter.WebhookEvent{
			ID:       "evt_1",
			Type:     "charge.refunded",
			Provider: "stripe",
			Charge: &adapter.ChargeEventData{
				ChargeID:       "ch_1",
				IntentID:       "pi_1",
				RefundID:       refundID,
				AmountRefunded: cumulative,
				Currency:       "USD",
			},
		}
	}

	t.Run("dashboard refund applies the cumulative delta", func(t *testing.T) {
		p := completedPayment(t, 1000)
		payments := &mockPaymentRepo{
			FindByProviderIntentIDFunc: func(ctx context.Context, tx repository.Tx, provider, intentID string) (*model.Payment, error) {
				return p, nil
			},
		}
		notifier := &mockNotifier{}
		uc := newWebhookUC(payments, &mockSubscriptionRepo{}, newMockWebhookEventRepo(), notifier)

		outcome, err := uc.Process(ctx, chargeEvent(400, "re_dash"))
		if err != nil || outcome != OutcomeProcessed {
			t.Fatalf("outcome=%s err=%v", outcome, err)
		}
		if p.RefundedAmount.MinorUnits() != 400 {
			t.Errorf("refunded = %d, want 400", p.RefundedAmount.MinorUnits())
		}
		if p.Status != model.PaymentStatusPartiallyRefunded {
			t.Errorf("status = %s, want partially_refunded", p.Status)
		}
		if p.ProviderRefundID != "re_dash" {
			t.Errorf("provider refund id = %q, want re_dash", p.ProviderRefundID)
		}
		if notifier.Refunded != 1 {
			t.Errorf("refund notifications = %d, want 1", notifier.Refunded)
		}
	})

	t.Run("event mirroring an api refund is a zero-delta no-op", func(t *testing.T) {
		p := completedPayment(t, 1000)
		if err := p.ProcessRefund(usd(t, 400)); err != nil {
			t.Fatalf("ProcessRefund: %v", err)
		}
		updates := 0
		payments := &mockPaymentRepo{
			FindByProviderIntentIDFunc: func(ctx context.Context, tx repository.Tx, provider, intentID string) (*model.Payment, error) {
				return p, nil
			},
			UpdateFunc: func(ctx context.Context, tx repository.Tx, p *model.Payment) error {
				updates++
				return nil
			},
		}
		notifier := &mockNotifier{}
		uc := newWebhookUC(payments, &mockSubscriptionRepo{}, newMockWebhookEventRepo(), notifier)

		outcome, err := uc.Process(ctx, chargeEvent(400, "re_api"))
		if err != nil || outcome != OutcomeProcessed {
			t.Fatalf("outcome=%s err=%v", outcome, err)
		}
		if updates != 0 || notifier.Refunded != 0 {
			t.Errorf("updates=%d notifications=%d, want 0/0", updates, notifier.Refunded)
		}
	})
}

func TestWebhookDispute(t *testing.T) {
	ctx := context.Background()

	p := completedPayment(t, 1000)
	payments := &mockPaymentRepo{
		FindByProviderIntentIDFunc: func(ctx context.Context, tx repository.Tx, provider, intentID string) (*model.Payment, error) {
			return p, nil
		},
	}
	notifier := &mockNotifier{}
	uc := newWebhookUC(payments, &mockSubscriptionRepo{}, newMockWebhookEventRepo(), notifier)

	outcome, err := uc.Process(ctx, &adapter.WebhookEvent{
		ID:       "evt_1",
		Type:     "charge.dispute.created",
		Provider: "stripe",
		Dispute: &adapter.DisputeEventData{
			DisputeID:     "dp_1",
			IntentID:      "pi_1",
			Amount:        1000,
			Currency:      "USD",
			Reason:        "fraudulent",
			EvidenceDueBy: time.Now().Add(7 * 24 * time.Hour),
		},
	})
	if err != nil || outcome != OutcomeProcessed {
		t.Fatalf("outcome=%s err=%v", outcome, err)
	}
	if p.Status != model.PaymentStatusDisputed {
		t.Errorf("status = %s, want disputed", p.Status)
	}
	if notifier.Disputed != 1 {
		t.Errorf("dispute alerts = %d, want 1", notifier.Disputed)
	}
}

func TestWebhookUnhandledType(t *testing.T) {
	ctx := context.Background()

	uc := newWebhookUC(&mockPaymentRepo{}, &mockSubscriptionRepo{}, newMockWebhookEventRepo(), &mockNotifier{})

	ev := &adapter.WebhookEvent{ID: "evt_1", Type: "balance.available", Provider: "stripe"}
	outcome, err := uc.Process(ctx, ev)
	if err != nil || outcome != OutcomeUnhandled {
		t.Fatalf("outcome=%s err=%v", outcome, err)
	}
	// Unhandled events are still recorded so redelivery is a duplicate.
	outcome, err = uc.Process(ctx, ev)
	if err != nil || outcome != OutcomeDuplicate {
		t.Fatalf("second delivery: outcome=%s err=%v", outcome, err)
	}
}
