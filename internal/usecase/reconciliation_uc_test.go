//go:build !integration

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/adapter"
	"payment-platform/internal/domain/ports/repository"
)

func settledPayment(t *testing.T, id, intentID string, minor int64) *model.Payment {
	t.Helper()
	p, err := model.NewPayment(id, "user_1", "u@example.com", usd(t, minor), model.PaymentMethodCard, "")
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	p.SetProviderIntent("stripe", intentID)
	if err := p.MarkAsProcessing(); err != nil {
		t.Fatalf("MarkAsProcessing: %v", err)
	}
	if err := p.MarkAsCompleted(); err != nil {
		t.Fatalf("MarkAsCompleted: %v", err)
	}
	return p
}

func reconciliationFixture(local []*model.Payment, remote []adapter.Transaction) (*reconciliationUC, *mockReconciliationRepo, *[]*model.Discrepancy) {
	payments := &mockPaymentRepo{
		ListSettledByDayFunc: func(ctx context.Context, tx repository.Tx, provider string, day time.Time) ([]*model.Payment, error) {
			return local, nil
		},
	}
	var persisted []*model.Discrepancy
	records := &mockReconciliationRepo{
		SaveDiscrepanciesFunc: func(ctx context.Context, tx repository.Tx, ds []*model.Discrepancy) error {
			persisted = append(persisted, ds...)
			return nil
		},
	}
	router := &mockRouter{
		ListTransactionsFunc: func(ctx context.Context, processorName string, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
			return &adapter.TransactionPage{Transactions: remote}, nil
		},
	}
	uc := NewReconciliationUseCase(payments, records, router, 100, 10, nopLogger())
	return uc, records, &persisted
}

func TestReconciliationRun(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("matching ledgers complete with zero discrepancies", func(t *testing.T) {
		local := []*model.Payment{settledPayment(t, "pay_1", "pi_1", 1000)}
		remote := []adapter.Transaction{{ID: "txn_1", IntentID: "pi_1", Amount: 1000, Currency: "USD", Status: "succeeded"}}
		uc, _, persisted := reconciliationFixture(local, remote)

		rec, err := uc.Run(ctx, "stripe", day)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if rec.Status != model.ReconciliationStatusCompleted {
			t.Errorf("status = %s, want completed", rec.Status)
		}
		if rec.MatchedTransactions != 1 || rec.DiscrepancyCount != 0 {
			t.Errorf("matched=%d discrepancies=%d, want 1/0", rec.MatchedTransactions, rec.DiscrepancyCount)
		}
		if rec.TotalAmountReconciled != 1000 {
			t.Errorf("reconciled amount = %d, want 1000", rec.TotalAmountReconciled)
		}
		if len(*persisted) != 0 {
			t.Errorf("persisted discrepancies = %d, want 0", len(*persisted))
		}
	})

	t.Run("amount mismatch yields a partial run with the difference", func(t *testing.T) {
		local := []*model.Payment{settledPayment(t, "pay_1", "pi_1", 1000)}
		remote := []adapter.Transaction{{ID: "txn_1", IntentID: "pi_1", Amount: 900, Currency: "USD", Status: "succeeded"}}
		uc, _, persisted := reconciliationFixture(local, remote)

		rec, err := uc.Run(ctx, "stripe", day)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if rec.Status != model.ReconciliationStatusPartial {
			t.Errorf("status = %s, want partial", rec.Status)
		}
		if len(*persisted) != 1 {
			t.Fatalf("persisted discrepancies = %d, want 1", len(*persisted))
		}
		d := (*persisted)[0]
		if d.Type != model.DiscrepancyAmountMismatch {
			t.Errorf("type = %s, want amount_mismatch", d.Type)
		}
		if d.AmountDifference != 100 {
			t.Errorf("amount difference = %d, want 100", d.AmountDifference)
		}
		if d.PaymentID != "pay_1" || d.ExternalID != "txn_1" {
			t.Errorf("ids = (%s, %s)", d.PaymentID, d.ExternalID)
		}
	})

	t.Run("provider-only succeeded transaction is missing in local", func(t *testing.T) {
		remote := []adapter.Transaction{{ID: "txn_9", IntentID: "pi_9", Amount: 500, Currency: "USD", Status: "succeeded"}}
		uc, _, persisted := reconciliationFixture(nil, remote)

		rec, err := uc.Run(ctx, "stripe", day)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if rec.Status != model.ReconciliationStatusPartial {
			t.Errorf("status = %s, want partial", rec.Status)
		}
		if len(*persisted) != 1 || (*persisted)[0].Type != model.DiscrepancyMissingInLocal {
			t.Fatalf("persisted = %+v, want one missing_in_local", *persisted)
		}
	})

	t.Run("local payment without provider record is missing in provider", func(t *testing.T) {
		local := []*model.Payment{settledPayment(t, "pay_1", "pi_1", 1000)}
		uc, _, persisted := reconciliationFixture(local, nil)

		rec, err := uc.Run(ctx, "stripe", day)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if rec.Status != model.ReconciliationStatusPartial {
			t.Errorf("status = %s, want partial", rec.Status)
		}
		if len(*persisted) != 1 || (*persisted)[0].Type != model.DiscrepancyMissingInProvider {
			t.Fatalf("persisted = %+v, want one missing_in_provider", *persisted)
		}
	})

	t.Run("refund drift is a refund mismatch", func(t *testing.T) {
		p := settledPayment(t, "pay_1", "pi_1", 1000)
		remote := []adapter.Transaction{{
			ID: "txn_1", IntentID: "pi_1", Amount: 1000, Currency: "USD",
			Status: "refunded", RefundedAmount: 1000,
		}}
		uc, _, persisted := reconciliationFixture([]*model.Payment{p}, remote)

		rec, err := uc.Run(ctx, "stripe", day)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if rec.Status != model.ReconciliationStatusPartial {
			t.Errorf("status = %s, want partial", rec.Status)
		}
		if len(*persisted) != 1 || (*persisted)[0].Type != model.DiscrepancyRefundMismatch {
			t.Fatalf("persisted = %+v, want one refund_mismatch", *persisted)
		}
	})

	t.Run("provider fetch failure fails the run and persists the message", func(t *testing.T) {
		payments := &mockPaymentRepo{}
		var updated *model.ReconciliationRecord
		records := &mockReconciliationRepo{
			UpdateRecordFunc: func(ctx context.Context, tx repository.Tx, r *model.ReconciliationRecord) error {
				updated = r
				return nil
			},
		}
		router := &mockRouter{
			ListTransactionsFunc: func(ctx context.Context, processorName string, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
				return nil, domain.ErrProcessorUnavailable
			},
		}
		uc := NewReconciliationUseCase(payments, records, router, 100, 10, nopLogger())

		rec, err := uc.Run(ctx, "stripe", day)
		if !errors.Is(err, domain.ErrProcessorUnavailable) {
			t.Fatalf("expected ErrProcessorUnavailable, got %v", err)
		}
		if rec.Status != model.ReconciliationStatusFailed {
			t.Errorf("status = %s, want failed", rec.Status)
		}
		if updated == nil || updated.ErrorMessage == "" {
			t.Error("failed record was not persisted with an error message")
		}
	})

	t.Run("exceeding the page budget fails the run", func(t *testing.T) {
		payments := &mockPaymentRepo{}
		records := &mockReconciliationRepo{}
		router := &mockRouter{
			ListTransactionsFunc: func(ctx context.Context, processorName string, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
				return &adapter.TransactionPage{HasMore: true, NextCursor: "more"}, nil
			},
		}
		uc := NewReconciliationUseCase(payments, records, router, 100, 3, nopLogger())

		rec, err := uc.Run(ctx, "stripe", day)
		if err == nil || !strings.Contains(err.Error(), "page budget") {
			t.Fatalf("expected a page-budget error, got %v", err)
		}
		if rec.Status != model.ReconciliationStatusFailed {
			t.Errorf("status = %s, want failed", rec.Status)
		}
	})

	t.Run("finished run for the day is returned instead of repeated", func(t *testing.T) {
		done := &model.ReconciliationRecord{
			ID: "rec_1", Provider: "stripe", ReconciliationDate: day,
			Status: model.ReconciliationStatusCompleted,
		}
		records := &mockReconciliationRepo{
			FindRecordFunc: func(ctx context.Context, tx repository.Tx, provider string, date time.Time) (*model.ReconciliationRecord, error) {
				return done, nil
			},
		}
		lists := 0
		router := &mockRouter{
			ListTransactionsFunc: func(ctx context.Context, processorName string, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
				lists++
				return &adapter.TransactionPage{}, nil
			},
		}
		uc := NewReconciliationUseCase(&mockPaymentRepo{}, records, router, 100, 10, nopLogger())

		rec, err := uc.Run(ctx, "stripe", day)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if rec != done {
			t.Error("expected the existing record")
		}
		if lists != 0 {
			t.Errorf("provider listings = %d, want 0", lists)
		}
	})
}

func TestReconciliationPagination(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	pages := map[string][]adapter.Transaction{
		"":      {{ID: "txn_1", IntentID: "pi_1", Amount: 100, Currency: "USD", Status: "succeeded"}},
		"txn_1": {{ID: "txn_2", IntentID: "pi_2", Amount: 200, Currency: "USD", Status: "succeeded"}},
	}
	router := &mockRouter{
		ListTransactionsFunc: func(ctx context.Context, processorName string, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
			txns := pages[params.Cursor]
			hasMore := params.Cursor == ""
			page := &adapter.TransactionPage{Transactions: txns, HasMore: hasMore}
			if hasMore {
				page.NextCursor = "txn_1"
			}
			return page, nil
		},
	}
	local := []*model.Payment{
		settledPayment(t, "pay_1", "pi_1", 100),
		settledPayment(t, "pay_2", "pi_2", 200),
	}
	payments := &mockPaymentRepo{
		ListSettledByDayFunc: func(ctx context.Context, tx repository.Tx, provider string, day time.Time) ([]*model.Payment, error) {
			return local, nil
		},
	}
	uc := NewReconciliationUseCase(payments, &mockReconciliationRepo{}, router, 1, 10, nopLogger())

	rec, err := uc.Run(ctx, "stripe", day)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != model.ReconciliationStatusCompleted {
		t.Errorf("status = %s, want completed", rec.Status)
	}
	if rec.MatchedTransactions != 2 {
		t.Errorf("matched = %d, want 2", rec.MatchedTransactions)
	}
}

func TestReconciliationReport(t *testing.T) {
	ctx := context.Background()

	records := &mockReconciliationRepo{
		ListRecordsFunc: func(ctx context.Context, tx repository.Tx, provider string, from, to time.Time) ([]*model.ReconciliationRecord, error) {
			return []*model.ReconciliationRecord{
				{Status: model.ReconciliationStatusCompleted, TotalTransactions: 10, MatchedTransactions: 10, TotalAmountReconciled: 5000},
				{Status: model.ReconciliationStatusPartial, TotalTransactions: 5, MatchedTransactions: 3, DiscrepancyCount: 2, DiscrepancyAmount: 300},
				{Status: model.ReconciliationStatusFailed},
			}, nil
		},
	}
	uc := NewReconciliationUseCase(&mockPaymentRepo{}, records, &mockRouter{}, 100, 10, nopLogger())

	report, err := uc.Report(ctx, "stripe", time.Now().AddDate(0, 0, -7), time.Now())
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Runs != 3 || report.CompletedRuns != 1 || report.PartialRuns != 1 || report.FailedRuns != 1 {
		t.Errorf("run counters = %d/%d/%d/%d", report.Runs, report.CompletedRuns, report.PartialRuns, report.FailedRuns)
	}
	if report.TotalTransactions != 15 || report.MatchedTransactions != 13 {
		t.Errorf("transactions = %d/%d, want 15/13", report.TotalTransactions, report.MatchedTransactions)
	}
	if report.DiscrepancyCount != 2 || report.DiscrepancyAmount != 300 {
		t.Errorf("discrepancies = %d/%d, want 2/300", report.DiscrepancyCount, report.DiscrepancyAmount)
	}
}
