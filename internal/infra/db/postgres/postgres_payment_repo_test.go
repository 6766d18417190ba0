//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/repository"
)

func mustMoney(t *testing.T, minor int64, currency string) model.Money {
	t.Helper()
	m, err := model.NewMoney(minor, currency)
	if err != nil {
		t.Fatalf("money: %v", err)
	}
	return m
}

func newTestPayment(t *testing.T) *model.Payment {
	t.Helper()
	p, err := model.NewPayment(uuid.NewString(), uuid.NewString(), "buyer@example.com",
		mustMoney(t, 2999, "USD"), model.PaymentMethodCard, "pro plan")
	if err != nil {
		t.Fatalf("new payment: %v", err)
	}
	return p
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPaymentRepo(testPool)

	t.Run("save and find round-trip", func(t *testing.T) {
		p := newTestPayment(t)
		p.SetProviderIntent("stripe", "pi_"+uuid.NewString())

		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Amount.MinorUnits() != 2999 || got.Amount.Currency() != "USD" {
			t.Errorf("amount mismatch: %d %s", got.Amount.MinorUnits(), got.Amount.Currency())
		}
		if got.Status != model.PaymentStatusPending || got.Version != 1 {
			t.Errorf("unexpected status/version: %s v%d", got.Status, got.Version)
		}

		byIntent, err := repo.FindByProviderIntentID(ctx, nil, "stripe", p.ProviderIntentID)
		if err != nil {
			t.Fatalf("find by intent: %v", err)
		}
		if byIntent.ID != p.ID {
			t.Errorf("expected %s, got %s", p.ID, byIntent.ID)
		}
	})

	t.Run("update is version guarded", func(t *testing.T) {
		p := newTestPayment(t)
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("save: %v", err)
		}

		if err := p.MarkAsProcessing(); err != nil {
			t.Fatalf("mark processing: %v", err)
		}
		if err := repo.Update(ctx, nil, p); err != nil {
			t.Fatalf("update: %v", err)
		}
		if p.Version != 2 {
			t.Errorf("expected version bump to 2, got %d", p.Version)
		}

		stale := *p
		stale.Version = 1
		if err := repo.Update(ctx, nil, &stale); !errors.Is(err, domain.ErrVersionConflict) {
			t.Errorf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("list settled by day filters status and window", func(t *testing.T) {
		provider := "prov-" + uuid.NewString()[:8]

		settled := newTestPayment(t)
		settled.SetProviderIntent(provider, "pi_"+uuid.NewString())
		if err := repo.Save(ctx, nil, settled); err != nil {
			t.Fatalf("save: %v", err)
		}
		_ = settled.MarkAsProcessing()
		_ = settled.MarkAsCompleted()
		if err := repo.Update(ctx, nil, settled); err != nil {
			t.Fatalf("update: %v", err)
		}

		pending := newTestPayment(t)
		pending.SetProviderIntent(provider, "pi_"+uuid.NewString())
		if err := repo.Save(ctx, nil, pending); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := repo.ListSettledByDay(ctx, nil, provider, time.Now().UTC())
		if err != nil {
			t.Fatalf("list settled: %v", err)
		}
		if len(got) != 1 || got[0].ID != settled.ID {
			t.Errorf("expected only the settled payment, got %d rows", len(got))
		}
	})

	t.Run("find inside a transaction locks the row", func(t *testing.T) {
		p := newTestPayment(t)
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("save: %v", err)
		}
		tm := NewTxManager(testPool)
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			got, err := repo.FindByID(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if err := got.MarkAsProcessing(); err != nil {
				return err
			}
			return repo.Update(ctx, tx, got)
		})
		if err != nil {
			t.Fatalf("tx: %v", err)
		}
		got, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Status != model.PaymentStatusProcessing {
			t.Errorf("expected processing after committed tx, got %s", got.Status)
		}
	})
}
