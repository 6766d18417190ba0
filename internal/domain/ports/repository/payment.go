package repository

import (
	"context"
	"time"

	"payment-platform/internal/domain/model"
)

type PaymentRepository interface {
	// Save inserts a new payment at Version 1.
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	// Update persists a mutation guarded by the loaded Version and bumps it;
	// fails with domain.ErrVersionConflict on concurrent modification.
	Update(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByProviderIntentID(ctx context.Context, tx Tx, provider, intentID string) (*model.Payment, error)
	// ListSettledByDay returns payments for the provider and UTC day with
	// status in {completed, refunded, partially_refunded}, the local side of a
	// reconciliation run.
	ListSettledByDay(ctx context.Context, tx Tx, provider string, day time.Time) ([]*model.Payment, error)
}
