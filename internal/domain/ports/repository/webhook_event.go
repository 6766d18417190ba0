package repository

import (
	"context"

	"payment-platform/internal/domain/model"
)

// WebhookEventRepository is the dedup ledger for provider events. Record must
// be backed by a unique constraint on (event_id, provider) so two concurrent
// deliveries cannot both pass the check.
type WebhookEventRepository interface {
	// Record inserts the dedup record; returns domain.ErrAlreadyExists when
	// the (eventID, provider) pair was recorded before.
	Record(ctx context.Context, tx Tx, rec *model.WebhookEventRecord) error
	WasProcessed(ctx context.Context, tx Tx, eventID, provider string) (bool, error)
}
