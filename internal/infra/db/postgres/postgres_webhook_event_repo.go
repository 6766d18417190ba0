package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/repository"
)

var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

// webhookEventRepo is the authoritative dedup ledger. The unique constraint on
// (event_id, provider) is what makes Record safe under concurrent deliveries;
// the Redis reservation in front of it is only a fast path.
type webhookEventRepo struct{ pool *pgxpool.Pool }

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

func (r *webhookEventRepo) Record(ctx context.Context, tx repository.Tx, rec *model.WebhookEventRecord) error {
	const q = `INSERT INTO webhook_events (event_id, provider, seen_at) VALUES ($1,$2,$3);`
	_, err := execSQL(ctx, r.pool, tx, q, rec.EventID, rec.Provider, rec.SeenAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *webhookEventRepo) WasProcessed(ctx context.Context, tx repository.Tx, eventID, provider string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id=$1 AND provider=$2);`
	row, err := pickRow(ctx, r.pool, tx, q, eventID, provider)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
