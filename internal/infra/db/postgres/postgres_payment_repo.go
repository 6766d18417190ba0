package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, user_email, amount, currency, refunded_amount, status, method, provider, provider_intent_id, provider_refund_id, description, failure_reason, created_at, updated_at, completed_at, version`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,1);`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.UserEmail,
		p.Amount.MinorUnits(), p.Amount.Currency(), p.RefundedAmount.MinorUnits(),
		p.Status, p.Method, p.Provider, p.ProviderIntentID, p.ProviderRefundID,
		p.Description, p.FailureReason, p.CreatedAt, p.UpdatedAt, p.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	p.Version = 1
	return nil
}

// Update writes the row guarded by the loaded version and bumps it. Zero rows
// affected means a concurrent writer got there first.
func (r *paymentRepo) Update(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
UPDATE payments SET
  refunded_amount=$2, status=$3, provider=$4, provider_intent_id=$5, provider_refund_id=$6,
  failure_reason=$7, updated_at=$8, completed_at=$9, version=version+1
WHERE id=$1 AND version=$10;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.RefundedAmount.MinorUnits(), p.Status, p.Provider, p.ProviderIntentID,
		p.ProviderRefundID, p.FailureReason, p.UpdatedAt, p.CompletedAt, p.Version)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	p.Version++
	return nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	var amount, refunded int64
	var currency string
	if err := row.Scan(&p.ID, &p.UserID, &p.UserEmail, &amount, &currency, &refunded,
		&p.Status, &p.Method, &p.Provider, &p.ProviderIntentID, &p.ProviderRefundID,
		&p.Description, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt, &p.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.Amount = model.RehydrateMoney(amount, currency)
	p.RefundedAmount = model.RehydrateMoney(refunded, currency)
	return p, nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByProviderIntentID(ctx context.Context, tx repository.Tx, provider, intentID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider=$1 AND provider_intent_id=$2 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, provider, intentID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) ListSettledByDay(ctx context.Context, tx repository.Tx, provider string, day time.Time) ([]*model.Payment, error) {
	const q = `
SELECT ` + paymentColumns + ` FROM payments
WHERE provider=$1
  AND status IN ('completed','refunded','partially_refunded')
  AND completed_at >= $2 AND completed_at < $3
ORDER BY completed_at;`

	start := day.UTC().Truncate(24 * time.Hour)
	rows, err := pickRows(ctx, r.pool, tx, q, provider, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
