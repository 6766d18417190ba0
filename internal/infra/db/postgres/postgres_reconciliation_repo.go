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

var _ repository.ReconciliationRepository = (*reconciliationRepo)(nil)

type reconciliationRepo struct{ pool *pgxpool.Pool }

func NewReconciliationRepo(pool *pgxpool.Pool) *reconciliationRepo {
	return &reconciliationRepo{pool: pool}
}

const reconciliationColumns = `id, provider, reconciliation_date, status, total_transactions, matched_transactions, discrepancy_count, total_amount_reconciled, discrepancy_amount, started_at, completed_at, error_message`

func (r *reconciliationRepo) SaveRecord(ctx context.Context, tx repository.Tx, rec *model.ReconciliationRecord) error {
	const q = `
INSERT INTO reconciliation_records (` + reconciliationColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`

	_, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.Provider, rec.ReconciliationDate, rec.Status,
		rec.TotalTransactions, rec.MatchedTransactions, rec.DiscrepancyCount,
		rec.TotalAmountReconciled, rec.DiscrepancyAmount,
		rec.StartedAt, rec.CompletedAt, rec.ErrorMessage)
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

func (r *reconciliationRepo) UpdateRecord(ctx context.Context, tx repository.Tx, rec *model.ReconciliationRecord) error {
	const q = `
UPDATE reconciliation_records SET
  status=$2, total_transactions=$3, matched_transactions=$4, discrepancy_count=$5,
  total_amount_reconciled=$6, discrepancy_amount=$7, completed_at=$8, error_message=$9
WHERE id=$1;`

	_, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.Status, rec.TotalTransactions, rec.MatchedTransactions,
		rec.DiscrepancyCount, rec.TotalAmountReconciled, rec.DiscrepancyAmount,
		rec.CompletedAt, rec.ErrorMessage)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func scanReconciliationRecord(row pgx.Row) (*model.ReconciliationRecord, error) {
	rec := &model.ReconciliationRecord{}
	if err := row.Scan(&rec.ID, &rec.Provider, &rec.ReconciliationDate, &rec.Status,
		&rec.TotalTransactions, &rec.MatchedTransactions, &rec.DiscrepancyCount,
		&rec.TotalAmountReconciled, &rec.DiscrepancyAmount,
		&rec.StartedAt, &rec.CompletedAt, &rec.ErrorMessage); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return rec, nil
}

func (r *reconciliationRepo) FindRecord(ctx context.Context, tx repository.Tx, provider string, date time.Time) (*model.ReconciliationRecord, error) {
	const q = `SELECT ` + reconciliationColumns + ` FROM reconciliation_records WHERE provider=$1 AND reconciliation_date=$2 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, provider, date.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, err
	}
	return scanReconciliationRecord(row)
}

func (r *reconciliationRepo) ListRecords(ctx context.Context, tx repository.Tx, provider string, from, to time.Time) ([]*model.ReconciliationRecord, error) {
	const q = `
SELECT ` + reconciliationColumns + ` FROM reconciliation_records
WHERE provider=$1 AND reconciliation_date >= $2 AND reconciliation_date <= $3
ORDER BY reconciliation_date DESC;`

	rows, err := pickRows(ctx, r.pool, tx, q, provider, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ReconciliationRecord
	for rows.Next() {
		rec, err := scanReconciliationRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *reconciliationRepo) SaveDiscrepancies(ctx context.Context, tx repository.Tx, ds []*model.Discrepancy) error {
	const q = `
INSERT INTO reconciliation_discrepancies (
  id, record_id, payment_id, external_id, type, local_data, provider_data, description, amount_difference, resolved, resolution
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`

	for _, d := range ds {
		_, err := execSQL(ctx, r.pool, tx, q,
			d.ID, d.RecordID, d.PaymentID, d.ExternalID, d.Type,
			d.LocalData, d.ProviderData, d.Description, d.AmountDifference,
			d.Resolved, d.Resolution)
		if err != nil {
			if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
				return err
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *reconciliationRepo) ListDiscrepancies(ctx context.Context, tx repository.Tx, recordID string) ([]*model.Discrepancy, error) {
	const q = `
SELECT id, record_id, payment_id, external_id, type, local_data, provider_data, description, amount_difference, resolved, resolution
FROM reconciliation_discrepancies WHERE record_id=$1 ORDER BY id;`

	rows, err := pickRows(ctx, r.pool, tx, q, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Discrepancy
	for rows.Next() {
		d := &model.Discrepancy{}
		if err := rows.Scan(&d.ID, &d.RecordID, &d.PaymentID, &d.ExternalID, &d.Type,
			&d.LocalData, &d.ProviderData, &d.Description, &d.AmountDifference,
			&d.Resolved, &d.Resolution); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
