package repository

import (
	"context"
	"time"

	"payment-platform/internal/domain/model"
)

type ReconciliationRepository interface {
	SaveRecord(ctx context.Context, tx Tx, r *model.ReconciliationRecord) error
	UpdateRecord(ctx context.Context, tx Tx, r *model.ReconciliationRecord) error
	FindRecord(ctx context.Context, tx Tx, provider string, date time.Time) (*model.ReconciliationRecord, error)
	ListRecords(ctx context.Context, tx Tx, provider string, from, to time.Time) ([]*model.ReconciliationRecord, error)

	SaveDiscrepancies(ctx context.Context, tx Tx, ds []*model.Discrepancy) error
	ListDiscrepancies(ctx context.Context, tx Tx, recordID string) ([]*model.Discrepancy, error)
}
