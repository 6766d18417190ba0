package model

import (
	"time"

	"payment-platform/internal/domain"
)

type ReconciliationStatus string

const (
	ReconciliationStatusPending    ReconciliationStatus = "pending"
	ReconciliationStatusInProgress ReconciliationStatus = "in_progress"
	ReconciliationStatusCompleted  ReconciliationStatus = "completed" // no discrepancies
	ReconciliationStatusPartial    ReconciliationStatus = "partial"   // discrepancies found
	ReconciliationStatusFailed     ReconciliationStatus = "failed"
)

// ReconciliationRecord tracks one reconciliation run for a (provider, date)
// pair against the provider's authoritative records.
type ReconciliationRecord struct {
	ID                    string
	Provider              string
	ReconciliationDate    time.Time // UTC day being reconciled
	Status                ReconciliationStatus
	TotalTransactions     int
	MatchedTransactions   int
	DiscrepancyCount      int
	TotalAmountReconciled int64 // minor units
	DiscrepancyAmount     int64 // minor units, absolute
	StartedAt             time.Time
	CompletedAt           *time.Time
	ErrorMessage          string
}

func NewReconciliationRecord(id, provider string, date time.Time) *ReconciliationRecord {
	return &ReconciliationRecord{
		ID:                 id,
		Provider:           provider,
		ReconciliationDate: date.UTC().Truncate(24 * time.Hour),
		Status:             ReconciliationStatusInProgress,
		StartedAt:          time.Now().UTC(),
	}
}

// Finalize closes the run: Completed with no discrepancies, Partial otherwise.
func (r *ReconciliationRecord) Finalize() {
	now := time.Now().UTC()
	r.CompletedAt = &now
	if r.DiscrepancyCount == 0 {
		r.Status = ReconciliationStatusCompleted
	} else {
		r.Status = ReconciliationStatusPartial
	}
}

func (r *ReconciliationRecord) Fail(msg string) {
	now := time.Now().UTC()
	r.CompletedAt = &now
	r.Status = ReconciliationStatusFailed
	r.ErrorMessage = msg
}

type DiscrepancyType string

const (
	DiscrepancyAmountMismatch    DiscrepancyType = "amount_mismatch"
	DiscrepancyStatusMismatch    DiscrepancyType = "status_mismatch"
	DiscrepancyMissingInProvider DiscrepancyType = "missing_in_provider"
	DiscrepancyMissingInLocal    DiscrepancyType = "missing_in_local"
	DiscrepancyCurrencyMismatch  DiscrepancyType = "currency_mismatch"
	DiscrepancyRefundMismatch    DiscrepancyType = "refund_mismatch"
)

// Discrepancy is an append-mostly audit record produced only during a
// reconciliation run; resolution is a manual, out-of-core operation.
type Discrepancy struct {
	ID               string
	RecordID         string
	PaymentID        string // local payment, if any
	ExternalID       string // provider transaction, if any
	Type             DiscrepancyType
	LocalData        string // JSON snapshot
	ProviderData     string // JSON snapshot
	Description      string
	AmountDifference int64 // minor units, local minus provider
	Resolved         bool
	Resolution       string
}

func NewDiscrepancy(id, recordID string, typ DiscrepancyType, description string) (*Discrepancy, error) {
	if id == "" || recordID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Discrepancy{ID: id, RecordID: recordID, Type: typ, Description: description}, nil
}
