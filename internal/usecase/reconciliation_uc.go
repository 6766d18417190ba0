package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/adapter"
	"payment-platform/internal/domain/ports/repository"
	"payment-platform/internal/infra/logging"
	"payment-platform/internal/infra/metrics"
)

var _ ReconciliationUseCase = (*reconciliationUC)(nil)

// ReconciliationReport aggregates finished runs over a date range.
type ReconciliationReport struct {
	Provider              string
	From                  time.Time
	To                    time.Time
	Runs                  int
	CompletedRuns         int
	PartialRuns           int
	FailedRuns            int
	TotalTransactions     int
	MatchedTransactions   int
	DiscrepancyCount      int
	TotalAmountReconciled int64
	DiscrepancyAmount     int64
}

type ReconciliationUseCase interface {
	// Run reconciles one provider against one UTC day. A finished run for the
	// same (provider, day) is returned as-is instead of being repeated.
	Run(ctx context.Context, provider string, day time.Time) (*model.ReconciliationRecord, error)
	Report(ctx context.Context, provider string, from, to time.Time) (*ReconciliationReport, error)
	Discrepancies(ctx context.Context, recordID string) ([]*model.Discrepancy, error)
}

type reconciliationUC struct {
	payments repository.PaymentRepository
	records  repository.ReconciliationRepository
	router   ProcessorRouter
	pageSize int
	maxPages int
	log      *zerolog.Logger
}

func NewReconciliationUseCase(
	payments repository.PaymentRepository,
	records repository.ReconciliationRepository,
	router ProcessorRouter,
	pageSize, maxPages int,
	logger *zerolog.Logger,
) *reconciliationUC {
	if pageSize <= 0 {
		pageSize = 100
	}
	if maxPages <= 0 {
		maxPages = 200
	}
	return &reconciliationUC{
		payments: payments,
		records:  records,
		router:   router,
		pageSize: pageSize,
		maxPages: maxPages,
		log:      logger,
	}
}

func (u *reconciliationUC) Run(ctx context.Context, provider string, day time.Time) (*model.ReconciliationRecord, error) {
	defer logging.TraceDuration(u.log, "ReconciliationUC.Run")()
	started := time.Now()

	day = day.UTC().Truncate(24 * time.Hour)
	log := u.log.With().Str("provider", provider).Str("day", day.Format("2006-01-02")).Logger()

	existing, err := u.records.FindRecord(ctx, repository.NoTX, provider, day)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status != model.ReconciliationStatusFailed {
		log.Info().Str("record_id", existing.ID).Str("status", string(existing.Status)).
			Msg("reconciliation already ran for this day")
		return existing, nil
	}

	rec := model.NewReconciliationRecord(ulid.Make().String(), provider, day)
	if existing != nil {
		// Retry of a failed run keeps the original record identity.
		rec.ID = existing.ID
		if err := u.records.UpdateRecord(ctx, repository.NoTX, rec); err != nil {
			return nil, err
		}
	} else if err := u.records.SaveRecord(ctx, repository.NoTX, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Concurrent trigger won the insert.
			return u.records.FindRecord(ctx, repository.NoTX, provider, day)
		}
		return nil, err
	}

	discrepancies, runErr := u.reconcile(ctx, rec, day, &log)
	if runErr != nil {
		rec.Fail(runErr.Error())
		metrics.ObserveReconciliationRun(provider, string(rec.Status), time.Since(started))
		if err := u.records.UpdateRecord(ctx, repository.NoTX, rec); err != nil {
			log.Error().Err(err).Msg("failed to persist failed reconciliation record")
		}
		return rec, runErr
	}

	if len(discrepancies) > 0 {
		if err := u.records.SaveDiscrepancies(ctx, repository.NoTX, discrepancies); err != nil {
			rec.Fail(err.Error())
			metrics.ObserveReconciliationRun(provider, string(rec.Status), time.Since(started))
			if uerr := u.records.UpdateRecord(ctx, repository.NoTX, rec); uerr != nil {
				log.Error().Err(uerr).Msg("failed to persist failed reconciliation record")
			}
			return rec, err
		}
	}
	rec.Finalize()
	if err := u.records.UpdateRecord(ctx, repository.NoTX, rec); err != nil {
		return nil, err
	}
	metrics.ObserveReconciliationRun(provider, string(rec.Status), time.Since(started))
	for _, d := range discrepancies {
		metrics.IncDiscrepancy(provider, string(d.Type))
	}
	log.Info().Str("record_id", rec.ID).Str("status", string(rec.Status)).
		Int("total", rec.TotalTransactions).Int("matched", rec.MatchedTransactions).
		Int("discrepancies", rec.DiscrepancyCount).Msg("reconciliation run finished")
	return rec, nil
}

func (u *reconciliationUC) reconcile(ctx context.Context, rec *model.ReconciliationRecord, day time.Time, log *zerolog.Logger) ([]*model.Discrepancy, error) {
	local, err := u.payments.ListSettledByDay(ctx, repository.NoTX, rec.Provider, day)
	if err != nil {
		return nil, fmt.Errorf("list local payments: %w", err)
	}

	remote, err := u.fetchProviderTransactions(ctx, rec.Provider, day)
	if err != nil {
		return nil, fmt.Errorf("list provider transactions: %w", err)
	}
	byIntent := make(map[string]adapter.Transaction, len(remote))
	for _, txn := range remote {
		byIntent[txn.IntentID] = txn
	}

	var ds []*model.Discrepancy
	for _, p := range local {
		rec.TotalTransactions++
		txn, ok := byIntent[p.ProviderIntentID]
		if !ok || p.ProviderIntentID == "" {
			ds = append(ds, u.newDiscrepancy(rec, p, nil, model.DiscrepancyMissingInProvider,
				fmt.Sprintf("payment %s has no provider transaction", p.ID)))
			continue
		}
		delete(byIntent, p.ProviderIntentID)

		switch {
		case txn.Currency != p.Amount.Currency():
			d := u.newDiscrepancy(rec, p, &txn, model.DiscrepancyCurrencyMismatch,
				fmt.Sprintf("local currency %s, provider currency %s", p.Amount.Currency(), txn.Currency))
			ds = append(ds, d)
		case txn.Amount != p.Amount.MinorUnits():
			d := u.newDiscrepancy(rec, p, &txn, model.DiscrepancyAmountMismatch,
				fmt.Sprintf("local amount %d, provider amount %d", p.Amount.MinorUnits(), txn.Amount))
			d.AmountDifference = p.Amount.MinorUnits() - txn.Amount
			ds = append(ds, d)
		case txn.RefundedAmount != p.RefundedAmount.MinorUnits():
			d := u.newDiscrepancy(rec, p, &txn, model.DiscrepancyRefundMismatch,
				fmt.Sprintf("local refunded %d, provider refunded %d", p.RefundedAmount.MinorUnits(), txn.RefundedAmount))
			d.AmountDifference = p.RefundedAmount.MinorUnits() - txn.RefundedAmount
			ds = append(ds, d)
		default:
			rec.MatchedTransactions++
			rec.TotalAmountReconciled += p.Amount.MinorUnits()
		}
	}

	// Whatever the local pass did not claim has no ledger entry on our side.
	for _, txn := range byIntent {
		if txn.Status != "succeeded" && txn.Status != "refunded" {
			continue
		}
		rec.TotalTransactions++
		d := u.newDiscrepancy(rec, nil, &txn, model.DiscrepancyMissingInLocal,
			fmt.Sprintf("provider transaction %s has no local payment", txn.ID))
		d.AmountDifference = -txn.Amount
		ds = append(ds, d)
	}

	rec.DiscrepancyCount = len(ds)
	for _, d := range ds {
		if d.AmountDifference < 0 {
			rec.DiscrepancyAmount += -d.AmountDifference
		} else {
			rec.DiscrepancyAmount += d.AmountDifference
		}
	}
	return ds, nil
}

func (u *reconciliationUC) fetchProviderTransactions(ctx context.Context, provider string, day time.Time) ([]adapter.Transaction, error) {
	var (
		out    []adapter.Transaction
		cursor string
	)
	for page := 0; ; page++ {
		if page >= u.maxPages {
			return nil, fmt.Errorf("provider listing exceeded the %d-page budget", u.maxPages)
		}
		tp, err := u.router.ListTransactions(ctx, provider, adapter.ListTransactionsParams{
			Day:    day,
			Cursor: cursor,
			Limit:  u.pageSize,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, tp.Transactions...)
		if !tp.HasMore {
			return out, nil
		}
		cursor = tp.NextCursor
	}
}

func (u *reconciliationUC) newDiscrepancy(rec *model.ReconciliationRecord, p *model.Payment, txn *adapter.Transaction, typ model.DiscrepancyType, desc string) *model.Discrepancy {
	d, _ := model.NewDiscrepancy(ulid.Make().String(), rec.ID, typ, desc)
	if p != nil {
		d.PaymentID = p.ID
		snap, _ := json.Marshal(map[string]any{
			"id":              p.ID,
			"status":          p.Status,
			"amount":          p.Amount.MinorUnits(),
			"currency":        p.Amount.Currency(),
			"refunded_amount": p.RefundedAmount.MinorUnits(),
			"intent_id":       p.ProviderIntentID,
		})
		d.LocalData = string(snap)
	}
	if txn != nil {
		d.ExternalID = txn.ID
		snap, _ := json.Marshal(txn)
		d.ProviderData = string(snap)
	}
	return d
}

func (u *reconciliationUC) Report(ctx context.Context, provider string, from, to time.Time) (*ReconciliationReport, error) {
	defer logging.TraceDuration(u.log, "ReconciliationUC.Report")()

	records, err := u.records.ListRecords(ctx, repository.NoTX, provider, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	report := &ReconciliationReport{Provider: provider, From: from.UTC(), To: to.UTC()}
	for _, r := range records {
		report.Runs++
		switch r.Status {
		case model.ReconciliationStatusCompleted:
			report.CompletedRuns++
		case model.ReconciliationStatusPartial:
			report.PartialRuns++
		case model.ReconciliationStatusFailed:
			report.FailedRuns++
		}
		report.TotalTransactions += r.TotalTransactions
		report.MatchedTransactions += r.MatchedTransactions
		report.DiscrepancyCount += r.DiscrepancyCount
		report.TotalAmountReconciled += r.TotalAmountReconciled
		report.DiscrepancyAmount += r.DiscrepancyAmount
	}
	return report, nil
}

func (u *reconciliationUC) Discrepancies(ctx context.Context, recordID string) ([]*model.Discrepancy, error) {
	return u.records.ListDiscrepancies(ctx, repository.NoTX, recordID)
}
