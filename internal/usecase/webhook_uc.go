package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/adapter"
	"payment-platform/internal/domain/ports/repository"
	"payment-platform/internal/infra/logging"
	"payment-platform/internal/infra/metrics"
)

// WebhookOutcome classifies what a delivery did; the HTTP boundary always
// acknowledges regardless, so the outcome exists for metrics and logs.
type WebhookOutcome string

const (
	OutcomeProcessed WebhookOutcome = "processed"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeUnhandled WebhookOutcome = "unhandled"
	OutcomeFailed    WebhookOutcome = "failed"
)

// DedupGuard is the short-lived reservation protecting concurrent deliveries
// of the same event between the ledger check and the ledger insert. The
// webhook_events unique constraint remains the durable dedup authority; the
// guard only narrows the race window, so its failures are tolerated.
type DedupGuard interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

var _ WebhookUseCase = (*webhookUC)(nil)

type WebhookUseCase interface {
	// Process applies one verified provider event effectively-once. Transient
	// failures return OutcomeFailed with the error so the provider's retry can
	// succeed later; everything else, unrecoverable cases included, is marked
	// processed.
	Process(ctx context.Context, event *adapter.WebhookEvent) (WebhookOutcome, error)
}

type webhookUC struct {
	payments repository.PaymentRepository
	subs     repository.SubscriptionRepository
	events   repository.WebhookEventRepository
	tm       repository.TransactionManager
	guard    DedupGuard
	notifier adapter.NotificationService
	dedupTTL time.Duration
	log      *zerolog.Logger
}

func NewWebhookUseCase(
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	events repository.WebhookEventRepository,
	tm repository.TransactionManager,
	guard DedupGuard,
	notifier adapter.NotificationService,
	dedupTTL time.Duration,
	logger *zerolog.Logger,
) *webhookUC {
	if dedupTTL <= 0 {
		dedupTTL = 5 * time.Minute
	}
	return &webhookUC{
		payments: payments,
		subs:     subs,
		events:   events,
		tm:       tm,
		guard:    guard,
		notifier: notifier,
		dedupTTL: dedupTTL,
		log:      logger,
	}
}

func (u *webhookUC) Process(ctx context.Context, event *adapter.WebhookEvent) (WebhookOutcome, error) {
	defer logging.TraceDuration(u.log, "WebhookUC.Process")()
	started := time.Now()
	outcome, err := u.process(ctx, event)
	metrics.ObserveWebhook(event.Provider, event.Type, string(outcome), time.Since(started))
	if outcome == OutcomeDuplicate {
		metrics.IncWebhookDuplicate(event.Provider)
	}
	return outcome, err
}

func (u *webhookUC) process(ctx context.Context, event *adapter.WebhookEvent) (WebhookOutcome, error) {
	log := u.log.With().Str("provider", event.Provider).Str("event_id", event.ID).Str("event_type", event.Type).Logger()

	seen, err := u.events.WasProcessed(ctx, repository.NoTX, event.ID, event.Provider)
	if err != nil {
		return OutcomeFailed, err
	}
	if seen {
		log.Debug().Msg("duplicate webhook delivery ignored")
		return OutcomeDuplicate, nil
	}

	// Reservation fails open: the ledger's unique constraint still catches
	// the duplicate inside the transaction below.
	reservationKey := event.Provider + ":" + event.ID
	token, err := u.guard.Reserve(ctx, reservationKey, u.dedupTTL)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			log.Debug().Msg("concurrent delivery holds the event reservation")
			return OutcomeDuplicate, nil
		}
		log.Warn().Err(err).Msg("event reservation unavailable, relying on ledger constraint")
		token = ""
	}

	outcome := OutcomeProcessed
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var herr error
		outcome, herr = u.dispatch(ctx, tx, event, &log)
		if herr != nil {
			return herr
		}
		return u.events.Record(ctx, tx, model.NewWebhookEventRecord(event.ID, event.Provider))
	})
	if err != nil {
		if token != "" {
			if rerr := u.guard.Release(ctx, reservationKey, token); rerr != nil {
				log.Warn().Err(rerr).Msg("failed to release event reservation")
			}
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Another delivery recorded the event first; our mutations rolled
			// back with the transaction.
			return OutcomeDuplicate, nil
		}
		log.Error().Err(err).Msg("webhook processing failed")
		return OutcomeFailed, err
	}
	return outcome, nil
}

func (u *webhookUC) dispatch(ctx context.Context, tx repository.Tx, event *adapter.WebhookEvent, log *zerolog.Logger) (WebhookOutcome, error) {
	switch {
	case event.Intent != nil:
		return u.handleIntent(ctx, tx, event, log)
	case event.Subscription != nil:
		return u.handleSubscription(ctx, tx, event, log)
	case event.Invoice != nil:
		return u.handleInvoice(ctx, tx, event, log)
	case event.Dispute != nil:
		return u.handleDispute(ctx, tx, event, log)
	case event.Charge != nil:
		return u.handleCharge(ctx, tx, event, log)
	}
	log.Info().Msg("unhandled webhook event type")
	return OutcomeUnhandled, nil
}

// findPayment resolves the event's payment by the metadata-carried id when
// present, falling back to the provider intent id.
func (u *webhookUC) findPayment(ctx context.Context, tx repository.Tx, provider, paymentID, intentID string) (*model.Payment, error) {
	if paymentID != "" {
		return u.payments.FindByID(ctx, tx, paymentID)
	}
	if intentID != "" {
		return u.payments.FindByProviderIntentID(ctx, tx, provider, intentID)
	}
	return nil, domain.ErrNotFound
}

func (u *webhookUC) handleIntent(ctx context.Context, tx repository.Tx, event *adapter.WebhookEvent, log *zerolog.Logger) (WebhookOutcome, error) {
	data := event.Intent
	p, err := u.findPayment(ctx, tx, event.Provider, data.PaymentID, data.IntentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Permanently unrecoverable; mark processed so the provider stops
			// redelivering.
			log.Warn().Str("intent_id", data.IntentID).Msg("intent event for unknown payment")
			return OutcomeProcessed, nil
		}
		return OutcomeFailed, err
	}
	p.SetProviderIntent(event.Provider, data.IntentID)

	var terr error
	switch event.Type {
	case "payment_intent.succeeded":
		if p.Status == model.PaymentStatusPending {
			if terr = p.MarkAsProcessing(); terr != nil {
				break
			}
		}
		terr = p.MarkAsCompleted()
	case "payment_intent.payment_failed":
		terr = p.MarkAsFailed(data.FailureReason)
	case "payment_intent.canceled":
		terr = p.Cancel()
	default:
		log.Info().Msg("unhandled payment_intent event")
		return OutcomeUnhandled, nil
	}
	if terr != nil {
		// State-guard refusals are out-of-order or repeated deliveries; the
		// guards make them safe to drop.
		log.Info().Err(terr).Str("payment_id", p.ID).Str("status", string(p.Status)).
			Msg("intent event rejected by payment state machine")
		return OutcomeProcessed, nil
	}

	if err := u.payments.Update(ctx, tx, p); err != nil {
		return OutcomeFailed, err
	}
	metrics.IncPayment(string(p.Status))
	switch p.Status {
	case model.PaymentStatusCompleted:
		metrics.AddPaymentRevenue(p.Amount.Currency(), p.Amount.MinorUnits())
		u.notifier.SendPaymentCompleted(ctx, p.ID, p.UserID, p.UserEmail, p.Amount.MinorUnits(), p.Amount.Currency())
	case model.PaymentStatusFailed:
		u.notifier.SendPaymentFailed(ctx, p.ID, p.UserID, p.UserEmail, p.Amount.MinorUnits(), p.Amount.Currency(), p.FailureReason)
	}
	return OutcomeProcessed, nil
}

func (u *webhookUC) handleSubscription(ctx context.Context, tx repository.Tx, event *adapter.WebhookEvent, log *zerolog.Logger) (WebhookOutcome, error) {
	data := event.Subscription
	s, err := u.subs.FindByProviderSubscriptionID(ctx, tx, data.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("provider_subscription_id", data.SubscriptionID).Msg("subscription event for unknown subscription")
			return OutcomeProcessed, nil
		}
		return OutcomeFailed, err
	}

	if !data.CurrentPeriodStart.IsZero() && !data.CurrentPeriodEnd.IsZero() {
		if err := s.UpdatePeriod(data.CurrentPeriodStart, data.CurrentPeriodEnd); err != nil {
			log.Info().Err(err).Msg("ignoring invalid billing period on subscription event")
		}
	}
	s.CancelAtPeriodEnd = data.CancelAtPeriodEnd

	var terr error
	switch {
	case event.Type == "customer.subscription.deleted":
		terr = s.CancelImmediately()
	case data.Status == "active", data.Status == "trialing":
		terr = s.Activate()
	case data.Status == "past_due":
		terr = s.MarkAsPastDue()
	case data.Status == "unpaid":
		terr = s.MarkAsUnpaid()
	case data.Status == "canceled":
		terr = s.CancelImmediately()
	case data.Status == "paused":
		terr = s.Pause()
	case data.Status == "incomplete_expired":
		terr = s.MarkAsIncompleteExpired()
	}
	if terr != nil {
		log.Info().Err(terr).Str("subscription_id", s.ID).Str("status", string(s.Status)).
			Msg("subscription event rejected by state machine")
		return OutcomeProcessed, nil
	}
	s.ChangePlan(data.PriceID)

	if err := u.subs.Update(ctx, tx, s); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeProcessed, nil
}

func (u *webhookUC) handleInvoice(ctx context.Context, tx repository.Tx, event *adapter.WebhookEvent, log *zerolog.Logger) (WebhookOutcome, error) {
	data := event.Invoice
	s, err := u.subs.FindByProviderSubscriptionID(ctx, tx, data.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("provider_subscription_id", data.SubscriptionID).Msg("invoice event for unknown subscription")
			return OutcomeProcessed, nil
		}
		return OutcomeFailed, err
	}

	switch event.Type {
	case "invoice.payment_succeeded", "invoice.paid":
		if !data.PeriodStart.IsZero() && !data.PeriodEnd.IsZero() {
			if err := s.UpdatePeriod(data.PeriodStart, data.PeriodEnd); err != nil {
				log.Info().Err(err).Msg("ignoring invalid billing period on invoice")
			}
		}
		if err := s.Activate(); err != nil {
			log.Info().Err(err).Str("subscription_id", s.ID).Msg("invoice activation rejected by state machine")
		}
		if err := u.subs.Update(ctx, tx, s); err != nil {
			return OutcomeFailed, err
		}
		return u.recordInvoicePayment(ctx, tx, event, s, log)
	case "invoice.payment_failed":
		if err := s.MarkAsPastDue(); err != nil {
			log.Info().Err(err).Str("subscription_id", s.ID).Msg("past-due transition rejected by state machine")
			return OutcomeProcessed, nil
		}
		if err := u.subs.Update(ctx, tx, s); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeProcessed, nil
	}
	log.Info().Msg("unhandled invoice event")
	return OutcomeUnhandled, nil
}

// recordInvoicePayment materializes an invoice-driven subscription charge as a
// completed Payment so it stays refundable and reconcilable like any direct
// charge. Zero-amount invoices (trials) and invoices whose intent already has
// a Payment are skipped.
func (u *webhookUC) recordInvoicePayment(ctx context.Context, tx repository.Tx, event *adapter.WebhookEvent, s *model.Subscription, log *zerolog.Logger) (WebhookOutcome, error) {
	data := event.Invoice
	if data.AmountPaid == 0 {
		return OutcomeProcessed, nil
	}
	if data.IntentID != "" {
		if _, err := u.payments.FindByProviderIntentID(ctx, tx, event.Provider, data.IntentID); err == nil {
			return OutcomeProcessed, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return OutcomeFailed, err
		}
	}

	amount := model.RehydrateMoney(data.AmountPaid, data.Currency)
	p, err := model.NewPayment(uuid.NewString(), s.UserID, s.UserEmail, amount, model.PaymentMethodCard, "subscription charge "+data.InvoiceID)
	if err != nil {
		return OutcomeFailed, err
	}
	p.SetProviderIntent(event.Provider, data.IntentID)
	if err := p.MarkAsProcessing(); err != nil {
		return OutcomeFailed, err
	}
	if err := p.MarkAsCompleted(); err != nil {
		return OutcomeFailed, err
	}
	if err := u.payments.Save(ctx, tx, p); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return OutcomeProcessed, nil
		}
		return OutcomeFailed, err
	}
	log.Info().Str("payment_id", p.ID).Str("invoice_id", data.InvoiceID).Msg("recorded invoice-driven payment")
	metrics.IncPayment(string(p.Status))
	metrics.AddPaymentRevenue(amount.Currency(), amount.MinorUnits())
	u.notifier.SendPaymentCompleted(ctx, p.ID, p.UserID, p.UserEmail, amount.MinorUnits(), amount.Currency())
	return OutcomeProcessed, nil
}

// handleCharge applies dashboard-issued refunds from charge.refunded events.
// The provider reports the cumulative refunded amount, so the delta against
// our balance is what remains to apply; API-issued refunds were already
// applied before their event arrives and produce a zero delta.
func (u *webhookUC) handleCharge(ctx context.Context, tx repository.Tx, event *adapter.WebhookEvent, log *zerolog.Logger) (WebhookOutcome, error) {
	data := event.Charge
	if event.Type != "charge.refunded" {
		log.Info().Msg("unhandled charge event")
		return OutcomeUnhandled, nil
	}
	p, err := u.payments.FindByProviderIntentID(ctx, tx, event.Provider, data.IntentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("intent_id", data.IntentID).Msg("refund event for unknown payment")
			return OutcomeProcessed, nil
		}
		return OutcomeFailed, err
	}

	delta := data.AmountRefunded - p.RefundedAmount.MinorUnits()
	if delta <= 0 {
		return OutcomeProcessed, nil
	}
	if err := p.ProcessRefund(model.RehydrateMoney(delta, data.Currency)); err != nil {
		log.Info().Err(err).Str("payment_id", p.ID).Msg("refund event rejected by payment state machine")
		return OutcomeProcessed, nil
	}
	if data.RefundID != "" {
		p.ProviderRefundID = data.RefundID
	}
	if err := u.payments.Update(ctx, tx, p); err != nil {
		return OutcomeFailed, err
	}
	metrics.IncRefund("webhook")
	u.notifier.SendRefundProcessed(ctx, p.ID, p.UserID, p.UserEmail, delta, p.Amount.Currency())
	return OutcomeProcessed, nil
}

func (u *webhookUC) handleDispute(ctx context.Context, tx repository.Tx, event *adapter.WebhookEvent, log *zerolog.Logger) (WebhookOutcome, error) {
	data := event.Dispute
	p, err := u.payments.FindByProviderIntentID(ctx, tx, event.Provider, data.IntentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("intent_id", data.IntentID).Msg("dispute event for unknown payment")
			return OutcomeProcessed, nil
		}
		return OutcomeFailed, err
	}
	if err := p.MarkAsDisputed(); err != nil {
		log.Info().Err(err).Str("payment_id", p.ID).Msg("dispute event rejected by payment state machine")
		return OutcomeProcessed, nil
	}
	if err := u.payments.Update(ctx, tx, p); err != nil {
		return OutcomeFailed, err
	}
	metrics.IncPayment(string(p.Status))
	u.notifier.SendDisputeAlert(ctx, p.ID, p.UserID, p.UserEmail, data.Amount, data.Currency, data.EvidenceDueBy.UTC().Format(time.RFC3339))
	return OutcomeProcessed, nil
}
