package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/adapter"
	"payment-platform/internal/domain/ports/repository"
	"payment-platform/internal/infra/logging"
	"payment-platform/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type CreatePaymentParams struct {
	UserID      string
	Email       string
	Amount      model.Money
	Method      model.PaymentMethod
	Description string
}

type PaymentUseCase interface {
	// Create orchestrates a provider intent and persists the Pending payment.
	// Returns the payment and the provider's client secret (or redirect URL).
	Create(ctx context.Context, params CreatePaymentParams) (*model.Payment, string, error)
	// Confirm drives the intent to confirmation at the owning processor and
	// applies the synchronous outcome; the webhook remains authoritative.
	Confirm(ctx context.Context, paymentID string) (*model.Payment, error)
	Cancel(ctx context.Context, paymentID string) (*model.Payment, error)
	// Refund refunds the given amount, or the full remaining balance when
	// amount is zero.
	Refund(ctx context.Context, paymentID string, amount model.Money, reason string) (*model.Payment, error)
	Get(ctx context.Context, paymentID string) (*model.Payment, error)
}

type paymentUC struct {
	payments repository.PaymentRepository
	router   ProcessorRouter
	notifier adapter.NotificationService
	log      *zerolog.Logger
}

func NewPaymentUseCase(payments repository.PaymentRepository, router ProcessorRouter, notifier adapter.NotificationService, logger *zerolog.Logger) *paymentUC {
	return &paymentUC{payments: payments, router: router, notifier: notifier, log: logger}
}

func (u *paymentUC) Create(ctx context.Context, params CreatePaymentParams) (*model.Payment, string, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Create")()

	p, err := model.NewPayment(uuid.NewString(), params.UserID, params.Email, params.Amount, params.Method, params.Description)
	if err != nil {
		return nil, "", err
	}

	intent, err := u.router.CreatePaymentIntent(ctx, adapter.CreateIntentParams{
		Amount:         params.Amount,
		Method:         params.Method,
		Description:    params.Description,
		Metadata:       map[string]string{adapter.MetadataPaymentID: p.ID},
		IdempotencyKey: p.ID,
	})
	if err != nil {
		return nil, "", err
	}
	p.SetProviderIntent(intent.Processor, intent.ID)

	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		// Compensate: the intent exists at the provider but we cannot track it.
		if _, cerr := u.router.CancelPaymentIntent(ctx, intent.Processor, intent.ID, p.ID+":compensate"); cerr != nil {
			u.log.Error().Err(cerr).Str("payment_id", p.ID).Str("intent_id", intent.ID).
				Msg("failed to cancel orphaned intent after save failure")
		}
		return nil, "", err
	}

	metrics.IncPayment(string(p.Status))
	u.notifier.SendPaymentCreated(ctx, p.ID, p.UserID, p.UserEmail, p.Amount.MinorUnits(), p.Amount.Currency())
	return p, intent.ClientSecret, nil
}

func (u *paymentUC) Confirm(ctx context.Context, paymentID string) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Confirm")()

	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PaymentStatusCompleted {
		return p, nil
	}
	if !p.CanBeProcessed() && p.Status != model.PaymentStatusProcessing {
		return nil, domain.ErrPaymentNotProcessable
	}

	intent, err := u.router.ConfirmPaymentIntent(ctx, p.Provider, p.ProviderIntentID, p.ID+":confirm")
	if err != nil {
		var perr *adapter.ProcessorError
		if errors.As(err, &perr) && perr.Category == adapter.CategoryDeclined {
			if ferr := p.MarkAsFailed(perr.Code); ferr == nil {
				if uerr := u.payments.Update(ctx, repository.NoTX, p); uerr != nil {
					return nil, uerr
				}
				metrics.IncPayment(string(p.Status))
				u.notifier.SendPaymentFailed(ctx, p.ID, p.UserID, p.UserEmail, p.Amount.MinorUnits(), p.Amount.Currency(), perr.Code)
			}
		}
		return nil, err
	}

	switch intent.Status {
	case adapter.IntentStatusSucceeded:
		if err := p.MarkAsProcessing(); err != nil {
			return nil, err
		}
		if err := p.MarkAsCompleted(); err != nil {
			return nil, err
		}
	case adapter.IntentStatusProcessing, adapter.IntentStatusPending:
		if err := p.MarkAsProcessing(); err != nil {
			return nil, err
		}
	case adapter.IntentStatusCanceled:
		if err := p.Cancel(); err != nil {
			return nil, err
		}
	case adapter.IntentStatusFailed:
		if err := p.MarkAsFailed("provider reported failure"); err != nil {
			return nil, err
		}
	}
	if err := u.payments.Update(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(p.Status))
	if p.Status == model.PaymentStatusCompleted {
		metrics.AddPaymentRevenue(p.Amount.Currency(), p.Amount.MinorUnits())
		u.notifier.SendPaymentCompleted(ctx, p.ID, p.UserID, p.UserEmail, p.Amount.MinorUnits(), p.Amount.Currency())
	}
	return p, nil
}

func (u *paymentUC) Cancel(ctx context.Context, paymentID string) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Cancel")()

	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.CanBeCancelled() {
		return nil, domain.ErrPaymentNotCancellable
	}
	if p.ProviderIntentID != "" {
		if _, err := u.router.CancelPaymentIntent(ctx, p.Provider, p.ProviderIntentID, p.ID+":cancel"); err != nil {
			return nil, err
		}
	}
	if err := p.Cancel(); err != nil {
		return nil, err
	}
	if err := u.payments.Update(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(p.Status))
	return p, nil
}

func (u *paymentUC) Refund(ctx context.Context, paymentID string, amount model.Money, reason string) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Refund")()

	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.CanBeRefunded() {
		return nil, domain.ErrPaymentNotRefundable
	}
	if amount.IsZero() {
		amount = p.RefundableAmount()
	}
	tooLarge, err := amount.GreaterThan(p.RefundableAmount())
	if err != nil {
		return nil, err
	}
	if tooLarge {
		return nil, domain.ErrRefundAmountTooLarge
	}

	// The refunded-so-far balance in the key makes a retried request replay
	// the same provider refund instead of issuing a second one.
	refund, err := u.router.CreateRefund(ctx, p.Provider, adapter.RefundParams{
		IntentID:       p.ProviderIntentID,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: fmt.Sprintf("%s:refund:%d", p.ID, p.RefundedAmount.MinorUnits()),
	})
	if err != nil {
		return nil, err
	}

	if err := p.ProcessRefund(amount); err != nil {
		return nil, err
	}
	p.ProviderRefundID = refund.ID
	if err := u.payments.Update(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	metrics.IncRefund("api")
	u.notifier.SendRefundProcessed(ctx, p.ID, p.UserID, p.UserEmail, amount.MinorUnits(), amount.Currency())
	return p, nil
}

func (u *paymentUC) Get(ctx context.Context, paymentID string) (*model.Payment, error) {
	return u.payments.FindByID(ctx, repository.NoTX, paymentID)
}
