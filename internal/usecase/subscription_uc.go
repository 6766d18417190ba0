package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/adapter"
	"payment-platform/internal/domain/ports/repository"
	"payment-platform/internal/infra/logging"
)

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type CreateSubscriptionParams struct {
	UserID      string
	Email       string
	Name        string
	Amount      model.Money
	Interval    model.BillingInterval
	PriceID     string
	TrialDays   int
	Description string
}

type SubscriptionUseCase interface {
	Create(ctx context.Context, params CreateSubscriptionParams) (*model.Subscription, error)
	Cancel(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*model.Subscription, error)
	// Reactivate undoes a scheduled cancellation or recovers a past-due
	// subscription at the provider.
	Reactivate(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	Pause(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	Resume(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	ChangePlan(ctx context.Context, subscriptionID, priceID string, proration adapter.ProrationPolicy) (*model.Subscription, error)
	Get(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error)
}

type subscriptionUC struct {
	subs   repository.SubscriptionRepository
	router ProcessorRouter
	log    *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, router ProcessorRouter, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{subs: subs, router: router, log: logger}
}

func (u *subscriptionUC) Create(ctx context.Context, params CreateSubscriptionParams) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Create")()

	s, err := model.NewSubscription(uuid.NewString(), params.UserID, params.Email, params.Amount, params.Interval, params.Description)
	if err != nil {
		return nil, err
	}

	psub, processor, err := u.router.CreateSubscription(ctx,
		adapter.CustomerParams{UserID: params.UserID, Email: params.Email, Name: params.Name},
		adapter.SubscriptionParams{
			PriceID:        params.PriceID,
			Amount:         params.Amount,
			Interval:       params.Interval,
			TrialDays:      params.TrialDays,
			Metadata:       map[string]string{adapter.MetadataSubscriptionID: s.ID},
			IdempotencyKey: s.ID,
		})
	if err != nil {
		return nil, err
	}

	s.BindProvider(processor, psub.ID, psub.CustomerID, psub.PriceID)
	if !psub.CurrentPeriodStart.IsZero() && !psub.CurrentPeriodEnd.IsZero() {
		if err := s.UpdatePeriod(psub.CurrentPeriodStart, psub.CurrentPeriodEnd); err != nil {
			return nil, err
		}
	}
	switch psub.Status {
	case "active":
		if err := s.Activate(); err != nil {
			return nil, err
		}
	case "trialing":
		s.Status = model.SubscriptionStatusTrialing
	}

	if err := u.subs.Save(ctx, repository.NoTX, s); err != nil {
		if _, cerr := u.router.CancelSubscription(ctx, processor, psub.ID, false); cerr != nil {
			u.log.Error().Err(cerr).Str("subscription_id", s.ID).Str("provider_subscription_id", psub.ID).
				Msg("failed to cancel orphaned provider subscription after save failure")
		}
		return nil, err
	}
	return s, nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Cancel")()

	s, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !s.CanBeCanceled() {
		return nil, domain.ErrSubscriptionCannotBeCanceled
	}
	if s.ProviderSubscriptionID != "" {
		if _, err := u.router.CancelSubscription(ctx, s.Provider, s.ProviderSubscriptionID, atPeriodEnd); err != nil {
			return nil, err
		}
	}
	if atPeriodEnd {
		err = s.ScheduleCancellation()
	} else {
		err = s.CancelImmediately()
	}
	if err != nil {
		return nil, err
	}
	if err := u.subs.Update(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (u *subscriptionUC) Reactivate(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Reactivate")()

	s, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !s.CanBeReactivated() {
		return nil, domain.ErrSubscriptionCannotReactivate
	}
	if s.ProviderSubscriptionID != "" {
		if _, err := u.router.ReactivateSubscription(ctx, s.Provider, s.ProviderSubscriptionID); err != nil {
			return nil, err
		}
	}
	if err := s.Reactivate(); err != nil {
		return nil, err
	}
	if err := u.subs.Update(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (u *subscriptionUC) Pause(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Pause")()

	s, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if s.Status != model.SubscriptionStatusActive {
		return nil, domain.ErrSubscriptionCannotPause
	}
	if s.ProviderSubscriptionID != "" {
		if _, err := u.router.PauseSubscription(ctx, s.Provider, s.ProviderSubscriptionID); err != nil {
			return nil, err
		}
	}
	if err := s.Pause(); err != nil {
		return nil, err
	}
	if err := u.subs.Update(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (u *subscriptionUC) Resume(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Resume")()

	s, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if s.Status != model.SubscriptionStatusPaused {
		return nil, domain.ErrSubscriptionCannotResume
	}
	if s.ProviderSubscriptionID != "" {
		if _, err := u.router.ResumeSubscription(ctx, s.Provider, s.ProviderSubscriptionID); err != nil {
			return nil, err
		}
	}
	if err := s.Resume(); err != nil {
		return nil, err
	}
	if err := u.subs.Update(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (u *subscriptionUC) ChangePlan(ctx context.Context, subscriptionID, priceID string, proration adapter.ProrationPolicy) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ChangePlan")()

	s, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !s.IsActive() {
		return nil, domain.ErrSubscriptionCannotActivate
	}
	if priceID == "" || priceID == s.ProviderPriceID {
		return s, nil
	}
	psub, err := u.router.UpdateSubscriptionPlan(ctx, s.Provider, s.ProviderSubscriptionID, priceID, proration)
	if err != nil {
		return nil, err
	}
	s.ChangePlan(psub.PriceID)
	if err := u.subs.Update(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (u *subscriptionUC) Get(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	return u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
}

func (u *subscriptionUC) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return u.subs.ListByUser(ctx, repository.NoTX, userID)
}
