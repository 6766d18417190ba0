package model

import (
	"time"

	"payment-platform/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"         // first payment not settled yet
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired" // first payment never settled
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
)

type BillingInterval string

const (
	BillingIntervalMonth   BillingInterval = "month"
	BillingIntervalQuarter BillingInterval = "quarter"
	BillingIntervalYear    BillingInterval = "year"
)

// PeriodEnd returns the end of a billing period starting at from.
func (i BillingInterval) PeriodEnd(from time.Time) time.Time {
	switch i {
	case BillingIntervalQuarter:
		return from.AddDate(0, 3, 0)
	case BillingIntervalYear:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// Subscription is a recurring charge agreement mirroring the provider-side
// subscription it is bound to. Period boundaries follow the provider's invoices.
type Subscription struct {
	ID                     string
	UserID                 string
	UserEmail              string
	Status                 SubscriptionStatus
	Interval               BillingInterval
	Amount                 Money
	Description            string
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	Provider               string // processor that owns the provider-side subscription
	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProviderPriceID        string
	CreatedAt              time.Time
	UpdatedAt              time.Time
	Version                int
}

// NewSubscription creates a subscription in Incomplete; it becomes Active when
// the provider reports activation.
func NewSubscription(id, userID, userEmail string, amount Money, interval BillingInterval, description string) (*Subscription, error) {
	if id == "" || userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Subscription{
		ID:                 id,
		UserID:             userID,
		UserEmail:          userEmail,
		Status:             SubscriptionStatusIncomplete,
		Interval:           interval,
		Amount:             amount,
		Description:        description,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   interval.PeriodEnd(now),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (s *Subscription) touch() { s.UpdatedAt = time.Now().UTC() }

func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}

func (s *Subscription) CanBeActivated() bool {
	switch s.Status {
	case SubscriptionStatusIncomplete, SubscriptionStatusTrialing, SubscriptionStatusPastDue, SubscriptionStatusActive:
		return true
	}
	return false
}

// Activate moves the subscription to Active on provider activation or on
// recovery from PastDue. Activating an already-active subscription is a no-op.
func (s *Subscription) Activate() error {
	if s.Status == SubscriptionStatusActive {
		return nil
	}
	if !s.CanBeActivated() {
		return domain.ErrSubscriptionCannotActivate
	}
	s.Status = SubscriptionStatusActive
	s.touch()
	return nil
}

func (s *Subscription) MarkAsPastDue() error {
	if s.Status == SubscriptionStatusPastDue {
		return nil
	}
	if !s.IsActive() {
		return domain.ErrSubscriptionCannotBeCanceled
	}
	s.Status = SubscriptionStatusPastDue
	s.touch()
	return nil
}

// MarkAsUnpaid is the terminal dunning outcome after PastDue.
func (s *Subscription) MarkAsUnpaid() error {
	if s.Status == SubscriptionStatusUnpaid {
		return nil
	}
	if s.Status != SubscriptionStatusPastDue {
		return domain.ErrInvalidArgument
	}
	s.Status = SubscriptionStatusUnpaid
	s.touch()
	return nil
}

func (s *Subscription) MarkAsIncompleteExpired() error {
	if s.Status != SubscriptionStatusIncomplete {
		return domain.ErrInvalidArgument
	}
	s.Status = SubscriptionStatusIncompleteExpired
	s.touch()
	return nil
}

func (s *Subscription) CanBeCanceled() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	}
	return false
}

// ScheduleCancellation cancels at the end of the current period; the status is
// unchanged until the provider reports the actual cancellation.
func (s *Subscription) ScheduleCancellation() error {
	if !s.CanBeCanceled() {
		return domain.ErrSubscriptionCannotBeCanceled
	}
	s.CancelAtPeriodEnd = true
	s.touch()
	return nil
}

// CancelImmediately terminates the subscription now. Cancelling an already
// cancelled subscription is a no-op (webhook redelivery).
func (s *Subscription) CancelImmediately() error {
	if s.Status == SubscriptionStatusCanceled {
		return nil
	}
	now := time.Now().UTC()
	s.Status = SubscriptionStatusCanceled
	s.CanceledAt = &now
	s.CancelAtPeriodEnd = false
	s.touch()
	return nil
}

func (s *Subscription) CanBeReactivated() bool {
	if s.Status == SubscriptionStatusPastDue {
		return true
	}
	return s.Status == SubscriptionStatusCanceled || s.CancelAtPeriodEnd
}

// Reactivate recovers a cancelled or past-due subscription, or undoes a
// scheduled cancellation.
func (s *Subscription) Reactivate() error {
	if !s.CanBeReactivated() {
		return domain.ErrSubscriptionCannotReactivate
	}
	s.Status = SubscriptionStatusActive
	s.CancelAtPeriodEnd = false
	s.CanceledAt = nil
	s.touch()
	return nil
}

func (s *Subscription) Pause() error {
	if s.Status != SubscriptionStatusActive {
		return domain.ErrSubscriptionCannotPause
	}
	s.Status = SubscriptionStatusPaused
	s.touch()
	return nil
}

func (s *Subscription) Resume() error {
	if s.Status != SubscriptionStatusPaused {
		return domain.ErrSubscriptionCannotResume
	}
	s.Status = SubscriptionStatusActive
	s.touch()
	return nil
}

// UpdatePeriod advances the current billing period from an invoice's billing
// window.
func (s *Subscription) UpdatePeriod(start, end time.Time) error {
	if end.Before(start) {
		return domain.ErrInvalidArgument
	}
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = end
	s.touch()
	return nil
}

// BindProvider records the owning processor and its identifiers once known.
func (s *Subscription) BindProvider(provider, subscriptionID, customerID, priceID string) {
	if provider != "" && s.Provider == "" {
		s.Provider = provider
	}
	if subscriptionID != "" && s.ProviderSubscriptionID == "" {
		s.ProviderSubscriptionID = subscriptionID
	}
	if customerID != "" && s.ProviderCustomerID == "" {
		s.ProviderCustomerID = customerID
	}
	if priceID != "" && s.ProviderPriceID == "" {
		s.ProviderPriceID = priceID
	}
	s.touch()
}

// ChangePlan records a provider-confirmed plan switch.
func (s *Subscription) ChangePlan(priceID string) {
	if priceID == "" || priceID == s.ProviderPriceID {
		return
	}
	s.ProviderPriceID = priceID
	s.touch()
}
