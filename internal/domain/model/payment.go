package model

import (
	"time"

	"payment-platform/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"            // created locally, no provider outcome yet
	PaymentStatusProcessing        PaymentStatus = "processing"         // intent confirmed, awaiting provider result
	PaymentStatusCompleted         PaymentStatus = "completed"          // provider reported success
	PaymentStatusFailed            PaymentStatus = "failed"             // provider reported failure
	PaymentStatusCancelled         PaymentStatus = "cancelled"          // cancelled before completion
	PaymentStatusRefunded          PaymentStatus = "refunded"           // fully refunded
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded" // partially refunded
	PaymentStatusDisputed          PaymentStatus = "disputed"           // chargeback raised through the card network
)

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodWallet       PaymentMethod = "wallet"
)

// Payment records one charge against a user, driven to its terminal state by
// provider webhooks and the explicit refund flow. Version is bumped by the
// repository on every persisted mutation for optimistic-concurrency detection.
type Payment struct {
	ID               string
	UserID           string
	UserEmail        string
	Amount           Money
	RefundedAmount   Money
	Status           PaymentStatus
	Method           PaymentMethod
	Provider         string // processor that served the intent; routes confirm/cancel/refund
	ProviderIntentID string
	ProviderRefundID string
	Description      string
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	Version          int
}

// NewPayment creates a payment in Pending with a zero refunded balance in the
// same currency.
func NewPayment(id, userID, userEmail string, amount Money, method PaymentMethod, description string) (*Payment, error) {
	if id == "" || userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Payment{
		ID:             id,
		UserID:         userID,
		UserEmail:      userEmail,
		Amount:         amount,
		RefundedAmount: RehydrateMoney(0, amount.Currency()),
		Status:         PaymentStatusPending,
		Method:         method,
		Description:    description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (p *Payment) touch() { p.UpdatedAt = time.Now().UTC() }

// SetProviderIntent records the provider intent id at most once; repeated calls
// are no-ops so webhook redelivery cannot clobber it.
func (p *Payment) SetProviderIntent(provider, intentID string) {
	if p.ProviderIntentID != "" {
		return
	}
	p.Provider = provider
	p.ProviderIntentID = intentID
	p.touch()
}

func (p *Payment) CanBeProcessed() bool {
	return p.Status == PaymentStatusPending
}

func (p *Payment) MarkAsProcessing() error {
	if p.Status == PaymentStatusProcessing {
		return nil
	}
	if !p.CanBeProcessed() {
		return domain.ErrPaymentNotProcessable
	}
	p.Status = PaymentStatusProcessing
	p.touch()
	return nil
}

// MarkAsCompleted is idempotent: webhook delivery is at-least-once, so repeated
// calls after completion are no-ops and CompletedAt is set exactly once.
func (p *Payment) MarkAsCompleted() error {
	if p.Status == PaymentStatusCompleted {
		return nil
	}
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusProcessing {
		return domain.ErrPaymentNotCompletable
	}
	now := time.Now().UTC()
	p.Status = PaymentStatusCompleted
	p.CompletedAt = &now
	p.touch()
	return nil
}

func (p *Payment) MarkAsFailed(reason string) error {
	if p.Status == PaymentStatusFailed {
		return nil
	}
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusProcessing {
		return domain.ErrPaymentNotCompletable
	}
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.touch()
	return nil
}

func (p *Payment) CanBeCancelled() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusProcessing
}

func (p *Payment) Cancel() error {
	if !p.CanBeCancelled() {
		return domain.ErrPaymentNotCancellable
	}
	p.Status = PaymentStatusCancelled
	p.touch()
	return nil
}

func (p *Payment) CanBeRefunded() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusPartiallyRefunded
}

// RefundableAmount is the balance still open for refunding.
func (p *Payment) RefundableAmount() Money {
	rem, err := p.Amount.Subtract(p.RefundedAmount)
	if err != nil {
		return RehydrateMoney(0, p.Amount.Currency())
	}
	return rem
}

// ProcessRefund applies a refund to the payment. Refunding the exact remaining
// balance transitions to Refunded, any smaller amount to PartiallyRefunded.
// Repeating an exact full refund after the payment is already Refunded is a
// no-op (at-least-once webhook delivery).
func (p *Payment) ProcessRefund(amount Money) error {
	if p.Status == PaymentStatusRefunded {
		if amount.Equals(p.Amount) {
			return nil
		}
		return domain.ErrPaymentNotRefundable
	}
	if !p.CanBeRefunded() {
		return domain.ErrPaymentNotRefundable
	}
	tooLarge, err := amount.GreaterThan(p.RefundableAmount())
	if err != nil {
		return err
	}
	if tooLarge {
		return domain.ErrRefundAmountTooLarge
	}
	refunded, err := p.RefundedAmount.Add(amount)
	if err != nil {
		return err
	}
	p.RefundedAmount = refunded
	if p.RefundedAmount.Equals(p.Amount) {
		p.Status = PaymentStatusRefunded
	} else {
		p.Status = PaymentStatusPartiallyRefunded
	}
	p.touch()
	return nil
}

// MarkAsDisputed moves a settled payment to Disputed on an external dispute
// signal. The refundable balance is untouched.
func (p *Payment) MarkAsDisputed() error {
	if p.Status == PaymentStatusDisputed {
		return nil
	}
	if p.Status != PaymentStatusCompleted && p.Status != PaymentStatusPartiallyRefunded {
		return domain.ErrPaymentNotDisputable
	}
	p.Status = PaymentStatusDisputed
	p.touch()
	return nil
}
