package domain

import "fmt"

// Error is a business-rule violation carrying a machine-readable code.
// The sentinels below are compared with errors.Is; wrap with %w to add context.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

var (
	// Common domain errors
	ErrNotFound        = &Error{"not_found", "entity not found"}
	ErrAlreadyExists   = &Error{"already_exists", "entity already exists"}
	ErrInvalidArgument = &Error{"invalid_argument", "invalid argument"}
	ErrVersionConflict = &Error{"version_conflict", "entity was modified concurrently"}

	// Money
	ErrUnsupportedCurrency = &Error{"unsupported_currency", "currency is not supported"}
	ErrAmountBelowMinimum  = &Error{"amount_below_minimum", "amount is below the minimum chargeable amount"}
	ErrCurrencyMismatch    = &Error{"currency_mismatch", "operation requires equal currencies"}
	ErrNegativeResult      = &Error{"negative_result", "operation would produce a negative amount"}

	// Payment state machine
	ErrPaymentNotProcessable = &Error{"payment_not_processable", "payment cannot enter processing"}
	ErrPaymentNotCompletable = &Error{"payment_not_completable", "payment cannot be completed"}
	ErrPaymentNotCancellable = &Error{"payment_not_cancellable", "payment cannot be cancelled"}
	ErrPaymentNotRefundable  = &Error{"payment_not_refundable", "payment cannot be refunded"}
	ErrPaymentNotDisputable  = &Error{"payment_not_disputable", "payment cannot be disputed"}
	ErrRefundAmountTooLarge  = &Error{"refund_amount_too_large", "refund exceeds the remaining refundable balance"}

	// Subscription state machine
	ErrSubscriptionCannotActivate   = &Error{"subscription_cannot_activate", "subscription cannot be activated"}
	ErrSubscriptionCannotBeCanceled = &Error{"subscription_cannot_be_canceled", "subscription cannot be cancelled"}
	ErrSubscriptionCannotReactivate = &Error{"subscription_cannot_reactivate", "subscription cannot be reactivated"}
	ErrSubscriptionCannotPause      = &Error{"subscription_cannot_pause", "subscription cannot be paused"}
	ErrSubscriptionCannotResume     = &Error{"subscription_cannot_resume", "subscription cannot be resumed"}

	// Processor orchestration
	ErrProcessorUnavailable     = &Error{"processor_unavailable", "processor circuit is open"}
	ErrAllProcessorsUnavailable = &Error{"all_processors_unavailable", "no processor could serve the request"}
	ErrUnknownProcessor         = &Error{"unknown_processor", "processor is not registered"}
	ErrProcessorCapability      = &Error{"processor_capability", "processor does not support this operation"}

	// Webhooks
	ErrWebhookSignature = &Error{"webhook_signature", "webhook signature verification failed"}

	// Persistence
	ErrOperationFailed    = &Error{"operation_failed", "storage operation failed"}
	ErrInvalidExecContext = &Error{"invalid_exec_context", "invalid transaction executor"}
	ErrReadDatabaseRow    = &Error{"read_row_failed", "failed to read database row"}
)
