package adapter

import "context"

// NotificationService publishes payment lifecycle events to the event bus.
// Delivery is fire-and-forget and best-effort; implementations log failures
// and never propagate them into the calling use case.
type NotificationService interface {
	SendPaymentCreated(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency string)
	SendPaymentCompleted(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency string)
	SendPaymentFailed(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency, reason string)
	SendRefundProcessed(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency string)
	// SendDisputeAlert is high priority and includes the evidence deadline.
	SendDisputeAlert(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency, evidenceDueBy string)
}
