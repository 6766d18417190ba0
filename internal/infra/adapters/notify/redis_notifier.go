package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"payment-platform/internal/domain/ports/adapter"
	"payment-platform/internal/infra/redis"
	"payment-platform/internal/infra/worker"
)

// Event-bus channels. Downstream consumers (email, ledger export, ops bots)
// subscribe by channel.
const (
	ChannelPaymentCreated   = "payment.created"
	ChannelPaymentCompleted = "payment.completed"
	ChannelPaymentFailed    = "payment.failed"
	ChannelRefundProcessed  = "payment.refund.processed"
	ChannelDisputeAlert     = "payment.dispute.alert"
)

var _ adapter.NotificationService = (*RedisNotifier)(nil)

// RedisNotifier publishes lifecycle events to Redis pub/sub. Publishes go
// through the worker pool so a slow bus never stalls a payment operation;
// a saturated pool drops the event with a warning.
type RedisNotifier struct {
	cli  *redis.Client
	pool *worker.Pool
	log  *zerolog.Logger
}

func NewRedisNotifier(cli *redis.Client, pool *worker.Pool, logger *zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{cli: cli, pool: pool, log: logger}
}

type paymentEvent struct {
	PaymentID     string    `json:"payment_id"`
	UserID        string    `json:"user_id"`
	Email         string    `json:"email,omitempty"`
	Amount        int64     `json:"amount"` // minor units
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason,omitempty"`
	EvidenceDueBy string    `json:"evidence_due_by,omitempty"`
	At            time.Time `json:"at"`
}

func (n *RedisNotifier) publish(channel string, ev paymentEvent) {
	ev.At = time.Now().UTC()
	err := n.pool.Submit(func(ctx context.Context) error {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return n.cli.Publish(pctx, channel, b)
	})
	if err != nil {
		n.log.Warn().Err(err).Str("channel", channel).Str("payment_id", ev.PaymentID).Msg("notification dropped")
	}
}

func (n *RedisNotifier) SendPaymentCreated(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency string) {
	n.publish(ChannelPaymentCreated, paymentEvent{PaymentID: paymentID, UserID: userID, Email: email, Amount: amountMinor, Currency: currency})
}

func (n *RedisNotifier) SendPaymentCompleted(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency string) {
	n.publish(ChannelPaymentCompleted, paymentEvent{PaymentID: paymentID, UserID: userID, Email: email, Amount: amountMinor, Currency: currency})
}

func (n *RedisNotifier) SendPaymentFailed(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency, reason string) {
	n.publish(ChannelPaymentFailed, paymentEvent{PaymentID: paymentID, UserID: userID, Email: email, Amount: amountMinor, Currency: currency, Reason: reason})
}

func (n *RedisNotifier) SendRefundProcessed(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency string) {
	n.publish(ChannelRefundProcessed, paymentEvent{PaymentID: paymentID, UserID: userID, Email: email, Amount: amountMinor, Currency: currency})
}

func (n *RedisNotifier) SendDisputeAlert(ctx context.Context, paymentID, userID, email string, amountMinor int64, currency, evidenceDueBy string) {
	n.publish(ChannelDisputeAlert, paymentEvent{PaymentID: paymentID, UserID: userID, Email: email, Amount: amountMinor, Currency: currency, EvidenceDueBy: evidenceDueBy})
}
