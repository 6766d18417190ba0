package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*ResilientProcessor)(nil)

// BreakerConfig tunes the per-operation circuit breakers.
type BreakerConfig struct {
	ErrorRateThreshold float64       // trip when failures/requests reaches this rate
	MinRequests        uint32        // rate is only evaluated after this many requests
	Interval           time.Duration // rolling window for the counts
	ResetTimeout       time.Duration // open -> half-open after this
	CallTimeout        time.Duration // bound on every provider call
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ErrorRateThreshold: 0.5,
		MinRequests:        10,
		Interval:           60 * time.Second,
		ResetTimeout:       30 * time.Second,
		CallTimeout:        15 * time.Second,
	}
}

func (c BreakerConfig) normalized() BreakerConfig {
	if c.ErrorRateThreshold <= 0 || c.ErrorRateThreshold > 1 {
		c.ErrorRateThreshold = 0.5
	}
	if c.MinRequests == 0 {
		c.MinRequests = 10
	}
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	return c
}

// ResilientProcessor decorates one processor with an independent circuit
// breaker per mutating operation. While a breaker is open, calls fail fast
// with domain.ErrProcessorUnavailable without touching the underlying adapter,
// bounding latency during an outage.
type ResilientProcessor struct {
	inner adapter.PaymentProcessor
	cfg   BreakerConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewResilientProcessor(inner adapter.PaymentProcessor, cfg BreakerConfig) *ResilientProcessor {
	return &ResilientProcessor{
		inner:    inner,
		cfg:      cfg.normalized(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (r *ResilientProcessor) Name() string                       { return r.inner.Name() }
func (r *ResilientProcessor) Capabilities() adapter.Capabilities { return r.inner.Capabilities() }

// Unwrap exposes the decorated adapter.
func (r *ResilientProcessor) Unwrap() adapter.PaymentProcessor { return r.inner }

// isCallFailure decides what counts against the breaker: business outcomes
// (declines, invalid requests, guard errors) are not processor failures.
func isCallFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrProcessorCapability) {
		return false
	}
	var perr *adapter.ProcessorError
	if errors.As(err, &perr) {
		return perr.IsTransient()
	}
	return true
}

func (r *ResilientProcessor) breaker(op string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[op]; ok {
		return cb
	}
	cfg := r.cfg
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     r.inner.Name() + ":" + op,
		Interval: cfg.Interval,
		Timeout:  cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.ErrorRateThreshold
		},
		IsSuccessful: func(err error) bool { return !isCallFailure(err) },
	})
	r.breakers[op] = cb
	return cb
}

// BreakerStates reports the current breaker state per operation, for
// operational visibility.
func (r *ResilientProcessor) BreakerStates() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for op, cb := range r.breakers {
		out[op] = cb.State().String()
	}
	return out
}

// Ops returns the known operation names, sorted, for stable status output.
func (r *ResilientProcessor) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]string, 0, len(r.breakers))
	for op := range r.breakers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func (r *ResilientProcessor) do(ctx context.Context, op string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	res, err := r.breaker(op).Execute(func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
		return fn(cctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrProcessorUnavailable, r.inner.Name(), op)
	}
	return res, err
}

func (r *ResilientProcessor) CreatePaymentIntent(ctx context.Context, params adapter.CreateIntentParams) (*adapter.PaymentIntent, error) {
	res, err := r.do(ctx, "create_intent", func(ctx context.Context) (interface{}, error) {
		return r.inner.CreatePaymentIntent(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return res.(*adapter.PaymentIntent), nil
}

func (r *ResilientProcessor) ConfirmPaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	res, err := r.do(ctx, "confirm_intent", func(ctx context.Context) (interface{}, error) {
		return r.inner.ConfirmPaymentIntent(ctx, intentID, idempotencyKey)
	})
	if err != nil {
		return nil, err
	}
	return res.(*adapter.PaymentIntent), nil
}

func (r *ResilientProcessor) CancelPaymentIntent(ctx context.Context, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	res, err := r.do(ctx, "cancel_intent", func(ctx context.Context) (interface{}, error) {
		return r.inner.CancelPaymentIntent(ctx, intentID, idempotencyKey)
	})
	if err != nil {
		return nil, err
	}
	return res.(*adapter.PaymentIntent), nil
}

func (r *ResilientProcessor) GetPaymentIntent(ctx context.Context, intentID string) (*adapter.PaymentIntent, error) {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.inner.GetPaymentIntent(cctx, intentID)
}

func (r *ResilientProcessor) CreateRefund(ctx context.Context, params adapter.RefundParams) (*adapter.Refund, error) {
	res, err := r.do(ctx, "create_refund", func(ctx context.Context) (interface{}, error) {
		return r.inner.CreateRefund(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return res.(*adapter.Refund), nil
}

func (r *ResilientProcessor) CreateCustomer(ctx context.Context, params adapter.CustomerParams) (*adapter.Customer, error) {
	res, err := r.do(ctx, "create_customer", func(ctx context.Context) (interface{}, error) {
		return r.inner.CreateCustomer(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return res.(*adapter.Customer), nil
}

func (r *ResilientProcessor) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	_, err := r.do(ctx, "attach_payment_method", func(ctx context.Context) (interface{}, error) {
		return nil, r.inner.AttachPaymentMethod(ctx, customerID, paymentMethodID)
	})
	return err
}

func (r *ResilientProcessor) doSub(ctx context.Context, op string, fn func(ctx context.Context) (*adapter.ProviderSubscription, error)) (*adapter.ProviderSubscription, error) {
	res, err := r.do(ctx, op, func(ctx context.Context) (interface{}, error) { return fn(ctx) })
	if err != nil {
		return nil, err
	}
	return res.(*adapter.ProviderSubscription), nil
}

func (r *ResilientProcessor) CreateSubscription(ctx context.Context, params adapter.SubscriptionParams) (*adapter.ProviderSubscription, error) {
	return r.doSub(ctx, "create_subscription", func(ctx context.Context) (*adapter.ProviderSubscription, error) {
		return r.inner.CreateSubscription(ctx, params)
	})
}

func (r *ResilientProcessor) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*adapter.ProviderSubscription, error) {
	return r.doSub(ctx, "cancel_subscription", func(ctx context.Context) (*adapter.ProviderSubscription, error) {
		return r.inner.CancelSubscription(ctx, subscriptionID, atPeriodEnd)
	})
}

func (r *ResilientProcessor) UpdateSubscriptionPlan(ctx context.Context, subscriptionID, priceID string, proration adapter.ProrationPolicy) (*adapter.ProviderSubscription, error) {
	return r.doSub(ctx, "update_subscription", func(ctx context.Context) (*adapter.ProviderSubscription, error) {
		return r.inner.UpdateSubscriptionPlan(ctx, subscriptionID, priceID, proration)
	})
}

func (r *ResilientProcessor) PauseSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	return r.doSub(ctx, "pause_subscription", func(ctx context.Context) (*adapter.ProviderSubscription, error) {
		return r.inner.PauseSubscription(ctx, subscriptionID)
	})
}

func (r *ResilientProcessor) ResumeSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	return r.doSub(ctx, "resume_subscription", func(ctx context.Context) (*adapter.ProviderSubscription, error) {
		return r.inner.ResumeSubscription(ctx, subscriptionID)
	})
}

func (r *ResilientProcessor) ReactivateSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	return r.doSub(ctx, "reactivate_subscription", func(ctx context.Context) (*adapter.ProviderSubscription, error) {
		return r.inner.ReactivateSubscription(ctx, subscriptionID)
	})
}

func (r *ResilientProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*adapter.ProviderSubscription, error) {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.inner.GetSubscription(cctx, subscriptionID)
}

func (r *ResilientProcessor) ListSubscriptions(ctx context.Context, customerID string) ([]*adapter.ProviderSubscription, error) {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.inner.ListSubscriptions(cctx, customerID)
}

func (r *ResilientProcessor) ListTransactions(ctx context.Context, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.inner.ListTransactions(cctx, params)
}

func (r *ResilientProcessor) VerifyWebhook(payload []byte, signature string) (*adapter.WebhookEvent, error) {
	return r.inner.VerifyWebhook(payload, signature)
}
