package payment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/ports/adapter"
	"payment-platform/internal/infra/metrics"
)

// breakerStates is implemented by ResilientProcessor; plain adapters report none.
type breakerStates interface {
	BreakerStates() map[string]string
}

type registration struct {
	proc     adapter.PaymentProcessor
	priority int
	enabled  bool
}

type healthState struct {
	healthy  bool
	markedAt time.Time // when the processor was marked unhealthy
}

// ProcessorStatus is one row of the operational status report.
type ProcessorStatus struct {
	Name          string               `json:"name"`
	Priority      int                  `json:"priority"`
	Enabled       bool                 `json:"enabled"`
	Healthy       bool                 `json:"healthy"`
	Subscriptions bool                 `json:"subscriptions"`
	Breakers      map[string]string    `json:"breakers,omitempty"`
}

// Orchestrator holds the prioritized processor registry, fails over between
// processors on intent creation, and tracks per-processor health with an
// auto-recovery cooldown that is independent of the circuit breakers' own
// state. The registry is read-mostly after startup; health marks are the only
// hot-path writes.
type Orchestrator struct {
	mu       sync.RWMutex
	procs    map[string]*registration
	health   map[string]*healthState
	cooldown time.Duration
	log      *zerolog.Logger
}

func NewOrchestrator(cooldown time.Duration, logger *zerolog.Logger) *Orchestrator {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Orchestrator{
		procs:    make(map[string]*registration),
		health:   make(map[string]*healthState),
		cooldown: cooldown,
		log:      logger,
	}
}

// Register adds a processor under its own name. Registration happens at
// startup, before traffic.
func (o *Orchestrator) Register(proc adapter.PaymentProcessor, priority int, enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	name := proc.Name()
	o.procs[name] = &registration{proc: proc, priority: priority, enabled: enabled}
	o.health[name] = &healthState{healthy: true}
	metrics.SetProcessorHealthy(name, true)
}

func (o *Orchestrator) isHealthyLocked(name string) bool {
	h := o.health[name]
	if h == nil {
		return false
	}
	if h.healthy {
		return true
	}
	return time.Since(h.markedAt) >= o.cooldown
}

func (o *Orchestrator) markUnhealthy(name string) {
	o.mu.Lock()
	if h := o.health[name]; h != nil {
		h.healthy = false
		h.markedAt = time.Now()
	}
	o.mu.Unlock()
	metrics.SetProcessorHealthy(name, false)
}

func (o *Orchestrator) markHealthy(name string) {
	o.mu.Lock()
	if h := o.health[name]; h != nil && !h.healthy {
		h.healthy = true
	}
	o.mu.Unlock()
	metrics.SetProcessorHealthy(name, true)
}

// candidates returns enabled, healthy processors sorted ascending by priority.
func (o *Orchestrator) candidates(needSubscriptions bool) []*registration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*registration, 0, len(o.procs))
	for name, reg := range o.procs {
		if !reg.enabled || !o.isHealthyLocked(name) {
			continue
		}
		if needSubscriptions && !reg.proc.Capabilities().Subscriptions {
			continue
		}
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}

func (o *Orchestrator) byName(name string) (adapter.PaymentProcessor, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	reg, ok := o.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProcessor, name)
	}
	return reg.proc, nil
}

// CreatePaymentIntent tries each candidate in priority order, marking a
// failing processor unhealthy and moving on. The returned intent is annotated
// with the serving processor's name so follow-up calls route back to it.
func (o *Orchestrator) CreatePaymentIntent(ctx context.Context, params adapter.CreateIntentParams) (*adapter.PaymentIntent, error) {
	cands := o.candidates(false)
	if len(cands) == 0 {
		return nil, domain.ErrAllProcessorsUnavailable
	}
	var lastErr error
	for _, reg := range cands {
		name := reg.proc.Name()
		intent, err := reg.proc.CreatePaymentIntent(ctx, params)
		if err != nil {
			lastErr = err
			o.markUnhealthy(name)
			metrics.IncFailover(name)
			o.log.Warn().Err(err).Str("processor", name).Msg("create intent failed, failing over")
			continue
		}
		o.markHealthy(name)
		intent.Processor = name
		return intent, nil
	}
	return nil, fmt.Errorf("%w: last error: %v", domain.ErrAllProcessorsUnavailable, lastErr)
}

// CreateSubscription fails over across subscription-capable processors. The
// customer is created at the same processor that will own the subscription.
func (o *Orchestrator) CreateSubscription(ctx context.Context, custParams adapter.CustomerParams, subParams adapter.SubscriptionParams) (*adapter.ProviderSubscription, string, error) {
	cands := o.candidates(true)
	if len(cands) == 0 {
		return nil, "", domain.ErrAllProcessorsUnavailable
	}
	var lastErr error
	for _, reg := range cands {
		name := reg.proc.Name()
		params := subParams
		if params.CustomerID == "" {
			cust, err := reg.proc.CreateCustomer(ctx, custParams)
			if err != nil {
				lastErr = err
				o.markUnhealthy(name)
				metrics.IncFailover(name)
				o.log.Warn().Err(err).Str("processor", name).Msg("create customer failed, failing over")
				continue
			}
			params.CustomerID = cust.ID
		}
		sub, err := reg.proc.CreateSubscription(ctx, params)
		if err != nil {
			lastErr = err
			o.markUnhealthy(name)
			metrics.IncFailover(name)
			o.log.Warn().Err(err).Str("processor", name).Msg("create subscription failed, failing over")
			continue
		}
		o.markHealthy(name)
		return sub, name, nil
	}
	return nil, "", fmt.Errorf("%w: last error: %v", domain.ErrAllProcessorsUnavailable, lastErr)
}

// Targeted calls route back to the processor that served the intent.

func (o *Orchestrator) ConfirmPaymentIntent(ctx context.Context, processorName, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	return proc.ConfirmPaymentIntent(ctx, intentID, idempotencyKey)
}

func (o *Orchestrator) CancelPaymentIntent(ctx context.Context, processorName, intentID, idempotencyKey string) (*adapter.PaymentIntent, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	return proc.CancelPaymentIntent(ctx, intentID, idempotencyKey)
}

func (o *Orchestrator) GetPaymentIntent(ctx context.Context, processorName, intentID string) (*adapter.PaymentIntent, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	return proc.GetPaymentIntent(ctx, intentID)
}

func (o *Orchestrator) CreateRefund(ctx context.Context, processorName string, params adapter.RefundParams) (*adapter.Refund, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	if !proc.Capabilities().Refunds {
		return nil, fmt.Errorf("%w: %s cannot refund", domain.ErrProcessorCapability, processorName)
	}
	return proc.CreateRefund(ctx, params)
}

func (o *Orchestrator) CancelSubscription(ctx context.Context, processorName, subscriptionID string, atPeriodEnd bool) (*adapter.ProviderSubscription, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	return proc.CancelSubscription(ctx, subscriptionID, atPeriodEnd)
}

func (o *Orchestrator) UpdateSubscriptionPlan(ctx context.Context, processorName, subscriptionID, priceID string, proration adapter.ProrationPolicy) (*adapter.ProviderSubscription, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	return proc.UpdateSubscriptionPlan(ctx, subscriptionID, priceID, proration)
}

func (o *Orchestrator) PauseSubscription(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	return proc.PauseSubscription(ctx, subscriptionID)
}

func (o *Orchestrator) ResumeSubscription(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	return proc.ResumeSubscription(ctx, subscriptionID)
}

func (o *Orchestrator) ReactivateSubscription(ctx context.Context, processorName, subscriptionID string) (*adapter.ProviderSubscription, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	return proc.ReactivateSubscription(ctx, subscriptionID)
}

func (o *Orchestrator) VerifyWebhook(processorName string, payload []byte, signature string) (*adapter.WebhookEvent, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	event, err := proc.VerifyWebhook(payload, signature)
	if err != nil {
		return nil, err
	}
	event.Provider = processorName
	return event, nil
}

func (o *Orchestrator) ListTransactions(ctx context.Context, processorName string, params adapter.ListTransactionsParams) (*adapter.TransactionPage, error) {
	proc, err := o.byName(processorName)
	if err != nil {
		return nil, err
	}
	if !proc.Capabilities().TransactionListing {
		return nil, fmt.Errorf("%w: %s cannot list transactions", domain.ErrProcessorCapability, processorName)
	}
	return proc.ListTransactions(ctx, params)
}

// ProcessorNames returns every registered processor name, sorted by priority.
func (o *Orchestrator) ProcessorNames() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	type np struct {
		name string
		prio int
	}
	rows := make([]np, 0, len(o.procs))
	for name, reg := range o.procs {
		rows = append(rows, np{name, reg.priority})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].prio < rows[j].prio })
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.name
	}
	return names
}

// ProcessorStatus reports priority, availability and breaker state for every
// registered processor. Used for operational visibility, not business logic.
func (o *Orchestrator) ProcessorStatus() []ProcessorStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ProcessorStatus, 0, len(o.procs))
	for name, reg := range o.procs {
		st := ProcessorStatus{
			Name:          name,
			Priority:      reg.priority,
			Enabled:       reg.enabled,
			Healthy:       o.isHealthyLocked(name),
			Subscriptions: reg.proc.Capabilities().Subscriptions,
		}
		if bs, ok := reg.proc.(breakerStates); ok {
			st.Breakers = bs.BreakerStates()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
