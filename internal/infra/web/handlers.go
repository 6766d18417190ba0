package web

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"payment-platform/internal/domain/model"
	"payment-platform/internal/domain/ports/adapter"
	"payment-platform/internal/infra/logging"
	"payment-platform/internal/usecase"
)

// webhookBodyLimit bounds provider payloads; Stripe events stay well under it.
const webhookBodyLimit = 1 << 20

type paymentResponse struct {
	ID             string      `json:"id"`
	Status         string      `json:"status"`
	Amount         model.Money `json:"amount"`
	RefundedAmount model.Money `json:"refunded_amount"`
	Method         string      `json:"method"`
	Provider       string      `json:"provider,omitempty"`
	Description    string      `json:"description,omitempty"`
	FailureReason  string      `json:"failure_reason,omitempty"`
	ClientSecret   string      `json:"client_secret,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

func toPaymentResponse(p *model.Payment, clientSecret string) paymentResponse {
	return paymentResponse{
		ID:             p.ID,
		Status:         string(p.Status),
		Amount:         p.Amount,
		RefundedAmount: p.RefundedAmount,
		Method:         string(p.Method),
		Provider:       p.Provider,
		Description:    p.Description,
		FailureReason:  p.FailureReason,
		ClientSecret:   clientSecret,
		CreatedAt:      p.CreatedAt,
		CompletedAt:    p.CompletedAt,
	}
}

type subscriptionResponse struct {
	ID                 string      `json:"id"`
	Status             string      `json:"status"`
	Interval           string      `json:"interval"`
	Amount             model.Money `json:"amount"`
	Provider           string      `json:"provider,omitempty"`
	CurrentPeriodStart time.Time   `json:"current_period_start"`
	CurrentPeriodEnd   time.Time   `json:"current_period_end"`
	CancelAtPeriodEnd  bool        `json:"cancel_at_period_end"`
	CanceledAt         *time.Time  `json:"canceled_at,omitempty"`
}

func toSubscriptionResponse(s *model.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                 s.ID,
		Status:             string(s.Status),
		Interval:           string(s.Interval),
		Amount:             s.Amount,
		Provider:           s.Provider,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         s.CanceledAt,
	}
}

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}
	var req struct {
		Amount      model.Money `json:"amount"`
		Method      string      `json:"method"`
		Description string      `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	method := model.PaymentMethod(req.Method)
	if method == "" {
		method = model.PaymentMethodCard
	}
	p, secret, err := s.paymentUC.Create(r.Context(), usecase.CreatePaymentParams{
		UserID:      principal.UserID,
		Email:       principal.Email,
		Amount:      req.Amount,
		Method:      method,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(p, secret))
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.paymentUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p, ""))
}

func (s *Server) confirmPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.paymentUC.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p, ""))
}

func (s *Server) cancelPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.paymentUC.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p, ""))
}

func (s *Server) refundPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount *model.Money `json:"amount"`
		Reason string       `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
	}
	var amount model.Money
	if req.Amount != nil {
		amount = *req.Amount
	}
	p, err := s.paymentUC.Refund(r.Context(), chi.URLParam(r, "id"), amount, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p, ""))
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}
	var req struct {
		Amount      model.Money `json:"amount"`
		Interval    string      `json:"interval"`
		PriceID     string      `json:"price_id"`
		TrialDays   int         `json:"trial_days"`
		Name        string      `json:"name"`
		Description string      `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	interval := model.BillingInterval(req.Interval)
	if interval == "" {
		interval = model.BillingIntervalMonth
	}
	sub, err := s.subUC.Create(r.Context(), usecase.CreateSubscriptionParams{
		UserID:      principal.UserID,
		Email:       principal.Email,
		Name:        req.Name,
		Amount:      req.Amount,
		Interval:    interval,
		PriceID:     req.PriceID,
		TrialDays:   req.TrialDays,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}
	subs, err := s.subUC.ListByUser(r.Context(), principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		items = append(items, toSubscriptionResponse(sub))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AtPeriodEnd bool `json:"at_period_end"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
	}
	sub, err := s.subUC.Cancel(r.Context(), chi.URLParam(r, "id"), req.AtPeriodEnd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (s *Server) reactivateSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.Reactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (s *Server) pauseSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (s *Server) resumeSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (s *Server) changeSubscriptionPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PriceID   string `json:"price_id"`
		Proration string `json:"proration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	proration := adapter.ProrationPolicy(req.Proration)
	if proration == "" {
		proration = adapter.ProrationCreateProrations
	}
	sub, err := s.subUC.ChangePlan(r.Context(), chi.URLParam(r, "id"), req.PriceID, proration)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

type reconciliationRecordResponse struct {
	ID                    string     `json:"id"`
	Provider              string     `json:"provider"`
	Date                  string     `json:"date"`
	Status                string     `json:"status"`
	TotalTransactions     int        `json:"total_transactions"`
	MatchedTransactions   int        `json:"matched_transactions"`
	DiscrepancyCount      int        `json:"discrepancy_count"`
	TotalAmountReconciled int64      `json:"total_amount_reconciled"`
	DiscrepancyAmount     int64      `json:"discrepancy_amount"`
	StartedAt             time.Time  `json:"started_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`
}

func toReconciliationResponse(r *model.ReconciliationRecord) reconciliationRecordResponse {
	return reconciliationRecordResponse{
		ID:                    r.ID,
		Provider:              r.Provider,
		Date:                  r.ReconciliationDate.Format("2006-01-02"),
		Status:                string(r.Status),
		TotalTransactions:     r.TotalTransactions,
		MatchedTransactions:   r.MatchedTransactions,
		DiscrepancyCount:      r.DiscrepancyCount,
		TotalAmountReconciled: r.TotalAmountReconciled,
		DiscrepancyAmount:     r.DiscrepancyAmount,
		StartedAt:             r.StartedAt,
		CompletedAt:           r.CompletedAt,
		ErrorMessage:          r.ErrorMessage,
	}
}

type discrepancyResponse struct {
	ID               string `json:"id"`
	RecordID         string `json:"record_id"`
	Type             string `json:"type"`
	PaymentID        string `json:"payment_id,omitempty"`
	ExternalID       string `json:"external_id,omitempty"`
	Description      string `json:"description"`
	AmountDifference int64  `json:"amount_difference"`
	Resolved         bool   `json:"resolved"`
	Resolution       string `json:"resolution,omitempty"`
}

// handleWebhook verifies and processes a provider delivery. Internal failures
// are acknowledged with 200 anyway so the provider does not retry-storm; only
// a signature mismatch is rejected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	ctx := logging.WithProvider(r.Context(), provider)
	log := logging.With(ctx, s.log)

	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		log.Warn().Err(err).Msg("failed to read webhook body")
		writeError(w, http.StatusBadRequest, "invalid_body", "unreadable body")
		return
	}
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		signature = r.Header.Get("X-Signature")
	}

	event, err := s.router.VerifyWebhook(provider, payload, signature)
	if err != nil {
		log.Warn().Err(err).Msg("webhook rejected")
		writeError(w, http.StatusBadRequest, "webhook_rejected", "verification failed")
		return
	}

	outcome, err := s.webhookUC.Process(ctx, event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("webhook processing failed, acknowledging anyway")
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func (s *Server) processorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"processors": s.status.ProcessorStatus()})
}

func (s *Server) runReconciliation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
		Date     string `json:"date"` // YYYY-MM-DD, defaults to yesterday
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "provider is required")
		return
	}
	day := time.Now().UTC().AddDate(0, 0, -1)
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	rec, err := s.reconUC.Run(r.Context(), req.Provider, day)
	if err != nil {
		if rec != nil {
			// The failed record carries the error context for the operator.
			writeJSON(w, http.StatusBadGateway, toReconciliationResponse(rec))
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationResponse(rec))
}

func (s *Server) reconciliationReport(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "provider is required")
		return
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "from must be YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "to must be YYYY-MM-DD")
			return
		}
		to = parsed
	}
	report, err := s.reconUC.Report(r.Context(), provider, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) reconciliationDiscrepancies(w http.ResponseWriter, r *http.Request) {
	ds, err := s.reconUC.Discrepancies(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items := make([]discrepancyResponse, 0, len(ds))
	for _, d := range ds {
		items = append(items, discrepancyResponse{
			ID:               d.ID,
			RecordID:         d.RecordID,
			Type:             string(d.Type),
			PaymentID:        d.PaymentID,
			ExternalID:       d.ExternalID,
			Description:      d.Description,
			AmountDifference: d.AmountDifference,
			Resolved:         d.Resolved,
			Resolution:       d.Resolution,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
