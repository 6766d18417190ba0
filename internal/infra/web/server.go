package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"payment-platform/internal/infra/adapters/payment"
	"payment-platform/internal/usecase"
)

// StatusReporter exposes the orchestrator's operational view for the status
// endpoint.
type StatusReporter interface {
	ProcessorStatus() []payment.ProcessorStatus
}

type Server struct {
	paymentUC usecase.PaymentUseCase
	subUC     usecase.SubscriptionUseCase
	webhookUC usecase.WebhookUseCase
	reconUC   usecase.ReconciliationUseCase
	router    usecase.ProcessorRouter
	status    StatusReporter
	auth      *Auth
	log       *zerolog.Logger
}

func NewServer(
	paymentUC usecase.PaymentUseCase,
	subUC usecase.SubscriptionUseCase,
	webhookUC usecase.WebhookUseCase,
	reconUC usecase.ReconciliationUseCase,
	router usecase.ProcessorRouter,
	status StatusReporter,
	auth *Auth,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		paymentUC: paymentUC,
		subUC:     subUC,
		webhookUC: webhookUC,
		reconUC:   reconUC,
		router:    router,
		status:    status,
		auth:      auth,
		log:       logger,
	}
}

// Routes builds the full router: authenticated payment API, unauthenticated
// webhook ingestion, and the health/metrics surface.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/payments", func(r chi.Router) {
		// Webhooks carry their own authentication: the provider signature.
		r.Post("/webhooks/{provider}", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)

			r.Post("/", s.createPayment)
			r.Get("/{id}", s.getPayment)
			r.Post("/{id}/confirm", s.confirmPayment)
			r.Post("/{id}/cancel", s.cancelPayment)
			r.Post("/{id}/refund", s.refundPayment)

			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", s.createSubscription)
				r.Get("/", s.listSubscriptions)
				r.Get("/{id}", s.getSubscription)
				r.Post("/{id}/cancel", s.cancelSubscription)
				r.Post("/{id}/reactivate", s.reactivateSubscription)
				r.Post("/{id}/pause", s.pauseSubscription)
				r.Post("/{id}/resume", s.resumeSubscription)
				r.Post("/{id}/plan", s.changeSubscriptionPlan)
			})

			r.Get("/processors/status", s.processorStatus)

			r.Route("/reconciliation", func(r chi.Router) {
				r.Post("/run", s.runReconciliation)
				r.Get("/report", s.reconciliationReport)
				r.Get("/{recordID}/discrepancies", s.reconciliationDiscrepancies)
			})
		})
	})

	return r
}
