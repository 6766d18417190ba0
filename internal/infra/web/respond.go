package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"payment-platform/internal/domain"
	"payment-platform/internal/domain/ports/adapter"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeDomainError maps domain errors to HTTP statuses while carrying the
// machine-readable code through to the client.
func writeDomainError(w http.ResponseWriter, err error) {
	var perr *adapter.ProcessorError
	if errors.As(err, &perr) {
		status := http.StatusBadGateway
		switch perr.Category {
		case adapter.CategoryDeclined:
			status = http.StatusPaymentRequired
		case adapter.CategoryInvalidRequest:
			status = http.StatusBadRequest
		case adapter.CategoryRateLimited:
			status = http.StatusTooManyRequests
		case adapter.CategoryUnavailable, adapter.CategoryNetwork:
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, string(perr.Category), "payment provider rejected the request")
		return
	}

	var derr *domain.Error
	if !errors.As(err, &derr) {
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	status := http.StatusConflict
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnsupportedCurrency),
		errors.Is(err, domain.ErrAmountBelowMinimum),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrNegativeResult),
		errors.Is(err, domain.ErrRefundAmountTooLarge):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownProcessor):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAllProcessorsUnavailable),
		errors.Is(err, domain.ErrProcessorUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrOperationFailed),
		errors.Is(err, domain.ErrInvalidExecContext),
		errors.Is(err, domain.ErrReadDatabaseRow):
		status = http.StatusInternalServerError
	}
	writeError(w, status, derr.Code, derr.Message)
}
