package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arenastore/checkout-bff-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var cardValidation *domain.ErrCardValidation
	var purchaseBlocked *domain.ErrPurchaseBlocked
	var declined *domain.ErrPaymentDeclined
	var invalidCard *domain.ErrInvalidCard
	var methodUnavailable *domain.ErrMethodUnavailable
	var unauthorized *domain.ErrUnauthorized
	var forbidden *domain.ErrForbidden
	var conflict *domain.ErrConflict
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &cardValidation):
		logger.Debug("card form invalid", zap.Int("fields", len(cardValidation.Fields)))
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "dados do cartão inválidos",
			Fields: cardValidation.Fields,
		})
	case errors.As(err, &purchaseBlocked):
		logger.Warn("purchase blocked", zap.String("reason", purchaseBlocked.Reason))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &declined):
		logger.Info("payment declined",
			zap.String("charge_id", declined.ChargeID),
			zap.String("status", string(declined.Status)),
		)
		writeError(w, http.StatusUnprocessableEntity, "Pagamento recusado")
	case errors.As(err, &invalidCard):
		logger.Info("invalid card", zap.String("code", invalidCard.Code))
		writeError(w, http.StatusUnprocessableEntity, "Cartão inválido. Verifique os dados e tente novamente.")
	case errors.As(err, &methodUnavailable):
		logger.Debug("method unavailable", zap.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("state conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "serviço temporariamente indisponível")
	default:
		logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "erro interno")
	}
}
