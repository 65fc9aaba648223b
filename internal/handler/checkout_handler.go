package handler

import (
	"encoding/json"
	"net/http"

	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/arenastore/checkout-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Checkout Attempt Handlers
// ============================================================

type openAttemptRequest struct {
	ItemID   string          `json:"itemId"`
	Quantity int             `json:"quantity"`
	Platform domain.Platform `json:"platform,omitempty"`
}

func openAttemptHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout/attempts")
		defer span.End()

		var req openAttemptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ItemID == "" {
			writeError(w, http.StatusBadRequest, "itemId é obrigatório")
			return
		}

		snap, err := svc.OpenAttempt(ctx, BuyerIDFromContext(ctx), req.ItemID, req.Quantity, req.Platform)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, snap)
	}
}

func getAttemptHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/checkout/attempts/{attemptId}")
		defer span.End()

		snap, err := svc.GetAttempt(ctx, chi.URLParam(r, "attemptId"), BuyerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func selectQuantityHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout/attempts/{attemptId}/quantity")
		defer span.End()

		var req quantityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		snap, err := svc.SelectQuantity(ctx, chi.URLParam(r, "attemptId"), BuyerIDFromContext(ctx), req.Quantity)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

type platformRequest struct {
	Platform domain.Platform `json:"platform"`
}

func selectPlatformHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout/attempts/{attemptId}/platform")
		defer span.End()

		var req platformRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		snap, err := svc.SelectPlatform(ctx, chi.URLParam(r, "attemptId"), BuyerIDFromContext(ctx), req.Platform)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

type methodRequest struct {
	Method domain.PaymentMethod `json:"method"`
}

func selectPaymentMethodHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout/attempts/{attemptId}/payment-method")
		defer span.End()

		var req methodRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		snap, err := svc.SelectPaymentMethod(ctx, chi.URLParam(r, "attemptId"), BuyerIDFromContext(ctx), req.Method)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

type payRequest struct {
	Card         *domain.CardForm `json:"card,omitempty"`
	Installments int              `json:"installments,omitempty"`
}

func payHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout/attempts/{attemptId}/pay")
		defer span.End()

		var req payRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		snap, err := svc.Pay(ctx, chi.URLParam(r, "attemptId"), BuyerIDFromContext(ctx), &service.PayRequest{
			Card:         req.Card,
			Installments: req.Installments,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

func regeneratePixHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/checkout/attempts/{attemptId}/pix/regenerate")
		defer span.End()

		snap, err := svc.RegeneratePix(ctx, chi.URLParam(r, "attemptId"), BuyerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

func releaseAttemptHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "DELETE /v1/checkout/attempts/{attemptId}")
		defer span.End()

		if err := svc.Release(chi.URLParam(r, "attemptId"), BuyerIDFromContext(r.Context())); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
