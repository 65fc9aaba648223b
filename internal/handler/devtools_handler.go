package handler

import (
	"net/http"

	"github.com/arenastore/checkout-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Dev Tools Handlers (sandbox only)
// ============================================================

// devConfirmChargeHandler injects a payment confirmation for a live
// charge, standing in for the gateway's push notification. Mounted only
// when the validator runs in sandbox mode.
func devConfirmChargeHandler(svc *service.CheckoutService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/devtools/payments/{chargeId}/confirm")
		defer span.End()

		chargeID := chi.URLParam(r, "chargeId")
		if !svc.ConfirmChargeSandbox(chargeID) {
			writeError(w, http.StatusNotFound, "nenhuma cobrança ativa com esse ID")
			return
		}

		logger.Info("sandbox confirmation injected", zap.String("charge_id", chargeID))
		writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed", "chargeId": chargeID})
	}
}
