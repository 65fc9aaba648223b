package handler

import (
	"net/http"

	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/arenastore/checkout-bff-go/internal/infra/notify"
	"github.com/arenastore/checkout-bff-go/internal/infra/observability"
	"github.com/arenastore/checkout-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// RouterDeps bundles everything the router mounts.
type RouterDeps struct {
	Checkout  *service.CheckoutService
	Hub       *notify.Hub
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	JWTSecret string
	Sandbox   bool
}

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract defined for the storefront frontend.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(d.Logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(d.JWTSecret, d.Logger))

		// =============================================
		// 1. 🛒 Checkout attempts
		// =============================================
		r.Route("/checkout/attempts", func(r chi.Router) {
			r.Post("/", openAttemptHandler(d.Checkout, d.Logger))
			r.Get("/{attemptId}", getAttemptHandler(d.Checkout, d.Logger))
			r.Delete("/{attemptId}", releaseAttemptHandler(d.Checkout, d.Logger))
			r.Post("/{attemptId}/quantity", selectQuantityHandler(d.Checkout, d.Logger))
			r.Post("/{attemptId}/platform", selectPlatformHandler(d.Checkout, d.Logger))
			r.Post("/{attemptId}/payment-method", selectPaymentMethodHandler(d.Checkout, d.Logger))
			r.Post("/{attemptId}/pay", payHandler(d.Checkout, d.Logger))
			r.Post("/{attemptId}/pix/regenerate", regeneratePixHandler(d.Checkout, d.Logger))
			r.Get("/{attemptId}/events", attemptEventsHandler(d.Checkout, d.Hub, d.Logger))
		})

		// =============================================
		// 2. 📊 Métricas
		// GET /v1/metrics/checkout
		// =============================================
		r.Get("/metrics/checkout", checkoutMetricsHandler(d.Metrics, d.Logger))

		// =============================================
		// 🛠 Dev Tools (sandbox only)
		// =============================================
		if d.Sandbox {
			r.Post("/devtools/payments/{chargeId}/confirm", devConfirmChargeHandler(d.Checkout, d.Logger))
		}
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.Health{Status: "ok"})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.Health{Status: "ready"})
	}
}

func checkoutMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/metrics/checkout")
		defer span.End()

		writeJSON(w, http.StatusOK, metrics.GetCheckoutSnapshot())
	}
}
