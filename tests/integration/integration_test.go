package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/arenastore/checkout-bff-go/internal/handler"
	"github.com/arenastore/checkout-bff-go/internal/infra/backend"
	"github.com/arenastore/checkout-bff-go/internal/infra/cache"
	"github.com/arenastore/checkout-bff-go/internal/infra/clock"
	"github.com/arenastore/checkout-bff-go/internal/infra/gateway"
	"github.com/arenastore/checkout-bff-go/internal/infra/notify"
	"github.com/arenastore/checkout-bff-go/internal/infra/observability"
	"github.com/arenastore/checkout-bff-go/internal/infra/resilience"
	"github.com/arenastore/checkout-bff-go/internal/infra/sessionstore"
	"github.com/arenastore/checkout-bff-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "integration-test-secret"

// TestIntegration_PixFullFlow spins up mock gateway and backend servers and
// drives the whole PIX purchase over HTTP: open attempt, select method,
// pay, receive the confirmation over the stream, land on the redirect.
func TestIntegration_PixFullFlow(t *testing.T) {
	// --- Mock payment gateway ---
	gatewayServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v3/customers"):
			// buyer already known at the gateway
			writeJSON(w, map[string]any{
				"data": []map[string]string{
					{"id": "cus_integration", "email": "maria@example.com", "cpfCnpj": "52998224725"},
				},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v3/payments":
			writeJSON(w, map[string]string{
				"id":     "pay_integration",
				"status": "PENDING",
				"value":  "40.00",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v3/payments/pay_integration/pixQrCode":
			writeJSON(w, map[string]string{
				"encodedImage": "iVBORintegration",
				"payload":      "00020126integrationpix",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v3/payments/pay_integration/events":
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			flusher := w.(http.Flusher)
			flusher.Flush()
			// confirmation arrives shortly after subscription
			time.Sleep(50 * time.Millisecond)
			fmt.Fprint(w, "data: {\"type\":\"payment_confirmed\",\"chargeId\":\"pay_integration\"}\n\n")
			flusher.Flush()
		default:
			http.NotFound(w, r)
		}
	}))
	defer gatewayServer.Close()

	// --- Mock storefront backend ---
	backendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/rest/v1/items/"):
			writeJSON(w, map[string]any{
				"id":       "itm-integration",
				"name":     "Pacote Digital",
				"kind":     "digital",
				"rl_price": "40.00",
				"stock":    10,
			})
		case strings.HasPrefix(r.URL.Path, "/rest/v1/profiles/"):
			writeJSON(w, map[string]string{
				"buyer_id": "buyer-integration",
				"name":     "Maria Oliveira",
				"email":    "maria@example.com",
				"document": "52998224725",
			})
		case r.URL.Path == "/rest/v1/purchase-guard":
			writeJSON(w, map[string]bool{"allowed": true})
		case r.URL.Path == "/rest/v1/orders":
			writeJSON(w, map[string]string{"orderId": "ord-integration"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer backendServer.Close()

	// --- Build the full stack ---
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cb := resilience.NewCircuitBreaker("integration")
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	gatewayClient := gateway.NewClient(httpClient, gatewayServer.URL, "test-key", cb, cfg,
		cache.New[*domain.PayerRef](time.Minute), metrics, logger)
	streamClient := gateway.NewStreamClient(&http.Client{}, gatewayServer.URL, "test-key", logger)
	backendClient := backend.NewClient(httpClient, backendServer.URL, "test-key", cb, cfg,
		cache.New[*domain.Item](time.Minute), metrics, logger)

	hub := notify.NewHub(logger)

	svc := service.NewCheckoutService(service.Deps{
		Gateway:   gatewayClient,
		Customers: gatewayClient,
		Stream:    streamClient,
		Guard:     backendClient,
		Catalog:   backendClient,
		Profiles:  backendClient,
		Ledger:    backendClient,
		Sessions:  sessionstore.NewMemory(),
		Addresses: &memAddressStore{},
		Notifier:  hub,
		Clock:     clock.NewReal(),
		Validator: service.NewCardValidator(service.ModeSandbox),
		Metrics:   metrics,
		Logger:    logger,
		Timing: service.Timing{
			PixExpiry:        300 * time.Second,
			QRRefreshDelay:   time.Second,
			CardPollInterval: 3 * time.Second,
			CardPollCeiling:  5 * time.Minute,
			RedirectDelay:    20 * time.Millisecond,
		},
		CardEnabled:  true,
		DefaultPhone: "11999999999",
		DefaultCEP:   "01310100",
	})
	defer svc.Shutdown()

	router := handler.NewRouter(handler.RouterDeps{
		Checkout:  svc,
		Hub:       hub,
		Metrics:   metrics,
		Logger:    logger,
		JWTSecret: testSecret,
		Sandbox:   true,
	})

	token := signToken(t, "buyer-integration")

	// --- Open the attempt ---
	var opened domain.AttemptSnapshot
	doJSON(t, router, token, http.MethodPost, "/v1/checkout/attempts",
		map[string]any{"itemId": "itm-integration", "quantity": 1}, http.StatusCreated, &opened)
	if opened.State != domain.StateSelection {
		t.Fatalf("expected selection state, got %s", opened.State)
	}

	base := "/v1/checkout/attempts/" + opened.AttemptID

	// --- Select PIX ---
	var withPix domain.AttemptSnapshot
	doJSON(t, router, token, http.MethodPost, base+"/payment-method",
		map[string]string{"method": "pix"}, http.StatusOK, &withPix)
	if withPix.State != domain.StatePixActive {
		t.Fatalf("expected pix_active, got %s", withPix.State)
	}

	// --- Pay ---
	var paid domain.AttemptSnapshot
	doJSON(t, router, token, http.MethodPost, base+"/pay", map[string]any{}, http.StatusOK, &paid)
	if paid.Pix == nil || paid.Pix.PaymentID != "pay_integration" {
		t.Fatalf("expected pix charge pay_integration, got %+v", paid.Pix)
	}
	if paid.Pix.QRCodeImage != "iVBORintegration" {
		t.Errorf("expected QR image from gateway, got %q", paid.Pix.QRCodeImage)
	}

	// --- Confirmation lands via the stream ---
	deadline := time.Now().Add(3 * time.Second)
	var final domain.AttemptSnapshot
	for time.Now().Before(deadline) {
		doJSON(t, router, token, http.MethodGet, base, nil, http.StatusOK, &final)
		if final.State == domain.StateConfirmed {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if final.State != domain.StateConfirmed {
		t.Fatalf("expected confirmed state, got %s", final.State)
	}
	if final.Redirect == nil || final.Redirect.OrderID != "ord-integration" {
		t.Fatalf("expected redirect to ord-integration, got %+v", final.Redirect)
	}
}

// --- helpers ---

type memAddressStore struct {
	m map[string]*domain.BillingAddress
}

func (s *memAddressStore) Get(buyerID string) (*domain.BillingAddress, error) {
	return s.m[buyerID], nil
}

func (s *memAddressStore) Put(buyerID string, addr *domain.BillingAddress) error {
	if s.m == nil {
		s.m = make(map[string]*domain.BillingAddress)
	}
	s.m[buyerID] = addr
	return nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, router http.Handler, token, method, path string, body any, wantStatus int, out any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d (body: %s)", method, path, wantStatus, rec.Code, rec.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}
