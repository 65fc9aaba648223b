// Package gateway adapts the payment provider's REST API to the
// PaymentGateway and CustomerDirectory ports. All calls go through the
// shared circuit breaker and retry policy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/arenastore/checkout-bff-go/internal/infra/observability"
	"github.com/arenastore/checkout-bff-go/internal/infra/resilience"
	"github.com/arenastore/checkout-bff-go/internal/port"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("infra/gateway")

// Client talks to the payment gateway REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
	payerCache port.Cache[*domain.PayerRef]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewClient creates a gateway client. Resolved payers are cached so a
// buyer who retries a payment does not hit the customer API again.
func NewClient(
	httpClient *http.Client,
	baseURL, apiKey string,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	payerCache port.Cache[*domain.PayerRef],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Client {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
		bulkhead:   resilience.NewBulkhead(maxConcurrency),
		payerCache: payerCache,
		metrics:    metrics,
		logger:     logger,
	}
}

// ---- wire types ----

type paymentResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Value       string `json:"value"`
	InvoiceURL  string `json:"invoiceUrl"`
	Description string `json:"description"`
}

type pixQRResponse struct {
	EncodedImage string `json:"encodedImage"`
	Payload      string `json:"payload"`
}

type customerResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	CPFCNPJ string `json:"cpfCnpj"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type apiError struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

// invalidCardCodes are gateway error codes meaning the card data itself is
// bad. The card flow must fail immediately on these instead of polling.
var invalidCardCodes = map[string]bool{
	"invalid_creditCard":     true,
	"invalid_creditCardInfo": true,
	"expired_creditCard":     true,
}

func mapStatus(s string) domain.ChargeStatus {
	switch s {
	case "CONFIRMED":
		return domain.ChargeConfirmed
	case "RECEIVED", "RECEIVED_IN_CASH":
		return domain.ChargeReceived
	case "REFUSED":
		return domain.ChargeRefused
	case "CANCELLED", "REFUNDED":
		return domain.ChargeCancelled
	default:
		return domain.ChargePending
	}
}

// do executes one authenticated request behind the bulkhead, with retry
// and circuit breaking, decoding a 2xx body into out. Gateway error
// bodies become typed errors.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer c.bulkhead.Release()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var reader *bytes.Reader
			if body != nil {
				raw, err := json.Marshal(body)
				if err != nil {
					return err
				}
				reader = bytes.NewReader(raw)
			} else {
				reader = bytes.NewReader(nil)
			}

			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("access_token", c.apiKey)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return &domain.ErrNotFound{Resource: "gateway_resource", ID: path}
			}
			if resp.StatusCode >= 400 {
				var apiErr apiError
				if decErr := json.NewDecoder(resp.Body).Decode(&apiErr); decErr == nil && len(apiErr.Errors) > 0 {
					first := apiErr.Errors[0]
					if invalidCardCodes[first.Code] {
						return &domain.ErrInvalidCard{Code: first.Code, Message: first.Description}
					}
					return fmt.Errorf("gateway error [%s]: %s", first.Code, first.Description)
				}
				return fmt.Errorf("gateway returned status %d", resp.StatusCode)
			}

			if out == nil {
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(out)
		})
	})
	return err
}

// CreateCharge creates a PIX or credit-card charge. For PIX the QR code is
// fetched right after creation; a missing QR image is not an error here,
// the flow schedules its own single re-fetch.
func (c *Client) CreateCharge(ctx context.Context, chargeReq *domain.ChargeRequest) (*domain.Charge, error) {
	ctx, span := tracer.Start(ctx, "GatewayClient.CreateCharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.method", string(chargeReq.Method)),
		attribute.String("payment.value", chargeReq.Amount.StringFixed(2)),
	)

	payload := map[string]any{
		"customer":          chargeReq.CustomerID,
		"value":             chargeReq.Amount.StringFixed(2),
		"description":       chargeReq.Description,
		"externalReference": chargeReq.Metadata["attemptId"],
	}
	switch chargeReq.Method {
	case domain.MethodPix:
		payload["billingType"] = "PIX"
	case domain.MethodCreditCard:
		payload["billingType"] = "CREDIT_CARD"
		if chargeReq.Installments > 1 {
			payload["installmentCount"] = chargeReq.Installments
		}
		card := chargeReq.Card
		payload["creditCard"] = map[string]string{
			"holderName": card.HolderName,
			"number":     card.Number,
			"expiry":     card.Expiry,
			"ccv":        card.CVV,
		}
		payload["creditCardHolderInfo"] = map[string]string{
			"name":          card.HolderName,
			"cpfCnpj":       card.Document,
			"phone":         card.Phone,
			"address":       card.Address.Line1,
			"complement":    card.Address.Line2,
			"city":          card.Address.City,
			"state":         card.Address.State,
			"postalCode":    card.Address.PostalCode,
		}
	default:
		return nil, &domain.ErrValidation{Field: "method", Message: "unsupported payment method"}
	}

	var created paymentResponse
	if err := c.do(ctx, http.MethodPost, "/v3/payments", payload, &created); err != nil {
		var invalid *domain.ErrInvalidCard
		if errors.As(err, &invalid) {
			return nil, invalid
		}
		return nil, &domain.ErrExternalService{Service: "gateway", Err: err}
	}

	charge := &domain.Charge{
		ID:           created.ID,
		Status:       mapStatus(created.Status),
		Amount:       chargeReq.Amount,
		ApprovalLink: created.InvoiceURL,
	}

	if chargeReq.Method == domain.MethodPix {
		var qr pixQRResponse
		if err := c.do(ctx, http.MethodGet, "/v3/payments/"+created.ID+"/pixQrCode", nil, &qr); err != nil {
			// degraded: charge exists, QR not ready yet
			c.logger.Warn("pix QR not available on creation",
				zap.String("charge_id", created.ID),
				zap.Error(err),
			)
		} else {
			charge.QRCodeImage = qr.EncodedImage
			charge.CopyPasteString = qr.Payload
		}
	}

	return charge, nil
}

// GetCharge fetches a charge's current status and, for PIX, the QR data.
func (c *Client) GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error) {
	ctx, span := tracer.Start(ctx, "GatewayClient.GetCharge")
	defer span.End()
	span.SetAttributes(attribute.String("charge.id", chargeID))

	var payment paymentResponse
	if err := c.do(ctx, http.MethodGet, "/v3/payments/"+chargeID, nil, &payment); err != nil {
		return nil, &domain.ErrExternalService{Service: "gateway", Err: err}
	}

	amount, _ := decimal.NewFromString(payment.Value)
	charge := &domain.Charge{
		ID:           payment.ID,
		Status:       mapStatus(payment.Status),
		Amount:       amount,
		ApprovalLink: payment.InvoiceURL,
	}

	var qr pixQRResponse
	if err := c.do(ctx, http.MethodGet, "/v3/payments/"+chargeID+"/pixQrCode", nil, &qr); err == nil {
		charge.QRCodeImage = qr.EncodedImage
		charge.CopyPasteString = qr.Payload
	}

	return charge, nil
}

// FindCustomerByEmail resolves an existing gateway customer by email.
// Returns (nil, nil) when none exists.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*domain.PayerRef, error) {
	ctx, span := tracer.Start(ctx, "GatewayClient.FindCustomerByEmail")
	defer span.End()

	if cached, ok := c.payerCache.Get("email:" + email); ok {
		c.metrics.IncrCacheHit("payer")
		return cached, nil
	}
	c.metrics.IncrCacheMiss("payer")

	var list listResponse[customerResponse]
	if err := c.do(ctx, http.MethodGet, "/v3/customers?email="+url.QueryEscape(email), nil, &list); err != nil {
		return nil, &domain.ErrExternalService{Service: "gateway", Err: err}
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	first := list.Data[0]
	payer := &domain.PayerRef{CustomerID: first.ID, Email: first.Email, Document: first.CPFCNPJ}
	c.payerCache.Set("email:"+email, payer)
	return payer, nil
}

// FindCustomerByDocument resolves an existing gateway customer by CPF.
// Returns (nil, nil) when none exists.
func (c *Client) FindCustomerByDocument(ctx context.Context, document string) (*domain.PayerRef, error) {
	ctx, span := tracer.Start(ctx, "GatewayClient.FindCustomerByDocument")
	defer span.End()

	if cached, ok := c.payerCache.Get("doc:" + document); ok {
		c.metrics.IncrCacheHit("payer")
		return cached, nil
	}
	c.metrics.IncrCacheMiss("payer")

	var list listResponse[customerResponse]
	if err := c.do(ctx, http.MethodGet, "/v3/customers?cpfCnpj="+url.QueryEscape(document), nil, &list); err != nil {
		return nil, &domain.ErrExternalService{Service: "gateway", Err: err}
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	first := list.Data[0]
	payer := &domain.PayerRef{CustomerID: first.ID, Email: first.Email, Document: first.CPFCNPJ}
	c.payerCache.Set("doc:"+document, payer)
	return payer, nil
}

// CreateCustomer registers a gateway customer from the buyer profile.
func (c *Client) CreateCustomer(ctx context.Context, profile *domain.BuyerProfile) (*domain.PayerRef, error) {
	ctx, span := tracer.Start(ctx, "GatewayClient.CreateCustomer")
	defer span.End()

	payload := map[string]string{
		"name":          profile.Name,
		"email":         profile.Email,
		"cpfCnpj":       profile.Document,
		"mobilePhone":   profile.Phone,
		"postalCode":    profile.PostalCode,
		"addressNumber": profile.AddressNum,
	}

	var created customerResponse
	if err := c.do(ctx, http.MethodPost, "/v3/customers", payload, &created); err != nil {
		return nil, &domain.ErrExternalService{Service: "gateway", Err: err}
	}
	payer := &domain.PayerRef{CustomerID: created.ID, Email: created.Email, Document: created.CPFCNPJ}
	if payer.Email != "" {
		c.payerCache.Set("email:"+payer.Email, payer)
	}
	return payer, nil
}
