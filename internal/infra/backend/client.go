// Package backend adapts the hosted storefront backend (item catalog,
// buyer profiles, purchase guard, order ledger) to their ports. One
// adapter, several ports, in the same spirit as a BaaS REST client.
package backend

import (
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

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("infra/backend")

// Client talks to the storefront backend REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
	itemCache  port.Cache[*domain.Item]
	metrics    *observability.Metrics
	logger     *zap.Logger
	group      singleflight.Group
}

// NewClient creates a backend client. Item lookups are cached and
// deduplicated: concurrent checkouts of the same listing share one fetch.
func NewClient(
	httpClient *http.Client,
	baseURL, apiKey string,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	itemCache port.Cache[*domain.Item],
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
		itemCache:  itemCache,
		metrics:    metrics,
		logger:     logger,
	}
}

// get runs one authenticated GET behind the bulkhead, with retry and
// circuit breaking.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer c.bulkhead.Release()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
			if err != nil {
				return err
			}
			req.Header.Set("apikey", c.apiKey)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return &domain.ErrNotFound{Resource: "backend_resource", ID: path}
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("backend returned status %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(out)
		})
	})
	return err
}

// GetItem fetches a listing, serving repeated lookups from cache and
// collapsing concurrent fetches of the same item into one request.
func (c *Client) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	ctx, span := tracer.Start(ctx, "BackendClient.GetItem")
	defer span.End()
	span.SetAttributes(attribute.String("item.id", itemID))

	if cached, ok := c.itemCache.Get(itemID); ok {
		c.metrics.IncrCacheHit("item")
		return cached, nil
	}
	c.metrics.IncrCacheMiss("item")

	v, err, _ := c.group.Do("item:"+itemID, func() (any, error) {
		var item domain.Item
		if err := c.get(ctx, "/rest/v1/items/"+url.PathEscape(itemID), &item); err != nil {
			return nil, err
		}
		c.itemCache.Set(itemID, &item)
		return &item, nil
	})
	if err != nil {
		c.metrics.IncrExternalError("backend")
		return nil, wrapBackendErr(err, "item", itemID)
	}
	return v.(*domain.Item), nil
}

// GetProfile fetches the buyer profile used for payer backfill.
func (c *Client) GetProfile(ctx context.Context, buyerID string) (*domain.BuyerProfile, error) {
	ctx, span := tracer.Start(ctx, "BackendClient.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("buyer.id", buyerID))

	var profile domain.BuyerProfile
	if err := c.get(ctx, "/rest/v1/profiles/"+url.PathEscape(buyerID), &profile); err != nil {
		c.metrics.IncrExternalError("backend")
		return nil, wrapBackendErr(err, "profile", buyerID)
	}
	return &profile, nil
}

// CheckPurchaseAllowed asks the guard whether the buyer may purchase the
// item (e.g. rejects re-buying an account the buyer already owns).
func (c *Client) CheckPurchaseAllowed(ctx context.Context, buyerID, itemID string) (*domain.PurchaseDecision, error) {
	ctx, span := tracer.Start(ctx, "BackendClient.CheckPurchaseAllowed")
	defer span.End()
	span.SetAttributes(
		attribute.String("buyer.id", buyerID),
		attribute.String("item.id", itemID),
	)

	path := fmt.Sprintf("/rest/v1/purchase-guard?buyerId=%s&itemId=%s",
		url.QueryEscape(buyerID), url.QueryEscape(itemID))

	var decision domain.PurchaseDecision
	if err := c.get(ctx, path, &decision); err != nil {
		c.metrics.IncrExternalError("backend")
		return nil, wrapBackendErr(err, "purchase_guard", itemID)
	}
	return &decision, nil
}

// FindOrderByCharge resolves the ledger order created for a confirmed
// charge. The core only reads the ledger, never writes it.
func (c *Client) FindOrderByCharge(ctx context.Context, chargeID string) (string, error) {
	ctx, span := tracer.Start(ctx, "BackendClient.FindOrderByCharge")
	defer span.End()
	span.SetAttributes(attribute.String("charge.id", chargeID))

	var out struct {
		OrderID string `json:"orderId"`
	}
	if err := c.get(ctx, "/rest/v1/orders?paymentId="+url.QueryEscape(chargeID), &out); err != nil {
		return "", wrapBackendErr(err, "order", chargeID)
	}
	return out.OrderID, nil
}

func wrapBackendErr(err error, resource, id string) error {
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return &domain.ErrExternalService{Service: "backend", Err: err}
}
