// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/domain"
)

// PaymentGateway creates and inspects charges at the payment provider.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, req *domain.ChargeRequest) (*domain.Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error)
}

// CustomerDirectory resolves or creates the gateway-side payer record.
// Lookups are keyed by email (PIX flow) or tax document (card flow) so the
// same buyer is never duplicated at the gateway.
type CustomerDirectory interface {
	FindCustomerByEmail(ctx context.Context, email string) (*domain.PayerRef, error)
	FindCustomerByDocument(ctx context.Context, document string) (*domain.PayerRef, error)
	CreateCustomer(ctx context.Context, profile *domain.BuyerProfile) (*domain.PayerRef, error)
}

// ConfirmationStream is the push channel that reports charge confirmation.
// The returned cancel func must be safe to call more than once.
type ConfirmationStream interface {
	Subscribe(ctx context.Context, chargeID, buyerID string) (<-chan domain.ConfirmationEvent, func(), error)
}

// PurchaseGuard gates purchase attempts (e.g. buyer already owns the item).
type PurchaseGuard interface {
	CheckPurchaseAllowed(ctx context.Context, buyerID, itemID string) (*domain.PurchaseDecision, error)
}

// ItemCatalog serves storefront listings.
type ItemCatalog interface {
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)
}

// ProfileFetcher retrieves the buyer profile used to backfill payer data.
type ProfileFetcher interface {
	GetProfile(ctx context.Context, buyerID string) (*domain.BuyerProfile, error)
}

// OrderLedger is read-only here: the core never writes purchase records,
// it only resolves the order created elsewhere for a confirmed charge.
type OrderLedger interface {
	FindOrderByCharge(ctx context.Context, chargeID string) (orderID string, err error)
}

// PixSessionStore persists one in-flight PIX charge per buyer. Creating a
// new session overwrites that buyer's slot; other buyers never see it.
// Get returns (nil, nil) when the buyer's slot is empty.
type PixSessionStore interface {
	Get(buyerID string) (*domain.PixSession, error)
	Put(session *domain.PixSession) error
	Clear(buyerID string) error
}

// BillingAddressStore persists the billing-address subset of the card form
// per buyer. Last writer wins.
type BillingAddressStore interface {
	Get(buyerID string) (*domain.BillingAddress, error)
	Put(buyerID string, addr *domain.BillingAddress) error
}

// Notifier surfaces user-facing toasts and state snapshots for an attempt.
type Notifier interface {
	Toast(attemptID string, toast domain.Toast)
	StateChanged(attemptID string, snapshot *domain.AttemptSnapshot)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Ticker abstracts time.Ticker so timers run on a fake clock in tests.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// Clock abstracts wall-clock access and timer creation. All countdown,
// polling and delay scheduling in the flows goes through it.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}
