package domain

import "github.com/shopspring/decimal"

// ItemKind distinguishes the "KKS" in-game currency (sold by quantity with
// a minimum-charge floor) from one-off listings.
type ItemKind string

const (
	KindAccount  ItemKind = "account"
	KindCurrency ItemKind = "kks"
	KindDigital  ItemKind = "digital"
)

// Item is a storefront listing as served by the catalog.
type Item struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Kind           ItemKind        `json:"kind"`
	RLPrice        decimal.Decimal `json:"rl_price"`        // unit price for PIX
	ParceladoPrice decimal.Decimal `json:"parcelado_price"` // unit price for credit card
	Stock          int             `json:"stock"`
	HasCredential  bool            `json:"has_credential"` // linked game account: platform selection required
	SellerID       string          `json:"seller_id"`
}

// IsCurrency reports whether the item is the KKS in-game currency.
func (i *Item) IsCurrency() bool { return i.Kind == KindCurrency }
