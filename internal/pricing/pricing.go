// Package pricing holds the pure price and fee calculators shared by the
// PIX and card flows. No side effects, no network: identical inputs must
// produce identical results in both flows.
package pricing

import (
	"github.com/arenastore/checkout-bff-go/internal/domain"

	"github.com/shopspring/decimal"
)

// MinCharge is the smallest total the gateway accepts for a PIX charge of
// the KKS currency item (R$5,00).
var MinCharge = decimal.RequireFromString("5.00")

var (
	feeFixed   = decimal.RequireFromString("0.49")
	feeRateLow = decimal.RequireFromString("0.0349") // 2-6 installments
	feeRateHi  = decimal.RequireFromString("0.0399") // 7+ installments
)

// UnitPrice returns the per-unit price for the given payment method.
func UnitPrice(item *domain.Item, method domain.PaymentMethod) decimal.Decimal {
	if method == domain.MethodCreditCard {
		return item.ParceladoPrice
	}
	return item.RLPrice
}

// Total returns unit price times quantity for the given method.
func Total(item *domain.Item, method domain.PaymentMethod, quantity int) decimal.Decimal {
	return UnitPrice(item, method).Mul(decimal.NewFromInt(int64(quantity)))
}

// InstallmentFee returns the fee added on top of base for paying in n
// installments. One installment carries no fee; 2-6 pay 3.49% + R$0,49;
// anything above that pays 3.99% + R$0,49.
func InstallmentFee(base decimal.Decimal, n int) decimal.Decimal {
	switch {
	case n <= 1:
		return decimal.Zero
	case n <= 6:
		return base.Mul(feeRateLow).Add(feeFixed).Round(2)
	default:
		return base.Mul(feeRateHi).Add(feeFixed).Round(2)
	}
}

// FinalCardValue returns the card charge value: base plus installment fee.
func FinalCardValue(base decimal.Decimal, installments int) decimal.Decimal {
	return base.Add(InstallmentFee(base, installments))
}

// MinQuantity returns the smallest quantity the buyer may select. It is 1
// for everything except the KKS currency, where the PIX total must clear
// the minimum charge.
func MinQuantity(item *domain.Item) int {
	if !item.IsCurrency() {
		return 1
	}
	unit := item.RLPrice
	if !unit.IsPositive() {
		return 1
	}
	q := MinCharge.Div(unit).Ceil().IntPart()
	if q < 1 {
		return 1
	}
	return int(q)
}

// ClampQuantity bounds q to [MinQuantity, stock]. Values below the minimum
// are rejected by raising to the minimum; values above stock are capped.
func ClampQuantity(item *domain.Item, q int) int {
	min := MinQuantity(item)
	if q < min {
		q = min
	}
	if item.Stock > 0 && q > item.Stock {
		q = item.Stock
	}
	return q
}

// IsAvailable reports whether a payment method can be offered for the
// current selection. A method with a non-positive unit price is never
// offered; PIX for the KKS currency requires the total to clear the
// minimum charge; credit card can be disabled globally by configuration.
func IsAvailable(item *domain.Item, method domain.PaymentMethod, quantity int, cardEnabled bool) bool {
	unit := UnitPrice(item, method)
	if !unit.IsPositive() {
		return false
	}
	switch method {
	case domain.MethodPix:
		if item.IsCurrency() && Total(item, method, quantity).LessThan(MinCharge) {
			return false
		}
		return true
	case domain.MethodCreditCard:
		return cardEnabled
	default:
		return false
	}
}
