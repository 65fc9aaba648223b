package domain

import "github.com/shopspring/decimal"

// BuyerProfile is the storefront profile for the authenticated buyer, used
// to backfill payer data when creating a gateway customer.
type BuyerProfile struct {
	BuyerID    string `json:"buyer_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Document   string `json:"document"` // CPF
	Phone      string `json:"phone"`
	PostalCode string `json:"postal_code"`
	AddressNum string `json:"address_number"`
}

// PayerRef is the gateway-side customer record resolved for a buyer.
type PayerRef struct {
	CustomerID string `json:"customerId"`
	Email      string `json:"email"`
	Document   string `json:"document"`
}

// Charge is a gateway charge in the shape the core consumes.
type Charge struct {
	ID              string          `json:"id"`
	Status          ChargeStatus    `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	QRCodeImage     string          `json:"qrCodeImage,omitempty"`     // base64, PIX only
	CopyPasteString string          `json:"copyPasteString,omitempty"` // PIX only
	ApprovalLink    string          `json:"approvalLink,omitempty"`
}

// ChargeRequest is the input the gateway adapter needs to create a charge.
type ChargeRequest struct {
	Method       PaymentMethod     `json:"method"`
	CustomerID   string            `json:"customerId"`
	Amount       decimal.Decimal   `json:"amount"`
	Description  string            `json:"description"`
	Installments int               `json:"installments,omitempty"`
	Card         *CardForm         `json:"card,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// PurchaseDecision is the purchase-security-guard verdict.
type PurchaseDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
