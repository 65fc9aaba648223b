package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod identifies how the buyer pays for an item.
type PaymentMethod string

const (
	MethodPix        PaymentMethod = "pix"
	MethodCreditCard PaymentMethod = "credit_card"
)

// CheckoutState is the lifecycle state of a purchase attempt.
type CheckoutState string

// There is no dedicated failed state: a failed payment surfaces a toast
// and returns the attempt to the active method's state with the form
// intact, so the buyer can retry.
const (
	StateSelection  CheckoutState = "selection"
	StatePixActive  CheckoutState = "pix_active"
	StateCardActive CheckoutState = "card_active"
	StateProcessing CheckoutState = "processing"
	StateConfirmed  CheckoutState = "confirmed"
)

// IsTerminal reports whether no further transitions are possible.
// Only a confirmed attempt is terminal: a failed attempt returns to the
// active payment-method state so the buyer can retry with the data intact.
func (s CheckoutState) IsTerminal() bool {
	return s == StateConfirmed
}

func (s CheckoutState) String() string { return string(s) }

// Platform is the credential platform for items linked to an account.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// ValidPlatform reports whether p is one of the accepted platforms.
func ValidPlatform(p Platform) bool {
	return p == PlatformAndroid || p == PlatformIOS
}

// Event is a typed state-machine input. All transitions of a purchase
// attempt are driven by these events through a single reducer, so timer
// and stream interleavings stay testable with a fake clock.
type Event interface{ checkoutEvent() }

// MethodSelected toggles a payment-method panel open or closed.
type MethodSelected struct{ Method PaymentMethod }

// ChargeCreated carries the gateway response for a freshly created charge.
type ChargeCreated struct {
	Method PaymentMethod
	Charge *Charge
}

// Tick is a one-second countdown tick for the active PIX session.
type Tick struct{}

// QRRefreshed carries the result of the single delayed QR re-fetch.
type QRRefreshed struct {
	Charge *Charge
	Err    error
}

// ConfirmationReceived signals that the confirmation channel (or a sandbox
// injection) reported the charge as paid.
type ConfirmationReceived struct{ ChargeID string }

// StreamTimeout signals that the confirmation channel gave up. Not an
// error: the countdown remains authoritative.
type StreamTimeout struct{}

// Expired signals that the PIX countdown reached zero.
type Expired struct{}

// PollResult carries one card-status poll outcome.
type PollResult struct {
	Status ChargeStatus
	Err    error
}

// PollCeilingReached signals the card polling window closed without a
// terminal status. Deliberately silent for the buyer.
type PollCeilingReached struct{}

// RedirectReady fires after the short user-visible delay that follows a
// confirmation, carrying the final redirect.
type RedirectReady struct{ Redirect *Redirect }

// ChargeFailed signals that customer resolution or charge creation failed.
type ChargeFailed struct {
	Method PaymentMethod
	Reason string
}

func (MethodSelected) checkoutEvent()       {}
func (ChargeCreated) checkoutEvent()        {}
func (Tick) checkoutEvent()                 {}
func (QRRefreshed) checkoutEvent()          {}
func (ConfirmationReceived) checkoutEvent() {}
func (StreamTimeout) checkoutEvent()        {}
func (Expired) checkoutEvent()              {}
func (PollResult) checkoutEvent()           {}
func (PollCeilingReached) checkoutEvent()   {}
func (RedirectReady) checkoutEvent()        {}
func (ChargeFailed) checkoutEvent()         {}

// Redirect is the success-view target emitted on a confirmed payment.
type Redirect struct {
	OrderID      string          `json:"orderId"`
	ItemID       string          `json:"itemId"`
	PaymentID    string          `json:"paymentId"`
	Amount       decimal.Decimal `json:"paymentAmount"`
	Method       PaymentMethod   `json:"paymentMethod"`
	Installments int             `json:"installments,omitempty"`
	Platform     Platform        `json:"platform,omitempty"`
}

// AttemptSnapshot is the read model served to the storefront and pushed
// over the attempt's event feed.
type AttemptSnapshot struct {
	AttemptID    string          `json:"attemptId"`
	ItemID       string          `json:"itemId"`
	ItemName     string          `json:"itemName"`
	State        CheckoutState   `json:"state"`
	Method       PaymentMethod   `json:"method,omitempty"`
	Quantity     int             `json:"quantity"`
	MinQuantity  int             `json:"minQuantity"`
	Platform     Platform        `json:"platform,omitempty"`
	Installments int             `json:"installments,omitempty"`
	PixTotal     decimal.Decimal `json:"pixTotal"`
	CardTotal    decimal.Decimal `json:"cardTotal"`
	PixAvailable bool            `json:"pixAvailable"`
	CardAvailable bool           `json:"cardAvailable"`
	Processing   bool            `json:"processing"`
	Pix          *PixPanel       `json:"pix,omitempty"`
	Redirect     *Redirect       `json:"redirect,omitempty"`
	AddressPrefill *BillingAddress `json:"addressPrefill,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// PixPanel is the PIX portion of a snapshot: QR display plus countdown.
type PixPanel struct {
	PaymentID        string `json:"paymentId"`
	QRCodeImage      string `json:"qrCodeImage,omitempty"`
	CopyPasteString  string `json:"copyPasteString,omitempty"`
	SecondsRemaining int    `json:"secondsRemaining"`
	Expired          bool   `json:"expired"`
	Resumed          bool   `json:"resumed"`
}

// Toast is a user-facing notification surfaced through the event feed.
type Toast struct {
	Level   string    `json:"level"` // success | error | info
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
