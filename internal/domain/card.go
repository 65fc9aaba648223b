package domain

// ChargeStatus is the gateway-reported status of a charge.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "PENDING"
	ChargeConfirmed ChargeStatus = "CONFIRMED"
	ChargeReceived  ChargeStatus = "RECEIVED"
	ChargeRefused   ChargeStatus = "REFUSED"
	ChargeCancelled ChargeStatus = "CANCELLED"
)

// IsApproved reports whether the status means the payment went through.
func (s ChargeStatus) IsApproved() bool {
	return s == ChargeConfirmed || s == ChargeReceived
}

// IsDeclined reports whether the status is a terminal refusal.
func (s ChargeStatus) IsDeclined() bool {
	return s == ChargeRefused || s == ChargeCancelled
}

// IsTerminal reports whether polling can stop.
func (s ChargeStatus) IsTerminal() bool {
	return s.IsApproved() || s.IsDeclined()
}

// BillingAddress is the persisted subset of the card form. It is saved per
// buyer and prefilled into future purchases; card number and CVV never are.
type BillingAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

// CardForm is the in-memory card payment input. It is reset on method
// collapse or successful navigation away, never persisted as a whole.
type CardForm struct {
	HolderName  string         `json:"holderName"`
	Number      string         `json:"number"`
	Expiry      string         `json:"expiry"` // MM/YY
	CVV         string         `json:"cvv"`
	Document    string         `json:"document"` // CPF, digits or formatted
	Phone       string         `json:"phone,omitempty"`
	Address     BillingAddress `json:"address"`
}
