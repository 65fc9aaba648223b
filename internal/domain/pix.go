package domain

import "time"

// PixSession is the single persisted slot for an in-flight PIX charge.
// It survives attempt release and process restarts so a reload resumes
// the same countdown, computed from ExpiresAt rather than a fresh window.
type PixSession struct {
	BuyerID         string    `json:"buyerId"`
	ItemID          string    `json:"itemId"`
	PaymentID       string    `json:"paymentId"`
	QRCodeImage     string    `json:"qrCodeImage"`
	CopyPasteString string    `json:"copyPasteString"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// Remaining returns the countdown left at the given instant, floored at zero.
func (s *PixSession) Remaining(now time.Time) time.Duration {
	if s == nil || !s.ExpiresAt.After(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// ConfirmationEventType tags events read from the confirmation channel.
type ConfirmationEventType string

const (
	ConfirmationPaid    ConfirmationEventType = "payment_confirmed"
	ConfirmationTimeout ConfirmationEventType = "timeout"
)

// ConfirmationEvent is one message from the push confirmation channel
// subscribed by charge ID.
type ConfirmationEvent struct {
	Type     ConfirmationEventType `json:"type"`
	ChargeID string                `json:"chargeId"`
}
