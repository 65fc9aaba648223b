package service

import (
	"context"
	"fmt"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/arenastore/checkout-bff-go/internal/pricing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// startPixPayment resolves the buyer's payer record, creates a PIX charge
// and hands the result to the reducer, which persists the session and
// starts the countdown and the confirmation stream.
func (s *CheckoutService) startPixPayment(ctx context.Context, att *attempt) (*domain.AttemptSnapshot, error) {
	ctx, span := tracer.Start(ctx, "CheckoutService.startPixPayment")
	defer span.End()

	att.mu.Lock()
	if att.processing {
		// another Pay already claimed the charge creation: no-op
		snap := s.snapshotLocked(att)
		att.mu.Unlock()
		return snap, nil
	}
	if att.pix != nil && att.pix.session != nil && !att.pix.expired {
		// an unexpired charge already exists; keep showing it
		snap := s.snapshotLocked(att)
		att.mu.Unlock()
		return snap, nil
	}
	att.processing = true
	quantity := att.quantity
	itemID := att.item.ID
	att.mu.Unlock()

	payer, err := s.resolvePayer(ctx, att.buyerID)
	if err != nil {
		s.apply(att, domain.ChargeFailed{
			Method: domain.MethodPix,
			Reason: "Não foi possível identificar o pagador. Tente novamente.",
		})
		return nil, err
	}

	amount := pricing.Total(att.item, domain.MethodPix, quantity)
	charge, err := s.gateway.CreateCharge(ctx, &domain.ChargeRequest{
		Method:      domain.MethodPix,
		CustomerID:  payer.CustomerID,
		Amount:      amount,
		Description: fmt.Sprintf("%s x%d", att.item.Name, quantity),
		Metadata: map[string]string{
			"attemptId": att.id,
			"itemId":    itemID,
			"buyerId":   att.buyerID,
		},
	})
	if err != nil {
		s.metrics.IncrExternalError("gateway")
		s.apply(att, domain.ChargeFailed{
			Method: domain.MethodPix,
			Reason: "Não foi possível gerar a cobrança Pix. Tente novamente.",
		})
		return nil, err
	}

	s.metrics.IncrCharge(domain.MethodPix)
	span.SetAttributes(attribute.String("charge.id", charge.ID))
	s.logger.Info("pix charge created",
		zap.String("attempt_id", att.id),
		zap.String("charge_id", charge.ID),
		zap.String("amount", amount.StringFixed(2)),
	)

	s.apply(att, domain.ChargeCreated{Method: domain.MethodPix, Charge: charge})
	return s.snapshot(att), nil
}

// RegeneratePix discards the expired session and creates a fresh charge.
func (s *CheckoutService) RegeneratePix(ctx context.Context, attemptID, buyerID string) (*domain.AttemptSnapshot, error) {
	ctx, span := tracer.Start(ctx, "CheckoutService.RegeneratePix")
	defer span.End()

	att, err := s.getAttempt(attemptID, buyerID)
	if err != nil {
		return nil, err
	}

	att.mu.Lock()
	if att.state != domain.StatePixActive || att.pix == nil || !att.pix.expired {
		att.mu.Unlock()
		return nil, &domain.ErrConflict{Message: "a cobrança Pix ainda não expirou"}
	}
	att.pix = nil
	att.mu.Unlock()

	return s.startPixPayment(ctx, att)
}

// resolvePayer finds or creates the buyer's customer record at the
// gateway. Missing phone or postal code on the profile is backfilled
// with placeholder values so the charge never blocks on profile gaps.
func (s *CheckoutService) resolvePayer(ctx context.Context, buyerID string) (*domain.PayerRef, error) {
	profile, err := s.profiles.GetProfile(ctx, buyerID)
	if err != nil {
		s.metrics.IncrExternalError("backend")
		return nil, err
	}

	existing, err := s.customers.FindCustomerByEmail(ctx, profile.Email)
	if err != nil {
		s.metrics.IncrExternalError("gateway")
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	phone := profile.Phone
	if phone == "" {
		phone = s.defaultPhone
		s.logger.Warn("profile missing phone, using placeholder", zap.String("buyer_id", buyerID))
	}
	postalCode := profile.PostalCode
	if postalCode == "" {
		postalCode = s.defaultCEP
		s.logger.Warn("profile missing postal code, using placeholder", zap.String("buyer_id", buyerID))
	}

	created, err := s.customers.CreateCustomer(ctx, &domain.BuyerProfile{
		BuyerID:    profile.BuyerID,
		Name:       profile.Name,
		Email:      profile.Email,
		Document:   profile.Document,
		Phone:      phone,
		PostalCode: postalCode,
	})
	if err != nil {
		s.metrics.IncrExternalError("gateway")
		return nil, err
	}
	return created, nil
}

// startPixCountdown launches the one-second tick loop for the active
// session. Callers hold att.mu.
func (s *CheckoutService) startPixCountdown(att *attempt) {
	stop := make(chan struct{})
	att.countdownStop = stop
	// register the ticker before returning so a fake clock advanced right
	// after Pay already sees it
	ticker := s.clock.NewTicker(time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				if s.apply(att, domain.Tick{}) {
					return
				}
			}
		}
	}()
}

// startConfirmationStream attaches the push confirmation channel for the
// charge. The stream is only attached to the attempt that created the
// charge; a resumed session relies on regeneration after expiry instead.
// Callers hold att.mu.
func (s *CheckoutService) startConfirmationStream(att *attempt, chargeID string) {
	ctx, cancel := context.WithCancel(context.Background())
	att.streamCancel = cancel

	go func() {
		events, release, err := s.stream.Subscribe(ctx, chargeID, att.buyerID)
		if err != nil {
			s.metrics.IncrExternalError("gateway")
			s.logger.Warn("confirmation stream unavailable, countdown only",
				zap.String("attempt_id", att.id),
				zap.String("charge_id", chargeID),
				zap.Error(err),
			)
			return
		}
		defer release()
		for ev := range events {
			switch ev.Type {
			case domain.ConfirmationPaid:
				s.apply(att, domain.ConfirmationReceived{ChargeID: ev.ChargeID})
				return
			case domain.ConfirmationTimeout:
				s.apply(att, domain.StreamTimeout{})
				return
			}
		}
		// closed channel without a terminal event behaves like a timeout
		s.apply(att, domain.StreamTimeout{})
	}()
}

// scheduleQRRefresh performs the single delayed re-fetch when the create
// response came back without a QR image. Callers hold att.mu.
func (s *CheckoutService) scheduleQRRefresh(att *attempt, chargeID string) {
	delay := s.clock.After(s.timing.QRRefreshDelay)
	go func() {
		<-delay

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		charge, err := s.gateway.GetCharge(ctx, chargeID)
		if err != nil {
			s.metrics.IncrExternalError("gateway")
		}
		s.apply(att, domain.QRRefreshed{Charge: charge, Err: err})
	}()
}

// ConfirmChargeSandbox injects a confirmation for the attempt currently
// holding the charge. Only wired up in sandbox mode.
func (s *CheckoutService) ConfirmChargeSandbox(chargeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, att := range s.attempts {
		att.mu.Lock()
		match := (att.pix != nil && att.pix.session != nil && att.pix.session.PaymentID == chargeID) ||
			att.cardCharge == chargeID
		att.mu.Unlock()
		if match {
			s.apply(att, domain.ConfirmationReceived{ChargeID: chargeID})
			return true
		}
	}
	return false
}
