package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/arenastore/checkout-bff-go/internal/pricing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxInstallments = 12

// startCardPayment validates the form, resolves the payer by tax document
// and creates the card charge. Terminal responses resolve immediately;
// pending charges go to the polling loop.
func (s *CheckoutService) startCardPayment(ctx context.Context, att *attempt, req *PayRequest) (*domain.AttemptSnapshot, error) {
	ctx, span := tracer.Start(ctx, "CheckoutService.startCardPayment")
	defer span.End()

	if req == nil || req.Card == nil {
		return nil, &domain.ErrValidation{Field: "card", Message: "dados do cartão são obrigatórios"}
	}
	if fields := s.validator.Validate(req.Card, s.clock.Now()); len(fields) > 0 {
		return nil, &domain.ErrCardValidation{Fields: fields}
	}
	installments := req.Installments
	if installments < 1 {
		installments = 1
	}
	if installments > maxInstallments {
		return nil, &domain.ErrValidation{Field: "installments", Message: fmt.Sprintf("máximo de %d parcelas", maxInstallments)}
	}

	att.mu.Lock()
	if att.processing {
		// another Pay already claimed the charge creation: no-op
		snap := s.snapshotLocked(att)
		att.mu.Unlock()
		return snap, nil
	}
	att.processing = true
	att.card = req.Card
	att.installments = installments
	att.prefill = &req.Card.Address
	quantity := att.quantity
	att.mu.Unlock()

	// the validated billing address becomes next time's prefill
	if err := s.addresses.Put(att.buyerID, &req.Card.Address); err != nil {
		s.logger.Warn("failed to persist billing address", zap.String("buyer_id", att.buyerID), zap.Error(err))
	}

	payer, err := s.resolveCardPayer(ctx, att.buyerID, req.Card)
	if err != nil {
		s.apply(att, domain.ChargeFailed{
			Method: domain.MethodCreditCard,
			Reason: "Não foi possível identificar o pagador. Tente novamente.",
		})
		return nil, err
	}

	base := pricing.Total(att.item, domain.MethodCreditCard, quantity)
	amount := pricing.FinalCardValue(base, installments)
	charge, err := s.gateway.CreateCharge(ctx, &domain.ChargeRequest{
		Method:       domain.MethodCreditCard,
		CustomerID:   payer.CustomerID,
		Amount:       amount,
		Description:  fmt.Sprintf("%s x%d", att.item.Name, quantity),
		Installments: installments,
		Card:         req.Card,
		Metadata: map[string]string{
			"attemptId": att.id,
			"itemId":    att.item.ID,
			"buyerId":   att.buyerID,
		},
	})
	if err != nil {
		var invalid *domain.ErrInvalidCard
		if errors.As(err, &invalid) {
			// gateway rejected the card data outright; no charge to poll
			s.metrics.IncrOutcome("declined")
			s.apply(att, domain.ChargeFailed{
				Method: domain.MethodCreditCard,
				Reason: "Cartão inválido. Verifique os dados e tente novamente.",
			})
			return nil, err
		}
		s.metrics.IncrExternalError("gateway")
		s.apply(att, domain.ChargeFailed{
			Method: domain.MethodCreditCard,
			Reason: "Não foi possível processar o pagamento. Tente novamente.",
		})
		return nil, err
	}

	s.metrics.IncrCharge(domain.MethodCreditCard)
	span.SetAttributes(attribute.String("charge.id", charge.ID), attribute.Int("installments", installments))
	s.logger.Info("card charge created",
		zap.String("attempt_id", att.id),
		zap.String("charge_id", charge.ID),
		zap.String("status", string(charge.Status)),
		zap.String("amount", amount.StringFixed(2)),
		zap.Int("installments", installments),
	)

	switch {
	case charge.Status.IsApproved():
		s.apply(att, domain.ConfirmationReceived{ChargeID: charge.ID})
	case charge.Status.IsDeclined():
		s.metrics.IncrOutcome("declined")
		s.apply(att, domain.ChargeFailed{
			Method: domain.MethodCreditCard,
			Reason: "Pagamento recusado. Verifique os dados do cartão.",
		})
	default:
		s.apply(att, domain.ChargeCreated{Method: domain.MethodCreditCard, Charge: charge})
	}

	return s.snapshot(att), nil
}

// resolveCardPayer finds or creates the payer keyed by the card holder's
// tax document, falling back to profile data for the fields the form does
// not carry.
func (s *CheckoutService) resolveCardPayer(ctx context.Context, buyerID string, card *domain.CardForm) (*domain.PayerRef, error) {
	existing, err := s.customers.FindCustomerByDocument(ctx, card.Document)
	if err != nil {
		s.metrics.IncrExternalError("gateway")
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	profile, err := s.profiles.GetProfile(ctx, buyerID)
	if err != nil {
		s.metrics.IncrExternalError("backend")
		return nil, err
	}

	phone := card.Phone
	if phone == "" {
		phone = profile.Phone
	}
	if phone == "" {
		phone = s.defaultPhone
	}

	created, err := s.customers.CreateCustomer(ctx, &domain.BuyerProfile{
		BuyerID:    buyerID,
		Name:       card.HolderName,
		Email:      profile.Email,
		Document:   card.Document,
		Phone:      phone,
		PostalCode: card.Address.PostalCode,
	})
	if err != nil {
		s.metrics.IncrExternalError("gateway")
		return nil, err
	}
	return created, nil
}

// startCardPolling launches the status poll loop for a pending charge.
// The loop stops on a terminal status, on the silent ceiling, or when the
// attempt's timers are cancelled. Callers hold att.mu.
func (s *CheckoutService) startCardPolling(att *attempt, chargeID string) {
	stop := make(chan struct{})
	att.pollStop = stop
	// both timers are registered before returning so a fake clock advanced
	// right after Pay already sees them
	ticker := s.clock.NewTicker(s.timing.CardPollInterval)
	ceiling := s.clock.After(s.timing.CardPollCeiling)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ceiling:
				s.apply(att, domain.PollCeilingReached{})
				return
			case <-ticker.Chan():
				pollCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				charge, err := s.gateway.GetCharge(pollCtx, chargeID)
				cancel()
				if err != nil {
					s.metrics.IncrExternalError("gateway")
				}
				var status domain.ChargeStatus
				if charge != nil {
					status = charge.Status
				}
				if s.apply(att, domain.PollResult{Status: status, Err: err}) {
					return
				}
			}
		}
	}()
}
