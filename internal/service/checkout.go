package service

import (
	"context"
	"sync"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/arenastore/checkout-bff-go/internal/infra/observability"
	"github.com/arenastore/checkout-bff-go/internal/port"
	"github.com/arenastore/checkout-bff-go/internal/pricing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/checkout")

// Timing groups every duration the payment flows schedule through the
// clock. Tests inject short values together with a fake clock.
type Timing struct {
	PixExpiry        time.Duration // countdown window for a fresh PIX charge
	QRRefreshDelay   time.Duration // single delayed QR re-fetch
	CardPollInterval time.Duration // card status poll tick
	CardPollCeiling  time.Duration // hard stop for card polling
	RedirectDelay    time.Duration // user-visible pause before redirect
}

// DefaultTiming matches the storefront behaviour: 300s PIX window, 1s QR
// re-fetch, 3s polling with a 5 minute ceiling.
func DefaultTiming() Timing {
	return Timing{
		PixExpiry:        300 * time.Second,
		QRRefreshDelay:   time.Second,
		CardPollInterval: 3 * time.Second,
		CardPollCeiling:  5 * time.Minute,
		RedirectDelay:    2 * time.Second,
	}
}

// CheckoutService owns the purchase-attempt state machines. Every
// transition goes through the apply reducer; timers and the confirmation
// stream feed it typed events.
type CheckoutService struct {
	gateway   port.PaymentGateway
	customers port.CustomerDirectory
	stream    port.ConfirmationStream
	guard     port.PurchaseGuard
	catalog   port.ItemCatalog
	profiles  port.ProfileFetcher
	ledger    port.OrderLedger
	sessions  port.PixSessionStore
	addresses port.BillingAddressStore
	notifier  port.Notifier
	clock     port.Clock
	validator *CardValidator
	metrics   *observability.Metrics
	logger    *zap.Logger

	timing       Timing
	cardEnabled  bool
	defaultPhone string
	defaultCEP   string

	mu       sync.RWMutex
	attempts map[string]*attempt
}

// Deps bundles the collaborators for NewCheckoutService.
type Deps struct {
	Gateway   port.PaymentGateway
	Customers port.CustomerDirectory
	Stream    port.ConfirmationStream
	Guard     port.PurchaseGuard
	Catalog   port.ItemCatalog
	Profiles  port.ProfileFetcher
	Ledger    port.OrderLedger
	Sessions  port.PixSessionStore
	Addresses port.BillingAddressStore
	Notifier  port.Notifier
	Clock     port.Clock
	Validator *CardValidator
	Metrics   *observability.Metrics
	Logger    *zap.Logger

	Timing       Timing
	CardEnabled  bool
	DefaultPhone string // degraded-mode payer phone when the profile has none
	DefaultCEP   string // degraded-mode postal code
}

// NewCheckoutService creates the checkout orchestrator.
func NewCheckoutService(d Deps) *CheckoutService {
	return &CheckoutService{
		gateway:      d.Gateway,
		customers:    d.Customers,
		stream:       d.Stream,
		guard:        d.Guard,
		catalog:      d.Catalog,
		profiles:     d.Profiles,
		ledger:       d.Ledger,
		sessions:     d.Sessions,
		addresses:    d.Addresses,
		notifier:     d.Notifier,
		clock:        d.Clock,
		validator:    d.Validator,
		metrics:      d.Metrics,
		logger:       d.Logger,
		timing:       d.Timing,
		cardEnabled:  d.CardEnabled,
		defaultPhone: d.DefaultPhone,
		defaultCEP:   d.DefaultCEP,
		attempts:     make(map[string]*attempt),
	}
}

// attempt is the per-purchase state machine instance.
type attempt struct {
	mu sync.Mutex

	id      string
	buyerID string
	item    *domain.Item

	quantity     int
	platform     domain.Platform
	method       domain.PaymentMethod // open panel; empty in selection
	state        domain.CheckoutState
	processing   bool
	installments int

	card       *domain.CardForm // retained across declines, never persisted
	cardCharge string           // charge being polled
	pix        *pixState
	redirect   *domain.Redirect
	prefill    *domain.BillingAddress

	countdownStop chan struct{}
	pollStop      chan struct{}
	streamCancel  func()

	released bool
}

type pixState struct {
	session   *domain.PixSession
	remaining int // seconds shown to the buyer
	expired   bool
	resumed   bool
}

// ============================================================
// Attempt lifecycle
// ============================================================

// OpenAttempt starts a purchase attempt for a listing. If the buyer's
// persisted PIX session is for the same item and has time left, the
// attempt resumes its countdown (the confirmation stream is deliberately
// not re-attached; see startPixCountdown).
func (s *CheckoutService) OpenAttempt(ctx context.Context, buyerID, itemID string, quantity int, platform domain.Platform) (*domain.AttemptSnapshot, error) {
	ctx, span := tracer.Start(ctx, "CheckoutService.OpenAttempt")
	defer span.End()
	span.SetAttributes(attribute.String("item.id", itemID), attribute.String("buyer.id", buyerID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("open_attempt", time.Since(start)) }()

	var (
		item    *domain.Item
		prefill *domain.BillingAddress
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		i, err := s.catalog.GetItem(gCtx, itemID)
		if err != nil {
			return err
		}
		item = i
		return nil
	})
	g.Go(func() error {
		// best effort: a missing saved address is not an error
		addr, err := s.addresses.Get(buyerID)
		if err != nil {
			s.logger.Warn("saved address lookup failed", zap.String("buyer_id", buyerID), zap.Error(err))
			return nil
		}
		prefill = addr
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if item.Stock <= 0 {
		return nil, &domain.ErrValidation{Field: "itemId", Message: "item esgotado"}
	}
	if platform != "" && !domain.ValidPlatform(platform) {
		return nil, &domain.ErrValidation{Field: "platform", Message: "deve ser android ou ios"}
	}

	att := &attempt{
		id:       uuid.New().String(),
		buyerID:  buyerID,
		item:     item,
		quantity: pricing.ClampQuantity(item, quantity),
		platform: platform,
		state:    domain.StateSelection,
		prefill:  prefill,
	}

	// resume this buyer's surviving PIX session for the item
	if session, err := s.sessions.Get(buyerID); err == nil && session != nil && session.ItemID == itemID {
		if session.Remaining(s.clock.Now()) > 0 {
			att.method = domain.MethodPix
			att.state = domain.StatePixActive
			att.pix = &pixState{
				session:   session,
				remaining: int(session.Remaining(s.clock.Now()) / time.Second),
				resumed:   true,
			}
			s.startPixCountdown(att)
			s.logger.Info("pix session resumed",
				zap.String("attempt_id", att.id),
				zap.String("payment_id", session.PaymentID),
				zap.Int("seconds_remaining", att.pix.remaining),
			)
		} else {
			// expired while nobody was looking: free the slot
			_ = s.sessions.Clear(buyerID)
		}
	}

	s.mu.Lock()
	s.attempts[att.id] = att
	s.mu.Unlock()

	return s.snapshot(att), nil
}

// GetAttempt returns the current snapshot.
func (s *CheckoutService) GetAttempt(_ context.Context, attemptID, buyerID string) (*domain.AttemptSnapshot, error) {
	att, err := s.getAttempt(attemptID, buyerID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(att), nil
}

// Release drops the attempt: countdown, polling and the confirmation
// stream are cancelled synchronously, but a persisted PixSession is kept
// so a reload resumes the same countdown.
func (s *CheckoutService) Release(attemptID, buyerID string) error {
	att, err := s.getAttempt(attemptID, buyerID)
	if err != nil {
		return err
	}

	att.mu.Lock()
	att.released = true
	s.stopTimersLocked(att)
	att.mu.Unlock()

	s.mu.Lock()
	delete(s.attempts, attemptID)
	s.mu.Unlock()

	s.logger.Info("attempt released", zap.String("attempt_id", attemptID))
	return nil
}

// Shutdown releases every live attempt. Called on process stop.
func (s *CheckoutService) Shutdown() {
	s.mu.Lock()
	atts := make([]*attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		atts = append(atts, a)
	}
	s.attempts = make(map[string]*attempt)
	s.mu.Unlock()

	for _, att := range atts {
		att.mu.Lock()
		att.released = true
		s.stopTimersLocked(att)
		att.mu.Unlock()
	}
}

func (s *CheckoutService) getAttempt(attemptID, buyerID string) (*attempt, error) {
	s.mu.RLock()
	att, ok := s.attempts[attemptID]
	s.mu.RUnlock()

	if !ok {
		return nil, &domain.ErrNotFound{Resource: "attempt", ID: attemptID}
	}
	if att.buyerID != buyerID {
		return nil, &domain.ErrForbidden{Action: "access attempt"}
	}
	return att, nil
}

// ============================================================
// Selection operations
// ============================================================

// SelectQuantity updates the quantity. Values above stock are capped;
// values below the item's minimum are rejected and the previous quantity
// is left unchanged.
func (s *CheckoutService) SelectQuantity(_ context.Context, attemptID, buyerID string, quantity int) (*domain.AttemptSnapshot, error) {
	att, err := s.getAttempt(attemptID, buyerID)
	if err != nil {
		return nil, err
	}

	att.mu.Lock()
	defer att.mu.Unlock()

	if att.processing || att.state.IsTerminal() {
		return nil, &domain.ErrConflict{Message: "pagamento em andamento"}
	}

	min := pricing.MinQuantity(att.item)
	if quantity < min {
		return nil, &domain.ErrValidation{Field: "quantity", Message: "quantidade abaixo do mínimo para este item"}
	}
	if att.item.Stock > 0 && quantity > att.item.Stock {
		quantity = att.item.Stock
	}
	att.quantity = quantity

	snap := s.snapshotLocked(att)
	s.notifier.StateChanged(att.id, snap)
	return snap, nil
}

// SelectPlatform records the credential platform. Only meaningful for
// items with a linked account; required before payment methods open.
func (s *CheckoutService) SelectPlatform(_ context.Context, attemptID, buyerID string, platform domain.Platform) (*domain.AttemptSnapshot, error) {
	att, err := s.getAttempt(attemptID, buyerID)
	if err != nil {
		return nil, err
	}

	att.mu.Lock()
	defer att.mu.Unlock()

	if !att.item.HasCredential {
		return nil, &domain.ErrValidation{Field: "platform", Message: "item não possui conta vinculada"}
	}
	if !domain.ValidPlatform(platform) {
		return nil, &domain.ErrValidation{Field: "platform", Message: "deve ser android ou ios"}
	}
	att.platform = platform

	snap := s.snapshotLocked(att)
	s.notifier.StateChanged(att.id, snap)
	return snap, nil
}

// SelectPaymentMethod toggles the panel for the given method. Re-selecting
// the open method collapses it back to selection, resetting that method's
// local state; opening one method collapses the other.
func (s *CheckoutService) SelectPaymentMethod(_ context.Context, attemptID, buyerID string, method domain.PaymentMethod) (*domain.AttemptSnapshot, error) {
	att, err := s.getAttempt(attemptID, buyerID)
	if err != nil {
		return nil, err
	}

	att.mu.Lock()
	defer att.mu.Unlock()

	if att.processing || att.state.IsTerminal() {
		return nil, &domain.ErrConflict{Message: "pagamento em andamento"}
	}
	if method != domain.MethodPix && method != domain.MethodCreditCard {
		return nil, &domain.ErrValidation{Field: "method", Message: "método de pagamento desconhecido"}
	}
	if att.item.HasCredential && att.platform == "" {
		return nil, &domain.ErrValidation{Field: "platform", Message: "selecione a plataforma antes do pagamento"}
	}

	if att.method != method && !pricing.IsAvailable(att.item, method, att.quantity, s.cardEnabled) {
		return nil, &domain.ErrMethodUnavailable{Method: method, Reason: "método indisponível para esta seleção"}
	}

	s.applyLocked(att, domain.MethodSelected{Method: method})

	snap := s.snapshotLocked(att)
	s.notifier.StateChanged(att.id, snap)
	return snap, nil
}

// collapseMethodLocked cancels the open method's timers and local state.
// The underlying gateway charge (and the persisted PixSession) survive.
func (s *CheckoutService) collapseMethodLocked(att *attempt) {
	s.stopTimersLocked(att)
	att.method = ""
	att.state = domain.StateSelection
	att.pix = nil
	att.card = nil
	att.cardCharge = ""
}

// stopTimersLocked synchronously stops countdown, polling and the
// confirmation stream reader. Callers hold att.mu.
func (s *CheckoutService) stopTimersLocked(att *attempt) {
	if att.countdownStop != nil {
		close(att.countdownStop)
		att.countdownStop = nil
	}
	if att.pollStop != nil {
		close(att.pollStop)
		att.pollStop = nil
	}
	if att.streamCancel != nil {
		att.streamCancel()
		att.streamCancel = nil
	}
}

// ============================================================
// Payment entry point
// ============================================================

// PayRequest is the proceed-to-payment input. Card fields are only
// required for the credit-card method.
type PayRequest struct {
	Card         *domain.CardForm
	Installments int
}

// Pay runs the active method's payment flow. While a charge creation is
// in flight the attempt is marked processing and re-invocations are
// no-ops returning the current snapshot.
func (s *CheckoutService) Pay(ctx context.Context, attemptID, buyerID string, req *PayRequest) (*domain.AttemptSnapshot, error) {
	ctx, span := tracer.Start(ctx, "CheckoutService.Pay")
	defer span.End()
	span.SetAttributes(attribute.String("attempt.id", attemptID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("pay", time.Since(start)) }()

	att, err := s.getAttempt(attemptID, buyerID)
	if err != nil {
		return nil, err
	}

	att.mu.Lock()
	if att.processing {
		// re-click while a charge creation is in flight: no-op
		snap := s.snapshotLocked(att)
		att.mu.Unlock()
		return snap, nil
	}
	if att.state != domain.StatePixActive && att.state != domain.StateCardActive {
		att.mu.Unlock()
		return nil, &domain.ErrConflict{Message: "selecione um método de pagamento"}
	}
	method := att.method
	att.mu.Unlock()

	// security guard: abort before any side effect
	decision, err := s.guard.CheckPurchaseAllowed(ctx, buyerID, att.item.ID)
	if err != nil {
		s.toastError(att, "Não foi possível validar a compra. Tente novamente.")
		return nil, err
	}
	if !decision.Allowed {
		s.toastError(att, decision.Reason)
		return nil, &domain.ErrPurchaseBlocked{Reason: decision.Reason}
	}

	switch method {
	case domain.MethodPix:
		return s.startPixPayment(ctx, att)
	default:
		return s.startCardPayment(ctx, att, req)
	}
}

// ============================================================
// Reducer
// ============================================================

// apply feeds one typed event into the attempt's state machine. It
// returns true when the event's source loop (countdown ticker, poll
// ticker, stream reader) should stop. Every event re-checks current
// state, so a tick racing a confirmation in the same window is a no-op.
func (s *CheckoutService) apply(att *attempt, ev domain.Event) bool {
	att.mu.Lock()
	defer att.mu.Unlock()

	if att.released {
		return true
	}

	switch e := ev.(type) {

	case domain.MethodSelected, domain.ChargeCreated:
		return s.applyLocked(att, ev)

	case domain.Tick:
		if att.pix == nil || att.pix.session == nil || att.state.IsTerminal() || att.processing {
			return att.pix == nil || att.pix.session == nil || att.state.IsTerminal()
		}
		remaining := att.pix.session.Remaining(s.clock.Now())
		att.pix.remaining = int(remaining / time.Second)
		if remaining <= 0 {
			return s.applyLocked(att, domain.Expired{})
		}
		s.notifier.StateChanged(att.id, s.snapshotLocked(att))
		return false

	case domain.Expired:
		return s.applyLocked(att, e)

	case domain.QRRefreshed:
		if att.pix == nil || att.pix.session == nil {
			return true
		}
		if e.Err != nil || e.Charge == nil || e.Charge.QRCodeImage == "" {
			s.notifier.Toast(att.id, domain.Toast{
				Level:   "error",
				Message: "Não foi possível carregar o QR Code. Copie o código Pix.",
				At:      s.clock.Now(),
			})
			return true
		}
		att.pix.session.QRCodeImage = e.Charge.QRCodeImage
		att.pix.session.CopyPasteString = e.Charge.CopyPasteString
		if err := s.sessions.Put(att.pix.session); err != nil {
			s.logger.Error("failed to persist refreshed QR", zap.Error(err))
		}
		s.notifier.Toast(att.id, domain.Toast{
			Level:   "success",
			Message: "QR Code carregado.",
			At:      s.clock.Now(),
		})
		s.notifier.StateChanged(att.id, s.snapshotLocked(att))
		return true

	case domain.ConfirmationReceived:
		return s.applyLocked(att, e)

	case domain.StreamTimeout:
		// countdown stays authoritative; just stop listening
		return true

	case domain.PollResult:
		if att.state.IsTerminal() || att.cardCharge == "" {
			return true
		}
		if e.Err != nil {
			s.logger.Warn("card poll failed",
				zap.String("attempt_id", att.id),
				zap.Error(e.Err),
			)
			return false
		}
		switch {
		case e.Status.IsApproved():
			return s.applyLocked(att, domain.ConfirmationReceived{ChargeID: att.cardCharge})
		case e.Status.IsDeclined():
			s.metrics.IncrOutcome("declined")
			att.processing = false
			att.state = domain.StateCardActive
			att.cardCharge = ""
			s.notifier.Toast(att.id, domain.Toast{
				Level:   "error",
				Message: "Pagamento recusado. Verifique os dados do cartão.",
				At:      s.clock.Now(),
			})
			s.notifier.StateChanged(att.id, s.snapshotLocked(att))
			return true
		default:
			return false
		}

	case domain.PollCeilingReached:
		// accepted outcome: stop calling the gateway, no error toast
		s.logger.Info("card polling ceiling reached",
			zap.String("attempt_id", att.id),
			zap.String("charge_id", att.cardCharge),
		)
		att.pollStop = nil
		return true

	case domain.RedirectReady:
		att.redirect = e.Redirect
		att.state = domain.StateConfirmed
		att.processing = false
		s.notifier.StateChanged(att.id, s.snapshotLocked(att))
		return true

	case domain.ChargeFailed:
		att.processing = false
		if e.Method == domain.MethodPix {
			att.state = domain.StatePixActive
		} else {
			att.state = domain.StateCardActive
		}
		s.notifier.Toast(att.id, domain.Toast{Level: "error", Message: e.Reason, At: s.clock.Now()})
		s.notifier.StateChanged(att.id, s.snapshotLocked(att))
		return true
	}

	return false
}

// applyLocked handles the transitions shared by several events. Callers
// hold att.mu.
func (s *CheckoutService) applyLocked(att *attempt, ev domain.Event) bool {
	switch e := ev.(type) {

	case domain.MethodSelected:
		if att.method == e.Method {
			// re-selecting the open method collapses it
			s.collapseMethodLocked(att)
			return true
		}
		// opening one method collapses the other
		s.collapseMethodLocked(att)
		att.method = e.Method
		if e.Method == domain.MethodPix {
			att.state = domain.StatePixActive
			// the buyer's unexpired persisted session for this item resumes
			if session, err := s.sessions.Get(att.buyerID); err == nil && session != nil &&
				session.ItemID == att.item.ID && session.Remaining(s.clock.Now()) > 0 {
				att.pix = &pixState{
					session:   session,
					remaining: int(session.Remaining(s.clock.Now()) / time.Second),
					resumed:   true,
				}
				s.startPixCountdown(att)
			}
		} else {
			att.state = domain.StateCardActive
			if att.installments == 0 {
				att.installments = 1
			}
		}
		return true

	case domain.ChargeCreated:
		if e.Method == domain.MethodPix {
			att.processing = false
			att.pix = &pixState{
				session: &domain.PixSession{
					BuyerID:         att.buyerID,
					ItemID:          att.item.ID,
					PaymentID:       e.Charge.ID,
					QRCodeImage:     e.Charge.QRCodeImage,
					CopyPasteString: e.Charge.CopyPasteString,
					ExpiresAt:       s.clock.Now().Add(s.timing.PixExpiry),
				},
				remaining: int(s.timing.PixExpiry / time.Second),
			}
			att.state = domain.StatePixActive
			if err := s.sessions.Put(att.pix.session); err != nil {
				s.logger.Error("failed to persist pix session", zap.Error(err))
			}
			s.startPixCountdown(att)
			s.startConfirmationStream(att, e.Charge.ID)
			if e.Charge.QRCodeImage == "" {
				s.scheduleQRRefresh(att, e.Charge.ID)
			}
		} else {
			// pending card charge: keep processing and poll until a
			// terminal status or the silent ceiling
			att.cardCharge = e.Charge.ID
			att.state = domain.StateProcessing
			s.startCardPolling(att, e.Charge.ID)
		}
		s.notifier.StateChanged(att.id, s.snapshotLocked(att))
		return true

	case domain.Expired:
		if att.pix == nil || att.pix.session == nil {
			return true
		}
		if err := s.sessions.Clear(att.buyerID); err != nil {
			s.logger.Error("failed to clear expired pix session", zap.Error(err))
		}
		att.pix.session = nil
		att.pix.remaining = 0
		att.pix.expired = true
		att.countdownStop = nil
		if att.streamCancel != nil {
			att.streamCancel()
			att.streamCancel = nil
		}
		s.metrics.IncrOutcome("expired")
		s.logger.Info("pix session expired", zap.String("attempt_id", att.id))
		s.notifier.StateChanged(att.id, s.snapshotLocked(att))
		return true

	case domain.ConfirmationReceived:
		if att.state.IsTerminal() {
			return true
		}
		s.stopTimersLocked(att)
		if att.pix != nil && att.pix.session != nil {
			if err := s.sessions.Clear(att.buyerID); err != nil {
				s.logger.Error("failed to clear confirmed pix session", zap.Error(err))
			}
			att.pix.session = nil
		}
		att.processing = true
		att.state = domain.StateProcessing
		s.metrics.IncrOutcome("confirmed")
		s.notifier.Toast(att.id, domain.Toast{
			Level:   "success",
			Message: "Pagamento confirmado!",
			At:      s.clock.Now(),
		})
		s.notifier.StateChanged(att.id, s.snapshotLocked(att))
		s.scheduleRedirect(att, e.ChargeID)
		return true
	}

	return false
}

// scheduleRedirect emits RedirectReady after the short user-visible
// delay, resolving the ledger order best-effort. Callers hold att.mu.
func (s *CheckoutService) scheduleRedirect(att *attempt, chargeID string) {
	method := att.method
	itemID := att.item.ID
	amount := pricing.Total(att.item, method, att.quantity)
	installments := 0
	if method == domain.MethodCreditCard {
		installments = att.installments
		amount = pricing.FinalCardValue(amount, att.installments)
	}
	platform := att.platform

	// register the delay before returning so a fake clock advanced right
	// after confirmation still fires it
	delay := s.clock.After(s.timing.RedirectDelay)

	go func() {
		<-delay

		orderID, err := s.ledger.FindOrderByCharge(context.Background(), chargeID)
		if err != nil || orderID == "" {
			// ledger not caught up yet: the charge ID still identifies the order
			orderID = chargeID
		}

		s.apply(att, domain.RedirectReady{Redirect: &domain.Redirect{
			OrderID:      orderID,
			ItemID:       itemID,
			PaymentID:    chargeID,
			Amount:       amount,
			Method:       method,
			Installments: installments,
			Platform:     platform,
		}})
	}()
}

// ============================================================
// Snapshots and toasts
// ============================================================

func (s *CheckoutService) snapshot(att *attempt) *domain.AttemptSnapshot {
	att.mu.Lock()
	defer att.mu.Unlock()
	return s.snapshotLocked(att)
}

func (s *CheckoutService) snapshotLocked(att *attempt) *domain.AttemptSnapshot {
	snap := &domain.AttemptSnapshot{
		AttemptID:      att.id,
		ItemID:         att.item.ID,
		ItemName:       att.item.Name,
		State:          att.state,
		Method:         att.method,
		Quantity:       att.quantity,
		MinQuantity:    pricing.MinQuantity(att.item),
		Platform:       att.platform,
		Installments:   att.installments,
		PixTotal:       pricing.Total(att.item, domain.MethodPix, att.quantity),
		CardTotal:      pricing.FinalCardValue(pricing.Total(att.item, domain.MethodCreditCard, att.quantity), att.installments),
		PixAvailable:   pricing.IsAvailable(att.item, domain.MethodPix, att.quantity, s.cardEnabled),
		CardAvailable:  pricing.IsAvailable(att.item, domain.MethodCreditCard, att.quantity, s.cardEnabled),
		Processing:     att.processing,
		Redirect:       att.redirect,
		AddressPrefill: att.prefill,
		UpdatedAt:      s.clock.Now(),
	}

	if att.pix != nil {
		panel := &domain.PixPanel{
			SecondsRemaining: att.pix.remaining,
			Expired:          att.pix.expired,
			Resumed:          att.pix.resumed,
		}
		if att.pix.session != nil {
			panel.PaymentID = att.pix.session.PaymentID
			panel.QRCodeImage = att.pix.session.QRCodeImage
			panel.CopyPasteString = att.pix.session.CopyPasteString
		}
		snap.Pix = panel
	}

	return snap
}

func (s *CheckoutService) toastError(att *attempt, message string) {
	s.notifier.Toast(att.id, domain.Toast{Level: "error", Message: message, At: s.clock.Now()})
}
