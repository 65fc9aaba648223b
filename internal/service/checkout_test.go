package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/arenastore/checkout-bff-go/internal/infra/clock"
	"github.com/arenastore/checkout-bff-go/internal/infra/observability"
	"github.com/arenastore/checkout-bff-go/internal/infra/sessionstore"
	"github.com/arenastore/checkout-bff-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- Mocks ---

type mockGateway struct {
	mu           sync.Mutex
	charge       *domain.Charge
	createErr    error
	pollStatuses []domain.ChargeStatus
	polls        int
	created      []*domain.ChargeRequest

	refreshQR        string
	refreshCopyPaste string
}

func (m *mockGateway) CreateCharge(_ context.Context, req *domain.ChargeRequest) (*domain.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, req)
	if m.createErr != nil {
		return nil, m.createErr
	}
	c := *m.charge
	return &c, nil
}

func (m *mockGateway) GetCharge(_ context.Context, chargeID string) (*domain.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	idx := m.polls - 1
	if idx >= len(m.pollStatuses) {
		idx = len(m.pollStatuses) - 1
	}
	return &domain.Charge{
		ID:              chargeID,
		Status:          m.pollStatuses[idx],
		QRCodeImage:     m.refreshQR,
		CopyPasteString: m.refreshCopyPaste,
	}, nil
}

func (m *mockGateway) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

func (m *mockGateway) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

type mockCustomers struct {
	payer *domain.PayerRef
}

func (m *mockCustomers) FindCustomerByEmail(_ context.Context, _ string) (*domain.PayerRef, error) {
	return m.payer, nil
}

func (m *mockCustomers) FindCustomerByDocument(_ context.Context, _ string) (*domain.PayerRef, error) {
	return m.payer, nil
}

func (m *mockCustomers) CreateCustomer(_ context.Context, p *domain.BuyerProfile) (*domain.PayerRef, error) {
	return &domain.PayerRef{CustomerID: "cus-new", Email: p.Email, Document: p.Document}, nil
}

type mockStream struct {
	mu    sync.Mutex
	chans map[string]chan domain.ConfirmationEvent
}

func newMockStream() *mockStream {
	return &mockStream{chans: make(map[string]chan domain.ConfirmationEvent)}
}

func (m *mockStream) Subscribe(ctx context.Context, chargeID, _ string) (<-chan domain.ConfirmationEvent, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan domain.ConfirmationEvent, 4)
	m.chans[chargeID] = ch
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if m.chans[chargeID] == ch {
			delete(m.chans, chargeID)
			close(ch)
		}
		m.mu.Unlock()
	}()
	return ch, func() {}, nil
}

// confirm waits for the subscription (it is attached on a goroutine) and
// pushes the paid event.
func (m *mockStream) confirm(chargeID string) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		ch, ok := m.chans[chargeID]
		m.mu.Unlock()
		if ok {
			ch <- domain.ConfirmationEvent{Type: domain.ConfirmationPaid, ChargeID: chargeID}
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type mockGuard struct {
	allowed bool
	reason  string
	delay   time.Duration
}

func (m *mockGuard) CheckPurchaseAllowed(_ context.Context, _, _ string) (*domain.PurchaseDecision, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return &domain.PurchaseDecision{Allowed: m.allowed, Reason: m.reason}, nil
}

type mockCatalog struct {
	items map[string]*domain.Item
}

func (m *mockCatalog) GetItem(_ context.Context, itemID string) (*domain.Item, error) {
	item, ok := m.items[itemID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "item", ID: itemID}
	}
	return item, nil
}

type mockProfiles struct{}

func (mockProfiles) GetProfile(_ context.Context, buyerID string) (*domain.BuyerProfile, error) {
	return &domain.BuyerProfile{
		BuyerID:  buyerID,
		Name:     "Maria Oliveira",
		Email:    "maria@example.com",
		Document: "52998224725",
	}, nil
}

type mockLedger struct {
	orderID string
}

func (m *mockLedger) FindOrderByCharge(_ context.Context, _ string) (string, error) {
	return m.orderID, nil
}

type memAddressStore struct {
	mu sync.Mutex
	m  map[string]*domain.BillingAddress
}

func (s *memAddressStore) Get(buyerID string) (*domain.BillingAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[buyerID], nil
}

func (s *memAddressStore) Put(buyerID string, addr *domain.BillingAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]*domain.BillingAddress)
	}
	s.m[buyerID] = addr
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []domain.Toast
}

func (n *recordingNotifier) Toast(_ string, toast domain.Toast) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, toast)
}

func (n *recordingNotifier) StateChanged(_ string, _ *domain.AttemptSnapshot) {}

func (n *recordingNotifier) errorToasts() []domain.Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Toast
	for _, t := range n.toasts {
		if t.Level == "error" {
			out = append(out, t)
		}
	}
	return out
}

// --- Harness ---

type harness struct {
	svc      *service.CheckoutService
	clk      *clock.Fake
	gateway  *mockGateway
	stream   *mockStream
	sessions *sessionstore.Memory
	notifier *recordingNotifier
}

func accountItem() *domain.Item {
	return &domain.Item{
		ID:             "itm-acc",
		Name:           "Conta Lendária",
		Kind:           domain.KindAccount,
		RLPrice:        decimal.NewFromFloat(150.00),
		ParceladoPrice: decimal.NewFromFloat(165.00),
		Stock:          1,
		HasCredential:  true,
		SellerID:       "sel-1",
	}
}

func kksItem() *domain.Item {
	return &domain.Item{
		ID:             "itm-kks",
		Name:           "KKS",
		Kind:           domain.KindCurrency,
		RLPrice:        decimal.NewFromFloat(0.35),
		ParceladoPrice: decimal.NewFromFloat(0.40),
		Stock:          10000,
		SellerID:       "sel-2",
	}
}

func digitalItem() *domain.Item {
	return &domain.Item{
		ID:             "itm-dig",
		Name:           "Pacote Digital",
		Kind:           domain.KindDigital,
		RLPrice:        decimal.NewFromFloat(40.00),
		ParceladoPrice: decimal.NewFromFloat(44.00),
		Stock:          50,
		SellerID:       "sel-3",
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clk: clock.NewFake(time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)),
		gateway: &mockGateway{
			charge: &domain.Charge{
				ID:              "chg-1",
				Status:          domain.ChargePending,
				QRCodeImage:     "iVBORbase64",
				CopyPasteString: "00020126pixcopypaste",
			},
			pollStatuses: []domain.ChargeStatus{domain.ChargePending},
		},
		stream:   newMockStream(),
		sessions: sessionstore.NewMemory(),
		notifier: &recordingNotifier{},
	}

	h.svc = service.NewCheckoutService(service.Deps{
		Gateway:   h.gateway,
		Customers: &mockCustomers{payer: &domain.PayerRef{CustomerID: "cus-1", Email: "maria@example.com"}},
		Stream:    h.stream,
		Guard:     &mockGuard{allowed: true},
		Catalog: &mockCatalog{items: map[string]*domain.Item{
			"itm-acc": accountItem(),
			"itm-kks": kksItem(),
			"itm-dig": digitalItem(),
		}},
		Profiles:     mockProfiles{},
		Ledger:       &mockLedger{orderID: "ord-1"},
		Sessions:     h.sessions,
		Addresses:    &memAddressStore{},
		Notifier:     h.notifier,
		Clock:        h.clk,
		Validator:    service.NewCardValidator(service.ModeProduction),
		Metrics:      observability.NewMetrics(),
		Logger:       zap.NewNop(),
		Timing:       service.DefaultTiming(),
		CardEnabled:  true,
		DefaultPhone: "11999999999",
		DefaultCEP:   "01310100",
	})

	t.Cleanup(h.svc.Shutdown)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) state(t *testing.T, attemptID, buyerID string) *domain.AttemptSnapshot {
	t.Helper()
	snap, err := h.svc.GetAttempt(context.Background(), attemptID, buyerID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	return snap
}

// --- Quantity and availability ---

func TestOpenAttempt_ClampsCurrencyQuantityToMinimumCharge(t *testing.T) {
	h := newHarness(t)

	snap, err := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-kks", 1, "")
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}

	// 0.35 per unit: 15 units is the first quantity reaching R$5.00
	if snap.MinQuantity != 15 {
		t.Errorf("expected min quantity 15, got %d", snap.MinQuantity)
	}
	if snap.Quantity != 15 {
		t.Errorf("expected opening quantity clamped to 15, got %d", snap.Quantity)
	}
}

func TestSelectQuantity_RejectsBelowMinimumLeavingValueUnchanged(t *testing.T) {
	h := newHarness(t)

	snap, err := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-kks", 100, "")
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}

	if _, err := h.svc.SelectQuantity(context.Background(), snap.AttemptID, "buyer-1", 10); err == nil {
		t.Fatal("expected error for quantity below minimum")
	}

	after := h.state(t, snap.AttemptID, "buyer-1")
	if after.Quantity != 100 {
		t.Errorf("quantity should stay 100 after rejected update, got %d", after.Quantity)
	}
}

func TestSelectQuantity_CapsAtStock(t *testing.T) {
	h := newHarness(t)

	snap, err := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-kks", 100, "")
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}

	updated, err := h.svc.SelectQuantity(context.Background(), snap.AttemptID, "buyer-1", 20000)
	if err != nil {
		t.Fatalf("SelectQuantity: %v", err)
	}
	if updated.Quantity != 10000 {
		t.Errorf("expected quantity capped at stock 10000, got %d", updated.Quantity)
	}
}

// --- Platform and method selection ---

func TestSelectPaymentMethod_RequiresPlatformForCredentialItems(t *testing.T) {
	h := newHarness(t)

	snap, err := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-acc", 1, "")
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}

	if _, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodPix); err == nil {
		t.Fatal("expected platform-required error")
	}

	if _, err := h.svc.SelectPlatform(context.Background(), snap.AttemptID, "buyer-1", domain.PlatformAndroid); err != nil {
		t.Fatalf("SelectPlatform: %v", err)
	}
	opened, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodPix)
	if err != nil {
		t.Fatalf("SelectPaymentMethod: %v", err)
	}
	if opened.State != domain.StatePixActive {
		t.Errorf("expected pix_active, got %s", opened.State)
	}
}

func TestSelectPaymentMethod_ToggleCollapsesAndReopens(t *testing.T) {
	h := newHarness(t)

	snap, err := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-dig", 1, "")
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}

	s1, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodPix)
	if err != nil {
		t.Fatalf("first select: %v", err)
	}
	if s1.State != domain.StatePixActive {
		t.Fatalf("expected pix_active, got %s", s1.State)
	}

	s2, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodPix)
	if err != nil {
		t.Fatalf("second select: %v", err)
	}
	if s2.State != domain.StateSelection || s2.Method != "" {
		t.Fatalf("expected collapse back to selection, got state=%s method=%s", s2.State, s2.Method)
	}

	s3, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodPix)
	if err != nil {
		t.Fatalf("third select: %v", err)
	}
	if s3.State != domain.StatePixActive {
		t.Fatalf("expected pix_active after reopen, got %s", s3.State)
	}
}

func TestSelectPaymentMethod_OpeningCardCollapsesPix(t *testing.T) {
	h := newHarness(t)

	snap, _ := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-dig", 1, "")
	if _, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodPix); err != nil {
		t.Fatalf("select pix: %v", err)
	}
	card, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodCreditCard)
	if err != nil {
		t.Fatalf("select card: %v", err)
	}
	if card.State != domain.StateCardActive || card.Method != domain.MethodCreditCard {
		t.Errorf("expected card_active, got state=%s method=%s", card.State, card.Method)
	}
	if card.Pix != nil {
		t.Error("pix panel should be gone after switching to card")
	}
}

// --- PIX flow ---

func startPix(t *testing.T, h *harness, itemID string) *domain.AttemptSnapshot {
	t.Helper()
	snap, err := h.svc.OpenAttempt(context.Background(), "buyer-1", itemID, 1, "")
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}
	if _, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodPix); err != nil {
		t.Fatalf("SelectPaymentMethod: %v", err)
	}
	paid, err := h.svc.Pay(context.Background(), snap.AttemptID, "buyer-1", &service.PayRequest{})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	return paid
}

func TestPixPayment_HappyPath(t *testing.T) {
	h := newHarness(t)

	snap := startPix(t, h, "itm-dig")
	if snap.Pix == nil || snap.Pix.PaymentID != "chg-1" {
		t.Fatalf("expected pix panel for chg-1, got %+v", snap.Pix)
	}
	if snap.Pix.SecondsRemaining != 300 {
		t.Errorf("expected 300s countdown, got %d", snap.Pix.SecondsRemaining)
	}

	stored, err := h.sessions.Get("buyer-1")
	if err != nil || stored == nil || stored.PaymentID != "chg-1" {
		t.Fatalf("expected persisted session for chg-1, got %+v err=%v", stored, err)
	}

	h.stream.confirm("chg-1")
	waitFor(t, "processing state", func() bool {
		return h.state(t, snap.AttemptID, "buyer-1").State == domain.StateProcessing
	})

	h.clk.Advance(2 * time.Second)
	waitFor(t, "confirmed state", func() bool {
		return h.state(t, snap.AttemptID, "buyer-1").State == domain.StateConfirmed
	})

	final := h.state(t, snap.AttemptID, "buyer-1")
	if final.Redirect == nil {
		t.Fatal("expected redirect payload on confirmation")
	}
	if final.Redirect.OrderID != "ord-1" {
		t.Errorf("expected order ord-1, got %s", final.Redirect.OrderID)
	}
	if final.Redirect.PaymentID != "chg-1" {
		t.Errorf("expected payment chg-1, got %s", final.Redirect.PaymentID)
	}

	if stored, _ := h.sessions.Get("buyer-1"); stored != nil {
		t.Error("session slot should be cleared after confirmation")
	}
}

func TestPixPayment_CountdownExpires(t *testing.T) {
	h := newHarness(t)

	snap := startPix(t, h, "itm-dig")

	h.clk.Advance(301 * time.Second)
	waitFor(t, "expired panel", func() bool {
		s := h.state(t, snap.AttemptID, "buyer-1")
		return s.Pix != nil && s.Pix.Expired
	})

	s := h.state(t, snap.AttemptID, "buyer-1")
	if s.State != domain.StatePixActive {
		t.Errorf("expired attempt should stay pix_active for regeneration, got %s", s.State)
	}
	if s.Pix.SecondsRemaining != 0 {
		t.Errorf("expected 0s remaining, got %d", s.Pix.SecondsRemaining)
	}
	if stored, _ := h.sessions.Get("buyer-1"); stored != nil {
		t.Error("expired session should be cleared from the slot")
	}

	// a fresh charge replaces the expired one
	h.gateway.charge.ID = "chg-2"
	regen, err := h.svc.RegeneratePix(context.Background(), snap.AttemptID, "buyer-1")
	if err != nil {
		t.Fatalf("RegeneratePix: %v", err)
	}
	if regen.Pix == nil || regen.Pix.PaymentID != "chg-2" {
		t.Fatalf("expected new charge chg-2, got %+v", regen.Pix)
	}
	if regen.Pix.SecondsRemaining != 300 {
		t.Errorf("expected fresh 300s countdown, got %d", regen.Pix.SecondsRemaining)
	}
}

func TestPixPayment_SessionResumesAfterRelease(t *testing.T) {
	h := newHarness(t)

	snap := startPix(t, h, "itm-dig")

	h.clk.Advance(258 * time.Second)

	if err := h.svc.Release(snap.AttemptID, "buyer-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if stored, _ := h.sessions.Get("buyer-1"); stored == nil {
		t.Fatal("session must survive release")
	}

	reopened, err := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-dig", 1, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.State != domain.StatePixActive {
		t.Fatalf("expected resumed pix_active, got %s", reopened.State)
	}
	if reopened.Pix == nil || !reopened.Pix.Resumed {
		t.Fatal("expected resumed pix panel")
	}
	if reopened.Pix.SecondsRemaining != 42 {
		t.Errorf("expected 42s remaining on resume, got %d", reopened.Pix.SecondsRemaining)
	}
	if reopened.Pix.PaymentID != "chg-1" {
		t.Errorf("expected same charge chg-1, got %s", reopened.Pix.PaymentID)
	}
}

func TestPixPayment_MissingQRRefetchedOnce(t *testing.T) {
	h := newHarness(t)
	h.gateway.charge = &domain.Charge{
		ID:              "chg-noqr",
		Status:          domain.ChargePending,
		CopyPasteString: "00020126pixcopypaste",
	}
	h.gateway.refreshQR = "iVBORlateqr"
	h.gateway.refreshCopyPaste = "00020126pixcopypaste"

	snap := startPix(t, h, "itm-dig")
	if snap.Pix.QRCodeImage != "" {
		t.Fatal("charge came back without a QR image")
	}

	h.clk.Advance(time.Second)
	waitFor(t, "refreshed QR", func() bool {
		return h.state(t, snap.AttemptID, "buyer-1").Pix.QRCodeImage == "iVBORlateqr"
	})

	if got := h.gateway.pollCount(); got != 1 {
		t.Errorf("expected exactly one re-fetch, got %d", got)
	}

	// the refreshed QR is persisted with the session
	stored, _ := h.sessions.Get("buyer-1")
	if stored == nil || stored.QRCodeImage != "iVBORlateqr" {
		t.Errorf("refreshed QR must be persisted, got %+v", stored)
	}
}

func TestPixPayment_SessionForOtherItemDoesNotResume(t *testing.T) {
	h := newHarness(t)

	snap := startPix(t, h, "itm-dig")
	if err := h.svc.Release(snap.AttemptID, "buyer-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	other, err := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-kks", 15, "")
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}
	if other.State != domain.StateSelection || other.Pix != nil {
		t.Errorf("expected clean selection for a different item, got state=%s pix=%+v", other.State, other.Pix)
	}
}

func TestPixPayment_SessionNotVisibleToOtherBuyer(t *testing.T) {
	h := newHarness(t)

	snap := startPix(t, h, "itm-dig")
	if err := h.svc.Release(snap.AttemptID, "buyer-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	other, err := h.svc.OpenAttempt(context.Background(), "buyer-2", "itm-dig", 1, "")
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}
	if other.State != domain.StateSelection || other.Pix != nil {
		t.Errorf("another buyer must not see the session, got state=%s pix=%+v", other.State, other.Pix)
	}
	if _, err := h.svc.SelectPaymentMethod(context.Background(), other.AttemptID, "buyer-2", domain.MethodPix); err != nil {
		t.Fatalf("SelectPaymentMethod: %v", err)
	}
	opened := h.state(t, other.AttemptID, "buyer-2")
	if opened.Pix != nil && opened.Pix.PaymentID == "chg-1" {
		t.Error("opening pix must not attach another buyer's charge")
	}

	// buyer-1's own slot is untouched
	if stored, _ := h.sessions.Get("buyer-1"); stored == nil || stored.PaymentID != "chg-1" {
		t.Errorf("buyer-1's session must survive, got %+v", stored)
	}
}

func TestPay_BlockedByPurchaseGuard(t *testing.T) {
	h := newHarnessWithGuard(t, &mockGuard{allowed: false, reason: "Você já possui este item"})

	snap, _ := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-dig", 1, "")
	if _, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodPix); err != nil {
		t.Fatalf("SelectPaymentMethod: %v", err)
	}

	_, err := h.svc.Pay(context.Background(), snap.AttemptID, "buyer-1", &service.PayRequest{})
	if err == nil {
		t.Fatal("expected purchase-blocked error")
	}
	if len(h.gateway.created) != 0 {
		t.Error("no charge may be created when the guard rejects")
	}
	after := h.state(t, snap.AttemptID, "buyer-1")
	if after.State != domain.StatePixActive {
		t.Errorf("attempt should stay pix_active after guard rejection, got %s", after.State)
	}
}

func TestPay_ConcurrentClicksCreateOneCharge(t *testing.T) {
	// a slow guard call holds both racers in Pay at the same time
	h := newHarnessWithGuard(t, &mockGuard{allowed: true, delay: 30 * time.Millisecond})

	snap, err := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-dig", 1, "")
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}
	if _, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodPix); err != nil {
		t.Fatalf("SelectPaymentMethod: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.Pay(context.Background(), snap.AttemptID, "buyer-1", &service.PayRequest{}); err != nil {
				t.Errorf("Pay: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := h.gateway.createdCount(); got != 1 {
		t.Errorf("double click must create exactly one charge, got %d", got)
	}
	final := h.state(t, snap.AttemptID, "buyer-1")
	if final.Pix == nil || final.Pix.PaymentID != "chg-1" {
		t.Errorf("expected single pix panel for chg-1, got %+v", final.Pix)
	}
}

// --- Card flow ---

func payCard(t *testing.T, h *harness, installments int) *domain.AttemptSnapshot {
	t.Helper()
	snap, err := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-dig", 1, "")
	if err != nil {
		t.Fatalf("OpenAttempt: %v", err)
	}
	if _, err := h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodCreditCard); err != nil {
		t.Fatalf("SelectPaymentMethod: %v", err)
	}
	paid, err := h.svc.Pay(context.Background(), snap.AttemptID, "buyer-1", &service.PayRequest{
		Card:         validForm(),
		Installments: installments,
	})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	return paid
}

func TestCardPayment_ValidationFailureNeverReachesGateway(t *testing.T) {
	h := newHarness(t)

	snap, _ := h.svc.OpenAttempt(context.Background(), "buyer-1", "itm-dig", 1, "")
	h.svc.SelectPaymentMethod(context.Background(), snap.AttemptID, "buyer-1", domain.MethodCreditCard)

	form := validForm()
	form.Document = "11111111111"
	_, err := h.svc.Pay(context.Background(), snap.AttemptID, "buyer-1", &service.PayRequest{Card: form, Installments: 1})

	var cardErr *domain.ErrCardValidation
	if !errors.As(err, &cardErr) {
		t.Fatalf("expected ErrCardValidation, got %v", err)
	}
	if _, ok := cardErr.Fields["document"]; !ok {
		t.Errorf("expected document field error, got %v", cardErr.Fields)
	}
	if len(h.gateway.created) != 0 {
		t.Error("invalid form must not create a charge")
	}
}

func TestCardPayment_DeclineReturnsToCardActiveWithFormIntact(t *testing.T) {
	h := newHarness(t)
	h.gateway.pollStatuses = []domain.ChargeStatus{domain.ChargePending, domain.ChargeRefused}

	snap := payCard(t, h, 3)
	if snap.State != domain.StateProcessing {
		t.Fatalf("expected processing while polling, got %s", snap.State)
	}

	h.clk.Advance(3 * time.Second) // first poll: still pending
	h.clk.Advance(3 * time.Second) // second poll: refused

	waitFor(t, "card_active after decline", func() bool {
		return h.state(t, snap.AttemptID, "buyer-1").State == domain.StateCardActive
	})

	after := h.state(t, snap.AttemptID, "buyer-1")
	if after.Processing {
		t.Error("processing flag must clear on decline")
	}
	if after.Installments != 3 {
		t.Errorf("installment selection must survive a decline, got %d", after.Installments)
	}

	toasts := h.notifier.errorToasts()
	if len(toasts) == 0 || !strings.Contains(toasts[len(toasts)-1].Message, "recusado") {
		t.Errorf("expected decline toast, got %v", toasts)
	}
}

func TestCardPayment_ImmediateApproval(t *testing.T) {
	h := newHarness(t)
	h.gateway.charge = &domain.Charge{ID: "chg-ok", Status: domain.ChargeConfirmed}

	snap := payCard(t, h, 1)
	if snap.State != domain.StateProcessing {
		t.Fatalf("expected processing after approval, got %s", snap.State)
	}

	h.clk.Advance(2 * time.Second)
	waitFor(t, "confirmed", func() bool {
		return h.state(t, snap.AttemptID, "buyer-1").State == domain.StateConfirmed
	})

	final := h.state(t, snap.AttemptID, "buyer-1")
	if final.Redirect == nil || final.Redirect.Method != domain.MethodCreditCard {
		t.Fatalf("expected card redirect, got %+v", final.Redirect)
	}
	if h.gateway.pollCount() != 0 {
		t.Errorf("immediate approval must not poll, polled %d times", h.gateway.pollCount())
	}
}

func TestCardPayment_PollingApproval(t *testing.T) {
	h := newHarness(t)
	h.gateway.pollStatuses = []domain.ChargeStatus{domain.ChargePending, domain.ChargePending, domain.ChargeReceived}

	snap := payCard(t, h, 2)

	h.clk.Advance(9 * time.Second)
	waitFor(t, "confirmed after polling", func() bool {
		return h.state(t, snap.AttemptID, "buyer-1").State == domain.StateProcessing ||
			h.state(t, snap.AttemptID, "buyer-1").State == domain.StateConfirmed
	})

	h.clk.Advance(2 * time.Second)
	waitFor(t, "confirmed", func() bool {
		return h.state(t, snap.AttemptID, "buyer-1").State == domain.StateConfirmed
	})
}

func TestCardPayment_PollingCeilingStopsSilently(t *testing.T) {
	h := newHarness(t)
	h.gateway.pollStatuses = []domain.ChargeStatus{domain.ChargePending}

	snap := payCard(t, h, 1)

	h.clk.Advance(5 * time.Minute)
	polled := h.gateway.pollCount()
	if polled == 0 {
		t.Fatal("expected polls before the ceiling")
	}

	// past the ceiling nothing polls anymore
	h.clk.Advance(30 * time.Second)
	if h.gateway.pollCount() != polled {
		t.Errorf("polling must stop at the ceiling: %d -> %d", polled, h.gateway.pollCount())
	}

	after := h.state(t, snap.AttemptID, "buyer-1")
	if after.State != domain.StateProcessing {
		t.Errorf("ceiling is silent: state should remain processing, got %s", after.State)
	}
	if toasts := h.notifier.errorToasts(); len(toasts) != 0 {
		t.Errorf("ceiling must not surface an error toast, got %v", toasts)
	}
}

func TestConfirmChargeSandbox(t *testing.T) {
	h := newHarness(t)

	snap := payCard(t, h, 1)

	if ok := h.svc.ConfirmChargeSandbox("chg-1"); !ok {
		t.Fatal("expected sandbox confirmation to find the charge")
	}
	h.clk.Advance(2 * time.Second)
	waitFor(t, "confirmed", func() bool {
		return h.state(t, snap.AttemptID, "buyer-1").State == domain.StateConfirmed
	})
}

// --- helpers ---

func newHarnessWithGuard(t *testing.T, guard *mockGuard) *harness {
	t.Helper()

	h := &harness{
		clk: clock.NewFake(time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)),
		gateway: &mockGateway{
			charge:       &domain.Charge{ID: "chg-1", Status: domain.ChargePending},
			pollStatuses: []domain.ChargeStatus{domain.ChargePending},
		},
		stream:   newMockStream(),
		sessions: sessionstore.NewMemory(),
		notifier: &recordingNotifier{},
	}
	h.svc = service.NewCheckoutService(service.Deps{
		Gateway:   h.gateway,
		Customers: &mockCustomers{payer: &domain.PayerRef{CustomerID: "cus-1"}},
		Stream:    h.stream,
		Guard:     guard,
		Catalog: &mockCatalog{items: map[string]*domain.Item{
			"itm-dig": digitalItem(),
		}},
		Profiles:     mockProfiles{},
		Ledger:       &mockLedger{orderID: "ord-1"},
		Sessions:     h.sessions,
		Addresses:    &memAddressStore{},
		Notifier:     h.notifier,
		Clock:        h.clk,
		Validator:    service.NewCardValidator(service.ModeProduction),
		Metrics:      observability.NewMetrics(),
		Logger:       zap.NewNop(),
		Timing:       service.DefaultTiming(),
		CardEnabled:  true,
		DefaultPhone: "11999999999",
		DefaultCEP:   "01310100",
	})
	t.Cleanup(h.svc.Shutdown)
	return h
}
