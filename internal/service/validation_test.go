package service_test

import (
	"testing"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/domain"
	"github.com/arenastore/checkout-bff-go/internal/service"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func validForm() *domain.CardForm {
	return &domain.CardForm{
		HolderName: "Maria Oliveira",
		Number:     "4539 1488 0343 6467",
		Expiry:     "12/27",
		CVV:        "123",
		Document:   "529.982.247-25",
		Address: domain.BillingAddress{
			Line1:      "Av. Paulista, 1000",
			City:       "São Paulo",
			State:      "SP",
			PostalCode: "01310-100",
		},
	}
}

func TestValidCardNumber(t *testing.T) {
	prod := service.NewCardValidator(service.ModeProduction)
	sandbox := service.NewCardValidator(service.ModeSandbox)

	tests := []struct {
		name    string
		number  string
		v       *service.CardValidator
		want    bool
	}{
		{"luhn valid", "4539148803436467", prod, true},
		{"luhn valid with spaces", "4539 1488 0343 6467", prod, true},
		{"luhn invalid", "4539148803436468", prod, false},
		{"too short", "45391488", prod, false},
		{"gateway test visa passes everywhere", "4111111111111111", prod, true},
		{"gateway test visa in sandbox", "4111111111111111", sandbox, true},
		{"gateway test mastercard in sandbox", "5184019740373151", sandbox, true},
		{"luhn still applies to unknown numbers in sandbox", "4539148803436468", sandbox, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.ValidCardNumber(tt.number); got != tt.want {
				t.Errorf("ValidCardNumber(%q) = %v, want %v", tt.number, got, tt.want)
			}
		})
	}
}

func TestValidDocument(t *testing.T) {
	prod := service.NewCardValidator(service.ModeProduction)
	sandbox := service.NewCardValidator(service.ModeSandbox)

	tests := []struct {
		name     string
		document string
		v        *service.CardValidator
		want     bool
	}{
		{"valid cpf", "52998224725", prod, true},
		{"valid cpf formatted", "529.982.247-25", prod, true},
		{"bad check digit", "52998224724", prod, false},
		{"repeated digits", "11111111111", prod, false},
		{"repeated digits rejected even in sandbox", "00000000000", sandbox, false},
		{"sandbox test document", "12345678900", sandbox, true},
		{"sandbox test document rejected in production", "12345678900", prod, false},
		{"too short", "5299822472", prod, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.ValidDocument(tt.document); got != tt.want {
				t.Errorf("ValidDocument(%q) = %v, want %v", tt.document, got, tt.want)
			}
		})
	}
}

func TestValidExpiry(t *testing.T) {
	v := service.NewCardValidator(service.ModeProduction)

	tests := []struct {
		name   string
		expiry string
		want   bool
	}{
		{"future month", "12/27", true},
		{"current month still valid", "03/26", true},
		{"last month expired", "02/26", false},
		{"month zero", "00/27", false},
		{"month thirteen", "13/27", false},
		{"exactly ten years out", "03/36", true},
		{"ten years and one month out", "04/36", false},
		{"beyond ten years", "01/37", false},
		{"wrong format", "2027-12", false},
		{"missing slash", "1227", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.ValidExpiry(tt.expiry, testNow); got != tt.want {
				t.Errorf("ValidExpiry(%q) = %v, want %v", tt.expiry, got, tt.want)
			}
		})
	}
}

func TestValidate_AllFieldsOK(t *testing.T) {
	v := service.NewCardValidator(service.ModeProduction)

	if fields := v.Validate(validForm(), testNow); len(fields) != 0 {
		t.Fatalf("expected no field errors, got %v", fields)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	v := service.NewCardValidator(service.ModeProduction)

	form := validForm()
	form.Number = "4539148803436468"
	form.Expiry = "13/27"
	form.CVV = "12"
	form.Document = "11111111111"
	form.Address.PostalCode = "1310"
	form.Address.State = "São Paulo"

	fields := v.Validate(form, testNow)
	for _, field := range []string{"number", "expiry", "cvv", "document", "address.postalCode", "address.state"} {
		if _, ok := fields[field]; !ok {
			t.Errorf("expected error for field %q, got %v", field, fields)
		}
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	v := service.NewCardValidator(service.ModeProduction)

	fields := v.Validate(&domain.CardForm{}, testNow)
	if len(fields) == 0 {
		t.Fatal("expected errors for an empty form")
	}
	if _, ok := fields["holderName"]; !ok {
		t.Errorf("expected holderName error, got %v", fields)
	}
	if _, ok := fields["address.line1"]; !ok {
		t.Errorf("expected address.line1 error, got %v", fields)
	}
	if _, ok := fields["address.city"]; !ok {
		t.Errorf("expected address.city error, got %v", fields)
	}
}
