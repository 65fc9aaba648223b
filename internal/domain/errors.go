package domain

import "fmt"

// Error types for consistent error handling across the checkout BFF.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrCardValidation carries the per-field errors that block a card
// submission locally, before anything reaches the gateway.
type ErrCardValidation struct {
	Fields map[string]string
}

func (e *ErrCardValidation) Error() string {
	return fmt.Sprintf("card form invalid: %d field(s)", len(e.Fields))
}

// ErrPurchaseBlocked indicates the purchase security guard rejected the
// attempt (e.g. the buyer already owns the item).
type ErrPurchaseBlocked struct {
	Reason string
}

func (e *ErrPurchaseBlocked) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "compra não permitida"
}

// ErrPaymentDeclined indicates the gateway refused or cancelled a charge.
type ErrPaymentDeclined struct {
	ChargeID string
	Status   ChargeStatus
}

func (e *ErrPaymentDeclined) Error() string {
	return fmt.Sprintf("payment declined [%s]: %s", e.ChargeID, e.Status)
}

// ErrInvalidCard indicates the gateway rejected the card data outright.
// The card flow must not enter the polling loop on this error.
type ErrInvalidCard struct {
	Code    string
	Message string
}

func (e *ErrInvalidCard) Error() string {
	return fmt.Sprintf("invalid card [%s]: %s", e.Code, e.Message)
}

// ErrMethodUnavailable indicates the payment method cannot be offered for
// the current item/quantity selection.
type ErrMethodUnavailable struct {
	Method PaymentMethod
	Reason string
}

func (e *ErrMethodUnavailable) Error() string {
	return fmt.Sprintf("payment method unavailable [%s]: %s", e.Method, e.Reason)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the buyer lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrConflict indicates the operation clashes with the attempt's state
// (e.g. paying while another charge creation is still in flight).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
