package wallet

import "errors"

var (
	// ErrInvalidInput is returned for malformed amounts, empty recipients and
	// unsupported currencies. No notice is posted for it.
	ErrInvalidInput = errors.New("invalid input")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCardPaymentRequired = errors.New("card deposits must go through the payment form")
	ErrPaymentInProgress   = errors.New("a payment is already being processed")
	ErrInvalidTransition   = errors.New("action not allowed in the current add-money state")

	// ErrPaymentAbandoned is returned when the add-money panel was closed
	// while the payment round trip was still in flight.
	ErrPaymentAbandoned = errors.New("payment attempt abandoned")

	ErrPaymentsUnavailable = errors.New("card payments are not configured")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrWalletUpdate        = errors.New("wallet update failed after payment")
)

// PaymentFailedError carries the message left on the add-money panel after a
// failed card payment. It matches ErrPaymentFailed with errors.Is.
type PaymentFailedError struct {
	Message string
}

func (e *PaymentFailedError) Error() string {
	return "payment failed: " + e.Message
}

func (e *PaymentFailedError) Unwrap() error {
	return ErrPaymentFailed
}
