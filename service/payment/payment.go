package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/remit/client"
	"github.com/shopspring/decimal"
)

// User-facing failure messages.
const (
	MessageVerificationFailed = "Payment verification failed"
	MessagePaymentFailed      = "Payment failed. Please try again."
)

// StatusSucceeded is the only verification status treated as paid.
const StatusSucceeded = "succeeded"

// IntentCurrency is the unit of account every payment intent is created in.
const IntentCurrency = "USD"

// Stages of the round trip, reported on Result.Stage.
const (
	StageCreateIntent = "create_intent"
	StageConfirm      = "confirm"
	StageVerify       = "verify"
	StageDone         = "done"
)

// roundTripCalls is the number of sequential remote calls in one round trip.
const roundTripCalls = 3

// roundTripSlack covers scheduling between the calls.
const roundTripSlack = 5 * time.Second

// RoundTripTimeout bounds a whole round trip when every remote call is
// bounded by callTimeout.
func RoundTripTimeout(callTimeout time.Duration) time.Duration {
	return roundTripCalls*callTimeout + roundTripSlack
}

// CardDetails is what the hosted card field hands over: a processor
// payment-method token, never raw card numbers.
type CardDetails struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

// Confirmation is the processor's answer to a successful confirm call.
type Confirmation struct {
	PaymentIntentID string `json:"paymentIntentId"`
	Status          string `json:"status"`
}

// CardError is a decline or validation error reported by the processor.
// Its message is shown to the user verbatim.
type CardError struct {
	Code    string
	Message string
}

func (e *CardError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Backend creates and verifies payment intents.
type Backend interface {
	CreatePaymentIntent(ctx context.Context, req client.CreatePaymentIntentRequest) (*client.PaymentIntent, error)
	VerifyPayment(ctx context.Context, paymentIntentID string) (*client.PaymentVerification, error)
}

// Processor confirms a payment intent with captured card details. Declines
// are returned as *CardError.
type Processor interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string, card CardDetails) (*Confirmation, error)
}

// Result is the outcome of one payment round trip.
type Result struct {
	Succeeded       bool   `json:"succeeded"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	Message         string `json:"message,omitempty"`
	Stage           string `json:"stage"`
}

// Runner runs the create -> confirm -> verify round trip.
type Runner interface {
	Run(ctx context.Context, amount decimal.Decimal, card CardDetails) Result
}

// Failed builds a failed result for stage with the user-facing message.
func Failed(stage, message string) Result {
	return Result{Stage: stage, Message: message}
}
