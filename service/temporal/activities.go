package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/remit/client"
	"github.com/brojonat/remit/service/metrics"
	"github.com/brojonat/remit/service/payment"
	"github.com/shopspring/decimal"
)

// CreateIntentInput contains parameters for creating a payment intent.
type CreateIntentInput struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CreateIntentResult carries the intent's client secret.
type CreateIntentResult struct {
	ClientSecret string `json:"client_secret"`
}

// ConfirmInput contains parameters for confirming a card payment.
type ConfirmInput struct {
	ClientSecret    string `json:"client_secret"`
	PaymentMethodID string `json:"payment_method_id"`
}

// ConfirmResult is the outcome of a confirm call. A card decline is a
// result, not an activity error, so its message reaches the user unchanged.
type ConfirmResult struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
	Declined        bool   `json:"declined"`
	DeclineCode     string `json:"decline_code,omitempty"`
	DeclineMessage  string `json:"decline_message,omitempty"`
}

// VerifyInput contains parameters for verifying a payment.
type VerifyInput struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// VerifyResult is the backend's view of the intent.
type VerifyResult struct {
	Status string `json:"status"`
}

// Activities holds the dependencies of the card payment activities.
type Activities struct {
	backend   payment.Backend
	processor payment.Processor
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates an Activities instance. The metrics is optional.
func NewActivities(backend payment.Backend, processor payment.Processor, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		backend:   backend,
		processor: processor,
		metrics:   m,
		logger:    logger,
	}
}

// CreatePaymentIntent asks the payment backend for a new intent.
func (a *Activities) CreatePaymentIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error) {
	a.logger.InfoContext(ctx, "creating payment intent", "amount", input.Amount.String(), "currency", input.Currency)

	intent, err := a.backend.CreatePaymentIntent(ctx, client.CreatePaymentIntentRequest{
		Amount:       input.Amount,
		FromCurrency: input.Currency,
		ToCurrency:   input.Currency,
	})
	if err != nil {
		a.recordError("CreatePaymentIntent")
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &CreateIntentResult{ClientSecret: intent.ClientSecret}, nil
}

// ConfirmCardPayment confirms the intent with the card processor.
func (a *Activities) ConfirmCardPayment(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	a.logger.InfoContext(ctx, "confirming card payment")

	confirmation, err := a.processor.ConfirmCardPayment(ctx, input.ClientSecret, payment.CardDetails{
		PaymentMethodID: input.PaymentMethodID,
	})
	if err != nil {
		var cardErr *payment.CardError
		if errors.As(err, &cardErr) {
			a.logger.InfoContext(ctx, "card declined", "code", cardErr.Code)
			return &ConfirmResult{
				Declined:       true,
				DeclineCode:    cardErr.Code,
				DeclineMessage: cardErr.Message,
			}, nil
		}
		a.recordError("ConfirmCardPayment")
		return nil, fmt.Errorf("failed to confirm card payment: %w", err)
	}

	return &ConfirmResult{
		PaymentIntentID: confirmation.PaymentIntentID,
		Status:          confirmation.Status,
	}, nil
}

// VerifyPayment fetches the intent's status from the payment backend.
func (a *Activities) VerifyPayment(ctx context.Context, input VerifyInput) (*VerifyResult, error) {
	a.logger.InfoContext(ctx, "verifying payment", "payment_intent_id", input.PaymentIntentID)

	verification, err := a.backend.VerifyPayment(ctx, input.PaymentIntentID)
	if err != nil {
		a.recordError("VerifyPayment")
		return nil, fmt.Errorf("failed to verify payment %s: %w", input.PaymentIntentID, err)
	}

	return &VerifyResult{Status: verification.Status}, nil
}

func (a *Activities) recordError(activity string) {
	if a.metrics != nil {
		a.metrics.RecordActivityError(activity)
	}
}
