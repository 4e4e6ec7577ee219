package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brojonat/remit/client"
	"github.com/brojonat/remit/service/metrics"
	"github.com/shopspring/decimal"
)

// Form runs the card payment round trip in-process.
type Form struct {
	backend   Backend
	processor Processor
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewForm creates a payment form. The metrics is optional.
func NewForm(backend Backend, processor Processor, m *metrics.Metrics, logger *slog.Logger) *Form {
	if logger == nil {
		logger = slog.Default()
	}
	return &Form{
		backend:   backend,
		processor: processor,
		metrics:   m,
		logger:    logger.With("component", "payment_form"),
	}
}

// Run creates a payment intent, confirms it with the processor and verifies
// it with the backend. Every failure is turned into a Result; Run never
// retries.
func (f *Form) Run(ctx context.Context, amount decimal.Decimal, card CardDetails) Result {
	start := time.Now()
	result := f.run(ctx, amount, card)

	outcome := "succeeded"
	if !result.Succeeded {
		outcome = "failed"
	}
	if f.metrics != nil {
		f.metrics.RecordPaymentAttempt("inline", outcome, result.Stage, time.Since(start).Seconds())
	}
	return result
}

func (f *Form) run(ctx context.Context, amount decimal.Decimal, card CardDetails) Result {
	logger := f.logger.With("amount", amount.String())

	if !amount.IsPositive() {
		logger.WarnContext(ctx, "refusing to pay a non-positive amount")
		return Failed(StageCreateIntent, MessagePaymentFailed)
	}

	intent, err := f.backend.CreatePaymentIntent(ctx, client.CreatePaymentIntentRequest{
		Amount:       amount,
		FromCurrency: IntentCurrency,
		ToCurrency:   IntentCurrency,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to create payment intent", "error", err)
		return Failed(StageCreateIntent, MessagePaymentFailed)
	}

	confirmation, err := f.processor.ConfirmCardPayment(ctx, intent.ClientSecret, card)
	if err != nil {
		var cardErr *CardError
		if errors.As(err, &cardErr) {
			logger.InfoContext(ctx, "card payment declined", "code", cardErr.Code, "message", cardErr.Message)
			return Failed(StageConfirm, cardErr.Message)
		}
		logger.ErrorContext(ctx, "failed to confirm card payment", "error", err)
		return Failed(StageConfirm, MessagePaymentFailed)
	}

	verification, err := f.backend.VerifyPayment(ctx, confirmation.PaymentIntentID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to verify payment",
			"payment_intent_id", confirmation.PaymentIntentID,
			"error", err,
		)
		return Result{Stage: StageVerify, PaymentIntentID: confirmation.PaymentIntentID, Message: MessagePaymentFailed}
	}

	if verification.Status != StatusSucceeded {
		logger.WarnContext(ctx, "payment verification mismatch",
			"payment_intent_id", confirmation.PaymentIntentID,
			"status", verification.Status,
		)
		return Result{Stage: StageVerify, PaymentIntentID: confirmation.PaymentIntentID, Message: MessageVerificationFailed}
	}

	logger.InfoContext(ctx, "card payment succeeded", "payment_intent_id", confirmation.PaymentIntentID)
	return Result{Succeeded: true, Stage: StageDone, PaymentIntentID: confirmation.PaymentIntentID}
}
