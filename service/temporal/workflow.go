package temporal

import (
	"time"

	"github.com/brojonat/remit/service/payment"
	"github.com/shopspring/decimal"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// CardPaymentWorkflowName is the registered name of CardPaymentWorkflow.
const CardPaymentWorkflowName = "CardPaymentWorkflow"

// CardPaymentInput contains the amount to charge and the tokenized card.
type CardPaymentInput struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID string          `json:"payment_method_id"`
	// StepTimeout bounds each activity. Zero uses defaultStepTimeout.
	StepTimeout     time.Duration   `json:"step_timeout,omitempty"`
}

const defaultStepTimeout = 30 * time.Second

// CardPaymentWorkflow runs the create intent -> confirm -> verify round trip.
// Failures are reported in the returned Result with the same user-facing
// messages as payment.Form; the workflow itself only errors when the result
// cannot be produced at all. Activities are never retried: a confirm that
// runs twice could charge the card twice.
func CardPaymentWorkflow(ctx workflow.Context, input CardPaymentInput) (*payment.Result, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("CardPaymentWorkflow started", "amount", input.Amount.String())

	stepTimeout := input.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: stepTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	if !input.Amount.IsPositive() {
		logger.Warn("refusing to pay a non-positive amount")
		return failed(payment.StageCreateIntent, payment.MessagePaymentFailed), nil
	}

	// Step 1: create the payment intent
	var intent *CreateIntentResult
	err := workflow.ExecuteActivity(ctx, "CreatePaymentIntent", CreateIntentInput{
		Amount:   input.Amount,
		Currency: payment.IntentCurrency,
	}).Get(ctx, &intent)
	if err != nil {
		logger.Error("payment intent creation failed", "error", err)
		return failed(payment.StageCreateIntent, payment.MessagePaymentFailed), nil
	}

	// Step 2: confirm with the card processor
	var confirmation *ConfirmResult
	err = workflow.ExecuteActivity(ctx, "ConfirmCardPayment", ConfirmInput{
		ClientSecret:    intent.ClientSecret,
		PaymentMethodID: input.PaymentMethodID,
	}).Get(ctx, &confirmation)
	if err != nil {
		logger.Error("card confirmation failed", "error", err)
		return failed(payment.StageConfirm, payment.MessagePaymentFailed), nil
	}
	if confirmation.Declined {
		logger.Info("card declined", "code", confirmation.DeclineCode)
		return failed(payment.StageConfirm, confirmation.DeclineMessage), nil
	}

	// Step 3: verify with the backend
	var verification *VerifyResult
	err = workflow.ExecuteActivity(ctx, "VerifyPayment", VerifyInput{
		PaymentIntentID: confirmation.PaymentIntentID,
	}).Get(ctx, &verification)
	if err != nil {
		logger.Error("payment verification failed", "error", err)
		return &payment.Result{
			Stage:           payment.StageVerify,
			PaymentIntentID: confirmation.PaymentIntentID,
			Message:         payment.MessagePaymentFailed,
		}, nil
	}
	if verification.Status != payment.StatusSucceeded {
		logger.Warn("payment verification mismatch", "status", verification.Status)
		return &payment.Result{
			Stage:           payment.StageVerify,
			PaymentIntentID: confirmation.PaymentIntentID,
			Message:         payment.MessageVerificationFailed,
		}, nil
	}

	logger.Info("card payment succeeded", "payment_intent_id", confirmation.PaymentIntentID)
	return &payment.Result{
		Succeeded:       true,
		Stage:           payment.StageDone,
		PaymentIntentID: confirmation.PaymentIntentID,
	}, nil
}

func failed(stage, message string) *payment.Result {
	r := payment.Failed(stage, message)
	return &r
}
