// Package stripe confirms payment intents with Stripe on behalf of the
// card field.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brojonat/remit/service/payment"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// intentConfirmer is the subset of the Stripe PaymentIntents API we use.
type intentConfirmer interface {
	Confirm(id string, params *stripego.PaymentIntentConfirmParams) (*stripego.PaymentIntent, error)
}

// Processor implements payment.Processor with the Stripe API.
type Processor struct {
	intents intentConfirmer
	logger  *slog.Logger
}

// NewProcessor creates a processor authenticated with secretKey.
func NewProcessor(secretKey string, logger *slog.Logger) *Processor {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return newProcessor(sc.PaymentIntents, logger)
}

func newProcessor(intents intentConfirmer, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		intents: intents,
		logger:  logger.With("component", "stripe_processor"),
	}
}

// ConfirmCardPayment confirms the intent identified by clientSecret with the
// tokenized card. Card errors are returned as *payment.CardError.
func (p *Processor) ConfirmCardPayment(ctx context.Context, clientSecret string, card payment.CardDetails) (*payment.Confirmation, error) {
	intentID, err := IntentIDFromClientSecret(clientSecret)
	if err != nil {
		return nil, err
	}
	if card.PaymentMethodID == "" {
		return nil, &payment.CardError{Code: "incomplete_card", Message: "Your card details are incomplete."}
	}

	params := &stripego.PaymentIntentConfirmParams{
		PaymentMethod: stripego.String(card.PaymentMethodID),
	}
	params.Context = ctx

	pi, err := p.intents.Confirm(intentID, params)
	if err != nil {
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripego.ErrorTypeCard {
			p.logger.InfoContext(ctx, "card error from stripe",
				"payment_intent_id", intentID,
				"code", stripeErr.Code,
				"decline_code", stripeErr.DeclineCode,
			)
			return nil, &payment.CardError{Code: string(stripeErr.Code), Message: stripeErr.Msg}
		}
		return nil, fmt.Errorf("failed to confirm payment intent %s: %w", intentID, err)
	}

	p.logger.DebugContext(ctx, "payment intent confirmed", "payment_intent_id", pi.ID, "status", pi.Status)
	return &payment.Confirmation{PaymentIntentID: pi.ID, Status: string(pi.Status)}, nil
}

// IntentIDFromClientSecret extracts "pi_123" from "pi_123_secret_abc".
func IntentIDFromClientSecret(clientSecret string) (string, error) {
	id, _, ok := strings.Cut(clientSecret, "_secret_")
	if !ok || id == "" {
		return "", fmt.Errorf("malformed client secret")
	}
	return id, nil
}
