package wallet

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentMethod is one of the add-money options.
type PaymentMethod string

const (
	MethodCard PaymentMethod = "card"
	MethodBank PaymentMethod = "bank"
	MethodUPI  PaymentMethod = "upi"
)

// PaymentMethodOption is an entry in the method picker.
type PaymentMethodOption struct {
	ID   PaymentMethod `json:"id"`
	Name string        `json:"name"`
}

// PaymentMethods is the method picker list, in display order.
var PaymentMethods = []PaymentMethodOption{
	{ID: MethodCard, Name: "Credit/Debit Card"},
	{ID: MethodBank, Name: "Bank Transfer"},
	{ID: MethodUPI, Name: "UPI"},
}

// ParsePaymentMethod validates a method identifier.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	for _, m := range PaymentMethods {
		if string(m.ID) == s {
			return m.ID, nil
		}
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, s)
}

// PanelState is the state of the add-money panel.
type PanelState string

const (
	PanelClosed         PanelState = "closed"
	PanelChoosingMethod PanelState = "choosing-method"
	PanelCardEntry      PanelState = "card-entry"
	PanelSubmitting     PanelState = "submitting"
	PanelSucceeded      PanelState = "succeeded"
	PanelFailed         PanelState = "failed"
)

// addMoneyPanel is the add-money state machine. It is not safe for
// concurrent use; the owning Wallet serializes access.
type addMoneyPanel struct {
	state   PanelState
	amount  string
	method  PaymentMethod
	errMsg  string
	attempt uint64
}

func newAddMoneyPanel() *addMoneyPanel {
	return &addMoneyPanel{state: PanelClosed}
}

// PanelView is the externally visible panel state.
type PanelView struct {
	State      PanelState    `json:"state"`
	Amount     string        `json:"amount"`
	Method     PaymentMethod `json:"method,omitempty"`
	Error      string        `json:"error,omitempty"`
	Processing bool          `json:"processing"`
}

func (p *addMoneyPanel) view() PanelView {
	return PanelView{
		State:      p.state,
		Amount:     p.amount,
		Method:     p.method,
		Error:      p.errMsg,
		Processing: p.processing(),
	}
}

func (p *addMoneyPanel) processing() bool {
	return p.state == PanelSubmitting
}

func (p *addMoneyPanel) transitionErr(action string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, p.state)
}

// toggle opens a closed panel or closes an open one. Closing abandons any
// in-flight attempt.
func (p *addMoneyPanel) toggle() {
	if p.state == PanelClosed {
		p.state = PanelChoosingMethod
		return
	}
	p.reset()
}

// reset closes the panel and clears its fields.
func (p *addMoneyPanel) reset() {
	p.state = PanelClosed
	p.amount = ""
	p.method = ""
	p.errMsg = ""
	p.attempt++
}

func (p *addMoneyPanel) setAmount(raw string) error {
	switch p.state {
	case PanelChoosingMethod, PanelCardEntry, PanelFailed:
	default:
		return p.transitionErr("change the amount")
	}

	p.amount = strings.TrimSpace(raw)
	switch {
	case p.state == PanelChoosingMethod && p.method == MethodCard && p.amount != "":
		p.state = PanelCardEntry
	case p.state != PanelChoosingMethod && p.amount == "":
		p.state = PanelChoosingMethod
		p.errMsg = ""
	}
	return nil
}

func (p *addMoneyPanel) chooseMethod(m PaymentMethod) error {
	if p.state != PanelChoosingMethod {
		return p.transitionErr("choose a payment method")
	}
	p.method = m
	if m == MethodCard && p.amount != "" {
		p.state = PanelCardEntry
	}
	return nil
}

func (p *addMoneyPanel) cancelCard() error {
	if p.state != PanelCardEntry && p.state != PanelFailed {
		return p.transitionErr("cancel the card payment")
	}
	p.state = PanelChoosingMethod
	p.method = ""
	p.errMsg = ""
	return nil
}

// beginSubmit moves to submitting and returns the attempt number and the
// amount being paid.
func (p *addMoneyPanel) beginSubmit() (uint64, decimal.Decimal, error) {
	switch p.state {
	case PanelSubmitting:
		return 0, decimal.Zero, ErrPaymentInProgress
	case PanelCardEntry, PanelFailed:
	default:
		return 0, decimal.Zero, p.transitionErr("submit a card payment")
	}

	amount, err := ParseAmount(p.amount)
	if err != nil {
		return 0, decimal.Zero, err
	}

	p.attempt++
	p.state = PanelSubmitting
	p.errMsg = ""
	return p.attempt, amount, nil
}

// current reports whether attempt is still the one being submitted.
func (p *addMoneyPanel) current(attempt uint64) bool {
	return p.state == PanelSubmitting && p.attempt == attempt
}

func (p *addMoneyPanel) succeed(attempt uint64) error {
	if !p.current(attempt) {
		return p.transitionErr("complete a payment")
	}
	p.state = PanelSucceeded
	p.errMsg = ""
	return nil
}

func (p *addMoneyPanel) fail(attempt uint64, message string) error {
	if !p.current(attempt) {
		return p.transitionErr("fail a payment")
	}
	p.state = PanelFailed
	p.errMsg = message
	return nil
}

// markFailed forces the failed state after a payment that can no longer be
// completed normally.
func (p *addMoneyPanel) markFailed(message string) {
	p.state = PanelFailed
	p.errMsg = message
}
