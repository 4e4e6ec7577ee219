package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType distinguishes outgoing sends from incoming deposits.
type TransactionType string

const (
	TransactionSend    TransactionType = "send"
	TransactionDeposit TransactionType = "deposit"
)

// StatusCompleted is the only status a recorded transaction can have.
const StatusCompleted = "completed"

// DepositRecipient is the recipient shown for every deposit.
const DepositRecipient = "Wallet"

// DateLayout is the calendar-date format used for Transaction.Date.
const DateLayout = "2006-01-02"

// Transaction is an immutable entry in the wallet history.
type Transaction struct {
	ID           string          `json:"id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
	Recipient    string          `json:"recipient"`
	Date         string          `json:"date"`
	Status       string          `json:"status"`
	Method       PaymentMethod   `json:"method,omitempty"`
}

// newTransactionID returns an opaque, time-ordered identifier.
func newTransactionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// DemoHistory returns the two sends the wallet screen starts with.
func DemoHistory() []Transaction {
	return []Transaction{
		{
			ID:           "demo-1",
			Type:         TransactionSend,
			Amount:       decimal.NewFromInt(100),
			FromCurrency: "USD",
			ToCurrency:   "EUR",
			Recipient:    "John Doe",
			Date:         "2024-02-20",
			Status:       StatusCompleted,
		},
		{
			ID:           "demo-2",
			Type:         TransactionSend,
			Amount:       decimal.NewFromInt(50),
			FromCurrency: "USD",
			ToCurrency:   "GBP",
			Recipient:    "Jane Smith",
			Date:         "2024-02-19",
			Status:       StatusCompleted,
		},
	}
}

func calendarDate(t time.Time) string {
	return t.Format(DateLayout)
}
