package nats

import (
	"time"

	"github.com/brojonat/remit/service/wallet"
	"github.com/shopspring/decimal"
)

// TransactionEvent represents a wallet transaction published to NATS.
// This is published to the subject "wallet.txns.{wallet_id}" in JetStream.
type TransactionEvent struct {
	WalletID string `json:"wallet_id"`

	TransactionID string          `json:"transaction_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	FromCurrency  string          `json:"from_currency"`
	ToCurrency    string          `json:"to_currency"`
	Recipient     string          `json:"recipient"`
	Method        string          `json:"method,omitempty"`
	Status        string          `json:"status"`
	Date          string          `json:"date"`

	PublishedAt time.Time `json:"published_at"`
}

// FromWalletTransaction converts a recorded wallet transaction to an event.
func FromWalletTransaction(walletID string, txn wallet.Transaction) *TransactionEvent {
	return &TransactionEvent{
		WalletID:      walletID,
		TransactionID: txn.ID,
		Type:          string(txn.Type),
		Amount:        txn.Amount,
		FromCurrency:  txn.FromCurrency,
		ToCurrency:    txn.ToCurrency,
		Recipient:     txn.Recipient,
		Method:        string(txn.Method),
		Status:        txn.Status,
		Date:          txn.Date,
		PublishedAt:   time.Now().UTC(),
	}
}

// Subject returns the subject a wallet's events are published to.
func Subject(walletID string) string {
	return SubjectPrefix + walletID
}
