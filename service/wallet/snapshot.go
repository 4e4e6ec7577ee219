package wallet

import "github.com/shopspring/decimal"

// TransactionView is a history entry with its display strings. The converted
// amount always uses the wallet's current exchange rate.
type TransactionView struct {
	Transaction
	AmountDisplay    string          `json:"amountDisplay"`
	ConvertedAmount  decimal.Decimal `json:"convertedAmount"`
	ConvertedDisplay string          `json:"convertedDisplay"`
}

// Snapshot is everything the wallet screen renders.
type Snapshot struct {
	ID                  string                `json:"id"`
	Balance             decimal.Decimal       `json:"balance"`
	BalanceDisplay      string                `json:"balanceDisplay"`
	Currency            string                `json:"currency"`
	ExchangeRate        ExchangeRate          `json:"exchangeRate"`
	Currencies          []string              `json:"currencies"`
	PaymentMethods      []PaymentMethodOption `json:"paymentMethods"`
	CardPaymentsEnabled bool                  `json:"cardPaymentsEnabled"`
	SendPanelOpen       bool                  `json:"sendPanelOpen"`
	AddMoney            PanelView             `json:"addMoney"`
	Notice              *Notice               `json:"notice,omitempty"`
	Transactions        []TransactionView     `json:"transactions"`
}

// Snapshot returns a consistent copy of the wallet state.
func (w *Wallet) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		ID:                  w.id,
		Balance:             w.balance,
		BalanceDisplay:      FormatAmount(w.balance, w.currency),
		Currency:            w.currency,
		ExchangeRate:        w.rate,
		Currencies:          append([]string(nil), SupportedCurrencies...),
		PaymentMethods:      append([]PaymentMethodOption(nil), PaymentMethods...),
		CardPaymentsEnabled: w.runner != nil,
		SendPanelOpen:       w.sendOpen,
		AddMoney:            w.panel.view(),
		Transactions:        w.transactionViews(),
	}
	if n, ok := w.notices.Current(w.now()); ok {
		s.Notice = &n
	}
	return s
}

// Transactions returns the history, newest first.
func (w *Wallet) Transactions() []TransactionView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transactionViews()
}

// Notice returns the current notice, if any.
func (w *Wallet) Notice() (Notice, bool) {
	return w.notices.Current(w.now())
}

func (w *Wallet) transactionViews() []TransactionView {
	views := make([]TransactionView, 0, len(w.transactions))
	for _, txn := range w.transactions {
		converted := w.rate.Convert(txn.Amount)
		views = append(views, TransactionView{
			Transaction:      txn,
			AmountDisplay:    FormatAmount(txn.Amount, txn.FromCurrency),
			ConvertedAmount:  converted,
			ConvertedDisplay: FormatAmount(converted, txn.ToCurrency),
		})
	}
	return views
}
