package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/remit/service/metrics"
	"github.com/brojonat/remit/service/payment"
	"github.com/shopspring/decimal"
)

// MessageSupportContact is shown when the wallet cannot be updated after a
// successful card payment.
const MessageSupportContact = "Error updating wallet. Please contact support."

// Publisher receives every transaction the wallet records.
type Publisher interface {
	PublishTransaction(ctx context.Context, walletID string, txn Transaction) error
}

// Options configures a Wallet. Zero values fall back to the package defaults.
type Options struct {
	ID             string
	InitialBalance decimal.Decimal
	Currency       string
	Rate           ExchangeRate
	History        []Transaction
	NoticeTTL      time.Duration
	// PaymentTimeout bounds one card round trip. Zero means no bound.
	PaymentTimeout time.Duration

	// Runner is optional; without it card payments return ErrPaymentsUnavailable.
	Runner payment.Runner
	// Publisher is optional.
	Publisher Publisher
	// Metrics is optional.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Wallet is the in-memory state behind the wallet screen: balance, history,
// the send panel, the add-money panel and the current notice. All methods
// are safe for concurrent use; mutations are serialized.
type Wallet struct {
	mu           sync.Mutex
	id           string
	balance      decimal.Decimal
	currency     string
	rate         ExchangeRate
	transactions []Transaction
	sendOpen     bool
	panel        *addMoneyPanel
	notices      *NoticeBoard

	runner         payment.Runner
	paymentTimeout time.Duration
	publisher      Publisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
}

// New creates a wallet from opts.
func New(opts Options) (*Wallet, error) {
	if opts.ID == "" {
		opts.ID = "primary"
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Rate.From == "" {
		opts.Rate.From = opts.Currency
	}
	if opts.Rate.To == "" {
		opts.Rate.To = "EUR"
	}
	if opts.Rate.Rate.IsZero() {
		opts.Rate.Rate = decimal.RequireFromString("0.85")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	if opts.InitialBalance.IsNegative() {
		return nil, fmt.Errorf("initial balance must not be negative: %s", opts.InitialBalance)
	}
	if !opts.Rate.Rate.IsPositive() {
		return nil, fmt.Errorf("exchange rate must be positive: %s", opts.Rate.Rate)
	}
	for _, code := range []string{opts.Currency, opts.Rate.From, opts.Rate.To} {
		if !IsSupportedCurrency(code) {
			return nil, fmt.Errorf("unsupported currency %q", code)
		}
	}

	history := make([]Transaction, len(opts.History))
	copy(history, opts.History)

	w := &Wallet{
		id:             opts.ID,
		balance:        opts.InitialBalance,
		currency:       opts.Currency,
		rate:           opts.Rate,
		transactions:   history,
		panel:          newAddMoneyPanel(),
		notices:        NewNoticeBoard(opts.NoticeTTL),
		runner:         opts.Runner,
		paymentTimeout: opts.PaymentTimeout,
		publisher:      opts.Publisher,
		metrics:        opts.Metrics,
		logger:         opts.Logger.With("component", "wallet", "wallet_id", opts.ID),
		now:            opts.Clock,
	}
	w.recordBalance()
	return w, nil
}

// ID returns the wallet identifier.
func (w *Wallet) ID() string {
	return w.id
}

// Balance returns the current balance.
func (w *Wallet) Balance() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// SendRequest is the content of the send form.
type SendRequest struct {
	Amount       string
	Recipient    string
	FromCurrency string
}

// SendMoney debits the balance and records a send. Malformed input returns
// ErrInvalidInput without a notice; an amount above the balance posts an
// "Insufficient balance" notice and returns ErrInsufficientBalance.
func (w *Wallet) SendMoney(ctx context.Context, req SendRequest) (Transaction, error) {
	amount, err := ParseAmount(req.Amount)
	recipient := strings.TrimSpace(req.Recipient)
	if err == nil && recipient == "" {
		err = fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	}
	if err == nil && req.FromCurrency != "" && !IsSupportedCurrency(req.FromCurrency) {
		err = fmt.Errorf("%w: unsupported currency %q", ErrInvalidInput, req.FromCurrency)
	}
	if err != nil {
		w.logger.DebugContext(ctx, "ignoring invalid send", "error", err)
		w.recordSend("invalid")
		return Transaction{}, err
	}

	w.mu.Lock()
	from := w.currency
	if req.FromCurrency != "" {
		from = req.FromCurrency
	}

	if amount.GreaterThan(w.balance) {
		w.postNotice(NoticeError, "Insufficient balance")
		balance := w.balance
		w.mu.Unlock()

		w.logger.InfoContext(ctx, "send rejected",
			"amount", amount.String(),
			"balance", balance.String(),
		)
		w.recordSend("insufficient_balance")
		return Transaction{}, ErrInsufficientBalance
	}

	converted := w.rate.Convert(amount)
	w.currency = from
	w.balance = w.balance.Sub(amount)
	txn := Transaction{
		ID:           newTransactionID(),
		Type:         TransactionSend,
		Amount:       amount,
		FromCurrency: from,
		ToCurrency:   w.rate.To,
		Recipient:    recipient,
		Date:         calendarDate(w.now()),
		Status:       StatusCompleted,
	}
	w.prepend(txn)
	w.postNotice(NoticeInfo, fmt.Sprintf("Successfully sent %s %s (%s %s) to %s",
		strings.TrimSpace(req.Amount), txn.FromCurrency, converted.StringFixed(2), txn.ToCurrency, recipient))
	w.sendOpen = false
	w.recordBalance()
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "money sent",
		"transaction_id", txn.ID,
		"amount", amount.String(),
		"recipient", recipient,
	)
	w.recordSend("completed")
	if w.metrics != nil {
		w.metrics.RecordVolume(string(TransactionSend), amount.InexactFloat64())
	}
	w.publish(ctx, txn)
	return txn, nil
}

// AddMoneyDirect applies a deposit for a non-card method. Empty amount or
// method fall back to what was entered in the add-money panel.
func (w *Wallet) AddMoneyDirect(ctx context.Context, rawAmount string, method PaymentMethod) (Transaction, error) {
	w.mu.Lock()
	if rawAmount == "" {
		rawAmount = w.panel.amount
	}
	if method == "" {
		method = w.panel.method
	}

	if method == MethodCard {
		w.mu.Unlock()
		return Transaction{}, ErrCardPaymentRequired
	}
	if method != "" {
		if _, err := ParsePaymentMethod(string(method)); err != nil {
			w.mu.Unlock()
			return Transaction{}, err
		}
	}
	if w.panel.processing() {
		w.mu.Unlock()
		return Transaction{}, ErrPaymentInProgress
	}

	amount, err := ParseAmount(rawAmount)
	if err != nil {
		w.mu.Unlock()
		w.logger.DebugContext(ctx, "ignoring invalid deposit", "error", err)
		return Transaction{}, err
	}

	txn := w.applyDeposit(amount, method)
	w.panel.reset()
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "money added",
		"transaction_id", txn.ID,
		"amount", amount.String(),
		"method", method,
	)
	w.publish(ctx, txn)
	return txn, nil
}

// PayByCard submits the add-money panel's amount through the payment runner.
// The balance only changes after the runner reports success. A failed round
// trip leaves the panel in the failed state with the user-facing message.
func (w *Wallet) PayByCard(ctx context.Context, card payment.CardDetails) (Transaction, error) {
	w.mu.Lock()
	if w.runner == nil {
		w.mu.Unlock()
		return Transaction{}, ErrPaymentsUnavailable
	}
	attempt, amount, err := w.panel.beginSubmit()
	w.mu.Unlock()
	if err != nil {
		return Transaction{}, err
	}

	w.logger.InfoContext(ctx, "card payment submitted", "attempt", attempt, "amount", amount.String())
	result := w.runPayment(ctx, amount, card)

	w.mu.Lock()
	if !w.panel.current(attempt) {
		w.mu.Unlock()
		w.logger.WarnContext(ctx, "dropping result of abandoned payment",
			"attempt", attempt,
			"succeeded", result.Succeeded,
			"payment_intent_id", result.PaymentIntentID,
		)
		if w.metrics != nil {
			w.metrics.RecordPaymentAbandoned()
		}
		return Transaction{}, ErrPaymentAbandoned
	}

	if !result.Succeeded {
		_ = w.panel.fail(attempt, result.Message)
		w.mu.Unlock()
		w.logger.InfoContext(ctx, "card payment failed",
			"attempt", attempt,
			"stage", result.Stage,
			"message", result.Message,
		)
		return Transaction{}, &PaymentFailedError{Message: result.Message}
	}

	txn, err := w.onPaymentSuccess(attempt, amount)
	w.mu.Unlock()
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to apply card deposit",
			"attempt", attempt,
			"payment_intent_id", result.PaymentIntentID,
			"error", err,
		)
		return Transaction{}, err
	}

	w.logger.InfoContext(ctx, "card deposit applied",
		"transaction_id", txn.ID,
		"payment_intent_id", result.PaymentIntentID,
		"amount", amount.String(),
	)
	w.publish(context.WithoutCancel(ctx), txn)
	return txn, nil
}

// runPayment runs the round trip detached from the caller's cancellation.
// Once submitted, a payment resolves even if the caller goes away; the
// attempt number decides whether its result still applies.
func (w *Wallet) runPayment(ctx context.Context, amount decimal.Decimal, card payment.CardDetails) payment.Result {
	runCtx := context.WithoutCancel(ctx)
	if w.paymentTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, w.paymentTimeout)
		defer cancel()
	}
	return w.runner.Run(runCtx, amount, card)
}

// onPaymentSuccess applies a verified card payment. Any failure, including a
// panic, leaves the support-contact message on the panel. Callers hold w.mu.
func (w *Wallet) onPaymentSuccess(attempt uint64, amount decimal.Decimal) (txn Transaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.panel.markFailed(MessageSupportContact)
			txn = Transaction{}
			err = fmt.Errorf("%w: %v", ErrWalletUpdate, r)
		}
	}()

	if err := w.panel.succeed(attempt); err != nil {
		w.panel.markFailed(MessageSupportContact)
		return Transaction{}, fmt.Errorf("%w: %v", ErrWalletUpdate, err)
	}

	txn = w.applyDeposit(amount, MethodCard)
	w.panel.reset()
	return txn, nil
}

// applyDeposit is the single bookkeeping path for deposits. Callers hold w.mu.
func (w *Wallet) applyDeposit(amount decimal.Decimal, method PaymentMethod) Transaction {
	now := w.now()
	txn := Transaction{
		ID:           newTransactionID(),
		Type:         TransactionDeposit,
		Amount:       amount,
		FromCurrency: w.currency,
		ToCurrency:   w.currency,
		Recipient:    DepositRecipient,
		Date:         calendarDate(now),
		Status:       StatusCompleted,
		Method:       method,
	}
	notice := fmt.Sprintf("Successfully added %s to your wallet", FormatAmount(amount, w.currency))

	w.balance = w.balance.Add(amount)
	w.prepend(txn)
	w.notices.Post(NoticeInfo, notice, now)
	if w.metrics != nil {
		w.metrics.RecordNotice(string(NoticeInfo))
	}
	w.recordBalance()

	if w.metrics != nil {
		label := string(method)
		if label == "" {
			label = "unspecified"
		}
		w.metrics.RecordDeposit(label)
		w.metrics.RecordVolume(string(TransactionDeposit), amount.InexactFloat64())
	}
	return txn
}

// ToggleSend opens or closes the send panel.
func (w *Wallet) ToggleSend() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sendOpen = !w.sendOpen
	return w.sendOpen
}

// SelectCurrency changes the currency used for display, sends and deposits.
func (w *Wallet) SelectCurrency(code string) error {
	if !IsSupportedCurrency(code) {
		return fmt.Errorf("%w: unsupported currency %q", ErrInvalidInput, code)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.currency = code
	return nil
}

// ToggleAddMoney opens or closes the add-money panel. Closing it while a
// payment is in flight abandons that payment's result.
func (w *Wallet) ToggleAddMoney() PanelView {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.panel.toggle()
	return w.panel.view()
}

// SetAddAmount records the amount typed into the add-money panel.
func (w *Wallet) SetAddAmount(raw string) (PanelView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.panel.setAmount(raw); err != nil {
		return w.panel.view(), err
	}
	return w.panel.view(), nil
}

// ChoosePaymentMethod picks a method in the add-money panel.
func (w *Wallet) ChoosePaymentMethod(method PaymentMethod) (PanelView, error) {
	if _, err := ParsePaymentMethod(string(method)); err != nil {
		return PanelView{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.panel.chooseMethod(method); err != nil {
		return w.panel.view(), err
	}
	return w.panel.view(), nil
}

// CancelCardPayment returns from card entry to the method picker.
func (w *Wallet) CancelCardPayment() (PanelView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.panel.cancelCard(); err != nil {
		return w.panel.view(), err
	}
	return w.panel.view(), nil
}

// ExpireNotices clears the current notice if it has expired.
func (w *Wallet) ExpireNotices() bool {
	return w.notices.Tick(w.now())
}

// RunNoticeExpiry clears expired notices every interval until ctx is done.
func (w *Wallet) RunNoticeExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.ExpireNotices() {
				w.logger.Debug("notice expired")
			}
		}
	}
}

// postNotice replaces the current notice. Callers hold w.mu.
func (w *Wallet) postNotice(kind NoticeKind, message string) {
	w.notices.Post(kind, message, w.now())
	if w.metrics != nil {
		w.metrics.RecordNotice(string(kind))
	}
}

// prepend puts txn at the head of the history. Callers hold w.mu.
func (w *Wallet) prepend(txn Transaction) {
	w.transactions = append([]Transaction{txn}, w.transactions...)
}

func (w *Wallet) publish(ctx context.Context, txn Transaction) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishTransaction(ctx, w.id, txn); err != nil {
		w.logger.ErrorContext(ctx, "failed to publish transaction event",
			"transaction_id", txn.ID,
			"error", err,
		)
	}
}

func (w *Wallet) recordSend(outcome string) {
	if w.metrics != nil {
		w.metrics.RecordSend(outcome)
	}
}

// recordBalance exports the balance gauge. Callers hold w.mu or own w.
func (w *Wallet) recordBalance() {
	if w.metrics != nil {
		w.metrics.SetBalance(w.id, w.balance.InexactFloat64())
	}
}
