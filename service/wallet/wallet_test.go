package wallet

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brojonat/remit/service/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu      sync.Mutex
	results []payment.Result
	calls   int
	release chan struct{}

	ctxErr      error
	hasDeadline bool
}

func (r *fakeRunner) Run(ctx context.Context, amount decimal.Decimal, card payment.CardDetails) payment.Result {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctxErr = ctx.Err()
	_, r.hasDeadline = ctx.Deadline()
	res := r.results[r.calls]
	r.calls++
	return res
}

type fakePublisher struct {
	mu   sync.Mutex
	txns []Transaction
}

func (p *fakePublisher) PublishTransaction(ctx context.Context, walletID string, txn Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txns = append(p.txns, txn)
	return nil
}

func (p *fakePublisher) published() []Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Transaction(nil), p.txns...)
}

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestWallet(t *testing.T, opts Options) *Wallet {
	t.Helper()
	if opts.InitialBalance.IsZero() {
		opts.InitialBalance = decimal.NewFromInt(1000)
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return testNow }
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := New(opts)
	require.NoError(t, err)
	return w
}

func openCardEntry(t *testing.T, w *Wallet, amount string) {
	t.Helper()
	w.ToggleAddMoney()
	_, err := w.ChoosePaymentMethod(MethodCard)
	require.NoError(t, err)
	view, err := w.SetAddAmount(amount)
	require.NoError(t, err)
	require.Equal(t, PanelCardEntry, view.State)
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		w := newTestWallet(t, Options{})
		snap := w.Snapshot()

		assert.Equal(t, "primary", snap.ID)
		assert.True(t, decimal.NewFromInt(1000).Equal(snap.Balance))
		assert.Equal(t, "USD", snap.Currency)
		assert.Equal(t, "EUR", snap.ExchangeRate.To)
		assert.True(t, decimal.RequireFromString("0.85").Equal(snap.ExchangeRate.Rate))
		assert.Equal(t, "$1,000.00", snap.BalanceDisplay)
		assert.False(t, snap.CardPaymentsEnabled)
		assert.Equal(t, PanelClosed, snap.AddMoney.State)
		assert.Nil(t, snap.Notice)
		assert.Empty(t, snap.Transactions)
	})

	t.Run("seeded history", func(t *testing.T) {
		w := newTestWallet(t, Options{History: DemoHistory()})
		txns := w.Transactions()
		require.Len(t, txns, 2)
		assert.Equal(t, "John Doe", txns[0].Recipient)
		assert.Equal(t, "Jane Smith", txns[1].Recipient)
	})

	t.Run("rejects unsupported currency", func(t *testing.T) {
		_, err := New(Options{Currency: "XYZ"})
		assert.Error(t, err)
	})

	t.Run("rejects negative balance", func(t *testing.T) {
		_, err := New(Options{InitialBalance: decimal.NewFromInt(-1)})
		assert.Error(t, err)
	})
}

func TestSendMoney(t *testing.T) {
	ctx := context.Background()

	t.Run("debits the balance", func(t *testing.T) {
		pub := &fakePublisher{}
		w := newTestWallet(t, Options{Publisher: pub})
		w.ToggleSend()

		txn, err := w.SendMoney(ctx, SendRequest{Amount: "100", Recipient: "John", FromCurrency: "USD"})
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(900).Equal(w.Balance()))
		assert.Equal(t, TransactionSend, txn.Type)
		assert.Equal(t, "John", txn.Recipient)
		assert.Equal(t, "USD", txn.FromCurrency)
		assert.Equal(t, "EUR", txn.ToCurrency)
		assert.Equal(t, StatusCompleted, txn.Status)
		assert.Equal(t, "2025-03-14", txn.Date)
		assert.NotEmpty(t, txn.ID)

		snap := w.Snapshot()
		require.Len(t, snap.Transactions, 1)
		assert.Equal(t, txn.ID, snap.Transactions[0].ID)
		assert.False(t, snap.SendPanelOpen)
		require.NotNil(t, snap.Notice)
		assert.Equal(t, NoticeInfo, snap.Notice.Kind)
		assert.Equal(t, "Successfully sent 100 USD (85.00 EUR) to John", snap.Notice.Message)

		require.Len(t, pub.published(), 1)
		assert.Equal(t, txn.ID, pub.published()[0].ID)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		w := newTestWallet(t, Options{})

		_, err := w.SendMoney(ctx, SendRequest{Amount: "2000", Recipient: "John", FromCurrency: "GBP"})
		require.ErrorIs(t, err, ErrInsufficientBalance)

		assert.True(t, decimal.NewFromInt(1000).Equal(w.Balance()))
		assert.Empty(t, w.Transactions())
		n, ok := w.Notice()
		require.True(t, ok)
		assert.Equal(t, NoticeError, n.Kind)
		assert.Equal(t, "Insufficient balance", n.Message)

		snap := w.Snapshot()
		assert.Equal(t, "USD", snap.Currency)
		assert.Equal(t, "$1,000.00", snap.BalanceDisplay)

		txn, err := w.AddMoneyDirect(ctx, "10", MethodBank)
		require.NoError(t, err)
		assert.Equal(t, "USD", txn.FromCurrency)
	})

	t.Run("sending from another currency selects it", func(t *testing.T) {
		w := newTestWallet(t, Options{})

		txn, err := w.SendMoney(ctx, SendRequest{Amount: "100", Recipient: "John", FromCurrency: "GBP"})
		require.NoError(t, err)
		assert.Equal(t, "GBP", txn.FromCurrency)
		assert.Equal(t, "GBP", w.Snapshot().Currency)
	})

	t.Run("notice keeps the amount as typed", func(t *testing.T) {
		w := newTestWallet(t, Options{})

		_, err := w.SendMoney(ctx, SendRequest{Amount: " 100.50 ", Recipient: "John", FromCurrency: "USD"})
		require.NoError(t, err)

		n, ok := w.Notice()
		require.True(t, ok)
		assert.Equal(t, "Successfully sent 100.50 USD (85.43 EUR) to John", n.Message)
	})

	t.Run("exact balance is allowed", func(t *testing.T) {
		w := newTestWallet(t, Options{})
		_, err := w.SendMoney(ctx, SendRequest{Amount: "1000", Recipient: "John"})
		require.NoError(t, err)
		assert.True(t, w.Balance().IsZero())
	})

	t.Run("invalid input is ignored silently", func(t *testing.T) {
		tests := []struct {
			name string
			req  SendRequest
		}{
			{name: "empty amount", req: SendRequest{Recipient: "John"}},
			{name: "not a number", req: SendRequest{Amount: "abc", Recipient: "John"}},
			{name: "zero", req: SendRequest{Amount: "0", Recipient: "John"}},
			{name: "negative", req: SendRequest{Amount: "-5", Recipient: "John"}},
			{name: "empty recipient", req: SendRequest{Amount: "10", Recipient: "  "}},
			{name: "unsupported currency", req: SendRequest{Amount: "10", Recipient: "John", FromCurrency: "XYZ"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := newTestWallet(t, Options{})
				_, err := w.SendMoney(ctx, tt.req)
				require.ErrorIs(t, err, ErrInvalidInput)

				assert.True(t, decimal.NewFromInt(1000).Equal(w.Balance()))
				assert.Empty(t, w.Transactions())
				_, ok := w.Notice()
				assert.False(t, ok)
			})
		}
	})
}

func TestAddMoneyDirect(t *testing.T) {
	ctx := context.Background()

	t.Run("bank transfer", func(t *testing.T) {
		w := newTestWallet(t, Options{})

		txn, err := w.AddMoneyDirect(ctx, "50", MethodBank)
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(1050).Equal(w.Balance()))
		assert.Equal(t, TransactionDeposit, txn.Type)
		assert.Equal(t, DepositRecipient, txn.Recipient)
		assert.Equal(t, "USD", txn.FromCurrency)
		assert.Equal(t, "USD", txn.ToCurrency)
		assert.Equal(t, MethodBank, txn.Method)

		n, ok := w.Notice()
		require.True(t, ok)
		assert.Equal(t, "Successfully added $50.00 to your wallet", n.Message)
	})

	t.Run("uses panel fields when omitted", func(t *testing.T) {
		w := newTestWallet(t, Options{})
		w.ToggleAddMoney()
		_, err := w.ChoosePaymentMethod(MethodUPI)
		require.NoError(t, err)
		_, err = w.SetAddAmount("12.50")
		require.NoError(t, err)

		txn, err := w.AddMoneyDirect(ctx, "", "")
		require.NoError(t, err)
		assert.Equal(t, MethodUPI, txn.Method)
		assert.True(t, decimal.RequireFromString("1012.50").Equal(w.Balance()))
		assert.Equal(t, PanelClosed, w.Snapshot().AddMoney.State)
	})

	t.Run("card is refused", func(t *testing.T) {
		w := newTestWallet(t, Options{})
		_, err := w.AddMoneyDirect(ctx, "50", MethodCard)
		require.ErrorIs(t, err, ErrCardPaymentRequired)
		assert.True(t, decimal.NewFromInt(1000).Equal(w.Balance()))
	})

	t.Run("invalid amount", func(t *testing.T) {
		w := newTestWallet(t, Options{})
		_, err := w.AddMoneyDirect(ctx, "-3", MethodBank)
		require.ErrorIs(t, err, ErrInvalidInput)
		assert.Empty(t, w.Transactions())
	})
}

func TestPayByCard(t *testing.T) {
	ctx := context.Background()
	card := payment.CardDetails{PaymentMethodID: "pm_card_visa"}

	t.Run("success credits the wallet", func(t *testing.T) {
		pub := &fakePublisher{}
		runner := &fakeRunner{results: []payment.Result{{Succeeded: true, Stage: payment.StageDone, PaymentIntentID: "pi_1"}}}
		w := newTestWallet(t, Options{Runner: runner, Publisher: pub})
		openCardEntry(t, w, "25")

		txn, err := w.PayByCard(ctx, card)
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(1025).Equal(w.Balance()))
		assert.Equal(t, MethodCard, txn.Method)
		assert.Equal(t, TransactionDeposit, txn.Type)

		snap := w.Snapshot()
		assert.Equal(t, PanelClosed, snap.AddMoney.State)
		assert.Empty(t, snap.AddMoney.Amount)
		require.NotNil(t, snap.Notice)
		assert.Equal(t, "Successfully added $25.00 to your wallet", snap.Notice.Message)
		assert.Len(t, pub.published(), 1)
	})

	t.Run("failure keeps the form open", func(t *testing.T) {
		runner := &fakeRunner{results: []payment.Result{
			payment.Failed(payment.StageConfirm, "Your card was declined."),
			{Succeeded: true, Stage: payment.StageDone},
		}}
		w := newTestWallet(t, Options{Runner: runner})
		openCardEntry(t, w, "25")

		_, err := w.PayByCard(ctx, card)
		require.ErrorIs(t, err, ErrPaymentFailed)
		assert.Contains(t, err.Error(), "Your card was declined.")

		view := w.Snapshot().AddMoney
		assert.Equal(t, PanelFailed, view.State)
		assert.Equal(t, "Your card was declined.", view.Error)
		assert.True(t, decimal.NewFromInt(1000).Equal(w.Balance()))

		_, err = w.PayByCard(ctx, card)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(1025).Equal(w.Balance()))
	})

	t.Run("payments unavailable", func(t *testing.T) {
		w := newTestWallet(t, Options{})
		openCardEntry(t, w, "25")

		_, err := w.PayByCard(ctx, card)
		require.ErrorIs(t, err, ErrPaymentsUnavailable)
	})

	t.Run("not in card entry", func(t *testing.T) {
		runner := &fakeRunner{}
		w := newTestWallet(t, Options{Runner: runner})

		_, err := w.PayByCard(ctx, card)
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Zero(t, runner.calls)
	})

	t.Run("closing the panel abandons the attempt", func(t *testing.T) {
		runner := &fakeRunner{
			results: []payment.Result{{Succeeded: true, Stage: payment.StageDone}},
			release: make(chan struct{}),
		}
		w := newTestWallet(t, Options{Runner: runner})
		openCardEntry(t, w, "25")

		errCh := make(chan error, 1)
		go func() {
			_, err := w.PayByCard(ctx, card)
			errCh <- err
		}()

		require.Eventually(t, func() bool {
			return w.Snapshot().AddMoney.Processing
		}, time.Second, 5*time.Millisecond)
		assert.True(t, decimal.NewFromInt(1000).Equal(w.Balance()))

		_, err := w.PayByCard(ctx, card)
		require.ErrorIs(t, err, ErrPaymentInProgress)

		w.ToggleAddMoney()
		close(runner.release)

		require.ErrorIs(t, <-errCh, ErrPaymentAbandoned)
		assert.True(t, decimal.NewFromInt(1000).Equal(w.Balance()))
		assert.Empty(t, w.Transactions())
		assert.Equal(t, PanelClosed, w.Snapshot().AddMoney.State)
	})
}

func TestPayByCard_BalanceChangesOnlyAfterSuccess(t *testing.T) {
	runner := &fakeRunner{
		results: []payment.Result{{Succeeded: true, Stage: payment.StageDone, PaymentIntentID: "pi_1"}},
		release: make(chan struct{}),
	}
	w := newTestWallet(t, Options{Runner: runner})
	openCardEntry(t, w, "25")

	errCh := make(chan error, 1)
	go func() {
		_, err := w.PayByCard(context.Background(), payment.CardDetails{PaymentMethodID: "pm_card_visa"})
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return w.Snapshot().AddMoney.Processing
	}, time.Second, 5*time.Millisecond)
	assert.True(t, decimal.NewFromInt(1000).Equal(w.Balance()))
	assert.Empty(t, w.Transactions())

	close(runner.release)
	require.NoError(t, <-errCh)
	assert.True(t, decimal.NewFromInt(1025).Equal(w.Balance()))
	assert.Len(t, w.Transactions(), 1)
}

func TestPayByCard_WalletUpdateFailure(t *testing.T) {
	var broken atomic.Bool
	clock := func() time.Time {
		if broken.Load() {
			panic("clock unavailable")
		}
		return testNow
	}
	runner := &fakeRunner{
		results: []payment.Result{{Succeeded: true, Stage: payment.StageDone, PaymentIntentID: "pi_1"}},
		release: make(chan struct{}),
	}
	w := newTestWallet(t, Options{Runner: runner, Clock: clock})
	openCardEntry(t, w, "25")

	errCh := make(chan error, 1)
	go func() {
		_, err := w.PayByCard(context.Background(), payment.CardDetails{PaymentMethodID: "pm_card_visa"})
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return w.Snapshot().AddMoney.Processing
	}, time.Second, 5*time.Millisecond)

	broken.Store(true)
	close(runner.release)
	err := <-errCh
	broken.Store(false)

	require.ErrorIs(t, err, ErrWalletUpdate)

	snap := w.Snapshot()
	assert.Equal(t, PanelFailed, snap.AddMoney.State)
	assert.Equal(t, MessageSupportContact, snap.AddMoney.Error)
	assert.False(t, snap.AddMoney.Processing)
	assert.True(t, decimal.NewFromInt(1000).Equal(snap.Balance))
	assert.Empty(t, snap.Transactions)
}

func TestPayByCard_OutlivesCallerCancellation(t *testing.T) {
	runner := &fakeRunner{
		results: []payment.Result{{Succeeded: true, Stage: payment.StageDone, PaymentIntentID: "pi_1"}},
		release: make(chan struct{}),
	}
	w := newTestWallet(t, Options{Runner: runner, PaymentTimeout: time.Minute})
	openCardEntry(t, w, "25")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := w.PayByCard(ctx, payment.CardDetails{PaymentMethodID: "pm_card_visa"})
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return w.Snapshot().AddMoney.Processing
	}, time.Second, 5*time.Millisecond)

	cancel()
	close(runner.release)
	require.NoError(t, <-errCh)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.NoError(t, runner.ctxErr)
	assert.True(t, runner.hasDeadline)
	assert.True(t, decimal.NewFromInt(1025).Equal(w.Balance()))
}

func TestSelectCurrency(t *testing.T) {
	w := newTestWallet(t, Options{})

	require.NoError(t, w.SelectCurrency("GBP"))
	assert.Equal(t, "£1,000.00", w.Snapshot().BalanceDisplay)

	txn, err := w.AddMoneyDirect(context.Background(), "5", MethodBank)
	require.NoError(t, err)
	assert.Equal(t, "GBP", txn.FromCurrency)

	require.ErrorIs(t, w.SelectCurrency("XYZ"), ErrInvalidInput)
	assert.Equal(t, "GBP", w.Snapshot().Currency)
}

func TestSnapshotConvertsWithCurrentRate(t *testing.T) {
	w := newTestWallet(t, Options{History: DemoHistory()})

	txns := w.Snapshot().Transactions
	require.Len(t, txns, 2)
	assert.True(t, decimal.NewFromInt(85).Equal(txns[0].ConvertedAmount))
	assert.Equal(t, "$100.00", txns[0].AmountDisplay)
	assert.Equal(t, "€85.00", txns[0].ConvertedDisplay)
	// the rate is applied even though the pair is USD->GBP
	assert.True(t, decimal.RequireFromString("42.5").Equal(txns[1].ConvertedAmount))
}

func TestNoticeExpiry(t *testing.T) {
	now := testNow
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	w := newTestWallet(t, Options{Clock: clock, NoticeTTL: 3 * time.Second})
	_, err := w.SendMoney(context.Background(), SendRequest{Amount: "5000", Recipient: "John"})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	advance(2 * time.Second)
	assert.False(t, w.ExpireNotices())
	_, ok := w.Notice()
	assert.True(t, ok)

	// a newer notice restarts the window
	_, err = w.SendMoney(context.Background(), SendRequest{Amount: "1", Recipient: "John"})
	require.NoError(t, err)
	advance(2 * time.Second)
	n, ok := w.Notice()
	require.True(t, ok)
	assert.Contains(t, n.Message, "Successfully sent")

	advance(time.Second)
	assert.True(t, w.ExpireNotices())
	_, ok = w.Notice()
	assert.False(t, ok)
	assert.Nil(t, w.Snapshot().Notice)
}

func TestRunNoticeExpiryStopsOnCancel(t *testing.T) {
	w := newTestWallet(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.RunNoticeExpiry(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunNoticeExpiry did not return after cancel")
	}
}
