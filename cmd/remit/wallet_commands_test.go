package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brojonat/remit/client"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHistory = []client.Transaction{
	{ID: "t3", Type: "deposit", Amount: decimal.NewFromInt(50), FromCurrency: "USD", ToCurrency: "USD", Recipient: "Wallet", Date: "2025-03-14", Status: "completed", Method: "card"},
	{ID: "t2", Type: "send", Amount: decimal.NewFromInt(100), FromCurrency: "USD", ToCurrency: "EUR", Recipient: "John Doe", Date: "2025-03-13", Status: "completed"},
	{ID: "t1", Type: "send", Amount: decimal.NewFromInt(250), FromCurrency: "USD", ToCurrency: "EUR", Recipient: "Jane Smith", Date: "2025-03-12", Status: "completed"},
}

func TestRunJQ(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		want    []any
		wantErr string
	}{
		{
			name:   "select sends",
			filter: `[.[] | select(.type == "send") | .recipient]`,
			want:   []any{[]any{"John Doe", "Jane Smith"}},
		},
		{
			name:   "stream of ids",
			filter: `.[].id`,
			want:   []any{"t3", "t2", "t1"},
		},
		{
			name:   "amounts are decimal strings",
			filter: `[.[].amount]`,
			want:   []any{[]any{"50", "100", "250"}},
		},
		{
			name:   "length",
			filter: `length`,
			want:   []any{3},
		},
		{
			name:    "parse error",
			filter:  `.[] | select(`,
			wantErr: "failed to parse jq filter",
		},
		{
			name:    "runtime error",
			filter:  `.[0].amount + 1`,
			wantErr: "jq filter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runJQ(tt.filter, testHistory)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintJQ_StringsAreRaw(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJQ(&buf, `.[] | .recipient`, testHistory))
	assert.Equal(t, "Wallet\nJohn Doe\nJane Smith\n", buf.String())
}

// fakeWalletServer serves the wallet API endpoints the CLI calls.
func fakeWalletServer(t *testing.T, cardEnabled bool) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	panelState := "closed"

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}
	record := func(r *http.Request) { calls = append(calls, r.Method+" "+r.URL.Path) }

	mux.HandleFunc("GET /api/v1/wallet", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, client.WalletState{
			ID:                  "primary",
			Balance:             decimal.NewFromInt(1000),
			BalanceDisplay:      "$1,000.00",
			Currency:            "USD",
			CardPaymentsEnabled: cardEnabled,
			AddMoney:            client.AddMoneyPanel{State: panelState},
			Notice:              &client.Notice{Kind: "info", Message: "Successfully sent 100 USD (85.00 EUR) to John Doe"},
		})
	})
	mux.HandleFunc("GET /api/v1/wallet/transactions", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, map[string]any{"transactions": testHistory, "count": len(testHistory)})
	})
	mux.HandleFunc("POST /api/v1/wallet/send", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		var req client.SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Amount == "5000" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Insufficient balance"})
			return
		}
		writeJSON(w, http.StatusCreated, client.Transaction{ID: "t4", Type: "send", Amount: decimal.RequireFromString(req.Amount), FromCurrency: "USD", Recipient: req.Recipient})
	})
	mux.HandleFunc("POST /api/v1/wallet/add-money/toggle", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		panelState = "choosing-method"
		writeJSON(w, http.StatusOK, client.AddMoneyPanel{State: panelState})
	})
	mux.HandleFunc("PUT /api/v1/wallet/add-money/method", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, client.AddMoneyPanel{State: panelState, Method: "card"})
	})
	mux.HandleFunc("PUT /api/v1/wallet/add-money/amount", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		panelState = "card-entry"
		writeJSON(w, http.StatusOK, client.AddMoneyPanel{State: panelState, Method: "card"})
	})
	mux.HandleFunc("POST /api/v1/wallet/add-money/card", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "Your card was declined."})
	})
	mux.HandleFunc("POST /api/v1/wallet/add-money/deposit", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusCreated, client.Transaction{ID: "t5", Type: "deposit", Amount: decimal.NewFromInt(20), FromCurrency: "USD", Method: "upi"})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &calls
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	app.ErrWriter = &buf
	err := app.Run(append([]string{"remit"}, args...))
	return buf.String(), err
}

func TestWalletHistoryCommand(t *testing.T) {
	server, _ := fakeWalletServer(t, false)

	t.Run("table", func(t *testing.T) {
		out, err := runCLI(t, "--server-url", server.URL, "wallet", "history")
		require.NoError(t, err)
		assert.Contains(t, out, "John Doe")
		assert.Contains(t, out, "3 transaction(s)")
	})

	t.Run("jq filter", func(t *testing.T) {
		out, err := runCLI(t, "--server-url", server.URL, "wallet", "history", "--jq", `.[] | select(.recipient == "Jane Smith") | .id`)
		require.NoError(t, err)
		assert.Equal(t, "t1\n", out)
	})

	t.Run("json", func(t *testing.T) {
		out, err := runCLI(t, "--server-url", server.URL, "--json", "wallet", "history")
		require.NoError(t, err)
		var txns []client.Transaction
		require.NoError(t, json.Unmarshal([]byte(out), &txns))
		assert.Len(t, txns, 3)
	})
}

func TestWalletShowCommand(t *testing.T) {
	server, _ := fakeWalletServer(t, false)

	out, err := runCLI(t, "--server-url", server.URL, "wallet", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "$1,000.00")
	assert.Contains(t, out, "[info] Successfully sent 100 USD (85.00 EUR) to John Doe")

	out, err = runCLI(t, "--server-url", server.URL, "wallet", "show", "--jq", ".balance")
	require.NoError(t, err)
	assert.Equal(t, "1000\n", out)
}

func TestWalletSendCommand(t *testing.T) {
	server, _ := fakeWalletServer(t, false)

	out, err := runCLI(t, "--server-url", server.URL, "wallet", "send", "100", "John", "Doe")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Sent 100 USD to John Doe")

	_, err = runCLI(t, "--server-url", server.URL, "wallet", "send", "5000", "John")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Insufficient balance")

	_, err = runCLI(t, "--server-url", server.URL, "wallet", "send", "100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount and recipient are required")
}

func TestWalletAddCommand(t *testing.T) {
	server, calls := fakeWalletServer(t, false)

	out, err := runCLI(t, "--server-url", server.URL, "wallet", "add", "--method", "upi", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "via upi")
	assert.Equal(t, []string{"POST /api/v1/wallet/add-money/deposit"}, *calls)
}

func TestWalletPayCommand(t *testing.T) {
	t.Run("walks the panel and reports the decline", func(t *testing.T) {
		server, calls := fakeWalletServer(t, true)

		_, err := runCLI(t, "--server-url", server.URL, "wallet", "pay", "--payment-method", "pm_card_chargeDeclined", "50")
		require.Error(t, err)
		assert.Equal(t, "card payment failed: Your card was declined.", err.Error())
		assert.Equal(t, []string{
			"GET /api/v1/wallet",
			"POST /api/v1/wallet/add-money/toggle",
			"PUT /api/v1/wallet/add-money/method",
			"PUT /api/v1/wallet/add-money/amount",
			"POST /api/v1/wallet/add-money/card",
		}, *calls)
	})

	t.Run("card payments disabled", func(t *testing.T) {
		server, _ := fakeWalletServer(t, false)

		_, err := runCLI(t, "--server-url", server.URL, "wallet", "pay", "--payment-method", "pm_card_visa", "50")
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "not enabled"))
	})
}

func TestHealthCommand(t *testing.T) {
	server, _ := fakeWalletServer(t, false)

	out, err := runCLI(t, "--server-url", server.URL, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Server is healthy")

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	_, err = runCLI(t, "--server-url", broken.URL, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy")
}
