package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a wallet history entry as returned by the server.
type Transaction struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	FromCurrency     string          `json:"fromCurrency"`
	ToCurrency       string          `json:"toCurrency"`
	Recipient        string          `json:"recipient"`
	Date             string          `json:"date"`
	Status           string          `json:"status"`
	Method           string          `json:"method,omitempty"`
	AmountDisplay    string          `json:"amountDisplay,omitempty"`
	ConvertedAmount  decimal.Decimal `json:"convertedAmount"`
	ConvertedDisplay string          `json:"convertedDisplay,omitempty"`
}

// Notice is the transient message shown above the wallet.
type Notice struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AddMoneyPanel is the state of the add-money panel.
type AddMoneyPanel struct {
	State      string `json:"state"`
	Amount     string `json:"amount"`
	Method     string `json:"method,omitempty"`
	Error      string `json:"error,omitempty"`
	Processing bool   `json:"processing"`
}

// ExchangeRate is the static rate the wallet converts with.
type ExchangeRate struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Rate decimal.Decimal `json:"rate"`
}

// WalletState is the full wallet view.
type WalletState struct {
	ID                  string          `json:"id"`
	Balance             decimal.Decimal `json:"balance"`
	BalanceDisplay      string          `json:"balanceDisplay"`
	Currency            string          `json:"currency"`
	ExchangeRate        ExchangeRate    `json:"exchangeRate"`
	Currencies          []string        `json:"currencies"`
	CardPaymentsEnabled bool            `json:"cardPaymentsEnabled"`
	SendPanelOpen       bool            `json:"sendPanelOpen"`
	AddMoney            AddMoneyPanel   `json:"addMoney"`
	Notice              *Notice         `json:"notice,omitempty"`
	Transactions        []Transaction   `json:"transactions"`
}

// SendRequest is the body of a send.
type SendRequest struct {
	Amount       string `json:"amount"`
	Recipient    string `json:"recipient"`
	FromCurrency string `json:"fromCurrency,omitempty"`
}

// Client is the HTTP client for the remit wallet service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new wallet service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Get retrieves the wallet view.
func (c *Client) Get(ctx context.Context) (*WalletState, error) {
	var state WalletState
	if err := c.do(ctx, "GET", "/api/v1/wallet", nil, http.StatusOK, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Transactions retrieves the history, newest first.
func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	var response struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, "GET", "/api/v1/wallet/transactions", nil, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return response.Transactions, nil
}

// Send sends money to a recipient.
func (c *Client) Send(ctx context.Context, req SendRequest) (*Transaction, error) {
	var txn Transaction
	if err := c.do(ctx, "POST", "/api/v1/wallet/send", req, http.StatusCreated, &txn); err != nil {
		return nil, err
	}
	c.logger.Debug("money sent", "transaction_id", txn.ID, "recipient", txn.Recipient)
	return &txn, nil
}

// ToggleSend opens or closes the send panel and reports whether it is open.
func (c *Client) ToggleSend(ctx context.Context) (bool, error) {
	var response struct {
		Open bool `json:"open"`
	}
	if err := c.do(ctx, "POST", "/api/v1/wallet/send/toggle", nil, http.StatusOK, &response); err != nil {
		return false, err
	}
	return response.Open, nil
}

// SelectCurrency changes the wallet's selected currency.
func (c *Client) SelectCurrency(ctx context.Context, code string) (*WalletState, error) {
	var state WalletState
	body := map[string]string{"currency": code}
	if err := c.do(ctx, "PUT", "/api/v1/wallet/currency", body, http.StatusOK, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ToggleAddMoney opens or closes the add-money panel.
func (c *Client) ToggleAddMoney(ctx context.Context) (*AddMoneyPanel, error) {
	return c.panelRequest(ctx, "POST", "/api/v1/wallet/add-money/toggle", nil)
}

// SetAddAmount sets the amount in the add-money panel.
func (c *Client) SetAddAmount(ctx context.Context, amount string) (*AddMoneyPanel, error) {
	return c.panelRequest(ctx, "PUT", "/api/v1/wallet/add-money/amount", map[string]string{"amount": amount})
}

// ChooseMethod picks a payment method in the add-money panel.
func (c *Client) ChooseMethod(ctx context.Context, method string) (*AddMoneyPanel, error) {
	return c.panelRequest(ctx, "PUT", "/api/v1/wallet/add-money/method", map[string]string{"method": method})
}

// CancelCard leaves card entry.
func (c *Client) CancelCard(ctx context.Context) (*AddMoneyPanel, error) {
	return c.panelRequest(ctx, "POST", "/api/v1/wallet/add-money/cancel", nil)
}

// Deposit adds money through a non-card method.
func (c *Client) Deposit(ctx context.Context, amount, method string) (*Transaction, error) {
	var txn Transaction
	body := map[string]string{"amount": amount, "method": method}
	if err := c.do(ctx, "POST", "/api/v1/wallet/add-money/deposit", body, http.StatusCreated, &txn); err != nil {
		return nil, err
	}
	c.logger.Debug("money added", "transaction_id", txn.ID, "method", method)
	return &txn, nil
}

// PayByCard submits the add-money panel's amount with a tokenized card.
// Declines come back as an *APIError carrying the user-facing message.
func (c *Client) PayByCard(ctx context.Context, paymentMethodID string) (*Transaction, error) {
	var txn Transaction
	body := map[string]string{"paymentMethodId": paymentMethodID}
	if err := c.do(ctx, "POST", "/api/v1/wallet/add-money/card", body, http.StatusCreated, &txn); err != nil {
		return nil, err
	}
	c.logger.Debug("card payment applied", "transaction_id", txn.ID)
	return &txn, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "GET", "/health", nil, http.StatusOK, nil)
}

func (c *Client) panelRequest(ctx context.Context, method, path string, body any) (*AddMoneyPanel, error) {
	var panel AddMoneyPanel
	if err := c.do(ctx, method, path, body, http.StatusOK, &panel); err != nil {
		return nil, err
	}
	return &panel, nil
}

// do sends a JSON request and decodes the response into out when it is
// non-nil. Any status other than want is returned as an error.
func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
