package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// CreatePaymentIntentRequest describes the intent to create.
type CreatePaymentIntentRequest struct {
	Amount       decimal.Decimal
	FromCurrency string
	ToCurrency   string
}

// PaymentIntent is the backend's answer to an intent creation request.
type PaymentIntent struct {
	ClientSecret string `json:"clientSecret"`
}

// PaymentVerification is the backend's view of a payment intent's status.
type PaymentVerification struct {
	Status string `json:"status"`
}

// PaymentClient is the HTTP client for the payment backend.
type PaymentClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewPaymentClient creates a new payment backend client.
func NewPaymentClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *PaymentClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &PaymentClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreatePaymentIntent asks the backend to create a payment intent and returns
// its client secret.
func (c *PaymentClient) CreatePaymentIntent(ctx context.Context, reqBody CreatePaymentIntentRequest) (*PaymentIntent, error) {
	// The backend expects amount as a JSON number, not a quoted decimal.
	body, err := json.Marshal(struct {
		Amount       json.Number `json:"amount"`
		FromCurrency string      `json:"fromCurrency"`
		ToCurrency   string      `json:"toCurrency"`
	}{
		Amount:       json.Number(reqBody.Amount.String()),
		FromCurrency: reqBody.FromCurrency,
		ToCurrency:   reqBody.ToCurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/payment/create-payment-intent", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorResponse(resp)
	}

	var intent PaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if intent.ClientSecret == "" {
		return nil, fmt.Errorf("response did not include a client secret")
	}

	c.logger.Debug("payment intent created", "amount", reqBody.Amount.String(), "currency", reqBody.FromCurrency)
	return &intent, nil
}

// VerifyPayment fetches the status of a payment intent.
func (c *PaymentClient) VerifyPayment(ctx context.Context, paymentIntentID string) (*PaymentVerification, error) {
	u := fmt.Sprintf("%s/api/payment/verify-payment/%s", c.baseURL, url.PathEscape(paymentIntentID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var verification PaymentVerification
	if err := json.NewDecoder(resp.Body).Decode(&verification); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("payment verified", "payment_intent_id", paymentIntentID, "status", verification.Status)
	return &verification, nil
}

// parseErrorResponse attempts to parse an error response from a server.
func parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}

// APIError is a JSON error returned by a server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed: %s", e.Message)
}
