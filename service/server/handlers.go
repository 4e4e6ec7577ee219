package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brojonat/remit/service/payment"
	"github.com/brojonat/remit/service/wallet"
	"github.com/go-playground/validator/v10"
)

const maxRequestBodySize = 1 << 16 // 64KB - every request is a handful of short fields

var validate = validator.New()

type sendRequest struct {
	Amount       string `json:"amount" validate:"required,max=32"`
	Recipient    string `json:"recipient" validate:"required,max=100"`
	FromCurrency string `json:"fromCurrency" validate:"omitempty,iso4217"`
}

type currencyRequest struct {
	Currency string `json:"currency" validate:"required,iso4217"`
}

type amountRequest struct {
	Amount string `json:"amount" validate:"max=32"`
}

type methodRequest struct {
	Method string `json:"method" validate:"required,oneof=card bank upi"`
}

type depositRequest struct {
	Amount string `json:"amount" validate:"max=32"`
	Method string `json:"method" validate:"omitempty,oneof=card bank upi"`
}

type cardRequest struct {
	PaymentMethodID string `json:"paymentMethodId" validate:"required,max=255"`
}

// handleGetWallet returns a handler that renders the full wallet view.
// GET /api/v1/wallet
func handleGetWallet(wal *wallet.Wallet) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, wal.Snapshot(), http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists the history, newest first.
// GET /api/v1/wallet/transactions
func handleListTransactions(wal *wallet.Wallet) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txns := wal.Transactions()
		writeJSON(w, map[string]interface{}{
			"transactions": txns,
			"count":        len(txns),
		}, http.StatusOK)
	})
}

// handleSendMoney returns a handler that sends money.
// POST /api/v1/wallet/send
func handleSendMoney(wal *wallet.Wallet, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if !decodeAndValidate(w, r, &req, logger) {
			return
		}

		txn, err := wal.SendMoney(r.Context(), wallet.SendRequest{
			Amount:       req.Amount,
			Recipient:    req.Recipient,
			FromCurrency: req.FromCurrency,
		})
		if err != nil {
			writeWalletError(w, r, err, logger)
			return
		}

		writeJSON(w, txn, http.StatusCreated)
	})
}

// handleToggleSend returns a handler that opens or closes the send panel.
// POST /api/v1/wallet/send/toggle
func handleToggleSend(wal *wallet.Wallet) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]bool{"open": wal.ToggleSend()}, http.StatusOK)
	})
}

// handleSelectCurrency returns a handler that changes the selected currency.
// PUT /api/v1/wallet/currency
func handleSelectCurrency(wal *wallet.Wallet, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req currencyRequest
		if !decodeAndValidate(w, r, &req, logger) {
			return
		}

		if err := wal.SelectCurrency(req.Currency); err != nil {
			writeWalletError(w, r, err, logger)
			return
		}

		writeJSON(w, wal.Snapshot(), http.StatusOK)
	})
}

// handleToggleAddMoney returns a handler that opens or closes the add-money panel.
// POST /api/v1/wallet/add-money/toggle
func handleToggleAddMoney(wal *wallet.Wallet) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, wal.ToggleAddMoney(), http.StatusOK)
	})
}

// handleSetAddAmount returns a handler that records the add-money amount.
// PUT /api/v1/wallet/add-money/amount
func handleSetAddAmount(wal *wallet.Wallet, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req amountRequest
		if !decodeAndValidate(w, r, &req, logger) {
			return
		}

		view, err := wal.SetAddAmount(req.Amount)
		if err != nil {
			writeWalletError(w, r, err, logger)
			return
		}

		writeJSON(w, view, http.StatusOK)
	})
}

// handleChooseMethod returns a handler that picks a payment method.
// PUT /api/v1/wallet/add-money/method
func handleChooseMethod(wal *wallet.Wallet, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req methodRequest
		if !decodeAndValidate(w, r, &req, logger) {
			return
		}

		view, err := wal.ChoosePaymentMethod(wallet.PaymentMethod(req.Method))
		if err != nil {
			writeWalletError(w, r, err, logger)
			return
		}

		writeJSON(w, view, http.StatusOK)
	})
}

// handleDeposit returns a handler that adds money through a non-card method.
// POST /api/v1/wallet/add-money/deposit
func handleDeposit(wal *wallet.Wallet, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req depositRequest
		if !decodeAndValidate(w, r, &req, logger) {
			return
		}

		txn, err := wal.AddMoneyDirect(r.Context(), req.Amount, wallet.PaymentMethod(req.Method))
		if err != nil {
			writeWalletError(w, r, err, logger)
			return
		}

		writeJSON(w, txn, http.StatusCreated)
	})
}

// handlePayByCard returns a handler that submits the add-money amount by card.
// POST /api/v1/wallet/add-money/card
func handlePayByCard(wal *wallet.Wallet, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if !decodeAndValidate(w, r, &req, logger) {
			return
		}

		txn, err := wal.PayByCard(r.Context(), payment.CardDetails{PaymentMethodID: req.PaymentMethodID})
		if err != nil {
			writeWalletError(w, r, err, logger)
			return
		}

		writeJSON(w, txn, http.StatusCreated)
	})
}

// handleCancelCard returns a handler that leaves card entry.
// POST /api/v1/wallet/add-money/cancel
func handleCancelCard(wal *wallet.Wallet, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view, err := wal.CancelCardPayment()
		if err != nil {
			writeWalletError(w, r, err, logger)
			return
		}
		writeJSON(w, view, http.StatusOK)
	})
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes a 400 and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.DebugContext(r.Context(), "invalid request body", "error", err)
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		msg := validationMessage(err)
		logger.DebugContext(r.Context(), "request failed validation", "error", msg)
		writeError(w, msg, http.StatusBadRequest)
		return false
	}
	return true
}

// validationMessage turns validator errors into "field: rule" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: must satisfy %s", field, fe.Tag()))
		}
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// writeWalletError maps wallet errors to HTTP status codes.
func writeWalletError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var payErr *wallet.PaymentFailedError
	switch {
	case errors.As(err, &payErr):
		writeError(w, payErr.Message, http.StatusPaymentRequired)
	case errors.Is(err, wallet.ErrInvalidInput), errors.Is(err, wallet.ErrCardPaymentRequired):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, wallet.ErrInsufficientBalance):
		writeError(w, "Insufficient balance", http.StatusConflict)
	case errors.Is(err, wallet.ErrInvalidTransition),
		errors.Is(err, wallet.ErrPaymentInProgress),
		errors.Is(err, wallet.ErrPaymentAbandoned):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, wallet.ErrPaymentsUnavailable):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, wallet.ErrWalletUpdate):
		logger.ErrorContext(r.Context(), "wallet update failed", "error", err)
		writeError(w, wallet.MessageSupportContact, http.StatusInternalServerError)
	default:
		logger.ErrorContext(r.Context(), "unexpected wallet error", "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
