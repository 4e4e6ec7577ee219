package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brojonat/remit/client"
	"github.com/brojonat/remit/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	confirmation *Confirmation
	err          error
	gotSecret    string
	gotCard      CardDetails
}

func (p *stubProcessor) ConfirmCardPayment(ctx context.Context, clientSecret string, card CardDetails) (*Confirmation, error) {
	p.gotSecret = clientSecret
	p.gotCard = card
	return p.confirmation, p.err
}

// paymentBackend serves the two backend endpoints. A zero status means 200.
type paymentBackend struct {
	createStatus int
	verifyStatus int
	status       string
	createBody   map[string]any
	verifiedID   string
}

func (b *paymentBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/payment/create-payment-intent", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&b.createBody))
		w.Header().Set("Content-Type", "application/json")
		if b.createStatus != 0 {
			w.WriteHeader(b.createStatus)
			json.NewEncoder(w).Encode(map[string]string{"error": "stripe unavailable"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"clientSecret": "pi_123_secret_abc"})
	})
	mux.HandleFunc("GET /api/payment/verify-payment/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.verifiedID = r.PathValue("id")
		w.Header().Set("Content-Type", "application/json")
		if b.verifyStatus != 0 {
			w.WriteHeader(b.verifyStatus)
			json.NewEncoder(w).Encode(map[string]string{"error": "lookup failed"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": b.status})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestForm(t *testing.T, backend *paymentBackend, processor Processor, m *metrics.Metrics) *Form {
	t.Helper()
	srv := backend.server(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewForm(client.NewPaymentClient(srv.URL, srv.Client(), logger), processor, m, logger)
}

func TestFormRun_Success(t *testing.T) {
	backend := &paymentBackend{status: StatusSucceeded}
	processor := &stubProcessor{confirmation: &Confirmation{PaymentIntentID: "pi_123", Status: "succeeded"}}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	form := newTestForm(t, backend, processor, m)

	card := CardDetails{PaymentMethodID: "pm_card_visa"}
	result := form.Run(context.Background(), decimal.RequireFromString("25.5"), card)

	assert.True(t, result.Succeeded)
	assert.Equal(t, StageDone, result.Stage)
	assert.Equal(t, "pi_123", result.PaymentIntentID)
	assert.Empty(t, result.Message)

	assert.Equal(t, 25.5, backend.createBody["amount"])
	assert.Equal(t, "USD", backend.createBody["fromCurrency"])
	assert.Equal(t, "USD", backend.createBody["toCurrency"])
	assert.Equal(t, "pi_123_secret_abc", processor.gotSecret)
	assert.Equal(t, card, processor.gotCard)
	assert.Equal(t, "pi_123", backend.verifiedID)
}

func TestFormRun_Failures(t *testing.T) {
	tests := []struct {
		name        string
		backend     *paymentBackend
		processor   *stubProcessor
		wantStage   string
		wantMessage string
	}{
		{
			name:        "intent creation fails",
			backend:     &paymentBackend{createStatus: http.StatusInternalServerError},
			processor:   &stubProcessor{},
			wantStage:   StageCreateIntent,
			wantMessage: MessagePaymentFailed,
		},
		{
			name:        "card declined",
			backend:     &paymentBackend{status: StatusSucceeded},
			processor:   &stubProcessor{err: &CardError{Code: "card_declined", Message: "Your card was declined."}},
			wantStage:   StageConfirm,
			wantMessage: "Your card was declined.",
		},
		{
			name:        "processor unreachable",
			backend:     &paymentBackend{status: StatusSucceeded},
			processor:   &stubProcessor{err: errors.New("connection reset")},
			wantStage:   StageConfirm,
			wantMessage: MessagePaymentFailed,
		},
		{
			name:        "verification request fails",
			backend:     &paymentBackend{verifyStatus: http.StatusBadGateway},
			processor:   &stubProcessor{confirmation: &Confirmation{PaymentIntentID: "pi_123"}},
			wantStage:   StageVerify,
			wantMessage: MessagePaymentFailed,
		},
		{
			name:        "status mismatch",
			backend:     &paymentBackend{status: "requires_action"},
			processor:   &stubProcessor{confirmation: &Confirmation{PaymentIntentID: "pi_123"}},
			wantStage:   StageVerify,
			wantMessage: MessageVerificationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := newTestForm(t, tt.backend, tt.processor, nil)
			result := form.Run(context.Background(), decimal.NewFromInt(10), CardDetails{PaymentMethodID: "pm_x"})

			assert.False(t, result.Succeeded)
			assert.Equal(t, tt.wantStage, result.Stage)
			assert.Equal(t, tt.wantMessage, result.Message)
		})
	}
}

func TestFormRun_RejectsNonPositiveAmount(t *testing.T) {
	backend := &paymentBackend{status: StatusSucceeded}
	processor := &stubProcessor{}
	form := newTestForm(t, backend, processor, nil)

	result := form.Run(context.Background(), decimal.Zero, CardDetails{})
	assert.False(t, result.Succeeded)
	assert.Equal(t, MessagePaymentFailed, result.Message)
	assert.Nil(t, backend.createBody)
	assert.Empty(t, processor.gotSecret)
}

func TestCardErrorMessage(t *testing.T) {
	assert.Equal(t, "card_declined: Insufficient funds.", (&CardError{Code: "card_declined", Message: "Insufficient funds."}).Error())
	assert.Equal(t, "Insufficient funds.", (&CardError{Message: "Insufficient funds."}).Error())
}

func TestRoundTripTimeout(t *testing.T) {
	step := 30 * time.Second
	got := RoundTripTimeout(step)

	assert.Equal(t, 95*time.Second, got)
	assert.Greater(t, got, 3*step, "every call must fit inside the round trip")
}
