package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/remit/service/metrics"
	"github.com/brojonat/remit/service/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.temporal.io/sdk/client"
)

// Client runs card payments as Temporal workflows. It implements
// payment.Runner.
type Client struct {
	client    client.Client
	taskQueue string
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewClient creates a new Temporal client. timeout bounds each activity of a
// workflow run; the run as a whole gets payment.RoundTripTimeout(timeout).
func NewClient(host, namespace, taskQueue string, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return NewClientFromSDK(c, taskQueue, timeout, m, logger), nil
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(c client.Client, taskQueue string, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:    c,
		taskQueue: taskQueue,
		timeout:   timeout,
		metrics:   m,
		logger:    logger.With("component", "temporal_client"),
	}
}

// Run starts a CardPaymentWorkflow and waits for its result. Errors talking
// to Temporal are reported as a generic payment failure.
func (c *Client) Run(ctx context.Context, amount decimal.Decimal, card payment.CardDetails) payment.Result {
	start := time.Now()
	result := c.run(ctx, amount, card)

	if c.metrics != nil {
		outcome := "succeeded"
		if !result.Succeeded {
			outcome = "failed"
		}
		c.metrics.RecordPaymentAttempt("temporal", outcome, result.Stage, time.Since(start).Seconds())
	}
	return result
}

func (c *Client) run(ctx context.Context, amount decimal.Decimal, card payment.CardDetails) payment.Result {
	workflowID := "card-payment-" + uuid.NewString()
	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: payment.RoundTripTimeout(c.timeout),
	}

	run, err := c.client.ExecuteWorkflow(ctx, options, CardPaymentWorkflowName, CardPaymentInput{
		Amount:          amount,
		PaymentMethodID: card.PaymentMethodID,
		StepTimeout:     c.timeout,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to start card payment workflow", "error", err)
		return payment.Failed(payment.StageCreateIntent, payment.MessagePaymentFailed)
	}

	c.logger.DebugContext(ctx, "card payment workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)

	var result payment.Result
	if err := run.Get(ctx, &result); err != nil {
		c.logger.ErrorContext(ctx, "card payment workflow failed",
			"workflow_id", workflowID,
			"error", err,
		)
		return payment.Failed(payment.StageCreateIntent, payment.MessagePaymentFailed)
	}

	return result
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
