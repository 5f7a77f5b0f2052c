package services

import (
	"context"
	"encoding/json"
	"errors"

	aws_pkg "github.com/GHOST-031/agrova-sub001/backend/pkg/aws"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"go.uber.org/zap"
)

// PaymentResultApplier is satisfied by *OrderService.
type PaymentResultApplier interface {
	ApplyPaymentResult(ctx context.Context, evt models.PaymentEvent) error
}

// SQSPaymentConsumer consumes payment events from SQS and settles the
// matching checkout.
type SQSPaymentConsumer struct {
	sqsConsumer *aws_pkg.SQSConsumer
	orders      PaymentResultApplier
	metrics     MetricsRecorder
	logger      *zap.Logger
}

// NewSQSPaymentConsumer creates a new SQS-based payment event consumer
func NewSQSPaymentConsumer(sqsConsumer *aws_pkg.SQSConsumer, orders PaymentResultApplier, metrics MetricsRecorder, logger *zap.Logger) *SQSPaymentConsumer {
	return &SQSPaymentConsumer{
		sqsConsumer: sqsConsumer,
		orders:      orders,
		metrics:     metrics,
		logger:      logger,
	}
}

// Start begins polling the payment events queue and blocks until ctx is done.
func (c *SQSPaymentConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting payment events queue consumer")

	err := c.sqsConsumer.StartPolling(ctx, c.HandleMessage)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Payment events polling stopped", zap.Error(err))
	}
}

// HandleMessage processes one message body. Malformed or unknown messages
// return nil so they are deleted; store failures return an error so the
// message becomes visible again.
func (c *SQSPaymentConsumer) HandleMessage(ctx context.Context, body string) error {
	c.logger.Debug("Raw payment event", zap.String("body", body))

	// Unwrap the SNS envelope if present
	var snsEnvelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &snsEnvelope); err == nil && snsEnvelope.Message != "" {
		body = snsEnvelope.Message
	}

	var evt models.PaymentEvent
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		c.logger.Warn("Invalid payment event JSON", zap.Error(err))
		c.record("invalid")
		return nil
	}
	if evt.ParentOrderID == "" || evt.Type == "" {
		c.logger.Warn("Payment event missing fields",
			zap.String("parent_order_id", evt.ParentOrderID),
			zap.String("type", evt.Type))
		c.record("invalid")
		return nil
	}

	c.logger.Info("Received payment event",
		zap.String("parent_order_id", evt.ParentOrderID),
		zap.String("type", evt.Type))

	err := c.orders.ApplyPaymentResult(ctx, evt)
	switch {
	case err == nil:
		c.record(evt.Type)
		return nil
	case errors.Is(err, ErrOrderNotFound):
		c.logger.Warn("Payment event for unknown checkout", zap.String("parent_order_id", evt.ParentOrderID))
		c.record("unknown_checkout")
		return nil
	default:
		c.logger.Error("Failed to apply payment event",
			zap.String("parent_order_id", evt.ParentOrderID),
			zap.String("type", evt.Type),
			zap.Error(err))
		return err
	}
}

func (c *SQSPaymentConsumer) record(outcome string) {
	emit(c.metrics, func(ctx context.Context, m MetricsRecorder) {
		_ = m.RecordCount(ctx, aws_pkg.MetricSQSMessages, map[string]string{
			"Service": "order-service",
			"Queue":   "payment-events",
			"Outcome": outcome,
		})
	})
}
