package services

import (
	"context"
	"encoding/json"
	"time"

	aws_pkg "github.com/GHOST-031/agrova-sub001/backend/pkg/aws"
	"github.com/GHOST-031/agrova-sub001/backend/services/common/logger"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"go.uber.org/zap"
)

// MessageProducer is satisfied by *kafka.Producer.
type MessageProducer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// EventPublisher announces committed order changes. Publishing is best effort:
// failures are logged and never undo the change.
type EventPublisher interface {
	OrderCreated(ctx context.Context, order models.Order)
	StatusChanged(ctx context.Context, order models.Order, from models.OrderStatus, note string)
}

// OrderEventPublisher fans events out to Kafka and SNS. Either may be nil.
type OrderEventPublisher struct {
	producer    MessageProducer
	snsClient   aws_pkg.SNSEventPublisher
	snsTopicArn string
	logger      *zap.Logger
}

func NewOrderEventPublisher(producer MessageProducer, snsClient aws_pkg.SNSEventPublisher, snsTopicArn string, logger *zap.Logger) *OrderEventPublisher {
	return &OrderEventPublisher{
		producer:    producer,
		snsClient:   snsClient,
		snsTopicArn: snsTopicArn,
		logger:      logger,
	}
}

func (p *OrderEventPublisher) OrderCreated(ctx context.Context, order models.Order) {
	evt := models.OrderCreatedEvent{
		EventType:     models.EventOrderCreated,
		OrderID:       order.ID,
		ParentOrderID: order.ParentOrderID,
		BuyerID:       order.BuyerID.String(),
		FarmerID:      order.FarmerID.String(),
		Status:        order.Status,
		PaymentMethod: order.Payment.Method,
		Total:         order.Pricing.Total,
		ItemCount:     len(order.Items),
		Timestamp:     order.CreatedAt,
	}
	p.publish(ctx, order.ID, models.EventOrderCreated, evt)
}

func (p *OrderEventPublisher) StatusChanged(ctx context.Context, order models.Order, from models.OrderStatus, note string) {
	evt := models.OrderStatusChangedEvent{
		EventType:     models.EventOrderStatusChanged,
		OrderID:       order.ID,
		ParentOrderID: order.ParentOrderID,
		BuyerID:       order.BuyerID.String(),
		FarmerID:      order.FarmerID.String(),
		From:          from,
		To:            order.Status,
		Note:          note,
		Timestamp:     order.UpdatedAt,
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	p.publish(ctx, order.ID, models.EventOrderStatusChanged, evt)
}

func (p *OrderEventPublisher) publish(ctx context.Context, key, eventType string, evt interface{}) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("Failed to marshal order event", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	if p.producer != nil {
		if err := p.producer.Publish(ctx, key, payload); err != nil {
			p.logger.Warn("Kafka publish failed",
				logger.RequestIDField(ctx),
				zap.String("event_type", eventType),
				zap.String("order_id", key),
				zap.Error(err))
		}
	}

	if p.snsClient != nil && p.snsTopicArn != "" {
		if err := p.snsClient.PublishEvent(ctx, p.snsTopicArn, eventType, payload); err != nil {
			p.logger.Warn("SNS publish failed",
				logger.RequestIDField(ctx),
				zap.String("event_type", eventType),
				zap.String("order_id", key),
				zap.Error(err))
		}
	}
}
