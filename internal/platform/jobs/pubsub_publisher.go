package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/inkwell-books/api/internal/services"
)

// PubSubEventPublisher publishes order and stock domain events to Pub/Sub topics.
// It satisfies both services.OrderEventPublisher and services.StockEventPublisher.
type PubSubEventPublisher struct {
	orderTopic *pubsub.Topic
	stockTopic *pubsub.Topic
	marshal    func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
// Both topics are required; callers that publish only one kind of event
// should still pass both so topology problems surface at startup.
func NewPubSubEventPublisher(orderTopic, stockTopic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if orderTopic == nil {
		return nil, errors.New("pubsub event publisher: order topic is required")
	}
	if stockTopic == nil {
		return nil, errors.New("pubsub event publisher: stock topic is required")
	}
	return &PubSubEventPublisher{
		orderTopic: orderTopic,
		stockTopic: stockTopic,
		marshal:    json.Marshal,
	}, nil
}

type orderEventMessage struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"order_id"`
	OrderNumber    string         `json:"order_number"`
	UserID         string         `json:"user_id"`
	PreviousStatus string         `json:"previous_status,omitempty"`
	CurrentStatus  string         `json:"current_status"`
	ActorID        string         `json:"actor_id,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type stockEventMessage struct {
	Type       string    `json:"type"`
	BookID     string    `json:"book_id"`
	Delta      int       `json:"delta"`
	After      int       `json:"after"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PublishOrderEvent enqueues an order lifecycle event on the order topic.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.orderTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(orderEventMessage{
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		UserID:         event.UserID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt,
		Metadata:       event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "status", event.CurrentStatus)

	result := p.orderTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PublishStockEvent enqueues a stock mutation event on the stock topic.
func (p *PubSubEventPublisher) PublishStockEvent(ctx context.Context, event services.StockEvent) error {
	if p == nil || p.stockTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(stockEventMessage{
		Type:       event.Type,
		BookID:     event.BookID,
		Delta:      event.Delta,
		After:      event.After,
		ActorID:    event.ActorID,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal stock event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "bookId", event.BookID)

	result := p.stockTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish stock event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
