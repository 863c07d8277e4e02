package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/inkwell-books/api/internal/services"
)

var (
	_ services.OrderEventPublisher = (*PubSubEventPublisher)(nil)
	_ services.StockEventPublisher = (*PubSubEventPublisher)(nil)
)

func newTestPublisher(t *testing.T) (*PubSubEventPublisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() {
		_ = srv.Close()
	})

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	orderTopic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	stockTopic, err := client.CreateTopic(ctx, "stock-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(orderTopic, stockTopic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	return publisher, srv
}

func TestPubSubEventPublisherPublishesOrderEvent(t *testing.T) {
	ctx := context.Background()
	publisher, srv := newTestPublisher(t)

	occurredAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:           "order.status.changed",
		OrderID:        "ord_0000042",
		OrderNumber:    "ORD-20250506-000042",
		UserID:         "user-1",
		PreviousStatus: "pending",
		CurrentStatus:  "confirmed",
		ActorID:        "admin-1",
		OccurredAt:     occurredAt,
		Metadata:       map[string]any{"source": "admin"},
	}

	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload map[string]any
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["order_id"] != "ord_0000042" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload["previous_status"] != "pending" || payload["current_status"] != "confirmed" {
		t.Fatalf("unexpected status fields %#v", payload)
	}
	if attr := messages[0].Attributes["eventType"]; attr != "order.status.changed" {
		t.Fatalf("expected event type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orderNumber"]; attr != "ORD-20250506-000042" {
		t.Fatalf("expected order number attribute, got %q", attr)
	}
}

func TestPubSubEventPublisherPublishesStockEvent(t *testing.T) {
	ctx := context.Background()
	publisher, srv := newTestPublisher(t)

	event := services.StockEvent{
		Type:       "stock.adjusted",
		BookID:     "book-1",
		Delta:      -3,
		After:      7,
		ActorID:    "admin-1",
		OccurredAt: time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishStockEvent(ctx, event); err != nil {
		t.Fatalf("PublishStockEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload map[string]any
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["book_id"] != "book-1" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload["delta"] != float64(-3) || payload["after"] != float64(7) {
		t.Fatalf("unexpected quantities %#v", payload)
	}
	if attr := messages[0].Attributes["bookId"]; attr != "book-1" {
		t.Fatalf("expected book id attribute, got %q", attr)
	}
}

func TestNewPubSubEventPublisherRequiresTopics(t *testing.T) {
	if _, err := NewPubSubEventPublisher(nil, nil); err == nil {
		t.Fatal("expected error for missing topics")
	}
}
