package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

type captureAuditLog struct {
	records []AuditLogRecord
}

func (c *captureAuditLog) Record(_ context.Context, record AuditLogRecord) {
	c.records = append(c.records, record)
}

func (c *captureAuditLog) List(context.Context, AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	return domain.CursorPage[AuditLogEntry]{}, nil
}

type captureStockEvents struct {
	events []StockEvent
}

func (c *captureStockEvents) PublishStockEvent(_ context.Context, event StockEvent) error {
	c.events = append(c.events, event)
	return nil
}

func newTestStockService(t *testing.T, deps StockServiceDeps) StockService {
	t.Helper()
	if deps.Stock == nil {
		deps.Stock = &stubStockRepo{}
	}
	svc, err := NewStockService(deps)
	if err != nil {
		t.Fatalf("new stock service: %v", err)
	}
	return svc
}

func TestStockServiceGetStock(t *testing.T) {
	svc := newTestStockService(t, StockServiceDeps{
		Stock: &stubStockRepo{
			getFn: func(_ context.Context, bookID string) (domain.BookStock, error) {
				return domain.BookStock{BookID: bookID, OnHand: 7}, nil
			},
		},
	})

	stock, err := svc.GetStock(context.Background(), "book-1")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if stock.OnHand != 7 {
		t.Fatalf("expected 7 on hand got %d", stock.OnHand)
	}

	if _, err := svc.GetStock(context.Background(), "   "); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for blank id, got %v", err)
	}
}

func TestStockServiceGetStockNotFound(t *testing.T) {
	svc := newTestStockService(t, StockServiceDeps{
		Stock: &stubStockRepo{
			getFn: func(context.Context, string) (domain.BookStock, error) {
				return domain.BookStock{}, repositories.NewStockError(repositories.StockErrorNotFound, "no record", nil)
			},
		},
	})

	if _, err := svc.GetStock(context.Background(), "book-404"); !errors.Is(err, ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
}

func TestStockServiceAdjustStock(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	var adjusted repositories.StockAdjustRequest
	audit := &captureAuditLog{}
	events := &captureStockEvents{}

	svc := newTestStockService(t, StockServiceDeps{
		Stock: &stubStockRepo{
			adjustFn: func(_ context.Context, req repositories.StockAdjustRequest) (repositories.StockMutationResult, error) {
				adjusted = req
				return repositories.StockMutationResult{
					Stocks: map[string]domain.BookStock{
						req.BookID: {BookID: req.BookID, OnHand: 15, UpdatedAt: now},
					},
				}, nil
			},
		},
		Audit:  audit,
		Events: events,
		Clock:  func() time.Time { return now },
	})

	stock, err := svc.AdjustStock(context.Background(), StockAdjustCommand{
		BookID:  "book-1",
		Delta:   5,
		Reason:  "restock delivery",
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if stock.OnHand != 15 {
		t.Fatalf("expected 15 on hand got %d", stock.OnHand)
	}
	if adjusted.BookID != "book-1" || adjusted.Delta != 5 || adjusted.Reason != "restock delivery" {
		t.Fatalf("unexpected adjust request %+v", adjusted)
	}
	if len(audit.records) != 1 {
		t.Fatalf("expected 1 audit record got %d", len(audit.records))
	}
	record := audit.records[0]
	if record.Action != auditActionStockAdjust || record.TargetRef != "/books/book-1" {
		t.Fatalf("unexpected audit record %+v", record)
	}
	if len(events.events) != 1 || events.events[0].Type != eventStockAdjusted || events.events[0].After != 15 {
		t.Fatalf("unexpected stock event %+v", events.events)
	}
}

func TestStockServiceAdjustStockValidation(t *testing.T) {
	svc := newTestStockService(t, StockServiceDeps{})

	cases := []StockAdjustCommand{
		{BookID: "", Delta: 1, Reason: "x"},
		{BookID: "book-1", Delta: 0, Reason: "x"},
		{BookID: "book-1", Delta: 1, Reason: "  "},
	}
	for i, cmd := range cases {
		if _, err := svc.AdjustStock(context.Background(), cmd); !errors.Is(err, ErrStockInvalidInput) {
			t.Fatalf("case %d: expected ErrStockInvalidInput, got %v", i, err)
		}
	}
}

func TestStockServiceAdjustStockRejectsNegativeResult(t *testing.T) {
	svc := newTestStockService(t, StockServiceDeps{
		Stock: &stubStockRepo{
			adjustFn: func(context.Context, repositories.StockAdjustRequest) (repositories.StockMutationResult, error) {
				return repositories.StockMutationResult{}, repositories.NewStockError(repositories.StockErrorNegativeResult, "would go below zero", nil)
			},
		},
	})

	if _, err := svc.AdjustStock(context.Background(), StockAdjustCommand{BookID: "book-1", Delta: -10, Reason: "shrinkage"}); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput, got %v", err)
	}
}
