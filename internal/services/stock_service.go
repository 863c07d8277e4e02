package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

const (
	eventStockAdjusted = "stock.adjusted"

	auditActionStockAdjust = "stock.adjust"
)

var (
	// ErrStockInvalidInput signals the caller provided invalid arguments.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockNotFound indicates no stock record exists for the book.
	ErrStockNotFound = errors.New("stock: not found")
	// ErrInsufficientStock indicates the requested quantity exceeds availability.
	ErrInsufficientStock = errors.New("stock: insufficient")
)

// StockServiceDeps bundles the collaborators required to construct a stock service.
type StockServiceDeps struct {
	Stock  repositories.StockRepository
	Audit  AuditLogService
	Events StockEventPublisher
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	repo   repositories.StockRepository
	audit  AuditLogService
	events StockEventPublisher
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a concrete StockService implementation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Stock == nil {
		return nil, errors.New("stock service: stock repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stockService{
		repo:   deps.Stock,
		audit:  deps.Audit,
		events: deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *stockService) GetStock(ctx context.Context, bookID string) (BookStock, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return BookStock{}, fmt.Errorf("%w: book id is required", ErrStockInvalidInput)
	}

	stock, err := s.repo.Get(ctx, bookID)
	if err != nil {
		return BookStock{}, s.mapRepositoryError(err)
	}
	return stock, nil
}

func (s *stockService) AdjustStock(ctx context.Context, cmd StockAdjustCommand) (BookStock, error) {
	bookID := strings.TrimSpace(cmd.BookID)
	if bookID == "" {
		return BookStock{}, fmt.Errorf("%w: book id is required", ErrStockInvalidInput)
	}
	if cmd.Delta == 0 {
		return BookStock{}, fmt.Errorf("%w: delta must be non-zero", ErrStockInvalidInput)
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return BookStock{}, fmt.Errorf("%w: reason is required", ErrStockInvalidInput)
	}

	now := s.now()
	result, err := s.repo.Adjust(ctx, repositories.StockAdjustRequest{
		BookID:  bookID,
		Delta:   cmd.Delta,
		Reason:  strings.TrimSpace(cmd.Reason),
		ActorID: strings.TrimSpace(cmd.ActorID),
		Now:     now,
	})
	if err != nil {
		return BookStock{}, s.mapRepositoryError(err)
	}

	stock, ok := result.Stocks[bookID]
	if !ok {
		return BookStock{}, fmt.Errorf("stock: adjust returned no record for book %s", bookID)
	}

	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:      strings.TrimSpace(cmd.ActorID),
			ActorType:  "admin",
			Action:     auditActionStockAdjust,
			TargetRef:  "/books/" + bookID,
			Severity:   "notice",
			OccurredAt: now,
			Metadata: map[string]any{
				"delta":  cmd.Delta,
				"onHand": stock.OnHand,
				"reason": strings.TrimSpace(cmd.Reason),
			},
		})
	}

	s.publishEvent(ctx, StockEvent{
		Type:       eventStockAdjusted,
		BookID:     bookID,
		Delta:      cmd.Delta,
		After:      stock.OnHand,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		OccurredAt: now,
	})

	return stock, nil
}

func (s *stockService) ListMutations(ctx context.Context, filter StockMutationFilter) (domain.CursorPage[StockMutation], error) {
	page, err := s.repo.ListMutations(ctx, filter)
	if err != nil {
		return domain.CursorPage[StockMutation]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *stockService) now() time.Time {
	return s.clock()
}

func (s *stockService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrInsufficientStock, stockErr.Message)
		case repositories.StockErrorNotFound:
			return fmt.Errorf("%w: %s", ErrStockNotFound, stockErr.Message)
		case repositories.StockErrorNegativeResult:
			return fmt.Errorf("%w: %s", ErrStockInvalidInput, stockErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrStockNotFound, err)
	}

	return err
}

func (s *stockService) publishEvent(ctx context.Context, event StockEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishStockEvent(ctx, event); err != nil {
		s.logger(ctx, "stock.event.publish.failed", map[string]any{
			"type":  event.Type,
			"book":  event.BookID,
			"error": err.Error(),
		})
	}
}
