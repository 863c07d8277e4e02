package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

// StockRepository is a mutex-guarded in-memory stock ledger. The lock makes
// every batch operation all-or-nothing, mirroring the transactional backend.
type StockRepository struct {
	mu        sync.Mutex
	stocks    map[string]domain.BookStock
	mutations []domain.StockMutation
	seq       int
}

// NewStockRepository constructs an empty in-memory ledger.
func NewStockRepository() *StockRepository {
	return &StockRepository{stocks: make(map[string]domain.BookStock)}
}

// Seed sets the on-hand quantity for a book without recording a mutation.
// Intended for test setup only.
func (r *StockRepository) Seed(bookID string, onHand int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stocks[bookID] = domain.BookStock{BookID: bookID, OnHand: onHand, UpdatedAt: time.Now().UTC()}
}

func (r *StockRepository) Decrement(_ context.Context, req repositories.StockDecrementRequest) (repositories.StockMutationResult, error) {
	if len(req.Lines) == 0 {
		return repositories.StockMutationResult{}, errors.New("stock decrement: at least one line is required")
	}
	lines, err := combineLines(req.Lines)
	if err != nil {
		return repositories.StockMutationResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate every combined line before touching anything, so duplicate
	// lines for the same book are checked against the summed quantity.
	for _, line := range lines {
		stock, ok := r.stocks[line.BookID]
		available := 0
		if ok {
			available = stock.OnHand
		}
		if available < line.Quantity {
			return repositories.StockMutationResult{}, repositories.NewStockError(
				repositories.StockErrorInsufficient,
				fmt.Sprintf("insufficient stock for %s", line.BookID),
				&repositories.InsufficientStockDetail{BookID: line.BookID, Requested: line.Quantity, Available: available},
			)
		}
	}

	return r.applyLocked(domain.StockMutationOutbound, negate(lines), req.OrderRef, req.ActorID, req.Reason, req.Now), nil
}

func (r *StockRepository) Restore(_ context.Context, req repositories.StockRestoreRequest) (repositories.StockMutationResult, error) {
	if len(req.Lines) == 0 {
		return repositories.StockMutationResult{}, errors.New("stock restore: at least one line is required")
	}
	lines, err := combineLines(req.Lines)
	if err != nil {
		return repositories.StockMutationResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(domain.StockMutationRestore, lines, req.OrderRef, req.ActorID, req.Reason, req.Now), nil
}

func (r *StockRepository) Adjust(_ context.Context, req repositories.StockAdjustRequest) (repositories.StockMutationResult, error) {
	bookID := strings.TrimSpace(req.BookID)
	if bookID == "" {
		return repositories.StockMutationResult{}, repositories.NewStockError(repositories.StockErrorUnknown, "stock adjust: book id is required", nil)
	}
	if req.Delta == 0 {
		return repositories.StockMutationResult{}, repositories.NewStockError(repositories.StockErrorUnknown, "stock adjust: delta must be non-zero", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.stocks[bookID].OnHand
	if current+req.Delta < 0 {
		return repositories.StockMutationResult{}, repositories.NewStockError(
			repositories.StockErrorNegativeResult,
			fmt.Sprintf("stock adjust: %s would drop below zero", bookID),
			nil,
		)
	}
	lines := []repositories.StockLine{{BookID: bookID, Quantity: req.Delta}}
	return r.applyLocked(domain.StockMutationAdjustment, lines, "", req.ActorID, req.Reason, req.Now), nil
}

// applyLocked assumes validation already passed and r.mu is held.
func (r *StockRepository) applyLocked(mutationType domain.StockMutationType, lines []repositories.StockLine, orderRef, actorID, reason string, now time.Time) repositories.StockMutationResult {
	now = now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	stocks := make(map[string]domain.BookStock, len(lines))
	mutations := make([]domain.StockMutation, 0, len(lines))
	for _, line := range lines {
		stock := r.stocks[line.BookID]
		before := stock.OnHand
		stock.BookID = line.BookID
		stock.OnHand = before + line.Quantity
		stock.UpdatedAt = now
		r.stocks[line.BookID] = stock
		stocks[line.BookID] = stock

		r.seq++
		mutation := domain.StockMutation{
			ID:         fmt.Sprintf("mut-%06d", r.seq),
			BookID:     line.BookID,
			Type:       mutationType,
			Delta:      line.Quantity,
			Before:     before,
			After:      stock.OnHand,
			Reason:     reason,
			OrderRef:   orderRef,
			ActorID:    actorID,
			OccurredAt: now,
		}
		r.mutations = append(r.mutations, mutation)
		mutations = append(mutations, mutation)
	}
	return repositories.StockMutationResult{Stocks: stocks, Mutations: mutations}
}

func (r *StockRepository) Get(_ context.Context, bookID string) (domain.BookStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stock, ok := r.stocks[bookID]
	if !ok {
		return domain.BookStock{}, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", bookID), notFoundError("stock", bookID))
	}
	return stock, nil
}

func (r *StockRepository) ListMutations(_ context.Context, filter repositories.StockMutationFilter) (domain.CursorPage[domain.StockMutation], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.StockMutation
	for _, m := range r.mutations {
		if filter.BookID != "" && m.BookID != filter.BookID {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, m.Type) {
			continue
		}
		if filter.DateRange.From != nil && m.OccurredAt.Before(*filter.DateRange.From) {
			continue
		}
		if filter.DateRange.To != nil && m.OccurredAt.After(*filter.DateRange.To) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })

	pageSize := filter.Pagination.PageSize
	if pageSize > 0 && len(out) > pageSize {
		out = out[:pageSize]
	}
	return domain.CursorPage[domain.StockMutation]{Items: out}, nil
}

func containsType(types []domain.StockMutationType, t domain.StockMutationType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// combineLines sums duplicate book ids into a single line, preserving
// first-seen order, so each book is validated and mutated exactly once.
func combineLines(lines []repositories.StockLine) ([]repositories.StockLine, error) {
	index := make(map[string]int, len(lines))
	combined := make([]repositories.StockLine, 0, len(lines))
	for _, line := range lines {
		bookID := strings.TrimSpace(line.BookID)
		if bookID == "" {
			return nil, repositories.NewStockError(repositories.StockErrorUnknown, "stock: book id is required", nil)
		}
		if line.Quantity <= 0 {
			return nil, repositories.NewStockError(repositories.StockErrorUnknown, fmt.Sprintf("stock: quantity for %s must be > 0", bookID), nil)
		}
		if i, ok := index[bookID]; ok {
			combined[i].Quantity += line.Quantity
			continue
		}
		index[bookID] = len(combined)
		combined = append(combined, repositories.StockLine{BookID: bookID, Quantity: line.Quantity})
	}
	return combined, nil
}

func negate(lines []repositories.StockLine) []repositories.StockLine {
	out := make([]repositories.StockLine, len(lines))
	for i, line := range lines {
		out[i] = repositories.StockLine{BookID: line.BookID, Quantity: -line.Quantity}
	}
	return out
}

var _ repositories.StockRepository = (*StockRepository)(nil)
