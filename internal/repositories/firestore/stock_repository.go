package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/inkwell-books/api/internal/domain"
	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

const (
	stockCollection          = "stock"
	stockMutationsCollection = "stockMutations"
)

type StockRepository struct {
	provider *pfirestore.Provider
	stocks   *pfirestore.BaseRepository[stockDocument]
}

func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	stocks := pfirestore.NewBaseRepository[stockDocument](provider, stockCollection, nil, nil)
	return &StockRepository{provider: provider, stocks: stocks}, nil
}

// Decrement removes stock for every line inside one transaction. The quantity
// writes and their ledger entries commit together or not at all.
func (r *StockRepository) Decrement(ctx context.Context, req repositories.StockDecrementRequest) (repositories.StockMutationResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockMutationResult{}, errors.New("stock repository not initialised")
	}
	if len(req.Lines) == 0 {
		return repositories.StockMutationResult{}, errors.New("stock decrement: at least one line is required")
	}
	return r.applyLines(ctx, "stock.decrement", domain.StockMutationOutbound, negateLines(req.Lines), lineMeta{
		OrderRef: req.OrderRef,
		ActorID:  req.ActorID,
		Reason:   req.Reason,
		Now:      req.Now,
	})
}

// Restore adds previously decremented stock back, one restore entry per line.
func (r *StockRepository) Restore(ctx context.Context, req repositories.StockRestoreRequest) (repositories.StockMutationResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockMutationResult{}, errors.New("stock repository not initialised")
	}
	if len(req.Lines) == 0 {
		return repositories.StockMutationResult{}, errors.New("stock restore: at least one line is required")
	}
	return r.applyLines(ctx, "stock.restore", domain.StockMutationRestore, req.Lines, lineMeta{
		OrderRef: req.OrderRef,
		ActorID:  req.ActorID,
		Reason:   req.Reason,
		Now:      req.Now,
	})
}

// Adjust applies a signed correction to one book. Positive deltas behave like
// inbound stock; the mutation type records it as an adjustment either way.
func (r *StockRepository) Adjust(ctx context.Context, req repositories.StockAdjustRequest) (repositories.StockMutationResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockMutationResult{}, errors.New("stock repository not initialised")
	}
	if strings.TrimSpace(req.BookID) == "" {
		return repositories.StockMutationResult{}, repositories.NewStockError(repositories.StockErrorUnknown, "stock adjust: book id is required", nil)
	}
	if req.Delta == 0 {
		return repositories.StockMutationResult{}, repositories.NewStockError(repositories.StockErrorUnknown, "stock adjust: delta must be non-zero", nil)
	}
	lines := []repositories.StockLine{{BookID: req.BookID, Quantity: req.Delta}}
	return r.applyLines(ctx, "stock.adjust", domain.StockMutationAdjustment, lines, lineMeta{
		ActorID: req.ActorID,
		Reason:  req.Reason,
		Now:     req.Now,
	})
}

type lineMeta struct {
	OrderRef string
	ActorID  string
	Reason   string
	Now      time.Time
}

// applyLines mutates every line's stock document inside one transaction. The
// Firestore client rejects reads once a transaction has buffered writes, so the
// loop runs in two phases: read and validate every line, then issue every
// write. Any line driving a quantity below zero aborts the whole transaction.
func (r *StockRepository) applyLines(ctx context.Context, op string, mutationType domain.StockMutationType, lines []repositories.StockLine, meta lineMeta) (repositories.StockMutationResult, error) {
	now := meta.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	merged, err := mergeLines(op, lines)
	if err != nil {
		return repositories.StockMutationResult{}, err
	}

	type lineState struct {
		ref    *firestore.DocumentRef
		doc    stockDocument
		before int
	}

	var result repositories.StockMutationResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		states := make([]lineState, 0, len(merged))
		for _, line := range merged {
			bookID := line.BookID

			stockRef, err := r.stocks.DocumentRef(ctx, bookID)
			if err != nil {
				return err
			}

			var doc stockDocument
			exists := true
			snap, err := tx.Get(stockRef)
			if err != nil {
				if status.Code(err) != codes.NotFound {
					return err
				}
				exists = false
			} else if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode stock %s: %w", bookID, err)
			}

			if !exists {
				// Decrements and negative adjustments need an existing record;
				// positive adjustments may seed one.
				if line.Quantity < 0 {
					if mutationType == domain.StockMutationOutbound {
						return repositories.NewStockError(
							repositories.StockErrorInsufficient,
							fmt.Sprintf("insufficient stock for %s", bookID),
							&repositories.InsufficientStockDetail{BookID: bookID, Requested: -line.Quantity, Available: 0},
						)
					}
					return repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", bookID), nil)
				}
				doc = stockDocument{BookID: bookID}
			}

			before := doc.OnHand
			after := before + line.Quantity
			if after < 0 {
				if mutationType == domain.StockMutationOutbound {
					return repositories.NewStockError(
						repositories.StockErrorInsufficient,
						fmt.Sprintf("insufficient stock for %s", bookID),
						&repositories.InsufficientStockDetail{BookID: bookID, Requested: -line.Quantity, Available: before},
					)
				}
				return repositories.NewStockError(
					repositories.StockErrorNegativeResult,
					fmt.Sprintf("%s: %s would drop below zero", op, bookID),
					nil,
				)
			}

			doc.BookID = bookID
			doc.OnHand = after
			doc.UpdatedAt = now
			states = append(states, lineState{ref: stockRef, doc: doc, before: before})
		}

		stocks := make(map[string]domain.BookStock, len(merged))
		mutations := make([]domain.StockMutation, 0, len(merged))
		for i, line := range merged {
			st := states[i]
			if err := tx.Set(st.ref, st.doc); err != nil {
				return err
			}
			stocks[line.BookID] = st.doc.toDomain(line.BookID)

			mutationRef := client.Collection(stockMutationsCollection).NewDoc()
			mutation := domain.StockMutation{
				ID:         mutationRef.ID,
				BookID:     line.BookID,
				Type:       mutationType,
				Delta:      line.Quantity,
				Before:     st.before,
				After:      st.doc.OnHand,
				Reason:     strings.TrimSpace(meta.Reason),
				OrderRef:   strings.TrimSpace(meta.OrderRef),
				ActorID:    strings.TrimSpace(meta.ActorID),
				OccurredAt: now,
			}
			if err := tx.Create(mutationRef, newStockMutationDocument(mutation)); err != nil {
				return err
			}
			mutations = append(mutations, mutation)
		}

		result = repositories.StockMutationResult{Stocks: stocks, Mutations: mutations}
		return nil
	})
	if err != nil {
		return repositories.StockMutationResult{}, wrapStockError(op, err)
	}
	return result, nil
}

// mergeLines validates the request lines and sums duplicate book ids so each
// stock document is read and written once per transaction.
func mergeLines(op string, lines []repositories.StockLine) ([]repositories.StockLine, error) {
	index := make(map[string]int, len(lines))
	merged := make([]repositories.StockLine, 0, len(lines))
	for _, line := range lines {
		bookID := strings.TrimSpace(line.BookID)
		if bookID == "" {
			return nil, repositories.NewStockError(repositories.StockErrorUnknown, fmt.Sprintf("%s: book id is required", op), nil)
		}
		if line.Quantity == 0 {
			return nil, repositories.NewStockError(repositories.StockErrorUnknown, fmt.Sprintf("%s: quantity for %s must be non-zero", op, bookID), nil)
		}
		if i, ok := index[bookID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[bookID] = len(merged)
		merged = append(merged, repositories.StockLine{BookID: bookID, Quantity: line.Quantity})
	}
	for _, line := range merged {
		if line.Quantity == 0 {
			return nil, repositories.NewStockError(repositories.StockErrorUnknown, fmt.Sprintf("%s: quantity for %s must be non-zero", op, line.BookID), nil)
		}
	}
	return merged, nil
}

func (r *StockRepository) Get(ctx context.Context, bookID string) (domain.BookStock, error) {
	if r == nil || r.stocks == nil {
		return domain.BookStock{}, errors.New("stock repository not initialised")
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return domain.BookStock{}, errors.New("stock get: book id is required")
	}

	doc, err := r.stocks.Get(ctx, bookID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.BookStock{}, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", bookID), err)
		}
		return domain.BookStock{}, wrapStockError("stock.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *StockRepository) ListMutations(ctx context.Context, filter repositories.StockMutationFilter) (domain.CursorPage[domain.StockMutation], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.StockMutation]{}, errors.New("stock repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.StockMutation]{}, wrapStockError("stock.listMutations", err)
	}

	query := client.Collection(stockMutationsCollection).Query
	if bookID := strings.TrimSpace(filter.BookID); bookID != "" {
		query = query.Where("bookId", "==", bookID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		query = query.Where("type", "in", types)
	}
	if filter.DateRange.From != nil {
		query = query.Where("occurredAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("occurredAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("occurredAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		occurredAt, id, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.StockMutation]{}, wrapStockError("stock.listMutations", err)
		}
		query = query.StartAfter(occurredAt, id)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var mutations []domain.StockMutation
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.StockMutation]{}, wrapStockError("stock.listMutations", err)
		}
		var doc stockMutationDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.StockMutation]{}, fmt.Errorf("decode stock mutation %s: %w", snap.Ref.ID, err)
		}
		mutations = append(mutations, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(mutations) > pageSize
	if hasMore {
		mutations = mutations[:pageSize]
	}
	var nextToken string
	if hasMore && len(mutations) > 0 {
		last := mutations[len(mutations)-1]
		encoded, err := encodeTimeCursor(last.OccurredAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.StockMutation]{}, wrapStockError("stock.listMutations", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.StockMutation]{
		Items:         mutations,
		NextPageToken: nextToken,
	}, nil
}

func negateLines(lines []repositories.StockLine) []repositories.StockLine {
	out := make([]repositories.StockLine, len(lines))
	for i, line := range lines {
		out[i] = repositories.StockLine{BookID: line.BookID, Quantity: -line.Quantity}
	}
	return out
}

// Helper structures ---------------------------------------------------------

type stockDocument struct {
	BookID    string    `firestore:"bookId"`
	OnHand    int       `firestore:"onHand"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (s stockDocument) toDomain(id string) domain.BookStock {
	return domain.BookStock{
		BookID:    id,
		OnHand:    s.OnHand,
		UpdatedAt: s.UpdatedAt,
	}
}

type stockMutationDocument struct {
	BookID     string    `firestore:"bookId"`
	Type       string    `firestore:"type"`
	Delta      int       `firestore:"delta"`
	Before     int       `firestore:"before"`
	After      int       `firestore:"after"`
	Reason     string    `firestore:"reason,omitempty"`
	OrderRef   string    `firestore:"orderRef,omitempty"`
	ActorID    string    `firestore:"actorId,omitempty"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

func newStockMutationDocument(m domain.StockMutation) stockMutationDocument {
	return stockMutationDocument{
		BookID:     m.BookID,
		Type:       string(m.Type),
		Delta:      m.Delta,
		Before:     m.Before,
		After:      m.After,
		Reason:     m.Reason,
		OrderRef:   m.OrderRef,
		ActorID:    m.ActorID,
		OccurredAt: m.OccurredAt.UTC(),
	}
}

func (d stockMutationDocument) toDomain(id string) domain.StockMutation {
	return domain.StockMutation{
		ID:         id,
		BookID:     d.BookID,
		Type:       domain.StockMutationType(d.Type),
		Delta:      d.Delta,
		Before:     d.Before,
		After:      d.After,
		Reason:     d.Reason,
		OrderRef:   d.OrderRef,
		ActorID:    d.ActorID,
		OccurredAt: d.OccurredAt,
	}
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}

var _ repositories.StockRepository = (*StockRepository)(nil)
