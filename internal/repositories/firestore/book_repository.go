package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/inkwell-books/api/internal/domain"
	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

const booksCollection = "books"

// BookRepository persists catalog entries within Firestore.
type BookRepository struct {
	base     *pfirestore.BaseRepository[bookDocument]
	provider *pfirestore.Provider
}

// NewBookRepository constructs a Firestore-backed book repository.
func NewBookRepository(provider *pfirestore.Provider) (*BookRepository, error) {
	if provider == nil {
		return nil, errors.New("book repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[bookDocument](provider, booksCollection, nil, nil)
	return &BookRepository{base: base, provider: provider}, nil
}

// Upsert writes the catalog entry, preserving CreatedAt on updates.
func (r *BookRepository) Upsert(ctx context.Context, book domain.Book) (domain.Book, error) {
	if r == nil || r.base == nil {
		return domain.Book{}, errors.New("book repository not initialised")
	}
	bookID := strings.TrimSpace(book.ID)
	if bookID == "" {
		return domain.Book{}, errors.New("book repository: book id is required")
	}

	now := time.Now().UTC()
	createdAt := book.CreatedAt.UTC()
	if createdAt.IsZero() {
		if existing, err := r.base.Get(ctx, bookID); err == nil {
			createdAt = existing.Data.CreatedAt
		} else {
			createdAt = now
		}
	}

	doc := newBookDocument(book)
	doc.CreatedAt = createdAt
	doc.UpdatedAt = now

	result, err := r.base.Set(ctx, bookID, doc)
	if err != nil {
		return domain.Book{}, err
	}
	saved := doc.toDomain(bookID)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Delete removes the catalog entry. Missing documents are not an error.
func (r *BookRepository) Delete(ctx context.Context, bookID string) error {
	if r == nil || r.base == nil {
		return errors.New("book repository not initialised")
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return errors.New("book repository: book id is required")
	}

	ref, err := r.base.DocumentRef(ctx, bookID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("books.delete", err)
	}
	return nil
}

// FindByID loads one catalog entry.
func (r *BookRepository) FindByID(ctx context.Context, bookID string) (domain.Book, error) {
	if r == nil || r.base == nil {
		return domain.Book{}, errors.New("book repository not initialised")
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return domain.Book{}, errors.New("book repository: book id is required")
	}

	doc, err := r.base.Get(ctx, bookID)
	if err != nil {
		return domain.Book{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns catalog entries ordered by title.
func (r *BookRepository) List(ctx context.Context, filter repositories.BookListFilter) (domain.CursorPage[domain.Book], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Book]{}, errors.New("book repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Book]{}, pfirestore.WrapError("books.list", err)
	}

	query := client.Collection(booksCollection).Query
	if author := strings.TrimSpace(filter.Author); author != "" {
		query = query.Where("author", "==", author)
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		query = query.Where("tags", "array-contains", tag)
	}
	if filter.ActiveOnly {
		query = query.Where("active", "==", true)
	}
	query = query.OrderBy("title", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		title, id, err := decodeStringCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Book]{}, pfirestore.WrapError("books.list", err)
		}
		query = query.StartAfter(title, id)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var books []domain.Book
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Book]{}, pfirestore.WrapError("books.list", err)
		}
		var doc bookDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Book]{}, fmt.Errorf("decode book %s: %w", snap.Ref.ID, err)
		}
		books = append(books, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(books) > pageSize
	if hasMore {
		books = books[:pageSize]
	}
	var nextToken string
	if hasMore && len(books) > 0 {
		last := books[len(books)-1]
		encoded, err := encodeStringCursor(last.Title, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Book]{}, pfirestore.WrapError("books.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Book]{
		Items:         books,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type bookDocument struct {
	ISBN        string    `firestore:"isbn"`
	Title       string    `firestore:"title"`
	Author      string    `firestore:"author"`
	Description string    `firestore:"description,omitempty"`
	Language    string    `firestore:"language,omitempty"`
	Tags        []string  `firestore:"tags,omitempty"`
	UnitPrice   int64     `firestore:"unitPrice"`
	Currency    string    `firestore:"currency"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newBookDocument(book domain.Book) bookDocument {
	return bookDocument{
		ISBN:        strings.TrimSpace(book.ISBN),
		Title:       strings.TrimSpace(book.Title),
		Author:      strings.TrimSpace(book.Author),
		Description: book.Description,
		Language:    strings.TrimSpace(book.Language),
		Tags:        book.Tags,
		UnitPrice:   book.UnitPrice,
		Currency:    strings.ToUpper(strings.TrimSpace(book.Currency)),
		Active:      book.Active,
		CreatedAt:   book.CreatedAt.UTC(),
		UpdatedAt:   book.UpdatedAt.UTC(),
	}
}

func (d bookDocument) toDomain(id string) domain.Book {
	return domain.Book{
		ID:          id,
		ISBN:        d.ISBN,
		Title:       d.Title,
		Author:      d.Author,
		Description: d.Description,
		Language:    d.Language,
		Tags:        d.Tags,
		UnitPrice:   d.UnitPrice,
		Currency:    d.Currency,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

var _ repositories.BookRepository = (*BookRepository)(nil)
