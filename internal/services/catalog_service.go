package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

const (
	bookIDPrefix = "book_"

	maxBookTitleLength       = 500
	maxBookAuthorLength      = 200
	maxBookDescriptionLength = 20000
	maxBookTags              = 20

	auditActionBookUpsert = "book.upsert"
	auditActionBookDelete = "book.delete"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid book data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the book could not be located.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogUnavailable indicates a backend failure behind the catalog.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Books       repositories.BookRepository
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	books        repositories.BookRepository
	audit        AuditLogService
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
	descSanitize *bluemonday.Policy
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Books == nil {
		return nil, errors.New("catalog service: book repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		books:        deps.Books,
		audit:        deps.Audit,
		clock:        func() time.Time { return clock().UTC() },
		newID:        idGen,
		logger:       logger,
		descSanitize: newBookDescriptionPolicy(),
	}, nil
}

func (s *catalogService) GetBook(ctx context.Context, bookID string) (Book, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return Book{}, fmt.Errorf("%w: book id is required", ErrCatalogInvalidInput)
	}

	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		return Book{}, s.mapRepositoryError(err)
	}
	return book, nil
}

func (s *catalogService) ListBooks(ctx context.Context, filter BookListFilter) (domain.CursorPage[Book], error) {
	page, err := s.books.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Book]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) UpsertBook(ctx context.Context, cmd UpsertBookCommand) (Book, error) {
	book, err := s.normaliseBook(cmd.Book)
	if err != nil {
		return Book{}, err
	}

	now := s.now()
	created := false
	if book.ID == "" {
		book.ID = bookIDPrefix + s.newID()
		book.CreatedAt = now
		created = true
	}
	book.UpdatedAt = now

	saved, err := s.books.Upsert(ctx, book)
	if err != nil {
		return Book{}, s.mapRepositoryError(err)
	}

	s.recordAudit(ctx, cmd.ActorID, auditActionBookUpsert, saved.ID, now, map[string]any{
		"created": created,
		"title":   saved.Title,
	})

	return saved, nil
}

func (s *catalogService) DeleteBook(ctx context.Context, cmd DeleteBookCommand) error {
	bookID := strings.TrimSpace(cmd.BookID)
	if bookID == "" {
		return fmt.Errorf("%w: book id is required", ErrCatalogInvalidInput)
	}

	if err := s.books.Delete(ctx, bookID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.recordAudit(ctx, cmd.ActorID, auditActionBookDelete, bookID, s.now(), nil)
	return nil
}

func (s *catalogService) normaliseBook(book Book) (Book, error) {
	book.ID = strings.TrimSpace(book.ID)
	book.Title = strings.TrimSpace(book.Title)
	book.Author = strings.TrimSpace(book.Author)
	book.ISBN = normaliseISBN(book.ISBN)
	book.Currency = strings.ToUpper(strings.TrimSpace(book.Currency))

	if book.Title == "" {
		return Book{}, fmt.Errorf("%w: title is required", ErrCatalogInvalidInput)
	}
	if len(book.Title) > maxBookTitleLength {
		return Book{}, fmt.Errorf("%w: title must be %d characters or fewer", ErrCatalogInvalidInput, maxBookTitleLength)
	}
	if book.Author == "" {
		return Book{}, fmt.Errorf("%w: author is required", ErrCatalogInvalidInput)
	}
	if len(book.Author) > maxBookAuthorLength {
		return Book{}, fmt.Errorf("%w: author must be %d characters or fewer", ErrCatalogInvalidInput, maxBookAuthorLength)
	}
	if book.ISBN != "" && !validISBN(book.ISBN) {
		return Book{}, fmt.Errorf("%w: isbn must be 10 or 13 digits", ErrCatalogInvalidInput)
	}
	if book.UnitPrice < 0 {
		return Book{}, fmt.Errorf("%w: unit price must be non-negative", ErrCatalogInvalidInput)
	}
	if book.Currency == "" {
		return Book{}, fmt.Errorf("%w: currency is required", ErrCatalogInvalidInput)
	}

	if desc := strings.TrimSpace(book.Description); desc != "" {
		if len(desc) > maxBookDescriptionLength {
			return Book{}, fmt.Errorf("%w: description must be %d characters or fewer", ErrCatalogInvalidInput, maxBookDescriptionLength)
		}
		book.Description = s.descSanitize.Sanitize(desc)
	} else {
		book.Description = ""
	}

	if lang := strings.TrimSpace(book.Language); lang != "" {
		tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
		if err != nil {
			return Book{}, fmt.Errorf("%w: invalid language tag %q", ErrCatalogInvalidInput, lang)
		}
		book.Language = tag.String()
	}

	tags, err := normaliseBookTags(book.Tags)
	if err != nil {
		return Book{}, err
	}
	book.Tags = tags

	return book, nil
}

func (s *catalogService) recordAudit(ctx context.Context, actorID, action, bookID string, now time.Time, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      strings.TrimSpace(actorID),
		ActorType:  "admin",
		Action:     action,
		TargetRef:  "/books/" + bookID,
		Severity:   "notice",
		OccurredAt: now,
		Metadata:   metadata,
	})
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return err
}

func (s *catalogService) now() time.Time {
	return s.clock()
}

func normaliseISBN(isbn string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(isbn) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

func validISBN(isbn string) bool {
	if len(isbn) != 10 && len(isbn) != 13 {
		return false
	}
	for i, r := range isbn {
		if r >= '0' && r <= '9' {
			continue
		}
		// ISBN-10 allows a trailing check character of X.
		if r == 'X' && len(isbn) == 10 && i == 9 {
			continue
		}
		return false
	}
	return true
}

func normaliseBookTags(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	if len(tags) > maxBookTags {
		return nil, fmt.Errorf("%w: at most %d tags are allowed", ErrCatalogInvalidInput, maxBookTags)
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.ToLower(strings.TrimSpace(tag))
		if trimmed == "" {
			continue
		}
		if !slices.Contains(out, trimmed) {
			out = append(out, trimmed)
		}
	}
	slices.Sort(out)
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func newBookDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.RequireNoFollowOnLinks(true)
	return policy
}
