package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/libris-hub/libris/internal/query"
	"github.com/libris-hub/libris/internal/rbac"
	"github.com/libris-hub/libris/internal/shared"
	"github.com/libris-hub/libris/internal/validation"
)

// ErrDuplicateBook reports a second book with the same title by the same author.
var ErrDuplicateBook = shared.Conflict("a book with this title by this author already exists")

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBook(ctx context.Context, id int64) (*Book, error)
	ListBooks(ctx context.Context, plan *query.Plan) ([]Book, int, error)
	GetAuthor(ctx context.Context, id int64) (*Author, error)
	ListAuthors(ctx context.Context, plan *query.Plan) ([]Author, int, error)
}

// BookSchema is the query schema of GET /books.
var BookSchema = &query.Schema{
	Filters: []query.Filter{
		{Param: "id", Kind: query.Exact, Column: "b.id"},
		{Param: "title", Kind: query.ExactText, Column: "b.title"},
		{Param: "title_icontains", Kind: query.IContains, Column: "b.title"},
		{Param: "title__icontains", Kind: query.IContains, Column: "b.title"},
		{Param: "author", Kind: query.Exact, Column: "b.author_id"},
		{Param: "author_name", Kind: query.IContains, Column: "a.name"},
		{Param: "publication_year", Kind: query.Exact, Column: "b.publication_year"},
		{Param: "publication_year_gte", Kind: query.Gte, Column: "b.publication_year"},
		{Param: "publication_year__gte", Kind: query.Gte, Column: "b.publication_year"},
		{Param: "publication_year_lte", Kind: query.Lte, Column: "b.publication_year"},
		{Param: "publication_year__lte", Kind: query.Lte, Column: "b.publication_year"},
		{Param: "publication_year_range", Kind: query.Range, Column: "b.publication_year"},
	},
	Search: []string{"b.title", "a.name"},
	Ordering: map[string]string{
		"id":               "b.id",
		"title":            "b.title",
		"publication_year": "b.publication_year",
		"author_name":      "a.name",
	},
	DefaultOrdering: []string{"title"},
	TieBreaker:      "b.id",
}

// AuthorSchema is the query schema of GET /authors.
var AuthorSchema = &query.Schema{
	Filters: []query.Filter{
		{Param: "id", Kind: query.Exact, Column: "a.id"},
		{Param: "name", Kind: query.ExactText, Column: "a.name"},
		{Param: "name_icontains", Kind: query.IContains, Column: "a.name"},
		{Param: "has_books", Kind: query.Exists, Subquery: "SELECT 1 FROM books hb WHERE hb.author_id = a.id"},
	},
	Search:          []string{"a.name"},
	Ordering:        map[string]string{"id": "a.id", "name": "a.name"},
	DefaultOrdering: []string{"name"},
	TieBreaker:      "a.id",
}

// Service applies catalog rules: group permissions on writes, the publication-year bound
// and (title, author) uniqueness.
type Service struct {
	repo      RepositoryPort
	engine    *rbac.Engine
	validator *validation.Validator
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, engine *rbac.Engine, v *validation.Validator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, validator: v, logger: logger}
}

// ListBooks returns the filtered, ordered and paginated book list.
func (s *Service) ListBooks(ctx context.Context, values url.Values) (shared.ListResponse[Book], error) {
	plan, err := BookSchema.Parse(values)
	if err != nil {
		return shared.ListResponse[Book]{}, err
	}
	books, total, err := s.repo.ListBooks(ctx, plan)
	if err != nil {
		return shared.ListResponse[Book]{}, err
	}
	return shared.NewListResponse(total, books), nil
}

// GetBook returns one book.
func (s *Service) GetBook(ctx context.Context, id int64) (*Book, error) {
	return s.repo.GetBook(ctx, id)
}

// CreateBook adds a book on behalf of the caller.
func (s *Service) CreateBook(ctx context.Context, caller rbac.Identity, in BookInput) (*Book, error) {
	if err := s.engine.Check(caller, rbac.ActionCreate, rbac.ResourceBook, nil); err != nil {
		return nil, err
	}
	if err := s.validateBook(ctx, in); err != nil {
		return nil, err
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertBook(ctx, in, caller.UserID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	s.logger.Info("book created", slog.Int64("book_id", id), slog.Int64("user_id", caller.UserID))
	return s.repo.GetBook(ctx, id)
}

// ReplaceBook overwrites every field of a book.
func (s *Service) ReplaceBook(ctx context.Context, caller rbac.Identity, id int64, in BookInput) (*Book, error) {
	existing, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.updateBook(ctx, caller, existing, in)
}

// PatchBook changes the fields present in the patch.
func (s *Service) PatchBook(ctx context.Context, caller rbac.Identity, id int64, patch BookPatch) (*Book, error) {
	existing, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.updateBook(ctx, caller, existing, patch.Apply(existing))
}

func (s *Service) updateBook(ctx context.Context, caller rbac.Identity, existing *Book, in BookInput) (*Book, error) {
	if err := s.engine.Check(caller, rbac.ActionUpdate, rbac.ResourceBook, nil); err != nil {
		return nil, err
	}
	if err := s.validateBook(ctx, in); err != nil {
		return nil, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateBook(ctx, existing.ID, in)
	})
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}
	return s.repo.GetBook(ctx, existing.ID)
}

// DeleteBook removes a book and returns it for the confirmation message.
func (s *Service) DeleteBook(ctx context.Context, caller rbac.Identity, id int64) (*Book, error) {
	existing, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Check(caller, rbac.ActionDelete, rbac.ResourceBook, nil); err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteBook(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("delete book: %w", err)
	}
	s.logger.Info("book deleted", slog.Int64("book_id", id), slog.Int64("user_id", caller.UserID))
	return existing, nil
}

func (s *Service) validateBook(ctx context.Context, in BookInput) error {
	if err := s.validator.Validate(in); err != nil {
		return err
	}
	if _, err := s.repo.GetAuthor(ctx, in.AuthorID); err != nil {
		if shared.CodeOf(err) == shared.CodeNotFound {
			return shared.FieldError("author", fmt.Sprintf("invalid pk %d - object does not exist", in.AuthorID))
		}
		return err
	}
	return nil
}

// ListAuthors returns the filtered author list with nested books.
func (s *Service) ListAuthors(ctx context.Context, values url.Values) (shared.ListResponse[Author], error) {
	plan, err := AuthorSchema.Parse(values)
	if err != nil {
		return shared.ListResponse[Author]{}, err
	}
	authors, total, err := s.repo.ListAuthors(ctx, plan)
	if err != nil {
		return shared.ListResponse[Author]{}, err
	}
	return shared.NewListResponse(total, authors), nil
}

// GetAuthor returns one author with nested books.
func (s *Service) GetAuthor(ctx context.Context, id int64) (*Author, error) {
	return s.repo.GetAuthor(ctx, id)
}

// CreateAuthor adds an author on behalf of the caller.
func (s *Service) CreateAuthor(ctx context.Context, caller rbac.Identity, in AuthorInput) (*Author, error) {
	if err := s.engine.Check(caller, rbac.ActionCreate, rbac.ResourceAuthor, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertAuthor(ctx, in, caller.UserID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create author: %w", err)
	}
	return s.repo.GetAuthor(ctx, id)
}

// UpdateAuthor renames an author.
func (s *Service) UpdateAuthor(ctx context.Context, caller rbac.Identity, id int64, in AuthorInput) (*Author, error) {
	if _, err := s.repo.GetAuthor(ctx, id); err != nil {
		return nil, err
	}
	if err := s.engine.Check(caller, rbac.ActionUpdate, rbac.ResourceAuthor, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateAuthor(ctx, id, in)
	})
	if err != nil {
		return nil, fmt.Errorf("update author: %w", err)
	}
	return s.repo.GetAuthor(ctx, id)
}

// DeleteAuthor removes an author together with its books.
func (s *Service) DeleteAuthor(ctx context.Context, caller rbac.Identity, id int64) (*Author, error) {
	existing, err := s.repo.GetAuthor(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Check(caller, rbac.ActionDelete, rbac.ResourceAuthor, nil); err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteAuthor(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("delete author: %w", err)
	}
	s.logger.Info("author deleted", slog.Int64("author_id", id), slog.Int("books", existing.BookCount))
	return existing, nil
}
