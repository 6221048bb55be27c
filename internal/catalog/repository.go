package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/libris-hub/libris/internal/platform/db"
	"github.com/libris-hub/libris/internal/query"
	"github.com/libris-hub/libris/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertBook(ctx context.Context, in BookInput, createdBy int64) (int64, error)
	UpdateBook(ctx context.Context, id int64, in BookInput) error
	DeleteBook(ctx context.Context, id int64) error
	InsertAuthor(ctx context.Context, in AuthorInput, createdBy int64) (int64, error)
	UpdateAuthor(ctx context.Context, id int64, in AuthorInput) error
	DeleteAuthor(ctx context.Context, id int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const bookSelect = `SELECT b.id, b.title, b.publication_year, b.author_id, a.name, b.created_by
FROM books b JOIN authors a ON a.id = b.author_id `

func scanBook(row pgx.Row) (Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.Title, &b.PublicationYear, &b.AuthorID, &b.AuthorName, &b.CreatedBy)
	return b, err
}

// GetBook loads a book by id.
func (r *Repository) GetBook(ctx context.Context, id int64) (*Book, error) {
	b, err := scanBook(r.pool.QueryRow(ctx, bookSelect+`WHERE b.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFound("book not found")
		}
		return nil, err
	}
	return &b, nil
}

// ListBooks returns one page of books matching plan and the total match count.
func (r *Repository) ListBooks(ctx context.Context, plan *query.Plan) ([]Book, int, error) {
	where, args := plan.Where()
	var (
		total int
		books []Book
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*) FROM books b JOIN authors a ON a.id = b.author_id `+where, args...).Scan(&total)
	})
	g.Go(func() error {
		var err error
		books, err = r.queryBooks(gctx, bookSelect+where+` `+plan.OrderBy()+` `+plan.Paginate(), args...)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	return books, total, nil
}

func (r *Repository) queryBooks(ctx context.Context, sql string, args ...any) ([]Book, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var books []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// GetAuthor loads an author with its books.
func (r *Repository) GetAuthor(ctx context.Context, id int64) (*Author, error) {
	var a Author
	err := r.pool.QueryRow(ctx, `SELECT a.id, a.name, a.created_by FROM authors a WHERE a.id = $1`, id).Scan(&a.ID, &a.Name, &a.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFound("author not found")
		}
		return nil, err
	}
	books, err := r.queryBooks(ctx, bookSelect+`WHERE b.author_id = $1 ORDER BY b.title, b.id`, id)
	if err != nil {
		return nil, fmt.Errorf("author books: %w", err)
	}
	a.SetBooks(books)
	return &a, nil
}

// ListAuthors returns one page of authors matching plan, each with its books nested.
func (r *Repository) ListAuthors(ctx context.Context, plan *query.Plan) ([]Author, int, error) {
	where, args := plan.Where()
	var (
		total   int
		authors []Author
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*) FROM authors a `+where, args...).Scan(&total)
	})
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `SELECT a.id, a.name, a.created_by FROM authors a `+where+` `+plan.OrderBy()+` `+plan.Paginate(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var a Author
			if err := rows.Scan(&a.ID, &a.Name, &a.CreatedBy); err != nil {
				return err
			}
			authors = append(authors, a)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("list authors: %w", err)
	}
	if len(authors) == 0 {
		return authors, total, nil
	}

	ids := make([]int64, len(authors))
	for i, a := range authors {
		ids[i] = a.ID
	}
	books, err := r.queryBooks(ctx, bookSelect+`WHERE b.author_id = ANY($1) ORDER BY b.title, b.id`, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("list author books: %w", err)
	}
	byAuthor := make(map[int64][]Book, len(authors))
	for _, b := range books {
		byAuthor[b.AuthorID] = append(byAuthor[b.AuthorID], b)
	}
	for i := range authors {
		authors[i].SetBooks(byAuthor[authors[i].ID])
	}
	return authors, total, nil
}

func (t *txRepo) InsertBook(ctx context.Context, in BookInput, createdBy int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO books (title, publication_year, author_id, created_by) VALUES ($1, $2, $3, $4) RETURNING id`,
		in.Title, in.PublicationYear, in.AuthorID, createdBy).Scan(&id)
	if err != nil {
		return 0, bookWriteError(err)
	}
	return id, nil
}

func (t *txRepo) UpdateBook(ctx context.Context, id int64, in BookInput) error {
	tag, err := t.tx.Exec(ctx, `UPDATE books SET title = $2, publication_year = $3, author_id = $4 WHERE id = $1`,
		id, in.Title, in.PublicationYear, in.AuthorID)
	if err != nil {
		return bookWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("book not found")
	}
	return nil
}

func (t *txRepo) DeleteBook(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("book not found")
	}
	return nil
}

func (t *txRepo) InsertAuthor(ctx context.Context, in AuthorInput, createdBy int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO authors (name, created_by) VALUES ($1, $2) RETURNING id`, in.Name, createdBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert author: %w", err)
	}
	return id, nil
}

func (t *txRepo) UpdateAuthor(ctx context.Context, id int64, in AuthorInput) error {
	tag, err := t.tx.Exec(ctx, `UPDATE authors SET name = $2 WHERE id = $1`, id, in.Name)
	if err != nil {
		return fmt.Errorf("update author: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("author not found")
	}
	return nil
}

func (t *txRepo) DeleteAuthor(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM authors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete author: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("author not found")
	}
	return nil
}

func bookWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err, "books_title_author_key"):
		return ErrDuplicateBook.WithCause(err)
	case db.IsForeignKeyViolation(err, ""):
		return shared.FieldError("author", "author does not exist")
	case db.IsSerializationFailure(err):
		return shared.Conflict("the book was changed by another request, retry").WithCause(err)
	default:
		return fmt.Errorf("write book: %w", err)
	}
}
