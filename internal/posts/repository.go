package posts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/libris-hub/libris/internal/notifications"
	"github.com/libris-hub/libris/internal/platform/db"
	"github.com/libris-hub/libris/internal/query"
	"github.com/libris-hub/libris/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertPost(ctx context.Context, authorID int64, in PostInput) (int64, error)
	UpdatePost(ctx context.Context, id int64, in PostInput) error
	DeletePost(ctx context.Context, id int64) error
	InsertLike(ctx context.Context, userID, postID int64) (bool, error)
	DeleteLike(ctx context.Context, userID, postID int64) (bool, error)
	InsertComment(ctx context.Context, authorID int64, in CommentInput) (int64, error)
	UpdateComment(ctx context.Context, id int64, in CommentUpdate) error
	DeleteComment(ctx context.Context, id int64) error
	Notifications() notifications.Scope
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction so concurrent duplicate
// inserts surface as conflicts rather than serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxIsolation(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const postColumns = `p.id, p.title, p.content, p.author_id, u.username, p.created_at, p.updated_at,
(SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id),
(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id)`

const postFrom = ` FROM posts p JOIN users u ON u.id = p.author_id `

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &p.AuthorUsername, &p.CreatedAt, &p.UpdatedAt,
		&p.LikesCount, &p.CommentsCount)
	return p, err
}

// GetPost loads a post by id.
func (r *Repository) GetPost(ctx context.Context, id int64) (*Post, error) {
	p, err := scanPost(r.pool.QueryRow(ctx, `SELECT `+postColumns+postFrom+`WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFound("post not found")
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &p, nil
}

// ListPosts returns one page of posts matching the plan and the total match count.
func (r *Repository) ListPosts(ctx context.Context, plan *query.Plan) ([]Post, int, error) {
	where, args := plan.Where()
	var (
		total int
		items []Post
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*)`+postFrom+where, args...).Scan(&total)
	})
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `SELECT `+postColumns+postFrom+where+` `+plan.OrderBy()+` `+plan.Paginate(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanPost(rows)
			if err != nil {
				return err
			}
			items = append(items, p)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	return items, total, nil
}

// Feed returns posts written by users that userID follows.
func (r *Repository) Feed(ctx context.Context, userID int64, plan *query.Plan) ([]Post, int, error) {
	plan.And("p.author_id IN (SELECT f.followee_id FROM follows f WHERE f.follower_id = ?)", userID)
	return r.ListPosts(ctx, plan)
}

const commentColumns = `c.id, c.post_id, c.author_id, u.username, c.content, c.created_at, c.updated_at`

const commentFrom = ` FROM comments c JOIN users u ON u.id = c.author_id `

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorUsername, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetComment loads a comment by id.
func (r *Repository) GetComment(ctx context.Context, id int64) (*Comment, error) {
	c, err := scanComment(r.pool.QueryRow(ctx, `SELECT `+commentColumns+commentFrom+`WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFound("comment not found")
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &c, nil
}

// ListComments returns one page of comments matching the plan and the total match count.
func (r *Repository) ListComments(ctx context.Context, plan *query.Plan) ([]Comment, int, error) {
	where, args := plan.Where()
	var (
		total int
		items []Comment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*)`+commentFrom+where, args...).Scan(&total)
	})
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `SELECT `+commentColumns+commentFrom+where+` `+plan.OrderBy()+` `+plan.Paginate(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanComment(rows)
			if err != nil {
				return err
			}
			items = append(items, c)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	return items, total, nil
}

func (t *txRepo) InsertPost(ctx context.Context, authorID int64, in PostInput) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO posts (author_id, title, content) VALUES ($1, $2, $3) RETURNING id`,
		authorID, in.Title, in.Content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return id, nil
}

func (t *txRepo) UpdatePost(ctx context.Context, id int64, in PostInput) error {
	tag, err := t.tx.Exec(ctx, `UPDATE posts SET title = $2, content = $3, updated_at = now() WHERE id = $1`, id, in.Title, in.Content)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("post not found")
	}
	return nil
}

func (t *txRepo) DeletePost(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("post not found")
	}
	return nil
}

func (t *txRepo) InsertLike(ctx context.Context, userID, postID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `INSERT INTO likes (user_id, post_id) VALUES ($1, $2) ON CONFLICT ON CONSTRAINT likes_user_post_key DO NOTHING`,
		userID, postID)
	if err != nil {
		if db.IsForeignKeyViolation(err, "") {
			return false, shared.NotFound("post not found")
		}
		return false, fmt.Errorf("insert like: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) DeleteLike(ctx context.Context, userID, postID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM likes WHERE user_id = $1 AND post_id = $2`, userID, postID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) InsertComment(ctx context.Context, authorID int64, in CommentInput) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO comments (post_id, author_id, content) VALUES ($1, $2, $3) RETURNING id`,
		in.PostID, authorID, in.Content).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err, "") {
			return 0, shared.FieldError("post", "post does not exist")
		}
		return 0, fmt.Errorf("insert comment: %w", err)
	}
	return id, nil
}

func (t *txRepo) UpdateComment(ctx context.Context, id int64, in CommentUpdate) error {
	tag, err := t.tx.Exec(ctx, `UPDATE comments SET content = $2, updated_at = now() WHERE id = $1`, id, in.Content)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("comment not found")
	}
	return nil
}

func (t *txRepo) DeleteComment(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("comment not found")
	}
	return nil
}

func (t *txRepo) Notifications() notifications.Scope {
	return notifications.TxScope(t.tx)
}
