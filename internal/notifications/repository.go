package notifications

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/libris-hub/libris/internal/platform/db"
	"github.com/libris-hub/libris/internal/query"
	"github.com/libris-hub/libris/internal/shared"
)

// Repository provides PostgreSQL backed persistence for notifications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxScope binds notifier writes to tx.
func TxScope(tx pgx.Tx) Scope {
	return txScope{tx: tx}
}

type txScope struct {
	tx pgx.Tx
}

func (s txScope) Savepoint(ctx context.Context, fn func(Store) error) error {
	return db.WithSavepoint(ctx, s.tx, func(sp pgx.Tx) error {
		return fn(pgStore{tx: sp})
	})
}

type pgStore struct {
	tx pgx.Tx
}

func (s pgStore) Insert(ctx context.Context, n Notification) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO notifications (recipient_id, actor_id, verb, target_type, target_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		n.RecipientID, n.ActorID, string(n.Verb), string(n.TargetType), n.TargetID, n.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return id, nil
}

const listColumns = `n.id, n.recipient_id, n.actor_id, u.username, n.verb, n.target_type, n.target_id, n.is_read, n.created_at`

// List returns one page of the plan's notifications and the total match count.
func (r *Repository) List(ctx context.Context, plan *query.Plan) ([]Notification, int, error) {
	where, args := plan.Where()
	var (
		total int
		items []Notification
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*) FROM notifications n `+where, args...).Scan(&total)
	})
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `SELECT `+listColumns+`
FROM notifications n JOIN users u ON u.id = n.actor_id `+where+` `+plan.OrderBy()+` `+plan.Paginate(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				n          Notification
				verb       string
				targetType string
			)
			if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.ActorUsername, &verb, &targetType, &n.TargetID, &n.IsRead, &n.CreatedAt); err != nil {
				return err
			}
			n.Verb = Verb(verb)
			n.TargetType = TargetType(targetType)
			items = append(items, n)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead flips one of the recipient's notifications to read.
func (r *Repository) MarkRead(ctx context.Context, recipientID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("notification not found")
	}
	return nil
}

// MarkAllRead flips every unread notification of the recipient.
func (r *Repository) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND NOT is_read`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}
