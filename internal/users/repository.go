package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/libris-hub/libris/internal/notifications"
	"github.com/libris-hub/libris/internal/platform/db"
	"github.com/libris-hub/libris/internal/query"
	"github.com/libris-hub/libris/internal/rbac"
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
	CreateUser(ctx context.Context, acc NewAccount) (int64, error)
	EnsureProfile(ctx context.Context, userID int64, role rbac.Role) error
	UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) error
	SetRole(ctx context.Context, userID int64, role rbac.Role) error
	InsertFollow(ctx context.Context, followerID, followeeID int64) (bool, error)
	DeleteFollow(ctx context.Context, followerID, followeeID int64) (bool, error)
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

const userColumns = `u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name, u.is_active, u.created_at,
p.user_id IS NOT NULL, COALESCE(p.role, ''), COALESCE(p.bio, ''), COALESCE(p.profile_picture, ''),
(SELECT COUNT(*) FROM follows f WHERE f.followee_id = u.id),
(SELECT COUNT(*) FROM follows f WHERE f.follower_id = u.id)`

const userFrom = ` FROM users u LEFT JOIN profiles p ON p.user_id = u.id `

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsActive, &u.CreatedAt,
		&u.HasProfile, &role, &u.Bio, &u.ProfilePicture, &u.FollowersCount, &u.FollowingCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFound("user not found")
		}
		return nil, err
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	u.Role = parsed
	return &u, nil
}

// GetUser loads an active user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+userFrom+`WHERE u.id = $1 AND u.is_active`, id))
}

// GetUserByUsername loads an active user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+userFrom+`WHERE u.username = $1 AND u.is_active`, username))
}

// ListFollowers returns users following userID.
func (r *Repository) ListFollowers(ctx context.Context, userID int64, plan *query.Plan) ([]Summary, int, error) {
	plan.And("f.followee_id = ?", userID)
	return r.listEdges(ctx, "f.follower_id", plan)
}

// ListFollowing returns users followed by userID.
func (r *Repository) ListFollowing(ctx context.Context, userID int64, plan *query.Plan) ([]Summary, int, error) {
	plan.And("f.follower_id = ?", userID)
	return r.listEdges(ctx, "f.followee_id", plan)
}

func (r *Repository) listEdges(ctx context.Context, joinColumn string, plan *query.Plan) ([]Summary, int, error) {
	where, args := plan.Where()
	from := ` FROM follows f JOIN users u ON u.id = ` + joinColumn + ` ` + where
	var (
		total int
		items []Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*)`+from, args...).Scan(&total)
	})
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `SELECT u.id, u.username, u.first_name, u.last_name`+from+` `+plan.OrderBy()+` `+plan.Paginate(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s Summary
			if err := rows.Scan(&s.ID, &s.Username, &s.FirstName, &s.LastName); err != nil {
				return err
			}
			items = append(items, s)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("list follow edges: %w", err)
	}
	return items, total, nil
}

// ResolveIdentity implements rbac.IdentityResolver.
func (r *Repository) ResolveIdentity(ctx context.Context, userID int64) (rbac.Identity, error) {
	var (
		username string
		role     string
	)
	err := r.pool.QueryRow(ctx, `SELECT u.username, COALESCE(p.role, '')`+userFrom+`WHERE u.id = $1 AND u.is_active`, userID).Scan(&username, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Identity{}, shared.NotFound("user not found")
		}
		return rbac.Identity{}, err
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return rbac.Identity{}, err
	}
	return rbac.Identity{UserID: userID, Username: username, Role: parsed}, nil
}

func (t *txRepo) CreateUser(ctx context.Context, acc NewAccount) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO users (username, email, password_hash, first_name, last_name)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		acc.Username, acc.Email, acc.PasswordHash, acc.FirstName, acc.LastName).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "users_username_key") {
			return 0, shared.Conflict("a user with that username already exists").WithCause(err)
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `INSERT INTO profiles (user_id, role, bio) VALUES ($1, $2, $3)`, id, acc.Role.String(), acc.Bio); err != nil {
		return 0, fmt.Errorf("insert profile: %w", err)
	}
	return id, nil
}

func (t *txRepo) EnsureProfile(ctx context.Context, userID int64, role rbac.Role) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO profiles (user_id, role) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`, userID, role.String())
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) error {
	var (
		userSets []string
		userArgs []any
	)
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		userArgs = append(userArgs, *v)
		userSets = append(userSets, fmt.Sprintf("%s = $%d", col, len(userArgs)))
	}
	add("email", upd.Email)
	add("first_name", upd.FirstName)
	add("last_name", upd.LastName)
	if len(userSets) > 0 {
		userArgs = append(userArgs, userID)
		sql := `UPDATE users SET ` + strings.Join(userSets, ", ") + `, updated_at = now() WHERE id = $` + fmt.Sprint(len(userArgs))
		if _, err := t.tx.Exec(ctx, sql, userArgs...); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
	}
	if upd.Bio != nil || upd.ProfilePicture != nil {
		_, err := t.tx.Exec(ctx, `UPDATE profiles SET bio = COALESCE($2, bio), profile_picture = COALESCE($3, profile_picture) WHERE user_id = $1`,
			userID, upd.Bio, upd.ProfilePicture)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
	}
	return nil
}

func (t *txRepo) SetRole(ctx context.Context, userID int64, role rbac.Role) error {
	tag, err := t.tx.Exec(ctx, `UPDATE profiles SET role = $2 WHERE user_id = $1`, userID, role.String())
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("user not found")
	}
	return nil
}

func (t *txRepo) InsertFollow(ctx context.Context, followerID, followeeID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, followerID, followeeID)
	if err != nil {
		if db.IsCheckViolation(err, "follows_no_self") {
			return false, shared.Conflict("you cannot follow yourself")
		}
		if db.IsForeignKeyViolation(err, "") {
			return false, shared.NotFound("user not found")
		}
		return false, fmt.Errorf("insert follow: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) DeleteFollow(ctx context.Context, followerID, followeeID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
	if err != nil {
		return false, fmt.Errorf("delete follow: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) Notifications() notifications.Scope {
	return notifications.TxScope(t.tx)
}
