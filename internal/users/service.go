package users

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/libris-hub/libris/internal/notifications"
	"github.com/libris-hub/libris/internal/query"
	"github.com/libris-hub/libris/internal/rbac"
	"github.com/libris-hub/libris/internal/shared"
	"github.com/libris-hub/libris/internal/validation"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListFollowers(ctx context.Context, userID int64, plan *query.Plan) ([]Summary, int, error)
	ListFollowing(ctx context.Context, userID int64, plan *query.Plan) ([]Summary, int, error)
	ResolveIdentity(ctx context.Context, userID int64) (rbac.Identity, error)
}

// FollowSchema is the query schema of follower and following lists.
var FollowSchema = &query.Schema{
	Filters: []query.Filter{
		{Param: "username_icontains", Kind: query.IContains, Column: "u.username"},
	},
	Search:          []string{"u.username", "u.first_name", "u.last_name"},
	Ordering:        map[string]string{"id": "u.id", "username": "u.username"},
	DefaultOrdering: []string{"username"},
	TieBreaker:      "u.id",
}

// Service handles account, profile and follow-graph rules.
type Service struct {
	repo      RepositoryPort
	notifier  *notifications.Notifier
	validator *validation.Validator
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, notifier *notifications.Notifier, v *validation.Validator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, validator: v, logger: logger}
}

// CreateAccount inserts the user and its profile in one transaction.
func (s *Service) CreateAccount(ctx context.Context, acc NewAccount) (*User, error) {
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.CreateUser(ctx, acc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return s.repo.GetUser(ctx, id)
}

// Credentials loads the account used for a login attempt.
func (s *Service) Credentials(ctx context.Context, username string) (*User, error) {
	return s.repo.GetUserByUsername(ctx, username)
}

// ResolveIdentity implements rbac.IdentityResolver.
func (s *Service) ResolveIdentity(ctx context.Context, userID int64) (rbac.Identity, error) {
	return s.repo.ResolveIdentity(ctx, userID)
}

// GetUser returns the public view of a user.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

// Profile returns the caller's account, creating a missing profile on the spot.
func (s *Service) Profile(ctx context.Context, id rbac.Identity) (*User, error) {
	if !id.IsAuthenticated() {
		return nil, shared.ErrUnauthenticated
	}
	user, err := s.repo.GetUser(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if user.HasProfile {
		return user, nil
	}
	s.logger.Info("creating missing profile", slog.Int64("user_id", user.ID))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.EnsureProfile(ctx, user.ID, rbac.RoleMember)
	})
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return s.repo.GetUser(ctx, id.UserID)
}

// UpdateProfile applies the caller's profile changes.
func (s *Service) UpdateProfile(ctx context.Context, id rbac.Identity, upd ProfileUpdate) (*User, error) {
	if !id.IsAuthenticated() {
		return nil, shared.ErrUnauthenticated
	}
	if err := s.validator.Validate(upd); err != nil {
		return nil, err
	}
	if upd.Empty() {
		return s.Profile(ctx, id)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.EnsureProfile(ctx, id.UserID, rbac.RoleMember); err != nil {
			return err
		}
		return tx.UpdateProfile(ctx, id.UserID, upd)
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.repo.GetUser(ctx, id.UserID)
}

// SetRole assigns a role tag. Only admins may do so.
func (s *Service) SetRole(ctx context.Context, actor rbac.Identity, targetID int64, change RoleChange) (*User, error) {
	if !actor.IsAuthenticated() {
		return nil, shared.ErrUnauthenticated
	}
	target, err := s.repo.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !rbac.IsAdmin(actor) {
		return nil, shared.Forbidden("only admins may assign roles")
	}
	if err := s.validator.Validate(change); err != nil {
		return nil, err
	}
	role, err := rbac.ParseRole(change.Role)
	if err != nil {
		return nil, shared.FieldError("role", err.Error())
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.EnsureProfile(ctx, target.ID, role); err != nil {
			return err
		}
		return tx.SetRole(ctx, target.ID, role)
	})
	if err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}
	s.logger.Info("role assigned",
		slog.Int64("actor_id", actor.UserID),
		slog.Int64("user_id", target.ID),
		slog.String("role", role.String()))
	return s.repo.GetUser(ctx, target.ID)
}

// Follow adds a follow edge from the caller to targetID and notifies the followee.
// Following an already-followed user succeeds without a new edge or notification.
func (s *Service) Follow(ctx context.Context, actor rbac.Identity, targetID int64) (FollowResult, error) {
	if !actor.IsAuthenticated() {
		return FollowResult{}, shared.ErrUnauthenticated
	}
	target, err := s.repo.GetUser(ctx, targetID)
	if err != nil {
		return FollowResult{}, err
	}
	if target.ID == actor.UserID {
		return FollowResult{}, shared.Conflict("you cannot follow yourself")
	}
	var created bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertFollow(ctx, actor.UserID, target.ID)
		if err != nil {
			return err
		}
		if created {
			s.notifier.UserFollowed(ctx, tx.Notifications(), actor.UserID, target.ID)
		}
		return nil
	})
	if err != nil {
		return FollowResult{}, fmt.Errorf("follow: %w", err)
	}
	if !created {
		return FollowResult{Message: "You are already following " + target.Username + "."}, nil
	}
	return FollowResult{Message: "You are now following " + target.Username + ".", Created: true}, nil
}

// Unfollow removes the caller's follow edge to targetID.
func (s *Service) Unfollow(ctx context.Context, actor rbac.Identity, targetID int64) (FollowResult, error) {
	if !actor.IsAuthenticated() {
		return FollowResult{}, shared.ErrUnauthenticated
	}
	target, err := s.repo.GetUser(ctx, targetID)
	if err != nil {
		return FollowResult{}, err
	}
	var deleted bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		deleted, err = tx.DeleteFollow(ctx, actor.UserID, target.ID)
		return err
	})
	if err != nil {
		return FollowResult{}, fmt.Errorf("unfollow: %w", err)
	}
	if !deleted {
		return FollowResult{}, shared.Conflict("you are not following " + target.Username)
	}
	return FollowResult{Message: "You have unfollowed " + target.Username + "."}, nil
}

// Followers lists the users following userID.
func (s *Service) Followers(ctx context.Context, userID int64, values url.Values) (shared.ListResponse[Summary], error) {
	return s.listEdges(ctx, userID, values, s.repo.ListFollowers)
}

// Following lists the users userID follows.
func (s *Service) Following(ctx context.Context, userID int64, values url.Values) (shared.ListResponse[Summary], error) {
	return s.listEdges(ctx, userID, values, s.repo.ListFollowing)
}

type edgeLister func(ctx context.Context, userID int64, plan *query.Plan) ([]Summary, int, error)

func (s *Service) listEdges(ctx context.Context, userID int64, values url.Values, list edgeLister) (shared.ListResponse[Summary], error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return shared.ListResponse[Summary]{}, err
	}
	plan, err := FollowSchema.Parse(values)
	if err != nil {
		return shared.ListResponse[Summary]{}, err
	}
	items, total, err := list(ctx, userID, plan)
	if err != nil {
		return shared.ListResponse[Summary]{}, err
	}
	return shared.NewListResponse(total, items), nil
}
