package posts

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

var (
	// ErrAlreadyLiked reports a second like of the same post by the same user.
	ErrAlreadyLiked = shared.Conflict("You have already liked this post.")
	// ErrNotLiked reports an unlike without a prior like.
	ErrNotLiked = shared.Conflict("You have not liked this post.")
)

// RepositoryPort defines data access methods for posts and comments.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPost(ctx context.Context, id int64) (*Post, error)
	ListPosts(ctx context.Context, plan *query.Plan) ([]Post, int, error)
	Feed(ctx context.Context, userID int64, plan *query.Plan) ([]Post, int, error)
	GetComment(ctx context.Context, id int64) (*Comment, error)
	ListComments(ctx context.Context, plan *query.Plan) ([]Comment, int, error)
}

// PostSchema is the query schema of GET /posts and GET /posts/feed.
var PostSchema = &query.Schema{
	Filters: []query.Filter{
		{Param: "author", Kind: query.Exact, Column: "p.author_id"},
		{Param: "title_icontains", Kind: query.IContains, Column: "p.title"},
		{Param: "title__icontains", Kind: query.IContains, Column: "p.title"},
	},
	Search:          []string{"p.title", "p.content"},
	Ordering:        map[string]string{"id": "p.id", "title": "p.title", "created_at": "p.created_at"},
	DefaultOrdering: []string{"-created_at"},
	TieBreaker:      "p.id",
}

// CommentSchema is the query schema of GET /comments.
var CommentSchema = &query.Schema{
	Filters: []query.Filter{
		{Param: "post", Kind: query.Exact, Column: "c.post_id"},
		{Param: "author", Kind: query.Exact, Column: "c.author_id"},
	},
	Search:          []string{"c.content"},
	Ordering:        map[string]string{"id": "c.id", "created_at": "c.created_at"},
	DefaultOrdering: []string{"created_at"},
	TieBreaker:      "c.id",
}

// Service applies ownership rules to posts and comments and emits like and comment notifications.
type Service struct {
	repo      RepositoryPort
	engine    *rbac.Engine
	notifier  *notifications.Notifier
	validator *validation.Validator
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, engine *rbac.Engine, notifier *notifications.Notifier, v *validation.Validator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, notifier: notifier, validator: v, logger: logger}
}

// ListPosts returns the filtered, ordered and paginated post list.
func (s *Service) ListPosts(ctx context.Context, values url.Values) (shared.ListResponse[Post], error) {
	plan, err := PostSchema.Parse(values)
	if err != nil {
		return shared.ListResponse[Post]{}, err
	}
	items, total, err := s.repo.ListPosts(ctx, plan)
	if err != nil {
		return shared.ListResponse[Post]{}, err
	}
	return shared.NewListResponse(total, items), nil
}

// Feed lists posts by the users the caller follows, newest first.
func (s *Service) Feed(ctx context.Context, caller rbac.Identity, values url.Values) (shared.ListResponse[Post], error) {
	if !caller.IsAuthenticated() {
		return shared.ListResponse[Post]{}, shared.ErrUnauthenticated
	}
	plan, err := PostSchema.Parse(values)
	if err != nil {
		return shared.ListResponse[Post]{}, err
	}
	items, total, err := s.repo.Feed(ctx, caller.UserID, plan)
	if err != nil {
		return shared.ListResponse[Post]{}, err
	}
	return shared.NewListResponse(total, items), nil
}

// GetPost returns one post.
func (s *Service) GetPost(ctx context.Context, id int64) (*Post, error) {
	return s.repo.GetPost(ctx, id)
}

// CreatePost publishes a post owned by the caller.
func (s *Service) CreatePost(ctx context.Context, caller rbac.Identity, in PostInput) (*Post, error) {
	if err := s.engine.Check(caller, rbac.ActionCreate, rbac.ResourcePost, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertPost(ctx, caller.UserID, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return s.repo.GetPost(ctx, id)
}

// ReplacePost overwrites title and content of the caller's post.
func (s *Service) ReplacePost(ctx context.Context, caller rbac.Identity, id int64, in PostInput) (*Post, error) {
	existing, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.updatePost(ctx, caller, existing, in)
}

// PatchPost changes the fields present in the patch.
func (s *Service) PatchPost(ctx context.Context, caller rbac.Identity, id int64, patch PostPatch) (*Post, error) {
	existing, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.updatePost(ctx, caller, existing, patch.Apply(existing))
}

func (s *Service) updatePost(ctx context.Context, caller rbac.Identity, existing *Post, in PostInput) (*Post, error) {
	if err := s.engine.Check(caller, rbac.ActionUpdate, rbac.ResourcePost, existing); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePost(ctx, existing.ID, in)
	})
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return s.repo.GetPost(ctx, existing.ID)
}

// DeletePost removes the caller's post together with its likes and comments.
func (s *Service) DeletePost(ctx context.Context, caller rbac.Identity, id int64) (*Post, error) {
	existing, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Check(caller, rbac.ActionDelete, rbac.ResourcePost, existing); err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeletePost(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("delete post: %w", err)
	}
	s.logger.Info("post deleted", slog.Int64("post_id", id), slog.Int64("user_id", caller.UserID))
	return existing, nil
}

// Like records the caller's like and notifies the post owner.
func (s *Service) Like(ctx context.Context, caller rbac.Identity, postID int64) error {
	if !caller.IsAuthenticated() {
		return shared.ErrUnauthenticated
	}
	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertLike(ctx, caller.UserID, post.ID)
		if err != nil {
			return err
		}
		if !created {
			return ErrAlreadyLiked
		}
		s.notifier.PostLiked(ctx, tx.Notifications(), caller.UserID, post.ID, post.AuthorID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("like post: %w", err)
	}
	return nil
}

// Unlike removes the caller's like.
func (s *Service) Unlike(ctx context.Context, caller rbac.Identity, postID int64) error {
	if !caller.IsAuthenticated() {
		return shared.ErrUnauthenticated
	}
	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		removed, err := tx.DeleteLike(ctx, caller.UserID, post.ID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrNotLiked
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("unlike post: %w", err)
	}
	return nil
}

// ListComments returns the filtered comment list.
func (s *Service) ListComments(ctx context.Context, values url.Values) (shared.ListResponse[Comment], error) {
	plan, err := CommentSchema.Parse(values)
	if err != nil {
		return shared.ListResponse[Comment]{}, err
	}
	items, total, err := s.repo.ListComments(ctx, plan)
	if err != nil {
		return shared.ListResponse[Comment]{}, err
	}
	return shared.NewListResponse(total, items), nil
}

// GetComment returns one comment.
func (s *Service) GetComment(ctx context.Context, id int64) (*Comment, error) {
	return s.repo.GetComment(ctx, id)
}

// CreateComment adds the caller's comment and notifies the post owner.
func (s *Service) CreateComment(ctx context.Context, caller rbac.Identity, in CommentInput) (*Comment, error) {
	if err := s.engine.Check(caller, rbac.ActionCreate, rbac.ResourceComment, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	post, err := s.repo.GetPost(ctx, in.PostID)
	if err != nil {
		if shared.CodeOf(err) == shared.CodeNotFound {
			return nil, shared.FieldError("post", fmt.Sprintf("invalid pk %d - object does not exist", in.PostID))
		}
		return nil, err
	}
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertComment(ctx, caller.UserID, in)
		if err != nil {
			return err
		}
		s.notifier.PostCommented(ctx, tx.Notifications(), caller.UserID, post.ID, post.AuthorID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return s.repo.GetComment(ctx, id)
}

// UpdateComment rewrites the content of the caller's comment.
func (s *Service) UpdateComment(ctx context.Context, caller rbac.Identity, id int64, in CommentUpdate) (*Comment, error) {
	existing, err := s.repo.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Check(caller, rbac.ActionUpdate, rbac.ResourceComment, existing); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateComment(ctx, id, in)
	})
	if err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	return s.repo.GetComment(ctx, id)
}

// DeleteComment removes the caller's comment.
func (s *Service) DeleteComment(ctx context.Context, caller rbac.Identity, id int64) error {
	existing, err := s.repo.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.Check(caller, rbac.ActionDelete, rbac.ResourceComment, existing); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteComment(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
