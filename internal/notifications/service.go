package notifications

import (
	"context"
	"net/url"

	"github.com/libris-hub/libris/internal/query"
	"github.com/libris-hub/libris/internal/rbac"
	"github.com/libris-hub/libris/internal/shared"
)

// RepositoryPort defines data access methods for notifications.
type RepositoryPort interface {
	List(ctx context.Context, plan *query.Plan) ([]Notification, int, error)
	MarkRead(ctx context.Context, recipientID, id int64) error
	MarkAllRead(ctx context.Context, recipientID int64) (int64, error)
}

// Schema is the query schema of the notification list.
var Schema = &query.Schema{
	Filters: []query.Filter{
		{Param: "unread", Kind: query.Bool, Column: "(NOT n.is_read)"},
		{Param: "verb", Kind: query.ExactText, Column: "n.verb"},
	},
	Ordering:        map[string]string{"created_at": "n.created_at", "id": "n.id"},
	DefaultOrdering: []string{"-created_at"},
	TieBreaker:      "n.id",
}

// Service exposes the recipient's notification inbox.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns the caller's notifications, newest first unless ordered otherwise.
func (s *Service) List(ctx context.Context, id rbac.Identity, values url.Values) (shared.ListResponse[Notification], error) {
	if !id.IsAuthenticated() {
		return shared.ListResponse[Notification]{}, shared.ErrUnauthenticated
	}
	plan, err := Schema.Parse(values)
	if err != nil {
		return shared.ListResponse[Notification]{}, err
	}
	plan.And("n.recipient_id = ?", id.UserID)
	items, total, err := s.repo.List(ctx, plan)
	if err != nil {
		return shared.ListResponse[Notification]{}, err
	}
	return shared.NewListResponse(total, items), nil
}

// MarkRead marks one of the caller's notifications as read.
func (s *Service) MarkRead(ctx context.Context, id rbac.Identity, notificationID int64) error {
	if !id.IsAuthenticated() {
		return shared.ErrUnauthenticated
	}
	return s.repo.MarkRead(ctx, id.UserID, notificationID)
}

// MarkAllRead marks every notification of the caller as read.
func (s *Service) MarkAllRead(ctx context.Context, id rbac.Identity) (int64, error) {
	if !id.IsAuthenticated() {
		return 0, shared.ErrUnauthenticated
	}
	return s.repo.MarkAllRead(ctx, id.UserID)
}
