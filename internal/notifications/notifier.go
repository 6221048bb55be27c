// Package notifications materialises notifications for likes, comments and follows.
package notifications

import (
	"context"
	"log/slog"
	"time"
)

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, n Notification) (int64, error)
}

// Scope runs fn inside a savepoint of the caller's transaction.
// A failing fn is rolled back to the savepoint and leaves the transaction usable.
type Scope interface {
	Savepoint(ctx context.Context, fn func(Store) error) error
}

// Recorder counts notifier outcomes.
type Recorder interface {
	NotificationCreated(verb string)
	NotifierFailed(verb string)
}

// Notifier writes exactly one notification per trigger. Failures never reach the trigger.
type Notifier struct {
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

// NewNotifier constructs a Notifier. metrics may be nil.
func NewNotifier(logger *slog.Logger, metrics Recorder) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger, metrics: metrics, now: time.Now}
}

// PostLiked notifies the post owner of a new like.
func (n *Notifier) PostLiked(ctx context.Context, scope Scope, actorID, postID, ownerID int64) {
	n.emit(ctx, scope, Notification{
		RecipientID: ownerID,
		ActorID:     actorID,
		Verb:        VerbLiked,
		TargetType:  TargetPost,
		TargetID:    postID,
	})
}

// PostCommented notifies the post owner of a new comment.
func (n *Notifier) PostCommented(ctx context.Context, scope Scope, actorID, postID, ownerID int64) {
	n.emit(ctx, scope, Notification{
		RecipientID: ownerID,
		ActorID:     actorID,
		Verb:        VerbCommented,
		TargetType:  TargetPost,
		TargetID:    postID,
	})
}

// UserFollowed notifies the followee of a new follower.
func (n *Notifier) UserFollowed(ctx context.Context, scope Scope, followerID, followeeID int64) {
	n.emit(ctx, scope, Notification{
		RecipientID: followeeID,
		ActorID:     followerID,
		Verb:        VerbFollowed,
		TargetType:  TargetUser,
		TargetID:    followeeID,
	})
}

func (n *Notifier) emit(ctx context.Context, scope Scope, note Notification) {
	note.CreatedAt = n.now().UTC()
	err := scope.Savepoint(ctx, func(s Store) error {
		_, err := s.Insert(ctx, note)
		return err
	})
	if err != nil {
		n.logger.Warn("notification dropped",
			slog.String("verb", string(note.Verb)),
			slog.Int64("recipient_id", note.RecipientID),
			slog.Int64("actor_id", note.ActorID),
			slog.Any("error", err))
		if n.metrics != nil {
			n.metrics.NotifierFailed(string(note.Verb))
		}
		return
	}
	if n.metrics != nil {
		n.metrics.NotificationCreated(string(note.Verb))
	}
}
