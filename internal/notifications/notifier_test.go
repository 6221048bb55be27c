package notifications_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-hub/libris/internal/notifications"
	"github.com/libris-hub/libris/internal/notifications/notificationstest"
)

type countingRecorder struct {
	mu       sync.Mutex
	created  map[string]int
	failures map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{created: map[string]int{}, failures: map[string]int{}}
}

func (c *countingRecorder) NotificationCreated(verb string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created[verb]++
}

func (c *countingRecorder) NotifierFailed(verb string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[verb]++
}

func TestNotifierWritesOnePerTrigger(t *testing.T) {
	inbox := &notificationstest.Inbox{}
	rec := newCountingRecorder()
	n := notifications.NewNotifier(nil, rec)
	ctx := context.Background()

	n.PostLiked(ctx, inbox, 2, 10, 1)
	n.PostCommented(ctx, inbox, 3, 10, 1)
	n.UserFollowed(ctx, inbox, 2, 1)

	got := inbox.For(1)
	require.Len(t, got, 3)
	assert.Equal(t, notifications.VerbLiked, got[0].Verb)
	assert.Equal(t, notifications.TargetPost, got[0].TargetType)
	assert.Equal(t, int64(10), got[0].TargetID)
	assert.Equal(t, int64(2), got[0].ActorID)

	assert.Equal(t, notifications.VerbCommented, got[1].Verb)
	assert.Equal(t, int64(3), got[1].ActorID)

	assert.Equal(t, notifications.VerbFollowed, got[2].Verb)
	assert.Equal(t, notifications.TargetUser, got[2].TargetType)
	assert.Equal(t, int64(1), got[2].TargetID)
	assert.False(t, got[2].CreatedAt.IsZero())

	assert.Equal(t, 1, rec.created[string(notifications.VerbLiked)])
	assert.Empty(t, rec.failures)
}

func TestNotifierSelfLikeIsKept(t *testing.T) {
	inbox := &notificationstest.Inbox{}
	notifications.NewNotifier(nil, nil).PostLiked(context.Background(), inbox, 1, 10, 1)
	require.Len(t, inbox.For(1), 1)
}

func TestNotifierFailureIsSwallowedLoggedAndCounted(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	inbox := &notificationstest.Inbox{Fail: true}
	rec := newCountingRecorder()

	notifications.NewNotifier(logger, rec).PostCommented(context.Background(), inbox, 2, 10, 1)

	assert.Empty(t, inbox.All())
	assert.Equal(t, 1, rec.failures[string(notifications.VerbCommented)])
	assert.Contains(t, logs.String(), "notification dropped")
}

func TestNotifierFollowsOuterTransaction(t *testing.T) {
	inbox := &notificationstest.Inbox{}
	n := notifications.NewNotifier(nil, nil)
	ctx := context.Background()

	inbox.Begin()
	n.UserFollowed(ctx, inbox, 2, 1)
	inbox.Rollback()
	assert.Empty(t, inbox.All())

	inbox.Begin()
	n.UserFollowed(ctx, inbox, 2, 1)
	inbox.Commit()
	assert.Len(t, inbox.All(), 1)
}
