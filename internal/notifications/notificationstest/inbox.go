// Package notificationstest provides an in-memory notification scope for service tests.
package notificationstest

import (
	"context"
	"errors"
	"sync"

	"github.com/libris-hub/libris/internal/notifications"
)

// ErrInjected is returned by Insert while Inbox.Fail is set.
var ErrInjected = errors.New("notificationstest: injected failure")

// Inbox records notifications written through its savepoints.
// Writes inside a failed savepoint are discarded; Rollback discards everything since Begin.
type Inbox struct {
	mu      sync.Mutex
	Fail    bool
	items   []notifications.Notification
	staged  []notifications.Notification
	pending bool
	nextID  int64
}

// Begin opens a fake outer transaction.
func (i *Inbox) Begin() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.staged = nil
	i.pending = true
}

// Commit publishes the writes of the outer transaction.
func (i *Inbox) Commit() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = append(i.items, i.staged...)
	i.staged = nil
	i.pending = false
}

// Rollback discards the writes of the outer transaction.
func (i *Inbox) Rollback() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.staged = nil
	i.pending = false
}

// Savepoint implements notifications.Scope.
func (i *Inbox) Savepoint(_ context.Context, fn func(notifications.Store) error) error {
	sp := &savepoint{inbox: i}
	if err := fn(sp); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.pending {
		i.staged = append(i.staged, sp.writes...)
	} else {
		i.items = append(i.items, sp.writes...)
	}
	return nil
}

// All returns the committed notifications.
func (i *Inbox) All() []notifications.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]notifications.Notification, len(i.items))
	copy(out, i.items)
	return out
}

// For returns the committed notifications of one recipient.
func (i *Inbox) For(recipientID int64) []notifications.Notification {
	var out []notifications.Notification
	for _, n := range i.All() {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

type savepoint struct {
	inbox  *Inbox
	writes []notifications.Notification
}

func (s *savepoint) Insert(_ context.Context, n notifications.Notification) (int64, error) {
	s.inbox.mu.Lock()
	defer s.inbox.mu.Unlock()
	if s.inbox.Fail {
		return 0, ErrInjected
	}
	s.inbox.nextID++
	n.ID = s.inbox.nextID
	s.writes = append(s.writes, n)
	return n.ID, nil
}
