package users

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-hub/libris/internal/notifications"
	"github.com/libris-hub/libris/internal/notifications/notificationstest"
	"github.com/libris-hub/libris/internal/platform/httpx"
	"github.com/libris-hub/libris/internal/query"
	"github.com/libris-hub/libris/internal/rbac"
	"github.com/libris-hub/libris/internal/shared"
	"github.com/libris-hub/libris/internal/validation"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type edge struct{ follower, followee int64 }

type mockRepository struct {
	users   map[int64]*User
	follows map[edge]bool
	nextID  int64
	inbox   *notificationstest.Inbox
	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:   make(map[int64]*User),
		follows: make(map[edge]bool),
		nextID:  1,
		inbox:   &notificationstest.Inbox{},
	}
}

func (m *mockRepository) seed(username string, role rbac.Role) *User {
	u := &User{ID: m.nextID, Username: username, Email: username + "@example.com", Role: role, IsActive: true, HasProfile: true, CreatedAt: time.Now()}
	m.users[u.ID] = u
	m.nextID++
	return u
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	m.inbox.Begin()
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.inbox.Rollback()
		return err
	}
	m.inbox.Commit()
	return nil
}

func (m *mockRepository) GetUser(_ context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok || !u.IsActive {
		return nil, shared.NotFound("user not found")
	}
	cp := *u
	for e := range m.follows {
		if e.followee == id {
			cp.FollowersCount++
		}
		if e.follower == id {
			cp.FollowingCount++
		}
	}
	return &cp, nil
}

func (m *mockRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	for id, u := range m.users {
		if u.Username == username {
			return m.GetUser(ctx, id)
		}
	}
	return nil, shared.NotFound("user not found")
}

func (m *mockRepository) ListFollowers(_ context.Context, userID int64, _ *query.Plan) ([]Summary, int, error) {
	return m.summaries(func(e edge) (int64, bool) { return e.follower, e.followee == userID })
}

func (m *mockRepository) ListFollowing(_ context.Context, userID int64, _ *query.Plan) ([]Summary, int, error) {
	return m.summaries(func(e edge) (int64, bool) { return e.followee, e.follower == userID })
}

func (m *mockRepository) summaries(pick func(edge) (int64, bool)) ([]Summary, int, error) {
	var out []Summary
	for e := range m.follows {
		if id, ok := pick(e); ok {
			out = append(out, Summary{ID: id, Username: m.users[id].Username})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, len(out), nil
}

func (m *mockRepository) ResolveIdentity(ctx context.Context, userID int64) (rbac.Identity, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return rbac.Identity{}, err
	}
	return u.Identity(), nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) CreateUser(_ context.Context, acc NewAccount) (int64, error) {
	for _, u := range t.mock.users {
		if u.Username == acc.Username {
			return 0, shared.Conflict("a user with that username already exists")
		}
	}
	u := t.mock.seed(acc.Username, acc.Role)
	u.Email = acc.Email
	u.PasswordHash = acc.PasswordHash
	u.Bio = acc.Bio
	return u.ID, nil
}

func (t *mockTxRepo) EnsureProfile(_ context.Context, userID int64, role rbac.Role) error {
	u := t.mock.users[userID]
	if !u.HasProfile {
		u.HasProfile = true
		u.Role = role
	}
	return nil
}

func (t *mockTxRepo) UpdateProfile(_ context.Context, userID int64, upd ProfileUpdate) error {
	u := t.mock.users[userID]
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.ProfilePicture != nil {
		u.ProfilePicture = *upd.ProfilePicture
	}
	return nil
}

func (t *mockTxRepo) SetRole(_ context.Context, userID int64, role rbac.Role) error {
	t.mock.users[userID].Role = role
	return nil
}

func (t *mockTxRepo) InsertFollow(_ context.Context, followerID, followeeID int64) (bool, error) {
	e := edge{followerID, followeeID}
	if t.mock.follows[e] {
		return false, nil
	}
	t.mock.follows[e] = true
	return true, nil
}

func (t *mockTxRepo) DeleteFollow(_ context.Context, followerID, followeeID int64) (bool, error) {
	e := edge{followerID, followeeID}
	if !t.mock.follows[e] {
		return false, nil
	}
	delete(t.mock.follows, e)
	return true, nil
}

func (t *mockTxRepo) Notifications() notifications.Scope {
	return t.mock.inbox
}

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	return NewService(repo, notifications.NewNotifier(nil, nil), validation.New(), nil), repo
}

func ptr[T any](v T) *T { return &v }

// ============================================================================
// TESTS
// ============================================================================

func TestFollowUnfollowSequence(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	alice := repo.seed("alice", rbac.RoleMember)
	bob := repo.seed("bob", rbac.RoleMember)

	res, err := svc.Follow(ctx, alice.Identity(), bob.ID)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Len(t, repo.follows, 1)

	got := repo.inbox.For(bob.ID)
	require.Len(t, got, 1)
	assert.Equal(t, notifications.VerbFollowed, got[0].Verb)
	assert.Equal(t, alice.ID, got[0].ActorID)

	_, err = svc.Unfollow(ctx, alice.Identity(), bob.ID)
	require.NoError(t, err)
	assert.Empty(t, repo.follows)

	_, err = svc.Unfollow(ctx, alice.Identity(), bob.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, err.Error(), "not following")
}

func TestFollowIsIdempotent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	alice := repo.seed("alice", rbac.RoleMember)
	bob := repo.seed("bob", rbac.RoleMember)

	_, err := svc.Follow(ctx, alice.Identity(), bob.ID)
	require.NoError(t, err)
	res, err := svc.Follow(ctx, alice.Identity(), bob.ID)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Len(t, repo.follows, 1)
	assert.Len(t, repo.inbox.For(bob.ID), 1)
}

func TestFollowRules(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	alice := repo.seed("alice", rbac.RoleMember)

	_, err := svc.Follow(ctx, rbac.Anonymous(), alice.ID)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = svc.Follow(ctx, alice.Identity(), alice.ID)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, http.StatusConflict, httpx.StatusFor(shared.CodeOf(err)))

	_, err = svc.Follow(ctx, alice.Identity(), 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, repo.inbox.All())
}

func TestFollowSurvivesNotifierFailure(t *testing.T) {
	svc, repo := newTestService()
	alice := repo.seed("alice", rbac.RoleMember)
	bob := repo.seed("bob", rbac.RoleMember)
	repo.inbox.Fail = true

	res, err := svc.Follow(context.Background(), alice.Identity(), bob.ID)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Len(t, repo.follows, 1)
	assert.Empty(t, repo.inbox.All())
}

func TestFollowerLists(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	alice := repo.seed("alice", rbac.RoleMember)
	bob := repo.seed("bob", rbac.RoleMember)
	carol := repo.seed("carol", rbac.RoleMember)

	_, err := svc.Follow(ctx, bob.Identity(), alice.ID)
	require.NoError(t, err)
	_, err = svc.Follow(ctx, carol.Identity(), alice.ID)
	require.NoError(t, err)

	followers, err := svc.Followers(ctx, alice.ID, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 2, followers.Count)
	assert.Equal(t, "bob", followers.Results[0].Username)

	following, err := svc.Following(ctx, alice.ID, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 0, following.Count)
	assert.NotNil(t, following.Results)

	_, err = svc.Followers(ctx, 99, url.Values{})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Followers(ctx, alice.ID, url.Values{"ordering": {"email"}})
	assert.ErrorIs(t, err, shared.ErrValidation)

	user, err := svc.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, user.FollowersCount)
}

func TestProfileCreatesMissingProfile(t *testing.T) {
	svc, repo := newTestService()
	u := repo.seed("legacy", rbac.RoleUnset)
	u.HasProfile = false

	got, err := svc.Profile(context.Background(), u.Identity())
	require.NoError(t, err)
	assert.True(t, got.HasProfile)
	assert.Equal(t, rbac.RoleMember, got.Role)

	_, err = svc.Profile(context.Background(), rbac.Anonymous())
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestUpdateProfile(t *testing.T) {
	svc, repo := newTestService()
	u := repo.seed("writer", rbac.RoleMember)

	got, err := svc.UpdateProfile(context.Background(), u.Identity(), ProfileUpdate{Bio: ptr("Reads a lot."), FirstName: ptr("Wren")})
	require.NoError(t, err)
	assert.Equal(t, "Reads a lot.", got.Bio)
	assert.Equal(t, "Wren", got.FirstName)

	_, err = svc.UpdateProfile(context.Background(), u.Identity(), ProfileUpdate{Bio: ptr("x'; DROP TABLE users; --")})
	require.Error(t, err)
	var domainErr *shared.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Contains(t, domainErr.Fields, "bio")

	_, err = svc.UpdateProfile(context.Background(), u.Identity(), ProfileUpdate{Email: ptr("not-an-email")})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetRole(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	admin := repo.seed("root", rbac.RoleAdmin)
	member := repo.seed("reader", rbac.RoleMember)

	_, err := svc.SetRole(ctx, member.Identity(), admin.ID, RoleChange{Role: "Member"})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.SetRole(ctx, admin.Identity(), 99, RoleChange{Role: "Member"})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.SetRole(ctx, admin.Identity(), member.ID, RoleChange{Role: "Overlord"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	got, err := svc.SetRole(ctx, admin.Identity(), member.ID, RoleChange{Role: "Librarian"})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleLibrarian, got.Role)

	id, err := svc.ResolveIdentity(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, rbac.IsLibrarian(id))
}

func TestCreateAccount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	u, err := svc.CreateAccount(ctx, NewAccount{Username: "newbie", Email: "n@example.com", PasswordHash: "hash", Role: rbac.RoleMember})
	require.NoError(t, err)
	assert.Equal(t, "newbie", u.Username)

	_, err = svc.CreateAccount(ctx, NewAccount{Username: "newbie", Email: "other@example.com", PasswordHash: "hash"})
	assert.ErrorIs(t, err, shared.ErrConflict)

	found, err := svc.Credentials(ctx, "newbie")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(found.Email, "n@"))
}
