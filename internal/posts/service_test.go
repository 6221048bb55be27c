package posts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-hub/libris/internal/notifications"
	"github.com/libris-hub/libris/internal/notifications/notificationstest"
	"github.com/libris-hub/libris/internal/query"
	"github.com/libris-hub/libris/internal/rbac"
	"github.com/libris-hub/libris/internal/shared"
	"github.com/libris-hub/libris/internal/validation"
)

type like struct{ user, post int64 }

type mockRepository struct {
	usernames map[int64]string
	posts     map[int64]*Post
	comments  map[int64]*Comment
	likes     map[like]bool
	follows   map[int64][]int64
	nextID    int64
	clock     time.Time
	inbox     *notificationstest.Inbox
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		usernames: map[int64]string{1: "alice", 2: "bob", 3: "carol"},
		posts:     map[int64]*Post{},
		comments:  map[int64]*Comment{},
		likes:     map[like]bool{},
		follows:   map[int64][]int64{},
		nextID:    1,
		clock:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		inbox:     &notificationstest.Inbox{},
	}
}

func (m *mockRepository) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.inbox.Begin()
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.inbox.Rollback()
		return err
	}
	m.inbox.Commit()
	return nil
}

func (m *mockRepository) GetPost(_ context.Context, id int64) (*Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, shared.NotFound("post not found")
	}
	cp := *p
	cp.AuthorUsername = m.usernames[p.AuthorID]
	for l := range m.likes {
		if l.post == id {
			cp.LikesCount++
		}
	}
	for _, c := range m.comments {
		if c.PostID == id {
			cp.CommentsCount++
		}
	}
	return &cp, nil
}

func (m *mockRepository) ListPosts(ctx context.Context, plan *query.Plan) ([]Post, int, error) {
	return m.filterPosts(ctx, plan, nil)
}

func (m *mockRepository) Feed(ctx context.Context, userID int64, plan *query.Plan) ([]Post, int, error) {
	authors := map[int64]bool{}
	for _, id := range m.follows[userID] {
		authors[id] = true
	}
	return m.filterPosts(ctx, plan, authors)
}

func (m *mockRepository) filterPosts(ctx context.Context, plan *query.Plan, authors map[int64]bool) ([]Post, int, error) {
	var rows []Post
	for id := range m.posts {
		p, _ := m.GetPost(ctx, id)
		if authors != nil && !authors[p.AuthorID] {
			continue
		}
		if matchPost(plan, p) {
			rows = append(rows, *p)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		for _, o := range plan.Order {
			var c int
			switch o.Field {
			case "created_at":
				c = rows[i].CreatedAt.Compare(rows[j].CreatedAt)
			case "title":
				c = strings.Compare(rows[i].Title, rows[j].Title)
			case "id":
				c = int(rows[i].ID - rows[j].ID)
			}
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, len(rows), nil
}

func matchPost(plan *query.Plan, p *Post) bool {
	for _, t := range plan.Terms {
		switch t.Param {
		case "author":
			if p.AuthorID != t.Int {
				return false
			}
		case "title_icontains", "title__icontains":
			if !strings.Contains(strings.ToLower(p.Title), strings.ToLower(t.Text)) {
				return false
			}
		}
	}
	if plan.Search != "" {
		s := strings.ToLower(plan.Search)
		return strings.Contains(strings.ToLower(p.Title), s) || strings.Contains(strings.ToLower(p.Content), s)
	}
	return true
}

func (m *mockRepository) GetComment(_ context.Context, id int64) (*Comment, error) {
	c, ok := m.comments[id]
	if !ok {
		return nil, shared.NotFound("comment not found")
	}
	cp := *c
	cp.AuthorUsername = m.usernames[c.AuthorID]
	return &cp, nil
}

func (m *mockRepository) ListComments(ctx context.Context, plan *query.Plan) ([]Comment, int, error) {
	var rows []Comment
	for id := range m.comments {
		c, _ := m.GetComment(ctx, id)
		keep := true
		for _, t := range plan.Terms {
			switch t.Param {
			case "post":
				keep = keep && c.PostID == t.Int
			case "author":
				keep = keep && c.AuthorID == t.Int
			}
		}
		if keep {
			rows = append(rows, *c)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, len(rows), nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) InsertPost(_ context.Context, authorID int64, in PostInput) (int64, error) {
	m := t.mock
	id := m.nextID
	m.nextID++
	now := m.tick()
	m.posts[id] = &Post{ID: id, Title: in.Title, Content: in.Content, AuthorID: authorID, CreatedAt: now, UpdatedAt: now}
	return id, nil
}

func (t *mockTxRepo) UpdatePost(_ context.Context, id int64, in PostInput) error {
	p := t.mock.posts[id]
	p.Title, p.Content, p.UpdatedAt = in.Title, in.Content, t.mock.tick()
	return nil
}

func (t *mockTxRepo) DeletePost(_ context.Context, id int64) error {
	delete(t.mock.posts, id)
	for cid, c := range t.mock.comments {
		if c.PostID == id {
			delete(t.mock.comments, cid)
		}
	}
	return nil
}

func (t *mockTxRepo) InsertLike(_ context.Context, userID, postID int64) (bool, error) {
	key := like{userID, postID}
	if t.mock.likes[key] {
		return false, nil
	}
	t.mock.likes[key] = true
	return true, nil
}

func (t *mockTxRepo) DeleteLike(_ context.Context, userID, postID int64) (bool, error) {
	key := like{userID, postID}
	if !t.mock.likes[key] {
		return false, nil
	}
	delete(t.mock.likes, key)
	return true, nil
}

func (t *mockTxRepo) InsertComment(_ context.Context, authorID int64, in CommentInput) (int64, error) {
	m := t.mock
	id := m.nextID
	m.nextID++
	now := m.tick()
	m.comments[id] = &Comment{ID: id, PostID: in.PostID, AuthorID: authorID, Content: in.Content, CreatedAt: now, UpdatedAt: now}
	return id, nil
}

func (t *mockTxRepo) UpdateComment(_ context.Context, id int64, in CommentUpdate) error {
	c := t.mock.comments[id]
	c.Content, c.UpdatedAt = in.Content, t.mock.tick()
	return nil
}

func (t *mockTxRepo) DeleteComment(_ context.Context, id int64) error {
	delete(t.mock.comments, id)
	return nil
}

func (t *mockTxRepo) Notifications() notifications.Scope {
	return t.mock.inbox
}

var (
	alice = rbac.Identity{UserID: 1, Username: "alice", Role: rbac.RoleMember}
	bob   = rbac.Identity{UserID: 2, Username: "bob", Role: rbac.RoleAdmin}
	carol = rbac.Identity{UserID: 3, Username: "carol"}
)

func newTestService(t *testing.T) (*Service, *mockRepository) {
	t.Helper()
	policy, err := rbac.DefaultPolicy()
	require.NoError(t, err)
	repo := newMockRepository()
	svc := NewService(repo, rbac.NewEngine(policy), notifications.NewNotifier(nil, nil), validation.New(), nil)
	return svc, repo
}

func TestOwnershipRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, rbac.Anonymous(), PostInput{Title: "Hi", Content: "Hello there"})
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	post, err := svc.CreatePost(ctx, alice, PostInput{Title: "Hi", Content: "Hello there"})
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, post.AuthorID)
	assert.Equal(t, "alice", post.AuthorUsername)

	newTitle := "Edited"
	_, err = svc.PatchPost(ctx, bob, post.ID, PostPatch{Title: &newTitle})
	assert.ErrorIs(t, err, shared.ErrForbidden, "admin role does not override ownership")
	_, err = svc.DeletePost(ctx, carol, post.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.ReplacePost(ctx, rbac.Anonymous(), post.ID, PostInput{Title: "x", Content: "y"})
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	updated, err := svc.PatchPost(ctx, alice, post.ID, PostPatch{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Title)
	assert.Equal(t, "Hello there", updated.Content)

	_, err = svc.DeletePost(ctx, alice, post.ID)
	require.NoError(t, err)
	_, err = svc.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.DeletePost(ctx, alice, post.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, alice, PostInput{Title: "  ", Content: "body"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreatePost(ctx, alice, PostInput{Title: "x", Content: "<script>alert(1)</script>"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreatePost(ctx, alice, PostInput{Title: "x", Content: "1; DROP TABLE posts"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestLikeNotifiesOnce(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	post, err := svc.CreatePost(ctx, alice, PostInput{Title: "Hi", Content: "Hello there"})
	require.NoError(t, err)

	require.NoError(t, svc.Like(ctx, bob, post.ID))
	err = svc.Like(ctx, bob, post.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, err.Error(), "already liked")

	got := repo.inbox.For(alice.UserID)
	require.Len(t, got, 1)
	assert.Equal(t, notifications.VerbLiked, got[0].Verb)
	assert.Equal(t, bob.UserID, got[0].ActorID)
	assert.Equal(t, notifications.TargetPost, got[0].TargetType)
	assert.Equal(t, post.ID, got[0].TargetID)

	reloaded, err := svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.LikesCount)
}

func TestSelfLikeNotifiesOwner(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	post, err := svc.CreatePost(ctx, alice, PostInput{Title: "Hi", Content: "Hello there"})
	require.NoError(t, err)

	require.NoError(t, svc.Like(ctx, alice, post.ID))
	assert.Len(t, repo.inbox.For(alice.UserID), 1)
}

func TestUnlike(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	post, err := svc.CreatePost(ctx, alice, PostInput{Title: "Hi", Content: "Hello there"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Unlike(ctx, bob, post.ID), shared.ErrConflict)
	require.NoError(t, svc.Like(ctx, bob, post.ID))
	require.NoError(t, svc.Unlike(ctx, bob, post.ID))
	assert.Empty(t, repo.likes)
	assert.Len(t, repo.inbox.All(), 1, "unlike emits nothing")

	assert.ErrorIs(t, svc.Like(ctx, rbac.Anonymous(), post.ID), shared.ErrUnauthenticated)
	assert.ErrorIs(t, svc.Like(ctx, bob, 999), shared.ErrNotFound)
}

func TestNotifierFailureDoesNotFailLike(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	post, err := svc.CreatePost(ctx, alice, PostInput{Title: "Hi", Content: "Hello there"})
	require.NoError(t, err)

	repo.inbox.Fail = true
	require.NoError(t, svc.Like(ctx, bob, post.ID))
	assert.True(t, repo.likes[like{bob.UserID, post.ID}])
	assert.Empty(t, repo.inbox.All())
}

func TestCommentNotifiesOnCreateOnly(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	post, err := svc.CreatePost(ctx, alice, PostInput{Title: "Hi", Content: "Hello there"})
	require.NoError(t, err)

	comment, err := svc.CreateComment(ctx, bob, CommentInput{PostID: post.ID, Content: "Great post"})
	require.NoError(t, err)
	assert.Equal(t, "bob", comment.AuthorUsername)

	got := repo.inbox.For(alice.UserID)
	require.Len(t, got, 1)
	assert.Equal(t, notifications.VerbCommented, got[0].Verb)

	_, err = svc.UpdateComment(ctx, bob, comment.ID, CommentUpdate{Content: "Great post, edited"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteComment(ctx, bob, comment.ID))
	assert.Len(t, repo.inbox.All(), 1)
}

func TestCommentRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	post, err := svc.CreatePost(ctx, alice, PostInput{Title: "Hi", Content: "Hello there"})
	require.NoError(t, err)

	_, err = svc.CreateComment(ctx, bob, CommentInput{PostID: post.ID, Content: "ok"})
	assert.ErrorIs(t, err, shared.ErrValidation, "shorter than five characters")

	_, err = svc.CreateComment(ctx, bob, CommentInput{PostID: 999, Content: "Nice one"})
	require.ErrorIs(t, err, shared.ErrValidation)
	var domainErr *shared.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Contains(t, domainErr.Fields, "post")

	_, err = svc.CreateComment(ctx, rbac.Anonymous(), CommentInput{PostID: post.ID, Content: "Nice one"})
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	comment, err := svc.CreateComment(ctx, bob, CommentInput{PostID: post.ID, Content: "Nice one"})
	require.NoError(t, err)
	_, err = svc.UpdateComment(ctx, alice, comment.ID, CommentUpdate{Content: "hijacked"})
	assert.ErrorIs(t, err, shared.ErrForbidden, "post owner does not own the comment")
	assert.ErrorIs(t, svc.DeleteComment(ctx, alice, comment.ID), shared.ErrForbidden)

	res, err := svc.ListComments(ctx, url.Values{"post": {"999"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	res, err = svc.ListComments(ctx, url.Values{"post": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestFeedListsFollowedAuthorsNewestFirst(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	first, err := svc.CreatePost(ctx, bob, PostInput{Title: "First", Content: "one"})
	require.NoError(t, err)
	second, err := svc.CreatePost(ctx, carol, PostInput{Title: "Second", Content: "two"})
	require.NoError(t, err)
	_, err = svc.CreatePost(ctx, alice, PostInput{Title: "Own", Content: "mine"})
	require.NoError(t, err)
	repo.follows[alice.UserID] = []int64{bob.UserID, carol.UserID}

	res, err := svc.Feed(ctx, alice, url.Values{})
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, second.ID, res.Results[0].ID)
	assert.Equal(t, first.ID, res.Results[1].ID)

	_, err = svc.Feed(ctx, rbac.Anonymous(), url.Values{})
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	res, err = svc.Feed(ctx, bob, url.Values{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestListPostsFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, in := range []struct {
		who rbac.Identity
		in  PostInput
	}{
		{alice, PostInput{Title: "Go tips", Content: "channels"}},
		{bob, PostInput{Title: "Reading list", Content: "go and rust"}},
		{bob, PostInput{Title: "Weekend", Content: "hiking"}},
	} {
		_, err := svc.CreatePost(ctx, in.who, in.in)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		values url.Values
		want   []string
	}{
		{"default newest first", url.Values{}, []string{"Weekend", "Reading list", "Go tips"}},
		{"author", url.Values{"author": {"2"}}, []string{"Weekend", "Reading list"}},
		{"title", url.Values{"title_icontains": {"TIPS"}}, []string{"Go tips"}},
		{"search covers content", url.Values{"search": {"go"}, "ordering": {"title"}}, []string{"Go tips", "Reading list"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.ListPosts(ctx, tt.values)
			require.NoError(t, err)
			titles := make([]string, len(res.Results))
			for i, p := range res.Results {
				titles[i] = p.Title
			}
			assert.Equal(t, tt.want, titles)
		})
	}

	_, err := svc.ListPosts(ctx, url.Values{"ordering": {"likes"}})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestHandlerRoutes(t *testing.T) {
	svc, _ := newTestService(t)
	identities := map[string]rbac.Identity{"alice": alice, "bob": bob}
	h := NewHandler(nil, svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id, ok := identities[req.Header.Get("X-User")]; ok {
				req = req.WithContext(rbac.ContextWithIdentity(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/posts", h.MountPostRoutes)
	r.Route("/comments", h.MountCommentRoutes)

	do := func(method, path, user, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/posts", "", `{"title":"t","content":"c"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/posts", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/comments", "", "not json").Code)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPatch, "/comments/1", "", "").Code)
	rec := do(http.MethodPost, "/posts", "alice", `{"title":"Hello","content":"World"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"Post created successfully"`)

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/posts", "", "").Code)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/posts/1", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/posts/feed", "", "").Code)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/posts/feed", "alice", "").Code)

	assert.Equal(t, http.StatusForbidden, do(http.MethodPatch, "/posts/1", "bob", `{"title":"mine now"}`).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPatch, "/posts/1", "alice", `{"title":"Hello again"}`).Code)

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/posts/1/like", "", "").Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/posts/1/like", "bob", "").Code)
	rec = do(http.MethodPost, "/posts/1/like", "bob", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already liked")
	assert.Equal(t, http.StatusOK, do(http.MethodDelete, "/posts/1/like", "bob", "").Code)
	assert.Equal(t, http.StatusConflict, do(http.MethodPost, "/posts/1/unlike", "bob", "").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/posts/42/like", "bob", "").Code)

	rec = do(http.MethodPost, "/comments", "bob", `{"post":1,"content":"Nice post"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/comments?post=1", "", "").Code)
	assert.Equal(t, http.StatusForbidden, do(http.MethodDelete, "/comments/2", "alice", "").Code)
	assert.Equal(t, http.StatusOK, do(http.MethodDelete, "/comments/2", "bob", "").Code)

	rec = do(http.MethodDelete, "/posts/1", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deleted successfully")
}
