package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
)

// TokenScheme is the Authorization header scheme carrying API tokens.
const TokenScheme = "Token"

// ErrSessionNotFound indicates an unknown or expired token.
var ErrSessionNotFound = errors.New("session not found")

// Session is the server-side state bound to an API token.
type Session struct {
	Token     string    `json:"-"`
	UserID    int64     `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// TokenStore issues and resolves API tokens backed by Redis.
type TokenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, prefix string, ttl time.Duration) *TokenStore {
	if prefix == "" {
		prefix = "libris"
	}
	return &TokenStore{client: client, prefix: prefix, ttl: ttl}
}

// Issue creates a new token for the user.
func (s *TokenStore) Issue(ctx context.Context, userID int64, userAgent string) (*Session, error) {
	token, err := gonanoid.New(40)
	if err != nil {
		return nil, err
	}
	sess := &Session{Token: token, UserID: userID, IssuedAt: time.Now().UTC(), UserAgent: userAgent}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, s.tokenKey(token), data, s.ttl).Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

// Resolve loads the session bound to token.
func (s *TokenStore) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	payload, err := s.client.Get(ctx, s.tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	sess.Token = token
	return &sess, nil
}

// Revoke deletes a single token.
func (s *TokenStore) Revoke(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	return s.client.Del(ctx, s.tokenKey(sess.Token)).Err()
}

func (s *TokenStore) tokenKey(token string) string {
	return s.prefix + ":token:" + token
}

// TokenFromRequest extracts the API token from the Authorization header.
// Both "Token <key>" and "Bearer <key>" are accepted.
func TokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, value, ok := strings.Cut(header, " ")
	if !ok {
		return ""
	}
	if !strings.EqualFold(scheme, TokenScheme) && !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}
