package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/libris-hub/libris/internal/platform/httpx"
	"github.com/libris-hub/libris/internal/shared"
)

// IdentityResolver loads the identity of a user referenced by a session.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, userID int64) (Identity, error)
}

// SessionResolver resolves API tokens into sessions.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*shared.Session, error)
}

// Middleware wires authentication and RBAC helpers for HTTP handlers.
type Middleware struct {
	Sessions   SessionResolver
	Identities IdentityResolver
	Logger     *slog.Logger
}

// Authenticate resolves the request token into an identity once per request.
// Requests without a token continue anonymously; an invalid token is rejected.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := shared.TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), Anonymous())))
			return
		}
		sess, err := m.Sessions.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, shared.ErrSessionNotFound) {
				httpx.RespondError(w, m.Logger, shared.Unauthenticated("invalid token"))
				return
			}
			m.fail(w, "resolve session", err)
			return
		}
		id, err := m.Identities.ResolveIdentity(r.Context(), sess.UserID)
		if err != nil {
			if shared.CodeOf(err) == shared.CodeNotFound {
				httpx.RespondError(w, m.Logger, shared.Unauthenticated("user inactive or deleted"))
				return
			}
			m.fail(w, "resolve identity", err)
			return
		}
		ctx := shared.ContextWithSession(r.Context(), sess)
		ctx = ContextWithIdentity(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuthenticated rejects anonymous callers with 401.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFromContext(r.Context()).IsAuthenticated() {
			httpx.RespondError(w, m.Logger, shared.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects anonymous callers with 401 and callers failing pred with 403.
func (m Middleware) RequireRole(pred func(Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if !id.IsAuthenticated() {
				httpx.RespondError(w, m.Logger, shared.ErrUnauthenticated)
				return
			}
			if !pred(id) {
				httpx.RespondError(w, m.Logger, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) fail(w http.ResponseWriter, msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error("rbac "+msg, slog.Any("error", err))
	}
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
