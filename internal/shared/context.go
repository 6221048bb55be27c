package shared

import "context"

type sessionKey struct{}

// ContextWithSession binds the API token session resolved by rbac.Middleware.Authenticate.
// Requests without an Authorization header carry no session and are served anonymously.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	if sess == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the session of the calling token, or nil for anonymous
// callers. Logout revokes exactly this token and leaves the user's other tokens valid.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}
