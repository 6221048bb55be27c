package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/libris-hub/libris/internal/auth"
	"github.com/libris-hub/libris/internal/catalog"
	"github.com/libris-hub/libris/internal/notifications"
	"github.com/libris-hub/libris/internal/observability"
	"github.com/libris-hub/libris/internal/platform/httpx"
	"github.com/libris-hub/libris/internal/posts"
	"github.com/libris-hub/libris/internal/rbac"
	"github.com/libris-hub/libris/internal/users"
	"github.com/libris-hub/libris/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	AuthHandler          *auth.Handler
	UsersHandler         *users.Handler
	CatalogHandler       *catalog.Handler
	PostsHandler         *posts.Handler
	NotificationsHandler *notifications.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with Libris defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		RBAC:    params.RBACMiddleware,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/accounts", func(r chi.Router) {
		if params.AuthHandler != nil {
			params.AuthHandler.MountRoutes(r)
		}
		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
	})
	if params.CatalogHandler != nil {
		r.Route("/books", params.CatalogHandler.MountBookRoutes)
		r.Route("/authors", params.CatalogHandler.MountAuthorRoutes)
	}
	if params.PostsHandler != nil {
		r.Route("/posts", params.PostsHandler.MountPostRoutes)
		r.Route("/comments", params.PostsHandler.MountCommentRoutes)
	}
	if params.NotificationsHandler != nil {
		r.Route("/notifications", params.NotificationsHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
