package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/libris-hub/libris/internal/platform/httpx"
)

// PermissionsHandler reports the caller's effective permissions.
type PermissionsHandler struct {
	logger *slog.Logger
	engine *Engine
	rbac   Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, engine *Engine, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, engine: engine, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/", h.listPermissions)
	})
}

type permissionsResponse struct {
	Role        Role     `json:"role"`
	Group       Group    `json:"group,omitempty"`
	Permissions []string `json:"permissions"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	perms := h.engine.EffectivePermissions(id)
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.String())
	}
	group, _ := h.engine.Policy().GroupOf(id.Role)
	httpx.JSON(w, http.StatusOK, permissionsResponse{Role: id.Role, Group: group, Permissions: names})
}
