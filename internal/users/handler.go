package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/libris-hub/libris/internal/platform/httpx"
	"github.com/libris-hub/libris/internal/rbac"
)

// Handler manages profile, role and follow-graph endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users/{id}", h.getUser)
	r.Get("/users/{id}/followers", h.followers)
	r.Get("/users/{id}/following", h.following)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/profile", h.profile)
		r.Put("/profile", h.updateProfile)
		r.Patch("/profile", h.updateProfile)
		r.Post("/follow/{id}", h.follow)
		r.Delete("/follow/{id}", h.unfollow)
		r.Post("/unfollow/{id}", h.unfollow)
	})
	r.With(h.rbac.RequireRole(rbac.IsAdmin)).Put("/users/{id}/role", h.setRole)

	r.With(h.rbac.RequireRole(rbac.IsAdmin)).Get("/admin-view", h.roleView("Admin"))
	r.With(h.rbac.RequireRole(rbac.IsLibrarian)).Get("/librarian-view", h.roleView("Librarian"))
	r.With(h.rbac.RequireRole(rbac.IsMember)).Get("/member-view", h.roleView("Member"))
}

type userResponse struct {
	Message string `json:"message,omitempty"`
	User    *User  `json:"user"`
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Profile(r.Context(), rbac.IdentityFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var upd ProfileUpdate
	if err := httpx.DecodeJSON(r, &upd); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), rbac.IdentityFromContext(r.Context()), upd)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, userResponse{Message: "Profile updated successfully", User: user})
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var change RoleChange
	if err := httpx.DecodeJSON(r, &change); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.service.SetRole(r.Context(), rbac.IdentityFromContext(r.Context()), id, change)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, userResponse{Message: "Role updated successfully", User: user})
}

func (h *Handler) follow(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res, err := h.service.Follow(r.Context(), rbac.IdentityFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) unfollow(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res, err := h.service.Unfollow(r.Context(), rbac.IdentityFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) followers(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res, err := h.service.Followers(r.Context(), id, r.URL.Query())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) following(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res, err := h.service.Following(r.Context(), id, r.URL.Query())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type roleViewResponse struct {
	View     string `json:"view"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

func (h *Handler) roleView(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := rbac.IdentityFromContext(r.Context())
		httpx.JSON(w, http.StatusOK, roleViewResponse{
			View:     role,
			Username: id.Username,
			Message:  "Welcome to the " + role + " area, " + id.Username + ".",
		})
	}
}
