package posts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/libris-hub/libris/internal/platform/httpx"
	"github.com/libris-hub/libris/internal/rbac"
)

// Handler serves the /posts and /comments endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountPostRoutes registers post, feed and like routes.
func (h *Handler) MountPostRoutes(r chi.Router) {
	r.Get("/", h.listPosts)
	r.Get("/{id}", h.getPost)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/feed", h.feed)
		r.Post("/", h.createPost)
		r.Put("/{id}", h.replacePost)
		r.Patch("/{id}", h.patchPost)
		r.Delete("/{id}", h.deletePost)
		r.Post("/{id}/like", h.like)
		r.Post("/{id}/unlike", h.unlike)
		r.Delete("/{id}/like", h.unlike)
	})
}

// MountCommentRoutes registers comment routes.
func (h *Handler) MountCommentRoutes(r chi.Router) {
	r.Get("/", h.listComments)
	r.Get("/{id}", h.getComment)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Post("/", h.createComment)
		r.Put("/{id}", h.updateComment)
		r.Patch("/{id}", h.updateComment)
		r.Delete("/{id}", h.deleteComment)
	})
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListPosts(r.Context(), r.URL.Query())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Feed(r.Context(), rbac.IdentityFromContext(r.Context()), r.URL.Query())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	post, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var in PostInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	post, err := h.service.CreatePost(r.Context(), rbac.IdentityFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, PostMutation{Message: "Post created successfully", Post: post})
}

func (h *Handler) replacePost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in PostInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	post, err := h.service.ReplacePost(r.Context(), rbac.IdentityFromContext(r.Context()), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, PostMutation{Message: "Post updated successfully", Post: post})
}

func (h *Handler) patchPost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var patch PostPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	post, err := h.service.PatchPost(r.Context(), rbac.IdentityFromContext(r.Context()), id, patch)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, PostMutation{Message: "Post updated successfully", Post: post})
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	post, err := h.service.DeletePost(r.Context(), rbac.IdentityFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Message{Message: `Post "` + post.Title + `" deleted successfully`})
}

func (h *Handler) like(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Like(r.Context(), rbac.IdentityFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Message{Message: "Post liked."})
}

func (h *Handler) unlike(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Unlike(r.Context(), rbac.IdentityFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Message{Message: "Post unliked."})
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListComments(r.Context(), r.URL.Query())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) getComment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	comment, err := h.service.GetComment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, comment)
}

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	var in CommentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	comment, err := h.service.CreateComment(r.Context(), rbac.IdentityFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, CommentMutation{Message: "Comment created successfully", Comment: comment})
}

func (h *Handler) updateComment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in CommentUpdate
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	comment, err := h.service.UpdateComment(r.Context(), rbac.IdentityFromContext(r.Context()), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, CommentMutation{Message: "Comment updated successfully", Comment: comment})
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeleteComment(r.Context(), rbac.IdentityFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Message{Message: "Comment deleted successfully"})
}
