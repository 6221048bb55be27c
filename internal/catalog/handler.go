package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/libris-hub/libris/internal/platform/httpx"
	"github.com/libris-hub/libris/internal/rbac"
)

// Handler serves the /books and /authors endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountBookRoutes registers book routes. Writes reject anonymous callers before the body is read.
func (h *Handler) MountBookRoutes(r chi.Router) {
	r.Get("/", h.listBooks)
	r.Get("/{id}", h.getBook)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Post("/", h.createBook)
		r.Put("/{id}", h.replaceBook)
		r.Patch("/{id}", h.patchBook)
		r.Delete("/{id}", h.deleteBook)
	})
}

// MountAuthorRoutes registers author routes.
func (h *Handler) MountAuthorRoutes(r chi.Router) {
	r.Get("/", h.listAuthors)
	r.Get("/{id}", h.getAuthor)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Post("/", h.createAuthor)
		r.Put("/{id}", h.updateAuthor)
		r.Patch("/{id}", h.updateAuthor)
		r.Delete("/{id}", h.deleteAuthor)
	})
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListBooks(r.Context(), r.URL.Query())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) getBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, book)
}

func (h *Handler) createBook(w http.ResponseWriter, r *http.Request) {
	var in BookInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	book, err := h.service.CreateBook(r.Context(), rbac.IdentityFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, BookMutation{Message: "Book created successfully", Book: book})
}

func (h *Handler) replaceBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in BookInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	book, err := h.service.ReplaceBook(r.Context(), rbac.IdentityFromContext(r.Context()), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, BookMutation{Message: "Book updated successfully", Book: book})
}

func (h *Handler) patchBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var patch BookPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	book, err := h.service.PatchBook(r.Context(), rbac.IdentityFromContext(r.Context()), id, patch)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, BookMutation{Message: "Book updated successfully", Book: book})
}

func (h *Handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	book, err := h.service.DeleteBook(r.Context(), rbac.IdentityFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Message{Message: book.DeletedMessage()})
}

func (h *Handler) listAuthors(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListAuthors(r.Context(), r.URL.Query())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) getAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	author, err := h.service.GetAuthor(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, author)
}

func (h *Handler) createAuthor(w http.ResponseWriter, r *http.Request) {
	var in AuthorInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	author, err := h.service.CreateAuthor(r.Context(), rbac.IdentityFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, AuthorMutation{Message: "Author created successfully", Author: author})
}

func (h *Handler) updateAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in AuthorInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	author, err := h.service.UpdateAuthor(r.Context(), rbac.IdentityFromContext(r.Context()), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, AuthorMutation{Message: "Author updated successfully", Author: author})
}

func (h *Handler) deleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	author, err := h.service.DeleteAuthor(r.Context(), rbac.IdentityFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Message{Message: author.DeletedMessage()})
}
