package todo

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const BasePath = "/api/todo"

// todoRequest is what model binding accepts. Timestamps are absent on
// purpose so client values never reach the store.
type todoRequest struct {
	ID          *int64  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsCompleted bool    `json:"isCompleted"`
}

func (req todoRequest) changes() Changes {
	return Changes{
		Title:       *req.Title,
		Description: req.Description,
		IsCompleted: req.IsCompleted,
	}
}

func RegisterRoutes(r chi.Router, repo Repository, logger *slog.Logger) {
	h := &handler{repo: repo, logger: logger}
	r.Route(BasePath, func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type handler struct {
	repo   Repository
	logger *slog.Logger
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	item, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := bind(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	item, err := h.repo.Create(r.Context(), req.changes())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Location", BasePath+"/"+strconv.FormatInt(item.ID, 10))
	writeJSON(w, http.StatusCreated, item)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	req, ok := bind(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.ID == nil || *req.ID != id {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.repo.Update(r.Context(), id, req.changes()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps repository errors to a bare status code.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	default:
		h.logger.Error("todo_store_error",
			slog.String("req_id", chimw.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// bind decodes the body and applies the only validation there is: title must
// be present and not blank. The body must hold exactly one JSON value.
func bind(r *http.Request) (todoRequest, bool) {
	var req todoRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return todoRequest{}, false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return todoRequest{}, false
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return todoRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
