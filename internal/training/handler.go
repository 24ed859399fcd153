package training

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
	"github.com/odyssey-erp/reconciler/internal/platform/httpx"
)

type Handler struct {
	loop      *FeedbackLoop
	repo      Repository
	store     *Store
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler exposes questions, patterns and entities over HTTP.
func NewHandler(logger *slog.Logger, loop *FeedbackLoop, repo Repository, store *Store) *Handler {
	return &Handler{logger: logger, loop: loop, repo: repo, store: store, validator: validator.New()}
}

// MountRoutes registers the question and training routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/questions", h.ListQuestions)
	r.Get("/questions/{id}", h.ShowQuestion)
	r.Post("/questions/{id}/answer", h.Answer)
	r.Post("/questions/{id}/skip", h.Skip)
	r.Get("/patterns", h.ListPatterns)
	r.Get("/entities", h.ListEntities)
}

// ListQuestions lists pending then skipped questions by priority.
func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	questions, err := h.loop.Pending(r.Context(), limit)
	if err != nil {
		h.fail(w, "list questions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// ShowQuestion returns one question.
func (h *Handler) ShowQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := questionID(w, r)
	if !ok {
		return
	}
	q, err := h.loop.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get question", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

// Answer records a human answer and what it teaches.
func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	id, ok := questionID(w, r)
	if !ok {
		return
	}
	var in AnswerInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", describeValidation(err))
		return
	}
	result, err := h.loop.Answer(r.Context(), id, in)
	if err != nil {
		h.fail(w, "answer question", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// Skip parks a question.
func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	id, ok := questionID(w, r)
	if !ok {
		return
	}
	var body struct {
		Actor string `json:"actor"`
	}
	_ = httpx.DecodeJSON(r, &body)
	q, err := h.loop.Skip(r.Context(), id, body.Actor)
	if err != nil {
		h.fail(w, "skip question", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

// ListPatterns returns the active patterns of the current snapshot.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Snapshot(r.Context())
	if err != nil {
		h.fail(w, "list patterns", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"version":  snap.Version,
		"patterns": snap.Patterns(),
		"skipped":  snap.Skipped(),
	})
}

// ListEntities returns known entities, most used first.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entities, err := h.repo.ListEntities(r.Context(), limit)
	if err != nil {
		h.fail(w, "list entities", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrEntityNotFound):
		err = httpx.Mark(err, httpx.ErrNotFound)
	case errors.Is(err, ErrQuestionClosed):
		err = httpx.Mark(err, httpx.ErrConflict)
	case errors.Is(err, ErrInvalidAnswer), errors.Is(err, ErrInvalidPattern),
		errors.Is(err, shared.ErrMissingAccount), errors.Is(err, shared.ErrSyntheticAccount), errors.Is(err, shared.ErrInactiveAccount):
		err = httpx.Mark(err, httpx.ErrUnprocessable)
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func questionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid question id")
		return 0, false
	}
	return id, true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+": "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
