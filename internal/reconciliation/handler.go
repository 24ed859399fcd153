package reconciliation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
	"github.com/odyssey-erp/reconciler/internal/banking"
	"github.com/odyssey-erp/reconciler/internal/platform/httpx"
	platformshared "github.com/odyssey-erp/reconciler/internal/shared"
	"github.com/odyssey-erp/reconciler/internal/targets"
)

type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler exposes bank transaction reconciliation over HTTP.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type allocationRequest struct {
	TargetType    string          `json:"target_type" validate:"required,oneof=invoice expense payable manual_account"`
	TargetID      int64           `json:"target_id" validate:"gte=0"`
	Amount        decimal.Decimal `json:"amount"`
	ContraAccount string          `json:"contra_account" validate:"omitempty,max=30"`
}

type reconcileRequest struct {
	Allocations    []allocationRequest `json:"allocations" validate:"required,min=1,dive"`
	Justification  string              `json:"justification" validate:"omitempty,max=500"`
	CompetenceDate string              `json:"competence_date" validate:"omitempty,datetime=2006-01-02"`
	Actor          string              `json:"actor" validate:"omitempty,max=100"`
	PatternID      *int64              `json:"pattern_id"`
	EntityID       *int64              `json:"entity_id"`
}

// List returns bank transactions filtered by state.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := banking.Filter{State: banking.State(r.URL.Query().Get("state")), Limit: limit}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list transactions", 0, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": list})
}

// Show returns one bank transaction.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}
	tx, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get transaction", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

// Candidates runs candidate generation without posting.
func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}
	candidates, err := h.service.Candidates(r.Context(), id)
	if err != nil {
		h.fail(w, "generate candidates", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"candidates": candidates,
		"threshold":  h.service.Threshold(),
	})
}

// Reconcile posts a human-chosen split.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}
	var req reconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", describeValidation(err))
		return
	}
	in := ReconcileInput{
		Justification:  req.Justification,
		Actor:          req.Actor,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		PatternID:      req.PatternID,
		EntityID:       req.EntityID,
	}
	if req.CompetenceDate != "" {
		in.CompetenceDate, _ = time.Parse("2006-01-02", req.CompetenceDate)
	}
	for _, a := range req.Allocations {
		in.Allocations = append(in.Allocations, Allocation{
			TargetType:    targets.Type(a.TargetType),
			TargetID:      a.TargetID,
			Amount:        a.Amount,
			ContraAccount: a.ContraAccount,
		})
	}
	res, err := h.service.Reconcile(r.Context(), id, in)
	if err != nil {
		h.fail(w, "reconcile", id, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

// Auto runs automatic reconciliation for one transaction.
func (h *Handler) Auto(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}
	res, err := h.service.AutoReconcileByID(r.Context(), id)
	if err != nil {
		h.fail(w, "auto reconcile", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Unmatch reverts a posted reconciliation.
func (h *Handler) Unmatch(w http.ResponseWriter, r *http.Request) {
	id, ok := transactionID(w, r)
	if !ok {
		return
	}
	var body struct {
		Actor string `json:"actor"`
	}
	_ = httpx.DecodeJSON(r, &body)
	tx, err := h.service.Unmatch(r.Context(), id, body.Actor)
	if err != nil {
		h.fail(w, "unmatch", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) fail(w http.ResponseWriter, op string, id int64, err error) {
	switch {
	case errors.Is(err, banking.ErrTransactionNotFound):
		err = httpx.Mark(err, httpx.ErrNotFound)
	case errors.Is(err, shared.ErrConcurrentMatch), errors.Is(err, banking.ErrNotMatched),
		errors.Is(err, banking.ErrInconsistentMatch), errors.Is(err, platformshared.ErrIdempotencyConflict),
		errors.Is(err, ErrClaimed):
		err = httpx.Mark(err, httpx.ErrConflict)
	case errors.Is(err, shared.ErrImbalancedSplit), errors.Is(err, shared.ErrMissingAccount),
		errors.Is(err, shared.ErrSyntheticAccount), errors.Is(err, shared.ErrInactiveAccount),
		errors.Is(err, shared.ErrMappingNotFound), errors.Is(err, ErrInvalidAllocation),
		errors.Is(err, ErrForbiddenRevenue), errors.Is(err, ErrJustificationRequired),
		errors.Is(err, targets.ErrTargetNotFound), errors.Is(err, ErrInvalidTransition):
		err = httpx.Mark(err, httpx.ErrUnprocessable)
	default:
		h.logger.Error(op, slog.Int64("transaction_id", id), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func transactionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transaction id")
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
		parts = append(parts, fe.Namespace()+": "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
