package reconciliation

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*harness, http.Handler) {
	t.Helper()
	h := newHarness(t, invoiceItems(), nil, bankTx(1, "PIX RECEBIDO - ACME", "1500.00"))
	r := chi.NewRouter()
	NewHandler(slog.Default(), h.service).MountRoutes(r)
	return h, r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestReconcileHandlerStatuses(t *testing.T) {
	h, r := newTestRouter(t)

	rr := do(r, http.MethodPost, "/1/reconcile", `{"allocations":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(r, http.MethodPost, "/1/reconcile", `{"allocations":[{"target_type":"loan","amount":"1500"}]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(r, http.MethodPost, "/1/reconcile", `{"allocations":[{"target_type":"invoice","target_id":42,"amount":"1500"}],"competence_date":"10/03/2025"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(r, http.MethodPost, "/1/reconcile", `{"allocations":[{"target_type":"invoice","target_id":42,"amount":"1499"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(r, http.MethodPost, "/1/reconcile", `{"allocations":[{"target_type":"invoice","target_id":42,"amount":"1500.00"}],"competence_date":"2025-02-28","actor":"ana"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.True(t, res.Transaction.Matched)
	require.Equal(t, "2025-02-28", res.Entry.CompetenceDate.Format("2006-01-02"))
	require.Len(t, h.ledger.entries, 1)

	rr = do(r, http.MethodPost, "/1/reconcile", `{"allocations":[{"target_type":"invoice","target_id":42,"amount":"1500.00"}]}`)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestTransactionHandlerLookups(t *testing.T) {
	_, r := newTestRouter(t)

	require.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/abc", "").Code)
	require.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/404", "").Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/1", "").Code)
	require.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/1/unmatch", "{}").Code)

	rr := do(r, http.MethodGet, "/1/candidates", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Candidates []MatchCandidate `json:"candidates"`
		Threshold  float64          `json:"threshold"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Candidates, 1)
	require.Equal(t, 0.85, body.Threshold)

	rr = do(r, http.MethodPost, "/1/auto", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"outcome":"posted"`)
}

func TestUnmatchInconsistentTransactionIsConflict(t *testing.T) {
	broken := bankTx(2, "PIX RECEBIDO - ACME", "80.00")
	broken.Matched = true
	h := newHarness(t, nil, nil, broken)
	r := chi.NewRouter()
	NewHandler(slog.Default(), h.service).MountRoutes(r)

	rr := do(r, http.MethodPost, "/2/unmatch", `{"actor":"ana"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "matched flag and journal entry disagree")
}
