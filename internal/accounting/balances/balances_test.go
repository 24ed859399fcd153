package balances

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var eps = d("0.01")

// Capital 1000 paid in, fee received 300, rent 150 of which 50 still owed.
func ledger() []AccountBalance {
	return []AccountBalance{
		{Code: "1.1.1.02", Name: "Banco", Type: "ASSET", Debit: d("1300"), Credit: d("100")},
		{Code: "2.1.1.01", Name: "Fornecedores", Type: "LIABILITY", Credit: d("50")},
		{Code: "3.1.1.01", Name: "Aluguel", Type: "EXPENSE", Debit: d("150")},
		{Code: "4.1.1.01", Name: "Honorarios", Type: "REVENUE", Credit: d("300")},
		{Code: "5.1.1.01", Name: "Capital", Type: "EQUITY", Credit: d("1000")},
	}
}

func TestCheckEquationBalanced(t *testing.T) {
	eq := CheckEquation(time.Time{}, ledger(), eps)

	require.True(t, eq.Assets.Equal(d("1200")))
	require.True(t, eq.Liabilities.Equal(d("50")))
	require.True(t, eq.Equity.Equal(d("1000")))
	require.True(t, eq.Result.Equal(d("150")))
	require.True(t, eq.Difference.IsZero())
	require.True(t, eq.TotalDebit.Equal(eq.TotalCredit))
	require.True(t, eq.Balanced)

	require.Len(t, eq.Groups, 5)
	require.Equal(t, "1", eq.Groups[0].Key)
	require.True(t, eq.Groups[0].Net.Equal(d("1200")))
}

func TestCheckEquationDetectsDrift(t *testing.T) {
	rows := ledger()
	rows[0].Debit = d("1310")
	eq := CheckEquation(time.Time{}, rows, eps)
	require.False(t, eq.Balanced)
	require.True(t, eq.Difference.Equal(d("10")))

	// within tolerance
	rows[0].Debit = d("1300.005")
	require.True(t, CheckEquation(time.Time{}, rows, eps).Balanced)
}

type stubRepo struct {
	asOf time.Time
	rows []AccountBalance
	err  error
}

func (s *stubRepo) Balances(_ context.Context, asOf time.Time) ([]AccountBalance, error) {
	s.asOf = asOf
	return s.rows, s.err
}

func newTestRouter(repo Repository) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo, eps))
	h.now = func() time.Time { return time.Date(2025, 2, 14, 10, 30, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestEquationHandler(t *testing.T) {
	repo := &stubRepo{rows: ledger()}
	rr := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/equation", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), repo.asOf)
	var body struct {
		Balanced bool   `json:"balanced"`
		Assets   string `json:"assets"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Balanced)
	require.Equal(t, "1200", body.Assets)

	rr = httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/equation?as_of=2024-12-31", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), repo.asOf)
}

func TestEquationHandlerErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&stubRepo{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/equation?as_of=31/12/2024", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	newTestRouter(&stubRepo{err: errors.New("connection refused")}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/equation", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
}
