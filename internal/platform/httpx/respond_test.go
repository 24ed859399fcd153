package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProblemWritesTypedBody(t *testing.T) {
	rr := httptest.NewRecorder()
	Problem(rr, http.StatusUnprocessableEntity, "Unprocessable", "split does not balance")

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"type":"https://reconciler.odyssey-erp.dev/problems/unprocessable","title":"Unprocessable","status":422,"detail":"split does not balance"}`, rr.Body.String())
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("journal 9: %w", ErrNotFound), http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("account 3.1: %w", ErrUnprocessable), http.StatusUnprocessableEntity},
		{fmt.Errorf("ledger query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.code, rr.Code, tc.err.Error())
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Actor string `json:"actor"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"actor":"ana","role":"admin"}`))
	require.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"actor":"ana"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "ana", target.Actor)
}

func TestRespondErrorWithholdsServerDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: relation journal_lines does not exist"))
	require.NotContains(t, rr.Body.String(), "journal_lines")

	rr = httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("journal 4: %w", ErrNotFound))
	require.Contains(t, rr.Body.String(), "journal 4")
}

func TestMarkKeepsDomainMessage(t *testing.T) {
	errClosed := errors.New("training: question already answered")
	err := Mark(errClosed, ErrConflict)
	require.ErrorIs(t, err, errClosed)
	require.ErrorIs(t, err, ErrConflict)
	require.Nil(t, Mark(nil, ErrConflict))

	rr := httptest.NewRecorder()
	RespondError(rr, err)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), `"detail":"training: question already answered"`)
}
