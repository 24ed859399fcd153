package migrations

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabaseURL(t *testing.T) {
	url, err := DatabaseURL("postgres://u:p@db:5432/reconciler?sslmode=disable")
	require.NoError(t, err)
	require.Equal(t, "pgx5://u:p@db:5432/reconciler?sslmode=disable", url)

	url, err = DatabaseURL("postgresql://db/reconciler")
	require.NoError(t, err)
	require.Equal(t, "pgx5://db/reconciler", url)

	_, err = DatabaseURL("mysql://u:secret@db/x")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "secret")
}

func TestEmbeddedSourceIsOrdered(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	require.Equal(t, uint(2), next)

	r, _, err := src.ReadUp(first)
	require.NoError(t, err)
	defer r.Close()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	for _, table := range []string{"bank_transactions", "journal_lines", "source_links", "pending_questions", "classification_patterns"} {
		require.True(t, strings.Contains(string(body), "CREATE TABLE "+table), table)
	}

	r, _, err = src.ReadDown(next)
	require.NoError(t, err)
	require.NoError(t, r.Close())
}
