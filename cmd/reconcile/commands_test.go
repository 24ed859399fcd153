package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(" 3, 14 ,15")
	require.NoError(t, err)
	require.Equal(t, []int64{3, 14, 15}, ids)

	ids, err = parseIDs("")
	require.NoError(t, err)
	require.Nil(t, ids)

	for _, raw := range []string{"1,x", "0", "-4"} {
		_, err := parseIDs(raw)
		require.Error(t, err, raw)
	}
}
