package training

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/reconciler/internal/banking"
)

func pattern(id int64, text string, priority int, usage int64) ClassificationPattern {
	return ClassificationPattern{
		ID:                id,
		Pattern:           text,
		MatchType:         MatchContains,
		CreditAccountCode: "4.1.1.01",
		DebitAccountCode:  "3.1.1.01",
		Confidence:        0.9,
		Priority:          priority,
		UsageCount:        usage,
		Active:            true,
	}
}

func TestSnapshotPrecedencePriorityFirst(t *testing.T) {
	low := pattern(1, "ACME", 100, 50)
	high := pattern(2, "ACME", 200, 0)
	high.CreditAccountCode = "4.1.1.05"

	snap := NewSnapshot(1, []ClassificationPattern{low, high})
	got, ok := snap.Match("PIX RECEBIDO ACME LTDA", banking.DirectionCredit)
	require.True(t, ok)
	require.Equal(t, int64(2), got.ID)
}

func TestSnapshotPrecedenceUsageThenInsertion(t *testing.T) {
	first := pattern(1, "ENERGIA", 100, 3)
	popular := pattern(2, "ENERGIA", 100, 9)
	later := pattern(3, "ENERGIA", 100, 9)

	snap := NewSnapshot(1, []ClassificationPattern{later, first, popular})
	got, ok := snap.Match("DEBITO ENERGIA ELETRICA", banking.DirectionDebit)
	require.True(t, ok)
	require.Equal(t, int64(2), got.ID)

	ids := []int64{}
	for _, p := range snap.Patterns() {
		ids = append(ids, p.ID)
	}
	require.Equal(t, []int64{2, 3, 1}, ids)
}

func TestSnapshotTransactionTypeFilter(t *testing.T) {
	onlyDebit := pattern(1, "TARIFA", 100, 0)
	onlyDebit.TransactionType = banking.DirectionDebit

	snap := NewSnapshot(1, []ClassificationPattern{onlyDebit})
	_, ok := snap.Match("ESTORNO TARIFA", banking.DirectionCredit)
	require.False(t, ok)
	_, ok = snap.Match("TARIFA PACOTE", banking.DirectionDebit)
	require.True(t, ok)
}

func TestSnapshotMatchTypes(t *testing.T) {
	exact := pattern(1, "cesta de relacionamento", 100, 0)
	exact.MatchType = MatchExact
	re := pattern(2, `^PIX_CRED\s+\d{14}`, 90, 0)
	re.MatchType = MatchRegex
	broken := pattern(3, `([`, 80, 0)
	broken.MatchType = MatchRegex
	inactive := pattern(4, "CESTA", 300, 0)
	inactive.Active = false

	snap := NewSnapshot(7, []ClassificationPattern{exact, re, broken, inactive})
	require.Equal(t, 2, snap.Len())
	require.Equal(t, []int64{3}, snap.Skipped())

	got, ok := snap.Match("  Cesta de  Relacionamento ", banking.DirectionDebit)
	require.True(t, ok)
	require.Equal(t, int64(1), got.ID)

	_, ok = snap.Match("CESTA DE RELACIONAMENTO PJ", banking.DirectionDebit)
	require.False(t, ok)

	got, ok = snap.Match("pix_cred 12345678000199 ACME", banking.DirectionCredit)
	require.True(t, ok)
	require.Equal(t, int64(2), got.ID)
}

func TestContraAccountFollowsDirection(t *testing.T) {
	p := pattern(1, "X", 0, 0)
	require.Equal(t, "4.1.1.01", p.ContraAccount(banking.DirectionCredit))
	require.Equal(t, "3.1.1.01", p.ContraAccount(banking.DirectionDebit))
}
