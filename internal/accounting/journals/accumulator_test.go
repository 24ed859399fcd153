package journals

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAccumulatorNetsPerAccount(t *testing.T) {
	acc := NewAccumulator()
	acc.Debit(10, "1.1.1.05", dec("1000.00"), "bank")
	acc.Credit(20, "1.1.2.01", dec("600.00"), "client")
	acc.Credit(20, "1.1.2.01", dec("400.00"), "client")

	lines := acc.Lines()
	require.Len(t, lines, 2)
	require.Equal(t, int64(10), lines[0].AccountID)
	require.True(t, lines[0].Debit.Equal(dec("1000")))
	require.True(t, lines[0].Credit.IsZero())
	require.Equal(t, int64(20), lines[1].AccountID)
	require.True(t, lines[1].Credit.Equal(dec("1000")))
	require.True(t, acc.Balance().IsZero())
}

func TestAccumulatorDropsAccountsNettingToZero(t *testing.T) {
	acc := NewAccumulator()
	acc.Debit(10, "1.1.1.05", dec("50.00"), "")
	acc.Credit(10, "1.1.1.05", dec("50.00"), "")
	acc.Debit(30, "3.1.1.01", dec("12.345"), "")
	acc.Credit(40, "4.1.1.01", dec("12.345"), "")

	lines := acc.Lines()
	require.Len(t, lines, 2)
	require.Equal(t, "12.35", lines[0].Debit.StringFixed(2))
	require.Equal(t, "12.35", lines[1].Credit.StringFixed(2))
}

func TestPostingInputValidateDetectsImbalance(t *testing.T) {
	in := PostingInput{
		Date:         time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		SourceModule: "BANK",
		SourceID:     uuid.New(),
		Lines: []PostingLineInput{
			{AccountID: 1, Debit: dec("100.00")},
			{AccountID: 2, Credit: dec("99.90")},
		},
	}
	err := in.Validate(dec("0.01"))
	var imbalance *shared.PostingImbalanceError
	require.ErrorAs(t, err, &imbalance)
	require.Equal(t, "100.00", imbalance.Debit.StringFixed(2))

	in.Lines[1].Credit = dec("99.995")
	require.NoError(t, in.Validate(dec("0.01")))
}

func TestPostingInputValidateRejectsMalformedLines(t *testing.T) {
	base := PostingInput{Date: time.Now(), SourceModule: "BANK", SourceID: uuid.New()}

	tooFew := base
	tooFew.Lines = []PostingLineInput{{AccountID: 1, Debit: dec("1")}}
	require.ErrorIs(t, tooFew.Validate(decimal.Zero), shared.ErrTooFewLines)

	both := base
	both.Lines = []PostingLineInput{{AccountID: 1, Debit: dec("1"), Credit: dec("1")}, {AccountID: 2, Credit: dec("0")}}
	require.Error(t, both.Validate(decimal.Zero))

	noSource := base
	noSource.SourceID = uuid.Nil
	noSource.Lines = []PostingLineInput{{AccountID: 1, Debit: dec("1")}, {AccountID: 2, Credit: dec("1")}}
	require.Error(t, noSource.Validate(decimal.Zero))
}
