package targets

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSettle(t *testing.T) {
	eps := d("0.01")

	paid, status := Settle(d("1500.00"), d("0"), d("1500.00"), eps)
	require.Equal(t, StatusPaid, status)
	require.True(t, paid.Equal(d("1500")))

	paid, status = Settle(d("1500.00"), d("0"), d("600.00"), eps)
	require.Equal(t, StatusPartial, status)
	require.True(t, paid.Equal(d("600")))

	_, status = Settle(d("1500.00"), d("600.00"), d("899.995"), eps)
	require.Equal(t, StatusPaid, status)

	_, status = Settle(d("100.00"), d("0"), d("120.00"), eps)
	require.Equal(t, StatusPaid, status)
}

func TestOpenItemOutstanding(t *testing.T) {
	item := OpenItem{Amount: d("1000"), PaidAmount: d("250")}
	require.True(t, item.Outstanding().Equal(d("750")))

	over := OpenItem{Amount: d("100"), PaidAmount: d("130")}
	require.True(t, over.Outstanding().IsZero())
}

func TestTypeHelpers(t *testing.T) {
	require.True(t, TypeInvoice.Valid())
	require.True(t, TypeManualAccount.Valid())
	require.False(t, Type("loan").Valid())
	require.False(t, TypeManualAccount.Settleable())
	require.True(t, TypePayable.Settleable())
}
