package banking

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTransactionDirectionAndState(t *testing.T) {
	receipt := Transaction{Amount: decimal.RequireFromString("1500.00")}
	require.True(t, receipt.IsReceipt())
	require.Equal(t, DirectionCredit, receipt.Direction())
	require.Equal(t, StatePending, receipt.State())

	entryID := int64(5)
	payment := Transaction{Amount: decimal.RequireFromString("-89.90"), Matched: true, JournalEntryID: &entryID}
	require.Equal(t, DirectionDebit, payment.Direction())
	require.Equal(t, "89.9", payment.Magnitude().String())
	require.Equal(t, StateMatched, payment.State())
	require.NoError(t, payment.Validate())
}

func TestTransactionValidateCatchesInconsistentMatch(t *testing.T) {
	require.ErrorIs(t, Transaction{Matched: true}.Validate(), ErrInconsistentMatch)
	entryID := int64(1)
	require.ErrorIs(t, Transaction{JournalEntryID: &entryID}.Validate(), ErrInconsistentMatch)
}

func TestDetectPaymentMethod(t *testing.T) {
	cases := map[string]PaymentMethod{
		"RECEBIMENTO PIX-PIX_CRED 12345678000199 ACME LTDA": PaymentPIX,
		"TED RECEBIDA - JOAO SILVA":                         PaymentTED,
		"DOC ENVIADO FORNECEDOR":                            PaymentDOC,
		"LIQ.COBRANCA SIMPLES-COB000123":                    PaymentBoleto,
		"TARIFA COM R LIQUIDACAO-COB000123":                 PaymentFee,
		"TRANSFERENCIA ENTRE CONTAS":                        PaymentTransferencia,
		"DEPOSITO EM DINHEIRO":                              PaymentOther,
	}
	for desc, want := range cases {
		require.Equal(t, want, DetectPaymentMethod(desc), desc)
	}
}
