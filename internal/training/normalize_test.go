package training

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEntityName(t *testing.T) {
	require.Equal(t, "JOAOSILVAME", NormalizeEntityName("João Silva - ME"))
	require.Equal(t, "ACMESOLUCOESLTDA", NormalizeEntityName("  acme soluções ltda. "))
	require.Equal(t, "", NormalizeEntityName("--- "))
}

func TestFold(t *testing.T) {
	require.Equal(t, "PAGAMENTO SOCIO", Fold("Pagamento   Sócio"))
	require.Equal(t, "DEVOLUCAO EMPRESTIMO", Fold("devolução empréstimo"))
}

func TestExtractPossibleName(t *testing.T) {
	cases := map[string]string{
		"RECEBIMENTO PIX-PIX_CRED 31458451000109 ACTION SOLUCOES": "ACTION SOLUCOES",
		"PIX RECEBIDO - MARIA OLIVEIRA":                           "MARIA OLIVEIRA",
		"TED RECEBIDA JOSE CARLOS":                                "JOSE CARLOS",
		"PAGAMENTO PIX - ENERGISA":                                "ENERGISA",
		"TRANSFERENCIA - CONTA PROPRIA":                           "CONTA PROPRIA",
		"  TARIFA BANCARIA MENSAL ":                               "TARIFA BANCARIA MENSAL",
	}
	for desc, want := range cases {
		require.Equal(t, want, ExtractPossibleName(desc), desc)
	}
}
