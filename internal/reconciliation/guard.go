package reconciliation

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/reconciler/internal/accounting/accounts"
	"github.com/odyssey-erp/reconciler/internal/banking"
	"github.com/odyssey-erp/reconciler/internal/training"
)

const minJustificationLength = 10

var partnerKeywords = []string{
	"SOCIO", "EMPRESTIMO", "APORTE", "DEVOLUCAO", "REEMBOLSO", "TRANSFERENCIA PROPRIA", "MUTUO",
}

var genericAccountPrefixes = []string{"4.1.1.08", "4.1.1.99", "3.1.1.99", "1.1.9.01", "2.1.9.01"}

// Guard rejects classifications that are known to distort the books.
type Guard struct{}

// Check validates classifying tx to account. Warnings are returned for
// suspicious but allowed choices.
func (Guard) Check(tx banking.Transaction, account accounts.Account, justification string) ([]string, error) {
	var warnings []string
	desc := training.Fold(tx.Description)
	receipt := tx.IsReceipt()

	if receipt && account.Type == accounts.AccountTypeRevenue {
		for _, kw := range partnerKeywords {
			if strings.Contains(desc, kw) {
				return nil, fmt.Errorf("%w: %q mentions %s", ErrForbiddenRevenue, tx.Description, strings.ToLower(kw))
			}
		}
	}

	for _, prefix := range genericAccountPrefixes {
		if !account.Under(prefix) {
			continue
		}
		if len([]rune(strings.TrimSpace(justification))) < minJustificationLength {
			return nil, fmt.Errorf("%w: account %s", ErrJustificationRequired, account.Code)
		}
		warnings = append(warnings, fmt.Sprintf("conta genérica %s usada: %s", account.Code, strings.TrimSpace(justification)))
		break
	}

	switch {
	case receipt && account.Type == accounts.AccountTypeExpense:
		warnings = append(warnings, fmt.Sprintf("recebimento classificado em despesa %s: possível estorno", account.Code))
	case !receipt && account.Type == accounts.AccountTypeRevenue:
		warnings = append(warnings, fmt.Sprintf("pagamento classificado em receita %s: possível devolução", account.Code))
	}
	return warnings, nil
}
