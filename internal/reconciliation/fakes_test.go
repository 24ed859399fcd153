package reconciliation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/accounting/accounts"
	"github.com/odyssey-erp/reconciler/internal/accounting/journals"
	"github.com/odyssey-erp/reconciler/internal/accounting/mappings"
	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
	"github.com/odyssey-erp/reconciler/internal/banking"
	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
	"github.com/odyssey-erp/reconciler/internal/targets"
	"github.com/odyssey-erp/reconciler/internal/training"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func bankTx(id int64, desc, amount string) banking.Transaction {
	return banking.Transaction{ID: id, Date: day, Description: desc, Amount: dec(amount), Version: 1}
}

type stubCatalog map[string]accounts.Account

func (c stubCatalog) Postable(ctx context.Context, code string) (accounts.Account, error) {
	acc, ok := c[code]
	if !ok {
		return accounts.Account{}, &shared.MissingAccountError{Code: code}
	}
	if acc.IsSynthetic {
		return accounts.Account{}, shared.ErrSyntheticAccount
	}
	return acc, nil
}

func (c stubCatalog) List(ctx context.Context) ([]accounts.Account, error) {
	out := make([]accounts.Account, 0, len(c))
	for _, acc := range c {
		out = append(out, acc)
	}
	return out, nil
}

func account(id int64, code, name string, t accounts.AccountType) accounts.Account {
	return accounts.Account{ID: id, Code: code, Name: name, Type: t, IsActive: true}
}

var chart = stubCatalog{
	"1.1.1.02": account(1, "1.1.1.02", "Banco Sicredi", accounts.AccountTypeAsset),
	"1.1.2.01": account(2, "1.1.2.01", "Clientes a receber", accounts.AccountTypeAsset),
	"4.1.1.01": account(3, "4.1.1.01", "Receita de honorários", accounts.AccountTypeRevenue),
	"4.1.1.08": account(4, "4.1.1.08", "Outras receitas", accounts.AccountTypeRevenue),
	"3.1.1.01": account(5, "3.1.1.01", "Despesas administrativas", accounts.AccountTypeExpense),
	"3.1.1.02": account(6, "3.1.1.02", "Energia elétrica", accounts.AccountTypeExpense),
	"2.1.1.01": account(7, "2.1.1.01", "Fornecedores", accounts.AccountTypeLiability),
	"2.1.2.01": account(8, "2.1.2.01", "Empréstimos de sócios", accounts.AccountTypeLiability),
	"4.1.1":    {ID: 9, Code: "4.1.1", Name: "Receitas de serviços", Type: accounts.AccountTypeRevenue, IsActive: true, IsSynthetic: true},
}

func testDefaults() *mappings.Defaults {
	return mappings.NewDefaults(nil, "reconciliation", map[string]string{
		MappingBank:       "1.1.1.02",
		MappingReceivable: "1.1.2.01",
		MappingExpense:    "3.1.1.01",
		MappingPayable:    "2.1.1.01",
	})
}

type fakeItems struct {
	items   []targets.OpenItem
	clients []targets.Client
	err     error
}

func (f *fakeItems) ListOpen(ctx context.Context, types ...targets.Type) ([]targets.OpenItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []targets.OpenItem
	for _, item := range f.items {
		for _, t := range types {
			if item.Type == t {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (f *fakeItems) OpenInvoicesForClient(ctx context.Context, clientID int64) ([]targets.OpenItem, error) {
	var out []targets.OpenItem
	for _, item := range f.items {
		if item.Type == targets.TypeInvoice && item.ClientID != nil && *item.ClientID == clientID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeItems) FindClientByTaxID(ctx context.Context, taxID string) (targets.Client, error) {
	for _, c := range f.clients {
		if c.TaxID == taxID {
			return c, nil
		}
	}
	return targets.Client{}, targets.ErrClientNotFound
}

type payment struct {
	Type   targets.Type
	ID     int64
	Amount decimal.Decimal
}

// ledger is an in-memory store whose WithTx restores the previous state when
// the callback fails.
type ledger struct {
	mu          sync.Mutex
	txs         map[int64]banking.Transaction
	entries     map[int64]journals.JournalEntry
	links       map[uuid.UUID]int64
	payments    []payment
	patternUses map[int64]int
	entityUses  map[int64]int
	nextEntry   int64
	failApply   error
	failDelete  error
	beforeLock  func(l *ledger)
}

func newLedger(txs ...banking.Transaction) *ledger {
	l := &ledger{
		txs:         make(map[int64]banking.Transaction),
		entries:     make(map[int64]journals.JournalEntry),
		links:       make(map[uuid.UUID]int64),
		patternUses: make(map[int64]int),
		entityUses:  make(map[int64]int),
	}
	for _, tx := range txs {
		l.txs[tx.ID] = tx
	}
	return l
}

func (l *ledger) Get(ctx context.Context, id int64) (banking.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.txs[id]
	if !ok {
		return banking.Transaction{}, banking.ErrTransactionNotFound
	}
	return tx, nil
}

func (l *ledger) List(ctx context.Context, filter banking.Filter) ([]banking.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []banking.Transaction
	for _, tx := range l.txs {
		if filter.State == "" || tx.State() == filter.State {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (l *ledger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.beforeLock != nil {
		l.beforeLock(l)
	}
	saved := l.clone()
	if err := fn(ctx, ledgerTx{l}); err != nil {
		l.restore(saved)
		return err
	}
	return nil
}

type ledgerState struct {
	txs         map[int64]banking.Transaction
	entries     map[int64]journals.JournalEntry
	links       map[uuid.UUID]int64
	payments    []payment
	patternUses map[int64]int
	entityUses  map[int64]int
	nextEntry   int64
}

func (l *ledger) clone() ledgerState {
	st := ledgerState{
		txs:         make(map[int64]banking.Transaction),
		entries:     make(map[int64]journals.JournalEntry),
		links:       make(map[uuid.UUID]int64),
		payments:    append([]payment(nil), l.payments...),
		patternUses: make(map[int64]int),
		entityUses:  make(map[int64]int),
		nextEntry:   l.nextEntry,
	}
	for k, v := range l.txs {
		st.txs[k] = v
	}
	for k, v := range l.entries {
		st.entries[k] = v
	}
	for k, v := range l.links {
		st.links[k] = v
	}
	for k, v := range l.patternUses {
		st.patternUses[k] = v
	}
	for k, v := range l.entityUses {
		st.entityUses[k] = v
	}
	return st
}

func (l *ledger) restore(st ledgerState) {
	l.txs, l.entries, l.links = st.txs, st.entries, st.links
	l.payments, l.patternUses, l.entityUses, l.nextEntry = st.payments, st.patternUses, st.entityUses, st.nextEntry
}

type ledgerTx struct{ l *ledger }

func (t ledgerTx) LockTransaction(ctx context.Context, id int64) (banking.Transaction, error) {
	tx, ok := t.l.txs[id]
	if !ok {
		return banking.Transaction{}, banking.ErrTransactionNotFound
	}
	return tx, nil
}

func (t ledgerTx) MarkMatched(ctx context.Context, id, entryID int64) error {
	tx := t.l.txs[id]
	if tx.Matched {
		return &shared.ConcurrentMatchError{TransactionID: id}
	}
	tx.Matched = true
	tx.JournalEntryID = &entryID
	tx.Version++
	t.l.txs[id] = tx
	return nil
}

func (t ledgerTx) ClearMatch(ctx context.Context, id int64) error {
	tx := t.l.txs[id]
	if !tx.Matched {
		return banking.ErrNotMatched
	}
	tx.Matched = false
	tx.JournalEntryID = nil
	tx.Version++
	t.l.txs[id] = tx
	return nil
}

func (t ledgerTx) InsertJournalEntry(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error) {
	t.l.nextEntry++
	entry := journals.JournalEntry{
		ID:             t.l.nextEntry,
		Date:           in.Date,
		CompetenceDate: in.CompetenceDate,
		Description:    in.Description,
		DocumentType:   in.DocumentType,
		ReferenceType:  in.ReferenceType,
		ReferenceID:    in.ReferenceID,
		SourceModule:   in.SourceModule,
		SourceID:       in.SourceID,
		PostedBy:       in.PostedBy,
	}
	t.l.entries[entry.ID] = entry
	return entry, nil
}

func (t ledgerTx) InsertJournalLines(ctx context.Context, entryID int64, lines []journals.PostingLineInput) error {
	entry := t.l.entries[entryID]
	for _, line := range lines {
		entry.Lines = append(entry.Lines, journals.JournalLine{
			JournalID: entryID, AccountID: line.AccountID, AccountCode: line.AccountCode,
			Debit: line.Debit, Credit: line.Credit, Memo: line.Memo,
		})
	}
	t.l.entries[entryID] = entry
	return nil
}

func (t ledgerTx) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	if _, ok := t.l.links[ref]; ok {
		return shared.ErrSourceConflict
	}
	t.l.links[ref] = entryID
	return nil
}

func (t ledgerTx) GetJournalWithLines(ctx context.Context, entryID int64) (journals.JournalEntry, error) {
	entry, ok := t.l.entries[entryID]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return entry, nil
}

func (t ledgerTx) DeleteJournalEntry(ctx context.Context, entryID int64) error {
	if t.l.failDelete != nil {
		return t.l.failDelete
	}
	if _, ok := t.l.entries[entryID]; !ok {
		return shared.ErrJournalNotFound
	}
	delete(t.l.entries, entryID)
	for ref, id := range t.l.links {
		if id == entryID {
			delete(t.l.links, ref)
		}
	}
	return nil
}

func (t ledgerTx) ApplyPayment(ctx context.Context, tt targets.Type, id int64, amount decimal.Decimal, date time.Time) error {
	if t.l.failApply != nil {
		return t.l.failApply
	}
	t.l.payments = append(t.l.payments, payment{Type: tt, ID: id, Amount: amount})
	return nil
}

func (t ledgerTx) IncrementPatternUsage(ctx context.Context, id int64) error {
	t.l.patternUses[id]++
	return nil
}

func (t ledgerTx) IncrementEntityUsage(ctx context.Context, id int64, at time.Time) error {
	t.l.entityUses[id]++
	return nil
}

type fakeQuestions struct {
	opened []training.OpenQuestionInput
}

func (f *fakeQuestions) OpenQuestion(ctx context.Context, in training.OpenQuestionInput) (training.PendingQuestion, bool, error) {
	f.opened = append(f.opened, in)
	q := training.PendingQuestion{
		ID:                int64(len(f.opened)),
		BankTransactionID: in.Transaction.ID,
		QuestionType:      in.QuestionType,
		Status:            training.QuestionPending,
	}
	if in.Suggestion != nil {
		q.AISuggestion = in.Suggestion.Text
		q.AIConfidence = in.Suggestion.Confidence
	}
	return q, true, nil
}

type fixedSnapshot struct{ snap *training.Snapshot }

func (f fixedSnapshot) Snapshot(ctx context.Context) (*training.Snapshot, error) { return f.snap, nil }

type stubStrategy struct {
	source     Source
	external   bool
	candidates []MatchCandidate
	err        error
	calls      int
}

func (s *stubStrategy) Source() Source { return s.source }
func (s *stubStrategy) External() bool { return s.external }
func (s *stubStrategy) Propose(ctx context.Context, req Request) ([]MatchCandidate, error) {
	s.calls++
	return s.candidates, s.err
}

var errBoom = errors.New("boom")

type harness struct {
	ledger    *ledger
	items     *fakeItems
	questions *fakeQuestions
	service   *Service
}

func newHarness(t *testing.T, items *fakeItems, snap *training.Snapshot, txs ...banking.Transaction) *harness {
	t.Helper()
	if items == nil {
		items = &fakeItems{}
	}
	l := newLedger(txs...)
	eps := moneyutil.MoneyEpsilon
	defaults := testDefaults()
	q := &fakeQuestions{}
	gen := NewGenerator(0.85, nil, nil,
		NewExactValueStrategy(items, eps),
		NewDocumentExtractionStrategy(items, eps),
		NewPatternClassificationStrategy(),
	)
	svc := NewService(Deps{
		Repo:         l,
		Transactions: l,
		Generator:    gen,
		Splitter:     NewSplitAllocator(defaults, eps),
		Poster:       NewPoster(chart, defaults, eps, nil),
		Catalog:      chart,
		Patterns:     fixedSnapshot{snap: snap},
		Questions:    q,
		Threshold:    0.85,
	})
	return &harness{ledger: l, items: items, questions: q, service: svc}
}

func balanced(t *testing.T, entry journals.JournalEntry) bool {
	t.Helper()
	debit, credit := entry.Totals()
	return moneyutil.MoneyEqual(debit, credit, moneyutil.MoneyEpsilon)
}
