package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/reconciler/internal/accounting/accounts"
	"github.com/odyssey-erp/reconciler/internal/accounting/journals"
	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
	"github.com/odyssey-erp/reconciler/internal/banking"
	moneyutil "github.com/odyssey-erp/reconciler/internal/shared"
	"github.com/odyssey-erp/reconciler/internal/targets"
)

const (
	// SourceModule tags journal entries posted from bank transactions.
	SourceModule = "BANKTX"
	// ReferenceType is the reference_type of those entries.
	ReferenceType = "bank_transaction"
)

// SourceID is the deterministic journal source id of a bank transaction.
func SourceID(transactionID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(SourceModule+":"+strconv.FormatInt(transactionID, 10)))
}

// AccountCatalog resolves account codes to postable accounts.
type AccountCatalog interface {
	Postable(ctx context.Context, code string) (accounts.Account, error)
}

// PostingStore is the write side needed to persist an entry.
type PostingStore interface {
	MarkMatched(ctx context.Context, id, entryID int64) error
	InsertJournalEntry(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []journals.PostingLineInput) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	ApplyPayment(ctx context.Context, t targets.Type, id int64, amount decimal.Decimal, date time.Time) error
}

// PostOptions carries entry metadata supplied by the caller.
type PostOptions struct {
	CompetenceDate time.Time
	PostedBy       string
}

// Poster turns validated allocations into a balanced journal entry.
type Poster struct {
	catalog  AccountCatalog
	defaults ContraDefaults
	eps      decimal.Decimal
	logger   *slog.Logger
}

// NewPoster builds entries against catalog, filling contra accounts from defaults.
func NewPoster(catalog AccountCatalog, defaults ContraDefaults, eps decimal.Decimal, logger *slog.Logger) *Poster {
	if eps.IsZero() {
		eps = moneyutil.MoneyEpsilon
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{catalog: catalog, defaults: defaults, eps: eps, logger: logger}
}

// BuildEntry builds the posting for tx. The bank account is always debited
// on receipts and credited on payments; allocations only choose the contra
// side. Lines are netted per account so a split produces one bank line.
func (p *Poster) BuildEntry(ctx context.Context, tx banking.Transaction, allocations []Allocation, opts PostOptions) (journals.PostingInput, error) {
	bank, err := p.bankAccount(ctx, tx)
	if err != nil {
		return journals.PostingInput{}, err
	}
	acc := journals.NewAccumulator()
	receipt := tx.IsReceipt()
	for _, alloc := range allocations {
		contra, err := p.catalog.Postable(ctx, alloc.ContraAccount)
		if err != nil {
			return journals.PostingInput{}, err
		}
		if contra.ID == bank.ID {
			return journals.PostingInput{}, fmt.Errorf("%w: contra account %s is the bank account", ErrInvalidAllocation, contra.Code)
		}
		memo := allocationMemo(alloc)
		if receipt {
			acc.Debit(bank.ID, bank.Code, alloc.Amount, tx.Description)
			acc.Credit(contra.ID, contra.Code, alloc.Amount, memo)
		} else {
			acc.Debit(contra.ID, contra.Code, alloc.Amount, memo)
			acc.Credit(bank.ID, bank.Code, alloc.Amount, tx.Description)
		}
	}

	competence := opts.CompetenceDate
	if competence.IsZero() {
		competence = tx.Date
	}
	method := banking.DetectPaymentMethod(tx.Description)
	in := journals.PostingInput{
		Date:           tx.Date,
		CompetenceDate: competence,
		Description:    fmt.Sprintf("Conciliação %s %s - %s", method, moneyutil.FormatBRL(tx.Magnitude()), tx.Description),
		DocumentType:   string(method),
		ReferenceType:  ReferenceType,
		ReferenceID:    tx.ID,
		SourceModule:   SourceModule,
		SourceID:       SourceID(tx.ID),
		PostedBy:       opts.PostedBy,
		Lines:          acc.Lines(),
	}
	if err := in.Validate(p.eps); err != nil {
		var imbalance *shared.PostingImbalanceError
		if errors.As(err, &imbalance) {
			p.logger.Error("posting imbalance",
				slog.Int64("transaction_id", tx.ID),
				slog.String("debit", imbalance.Debit.StringFixed(2)),
				slog.String("credit", imbalance.Credit.StringFixed(2)))
		}
		return journals.PostingInput{}, err
	}
	return in, nil
}

// Persist writes the entry, settles each allocation target and marks the
// transaction matched. It must run inside one database transaction.
func (p *Poster) Persist(ctx context.Context, store PostingStore, tx banking.Transaction, in journals.PostingInput, allocations []Allocation) (journals.JournalEntry, error) {
	entry, err := store.InsertJournalEntry(ctx, in)
	if err != nil {
		return journals.JournalEntry{}, fmt.Errorf("insert journal entry: %w", err)
	}
	if err := store.InsertJournalLines(ctx, entry.ID, in.Lines); err != nil {
		return journals.JournalEntry{}, fmt.Errorf("insert journal lines: %w", err)
	}
	if err := store.LinkSource(ctx, in.SourceModule, in.SourceID, entry.ID); err != nil {
		return journals.JournalEntry{}, fmt.Errorf("link source: %w", err)
	}
	for _, alloc := range allocations {
		if err := store.ApplyPayment(ctx, alloc.TargetType, alloc.TargetID, alloc.Amount, tx.Date); err != nil {
			return journals.JournalEntry{}, fmt.Errorf("apply payment to %s %d: %w", alloc.TargetType, alloc.TargetID, err)
		}
	}
	if err := store.MarkMatched(ctx, tx.ID, entry.ID); err != nil {
		return journals.JournalEntry{}, err
	}
	for _, line := range in.Lines {
		entry.Lines = append(entry.Lines, journals.JournalLine{
			JournalID:   entry.ID,
			AccountID:   line.AccountID,
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Memo:        line.Memo,
		})
	}
	return entry, nil
}

func (p *Poster) bankAccount(ctx context.Context, tx banking.Transaction) (accounts.Account, error) {
	code := tx.BankAccountCode
	if code == "" {
		if p.defaults == nil {
			return accounts.Account{}, fmt.Errorf("bank account: %w", shared.ErrMappingNotFound)
		}
		var err error
		if code, err = p.defaults.AccountCode(ctx, MappingBank); err != nil {
			return accounts.Account{}, fmt.Errorf("bank account: %w", err)
		}
	}
	return p.catalog.Postable(ctx, code)
}

func allocationMemo(a Allocation) string {
	if a.TargetType == targets.TypeManualAccount {
		return "Classificação manual"
	}
	return fmt.Sprintf("%s #%d", a.TargetType, a.TargetID)
}
