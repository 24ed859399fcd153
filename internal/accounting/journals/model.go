package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID             int64         `json:"id"`
	Number         int64         `json:"number"`
	Date           time.Time     `json:"date"`
	CompetenceDate time.Time     `json:"competence_date"`
	Description    string        `json:"description"`
	DocumentType   string        `json:"document_type,omitempty"`
	ReferenceType  string        `json:"reference_type"`
	ReferenceID    int64         `json:"reference_id"`
	SourceModule   string        `json:"source_module"`
	SourceID       uuid.UUID     `json:"source_id"`
	PostedBy       string        `json:"posted_by,omitempty"`
	PostedAt       time.Time     `json:"posted_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Lines          []JournalLine `json:"lines,omitempty"`
}

// JournalLine stores debit or credit amount for an account. Exactly one side
// is non-zero.
type JournalLine struct {
	ID          int64           `json:"id"`
	JournalID   int64           `json:"journal_id"`
	AccountID   int64           `json:"account_id"`
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Totals sums both sides of the entry lines.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}
