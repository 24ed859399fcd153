package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/reconciler/internal/accounting/journals"
	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
	"github.com/odyssey-erp/reconciler/internal/banking"
	"github.com/odyssey-erp/reconciler/internal/platform/db"
	platformshared "github.com/odyssey-erp/reconciler/internal/shared"
	"github.com/odyssey-erp/reconciler/internal/targets"
	"github.com/odyssey-erp/reconciler/internal/training"
)

const idempotencyModule = "reconciliation"

// Outcome summarizes what an automatic run did with one transaction.
type Outcome string

const (
	OutcomePosted         Outcome = "posted"
	OutcomeQuestion       Outcome = "question"
	OutcomeAlreadyMatched Outcome = "already_matched"
	OutcomeClaimed        Outcome = "claimed"
	OutcomeFailed         Outcome = "failed"
)

// TransactionReader reads bank transactions.
type TransactionReader interface {
	Get(ctx context.Context, id int64) (banking.Transaction, error)
	List(ctx context.Context, filter banking.Filter) ([]banking.Transaction, error)
}

// PatternSnapshots hands out pattern snapshots.
type PatternSnapshots interface {
	Snapshot(ctx context.Context) (*training.Snapshot, error)
}

// QuestionOpener raises review questions.
type QuestionOpener interface {
	OpenQuestion(ctx context.Context, in training.OpenQuestionInput) (training.PendingQuestion, bool, error)
}

// ClaimIssuer leases transactions to one worker at a time.
type ClaimIssuer interface {
	Claim(ctx context.Context, transactionID int64) (banking.Lease, bool, error)
}

// AuditRecorder persists audit trail rows.
type AuditRecorder interface {
	Record(ctx context.Context, log platformshared.AuditLog) error
}

// IdempotencyGuard claims request keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Deps wires the service.
type Deps struct {
	Repo         Repository
	Transactions TransactionReader
	Generator    *Generator
	Splitter     *SplitAllocator
	Poster       *Poster
	Catalog      AccountCatalog
	Patterns     PatternSnapshots
	Questions    QuestionOpener
	Claims       ClaimIssuer
	Audit        AuditRecorder
	Idempotency  IdempotencyGuard
	Observer     Observer
	Logger       *slog.Logger
	Threshold    float64
}

// Service orchestrates candidate generation, posting and unmatching.
type Service struct {
	repo         Repository
	transactions TransactionReader
	generator    *Generator
	splitter     *SplitAllocator
	poster       *Poster
	catalog      AccountCatalog
	guard        Guard
	patterns     PatternSnapshots
	questions    QuestionOpener
	claims       ClaimIssuer
	audit        AuditRecorder
	idempotency  IdempotencyGuard
	observer     Observer
	logger       *slog.Logger
	threshold    float64
	now          func() time.Time
}

// NewService wires the reconciliation service. Claims, Audit and Idempotency are optional.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Threshold <= 0 {
		d.Threshold = 0.85
	}
	return &Service{
		repo:         d.Repo,
		transactions: d.Transactions,
		generator:    d.Generator,
		splitter:     d.Splitter,
		poster:       d.Poster,
		catalog:      d.Catalog,
		patterns:     d.Patterns,
		questions:    d.Questions,
		claims:       d.Claims,
		audit:        d.Audit,
		idempotency:  d.Idempotency,
		observer:     d.Observer,
		logger:       d.Logger,
		threshold:    d.Threshold,
		now:          time.Now,
	}
}

// Threshold is the auto-approval confidence.
func (s *Service) Threshold() float64 { return s.threshold }

// Get returns a bank transaction.
func (s *Service) Get(ctx context.Context, id int64) (banking.Transaction, error) {
	return s.transactions.Get(ctx, id)
}

// List returns bank transactions matching filter.
func (s *Service) List(ctx context.Context, filter banking.Filter) ([]banking.Transaction, error) {
	return s.transactions.List(ctx, filter)
}

// Candidates ranks what the strategies propose for one transaction.
func (s *Service) Candidates(ctx context.Context, id int64) ([]MatchCandidate, error) {
	tx, err := s.transactions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.generator.Generate(ctx, Request{Transaction: tx, Patterns: snap})
}

// ReconcileInput is an interactive reconciliation request.
type ReconcileInput struct {
	Allocations    []Allocation
	Justification  string
	CompetenceDate time.Time
	Actor          string
	IdempotencyKey string
	PatternID      *int64
	EntityID       *int64
}

// Result describes a committed posting.
type Result struct {
	Transaction banking.Transaction   `json:"transaction"`
	Entry       journals.JournalEntry `json:"entry"`
	Warnings    []string              `json:"warnings,omitempty"`
}

// Reconcile validates the chosen allocations and posts them. Nothing is
// written unless every check passes.
func (s *Service) Reconcile(ctx context.Context, id int64, in ReconcileInput) (res Result, err error) {
	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule); err != nil {
			return Result{}, err
		}
		defer func() {
			if err != nil {
				if derr := s.idempotency.Delete(context.WithoutCancel(ctx), in.IdempotencyKey, idempotencyModule); derr != nil {
					s.logger.Warn("release idempotency key", slog.Any("error", derr))
				}
			}
		}()
	}

	tx, err := s.transactions.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if tx.Matched {
		return Result{}, &shared.ConcurrentMatchError{TransactionID: tx.ID}
	}
	if s.claims != nil {
		lease, ok, err := s.claims.Claim(ctx, tx.ID)
		if err != nil {
			return Result{}, fmt.Errorf("claim transaction %d: %w", tx.ID, err)
		}
		if !ok {
			return Result{}, ErrClaimed
		}
		defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()
	}
	allocations, err := s.splitter.Validate(ctx, tx, in.Allocations)
	if err != nil {
		return Result{}, err
	}
	warnings, err := s.checkManual(ctx, tx, allocations, in.Justification)
	if err != nil {
		return Result{}, err
	}
	res, err = s.post(ctx, tx, allocations, PostOptions{CompetenceDate: in.CompetenceDate, PostedBy: in.Actor}, in.PatternID, in.EntityID)
	if err != nil {
		return Result{}, err
	}
	res.Warnings = warnings
	s.observer.Outcome(string(OutcomePosted))
	s.record(ctx, in.Actor, "reconcile", tx.ID, map[string]any{
		"journal_entry_id": res.Entry.ID,
		"allocations":      len(allocations),
		"justification":    in.Justification,
		"warnings":         warnings,
	})
	return res, nil
}

func (s *Service) checkManual(ctx context.Context, tx banking.Transaction, allocations []Allocation, justification string) ([]string, error) {
	var warnings []string
	for _, alloc := range allocations {
		if alloc.TargetType != targets.TypeManualAccount {
			continue
		}
		account, err := s.catalog.Postable(ctx, alloc.ContraAccount)
		if err != nil {
			return nil, err
		}
		w, err := s.guard.Check(tx, account, justification)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)
	}
	return warnings, nil
}

// post commits the entry. The row is locked and re-checked before anything
// is written; a concurrent match or a row changed since it was read yields
// *shared.ConcurrentMatchError.
func (s *Service) post(ctx context.Context, tx banking.Transaction, allocations []Allocation, opts PostOptions, patternID, entityID *int64) (Result, error) {
	in, err := s.poster.BuildEntry(ctx, tx, allocations, opts)
	if err != nil {
		return Result{}, err
	}
	var res Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		locked, err := repo.LockTransaction(ctx, tx.ID)
		if err != nil {
			return err
		}
		if locked.Matched || locked.Version != tx.Version {
			return &shared.ConcurrentMatchError{TransactionID: tx.ID}
		}
		if err := Transition(locked.State(), banking.StateMatched); err != nil {
			return err
		}
		entry, err := s.poster.Persist(ctx, repo, locked, in, allocations)
		if err != nil {
			return err
		}
		if patternID != nil {
			if err := repo.IncrementPatternUsage(ctx, *patternID); err != nil {
				return err
			}
		}
		if entityID != nil {
			if err := repo.IncrementEntityUsage(ctx, *entityID, s.now()); err != nil {
				return err
			}
		}
		locked.Matched = true
		locked.JournalEntryID = &entry.ID
		locked.Version++
		res = Result{Transaction: locked, Entry: entry}
		return nil
	})
	if errors.Is(err, db.ErrSerialization) {
		return Result{}, &shared.ConcurrentMatchError{TransactionID: tx.ID}
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// AutoResult reports an automatic run over one transaction.
type AutoResult struct {
	Outcome    Outcome                   `json:"outcome"`
	Candidate  *MatchCandidate           `json:"candidate,omitempty"`
	Entry      *journals.JournalEntry    `json:"entry,omitempty"`
	Question   *training.PendingQuestion `json:"question,omitempty"`
	Candidates []MatchCandidate          `json:"candidates,omitempty"`
}

// AutoReconcileByID runs AutoReconcile with a fresh pattern snapshot.
func (s *Service) AutoReconcileByID(ctx context.Context, id int64) (AutoResult, error) {
	tx, err := s.transactions.Get(ctx, id)
	if err != nil {
		return AutoResult{}, err
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return AutoResult{}, err
	}
	res, err := s.AutoReconcile(ctx, tx, snap)
	if err == nil && res.Outcome == OutcomeClaimed {
		return res, ErrClaimed
	}
	return res, err
}

// AutoReconcile claims tx, generates candidates against snap and posts the
// best one when it clears the threshold unambiguously. Everything else, and
// any candidate rejected by validation, becomes a review question.
func (s *Service) AutoReconcile(ctx context.Context, tx banking.Transaction, snap *training.Snapshot) (AutoResult, error) {
	if tx.Matched {
		return s.outcome(AutoResult{Outcome: OutcomeAlreadyMatched}), nil
	}
	if s.claims != nil {
		lease, ok, err := s.claims.Claim(ctx, tx.ID)
		if err != nil {
			return s.outcome(AutoResult{Outcome: OutcomeFailed}), fmt.Errorf("claim transaction %d: %w", tx.ID, err)
		}
		if !ok {
			return s.outcome(AutoResult{Outcome: OutcomeClaimed}), nil
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release claim", slog.Int64("transaction_id", tx.ID), slog.Any("error", err))
			}
		}()
		fresh, err := s.transactions.Get(ctx, tx.ID)
		if err != nil {
			return s.outcome(AutoResult{Outcome: OutcomeFailed}), err
		}
		if fresh.Matched {
			return s.outcome(AutoResult{Outcome: OutcomeAlreadyMatched}), nil
		}
		tx = fresh
	}

	candidates, err := s.generator.Generate(ctx, Request{Transaction: tx, Patterns: snap})
	if err != nil {
		return s.outcome(AutoResult{Outcome: OutcomeFailed}), err
	}
	if best, ok := Decide(candidates, s.threshold); ok {
		res, err := s.autoPost(ctx, tx, best)
		switch {
		case err == nil:
			s.record(ctx, "", "auto_reconcile", tx.ID, map[string]any{
				"journal_entry_id": res.Entry.ID,
				"source":           best.Source,
				"confidence":       best.Confidence,
			})
			return s.outcome(AutoResult{Outcome: OutcomePosted, Candidate: &best, Entry: &res.Entry, Candidates: candidates}), nil
		case errors.Is(err, shared.ErrConcurrentMatch):
			return s.outcome(AutoResult{Outcome: OutcomeAlreadyMatched, Candidates: candidates}), nil
		case rejectedCandidate(err):
			s.logger.Info("auto candidate rejected",
				slog.Int64("transaction_id", tx.ID),
				slog.String("source", string(best.Source)),
				slog.Any("error", err))
		default:
			return s.outcome(AutoResult{Outcome: OutcomeFailed, Candidates: candidates}), err
		}
	}

	q, err := s.raiseQuestion(ctx, tx, candidates)
	if err != nil {
		return s.outcome(AutoResult{Outcome: OutcomeFailed, Candidates: candidates}), err
	}
	return s.outcome(AutoResult{Outcome: OutcomeQuestion, Question: &q, Candidates: candidates}), nil
}

func (s *Service) autoPost(ctx context.Context, tx banking.Transaction, best MatchCandidate) (Result, error) {
	allocations, err := s.splitter.Validate(ctx, tx, []Allocation{best.Allocation()})
	if err != nil {
		return Result{}, err
	}
	if _, err := s.checkManual(ctx, tx, allocations, best.Description); err != nil {
		return Result{}, err
	}
	return s.post(ctx, tx, allocations, PostOptions{PostedBy: "auto:" + string(best.Source)}, best.PatternID, best.EntityID)
}

// rejectedCandidate reports errors meaning the candidate itself is unusable,
// so a human should decide instead.
func rejectedCandidate(err error) bool {
	for _, target := range []error{
		ErrInvalidAllocation, ErrForbiddenRevenue, ErrJustificationRequired,
		shared.ErrImbalancedSplit, shared.ErrMissingAccount, shared.ErrSyntheticAccount,
		shared.ErrInactiveAccount, shared.ErrMappingNotFound, shared.ErrPostingImbalance,
		targets.ErrTargetNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) raiseQuestion(ctx context.Context, tx banking.Transaction, candidates []MatchCandidate) (training.PendingQuestion, error) {
	if s.questions == nil {
		return training.PendingQuestion{}, errors.New("reconciliation: no question queue configured")
	}
	in := training.OpenQuestionInput{Transaction: tx, QuestionType: training.QuestionWhatIs}
	if len(candidates) > 0 {
		top := candidates[0]
		in.QuestionType = training.QuestionCategory
		in.Suggestion = &training.Suggestion{Text: top.Description, Confidence: top.Confidence}
	}
	q, _, err := s.questions.OpenQuestion(ctx, in)
	return q, err
}

// Unmatch deletes the journal entry of a matched transaction and returns it
// to pending in one database transaction. Payments already applied to
// allocation targets are left as they are.
func (s *Service) Unmatch(ctx context.Context, id int64, actor string) (banking.Transaction, error) {
	var (
		out     banking.Transaction
		entryID int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		locked, err := repo.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if !locked.Matched {
			return banking.ErrNotMatched
		}
		if err := locked.Validate(); err != nil {
			return err
		}
		if err := Transition(locked.State(), banking.StatePending); err != nil {
			return err
		}
		entryID = *locked.JournalEntryID
		if err := repo.DeleteJournalEntry(ctx, entryID); err != nil {
			return fmt.Errorf("delete journal entry %d: %w", entryID, err)
		}
		if err := repo.ClearMatch(ctx, id); err != nil {
			return err
		}
		locked.Matched = false
		locked.JournalEntryID = nil
		locked.Version++
		out = locked
		return nil
	})
	if err != nil {
		return banking.Transaction{}, err
	}
	s.record(ctx, actor, "unmatch", id, map[string]any{"journal_entry_id": entryID})
	return out, nil
}

func (s *Service) snapshot(ctx context.Context) (*training.Snapshot, error) {
	if s.patterns == nil {
		return nil, nil
	}
	return s.patterns.Snapshot(ctx)
}

func (s *Service) outcome(res AutoResult) AutoResult {
	s.observer.Outcome(string(res.Outcome))
	return res
}

func (s *Service) record(ctx context.Context, actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, platformshared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "bank_transaction",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Int64("transaction_id", id), slog.Any("error", err))
	}
}
