package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
)

// commandResult lets a command adjust what the runner records.
type commandResult struct {
	// Next overrides the rule's target state when set.
	Next    domain.LoanState
	Comment string
	Events  []*domain.OutboxEvent
}

// loanCommand runs inside the loan's lock and transaction after authorization.
// It may mutate loan; the runner persists it.
type loanCommand func(ctx context.Context, tx Transaction, loan *domain.LoanApplication, rule domain.TransitionRule) (*commandResult, error)

// loanCommandRunner is the single path by which workflow commands touch a loan.
type loanCommandRunner struct {
	txManager  TransactionManager
	retrier    Retrier
	locker     LoanLocker
	loanRepo   LoanRepository
	outboxRepo OutboxRepository
	idGen      IDGenerator
	clock      Clock
	metrics    *metrics.Metrics
}

// run locks the loan, authorizes the action, applies cmd, appends one audit
// record, and commits with an optimistic version check.
func (r *loanCommandRunner) run(ctx context.Context, loanID string, action domain.Action, cmd loanCommand) (*domain.LoanApplication, error) {
	start := time.Now()
	principal, _ := domain.PrincipalFromContext(ctx)

	var result *domain.LoanApplication
	err := r.locker.WithLock(ctx, loanLockKey(loanID), func(ctx context.Context) error {
		return withRetry(ctx, r.retrier, func() error {
			loan, err := r.runOnce(ctx, principal, loanID, action, cmd)
			if err != nil {
				return err
			}
			result = loan
			return nil
		})
	})

	logger := log.Ctx(ctx)
	if err != nil {
		if r.metrics != nil {
			r.metrics.TransitionErrors.WithLabelValues(string(action), domain.ErrorCode(err)).Inc()
		}
		logger.Warn().Err(err).
			Str("loan_id", loanID).
			Str("action", string(action)).
			Str("actor", actorOf(principal)).
			Msg("loan command rejected")
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.LoanTransitions.WithLabelValues(string(action), string(result.State)).Inc()
		r.metrics.TransitionDuration.Observe(time.Since(start).Seconds())
	}

	logger.Info().
		Str("loan_id", result.ID).
		Str("action", string(action)).
		Str("state", string(result.State)).
		Str("actor", actorOf(principal)).
		Msg("loan command applied")

	return result, nil
}

func (r *loanCommandRunner) runOnce(ctx context.Context, principal domain.Principal, loanID string, action domain.Action, cmd loanCommand) (*domain.LoanApplication, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := r.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	loan, err := r.loanRepo.GetByIDForUpdate(txCtx, tx, loanID)
	if err != nil {
		return nil, err
	}

	rule, err := domain.Authorize(loan, action, principal)
	if err != nil {
		return nil, err
	}

	res, err := cmd(txCtx, tx, loan, rule)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &commandResult{}
	}

	from := loan.State
	next := rule.Next
	if res.Next != "" {
		next = res.Next
	}

	now := r.clock.Now()
	loan.State = next
	loan.UpdatedAt = now

	record := &domain.AuditRecord{
		ID:        r.idGen.Generate(),
		LoanID:    loan.ID,
		Action:    action,
		FromState: from,
		ToState:   next,
		ActorID:   principal.MemberID,
		ActorRole: principal.Role,
		Comment:   res.Comment,
		CreatedAt: now,
	}
	if err := r.loanRepo.AppendAudit(txCtx, tx, record); err != nil {
		return nil, err
	}

	if err := r.loanRepo.Update(txCtx, tx, loan); err != nil {
		return nil, err
	}

	events := res.Events
	if from != next {
		events = append(events, r.stateChangedEvent(loan, from, next, action, principal, now))
	}
	for _, event := range events {
		if err := r.outboxRepo.Create(txCtx, tx, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return loan, nil
}

func (r *loanCommandRunner) stateChangedEvent(loan *domain.LoanApplication, from, to domain.LoanState, action domain.Action, p domain.Principal, now time.Time) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:            r.idGen.Generate(),
		AggregateID:   loan.ID,
		AggregateType: domain.AggregateTypeLoan,
		EventType:     domain.EventTypeLoanStateChanged,
		Payload: domain.LoanStateChangedEvent{
			LoanID:    loan.ID,
			From:      string(from),
			To:        string(to),
			Action:    string(action),
			ActorID:   p.MemberID,
			ActorRole: string(p.Role),
		}.Payload(),
		CreatedAt: now,
	}
}

// withRetry runs operation through r, or once when no retrier is configured.
func withRetry(ctx context.Context, r Retrier, operation func() error) error {
	if r == nil {
		return operation()
	}
	return r.Retry(ctx, operation)
}
