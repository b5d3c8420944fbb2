package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
)

// VotingUseCase manages committee voting sessions. Sessions are opened and
// closed by the loan workflow; members cast ballots directly.
type VotingUseCase struct {
	txManager   TransactionManager
	retrier     Retrier
	locker      LoanLocker
	loanRepo    LoanRepository
	sessionRepo VotingSessionRepository
	idGen       IDGenerator
	clock       Clock
	policy      Policy
	metrics     *metrics.Metrics
}

// NewVotingUseCase creates a new VotingUseCase.
func NewVotingUseCase(
	txManager TransactionManager,
	retrier Retrier,
	locker LoanLocker,
	loanRepo LoanRepository,
	sessionRepo VotingSessionRepository,
	idGen IDGenerator,
	clock Clock,
	policy Policy,
	metrics *metrics.Metrics,
) *VotingUseCase {
	return &VotingUseCase{
		txManager:   txManager,
		retrier:     retrier,
		locker:      locker,
		loanRepo:    loanRepo,
		sessionRepo: sessionRepo,
		idGen:       idGen,
		clock:       clock,
		policy:      policy,
		metrics:     metrics,
	}
}

// Open starts a session for loan inside the workflow transaction.
func (uc *VotingUseCase) Open(ctx context.Context, tx Transaction, loanID, openedBy string) (*domain.VotingSession, error) {
	if _, err := uc.sessionRepo.GetOpenByLoanForUpdate(ctx, tx, loanID); err == nil {
		return nil, domain.ErrVotingSessionExists
	} else if !errors.Is(err, domain.ErrNoOpenVotingSession) {
		return nil, err
	}

	session := domain.NewVotingSession(uc.idGen.Generate(), loanID, openedBy, uc.clock.Now())
	if err := uc.sessionRepo.Create(ctx, tx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// CastVote records the calling member's ballot on loanID.
func (uc *VotingUseCase) CastVote(ctx context.Context, loanID string, choice domain.VoteChoice) (*domain.VotingSession, error) {
	principal, ok := domain.PrincipalFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}

	var result *domain.VotingSession
	err := uc.locker.WithLock(ctx, loanLockKey(loanID), func(ctx context.Context) error {
		return withRetry(ctx, uc.retrier, func() error {
			txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
			defer cancel()

			tx, err := uc.txManager.Begin(txCtx)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback(txCtx) }()

			loan, err := uc.loanRepo.GetByIDForUpdate(txCtx, tx, loanID)
			if err != nil {
				return err
			}
			if loan.State != domain.LoanStateVotingOpen {
				return domain.ErrNoOpenVotingSession
			}
			if loan.BorrowerID == principal.MemberID {
				return domain.ErrBorrowerCannotVote
			}

			session, err := uc.sessionRepo.GetOpenByLoanForUpdate(txCtx, tx, loanID)
			if err != nil {
				return err
			}

			if err := session.Cast(principal.MemberID, choice, uc.policy.VotePolicy, uc.clock.Now()); err != nil {
				return err
			}
			if err := uc.sessionRepo.SaveVote(txCtx, tx, session.ID, session.Votes[principal.MemberID]); err != nil {
				return err
			}

			if err := tx.Commit(txCtx); err != nil {
				return err
			}
			result = session
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.VotesCast.WithLabelValues(string(choice)).Inc()
	}

	log.Ctx(ctx).Info().
		Str("loan_id", loanID).
		Str("voter", principal.MemberID).
		Str("choice", string(choice)).
		Msg("vote cast")

	return result, nil
}

// Close computes the outcome, tears the session down and returns it to the workflow.
func (uc *VotingUseCase) Close(ctx context.Context, tx Transaction, loanID, closedBy string, override *domain.VoteOutcome) (*domain.VotingSession, error) {
	session, err := uc.sessionRepo.GetOpenByLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}

	session.Close(closedBy, override, uc.clock.Now())
	if err := uc.sessionRepo.Close(ctx, tx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetOpenSession returns the open session for a loan.
func (uc *VotingUseCase) GetOpenSession(ctx context.Context, loanID string) (*domain.VotingSession, error) {
	return uc.sessionRepo.GetOpenByLoan(ctx, loanID)
}
