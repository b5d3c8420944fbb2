package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
)

// WorkflowDeps groups the collaborators shared by loan workflow use cases.
type WorkflowDeps struct {
	TxManager     TransactionManager
	Retrier       Retrier
	Locker        LoanLocker
	LoanRepo      LoanRepository
	GuarantorRepo GuarantorRepository
	SavingsRepo   SavingsAccountRepository
	OutboxRepo    OutboxRepository
	IDGen         IDGenerator
	Clock         Clock
	Policy        Policy
	Metrics       *metrics.Metrics
}

func (d WorkflowDeps) runner() *loanCommandRunner {
	return &loanCommandRunner{
		txManager:  d.TxManager,
		retrier:    d.Retrier,
		locker:     d.Locker,
		loanRepo:   d.LoanRepo,
		outboxRepo: d.OutboxRepo,
		idGen:      d.IDGen,
		clock:      d.Clock,
		metrics:    d.Metrics,
	}
}

// GuarantorUseCase manages the pledges backing a draft loan.
type GuarantorUseCase struct {
	commands      *loanCommandRunner
	txManager     TransactionManager
	retrier       Retrier
	locker        LoanLocker
	loanRepo      LoanRepository
	guarantorRepo GuarantorRepository
	savingsRepo   SavingsAccountRepository
	outboxRepo    OutboxRepository
	idGen         IDGenerator
	clock         Clock
}

// NewGuarantorUseCase creates a new GuarantorUseCase.
func NewGuarantorUseCase(deps WorkflowDeps) *GuarantorUseCase {
	return &GuarantorUseCase{
		commands:      deps.runner(),
		txManager:     deps.TxManager,
		retrier:       deps.Retrier,
		locker:        deps.Locker,
		loanRepo:      deps.LoanRepo,
		guarantorRepo: deps.GuarantorRepo,
		savingsRepo:   deps.SavingsRepo,
		outboxRepo:    deps.OutboxRepo,
		idGen:         deps.IDGen,
		clock:         deps.Clock,
	}
}

// AddPledgeInput represents input for adding a guarantor to a loan.
type AddPledgeInput struct {
	LoanID      string
	GuarantorID string
	Amount      decimal.Decimal
}

// AddPledge attaches a PENDING pledge to a draft loan. Only the borrower may
// add guarantors, a guarantor appears at most once, and nobody guarantees themselves.
func (uc *GuarantorUseCase) AddPledge(ctx context.Context, input AddPledgeInput) (*domain.GuarantorPledge, error) {
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}
	if err := domain.ValidateID(input.GuarantorID); err != nil {
		return nil, err
	}

	var pledge *domain.GuarantorPledge
	_, err := uc.commands.run(ctx, input.LoanID, domain.ActionAddGuarantor, func(ctx context.Context, tx Transaction, loan *domain.LoanApplication, _ domain.TransitionRule) (*commandResult, error) {
		if input.GuarantorID == loan.BorrowerID {
			return nil, domain.ErrSelfGuarantee
		}

		existing, err := uc.guarantorRepo.ListByLoanTx(ctx, tx, loan.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range existing {
			if p.GuarantorID == input.GuarantorID {
				return nil, domain.ErrDuplicateGuarantor
			}
		}

		if err := uc.checkCapacity(ctx, input.GuarantorID, input.Amount); err != nil {
			return nil, err
		}

		now := uc.clock.Now()
		pledge = &domain.GuarantorPledge{
			ID:          uc.idGen.Generate(),
			LoanID:      loan.ID,
			GuarantorID: input.GuarantorID,
			Amount:      input.Amount,
			Status:      domain.PledgeStatusPending,
			CreatedAt:   now,
		}
		if err := uc.guarantorRepo.Create(ctx, tx, pledge); err != nil {
			return nil, err
		}

		// Notify the guarantor so they can accept or decline
		notify := &domain.OutboxEvent{
			ID:            uc.idGen.Generate(),
			AggregateID:   pledge.ID,
			AggregateType: domain.AggregateTypePledge,
			EventType:     domain.EventTypeGuarantorRequested,
			Payload: domain.GuarantorRequestedEvent{
				PledgeID:    pledge.ID,
				LoanID:      loan.ID,
				GuarantorID: pledge.GuarantorID,
				Amount:      pledge.Amount.String(),
			}.Payload(),
			CreatedAt: now,
		}

		return &commandResult{
			Comment: fmt.Sprintf("guarantor %s pledged %s", pledge.GuarantorID, pledge.Amount.String()),
			Events:  []*domain.OutboxEvent{notify},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return pledge, nil
}

// checkCapacity requires the guarantor to hold enough unlocked active savings.
func (uc *GuarantorUseCase) checkCapacity(ctx context.Context, guarantorID string, amount decimal.Decimal) error {
	accounts, err := uc.savingsRepo.ListByMember(ctx, guarantorID)
	if err != nil {
		return err
	}

	available := decimal.Zero
	active := false
	for _, a := range accounts {
		if a.Status == domain.SavingsStatusActive {
			active = true
			available = available.Add(a.Available())
		}
	}

	if !active {
		return fmt.Errorf("%w: guarantor %s has no active savings", domain.ErrSavingsAccountNotFound, guarantorID)
	}
	if available.LessThan(amount) {
		return fmt.Errorf("%w: guarantor %s has %s available", domain.ErrInsufficientGuarantee, guarantorID, available.String())
	}
	return nil
}

// RespondToPledge lets the named guarantor accept or decline while the loan is a draft.
func (uc *GuarantorUseCase) RespondToPledge(ctx context.Context, loanID, pledgeID string, accept bool) (*domain.GuarantorPledge, error) {
	principal, ok := domain.PrincipalFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}

	var result *domain.GuarantorPledge
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

			pledge, err := uc.guarantorRepo.GetByIDForUpdate(txCtx, tx, pledgeID)
			if err != nil {
				return err
			}
			if pledge.LoanID != loan.ID {
				return domain.ErrPledgeNotFound
			}
			if pledge.GuarantorID != principal.MemberID {
				return domain.ErrUnauthorizedTransition
			}
			if loan.State != domain.LoanStateDraft {
				return domain.ErrInvalidTransition
			}

			now := uc.clock.Now()
			if err := pledge.Respond(accept, now); err != nil {
				return err
			}
			if err := uc.guarantorRepo.Update(txCtx, tx, pledge); err != nil {
				return err
			}

			event := &domain.OutboxEvent{
				ID:            uc.idGen.Generate(),
				AggregateID:   pledge.ID,
				AggregateType: domain.AggregateTypePledge,
				EventType:     domain.EventTypeGuarantorResponded,
				Payload: map[string]any{
					"pledge_id":    pledge.ID,
					"loan_id":      loan.ID,
					"guarantor_id": pledge.GuarantorID,
					"status":       string(pledge.Status),
				},
				CreatedAt: now,
			}
			if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
				return err
			}

			if err := tx.Commit(txCtx); err != nil {
				return err
			}
			result = pledge
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Str("loan_id", loanID).
		Str("pledge_id", pledgeID).
		Str("status", string(result.Status)).
		Msg("guarantor responded")

	return result, nil
}

// ListByLoan returns the pledges attached to a loan.
func (uc *GuarantorUseCase) ListByLoan(ctx context.Context, loanID string) ([]*domain.GuarantorPledge, error) {
	return uc.guarantorRepo.ListByLoan(ctx, loanID)
}

// TotalPledged sums the accepted and pending pledges on a loan.
func (uc *GuarantorUseCase) TotalPledged(ctx context.Context, loanID string) (decimal.Decimal, error) {
	pledges, err := uc.guarantorRepo.ListByLoan(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.SummarizePledges(pledges).Pledged, nil
}

// lockGuarantorFunds holds each accepted pledge against the guarantor's primary savings.
// Guarantors without a primary account are skipped with a warning.
func lockGuarantorFunds(ctx context.Context, tx Transaction, guarantorRepo GuarantorRepository, savingsRepo SavingsAccountRepository, loanID string, now time.Time) error {
	pledges, err := guarantorRepo.ListByLoanTx(ctx, tx, loanID)
	if err != nil {
		return err
	}

	for _, p := range pledges {
		if p.Status != domain.PledgeStatusAccepted {
			continue
		}

		acc, err := savingsRepo.GetPrimaryByMemberForUpdate(ctx, tx, p.GuarantorID)
		if errors.Is(err, domain.ErrSavingsAccountNotFound) {
			log.Ctx(ctx).Warn().
				Str("loan_id", loanID).
				Str("guarantor_id", p.GuarantorID).
				Msg("guarantor has no primary savings account, funds not locked")
			continue
		}
		if err != nil {
			return err
		}

		acc.Lock(p.Amount)
		acc.UpdatedAt = now
		if err := savingsRepo.Update(ctx, tx, acc); err != nil {
			return err
		}
	}

	return nil
}
