package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
)

// LoanUseCase drives a loan application through the approval workflow.
type LoanUseCase struct {
	commands      *loanCommandRunner
	txManager     TransactionManager
	loanRepo      LoanRepository
	guarantorRepo GuarantorRepository
	savingsRepo   SavingsAccountRepository
	outboxRepo    OutboxRepository
	voting        *VotingUseCase
	allocations   *AllocationUseCase
	posting       *PostingUseCase
	idGen         IDGenerator
	clock         Clock
	policy        Policy
	metrics       *metrics.Metrics
}

// NewLoanUseCase creates a new LoanUseCase.
func NewLoanUseCase(deps WorkflowDeps, voting *VotingUseCase, allocations *AllocationUseCase, posting *PostingUseCase) *LoanUseCase {
	return &LoanUseCase{
		commands:      deps.runner(),
		txManager:     deps.TxManager,
		loanRepo:      deps.LoanRepo,
		guarantorRepo: deps.GuarantorRepo,
		savingsRepo:   deps.SavingsRepo,
		outboxRepo:    deps.OutboxRepo,
		voting:        voting,
		allocations:   allocations,
		posting:       posting,
		idGen:         deps.IDGen,
		clock:         deps.Clock,
		policy:        deps.Policy,
		metrics:       deps.Metrics,
	}
}

// CreateDraftInput represents input for starting a loan application.
type CreateDraftInput struct {
	ProductID        string
	Principal        decimal.Decimal
	DurationWeeks    int
	SavingsAccountID string
}

// CreateDraft opens a DRAFT application for the calling member. Principal is
// capped at the member's savings times the configured multiplier.
func (uc *LoanUseCase) CreateDraft(ctx context.Context, input CreateDraftInput) (*domain.LoanApplication, error) {
	principal, ok := domain.PrincipalFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}

	if err := domain.ValidateAmount(input.Principal); err != nil {
		return nil, err
	}
	if err := domain.ValidateDurationWeeks(input.DurationWeeks); err != nil {
		return nil, err
	}

	accounts, err := uc.savingsRepo.ListByMember(ctx, principal.MemberID)
	if err != nil {
		return nil, err
	}

	savings := decimal.Zero
	var disburseTo *domain.SavingsAccount
	for _, a := range accounts {
		if a.Status != domain.SavingsStatusActive {
			continue
		}
		savings = savings.Add(a.Balance)
		if a.ID == input.SavingsAccountID || (input.SavingsAccountID == "" && a.Primary) {
			disburseTo = a
		}
	}
	if disburseTo == nil {
		return nil, fmt.Errorf("%w: no active disbursement account for member %s", domain.ErrSavingsAccountNotFound, principal.MemberID)
	}

	if limit, capped := domain.MaxEligiblePrincipal(savings, uc.policy.SavingsMultiplier); capped && input.Principal.GreaterThan(limit) {
		return nil, fmt.Errorf("%w: limit is %s", domain.ErrEligibilityExceeded, limit.String())
	}

	now := uc.clock.Now()
	id := uc.idGen.Generate()
	loan := &domain.LoanApplication{
		ID:                 id,
		LoanNumber:         loanNumber(id, now),
		BorrowerID:         principal.MemberID,
		ProductID:          input.ProductID,
		SavingsAccountID:   disburseTo.ID,
		Principal:          input.Principal,
		OutstandingBalance: decimal.Zero,
		DurationWeeks:      input.DurationWeeks,
		State:              domain.LoanStateDraft,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.loanRepo.Create(txCtx, tx, loan); err != nil {
		return nil, err
	}

	record := &domain.AuditRecord{
		ID:        uc.idGen.Generate(),
		LoanID:    loan.ID,
		Action:    domain.ActionCreate,
		FromState: domain.LoanStateDraft,
		ToState:   domain.LoanStateDraft,
		ActorID:   principal.MemberID,
		ActorRole: principal.Role,
		Comment:   "application created for " + loan.Principal.String(),
		CreatedAt: now,
	}
	if err := uc.loanRepo.AppendAudit(txCtx, tx, record); err != nil {
		return nil, err
	}

	event := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   loan.ID,
		AggregateType: domain.AggregateTypeLoan,
		EventType:     domain.EventTypeLoanCreated,
		Payload: map[string]any{
			"loan_id":     loan.ID,
			"loan_number": loan.LoanNumber,
			"borrower_id": loan.BorrowerID,
			"principal":   loan.Principal.String(),
		},
		CreatedAt: now,
	}
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.LoansCreated.Inc()
	}

	log.Ctx(ctx).Info().
		Str("loan_id", loan.ID).
		Str("loan_number", loan.LoanNumber).
		Str("borrower_id", loan.BorrowerID).
		Str("principal", loan.Principal.String()).
		Msg("loan draft created")

	loan.AuditTrail = []domain.AuditRecord{*record}
	return loan, nil
}

// PayFeeInput describes how the borrower paid the application fee.
type PayFeeInput struct {
	Method           domain.PaymentMethod
	PaymentReference string
	BankAccountCode  string
}

// PayApplicationFee posts the configured fee through the allocator and marks the draft paid.
func (uc *LoanUseCase) PayApplicationFee(ctx context.Context, loanID string, input PayFeeInput) (*domain.LoanApplication, error) {
	return uc.commands.run(ctx, loanID, domain.ActionPayFee, func(ctx context.Context, tx Transaction, loan *domain.LoanApplication, _ domain.TransitionRule) (*commandResult, error) {
		if loan.FeePaid {
			return nil, domain.ErrFeeAlreadyPaid
		}
		fee := uc.policy.ApplicationFee
		if !fee.IsPositive() {
			return nil, fmt.Errorf("%w: no application fee is configured", domain.ErrInvalidAmount)
		}

		allocation, err := uc.allocations.allocateTx(ctx, tx, domain.AllocationRequest{
			MemberID:         loan.BorrowerID,
			Total:            fee,
			Method:           input.Method,
			PaymentReference: input.PaymentReference,
			BankAccountCode:  input.BankAccountCode,
			Direction:        domain.AllocationInflow,
			Notes:            "application fee for " + loan.LoanNumber,
			Lines:            []domain.AllocationLine{domain.ProcessingFeeLine{LoanID: loan.ID, Amount: fee}},
		})
		if err != nil {
			return nil, err
		}

		// The allocator persisted the fee flag; continue from the stored row.
		fresh, err := uc.loanRepo.GetByIDForUpdate(ctx, tx, loan.ID)
		if err != nil {
			return nil, err
		}
		*loan = *fresh

		return &commandResult{Comment: "application fee paid, allocation " + allocation.Reference}, nil
	})
}

// Submit sends a draft for review once guarantees cover the principal.
func (uc *LoanUseCase) Submit(ctx context.Context, loanID string) (*domain.LoanApplication, error) {
	return uc.commands.run(ctx, loanID, domain.ActionSubmit, func(ctx context.Context, tx Transaction, loan *domain.LoanApplication, _ domain.TransitionRule) (*commandResult, error) {
		if uc.policy.ApplicationFee.IsPositive() && !loan.FeePaid {
			return nil, domain.ErrApplicationFeeUnpaid
		}

		pledges, err := uc.guarantorRepo.ListByLoanTx(ctx, tx, loan.ID)
		if err != nil {
			return nil, err
		}

		coverage := domain.SummarizePledges(pledges)
		if err := coverage.Covers(loan.Principal, uc.policy.MinGuaranteeRatio); err != nil {
			return nil, fmt.Errorf("%w: accepted %s of %s required, %d pending",
				err, coverage.Accepted.String(), loan.Principal.Mul(uc.policy.MinGuaranteeRatio).String(), coverage.Pending)
		}

		return &commandResult{Comment: "submitted with " + coverage.Accepted.String() + " guaranteed"}, nil
	})
}

// StartReview moves a submitted application into loan officer review.
func (uc *LoanUseCase) StartReview(ctx context.Context, loanID, comment string) (*domain.LoanApplication, error) {
	return uc.commands.run(ctx, loanID, domain.ActionStartReview, commentOnly(comment))
}

// Approve records the loan officer's recommendation and tables the application.
func (uc *LoanUseCase) Approve(ctx context.Context, loanID, comment string) (*domain.LoanApplication, error) {
	return uc.commands.run(ctx, loanID, domain.ActionApprove, commentOnly(comment))
}

// Reject ends the application. Whoever owns the current stage may reject;
// the borrower may withdraw a draft.
func (uc *LoanUseCase) Reject(ctx context.Context, loanID, reason string) (*domain.LoanApplication, error) {
	return uc.commands.run(ctx, loanID, domain.ActionReject, func(_ context.Context, _ Transaction, loan *domain.LoanApplication, _ domain.TransitionRule) (*commandResult, error) {
		if err := domain.ValidateComment(reason); err != nil {
			return nil, err
		}
		loan.RejectionReason = reason
		return &commandResult{Comment: reason}, nil
	})
}

// Table schedules the application for a committee meeting on or after today.
func (uc *LoanUseCase) Table(ctx context.Context, loanID string, meetingDate time.Time, comment string) (*domain.LoanApplication, error) {
	if meetingDate.IsZero() {
		return nil, domain.ErrInvalidMeetingDay
	}

	return uc.commands.run(ctx, loanID, domain.ActionTable, func(_ context.Context, _ Transaction, loan *domain.LoanApplication, _ domain.TransitionRule) (*commandResult, error) {
		if err := domain.ValidateComment(comment); err != nil {
			return nil, err
		}

		today := truncateDay(uc.clock.Now())
		day := truncateDay(meetingDate)
		if day.Before(today) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMeetingDateInPast, day.Format(time.DateOnly))
		}

		loan.MeetingDate = &day
		return &commandResult{Comment: joinComment("meeting on "+day.Format(time.DateOnly), comment)}, nil
	})
}

// OpenVoting starts the committee vote.
func (uc *LoanUseCase) OpenVoting(ctx context.Context, loanID string) (*domain.LoanApplication, error) {
	return uc.commands.run(ctx, loanID, domain.ActionOpenVoting, func(ctx context.Context, tx Transaction, loan *domain.LoanApplication, _ domain.TransitionRule) (*commandResult, error) {
		p, _ := domain.PrincipalFromContext(ctx)
		session, err := uc.voting.Open(ctx, tx, loan.ID, p.MemberID)
		if err != nil {
			return nil, err
		}
		return &commandResult{Comment: "voting session " + session.ID + " opened"}, nil
	})
}

// CloseVotingInput carries the chair's closing decision.
type CloseVotingInput struct {
	// Override replaces the computed outcome, e.g. after a voice vote.
	Override *domain.VoteOutcome
	Comments string
}

// CloseVoting tears the session down and advances on APPROVED, rejects otherwise.
func (uc *LoanUseCase) CloseVoting(ctx context.Context, loanID string, input CloseVotingInput) (*domain.LoanApplication, error) {
	if input.Override != nil && *input.Override != domain.VoteOutcomeApproved && *input.Override != domain.VoteOutcomeRejected {
		return nil, domain.ErrInvalidVoteChoice
	}

	return uc.commands.run(ctx, loanID, domain.ActionCloseVoting, func(ctx context.Context, tx Transaction, loan *domain.LoanApplication, _ domain.TransitionRule) (*commandResult, error) {
		if err := domain.ValidateComment(input.Comments); err != nil {
			return nil, err
		}

		p, _ := domain.PrincipalFromContext(ctx)
		session, err := uc.voting.Close(ctx, tx, loan.ID, p.MemberID, input.Override)
		if err != nil {
			return nil, err
		}

		yes, no := session.Tally()
		loan.VotesYes = yes
		loan.VotesNo = no
		loan.VoteOutcome = session.Result
		loan.DecisionComments = input.Comments

		summary := fmt.Sprintf("outcome %s (%d yes, %d no)", session.Result, yes, no)
		if input.Override != nil {
			summary += " by chair override"
		}

		res := &commandResult{Comment: joinComment(summary, input.Comments)}
		if session.Result != domain.VoteOutcomeApproved {
			res.Next = domain.LoanStateRejected
			loan.RejectionReason = "rejected by committee vote"
		}
		return res, nil
	})
}

// FinalApprove records the secretary's decision and hands the loan to the treasurer.
func (uc *LoanUseCase) FinalApprove(ctx context.Context, loanID, comment string) (*domain.LoanApplication, error) {
	return uc.commands.run(ctx, loanID, domain.ActionFinalApprove, commentOnly(comment))
}

// DisburseInput identifies the payment that released the funds.
type DisburseInput struct {
	Reference string
	Method    domain.PaymentMethod
}

// Disburse credits the borrower's savings, posts exactly one LOAN_DISBURSEMENT
// entry and locks guarantor funds. A second call fails with domain.ErrAlreadyDisbursed.
func (uc *LoanUseCase) Disburse(ctx context.Context, loanID string, input DisburseInput) (*domain.LoanApplication, error) {
	if err := domain.ValidateReference(input.Reference); err != nil {
		return nil, err
	}
	if input.Method == "" {
		input.Method = domain.PaymentMethodBank
	}

	loan, err := uc.commands.run(ctx, loanID, domain.ActionDisburse, func(ctx context.Context, tx Transaction, loan *domain.LoanApplication, _ domain.TransitionRule) (*commandResult, error) {
		p, _ := domain.PrincipalFromContext(ctx)

		allocation, err := uc.allocations.allocateTx(ctx, tx, domain.AllocationRequest{
			MemberID:         loan.BorrowerID,
			Total:            loan.Principal,
			Method:           input.Method,
			PaymentReference: input.Reference,
			Direction:        domain.AllocationOutflow,
			Notes:            "disbursement of " + loan.LoanNumber,
			Lines: []domain.AllocationLine{
				domain.SavingsLine{AccountID: loan.SavingsAccountID, Amount: loan.Principal},
			},
		})
		if err != nil {
			return nil, err
		}

		entry, err := uc.posting.Post(ctx, tx, PostInput{
			EventName:   domain.EventLoanDisbursement,
			Amount:      loan.Principal,
			Description: "disbursement of " + loan.LoanNumber + " ref " + input.Reference,
			SourceRef:   loan.ID,
		})
		if err != nil {
			return nil, err
		}

		now := uc.clock.Now()
		if err := lockGuarantorFunds(ctx, tx, uc.guarantorRepo, uc.savingsRepo, loan.ID, now); err != nil {
			return nil, err
		}

		loan.DisbursedAt = &now
		loan.DisbursedBy = p.MemberID
		loan.DisbursementRef = input.Reference
		loan.DisbursementMethod = input.Method
		loan.OutstandingBalance = loan.Principal

		disbursed := &domain.OutboxEvent{
			ID:            uc.idGen.Generate(),
			AggregateID:   loan.ID,
			AggregateType: domain.AggregateTypeLoan,
			EventType:     domain.EventTypeLoanDisbursed,
			Payload: domain.LoanDisbursedEvent{
				LoanID:         loan.ID,
				BorrowerID:     loan.BorrowerID,
				Amount:         loan.Principal.String(),
				Reference:      input.Reference,
				JournalEntryID: entry.ID,
			}.Payload(),
			CreatedAt: now,
		}

		return &commandResult{
			Comment: fmt.Sprintf("disbursed via %s ref %s, allocation %s, journal entry %s", input.Method, input.Reference, allocation.Reference, entry.ID),
			Events:  []*domain.OutboxEvent{disbursed},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.Disbursements.Inc()
		uc.metrics.DisbursedAmount.Observe(loan.Principal.InexactFloat64())
	}

	return loan, nil
}

// Get returns a loan with its audit trail.
func (uc *LoanUseCase) Get(ctx context.Context, loanID string) (*domain.LoanApplication, error) {
	loan, err := uc.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	trail, err := uc.loanRepo.ListAudit(ctx, loanID)
	if err != nil {
		return nil, err
	}
	loan.AuditTrail = trail

	return loan, nil
}

// ListAudit returns a loan's audit trail in order.
func (uc *LoanUseCase) ListAudit(ctx context.Context, loanID string) ([]domain.AuditRecord, error) {
	if _, err := uc.loanRepo.GetByID(ctx, loanID); err != nil {
		return nil, err
	}
	return uc.loanRepo.ListAudit(ctx, loanID)
}

// ListByBorrower lists a member's applications.
func (uc *LoanUseCase) ListByBorrower(ctx context.Context, borrowerID string, limit, offset int) ([]*domain.LoanApplication, error) {
	limit, offset, _ = domain.ValidatePagination(limit, offset)
	return uc.loanRepo.ListByBorrower(ctx, borrowerID, limit, offset)
}

// ListByState lists applications waiting at a workflow stage.
func (uc *LoanUseCase) ListByState(ctx context.Context, state domain.LoanState, limit, offset int) ([]*domain.LoanApplication, error) {
	if !state.IsValid() {
		return nil, domain.ErrInvalidTransition
	}
	limit, offset, _ = domain.ValidatePagination(limit, offset)
	return uc.loanRepo.ListByState(ctx, state, limit, offset)
}

func commentOnly(comment string) loanCommand {
	return func(_ context.Context, _ Transaction, _ *domain.LoanApplication, _ domain.TransitionRule) (*commandResult, error) {
		if err := domain.ValidateComment(comment); err != nil {
			return nil, err
		}
		return &commandResult{Comment: comment}, nil
	}
}

func joinComment(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func loanNumber(id string, at time.Time) string {
	suffix := id
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return LoanNumberPrefix + at.Format("20060102") + "-" + strings.ToUpper(suffix)
}
