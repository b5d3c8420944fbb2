package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
)

// AllocationUseCase splits a member deposit across sub-ledgers atomically.
type AllocationUseCase struct {
	txManager      TransactionManager
	retrier        Retrier
	validator      *AllocationValidator
	posting        *PostingUseCase
	savingsRepo    SavingsAccountRepository
	loanRepo       LoanRepository
	fineRepo       FineRepository
	productRepo    ContributionProductRepository
	shareRepo      ShareCapitalRepository
	allocationRepo AllocationRepository
	outboxRepo     OutboxRepository
	idGen          IDGenerator
	clock          Clock
	policy         Policy
	metrics        *metrics.Metrics
}

// AllocationDeps groups the collaborators of AllocationUseCase.
type AllocationDeps struct {
	TxManager      TransactionManager
	Retrier        Retrier
	Validator      *AllocationValidator
	Posting        *PostingUseCase
	SavingsRepo    SavingsAccountRepository
	LoanRepo       LoanRepository
	FineRepo       FineRepository
	ProductRepo    ContributionProductRepository
	ShareRepo      ShareCapitalRepository
	AllocationRepo AllocationRepository
	OutboxRepo     OutboxRepository
	IDGen          IDGenerator
	Clock          Clock
	Policy         Policy
	Metrics        *metrics.Metrics
}

// NewAllocationUseCase creates a new AllocationUseCase.
func NewAllocationUseCase(deps AllocationDeps) *AllocationUseCase {
	return &AllocationUseCase{
		txManager:      deps.TxManager,
		retrier:        deps.Retrier,
		validator:      deps.Validator,
		posting:        deps.Posting,
		savingsRepo:    deps.SavingsRepo,
		loanRepo:       deps.LoanRepo,
		fineRepo:       deps.FineRepo,
		productRepo:    deps.ProductRepo,
		shareRepo:      deps.ShareRepo,
		allocationRepo: deps.AllocationRepo,
		outboxRepo:     deps.OutboxRepo,
		idGen:          deps.IDGen,
		clock:          deps.Clock,
		policy:         deps.Policy,
		metrics:        deps.Metrics,
	}
}

// Allocate validates and applies req in a single transaction. Either every
// line posts or none does. The returned allocation carries a fresh reference.
// The depositing member defaults to the caller; only a treasurer may deposit
// for someone else. Application fees go through LoanUseCase.PayApplicationFee.
func (uc *AllocationUseCase) Allocate(ctx context.Context, req domain.AllocationRequest) (*domain.Allocation, error) {
	start := time.Now()
	if req.Direction == "" {
		req.Direction = domain.AllocationInflow
	}

	// 0. Validate before starting transaction
	if err := resolveDepositor(ctx, &req); err != nil {
		uc.recordFailure(err)
		return nil, err
	}
	if err := rejectFeeLines(req); err != nil {
		uc.recordFailure(err)
		return nil, err
	}
	if err := uc.validator.ValidateRequest(ctx, req); err != nil {
		uc.recordFailure(err)
		return nil, err
	}

	var result *domain.Allocation
	err := withRetry(ctx, uc.retrier, func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		allocation, err := uc.allocateTx(txCtx, tx, req)
		if err != nil {
			return err
		}

		if err := tx.Commit(txCtx); err != nil {
			return err
		}

		result = allocation
		return nil
	})
	if err != nil {
		uc.recordFailure(err)
		log.Ctx(ctx).Warn().Err(err).
			Str("member_id", req.MemberID).
			Str("total", req.Total.String()).
			Msg("allocation rejected")
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AllocationsPosted.WithLabelValues(string(req.Direction)).Inc()
		uc.metrics.AllocationAmount.Observe(result.Total.InexactFloat64())
		uc.metrics.AllocationDuration.Observe(time.Since(start).Seconds())
	}

	log.Ctx(ctx).Info().
		Str("reference", result.Reference).
		Str("member_id", result.MemberID).
		Str("total", result.Total.String()).
		Int("lines", len(result.Postings)).
		Msg("allocation posted")

	return result, nil
}

// allocateTx applies req inside a caller-owned transaction.
func (uc *AllocationUseCase) allocateTx(ctx context.Context, tx Transaction, req domain.AllocationRequest) (*domain.Allocation, error) {
	if err := uc.validator.ValidateRequest(ctx, req); err != nil {
		return nil, err
	}

	// 1. Lock destinations and validate every line before mutating anything
	targets, err := uc.validator.Resolve(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	reference := AllocationReferencePrefix + uc.idGen.Generate()

	var shares *domain.ShareCapital
	postings := make([]domain.AllocationPosting, 0, len(req.Lines))

	// Only a validated receiving account may replace the mapped debit.
	debitOverride := ""
	if req.Method.RequiresBankAccount() {
		debitOverride = req.BankAccountCode
	}

	// 2. Apply each line in memory and post its GL event
	for i, line := range req.Lines {
		switch l := line.(type) {
		case domain.SavingsLine:
			targets.savings[l.AccountID].ApplyCredit(l.Amount)
		case domain.LoanRepaymentLine:
			targets.loans[l.LoanID].ApplyRepayment(l.Amount)
		case domain.FineLine:
			targets.fines[l.FineID].ApplyPayment(l.Amount)
		case domain.ContributionLine:
			targets.products[l.ProductID].ApplyContribution(l.Amount)
		case domain.ShareCapitalLine:
			if shares == nil {
				shares, err = uc.loadShares(ctx, tx, req.MemberID, now)
				if err != nil {
					return nil, err
				}
			}
			shares.ApplyContribution(l.Amount)
		case domain.ProcessingFeeLine:
			targets.loans[l.LoanID].FeePaid = true
		}

		posting := domain.AllocationPosting{
			Index:       i,
			Destination: line.Destination(),
			TargetID:    line.Target(),
			Amount:      line.LineAmount(),
		}

		if req.Direction == domain.AllocationInflow {
			event, _ := domain.EventForDestination(line.Destination())
			entry, err := uc.posting.Post(ctx, tx, PostInput{
				EventName:            event,
				Amount:               line.LineAmount(),
				Description:          describeLine(req, line),
				SourceRef:            reference,
				DebitAccountOverride: debitOverride,
			})
			if err != nil {
				return nil, err
			}
			posting.JournalEntryID = entry.ID
		}

		postings = append(postings, posting)
	}

	// 3. Persist touched sub-ledger rows
	if err := uc.persist(ctx, tx, targets, shares, now); err != nil {
		return nil, err
	}

	actor := SystemActor
	if p, ok := domain.PrincipalFromContext(ctx); ok {
		actor = p.MemberID
	}

	// Total records the journaled sum; a residue below epsilon is not booked.
	allocation := &domain.Allocation{
		ID:               uc.idGen.Generate(),
		Reference:        reference,
		MemberID:         req.MemberID,
		Total:            req.LinesTotal(),
		Method:           req.Method,
		PaymentReference: req.PaymentReference,
		BankAccountCode:  req.BankAccountCode,
		Direction:        req.Direction,
		Notes:            req.Notes,
		Postings:         postings,
		CreatedBy:        actor,
		CreatedAt:        now,
	}
	if err := uc.allocationRepo.Create(ctx, tx, allocation); err != nil {
		return nil, err
	}

	event := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   allocation.Reference,
		AggregateType: domain.AggregateTypeAllocation,
		EventType:     domain.EventTypeAllocationPosted,
		Payload: domain.AllocationPostedEvent{
			Reference: allocation.Reference,
			MemberID:  allocation.MemberID,
			Total:     allocation.Total.String(),
			Lines:     len(allocation.Postings),
		}.Payload(),
		CreatedAt: now,
	}
	if err := uc.outboxRepo.Create(ctx, tx, event); err != nil {
		return nil, err
	}

	return allocation, nil
}

func (uc *AllocationUseCase) loadShares(ctx context.Context, tx Transaction, memberID string, now time.Time) (*domain.ShareCapital, error) {
	shares, err := uc.shareRepo.GetByMemberForUpdate(ctx, tx, memberID)
	if errors.Is(err, domain.ErrShareCapitalNotFound) {
		return &domain.ShareCapital{
			ID:         uc.idGen.Generate(),
			MemberID:   memberID,
			PaidAmount: decimal.Zero,
			ShareValue: uc.policy.ShareValue,
			UpdatedAt:  now,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return shares, nil
}

func (uc *AllocationUseCase) persist(ctx context.Context, tx Transaction, t *allocationTargets, shares *domain.ShareCapital, now time.Time) error {
	for _, id := range sortedKeys(t.savings) {
		acc := t.savings[id]
		acc.UpdatedAt = now
		if err := uc.savingsRepo.Update(ctx, tx, acc); err != nil {
			return err
		}
	}

	for _, id := range sortedKeys(t.loans) {
		loan := t.loans[id]
		loan.UpdatedAt = now
		if err := uc.loanRepo.Update(ctx, tx, loan); err != nil {
			return err
		}
	}

	for _, id := range sortedKeys(t.fines) {
		fine := t.fines[id]
		fine.UpdatedAt = now
		if err := uc.fineRepo.Update(ctx, tx, fine); err != nil {
			return err
		}
	}

	for _, id := range sortedKeys(t.products) {
		product := t.products[id]
		product.UpdatedAt = now
		if err := uc.productRepo.Update(ctx, tx, product); err != nil {
			return err
		}
	}

	if shares != nil {
		shares.UpdatedAt = now
		if err := uc.shareRepo.Upsert(ctx, tx, shares); err != nil {
			return err
		}
	}

	return nil
}

// GetByReference returns a posted allocation.
func (uc *AllocationUseCase) GetByReference(ctx context.Context, reference string) (*domain.Allocation, error) {
	return uc.allocationRepo.GetByReference(ctx, reference)
}

// ListByMember lists a member's allocations, newest first.
func (uc *AllocationUseCase) ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*domain.Allocation, error) {
	limit, offset, _ = domain.ValidatePagination(limit, offset)
	return uc.allocationRepo.ListByMember(ctx, memberID, limit, offset)
}

func resolveDepositor(ctx context.Context, req *domain.AllocationRequest) error {
	p, ok := domain.PrincipalFromContext(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}
	if req.MemberID == "" {
		req.MemberID = p.MemberID
		return nil
	}
	if req.MemberID != p.MemberID && p.Role != domain.RoleTreasurer {
		return fmt.Errorf("%w: %s depositing for %s", domain.ErrDepositorMismatch, p.MemberID, req.MemberID)
	}
	return nil
}

// rejectFeeLines keeps fee payments on the audited loan command path.
func rejectFeeLines(req domain.AllocationRequest) error {
	for i, line := range req.Lines {
		if l, ok := line.(domain.ProcessingFeeLine); ok {
			return &domain.DestinationError{
				Index:       i,
				Destination: domain.DestinationProcessingFee,
				TargetID:    l.LoanID,
				Reason:      "application fees are paid through the loan fee command",
			}
		}
	}
	return nil
}

func (uc *AllocationUseCase) recordFailure(err error) {
	if uc.metrics != nil {
		uc.metrics.AllocationErrors.WithLabelValues(domain.ErrorCode(err)).Inc()
	}
}

func describeLine(req domain.AllocationRequest, line domain.AllocationLine) string {
	desc := fmt.Sprintf("%s %s via %s", line.Destination(), line.Target(), req.Method)
	if req.PaymentReference != "" {
		desc += " ref " + req.PaymentReference
	}
	return desc
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
