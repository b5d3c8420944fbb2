package usecase_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/adapter/repository/memory"
	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
	"github.com/iho/saccogov/internal/usecase"
)

const (
	borrowerID  = "m-borrower"
	guarantor1  = "m-guarantor-1"
	guarantor2  = "m-guarantor-2"
	officerID   = "m-officer"
	secretaryID = "m-secretary"
	chairID     = "m-chair"
	treasurerID = "m-treasurer"
	voter1      = "m-voter-1"
	voter2      = "m-voter-2"
	voter3      = "m-voter-3"
)

var workflowNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type sequenceIDs struct{ n atomic.Int64 }

func (s *sequenceIDs) Generate() string {
	return fmt.Sprintf("ID%08d", s.n.Add(1))
}

type workflow struct {
	store       *memory.Store
	txManager   *memory.TxManager
	loanRepo    *memory.LoanRepository
	savingsRepo *memory.SavingsAccountRepository
	fineRepo    *memory.FineRepository
	shareRepo   *memory.ShareCapitalRepository
	productRepo *memory.ContributionProductRepository
	outboxRepo  *memory.OutboxRepository

	loans       *usecase.LoanUseCase
	guarantors  *usecase.GuarantorUseCase
	voting      *usecase.VotingUseCase
	allocations *usecase.AllocationUseCase
	journal     *usecase.JournalUseCase
	policy      usecase.Policy
}

func newWorkflow(t *testing.T, configure func(*usecase.Policy)) *workflow {
	t.Helper()

	policy := usecase.DefaultPolicy()
	if configure != nil {
		configure(&policy)
	}

	store := memory.NewStore()
	txManager := memory.NewTxManager(store)
	locker := memory.NewKeyedLocker()
	ids := &sequenceIDs{}
	clock := fixedClock{now: workflowNow}
	m := metrics.New(prometheus.NewRegistry())

	loanRepo := memory.NewLoanRepository(store)
	guarantorRepo := memory.NewGuarantorRepository(store)
	sessionRepo := memory.NewVotingSessionRepository(store)
	savingsRepo := memory.NewSavingsAccountRepository(store)
	fineRepo := memory.NewFineRepository(store)
	productRepo := memory.NewContributionProductRepository(store)
	shareRepo := memory.NewShareCapitalRepository(store)
	bankRepo := memory.NewBankAccountRepository(store)
	mappingRepo := memory.NewGLMappingRepository(store)
	journalRepo := memory.NewJournalRepository(store)
	allocationRepo := memory.NewAllocationRepository(store)
	outboxRepo := memory.NewOutboxRepository(store)

	posting := usecase.NewPostingUseCase(mappingRepo, journalRepo, ids, clock, m)
	validator := usecase.NewAllocationValidator(savingsRepo, loanRepo, fineRepo, productRepo, bankRepo, policy)
	allocations := usecase.NewAllocationUseCase(usecase.AllocationDeps{
		TxManager:      txManager,
		Validator:      validator,
		Posting:        posting,
		SavingsRepo:    savingsRepo,
		LoanRepo:       loanRepo,
		FineRepo:       fineRepo,
		ProductRepo:    productRepo,
		ShareRepo:      shareRepo,
		AllocationRepo: allocationRepo,
		OutboxRepo:     outboxRepo,
		IDGen:          ids,
		Clock:          clock,
		Policy:         policy,
		Metrics:        m,
	})
	voting := usecase.NewVotingUseCase(txManager, nil, locker, loanRepo, sessionRepo, ids, clock, policy, m)

	deps := usecase.WorkflowDeps{
		TxManager:     txManager,
		Locker:        locker,
		LoanRepo:      loanRepo,
		GuarantorRepo: guarantorRepo,
		SavingsRepo:   savingsRepo,
		OutboxRepo:    outboxRepo,
		IDGen:         ids,
		Clock:         clock,
		Policy:        policy,
		Metrics:       m,
	}

	w := &workflow{
		store:       store,
		txManager:   txManager,
		loanRepo:    loanRepo,
		savingsRepo: savingsRepo,
		fineRepo:    fineRepo,
		shareRepo:   shareRepo,
		productRepo: productRepo,
		outboxRepo:  outboxRepo,
		loans:       usecase.NewLoanUseCase(deps, voting, allocations, posting),
		guarantors:  usecase.NewGuarantorUseCase(deps),
		voting:      voting,
		allocations: allocations,
		journal:     usecase.NewJournalUseCase(journalRepo, mappingRepo),
		policy:      policy,
	}

	w.putSavings("sav-borrower", borrowerID, 20000)
	w.putSavings("sav-guarantor-1", guarantor1, 30000)
	w.putSavings("sav-guarantor-2", guarantor2, 30000)
	store.PutBankAccount(domain.BankAccount{Code: "1031", Name: "Equity Bank", Active: true})

	return w
}

func (w *workflow) putSavings(id, memberID string, balance int64) {
	w.store.PutSavingsAccount(domain.SavingsAccount{
		ID:            id,
		MemberID:      memberID,
		AccountNumber: "SAV-" + id,
		Balance:       decimal.NewFromInt(balance),
		LockedAmount:  decimal.Zero,
		Status:        domain.SavingsStatusActive,
		Primary:       true,
		Version:       1,
		CreatedAt:     workflowNow,
		UpdatedAt:     workflowNow,
	})
}

func as(memberID string, role domain.Role) context.Context {
	return domain.WithPrincipal(context.Background(), domain.Principal{MemberID: memberID, Role: role})
}

func borrower() context.Context  { return as(borrowerID, domain.RoleMember) }
func officer() context.Context   { return as(officerID, domain.RoleLoanOfficer) }
func secretary() context.Context { return as(secretaryID, domain.RoleSecretary) }
func chair() context.Context     { return as(chairID, domain.RoleChairperson) }
func treasurer() context.Context { return as(treasurerID, domain.RoleTreasurer) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// draft creates a 50,000 application for the borrower.
func (w *workflow) draft(t *testing.T) *domain.LoanApplication {
	t.Helper()
	loan, err := w.loans.CreateDraft(borrower(), usecase.CreateDraftInput{
		ProductID:     "normal-loan",
		Principal:     decimal.NewFromInt(50000),
		DurationWeeks: 52,
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	return loan
}

// guarantee pledges the full principal across two guarantors who both accept.
func (w *workflow) guarantee(t *testing.T, loanID string) {
	t.Helper()
	for _, g := range []string{guarantor1, guarantor2} {
		pledge, err := w.guarantors.AddPledge(borrower(), usecase.AddPledgeInput{
			LoanID:      loanID,
			GuarantorID: g,
			Amount:      decimal.NewFromInt(25000),
		})
		if err != nil {
			t.Fatalf("add pledge %s: %v", g, err)
		}
		if _, err := w.guarantors.RespondToPledge(as(g, domain.RoleMember), loanID, pledge.ID, true); err != nil {
			t.Fatalf("accept pledge %s: %v", g, err)
		}
	}
}

// driveTo advances a fresh application until it reaches target.
func (w *workflow) driveTo(t *testing.T, target domain.LoanState) *domain.LoanApplication {
	t.Helper()

	loan := w.draft(t)
	if target == domain.LoanStateDraft {
		return loan
	}
	w.guarantee(t, loan.ID)

	meeting := workflowNow.AddDate(0, 0, 7)
	steps := []struct {
		reached domain.LoanState
		run     func() (*domain.LoanApplication, error)
	}{
		{domain.LoanStateSubmitted, func() (*domain.LoanApplication, error) { return w.loans.Submit(borrower(), loan.ID) }},
		{domain.LoanStateLoanOfficerReview, func() (*domain.LoanApplication, error) { return w.loans.StartReview(officer(), loan.ID, "") }},
		{domain.LoanStateSecretaryTabled, func() (*domain.LoanApplication, error) {
			return w.loans.Approve(officer(), loan.ID, "savings history is good")
		}},
		{domain.LoanStateOnAgenda, func() (*domain.LoanApplication, error) { return w.loans.Table(secretary(), loan.ID, meeting, "") }},
		{domain.LoanStateVotingOpen, func() (*domain.LoanApplication, error) { return w.loans.OpenVoting(chair(), loan.ID) }},
		{domain.LoanStateSecretaryDecision, func() (*domain.LoanApplication, error) {
			for _, v := range []string{voter1, voter2} {
				if _, err := w.voting.CastVote(as(v, domain.RoleMember), loan.ID, domain.VoteYes); err != nil {
					return nil, err
				}
			}
			return w.loans.CloseVoting(chair(), loan.ID, usecase.CloseVotingInput{Comments: "carried"})
		}},
		{domain.LoanStateTreasurerDisbursement, func() (*domain.LoanApplication, error) { return w.loans.FinalApprove(secretary(), loan.ID, "") }},
		{domain.LoanStateDisbursed, func() (*domain.LoanApplication, error) {
			return w.loans.Disburse(treasurer(), loan.ID, usecase.DisburseInput{Reference: "CHQ-1", Method: domain.PaymentMethodCheque})
		}},
	}

	for _, step := range steps {
		next, err := step.run()
		if err != nil {
			t.Fatalf("advance to %s: %v", step.reached, err)
		}
		if next.State != step.reached {
			t.Fatalf("expected %s, got %s", step.reached, next.State)
		}
		loan = next
		if step.reached == target {
			return loan
		}
	}

	t.Fatalf("state %s is not reachable on the happy path", target)
	return nil
}
