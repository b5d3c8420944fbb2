package handler

import (
	"context"
	"time"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

// LoanService is the loan workflow as seen by HTTP handlers.
type LoanService interface {
	CreateDraft(ctx context.Context, input usecase.CreateDraftInput) (*domain.LoanApplication, error)
	PayApplicationFee(ctx context.Context, loanID string, input usecase.PayFeeInput) (*domain.LoanApplication, error)
	Submit(ctx context.Context, loanID string) (*domain.LoanApplication, error)
	StartReview(ctx context.Context, loanID, comment string) (*domain.LoanApplication, error)
	Approve(ctx context.Context, loanID, comment string) (*domain.LoanApplication, error)
	Reject(ctx context.Context, loanID, reason string) (*domain.LoanApplication, error)
	Table(ctx context.Context, loanID string, meetingDate time.Time, comment string) (*domain.LoanApplication, error)
	OpenVoting(ctx context.Context, loanID string) (*domain.LoanApplication, error)
	CloseVoting(ctx context.Context, loanID string, input usecase.CloseVotingInput) (*domain.LoanApplication, error)
	FinalApprove(ctx context.Context, loanID, comment string) (*domain.LoanApplication, error)
	Disburse(ctx context.Context, loanID string, input usecase.DisburseInput) (*domain.LoanApplication, error)
	Get(ctx context.Context, loanID string) (*domain.LoanApplication, error)
	ListAudit(ctx context.Context, loanID string) ([]domain.AuditRecord, error)
	ListByBorrower(ctx context.Context, borrowerID string, limit, offset int) ([]*domain.LoanApplication, error)
	ListByState(ctx context.Context, state domain.LoanState, limit, offset int) ([]*domain.LoanApplication, error)
}

// GuarantorService manages guarantor pledges.
type GuarantorService interface {
	AddPledge(ctx context.Context, input usecase.AddPledgeInput) (*domain.GuarantorPledge, error)
	RespondToPledge(ctx context.Context, loanID, pledgeID string, accept bool) (*domain.GuarantorPledge, error)
	ListByLoan(ctx context.Context, loanID string) ([]*domain.GuarantorPledge, error)
}

// VotingService records committee ballots.
type VotingService interface {
	CastVote(ctx context.Context, loanID string, choice domain.VoteChoice) (*domain.VotingSession, error)
	GetOpenSession(ctx context.Context, loanID string) (*domain.VotingSession, error)
}

// AllocationService splits member deposits.
type AllocationService interface {
	Allocate(ctx context.Context, req domain.AllocationRequest) (*domain.Allocation, error)
	GetByReference(ctx context.Context, reference string) (*domain.Allocation, error)
	ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*domain.Allocation, error)
}

// JournalService is the read side of the general ledger.
type JournalService interface {
	ListBySource(ctx context.Context, sourceRef string) ([]*domain.JournalEntry, error)
	ListByEvent(ctx context.Context, input usecase.ListByEventInput) ([]*domain.JournalEntry, error)
	ListMappings(ctx context.Context) ([]*domain.GLMapping, error)
	CheckConsistency(ctx context.Context) (bool, error)
}
