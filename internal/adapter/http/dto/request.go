package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

// CreateLoanRequest represents a request to open a draft application.
type CreateLoanRequest struct {
	ProductID        string          `json:"product_id"`
	Principal        decimal.Decimal `json:"principal"`
	DurationWeeks    int             `json:"duration_weeks"`
	SavingsAccountID string          `json:"savings_account_id,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateLoanRequest) ToUseCaseInput() usecase.CreateDraftInput {
	return usecase.CreateDraftInput{
		ProductID:        r.ProductID,
		Principal:        r.Principal,
		DurationWeeks:    r.DurationWeeks,
		SavingsAccountID: r.SavingsAccountID,
	}
}

// PayFeeRequest represents the borrower's application fee payment.
type PayFeeRequest struct {
	Method           string `json:"method"`
	PaymentReference string `json:"payment_reference"`
	BankAccountCode  string `json:"bank_account_code,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *PayFeeRequest) ToUseCaseInput() usecase.PayFeeInput {
	return usecase.PayFeeInput{
		Method:           domain.PaymentMethod(r.Method),
		PaymentReference: r.PaymentReference,
		BankAccountCode:  r.BankAccountCode,
	}
}

// CommentRequest carries an optional reviewer comment.
type CommentRequest struct {
	Comment string `json:"comment,omitempty"`
}

// RejectRequest carries the reason recorded on the audit trail.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// TableRequest schedules an application for a committee meeting.
type TableRequest struct {
	MeetingDate time.Time `json:"meeting_date"`
	Comment     string    `json:"comment,omitempty"`
}

// CloseVotingRequest closes the open session. Outcome overrides the tally.
type CloseVotingRequest struct {
	Outcome  string `json:"outcome,omitempty"`
	Comments string `json:"comments,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CloseVotingRequest) ToUseCaseInput() usecase.CloseVotingInput {
	input := usecase.CloseVotingInput{Comments: r.Comments}
	if r.Outcome != "" {
		outcome := domain.VoteOutcome(r.Outcome)
		input.Override = &outcome
	}
	return input
}

// DisburseRequest identifies the payment that released the funds.
type DisburseRequest struct {
	Reference string `json:"reference"`
	Method    string `json:"method"`
}

// ToUseCaseInput converts to use case input.
func (r *DisburseRequest) ToUseCaseInput() usecase.DisburseInput {
	return usecase.DisburseInput{
		Reference: r.Reference,
		Method:    domain.PaymentMethod(r.Method),
	}
}

// AddPledgeRequest attaches a guarantor to a draft loan.
type AddPledgeRequest struct {
	GuarantorID string          `json:"guarantor_id"`
	Amount      decimal.Decimal `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *AddPledgeRequest) ToUseCaseInput(loanID string) usecase.AddPledgeInput {
	return usecase.AddPledgeInput{
		LoanID:      loanID,
		GuarantorID: r.GuarantorID,
		Amount:      r.Amount,
	}
}

// RespondPledgeRequest is the guarantor's answer.
type RespondPledgeRequest struct {
	Accept bool `json:"accept"`
}

// CastVoteRequest is a committee ballot.
type CastVoteRequest struct {
	Choice string `json:"choice"`
}

// AllocationLineRequest is one destination of a deposit. Type selects the
// sub-ledger and decides what TargetID refers to.
type AllocationLineRequest struct {
	Type     string          `json:"type"`
	TargetID string          `json:"target_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

// ToDomain converts the line to its typed domain form.
func (l AllocationLineRequest) ToDomain(index int) (domain.AllocationLine, error) {
	switch domain.DestinationType(l.Type) {
	case domain.DestinationSavings:
		return domain.SavingsLine{AccountID: l.TargetID, Amount: l.Amount}, nil
	case domain.DestinationLoanRepayment:
		return domain.LoanRepaymentLine{LoanID: l.TargetID, Amount: l.Amount}, nil
	case domain.DestinationFine:
		return domain.FineLine{FineID: l.TargetID, Amount: l.Amount}, nil
	case domain.DestinationContribution:
		return domain.ContributionLine{ProductID: l.TargetID, Amount: l.Amount}, nil
	case domain.DestinationShareCapital:
		return domain.ShareCapitalLine{Amount: l.Amount}, nil
	case domain.DestinationProcessingFee:
		return domain.ProcessingFeeLine{LoanID: l.TargetID, Amount: l.Amount}, nil
	}
	return nil, &domain.DestinationError{
		Index:       index,
		Destination: domain.DestinationType(l.Type),
		TargetID:    l.TargetID,
		Reason:      fmt.Sprintf("unknown destination type %q", l.Type),
	}
}

// CreateAllocationRequest splits a member deposit across destinations.
// MemberID may be left empty to deposit for the caller.
type CreateAllocationRequest struct {
	MemberID         string                  `json:"member_id"`
	Total            decimal.Decimal         `json:"total"`
	Method           string                  `json:"method"`
	PaymentReference string                  `json:"payment_reference,omitempty"`
	BankAccountCode  string                  `json:"bank_account_code,omitempty"`
	Notes            string                  `json:"notes,omitempty"`
	Lines            []AllocationLineRequest `json:"lines"`
}

// ToDomain converts to a domain allocation request. Deposits received over
// HTTP are always inflows.
func (r *CreateAllocationRequest) ToDomain() (domain.AllocationRequest, error) {
	lines := make([]domain.AllocationLine, len(r.Lines))
	for i, l := range r.Lines {
		line, err := l.ToDomain(i)
		if err != nil {
			return domain.AllocationRequest{}, err
		}
		lines[i] = line
	}

	return domain.AllocationRequest{
		MemberID:         r.MemberID,
		Total:            r.Total,
		Method:           domain.PaymentMethod(r.Method),
		PaymentReference: r.PaymentReference,
		BankAccountCode:  r.BankAccountCode,
		Direction:        domain.AllocationInflow,
		Notes:            r.Notes,
		Lines:            lines,
	}, nil
}

// PaginationRequest represents pagination parameters.
type PaginationRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
