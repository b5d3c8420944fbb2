package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanState is a stage of the loan approval workflow.
type LoanState string

const (
	LoanStateDraft                 LoanState = "DRAFT"
	LoanStateSubmitted             LoanState = "SUBMITTED"
	LoanStateLoanOfficerReview     LoanState = "LOAN_OFFICER_REVIEW"
	LoanStateSecretaryTabled       LoanState = "SECRETARY_TABLED"
	LoanStateOnAgenda              LoanState = "ON_AGENDA"
	LoanStateVotingOpen            LoanState = "VOTING_OPEN"
	LoanStateSecretaryDecision     LoanState = "SECRETARY_DECISION"
	LoanStateTreasurerDisbursement LoanState = "TREASURER_DISBURSEMENT"
	LoanStateDisbursed             LoanState = "DISBURSED"
	LoanStateRejected              LoanState = "REJECTED"
)

// IsTerminal reports whether no further transitions leave the state.
func (s LoanState) IsTerminal() bool {
	return s == LoanStateDisbursed || s == LoanStateRejected
}

// IsValid checks the state against the known workflow stages.
func (s LoanState) IsValid() bool {
	switch s {
	case LoanStateDraft, LoanStateSubmitted, LoanStateLoanOfficerReview,
		LoanStateSecretaryTabled, LoanStateOnAgenda, LoanStateVotingOpen,
		LoanStateSecretaryDecision, LoanStateTreasurerDisbursement,
		LoanStateDisbursed, LoanStateRejected:
		return true
	}
	return false
}

// PaymentMethod identifies how money entered or left the SACCO.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodMpesa  PaymentMethod = "MPESA"
	PaymentMethodBank   PaymentMethod = "BANK"
	PaymentMethodCheque PaymentMethod = "CHEQUE"
)

// IsValid checks if the method is supported.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodMpesa, PaymentMethodBank, PaymentMethodCheque:
		return true
	}
	return false
}

// RequiresBankAccount reports whether a receiving bank account must be named.
func (m PaymentMethod) RequiresBankAccount() bool {
	return m == PaymentMethodBank || m == PaymentMethodCheque
}

// LoanApplication is a member's request to borrow, tracked through the workflow.
type LoanApplication struct {
	ID                 string
	LoanNumber         string
	BorrowerID         string
	ProductID          string
	SavingsAccountID   string
	Principal          decimal.Decimal
	OutstandingBalance decimal.Decimal
	DurationWeeks      int
	State              LoanState
	FeePaid            bool
	MeetingDate        *time.Time
	VotesYes           int
	VotesNo            int
	VoteOutcome        VoteOutcome
	DecisionComments   string
	RejectionReason    string
	DisbursementRef    string
	DisbursementMethod PaymentMethod
	DisbursedBy        string
	DisbursedAt        *time.Time
	Closed             bool
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	AuditTrail         []AuditRecord
}

// IsDisbursed reports whether funds were released for the loan.
func (l *LoanApplication) IsDisbursed() bool {
	return l.DisbursedAt != nil || l.State == LoanStateDisbursed
}

// ValidateRepayment checks that amount can be applied to the loan balance.
func (l *LoanApplication) ValidateRepayment(amount decimal.Decimal) error {
	if !l.IsDisbursed() {
		return ErrInvalidTransition
	}
	if l.Closed {
		return ErrLoanClosed
	}
	if amount.GreaterThan(l.OutstandingBalance) {
		return ErrInvalidAmount
	}
	return nil
}

// ApplyRepayment reduces the outstanding balance and closes the loan at zero.
func (l *LoanApplication) ApplyRepayment(amount decimal.Decimal) {
	l.OutstandingBalance = l.OutstandingBalance.Sub(amount)
	if !l.OutstandingBalance.IsPositive() {
		l.OutstandingBalance = decimal.Zero
		l.Closed = true
	}
}

// MaxEligiblePrincipal returns savings multiplied by the policy multiplier.
// A zero multiplier disables the limit and yields ok=false.
func MaxEligiblePrincipal(savings, multiplier decimal.Decimal) (limit decimal.Decimal, ok bool) {
	if !multiplier.IsPositive() {
		return decimal.Zero, false
	}
	return savings.Mul(multiplier), true
}
