package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DestinationType tags the sub-ledger an allocation line credits.
type DestinationType string

const (
	DestinationSavings       DestinationType = "SAVINGS_ACCOUNT"
	DestinationLoanRepayment DestinationType = "LOAN_REPAYMENT"
	DestinationFine          DestinationType = "FINE_PAYMENT"
	DestinationContribution  DestinationType = "CONTRIBUTION_PRODUCT"
	DestinationShareCapital  DestinationType = "SHARE_CAPITAL"
	DestinationProcessingFee DestinationType = "PROCESSING_FEE"
)

// AllocationDirection distinguishes member deposits from SACCO pay-outs.
type AllocationDirection string

const (
	// AllocationInflow posts one journal entry per line.
	AllocationInflow AllocationDirection = "INFLOW"
	// AllocationOutflow credits sub-ledgers only; the caller posts the GL event.
	AllocationOutflow AllocationDirection = "OUTFLOW"
)

// AllocationLine is one destination of a deposit.
type AllocationLine interface {
	Destination() DestinationType
	Target() string
	LineAmount() decimal.Decimal
}

// SavingsLine credits a savings account.
type SavingsLine struct {
	AccountID string
	Amount    decimal.Decimal
}

func (l SavingsLine) Destination() DestinationType { return DestinationSavings }
func (l SavingsLine) Target() string               { return l.AccountID }
func (l SavingsLine) LineAmount() decimal.Decimal  { return l.Amount }

// LoanRepaymentLine reduces a disbursed loan's outstanding balance.
type LoanRepaymentLine struct {
	LoanID string
	Amount decimal.Decimal
}

func (l LoanRepaymentLine) Destination() DestinationType { return DestinationLoanRepayment }
func (l LoanRepaymentLine) Target() string               { return l.LoanID }
func (l LoanRepaymentLine) LineAmount() decimal.Decimal  { return l.Amount }

// FineLine settles an outstanding fine in whole or part.
type FineLine struct {
	FineID string
	Amount decimal.Decimal
}

func (l FineLine) Destination() DestinationType { return DestinationFine }
func (l FineLine) Target() string               { return l.FineID }
func (l FineLine) LineAmount() decimal.Decimal  { return l.Amount }

// ContributionLine pays into a contribution product.
type ContributionLine struct {
	ProductID string
	Amount    decimal.Decimal
}

func (l ContributionLine) Destination() DestinationType { return DestinationContribution }
func (l ContributionLine) Target() string               { return l.ProductID }
func (l ContributionLine) LineAmount() decimal.Decimal  { return l.Amount }

// ShareCapitalLine buys shares for the depositing member.
type ShareCapitalLine struct {
	Amount decimal.Decimal
}

func (l ShareCapitalLine) Destination() DestinationType { return DestinationShareCapital }
func (l ShareCapitalLine) Target() string               { return "" }
func (l ShareCapitalLine) LineAmount() decimal.Decimal  { return l.Amount }

// ProcessingFeeLine pays a draft loan's application fee.
type ProcessingFeeLine struct {
	LoanID string
	Amount decimal.Decimal
}

func (l ProcessingFeeLine) Destination() DestinationType { return DestinationProcessingFee }
func (l ProcessingFeeLine) Target() string               { return l.LoanID }
func (l ProcessingFeeLine) LineAmount() decimal.Decimal  { return l.Amount }

// GL events posted for each destination of an inflow.
var destinationEvents = map[DestinationType]string{
	DestinationSavings:       EventSavingsDeposit,
	DestinationLoanRepayment: EventLoanRepaymentPrincipal,
	DestinationFine:          EventFinePayment,
	DestinationContribution:  EventContributionReceived,
	DestinationShareCapital:  EventShareCapitalContribution,
	DestinationProcessingFee: EventLoanProcessingFee,
}

// EventForDestination returns the GL event name a destination posts.
func EventForDestination(d DestinationType) (string, bool) {
	e, ok := destinationEvents[d]
	return e, ok
}

// AllocationRequest is a member deposit split across destinations.
type AllocationRequest struct {
	MemberID         string
	Total            decimal.Decimal
	Method           PaymentMethod
	PaymentReference string
	BankAccountCode  string
	Direction        AllocationDirection
	Notes            string
	Lines            []AllocationLine
}

// LinesTotal sums the line amounts.
func (r AllocationRequest) LinesTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range r.Lines {
		sum = sum.Add(l.LineAmount())
	}
	return sum
}

// ValidateShape checks the request before any sub-ledger row is touched.
// The bank account requirement is checked first.
// The difference between total and lines must be strictly below epsilon.
func (r AllocationRequest) ValidateShape(epsilon decimal.Decimal) error {
	if r.Direction != AllocationOutflow && r.Method.RequiresBankAccount() && r.BankAccountCode == "" {
		return ErrMissingBankAccount
	}

	if !r.Method.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, r.Method)
	}

	if r.Direction != AllocationOutflow && !r.Method.RequiresBankAccount() && r.BankAccountCode != "" {
		return fmt.Errorf("%w: %s deposit names %s", ErrUnexpectedBankAccount, r.Method, r.BankAccountCode)
	}

	if r.Method != PaymentMethodCash {
		if err := ValidateReference(r.PaymentReference); err != nil {
			return err
		}
	}

	if r.MemberID == "" {
		return ErrMissingMember
	}

	if len(r.Lines) == 0 {
		return ErrEmptyAllocation
	}

	if err := ValidateAmount(r.Total); err != nil {
		return err
	}

	for i, l := range r.Lines {
		if l == nil {
			return &DestinationError{Index: i, Reason: "line is empty"}
		}
		if !l.LineAmount().IsPositive() {
			return &DestinationError{Index: i, Destination: l.Destination(), TargetID: l.Target(), Reason: "amount must be positive"}
		}
		if r.Direction == AllocationOutflow && l.Destination() != DestinationSavings {
			return &DestinationError{Index: i, Destination: l.Destination(), TargetID: l.Target(), Reason: "outflows may only credit savings"}
		}
	}

	diff := r.Total.Sub(r.LinesTotal()).Abs()
	if !diff.LessThan(epsilon) {
		return fmt.Errorf("%w: total %s, lines %s", ErrUnbalancedAllocation, r.Total.String(), r.LinesTotal().String())
	}

	return nil
}

// AllocationPosting records how one line was applied.
type AllocationPosting struct {
	Index          int
	Destination    DestinationType
	TargetID       string
	Amount         decimal.Decimal
	JournalEntryID string
}

// Allocation is the persisted result of an accepted request.
type Allocation struct {
	ID               string
	Reference        string
	MemberID         string
	Total            decimal.Decimal
	Method           PaymentMethod
	PaymentReference string
	BankAccountCode  string
	Direction        AllocationDirection
	Notes            string
	Postings         []AllocationPosting
	CreatedBy        string
	CreatedAt        time.Time
}
