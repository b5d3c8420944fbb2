package domain

import (
	"errors"
	"fmt"
)

var (
	// Workflow errors
	ErrUnauthorizedTransition = errors.New("actor is not allowed to perform this transition")
	ErrInvalidTransition      = errors.New("transition is not allowed from the current state")
	ErrConcurrentModification = errors.New("loan was modified concurrently")
	ErrAlreadyDisbursed       = fmt.Errorf("%w: loan already disbursed", ErrConcurrentModification)
	ErrLoanNotFound           = errors.New("loan not found")
	ErrMeetingDateInPast      = errors.New("meeting date must not be in the past")
	ErrEligibilityExceeded    = errors.New("requested principal exceeds borrowing limit")
	ErrApplicationFeeUnpaid   = errors.New("application fee has not been paid")
	ErrFeeAlreadyPaid         = errors.New("application fee already paid")
	ErrMissingReference       = errors.New("payment reference is required")
	ErrLoanClosed             = errors.New("loan is closed")

	// Guarantor errors
	ErrDuplicateGuarantor    = errors.New("guarantor already pledged for this loan")
	ErrSelfGuarantee         = errors.New("borrower cannot guarantee own loan")
	ErrInsufficientGuarantee = errors.New("guarantee coverage is insufficient")
	ErrPledgeNotFound        = errors.New("guarantor pledge not found")
	ErrPledgeNotPending      = errors.New("guarantor pledge already answered")

	// Voting errors
	ErrNoOpenVotingSession = errors.New("no open voting session for loan")
	ErrVotingSessionExists = errors.New("voting session already open for loan")
	ErrDuplicateVote       = errors.New("member has already voted")
	ErrBorrowerCannotVote  = errors.New("borrower cannot vote on own loan")
	ErrInvalidVoteChoice   = errors.New("vote must be YES or NO")

	// Allocation errors
	ErrUnbalancedAllocation  = errors.New("allocation lines do not sum to deposit total")
	ErrInvalidDestination    = errors.New("allocation destination cannot accept amount")
	ErrMissingBankAccount    = errors.New("bank deposits require a receiving bank account")
	ErrEmptyAllocation       = errors.New("allocation has no lines")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrAllocationNotFound    = errors.New("allocation not found")
	ErrInvalidPaymentMethod  = errors.New("unsupported payment method")
	ErrMissingMember         = errors.New("depositing member is required")
	ErrUnexpectedBankAccount = errors.New("bank account code is only accepted for bank-routed deposits")
	ErrDepositorMismatch     = errors.New("deposits for another member require the treasurer role")

	// Ledger errors
	ErrUnmappedEvent   = errors.New("no GL mapping configured for event")
	ErrUnbalancedEntry = errors.New("journal entry debits and credits differ")

	// Sub-ledger lookups
	ErrSavingsAccountNotFound = errors.New("savings account not found")
	ErrFineNotFound           = errors.New("fine not found")
	ErrProductNotFound        = errors.New("contribution product not found")
	ErrShareCapitalNotFound   = errors.New("share capital record not found")
	ErrBankAccountNotFound    = errors.New("bank account not found")
)

// DestinationError reports the allocation line that failed validation.
type DestinationError struct {
	Index       int
	Destination DestinationType
	TargetID    string
	Reason      string
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("%s: line %d (%s %s): %s", ErrInvalidDestination, e.Index, e.Destination, e.TargetID, e.Reason)
}

func (e *DestinationError) Unwrap() error {
	return ErrInvalidDestination
}

// errorCodes pairs sentinels with stable machine-readable codes.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrAlreadyDisbursed, "already_disbursed"},
	{ErrConcurrentModification, "concurrent_modification"},
	{ErrUnauthorizedTransition, "unauthorized_transition"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrLoanNotFound, "loan_not_found"},
	{ErrMeetingDateInPast, "meeting_date_in_past"},
	{ErrEligibilityExceeded, "eligibility_exceeded"},
	{ErrApplicationFeeUnpaid, "application_fee_unpaid"},
	{ErrFeeAlreadyPaid, "fee_already_paid"},
	{ErrMissingReference, "missing_reference"},
	{ErrLoanClosed, "loan_closed"},
	{ErrDuplicateGuarantor, "duplicate_guarantor"},
	{ErrSelfGuarantee, "self_guarantee"},
	{ErrInsufficientGuarantee, "insufficient_guarantee"},
	{ErrPledgeNotFound, "pledge_not_found"},
	{ErrPledgeNotPending, "pledge_not_pending"},
	{ErrNoOpenVotingSession, "no_open_voting_session"},
	{ErrVotingSessionExists, "voting_session_exists"},
	{ErrDuplicateVote, "duplicate_vote"},
	{ErrBorrowerCannotVote, "borrower_cannot_vote"},
	{ErrInvalidVoteChoice, "invalid_vote_choice"},
	{ErrUnbalancedAllocation, "unbalanced_allocation"},
	{ErrInvalidDestination, "invalid_destination"},
	{ErrMissingBankAccount, "missing_bank_account"},
	{ErrEmptyAllocation, "empty_allocation"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrAmountTooSmall, "amount_too_small"},
	{ErrAmountTooLarge, "amount_too_large"},
	{ErrInvalidReference, "invalid_reference"},
	{ErrInvalidDuration, "invalid_duration"},
	{ErrCommentTooLong, "comment_too_long"},
	{ErrInvalidIDFormat, "invalid_id"},
	{ErrInvalidMeetingDay, "invalid_meeting_date"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidRole, "invalid_role"},
	{ErrAllocationNotFound, "allocation_not_found"},
	{ErrInvalidPaymentMethod, "invalid_payment_method"},
	{ErrMissingMember, "missing_member"},
	{ErrUnexpectedBankAccount, "unexpected_bank_account"},
	{ErrDepositorMismatch, "depositor_mismatch"},
	{ErrUnmappedEvent, "unmapped_event"},
	{ErrUnbalancedEntry, "unbalanced_entry"},
	{ErrSavingsAccountNotFound, "savings_account_not_found"},
	{ErrFineNotFound, "fine_not_found"},
	{ErrProductNotFound, "product_not_found"},
	{ErrShareCapitalNotFound, "share_capital_not_found"},
	{ErrBankAccountNotFound, "bank_account_not_found"},
}

// ErrorCode returns a stable code for err, or "internal" for unknown errors.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
