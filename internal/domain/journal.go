package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// GL event names understood by the posting gateway.
const (
	EventLoanDisbursement         = "LOAN_DISBURSEMENT"
	EventLoanRepaymentPrincipal   = "LOAN_REPAYMENT_PRINCIPAL"
	EventSavingsDeposit           = "SAVINGS_DEPOSIT"
	EventFinePayment              = "FINE_PAYMENT"
	EventContributionReceived     = "CONTRIBUTION_RECEIVED"
	EventShareCapitalContribution = "SHARE_CAPITAL_CONTRIBUTION"
	EventLoanProcessingFee        = "LOAN_PROCESSING_FEE"
)

// GLMapping binds an event name to its debit and credit accounts.
type GLMapping struct {
	EventName         string
	DebitAccountCode  string
	CreditAccountCode string
	Description       string
}

// JournalLine is one side of a journal entry.
type JournalLine struct {
	AccountCode string
	Amount      decimal.Decimal
}

// JournalEntry is an append-only double-entry posting.
type JournalEntry struct {
	ID          string
	EventName   string
	Debit       JournalLine
	Credit      JournalLine
	Description string
	SourceRef   string
	PostedAt    time.Time
}

// NewJournalEntry builds a balanced entry from mapping. A non-empty debitOverride
// replaces the mapped debit account.
func NewJournalEntry(id string, mapping *GLMapping, amount decimal.Decimal, debitOverride, description, sourceRef string, at time.Time) *JournalEntry {
	debitCode := mapping.DebitAccountCode
	if debitOverride != "" {
		debitCode = debitOverride
	}
	return &JournalEntry{
		ID:          id,
		EventName:   mapping.EventName,
		Debit:       JournalLine{AccountCode: debitCode, Amount: amount},
		Credit:      JournalLine{AccountCode: mapping.CreditAccountCode, Amount: amount},
		Description: description,
		SourceRef:   sourceRef,
		PostedAt:    at,
	}
}

// Amount returns the posted value.
func (e *JournalEntry) Amount() decimal.Decimal {
	return e.Debit.Amount
}

// Validate enforces debit == credit and positive amounts.
func (e *JournalEntry) Validate() error {
	if !e.Debit.Amount.IsPositive() || !e.Credit.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !e.Debit.Amount.Equal(e.Credit.Amount) {
		return fmt.Errorf("%w: debit %s, credit %s", ErrUnbalancedEntry, e.Debit.Amount.String(), e.Credit.Amount.String())
	}
	if e.Debit.AccountCode == "" || e.Credit.AccountCode == "" {
		return fmt.Errorf("%w: missing account code", ErrUnbalancedEntry)
	}
	if e.Debit.AccountCode == e.Credit.AccountCode {
		return fmt.Errorf("%w: debit and credit hit the same account", ErrUnbalancedEntry)
	}
	return nil
}

// TrialBalance sums debits and credits per account code.
func TrialBalance(entries []*JournalEntry) map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal)
	for _, e := range entries {
		balances[e.Debit.AccountCode] = balances[e.Debit.AccountCode].Add(e.Debit.Amount)
		balances[e.Credit.AccountCode] = balances[e.Credit.AccountCode].Sub(e.Credit.Amount)
	}
	return balances
}

// DefaultGLMappings is the chart of accounts a new SACCO starts with.
func DefaultGLMappings() []GLMapping {
	return []GLMapping{
		{EventName: EventLoanDisbursement, DebitAccountCode: "1100", CreditAccountCode: "2010", Description: "Loans receivable against member savings"},
		{EventName: EventLoanRepaymentPrincipal, DebitAccountCode: "1020", CreditAccountCode: "1100", Description: "Principal repaid into bank"},
		{EventName: EventSavingsDeposit, DebitAccountCode: "1020", CreditAccountCode: "2010", Description: "Member savings deposit"},
		{EventName: EventFinePayment, DebitAccountCode: "1020", CreditAccountCode: "4040", Description: "Fine income"},
		{EventName: EventContributionReceived, DebitAccountCode: "1020", CreditAccountCode: "2001", Description: "Contribution product receipt"},
		{EventName: EventShareCapitalContribution, DebitAccountCode: "1020", CreditAccountCode: "2020", Description: "Share capital"},
		{EventName: EventLoanProcessingFee, DebitAccountCode: "1020", CreditAccountCode: "4030", Description: "Loan processing fee income"},
	}
}
