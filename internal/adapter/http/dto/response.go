package dto

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
)

// LoanResponse represents a loan application in API responses.
type LoanResponse struct {
	ID                 string          `json:"id"`
	LoanNumber         string          `json:"loan_number"`
	BorrowerID         string          `json:"borrower_id"`
	ProductID          string          `json:"product_id"`
	SavingsAccountID   string          `json:"savings_account_id,omitempty"`
	Principal          decimal.Decimal `json:"principal"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	DurationWeeks      int             `json:"duration_weeks"`
	State              string          `json:"state"`
	FeePaid            bool            `json:"fee_paid"`
	MeetingDate        *time.Time      `json:"meeting_date,omitempty"`
	VotesYes           int             `json:"votes_yes"`
	VotesNo            int             `json:"votes_no"`
	VoteOutcome        string          `json:"vote_outcome,omitempty"`
	DecisionComments   string          `json:"decision_comments,omitempty"`
	RejectionReason    string          `json:"rejection_reason,omitempty"`
	DisbursementRef    string          `json:"disbursement_ref,omitempty"`
	DisbursementMethod string          `json:"disbursement_method,omitempty"`
	DisbursedBy        string          `json:"disbursed_by,omitempty"`
	DisbursedAt        *time.Time      `json:"disbursed_at,omitempty"`
	Closed             bool            `json:"closed"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// LoanFromDomain converts a domain loan to response.
func LoanFromDomain(l *domain.LoanApplication) *LoanResponse {
	return &LoanResponse{
		ID:                 l.ID,
		LoanNumber:         l.LoanNumber,
		BorrowerID:         l.BorrowerID,
		ProductID:          l.ProductID,
		SavingsAccountID:   l.SavingsAccountID,
		Principal:          l.Principal,
		OutstandingBalance: l.OutstandingBalance,
		DurationWeeks:      l.DurationWeeks,
		State:              string(l.State),
		FeePaid:            l.FeePaid,
		MeetingDate:        l.MeetingDate,
		VotesYes:           l.VotesYes,
		VotesNo:            l.VotesNo,
		VoteOutcome:        string(l.VoteOutcome),
		DecisionComments:   l.DecisionComments,
		RejectionReason:    l.RejectionReason,
		DisbursementRef:    l.DisbursementRef,
		DisbursementMethod: string(l.DisbursementMethod),
		DisbursedBy:        l.DisbursedBy,
		DisbursedAt:        l.DisbursedAt,
		Closed:             l.Closed,
		Version:            l.Version,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
}

// LoansFromDomain converts domain loans to responses.
func LoansFromDomain(loans []*domain.LoanApplication) []*LoanResponse {
	result := make([]*LoanResponse, len(loans))
	for i, l := range loans {
		result[i] = LoanFromDomain(l)
	}
	return result
}

// AuditRecordResponse represents one audit trail entry.
type AuditRecordResponse struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	ActorID   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditTrailFromDomain converts audit records to responses.
func AuditTrailFromDomain(records []domain.AuditRecord) []*AuditRecordResponse {
	result := make([]*AuditRecordResponse, len(records))
	for i, r := range records {
		result[i] = &AuditRecordResponse{
			ID:        r.ID,
			Action:    string(r.Action),
			FromState: string(r.FromState),
			ToState:   string(r.ToState),
			ActorID:   r.ActorID,
			ActorRole: string(r.ActorRole),
			Comment:   r.Comment,
			CreatedAt: r.CreatedAt,
		}
	}
	return result
}

// PledgeResponse represents a guarantor pledge.
type PledgeResponse struct {
	ID          string          `json:"id"`
	LoanID      string          `json:"loan_id"`
	GuarantorID string          `json:"guarantor_id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	RespondedAt *time.Time      `json:"responded_at,omitempty"`
}

// PledgeFromDomain converts a domain pledge to response.
func PledgeFromDomain(p *domain.GuarantorPledge) *PledgeResponse {
	return &PledgeResponse{
		ID:          p.ID,
		LoanID:      p.LoanID,
		GuarantorID: p.GuarantorID,
		Amount:      p.Amount,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		RespondedAt: p.RespondedAt,
	}
}

// PledgeListResponse lists a loan's pledges with their coverage summary.
type PledgeListResponse struct {
	Pledges  []*PledgeResponse `json:"pledges"`
	Accepted decimal.Decimal   `json:"accepted"`
	Pledged  decimal.Decimal   `json:"pledged"`
	Pending  int               `json:"pending"`
	Declined int               `json:"declined"`
}

// PledgesFromDomain converts domain pledges to a list response.
func PledgesFromDomain(pledges []*domain.GuarantorPledge) *PledgeListResponse {
	coverage := domain.SummarizePledges(pledges)
	result := &PledgeListResponse{
		Pledges:  make([]*PledgeResponse, len(pledges)),
		Accepted: coverage.Accepted,
		Pledged:  coverage.Pledged,
		Pending:  coverage.Pending,
		Declined: coverage.Declined,
	}
	for i, p := range pledges {
		result.Pledges[i] = PledgeFromDomain(p)
	}
	return result
}

// VotingSessionResponse represents an open session's tally. Individual
// ballots are not disclosed, only who has voted.
type VotingSessionResponse struct {
	ID       string    `json:"id"`
	LoanID   string    `json:"loan_id"`
	OpenedBy string    `json:"opened_by"`
	OpenedAt time.Time `json:"opened_at"`
	Yes      int       `json:"yes"`
	No       int       `json:"no"`
	Voters   []string  `json:"voters"`
}

// VotingSessionFromDomain converts a domain session to response.
func VotingSessionFromDomain(s *domain.VotingSession) *VotingSessionResponse {
	yes, no := s.Tally()
	voters := make([]string, 0, len(s.Votes))
	for id := range s.Votes {
		voters = append(voters, id)
	}
	sort.Strings(voters)

	return &VotingSessionResponse{
		ID:       s.ID,
		LoanID:   s.LoanID,
		OpenedBy: s.OpenedBy,
		OpenedAt: s.OpenedAt,
		Yes:      yes,
		No:       no,
		Voters:   voters,
	}
}

// AllocationPostingResponse shows how one line was applied.
type AllocationPostingResponse struct {
	Index          int             `json:"index"`
	Type           string          `json:"type"`
	TargetID       string          `json:"target_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	JournalEntryID string          `json:"journal_entry_id,omitempty"`
}

// AllocationResponse represents an accepted allocation.
type AllocationResponse struct {
	ID               string                       `json:"id"`
	Reference        string                       `json:"reference"`
	MemberID         string                       `json:"member_id"`
	Total            decimal.Decimal              `json:"total"`
	Method           string                       `json:"method"`
	PaymentReference string                       `json:"payment_reference,omitempty"`
	BankAccountCode  string                       `json:"bank_account_code,omitempty"`
	Direction        string                       `json:"direction"`
	Notes            string                       `json:"notes,omitempty"`
	Postings         []*AllocationPostingResponse `json:"postings"`
	CreatedBy        string                       `json:"created_by"`
	CreatedAt        time.Time                    `json:"created_at"`
}

// AllocationFromDomain converts a domain allocation to response.
func AllocationFromDomain(a *domain.Allocation) *AllocationResponse {
	postings := make([]*AllocationPostingResponse, len(a.Postings))
	for i, p := range a.Postings {
		postings[i] = &AllocationPostingResponse{
			Index:          p.Index,
			Type:           string(p.Destination),
			TargetID:       p.TargetID,
			Amount:         p.Amount,
			JournalEntryID: p.JournalEntryID,
		}
	}

	return &AllocationResponse{
		ID:               a.ID,
		Reference:        a.Reference,
		MemberID:         a.MemberID,
		Total:            a.Total,
		Method:           string(a.Method),
		PaymentReference: a.PaymentReference,
		BankAccountCode:  a.BankAccountCode,
		Direction:        string(a.Direction),
		Notes:            a.Notes,
		Postings:         postings,
		CreatedBy:        a.CreatedBy,
		CreatedAt:        a.CreatedAt,
	}
}

// AllocationsFromDomain converts domain allocations to responses.
func AllocationsFromDomain(allocations []*domain.Allocation) []*AllocationResponse {
	result := make([]*AllocationResponse, len(allocations))
	for i, a := range allocations {
		result[i] = AllocationFromDomain(a)
	}
	return result
}

// JournalLineResponse is one side of a journal entry.
type JournalLineResponse struct {
	AccountCode string          `json:"account_code"`
	Amount      decimal.Decimal `json:"amount"`
}

// JournalEntryResponse represents a journal entry in API responses.
type JournalEntryResponse struct {
	ID          string              `json:"id"`
	EventName   string              `json:"event_name"`
	Debit       JournalLineResponse `json:"debit"`
	Credit      JournalLineResponse `json:"credit"`
	Description string              `json:"description,omitempty"`
	SourceRef   string              `json:"source_ref"`
	PostedAt    time.Time           `json:"posted_at"`
}

// JournalEntriesFromDomain converts domain entries to responses.
func JournalEntriesFromDomain(entries []*domain.JournalEntry) []*JournalEntryResponse {
	result := make([]*JournalEntryResponse, len(entries))
	for i, e := range entries {
		result[i] = &JournalEntryResponse{
			ID:          e.ID,
			EventName:   e.EventName,
			Debit:       JournalLineResponse{AccountCode: e.Debit.AccountCode, Amount: e.Debit.Amount},
			Credit:      JournalLineResponse{AccountCode: e.Credit.AccountCode, Amount: e.Credit.Amount},
			Description: e.Description,
			SourceRef:   e.SourceRef,
			PostedAt:    e.PostedAt,
		}
	}
	return result
}

// GLMappingResponse represents an event to account mapping.
type GLMappingResponse struct {
	EventName         string `json:"event_name"`
	DebitAccountCode  string `json:"debit_account_code"`
	CreditAccountCode string `json:"credit_account_code"`
	Description       string `json:"description,omitempty"`
}

// GLMappingsFromDomain converts domain mappings to responses.
func GLMappingsFromDomain(mappings []*domain.GLMapping) []*GLMappingResponse {
	result := make([]*GLMappingResponse, len(mappings))
	for i, m := range mappings {
		result[i] = &GLMappingResponse{
			EventName:         m.EventName,
			DebitAccountCode:  m.DebitAccountCode,
			CreditAccountCode: m.CreditAccountCode,
			Description:       m.Description,
		}
	}
	return result
}

// ConsistencyResponse reports whether the journal balances.
type ConsistencyResponse struct {
	Balanced bool `json:"balanced"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
