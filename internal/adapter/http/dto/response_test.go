package dto

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
)

func TestLoanFromDomain(t *testing.T) {
	now := time.Now()
	loan := &domain.LoanApplication{
		ID:                 "loan-1",
		LoanNumber:         "LN-0001",
		BorrowerID:         "m-1",
		Principal:          decimal.RequireFromString("50000"),
		OutstandingBalance: decimal.RequireFromString("50000"),
		State:              domain.LoanStateOnAgenda,
		MeetingDate:        &now,
		Version:            4,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	resp := LoanFromDomain(loan)
	if resp.ID != loan.ID || resp.State != "ON_AGENDA" || resp.Version != 4 || resp.MeetingDate != &now {
		t.Fatalf("unexpected loan response: %+v", resp)
	}
	if resp.DisbursedAt != nil || resp.DisbursementMethod != "" {
		t.Fatalf("undisbursed loan should not carry disbursement fields: %+v", resp)
	}

	list := LoansFromDomain([]*domain.LoanApplication{loan})
	if len(list) != 1 || list[0].ID != loan.ID {
		t.Fatalf("LoansFromDomain returned %+v", list)
	}
}

func TestPledgesFromDomain(t *testing.T) {
	pledges := []*domain.GuarantorPledge{
		{ID: "p-1", Amount: decimal.NewFromInt(20000), Status: domain.PledgeStatusAccepted},
		{ID: "p-2", Amount: decimal.NewFromInt(10000), Status: domain.PledgeStatusPending},
		{ID: "p-3", Amount: decimal.NewFromInt(5000), Status: domain.PledgeStatusDeclined},
	}

	resp := PledgesFromDomain(pledges)
	if len(resp.Pledges) != 3 {
		t.Fatalf("expected 3 pledges, got %d", len(resp.Pledges))
	}
	if !resp.Accepted.Equal(decimal.NewFromInt(20000)) || resp.Pending != 1 || resp.Declined != 1 {
		t.Fatalf("unexpected coverage %+v", resp)
	}
	if !resp.Pledged.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("expected 30000 pledged, got %s", resp.Pledged)
	}
}

func TestVotingSessionFromDomain(t *testing.T) {
	session := domain.NewVotingSession("vs-1", "loan-1", "m-chair", time.Now())
	session.Votes["m-b"] = domain.Vote{VoterID: "m-b", Choice: domain.VoteYes}
	session.Votes["m-a"] = domain.Vote{VoterID: "m-a", Choice: domain.VoteNo}
	session.Votes["m-c"] = domain.Vote{VoterID: "m-c", Choice: domain.VoteYes}

	resp := VotingSessionFromDomain(session)
	if resp.Yes != 2 || resp.No != 1 {
		t.Fatalf("unexpected tally %d/%d", resp.Yes, resp.No)
	}
	if len(resp.Voters) != 3 || resp.Voters[0] != "m-a" || resp.Voters[2] != "m-c" {
		t.Fatalf("voters should be sorted, got %v", resp.Voters)
	}
}

func TestAllocationFromDomain(t *testing.T) {
	a := &domain.Allocation{
		ID:        "alloc-1",
		Reference: "TXN-01",
		Total:     decimal.NewFromInt(300),
		Method:    domain.PaymentMethodCash,
		Direction: domain.AllocationInflow,
		Postings: []domain.AllocationPosting{
			{Index: 0, Destination: domain.DestinationSavings, TargetID: "sav-1", Amount: decimal.NewFromInt(200), JournalEntryID: "je-1"},
			{Index: 1, Destination: domain.DestinationShareCapital, Amount: decimal.NewFromInt(100), JournalEntryID: "je-2"},
		},
	}

	resp := AllocationFromDomain(a)
	if resp.Reference != "TXN-01" || resp.Method != "CASH" || resp.Direction != "INFLOW" {
		t.Fatalf("unexpected allocation response %+v", resp)
	}
	if len(resp.Postings) != 2 || resp.Postings[1].Type != "SHARE_CAPITAL" || resp.Postings[0].JournalEntryID != "je-1" {
		t.Fatalf("unexpected postings %+v", resp.Postings)
	}
}

func TestJournalEntriesFromDomain(t *testing.T) {
	mapping := &domain.GLMapping{EventName: domain.EventSavingsDeposit, DebitAccountCode: "1020", CreditAccountCode: "2010"}
	entry := domain.NewJournalEntry("je-1", mapping, decimal.NewFromInt(75), "1031", "deposit", "alloc-1", time.Now())

	resp := JournalEntriesFromDomain([]*domain.JournalEntry{entry})
	if len(resp) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(resp))
	}
	if resp[0].Debit.AccountCode != "1031" || resp[0].Credit.AccountCode != "2010" {
		t.Fatalf("unexpected accounts %+v", resp[0])
	}
	if !resp[0].Debit.Amount.Equal(resp[0].Credit.Amount) {
		t.Fatalf("entry should balance: %+v", resp[0])
	}
}
