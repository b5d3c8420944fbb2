package domain

import "time"

// Event types
const (
	EventTypeLoanCreated        = "loan.created"
	EventTypeLoanStateChanged   = "loan.state_changed"
	EventTypeLoanDisbursed      = "loan.disbursed"
	EventTypeGuarantorRequested = "guarantor.requested"
	EventTypeGuarantorResponded = "guarantor.responded"
	EventTypeAllocationPosted   = "allocation.posted"
)

// Aggregate types
const (
	AggregateTypeLoan       = "loan"
	AggregateTypePledge     = "guarantor_pledge"
	AggregateTypeAllocation = "allocation"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// LoanStateChangedEvent payload
type LoanStateChangedEvent struct {
	LoanID    string `json:"loan_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Action    string `json:"action"`
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
}

// LoanDisbursedEvent payload
type LoanDisbursedEvent struct {
	LoanID         string `json:"loan_id"`
	BorrowerID     string `json:"borrower_id"`
	Amount         string `json:"amount"`
	Reference      string `json:"reference"`
	JournalEntryID string `json:"journal_entry_id"`
}

// GuarantorRequestedEvent payload
type GuarantorRequestedEvent struct {
	PledgeID    string `json:"pledge_id"`
	LoanID      string `json:"loan_id"`
	GuarantorID string `json:"guarantor_id"`
	Amount      string `json:"amount"`
}

// AllocationPostedEvent payload
type AllocationPostedEvent struct {
	Reference string `json:"reference"`
	MemberID  string `json:"member_id"`
	Total     string `json:"total"`
	Lines     int    `json:"lines"`
}

// Payload flattens a loan state change for the outbox.
func (e LoanStateChangedEvent) Payload() map[string]any {
	return map[string]any{
		"loan_id":    e.LoanID,
		"from":       e.From,
		"to":         e.To,
		"action":     e.Action,
		"actor_id":   e.ActorID,
		"actor_role": e.ActorRole,
	}
}

// Payload flattens a disbursement for the outbox.
func (e LoanDisbursedEvent) Payload() map[string]any {
	return map[string]any{
		"loan_id":          e.LoanID,
		"borrower_id":      e.BorrowerID,
		"amount":           e.Amount,
		"reference":        e.Reference,
		"journal_entry_id": e.JournalEntryID,
	}
}

// Payload flattens a pledge request for the outbox.
func (e GuarantorRequestedEvent) Payload() map[string]any {
	return map[string]any{
		"pledge_id":    e.PledgeID,
		"loan_id":      e.LoanID,
		"guarantor_id": e.GuarantorID,
		"amount":       e.Amount,
	}
}

// Payload flattens an allocation for the outbox.
func (e AllocationPostedEvent) Payload() map[string]any {
	return map[string]any{
		"reference": e.Reference,
		"member_id": e.MemberID,
		"total":     e.Total,
		"lines":     e.Lines,
	}
}
