package domain

import "time"

// AuditRecord is one entry of a loan's append-only history.
type AuditRecord struct {
	ID        string
	LoanID    string
	Action    Action
	FromState LoanState
	ToState   LoanState
	ActorID   string
	ActorRole Role
	Comment   string
	CreatedAt time.Time
}

// IsTransition reports whether the record moved the loan to another state.
func (r AuditRecord) IsTransition() bool {
	return r.FromState != r.ToState
}

// StatesVisited returns the distinct state sequence recorded in trail, starting at DRAFT.
func StatesVisited(trail []AuditRecord) []LoanState {
	states := []LoanState{LoanStateDraft}
	for _, r := range trail {
		if r.IsTransition() {
			states = append(states, r.ToState)
		}
	}
	return states
}
