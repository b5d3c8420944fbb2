package domain

import (
	"strings"
	"time"
)

// VoteChoice is a committee member's ballot.
type VoteChoice string

const (
	VoteYes VoteChoice = "YES"
	VoteNo  VoteChoice = "NO"
)

// ParseVoteChoice accepts YES/NO in any case.
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch VoteChoice(strings.ToUpper(strings.TrimSpace(s))) {
	case VoteYes:
		return VoteYes, nil
	case VoteNo:
		return VoteNo, nil
	}
	return "", ErrInvalidVoteChoice
}

// VoteOutcome is the result of a closed session.
type VoteOutcome string

const (
	VoteOutcomeApproved VoteOutcome = "APPROVED"
	VoteOutcomeRejected VoteOutcome = "REJECTED"
)

// VotePolicy decides what happens when a member votes twice.
type VotePolicy string

const (
	VotePolicyReject    VotePolicy = "reject"
	VotePolicyOverwrite VotePolicy = "overwrite"
)

// IsValid checks the policy name.
func (p VotePolicy) IsValid() bool {
	return p == VotePolicyReject || p == VotePolicyOverwrite
}

// Vote is one ballot within a session.
type Vote struct {
	VoterID string
	Choice  VoteChoice
	CastAt  time.Time
}

// VotingSession collects ballots for a single loan. At most one is open per loan.
type VotingSession struct {
	ID       string
	LoanID   string
	OpenedBy string
	OpenedAt time.Time
	Votes    map[string]Vote
	ClosedBy string
	ClosedAt *time.Time
	Result   VoteOutcome
}

// NewVotingSession opens an empty session.
func NewVotingSession(id, loanID, openedBy string, at time.Time) *VotingSession {
	return &VotingSession{
		ID:       id,
		LoanID:   loanID,
		OpenedBy: openedBy,
		OpenedAt: at,
		Votes:    make(map[string]Vote),
	}
}

// Cast records voterID's ballot according to policy.
func (s *VotingSession) Cast(voterID string, choice VoteChoice, policy VotePolicy, at time.Time) error {
	if choice != VoteYes && choice != VoteNo {
		return ErrInvalidVoteChoice
	}
	if s.Votes == nil {
		s.Votes = make(map[string]Vote)
	}
	if _, voted := s.Votes[voterID]; voted && policy != VotePolicyOverwrite {
		return ErrDuplicateVote
	}
	s.Votes[voterID] = Vote{VoterID: voterID, Choice: choice, CastAt: at}
	return nil
}

// Tally counts YES and NO ballots.
func (s *VotingSession) Tally() (yes, no int) {
	for _, v := range s.Votes {
		if v.Choice == VoteYes {
			yes++
		} else {
			no++
		}
	}
	return yes, no
}

// Outcome is APPROVED when YES strictly outnumbers NO, unless the chair overrides.
func (s *VotingSession) Outcome(override *VoteOutcome) VoteOutcome {
	if override != nil {
		return *override
	}
	yes, no := s.Tally()
	if yes > no {
		return VoteOutcomeApproved
	}
	return VoteOutcomeRejected
}

// Close computes the outcome and stamps the session as closed.
func (s *VotingSession) Close(closedBy string, override *VoteOutcome, at time.Time) VoteOutcome {
	s.Result = s.Outcome(override)
	s.ClosedBy = closedBy
	s.ClosedAt = &at
	return s.Result
}
