package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	t.Parallel()

	borrower := Principal{MemberID: "m-borrower", Role: RoleMember}
	officer := Principal{MemberID: "m-officer", Role: RoleLoanOfficer}
	secretary := Principal{MemberID: "m-sec", Role: RoleSecretary}
	chair := Principal{MemberID: "m-chair", Role: RoleChairperson}
	treasurer := Principal{MemberID: "m-treasurer", Role: RoleTreasurer}

	tests := []struct {
		name    string
		state   LoanState
		action  Action
		actor   Principal
		next    LoanState
		wantErr error
	}{
		{"borrower submits draft", LoanStateDraft, ActionSubmit, borrower, LoanStateSubmitted, nil},
		{"officer cannot submit for borrower", LoanStateDraft, ActionSubmit, officer, "", ErrUnauthorizedTransition},
		{"borrower withdraws draft", LoanStateDraft, ActionReject, borrower, LoanStateRejected, nil},
		{"officer starts review", LoanStateSubmitted, ActionStartReview, officer, LoanStateLoanOfficerReview, nil},
		{"chair cannot start review", LoanStateSubmitted, ActionStartReview, chair, "", ErrUnauthorizedTransition},
		{"officer approves", LoanStateLoanOfficerReview, ActionApprove, officer, LoanStateSecretaryTabled, nil},
		{"secretary tables", LoanStateSecretaryTabled, ActionTable, secretary, LoanStateOnAgenda, nil},
		{"chair opens voting", LoanStateOnAgenda, ActionOpenVoting, chair, LoanStateVotingOpen, nil},
		{"secretary cannot open voting", LoanStateOnAgenda, ActionOpenVoting, secretary, "", ErrUnauthorizedTransition},
		{"chair closes voting", LoanStateVotingOpen, ActionCloseVoting, chair, LoanStateSecretaryDecision, nil},
		{"secretary final approves", LoanStateSecretaryDecision, ActionFinalApprove, secretary, LoanStateTreasurerDisbursement, nil},
		{"treasurer disburses", LoanStateTreasurerDisbursement, ActionDisburse, treasurer, LoanStateDisbursed, nil},
		{"secretary cannot disburse", LoanStateTreasurerDisbursement, ActionDisburse, secretary, "", ErrUnauthorizedTransition},
		{"treasurer rejects", LoanStateTreasurerDisbursement, ActionReject, treasurer, LoanStateRejected, nil},
		{"no skipping review", LoanStateSubmitted, ActionApprove, officer, "", ErrInvalidTransition},
		{"no reject while voting", LoanStateVotingOpen, ActionReject, chair, "", ErrInvalidTransition},
		{"rejected is terminal", LoanStateRejected, ActionSubmit, borrower, "", ErrInvalidTransition},
		{"guarantors only in draft", LoanStateSubmitted, ActionAddGuarantor, borrower, "", ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loan := &LoanApplication{ID: "loan-1", BorrowerID: borrower.MemberID, State: tt.state}
			rule, err := Authorize(loan, tt.action, tt.actor)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.next, rule.Next)
		})
	}
}

func TestAuthorize_OfficerCannotActOnOwnLoan(t *testing.T) {
	t.Parallel()

	officer := Principal{MemberID: "m-officer", Role: RoleLoanOfficer}
	loan := &LoanApplication{ID: "loan-1", BorrowerID: officer.MemberID, State: LoanStateSubmitted}

	_, err := Authorize(loan, ActionStartReview, officer)
	assert.ErrorIs(t, err, ErrUnauthorizedTransition)
}

func TestAuthorize_SecondDisbursementRejected(t *testing.T) {
	t.Parallel()

	treasurer := Principal{MemberID: "m-treasurer", Role: RoleTreasurer}
	loan := &LoanApplication{ID: "loan-1", BorrowerID: "m-1", State: LoanStateDisbursed}

	_, err := Authorize(loan, ActionDisburse, treasurer)
	require.ErrorIs(t, err, ErrAlreadyDisbursed)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestTransitionTable_TerminalStatesHaveNoExits(t *testing.T) {
	t.Parallel()

	assert.Empty(t, AllowedActions(LoanStateDisbursed))
	assert.Empty(t, AllowedActions(LoanStateRejected))
	assert.Contains(t, AllowedActions(LoanStateDraft), ActionSubmit)
}

func TestTransitionTable_NoStateReentry(t *testing.T) {
	t.Parallel()

	order := map[LoanState]int{
		LoanStateDraft:                 0,
		LoanStateSubmitted:             1,
		LoanStateLoanOfficerReview:     2,
		LoanStateSecretaryTabled:       3,
		LoanStateOnAgenda:              4,
		LoanStateVotingOpen:            5,
		LoanStateSecretaryDecision:     6,
		LoanStateTreasurerDisbursement: 7,
		LoanStateDisbursed:             8,
		LoanStateRejected:              9,
	}

	for key, rule := range transitions {
		if rule.Next == key.state {
			// state-preserving commands
			continue
		}
		assert.Greater(t, order[rule.Next], order[key.state], "%s --%s--> %s moves backwards", key.state, key.action, rule.Next)
	}
}

func TestStatesVisited(t *testing.T) {
	t.Parallel()

	trail := []AuditRecord{
		{Action: ActionCreate, FromState: LoanStateDraft, ToState: LoanStateDraft},
		{Action: ActionAddGuarantor, FromState: LoanStateDraft, ToState: LoanStateDraft},
		{Action: ActionSubmit, FromState: LoanStateDraft, ToState: LoanStateSubmitted},
		{Action: ActionReject, FromState: LoanStateSubmitted, ToState: LoanStateRejected},
	}

	assert.Equal(t, []LoanState{LoanStateDraft, LoanStateSubmitted, LoanStateRejected}, StatesVisited(trail))
}
