package domain

// Action is a command issued against a loan application.
type Action string

const (
	ActionCreate       Action = "create"
	ActionAddGuarantor Action = "add_guarantor"
	ActionPayFee       Action = "pay_fee"
	ActionSubmit       Action = "submit"
	ActionStartReview  Action = "start_review"
	ActionApprove      Action = "approve"
	ActionTable        Action = "table"
	ActionOpenVoting   Action = "open_voting"
	ActionCloseVoting  Action = "close_voting"
	ActionFinalApprove Action = "final_approve"
	ActionDisburse     Action = "disburse"
	ActionReject       Action = "reject"
)

// TransitionRule is the role allowed to issue an action and the state it leads to.
// Commands that leave the state unchanged carry Next equal to the source state.
type TransitionRule struct {
	Role Role
	Next LoanState
}

type transitionKey struct {
	state  LoanState
	action Action
}

var transitions = map[transitionKey]TransitionRule{
	{LoanStateDraft, ActionAddGuarantor}: {RoleBorrower, LoanStateDraft},
	{LoanStateDraft, ActionPayFee}:       {RoleBorrower, LoanStateDraft},
	{LoanStateDraft, ActionSubmit}:       {RoleBorrower, LoanStateSubmitted},
	{LoanStateDraft, ActionReject}:       {RoleBorrower, LoanStateRejected},

	{LoanStateSubmitted, ActionStartReview}: {RoleLoanOfficer, LoanStateLoanOfficerReview},
	{LoanStateSubmitted, ActionReject}:      {RoleLoanOfficer, LoanStateRejected},

	{LoanStateLoanOfficerReview, ActionApprove}: {RoleLoanOfficer, LoanStateSecretaryTabled},
	{LoanStateLoanOfficerReview, ActionReject}:  {RoleLoanOfficer, LoanStateRejected},

	{LoanStateSecretaryTabled, ActionTable}:  {RoleSecretary, LoanStateOnAgenda},
	{LoanStateSecretaryTabled, ActionReject}: {RoleSecretary, LoanStateRejected},

	{LoanStateOnAgenda, ActionOpenVoting}: {RoleChairperson, LoanStateVotingOpen},
	{LoanStateOnAgenda, ActionReject}:     {RoleChairperson, LoanStateRejected},

	// A rejected vote outcome overrides Next with LoanStateRejected.
	{LoanStateVotingOpen, ActionCloseVoting}: {RoleChairperson, LoanStateSecretaryDecision},

	{LoanStateSecretaryDecision, ActionFinalApprove}: {RoleSecretary, LoanStateTreasurerDisbursement},
	{LoanStateSecretaryDecision, ActionReject}:       {RoleSecretary, LoanStateRejected},

	{LoanStateTreasurerDisbursement, ActionDisburse}: {RoleTreasurer, LoanStateDisbursed},
	{LoanStateTreasurerDisbursement, ActionReject}:   {RoleTreasurer, LoanStateRejected},
}

// RuleFor returns the transition rule for action in state.
func RuleFor(state LoanState, action Action) (TransitionRule, bool) {
	rule, ok := transitions[transitionKey{state, action}]
	return rule, ok
}

// AllowedActions lists the actions available from state.
func AllowedActions(state LoanState) []Action {
	var actions []Action
	for _, a := range []Action{
		ActionAddGuarantor, ActionPayFee, ActionSubmit, ActionStartReview, ActionApprove,
		ActionTable, ActionOpenVoting, ActionCloseVoting, ActionFinalApprove, ActionDisburse, ActionReject,
	} {
		if _, ok := transitions[transitionKey{state, a}]; ok {
			actions = append(actions, a)
		}
	}
	return actions
}

// Authorize checks that p may issue action against loan and returns the matching rule.
// Officers may not act on their own application.
func Authorize(loan *LoanApplication, action Action, p Principal) (TransitionRule, error) {
	if action == ActionDisburse && loan.IsDisbursed() {
		return TransitionRule{}, ErrAlreadyDisbursed
	}

	rule, ok := RuleFor(loan.State, action)
	if !ok {
		return TransitionRule{}, ErrInvalidTransition
	}

	isBorrower := p.MemberID != "" && p.MemberID == loan.BorrowerID
	if rule.Role == RoleBorrower {
		if !isBorrower {
			return TransitionRule{}, ErrUnauthorizedTransition
		}
		return rule, nil
	}

	if p.Role != rule.Role || isBorrower {
		return TransitionRule{}, ErrUnauthorizedTransition
	}

	return rule, nil
}
