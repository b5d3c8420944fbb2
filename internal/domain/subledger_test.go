package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestFine_Payment(t *testing.T) {
	t.Parallel()

	fine := &Fine{ID: "fine-1", Amount: dec("2000"), PaidAmount: decimal.Zero, Status: FineStatusUnpaid}

	assert.NotEmpty(t, fine.ValidatePayment(dec("3000")), "overpayment must be refused")
	assert.Empty(t, fine.ValidatePayment(dec("500")))

	fine.ApplyPayment(dec("500"))
	assert.Equal(t, FineStatusPartiallyPaid, fine.Status)
	assert.True(t, fine.Outstanding().Equal(dec("1500")))

	fine.ApplyPayment(dec("1500"))
	assert.Equal(t, FineStatusPaid, fine.Status)
	assert.NotEmpty(t, fine.ValidatePayment(dec("1")))
}

func TestContributionProduct_CompletesAtTarget(t *testing.T) {
	t.Parallel()

	target := dec("1000")
	p := &ContributionProduct{ID: "prod-1", TargetAmount: &target, CurrentAmount: dec("900"), Status: ProductStatusActive}

	p.ApplyContribution(dec("50"))
	assert.Equal(t, ProductStatusActive, p.Status)

	p.ApplyContribution(dec("50"))
	assert.Equal(t, ProductStatusCompleted, p.Status)
	assert.NotEmpty(t, p.ValidateContribution(dec("1")))
}

func TestShareCapital_Shares(t *testing.T) {
	t.Parallel()

	sc := &ShareCapital{MemberID: "m-1", PaidAmount: dec("250"), ShareValue: dec("100")}
	assert.Equal(t, int64(2), sc.Shares())

	sc.ApplyContribution(dec("50"))
	assert.Equal(t, int64(3), sc.Shares())
}

func TestSavingsAccount(t *testing.T) {
	t.Parallel()

	acc := &SavingsAccount{ID: "sav-1", Balance: dec("1000"), LockedAmount: decimal.Zero, Status: SavingsStatusActive}
	acc.ApplyCredit(dec("500"))
	acc.Lock(dec("600"))

	assert.True(t, acc.Balance.Equal(dec("1500")))
	assert.True(t, acc.Available().Equal(dec("900")))

	acc.Status = SavingsStatusFrozen
	assert.NotEmpty(t, acc.ValidateCredit(dec("1")))
}

func TestLoanApplication_Repayment(t *testing.T) {
	t.Parallel()

	at := fixedTime
	loan := &LoanApplication{State: LoanStateDisbursed, DisbursedAt: &at, Principal: dec("1000"), OutstandingBalance: dec("1000")}

	require.ErrorIs(t, loan.ValidateRepayment(dec("1001")), ErrInvalidAmount)
	require.NoError(t, loan.ValidateRepayment(dec("400")))

	loan.ApplyRepayment(dec("400"))
	assert.False(t, loan.Closed)
	loan.ApplyRepayment(dec("600"))
	assert.True(t, loan.Closed)
	assert.ErrorIs(t, loan.ValidateRepayment(dec("1")), ErrLoanClosed)

	draft := &LoanApplication{State: LoanStateDraft}
	assert.ErrorIs(t, draft.ValidateRepayment(dec("1")), ErrInvalidTransition)
}

func TestMaxEligiblePrincipal(t *testing.T) {
	t.Parallel()

	limit, ok := MaxEligiblePrincipal(dec("20000"), dec("3"))
	require.True(t, ok)
	assert.True(t, limit.Equal(dec("60000")))

	_, ok = MaxEligiblePrincipal(dec("20000"), decimal.Zero)
	assert.False(t, ok)
}

func TestVotingSession(t *testing.T) {
	t.Parallel()

	t.Run("reject policy refuses second ballot", func(t *testing.T) {
		s := NewVotingSession("vs-1", "loan-1", "m-chair", fixedTime)
		require.NoError(t, s.Cast("m-2", VoteYes, VotePolicyReject, fixedTime))
		assert.ErrorIs(t, s.Cast("m-2", VoteNo, VotePolicyReject, fixedTime), ErrDuplicateVote)

		yes, no := s.Tally()
		assert.Equal(t, 1, yes)
		assert.Equal(t, 0, no)
	})

	t.Run("overwrite policy replaces ballot", func(t *testing.T) {
		s := NewVotingSession("vs-1", "loan-1", "m-chair", fixedTime)
		require.NoError(t, s.Cast("m-2", VoteYes, VotePolicyOverwrite, fixedTime))
		require.NoError(t, s.Cast("m-2", VoteNo, VotePolicyOverwrite, fixedTime))

		yes, no := s.Tally()
		assert.Equal(t, 0, yes)
		assert.Equal(t, 1, no)
	})

	t.Run("tie is rejected", func(t *testing.T) {
		s := NewVotingSession("vs-1", "loan-1", "m-chair", fixedTime)
		require.NoError(t, s.Cast("m-2", VoteYes, VotePolicyReject, fixedTime))
		require.NoError(t, s.Cast("m-3", VoteNo, VotePolicyReject, fixedTime))
		assert.Equal(t, VoteOutcomeRejected, s.Outcome(nil))
	})

	t.Run("override wins over tally", func(t *testing.T) {
		s := NewVotingSession("vs-1", "loan-1", "m-chair", fixedTime)
		override := VoteOutcomeApproved
		assert.Equal(t, VoteOutcomeApproved, s.Close("m-chair", &override, fixedTime))
		assert.Equal(t, "m-chair", s.ClosedBy)
	})

	t.Run("parse choice", func(t *testing.T) {
		c, err := ParseVoteChoice(" yes ")
		require.NoError(t, err)
		assert.Equal(t, VoteYes, c)

		_, err = ParseVoteChoice("abstain")
		assert.ErrorIs(t, err, ErrInvalidVoteChoice)
	})
}

func TestGuaranteeCoverage(t *testing.T) {
	t.Parallel()

	pledges := []*GuarantorPledge{
		{ID: "p-1", Amount: dec("30000"), Status: PledgeStatusAccepted},
		{ID: "p-2", Amount: dec("20000"), Status: PledgeStatusPending},
	}

	assert.ErrorIs(t, SummarizePledges(pledges).Covers(dec("50000"), dec("1")), ErrInsufficientGuarantee)

	require.NoError(t, pledges[1].Respond(true, fixedTime))
	assert.NoError(t, SummarizePledges(pledges).Covers(dec("50000"), dec("1")))
	assert.ErrorIs(t, pledges[1].Respond(false, fixedTime), ErrPledgeNotPending)

	assert.ErrorIs(t, SummarizePledges(pledges).Covers(dec("50000"), dec("1.5")), ErrInsufficientGuarantee)
}

func TestSummarizePledges(t *testing.T) {
	t.Parallel()

	c := SummarizePledges([]*GuarantorPledge{
		{ID: "p-1", Amount: dec("30000"), Status: PledgeStatusAccepted},
		{ID: "p-2", Amount: dec("15000"), Status: PledgeStatusPending},
		{ID: "p-3", Amount: dec("9000"), Status: PledgeStatusDeclined},
	})

	assert.True(t, c.Accepted.Equal(dec("30000")), "accepted %s", c.Accepted)
	assert.True(t, c.Pledged.Equal(dec("45000")), "pledged %s", c.Pledged)
	assert.Equal(t, 1, c.Pending)
	assert.Equal(t, 1, c.Declined)
	assert.Equal(t, 3, c.Count)

	assert.True(t, SummarizePledges(nil).Pledged.IsZero())
}

func TestValidateReference(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateReference("CHQ-1"))
	assert.ErrorIs(t, ValidateReference("  "), ErrMissingReference)
	assert.ErrorIs(t, ValidateReference("QK 12"), ErrInvalidReference)
}
