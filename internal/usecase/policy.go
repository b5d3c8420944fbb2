package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
)

// Policy holds the SACCO's configurable lending rules.
type Policy struct {
	// MinGuaranteeRatio is accepted guarantee over principal required to submit.
	MinGuaranteeRatio decimal.Decimal
	// SavingsMultiplier caps principal at savings x multiplier. Zero disables the cap.
	SavingsMultiplier decimal.Decimal
	// VotePolicy decides how repeat ballots are handled.
	VotePolicy domain.VotePolicy
	// AllocationEpsilon is the rounding tolerance between deposit total and lines.
	AllocationEpsilon decimal.Decimal
	// ApplicationFee must be paid before submission when positive.
	ApplicationFee decimal.Decimal
	// ShareValue is the price of one share.
	ShareValue decimal.Decimal
}

// DefaultPolicy returns the rules used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinGuaranteeRatio: decimal.NewFromInt(1),
		SavingsMultiplier: decimal.NewFromInt(3),
		VotePolicy:        domain.VotePolicyReject,
		AllocationEpsilon: decimal.RequireFromString("0.01"),
		ApplicationFee:    decimal.Zero,
		ShareValue:        decimal.NewFromInt(100),
	}
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func actorOf(p domain.Principal) string {
	if p.MemberID == "" {
		return SystemActor
	}
	return p.MemberID
}
