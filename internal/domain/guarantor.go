package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PledgeStatus is the guarantor's answer to a pledge request.
type PledgeStatus string

const (
	PledgeStatusPending  PledgeStatus = "PENDING"
	PledgeStatusAccepted PledgeStatus = "ACCEPTED"
	PledgeStatusDeclined PledgeStatus = "DECLINED"
)

// GuarantorPledge is a member's commitment to cover part of a loan.
type GuarantorPledge struct {
	ID          string
	LoanID      string
	GuarantorID string
	Amount      decimal.Decimal
	Status      PledgeStatus
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// Respond records the guarantor's answer.
func (p *GuarantorPledge) Respond(accept bool, at time.Time) error {
	if p.Status != PledgeStatusPending {
		return ErrPledgeNotPending
	}
	p.Status = PledgeStatusDeclined
	if accept {
		p.Status = PledgeStatusAccepted
	}
	p.RespondedAt = &at
	return nil
}

// GuaranteeCoverage summarizes the pledges attached to a loan.
type GuaranteeCoverage struct {
	Accepted decimal.Decimal
	// Pledged sums accepted and pending pledges; declined ones drop out.
	Pledged  decimal.Decimal
	Pending  int
	Declined int
	Count    int
}

// SummarizePledges totals accepted pledges and counts unanswered ones.
func SummarizePledges(pledges []*GuarantorPledge) GuaranteeCoverage {
	c := GuaranteeCoverage{Accepted: decimal.Zero, Pledged: decimal.Zero, Count: len(pledges)}
	for _, p := range pledges {
		switch p.Status {
		case PledgeStatusAccepted:
			c.Accepted = c.Accepted.Add(p.Amount)
			c.Pledged = c.Pledged.Add(p.Amount)
		case PledgeStatusPending:
			c.Pending++
			c.Pledged = c.Pledged.Add(p.Amount)
		case PledgeStatusDeclined:
			c.Declined++
		}
	}
	return c
}

// Covers checks that accepted pledges reach ratio x principal and none are outstanding.
func (c GuaranteeCoverage) Covers(principal, ratio decimal.Decimal) error {
	if c.Pending > 0 {
		return ErrInsufficientGuarantee
	}
	if !ratio.IsPositive() {
		return nil
	}
	if c.Accepted.LessThan(principal.Mul(ratio)) {
		return ErrInsufficientGuarantee
	}
	return nil
}
