package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingsStatus is the lifecycle of a savings account.
type SavingsStatus string

const (
	SavingsStatusActive SavingsStatus = "ACTIVE"
	SavingsStatusFrozen SavingsStatus = "FROZEN"
	SavingsStatusClosed SavingsStatus = "CLOSED"
)

// SavingsAccount is a member's deposit account.
// LockedAmount is the part held as guarantee for other members' loans.
type SavingsAccount struct {
	ID            string
	MemberID      string
	AccountNumber string
	Balance       decimal.Decimal
	LockedAmount  decimal.Decimal
	Status        SavingsStatus
	Primary       bool
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidateCredit checks if the account can receive amount.
func (a *SavingsAccount) ValidateCredit(amount decimal.Decimal) string {
	if a.Status != SavingsStatusActive {
		return "savings account is " + string(a.Status)
	}
	if !amount.IsPositive() {
		return "amount must be positive"
	}
	return ""
}

// ApplyCredit adds amount to the balance.
func (a *SavingsAccount) ApplyCredit(amount decimal.Decimal) {
	a.Balance = a.Balance.Add(amount)
}

// Available is the balance not locked as guarantee.
func (a *SavingsAccount) Available() decimal.Decimal {
	return a.Balance.Sub(a.LockedAmount)
}

// Lock holds amount as guarantee collateral.
func (a *SavingsAccount) Lock(amount decimal.Decimal) {
	a.LockedAmount = a.LockedAmount.Add(amount)
}

// FineStatus tracks settlement of a fine.
type FineStatus string

const (
	FineStatusUnpaid        FineStatus = "UNPAID"
	FineStatusPartiallyPaid FineStatus = "PARTIALLY_PAID"
	FineStatusPaid          FineStatus = "PAID"
)

// Fine is a penalty levied on a member.
type Fine struct {
	ID          string
	MemberID    string
	Description string
	Amount      decimal.Decimal
	PaidAmount  decimal.Decimal
	Status      FineStatus
	UpdatedAt   time.Time
}

// Outstanding is what remains to be paid.
func (f *Fine) Outstanding() decimal.Decimal {
	return f.Amount.Sub(f.PaidAmount)
}

// ValidatePayment checks that amount does not exceed the outstanding balance.
func (f *Fine) ValidatePayment(amount decimal.Decimal) string {
	if f.Status == FineStatusPaid || !f.Outstanding().IsPositive() {
		return "fine is already settled"
	}
	if amount.GreaterThan(f.Outstanding()) {
		return "amount exceeds outstanding balance " + f.Outstanding().String()
	}
	return ""
}

// ApplyPayment records a whole or partial payment.
func (f *Fine) ApplyPayment(amount decimal.Decimal) {
	f.PaidAmount = f.PaidAmount.Add(amount)
	if f.Outstanding().IsPositive() {
		f.Status = FineStatusPartiallyPaid
	} else {
		f.Status = FineStatusPaid
	}
}

// ProductStatus is the lifecycle of a contribution product.
type ProductStatus string

const (
	ProductStatusActive    ProductStatus = "ACTIVE"
	ProductStatusCompleted ProductStatus = "COMPLETED"
	ProductStatusClosed    ProductStatus = "CLOSED"
)

// ContributionProduct is a group savings goal such as a welfare fund.
// A nil TargetAmount means the product is open-ended.
type ContributionProduct struct {
	ID            string
	Name          string
	TargetAmount  *decimal.Decimal
	CurrentAmount decimal.Decimal
	Status        ProductStatus
	UpdatedAt     time.Time
}

// ValidateContribution checks the product is accepting money.
func (p *ContributionProduct) ValidateContribution(amount decimal.Decimal) string {
	if p.Status != ProductStatusActive {
		return "contribution product is " + string(p.Status)
	}
	if !amount.IsPositive() {
		return "amount must be positive"
	}
	return ""
}

// ApplyContribution adds amount and completes the product at its target.
func (p *ContributionProduct) ApplyContribution(amount decimal.Decimal) {
	p.CurrentAmount = p.CurrentAmount.Add(amount)
	if p.TargetAmount != nil && p.CurrentAmount.GreaterThanOrEqual(*p.TargetAmount) {
		p.Status = ProductStatusCompleted
	}
}

// ShareCapital is a member's paid-in equity.
type ShareCapital struct {
	ID         string
	MemberID   string
	PaidAmount decimal.Decimal
	ShareValue decimal.Decimal
	UpdatedAt  time.Time
}

// Shares returns the whole shares covered by the paid amount.
func (s *ShareCapital) Shares() int64 {
	if !s.ShareValue.IsPositive() {
		return 0
	}
	return s.PaidAmount.Div(s.ShareValue).Floor().IntPart()
}

// ApplyContribution adds amount to the paid-in capital.
func (s *ShareCapital) ApplyContribution(amount decimal.Decimal) {
	s.PaidAmount = s.PaidAmount.Add(amount)
}

// BankAccount is a SACCO receiving account, keyed by its GL code.
type BankAccount struct {
	Code   string
	Name   string
	Active bool
}
