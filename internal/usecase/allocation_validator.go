package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
)

// AllocationValidator checks a deposit split before anything is posted.
type AllocationValidator struct {
	savingsRepo SavingsAccountRepository
	loanRepo    LoanRepository
	fineRepo    FineRepository
	productRepo ContributionProductRepository
	bankRepo    BankAccountRepository
	policy      Policy
}

// NewAllocationValidator creates a new AllocationValidator.
func NewAllocationValidator(
	savingsRepo SavingsAccountRepository,
	loanRepo LoanRepository,
	fineRepo FineRepository,
	productRepo ContributionProductRepository,
	bankRepo BankAccountRepository,
	policy Policy,
) *AllocationValidator {
	return &AllocationValidator{
		savingsRepo: savingsRepo,
		loanRepo:    loanRepo,
		fineRepo:    fineRepo,
		productRepo: productRepo,
		bankRepo:    bankRepo,
		policy:      policy,
	}
}

// allocationTargets holds the sub-ledger rows locked for one allocation.
type allocationTargets struct {
	savings  map[string]*domain.SavingsAccount
	loans    map[string]*domain.LoanApplication
	fines    map[string]*domain.Fine
	products map[string]*domain.ContributionProduct
}

// ValidateRequest runs the checks that need no locks: bank account, shape and conservation.
func (v *AllocationValidator) ValidateRequest(ctx context.Context, req domain.AllocationRequest) error {
	if err := req.ValidateShape(v.policy.AllocationEpsilon); err != nil {
		return err
	}

	if req.Direction == domain.AllocationOutflow || !req.Method.RequiresBankAccount() {
		return nil
	}

	bank, err := v.bankRepo.GetByCode(ctx, req.BankAccountCode)
	if errors.Is(err, domain.ErrBankAccountNotFound) {
		return fmt.Errorf("%w: unknown bank account %s", domain.ErrMissingBankAccount, req.BankAccountCode)
	}
	if err != nil {
		return err
	}
	if !bank.Active {
		return fmt.Errorf("%w: bank account %s is inactive", domain.ErrMissingBankAccount, req.BankAccountCode)
	}

	return nil
}

// Resolve locks every destination row in tx and checks it can take its lines.
// Amounts aimed at the same target are checked cumulatively.
func (v *AllocationValidator) Resolve(ctx context.Context, tx Transaction, req domain.AllocationRequest) (*allocationTargets, error) {
	targets, err := v.lock(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	running := make(map[string]decimal.Decimal)
	for i, line := range req.Lines {
		key := string(line.Destination()) + "/" + line.Target()
		cumulative := running[key].Add(line.LineAmount())
		running[key] = cumulative

		if reason := v.check(req, targets, line, cumulative); reason != "" {
			return nil, &domain.DestinationError{
				Index:       i,
				Destination: line.Destination(),
				TargetID:    line.Target(),
				Reason:      reason,
			}
		}
	}

	return targets, nil
}

func (v *AllocationValidator) check(req domain.AllocationRequest, t *allocationTargets, line domain.AllocationLine, cumulative decimal.Decimal) string {
	switch l := line.(type) {
	case domain.SavingsLine:
		acc := t.savings[l.AccountID]
		if acc.MemberID != req.MemberID {
			return "savings account belongs to another member"
		}
		return acc.ValidateCredit(cumulative)

	case domain.LoanRepaymentLine:
		loan := t.loans[l.LoanID]
		if loan.BorrowerID != req.MemberID {
			return "loan belongs to another member"
		}
		if err := loan.ValidateRepayment(cumulative); err != nil {
			if errors.Is(err, domain.ErrInvalidAmount) {
				return "amount exceeds outstanding balance " + loan.OutstandingBalance.String()
			}
			return err.Error()
		}
		return ""

	case domain.FineLine:
		fine := t.fines[l.FineID]
		if fine.MemberID != req.MemberID {
			return "fine belongs to another member"
		}
		return fine.ValidatePayment(cumulative)

	case domain.ContributionLine:
		return t.products[l.ProductID].ValidateContribution(cumulative)

	case domain.ShareCapitalLine:
		return ""

	case domain.ProcessingFeeLine:
		loan := t.loans[l.LoanID]
		switch {
		case loan.BorrowerID != req.MemberID:
			return "loan belongs to another member"
		case loan.State != domain.LoanStateDraft:
			return "fees are only payable on draft applications"
		case loan.FeePaid:
			return domain.ErrFeeAlreadyPaid.Error()
		case !v.policy.ApplicationFee.IsPositive():
			return "no application fee is configured"
		case !cumulative.Equal(v.policy.ApplicationFee):
			return "fee must equal " + v.policy.ApplicationFee.String()
		}
		return ""
	}

	return fmt.Sprintf("unsupported line type %T", line)
}

// lock fetches destinations FOR UPDATE in sorted id order (DEADLOCK PREVENTION).
func (v *AllocationValidator) lock(ctx context.Context, tx Transaction, req domain.AllocationRequest) (*allocationTargets, error) {
	var savingsIDs, loanIDs, fineIDs, productIDs []string
	firstIndex := make(map[string]int)

	remember := func(list *[]string, d domain.DestinationType, id string, i int) {
		key := string(d) + "/" + id
		if _, seen := firstIndex[key]; seen {
			return
		}
		firstIndex[key] = i
		*list = append(*list, id)
	}

	for i, line := range req.Lines {
		switch l := line.(type) {
		case domain.SavingsLine:
			remember(&savingsIDs, l.Destination(), l.AccountID, i)
		case domain.LoanRepaymentLine:
			remember(&loanIDs, domain.DestinationLoanRepayment, l.LoanID, i)
		case domain.ProcessingFeeLine:
			remember(&loanIDs, domain.DestinationProcessingFee, l.LoanID, i)
		case domain.FineLine:
			remember(&fineIDs, l.Destination(), l.FineID, i)
		case domain.ContributionLine:
			remember(&productIDs, l.Destination(), l.ProductID, i)
		case domain.ShareCapitalLine:
		default:
			return nil, &domain.DestinationError{Index: i, Reason: fmt.Sprintf("unsupported line type %T", line)}
		}
	}

	missing := func(d domain.DestinationType, id string) error {
		return &domain.DestinationError{Index: firstIndex[string(d)+"/"+id], Destination: d, TargetID: id, Reason: "not found"}
	}

	t := &allocationTargets{
		savings:  make(map[string]*domain.SavingsAccount),
		loans:    make(map[string]*domain.LoanApplication),
		fines:    make(map[string]*domain.Fine),
		products: make(map[string]*domain.ContributionProduct),
	}

	if len(savingsIDs) > 0 {
		sort.Strings(savingsIDs)
		accounts, err := v.savingsRepo.GetByIDsForUpdate(ctx, tx, savingsIDs)
		if err != nil {
			return nil, err
		}
		for _, a := range accounts {
			t.savings[a.ID] = a
		}
		for _, id := range savingsIDs {
			if t.savings[id] == nil {
				return nil, missing(domain.DestinationSavings, id)
			}
		}
	}

	loanIDs = uniqueSorted(loanIDs)
	for _, id := range loanIDs {
		loan, err := v.loanRepo.GetByIDForUpdate(ctx, tx, id)
		if errors.Is(err, domain.ErrLoanNotFound) {
			d := domain.DestinationLoanRepayment
			if _, ok := firstIndex[string(d)+"/"+id]; !ok {
				d = domain.DestinationProcessingFee
			}
			return nil, missing(d, id)
		}
		if err != nil {
			return nil, err
		}
		t.loans[id] = loan
	}

	if len(fineIDs) > 0 {
		sort.Strings(fineIDs)
		fines, err := v.fineRepo.GetByIDsForUpdate(ctx, tx, fineIDs)
		if err != nil {
			return nil, err
		}
		for _, f := range fines {
			t.fines[f.ID] = f
		}
		for _, id := range fineIDs {
			if t.fines[id] == nil {
				return nil, missing(domain.DestinationFine, id)
			}
		}
	}

	if len(productIDs) > 0 {
		sort.Strings(productIDs)
		products, err := v.productRepo.GetByIDsForUpdate(ctx, tx, productIDs)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			t.products[p.ID] = p
		}
		for _, id := range productIDs {
			if t.products[id] == nil {
				return nil, missing(domain.DestinationContribution, id)
			}
		}
	}

	return t, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
