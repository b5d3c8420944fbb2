package memory

import (
	"context"
	"sort"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

// LoanRepository implements usecase.LoanRepository.
type LoanRepository struct {
	store *Store
}

// NewLoanRepository creates a new LoanRepository.
func NewLoanRepository(store *Store) *LoanRepository {
	return &LoanRepository{store: store}
}

// Create inserts a new loan application.
func (r *LoanRepository) Create(ctx context.Context, tx usecase.Transaction, loan *domain.LoanApplication) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	if _, exists := st.loans[loan.ID]; exists {
		return domain.ErrConcurrentModification
	}
	st.loans[loan.ID] = copyLoan(loan)
	return nil
}

// GetByID retrieves a committed loan.
func (r *LoanRepository) GetByID(ctx context.Context, id string) (*domain.LoanApplication, error) {
	var loan *domain.LoanApplication
	err := r.store.read(func(st *state) error {
		l, ok := st.loans[id]
		if !ok {
			return domain.ErrLoanNotFound
		}
		loan = copyLoan(l)
		return nil
	})
	return loan, err
}

// GetByIDForUpdate retrieves a loan within the transaction.
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.LoanApplication, error) {
	st, err := r.store.inTx(tx)
	if err != nil {
		return nil, err
	}
	l, ok := st.loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	return copyLoan(l), nil
}

// Update persists loan if its version matches and bumps the version.
func (r *LoanRepository) Update(ctx context.Context, tx usecase.Transaction, loan *domain.LoanApplication) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	current, ok := st.loans[loan.ID]
	if !ok {
		return domain.ErrLoanNotFound
	}
	if current.Version != loan.Version {
		return domain.ErrConcurrentModification
	}
	loan.Version++
	st.loans[loan.ID] = copyLoan(loan)
	return nil
}

// ListByBorrower lists a member's loans, newest first.
func (r *LoanRepository) ListByBorrower(ctx context.Context, borrowerID string, limit, offset int) ([]*domain.LoanApplication, error) {
	return r.list(func(l *domain.LoanApplication) bool { return l.BorrowerID == borrowerID }, limit, offset)
}

// ListByState lists loans at a workflow stage, oldest first.
func (r *LoanRepository) ListByState(ctx context.Context, state domain.LoanState, limit, offset int) ([]*domain.LoanApplication, error) {
	loans, err := r.list(func(l *domain.LoanApplication) bool { return l.State == state }, 0, 0)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(loans, func(i, j int) bool { return loans[i].CreatedAt.Before(loans[j].CreatedAt) })
	return paginate(loans, limit, offset), nil
}

func (r *LoanRepository) list(match func(*domain.LoanApplication) bool, limit, offset int) ([]*domain.LoanApplication, error) {
	var loans []*domain.LoanApplication
	err := r.store.read(func(st *state) error {
		for _, l := range st.loans {
			if match(l) {
				loans = append(loans, copyLoan(l))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(loans, func(i, j int) bool {
		if loans[i].CreatedAt.Equal(loans[j].CreatedAt) {
			return loans[i].ID > loans[j].ID
		}
		return loans[i].CreatedAt.After(loans[j].CreatedAt)
	})
	return paginate(loans, limit, offset), nil
}

// AppendAudit adds a record to the loan's trail.
func (r *LoanRepository) AppendAudit(ctx context.Context, tx usecase.Transaction, record *domain.AuditRecord) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	st.audit[record.LoanID] = append(st.audit[record.LoanID], *record)
	return nil
}

// ListAudit returns a loan's trail in append order.
func (r *LoanRepository) ListAudit(ctx context.Context, loanID string) ([]domain.AuditRecord, error) {
	var trail []domain.AuditRecord
	err := r.store.read(func(st *state) error {
		trail = append([]domain.AuditRecord{}, st.audit[loanID]...)
		return nil
	})
	return trail, err
}
