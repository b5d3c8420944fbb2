package memory

import (
	"context"
	"sort"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

// SavingsAccountRepository implements usecase.SavingsAccountRepository.
type SavingsAccountRepository struct {
	store *Store
}

// NewSavingsAccountRepository creates a new SavingsAccountRepository.
func NewSavingsAccountRepository(store *Store) *SavingsAccountRepository {
	return &SavingsAccountRepository{store: store}
}

// GetByID retrieves a committed savings account.
func (r *SavingsAccountRepository) GetByID(ctx context.Context, id string) (*domain.SavingsAccount, error) {
	var acc *domain.SavingsAccount
	err := r.store.read(func(st *state) error {
		a, ok := st.savings[id]
		if !ok {
			return domain.ErrSavingsAccountNotFound
		}
		c := *a
		acc = &c
		return nil
	})
	return acc, err
}

// GetByIDsForUpdate returns the accounts that exist, in id order.
func (r *SavingsAccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.SavingsAccount, error) {
	st, err := r.store.inTx(tx)
	if err != nil {
		return nil, err
	}
	accounts := make([]*domain.SavingsAccount, 0, len(ids))
	for _, id := range sortedIDs(ids) {
		if a, ok := st.savings[id]; ok {
			c := *a
			accounts = append(accounts, &c)
		}
	}
	return accounts, nil
}

// GetPrimaryByMemberForUpdate returns the member's primary account.
func (r *SavingsAccountRepository) GetPrimaryByMemberForUpdate(ctx context.Context, tx usecase.Transaction, memberID string) (*domain.SavingsAccount, error) {
	st, err := r.store.inTx(tx)
	if err != nil {
		return nil, err
	}
	for _, a := range st.savings {
		if a.MemberID == memberID && a.Primary {
			c := *a
			return &c, nil
		}
	}
	return nil, domain.ErrSavingsAccountNotFound
}

// ListByMember lists a member's committed accounts.
func (r *SavingsAccountRepository) ListByMember(ctx context.Context, memberID string) ([]*domain.SavingsAccount, error) {
	accounts := []*domain.SavingsAccount{}
	err := r.store.read(func(st *state) error {
		for _, a := range st.savings {
			if a.MemberID == memberID {
				c := *a
				accounts = append(accounts, &c)
			}
		}
		return nil
	})
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, err
}

// Update persists balance changes with a version check.
func (r *SavingsAccountRepository) Update(ctx context.Context, tx usecase.Transaction, account *domain.SavingsAccount) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	current, ok := st.savings[account.ID]
	if !ok {
		return domain.ErrSavingsAccountNotFound
	}
	if current.Version != account.Version {
		return domain.ErrConcurrentModification
	}
	account.Version++
	c := *account
	st.savings[c.ID] = &c
	return nil
}

// FineRepository implements usecase.FineRepository.
type FineRepository struct {
	store *Store
}

// NewFineRepository creates a new FineRepository.
func NewFineRepository(store *Store) *FineRepository {
	return &FineRepository{store: store}
}

// GetByID retrieves a committed fine.
func (r *FineRepository) GetByID(ctx context.Context, id string) (*domain.Fine, error) {
	var fine *domain.Fine
	err := r.store.read(func(st *state) error {
		f, ok := st.fines[id]
		if !ok {
			return domain.ErrFineNotFound
		}
		c := *f
		fine = &c
		return nil
	})
	return fine, err
}

// GetByIDsForUpdate returns the fines that exist, in id order.
func (r *FineRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Fine, error) {
	st, err := r.store.inTx(tx)
	if err != nil {
		return nil, err
	}
	fines := make([]*domain.Fine, 0, len(ids))
	for _, id := range sortedIDs(ids) {
		if f, ok := st.fines[id]; ok {
			c := *f
			fines = append(fines, &c)
		}
	}
	return fines, nil
}

// Update persists a fine payment.
func (r *FineRepository) Update(ctx context.Context, tx usecase.Transaction, fine *domain.Fine) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	if _, ok := st.fines[fine.ID]; !ok {
		return domain.ErrFineNotFound
	}
	c := *fine
	st.fines[c.ID] = &c
	return nil
}

// ContributionProductRepository implements usecase.ContributionProductRepository.
type ContributionProductRepository struct {
	store *Store
}

// NewContributionProductRepository creates a new ContributionProductRepository.
func NewContributionProductRepository(store *Store) *ContributionProductRepository {
	return &ContributionProductRepository{store: store}
}

// GetByID retrieves a committed product.
func (r *ContributionProductRepository) GetByID(ctx context.Context, id string) (*domain.ContributionProduct, error) {
	var product *domain.ContributionProduct
	err := r.store.read(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		c := *p
		product = &c
		return nil
	})
	return product, err
}

// GetByIDsForUpdate returns the products that exist, in id order.
func (r *ContributionProductRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.ContributionProduct, error) {
	st, err := r.store.inTx(tx)
	if err != nil {
		return nil, err
	}
	products := make([]*domain.ContributionProduct, 0, len(ids))
	for _, id := range sortedIDs(ids) {
		if p, ok := st.products[id]; ok {
			c := *p
			products = append(products, &c)
		}
	}
	return products, nil
}

// Update persists a contribution.
func (r *ContributionProductRepository) Update(ctx context.Context, tx usecase.Transaction, product *domain.ContributionProduct) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	if _, ok := st.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	c := *product
	st.products[c.ID] = &c
	return nil
}

// ShareCapitalRepository implements usecase.ShareCapitalRepository.
type ShareCapitalRepository struct {
	store *Store
}

// NewShareCapitalRepository creates a new ShareCapitalRepository.
func NewShareCapitalRepository(store *Store) *ShareCapitalRepository {
	return &ShareCapitalRepository{store: store}
}

// GetByMember retrieves a member's committed share capital.
func (r *ShareCapitalRepository) GetByMember(ctx context.Context, memberID string) (*domain.ShareCapital, error) {
	var shares *domain.ShareCapital
	err := r.store.read(func(st *state) error {
		s, ok := st.shares[memberID]
		if !ok {
			return domain.ErrShareCapitalNotFound
		}
		c := *s
		shares = &c
		return nil
	})
	return shares, err
}

// GetByMemberForUpdate retrieves share capital within the transaction.
func (r *ShareCapitalRepository) GetByMemberForUpdate(ctx context.Context, tx usecase.Transaction, memberID string) (*domain.ShareCapital, error) {
	st, err := r.store.inTx(tx)
	if err != nil {
		return nil, err
	}
	s, ok := st.shares[memberID]
	if !ok {
		return nil, domain.ErrShareCapitalNotFound
	}
	c := *s
	return &c, nil
}

// Upsert creates or replaces a member's share capital.
func (r *ShareCapitalRepository) Upsert(ctx context.Context, tx usecase.Transaction, share *domain.ShareCapital) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	c := *share
	st.shares[c.MemberID] = &c
	return nil
}

// BankAccountRepository implements usecase.BankAccountRepository.
type BankAccountRepository struct {
	store *Store
}

// NewBankAccountRepository creates a new BankAccountRepository.
func NewBankAccountRepository(store *Store) *BankAccountRepository {
	return &BankAccountRepository{store: store}
}

// GetByCode resolves a receiving bank account.
func (r *BankAccountRepository) GetByCode(ctx context.Context, code string) (*domain.BankAccount, error) {
	var bank *domain.BankAccount
	err := r.store.read(func(st *state) error {
		b, ok := st.banks[code]
		if !ok {
			return domain.ErrBankAccountNotFound
		}
		c := *b
		bank = &c
		return nil
	})
	return bank, err
}

func sortedIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
