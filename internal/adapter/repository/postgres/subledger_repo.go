package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

const savingsColumns = `id, member_id, account_number, balance, locked_amount, status, is_primary, version, created_at, updated_at`

const getSavingsByID = `SELECT ` + savingsColumns + ` FROM savings_accounts WHERE id = $1`

// Rows are locked in id order so concurrent allocations cannot deadlock.
const getSavingsByIDsForUpdate = `SELECT ` + savingsColumns + ` FROM savings_accounts
WHERE id = ANY($1) ORDER BY id FOR UPDATE`

const getPrimarySavingsForUpdate = `SELECT ` + savingsColumns + ` FROM savings_accounts
WHERE member_id = $1 AND is_primary FOR UPDATE`

const listSavingsByMember = `SELECT ` + savingsColumns + ` FROM savings_accounts WHERE member_id = $1 ORDER BY id`

const updateSavings = `UPDATE savings_accounts SET balance = $3, locked_amount = $4, status = $5,
	updated_at = $6, version = version + 1
WHERE id = $1 AND version = $2`

// SavingsAccountRepository implements usecase.SavingsAccountRepository.
type SavingsAccountRepository struct {
	db DBTX
}

// NewSavingsAccountRepository creates a new SavingsAccountRepository.
func NewSavingsAccountRepository(db DBTX) *SavingsAccountRepository {
	return &SavingsAccountRepository{db: db}
}

// GetByID retrieves an account by ID.
func (r *SavingsAccountRepository) GetByID(ctx context.Context, id string) (*domain.SavingsAccount, error) {
	acc, err := scanSavings(r.db.QueryRow(ctx, getSavingsByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSavingsAccountNotFound
	}
	return acc, err
}

// GetByIDsForUpdate locks the accounts that exist. Missing ids are skipped.
func (r *SavingsAccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.SavingsAccount, error) {
	rows, err := txOf(tx).Query(ctx, getSavingsByIDsForUpdate, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*domain.SavingsAccount, 0, len(ids))
	for rows.Next() {
		acc, err := scanSavings(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// GetPrimaryByMemberForUpdate locks the member's primary account.
func (r *SavingsAccountRepository) GetPrimaryByMemberForUpdate(ctx context.Context, tx usecase.Transaction, memberID string) (*domain.SavingsAccount, error) {
	acc, err := scanSavings(txOf(tx).QueryRow(ctx, getPrimarySavingsForUpdate, memberID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSavingsAccountNotFound
	}
	return acc, err
}

// ListByMember lists a member's accounts.
func (r *SavingsAccountRepository) ListByMember(ctx context.Context, memberID string) ([]*domain.SavingsAccount, error) {
	rows, err := r.db.Query(ctx, listSavingsByMember, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*domain.SavingsAccount{}
	for rows.Next() {
		acc, err := scanSavings(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// Update persists balance changes with a version check.
func (r *SavingsAccountRepository) Update(ctx context.Context, tx usecase.Transaction, account *domain.SavingsAccount) error {
	tag, err := txOf(tx).Exec(ctx, updateSavings,
		account.ID,
		account.Version,
		decimalToNumeric(account.Balance),
		decimalToNumeric(account.LockedAmount),
		string(account.Status),
		timeToPgTimestamptz(account.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentModification
	}

	account.Version++
	return nil
}

func scanSavings(row pgx.Row) (*domain.SavingsAccount, error) {
	var (
		acc                  domain.SavingsAccount
		balance, locked      pgtype.Numeric
		status               string
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&acc.ID, &acc.MemberID, &acc.AccountNumber, &balance, &locked, &status,
		&acc.Primary, &acc.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	acc.Balance = numericToDecimal(balance)
	acc.LockedAmount = numericToDecimal(locked)
	acc.Status = domain.SavingsStatus(status)
	acc.CreatedAt = createdAt.Time
	acc.UpdatedAt = updatedAt.Time
	return &acc, nil
}

const fineColumns = `id, member_id, description, amount, paid_amount, status, updated_at`

const getFineByID = `SELECT ` + fineColumns + ` FROM fines WHERE id = $1`

const getFinesByIDsForUpdate = `SELECT ` + fineColumns + ` FROM fines WHERE id = ANY($1) ORDER BY id FOR UPDATE`

const updateFine = `UPDATE fines SET paid_amount = $2, status = $3, updated_at = $4 WHERE id = $1`

// FineRepository implements usecase.FineRepository.
type FineRepository struct {
	db DBTX
}

// NewFineRepository creates a new FineRepository.
func NewFineRepository(db DBTX) *FineRepository {
	return &FineRepository{db: db}
}

// GetByID retrieves a fine by ID.
func (r *FineRepository) GetByID(ctx context.Context, id string) (*domain.Fine, error) {
	fine, err := scanFine(r.db.QueryRow(ctx, getFineByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrFineNotFound
	}
	return fine, err
}

// GetByIDsForUpdate locks the fines that exist.
func (r *FineRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Fine, error) {
	rows, err := txOf(tx).Query(ctx, getFinesByIDsForUpdate, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fines := make([]*domain.Fine, 0, len(ids))
	for rows.Next() {
		fine, err := scanFine(rows)
		if err != nil {
			return nil, err
		}
		fines = append(fines, fine)
	}
	return fines, rows.Err()
}

// Update stores a payment against the fine.
func (r *FineRepository) Update(ctx context.Context, tx usecase.Transaction, fine *domain.Fine) error {
	tag, err := txOf(tx).Exec(ctx, updateFine, fine.ID, decimalToNumeric(fine.PaidAmount), string(fine.Status), timeToPgTimestamptz(fine.UpdatedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFineNotFound
	}
	return nil
}

func scanFine(row pgx.Row) (*domain.Fine, error) {
	var (
		fine         domain.Fine
		amount, paid pgtype.Numeric
		status       string
		updatedAt    pgtype.Timestamptz
	)
	if err := row.Scan(&fine.ID, &fine.MemberID, &fine.Description, &amount, &paid, &status, &updatedAt); err != nil {
		return nil, err
	}
	fine.Amount = numericToDecimal(amount)
	fine.PaidAmount = numericToDecimal(paid)
	fine.Status = domain.FineStatus(status)
	fine.UpdatedAt = updatedAt.Time
	return &fine, nil
}

const productColumns = `id, name, target_amount, current_amount, status, updated_at`

const getProductByID = `SELECT ` + productColumns + ` FROM contribution_products WHERE id = $1`

const getProductsByIDsForUpdate = `SELECT ` + productColumns + ` FROM contribution_products
WHERE id = ANY($1) ORDER BY id FOR UPDATE`

const updateProduct = `UPDATE contribution_products SET current_amount = $2, status = $3, updated_at = $4 WHERE id = $1`

// ContributionProductRepository implements usecase.ContributionProductRepository.
type ContributionProductRepository struct {
	db DBTX
}

// NewContributionProductRepository creates a new ContributionProductRepository.
func NewContributionProductRepository(db DBTX) *ContributionProductRepository {
	return &ContributionProductRepository{db: db}
}

// GetByID retrieves a product by ID.
func (r *ContributionProductRepository) GetByID(ctx context.Context, id string) (*domain.ContributionProduct, error) {
	product, err := scanProduct(r.db.QueryRow(ctx, getProductByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	return product, err
}

// GetByIDsForUpdate locks the products that exist.
func (r *ContributionProductRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.ContributionProduct, error) {
	rows, err := txOf(tx).Query(ctx, getProductsByIDsForUpdate, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]*domain.ContributionProduct, 0, len(ids))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// Update stores the product's running total.
func (r *ContributionProductRepository) Update(ctx context.Context, tx usecase.Transaction, product *domain.ContributionProduct) error {
	tag, err := txOf(tx).Exec(ctx, updateProduct, product.ID, decimalToNumeric(product.CurrentAmount), string(product.Status), timeToPgTimestamptz(product.UpdatedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (*domain.ContributionProduct, error) {
	var (
		p               domain.ContributionProduct
		target, current pgtype.Numeric
		status          string
		updatedAt       pgtype.Timestamptz
	)
	if err := row.Scan(&p.ID, &p.Name, &target, &current, &status, &updatedAt); err != nil {
		return nil, err
	}
	p.TargetAmount = numericToOptional(target)
	p.CurrentAmount = numericToDecimal(current)
	p.Status = domain.ProductStatus(status)
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}

const getShareByMember = `SELECT id, member_id, paid_amount, share_value, updated_at FROM share_capital WHERE member_id = $1`

const getShareByMemberForUpdate = getShareByMember + ` FOR UPDATE`

const upsertShare = `INSERT INTO share_capital (id, member_id, paid_amount, share_value, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (member_id) DO UPDATE SET paid_amount = EXCLUDED.paid_amount, updated_at = EXCLUDED.updated_at`

// ShareCapitalRepository implements usecase.ShareCapitalRepository.
type ShareCapitalRepository struct {
	db DBTX
}

// NewShareCapitalRepository creates a new ShareCapitalRepository.
func NewShareCapitalRepository(db DBTX) *ShareCapitalRepository {
	return &ShareCapitalRepository{db: db}
}

// GetByMember retrieves a member's share capital.
func (r *ShareCapitalRepository) GetByMember(ctx context.Context, memberID string) (*domain.ShareCapital, error) {
	return scanShare(r.db.QueryRow(ctx, getShareByMember, memberID))
}

// GetByMemberForUpdate locks a member's share capital.
func (r *ShareCapitalRepository) GetByMemberForUpdate(ctx context.Context, tx usecase.Transaction, memberID string) (*domain.ShareCapital, error) {
	return scanShare(txOf(tx).QueryRow(ctx, getShareByMemberForUpdate, memberID))
}

// Upsert creates or replaces a member's share capital.
func (r *ShareCapitalRepository) Upsert(ctx context.Context, tx usecase.Transaction, share *domain.ShareCapital) error {
	_, err := txOf(tx).Exec(ctx, upsertShare,
		share.ID,
		share.MemberID,
		decimalToNumeric(share.PaidAmount),
		decimalToNumeric(share.ShareValue),
		timeToPgTimestamptz(share.UpdatedAt),
	)
	return err
}

func scanShare(row pgx.Row) (*domain.ShareCapital, error) {
	var (
		s           domain.ShareCapital
		paid, value pgtype.Numeric
		updatedAt   pgtype.Timestamptz
	)
	if err := row.Scan(&s.ID, &s.MemberID, &paid, &value, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrShareCapitalNotFound
		}
		return nil, err
	}
	s.PaidAmount = numericToDecimal(paid)
	s.ShareValue = numericToDecimal(value)
	s.UpdatedAt = updatedAt.Time
	return &s, nil
}

const getBankAccount = `SELECT code, name, active FROM bank_accounts WHERE code = $1`

// BankAccountRepository implements usecase.BankAccountRepository.
type BankAccountRepository struct {
	db DBTX
}

// NewBankAccountRepository creates a new BankAccountRepository.
func NewBankAccountRepository(db DBTX) *BankAccountRepository {
	return &BankAccountRepository{db: db}
}

// GetByCode resolves a receiving account by GL code.
func (r *BankAccountRepository) GetByCode(ctx context.Context, code string) (*domain.BankAccount, error) {
	var acc domain.BankAccount
	err := r.db.QueryRow(ctx, getBankAccount, code).Scan(&acc.Code, &acc.Name, &acc.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBankAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}
