package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
)

// LoanRepository defines data access for loan applications.
type LoanRepository interface {
	Create(ctx context.Context, tx Transaction, loan *domain.LoanApplication) error
	GetByID(ctx context.Context, id string) (*domain.LoanApplication, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.LoanApplication, error)
	// Update persists loan when the stored version equals loan.Version and bumps it.
	// A version mismatch returns domain.ErrConcurrentModification.
	Update(ctx context.Context, tx Transaction, loan *domain.LoanApplication) error
	ListByBorrower(ctx context.Context, borrowerID string, limit, offset int) ([]*domain.LoanApplication, error)
	ListByState(ctx context.Context, state domain.LoanState, limit, offset int) ([]*domain.LoanApplication, error)
	AppendAudit(ctx context.Context, tx Transaction, record *domain.AuditRecord) error
	ListAudit(ctx context.Context, loanID string) ([]domain.AuditRecord, error)
}

// GuarantorRepository defines data access for guarantor pledges.
type GuarantorRepository interface {
	// Create returns domain.ErrDuplicateGuarantor if the (loan, guarantor) pair exists.
	Create(ctx context.Context, tx Transaction, pledge *domain.GuarantorPledge) error
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.GuarantorPledge, error)
	Update(ctx context.Context, tx Transaction, pledge *domain.GuarantorPledge) error
	ListByLoan(ctx context.Context, loanID string) ([]*domain.GuarantorPledge, error)
	ListByLoanTx(ctx context.Context, tx Transaction, loanID string) ([]*domain.GuarantorPledge, error)
}

// VotingSessionRepository defines data access for open voting sessions.
type VotingSessionRepository interface {
	// Create returns domain.ErrVotingSessionExists if the loan already has an open session.
	Create(ctx context.Context, tx Transaction, session *domain.VotingSession) error
	GetOpenByLoan(ctx context.Context, loanID string) (*domain.VotingSession, error)
	GetOpenByLoanForUpdate(ctx context.Context, tx Transaction, loanID string) (*domain.VotingSession, error)
	SaveVote(ctx context.Context, tx Transaction, sessionID string, vote domain.Vote) error
	// Close persists the closing stamp and removes the session from the open set.
	Close(ctx context.Context, tx Transaction, session *domain.VotingSession) error
}

// SavingsAccountRepository defines data access for member savings.
type SavingsAccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.SavingsAccount, error)
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.SavingsAccount, error)
	GetPrimaryByMemberForUpdate(ctx context.Context, tx Transaction, memberID string) (*domain.SavingsAccount, error)
	ListByMember(ctx context.Context, memberID string) ([]*domain.SavingsAccount, error)
	Update(ctx context.Context, tx Transaction, account *domain.SavingsAccount) error
}

// FineRepository defines data access for member fines.
type FineRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Fine, error)
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Fine, error)
	Update(ctx context.Context, tx Transaction, fine *domain.Fine) error
}

// ContributionProductRepository defines data access for contribution products.
type ContributionProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ContributionProduct, error)
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.ContributionProduct, error)
	Update(ctx context.Context, tx Transaction, product *domain.ContributionProduct) error
}

// ShareCapitalRepository defines data access for members' share capital.
type ShareCapitalRepository interface {
	GetByMember(ctx context.Context, memberID string) (*domain.ShareCapital, error)
	GetByMemberForUpdate(ctx context.Context, tx Transaction, memberID string) (*domain.ShareCapital, error)
	Upsert(ctx context.Context, tx Transaction, share *domain.ShareCapital) error
}

// BankAccountRepository resolves SACCO receiving accounts.
type BankAccountRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.BankAccount, error)
}

// GLMappingRepository resolves event names to GL accounts.
type GLMappingRepository interface {
	// GetByEvent returns domain.ErrUnmappedEvent when no mapping exists.
	GetByEvent(ctx context.Context, eventName string) (*domain.GLMapping, error)
	List(ctx context.Context) ([]*domain.GLMapping, error)
}

// JournalRepository defines data access for journal entries.
type JournalRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.JournalEntry) error
	ListBySource(ctx context.Context, sourceRef string) ([]*domain.JournalEntry, error)
	ListByEvent(ctx context.Context, eventName string, limit, offset int) ([]*domain.JournalEntry, error)
	// Totals returns the sum of debit and credit amounts across all entries.
	Totals(ctx context.Context) (debits, credits decimal.Decimal, err error)
}

// AllocationRepository defines data access for accepted allocations.
type AllocationRepository interface {
	Create(ctx context.Context, tx Transaction, allocation *domain.Allocation) error
	GetByReference(ctx context.Context, reference string) (*domain.Allocation, error)
	ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*domain.Allocation, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation on transient storage failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// LoanLocker serializes workflow commands on a single loan.
type LoanLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Cache defines caching operations.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Flush drops every key the cache owns.
	Flush(ctx context.Context) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a claimed key so the request can be retried.
	Release(ctx context.Context, key string) error
}
