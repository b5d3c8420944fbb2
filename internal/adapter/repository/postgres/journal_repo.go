package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

const getMappingByEvent = `SELECT event_name, debit_account_code, credit_account_code, description
FROM gl_mappings WHERE event_name = $1`

const listMappings = `SELECT event_name, debit_account_code, credit_account_code, description
FROM gl_mappings ORDER BY event_name`

// GLMappingRepository implements usecase.GLMappingRepository.
type GLMappingRepository struct {
	db DBTX
}

// NewGLMappingRepository creates a new GLMappingRepository.
func NewGLMappingRepository(db DBTX) *GLMappingRepository {
	return &GLMappingRepository{db: db}
}

// GetByEvent resolves an event's accounts.
func (r *GLMappingRepository) GetByEvent(ctx context.Context, eventName string) (*domain.GLMapping, error) {
	var m domain.GLMapping
	err := r.db.QueryRow(ctx, getMappingByEvent, eventName).
		Scan(&m.EventName, &m.DebitAccountCode, &m.CreditAccountCode, &m.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnmappedEvent
		}
		return nil, err
	}
	return &m, nil
}

// List returns all mappings ordered by event name.
func (r *GLMappingRepository) List(ctx context.Context) ([]*domain.GLMapping, error) {
	rows, err := r.db.Query(ctx, listMappings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mappings := []*domain.GLMapping{}
	for rows.Next() {
		var m domain.GLMapping
		if err := rows.Scan(&m.EventName, &m.DebitAccountCode, &m.CreditAccountCode, &m.Description); err != nil {
			return nil, err
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}

const journalColumns = `id, event_name, debit_account, debit_amount, credit_account, credit_amount, description, source_ref, posted_at`

const createJournalEntry = `INSERT INTO journal_entries (` + journalColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const listJournalBySource = `SELECT ` + journalColumns + ` FROM journal_entries
WHERE source_ref = $1 ORDER BY posted_at, id`

const listJournalByEvent = `SELECT ` + journalColumns + ` FROM journal_entries
WHERE event_name = $1 ORDER BY posted_at DESC, id DESC LIMIT $2 OFFSET $3`

const journalTotals = `SELECT COALESCE(SUM(debit_amount), 0), COALESCE(SUM(credit_amount), 0) FROM journal_entries`

// JournalRepository implements usecase.JournalRepository.
type JournalRepository struct {
	db DBTX
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(db DBTX) *JournalRepository {
	return &JournalRepository{db: db}
}

// Create appends an entry. A second disbursement entry for the same loan
// violates idx_journal_one_disbursement.
func (r *JournalRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error {
	_, err := txOf(tx).Exec(ctx, createJournalEntry,
		entry.ID,
		entry.EventName,
		entry.Debit.AccountCode,
		decimalToNumeric(entry.Debit.Amount),
		entry.Credit.AccountCode,
		decimalToNumeric(entry.Credit.Amount),
		entry.Description,
		entry.SourceRef,
		timeToPgTimestamptz(entry.PostedAt),
	)
	if uniqueViolation(err, "idx_journal_one_disbursement") {
		return domain.ErrAlreadyDisbursed
	}
	return err
}

// ListBySource returns the entries for a source reference in posting order.
func (r *JournalRepository) ListBySource(ctx context.Context, sourceRef string) ([]*domain.JournalEntry, error) {
	return r.list(ctx, listJournalBySource, sourceRef)
}

// ListByEvent lists entries of one event, newest first.
func (r *JournalRepository) ListByEvent(ctx context.Context, eventName string, limit, offset int) ([]*domain.JournalEntry, error) {
	return r.list(ctx, listJournalByEvent, eventName, int32(limit), int32(offset))
}

// Totals sums both sides of every entry.
func (r *JournalRepository) Totals(ctx context.Context) (debits, credits decimal.Decimal, err error) {
	var d, c pgtype.Numeric
	if err := r.db.QueryRow(ctx, journalTotals).Scan(&d, &c); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return numericToDecimal(d), numericToDecimal(c), nil
}

func (r *JournalRepository) list(ctx context.Context, query string, args ...any) ([]*domain.JournalEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*domain.JournalEntry{}
	for rows.Next() {
		var (
			e                   domain.JournalEntry
			debitAmt, creditAmt pgtype.Numeric
			postedAt            pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ID, &e.EventName, &e.Debit.AccountCode, &debitAmt, &e.Credit.AccountCode,
			&creditAmt, &e.Description, &e.SourceRef, &postedAt); err != nil {
			return nil, err
		}
		e.Debit.Amount = numericToDecimal(debitAmt)
		e.Credit.Amount = numericToDecimal(creditAmt)
		e.PostedAt = postedAt.Time
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

const allocationColumns = `id, reference, member_id, total, method, payment_reference, bank_account_code,
	direction, notes, created_by, created_at`

const createAllocation = `INSERT INTO allocations (` + allocationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const createAllocationPosting = `INSERT INTO allocation_postings
(allocation_id, line_index, destination, target_id, amount, journal_entry_id)
VALUES ($1, $2, $3, $4, $5, $6)`

const getAllocationByReference = `SELECT ` + allocationColumns + ` FROM allocations WHERE reference = $1`

const listAllocationsByMember = `SELECT ` + allocationColumns + ` FROM allocations
WHERE member_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`

const listAllocationPostings = `SELECT line_index, destination, target_id, amount, journal_entry_id
FROM allocation_postings WHERE allocation_id = $1 ORDER BY line_index`

// AllocationRepository implements usecase.AllocationRepository.
type AllocationRepository struct {
	db DBTX
}

// NewAllocationRepository creates a new AllocationRepository.
func NewAllocationRepository(db DBTX) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// Create records an accepted allocation and its postings.
func (r *AllocationRepository) Create(ctx context.Context, tx usecase.Transaction, allocation *domain.Allocation) error {
	db := txOf(tx)
	_, err := db.Exec(ctx, createAllocation,
		allocation.ID,
		allocation.Reference,
		allocation.MemberID,
		decimalToNumeric(allocation.Total),
		string(allocation.Method),
		allocation.PaymentReference,
		allocation.BankAccountCode,
		string(allocation.Direction),
		allocation.Notes,
		allocation.CreatedBy,
		timeToPgTimestamptz(allocation.CreatedAt),
	)
	if err != nil {
		if uniqueViolation(err, "") {
			return domain.ErrConcurrentModification
		}
		return err
	}

	for _, p := range allocation.Postings {
		_, err := db.Exec(ctx, createAllocationPosting,
			allocation.ID,
			p.Index,
			string(p.Destination),
			p.TargetID,
			decimalToNumeric(p.Amount),
			p.JournalEntryID,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// GetByReference retrieves an allocation by its transaction reference.
func (r *AllocationRepository) GetByReference(ctx context.Context, reference string) (*domain.Allocation, error) {
	a, err := scanAllocation(r.db.QueryRow(ctx, getAllocationByReference, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAllocationNotFound
		}
		return nil, err
	}
	if err := r.loadPostings(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListByMember lists a member's allocations, newest first.
func (r *AllocationRepository) ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*domain.Allocation, error) {
	rows, err := r.db.Query(ctx, listAllocationsByMember, memberID, int32(limit), int32(offset))
	if err != nil {
		return nil, err
	}

	allocations := []*domain.Allocation{}
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		allocations = append(allocations, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Postings are loaded once the outer result set is released.
	for _, a := range allocations {
		if err := r.loadPostings(ctx, a); err != nil {
			return nil, err
		}
	}
	return allocations, nil
}

func (r *AllocationRepository) loadPostings(ctx context.Context, a *domain.Allocation) error {
	rows, err := r.db.Query(ctx, listAllocationPostings, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	a.Postings = []domain.AllocationPosting{}
	for rows.Next() {
		var (
			p           domain.AllocationPosting
			destination string
			amount      pgtype.Numeric
		)
		if err := rows.Scan(&p.Index, &destination, &p.TargetID, &amount, &p.JournalEntryID); err != nil {
			return err
		}
		p.Destination = domain.DestinationType(destination)
		p.Amount = numericToDecimal(amount)
		a.Postings = append(a.Postings, p)
	}
	return rows.Err()
}

func scanAllocation(row pgx.Row) (*domain.Allocation, error) {
	var (
		a                 domain.Allocation
		total             pgtype.Numeric
		method, direction string
		createdAt         pgtype.Timestamptz
	)
	err := row.Scan(&a.ID, &a.Reference, &a.MemberID, &total, &method, &a.PaymentReference,
		&a.BankAccountCode, &direction, &a.Notes, &a.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Total = numericToDecimal(total)
	a.Method = domain.PaymentMethod(method)
	a.Direction = domain.AllocationDirection(direction)
	a.CreatedAt = createdAt.Time
	return &a, nil
}
