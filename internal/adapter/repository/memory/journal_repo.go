package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

// GLMappingRepository implements usecase.GLMappingRepository.
type GLMappingRepository struct {
	store *Store
}

// NewGLMappingRepository creates a new GLMappingRepository.
func NewGLMappingRepository(store *Store) *GLMappingRepository {
	return &GLMappingRepository{store: store}
}

// GetByEvent resolves an event's accounts.
func (r *GLMappingRepository) GetByEvent(ctx context.Context, eventName string) (*domain.GLMapping, error) {
	var mapping *domain.GLMapping
	err := r.store.read(func(st *state) error {
		m, ok := st.mappings[eventName]
		if !ok {
			return domain.ErrUnmappedEvent
		}
		c := *m
		mapping = &c
		return nil
	})
	return mapping, err
}

// List returns all mappings ordered by event name.
func (r *GLMappingRepository) List(ctx context.Context) ([]*domain.GLMapping, error) {
	mappings := []*domain.GLMapping{}
	err := r.store.read(func(st *state) error {
		for _, m := range st.mappings {
			c := *m
			mappings = append(mappings, &c)
		}
		return nil
	})
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].EventName < mappings[j].EventName })
	return mappings, err
}

// JournalRepository implements usecase.JournalRepository.
type JournalRepository struct {
	store *Store
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(store *Store) *JournalRepository {
	return &JournalRepository{store: store}
}

// Create appends an entry. A loan gets at most one disbursement entry.
func (r *JournalRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	if entry.EventName == domain.EventLoanDisbursement {
		for _, e := range st.journal {
			if e.EventName == domain.EventLoanDisbursement && e.SourceRef == entry.SourceRef {
				return domain.ErrAlreadyDisbursed
			}
		}
	}
	c := *entry
	st.journal = append(st.journal, &c)
	return nil
}

// ListBySource returns the entries for a source reference in posting order.
func (r *JournalRepository) ListBySource(ctx context.Context, sourceRef string) ([]*domain.JournalEntry, error) {
	return r.filter(func(e *domain.JournalEntry) bool { return e.SourceRef == sourceRef }, 0, 0)
}

// ListByEvent lists entries of one event, newest first.
func (r *JournalRepository) ListByEvent(ctx context.Context, eventName string, limit, offset int) ([]*domain.JournalEntry, error) {
	entries, err := r.filter(func(e *domain.JournalEntry) bool { return e.EventName == eventName }, 0, 0)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].PostedAt.After(entries[j].PostedAt) })
	return paginate(entries, limit, offset), nil
}

// Totals sums both sides of every entry.
func (r *JournalRepository) Totals(ctx context.Context) (debits, credits decimal.Decimal, err error) {
	err = r.store.read(func(st *state) error {
		for _, e := range st.journal {
			debits = debits.Add(e.Debit.Amount)
			credits = credits.Add(e.Credit.Amount)
		}
		return nil
	})
	return debits, credits, err
}

func (r *JournalRepository) filter(match func(*domain.JournalEntry) bool, limit, offset int) ([]*domain.JournalEntry, error) {
	entries := []*domain.JournalEntry{}
	err := r.store.read(func(st *state) error {
		for _, e := range st.journal {
			if match(e) {
				c := *e
				entries = append(entries, &c)
			}
		}
		return nil
	})
	return paginate(entries, limit, offset), err
}

// AllocationRepository implements usecase.AllocationRepository.
type AllocationRepository struct {
	store *Store
}

// NewAllocationRepository creates a new AllocationRepository.
func NewAllocationRepository(store *Store) *AllocationRepository {
	return &AllocationRepository{store: store}
}

// Create records an accepted allocation.
func (r *AllocationRepository) Create(ctx context.Context, tx usecase.Transaction, allocation *domain.Allocation) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	for _, a := range st.allocations {
		if a.Reference == allocation.Reference {
			return domain.ErrConcurrentModification
		}
	}
	st.allocations = append(st.allocations, copyAllocation(allocation))
	return nil
}

// GetByReference retrieves an allocation by its transaction reference.
func (r *AllocationRepository) GetByReference(ctx context.Context, reference string) (*domain.Allocation, error) {
	var allocation *domain.Allocation
	err := r.store.read(func(st *state) error {
		for _, a := range st.allocations {
			if a.Reference == reference {
				allocation = copyAllocation(a)
				return nil
			}
		}
		return domain.ErrAllocationNotFound
	})
	return allocation, err
}

// ListByMember lists a member's allocations, newest first.
func (r *AllocationRepository) ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*domain.Allocation, error) {
	allocations := []*domain.Allocation{}
	err := r.store.read(func(st *state) error {
		for i := len(st.allocations) - 1; i >= 0; i-- {
			if a := st.allocations[i]; a.MemberID == memberID {
				allocations = append(allocations, copyAllocation(a))
			}
		}
		return nil
	})
	return paginate(allocations, limit, offset), err
}

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Create appends an event inside the transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	st, err := r.store.inTx(tx)
	if err != nil {
		return err
	}
	c := *event
	st.outbox = append(st.outbox, &c)
	return nil
}

// GetUnpublished returns the oldest unpublished events.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	events := []*domain.OutboxEvent{}
	err := r.store.read(func(st *state) error {
		for _, e := range st.outbox {
			if !e.Published {
				c := *e
				events = append(events, &c)
			}
		}
		return nil
	})
	return paginate(events, limit, 0), err
}

// MarkPublished flags an event as delivered.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	return r.store.write(ctx, func(st *state) {
		for _, e := range st.outbox {
			if e.ID == id {
				at := publishedAt
				e.Published = true
				e.PublishedAt = &at
			}
		}
	})
}

// GetByAggregate lists an aggregate's events in creation order.
func (r *OutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	events := []*domain.OutboxEvent{}
	err := r.store.read(func(st *state) error {
		for _, e := range st.outbox {
			if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
				c := *e
				events = append(events, &c)
			}
		}
		return nil
	})
	return paginate(events, limit, offset), err
}

// DeletePublished drops delivered events older than before.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	return r.store.write(ctx, func(st *state) {
		kept := st.outbox[:0]
		for _, e := range st.outbox {
			if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
				continue
			}
			kept = append(kept, e)
		}
		st.outbox = kept
	})
}
