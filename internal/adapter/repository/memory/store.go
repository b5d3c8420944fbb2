// Package memory is a transactional in-memory implementation of the storage ports.
// Writers are serialized; each transaction works on a private copy of the
// committed state that replaces it on Commit.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

// ErrTxDone is returned when a finished transaction is used.
var ErrTxDone = errors.New("memory: transaction already committed or rolled back")

type state struct {
	loans       map[string]*domain.LoanApplication
	audit       map[string][]domain.AuditRecord
	pledges     map[string]*domain.GuarantorPledge
	sessions    map[string]*domain.VotingSession // open sessions by loan id
	closed      []*domain.VotingSession
	savings     map[string]*domain.SavingsAccount
	fines       map[string]*domain.Fine
	products    map[string]*domain.ContributionProduct
	shares      map[string]*domain.ShareCapital // by member id
	banks       map[string]*domain.BankAccount
	mappings    map[string]*domain.GLMapping
	journal     []*domain.JournalEntry
	allocations []*domain.Allocation
	outbox      []*domain.OutboxEvent
}

func newState() *state {
	return &state{
		loans:    make(map[string]*domain.LoanApplication),
		audit:    make(map[string][]domain.AuditRecord),
		pledges:  make(map[string]*domain.GuarantorPledge),
		sessions: make(map[string]*domain.VotingSession),
		savings:  make(map[string]*domain.SavingsAccount),
		fines:    make(map[string]*domain.Fine),
		products: make(map[string]*domain.ContributionProduct),
		shares:   make(map[string]*domain.ShareCapital),
		banks:    make(map[string]*domain.BankAccount),
		mappings: make(map[string]*domain.GLMapping),
	}
}

// clone copies every row so a transaction never mutates committed data.
// Journal entries and allocations are append-only, so their rows are shared.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.loans {
		c.loans[k] = copyLoan(v)
	}
	for k, v := range s.audit {
		c.audit[k] = append([]domain.AuditRecord(nil), v...)
	}
	for k, v := range s.pledges {
		p := *v
		c.pledges[k] = &p
	}
	for k, v := range s.sessions {
		c.sessions[k] = copySession(v)
	}
	c.closed = append(c.closed, s.closed...)
	for k, v := range s.savings {
		a := *v
		c.savings[k] = &a
	}
	for k, v := range s.fines {
		f := *v
		c.fines[k] = &f
	}
	for k, v := range s.products {
		p := *v
		c.products[k] = &p
	}
	for k, v := range s.shares {
		sh := *v
		c.shares[k] = &sh
	}
	for k, v := range s.banks {
		b := *v
		c.banks[k] = &b
	}
	for k, v := range s.mappings {
		m := *v
		c.mappings[k] = &m
	}
	c.journal = append(c.journal, s.journal...)
	c.allocations = append(c.allocations, s.allocations...)
	for _, e := range s.outbox {
		ev := *e
		c.outbox = append(c.outbox, &ev)
	}
	return c
}

// Store holds the committed state.
type Store struct {
	mu    sync.RWMutex
	state *state

	// writer holds one token; Begin takes it, Commit and Rollback return it.
	writer chan struct{}
}

// NewStore creates an empty store seeded with the default GL mappings.
func NewStore() *Store {
	s := &Store{
		state:  newState(),
		writer: make(chan struct{}, 1),
	}
	s.writer <- struct{}{}
	for _, m := range domain.DefaultGLMappings() {
		s.PutGLMapping(m)
	}
	return s
}

// Tx is an in-memory transaction.
type Tx struct {
	store *Store
	state *state
	done  bool
}

// Commit publishes the transaction's state.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	t.store.mu.Lock()
	t.store.state = t.state
	t.store.mu.Unlock()

	t.store.writer <- struct{}{}
	return nil
}

// Rollback discards the transaction's state.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.store.writer <- struct{}{}
	return nil
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin waits for the writer token and snapshots the committed state.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	select {
	case <-m.store.writer:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.store.mu.RLock()
	snapshot := m.store.state.clone()
	m.store.mu.RUnlock()

	return &Tx{store: m.store, state: snapshot}, nil
}

// inTx returns the working state of tx.
func (s *Store) inTx(tx usecase.Transaction) (*state, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, errors.New("memory: foreign transaction")
	}
	if t.done {
		return nil, ErrTxDone
	}
	return t.state, nil
}

// read runs fn against the committed state.
func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// write mutates committed state outside a transaction. It waits for the
// writer token so an open transaction cannot overwrite the change on Commit.
func (s *Store) write(ctx context.Context, fn func(st *state)) error {
	select {
	case <-s.writer:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { s.writer <- struct{}{} }()

	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
	return nil
}

func (s *Store) seed(fn func(st *state)) {
	_ = s.write(context.Background(), fn)
}

// PutSavingsAccount stores a savings account fixture.
func (s *Store) PutSavingsAccount(a domain.SavingsAccount) {
	s.seed(func(st *state) { st.savings[a.ID] = &a })
}

// PutFine stores a fine fixture.
func (s *Store) PutFine(f domain.Fine) {
	s.seed(func(st *state) { st.fines[f.ID] = &f })
}

// PutContributionProduct stores a contribution product fixture.
func (s *Store) PutContributionProduct(p domain.ContributionProduct) {
	s.seed(func(st *state) { st.products[p.ID] = &p })
}

// PutShareCapital stores a member's share capital fixture.
func (s *Store) PutShareCapital(sh domain.ShareCapital) {
	s.seed(func(st *state) { st.shares[sh.MemberID] = &sh })
}

// PutBankAccount stores a receiving bank account.
func (s *Store) PutBankAccount(b domain.BankAccount) {
	s.seed(func(st *state) { st.banks[b.Code] = &b })
}

// PutGLMapping stores or replaces an event mapping.
func (s *Store) PutGLMapping(m domain.GLMapping) {
	s.seed(func(st *state) { st.mappings[m.EventName] = &m })
}

// DeleteGLMapping removes an event mapping.
func (s *Store) DeleteGLMapping(eventName string) {
	s.seed(func(st *state) { delete(st.mappings, eventName) })
}

func copyLoan(l *domain.LoanApplication) *domain.LoanApplication {
	c := *l
	c.AuditTrail = append([]domain.AuditRecord(nil), l.AuditTrail...)
	return &c
}

func copySession(s *domain.VotingSession) *domain.VotingSession {
	c := *s
	c.Votes = make(map[string]domain.Vote, len(s.Votes))
	for k, v := range s.Votes {
		c.Votes[k] = v
	}
	return &c
}

func copyAllocation(a *domain.Allocation) *domain.Allocation {
	c := *a
	c.Postings = append([]domain.AllocationPosting(nil), a.Postings...)
	return &c
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
