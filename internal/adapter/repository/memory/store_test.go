package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
)

func TestTxRollbackDiscardsChanges(t *testing.T) {
	store := NewStore()
	txm := NewTxManager(store)
	loans := NewLoanRepository(store)
	ctx := context.Background()

	tx, err := txm.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := loans.Create(ctx, tx, &domain.LoanApplication{ID: "loan-1", State: domain.LoanStateDraft, Version: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if _, err := loans.GetByID(ctx, "loan-1"); !errors.Is(err, domain.ErrLoanNotFound) {
		t.Fatalf("expected rolled back loan to be absent, got %v", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, ErrTxDone) {
		t.Fatalf("expected ErrTxDone after rollback, got %v", err)
	}
}

func TestTxCommitPublishesAndIsolates(t *testing.T) {
	store := NewStore()
	txm := NewTxManager(store)
	loans := NewLoanRepository(store)
	ctx := context.Background()

	tx, _ := txm.Begin(ctx)
	_ = loans.Create(ctx, tx, &domain.LoanApplication{ID: "loan-1", State: domain.LoanStateDraft, Version: 1})

	// Uncommitted rows are invisible to plain reads.
	if _, err := loans.GetByID(ctx, "loan-1"); !errors.Is(err, domain.ErrLoanNotFound) {
		t.Fatalf("expected uncommitted loan to be invisible, got %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := loans.GetByID(ctx, "loan-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.State = domain.LoanStateRejected

	again, _ := loans.GetByID(ctx, "loan-1")
	if again.State != domain.LoanStateDraft {
		t.Fatalf("mutating a read copy leaked into the store")
	}
}

func TestLoanUpdateVersionCheck(t *testing.T) {
	store := NewStore()
	txm := NewTxManager(store)
	loans := NewLoanRepository(store)
	ctx := context.Background()

	tx, _ := txm.Begin(ctx)
	_ = loans.Create(ctx, tx, &domain.LoanApplication{ID: "loan-1", State: domain.LoanStateDraft, Version: 1})
	_ = tx.Commit(ctx)

	tx, _ = txm.Begin(ctx)
	stale, _ := loans.GetByIDForUpdate(ctx, tx, "loan-1")
	fresh, _ := loans.GetByIDForUpdate(ctx, tx, "loan-1")

	if err := loans.Update(ctx, tx, fresh); err != nil {
		t.Fatalf("update: %v", err)
	}
	if fresh.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", fresh.Version)
	}
	if err := loans.Update(ctx, tx, stale); !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	_ = tx.Rollback(ctx)
}

func TestJournalRejectsSecondDisbursement(t *testing.T) {
	store := NewStore()
	txm := NewTxManager(store)
	journal := NewJournalRepository(store)
	ctx := context.Background()

	entry := func(id string) *domain.JournalEntry {
		return &domain.JournalEntry{
			ID:        id,
			EventName: domain.EventLoanDisbursement,
			Debit:     domain.JournalLine{AccountCode: "1100", Amount: decimal.NewFromInt(10)},
			Credit:    domain.JournalLine{AccountCode: "2010", Amount: decimal.NewFromInt(10)},
			SourceRef: "loan-1",
		}
	}

	tx, _ := txm.Begin(ctx)
	if err := journal.Create(ctx, tx, entry("e1")); err != nil {
		t.Fatalf("first entry: %v", err)
	}
	if err := journal.Create(ctx, tx, entry("e2")); !errors.Is(err, domain.ErrAlreadyDisbursed) {
		t.Fatalf("expected ErrAlreadyDisbursed, got %v", err)
	}
	_ = tx.Commit(ctx)

	debits, credits, err := journal.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if !debits.Equal(credits) || !debits.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected totals %s / %s", debits, credits)
	}
}

func TestDefaultMappingsSeeded(t *testing.T) {
	repo := NewGLMappingRepository(NewStore())

	m, err := repo.GetByEvent(context.Background(), domain.EventLoanDisbursement)
	if err != nil {
		t.Fatalf("expected default disbursement mapping: %v", err)
	}
	if m.DebitAccountCode != "1100" || m.CreditAccountCode != "2010" {
		t.Fatalf("unexpected mapping %+v", m)
	}

	all, _ := repo.List(context.Background())
	if len(all) != len(domain.DefaultGLMappings()) {
		t.Fatalf("expected %d mappings, got %d", len(domain.DefaultGLMappings()), len(all))
	}
}

func TestBeginHonoursContext(t *testing.T) {
	store := NewStore()
	txm := NewTxManager(store)

	tx, _ := txm.Begin(context.Background())
	defer func() { _ = tx.Rollback(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := txm.Begin(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while another writer is open, got %v", err)
	}
}

func TestKeyedLockerSerializesPerKey(t *testing.T) {
	locker := NewKeyedLocker()

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithLock(context.Background(), "loan:1", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("expected one holder at a time, saw %d", peak)
	}
	if len(locker.locks) != 0 {
		t.Fatalf("expected idle locks to be released, have %d", len(locker.locks))
	}
}
