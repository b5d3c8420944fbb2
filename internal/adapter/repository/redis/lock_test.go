package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iho/saccogov/internal/domain"
)

func TestLoanLockerSerializesSameLoan(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	locker := NewLoanLocker(client, LockOptions{Expiry: 5 * time.Second, Tries: 200, RetryDelay: 5 * time.Millisecond})

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "loan:loan-1", func(ctx context.Context) error {
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("with lock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Fatalf("expected exclusive execution, saw %d holders", maxSeen.Load())
	}
	if mr.Exists(locker.prefix + "loan:loan-1") {
		t.Fatalf("lock key must be released")
	}
}

func TestLoanLockerReturnsFnError(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	locker := NewLoanLocker(client, DefaultLockOptions())
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "loan:loan-2", func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if mr.Exists(locker.prefix + "loan:loan-2") {
		t.Fatalf("lock key must be released after an error")
	}
}

func TestLoanLockerGivesUpWhenHeld(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	locker := NewLoanLocker(client, LockOptions{Expiry: time.Minute, Tries: 2, RetryDelay: time.Millisecond})
	if err := mr.Set(locker.prefix+"loan:loan-3", "someone-else"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	called := false
	err := locker.WithLock(context.Background(), "loan:loan-3", func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Fatalf("expected acquisition failure, got err=%v called=%v", err, called)
	}
	if !errors.Is(err, domain.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}
