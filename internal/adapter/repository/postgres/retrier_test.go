package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iho/saccogov/internal/domain"
)

func fastRetrier(maxRetries int, opts ...RetrierOption) *Retrier {
	r := NewRetrier(append(opts, WithMaxRetries(maxRetries))...)
	r.initialInterval = time.Millisecond
	r.maxInterval = 2 * time.Millisecond
	r.maxElapsedTime = 50 * time.Millisecond
	return r
}

func TestRetrierRetriesOnRetryableError(t *testing.T) {
	r := fastRetrier(2)

	attempts := 0
	err := r.Retry(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return &pgconn.PgError{Code: pgErrSerializationFailure}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetrierGivesUpAfterMaxRetries(t *testing.T) {
	var codes []string
	r := fastRetrier(2, WithRetryHook(func(code string) { codes = append(codes, code) }))

	attempts := 0
	err := r.Retry(context.Background(), func() error {
		attempts++
		return &pgconn.PgError{Code: pgErrLockNotAvailable}
	})

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgErrLockNotAvailable {
		t.Fatalf("expected lock error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(codes) != 2 || codes[0] != pgErrLockNotAvailable {
		t.Fatalf("expected two hooked retries for %s, got %v", pgErrLockNotAvailable, codes)
	}
}

func TestRetrierNeverRetriesDomainErrors(t *testing.T) {
	r := fastRetrier(3)

	for _, domainErr := range []error{domain.ErrConcurrentModification, domain.ErrAlreadyDisbursed, domain.ErrInvalidTransition} {
		attempts := 0
		err := r.Retry(context.Background(), func() error {
			attempts++
			return fmt.Errorf("disburse: %w", domainErr)
		})

		if !errors.Is(err, domainErr) {
			t.Fatalf("expected %v, got %v", domainErr, err)
		}
		if attempts != 1 {
			t.Fatalf("%v: expected 1 attempt, got %d", domainErr, attempts)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: pgErrDeadlock}, true},
		{&pgconn.PgError{Code: pgErrSerializationFailure}, true},
		{fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: pgErrLockNotAvailable}), true},
		{&pgconn.PgError{Code: pgErrUniqueViolation}, false},
		{errors.New("other"), false},
	}

	for _, tc := range cases {
		if got := isRetryableError(tc.err); got != tc.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
