package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iho/saccogov/internal/domain"
)

// LockOptions tunes the per-loan mutex.
type LockOptions struct {
	// Expiry bounds how long a crashed holder can block a loan.
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultLockOptions returns the options used by the server.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:     30 * time.Second,
		Tries:      40,
		RetryDelay: 50 * time.Millisecond,
	}
}

// LoanLocker implements usecase.LoanLocker across server instances with redsync.
type LoanLocker struct {
	rs     *redsync.Redsync
	opts   LockOptions
	prefix string
}

// NewLoanLocker creates a new LoanLocker.
func NewLoanLocker(client *redis.Client, opts LockOptions) *LoanLocker {
	return &LoanLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		prefix: "saccogov:lock:",
	}
}

// WithLock runs fn while holding the distributed mutex for key. Losing the
// race for a held lock surfaces as domain.ErrConcurrentModification.
func (l *LoanLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex(
		l.prefix+key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isLockContention(err) {
			return fmt.Errorf("%w: lock %s is held", domain.ErrConcurrentModification, key)
		}
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	defer func() {
		// Release with a fresh context so a cancelled request still frees the loan.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("lock", key).Msg("failed to release lock")
		}
	}()

	return fn(ctx)
}

// isLockContention reports whether err means another holder owns the lock.
// redsync reports a held quorum as ErrTaken, whose text is the stable part.
func isLockContention(err error) bool {
	return errors.Is(err, redsync.ErrFailed) || strings.Contains(err.Error(), "lock already taken")
}
