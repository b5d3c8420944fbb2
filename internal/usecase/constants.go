package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyProcessingMarker holds a key while the first request is still running.
	IdempotencyProcessingMarker = "processing"

	// AllocationReferencePrefix prefixes transaction references returned to tellers.
	AllocationReferencePrefix = "TXN-"

	// LoanNumberPrefix prefixes human-readable loan numbers.
	LoanNumberPrefix = "LN-"

	// SystemActor is recorded when no principal is attached to the context.
	SystemActor = "system"
)

// loanLockKey namespaces the per-loan workflow lock.
func loanLockKey(loanID string) string {
	return "loan:" + loanID
}
