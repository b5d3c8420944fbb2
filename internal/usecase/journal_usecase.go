package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/iho/saccogov/internal/domain"
)

var (
	// ErrInconsistentLedger is returned when the journal is not balanced.
	ErrInconsistentLedger = errors.New("ledger is inconsistent: debits do not equal credits")
)

// JournalUseCase exposes read access to the general ledger journal.
type JournalUseCase struct {
	journalRepo JournalRepository
	mappingRepo GLMappingRepository
}

// NewJournalUseCase creates a new JournalUseCase.
func NewJournalUseCase(journalRepo JournalRepository, mappingRepo GLMappingRepository) *JournalUseCase {
	return &JournalUseCase{
		journalRepo: journalRepo,
		mappingRepo: mappingRepo,
	}
}

// ListBySource returns the entries posted for a loan id or allocation reference.
func (uc *JournalUseCase) ListBySource(ctx context.Context, sourceRef string) ([]*domain.JournalEntry, error) {
	if sourceRef == "" {
		return nil, domain.ErrInvalidReference
	}
	return uc.journalRepo.ListBySource(ctx, sourceRef)
}

// ListByEventInput represents input for listing entries of one event type.
type ListByEventInput struct {
	EventName string
	Limit     int
	Offset    int
}

// ListByEvent lists entries for a mapped event.
func (uc *JournalUseCase) ListByEvent(ctx context.Context, input ListByEventInput) ([]*domain.JournalEntry, error) {
	if _, err := uc.mappingRepo.GetByEvent(ctx, input.EventName); err != nil {
		return nil, err
	}

	limit, offset, _ := domain.ValidatePagination(input.Limit, input.Offset)
	return uc.journalRepo.ListByEvent(ctx, input.EventName, limit, offset)
}

// ListMappings returns the configured event to GL account table.
func (uc *JournalUseCase) ListMappings(ctx context.Context) ([]*domain.GLMapping, error) {
	return uc.mappingRepo.List(ctx)
}

// CheckConsistency verifies that total debits equal total credits.
func (uc *JournalUseCase) CheckConsistency(ctx context.Context) (bool, error) {
	debits, credits, err := uc.journalRepo.Totals(ctx)
	if err != nil {
		return false, err
	}

	if !debits.Equal(credits) {
		return false, fmt.Errorf("%w: debits %s, credits %s", ErrInconsistentLedger, debits.String(), credits.String())
	}

	return true, nil
}
