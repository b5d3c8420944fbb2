package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
)

// PostingUseCase translates business events into balanced journal entries.
// It is the only writer of the journal.
type PostingUseCase struct {
	mappingRepo GLMappingRepository
	journalRepo JournalRepository
	idGen       IDGenerator
	clock       Clock
	metrics     *metrics.Metrics
}

// NewPostingUseCase creates a new PostingUseCase.
func NewPostingUseCase(
	mappingRepo GLMappingRepository,
	journalRepo JournalRepository,
	idGen IDGenerator,
	clock Clock,
	metrics *metrics.Metrics,
) *PostingUseCase {
	return &PostingUseCase{
		mappingRepo: mappingRepo,
		journalRepo: journalRepo,
		idGen:       idGen,
		clock:       clock,
		metrics:     metrics,
	}
}

// PostInput is a business event to record.
type PostInput struct {
	EventName   string
	Amount      decimal.Decimal
	Description string
	SourceRef   string
	// DebitAccountOverride replaces the mapped debit account, e.g. the bank a deposit landed in.
	DebitAccountOverride string
}

// Post appends one balanced entry inside tx. The caller owns the transaction
// so the entry commits or rolls back with the sub-ledger change it records.
func (uc *PostingUseCase) Post(ctx context.Context, tx Transaction, input PostInput) (*domain.JournalEntry, error) {
	if !input.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	mapping, err := uc.mappingRepo.GetByEvent(ctx, input.EventName)
	if err != nil {
		uc.recordFailure(input.EventName, err)
		return nil, err
	}

	entry := domain.NewJournalEntry(
		uc.idGen.Generate(),
		mapping,
		input.Amount,
		input.DebitAccountOverride,
		input.Description,
		input.SourceRef,
		uc.clock.Now(),
	)
	if err := entry.Validate(); err != nil {
		uc.recordFailure(input.EventName, err)
		return nil, err
	}

	if err := uc.journalRepo.Create(ctx, tx, entry); err != nil {
		uc.recordFailure(input.EventName, err)
		return nil, fmt.Errorf("post %s: %w", input.EventName, err)
	}

	if uc.metrics != nil {
		uc.metrics.JournalEntries.WithLabelValues(input.EventName).Inc()
	}

	log.Ctx(ctx).Debug().
		Str("event", input.EventName).
		Str("entry_id", entry.ID).
		Str("debit", entry.Debit.AccountCode).
		Str("credit", entry.Credit.AccountCode).
		Str("amount", input.Amount.String()).
		Msg("journal entry posted")

	return entry, nil
}

func (uc *PostingUseCase) recordFailure(event string, err error) {
	if uc.metrics != nil {
		uc.metrics.PostingErrors.WithLabelValues(event, domain.ErrorCode(err)).Inc()
	}
}
