package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
	"github.com/iho/saccogov/internal/usecase/mocks"
)

var postedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newPostingFixture(t *testing.T) (*usecase.PostingUseCase, *mocks.MockGLMappingRepository, *mocks.MockJournalRepository) {
	t.Helper()

	ctrl := gomock.NewController(t)
	mappingRepo := mocks.NewMockGLMappingRepository(ctrl)
	journalRepo := mocks.NewMockJournalRepository(ctrl)
	idGen := mocks.NewMockIDGenerator(ctrl)
	clock := mocks.NewMockClock(ctrl)

	idGen.EXPECT().Generate().Return("entry-1").AnyTimes()
	clock.EXPECT().Now().Return(postedAt).AnyTimes()

	return usecase.NewPostingUseCase(mappingRepo, journalRepo, idGen, clock, nil), mappingRepo, journalRepo
}

func TestPostingUseCase_Post(t *testing.T) {
	uc, mappingRepo, journalRepo := newPostingFixture(t)

	mappingRepo.EXPECT().GetByEvent(gomock.Any(), domain.EventLoanDisbursement).Return(&domain.GLMapping{
		EventName:         domain.EventLoanDisbursement,
		DebitAccountCode:  "1100",
		CreditAccountCode: "2010",
	}, nil)

	var stored *domain.JournalEntry
	journalRepo.EXPECT().Create(gomock.Any(), gomock.Nil(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ usecase.Transaction, entry *domain.JournalEntry) error {
			stored = entry
			return nil
		})

	entry, err := uc.Post(context.Background(), nil, usecase.PostInput{
		EventName: domain.EventLoanDisbursement,
		Amount:    decimal.NewFromInt(50000),
		SourceRef: "loan-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stored != entry {
		t.Fatalf("expected the returned entry to be persisted")
	}
	if entry.Debit.AccountCode != "1100" || entry.Credit.AccountCode != "2010" {
		t.Fatalf("unexpected accounts: %+v", entry)
	}
	if !entry.Debit.Amount.Equal(entry.Credit.Amount) {
		t.Fatalf("entry not balanced: %+v", entry)
	}
	if entry.SourceRef != "loan-1" || !entry.PostedAt.Equal(postedAt) {
		t.Fatalf("unexpected entry metadata: %+v", entry)
	}
}

func TestPostingUseCase_PostDebitOverride(t *testing.T) {
	uc, mappingRepo, journalRepo := newPostingFixture(t)

	mappingRepo.EXPECT().GetByEvent(gomock.Any(), domain.EventSavingsDeposit).Return(&domain.GLMapping{
		EventName:         domain.EventSavingsDeposit,
		DebitAccountCode:  "1020",
		CreditAccountCode: "2010",
	}, nil)
	journalRepo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	entry, err := uc.Post(context.Background(), nil, usecase.PostInput{
		EventName:            domain.EventSavingsDeposit,
		Amount:               decimal.NewFromInt(100),
		DebitAccountOverride: "1031",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Debit.AccountCode != "1031" {
		t.Fatalf("expected bank override debit 1031, got %s", entry.Debit.AccountCode)
	}
}

func TestPostingUseCase_PostErrors(t *testing.T) {
	tests := []struct {
		name      string
		amount    decimal.Decimal
		setup     func(*mocks.MockGLMappingRepository, *mocks.MockJournalRepository)
		errorType error
	}{
		{
			name:      "non-positive amount",
			amount:    decimal.Zero,
			setup:     func(*mocks.MockGLMappingRepository, *mocks.MockJournalRepository) {},
			errorType: domain.ErrInvalidAmount,
		},
		{
			name:   "unmapped event",
			amount: decimal.NewFromInt(10),
			setup: func(m *mocks.MockGLMappingRepository, _ *mocks.MockJournalRepository) {
				m.EXPECT().GetByEvent(gomock.Any(), gomock.Any()).Return(nil, domain.ErrUnmappedEvent)
			},
			errorType: domain.ErrUnmappedEvent,
		},
		{
			name:   "mapping debits and credits the same account",
			amount: decimal.NewFromInt(10),
			setup: func(m *mocks.MockGLMappingRepository, _ *mocks.MockJournalRepository) {
				m.EXPECT().GetByEvent(gomock.Any(), gomock.Any()).Return(&domain.GLMapping{
					EventName:         domain.EventFinePayment,
					DebitAccountCode:  "1020",
					CreditAccountCode: "1020",
				}, nil)
			},
			errorType: domain.ErrUnbalancedEntry,
		},
		{
			name:   "duplicate disbursement rejected by storage",
			amount: decimal.NewFromInt(10),
			setup: func(m *mocks.MockGLMappingRepository, j *mocks.MockJournalRepository) {
				m.EXPECT().GetByEvent(gomock.Any(), gomock.Any()).Return(&domain.GLMapping{
					EventName:         domain.EventLoanDisbursement,
					DebitAccountCode:  "1100",
					CreditAccountCode: "2010",
				}, nil)
				j.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.ErrConcurrentModification)
			},
			errorType: domain.ErrConcurrentModification,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, mappingRepo, journalRepo := newPostingFixture(t)
			tt.setup(mappingRepo, journalRepo)

			_, err := uc.Post(context.Background(), nil, usecase.PostInput{
				EventName: domain.EventFinePayment,
				Amount:    tt.amount,
			})
			if !errors.Is(err, tt.errorType) {
				t.Fatalf("expected %v, got %v", tt.errorType, err)
			}
		})
	}
}

func TestJournalUseCase_CheckConsistency(t *testing.T) {
	tests := []struct {
		name        string
		debits      decimal.Decimal
		credits     decimal.Decimal
		repoErr     error
		want        bool
		expectedErr error
	}{
		{
			name:    "balanced journal",
			debits:  decimal.NewFromInt(50100),
			credits: decimal.NewFromInt(50100),
			want:    true,
		},
		{
			name:        "repo error surfaces",
			repoErr:     errors.New("db down"),
			expectedErr: errors.New("db down"),
		},
		{
			name:        "debits exceed credits",
			debits:      decimal.NewFromInt(11),
			credits:     decimal.NewFromInt(10),
			expectedErr: usecase.ErrInconsistentLedger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			journalRepo := mocks.NewMockJournalRepository(ctrl)
			mappingRepo := mocks.NewMockGLMappingRepository(ctrl)
			journalRepo.EXPECT().Totals(gomock.Any()).Return(tt.debits, tt.credits, tt.repoErr).Times(1)

			uc := usecase.NewJournalUseCase(journalRepo, mappingRepo)
			got, err := uc.CheckConsistency(context.Background())

			if tt.expectedErr != nil {
				if err == nil || (!errors.Is(err, tt.expectedErr) && err.Error() != tt.expectedErr.Error()) {
					t.Fatalf("expected error %v, got %v", tt.expectedErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tt.want {
				t.Fatalf("CheckConsistency() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJournalUseCase_ListByEventRequiresMapping(t *testing.T) {
	ctrl := gomock.NewController(t)
	journalRepo := mocks.NewMockJournalRepository(ctrl)
	mappingRepo := mocks.NewMockGLMappingRepository(ctrl)
	mappingRepo.EXPECT().GetByEvent(gomock.Any(), "UNKNOWN").Return(nil, domain.ErrUnmappedEvent)

	uc := usecase.NewJournalUseCase(journalRepo, mappingRepo)
	_, err := uc.ListByEvent(context.Background(), usecase.ListByEventInput{EventName: "UNKNOWN"})
	if !errors.Is(err, domain.ErrUnmappedEvent) {
		t.Fatalf("expected ErrUnmappedEvent, got %v", err)
	}
}
