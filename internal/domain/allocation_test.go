package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpsilon = decimal.RequireFromString("0.01")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAllocationRequest_ValidateShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     AllocationRequest
		wantErr error
	}{
		{
			name: "exact split accepted",
			req: AllocationRequest{
				Total:            dec("5000"),
				MemberID:         "m-1",
				Method:           PaymentMethodMpesa,
				PaymentReference: "QK12AB34",
				Lines: []AllocationLine{
					SavingsLine{AccountID: "sav-1", Amount: dec("3000")},
					FineLine{FineID: "fine-1", Amount: dec("2000")},
				},
			},
		},
		{
			name: "sub-epsilon rounding accepted",
			req: AllocationRequest{
				Total:    dec("100.005"),
				MemberID: "m-1",
				Method:   PaymentMethodCash,
				Lines:    []AllocationLine{SavingsLine{AccountID: "sav-1", Amount: dec("100.00")}},
			},
		},
		{
			name: "off by epsilon rejected",
			req: AllocationRequest{
				Total:    dec("100.01"),
				MemberID: "m-1",
				Method:   PaymentMethodCash,
				Lines:    []AllocationLine{SavingsLine{AccountID: "sav-1", Amount: dec("100.00")}},
			},
			wantErr: ErrUnbalancedAllocation,
		},
		{
			name: "lines exceed total rejected",
			req: AllocationRequest{
				Total:    dec("100"),
				MemberID: "m-1",
				Method:   PaymentMethodCash,
				Lines: []AllocationLine{
					SavingsLine{AccountID: "sav-1", Amount: dec("60")},
					ShareCapitalLine{Amount: dec("60")},
				},
			},
			wantErr: ErrUnbalancedAllocation,
		},
		{
			name: "mpesa deposit needs a reference",
			req: AllocationRequest{
				MemberID: "m-1",
				Total:    dec("100"),
				Method:   PaymentMethodMpesa,
				Lines:    []AllocationLine{SavingsLine{AccountID: "sav-1", Amount: dec("100")}},
			},
			wantErr: ErrMissingReference,
		},
		{
			name: "bank deposit without account rejected first",
			req: AllocationRequest{
				Total:  dec("100"),
				Method: PaymentMethodBank,
				Lines:  []AllocationLine{SavingsLine{AccountID: "sav-1", Amount: dec("1")}},
			},
			wantErr: ErrMissingBankAccount,
		},
		{
			name:    "empty lines rejected",
			req:     AllocationRequest{MemberID: "m-1", Total: dec("100"), Method: PaymentMethodCash},
			wantErr: ErrEmptyAllocation,
		},
		{
			name: "non-positive line rejected",
			req: AllocationRequest{
				Total:    dec("100"),
				MemberID: "m-1",
				Method:   PaymentMethodCash,
				Lines: []AllocationLine{
					SavingsLine{AccountID: "sav-1", Amount: dec("110")},
					FineLine{FineID: "fine-1", Amount: dec("-10")},
				},
			},
			wantErr: ErrInvalidDestination,
		},
		{
			name: "outflow may only credit savings",
			req: AllocationRequest{
				Total:     dec("100"),
				MemberID:  "m-1",
				Method:    PaymentMethodCash,
				Direction: AllocationOutflow,
				Lines:     []AllocationLine{FineLine{FineID: "fine-1", Amount: dec("100")}},
			},
			wantErr: ErrInvalidDestination,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.ValidateShape(testEpsilon)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDestinationError(t *testing.T) {
	t.Parallel()

	var err error = &DestinationError{Index: 1, Destination: DestinationFine, TargetID: "fine-1", Reason: "amount exceeds outstanding balance 2000"}

	assert.ErrorIs(t, err, ErrInvalidDestination)

	var destErr *DestinationError
	require.True(t, errors.As(err, &destErr))
	assert.Equal(t, 1, destErr.Index)
	assert.Contains(t, err.Error(), "fine-1")
}

func TestEventForDestination(t *testing.T) {
	t.Parallel()

	for _, d := range []DestinationType{
		DestinationSavings, DestinationLoanRepayment, DestinationFine,
		DestinationContribution, DestinationShareCapital, DestinationProcessingFee,
	} {
		event, ok := EventForDestination(d)
		assert.True(t, ok, d)
		assert.NotEmpty(t, event)
	}

	_, ok := EventForDestination("UNKNOWN")
	assert.False(t, ok)
}

func TestJournalEntry_Validate(t *testing.T) {
	t.Parallel()

	mapping := &GLMapping{EventName: EventSavingsDeposit, DebitAccountCode: "1020", CreditAccountCode: "2010"}

	entry := NewJournalEntry("je-1", mapping, dec("250"), "", "deposit", "TXN-1", fixedTime)
	require.NoError(t, entry.Validate())
	assert.Equal(t, "1020", entry.Debit.AccountCode)

	overridden := NewJournalEntry("je-2", mapping, dec("250"), "1010", "deposit", "TXN-1", fixedTime)
	assert.Equal(t, "1010", overridden.Debit.AccountCode)

	entry.Credit.Amount = dec("249")
	assert.ErrorIs(t, entry.Validate(), ErrUnbalancedEntry)

	zero := NewJournalEntry("je-3", mapping, decimal.Zero, "", "", "", fixedTime)
	assert.ErrorIs(t, zero.Validate(), ErrInvalidAmount)
}

func TestTrialBalance_NetsToZero(t *testing.T) {
	t.Parallel()

	deposit := &GLMapping{EventName: EventSavingsDeposit, DebitAccountCode: "1020", CreditAccountCode: "2010"}
	disburse := &GLMapping{EventName: EventLoanDisbursement, DebitAccountCode: "1100", CreditAccountCode: "2010"}

	entries := []*JournalEntry{
		NewJournalEntry("1", deposit, dec("100"), "", "", "", fixedTime),
		NewJournalEntry("2", disburse, dec("50000"), "", "", "", fixedTime),
	}

	total := decimal.Zero
	for _, b := range TrialBalance(entries) {
		total = total.Add(b)
	}
	assert.True(t, total.IsZero())
}
