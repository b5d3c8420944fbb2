package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/usecase"
)

type allocationServiceStub struct {
	AllocationService

	allocateFn func(ctx context.Context, req domain.AllocationRequest) (*domain.Allocation, error)
}

func (s *allocationServiceStub) Allocate(ctx context.Context, req domain.AllocationRequest) (*domain.Allocation, error) {
	return s.allocateFn(ctx, req)
}

type journalServiceStub struct {
	JournalService

	bySourceFn    func(ctx context.Context, sourceRef string) ([]*domain.JournalEntry, error)
	byEventFn     func(ctx context.Context, input usecase.ListByEventInput) ([]*domain.JournalEntry, error)
	consistencyFn func(ctx context.Context) (bool, error)
}

func (s *journalServiceStub) ListBySource(ctx context.Context, sourceRef string) ([]*domain.JournalEntry, error) {
	return s.bySourceFn(ctx, sourceRef)
}

func (s *journalServiceStub) ListByEvent(ctx context.Context, input usecase.ListByEventInput) ([]*domain.JournalEntry, error) {
	return s.byEventFn(ctx, input)
}

func (s *journalServiceStub) CheckConsistency(ctx context.Context) (bool, error) {
	return s.consistencyFn(ctx)
}

const depositBody = `{
	"member_id": "m-1",
	"total": "1500.00",
	"method": "BANK",
	"payment_reference": "EQ998877",
	"bank_account_code": "1031",
	"lines": [
		{"type": "SAVINGS_ACCOUNT", "target_id": "sav-1", "amount": "1000"},
		{"type": "FINE_PAYMENT", "target_id": "fine-1", "amount": "500"}
	]
}`

func TestAllocationHandler_Create(t *testing.T) {
	var captured domain.AllocationRequest
	h := NewAllocationHandler(&allocationServiceStub{
		allocateFn: func(ctx context.Context, req domain.AllocationRequest) (*domain.Allocation, error) {
			captured = req
			return &domain.Allocation{ID: "alloc-1", Reference: "TXN-01", Total: req.Total, Method: req.Method}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/allocations", bytes.NewBufferString(depositBody))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(captured.Lines) != 2 || captured.Lines[1].Destination() != domain.DestinationFine {
		t.Fatalf("lines were not typed: %#v", captured.Lines)
	}
	if !captured.Total.Equal(decimal.NewFromInt(1500)) || captured.Direction != domain.AllocationInflow {
		t.Fatalf("unexpected request %+v", captured)
	}
}

func TestAllocationHandler_Create_UnknownLineType(t *testing.T) {
	h := NewAllocationHandler(&allocationServiceStub{
		allocateFn: func(ctx context.Context, req domain.AllocationRequest) (*domain.Allocation, error) {
			t.Fatalf("allocator must not be called for an unknown line type")
			return nil, nil
		},
	})

	body := `{"member_id":"m-1","total":"10","method":"CASH","lines":[{"type":"RAFFLE","amount":"10"}]}`
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/allocations", bytes.NewBufferString(body)))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "invalid_destination" {
		t.Fatalf("expected invalid_destination, got %+v", resp)
	}
}

func TestAllocationHandler_Create_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unbalanced", domain.ErrUnbalancedAllocation, http.StatusUnprocessableEntity},
		{"missing bank", domain.ErrMissingBankAccount, http.StatusBadRequest},
		{"storage down", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAllocationHandler(&allocationServiceStub{
				allocateFn: func(ctx context.Context, req domain.AllocationRequest) (*domain.Allocation, error) {
					return nil, tt.err
				},
			})

			rec := httptest.NewRecorder()
			h.Create(rec, httptest.NewRequest(http.MethodPost, "/allocations", bytes.NewBufferString(depositBody)))

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestJournalHandler_List(t *testing.T) {
	h := NewJournalHandler(&journalServiceStub{
		bySourceFn: func(ctx context.Context, sourceRef string) ([]*domain.JournalEntry, error) {
			if sourceRef != "loan-1" {
				t.Errorf("unexpected source %s", sourceRef)
			}
			return []*domain.JournalEntry{}, nil
		},
		byEventFn: func(ctx context.Context, input usecase.ListByEventInput) ([]*domain.JournalEntry, error) {
			if input.EventName != domain.EventFinePayment || input.Limit != 5 {
				t.Errorf("unexpected input %+v", input)
			}
			return nil, domain.ErrUnmappedEvent
		},
	})

	r := chi.NewRouter()
	r.Get("/journal", h.List)

	tests := []struct {
		url    string
		status int
	}{
		{"/journal?source_ref=loan-1", http.StatusOK},
		{"/journal?event=FINE_PAYMENT&limit=5", http.StatusUnprocessableEntity},
		{"/journal", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestJournalHandler_Consistency(t *testing.T) {
	for _, balanced := range []bool{true, false} {
		h := NewJournalHandler(&journalServiceStub{
			consistencyFn: func(ctx context.Context) (bool, error) { return balanced, nil },
		})

		rec := httptest.NewRecorder()
		h.Consistency(rec, httptest.NewRequest(http.MethodGet, "/journal/consistency", nil))

		want := http.StatusOK
		if !balanced {
			want = http.StatusConflict
		}
		if rec.Code != want {
			t.Fatalf("balanced=%v: expected %d, got %d", balanced, want, rec.Code)
		}
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := HealthCheck{Name: "postgres", Ping: func(ctx context.Context) error { return nil }}
	down := HealthCheck{Name: "redis", Ping: func(ctx context.Context) error { return errors.New("connection refused") }}

	rec := httptest.NewRecorder()
	NewHealthHandler(ok).Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewHealthHandler(ok, down).Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "redis unhealthy" {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = httptest.NewRecorder()
	NewHealthHandler().Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("memory driver has nothing to ping, expected 200, got %d", rec.Code)
	}
}
