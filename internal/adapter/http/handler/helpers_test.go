package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/iho/saccogov/internal/adapter/http/dto"
	"github.com/iho/saccogov/internal/domain"
)

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/loans?limit=50", nil)
	if got := parseIntQuery(req, "limit", 10); got != 50 {
		t.Fatalf("expected limit=50, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/loans?limit=invalid", nil)
	if got := parseIntQuery(req, "limit", 10); got != 10 {
		t.Fatalf("expected fallback to default, got %d", got)
	}

	req.URL = &url.URL{RawQuery: ""}
	if got := parseIntQuery(req, "limit", 25); got != 25 {
		t.Fatalf("expected default when missing, got %d", got)
	}
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query         string
		limit, offset int
	}{
		{"", defaultPageSize, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=0", defaultPageSize, 0},
		{"limit=5000", maxPageSize, 0},
		{"offset=-3", defaultPageSize, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/loans?"+tt.query, nil)
			limit, offset := pagination(req)
			if limit != tt.limit || offset != tt.offset {
				t.Fatalf("expected %d/%d, got %d/%d", tt.limit, tt.offset, limit, offset)
			}
		})
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"loan not found", domain.ErrLoanNotFound, http.StatusNotFound},
		{"wrong office", domain.ErrUnauthorizedTransition, http.StatusForbidden},
		{"wrong state", domain.ErrInvalidTransition, http.StatusConflict},
		{"already disbursed reads as conflict", domain.ErrAlreadyDisbursed, http.StatusConflict},
		{"wrapped conflict", fmt.Errorf("update loan: %w", domain.ErrConcurrentModification), http.StatusConflict},
		{"unbalanced", domain.ErrUnbalancedAllocation, http.StatusUnprocessableEntity},
		{"bad line", &domain.DestinationError{Index: 2, Reason: "fine is settled"}, http.StatusUnprocessableEntity},
		{"missing bank", domain.ErrMissingBankAccount, http.StatusBadRequest},
		{"guarantee short", domain.ErrInsufficientGuarantee, http.StatusUnprocessableEntity},
		{"no credentials", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDomainError(tt.err); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	payload := map[string]string{"status": "ok"}

	writeJSON(rr, http.StatusCreated, payload)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	var decoded map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if decoded["status"] != "ok" {
		t.Fatalf("expected payload to round-trip, got %+v", decoded)
	}
}

func TestWriteDomainError(t *testing.T) {
	t.Run("domain error carries code", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/loans/l-1/submit", nil)

		writeDomainError(rr, req, "failed to submit loan", domain.ErrInsufficientGuarantee)

		var resp dto.ErrorResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode error response: %v", err)
		}
		if rr.Code != http.StatusUnprocessableEntity || resp.Code != "insufficient_guarantee" {
			t.Fatalf("unexpected response %d %+v", rr.Code, resp)
		}
	})

	t.Run("internal error hides details", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/loans/l-1", nil)

		writeDomainError(rr, req, "failed to get loan", errors.New("dial tcp 10.0.0.5:5432: connection refused"))

		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
		if strings.Contains(rr.Body.String(), "10.0.0.5") {
			t.Fatalf("storage details leaked: %s", rr.Body.String())
		}
	})
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()

	writeError(rr, http.StatusBadRequest, "bad request", "detail")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error != "bad request" || resp.Message != "detail" {
		t.Fatalf("expected error message to propagate, got %+v", resp)
	}
}
