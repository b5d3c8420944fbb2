package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/adapter/http/dto"
	"github.com/iho/saccogov/internal/adapter/http/handler"
	apimiddleware "github.com/iho/saccogov/internal/adapter/http/middleware"
	"github.com/iho/saccogov/internal/adapter/repository/memory"
	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
	"github.com/iho/saccogov/internal/usecase"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1, nil)
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	store := &stubIdempotencyStore{}
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	req := newAPIRequest(t, http.MethodPost, "/api/v1/loans/", member("m-borrower"), dto.CreateLoanRequest{
		ProductID:     "normal-loan",
		Principal:     decimal.NewFromInt(30000),
		DurationWeeks: 52,
	})
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.checkedKey != "m-borrower:key-123" {
		t.Fatalf("expected idempotency store to see the scoped key, got %q", store.checkedKey)
	}
}

func TestNewRouter_APIRequiresPrincipal(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/loans/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestNewRouter_JournalIsOfficersOnly(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newAPIRequest(t, http.MethodGet, "/api/v1/journal/mappings", member("m-borrower"), nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a plain member, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, newAPIRequest(t, http.MethodGet, "/api/v1/journal/mappings", office("m-treasurer", domain.RoleTreasurer), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for the treasurer, got %d", rec.Code)
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"GET /api/v1/me",
		"POST /api/v1/loans/",
		"GET /api/v1/loans/{id}/",
		"POST /api/v1/loans/{id}/submit",
		"POST /api/v1/loans/{id}/voting/open",
		"POST /api/v1/loans/{id}/votes",
		"POST /api/v1/loans/{id}/disburse",
		"POST /api/v1/loans/{id}/guarantors/{pledgeID}/respond",
		"POST /api/v1/allocations/",
		"GET /api/v1/members/{memberID}/allocations",
		"GET /api/v1/journal/consistency",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

func TestNewRouter_DraftToSubmitted(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	var loan dto.LoanResponse
	do(t, router, http.StatusCreated, &loan, newAPIRequest(t, http.MethodPost, "/api/v1/loans/", member("m-borrower"), dto.CreateLoanRequest{
		ProductID:     "normal-loan",
		Principal:     decimal.NewFromInt(30000),
		DurationWeeks: 52,
	}))
	if loan.State != string(domain.LoanStateDraft) {
		t.Fatalf("expected DRAFT, got %s", loan.State)
	}

	// Submitting without guarantee is refused.
	do(t, router, http.StatusUnprocessableEntity, nil,
		newAPIRequest(t, http.MethodPost, "/api/v1/loans/"+loan.ID+"/submit", member("m-borrower"), nil))

	for _, g := range []string{"m-guarantor-1", "m-guarantor-2"} {
		var pledge dto.PledgeResponse
		do(t, router, http.StatusCreated, &pledge, newAPIRequest(t, http.MethodPost, "/api/v1/loans/"+loan.ID+"/guarantors", member("m-borrower"), dto.AddPledgeRequest{
			GuarantorID: g,
			Amount:      decimal.NewFromInt(15000),
		}))
		do(t, router, http.StatusOK, nil, newAPIRequest(t, http.MethodPost,
			"/api/v1/loans/"+loan.ID+"/guarantors/"+pledge.ID+"/respond", member(g), dto.RespondPledgeRequest{Accept: true}))
	}

	var pledges dto.PledgeListResponse
	do(t, router, http.StatusOK, &pledges,
		newAPIRequest(t, http.MethodGet, "/api/v1/loans/"+loan.ID+"/guarantors", member("m-borrower"), nil))
	if !pledges.Accepted.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("expected 30000 accepted, got %s", pledges.Accepted)
	}

	do(t, router, http.StatusOK, &loan,
		newAPIRequest(t, http.MethodPost, "/api/v1/loans/"+loan.ID+"/submit", member("m-borrower"), nil))
	if loan.State != string(domain.LoanStateSubmitted) {
		t.Fatalf("expected SUBMITTED, got %s", loan.State)
	}

	// A plain member cannot start the review.
	do(t, router, http.StatusForbidden, nil,
		newAPIRequest(t, http.MethodPost, "/api/v1/loans/"+loan.ID+"/review", member("m-guarantor-1"), nil))

	do(t, router, http.StatusOK, &loan,
		newAPIRequest(t, http.MethodPost, "/api/v1/loans/"+loan.ID+"/review", office("m-officer", domain.RoleLoanOfficer), dto.CommentRequest{}))
	if loan.State != string(domain.LoanStateLoanOfficerReview) {
		t.Fatalf("expected LOAN_OFFICER_REVIEW, got %s", loan.State)
	}

	var trail []dto.AuditRecordResponse
	do(t, router, http.StatusOK, &trail,
		newAPIRequest(t, http.MethodGet, "/api/v1/loans/"+loan.ID+"/audit", member("m-borrower"), nil))
	if len(trail) != 3 {
		t.Fatalf("expected 3 audit records, got %d", len(trail))
	}
}

func TestNewRouter_AllocationDepositorIsThePrincipal(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	deposit := func(memberID string) dto.CreateAllocationRequest {
		return dto.CreateAllocationRequest{
			MemberID: memberID,
			Total:    decimal.NewFromInt(500),
			Method:   string(domain.PaymentMethodCash),
			Lines: []dto.AllocationLineRequest{
				{Type: string(domain.DestinationSavings), TargetID: "sav-m-borrower", Amount: decimal.NewFromInt(500)},
			},
		}
	}

	do(t, router, http.StatusForbidden, nil,
		newAPIRequest(t, http.MethodPost, "/api/v1/allocations/", member("m-guarantor-1"), deposit("m-borrower")))

	var own dto.AllocationResponse
	do(t, router, http.StatusCreated, &own,
		newAPIRequest(t, http.MethodPost, "/api/v1/allocations/", member("m-borrower"), deposit("")))
	if own.MemberID != "m-borrower" {
		t.Fatalf("expected the caller as depositor, got %s", own.MemberID)
	}

	do(t, router, http.StatusCreated, nil,
		newAPIRequest(t, http.MethodPost, "/api/v1/allocations/", office("m-treasurer", domain.RoleTreasurer), deposit("m-borrower")))

	fee := deposit("")
	fee.Lines = []dto.AllocationLineRequest{{Type: string(domain.DestinationProcessingFee), TargetID: "loan-1", Amount: decimal.NewFromInt(500)}}
	do(t, router, http.StatusUnprocessableEntity, nil,
		newAPIRequest(t, http.MethodPost, "/api/v1/allocations/", member("m-borrower"), fee))
}

type principalHeaders struct {
	memberID string
	role     domain.Role
}

func member(id string) principalHeaders { return principalHeaders{memberID: id, role: domain.RoleMember} }

func office(id string, role domain.Role) principalHeaders {
	return principalHeaders{memberID: id, role: role}
}

func newAPIRequest(t *testing.T, method, path string, as principalHeaders, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apimiddleware.MemberIDHeader, as.memberID)
	req.Header.Set(apimiddleware.RoleHeader, string(as.role))
	return req
}

func do(t *testing.T, router http.Handler, wantStatus int, out any, req *http.Request) {
	t.Helper()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d: %s", req.Method, req.URL.Path, wantStatus, rec.Code, rec.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func newRouterConfig(t *testing.T, opts ...func(*RouterConfig)) RouterConfig {
	t.Helper()

	policy := usecase.DefaultPolicy()
	store := memory.NewStore()
	txManager := memory.NewTxManager(store)
	locker := memory.NewKeyedLocker()
	ids := &sequenceIDs{}
	clock := usecase.SystemClock{}
	m := metrics.New(prometheus.NewRegistry())

	now := time.Now().UTC()
	for _, id := range []string{"m-borrower", "m-guarantor-1", "m-guarantor-2"} {
		store.PutSavingsAccount(domain.SavingsAccount{
			ID:            "sav-" + id,
			MemberID:      id,
			AccountNumber: "SAV-" + id,
			Balance:       decimal.NewFromInt(20000),
			LockedAmount:  decimal.Zero,
			Status:        domain.SavingsStatusActive,
			Primary:       true,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	loanRepo := memory.NewLoanRepository(store)
	savingsRepo := memory.NewSavingsAccountRepository(store)
	mappingRepo := memory.NewGLMappingRepository(store)
	journalRepo := memory.NewJournalRepository(store)
	outboxRepo := memory.NewOutboxRepository(store)

	posting := usecase.NewPostingUseCase(mappingRepo, journalRepo, ids, clock, m)
	validator := usecase.NewAllocationValidator(
		savingsRepo,
		loanRepo,
		memory.NewFineRepository(store),
		memory.NewContributionProductRepository(store),
		memory.NewBankAccountRepository(store),
		policy,
	)
	allocations := usecase.NewAllocationUseCase(usecase.AllocationDeps{
		TxManager:      txManager,
		Validator:      validator,
		Posting:        posting,
		SavingsRepo:    savingsRepo,
		LoanRepo:       loanRepo,
		FineRepo:       memory.NewFineRepository(store),
		ProductRepo:    memory.NewContributionProductRepository(store),
		ShareRepo:      memory.NewShareCapitalRepository(store),
		AllocationRepo: memory.NewAllocationRepository(store),
		OutboxRepo:     outboxRepo,
		IDGen:          ids,
		Clock:          clock,
		Policy:         policy,
		Metrics:        m,
	})
	voting := usecase.NewVotingUseCase(txManager, nil, locker, loanRepo, memory.NewVotingSessionRepository(store), ids, clock, policy, m)

	deps := usecase.WorkflowDeps{
		TxManager:     txManager,
		Locker:        locker,
		LoanRepo:      loanRepo,
		GuarantorRepo: memory.NewGuarantorRepository(store),
		SavingsRepo:   savingsRepo,
		OutboxRepo:    outboxRepo,
		IDGen:         ids,
		Clock:         clock,
		Policy:        policy,
		Metrics:       m,
	}

	cfg := RouterConfig{
		LoanHandler:       handler.NewLoanHandler(usecase.NewLoanUseCase(deps, voting, allocations, posting)),
		GuarantorHandler:  handler.NewGuarantorHandler(usecase.NewGuarantorUseCase(deps)),
		VotingHandler:     handler.NewVotingHandler(voting),
		AllocationHandler: handler.NewAllocationHandler(allocations),
		JournalHandler:    handler.NewJournalHandler(usecase.NewJournalUseCase(journalRepo, mappingRepo)),
		HealthHandler:     handler.NewHealthHandler(),
		AuthHandler:       handler.NewAuthHandler(),
		Auth:              apimiddleware.HeaderAuth(m),
		Metrics:           m,
		Logger:            zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

type sequenceIDs struct{ n atomic.Int64 }

func (s *sequenceIDs) Generate() string {
	return fmt.Sprintf("ID%08d", s.n.Add(1))
}

type stubIdempotencyStore struct {
	checkedKey string
}

func (s *stubIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.checkedKey = key
	return false, nil, nil
}

func (s *stubIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return nil
}

func (s *stubIdempotencyStore) Release(ctx context.Context, key string) error {
	return nil
}
