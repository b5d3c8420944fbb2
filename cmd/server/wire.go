package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/iho/saccogov/internal/adapter/http/handler"
	"github.com/iho/saccogov/internal/adapter/http/middleware"
	"github.com/iho/saccogov/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/saccogov/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/saccogov/internal/adapter/repository/redis"
	"github.com/iho/saccogov/internal/infrastructure/auth"
	"github.com/iho/saccogov/internal/infrastructure/config"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
	"github.com/iho/saccogov/internal/infrastructure/redis"
	"github.com/iho/saccogov/internal/usecase"
)

// repositories is one storage backend's implementation of every port.
type repositories struct {
	txManager   usecase.TransactionManager
	retrier     usecase.Retrier
	loans       usecase.LoanRepository
	guarantors  usecase.GuarantorRepository
	sessions    usecase.VotingSessionRepository
	savings     usecase.SavingsAccountRepository
	fines       usecase.FineRepository
	products    usecase.ContributionProductRepository
	shares      usecase.ShareCapitalRepository
	banks       usecase.BankAccountRepository
	mappings    usecase.GLMappingRepository
	journal     usecase.JournalRepository
	allocations usecase.AllocationRepository
	outbox      usecase.OutboxRepository
}

func postgresRepositories(pool *pgxpool.Pool, lockTimeout time.Duration, m *metrics.Metrics) repositories {
	return repositories{
		txManager: postgresRepo.NewTxManager(pool, postgresRepo.WithLockTimeout(lockTimeout)),
		retrier: postgresRepo.NewRetrier(postgresRepo.WithRetryHook(func(code string) {
			m.DBRetries.WithLabelValues(code).Inc()
		})),
		loans:       postgresRepo.NewLoanRepository(pool),
		guarantors:  postgresRepo.NewGuarantorRepository(pool),
		sessions:    postgresRepo.NewVotingSessionRepository(pool),
		savings:     postgresRepo.NewSavingsAccountRepository(pool),
		fines:       postgresRepo.NewFineRepository(pool),
		products:    postgresRepo.NewContributionProductRepository(pool),
		shares:      postgresRepo.NewShareCapitalRepository(pool),
		banks:       postgresRepo.NewBankAccountRepository(pool),
		mappings:    postgresRepo.NewGLMappingRepository(pool),
		journal:     postgresRepo.NewJournalRepository(pool),
		allocations: postgresRepo.NewAllocationRepository(pool),
		outbox:      postgresRepo.NewOutboxRepository(pool),
	}
}

// memoryRepositories keeps everything in process. The memory transaction
// manager serializes writers, so no retrier is needed.
func memoryRepositories(store *memory.Store) repositories {
	return repositories{
		txManager:   memory.NewTxManager(store),
		loans:       memory.NewLoanRepository(store),
		guarantors:  memory.NewGuarantorRepository(store),
		sessions:    memory.NewVotingSessionRepository(store),
		savings:     memory.NewSavingsAccountRepository(store),
		fines:       memory.NewFineRepository(store),
		products:    memory.NewContributionProductRepository(store),
		shares:      memory.NewShareCapitalRepository(store),
		banks:       memory.NewBankAccountRepository(store),
		mappings:    memory.NewGLMappingRepository(store),
		journal:     memory.NewJournalRepository(store),
		allocations: memory.NewAllocationRepository(store),
		outbox:      memory.NewOutboxRepository(store),
	}
}

// handlers holds the HTTP handlers built on top of the use cases.
type handlers struct {
	loans       *handler.LoanHandler
	guarantors  *handler.GuarantorHandler
	voting      *handler.VotingHandler
	allocations *handler.AllocationHandler
	journal     *handler.JournalHandler
}

func buildHandlers(repos repositories, locker usecase.LoanLocker, policy usecase.Policy, m *metrics.Metrics) handlers {
	idGen := postgresRepo.NewULIDGenerator()
	clock := usecase.SystemClock{}

	posting := usecase.NewPostingUseCase(repos.mappings, repos.journal, idGen, clock, m)
	validator := usecase.NewAllocationValidator(repos.savings, repos.loans, repos.fines, repos.products, repos.banks, policy)
	allocationUC := usecase.NewAllocationUseCase(usecase.AllocationDeps{
		TxManager:      repos.txManager,
		Validator:      validator,
		Posting:        posting,
		SavingsRepo:    repos.savings,
		LoanRepo:       repos.loans,
		FineRepo:       repos.fines,
		ProductRepo:    repos.products,
		ShareRepo:      repos.shares,
		AllocationRepo: repos.allocations,
		OutboxRepo:     repos.outbox,
		IDGen:          idGen,
		Clock:          clock,
		Policy:         policy,
		Metrics:        m,
	})
	votingUC := usecase.NewVotingUseCase(repos.txManager, repos.retrier, locker, repos.loans, repos.sessions, idGen, clock, policy, m)

	deps := usecase.WorkflowDeps{
		TxManager:     repos.txManager,
		Retrier:       repos.retrier,
		Locker:        locker,
		LoanRepo:      repos.loans,
		GuarantorRepo: repos.guarantors,
		SavingsRepo:   repos.savings,
		OutboxRepo:    repos.outbox,
		IDGen:         idGen,
		Clock:         clock,
		Policy:        policy,
		Metrics:       m,
	}

	return handlers{
		loans:       handler.NewLoanHandler(usecase.NewLoanUseCase(deps, votingUC, allocationUC, posting)),
		guarantors:  handler.NewGuarantorHandler(usecase.NewGuarantorUseCase(deps)),
		voting:      handler.NewVotingHandler(votingUC),
		allocations: handler.NewAllocationHandler(allocationUC),
		journal:     handler.NewJournalHandler(usecase.NewJournalUseCase(repos.journal, repos.mappings)),
	}
}

// chooseLocker returns the per-loan lock for the configured driver.
func chooseLocker(cfg *config.Config, client *goredis.Client) (usecase.LoanLocker, error) {
	switch cfg.LockDriver {
	case config.LockDriverRedis:
		if client == nil {
			return nil, fmt.Errorf("LOCK_DRIVER=redis requires a redis connection")
		}
		return redisRepo.NewLoanLocker(client, redisRepo.DefaultLockOptions()), nil
	case config.LockDriverLocal:
		return memory.NewKeyedLocker(), nil
	default:
		return nil, fmt.Errorf("unknown LOCK_DRIVER %q", cfg.LockDriver)
	}
}

// chooseAuth returns bearer-token auth when enabled, otherwise gateway headers.
func chooseAuth(cfg *config.Config, m *metrics.Metrics) (func(http.Handler) http.Handler, error) {
	if !cfg.AuthEnabled {
		return middleware.HeaderAuth(m), nil
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("AUTH_ENABLED requires JWT_SECRET")
	}
	return middleware.AuthMiddleware(auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration), m), nil
}

func redisHealthCheck(client *goredis.Client) handler.HealthCheck {
	return handler.HealthCheck{
		Name: "redis",
		Ping: func(ctx context.Context) error { return redis.Ping(ctx, client) },
	}
}

func postgresHealthCheck(pool *pgxpool.Pool) handler.HealthCheck {
	return handler.HealthCheck{Name: "postgres", Ping: pool.Ping}
}
