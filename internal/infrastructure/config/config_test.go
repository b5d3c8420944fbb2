package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		t.Fatalf("expected default database URL to be set")
	}

	if cfg.StorageDriver != config.StorageDriverPostgres || cfg.LockDriver != config.LockDriverRedis {
		t.Fatalf("unexpected drivers storage=%s lock=%s", cfg.StorageDriver, cfg.LockDriver)
	}

	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default HTTP port 8080, got %s", cfg.HTTPPort)
	}

	policy := cfg.Policy()
	if !policy.MinGuaranteeRatio.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected guarantee ratio 1, got %s", policy.MinGuaranteeRatio)
	}
	if !policy.SavingsMultiplier.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected savings multiplier 3, got %s", policy.SavingsMultiplier)
	}
	if policy.VotePolicy != domain.VotePolicyReject {
		t.Fatalf("expected reject vote policy, got %s", policy.VotePolicy)
	}
	if !policy.AllocationEpsilon.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("expected epsilon 0.01, got %s", policy.AllocationEpsilon)
	}
	if !policy.ApplicationFee.IsZero() {
		t.Fatalf("expected no application fee, got %s", policy.ApplicationFee)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_TIMEOUT", "45s")
	t.Setenv("JWT_SECRET", "top-secret")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("LOCK_DRIVER", "local")
	t.Setenv("POLICY_VOTE_POLICY", "overwrite")
	t.Setenv("POLICY_MIN_GUARANTEE_RATIO", "1.5")
	t.Setenv("POLICY_APPLICATION_FEE", "500")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis://example" {
		t.Fatalf("expected custom URLs, got %s %s", cfg.DatabaseURL, cfg.RedisURL)
	}

	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected HTTP port override, got %s", cfg.HTTPPort)
	}

	if cfg.DatabaseTimeout != 45*time.Second {
		t.Fatalf("expected database timeout override, got %s", cfg.DatabaseTimeout)
	}

	if cfg.JWTSecret != "top-secret" || !cfg.AuthEnabled {
		t.Fatalf("expected auth settings to be set, got secret=%s enabled=%v", cfg.JWTSecret, cfg.AuthEnabled)
	}

	if cfg.StorageDriver != config.StorageDriverMemory || cfg.LockDriver != config.LockDriverLocal {
		t.Fatalf("expected driver overrides, got storage=%s lock=%s", cfg.StorageDriver, cfg.LockDriver)
	}

	policy := cfg.Policy()
	if policy.VotePolicy != domain.VotePolicyOverwrite {
		t.Fatalf("expected overwrite vote policy, got %s", policy.VotePolicy)
	}
	if !policy.MinGuaranteeRatio.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected ratio 1.5, got %s", policy.MinGuaranteeRatio)
	}
	if !policy.ApplicationFee.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected fee 500, got %s", policy.ApplicationFee)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"HTTP_READ_TIMEOUT":         "not-a-duration",
		"STORAGE_DRIVER":            "sqlite",
		"LOCK_DRIVER":               "zookeeper",
		"POLICY_VOTE_POLICY":        "majority",
		"POLICY_ALLOCATION_EPSILON": "0",
		"POLICY_SAVINGS_MULTIPLIER": "-1",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := config.Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
