//go:build integration

package testutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/app"
	"github.com/palpitai/platform/internal/auth"
	"github.com/palpitai/platform/internal/infra"
)

const (
	TestJWTSecret = "integration-test-secret-integration-test-secret"
	TestDBHost    = "localhost"
	TestDBPort    = 5435
	TestDBUser    = "palpitai"
	TestDBPass    = "palpitai"
	TestDBName    = "palpitai_test"

	TestAdminEmail    = "admin@palpitai.com.br"
	TestAdminPassword = "admin-password-123"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server  *httptest.Server
	Pool    *pgxpool.Pool
	JWTMgr  *auth.JWTManager
	Config  *infra.Config
	App     *app.App
	Gateway *FakeGateway
	t       *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBUser)
}

func ensureTestDB() error {
	if os.Getenv("TEST_DATABASE_URL") != "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		if _, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName)); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func runMigrations() error {
	m, err := newMigrate("file://"+filepath.Join(findProjectRoot(), "db", "migrations"), testDSN())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// findProjectRoot walks up from the working directory to the go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}
		if err := runMigrations(); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 20
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// TestConfig returns the configuration every integration environment runs with.
// The poll throttle is off so consecutive status checks always reach the gateway.
func TestConfig() *infra.Config {
	return &infra.Config{
		JWTSecret:               TestJWTSecret,
		JWTUserExpiry:           24 * time.Hour,
		JWTAdminExpiry:          8 * time.Hour,
		CORSAllowedOrigins:      "*",
		WSAllowedOrigins:        "*",
		AllowInsecureDefaults:   true,
		BetStakeCents:           1000,
		MinDepositCents:         1000,
		MinWithdrawalCents:      2000,
		MaxSingleDepositCents:   500000,
		DailyDepositLimit:       2000000,
		PixChargeTTL:            30 * time.Minute,
		PollMinInterval:         0,
		GatewayTimeout:          5 * time.Second,
		GatewayBreakerThreshold: 5,
		GatewayBreakerReset:     30 * time.Second,
		DepositRateLimit:        100,
		MetricsEnabled:          true,
	}
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router, the test DB and a fake Mercado Pago.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	return NewTestEnvWithConfig(t, TestConfig())
}

// NewTestEnvWithConfig is NewTestEnv with a caller-supplied configuration.
func NewTestEnvWithConfig(t *testing.T, cfg *infra.Config) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTUserExpiry, cfg.JWTAdminExpiry)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	application := app.New(app.RouterDeps{
		Pool:    pool,
		JWTMgr:  jwtMgr,
		Logger:  logger,
		Config:  cfg,
		Metrics: infra.NewMetrics(),
	})

	env := &TestEnv{
		Server:  httptest.NewServer(application.Router),
		Pool:    pool,
		JWTMgr:  jwtMgr,
		Config:  cfg,
		App:     application,
		Gateway: NewFakeGateway(),
		t:       t,
	}

	t.Cleanup(func() {
		env.Server.Close()
		env.Gateway.Server.Close()
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}
