package integration

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/repositories"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("bastion"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbWrapper := &database.DB{
		Pool: pool,
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         dbWrapper,
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	goose.SetLogger(log.New(nil, "", 0))

	// Goose needs a stdlib DB connection
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"login_attempts",
		"account_locks",
		"security_blocks",
		"security_alerts",
		"rate_limit_overrides",
		"captcha_challenges",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from the database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.AttemptRepository,
	*repositories.LockRepository,
	*repositories.BlockRepository,
	*repositories.AlertRepository,
	*repositories.OverrideRepository,
	*repositories.CaptchaRepository,
	*repositories.RetentionRepository,
) {
	return repositories.NewAttemptRepository(db),
		repositories.NewLockRepository(db),
		repositories.NewBlockRepository(db),
		repositories.NewAlertRepository(db),
		repositories.NewOverrideRepository(db),
		repositories.NewCaptchaRepository(db),
		repositories.NewRetentionRepository(db)
}

// SeedFailedAttempts inserts count failed attempts for an identifier, spaced
// one second apart ending at the given time
func SeedFailedAttempts(ctx context.Context, pool *pgxpool.Pool, identifier string, identifierType models.IdentifierType, count int, endingAt time.Time, ipAddress string) error {
	query := `
		INSERT INTO login_attempts (identifier, identifier_type, success, ip_address, user_agent, attempted_at)
		VALUES ($1, $2, FALSE, $3, 'integration-test', $4)
	`

	for i := 0; i < count; i++ {
		attemptedAt := endingAt.Add(-time.Duration(count-1-i) * time.Second)
		if _, err := pool.Exec(ctx, query, identifier, string(identifierType), ipAddress, attemptedAt); err != nil {
			return fmt.Errorf("failed to insert attempt: %w", err)
		}
	}

	return nil
}

// SeedLock inserts an active account lock expiring after the given duration
func SeedLock(ctx context.Context, pool *pgxpool.Pool, identifier string, identifierType models.IdentifierType, expiresIn time.Duration) (string, error) {
	query := `
		INSERT INTO account_locks (identifier, identifier_type, reason, locked_at, expires_at, is_active)
		VALUES ($1, $2, $3, NOW(), $4, TRUE)
		RETURNING id
	`

	var id string
	err := pool.QueryRow(ctx, query, identifier, string(identifierType), models.DefaultLockReason, time.Now().Add(expiresIn)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert lock: %w", err)
	}

	return id, nil
}

// SeedBlock inserts an active security block. A zero expiresIn leaves the
// block without auto-expiry.
func SeedBlock(ctx context.Context, pool *pgxpool.Pool, identifier string, identifierType models.IdentifierType, severity models.Severity, expiresIn time.Duration) (string, error) {
	query := `
		INSERT INTO security_blocks (identifier, identifier_type, reason, severity, blocked_at, expires_at, is_active)
		VALUES ($1, $2, 'integration test block', $3, NOW(), $4, TRUE)
		RETURNING id
	`

	var expiresAt *time.Time
	if expiresIn > 0 {
		t := time.Now().Add(expiresIn)
		expiresAt = &t
	}

	var id string
	err := pool.QueryRow(ctx, query, identifier, string(identifierType), string(severity), expiresAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert block: %w", err)
	}

	return id, nil
}
