package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/inkwell-labs/gatekeeper/internal/database"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/internal/repositories"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
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
	// Create PostgreSQL container
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("gatekeeper"),
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

	// Get connection string
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	// Create connection pool
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create database.DB wrapper
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
	// Get absolute path to migrations directory
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// Suppress goose logs
	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs stdlib DB connection
	// Use stdlib adapter from pgx
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	// Run migrations on the stdlib DB
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
		"verifications",
		"audit_logs",
		"login_locations",
		"accounts",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.AccountRepository,
	*repositories.AuditLogRepository,
	*repositories.VerificationRepository,
) {
	return repositories.NewAccountRepository(db),
		repositories.NewAuditLogRepository(db),
		repositories.NewVerificationRepository(db)
}

// SeedAccount inserts a test account with hashed password
func SeedAccount(ctx context.Context, repo *repositories.AccountRepository, email, plaintext, role string, verified bool) (*models.Account, error) {
	// Hash password
	hashedPassword, err := password.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	expiresAt := password.NextExpiry(now)
	account := &models.Account{
		Email:             email,
		Name:              "Test Account",
		Role:              role,
		PasswordHash:      hashedPassword,
		PasswordChangedAt: &now,
		PasswordExpiresAt: &expiresAt,
		EmailVerified:     verified,
	}

	created, err := repo.Create(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	return created, nil
}

// sha256Hash computes SHA256 hash of input string
func sha256Hash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// SeedVerification inserts a pending verification and returns the raw token
func SeedVerification(ctx context.Context, pool *pgxpool.Pool, accountID, kind, purpose string) (string, error) {
	token := "test-verification-token-" + accountID
	tokenHash := sha256Hash(token)

	query := `
		INSERT INTO verifications (id, account_id, kind, purpose, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, NOW() + INTERVAL '24 hours')
		RETURNING id
	`

	var id string
	err := pool.QueryRow(ctx, query, uuid.New().String(), accountID, kind, purpose, tokenHash).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert verification: %w", err)
	}

	return token, nil
}

// SeedExpiredVerification inserts an already-expired verification and returns the raw token
func SeedExpiredVerification(ctx context.Context, pool *pgxpool.Pool, accountID, kind, purpose string) (string, error) {
	token := "test-expired-token-" + accountID
	tokenHash := sha256Hash(token)

	query := `
		INSERT INTO verifications (id, account_id, kind, purpose, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, NOW() - INTERVAL '1 hour')
		RETURNING id
	`

	var id string
	err := pool.QueryRow(ctx, query, uuid.New().String(), accountID, kind, purpose, tokenHash).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert expired verification: %w", err)
	}

	return token, nil
}
