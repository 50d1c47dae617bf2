package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/dlprewards/internal/metrics"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const migrationsDir = "migrations"

// ErrNoDatabase is returned by every store function when InitDB has not run.
var ErrNoDatabase = errors.New("database not initialized")

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err := DB.Ping(); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Connected to PostgreSQL")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

func setupGoose() error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// EnsureSchema applies every pending migration.
func EnsureSchema(ctx context.Context) error {
	if DB == nil {
		return ErrNoDatabase
	}
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, DB, migrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, DB)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	log.Info().Int64("version", version).Msg("Database schema ensured")
	return nil
}

// ResetSchema rolls back every migration and applies them again. All data is lost.
func ResetSchema(ctx context.Context) error {
	if DB == nil {
		return ErrNoDatabase
	}
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.ResetContext(ctx, DB, migrationsDir); err != nil {
		return fmt.Errorf("failed to reset migrations: %w", err)
	}
	log.Warn().Msg("Database schema rolled back")
	return EnsureSchema(ctx)
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return ErrNoDatabase
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// observe counts a query outcome and passes err through.
func observe(err error) error {
	if err != nil {
		metrics.DatabaseQueriesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.DatabaseQueriesTotal.WithLabelValues("success").Inc()
	return nil
}

// rollback is deferred by transactional writers; it is a no-op after Commit.
func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Error().Err(err).Msg("Failed to roll back transaction")
	}
}
