// Package sqlite is the database-backed token store, for deployments that
// would rather not keep credentials in a loose JSON file.
package sqlite

import (
	"acbridge/internal/core"
	"acbridge/internal/storage/sqlite/migrations"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements core.TokenStore with a singleton row
type SQLiteStorage struct {
	db *sql.DB
}

// New opens (creating if needed) the database and applies pending migrations
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

// migrate applies the embedded migrations
func (s *SQLiteStorage) migrate() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// Load retrieves the stored tokens, or (nil, nil) when none are stored
func (s *SQLiteStorage) Load(ctx context.Context) (*core.TokenSet, error) {
	var tokens core.TokenSet
	var accessExpiresAt, refreshExpiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, access_expires_at, refresh_expires_at, updated_at
		FROM tokens WHERE id = 1
	`).Scan(&tokens.AccessToken, &tokens.RefreshToken, &accessExpiresAt, &refreshExpiresAt, &tokens.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}

	if accessExpiresAt.Valid {
		t := accessExpiresAt.Time.UTC()
		tokens.AccessExpiresAt = &t
	}
	if refreshExpiresAt.Valid {
		t := refreshExpiresAt.Time.UTC()
		tokens.RefreshExpiresAt = &t
	}
	tokens.UpdatedAt = tokens.UpdatedAt.UTC()

	return &tokens, nil
}

// Save inserts or replaces the singleton row
func (s *SQLiteStorage) Save(ctx context.Context, tokens *core.TokenSet) error {
	now := time.Now().UTC()
	updatedAt := tokens.UpdatedAt.UTC()
	if tokens.UpdatedAt.IsZero() {
		updatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (id, access_token, refresh_token, access_expires_at, refresh_expires_at, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			access_expires_at = excluded.access_expires_at,
			refresh_expires_at = excluded.refresh_expires_at,
			updated_at = excluded.updated_at
	`, tokens.AccessToken, tokens.RefreshToken,
		nullTime(tokens.AccessExpiresAt), nullTime(tokens.RefreshExpiresAt),
		now, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}

	return nil
}

// Clear deletes the stored tokens
func (s *SQLiteStorage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ core.TokenStore = (*SQLiteStorage)(nil)
