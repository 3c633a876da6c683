package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFs embed.FS

// SqliteStore persists the config document in a single-row sqlite table.
// Document saves are transactional, so a crash mid-save leaves the previous
// document intact.
type SqliteStore struct {
	db *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	zlog.Debug().Str("path", dbPath).Msg("Initializing sqlite document store")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.migrateUp(); err != nil {
		return nil, fmt.Errorf("failed to migrate document store schema: %w", err)
	}
	return store, nil
}

func (s *SqliteStore) migrateUp() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrationsSource, err := iofs.New(migrationsFs, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migrations iofs instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrationsSource, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (s *SqliteStore) LoadDocument(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM config_document WHERE id = 1").Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config document: %w", err)
	}
	return doc, nil
}

func (s *SqliteStore) SaveDocument(ctx context.Context, doc []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO config_document (id, document, updated) VALUES (1, ?, CURRENT_TIMESTAMP)",
		doc,
	)
	if err != nil {
		return fmt.Errorf("failed to save config document: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	zlog.Debug().Msg("Closing sqlite document store")
	return s.db.Close()
}

var _ DocumentStore = (*SqliteStore)(nil)
