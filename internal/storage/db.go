package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/answerline/answer-engine/internal/config"
	"github.com/answerline/answer-engine/internal/observability"
)

// Store owns the database handle and provides transactional execution.
type Store struct {
	db     *sql.DB
	driver string
	logger *observability.Logger
}

// Open connects to the configured database. A Postgres DSN is tried with
// bounded retry; on persistent failure the local SQLite file takes over so a
// development setup never needs a running server.
func Open(cfg *config.Config, logger *observability.Logger) (*Store, error) {
	if cfg.Database.Driver == "postgres" && cfg.Database.Postgres.DSN != "" {
		db, err := openPostgres(cfg, logger)
		if err == nil {
			return newStore(db, "postgres", logger)
		}
		logger.Warn().Err(err).Msg("Postgres unreachable, falling back to SQLite")
	}

	db, err := openSQLite(cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newStore(db, "sqlite3", logger)
}

func openPostgres(cfg *config.Config, logger *observability.Logger) (*sql.DB, error) {
	pg := cfg.Database.Postgres

	db, err := sql.Open("postgres", pg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(pg.MaxOpenConns)
	db.SetMaxIdleConns(pg.MaxIdleConns)
	db.SetConnMaxLifetime(pg.ConnMaxLifetime)

	attempts := pg.ConnectAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := pg.ConnectBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var pingErr error
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = db.PingContext(ctx)
		cancel()
		if pingErr == nil {
			return db, nil
		}
		logger.Warn().Err(pingErr).Int("attempt", i+1).Msg("Postgres ping failed")
		time.Sleep(backoff)
		backoff *= 2
	}
	_ = db.Close()
	return nil, pingErr
}

func openSQLite(cfg *config.Config) (*sql.DB, error) {
	dsn := cfg.Database.SQLite.Path
	if cfg.Database.SQLite.JournalMode != "" {
		dsn = fmt.Sprintf("%s?_journal_mode=%s", dsn, cfg.Database.SQLite.JournalMode)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	maxConns := cfg.Database.SQLite.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	return db, nil
}

func newStore(db *sql.DB, driver string, logger *observability.Logger) (*Store, error) {
	s := &Store{db: db, driver: driver, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// NewStoreFromDB wraps an existing handle; used by tests and the CLI.
func NewStoreFromDB(db *sql.DB, driver string, logger *observability.Logger) (*Store, error) {
	return newStore(db, driver, logger)
}

// DB exposes the raw handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver reports which driver backs the store.
func (s *Store) Driver() string {
	return s.driver
}

// Repos returns repositories bound to the non-transactional handle.
func (s *Store) Repos() *Repositories {
	return NewRepositories(s.db)
}

// WithTx runs fn inside a transaction; rollback on error leaves no partial writes.
func (s *Store) WithTx(ctx context.Context, fn func(repos *Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(NewRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema. DDL is kept portable across Postgres and SQLite:
// uuids and JSON as TEXT, timestamps as TIMESTAMP.
func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			domain TEXT,
			settings TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			user_type TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'END_USER',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge_bases (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			document_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			content_preview TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'PROCESSING',
			chunk_count INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			indexed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			embedding TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			UNIQUE (document_id, chunk_index)
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			channel TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			context TEXT NOT NULL DEFAULT '{}',
			started_at TIMESTAMP NOT NULL,
			last_message_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			sender_type TEXT NOT NULL,
			content TEXT NOT NULL,
			message_type TEXT NOT NULL DEFAULT 'TEXT',
			metadata TEXT NOT NULL DEFAULT '{}',
			timestamp TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON knowledge_chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_kb ON documents (knowledge_base_id)`,
		`CREATE INDEX IF NOT EXISTS idx_kb_tenant ON knowledge_bases (tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_key ON conversations (tenant_id, user_id, channel, status)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, timestamp)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}
