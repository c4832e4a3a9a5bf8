// Package postgres provides the Postgres-backed document backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultTable      = "app_state"
	defaultDocumentID = "main"
)

// Config controls the Postgres connection pool and the row holding the document.
type Config struct {
	Name            string
	DSN             string
	Table           string
	DocumentID      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// DocumentStore keeps the document as one JSONB row keyed by id.
type DocumentStore struct {
	name  string
	pool  pool
	table string
	docID string
}

// New connects a pool using cfg and ensures the document table exists.
func New(ctx context.Context, cfg Config) (*DocumentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, cfg Config) (*DocumentStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	docID := cfg.DocumentID
	if docID == "" {
		docID = defaultDocumentID
	}
	name := cfg.Name
	if name == "" {
		name = "postgres"
	}
	return &DocumentStore{name: name, pool: p, table: table, docID: docID}, nil
}

// EnsureSchema creates the document table when missing.
func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	doc JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure %s table: %w", s.table, err)
	}
	return nil
}

// Name identifies the backend in logs and status output.
func (s *DocumentStore) Name() string {
	return s.name
}

// Ping verifies the pool can reach the server.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.name, err)
	}
	return nil
}

// Load reads the document row; a missing row yields an empty document.
func (s *DocumentStore) Load(ctx context.Context) (schedule.AppState, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, s.table)
	var data []byte
	if err := s.pool.QueryRow(ctx, query, s.docID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schedule.NewAppState(), nil
		}
		return schedule.AppState{}, fmt.Errorf("select document: %w", err)
	}
	state, err := schedule.Decode(data)
	if err != nil {
		return schedule.AppState{}, fmt.Errorf("load %s: %w", s.name, err)
	}
	return state, nil
}

// Save upserts the document row.
func (s *DocumentStore) Save(ctx context.Context, state schedule.AppState) error {
	data, err := state.Encode()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, doc, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, s.docID, data); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *DocumentStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
