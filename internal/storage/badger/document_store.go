// Package badger provides an embedded document backend on BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

const defaultDocumentID = "main"

// Config controls where BadgerDB keeps its files.
type Config struct {
	Name       string
	Path       string
	DocumentID string
	// InMemory skips disk persistence; Path is ignored.
	InMemory bool
	Logger   *zap.Logger
}

// DocumentStore keeps the document under a single key.
type DocumentStore struct {
	name string
	db   *badger.DB
	key  []byte
}

// badgerLogger adapts zap to badger's Logger interface.
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.sugar.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.sugar.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.sugar.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.sugar.Debugf(format, args...) }

// New opens the database, creating the directory when needed.
func New(cfg Config) (*DocumentStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{sugar: cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "badger"
	}
	docID := cfg.DocumentID
	if docID == "" {
		docID = defaultDocumentID
	}
	return &DocumentStore{name: name, db: db, key: []byte("state/" + docID)}, nil
}

// Name identifies the backend in logs and status output.
func (s *DocumentStore) Name() string {
	return s.name
}

// Load reads the document key; a missing key yields an empty document.
func (s *DocumentStore) Load(_ context.Context) (schedule.AppState, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return schedule.NewAppState(), nil
	}
	if err != nil {
		return schedule.AppState{}, fmt.Errorf("read %s: %w", s.key, err)
	}
	state, err := schedule.Decode(data)
	if err != nil {
		return schedule.AppState{}, fmt.Errorf("load %s: %w", s.name, err)
	}
	return state, nil
}

// Save writes the encoded document in one transaction.
func (s *DocumentStore) Save(_ context.Context, state schedule.AppState) error {
	data, err := state.Encode()
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, data)
	}); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *DocumentStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}
