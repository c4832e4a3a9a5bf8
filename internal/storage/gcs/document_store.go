// Package gcs provides a document backend stored as one Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

const defaultObject = "scheduled-publisher/state.json"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Name            string
	Bucket          string
	Object          string
	CredentialsFile string
}

// object is the slice of *storage.ObjectHandle the store relies on.
type object interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context) io.WriteCloser
}

type handle struct {
	obj *storage.ObjectHandle
}

func (h handle) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return h.obj.NewReader(ctx)
}

func (h handle) NewWriter(ctx context.Context) io.WriteCloser {
	w := h.obj.NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

// DocumentStore reads and writes the document as a JSON object.
type DocumentStore struct {
	name   string
	uri    string
	obj    object
	closer func() error
}

// New creates a client (ADC unless a credentials file is given) and binds the object.
func New(ctx context.Context, cfg Config) (*DocumentStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	name := objectName(cfg)
	store := newStore(cfg, handle{obj: client.Bucket(cfg.Bucket).Object(name)})
	store.closer = client.Close
	return store, nil
}

func newStore(cfg Config, obj object) *DocumentStore {
	name := cfg.Name
	if name == "" {
		name = "gcs"
	}
	return &DocumentStore{
		name: name,
		uri:  fmt.Sprintf("gs://%s/%s", cfg.Bucket, objectName(cfg)),
		obj:  obj,
	}
}

func objectName(cfg Config) string {
	if cfg.Object == "" {
		return defaultObject
	}
	return cfg.Object
}

// Name identifies the backend in logs and status output.
func (s *DocumentStore) Name() string {
	return s.name
}

// Load downloads the object; a missing object yields an empty document.
func (s *DocumentStore) Load(ctx context.Context) (schedule.AppState, error) {
	r, err := s.obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return schedule.NewAppState(), nil
		}
		return schedule.AppState{}, fmt.Errorf("open %s: %w", s.uri, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return schedule.AppState{}, fmt.Errorf("read %s: %w", s.uri, err)
	}
	state, err := schedule.Decode(data)
	if err != nil {
		return schedule.AppState{}, fmt.Errorf("load %s: %w", s.name, err)
	}
	return state, nil
}

// Save uploads the encoded document, replacing the previous generation.
func (s *DocumentStore) Save(ctx context.Context, state schedule.AppState) error {
	data, err := state.Encode()
	if err != nil {
		return err
	}
	w := s.obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return fmt.Errorf("write %s: %w (close writer: %v)", s.uri, err, closeErr)
		}
		return fmt.Errorf("write %s: %w", s.uri, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Close releases the storage client.
func (s *DocumentStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
