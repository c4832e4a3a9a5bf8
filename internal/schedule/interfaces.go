package schedule

import (
	"context"
	"time"
)

// Backend loads and saves the whole document against one storage system.
type Backend interface {
	Name() string
	Load(ctx context.Context) (AppState, error)
	Save(ctx context.Context, state AppState) error
	Close() error
}

// Store is the document access used by the scheduler. Update serializes
// read-modify-write cycles so concurrent callers never lose each other's writes.
type Store interface {
	Load(ctx context.Context) (AppState, error)
	Update(ctx context.Context, fn func(*AppState) error) (AppState, error)
}

// NoticeKind classifies operator notifications.
type NoticeKind string

// Notification kinds emitted by the scheduler and the failover controller.
const (
	NoticePublished NoticeKind = "published"
	NoticeFailed    NoticeKind = "failed"
	NoticeMissed    NoticeKind = "missed"
	NoticeLogin     NoticeKind = "login"
	NoticeDatabase  NoticeKind = "database"
	NoticeInfo      NoticeKind = "info"
)

// Notifier delivers operator messages. Implementations must not block.
type Notifier interface {
	Notify(kind NoticeKind, text string)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
