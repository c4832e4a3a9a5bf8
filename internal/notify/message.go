package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// Message is one operator notification.
type Message struct {
	ID   uuid.UUID           `json:"id"`
	TS   time.Time           `json:"ts"`
	Kind schedule.NoticeKind `json:"kind"`
	Text string              `json:"text"`
}

// Validate performs coarse validation on Message payloads.
func (m Message) Validate() error {
	if m.ID == uuid.Nil {
		return errors.New("message id is required")
	}
	if m.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if strings.TrimSpace(m.Text) == "" {
		return errors.New("text is required")
	}
	switch m.Kind {
	case schedule.NoticePublished, schedule.NoticeFailed, schedule.NoticeMissed,
		schedule.NoticeLogin, schedule.NoticeDatabase, schedule.NoticeInfo:
	default:
		return fmt.Errorf("unknown kind %q", m.Kind)
	}
	return nil
}
