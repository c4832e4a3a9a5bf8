package browser

import (
	"context"
	"errors"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("browser automation disabled")

// Noop stands in when browser automation is disabled; every check and
// publish fails.
type Noop struct{}

// NewNoop creates a new Noop capability.
func NewNoop() *Noop {
	return &Noop{}
}

// CheckLogin always reports not logged in.
func (Noop) CheckLogin(context.Context) (bool, error) {
	return false, ErrDisabled
}

// Publish always fails.
func (Noop) Publish(context.Context, schedule.ScheduledItem) error {
	return ErrDisabled
}

// Close implements io.Closer.
func (Noop) Close() error {
	return nil
}
