package scheduler

import (
	"sync"
	"time"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
)

// State is the in-memory runtime state of one Engine. It is never persisted.
type State struct {
	mu               sync.Mutex
	inProgress       map[string]struct{}
	missed           []schedule.ScheduledItem
	notificationSent bool
	paused           bool
	loggedIn         bool
	loginChecked     bool
	lastCheck        time.Time
}

// NewState returns empty runtime state.
func NewState(paused bool) *State {
	return &State{
		inProgress: make(map[string]struct{}),
		paused:     paused,
	}
}

// claim adds id to the in-progress set; false when it is already there.
func (s *State) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inProgress[id]; ok {
		return false
	}
	s.inProgress[id] = struct{}{}
	return true
}

func (s *State) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inProgress, id)
}

// InProgress reports whether id is queued or being published.
func (s *State) InProgress(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inProgress[id]
	return ok
}

// InProgressCount returns the size of the in-progress set.
func (s *State) InProgressCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inProgress)
}

// shouldMarkMissed reports whether id is neither cached nor in progress.
func (s *State) shouldMarkMissed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inProgress[id]; ok {
		return false
	}
	return s.missedIndex(id) < 0
}

func (s *State) missedIndex(id string) int {
	for i := range s.missed {
		if s.missed[i].ID == id {
			return i
		}
	}
	return -1
}

// addMissed appends items not yet cached and reports whether an alert is due,
// flipping the debounce flag when it is.
func (s *State) addMissed(items []schedule.ScheduledItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if s.missedIndex(item.ID) < 0 {
			s.missed = append(s.missed, item)
		}
	}
	if len(s.missed) == 0 || s.notificationSent {
		return false
	}
	s.notificationSent = true
	return true
}

// Missed returns a copy of the missed cache.
func (s *State) Missed() []schedule.ScheduledItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schedule.ScheduledItem(nil), s.missed...)
}

// matchMissed returns cached items for identifier: every item for AllMissed,
// otherwise items whose title matches case-insensitively.
func (s *State) matchMissed(identifier string) []schedule.ScheduledItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schedule.ScheduledItem
	for _, item := range s.missed {
		if identifier == AllMissed || item.TitleMatches(identifier) {
			out = append(out, item)
		}
	}
	return out
}

// removeMissed drops ids from the cache and resets the debounce flag once the
// cache is empty.
func (s *State) removeMissed(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := s.missed[:0]
	for _, item := range s.missed {
		if _, ok := drop[item.ID]; !ok {
			kept = append(kept, item)
		}
	}
	s.missed = kept
	if len(s.missed) == 0 {
		s.notificationSent = false
	}
}

// clearMissed empties the cache, resets the flag and returns the number dropped.
func (s *State) clearMissed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.missed)
	s.missed = nil
	s.notificationSent = false
	return n
}

// NotificationSent reports the missed-alert debounce flag.
func (s *State) NotificationSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notificationSent
}

func (s *State) setPaused(p bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.paused != p
	s.paused = p
	return changed
}

// Paused reports whether scan cycles are suspended.
func (s *State) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// setLoggedIn records a login result; the first result always counts as a change.
func (s *State) setLoggedIn(ok bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = !s.loginChecked || s.loggedIn != ok
	s.loginChecked = true
	s.loggedIn = ok
	return changed
}

// LoggedIn reports the last login check result.
func (s *State) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

func (s *State) markChecked(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCheck = t
}

// LastCheck returns when the last scan cycle evaluated the schedule.
func (s *State) LastCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCheck
}
