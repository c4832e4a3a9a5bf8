// Package schedule defines the document model shared by the scheduler, the
// store backends and the HTTP surface.
package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a scheduled item.
type Status string

// Item status values persisted in the document.
const (
	StatusPending   Status = "Pending"
	StatusPublished Status = "Published"
	StatusFailed    Status = "Failed"
)

// HistoryLimit bounds the recently published list.
const HistoryLimit = 20

// MissedMessage is recorded on items that aged past the grace window.
const MissedMessage = "Missed scheduled time: not published within the grace window"

// ScheduledItem is one piece of content waiting to be published.
type ScheduledItem struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Theme          string     `json:"theme"`
	ScheduledAtUTC time.Time  `json:"scheduledAtUTC"`
	Status         Status     `json:"status"`
	FailMessage    string     `json:"failMessage,omitempty"`
	PublishedAtUTC *time.Time `json:"publishedAtUTC,omitempty"`
}

// TitleMatches reports a case-insensitive exact title match.
func (i ScheduledItem) TitleMatches(title string) bool {
	return strings.EqualFold(strings.TrimSpace(i.Title), strings.TrimSpace(title))
}

// Settings holds operator-controlled switches stored alongside the schedule.
type Settings struct {
	// IsAutoPublishingEnabled is nil for documents written before the flag
	// existed; nil means enabled.
	IsAutoPublishingEnabled *bool `json:"isAutoPublishingEnabled,omitempty"`
}

// AutoPublishing reports whether scan cycles should run.
func (s Settings) AutoPublishing() bool {
	return s.IsAutoPublishingEnabled == nil || *s.IsAutoPublishingEnabled
}

// DBConfig records which primary backend the document was last written through.
type DBConfig struct {
	ActiveIndex int `json:"active_index"`
}

// AppState is the single persisted document.
type AppState struct {
	Schedule          []ScheduledItem `json:"schedule"`
	RecentlyPublished []ScheduledItem `json:"recentlyPublished"`
	Settings          Settings        `json:"settings"`
	DBConfig          DBConfig        `json:"db_config"`
}

// NewAppState returns an empty document with non-nil slices.
func NewAppState() AppState {
	return AppState{
		Schedule:          []ScheduledItem{},
		RecentlyPublished: []ScheduledItem{},
	}
}

// Normalize replaces nil slices so the document always encodes as arrays.
func (s *AppState) Normalize() {
	if s.Schedule == nil {
		s.Schedule = []ScheduledItem{}
	}
	if s.RecentlyPublished == nil {
		s.RecentlyPublished = []ScheduledItem{}
	}
}

// Clone returns a deep copy of the document.
func (s AppState) Clone() AppState {
	out := s
	out.Schedule = cloneItems(s.Schedule)
	out.RecentlyPublished = cloneItems(s.RecentlyPublished)
	if s.Settings.IsAutoPublishingEnabled != nil {
		v := *s.Settings.IsAutoPublishingEnabled
		out.Settings.IsAutoPublishingEnabled = &v
	}
	out.Normalize()
	return out
}

// Find returns the index of the schedule entry with the given id, or -1.
func (s *AppState) Find(id string) int {
	for i := range s.Schedule {
		if s.Schedule[i].ID == id {
			return i
		}
	}
	return -1
}

// RecordPublished removes the item from the schedule and pushes it onto the
// front of the history, evicting the oldest entries beyond HistoryLimit.
func (s *AppState) RecordPublished(item ScheduledItem, at time.Time) ScheduledItem {
	if idx := s.Find(item.ID); idx >= 0 {
		item = s.Schedule[idx]
		s.Schedule = append(s.Schedule[:idx], s.Schedule[idx+1:]...)
	}
	published := at.UTC()
	item.Status = StatusPublished
	item.FailMessage = ""
	item.PublishedAtUTC = &published

	history := make([]ScheduledItem, 0, HistoryLimit)
	history = append(history, item)
	for _, prev := range s.RecentlyPublished {
		if len(history) == HistoryLimit {
			break
		}
		history = append(history, prev)
	}
	s.RecentlyPublished = history
	return item
}

// Encode marshals the document as JSON.
func (s AppState) Encode() ([]byte, error) {
	s.Normalize()
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode app state: %w", err)
	}
	return data, nil
}

// Decode parses a JSON document. Empty input yields an empty document.
func Decode(data []byte) (AppState, error) {
	state := NewAppState()
	if len(strings.TrimSpace(string(data))) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return AppState{}, fmt.Errorf("decode app state: %w", err)
	}
	state.Normalize()
	return state, nil
}

func cloneItems(src []ScheduledItem) []ScheduledItem {
	out := make([]ScheduledItem, len(src))
	for i, item := range src {
		out[i] = item
		if item.PublishedAtUTC != nil {
			ts := *item.PublishedAtUTC
			out[i].PublishedAtUTC = &ts
		}
	}
	return out
}
