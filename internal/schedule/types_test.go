package schedule

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordPublishedBoundsHistory(t *testing.T) {
	t.Parallel()

	state := NewAppState()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 25; i++ {
		state.Schedule = append(state.Schedule, ScheduledItem{
			ID:     fmt.Sprintf("item-%02d", i),
			Title:  fmt.Sprintf("Title %d", i),
			Status: StatusPending,
		})
	}
	for i := 0; i < 25; i++ {
		state.RecordPublished(ScheduledItem{ID: fmt.Sprintf("item-%02d", i)}, base.Add(time.Duration(i)*time.Minute))
	}

	require.Empty(t, state.Schedule)
	require.Len(t, state.RecentlyPublished, HistoryLimit)
	require.Equal(t, "item-24", state.RecentlyPublished[0].ID)
	require.Equal(t, "item-05", state.RecentlyPublished[HistoryLimit-1].ID)
	for _, item := range state.RecentlyPublished {
		require.Equal(t, StatusPublished, item.Status)
		require.NotNil(t, item.PublishedAtUTC)
	}
}

func TestRecordPublishedKeepsStoredFields(t *testing.T) {
	t.Parallel()

	state := NewAppState()
	state.Schedule = []ScheduledItem{{ID: "a1", Title: "Sunset", Theme: "sky", Status: StatusFailed, FailMessage: "boom"}}

	got := state.RecordPublished(ScheduledItem{ID: "a1"}, time.Unix(100, 0))

	require.Equal(t, "Sunset", got.Title)
	require.Equal(t, "sky", got.Theme)
	require.Empty(t, got.FailMessage)
	require.Equal(t, got, state.RecentlyPublished[0])
}

func TestSettingsAutoPublishingDefaultsOn(t *testing.T) {
	t.Parallel()

	state, err := Decode([]byte(`{"schedule":[],"settings":{}}`))
	require.NoError(t, err)
	require.True(t, state.Settings.AutoPublishing())

	state, err = Decode([]byte(`{"settings":{"isAutoPublishingEnabled":false}}`))
	require.NoError(t, err)
	require.False(t, state.Settings.AutoPublishing())
	require.NotNil(t, state.Schedule)
	require.NotNil(t, state.RecentlyPublished)
}

func TestDecodeEmptyAndEncodeShape(t *testing.T) {
	t.Parallel()

	state, err := Decode(nil)
	require.NoError(t, err)
	require.Empty(t, state.Schedule)

	state.DBConfig.ActiveIndex = 2
	data, err := state.Encode()
	require.NoError(t, err)
	require.JSONEq(t,
		`{"schedule":[],"recentlyPublished":[],"settings":{},"db_config":{"active_index":2}}`,
		string(data),
	)

	_, err = Decode([]byte("{not json"))
	require.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	ts := time.Unix(10, 0).UTC()
	enabled := true
	state := AppState{
		Schedule:          []ScheduledItem{{ID: "a"}},
		RecentlyPublished: []ScheduledItem{{ID: "b", PublishedAtUTC: &ts}},
		Settings:          Settings{IsAutoPublishingEnabled: &enabled},
	}
	cp := state.Clone()
	cp.Schedule[0].ID = "changed"
	*cp.RecentlyPublished[0].PublishedAtUTC = time.Unix(20, 0)
	*cp.Settings.IsAutoPublishingEnabled = false

	require.Equal(t, "a", state.Schedule[0].ID)
	require.Equal(t, ts, *state.RecentlyPublished[0].PublishedAtUTC)
	require.True(t, *state.Settings.IsAutoPublishingEnabled)
}

func TestTitleMatchesIgnoresCase(t *testing.T) {
	t.Parallel()

	item := ScheduledItem{Title: "Sunset "}
	require.True(t, item.TitleMatches("sunset"))
	require.False(t, item.TitleMatches("sun"))
}
