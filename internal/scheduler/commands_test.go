package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/scheduled-publisher/internal/clock/manual"
	"github.com/JakeFAU/scheduled-publisher/internal/failover"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
	"github.com/JakeFAU/scheduled-publisher/internal/storage/memory"
)

type fakeLogin struct {
	mu  sync.Mutex
	ok  bool
	err error
}

func (f *fakeLogin) set(ok bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ok, f.err = ok, err
}

func (f *fakeLogin) CheckLogin(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ok, f.err
}

func TestPublishNow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pending("a1", "Sunset", time.Hour), pending("b1", "Sunrise", 2*time.Hour))
	h.exec.gate = make(chan struct{})

	res := h.engine.PublishNow(context.Background(), []string{"a1", "ghost"})
	require.True(t, res.Success, res.Message)
	require.Contains(t, res.Message, "ghost (not found)")

	res = h.engine.PublishNow(context.Background(), []string{"a1"})
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, schedule.ErrNotFound)
	require.Contains(t, res.Message, "already queued")

	close(h.exec.gate)
	h.waitIdle(t)
	require.Equal(t, []string{"a1"}, h.exec.callIDs())
	require.Equal(t, schedule.StatusPending, h.item(t, "b1").Status)

	res = h.engine.PublishNow(context.Background(), nil)
	require.False(t, res.Success)
}

func TestPublishNowRemovesItemFromMissedCache(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pending("a1", "Sunset", -time.Hour))
	h.engine.RunScanCycle(context.Background())
	require.Len(t, h.engine.State().Missed(), 1)

	res := h.engine.PublishNow(context.Background(), []string{"a1"})
	require.True(t, res.Success, res.Message)
	h.waitIdle(t)

	require.Empty(t, h.engine.State().Missed())
	require.False(t, h.engine.State().NotificationSent())
}

func TestReschedule(t *testing.T) {
	t.Parallel()

	failed := pending("a1", "Sunset", -time.Hour)
	failed.Status = schedule.StatusFailed
	failed.FailMessage = "Timeout"
	h := newHarness(t, failed, pending("b1", "Sunrise", time.Hour))

	res := h.engine.Reschedule(context.Background(), []string{"a1"}, "30m")
	require.True(t, res.Success, res.Message)
	got := h.item(t, "a1")
	require.True(t, got.ScheduledAtUTC.Equal(epoch.Add(30*time.Minute)))
	require.Equal(t, schedule.StatusPending, got.Status)
	require.Empty(t, got.FailMessage)

	res = h.engine.Reschedule(context.Background(), []string{"b1"}, "2026-03-05T09:00:00Z")
	require.True(t, res.Success, res.Message)
	require.True(t, h.item(t, "b1").ScheduledAtUTC.Equal(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)))

	res = h.engine.Reschedule(context.Background(), []string{"b1"}, "next week")
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, schedule.ErrInvalidTimeFormat)

	res = h.engine.Reschedule(context.Background(), []string{"ghost"}, "5m")
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, schedule.ErrNotFound)
}

func TestStatusView(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pending("a1", "Sunset", -time.Minute), pending("a2", "Dusk", -time.Minute))
	h.exec.gate = make(chan struct{})

	view := h.engine.Status()
	require.Equal(t, "primary-0", view.ActiveDB)
	require.Nil(t, view.LastCheckTime)
	require.False(t, view.LoggedIn)

	h.engine.RunScanCycle(context.Background())
	require.Eventually(t, func() bool { return h.engine.Status().QueueCount == 1 }, time.Second, 5*time.Millisecond)
	view = h.engine.Status()
	require.NotNil(t, view.LastCheckTime)
	require.Equal(t, epoch, *view.LastCheckTime)

	close(h.exec.gate)
	h.waitIdle(t)
	require.Equal(t, 0, h.engine.Status().QueueCount)
}

func TestLoadData(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pending("a1", "Sunset", time.Hour))
	doc, err := h.engine.LoadData(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Schedule, 1)

	h.primary.failLoads.Store(true)
	_, err = h.engine.LoadData(context.Background())
	require.ErrorIs(t, err, schedule.ErrStoreUnavailable)
}

func TestCheckLoginNotifiesOnTransitions(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	login := &fakeLogin{ok: true}
	engine := New(h.ctrl, h.exec, login, Options{Notifier: h.notes, Clock: h.clock, Logger: zaptest.NewLogger(t)})

	require.True(t, engine.CheckLogin(context.Background()).Success)
	require.True(t, engine.CheckLogin(context.Background()).Success)
	require.True(t, engine.Status().LoggedIn)
	require.Equal(t, 1, h.notes.count(schedule.NoticeLogin))

	login.set(false, errors.New("session expired"))
	res := engine.CheckLogin(context.Background())
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, schedule.ErrLoginInvalid)
	require.False(t, engine.Status().LoggedIn)
	require.Equal(t, 2, h.notes.count(schedule.NoticeLogin))

	login.set(false, nil)
	res = engine.CheckLogin(context.Background())
	require.False(t, res.Success)
	require.Equal(t, 2, h.notes.count(schedule.NoticeLogin))
}

func TestSwitchDatabase(t *testing.T) {
	t.Parallel()

	t.Run("insufficient topology", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		res := h.engine.SwitchDatabase(context.Background())
		require.False(t, res.Success)
		require.ErrorIs(t, res.Err, schedule.ErrInsufficientTopology)
		require.Equal(t, "primary-0", h.engine.Status().ActiveDB)
	})

	t.Run("cutover", func(t *testing.T) {
		t.Parallel()
		p0 := memory.NewDocumentStore("primary-0")
		p1 := memory.NewDocumentStore("primary-1")
		backup := memory.NewDocumentStore("backup")
		doc := schedule.NewAppState()
		doc.Schedule = append(doc.Schedule, pending("a1", "Sunset", time.Hour))
		require.NoError(t, p0.Save(context.Background(), doc))

		notes := &recordingNotifier{}
		ctrl, err := failover.New([]schedule.Backend{p0, p1}, backup, notes, zaptest.NewLogger(t))
		require.NoError(t, err)
		engine := New(ctrl, newFakeExecutor(), nil, Options{Notifier: notes, Clock: manual.New(epoch)})

		res := engine.SwitchDatabase(context.Background())
		require.True(t, res.Success, res.Message)
		require.Equal(t, "primary-1", engine.Status().ActiveDB)
		require.Equal(t, 1, notes.count(schedule.NoticeDatabase))

		loaded, err := engine.LoadData(context.Background())
		require.NoError(t, err)
		require.Len(t, loaded.Schedule, 1)
		require.Equal(t, 1, loaded.DBConfig.ActiveIndex)
	})
}
