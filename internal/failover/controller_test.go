package failover

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
	"github.com/JakeFAU/scheduled-publisher/internal/storage/memory"
)

// faultyBackend wraps a memory store and fails the nth Save (1-based) or every Load.
type faultyBackend struct {
	*memory.DocumentStore
	mu        sync.Mutex
	saves     int
	failSave  int
	failLoads bool
}

func newFaulty(name string) *faultyBackend {
	return &faultyBackend{DocumentStore: memory.NewDocumentStore(name)}
}

func (f *faultyBackend) Save(ctx context.Context, state schedule.AppState) error {
	f.mu.Lock()
	f.saves++
	n := f.saves
	f.mu.Unlock()
	if f.failSave > 0 && n == f.failSave {
		return errors.New("disk full")
	}
	return f.DocumentStore.Save(ctx, state)
}

func (f *faultyBackend) Load(ctx context.Context) (schedule.AppState, error) {
	if f.failLoads {
		return schedule.AppState{}, errors.New("connection refused")
	}
	return f.DocumentStore.Load(ctx)
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingNotifier) Notify(_ schedule.NoticeKind, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func seed(t *testing.T, b schedule.Backend, ids ...string) {
	t.Helper()
	state := schedule.NewAppState()
	for _, id := range ids {
		state.Schedule = append(state.Schedule, schedule.ScheduledItem{ID: id, Title: id, Status: schedule.StatusPending})
	}
	require.NoError(t, b.Save(context.Background(), state))
}

func TestNewRequiresPrimaries(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil, nil)
	require.ErrorIs(t, err, ErrNoPrimaries)
}

func TestReconcileAdoptsBackupIndex(t *testing.T) {
	t.Parallel()

	primaries := []schedule.Backend{
		memory.NewDocumentStore("p0"),
		memory.NewDocumentStore("p1"),
		memory.NewDocumentStore("p2"),
	}
	backup := memory.NewDocumentStore("backup")
	doc := schedule.NewAppState()
	doc.DBConfig.ActiveIndex = 2
	require.NoError(t, backup.Save(context.Background(), doc))

	c, err := New(primaries, backup, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 0, c.ActiveIndex())

	idx, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, idx)
	require.Equal(t, 2, c.ActiveIndex())
	require.Equal(t, "p2", c.ActiveName())
}

func TestReconcileIgnoresInvalidIndex(t *testing.T) {
	t.Parallel()

	backup := memory.NewDocumentStore("backup")
	doc := schedule.NewAppState()
	doc.DBConfig.ActiveIndex = 7
	require.NoError(t, backup.Save(context.Background(), doc))

	c, err := New([]schedule.Backend{memory.NewDocumentStore("p0"), memory.NewDocumentStore("p1")}, backup, nil, nil)
	require.NoError(t, err)
	idx, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestReconcileWithoutBackupOrWithUnreachableBackup(t *testing.T) {
	t.Parallel()

	c, err := New([]schedule.Backend{memory.NewDocumentStore("p0")}, nil, nil, nil)
	require.NoError(t, err)
	idx, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	backup := newFaulty("backup")
	backup.failLoads = true
	c, err = New([]schedule.Backend{memory.NewDocumentStore("p0")}, backup, nil, nil)
	require.NoError(t, err)
	_, err = c.Reconcile(context.Background())
	require.ErrorIs(t, err, schedule.ErrStoreUnavailable)
	require.Equal(t, 0, c.ActiveIndex())
}

func TestUpdateStampsActiveIndexAndSerializes(t *testing.T) {
	t.Parallel()

	p0, p1 := memory.NewDocumentStore("p0"), memory.NewDocumentStore("p1")
	backup := memory.NewDocumentStore("backup")
	doc := schedule.NewAppState()
	doc.DBConfig.ActiveIndex = 1
	require.NoError(t, backup.Save(context.Background(), doc))

	c, err := New([]schedule.Backend{p0, p1}, backup, nil, nil)
	require.NoError(t, err)
	_, err = c.Reconcile(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Update(context.Background(), func(s *schedule.AppState) error {
				s.Schedule = append(s.Schedule, schedule.ScheduledItem{ID: string(rune('a' + i)), Status: schedule.StatusPending})
				return nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := p1.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Schedule, 20, "no update may be lost")
	require.Equal(t, 1, state.DBConfig.ActiveIndex)

	untouched, err := p0.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, untouched.Schedule)
}

func TestUpdateCallbackErrorWritesNothing(t *testing.T) {
	t.Parallel()

	p0 := newFaulty("p0")
	seed(t, p0, "a1")
	c, err := New([]schedule.Backend{p0}, nil, nil, nil)
	require.NoError(t, err)

	boom := errors.New("not found")
	_, err = c.Update(context.Background(), func(s *schedule.AppState) error {
		s.Schedule = nil
		return boom
	})
	require.ErrorIs(t, err, boom)

	state, err := c.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Schedule, 1)
}

func TestUpdateReportsStoreUnavailable(t *testing.T) {
	t.Parallel()

	p0 := newFaulty("p0")
	p0.failLoads = true
	c, err := New([]schedule.Backend{p0}, nil, nil, nil)
	require.NoError(t, err)

	_, err = c.Update(context.Background(), func(*schedule.AppState) error { return nil })
	require.ErrorIs(t, err, schedule.ErrStoreUnavailable)
	_, err = c.Load(context.Background())
	require.ErrorIs(t, err, schedule.ErrStoreUnavailable)
}

func TestSwitchRequiresTopology(t *testing.T) {
	t.Parallel()

	c, err := New([]schedule.Backend{memory.NewDocumentStore("p0"), memory.NewDocumentStore("p1")}, nil, nil, nil)
	require.NoError(t, err)
	_, err = c.Switch(context.Background())
	require.ErrorIs(t, err, schedule.ErrInsufficientTopology)

	c, err = New([]schedule.Backend{memory.NewDocumentStore("p0")}, memory.NewDocumentStore("backup"), nil, nil)
	require.NoError(t, err)
	_, err = c.Switch(context.Background())
	require.ErrorIs(t, err, schedule.ErrInsufficientTopology)
	require.Equal(t, 0, c.ActiveIndex())
}

func TestSwitchCopiesAndFlips(t *testing.T) {
	t.Parallel()

	p0, p1, p2 := memory.NewDocumentStore("p0"), memory.NewDocumentStore("p1"), memory.NewDocumentStore("p2")
	backup := memory.NewDocumentStore("backup")
	seed(t, p0, "a1", "a2")
	notes := &recordingNotifier{}

	c, err := New([]schedule.Backend{p0, p1, p2}, backup, notes, nil)
	require.NoError(t, err)

	cut, err := c.Switch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, cut.FromIndex)
	require.Equal(t, 1, cut.ToIndex)
	require.NotEmpty(t, cut.ID)
	require.Equal(t, 1, c.ActiveIndex())

	for _, b := range []schedule.Backend{p1, backup} {
		state, err := b.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, state.Schedule, 2)
		require.Equal(t, 1, state.DBConfig.ActiveIndex)
	}
	require.Equal(t, 1, notes.count())

	// Round-robin wraps back to the first primary.
	_, err = c.Switch(context.Background())
	require.NoError(t, err)
	_, err = c.Switch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, c.ActiveIndex())
}

func TestSwitchAtomicWhenBackupStampFails(t *testing.T) {
	t.Parallel()

	p0, p1 := memory.NewDocumentStore("p0"), memory.NewDocumentStore("p1")
	seed(t, p0, "a1")
	backup := newFaulty("backup")
	backup.failSave = 2 // first save copies the active doc, second stamps the new index
	notes := &recordingNotifier{}

	c, err := New([]schedule.Backend{p0, p1}, backup, notes, nil)
	require.NoError(t, err)

	before := c.ActiveIndex()
	_, err = c.Switch(context.Background())
	require.ErrorIs(t, err, schedule.ErrCutoverAborted)
	require.ErrorContains(t, err, "stamp backup")
	require.Equal(t, before, c.ActiveIndex())
	require.Equal(t, 1, notes.count())

	// The write to the new primary went through but the pointer did not move.
	written, err := p1.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, written.DBConfig.ActiveIndex)

	// The backup still names the old primary, so a restart reconciles to it.
	idx, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, before, idx)
}

func TestSwitchAbortsWhenNewPrimaryWriteFails(t *testing.T) {
	t.Parallel()

	p0, p1 := memory.NewDocumentStore("p0"), newFaulty("p1")
	p1.failSave = 1
	seed(t, p0, "a1")

	c, err := New([]schedule.Backend{p0, p1}, memory.NewDocumentStore("backup"), nil, nil)
	require.NoError(t, err)
	_, err = c.Switch(context.Background())
	require.ErrorIs(t, err, schedule.ErrCutoverAborted)
	require.ErrorContains(t, err, "write new primary")
	require.Equal(t, 0, c.ActiveIndex())
}

func TestBackupCopiesActiveDocument(t *testing.T) {
	t.Parallel()

	p0 := memory.NewDocumentStore("p0")
	seed(t, p0, "a1")
	backup := memory.NewDocumentStore("backup")

	c, err := New([]schedule.Backend{p0}, backup, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Backup(context.Background()))

	state, err := backup.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Schedule, 1)

	c, err = New([]schedule.Backend{p0}, nil, nil, nil)
	require.NoError(t, err)
	require.ErrorIs(t, c.Backup(context.Background()), schedule.ErrInsufficientTopology)
}

func TestTopologyAndClose(t *testing.T) {
	t.Parallel()

	c, err := New([]schedule.Backend{memory.NewDocumentStore("p0"), memory.NewDocumentStore("p1")}, memory.NewDocumentStore("backup"), nil, nil)
	require.NoError(t, err)
	topo := c.Topology()
	require.Equal(t, []string{"p0", "p1"}, topo.Primaries)
	require.Equal(t, "backup", topo.Backup)
	require.Equal(t, "p0", topo.Active)
	require.NoError(t, c.Close())
}
