package dispatcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func runAsync(ctx context.Context, d *Dispatcher) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	return done
}

func TestDispatcherRunsDutyAfterInitialDelayAndOnInterval(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	d := New(zaptest.NewLogger(t))
	require.NoError(t, d.Every(Duty{
		Name:         "scan",
		Interval:     10 * time.Millisecond,
		InitialDelay: time.Millisecond,
		Run:          func(context.Context) { runs.Add(1) },
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, d)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherSurvivesPanickingDuty(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	d := New(zaptest.NewLogger(t))
	require.NoError(t, d.Every(Duty{
		Name:     "login",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) {
			runs.Add(1)
			panic("browser gone")
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, d)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestDispatcherStopsDuringInitialDelay(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	d := New(nil)
	require.NoError(t, d.Every(Duty{
		Name:         "scan",
		Interval:     time.Minute,
		InitialDelay: time.Hour,
		Run:          func(context.Context) { runs.Add(1) },
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, d)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
	require.Zero(t, runs.Load())
}

func TestDispatcherRegistrationErrors(t *testing.T) {
	t.Parallel()

	d := New(nil)
	require.Error(t, d.Every(Duty{Name: "nil", Interval: time.Second}))
	require.NoError(t, d.Every(Duty{Name: "off", Run: func(context.Context) {}}))
	require.Empty(t, d.ticked)

	require.Error(t, d.Cron(CronDuty{Name: "backup", Spec: "not a cron", Run: func(context.Context) {}}))
	require.Error(t, d.Cron(CronDuty{Name: "backup", Run: func(context.Context) {}}))
	require.Error(t, d.Cron(CronDuty{Name: "backup", Spec: "0 3 * * *"}))
	require.NoError(t, d.Cron(CronDuty{Name: "backup", Spec: "0 3 * * *", Run: func(context.Context) {}}))
	require.Len(t, d.crons, 1)
}

func TestDispatcherStopsCron(t *testing.T) {
	t.Parallel()

	d := New(zaptest.NewLogger(t))
	require.NoError(t, d.Cron(CronDuty{Name: "backup", Spec: "@every 1h", Run: func(context.Context) {}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, d)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop cron")
	}
}

func TestDispatcherFiresCronDutyWithRunContext(t *testing.T) {
	t.Parallel()

	fired := make(chan context.Context, 1)
	d := New(zaptest.NewLogger(t))
	require.NoError(t, d.Cron(CronDuty{Name: "backup", Spec: "@every 1s", Run: func(ctx context.Context) {
		select {
		case fired <- ctx:
		default:
		}
	}}))

	type key struct{}
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "run"))
	done := runAsync(ctx, d)

	select {
	case got := <-fired:
		require.Equal(t, "run", got.Value(key{}))
	case <-time.After(3 * time.Second):
		t.Fatal("cron duty did not fire")
	}
	cancel()
	<-done
}
