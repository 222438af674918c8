//go:build unix

package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// The tests drive the supervisor with shell one-liners instead of a real
// capture binary. What matters is process lifetime and stream handling,
// not what the process computes.

func TestSupervisorStopWhileIdle(t *testing.T) {
	s := New()
	require.NoError(t, s.Stop())
	require.False(t, s.Running())
	require.Zero(t, s.Pid())
	require.True(t, s.StartedAt().IsZero())
}

func TestSupervisorLifecycle(t *testing.T) {
	s := New()

	// "read" keeps the process alive until stdin reaches EOF, which is
	// exactly what Stop produces after its quit byte.
	require.NoError(t, s.Start("sh", []string{"-c", "read line"}))
	require.True(t, s.Running())
	require.Positive(t, s.Pid())
	require.False(t, s.StartedAt().IsZero())

	require.Error(t, s.Start("sh", []string{"-c", "read line"}))

	require.NoError(t, s.Stop())
	require.False(t, s.Running())
	require.Zero(t, s.Pid())

	// Stopping again is a no-op.
	require.NoError(t, s.Stop())
}

func TestSupervisorImmediateExitFailsStart(t *testing.T) {
	s := New()

	err := s.Start("sh", []string{"-c", `echo "Could not open display" >&2; exit 1`})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exited immediately")
	require.Contains(t, err.Error(), "Could not open display")
	require.False(t, s.Running())

	// A failed launch leaves the supervisor ready for the next attempt.
	require.NoError(t, s.Start("sh", []string{"-c", "read line"}))
	require.NoError(t, s.Stop())
}

func TestSupervisorReportsUnexpectedExit(t *testing.T) {
	s := New()

	type exit struct {
		err    error
		detail string
	}
	exits := make(chan exit, 1)
	s.SetExitHandler(func(err error, detail string) {
		exits <- exit{err: err, detail: detail}
	})

	require.NoError(t, s.Start("sh", []string{"-c", `sleep 0.5; echo "Cannot allocate memory" >&2; exit 2`}))
	require.True(t, s.Running())

	select {
	case e := <-exits:
		require.Error(t, e.err)
		require.Equal(t, "Cannot allocate memory", e.detail)
	case <-time.After(5 * time.Second):
		t.Fatal("exit handler was not called")
	}
	require.False(t, s.Running())
}

func TestSupervisorSplitsProgressFromLogs(t *testing.T) {
	s := New()

	script := `printf "frame=42\nout_time_us=2000000\nspeed=1.2x\nprogress=continue\n[x11grab] some diagnostic\n" >&2; read line`
	require.NoError(t, s.Start("sh", []string{"-c", script}))
	defer func() { require.NoError(t, s.Stop()) }()

	// The stderr scanner runs concurrently with the launch confirmation,
	// so everything is parsed by the time Start returns.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.Progress().Frame == 42 && len(s.Logs()) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	progress := s.Progress()
	require.Equal(t, int64(42), progress.Frame)
	require.Equal(t, 2.0, progress.OutTimeSeconds)
	require.Equal(t, 1.2, progress.Speed)

	// Progress lines stay out of the diagnostic ring.
	logs := s.Logs()
	require.Equal(t, []string{"[x11grab] some diagnostic"}, logs)
}

func TestSupervisorStopEscalatesToSignal(t *testing.T) {
	s := New()

	// This process ignores stdin, so the quit byte does nothing and the
	// interrupt after the grace period has to end it.
	require.NoError(t, s.Start("sh", []string{"-c", "sleep 30"}))

	start := time.Now()
	require.NoError(t, s.Stop())
	require.False(t, s.Running())
	// One grace period for the quit byte, then the signal lands.
	require.Less(t, time.Since(start), 10*time.Second)
}
