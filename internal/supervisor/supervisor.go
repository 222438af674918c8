// Package supervisor owns the lifetime of at most one capture process. It
// starts FFmpeg with a prepared argument list, follows its progress stream,
// and escalates from a polite quit to a kill when stopping.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-recorder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-recorder/internal/types"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// maxLogLines bounds the diagnostic line ring exposed to the UI.
const maxLogLines = 50

// ExitHandler receives process exits that were not requested through Stop.
// detail is the last meaningful diagnostic line, or the exit error text.
type ExitHandler func(err error, detail string)

// Supervisor runs at most one capture process at a time. Starting while a
// process is running is an error; stopping while idle is a no-op.
type Supervisor struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	stdin     io.WriteCloser
	done      chan struct{} // closed by monitor after process cleanup
	running   bool
	stopping  bool
	startedAt time.Time
	onExit    ExitHandler

	// Written by the stderr scanner while the process runs.
	obsMu    sync.RWMutex
	progress types.Progress
	logs     []string
	stderr   *util.BoundedBuffer
}

// New creates an idle Supervisor.
func New() *Supervisor {
	return &Supervisor{stderr: util.NewBoundedBuffer(ffmpeg.MaxStderrSize)}
}

// SetExitHandler installs the callback for unexpected process exits. It
// must be set before the first Start.
func (s *Supervisor) SetExitHandler(fn ExitHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = fn
}

// Start launches the capture process and confirms it survives its first
// moments. FFmpeg exits immediately on argument or device errors, so a
// short confirmation window catches most bad launches synchronously.
func (s *Supervisor) Start(binary string, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("capture process already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return util.WrapError("open capture stdin", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		util.SafeClose(stdin, "capture stdin")
		return util.WrapError("open capture stderr", err)
	}

	s.obsMu.Lock()
	s.progress = types.Progress{}
	s.logs = nil
	s.obsMu.Unlock()
	s.stderr.Reset()

	if err := cmd.Start(); err != nil {
		cancel()
		util.SafeClose(stdin, "capture stdin")
		return util.WrapError("start capture process", err)
	}

	scanDone := make(chan struct{})
	go s.scanStderr(stderrPipe, scanDone)

	// Wait closes the stderr pipe, so it must not run until the scanner
	// has drained it; the last diagnostic lines arrive right before EOF.
	waitCh := make(chan error, 1)
	go func() {
		<-scanDone
		waitCh <- cmd.Wait()
	}()

	select {
	case err := <-waitCh:
		cancel()
		detail := ffmpeg.ExtractLastError(s.stderr.String())
		if detail == "" && err != nil {
			detail = err.Error()
		}
		return fmt.Errorf("capture process exited immediately: %s", detail)
	case <-time.After(types.LaunchConfirmDelay):
	}

	s.cmd = cmd
	s.cancel = cancel
	s.stdin = stdin
	s.done = make(chan struct{})
	s.running = true
	s.stopping = false
	s.startedAt = time.Now()

	go s.monitor(waitCh, cancel, s.done)

	slog.Info("capture process started", "pid", cmd.Process.Pid, "binary", binary)
	return nil
}

// Stop terminates the running process, escalating in stages: "q" on stdin
// lets FFmpeg finalize the container trailer, then an interrupt signal,
// then a kill. Returns once the process is gone. No-op when idle.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if s.stopping {
		done := s.done
		s.mu.Unlock()
		<-done
		return nil
	}
	s.stopping = true
	cmd := s.cmd
	stdin := s.stdin
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if stdin != nil {
		_, _ = io.WriteString(stdin, "q")
		util.SafeClose(stdin, "capture stdin")
	}
	select {
	case <-done:
		slog.Info("capture process stopped gracefully")
		return nil
	case <-time.After(types.StopGracePeriod):
	}

	if cmd.Process != nil {
		if err := util.GracefulSignal(cmd.Process); err != nil {
			cancel()
		}
	}
	select {
	case <-done:
		return nil
	case <-time.After(types.StopGracePeriod):
	}

	slog.Warn("capture process ignored stop requests, killing")
	cancel()
	<-done
	return nil
}

// Running reports whether a capture process is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pid returns the process id of the running capture process, or 0.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// StartedAt returns when the current process was launched. Zero when idle.
func (s *Supervisor) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.startedAt
}

// Progress returns the latest parsed statistics from the progress stream.
func (s *Supervisor) Progress() types.Progress {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return s.progress
}

// Logs returns a copy of the recent diagnostic lines.
func (s *Supervisor) Logs() []string {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return slices.Clone(s.logs)
}

// monitor waits for process exit, cleans up, and reports crashes. A stop
// requested through Stop is not a crash. By the time waitCh fires the
// stderr scanner has already finished.
func (s *Supervisor) monitor(waitCh <-chan error, cancel context.CancelFunc, done chan<- struct{}) {
	err := <-waitCh
	cancel()

	s.mu.Lock()
	requested := s.stopping
	handler := s.onExit
	s.cmd = nil
	s.stdin = nil
	s.cancel = nil
	s.running = false
	s.mu.Unlock()
	close(done)

	if requested {
		return
	}

	detail := ffmpeg.ExtractLastError(s.stderr.String())
	if detail == "" && err != nil {
		detail = err.Error()
	}
	slog.Error("capture process exited unexpectedly", "error", detail)
	if handler != nil {
		handler(err, detail)
	}
}

// scanStderr follows the combined diagnostic and progress stream. FFmpeg
// rewrites status with carriage returns, so a CR-aware splitter is used.
// Progress lines update the stats; everything else goes to the log ring.
func (s *Supervisor) scanStderr(r io.Reader, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), 256*1024)
	scanner.Split(ffmpeg.ScanLinesWithCR)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		isProgress := ffmpeg.IsProgressLine(line)

		s.obsMu.Lock()
		ffmpeg.ParseProgressLine(&s.progress, line)
		if !isProgress {
			s.logs = append(s.logs, line)
			if len(s.logs) > maxLogLines {
				s.logs = s.logs[1:]
			}
		}
		s.obsMu.Unlock()

		if !isProgress {
			_, _ = io.WriteString(s.stderr, line+"\n")
		}
	}
}
