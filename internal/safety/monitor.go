// Package safety watches disk space, recording duration, and system load,
// and forces a recording to stop before any of them becomes a problem.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/oszuidwest/zwfm-recorder/internal/events"
	"github.com/oszuidwest/zwfm-recorder/internal/sysinfo"
	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// Stress thresholds. Both must hold at once before a recording is
// sacrificed to keep the host responsive.
const (
	memoryStressPercent = 90
	cpuStressPercent    = 95
)

// durationWarnFraction is the share of the duration limit at which an
// advisory warning fires.
const durationWarnFraction = 0.8

// Engine is the part of the recording state machine the monitor drives.
type Engine interface {
	IsRecording() bool
	Elapsed() time.Duration
	ForceStop(reason types.StopReason, message string)
}

// Limits are the guard thresholds, read fresh every sweep so config
// changes apply without a restart.
type Limits struct {
	OutputDir          string
	MinDiskSpaceMB     int64 // free-space floor; the config layer supplies at least its default
	MaxDurationMinutes int   // 0 records without a duration limit
}

// Telemetry supplies host readings. Zero-value fields fall back to real
// OS queries; tests inject deterministic ones.
type Telemetry struct {
	DiskFree      func(path string) (free, total uint64, err error)
	MemoryPercent func() (float64, error)
	CPUPercent    func() (float64, error)
}

func (t Telemetry) withDefaults() Telemetry {
	if t.DiskFree == nil {
		t.DiskFree = sysinfo.DiskFree
	}
	if t.MemoryPercent == nil {
		t.MemoryPercent = sysinfo.MemoryPercent
	}
	if t.CPUPercent == nil {
		t.CPUPercent = sysinfo.CPUPercent
	}
	return t
}

// Monitor periodically sweeps the guard conditions. It slows down while
// idle and tightens to a short cadence while a recording runs. A failed
// telemetry reading is treated as the threshold being exceeded; skipping
// a check silently would be worse than a spurious stop.
type Monitor struct {
	engine    Engine
	bus       *events.Bus
	limits    func() Limits
	telemetry Telemetry
	wake      chan struct{}

	mu     sync.RWMutex
	status types.SafetyStatus

	// Warning episodes fire once and re-arm when the condition clears.
	diskWarned     bool
	durationWarned bool
}

// NewMonitor creates a monitor over the given engine.
func NewMonitor(engine Engine, bus *events.Bus, limits func() Limits, telemetry Telemetry) *Monitor {
	return &Monitor{
		engine:    engine,
		bus:       bus,
		limits:    limits,
		telemetry: telemetry.withDefaults(),
		wake:      make(chan struct{}, 1),
	}
}

// Run sweeps until ctx ends. Wake resets the cadence immediately when the
// recording state flips, so a fresh recording is not left waiting out the
// tail of an idle interval.
func (m *Monitor) Run(ctx context.Context) {
	timer := time.NewTimer(m.cadence())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			m.Check(time.Now())
		}
		timer.Reset(m.cadence())
	}
}

// Wake makes the run loop re-evaluate its cadence now.
func (m *Monitor) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) cadence() time.Duration {
	if m.engine.IsRecording() {
		return types.RecordingCheckInterval
	}
	return types.IdleCheckInterval
}

// Status returns the result of the most recent sweep.
func (m *Monitor) Status() types.SafetyStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// CanStartRecording takes fresh readings and reports whether a new
// recording is allowed to begin. A non-empty warning with a nil error
// means the start goes ahead but disk space is already low.
func (m *Monitor) CanStartRecording() (warning string, err error) {
	limits := m.limits()
	free, _, err := m.telemetry.DiskFree(limits.OutputDir)
	if err != nil {
		return "", fmt.Errorf("cannot verify free disk space: %w", err)
	}
	if minBytes := uint64(limits.MinDiskSpaceMB) * 1024 * 1024; minBytes > 0 {
		if free < minBytes {
			return "", fmt.Errorf("insufficient disk space: %d MB free, %d MB required",
				free/(1024*1024), limits.MinDiskSpaceMB)
		}
		if free < 2*minBytes {
			warning = fmt.Sprintf("disk space is getting low: %d MB free", free/(1024*1024))
		}
	}

	memPct, memErr := m.telemetry.MemoryPercent()
	cpuPct, cpuErr := m.telemetry.CPUPercent()
	memHigh := memErr != nil || memPct > memoryStressPercent
	cpuHigh := cpuErr != nil || cpuPct > cpuStressPercent
	if memHigh && cpuHigh {
		return "", fmt.Errorf("system overloaded: memory %.0f%%, cpu %.0f%%", memPct, cpuPct)
	}
	return warning, nil
}

// EmergencyStop ends the active recording with the given reason. No-op
// when nothing is recording.
func (m *Monitor) EmergencyStop(reason types.StopReason, message string) {
	if !m.engine.IsRecording() {
		return
	}
	slog.Warn("emergency stop", "reason", reason, "message", message)
	m.bus.Publish(events.AutoStopTriggered{Reason: reason, Message: message})
	m.engine.ForceStop(reason, message)
}

// Check performs one sweep: read telemetry, publish advisory warnings on
// episode edges, and force a stop on any critical condition.
func (m *Monitor) Check(now time.Time) types.SafetyStatus {
	limits := m.limits()
	recording := m.engine.IsRecording()

	var readErrs *multierror.Error
	status := types.SafetyStatus{CheckedAt: now}

	free, _, err := m.telemetry.DiskFree(limits.OutputDir)
	minBytes := uint64(limits.MinDiskSpaceMB) * 1024 * 1024
	if err != nil {
		readErrs = multierror.Append(readErrs, fmt.Errorf("disk: %w", err))
		if minBytes > 0 {
			status.DiskCritical = true
		}
	} else {
		status.DiskFreeBytes = free
		if minBytes > 0 {
			status.DiskCritical = free < minBytes
			status.DiskWarning = !status.DiskCritical && free < 2*minBytes
		}
	}

	if recording {
		status.ElapsedSeconds = m.engine.Elapsed().Seconds()
	}
	durationUp := false
	if recording && limits.MaxDurationMinutes > 0 {
		limit := (time.Duration(limits.MaxDurationMinutes) * time.Minute).Seconds()
		durationUp = status.ElapsedSeconds >= limit
		status.DurationWarning = !durationUp && status.ElapsedSeconds >= limit*durationWarnFraction
	}

	memPct, memErr := m.telemetry.MemoryPercent()
	if memErr != nil {
		readErrs = multierror.Append(readErrs, fmt.Errorf("memory: %w", memErr))
	}
	cpuPct, cpuErr := m.telemetry.CPUPercent()
	if cpuErr != nil {
		readErrs = multierror.Append(readErrs, fmt.Errorf("cpu: %w", cpuErr))
	}
	status.MemoryPercent = memPct
	status.CPUPercent = cpuPct
	memHigh := memErr != nil || memPct > memoryStressPercent
	cpuHigh := cpuErr != nil || cpuPct > cpuStressPercent
	status.SystemStress = recording && memHigh && cpuHigh

	if err := readErrs.ErrorOrNil(); err != nil {
		status.LastError = err.Error()
		slog.Warn("safety telemetry degraded, failed readings count as exceeded", "error", err)
	}

	m.publishEdges(status, recording)

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()

	switch {
	case recording && status.DiskCritical:
		m.EmergencyStop(types.StopDiskFull,
			fmt.Sprintf("free disk space below %d MB", limits.MinDiskSpaceMB))
	case durationUp:
		m.EmergencyStop(types.StopDurationLimit,
			fmt.Sprintf("recording reached the %d minute limit", limits.MaxDurationMinutes))
	case status.SystemStress:
		m.EmergencyStop(types.StopSystemStress,
			fmt.Sprintf("system overloaded: memory %.0f%%, cpu %.0f%%", memPct, cpuPct))
	}

	return status
}

// publishEdges emits advisory warnings once per episode.
func (m *Monitor) publishEdges(status types.SafetyStatus, recording bool) {
	m.mu.Lock()
	fireDisk := status.DiskWarning && !m.diskWarned
	m.diskWarned = status.DiskWarning
	fireDuration := recording && status.DurationWarning && !m.durationWarned
	m.durationWarned = status.DurationWarning
	m.mu.Unlock()

	if fireDisk {
		msg := fmt.Sprintf("disk space is getting low: %d MB free", status.DiskFreeBytes/(1024*1024))
		slog.Warn("safety warning", "kind", events.WarnDisk, "message", msg)
		m.bus.Publish(events.SafetyWarning{Kind: events.WarnDisk, Message: msg, Status: status})
	}
	if fireDuration {
		msg := fmt.Sprintf("recording is at %.0f minutes, approaching the configured limit", status.ElapsedSeconds/60)
		slog.Warn("safety warning", "kind", events.WarnDuration, "message", msg)
		m.bus.Publish(events.SafetyWarning{Kind: events.WarnDuration, Message: msg, Status: status})
	}
}
