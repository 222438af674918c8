package capability

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/oszuidwest/zwfm-recorder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// Scoring weights. These rank working encoders against each other and
// are tuning knobs, not contracts.
const (
	scoreHardware = 100
	scoreSoftware = 50
	maxSpeedBonus = 50
)

// vendorBonus nudges the ranking towards acceleration paths that hold up
// well for continuous screen capture.
var vendorBonus = map[string]int{
	VendorNvidia: 15,
	VendorApple:  12,
	VendorIntel:  8,
	VendorAMD:    5,
}

// Runner executes one encoder probe and returns its combined output.
// Tests inject deterministic stubs here.
type Runner func(ctx context.Context, binary string, args []string) ([]byte, error)

func execRunner(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.CombinedOutput()
}

// Detector smoke-tests encoder candidates through the capture binary and
// caches the scored results. Each sweep replaces the previous results
// wholesale. It is safe for concurrent use.
type Detector struct {
	mu         sync.RWMutex
	results    []types.EncoderTestResult
	swept      bool
	candidates []types.EncoderCandidate
	binary     func() string // Resolves the capture binary path, empty if unresolved
	run        Runner
}

// NewDetector creates a detector over the given candidate set.
func NewDetector(binary func() string, candidates []types.EncoderCandidate, run Runner) *Detector {
	if run == nil {
		run = execRunner
	}
	return &Detector{binary: binary, candidates: candidates, run: run}
}

// Results returns a copy of the latest sweep results, sorted available
// first and then by descending score.
func (d *Detector) Results() []types.EncoderTestResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.results)
}

// HasSwept reports whether at least one sweep has completed.
func (d *Detector) HasSwept() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.swept
}

// Refresh probes every candidate and replaces the cached results. The
// returned error aggregates per-candidate failures and is advisory when
// any encoder verified; sweeps are idempotent and safe to re-run.
func (d *Detector) Refresh(ctx context.Context) ([]types.EncoderTestResult, error) {
	binary := d.binary()
	if binary == "" {
		return nil, errors.New("capture binary not found, cannot verify encoders")
	}

	var failures *multierror.Error
	results := make([]types.EncoderTestResult, 0, len(d.candidates))
	for _, candidate := range d.candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := d.probe(ctx, binary, candidate)
		if !result.Available {
			failures = multierror.Append(failures, fmt.Errorf("%s: %s", result.Encoder, result.Error))
		}
		results = append(results, result)
	}

	SortResults(results)

	d.mu.Lock()
	d.results = results
	d.swept = true
	d.mu.Unlock()

	slog.Info("encoder verification complete",
		"candidates", len(results), "available", countAvailable(results))
	return slices.Clone(results), failures.ErrorOrNil()
}

// probe runs one synthetic-source encode through the candidate. The test
// writes nothing to disk, so failures are free to retry.
func (d *Detector) probe(ctx context.Context, binary string, candidate types.EncoderCandidate) types.EncoderTestResult {
	result := types.EncoderTestResult{
		Encoder:       candidate.Name,
		Codec:         candidate.Codec,
		Hardware:      candidate.Hardware,
		MaxResolution: candidate.MaxResolution,
		Presets:       candidate.Presets,
		TestedAt:      time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, types.EncoderTestTimeout)
	defer cancel()

	start := time.Now()
	output, err := d.run(ctx, binary, SmokeTestArgs(candidate))
	elapsed := time.Since(start)
	result.DurationSeconds = elapsed.Seconds()

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = "verification timed out"
		} else {
			result.Error = cmp.Or(ffmpeg.ExtractLastError(string(output)), err.Error())
		}
		return result
	}

	result.Available = true
	result.Speed = lastReportedSpeed(string(output))
	result.Score = Score(candidate, elapsed, result.Speed)
	return result
}

// SmokeTestArgs builds the throwaway encode used to verify a candidate:
// one second of synthetic frames, encoded and discarded.
func SmokeTestArgs(candidate types.EncoderCandidate) []string {
	args := []string{"-hide_banner"}
	args = append(args, candidate.InitArgs...)
	args = append(args,
		"-f", "lavfi",
		"-i", "testsrc=duration=1:size=1280x720:rate=30",
	)
	args = append(args, candidate.ExtraArgs...)
	args = append(args,
		"-frames:v", "30",
		"-c:v", candidate.Name,
		"-f", "null", "-",
	)
	return args
}

// Score ranks a verified encoder. Hardware paths outrank software, faster
// probes outrank slower ones, and known-good vendors get a fixed nudge.
func Score(candidate types.EncoderCandidate, elapsed time.Duration, speed float64) int {
	score := scoreSoftware
	if candidate.Hardware {
		score = scoreHardware
	}
	score += speedBonus(elapsed, speed)
	score += vendorBonus[candidate.Vendor]
	return score
}

// speedBonus prefers the binary's own speed report and falls back to
// wall-clock probe time when the report is absent.
func speedBonus(elapsed time.Duration, speed float64) int {
	if speed > 0 {
		return min(maxSpeedBonus, int(speed*5))
	}
	switch {
	case elapsed <= 2*time.Second:
		return 25
	case elapsed <= 5*time.Second:
		return 10
	default:
		return 0
	}
}

// SortResults orders results available-first, then by descending score,
// then by name so equal scores stay deterministic.
func SortResults(results []types.EncoderTestResult) {
	slices.SortFunc(results, func(a, b types.EncoderTestResult) int {
		if a.Available != b.Available {
			if a.Available {
				return -1
			}
			return 1
		}
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return strings.Compare(a.Encoder, b.Encoder)
	})
}

// lastReportedSpeed returns the final speed figure from the probe output.
func lastReportedSpeed(output string) float64 {
	var speed float64
	for _, line := range strings.Split(output, "\n") {
		for _, part := range strings.Split(line, "\r") {
			if v := ffmpeg.ParseSpeed(part); v > 0 {
				speed = v
			}
		}
	}
	return speed
}

func countAvailable(results []types.EncoderTestResult) int {
	n := 0
	for _, r := range results {
		if r.Available {
			n++
		}
	}
	return n
}
