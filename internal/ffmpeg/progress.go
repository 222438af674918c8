package ffmpeg

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

// ScanLinesWithCR is a bufio.SplitFunc that handles both \r and \n as line
// delimiters. FFmpeg rewrites its status line with carriage returns.
func ScanLinesWithCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	for i := 0; i < len(data); i++ {
		if data[i] == '\r' || data[i] == '\n' {
			advance = i + 1
			for advance < len(data) && (data[advance] == '\r' || data[advance] == '\n') {
				advance++
			}
			return advance, data[0:i], nil
		}
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}

// ParseProgressLine applies one key=value line from the -progress stream to
// prog. Values that fail to parse are ignored so the previous reading stays
// in place. The return value reports whether the line completed an update
// block ("progress=continue" or "progress=end").
func ParseProgressLine(prog *types.Progress, line string) bool {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return false
	}
	value = strings.TrimSpace(value)

	switch key {
	case "frame":
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			prog.Frame = v
		}
	case "fps":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			prog.FPS = v
		}
	case "total_size":
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			prog.SizeBytes = v
		}
	case "out_time_us":
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			prog.OutTimeSeconds = float64(v) / 1e6
		}
	case "bitrate":
		if v := parseSuffixedFloat(value, "kbits/s"); v > 0 {
			prog.BitrateKbps = v
		}
	case "speed":
		if v := parseSuffixedFloat(value, "x"); v > 0 {
			prog.Speed = v
		}
	case "progress":
		return true
	}
	return false
}

// progressKeys are the fields of the -progress stream. The supervisor uses
// them to keep status output out of the diagnostic log ring.
var progressKeys = map[string]bool{
	"frame": true, "fps": true, "stream_0_0_q": true, "bitrate": true,
	"total_size": true, "out_time_us": true, "out_time_ms": true,
	"out_time": true, "dup_frames": true, "drop_frames": true,
	"speed": true, "progress": true,
}

// IsProgressLine reports whether the line belongs to the -progress stream
// rather than to FFmpeg's diagnostic output.
func IsProgressLine(line string) bool {
	key, _, ok := strings.Cut(strings.TrimSpace(line), "=")
	return ok && progressKeys[key]
}

// ParseSpeed extracts the encoding speed from a human-readable FFmpeg
// status line, e.g. "frame=  100 fps=25 ... speed=1.05x". Returns 0 when
// the line carries no usable speed.
func ParseSpeed(line string) float64 {
	idx := strings.Index(line, "speed=")
	if idx == -1 {
		return 0
	}

	speedStr := strings.TrimLeft(line[idx+6:], " ")
	if endIdx := strings.IndexAny(speedStr, "x \t"); endIdx > 0 {
		speedStr = speedStr[:endIdx]
	}

	speed, err := strconv.ParseFloat(strings.TrimSpace(speedStr), 64)
	if err != nil {
		return 0
	}
	return speed
}

// parseSuffixedFloat parses values like "1677.7kbits/s" or "1.05x".
// FFmpeg emits "N/A" until enough data is buffered, which parses as 0.
func parseSuffixedFloat(value, suffix string) float64 {
	value = strings.TrimSuffix(value, suffix)
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return v
}

// ExtractLastError extracts the last meaningful error line from FFmpeg
// stderr. Returns empty string if no meaningful error found.
func ExtractLastError(stderr string) string {
	if stderr == "" {
		return ""
	}
	lines := bytes.Split([]byte(stderr), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := string(bytes.TrimSpace(lines[i]))
		if line != "" {
			if len(line) > 200 {
				return line[:200] + "..."
			}
			return line
		}
	}
	return ""
}
