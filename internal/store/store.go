// Package store persists session history and quality profiles.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// BuiltinProfiles are the reserved quality tiers. They are defined in code
// rather than on disk so they can never be modified or deleted.
var BuiltinProfiles = []types.QualityProfile{
	{
		ID:               "low",
		Name:             "Low",
		Subtitle:         "720p at 24 fps",
		Description:      "Small files for long captures and slow machines.",
		Resolution:       "1280x720",
		FPS:              24,
		VideoBitrateKbps: 2500,
		AudioBitrateKbps: 96,
		AudioCodec:       "aac",
		VideoEncoders:    []string{"h264_nvenc", "h264_qsv", "h264_amf", "h264_videotoolbox", "h264_vaapi", "libx264"},
		Reserved:         true,
	},
	{
		ID:               "medium",
		Name:             "Medium",
		Subtitle:         "1080p at 30 fps",
		Description:      "Balanced quality for everyday recording.",
		Resolution:       "1920x1080",
		FPS:              30,
		VideoBitrateKbps: 6000,
		AudioBitrateKbps: 128,
		AudioCodec:       "aac",
		VideoEncoders:    []string{"h264_nvenc", "h264_qsv", "h264_amf", "h264_videotoolbox", "h264_vaapi", "libx264"},
		Reserved:         true,
	},
	{
		ID:               "high",
		Name:             "High",
		Subtitle:         "1440p at 60 fps",
		Description:      "Maximum quality, prefers HEVC when the hardware supports it.",
		Resolution:       "2560x1440",
		FPS:              60,
		VideoBitrateKbps: 12000,
		AudioBitrateKbps: 192,
		AudioCodec:       "aac",
		VideoEncoders: []string{
			"hevc_nvenc", "hevc_qsv", "hevc_amf", "hevc_videotoolbox", "hevc_vaapi", "libx265",
			"h264_nvenc", "h264_qsv", "h264_amf", "h264_videotoolbox", "h264_vaapi", "libx264",
		},
		Reserved: true,
	},
}

// document is the on-disk layout. Only custom profiles are persisted.
type document struct {
	Sessions []types.RecordingSession `json:"sessions"`
	Profiles []types.QualityProfile   `json:"profiles"`
}

// Store persists recording sessions and custom quality profiles.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	doc      document
	filePath string
}

// New creates a store backed by the given file.
func New(filePath string) *Store {
	return &Store{filePath: filePath}
}

// Load reads the store from disk, creating an empty one if none exists.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return util.WrapError("parse store", err)
	}

	// Reserved IDs may have leaked into old store files, drop them.
	s.doc.Profiles = slices.DeleteFunc(s.doc.Profiles, func(p types.QualityProfile) bool {
		return IsReservedProfileID(p.ID)
	})

	// A process that died mid-recording leaves its session open. Finalize
	// it here so the history never shows more than one live recording.
	repaired := false
	for i := range s.doc.Sessions {
		session := &s.doc.Sessions[i]
		if session.Status != types.SessionRecording {
			continue
		}
		session.Status = types.SessionError
		session.StopReason = types.StopProcessExit
		session.LastError = "interrupted by restart"
		if session.EndedAt.IsZero() {
			session.EndedAt = time.Now().UTC()
		}
		if session.DurationSeconds == 0 && !session.StartedAt.IsZero() {
			session.DurationSeconds = session.EndedAt.Sub(session.StartedAt).Seconds()
		}
		repaired = true
	}

	s.trimSessionsLocked()
	if repaired {
		return s.saveLocked()
	}
	return nil
}

// saveLocked persists the store. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return util.WrapError("marshal store", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create store directory", err)
	}

	if err := os.WriteFile(s.filePath, data, 0o644); err != nil {
		return util.WrapError("write store", err)
	}

	return nil
}

// trimSessionsLocked drops the oldest sessions beyond the history cap.
func (s *Store) trimSessionsLocked() {
	if excess := len(s.doc.Sessions) - types.MaxSessionHistory; excess > 0 {
		s.doc.Sessions = slices.Delete(s.doc.Sessions, 0, excess)
	}
}

// Sessions returns a copy of the session history, oldest first.
func (s *Store) Sessions() []types.RecordingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.doc.Sessions)
}

// Session returns a copy of the session with the given ID, or nil.
func (s *Store) Session(id string) *types.RecordingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.doc.Sessions {
		if sess.ID == id {
			session := sess
			return &session
		}
	}
	return nil
}

// PutSession inserts or replaces a session by ID and saves. The history
// is trimmed to the most recent entries.
func (s *Store) PutSession(session types.RecordingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.doc.Sessions {
		if s.doc.Sessions[i].ID == session.ID {
			s.doc.Sessions[i] = session
			replaced = true
			break
		}
	}
	if !replaced {
		s.doc.Sessions = append(s.doc.Sessions, session)
		s.trimSessionsLocked()
	}
	return s.saveLocked()
}

// IsReservedProfileID reports whether the ID belongs to a built-in profile.
func IsReservedProfileID(id string) bool {
	for _, p := range BuiltinProfiles {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Profiles returns the built-in profiles followed by all custom profiles.
func (s *Store) Profiles() []types.QualityProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := slices.Clone(BuiltinProfiles)
	return append(profiles, slices.Clone(s.doc.Profiles)...)
}

// Profile returns a copy of the profile with the given ID, or nil.
func (s *Store) Profile(id string) *types.QualityProfile {
	for _, p := range BuiltinProfiles {
		if p.ID == id {
			profile := p
			return &profile
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.doc.Profiles {
		if p.ID == id {
			profile := p
			return &profile
		}
	}
	return nil
}

// ValidateProfile checks the bounds for a quality profile. Every violation
// is reported, not just the first.
func ValidateProfile(p *types.QualityProfile) error {
	var errs *multierror.Error
	for _, verr := range []*util.ValidationError{
		util.ValidateRequired("id", p.ID),
		util.ValidateRequired("name", p.Name),
		util.ValidateResolution("resolution", p.Resolution),
		util.ValidateRange("fps", p.FPS, 1, 120),
		util.ValidateRange("video_bitrate_kbps", p.VideoBitrateKbps, 1, 100000),
		util.ValidateRange("audio_bitrate_kbps", p.AudioBitrateKbps, 1, 1000),
	} {
		if verr != nil {
			errs = multierror.Append(errs, verr)
		}
	}
	if len(p.VideoEncoders) == 0 {
		errs = multierror.Append(errs, &util.ValidationError{
			Field: "video_encoders", Message: "video_encoders must not be empty",
		})
	}
	return errs.ErrorOrNil()
}

// SaveProfile creates or updates a custom profile and saves. Built-in
// profile IDs are rejected.
func (s *Store) SaveProfile(profile types.QualityProfile) error {
	if IsReservedProfileID(profile.ID) {
		return fmt.Errorf("profile is reserved: %s", profile.ID)
	}
	if err := ValidateProfile(&profile); err != nil {
		return util.WrapError("validate profile", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Profiles {
		if s.doc.Profiles[i].ID == profile.ID {
			profile.CreatedAt = s.doc.Profiles[i].CreatedAt
			s.doc.Profiles[i] = profile
			return s.saveLocked()
		}
	}

	profile.CreatedAt = time.Now().UnixMilli()
	s.doc.Profiles = append(s.doc.Profiles, profile)
	return s.saveLocked()
}

// DeleteProfile removes a custom profile by ID and saves. Built-in
// profiles cannot be deleted.
func (s *Store) DeleteProfile(id string) error {
	if IsReservedProfileID(id) {
		return fmt.Errorf("profile is reserved: %s", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Profiles {
		if s.doc.Profiles[i].ID == id {
			s.doc.Profiles = slices.Delete(s.doc.Profiles, i, i+1)
			return s.saveLocked()
		}
	}
	return fmt.Errorf("profile not found: %s", id)
}
