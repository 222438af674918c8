package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, s.Load())
	return s
}

func customProfile() types.QualityProfile {
	return types.QualityProfile{
		ID:               "podcast",
		Name:             "Podcast",
		Resolution:       "1280x720",
		FPS:              30,
		VideoBitrateKbps: 3000,
		AudioBitrateKbps: 128,
		AudioCodec:       "aac",
		VideoEncoders:    []string{"libx264"},
	}
}

func TestBuiltinProfiles(t *testing.T) {
	s := newTestStore(t)
	require.Len(t, s.Profiles(), len(BuiltinProfiles))

	for _, id := range []string{"low", "medium", "high"} {
		p := s.Profile(id)
		require.NotNil(t, p)
		require.True(t, p.Reserved)
		require.True(t, IsReservedProfileID(id))
		require.NotEmpty(t, p.VideoEncoders)
	}
	require.Nil(t, s.Profile("missing"))
	require.False(t, IsReservedProfileID("podcast"))
}

func TestSaveProfile(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveProfile(customProfile()))
	saved := s.Profile("podcast")
	require.NotNil(t, saved)
	require.Positive(t, saved.CreatedAt)
	require.Len(t, s.Profiles(), len(BuiltinProfiles)+1)

	// Updates keep the original creation stamp.
	update := customProfile()
	update.Name = "Podcast v2"
	require.NoError(t, s.SaveProfile(update))
	require.Equal(t, "Podcast v2", s.Profile("podcast").Name)
	require.Equal(t, saved.CreatedAt, s.Profile("podcast").CreatedAt)
	require.Len(t, s.Profiles(), len(BuiltinProfiles)+1)
}

func TestSaveProfileRejectsReservedID(t *testing.T) {
	s := newTestStore(t)

	hijack := BuiltinProfiles[0]
	hijack.Name = "Hijacked"
	err := s.SaveProfile(hijack)
	require.Error(t, err)
	require.Contains(t, err.Error(), "reserved")
	require.Equal(t, BuiltinProfiles[0].Name, s.Profile(BuiltinProfiles[0].ID).Name)
}

func TestDeleteProfile(t *testing.T) {
	s := newTestStore(t)

	require.Error(t, s.DeleteProfile("medium"))
	require.NotNil(t, s.Profile("medium"))
	require.Error(t, s.DeleteProfile("missing"))

	require.NoError(t, s.SaveProfile(customProfile()))
	require.NoError(t, s.DeleteProfile("podcast"))
	require.Nil(t, s.Profile("podcast"))
}

func TestValidateProfileReportsEveryViolation(t *testing.T) {
	err := ValidateProfile(&types.QualityProfile{Resolution: "bogus", FPS: 500})
	require.Error(t, err)

	msg := err.Error()
	require.Contains(t, msg, "id is required")
	require.Contains(t, msg, "name is required")
	require.Contains(t, msg, "resolution must be WIDTHxHEIGHT")
	require.Contains(t, msg, "fps must be between 1 and 120")
	require.Contains(t, msg, "video_encoders must not be empty")
}

func TestPutSessionUpsertsAndTrims(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < types.MaxSessionHistory+10; i++ {
		require.NoError(t, s.PutSession(types.RecordingSession{
			ID:     fmt.Sprintf("session-%03d", i),
			Status: types.SessionStopped,
		}))
	}
	sessions := s.Sessions()
	require.Len(t, sessions, types.MaxSessionHistory)
	// The oldest entries fall off the front.
	require.Equal(t, "session-010", sessions[0].ID)
	require.Equal(t, fmt.Sprintf("session-%03d", types.MaxSessionHistory+9), sessions[len(sessions)-1].ID)

	// Replacing by ID does not grow the history.
	last := sessions[len(sessions)-1]
	last.Status = types.SessionError
	require.NoError(t, s.PutSession(last))
	require.Len(t, s.Sessions(), types.MaxSessionHistory)
	require.Equal(t, types.SessionError, s.Session(last.ID).Status)
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s := New(path)
	require.NoError(t, s.Load())

	session := types.RecordingSession{
		ID:         "abc",
		ProfileID:  "medium",
		Status:     types.SessionStopped,
		StopReason: types.StopUser,
		StartedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.PutSession(session))
	require.NoError(t, s.SaveProfile(customProfile()))

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	require.Len(t, reloaded.Sessions(), 1)
	require.Equal(t, session, reloaded.Sessions()[0])
	require.NotNil(t, reloaded.Profile("podcast"))
}

func TestLoadFinalizesInterruptedSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s := New(path)
	require.NoError(t, s.Load())
	require.NoError(t, s.PutSession(types.RecordingSession{
		ID:        "orphan",
		Status:    types.SessionRecording,
		StartedAt: time.Now().UTC().Add(-time.Minute),
	}))

	// A hard crash never finalizes the session; the next Load must.
	reloaded := New(path)
	require.NoError(t, reloaded.Load())

	orphan := reloaded.Session("orphan")
	require.NotNil(t, orphan)
	require.Equal(t, types.SessionError, orphan.Status)
	require.Equal(t, types.StopProcessExit, orphan.StopReason)
	require.Equal(t, "interrupted by restart", orphan.LastError)
	require.False(t, orphan.EndedAt.IsZero())
	require.Positive(t, orphan.DurationSeconds)

	// With the orphan repaired, a new recording is the only live one.
	require.NoError(t, reloaded.PutSession(types.RecordingSession{
		ID:     "next",
		Status: types.SessionRecording,
	}))
	live := 0
	for _, session := range reloaded.Sessions() {
		if session.Status == types.SessionRecording {
			live++
		}
	}
	require.Equal(t, 1, live)

	// The repair is persisted, not just in memory.
	again := New(path)
	require.NoError(t, again.Load())
	require.Equal(t, types.SessionError, again.Session("orphan").Status)
}

func TestLoadDropsLeakedReservedProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	doc := `{"sessions": [], "profiles": [{"id": "medium", "name": "Sneaky"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s := New(path)
	require.NoError(t, s.Load())
	require.Equal(t, "Medium", s.Profile("medium").Name)
	require.Len(t, s.Profiles(), len(BuiltinProfiles))
}
