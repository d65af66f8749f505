package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jeffbot/soundboard/auth"
	"github.com/jeffbot/soundboard/messages"
	"github.com/jeffbot/soundboard/playback"
	"github.com/jeffbot/soundboard/sound"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "dispatcher-test-secret"

// fakeBackend implements playback.Backend for dispatcher tests and records
// what was asked of it.
type fakeBackend struct {
	sounds    []sound.Sound
	noChannel bool

	listErr   error
	playErr   error
	stopErr   error
	statusErr error
	listPanic bool

	playCalls   int
	randomCalls int
	stopCalls   int
}

func (f *fakeBackend) ListSounds() ([]sound.Sound, error) {
	if f.listPanic {
		panic("list exploded")
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sounds, nil
}

func (f *fakeBackend) FindSound(name string) (sound.Sound, bool) {
	for _, s := range f.sounds {
		if s.Name == name {
			return s, true
		}
	}
	return sound.Sound{}, false
}

func (f *fakeBackend) Play(userID string, s sound.Sound) (playback.Playback, error) {
	f.playCalls++
	if f.noChannel {
		return playback.Playback{}, playback.ErrNoVoiceChannel
	}
	if f.playErr != nil {
		return playback.Playback{}, f.playErr
	}
	return playback.Playback{Title: s.Name, Channel: "General"}, nil
}

func (f *fakeBackend) PlayRandom(userID string) (playback.Playback, error) {
	f.randomCalls++
	if len(f.sounds) == 0 {
		return playback.Playback{}, playback.ErrNoSounds
	}
	return f.Play(userID, f.sounds[0])
}

func (f *fakeBackend) Stop() error {
	f.stopCalls++
	return f.stopErr
}

func (f *fakeBackend) CurrentStatus() (playback.Status, error) {
	if f.statusErr != nil {
		return playback.Status{}, f.statusErr
	}
	return playback.Status{
		Connected:  true,
		Playing:    true,
		NowPlaying: &playback.NowPlaying{Source: "/sounds/airhorn.mp3", Title: "airhorn"},
		Channel:    "General",
	}, nil
}

func newTestSession(state State) *ClientSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &ClientSession{
		ID:           "00000000-test-session",
		CreatedAt:    time.Now(),
		writeChan:    make(chan any, writeBufferSize),
		state:        state,
		lastActivity: time.Now(),
		CloseChan:    make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func newTestDispatcher(backend playback.Backend) *Dispatcher {
	return NewDispatcher(auth.NewVerifier(testSecret, time.Hour), backend)
}

// asWire flattens an envelope into the JSON object a client would see.
func asWire(t *testing.T, envelope any) map[string]any {
	t.Helper()
	require.NotNil(t, envelope, "every frame must produce an envelope")
	data, err := sonic.Marshal(envelope)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(data, &out))
	return out
}

func requireError(t *testing.T, envelope any, code string) map[string]any {
	t.Helper()
	out := asWire(t, envelope)
	assert.Equal(t, "error", out["action"])
	assert.Equal(t, code, out["error_code"])
	assert.NotEmpty(t, out["error_message"])
	assert.Greater(t, out["timestamp"], 0.0)
	return out
}

func validToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.NewVerifier(testSecret, time.Hour).Issue(userID)
	require.NoError(t, err)
	return token
}

func TestParsePipeline(t *testing.T) {
	d := newTestDispatcher(&fakeBackend{})
	cs := newTestSession(StateUnauthenticated)

	tests := []struct {
		name string
		raw  string
		code string
	}{
		{"malformed json", `{not json`, messages.ErrCodeInvalidJSON},
		{"empty frame", ``, messages.ErrCodeInvalidJSON},
		{"array", `[1,2,3]`, messages.ErrCodeInvalidFormat},
		{"scalar", `"list"`, messages.ErrCodeInvalidFormat},
		{"null", `null`, messages.ErrCodeInvalidFormat},
		{"missing action", `{"filename":"airhorn.mp3"}`, messages.ErrCodeMissingAction},
		{"non-string action", `{"action":42}`, messages.ErrCodeMissingAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireError(t, d.Handle(cs, []byte(tt.raw)), tt.code)
		})
	}
}

func TestUnauthenticatedGate(t *testing.T) {
	for _, action := range []string{"list", "play", "random", "stop", "status", "ping", "nonsense"} {
		t.Run(action, func(t *testing.T) {
			backend := &fakeBackend{sounds: []sound.Sound{{Name: "airhorn", Path: "/sounds/airhorn.mp3"}}}
			d := newTestDispatcher(backend)
			cs := newTestSession(StateUnauthenticated)

			env := d.Handle(cs, []byte(`{"action":"`+action+`"}`))
			requireError(t, env, messages.ErrCodeNotAuthenticated)

			// The gate fires before any backend call
			assert.Zero(t, backend.playCalls)
			assert.Zero(t, backend.randomCalls)
			assert.Zero(t, backend.stopCalls)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	t.Run("valid token binds identity", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{})
		cs := newTestSession(StateUnauthenticated)

		env := d.Handle(cs, []byte(`{"action":"authenticate","token":"`+validToken(t, "user-42")+`"}`))
		out := asWire(t, env)
		assert.Equal(t, "auth_success", out["action"])
		assert.Equal(t, "Authentication successful", out["message"])
		assert.Equal(t, "user-42", out["user_id"])

		assert.Equal(t, StateAuthenticated, cs.State())
		assert.Equal(t, "user-42", cs.UserID())
	})

	t.Run("missing token", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{})
		cs := newTestSession(StateUnauthenticated)

		env := d.Handle(cs, []byte(`{"action":"authenticate"}`))
		out := requireError(t, env, messages.ErrCodeAuthFailed)
		assert.Equal(t, "Token required", out["error_message"])
		assert.Equal(t, StateUnauthenticated, cs.State())
	})

	t.Run("expired token", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{})
		cs := newTestSession(StateUnauthenticated)

		stale, err := auth.NewVerifier(testSecret, -time.Hour).Issue("user-42")
		require.NoError(t, err)

		env := d.Handle(cs, []byte(`{"action":"authenticate","token":"`+stale+`"}`))
		out := requireError(t, env, messages.ErrCodeAuthFailed)
		assert.Equal(t, "Token expired", out["error_message"])
		assert.Equal(t, StateUnauthenticated, cs.State())
		assert.Empty(t, cs.UserID())
	})

	t.Run("garbage token", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{})
		cs := newTestSession(StateUnauthenticated)

		env := d.Handle(cs, []byte(`{"action":"authenticate","token":"garbage"}`))
		requireError(t, env, messages.ErrCodeAuthFailed)
		assert.Equal(t, StateUnauthenticated, cs.State())
	})

	t.Run("wrong secret", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{})
		cs := newTestSession(StateUnauthenticated)

		forged, err := auth.NewVerifier("other-secret", time.Hour).Issue("user-42")
		require.NoError(t, err)

		env := d.Handle(cs, []byte(`{"action":"authenticate","token":"`+forged+`"}`))
		requireError(t, env, messages.ErrCodeAuthFailed)
	})

	t.Run("client may retry after failure", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{})
		cs := newTestSession(StateUnauthenticated)

		requireError(t, d.Handle(cs, []byte(`{"action":"authenticate","token":"bad"}`)), messages.ErrCodeAuthFailed)

		env := d.Handle(cs, []byte(`{"action":"authenticate","token":"`+validToken(t, "user-42")+`"}`))
		assert.Equal(t, "auth_success", asWire(t, env)["action"])
	})
}

func TestRepeatAuthenticateKeepsIdentity(t *testing.T) {
	d := newTestDispatcher(&fakeBackend{})
	cs := newTestSession(StateUnauthenticated)

	env := d.Handle(cs, []byte(`{"action":"authenticate","token":"`+validToken(t, "user-1")+`"}`))
	require.Equal(t, "auth_success", asWire(t, env)["action"])

	// A second authenticate, even for a different subject, is a no-op that
	// echoes the original identity.
	env = d.Handle(cs, []byte(`{"action":"authenticate","token":"`+validToken(t, "user-2")+`"}`))
	out := asWire(t, env)
	assert.Equal(t, "auth_success", out["action"])
	assert.Equal(t, "user-1", out["user_id"])
	assert.Equal(t, "user-1", cs.UserID())

	// Even an invalid token does not disturb the bound identity.
	env = d.Handle(cs, []byte(`{"action":"authenticate","token":"garbage"}`))
	out = asWire(t, env)
	assert.Equal(t, "auth_success", out["action"])
	assert.Equal(t, "user-1", out["user_id"])
}

func TestList(t *testing.T) {
	t.Run("returns snapshot", func(t *testing.T) {
		backend := &fakeBackend{sounds: []sound.Sound{
			{Name: "airhorn", Path: "/sounds/airhorn.mp3"},
			{Name: "horn", Path: "/sounds/horn.wav"},
		}}
		d := newTestDispatcher(backend)
		cs := newTestSession(StateAuthenticated)

		out := asWire(t, d.Handle(cs, []byte(`{"action":"list"}`)))
		assert.Equal(t, "list", out["action"])
		assert.Equal(t, 2.0, out["count"])
		sounds := out["sounds"].([]any)
		require.Len(t, sounds, 2)
		first := sounds[0].(map[string]any)
		assert.Equal(t, "airhorn", first["name"])
		assert.Equal(t, "/sounds/airhorn.mp3", first["path"])
	})

	t.Run("empty set is an array", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{})
		cs := newTestSession(StateAuthenticated)

		out := asWire(t, d.Handle(cs, []byte(`{"action":"list"}`)))
		assert.Equal(t, 0.0, out["count"])
		assert.NotNil(t, out["sounds"])
		assert.Len(t, out["sounds"], 0)
	})

	t.Run("backend fault", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{listErr: errors.New("disk on fire")})
		cs := newTestSession(StateAuthenticated)

		requireError(t, d.Handle(cs, []byte(`{"action":"list"}`)), messages.ErrCodeListError)
	})
}

func TestPlay(t *testing.T) {
	soundSet := []sound.Sound{{Name: "airhorn.mp3", Path: "/sounds/airhorn.mp3"}}

	t.Run("success", func(t *testing.T) {
		backend := &fakeBackend{sounds: soundSet}
		d := newTestDispatcher(backend)
		cs := newTestSession(StateAuthenticated)

		out := asWire(t, d.Handle(cs, []byte(`{"action":"play","filename":"airhorn.mp3"}`)))
		assert.Equal(t, "playing", out["action"])
		assert.Equal(t, "airhorn.mp3", out["filename"])
		assert.Equal(t, "General", out["channel"])
		_, hasRandom := out["random"]
		assert.False(t, hasRandom, "random flag belongs only on random responses")
		assert.Equal(t, 1, backend.playCalls)
	})

	t.Run("missing filename", func(t *testing.T) {
		backend := &fakeBackend{sounds: soundSet}
		d := newTestDispatcher(backend)
		cs := newTestSession(StateAuthenticated)

		requireError(t, d.Handle(cs, []byte(`{"action":"play"}`)), messages.ErrCodeMissingFilename)
		requireError(t, d.Handle(cs, []byte(`{"action":"play","filename":""}`)), messages.ErrCodeMissingFilename)
		assert.Zero(t, backend.playCalls)
	})

	t.Run("unknown sound never reaches playback", func(t *testing.T) {
		backend := &fakeBackend{sounds: soundSet}
		d := newTestDispatcher(backend)
		cs := newTestSession(StateAuthenticated)

		requireError(t, d.Handle(cs, []byte(`{"action":"play","filename":"nope.mp3"}`)), messages.ErrCodeSoundNotFound)
		assert.Zero(t, backend.playCalls)
	})

	t.Run("no voice channel", func(t *testing.T) {
		backend := &fakeBackend{sounds: soundSet, noChannel: true}
		d := newTestDispatcher(backend)
		cs := newTestSession(StateAuthenticated)

		requireError(t, d.Handle(cs, []byte(`{"action":"play","filename":"airhorn.mp3"}`)), messages.ErrCodeNoVoiceChannel)
	})

	t.Run("backend fault", func(t *testing.T) {
		backend := &fakeBackend{sounds: soundSet, playErr: errors.New("ffmpeg died")}
		d := newTestDispatcher(backend)
		cs := newTestSession(StateAuthenticated)

		requireError(t, d.Handle(cs, []byte(`{"action":"play","filename":"airhorn.mp3"}`)), messages.ErrCodePlayError)
	})
}

func TestRandom(t *testing.T) {
	t.Run("success carries random flag", func(t *testing.T) {
		backend := &fakeBackend{sounds: []sound.Sound{{Name: "airhorn", Path: "/sounds/airhorn.mp3"}}}
		d := newTestDispatcher(backend)
		cs := newTestSession(StateAuthenticated)

		out := asWire(t, d.Handle(cs, []byte(`{"action":"random"}`)))
		assert.Equal(t, "playing", out["action"])
		assert.Equal(t, "airhorn", out["filename"])
		assert.Equal(t, "airhorn", out["title"])
		assert.Equal(t, true, out["random"])
	})

	t.Run("empty sound set", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{})
		cs := newTestSession(StateAuthenticated)

		requireError(t, d.Handle(cs, []byte(`{"action":"random"}`)), messages.ErrCodeNoSounds)
	})

	t.Run("no voice channel", func(t *testing.T) {
		backend := &fakeBackend{sounds: []sound.Sound{{Name: "airhorn", Path: "/x"}}, noChannel: true}
		d := newTestDispatcher(backend)
		cs := newTestSession(StateAuthenticated)

		requireError(t, d.Handle(cs, []byte(`{"action":"random"}`)), messages.ErrCodeNoVoiceChannel)
	})
}

func TestStop(t *testing.T) {
	t.Run("acknowledged regardless of playback", func(t *testing.T) {
		backend := &fakeBackend{}
		d := newTestDispatcher(backend)
		cs := newTestSession(StateAuthenticated)

		out := asWire(t, d.Handle(cs, []byte(`{"action":"stop"}`)))
		assert.Equal(t, "stopped", out["action"])
		assert.Equal(t, "Audio playback stopped", out["message"])
		assert.Equal(t, 1, backend.stopCalls)
	})

	t.Run("backend fault", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{stopErr: errors.New("voice gateway gone")})
		cs := newTestSession(StateAuthenticated)

		requireError(t, d.Handle(cs, []byte(`{"action":"stop"}`)), messages.ErrCodeStopError)
	})
}

func TestStatus(t *testing.T) {
	t.Run("composes snapshot", func(t *testing.T) {
		backend := &fakeBackend{sounds: []sound.Sound{{Name: "airhorn", Path: "/x"}}}
		d := newTestDispatcher(backend)
		cs := newTestSession(StateAuthenticated)

		out := asWire(t, d.Handle(cs, []byte(`{"action":"status"}`)))
		assert.Equal(t, "status", out["action"])
		assert.Equal(t, true, out["connected"])
		assert.Equal(t, true, out["playing"])
		assert.Equal(t, 1.0, out["sound_count"])
		assert.Equal(t, "General", out["channel"])
		assert.Greater(t, out["server_time"], 0.0)
		np := out["now_playing"].(map[string]any)
		assert.Equal(t, "airhorn", np["title"])
	})

	t.Run("backend fault", func(t *testing.T) {
		d := newTestDispatcher(&fakeBackend{statusErr: errors.New("no snapshot")})
		cs := newTestSession(StateAuthenticated)

		requireError(t, d.Handle(cs, []byte(`{"action":"status"}`)), messages.ErrCodeStatusError)
	})
}

func TestPing(t *testing.T) {
	d := newTestDispatcher(&fakeBackend{})
	cs := newTestSession(StateAuthenticated)

	out := asWire(t, d.Handle(cs, []byte(`{"action":"ping"}`)))
	assert.Equal(t, "pong", out["action"])
}

func TestUnknownAction(t *testing.T) {
	d := newTestDispatcher(&fakeBackend{})
	cs := newTestSession(StateAuthenticated)

	out := requireError(t, d.Handle(cs, []byte(`{"action":"reboot"}`)), messages.ErrCodeUnknownAction)
	assert.Contains(t, out["error_message"], "reboot")
}

func TestHandlerPanicBecomesActionError(t *testing.T) {
	d := newTestDispatcher(&fakeBackend{listPanic: true})
	cs := newTestSession(StateAuthenticated)

	requireError(t, d.Handle(cs, []byte(`{"action":"list"}`)), messages.ErrCodeActionError)
}

func TestEveryFrameProducesOneEnvelope(t *testing.T) {
	backend := &fakeBackend{sounds: []sound.Sound{{Name: "airhorn.mp3", Path: "/x"}}}
	d := newTestDispatcher(backend)
	cs := newTestSession(StateUnauthenticated)

	frames := []string{
		`{broken`,
		`[]`,
		`{}`,
		`{"action":"list"}`,
		`{"action":"authenticate","token":"bad"}`,
		`{"action":"authenticate","token":"` + validToken(t, "user-1") + `"}`,
		`{"action":"list"}`,
		`{"action":"play","filename":"airhorn.mp3"}`,
		`{"action":"ping"}`,
		`{"action":"whatever"}`,
	}

	for _, frame := range frames {
		env := d.Handle(cs, []byte(frame))
		out := asWire(t, env)
		assert.NotEmpty(t, out["action"], "frame %q", frame)
	}
}
