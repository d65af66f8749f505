package playback

import (
	"errors"

	"github.com/jeffbot/soundboard/sound"
)

// Faults a backend reports as real external preconditions, distinguished
// from unexpected failures by the dispatcher's error mapping.
var (
	ErrNoVoiceChannel = errors.New("user is not in a voice channel")
	ErrNoSounds       = errors.New("no sounds available")
)

// NowPlaying describes the track a backend is currently playing.
type NowPlaying struct {
	Source string
	Title  string
}

// Status is a point-in-time snapshot of the playback subsystem.
type Status struct {
	Connected  bool
	Playing    bool
	NowPlaying *NowPlaying
	Channel    string
}

// Playback reports what started playing and where.
type Playback struct {
	Title   string
	Channel string
}

// Backend is the capability set the session core delegates real work to.
// Implementations own all playback state and serialize conflicting
// operations; the core only observes and requests.
type Backend interface {
	// ListSounds returns a snapshot of the available sounds. All-or-fault:
	// it never returns a partial set alongside an error.
	ListSounds() ([]sound.Sound, error)

	// FindSound looks a single sound up by name.
	FindSound(name string) (sound.Sound, bool)

	// Play starts the given sound for the user's voice channel. Fails with
	// ErrNoVoiceChannel when the user is not in one.
	Play(userID string, s sound.Sound) (Playback, error)

	// PlayRandom picks an arbitrary sound and plays it. Fails with
	// ErrNoSounds on an empty set, ErrNoVoiceChannel as for Play.
	PlayRandom(userID string) (Playback, error)

	// Stop halts playback. Acknowledged even when nothing is playing.
	Stop() error

	// CurrentStatus reports the playback snapshot.
	CurrentStatus() (Status, error)
}

// ChannelResolver answers which voice channel a user occupies. This is the
// membership black box; the core never looks inside it.
type ChannelResolver interface {
	VoiceChannel(userID string) (string, bool)
}

// StaticChannel resolves every user to one fixed channel. The empty string
// means nobody is in a channel.
type StaticChannel string

func (c StaticChannel) VoiceChannel(string) (string, bool) {
	return string(c), c != ""
}
