package playback

import (
	"log"
	"sync"

	"github.com/jeffbot/soundboard/sound"
)

// Engine is the in-process Backend for the web soundboard mode: it
// coordinates playback state here while subscriber clients emit the audio.
// One mutex serializes all operations, so concurrent sessions never observe
// a torn snapshot.
type Engine struct {
	library  *sound.Library
	resolver ChannelResolver

	mu      sync.Mutex
	playing *NowPlaying
	channel string
}

// NewEngine creates an engine over the given library, resolving voice
// channel membership through resolver.
func NewEngine(library *sound.Library, resolver ChannelResolver) *Engine {
	return &Engine{
		library:  library,
		resolver: resolver,
	}
}

func (e *Engine) ListSounds() ([]sound.Sound, error) {
	return e.library.List(), nil
}

func (e *Engine) FindSound(name string) (sound.Sound, bool) {
	return e.library.Find(name)
}

func (e *Engine) Play(userID string, s sound.Sound) (Playback, error) {
	channel, ok := e.resolver.VoiceChannel(userID)
	if !ok {
		return Playback{}, ErrNoVoiceChannel
	}

	e.mu.Lock()
	e.channel = channel
	e.playing = &NowPlaying{Source: s.Path, Title: s.Name}
	e.mu.Unlock()

	log.Printf("▶️ Playing %s in %s for user %s", s.Name, channel, userID)
	return Playback{Title: s.Name, Channel: channel}, nil
}

func (e *Engine) PlayRandom(userID string) (Playback, error) {
	s, ok := e.library.Random()
	if !ok {
		return Playback{}, ErrNoSounds
	}
	return e.Play(userID, s)
}

// Stop clears the playing track. Always acknowledged, even when idle.
func (e *Engine) Stop() error {
	e.mu.Lock()
	e.playing = nil
	e.mu.Unlock()

	log.Println("⏹️ Playback stopped")
	return nil
}

func (e *Engine) CurrentStatus() (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		Connected: e.channel != "",
		Playing:   e.playing != nil,
		Channel:   e.channel,
	}
	if e.playing != nil {
		np := *e.playing
		status.NowPlaying = &np
	}
	return status, nil
}
