package session

import (
	"errors"
	"fmt"
	"log"

	"github.com/jeffbot/soundboard/auth"
	"github.com/jeffbot/soundboard/messages"
	"github.com/jeffbot/soundboard/playback"

	"github.com/bytedance/sonic"
)

// Dispatcher turns one inbound frame into exactly one outbound envelope:
// parse, authentication gate, route by action, map faults to the closed
// error-code set. Nothing it does ever reaches the transport as a failure.
type Dispatcher struct {
	verifier *auth.Verifier
	backend  playback.Backend
}

// NewDispatcher creates a dispatcher over the given verifier and backend.
func NewDispatcher(verifier *auth.Verifier, backend playback.Backend) *Dispatcher {
	return &Dispatcher{verifier: verifier, backend: backend}
}

// Handle processes one raw frame for a session and always returns exactly
// one envelope, never nil.
func (d *Dispatcher) Handle(cs *ClientSession, raw []byte) (envelope any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [%s] Panic handling frame: %v", cs.shortID(), r)
			envelope = messages.NewErrorMessage(messages.ErrCodeInternalError, "Internal server error")
		}
	}()

	var value any
	if err := sonic.Unmarshal(raw, &value); err != nil {
		return messages.NewErrorMessage(messages.ErrCodeInvalidJSON, "Invalid JSON format")
	}

	request, ok := value.(map[string]any)
	if !ok {
		return messages.NewErrorMessage(messages.ErrCodeInvalidFormat, "Message must be a JSON object")
	}

	action, ok := request["action"].(string)
	if !ok {
		return messages.NewErrorMessage(messages.ErrCodeMissingAction, `Message must include an "action" field`)
	}

	if action == messages.ActionAuthenticate {
		return d.handleAuth(cs, request)
	}

	if !cs.Authenticated() {
		return messages.NewErrorMessage(messages.ErrCodeNotAuthenticated, "Authentication required")
	}

	return d.dispatch(cs, action, request)
}

// dispatch routes an authenticated action to its handler. A panic in a
// handler surfaces as action_error, keeping the connection alive.
func (d *Dispatcher) dispatch(cs *ClientSession, action string, request map[string]any) (envelope any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [%s] Panic in action %q: %v", cs.shortID(), action, r)
			envelope = messages.NewErrorMessage(messages.ErrCodeActionError, "Failed to execute action: "+action)
		}
	}()

	switch action {
	case messages.ActionList:
		return d.handleList()
	case messages.ActionPlay:
		return d.handlePlay(cs, request)
	case messages.ActionRandom:
		return d.handleRandom(cs)
	case messages.ActionStop:
		return d.handleStop()
	case messages.ActionStatus:
		return d.handleStatus()
	case messages.ActionPing:
		return messages.NewPongMessage()
	default:
		return messages.NewErrorMessage(messages.ErrCodeUnknownAction, "Unknown action: "+action)
	}
}

// handleAuth performs the single authentication transition. A repeat
// authenticate on an already-authenticated session is a no-op: the original
// identity is echoed and the presented token is not re-verified.
func (d *Dispatcher) handleAuth(cs *ClientSession, request map[string]any) any {
	if cs.Authenticated() {
		return messages.NewAuthSuccessMessage(cs.UserID())
	}

	token, _ := request["token"].(string)
	if token == "" {
		return messages.NewErrorMessage(messages.ErrCodeAuthFailed, "Token required")
	}

	claims, err := d.verifier.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpired):
			return messages.NewErrorMessage(messages.ErrCodeAuthFailed, "Token expired")
		case errors.Is(err, auth.ErrMissingClaim):
			return messages.NewErrorMessage(messages.ErrCodeAuthFailed, "Invalid token payload")
		case errors.Is(err, auth.ErrMalformed), errors.Is(err, auth.ErrBadSignature):
			return messages.NewErrorMessage(messages.ErrCodeAuthFailed, "Invalid token")
		default:
			log.Printf("❌ [%s] Verifier fault: %v", cs.shortID(), err)
			return messages.NewErrorMessage(messages.ErrCodeAuthError, "Authentication error")
		}
	}

	cs.bindIdentity(claims.UserID)
	return messages.NewAuthSuccessMessage(cs.UserID())
}

func (d *Dispatcher) handleList() any {
	sounds, err := d.backend.ListSounds()
	if err != nil {
		log.Printf("❌ Failed to list sounds: %v", err)
		return messages.NewErrorMessage(messages.ErrCodeListError, "Failed to list sounds")
	}

	infos := make([]messages.SoundInfo, 0, len(sounds))
	for _, s := range sounds {
		infos = append(infos, messages.SoundInfo{Name: s.Name, Path: s.Path})
	}
	return messages.NewListMessage(infos)
}

func (d *Dispatcher) handlePlay(cs *ClientSession, request map[string]any) any {
	filename, _ := request["filename"].(string)
	if filename == "" {
		return messages.NewErrorMessage(messages.ErrCodeMissingFilename, "Filename is required")
	}

	s, found := d.backend.FindSound(filename)
	if !found {
		return messages.NewErrorMessage(messages.ErrCodeSoundNotFound, fmt.Sprintf("Sound %q not found", filename))
	}

	pb, err := d.backend.Play(cs.UserID(), s)
	if err != nil {
		if errors.Is(err, playback.ErrNoVoiceChannel) {
			return messages.NewErrorMessage(messages.ErrCodeNoVoiceChannel, "User must be in a voice channel")
		}
		log.Printf("❌ [%s] Failed to play %q: %v", cs.shortID(), filename, err)
		return messages.NewErrorMessage(messages.ErrCodePlayError, "Failed to play sound")
	}

	return messages.NewPlayingMessage(filename, pb.Title, pb.Channel, false)
}

func (d *Dispatcher) handleRandom(cs *ClientSession) any {
	pb, err := d.backend.PlayRandom(cs.UserID())
	if err != nil {
		switch {
		case errors.Is(err, playback.ErrNoSounds):
			return messages.NewErrorMessage(messages.ErrCodeNoSounds, "No sounds available")
		case errors.Is(err, playback.ErrNoVoiceChannel):
			return messages.NewErrorMessage(messages.ErrCodeNoVoiceChannel, "User must be in a voice channel")
		default:
			log.Printf("❌ [%s] Failed to play random sound: %v", cs.shortID(), err)
			return messages.NewErrorMessage(messages.ErrCodeRandomError, "Failed to play random sound")
		}
	}

	return messages.NewPlayingMessage(pb.Title, pb.Title, pb.Channel, true)
}

func (d *Dispatcher) handleStop() any {
	if err := d.backend.Stop(); err != nil {
		log.Printf("❌ Failed to stop playback: %v", err)
		return messages.NewErrorMessage(messages.ErrCodeStopError, "Failed to stop sound")
	}
	return messages.NewStoppedMessage()
}

func (d *Dispatcher) handleStatus() any {
	status, err := d.backend.CurrentStatus()
	if err != nil {
		log.Printf("❌ Failed to read playback status: %v", err)
		return messages.NewErrorMessage(messages.ErrCodeStatusError, "Failed to get status")
	}

	sounds, err := d.backend.ListSounds()
	if err != nil {
		log.Printf("❌ Failed to count sounds for status: %v", err)
		return messages.NewErrorMessage(messages.ErrCodeStatusError, "Failed to get status")
	}

	var nowPlaying *messages.NowPlayingInfo
	if status.NowPlaying != nil {
		nowPlaying = &messages.NowPlayingInfo{
			Source: status.NowPlaying.Source,
			Title:  status.NowPlaying.Title,
		}
	}
	return messages.NewStatusMessage(status.Connected, status.Playing, nowPlaying, len(sounds), status.Channel)
}
