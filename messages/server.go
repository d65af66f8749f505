package messages

import "time"

// Error codes sent on the wire. This set is closed: the dispatcher never
// emits a code outside it.
const (
	ErrCodeInvalidJSON      = "invalid_json"
	ErrCodeInvalidFormat    = "invalid_format"
	ErrCodeMissingAction    = "missing_action"
	ErrCodeNotAuthenticated = "not_authenticated"
	ErrCodeAuthFailed       = "auth_failed"
	ErrCodeAuthError        = "auth_error"
	ErrCodeUnknownAction    = "unknown_action"
	ErrCodeActionError      = "action_error"
	ErrCodeMissingFilename  = "missing_filename"
	ErrCodeSoundNotFound    = "sound_not_found"
	ErrCodeNoVoiceChannel   = "no_voice_channel"
	ErrCodeNoSounds         = "no_sounds"
	ErrCodeListError        = "list_error"
	ErrCodePlayError        = "play_error"
	ErrCodeRandomError      = "random_error"
	ErrCodeStopError        = "stop_error"
	ErrCodeStatusError      = "status_error"
	ErrCodeInternalError    = "internal_error"
)

// Response actions
const (
	ActionWelcome     = "welcome"
	ActionAuthSuccess = "auth_success"
	ActionList        = "list"
	ActionPlaying     = "playing"
	ActionStopped     = "stopped"
	ActionStatus      = "status"
	ActionPong        = "pong"
	ActionError       = "error"
)

// WelcomeMessage greets a client right after the socket is accepted.
type WelcomeMessage struct {
	Action    string  `json:"action"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// AuthSuccessMessage confirms authentication and echoes the bound identity.
type AuthSuccessMessage struct {
	Action  string `json:"action"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// SoundInfo is the wire form of one playable sound.
type SoundInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ListMessage carries a snapshot of the sound set.
type ListMessage struct {
	Action string      `json:"action"`
	Sounds []SoundInfo `json:"sounds"`
	Count  int         `json:"count"`
}

// PlayingMessage reports that playback started. Random is set only on
// responses to the "random" action.
type PlayingMessage struct {
	Action   string `json:"action"`
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Channel  string `json:"channel"`
	Random   bool   `json:"random,omitempty"`
}

// StoppedMessage acknowledges a stop request.
type StoppedMessage struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// NowPlayingInfo describes the track currently playing, if any.
type NowPlayingInfo struct {
	Source string `json:"source"`
	Title  string `json:"title"`
}

// StatusMessage is the composed connection/playback/sound-count snapshot.
type StatusMessage struct {
	Action     string          `json:"action"`
	Connected  bool            `json:"connected"`
	Playing    bool            `json:"playing"`
	NowPlaying *NowPlayingInfo `json:"now_playing"`
	SoundCount int             `json:"sound_count"`
	ServerTime float64         `json:"server_time"`
	Channel    string          `json:"channel,omitempty"`
}

// PongMessage answers a ping.
type PongMessage struct {
	Action string `json:"action"`
}

// ErrorMessage is the single error envelope shape used for every failure.
type ErrorMessage struct {
	Action       string  `json:"action"`
	ErrorCode    string  `json:"error_code"`
	ErrorMessage string  `json:"error_message"`
	Timestamp    float64 `json:"timestamp"`
}

// unixSeconds returns the current time as fractional unix seconds, the
// timestamp format the protocol uses.
func unixSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// NewWelcomeMessage creates the envelope sent on connect.
func NewWelcomeMessage() *WelcomeMessage {
	return &WelcomeMessage{
		Action:    ActionWelcome,
		Message:   "Connected to Jeff Bot WebSocket server",
		Timestamp: unixSeconds(),
	}
}

// NewAuthSuccessMessage confirms authentication for the given identity.
func NewAuthSuccessMessage(userID string) *AuthSuccessMessage {
	return &AuthSuccessMessage{
		Action:  ActionAuthSuccess,
		Message: "Authentication successful",
		UserID:  userID,
	}
}

// NewListMessage creates a sound-list envelope. The sound set is always a
// JSON array, never null.
func NewListMessage(sounds []SoundInfo) *ListMessage {
	if sounds == nil {
		sounds = []SoundInfo{}
	}
	return &ListMessage{
		Action: ActionList,
		Sounds: sounds,
		Count:  len(sounds),
	}
}

// NewPlayingMessage creates a playback-started envelope.
func NewPlayingMessage(filename, title, channel string, random bool) *PlayingMessage {
	return &PlayingMessage{
		Action:   ActionPlaying,
		Filename: filename,
		Title:    title,
		Channel:  channel,
		Random:   random,
	}
}

// NewStoppedMessage creates a stop acknowledgement.
func NewStoppedMessage() *StoppedMessage {
	return &StoppedMessage{
		Action:  ActionStopped,
		Message: "Audio playback stopped",
	}
}

// NewPongMessage creates a heartbeat reply.
func NewPongMessage() *PongMessage {
	return &PongMessage{Action: ActionPong}
}

// NewStatusMessage creates a status snapshot stamped with the current
// server time.
func NewStatusMessage(connected, playing bool, nowPlaying *NowPlayingInfo, soundCount int, channel string) *StatusMessage {
	return &StatusMessage{
		Action:     ActionStatus,
		Connected:  connected,
		Playing:    playing,
		NowPlaying: nowPlaying,
		SoundCount: soundCount,
		ServerTime: unixSeconds(),
		Channel:    channel,
	}
}

// NewErrorMessage creates an error envelope with one of the enumerated codes.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Action:       ActionError,
		ErrorCode:    code,
		ErrorMessage: message,
		Timestamp:    unixSeconds(),
	}
}
