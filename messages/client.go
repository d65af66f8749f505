package messages

// Request actions accepted from clients.
const (
	ActionAuthenticate = "authenticate"
	ActionPlay         = "play"
	ActionRandom       = "random"
	ActionStop         = "stop"
	ActionPing         = "ping"
)

// ActionRequest is the client side of the wire: one inbound frame decoded.
// The dispatcher validates shape on raw JSON before binding to this type,
// so a missing action or wrong payload never reaches a handler.
type ActionRequest struct {
	Action   string `json:"action"`
	Token    string `json:"token,omitempty"`
	Filename string `json:"filename,omitempty"`
}
