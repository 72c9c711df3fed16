package realtime

// Control events the server sends on its own behalf.
const (
	EventAuthenticated = "authenticated"
	EventError         = "error"
	EventPong          = "pong"
)

// Actions a client may send.
const (
	ActionAuthenticate = "authenticate"
	ActionPing         = "ping"
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ControlMessage is a client-to-server frame.
type ControlMessage struct {
	Action string `json:"action"`
	UserID string `json:"user_id,omitempty"`
	Token  string `json:"token,omitempty"`
}

// ErrorPayload accompanies EventError frames.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
