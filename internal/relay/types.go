package relay

// Message types exchanged with the relay.
const (
	TypeAuthRequired = "auth_required"
	TypeAuth         = "auth"
	TypeAuthOK       = "auth_ok"
	TypeAuthInvalid  = "auth_invalid"
	TypeMessage      = "message"
	TypeReply        = "reply"
	TypePost         = "post"
	TypePing         = "ping"
	TypePong         = "pong"
)

// Message is one JSON text frame to or from the relay.
type Message struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Text        string `json:"text,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// Stats counts relay traffic since start.
type Stats struct {
	Connected  bool  `json:"connected"`
	Received   int64 `json:"received"`
	Dropped    int64 `json:"dropped"`
	Replies    int64 `json:"replies"`
	Posts      int64 `json:"posts"`
	Reconnects int64 `json:"reconnects"`
}
