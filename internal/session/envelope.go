package session

import "encoding/json"

// Recognised envelope types. Anything else on the wire, including plain
// text that is not JSON at all, is treated as TypeText.
const (
	TypeWelcome     = "welcome"
	TypeInfo        = "info"
	TypeError       = "error"
	TypeChatRequest = "chat_request"
	TypeChatStarted = "chat_started"
	TypeMessage     = "message"
	TypeText        = "text"
)

// Envelope is the wire-level unit the relay forwards. The core never
// interprets Content beyond passing it through verbatim.
type Envelope struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Content   string `json:"content,omitempty"`
	SenderID  string `json:"sender_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	PartnerID string `json:"partner_id,omitempty"`
}

// Decode parses a raw inbound frame. Payloads that are not a JSON object,
// or that carry no type field, fall back to a text envelope wrapping the
// raw payload.
func Decode(data []byte) Envelope {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		return Envelope{Type: TypeText, Content: string(data)}
	}
	return env
}

// Encode serialises an envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Info builds an info notice with the given human-readable message.
func Info(message string) Envelope {
	return Envelope{Type: TypeInfo, Message: message}
}

// Error builds an error notice with the given human-readable message.
func Error(message string) Envelope {
	return Envelope{Type: TypeError, Message: message}
}
