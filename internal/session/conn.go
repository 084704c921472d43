package session

// Conn is the duplex text-message transport a session owns. The production
// implementation wraps a websocket; tests substitute an in-memory fake.
//
// WriteEnvelope must be safe for concurrent use. ReadEnvelope is called
// sequentially from the session's connection goroutine and returns an error
// once the peer is gone. Close must tolerate being called after the peer
// already disconnected.
type Conn interface {
	ReadEnvelope() (Envelope, error)
	WriteEnvelope(Envelope) error
	Close(code int, reason string) error
}
