package editor

import "sync"

// Serial gives goroutine-based transports exclusive access to a Session,
// one whole user action at a time.
type Serial struct {
	mu      sync.Mutex
	session *Session
}

// NewSerial wraps s.
func NewSerial(s *Session) *Serial {
	return &Serial{session: s}
}

// Do runs fn with exclusive access to the session.
func (x *Serial) Do(fn func(s *Session) error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return fn(x.session)
}
