package terminal

// Session is a binary-safe terminal stream. Implementations include
// SSH-backed remote shells and local PTY process sessions.
type Session interface {
	Write(p []byte) error
	Resize(cols, rows int) error
	Close() error

	Output() <-chan []byte
	Done() <-chan struct{}
}
