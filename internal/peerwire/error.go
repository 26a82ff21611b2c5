package peerwire

// Handshake errors
var (
	ErrInvalidProtocol = &Error{"invalid protocol string"}
	ErrInvalidInfoHash = &Error{"invalid info hash"}
	ErrOwnConnection   = &Error{"dropped own connection"}
)

// Error is a handshake failure.
type Error struct {
	message string
}

func (e *Error) Error() string {
	return e.message
}
