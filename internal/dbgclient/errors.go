package dbgclient

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is wrapped by errors caused by the connection rather
	// than by the service.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidWidth indicates a read width other than 1, 2, 4 or 8.
	ErrInvalidWidth = errors.New("invalid read width")

	// ErrTooManyValues indicates a bulk read above MaxArrayCount.
	ErrTooManyValues = errors.New("too many values requested")
)

// RemoteError is a failure reported by, or while talking to, the remote
// service. Payload carries the service's message.
type RemoteError struct {
	Op      string
	Payload string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Payload, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Payload)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err was caused by the connection.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// Errorf builds a service-side RemoteError.
func Errorf(op, format string, args ...any) *RemoteError {
	return &RemoteError{Op: op, Payload: fmt.Sprintf(format, args...)}
}

// ValidateRead checks a read width and value count.
func ValidateRead(op string, width, count int) error {
	if _, ok := WidthName(width); !ok {
		return &RemoteError{Op: op, Payload: fmt.Sprintf("width %d", width), Err: ErrInvalidWidth}
	}
	if count < 0 || count > MaxArrayCount {
		return &RemoteError{Op: op, Payload: fmt.Sprintf("count %d", count), Err: ErrTooManyValues}
	}
	return nil
}
