package backend

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the inference backend cannot be reached
// at all, either a refused connection or a timed out request.
var ErrUnavailable = errors.New("inference backend unreachable")

// Error is a failure reported by the backend itself over a working
// connection, such as an unknown model.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}
