package rollout

import "errors"

// Error implements errors unique to a rollout buffer.
type Error struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

var errFull = errors.New("buffer at maximum capacity")

var errEmpty = errors.New("buffer empty")

// IsFull returns whether or not an error reports that a transition
// could not be added because the buffer is full.
func IsFull(err error) bool {
	return errors.Is(err, errFull)
}

// IsEmpty returns whether or not an error reports that the buffer
// holds no transitions.
func IsEmpty(err error) bool {
	return errors.Is(err, errEmpty)
}
