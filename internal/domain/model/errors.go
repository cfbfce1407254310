package model

import "errors"

// Sentinel errors for this package.
var (
	// ErrDecode marks a message body that cannot be turned into an event.
	ErrDecode = errors.New("decode event")
	// ErrInvalidScore marks a score outside the accepted range.
	ErrInvalidScore = errors.New("invalid score")
	// ErrUnavailable marks work the service cannot take right now, for
	// example because it is shutting down.
	ErrUnavailable = errors.New("service unavailable")
)

// IsPermanent reports whether err comes from the message itself, so that
// redelivering it can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrDecode) || errors.Is(err, ErrInvalidScore)
}
