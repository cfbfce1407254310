package queue

import "errors"

// ErrClosed is returned by Push after Close and by Pop once a closed queue
// is empty.
var ErrClosed = errors.New("queue closed")
