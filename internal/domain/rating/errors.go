package rating

import "errors"

// ErrLock is returned when the per-key lock could not be taken before the
// context ended.
var ErrLock = errors.New("acquire rating lock")
