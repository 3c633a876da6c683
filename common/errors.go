package common

import "errors"

// ErrNotFound is returned when a requested entity does not exist, regardless
// of which storage implementation backs it.
var ErrNotFound = errors.New("not found")
