package resolution

import "errors"

// ErrEmpty is returned when a size list has no entries.
// The average of an empty list is undefined, so this is never treated as a
// zero result.
var ErrEmpty = errors.New("no entries: average resolution is undefined")
