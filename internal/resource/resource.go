// Package resource defines the contract between stores and the form
// dispatcher for loaded records.
//
// A record is "unavailable" when the store reports ErrNotFound or when the
// loaded value is soft-deleted.  The dispatcher treats both causes the same
// way and renders a 404.
package resource

import "errors"

// ErrNotFound is returned (possibly wrapped) by stores when no row matches.
var ErrNotFound = errors.New("resource not found")

// Revisioned is implemented by records that can be retired without being
// removed from storage.
type Revisioned interface {
	RevDeleted() bool
}

// Unavailable reports whether a load result should be treated as missing.
func Unavailable(res any, err error) bool {
	if err != nil {
		return errors.Is(err, ErrNotFound)
	}
	if r, ok := res.(Revisioned); ok {
		return r.RevDeleted()
	}
	return false
}
