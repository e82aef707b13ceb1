package shared

import "errors"

var (
	// ErrFetchFailed indicates the backing store could not be read; callers
	// must not treat it as an empty result.
	ErrFetchFailed = errors.New("fetch from store failed")
)
