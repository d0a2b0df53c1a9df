package relay

import "errors"

var (
	// ErrInvalidToken is returned by New when the service token does not
	// have the expected rly_<project>_<environment>_<secret> shape.
	ErrInvalidToken = errors.New("relay: invalid token format")

	// ErrClosed is returned by operations invoked after Close.
	ErrClosed = errors.New("relay: client is closed")

	// ErrNotInitialized is returned by WaitForInitialized when the
	// supplied context expires before the first fetch settles.
	ErrNotInitialized = errors.New("relay: initialization not complete")
)
