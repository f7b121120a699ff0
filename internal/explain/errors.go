package explain

import "errors"

// Request-scoped error taxonomy. Each condition is terminal for one request
// and never fatal to the process.
var (
	// ErrNotFound: identifier absent, or the record has no analyzable details
	ErrNotFound = errors.New("not found")

	// ErrBadRequest: caller input violates a structural precondition
	ErrBadRequest = errors.New("bad request")

	// ErrUnavailable: the record store or generation engine failed
	ErrUnavailable = errors.New("unavailable")
)
