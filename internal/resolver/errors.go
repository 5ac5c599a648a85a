package resolver

import "errors"

var (
	// ErrInvalidIdentifier means the input is neither a numeric ID nor a status URL.
	ErrInvalidIdentifier = errors.New("invalid tweet identifier")
	// ErrMirrorUnavailable marks a single mirror that timed out, returned a
	// non-2xx status, or sent an undecodable body.
	ErrMirrorUnavailable = errors.New("mirror unavailable")
	// ErrNotFound means every enabled mirror was exhausted without text.
	ErrNotFound = errors.New("tweet text not found")
)
