package pathutil

import "errors"

var (
	// ErrInvalidComponent marks a malformed path component (empty or embedded slash).
	ErrInvalidComponent = errors.New("pathutil: invalid path component")
	// ErrNameTooLong marks a component longer than MaxNameLength.
	ErrNameTooLong = errors.New("pathutil: name too long")
)
