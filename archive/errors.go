package archive

import "fmt"

var (
	// ErrNotFound is returned when no transcript was archived for the given
	// session ID.
	ErrNotFound = fmt.Errorf("archived session not found")
)
