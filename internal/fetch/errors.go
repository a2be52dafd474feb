package fetch

import (
	"errors"
	"fmt"
)

// ErrDisallowed is returned when robots.txt forbids the URL for our user agent
var ErrDisallowed = errors.New("disallowed by robots.txt")

// ErrOutOfScope is returned when a redirect leaves the crawl scope
var ErrOutOfScope = errors.New("redirect out of scope")

// Error describes a fetch that produced no usable response
type Error struct {
	URL        string
	StatusCode int
	// Temporary marks network failures worth another attempt
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTemporary reports whether err is a fetch failure that may succeed on retry
func IsTemporary(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Temporary
}
