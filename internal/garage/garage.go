// Package garage holds the domain of vehicle availability: the interval kinds that make a day
// unbookable, how they are ranked against each other, and the surfaces the rest of the app
// uses to read and write them.
package garage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflicts with an existing interval")
	ErrInvalidRange = errors.New("invalid date range")
	ErrUnauthorized = errors.New("invalid feed token")
)

// FetchError is returned when an external calendar could not be retrieved.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("error fetching calendar: %s", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is returned when an external calendar document is malformed as a whole.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing calendar: %s", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
