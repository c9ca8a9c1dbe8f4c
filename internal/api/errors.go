package api

import (
	"errors"
	"net/http"

	"github.com/jdholdren/garage/internal/blocks"
	garerrs "github.com/jdholdren/garage/internal/errors"
	"github.com/jdholdren/garage/internal/garage"
	"github.com/jdholdren/garage/internal/ingest"
)

// statusOf gives the status a service error is served with, or 0 if it isn't one the caller can
// do anything about.
func statusOf(err error) int {
	var (
		fetchErr *garage.FetchError
		parseErr *garage.ParseError
	)
	switch {
	case errors.Is(err, garage.ErrInvalidRange),
		errors.Is(err, blocks.ErrReasonTooLong),
		errors.Is(err, ingest.ErrInvalidFeedURL):
		return http.StatusBadRequest
	case errors.Is(err, garage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, garage.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	}

	return 0
}

// serviceErr converts an error from one of the services into a transport error. Anything
// unrecognized is passed through to become a 500.
func serviceErr(err error) error {
	status := statusOf(err)
	if status == 0 {
		return err
	}

	return garerrs.E(err, status)
}
