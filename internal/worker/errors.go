package worker

import (
	"errors"

	"go.temporal.io/sdk/temporal"
)

// Error types
//
// These are error types in the temporal sense, not the general "go" error types sense.
// They are used since between activities error types are marshaled and type information is lost.
const (
	errTypeParse    = "parse"
	errTypeNotFound = "notFound"
)

// Digs the message the activity failed with out of the layers temporal wraps it in.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}

	return err.Error()
}
