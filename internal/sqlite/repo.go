// Package sqlite is the interval store: vehicles, bookings, manual blocks, external feeds and
// their events, and feed tokens, all in one sqlite database.
package sqlite

import (
	"errors"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"github.com/jdholdren/garage/internal/garage"
)

// Ensure Repo implements the Repository interface
var _ garage.Repository = (*Repo)(nil)

// ID suffixes, so an id tells you what it points to.
const (
	blockNamespace   = "-blk"
	bookingNamespace = "-bkg"
	feedNamespace    = "-fd"
	eventNamespace   = "-xev"
)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// Extended sqlite result codes for constraint failures.
const (
	codeConstraintForeignKey = 787
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
)

// Reports whether err is a sqlite constraint failure with the given extended code.
func isConstraint(err error, code int) bool {
	sqliteErr := &sqlite.Error{}
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == code
}

func isUniqueViolation(err error) bool {
	return isConstraint(err, codeConstraintUnique) || isConstraint(err, codeConstraintPrimaryKey)
}

func isForeignKeyViolation(err error) bool {
	return isConstraint(err, codeConstraintForeignKey)
}
