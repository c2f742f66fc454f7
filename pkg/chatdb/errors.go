package chatdb

import "errors"

var (
	// ErrNotFound is returned when a single-record lookup matches no row.
	ErrNotFound = errors.New("chatdb: no such record")

	// ErrBadRow is returned when a row is missing a required column
	// (rowid, guid) or a column has an unexpected shape. It indicates a
	// schema mismatch and always aborts the current fetch.
	ErrBadRow = errors.New("chatdb: malformed row")
)
