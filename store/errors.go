package store

import (
	"errors"
	"fmt"
)

var (
	ErrIO                = errors.New("store: io failure")
	ErrParse             = errors.New("store: parse failed")
	ErrSerialize         = errors.New("store: serialize failed")
	ErrSchema            = errors.New("store: version-code missing")
	ErrSchemaVersion     = errors.New("store: need to upgrade the app to migrate")
	ErrMigrationRequired = errors.New("store: need to migrate the database")
	ErrInvariant         = errors.New("store: document invariant violated")
)

// InvariantError reports a document that breaks ID uniqueness or
// referential integrity. It matches ErrInvariant with errors.Is.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvariant, e.Reason)
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}
