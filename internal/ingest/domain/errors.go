package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a run-fatal misconfiguration, e.g. an unknown
	// source code or a missing database connection.
	ErrConfiguration = errors.New("ingest: configuration error")
)

// MappingError marks a candidate that cannot be given a stable identity.
// Fatal for the single item, never for the run.
type MappingError struct {
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("ingest: mapping %s: %s", e.Field, e.Reason)
}

// IsMappingError reports whether err is (or wraps) a MappingError.
func IsMappingError(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}
