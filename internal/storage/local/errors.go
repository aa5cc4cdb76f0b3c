package local

import "github.com/felixgeelhaar/pacer/internal/domain"

// ErrNotFound is returned when a record is not found. It matches
// domain.ErrNotFound with errors.Is.
var ErrNotFound = domain.ErrNotFound
