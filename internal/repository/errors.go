// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios. ErrNotFound signals a missing row, while ErrConflict
// signals that a compare-and-set update lost against a concurrent
// writer (e.g. a ticket changed owner between read and write).
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update cannot be performed because
// the row no longer matches the expected state. Services translate
// this into their own domain errors.
var ErrConflict = errors.New("conflict")
