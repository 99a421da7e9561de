package kgstore

import "errors"

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = errors.New("kgstore: record not found")

// ErrInvalidRecord is declared for invalid records; no store method returns it.
var ErrInvalidRecord = errors.New("kgstore: invalid record")
