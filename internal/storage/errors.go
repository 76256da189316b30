package storage

import "errors"

// ErrNotFound is returned when a query matched no rows, for example undoing
// a meal when the user has no logged meals.
var ErrNotFound = errors.New("storage: not found")
