// Package repository implements the credential store. The sentinel errors
// below let the service layer distinguish store outcomes without knowing
// which backend is in use.
package repository

import "errors"

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// ErrEmailExists is returned when an insert violates the unique email index,
// including when a concurrent insert won the race.
var ErrEmailExists = errors.New("email already exists")
