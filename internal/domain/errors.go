// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict or an operation already in progress.
var ErrConflict = errors.New("conflict: resource is being modified by another request")

// ErrValidation indicates invalid input.
var ErrValidation = errors.New("validation failed")

// ErrForbidden indicates the actor may not operate on the resource.
var ErrForbidden = errors.New("forbidden")
