package backend

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession    = errors.New("not signed in")
	ErrEmptyMessage = errors.New("message content is empty")
	ErrNoImage      = errors.New("no image selected")
	ErrNotFound     = errors.New("not found")
)

// AuthError is a rejection from the identity provider. Surfaced to the
// user inline, never retried automatically.
type AuthError struct {
	Code    string // provider code, e.g. EMAIL_NOT_FOUND
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("auth: %s", e.Code)
}

// StorageError is an object-store failure. It aborts the create-post flow
// before any record insert is attempted.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// QueryError is a read or write rejected by the data store. Logged; the
// in-memory view keeps its last-known-good snapshot.
type QueryError struct {
	Collection string
	Op         string
	Err        error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
