package catalog

import (
	"errors"
	"fmt"
)

// ErrInvalidRecord marks a record the store refuses to persist because a
// required field is missing or malformed.
var ErrInvalidRecord = errors.New("invalid record")

// ErrNoDownloadLink is returned when a mirror page has no acceptable link.
var ErrNoDownloadLink = errors.New("no download link")

// ErrQueueClosed is returned by Dequeue once a closed queue is drained.
var ErrQueueClosed = errors.New("queue closed")

// TransportError reports a network failure, timeout, or non-success status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StructuralError reports that an expected element, position, or attribute
// was absent from a page.
type StructuralError struct {
	Page   string
	Ref    string
	Field  string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s page %s: field %s: %s", e.Page, e.Ref, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s page: field %s: %s", e.Page, e.Field, e.Reason)
}

// FilesystemError reports a path creation or write failure.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// StoreError is fatal to the persistence phase.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ConfigError is fatal before any network activity begins.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsTransport reports whether err wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsStructural reports whether err wraps a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsConfig reports whether err wraps a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	var (
		te *TransportError
		se *StructuralError
		fe *FilesystemError
		st *StoreError
		ce *ConfigError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &se):
		return "structural"
	case errors.As(err, &fe):
		return "filesystem"
	case errors.As(err, &st):
		return "store"
	case errors.As(err, &ce):
		return "config"
	case errors.Is(err, ErrNoDownloadLink):
		return "no_link"
	case errors.Is(err, ErrInvalidRecord):
		return "invalid"
	default:
		return "other"
	}
}
