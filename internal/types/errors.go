package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors by what the caller can do about them,
// not by where they were raised.
type ErrorKind uint8

const (
	// ErrBinder: user input can be fixed (unknown name, type mismatch).
	ErrBinder ErrorKind = iota
	// ErrCatalog: catalog invariant violation visible to the user.
	ErrCatalog
	// ErrCopy: ingest rule violation (PK null/dup, multiplicity, bad key).
	ErrCopy
	// ErrRuntime: storage/IO/invariant failure; marks the session read-only.
	ErrRuntime
	// ErrInterrupt: propagated cancellation; unwinds cleanly.
	ErrInterrupt
	// ErrNotImplemented: reachable but intentionally unsupported.
	ErrNotImplemented
)

func (k ErrorKind) String() string {
	switch k {
	case ErrBinder:
		return "Binder"
	case ErrCatalog:
		return "Catalog"
	case ErrCopy:
		return "Copy"
	case ErrRuntime:
		return "Runtime"
	case ErrInterrupt:
		return "Interrupt"
	case ErrNotImplemented:
		return "NotImplemented"
	}
	return "Unknown"
}

// Cursor locates an error in user input, when known.
type Cursor struct {
	File string
	Line uint64
	Col  uint64
}

// KuzuError is the error type crossing the engine's API boundary. No error
// ever crosses as a panic; callers convert at the edge.
type KuzuError struct {
	Kind   ErrorKind
	Msg    string
	Cursor *Cursor
}

func (e *KuzuError) Error() string {
	return fmt.Sprintf("%s exception: %s", e.Kind, e.Msg)
}

func NewBinderError(format string, args ...any) *KuzuError {
	return &KuzuError{Kind: ErrBinder, Msg: fmt.Sprintf(format, args...)}
}

func NewCatalogError(format string, args ...any) *KuzuError {
	return &KuzuError{Kind: ErrCatalog, Msg: fmt.Sprintf(format, args...)}
}

func NewCopyError(format string, args ...any) *KuzuError {
	return &KuzuError{Kind: ErrCopy, Msg: fmt.Sprintf(format, args...)}
}

func NewRuntimeError(format string, args ...any) *KuzuError {
	return &KuzuError{Kind: ErrRuntime, Msg: fmt.Sprintf(format, args...)}
}

func NewInterruptError() *KuzuError {
	return &KuzuError{Kind: ErrInterrupt, Msg: "interrupted"}
}

func NewNotImplementedError(feature string) *KuzuError {
	return &KuzuError{Kind: ErrNotImplemented, Msg: feature + " is not supported"}
}

// KindOf extracts the error kind, defaulting to ErrRuntime for errors that
// did not originate inside the engine.
func KindOf(err error) ErrorKind {
	var ke *KuzuError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ErrRuntime
}
