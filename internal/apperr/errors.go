// Package apperr defines the error kinds shared by the storage layer, the
// synchronization engine and the transports.
package apperr

import "errors"

var (
	// ErrNotFound: the id is no longer (or never was) in the repository.
	ErrNotFound = errors.New("not found")
	// ErrValidation: the repository rejected the input.
	ErrValidation = errors.New("validation failed")
	// ErrTransport: network or I/O failure talking to the repository.
	ErrTransport = errors.New("transport failure")
	// ErrStorageRelocation: the new storage location is invalid or unreadable.
	ErrStorageRelocation = errors.New("storage relocation failed")
	ErrConflict          = errors.New("conflict")
)

// Kind is a stable, serialisable name for an error category.
type Kind string

const (
	KindNone              Kind = ""
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindTransport         Kind = "transport"
	KindStorageRelocation Kind = "storage_relocation"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal"
)

// KindOf classifies err. A nil error has KindNone; unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	// Relocation and transport wrap their causes, so they are checked first.
	case errors.Is(err, ErrStorageRelocation):
		return KindStorageRelocation
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// Sentinel returns the sentinel error for k, or nil for KindNone and KindInternal.
func (k Kind) Sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindTransport:
		return ErrTransport
	case KindStorageRelocation:
		return ErrStorageRelocation
	case KindConflict:
		return ErrConflict
	default:
		return nil
	}
}
