package signal

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is returned by SizeOf for Struct and out-of-range types.
	ErrUnknownType = errors.New("signal: unknown type")

	ErrNullBuffer          = errors.New("signal: null buffer")
	ErrUnknownSignal       = errors.New("signal: unknown signal")
	ErrArrayMismatch       = errors.New("signal: array length mismatch")
	ErrOutOfBounds         = errors.New("signal: read out of bounds")
	ErrTypeUnsupported     = errors.New("signal: type has no native mapping")
	ErrDestinationTooSmall = errors.New("signal: destination type narrower than signal")

	// ErrInvalidDescriptor is returned when a descriptor cannot describe a readable signal.
	ErrInvalidDescriptor = errors.New("signal: invalid descriptor")
)

// ExtractError carries the URL and detail of a failed read. Kind is one of the
// package sentinels, so errors.Is works on the result.
type ExtractError struct {
	Kind   error
	URL    string
	Detail string
}

func (e *ExtractError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v (url=%q)", e.Kind, e.URL)
	}
	return fmt.Sprintf("%v (url=%q): %s", e.Kind, e.URL, e.Detail)
}

func (e *ExtractError) Unwrap() error { return e.Kind }

func extractErr(kind error, url, format string, args ...any) error {
	return &ExtractError{Kind: kind, URL: url, Detail: fmt.Sprintf(format, args...)}
}
