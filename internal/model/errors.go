package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidProduct is returned when a product lacks a barcode
	ErrInvalidProduct = errors.New("product barcode is required")

	// ErrNotLoaded is returned when the history is used before Load completes
	ErrNotLoaded = errors.New("history not loaded")
)

// NetworkError is a transport failure or a non-2xx response during lookup
type NetworkError struct {
	Barcode    string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("lookup %s: unexpected status code: %d", e.Barcode, e.StatusCode)
	}
	return fmt.Sprintf("lookup %s: %v", e.Barcode, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NotFoundError means the remote database has no product for the barcode
type NotFoundError struct {
	Barcode string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.Barcode)
}

// MalformedDataError is a payload or persisted blob of unexpected shape
type MalformedDataError struct {
	Source string
	Err    error
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Source, e.Err)
}

func (e *MalformedDataError) Unwrap() error {
	return e.Err
}

// StorageError is a failure of the durable key-value collaborator
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsLookupFailure reports whether err is one of the non-fatal lookup kinds
func IsLookupFailure(err error) bool {
	var (
		netErr       *NetworkError
		notFoundErr  *NotFoundError
		malformedErr *MalformedDataError
	)
	return errors.As(err, &netErr) || errors.As(err, &notFoundErr) || errors.As(err, &malformedErr)
}

// LookupFailureKind names the failure for logs and events
func LookupFailureKind(err error) string {
	var (
		netErr       *NetworkError
		notFoundErr  *NotFoundError
		malformedErr *MalformedDataError
	)
	switch {
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.As(err, &malformedErr):
		return "malformed"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "unknown"
	}
}
