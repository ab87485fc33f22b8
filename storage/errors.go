package storage

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a StorageError.
type ErrorKind int

const (
	// ConfigurationError covers invalid settings: bad path, non-positive capacity, bad slot thread.
	ConfigurationError ErrorKind = iota + 1
	// IoError is a backing store read, write or flush failure.
	IoError
	// EngineStopped is returned for operations issued after shutdown started.
	EngineStopped
	// Corruption means on-disk data could not be decoded.
	Corruption
)

var (
	ErrConfiguration = errors.New("storage configuration error")
	ErrIO            = errors.New("storage io error")
	ErrEngineStopped = errors.New("storage engine has stopped")
	ErrCorruption    = errors.New("storage data corrupted")
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "configuration"
	case IoError:
		return "io"
	case EngineStopped:
		return "engine stopped"
	case Corruption:
		return "corruption"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case ConfigurationError:
		return ErrConfiguration
	case IoError:
		return ErrIO
	case EngineStopped:
		return ErrEngineStopped
	case Corruption:
		return ErrCorruption
	default:
		return nil
	}
}

// StorageError is the error type returned by every storage operation.
// Use errors.Is with the Err* sentinels to test the kind.
type StorageError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage %s: %s", e.Op, e.Kind.sentinel())
	}
	return fmt.Sprintf("storage %s: %s: %v", e.Op, e.Kind.sentinel(), e.Err)
}

func (e *StorageError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind ErrorKind, op string, err error) error {
	return &StorageError{Kind: kind, Op: op, Err: err}
}

func stoppedError(op string) error {
	return &StorageError{Kind: EngineStopped, Op: op}
}

// KindOf returns the kind of err, or 0 when err is not a StorageError.
func KindOf(err error) ErrorKind {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
