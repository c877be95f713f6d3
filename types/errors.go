package types

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Sentinel kinds for task and batch failures.
// Use errors.Is(err, ErrXxx) to classify; use errors.As for details.
var (
	// ErrNotFound indicates the source root is missing.
	ErrNotFound = errors.New("not found")
	// ErrDecode indicates a source file could not be read or decoded.
	ErrDecode = errors.New("decode failed")
	// ErrTransform indicates an invariant violation during resampling.
	ErrTransform = errors.New("transform failed")
	// ErrEncode indicates the output could not be encoded.
	ErrEncode = errors.New("encode failed")
	// ErrIO indicates a filesystem failure on the destination.
	ErrIO = errors.New("i/o failed")
)

// NotFoundError is returned when the source root does not exist.
// It is fatal to the whole batch.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source root %s: %v", e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DecodeError is returned when one source file is unreadable or corrupt.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// TransformError is returned when resampling cannot produce a buffer.
type TransformError struct {
	Path string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Path, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Is matches ErrTransform.
func (e *TransformError) Is(target error) bool { return target == ErrTransform }

// EncodeError is returned when the output buffer cannot be encoded.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Is matches ErrEncode.
func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

// IOErrorKind classifies filesystem failures.
type IOErrorKind string

// IO error kinds.
const (
	IOPermission IOErrorKind = "permission"
	IODiskFull   IOErrorKind = "disk_full"
	IONotFound   IOErrorKind = "not_found"
	IOOther      IOErrorKind = "other"
)

// IOError is returned when the destination cannot be written.
type IOError struct {
	// Op is the failed operation (create, write, sync, rename, mkdir, clean).
	Op   string
	Path string
	Kind IOErrorKind
	Err  error
}

// NewIOError classifies err and wraps it.
func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Kind: ClassifyIO(err), Err: err}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is matches ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// ClassifyIO maps a filesystem error to its kind.
func ClassifyIO(err error) IOErrorKind {
	switch {
	case err == nil:
		return IOOther
	case errors.Is(err, fs.ErrPermission):
		return IOPermission
	case errors.Is(err, syscall.ENOSPC):
		return IODiskFull
	case errors.Is(err, fs.ErrNotExist):
		return IONotFound
	default:
		return IOOther
	}
}

// ErrorKind returns a stable label for err, used as a metrics dimension
// and in reports.
func ErrorKind(err error) string {
	var ioErr *IOError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrTransform):
		return "transform"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.As(err, &ioErr):
		return "io_" + string(ioErr.Kind)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
