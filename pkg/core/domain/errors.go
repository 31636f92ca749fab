package domain

import "errors"

var (
	ErrValidation           = errors.New("validation error")
	ErrNotFound             = errors.New("invalid or expired link")
	ErrDuplicateToken       = errors.New("token already exists")
	ErrIssuanceFailed       = errors.New("could not issue a unique token")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrClickRecordingFailed = errors.New("click recording failed")
)

// StorageError wraps a driver failure so callers can match both
// ErrStorageUnavailable and the underlying error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + ErrStorageUnavailable.Error() + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

// Unavailable returns nil when err is nil.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
