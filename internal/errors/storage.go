package errors

import "errors"

type StorageCode string

const (
	CodeQuotaExceeded  StorageCode = "QUOTA_EXCEEDED"
	CodeParseError     StorageCode = "PARSE_ERROR"
	CodeNotAvailable   StorageCode = "NOT_AVAILABLE"
	CodeStorageUnknown StorageCode = "UNKNOWN"
)

type StorageError struct {
	Code StorageCode
	Key  string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return "storage " + string(e.Code) + " for key=" + e.Key
	}
	return "storage " + string(e.Code) + " for key=" + e.Key + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	var t *StorageError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrQuotaExceeded = &StorageError{Code: CodeQuotaExceeded}
	ErrParse         = &StorageError{Code: CodeParseError}
	ErrNotAvailable  = &StorageError{Code: CodeNotAvailable}
)
