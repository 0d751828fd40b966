package documents

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrStorageWriteFailed   = errors.New("storage write failed")
	ErrRecordInsertFailed   = errors.New("record insert failed")
	ErrStorageDeleteFailed  = errors.New("storage delete failed")
	ErrSignedURLFailed      = errors.New("signed url failed")
	ErrInternal             = errors.New("internal error")
)
