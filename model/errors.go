package model

import (
	"errors"
	"fmt"
)

// ValidationError is returned for requests that can never succeed as sent
type ValidationError interface {
	error
	UserMessage() string
}

type invalidInput struct {
	message string
}

func (e *invalidInput) Error() string {
	return e.message
}

func (e *invalidInput) UserMessage() string {
	return e.message
}

// NewValidationError creates a ValidationError carrying message back to the caller
func NewValidationError(message string) ValidationError {
	return &invalidInput{message: message}
}

var (
	// ErrInvalidBlobID : the id is not a well-formed blob id
	ErrInvalidBlobID = NewValidationError("Invalid id")
	// ErrMissingFile : upload request had no file part
	ErrMissingFile = NewValidationError("No file provided")
	// ErrBlobTooLarge : upload exceeds the configured maximum size
	ErrBlobTooLarge = NewValidationError("File exceeds maximum upload size")

	// ErrBlobNotFound : no index entry (or chunk) exists for the id
	ErrBlobNotFound = errors.New("File not found")
	// ErrBlobExists : an index entry already exists for the id
	ErrBlobExists = errors.New("blob id already exists")
	// ErrIDExhausted : id generation collided more often than allowed
	ErrIDExhausted = errors.New("failed to allocate a unique blob id")
)

// StorageError wraps a failure of the backing chunk store or index
type StorageError struct {
	Op     string
	BlobID string
	Err    error
}

// NewStorageError wraps err as a storage failure of op on blobID
func NewStorageError(op string, blobID string, err error) *StorageError {
	return &StorageError{Op: op, BlobID: blobID, Err: err}
}

func (e *StorageError) Error() string {
	if e.BlobID == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed for blob %s: %v", e.Op, e.BlobID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
