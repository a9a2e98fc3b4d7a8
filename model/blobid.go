package model

import (
	"github.com/google/uuid"
)

// NewBlobID generates a fresh random blob id
func NewBlobID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ParseBlobID validates a blob id and returns its canonical form
func ParseBlobID(blobID string) (string, error) {
	if len(blobID) == 0 || len(blobID) > 64 {
		return "", ErrInvalidBlobID
	}
	id, err := uuid.Parse(blobID)
	if err != nil {
		return "", ErrInvalidBlobID
	}
	return id.String(), nil
}
