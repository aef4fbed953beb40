package storage

import "errors"

var (
	// ErrCredentialNotFound is returned when no active credential matches
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrUsageRecordNotFound is returned when a usage record is not found
	ErrUsageRecordNotFound = errors.New("usage record not found")
)
