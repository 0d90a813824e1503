package sealedlog

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrRejected indicates the classifier refused a payload. The concrete
	// error is a *RejectedError carrying the reason.
	ErrRejected = errors.New("payload rejected")

	// ErrIndexOutOfBounds indicates a read at or past the end of a sequence
	ErrIndexOutOfBounds = errors.New("index out of bounds")

	// ErrUnauthorized indicates an administrator-only call by someone else
	ErrUnauthorized = errors.New("caller is not the administrator")

	// ErrInvalidTarget indicates an attempt to hand the administrator role to the null identity
	ErrInvalidTarget = errors.New("invalid administrator target")

	// ErrKeyRecordNotFound indicates the key record was never initialized
	ErrKeyRecordNotFound = errors.New("key record not found")

	// ErrInstanceNotFound indicates the instance was never initialized
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrIndexConflict indicates a concurrent writer claimed the same index
	ErrIndexConflict = errors.New("message index conflict")

	// ErrObjectNotFound indicates a blob is missing from storage
	ErrObjectNotFound = errors.New("object not found")

	// ErrIntegrity indicates stored bytes no longer match their checksum
	ErrIntegrity = errors.New("stored payload failed integrity check")
)

// RejectedError is returned by Submit when the classifier refuses a payload.
type RejectedError struct {
	Reason Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("payload rejected: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// MessageError represents an error related to message log operations
type MessageError struct {
	Owner Identity
	Topic string
	Op    string
	Err   error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("message operation %s failed for %s/%q: %v", e.Op, e.Owner, e.Topic, e.Err)
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// RejectionReason extracts the classifier reason from err, if any.
func RejectionReason(err error) (Reason, bool) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason, true
	}
	return "", false
}
