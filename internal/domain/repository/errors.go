package repository

import "errors"

var (
	// ErrEventNotFound is returned when a playback event cannot be found.
	ErrEventNotFound = errors.New("event not found")

	// ErrObjectNotFound is returned when an object cannot be found in storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the specified bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)
