// Package common defines sentinel errors shared by the pipeline jobs and
// their collaborators. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrProviderNotFound is returned when a donation references a provider
	// that is missing from the provider table.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrFetch wraps every failure to download image bytes. It is the only
	// validation-time error that is allowed to surface to the caller.
	ErrFetch = errors.New("image fetch failed")

	// ErrRunInProgress is returned when another run holds the job lock.
	ErrRunInProgress = errors.New("run already in progress")

	// Issuance errors.
	ErrNoNumbersAvailable = errors.New("no phone numbers available")
	ErrTokenExpired       = errors.New("token expired")
)
