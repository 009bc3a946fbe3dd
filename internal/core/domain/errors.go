package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller lacks permission for this action
	ErrForbidden = errors.New("forbidden")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates the AI service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrIngestionInProgress indicates another worker holds the source lock
	ErrIngestionInProgress = errors.New("ingestion already in progress")

	// ErrExtractionFailed indicates source bytes could not be turned into text
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrUnsupportedFormat indicates no extractor handles the declared type
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrQuotaExhausted is a single credential's rate-limit signal.
	// It is handled by key rotation and never returned from Embed.
	ErrQuotaExhausted = errors.New("credential quota exhausted")

	// ErrAllCredentialsExhausted indicates every credential slot is cooling down
	ErrAllCredentialsExhausted = errors.New("all credentials exhausted")

	// ErrDownloadFailed indicates a remote artifact could not be fetched
	ErrDownloadFailed = errors.New("download failed")

	// ErrDownloadNotFound indicates the remote artifact definitively does not exist
	ErrDownloadNotFound = errors.New("download not found")

	// ErrStoreWriteFailed indicates a single chunk row could not be written
	ErrStoreWriteFailed = errors.New("store write failed")
)

// ExtractionError carries the file and underlying cause of a failed extraction.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extraction failed for %q", e.Filename)
	}
	return fmt.Sprintf("extraction failed for %q: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrExtractionFailed) match any ExtractionError.
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

// NewExtractionError wraps cause for filename.
func NewExtractionError(filename string, cause error) error {
	return &ExtractionError{Filename: filename, Err: cause}
}

// DownloadError describes a failed fetch. NotFound marks a permanent miss.
type DownloadError struct {
	URL        string
	StatusCode int
	NotFound   bool
	Attempts   int
	Err        error
}

func (e *DownloadError) Error() string {
	switch {
	case e.NotFound:
		return fmt.Sprintf("download %s: not found (status %d)", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("download %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("download %s failed after %d attempt(s): status %d", e.URL, e.Attempts, e.StatusCode)
	}
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Is(target error) bool {
	if target == ErrDownloadFailed {
		return true
	}
	return target == ErrDownloadNotFound && e.NotFound
}

// StoreWriteError identifies the chunk row that failed to persist.
type StoreWriteError struct {
	ChunkID string
	Index   int
	Err     error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("write chunk %d (%s): %v", e.Index, e.ChunkID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

func (e *StoreWriteError) Is(target error) bool {
	return target == ErrStoreWriteFailed
}
