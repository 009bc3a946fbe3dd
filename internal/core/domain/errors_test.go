package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrAlreadyExists", ErrAlreadyExists, "already exists"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrUnauthorized", ErrUnauthorized, "unauthorized"},
		{"ErrForbidden", ErrForbidden, "forbidden"},
		{"ErrTokenExpired", ErrTokenExpired, "token expired"},
		{"ErrTokenInvalid", ErrTokenInvalid, "token invalid"},
		{"ErrExtractionFailed", ErrExtractionFailed, "extraction failed"},
		{"ErrAllCredentialsExhausted", ErrAllCredentialsExhausted, "all credentials exhausted"},
		{"ErrDownloadNotFound", ErrDownloadNotFound, "download not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	allErrors := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidInput,
		ErrUnauthorized,
		ErrForbidden,
		ErrExtractionFailed,
		ErrUnsupportedFormat,
		ErrQuotaExhausted,
		ErrAllCredentialsExhausted,
		ErrDownloadFailed,
		ErrDownloadNotFound,
		ErrStoreWriteFailed,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("errors %v and %v should be distinct", err1, err2)
			}
		}
	}
}

func TestExtractionError(t *testing.T) {
	cause := errors.New("bad zip header")
	err := fmt.Errorf("ingest: %w", NewExtractionError("notes.docx", cause))

	if !errors.Is(err, ErrExtractionFailed) {
		t.Error("expected ErrExtractionFailed to match")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via Unwrap")
	}

	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatal("expected errors.As to find ExtractionError")
	}
	if ee.Filename != "notes.docx" {
		t.Errorf("expected filename notes.docx, got %s", ee.Filename)
	}
}

func TestDownloadError(t *testing.T) {
	notFound := &DownloadError{URL: "https://example.org/a.pdf", StatusCode: 404, NotFound: true, Attempts: 1}
	if !errors.Is(notFound, ErrDownloadNotFound) {
		t.Error("expected not-found download to match ErrDownloadNotFound")
	}
	if !errors.Is(notFound, ErrDownloadFailed) {
		t.Error("expected not-found download to match ErrDownloadFailed")
	}

	transient := &DownloadError{URL: "https://example.org/a.pdf", StatusCode: 503, Attempts: 3}
	if errors.Is(transient, ErrDownloadNotFound) {
		t.Error("transient failure should not match ErrDownloadNotFound")
	}
	if !errors.Is(transient, ErrDownloadFailed) {
		t.Error("expected transient failure to match ErrDownloadFailed")
	}
}

func TestStoreWriteError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &StoreWriteError{ChunkID: "c-1", Index: 4, Err: cause}

	if !errors.Is(err, ErrStoreWriteFailed) {
		t.Error("expected ErrStoreWriteFailed to match")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
}
