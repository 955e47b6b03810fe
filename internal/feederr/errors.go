// Package feederr defines the error taxonomy shared by feeds, fetchers and the
// feed-tree builder.
package feederr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrFetch marks upstream network, HTTP or payload failures during Update.
	ErrFetch = errors.New("fetch failed")
	// ErrNotFound marks historical or TWAP lookups that available data cannot satisfy.
	ErrNotFound = errors.New("price not found")
	// ErrParse marks malformed ancillary override text or expression syntax.
	ErrParse = errors.New("parse error")
	// ErrConfig marks an invalid feed-tree configuration.
	ErrConfig = errors.New("invalid feed configuration")
)

// FetchKind classifies upstream failures; vendors fail in different shapes.
type FetchKind string

const (
	FetchNetwork      FetchKind = "network"
	FetchTimeout      FetchKind = "timeout"
	FetchStatus       FetchKind = "status"
	FetchDecode       FetchKind = "decode"
	FetchMissingField FetchKind = "missing_field"
)

// FetchError describes a failed upstream request.
type FetchError struct {
	Kind       FetchKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s", e.Kind)
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrFetch and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}

// NewFetchError builds a FetchError, promoting context deadlines to FetchTimeout.
func NewFetchError(kind FetchKind, url string, err error) *FetchError {
	if kind == FetchNetwork && errors.Is(err, context.DeadlineExceeded) {
		kind = FetchTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}

// StatusError reports a non-2xx upstream response.
func StatusError(url string, status int, body string) *FetchError {
	var err error
	if body != "" {
		err = errors.New(body)
	}
	return &FetchError{Kind: FetchStatus, URL: url, StatusCode: status, Err: err}
}

// MissingField reports valid JSON lacking an expected field.
func MissingField(url, field string) *FetchError {
	return &FetchError{Kind: FetchMissingField, URL: url, Err: fmt.Errorf("missing or invalid field %q", field)}
}

// KindOf returns the FetchKind carried by err, or "" when err is not a FetchError.
func KindOf(err error) FetchKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// NotFound returns an error wrapping ErrNotFound.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Parse returns an error wrapping ErrParse.
func Parse(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// Config returns an error wrapping ErrConfig.
func Config(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func IsFetch(err error) bool    { return errors.Is(err, ErrFetch) }
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsParse(err error) bool    { return errors.Is(err, ErrParse) }
func IsConfig(err error) bool   { return errors.Is(err, ErrConfig) }
