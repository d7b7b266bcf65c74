/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package errors

import (
	"errors"
	"fmt"
)

var (
	transientType = &transient{} //nolint:gochecknoglobals

	invalidRequestType = &badRequest{} //nolint:gochecknoglobals

	// ErrContentNotFound is used to indicate that content at a given address could not be found.
	ErrContentNotFound = errors.New("content not found")
)

// Kind classifies an error by the failure it represents. The request pipeline maps kinds
// to HTTP statuses and the worker loops use them to decide whether a task is retriable.
type Kind string

const (
	// KindURL indicates that a URL had a disallowed scheme or tripped the private-address guard.
	KindURL Kind = "url"
	// KindFetch indicates a non-2xx response from a remote source.
	KindFetch Kind = "fetch"
	// KindParse indicates that a document could not be parsed as the requested type.
	KindParse Kind = "parse"
	// KindSignature indicates an HTTP signature failure: missing headers, disallowed
	// algorithm, digest mismatch, time-window violation or a failed verification.
	KindSignature Kind = "signature"
	// KindRouting indicates that a URL builder was invoked for a route that has no
	// registered template.
	KindRouting Kind = "routing"
	// KindAuthorization indicates that the authorize predicate denied the request.
	KindAuthorization Kind = "authorization"
	// KindNotAcceptable indicates that content negotiation failed.
	KindNotAcceptable Kind = "not-acceptable"
	// KindCancelled indicates that an external cancellation fired before the operation completed.
	KindCancelled Kind = "cancelled"
)

// NewTransient returns a transient error that wraps the given error in order to indicate to the caller that a retry may
// resolve the problem, whereas a non-transient (persistent) error will always fail with the same outcome if retried.
func NewTransient(err error) error {
	return &transient{err: err}
}

// NewTransientf returns a transient error in order to indicate to the caller that a retry may resolve the problem,
// whereas a non-transient (persistent) error will always fail with the same outcome if retried.
func NewTransientf(format string, a ...interface{}) error {
	return &transient{err: fmt.Errorf(format, a...)}
}

// IsTransient returns true if the given error is a 'transient' error.
func IsTransient(err error) bool {
	return errors.As(err, &transientType)
}

// NewBadRequest returns a 'bad request' error that wraps the given error in order to indicate to the caller that
// the request was invalid.
func NewBadRequest(err error) error {
	return &badRequest{err: err}
}

// NewBadRequestf returns a 'bad request' error in order to indicate to the caller that the request was invalid.
func NewBadRequestf(format string, a ...interface{}) error {
	return &badRequest{err: fmt.Errorf(format, a...)}
}

// IsBadRequest returns true if the given error is a 'bad request' error.
func IsBadRequest(err error) bool {
	return errors.As(err, &invalidRequestType)
}

// New returns an error of the given kind.
func New(kind Kind, err error) error {
	return &kindError{kind: kind, err: err}
}

// Newf returns an error of the given kind using the given format and arguments.
func Newf(kind Kind, format string, a ...interface{}) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, a...)}
}

// GetKind returns the kind of the given error. If the error (or any error in its chain)
// does not carry a kind then an empty Kind is returned.
func GetKind(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}

	return ""
}

// IsKind returns true if the given error is of the given kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// NewFetch returns a 'fetch' kind error carrying the URL and HTTP status of the failed request.
func NewFetch(url string, status int, msg string) error {
	return New(KindFetch, &FetchError{url: url, status: status, msg: msg})
}

// FetchError is returned when a remote source responds with a non-2xx status.
type FetchError struct {
	url    string
	status int
	msg    string
}

// Error returns the error message.
func (e *FetchError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("fetch %s: status code %d: %s", e.url, e.status, e.msg)
	}

	return fmt.Sprintf("fetch %s: status code %d", e.url, e.status)
}

// URL returns the URL of the failed request.
func (e *FetchError) URL() string {
	return e.url
}

// Status returns the HTTP status of the failed request.
func (e *FetchError) Status() int {
	return e.status
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() error {
	return e.err
}

type transient struct {
	err error
}

func (e *transient) Error() string {
	return e.err.Error()
}

func (e *transient) Unwrap() error {
	return e.err
}

type badRequest struct {
	err error
}

func (e *badRequest) Error() string {
	return e.err.Error()
}

func (e *badRequest) Unwrap() error {
	return e.err
}
