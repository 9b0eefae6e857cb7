// SPDX-License-Identifier: MIT

package detect

import (
	"errors"
	"fmt"
)

// ErrorKind classifies detector failures. Only transient resource errors are
// eligible for the fallback ladder.
type ErrorKind string

const (
	KindTransientResource ErrorKind = "transient_resource"
	KindInputDefect       ErrorKind = "input_defect"
	KindInternal          ErrorKind = "internal"
	KindExternal          ErrorKind = "external"
)

// Error is the typed failure every detector reports.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports an out-of-memory or device-busy condition.
func Transient(detail string, err error) *Error {
	return &Error{Kind: KindTransientResource, Detail: detail, Err: err}
}

// InputDefect reports a bad frame or missing audio.
func InputDefect(detail string, err error) *Error {
	return &Error{Kind: KindInputDefect, Detail: detail, Err: err}
}

// Internal reports an unexpected detector failure.
func Internal(detail string, err error) *Error {
	return &Error{Kind: KindInternal, Detail: detail, Err: err}
}

// External reports a failure of an external collaborator (the VL endpoint).
func External(detail string, err error) *Error {
	return &Error{Kind: KindExternal, Detail: detail, Err: err}
}

// KindOf extracts the error kind; unclassified errors count as internal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is eligible for the fallback ladder.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransientResource
}
