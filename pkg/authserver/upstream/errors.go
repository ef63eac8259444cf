// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingSubject is returned when the userinfo response has no subject.
var ErrMissingSubject = errors.New("upstream identity has no subject")

// Operation names the upstream call that failed.
type Operation string

// Upstream operations.
const (
	OperationToken    Operation = "token"
	OperationUserInfo Operation = "userinfo"
)

// Error is a failed upstream round trip together with the response the relay
// should return to the end user.
type Error struct {
	Op Operation

	// StatusCode is the status to return: the upstream status when it was an
	// error status, otherwise a generic gateway failure.
	StatusCode int

	// ContentType and Body are forwarded verbatim from upstream when
	// available, or describe the local failure otherwise.
	ContentType string
	Body        []byte

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s request failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s request failed with status %d", e.Op, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ServeHTTP writes the prepared error response.
func (e *Error) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	contentType := e.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.StatusCode)
	_, _ = w.Write(e.Body)
}

// newLocalError builds an Error for failures that never produced an upstream response.
func newLocalError(op Operation, status int, msg string, cause error) *Error {
	return &Error{
		Op:         op,
		StatusCode: status,
		Body:       []byte(msg),
		Err:        cause,
	}
}

// forwardedStatus maps an upstream status onto the status returned to the user.
func forwardedStatus(status int) int {
	if status >= http.StatusBadRequest {
		return status
	}
	return http.StatusBadGateway
}
