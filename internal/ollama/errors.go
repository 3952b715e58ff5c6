// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// BackendErrorKind categorizes backend failures for handling.
type BackendErrorKind int

const (
	KindUnknown BackendErrorKind = iota
	KindTimeout
	KindConnectionRefused
	KindModelNotFound
	KindServerError
	KindMalformedResponse
)

func (k BackendErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionRefused:
		return "connection refused"
	case KindModelNotFound:
		return "model not found"
	case KindServerError:
		return "server error"
	case KindMalformedResponse:
		return "malformed response"
	default:
		return "unknown"
	}
}

// BackendError is returned by every Client operation that talks to the server.
type BackendError struct {
	Kind    BackendErrorKind
	Model   string
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	var b strings.Builder
	b.WriteString("ollama: ")
	b.WriteString(e.Kind.String())
	if e.Model != "" && e.Kind == KindModelNotFound {
		fmt.Fprintf(&b, " %q", e.Model)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel errors by kind.
func (e *BackendError) Is(target error) bool {
	t, ok := target.(*BackendError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Model == "" && t.Status == 0 && t.Message == "" && t.Err == nil
}

// Hint returns a short, user-actionable suggestion for the failure.
func (e *BackendError) Hint() string {
	switch e.Kind {
	case KindTimeout:
		return "the model took too long; raise the timeout ('timeout N') or use a smaller model"
	case KindConnectionRefused:
		return "is the local model server running? try 'ollama serve' (install from https://ollama.com/download)"
	case KindModelNotFound:
		if e.Model != "" {
			return fmt.Sprintf("pull it with 'ollama pull %s' or pick an installed model ('models')", e.Model)
		}
		return "pull a model with 'ollama pull <name>' or pick an installed model ('models')"
	case KindServerError:
		return "the model server reported an internal error; restarting 'ollama serve' may help"
	case KindMalformedResponse:
		return "the model server sent an unexpected reply; check that the server version is current"
	default:
		return ""
	}
}

// Sentinel errors for errors.Is checks.
var (
	ErrTimeout           = &BackendError{Kind: KindTimeout}
	ErrConnectionRefused = &BackendError{Kind: KindConnectionRefused}
	ErrModelNotFound     = &BackendError{Kind: KindModelNotFound}
	ErrServerError       = &BackendError{Kind: KindServerError}
	ErrMalformedResponse = &BackendError{Kind: KindMalformedResponse}
)

// KindOf returns the kind of a backend error, or KindUnknown.
func KindOf(err error) BackendErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	return KindOf(err) == KindModelNotFound
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// transportError classifies a failure from http.Client.Do. Cancellation of
// ctx is passed through untouched so that Ctrl-C is not reported as a
// backend fault; an expired deadline is a timeout.
func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &BackendError{Kind: KindTimeout, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &BackendError{Kind: KindTimeout, Err: err}
	}
	// Refused, reset and DNS failures all mean the server is unreachable.
	return &BackendError{Kind: KindConnectionRefused, Err: err}
}

// statusError classifies a non-200 reply. body is the server's error text.
func statusError(model string, status int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case status == 404, strings.Contains(lower, "not found") && strings.Contains(lower, "model"):
		return &BackendError{Kind: KindModelNotFound, Model: model, Status: status, Message: body}
	default:
		return &BackendError{Kind: KindServerError, Model: model, Status: status, Message: body}
	}
}
