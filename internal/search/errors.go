// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrInvalidScheme    = errors.New("only http and https schemes are allowed")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrResponseTooLarge = errors.New("response body too large")
	ErrEmptyQuery       = errors.New("empty search query")
)

// Error describes a failed search or fetch.
type Error struct {
	Op     string // "search" or "fetch"
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + " " + e.URL + ": "
	switch {
	case e.Status != 0:
		return msg + statusText(e.Status)
	case e.Err != nil:
		return msg + e.Err.Error()
	default:
		return msg + "failed"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request ran out of time.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(e.Err, &nerr) && nerr.Timeout()
}

func statusText(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not found (404); check that the URL is correct"
	case http.StatusForbidden:
		return "access forbidden (403); the site may block automated access"
	case http.StatusTooManyRequests:
		return "too many requests (429); the site is rate-limiting access"
	case http.StatusInternalServerError:
		return "server error (500); try again later"
	default:
		return fmt.Sprintf("HTTP status %d", status)
	}
}
