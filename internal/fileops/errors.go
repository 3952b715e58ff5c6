// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package fileops

import (
	"errors"
	"io/fs"
)

// ErrorKind classifies a mutation failure.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindAlreadyExists
	KindNotFound
	KindPermissionDenied
	KindPathIsDirectory
	KindDiskFull
	KindBackupExists
	KindPatternNotFound
	KindOutsideRoot
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindNotFound:
		return "NotFound"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindPathIsDirectory:
		return "PathIsDirectory"
	case KindDiskFull:
		return "DiskFull"
	case KindBackupExists:
		return "BackupExists"
	case KindPatternNotFound:
		return "PatternNotFound"
	case KindOutsideRoot:
		return "OutsideRoot"
	default:
		return "IO"
	}
}

func (k ErrorKind) describe() string {
	switch k {
	case KindAlreadyExists:
		return "file already exists"
	case KindNotFound:
		return "file not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindPathIsDirectory:
		return "path is a directory"
	case KindDiskFull:
		return "disk full"
	case KindBackupExists:
		return "backup already exists; remove or rename it first"
	case KindPatternNotFound:
		return "text to replace was not found"
	case KindOutsideRoot:
		return "path is outside the working directory"
	default:
		return "i/o error"
	}
}

// Error is returned by every Engine operation.
type Error struct {
	Kind ErrorKind
	Op   string // "create", "write", "backup", "edit", "read"
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op + " " + e.Path + ": " + e.Kind.describe()
	if e.Err != nil && e.Kind == KindIO {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind, so errors.Is(err, ErrDiskFull) works for
// any *Error of that kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrPathIsDirectory  = &Error{Kind: KindPathIsDirectory}
	ErrDiskFull         = &Error{Kind: KindDiskFull}
	ErrBackupExists     = &Error{Kind: KindBackupExists}
	ErrPatternNotFound  = &Error{Kind: KindPatternNotFound}
	ErrOutsideRoot      = &Error{Kind: KindOutsideRoot}
)

// KindOf returns the kind of err, or KindIO if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}

// wrap converts an OS error into an *Error with the most specific kind.
func wrap(op, path string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	kind := KindIO
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, fs.ErrExist):
		kind = KindAlreadyExists
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	case isDiskFull(err):
		kind = KindDiskFull
	case isDirectory(err):
		kind = KindPathIsDirectory
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
