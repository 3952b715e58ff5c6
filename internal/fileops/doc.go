// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fileops is the file mutation engine: it creates, backs up, diffs
// and atomically rewrites files on behalf of plan steps.
//
// Guarantees:
//
//   - content is only ever replaced through a temp-file + rename, so a
//     failed or interrupted write leaves the original byte-for-byte intact
//   - an existing file is copied to a sibling backup (path + ".bak" by
//     default) before it is changed; an existing backup is never
//     overwritten, the write fails with ErrBackupExists instead
//   - backups are never deleted by the engine
//
// Every failure is an *Error whose Kind says what went wrong (NotFound,
// PermissionDenied, PathIsDirectory, DiskFull, ...). Use errors.Is with the
// Err* sentinels to test for a kind.
package fileops
