// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across privatecode packages.
//
// # Atomic Writes
//
// AtomicWriteFile is the only way privatecode replaces file content. It writes
// to a temp file in the target's directory, fsyncs it, and renames it over the
// target, so readers observe either the old bytes or the new bytes.
//
// # Text
//
// TruncateRunes and TruncateWidth shorten strings for terminal display without
// splitting multi-byte characters. LineEnding reports the separator a file
// already uses so edits can keep it.
package util
