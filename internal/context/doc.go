// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package context turns file and URL references in user input into prompt
// context for the model.
//
// # Line Ranges
//
// A file reference may carry a line range after its last colon:
//
//	path        whole file
//	path:N      line N
//	path:A-B    lines A through B
//	path:A-     line A to end of file
//	path:-B     line 1 through B
//
// Lines are 1-indexed and inclusive. Resolve returns the exact bytes of the
// selected lines, terminators included, so "path:1-<last>" equals "path".
// A range that starts past the end of the file yields an empty string.
//
// # References
//
// ParseReferences extracts bracketed references from a query:
//
//	explain [main.go:10-20] using [https://pkg.go.dev/os]
//
// Expander resolves them and formats a context block for the prompt.
package context
