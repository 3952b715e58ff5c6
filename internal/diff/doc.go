// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff computes line-level differences between two versions of a
// file's content and groups them into hunks for display before a write.
//
// Usage:
//
//	d := diff.Compute("main.go", oldContent, newContent)
//	fmt.Println(d.Summary())          // "Modified +3 -1"
//	fmt.Print(diff.FormatUnified(d))  // --- a/main.go / +++ b/main.go / @@ ...
//
// Computation is pure: no I/O, no terminal styling. Styling belongs to the
// cli package.
package diff
