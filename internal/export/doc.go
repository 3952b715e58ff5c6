// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes reports of plan runs.
//
// A report carries the request, the model's analysis, every step with its
// latest outcome, and the full append-only result log, so a run can be
// reviewed or attached to a ticket after the fact.
//
// # Supported Formats
//
//   - Markdown: human-readable, with YAML frontmatter
//   - JSON: the persisted plan, byte-for-byte re-loadable
//   - HTML: a single self-contained page
//
// # Usage
//
//	exp, err := export.ForFormat("md", nil)
//	path, err := export.ToFile(p, exp, &export.Options{OutputDir: "."})
package export
