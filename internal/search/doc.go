// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search is the web backend: DuckDuckGo HTML search without an API
// key, and URL fetching reduced to readable text.
//
// All outbound requests share one rate limiter. Fetched pages are cut to
// MaxContentLength characters so they fit in a model prompt.
package search
