// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists plans and keeps a queryable index of runs.
//
// Plan JSON files under <state_dir>/plans are the source of truth. The
// SQLite database <state_dir>/runs.db mirrors one summary row per plan so
// that history can be listed without decoding every file; it can be
// rebuilt from the JSON files at any time.
package store
