// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates and saves the privatecode configuration.
//
// # Key Types
//
//   - Config: all settings, grouped by section
//   - ModelConfig: local model server and default model
//   - ExecutionConfig: command timeout, confirmation token, failure policy
//   - Watcher: reloads config.toml when it is edited
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (PRIVATECODE_*, NO_COLOR)
//   - ~/.privatecode/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.ModelTimeout()
package config
