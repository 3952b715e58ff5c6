// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runner executes shell commands for plan steps.
//
// A command runs under the platform shell (bash -c, or cmd /C on Windows)
// in its own process group. When the timeout expires or the context is
// cancelled the whole group is killed, so children spawned by the shell do
// not outlive the step.
package runner
