// privatecode - A local coding assistant backed by Ollama.
//
// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/Legorobotdude/PrivateCode/internal/cli"

func main() {
	cli.Execute()
}
