// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package safety classifies shell commands by risk before they are offered
// to the user for confirmation.
//
// Classification is static and pure. A command is:
//
//   - dangerous when any part of it matches the deny-list, wherever it
//     appears in the string
//   - safe when it is not dangerous and its first token is an allow-listed
//     program whose arguments pass that program's checks
//   - caution otherwise
//
// The deny-list is evaluated first and always wins: "git status && rm -rf /"
// is dangerous even though git is allow-listed.
package safety
