// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !unix && !windows

package fileops

func isDiskFull(error) bool { return false }

func isDirectory(error) bool { return false }
