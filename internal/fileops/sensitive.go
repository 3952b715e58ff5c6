// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package fileops

import (
	"path/filepath"
	"strings"
)

// SensitivePatterns are file names that usually hold secrets. Writing one is
// allowed but the confirmation prompt warns about it.
var SensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"credentials.json",
	"secrets.json",
	"secrets.yaml",
	"secrets.yml",
	".npmrc",
	".pypirc",
	".netrc",
	"id_rsa",
	"id_ed25519",
	"id_ecdsa",
	"authorized_keys",
	".aws/credentials",
	".ssh/*",
	".git/config",
}

// IsSensitive reports whether path matches one of SensitivePatterns.
func IsSensitive(path string) bool {
	clean := filepath.ToSlash(filepath.Clean(path))
	base := strings.ToLower(filepath.Base(clean))
	lower := strings.ToLower(clean)

	for _, pattern := range SensitivePatterns {
		if strings.Contains(pattern, "/") {
			dir, file := filepath.Split(pattern)
			if strings.Contains(lower, "/"+dir) || strings.HasPrefix(lower, dir) {
				if ok, _ := filepath.Match(file, base); ok {
					return true
				}
			}
			continue
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
