// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package safety

import (
	"fmt"
	"strings"
)

// Tier is the risk level of a command.
type Tier int

const (
	Safe Tier = iota
	Caution
	Dangerous
)

// String returns the lowercase name of the tier.
func (t Tier) String() string {
	switch t {
	case Safe:
		return "safe"
	case Caution:
		return "caution"
	case Dangerous:
		return "dangerous"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "safe":
		*t = Safe
	case "caution":
		*t = Caution
	case "dangerous":
		*t = Dangerous
	default:
		return fmt.Errorf("unknown risk tier %q", b)
	}
	return nil
}

// Category groups deny rules by the kind of harm they prevent.
type Category string

const (
	CategoryDestructive Category = "destructive filesystem operation"
	CategoryPrivilege   Category = "privilege escalation"
	CategoryRemoteExec  Category = "remote code execution"
	CategoryForcePush   Category = "force push"
	CategoryDevice      Category = "disk/device write"
	CategoryPower       Category = "system power"
	CategoryResource    Category = "resource exhaustion"
	CategoryCustom      Category = "user deny rule"
)

var categoryWarnings = map[Category]string{
	CategoryDestructive: "deletes or irreversibly overwrites files",
	CategoryPrivilege:   "runs with elevated privileges",
	CategoryRemoteExec:  "downloads and executes remote code",
	CategoryForcePush:   "rewrites remote git history",
	CategoryDevice:      "writes directly to a disk or block device",
	CategoryPower:       "shuts down or restarts the machine",
	CategoryResource:    "can exhaust system resources",
	CategoryCustom:      "matches a configured deny rule",
}

// Classification is the verdict for one command. It is recomputed on every
// call and never cached.
type Classification struct {
	Tier        Tier     `json:"risk_tier"`
	MatchedRule string   `json:"matched_rule"`
	Warning     string   `json:"warning_text"`
	Category    Category `json:"category,omitempty"`
}

// IsSafe reports whether the command was classified safe.
func (c Classification) IsSafe() bool { return c.Tier == Safe }

// IsDangerous reports whether the command was classified dangerous.
func (c Classification) IsDangerous() bool { return c.Tier == Dangerous }

func dangerous(rule string, cat Category) Classification {
	return Classification{
		Tier:        Dangerous,
		MatchedRule: rule,
		Category:    cat,
		Warning:     fmt.Sprintf("%s: %s (matched %q)", cat, categoryWarnings[cat], rule),
	}
}

func caution(rule, warning string) Classification {
	return Classification{Tier: Caution, MatchedRule: rule, Warning: warning}
}
