// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package safety

import (
	"regexp"
	"strings"
)

// =============================================================================
// RULE TYPES
// =============================================================================

// Pattern is a deny rule matched against the whole lowercased command.
// Exactly one of Substring or Regexp is set.
type Pattern struct {
	Substring string
	Regexp    *regexp.Regexp
	Category  Category
}

// Rule returns the text reported as MatchedRule.
func (p Pattern) Rule() string {
	if p.Regexp != nil {
		return p.Regexp.String()
	}
	return p.Substring
}

func (p Pattern) match(lower string) bool {
	if p.Regexp != nil {
		return p.Regexp.MatchString(lower)
	}
	return p.Substring != "" && strings.Contains(lower, p.Substring)
}

// FlagRule marks a program dangerous when invoked with one of Flags,
// optionally only for a subcommand (git push --force).
type FlagRule struct {
	Program    string
	Subcommand string
	Flags      []string
	Category   Category
}

// ArgCheck inspects the arguments of an allow-listed program. A non-empty
// return is a warning that downgrades the command to caution.
type ArgCheck func(args []string) string

// Rules is the complete rule set a Classifier applies.
type Rules struct {
	// Allow lists programs whose invocation is safe by default. Matching is
	// against the first token only.
	Allow []string

	// DenyPrograms marks programs dangerous wherever they appear as a token.
	DenyPrograms map[string]Category

	// DenyVariants lists deny programs whose dotted variants are denied
	// too: "mkfs" also matches "mkfs.ext4". Other names match exactly, so
	// "rm.txt" is just a file.
	DenyVariants []string

	// DenyPatterns are matched against the whole command string.
	DenyPatterns []Pattern

	// DenyFlags match a program token followed by a flag in the same segment.
	DenyFlags []FlagRule

	// ArgChecks refine allow-listed programs.
	ArgChecks map[string]ArgCheck
}

// With returns a copy of r extended with extra allow-listed programs and
// extra deny substrings. r itself is not modified.
func (r Rules) With(allow, deny []string) Rules {
	out := r
	out.Allow = append(append([]string(nil), r.Allow...), allow...)
	out.DenyPatterns = append([]Pattern(nil), r.DenyPatterns...)
	for _, d := range deny {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		out.DenyPatterns = append(out.DenyPatterns, Pattern{Substring: d, Category: CategoryCustom})
	}
	return out
}

func (r Rules) variantDenied(program string) bool {
	for _, v := range r.DenyVariants {
		if v == program {
			return true
		}
	}
	return false
}

func (r Rules) allowed(program string) bool {
	for _, a := range r.Allow {
		if strings.EqualFold(a, program) {
			return true
		}
	}
	return false
}

// =============================================================================
// DEFAULT RULES
// =============================================================================

// DefaultAllow is the built-in allow-list: interpreters, build tools and
// read-only inspection commands.
var DefaultAllow = []string{
	"python", "python3", "node", "npm", "npx", "git",
	"ls", "dir", "cd", "pwd", "type", "cat", "head", "tail", "more",
	"grep", "findstr", "find", "sort", "wc", "diff", "echo", "test",
	"make", "dotnet", "gradle", "mvn", "cargo", "rustc", "go", "pytest",
	"pip", "pip3",
}

// DefaultDenyVariants are the filesystem tools shipped as name.fstype.
var DefaultDenyVariants = []string{"mkfs", "mke2fs", "mkswap"}

// DefaultDenyPrograms are programs that are dangerous in any position.
var DefaultDenyPrograms = map[string]Category{
	"rm":       CategoryDestructive,
	"del":      CategoryDestructive,
	"erase":    CategoryDestructive,
	"rmdir":    CategoryDestructive,
	"rd":       CategoryDestructive,
	"shred":    CategoryDestructive,
	"srm":      CategoryDestructive,
	"format":   CategoryDevice,
	"mkfs":     CategoryDevice,
	"mke2fs":   CategoryDevice,
	"mkswap":   CategoryDevice,
	"fdisk":    CategoryDevice,
	"gdisk":    CategoryDevice,
	"sfdisk":   CategoryDevice,
	"parted":   CategoryDevice,
	"wipefs":   CategoryDevice,
	"dd":       CategoryDevice,
	"diskpart": CategoryDevice,
	"sudo":     CategoryPrivilege,
	"su":       CategoryPrivilege,
	"doas":     CategoryPrivilege,
	"pkexec":   CategoryPrivilege,
	"runas":    CategoryPrivilege,
	"shutdown": CategoryPower,
	"reboot":   CategoryPower,
	"halt":     CategoryPower,
	"poweroff": CategoryPower,
}

// DefaultDenyPatterns catch dangerous constructs that are not a single token.
var DefaultDenyPatterns = []Pattern{
	{Regexp: regexp.MustCompile(`\b(curl|wget|iwr|invoke-webrequest)\b[^|]*\|\s*(sudo\s+)?(ba|z|da|k|fi)?sh\b`), Category: CategoryRemoteExec},
	{Regexp: regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(python3?|perl|ruby|node)\b`), Category: CategoryRemoteExec},
	{Regexp: regexp.MustCompile(`\b(iex|invoke-expression)\b`), Category: CategoryRemoteExec},
	{Regexp: regexp.MustCompile(`(ba|z)?sh\s+<\s*\(\s*(curl|wget)`), Category: CategoryRemoteExec},
	{Substring: "/dev/tcp/", Category: CategoryRemoteExec},
	{Substring: "--no-preserve-root", Category: CategoryDestructive},
	{Regexp: regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|disk|mmcblk)`), Category: CategoryDevice},
	{Regexp: regexp.MustCompile(`\bof=/dev/`), Category: CategoryDevice},
	{Regexp: regexp.MustCompile(`chmod\s+(-r\s+)?0?777\s+/(\s|$)`), Category: CategoryDestructive},
	{Regexp: regexp.MustCompile(`chown\s+-r\s+\S+\s+/(\s|$)`), Category: CategoryDestructive},
	{Regexp: regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), Category: CategoryResource},
}

// DefaultDenyFlags catch otherwise-allowed programs used destructively.
var DefaultDenyFlags = []FlagRule{
	{Program: "git", Subcommand: "push", Flags: []string{"--force", "-f", "--force-with-lease", "--mirror", "--delete"}, Category: CategoryForcePush},
	{Program: "find", Flags: []string{"-delete"}, Category: CategoryDestructive},
	{Program: "chmod", Flags: []string{"-R", "--recursive"}, Category: CategoryDestructive},
	{Program: "chown", Flags: []string{"-R", "--recursive"}, Category: CategoryDestructive},
}

// DefaultArgChecks mirror the review rules for allow-listed programs whose
// subcommands can discard work or publish it.
var DefaultArgChecks = map[string]ArgCheck{
	"git":     subcommandCheck("git", "clean", "reset", "push", "filter-branch", "checkout", "restore", "rebase"),
	"npm":     subcommandCheck("npm", "publish", "unpublish", "deprecate", "access", "adduser", "login"),
	"pip":     subcommandCheck("pip", "uninstall"),
	"pip3":    subcommandCheck("pip3", "uninstall"),
	"python":  pythonCheck,
	"python3": pythonCheck,
	"find":    findCheck,
	"cat":     traversalCheck,
	"type":    traversalCheck,
	"more":    traversalCheck,
	"head":    traversalCheck,
	"tail":    traversalCheck,
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		Allow:        append([]string(nil), DefaultAllow...),
		DenyPrograms: DefaultDenyPrograms,
		DenyVariants: append([]string(nil), DefaultDenyVariants...),
		DenyPatterns: append([]Pattern(nil), DefaultDenyPatterns...),
		DenyFlags:    append([]FlagRule(nil), DefaultDenyFlags...),
		ArgChecks:    DefaultArgChecks,
	}
}

// =============================================================================
// ARGUMENT CHECKS
// =============================================================================

func subcommandCheck(program string, review ...string) ArgCheck {
	return func(args []string) string {
		sub := firstNonFlag(args)
		for _, r := range review {
			if sub == r {
				return program + " " + sub + " can discard or publish work and needs review"
			}
		}
		return ""
	}
}

func pythonCheck(args []string) string {
	for _, a := range args {
		if a == "-c" || a == "--command" {
			return "inline python code (-c) is not inspected"
		}
	}
	if script := firstNonFlag(args); script != "" {
		if strings.Contains(script, "..") || strings.HasPrefix(script, "/") || strings.Contains(script, ":") {
			return "python script path " + script + " is outside the project"
		}
	}
	return ""
}

func findCheck(args []string) string {
	for _, a := range args {
		switch a {
		case "-exec", "-execdir", "-ok", "-delete":
			return "find " + a + " runs actions on every match"
		}
	}
	return ""
}

func traversalCheck(args []string) string {
	for _, a := range args {
		if strings.Contains(a, "..") {
			return "path traversal in argument " + a
		}
	}
	return ""
}

func firstNonFlag(args []string) string {
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	return ""
}
