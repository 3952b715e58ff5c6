// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package safety

import (
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Classifier applies a Rules set to command strings. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	rules  Rules
	logger *slog.Logger
}

// NewClassifier returns a classifier over rules. A nil logger discards
// debug output to slog.Default().
func NewClassifier(rules Rules, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{rules: rules, logger: logger}
}

// Classify is NewClassifier(DefaultRules(), nil).Classify.
func Classify(command string) Classification {
	return NewClassifier(DefaultRules(), nil).Classify(command)
}

// Classify returns the risk classification of command.
func (c *Classifier) Classify(command string) Classification {
	result := c.classify(command)
	c.logger.Debug("command classified",
		"command", command,
		"tier", result.Tier.String(),
		"rule", result.MatchedRule)
	return result
}

// maxNesting bounds recursion into substitutions and shell -c scripts.
const maxNesting = 8

func (c *Classifier) classify(command string) Classification {
	return c.classifyDepth(command, 0)
}

func (c *Classifier) classifyDepth(command string, depth int) Classification {
	if depth > maxNesting {
		return caution("nesting", "command nests too deeply to inspect")
	}

	// NFKC folds look-alike characters (fullwidth letters, ligatures) so
	// they cannot dodge the deny-list.
	cmd := strings.TrimSpace(norm.NFKC.String(command))
	if cmd == "" {
		return caution("empty", "empty command")
	}

	lower := strings.ToLower(cmd)
	for _, p := range c.rules.DenyPatterns {
		if p.match(lower) {
			return dangerous(p.Rule(), p.Category)
		}
	}

	segs, err := splitSegments(cmd)
	if err != nil {
		// Still scan the raw words so an unparseable "sudo rm '..." is
		// not softened to caution.
		if hit, ok := c.denyTokens(strings.Fields(cmd)); ok {
			return hit
		}
		return caution("unparseable", "command could not be parsed safely: "+err.Error())
	}
	if len(segs) == 0 {
		return caution("empty", "empty command")
	}

	for _, s := range segs {
		if hit, ok := c.denyTokens(s.tokens); ok {
			return hit
		}
		if hit, ok := c.denyFlags(s.tokens); ok {
			return hit
		}
	}

	// Substitutions, subshells and "sh -c" scripts are command lines of
	// their own. A dangerous one decides the whole command.
	inner := make([]Classification, len(segs))
	for i, s := range segs {
		inner[i] = Classification{Tier: Safe}
		for _, sub := range append(s.nested, shellScripts(s.tokens)...) {
			v := c.classifyDepth(sub, depth+1)
			if v.Tier == Dangerous {
				return v
			}
			if v.Tier > inner[i].Tier {
				inner[i] = v
			}
		}
	}

	var verdict Classification
	for i, s := range segs {
		v := c.allowSegment(s)
		if inner[i].Tier > v.Tier {
			v = inner[i]
		}
		if i == 0 {
			verdict = v
		}
		if v.Tier != Safe {
			if len(segs) > 1 {
				v.Warning = "part " + strconv.Itoa(i+1) + " of chained command: " + v.Warning
			}
			return v
		}
	}
	return verdict
}

// shells run their -c (or /c, -Command) argument as a command line. The
// value marks POSIX-style flag parsing.
var shells = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true, "fish": true,
	"cmd": false, "powershell": false, "pwsh": false,
}

// shellScripts returns the command strings a shell invocation in tokens
// would run: the word after -c for POSIX shells, and everything after
// /c or -Command for cmd and PowerShell.
func shellScripts(tokens []string) []string {
	var scripts []string
	for i, tok := range tokens {
		prog := programName(tok)
		posix, ok := shells[prog]
		if !ok {
			continue
		}
		args := tokens[i+1:]
		for j, a := range args {
			la := strings.ToLower(a)
			switch {
			case prog == "cmd" && (la == "/c" || la == "/k"):
				scripts = append(scripts, strings.Join(args[j+1:], " "))
			case (prog == "powershell" || prog == "pwsh") && (la == "-c" || la == "-command"):
				scripts = append(scripts, strings.Join(args[j+1:], " "))
			case posix && isShortFlagWith(a, 'c') && j+1 < len(args):
				scripts = append(scripts, args[j+1])
			default:
				continue
			}
			break
		}
	}
	return scripts
}

// isShortFlagWith reports whether a is a bundle of single-letter flags
// ("-c", "-lc", "-ec") that includes flag.
func isShortFlagWith(a string, flag rune) bool {
	if len(a) < 2 || a[0] != '-' || a[1] == '-' {
		return false
	}
	return strings.ContainsRune(a[1:], flag)
}

func (c *Classifier) denyTokens(tokens []string) (Classification, bool) {
	for _, tok := range tokens {
		name := programName(tok)
		for prog, cat := range c.rules.DenyPrograms {
			if name == prog || (c.rules.variantDenied(prog) && strings.HasPrefix(name, prog+".")) {
				return dangerous(prog, cat), true
			}
		}
	}
	return Classification{}, false
}

func (c *Classifier) denyFlags(tokens []string) (Classification, bool) {
	for _, rule := range c.rules.DenyFlags {
		for i, tok := range tokens {
			if programName(tok) != rule.Program {
				continue
			}
			args := tokens[i+1:]
			if rule.Subcommand != "" && firstNonFlag(args) != rule.Subcommand {
				continue
			}
			for _, a := range args {
				for _, f := range rule.Flags {
					if a == f || strings.HasPrefix(a, f+"=") {
						name := rule.Program
						if rule.Subcommand != "" {
							name += " " + rule.Subcommand
						}
						return dangerous(name+" "+f, rule.Category), true
					}
				}
			}
		}
	}
	return Classification{}, false
}

func (c *Classifier) allowSegment(s segment) Classification {
	if len(s.tokens) == 0 {
		// A bare subshell; its contents were classified on their own.
		return Classification{Tier: Safe, MatchedRule: "subshell"}
	}
	program := programName(s.tokens[0])
	if !c.rules.allowed(program) {
		return caution("unlisted:"+program,
			"'"+program+"' is not on the allow-list; review before running")
	}
	if check, ok := c.rules.ArgChecks[program]; ok {
		if warn := check(s.tokens[1:]); warn != "" {
			return caution(program+" args", warn)
		}
	}
	if s.substitution {
		return caution("substitution", "command substitution runs nested commands that were not inspected")
	}
	if s.redirect {
		return caution("redirect", "output redirection can overwrite files")
	}
	return Classification{Tier: Safe, MatchedRule: program}
}
