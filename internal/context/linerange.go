// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when the referenced path does not exist or is
	// not a regular file.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidRange is returned for malformed range specs.
	ErrInvalidRange = errors.New("invalid line range")

	// ErrFileTooLarge is returned when a file exceeds Resolver.MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// =============================================================================
// RANGE
// =============================================================================

// Range is an inclusive, 1-indexed line range. Zero means open: Start == 0
// reads from line 1 and End == 0 reads to the end of the file.
type Range struct {
	Start int
	End   int
}

// IsWhole reports whether r selects the entire file.
func (r Range) IsWhole() bool {
	return r.Start == 0 && r.End == 0
}

// String renders r in the same syntax ParseRange accepts.
func (r Range) String() string {
	switch {
	case r.IsWhole():
		return ""
	case r.Start == r.End:
		return strconv.Itoa(r.Start)
	case r.End == 0:
		return strconv.Itoa(r.Start) + "-"
	case r.Start == 0:
		return "-" + strconv.Itoa(r.End)
	default:
		return strconv.Itoa(r.Start) + "-" + strconv.Itoa(r.End)
	}
}

// ParseRange parses "N", "A-B", "A-", "-B" or "" (whole file).
func ParseRange(spec string) (Range, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Range{}, nil
	}

	before, after, hasDash := strings.Cut(spec, "-")
	if !hasDash {
		n, err := parseLine(spec)
		if err != nil {
			return Range{}, err
		}
		return Range{Start: n, End: n}, nil
	}

	if strings.TrimSpace(before) == "" && strings.TrimSpace(after) == "" {
		return Range{}, fmt.Errorf("%w: %q has no bounds", ErrInvalidRange, spec)
	}

	var r Range
	var err error
	if s := strings.TrimSpace(before); s != "" {
		if r.Start, err = parseLine(s); err != nil {
			return Range{}, err
		}
	}
	if s := strings.TrimSpace(after); s != "" {
		if r.End, err = parseLine(s); err != nil {
			return Range{}, err
		}
	}
	if r.Start != 0 && r.End != 0 && r.Start > r.End {
		return Range{}, fmt.Errorf("%w: end %d is before start %d", ErrInvalidRange, r.End, r.Start)
	}
	return r, nil
}

func parseLine(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a line number", ErrInvalidRange, s)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: line numbers start at 1, got %d", ErrInvalidRange, n)
	}
	return n, nil
}

// SplitRef separates "path:spec" into its path and range spec. The split
// happens at the last colon unless what follows it looks like part of a
// path (a separator, or a Windows drive prefix such as C:\).
func SplitRef(ref string) (path, spec string) {
	i := strings.LastIndexByte(ref, ':')
	if i < 0 {
		return ref, ""
	}
	suffix := ref[i+1:]
	if strings.ContainsAny(suffix, `/\`) {
		return ref, ""
	}
	if i == 1 && isDriveLetter(ref[0]) && suffix == "" {
		return ref, ""
	}
	return ref[:i], suffix
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver reads line ranges from files. The zero value reads relative paths
// against the process working directory with no size limit.
type Resolver struct {
	// WorkingDir anchors relative paths. Empty means the process cwd.
	WorkingDir string

	// MaxFileSize rejects larger files with ErrFileTooLarge. Zero disables it.
	MaxFileSize int64
}

// Resolve is Resolver{}.Resolve.
func Resolve(path, spec string) (string, error) {
	return Resolver{}.Resolve(path, spec)
}

// ResolveRef is Resolver{}.ResolveRef.
func ResolveRef(ref string) (string, error) {
	return Resolver{}.ResolveRef(ref)
}

// ResolveRef resolves a combined "path:spec" reference.
func (r Resolver) ResolveRef(ref string) (string, error) {
	path, spec := SplitRef(ref)
	return r.Resolve(path, spec)
}

// Resolve returns the lines of path selected by spec.
func (r Resolver) Resolve(path, spec string) (string, error) {
	rng, err := ParseRange(spec)
	if err != nil {
		return "", err
	}
	content, err := r.read(path)
	if err != nil {
		return "", err
	}
	return Slice(content, rng), nil
}

// Path returns path anchored at the resolver's working directory.
func (r Resolver) Path(path string) string {
	if r.WorkingDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.WorkingDir, path)
}

func (r Resolver) read(path string) (string, error) {
	full := r.Path(path)

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	if r.MaxFileSize > 0 && info.Size() > r.MaxFileSize {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, path, info.Size())
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}

// Slice selects the lines of content covered by rng. Both LF and CRLF
// terminators are recognised and preserved in the output.
func Slice(content string, rng Range) string {
	if rng.IsWhole() {
		return content
	}

	starts := lineStarts(content)
	total := len(starts)

	first := rng.Start
	if first == 0 {
		first = 1
	}
	last := rng.End
	if last == 0 || last > total {
		last = total
	}
	if first > total || first > last {
		return ""
	}

	begin := starts[first-1]
	end := len(content)
	if last < total {
		end = starts[last]
	}
	return content[begin:end]
}

// CountLines returns the number of lines in content. A trailing terminator
// does not start a new line.
func CountLines(content string) int {
	return len(lineStarts(content))
}

// lineStarts returns the byte offset at which each line begins.
func lineStarts(content string) []int {
	if content == "" {
		return nil
	}
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' && i+1 < len(content) {
			starts = append(starts, i+1)
		}
	}
	return starts
}
