// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package fileops

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Legorobotdude/PrivateCode/internal/diff"
	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// DefaultBackupSuffix is appended to a path to name its backup.
const DefaultBackupSuffix = ".bak"

// DefaultFilePerm is used for files the engine creates.
const DefaultFilePerm os.FileMode = 0o644

// =============================================================================
// ENGINE
// =============================================================================

// Engine performs file mutations. The zero value is usable; New returns an
// engine with the defaults filled in explicitly.
type Engine struct {
	// BackupSuffix names backups as path+BackupSuffix. Empty means ".bak".
	BackupSuffix string

	// FilePerm is the mode for newly created files. Existing files keep theirs.
	FilePerm os.FileMode

	// DirPerm is the mode for parent directories created on demand.
	DirPerm os.FileMode

	// Root, when set, is the base for relative paths and every path must
	// stay inside it.
	Root string
}

// New returns an engine with default settings.
func New() *Engine {
	return &Engine{
		BackupSuffix: DefaultBackupSuffix,
		FilePerm:     DefaultFilePerm,
		DirPerm:      util.DefaultDirPerm,
	}
}

// Record describes one mutation (or, from Preview, one that would happen).
type Record struct {
	Path          string     `json:"path"`
	ExistedBefore bool       `json:"existed_before"`
	BackupPath    string     `json:"backup_path,omitempty"`
	Diff          *diff.Diff `json:"diff"`
}

// Summary is a one-line description suitable for a step result.
func (r *Record) Summary() string {
	if r == nil {
		return ""
	}
	s := r.Path + ": " + r.Diff.Summary()
	if r.BackupPath != "" {
		s += " (backup: " + r.BackupPath + ")"
	}
	return s
}

// Unified renders the record's diff in unified format.
func (r *Record) Unified() string {
	if r == nil || r.Diff == nil {
		return ""
	}
	return diff.FormatUnified(r.Diff)
}

func (e *Engine) suffix() string {
	if e.BackupSuffix == "" {
		return DefaultBackupSuffix
	}
	return e.BackupSuffix
}

func (e *Engine) filePerm() os.FileMode {
	if e.FilePerm == 0 {
		return DefaultFilePerm
	}
	return e.FilePerm
}

func (e *Engine) dirPerm() os.FileMode {
	if e.DirPerm == 0 {
		return util.DefaultDirPerm
	}
	return e.DirPerm
}

// BackupPath returns where path's backup would be written.
func (e *Engine) BackupPath(path string) string {
	return path + e.suffix()
}

// Abs resolves path the way every operation does, applying Root.
func (e *Engine) Abs(path string) (string, error) {
	return e.resolve("resolve", path)
}

func (e *Engine) resolve(op, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &Error{Kind: KindNotFound, Op: op, Path: path, Err: errors.New("empty path")}
	}
	if e.Root == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", wrap(op, path, err)
		}
		return abs, nil
	}

	root, err := filepath.Abs(e.Root)
	if err != nil {
		return "", wrap(op, e.Root, err)
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &Error{Kind: KindOutsideRoot, Op: op, Path: path}
	}
	return abs, nil
}

// stat returns the file's info, nil if it does not exist.
func (e *Engine) stat(op, abs string) (fs.FileInfo, error) {
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, wrap(op, abs, err)
	}
	if info.IsDir() {
		return nil, &Error{Kind: KindPathIsDirectory, Op: op, Path: abs}
	}
	return info, nil
}

// Exists reports whether path names an existing regular file.
func (e *Engine) Exists(path string) (bool, error) {
	abs, err := e.resolve("stat", path)
	if err != nil {
		return false, err
	}
	info, err := e.stat("stat", abs)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// Read returns the current content of path.
func (e *Engine) Read(path string) (string, error) {
	abs, err := e.resolve("read", path)
	if err != nil {
		return "", err
	}
	info, err := e.stat("read", abs)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", &Error{Kind: KindNotFound, Op: "read", Path: abs}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", wrap("read", abs, err)
	}
	return string(data), nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create writes a new file. If the path exists and overwrite is false it
// fails with ErrAlreadyExists; with overwrite it behaves like Write, so the
// old content is backed up first.
func (e *Engine) Create(path, content string, overwrite bool) (*Record, error) {
	abs, err := e.resolve("create", path)
	if err != nil {
		return nil, err
	}
	info, err := e.stat("create", abs)
	if err != nil {
		return nil, err
	}
	if info != nil {
		if !overwrite {
			return nil, &Error{Kind: KindAlreadyExists, Op: "create", Path: abs}
		}
		return e.write(abs, content)
	}

	if err := util.AtomicWriteFileWithDir(abs, []byte(content), e.filePerm(), e.dirPerm()); err != nil {
		return nil, wrap("create", abs, err)
	}
	return &Record{
		Path: abs,
		Diff: diff.Compute(abs, "", content),
	}, nil
}

// Write replaces the content of an existing file after backing it up.
func (e *Engine) Write(path, content string) (*Record, error) {
	abs, err := e.resolve("write", path)
	if err != nil {
		return nil, err
	}
	return e.write(abs, content)
}

func (e *Engine) write(abs, content string) (*Record, error) {
	info, err := e.stat("write", abs)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, &Error{Kind: KindNotFound, Op: "write", Path: abs}
	}
	old, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrap("read", abs, err)
	}

	backupPath, err := e.backup(abs, old, info.Mode().Perm())
	if err != nil {
		return nil, err
	}

	if err := util.AtomicWriteFileWithDir(abs, []byte(content), info.Mode().Perm(), e.dirPerm()); err != nil {
		// The original is untouched; drop the fresh backup so a retry
		// is not blocked by ErrBackupExists.
		_ = os.Remove(backupPath)
		return nil, wrap("write", abs, err)
	}

	return &Record{
		Path:          abs,
		ExistedBefore: true,
		BackupPath:    backupPath,
		Diff:          diff.Compute(abs, string(old), content),
	}, nil
}

// backup copies data to abs+suffix. It refuses to replace an existing backup.
func (e *Engine) backup(abs string, data []byte, perm os.FileMode) (string, error) {
	backupPath := e.BackupPath(abs)
	f, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", &Error{Kind: KindBackupExists, Op: "backup", Path: backupPath, Err: err}
		}
		return "", wrap("backup", backupPath, err)
	}

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(backupPath)
		return "", wrap("backup", backupPath, err)
	}
	return backupPath, nil
}

// Apply makes path hold content: an existing file is backed up and
// rewritten, a missing one is created.
func (e *Engine) Apply(path, content string) (*Record, error) {
	abs, err := e.resolve("apply", path)
	if err != nil {
		return nil, err
	}
	info, err := e.stat("apply", abs)
	if err != nil {
		return nil, err
	}
	if info != nil {
		return e.write(abs, content)
	}
	return e.Create(abs, content, false)
}

// Edit replaces the first occurrence of pattern in path with replacement.
func (e *Engine) Edit(path, pattern, replacement string) (*Record, error) {
	abs, err := e.resolve("edit", path)
	if err != nil {
		return nil, err
	}
	updated, err := e.edited(abs, pattern, replacement)
	if err != nil {
		return nil, err
	}
	return e.write(abs, updated)
}

func (e *Engine) edited(abs, pattern, replacement string) (string, error) {
	info, err := e.stat("edit", abs)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", &Error{Kind: KindNotFound, Op: "edit", Path: abs}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", wrap("read", abs, err)
	}
	content := string(data)
	if pattern == "" || !strings.Contains(content, pattern) {
		return "", &Error{Kind: KindPatternNotFound, Op: "edit", Path: abs}
	}
	return strings.Replace(content, pattern, replacement, 1), nil
}

// =============================================================================
// PREVIEW
// =============================================================================

// Preview returns the record Apply would produce without writing anything.
func (e *Engine) Preview(path, content string) (*Record, error) {
	abs, err := e.resolve("preview", path)
	if err != nil {
		return nil, err
	}
	info, err := e.stat("preview", abs)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return &Record{Path: abs, Diff: diff.Compute(abs, "", content)}, nil
	}
	old, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrap("read", abs, err)
	}
	return &Record{
		Path:          abs,
		ExistedBefore: true,
		BackupPath:    e.BackupPath(abs),
		Diff:          diff.Compute(abs, string(old), content),
	}, nil
}

// PreviewEdit returns the record Edit would produce without writing anything.
func (e *Engine) PreviewEdit(path, pattern, replacement string) (*Record, error) {
	abs, err := e.resolve("preview", path)
	if err != nil {
		return nil, err
	}
	updated, err := e.edited(abs, pattern, replacement)
	if err != nil {
		return nil, err
	}
	return e.Preview(abs, updated)
}

// Diff groups the line changes between two texts into hunks.
func (e *Engine) Diff(oldContent, newContent string) []diff.Hunk {
	return diff.Hunks(oldContent, newContent)
}
