// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// ErrPlanNotFound is returned when no persisted plan matches.
var ErrPlanNotFound = errors.New("plan not found")

// Store persists a plan after every transition.
type Store interface {
	Save(p *Plan) error
}

// FileStore keeps one pretty-printed JSON file per plan in Dir.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir (usually <state_dir>/plans).
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the file a plan with the given id is saved to.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

// Save writes p atomically, replacing any previous version.
func (s *FileStore) Save(p *Plan) error {
	if p.ID == "" {
		return errors.New("save plan: missing id")
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", p.ID, err)
	}
	data = append(data, '\n')
	if err := util.AtomicWriteFile(s.Path(p.ID), data, 0o600); err != nil {
		return fmt.Errorf("save plan %s: %w", p.ID, err)
	}
	return nil
}

// Load finds a plan by id, or by path if ref names an existing file.
func (s *FileStore) Load(ref string) (*Plan, string, error) {
	if strings.HasSuffix(ref, ".json") || strings.ContainsAny(ref, `/\`) {
		if _, err := os.Stat(ref); err == nil {
			p, err := LoadFile(ref)
			return p, ref, err
		}
	}
	path := s.Path(ref)
	p, err := LoadFile(path)
	return p, path, err
}

// List returns every saved plan, newest first. Unreadable files are
// skipped and reported in the returned error slice.
func (s *FileStore) List() ([]*Plan, []error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, []error{err}
	}

	var plans []*Plan
	var errs []error
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		p, err := LoadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].CreatedAt.After(plans[j].CreatedAt)
	})
	return plans, errs
}

// LoadFile reads a plan file. A file holding a saved Plan (it has an "id")
// is restored as-is after re-validating its steps; anything else is handed
// to Parse, so a hand-written step array works too.
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, path)
		}
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var probe struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(data, &probe) != nil || probe.ID == "" {
		return Parse(string(data))
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &MalformedPlanError{Index: -1, Rule: "invalid plan file " + path, Err: err}
	}
	if len(p.Steps) == 0 {
		return nil, malformed(-1, "plan has no steps")
	}
	for i := range p.Steps {
		p.Steps[i].Index = i
		if err := p.Steps[i].Validate(); err != nil {
			return nil, err
		}
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	return &p, nil
}
