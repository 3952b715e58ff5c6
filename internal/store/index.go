// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/Legorobotdude/PrivateCode/internal/plan"
	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrRunNotFound = errors.New("run not found")
	ErrClosed      = errors.New("index is closed")
)

// =============================================================================
// RUN
// =============================================================================

// Run is the index row for one plan.
type Run struct {
	ID          string
	Description string
	Model       string
	Status      plan.Status
	Steps       int
	Succeeded   int
	Failed      int
	Skipped     int
	Path        string
	Created     time.Time
	Updated     time.Time
}

// Pending returns the number of steps without a terminal result.
func (r Run) Pending() int {
	return r.Steps - r.Succeeded - r.Failed - r.Skipped
}

// RunOf summarizes a plan saved at path.
func RunOf(p *plan.Plan, path string) Run {
	s, f, k, _ := p.Counts()
	return Run{
		ID:          p.ID,
		Description: p.Description,
		Model:       p.Model,
		Status:      p.Status,
		Steps:       len(p.Steps),
		Succeeded:   s,
		Failed:      f,
		Skipped:     k,
		Path:        path,
		Created:     p.CreatedAt,
		Updated:     p.UpdatedAt,
	}
}

// =============================================================================
// INDEX
// =============================================================================

// Index wraps the JSON plan store and mirrors every save into runs.db.
// It implements plan.Store.
type Index struct {
	plans *plan.FileStore
	log   *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) <stateDir>/runs.db and the plan
// directory <stateDir>/plans.
func Open(stateDir string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	plansDir := filepath.Join(stateDir, "plans")
	if err := os.MkdirAll(plansDir, util.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dbPath := filepath.Join(stateDir, "runs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Index{
		plans: plan.NewFileStore(plansDir),
		log:   logger.With("component", "store"),
		db:    db,
	}, nil
}

// Close releases the database.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.db == nil {
		return nil
	}
	err := idx.db.Close()
	idx.db = nil
	return err
}

// Plans returns the underlying JSON store.
func (idx *Index) Plans() *plan.FileStore {
	return idx.plans
}

// Save writes the plan file and then updates its index row. The file is
// authoritative: an index failure is logged and does not fail the save.
func (idx *Index) Save(p *plan.Plan) error {
	if err := idx.plans.Save(p); err != nil {
		return err
	}
	if err := idx.upsert(context.Background(), RunOf(p, idx.plans.Path(p.ID))); err != nil {
		idx.log.Warn("run index update failed", "plan", p.ID, "error", err)
	}
	return nil
}

// Load finds a plan by id or path.
func (idx *Index) Load(ref string) (*plan.Plan, string, error) {
	return idx.plans.Load(ref)
}

func (idx *Index) upsert(ctx context.Context, r Run) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.db == nil {
		return ErrClosed
	}

	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO runs (id, description, model, status, step_count, succeeded, failed, skipped, path, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			model = excluded.model,
			status = excluded.status,
			step_count = excluded.step_count,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			skipped = excluded.skipped,
			path = excluded.path,
			updated = excluded.updated`,
		r.ID, r.Description, r.Model, string(r.Status), r.Steps,
		r.Succeeded, r.Failed, r.Skipped, r.Path,
		r.Created.Unix(), r.Updated.Unix())
	return err
}

// =============================================================================
// QUERIES
// =============================================================================

const runColumns = `id, description, model, status, step_count, succeeded, failed, skipped, path, created, updated`

// Runs lists indexed runs, newest first. limit <= 0 means no limit.
func (idx *Index) Runs(ctx context.Context, limit int) ([]Run, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.db == nil {
		return nil, ErrClosed
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns the row for one plan id.
func (idx *Index) Get(ctx context.Context, id string) (Run, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.db == nil {
		return Run{}, ErrClosed
	}

	row := idx.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// Rebuild replaces the index with rows derived from the plan files. It
// returns the number of plans indexed; unreadable files are logged and skipped.
func (idx *Index) Rebuild(ctx context.Context) (int, error) {
	plans, errs := idx.plans.List()
	for _, err := range errs {
		idx.log.Warn("skipping unreadable plan file", "error", err)
	}

	idx.mu.Lock()
	if idx.db == nil {
		idx.mu.Unlock()
		return 0, ErrClosed
	}
	_, err := idx.db.ExecContext(ctx, `DELETE FROM runs`)
	idx.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}

	n := 0
	for _, p := range plans {
		if p.ID == "" {
			continue
		}
		if err := idx.upsert(ctx, RunOf(p, idx.plans.Path(p.ID))); err != nil {
			return n, fmt.Errorf("index plan %s: %w", p.ID, err)
		}
		n++
	}
	idx.log.Info("run index rebuilt", "plans", n)
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                Run
		model            sql.NullString
		status           string
		created, updated int64
	)
	err := s.Scan(&r.ID, &r.Description, &model, &status, &r.Steps,
		&r.Succeeded, &r.Failed, &r.Skipped, &r.Path, &created, &updated)
	if err != nil {
		return Run{}, err
	}
	r.Model = model.String
	r.Status = plan.Status(status)
	r.Created = time.Unix(created, 0)
	r.Updated = time.Unix(updated, 0)
	return r, nil
}
