// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PRIVATECODE_MODEL", "PRIVATECODE_OLLAMA_URL", "PRIVATECODE_TIMEOUT",
		"PRIVATECODE_COMMAND_TIMEOUT", "PRIVATECODE_STATE_DIR", "PRIVATECODE_WORKDIR", "NO_COLOR",
	} {
		t.Setenv(name, "")
	}
}

// TestConfig_ConcurrentAccess tests that Global() and SetGlobal()
// can be safely called concurrently without race conditions.
// Run with: go test -race -v ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := Default()
			c.Model.Name = "test-model"
			SetGlobal(c)
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, "test-model", Global().Model.Name)
}

func TestConfig_GlobalFallsBackToDefault(t *testing.T) {
	ResetGlobalForTesting()
	assert.Equal(t, Default().Model.Name, Global().Model.Name)
}

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://127.0.0.1:11434", cfg.Model.OllamaURL)
	assert.Equal(t, 500*time.Second, cfg.ModelTimeout())
	assert.Equal(t, 60*time.Second, cfg.CommandTimeout())
	assert.Equal(t, "yes, run it", cfg.Execution.DangerousToken)
	assert.True(t, cfg.Execution.ContinueOnFailure)
	assert.False(t, cfg.Execution.AssistedEdits)
	assert.Equal(t, ".bak", cfg.Files.BackupSuffix)
	assert.False(t, cfg.Display.ShowThinking)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{name: "valid default config", mutate: func(c *Config) {}},
		{name: "empty model", mutate: func(c *Config) { c.Model.Name = " " }, wantField: "model.name"},
		{name: "bad ollama url", mutate: func(c *Config) { c.Model.OllamaURL = "localhost:11434" }, wantField: "model.ollama_url"},
		{name: "zero model timeout", mutate: func(c *Config) { c.Model.TimeoutSecs = 0 }, wantField: "model.timeout"},
		{name: "command timeout too long", mutate: func(c *Config) { c.Execution.CommandTimeoutSecs = 100000 }, wantField: "execution.command_timeout"},
		{name: "empty dangerous token", mutate: func(c *Config) { c.Execution.DangerousToken = "" }, wantField: "execution.dangerous_token"},
		{name: "shell with blank element", mutate: func(c *Config) { c.Execution.Shell = []string{"sh", ""} }, wantField: "execution.shell"},
		{name: "missing working dir", mutate: func(c *Config) { c.Execution.WorkingDir = "/does/not/exist/anywhere" }, wantField: "execution.working_dir"},
		{name: "backup suffix with separator", mutate: func(c *Config) { c.Files.BackupSuffix = "/bak" }, wantField: "files.backup_suffix"},
		{name: "invalid color", mutate: func(c *Config) { c.Display.Color = "sometimes" }, wantField: "display.color"},
		{name: "too many results", mutate: func(c *Config) { c.Web.MaxResults = 11 }, wantField: "web.max_results"},
		{name: "zero rate", mutate: func(c *Config) { c.Web.RequestsPerSecond = 0 }, wantField: "web.requests_per_second"},
		{name: "blank deny pattern", mutate: func(c *Config) { c.Safety.ExtraDeny = []string{""} }, wantField: "safety.extra_deny"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestConfig_ValidateCollectsAll(t *testing.T) {
	c := Default()
	c.Model.Name = ""
	c.Display.Color = "rainbow"

	err := c.Validate()
	var errs ValidateErrors
	require.True(t, errors.As(err, &errs))
	assert.Len(t, errs, 2)
	assert.Contains(t, err.Error(), "model.name")
	assert.Contains(t, err.Error(), "display.color")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Model, cfg.Model)
	assert.Equal(t, dir, cfg.StateDir)
	assert.Equal(t, filepath.Join(dir, "plans"), cfg.PlansDir())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[model]
name = "llama3"

[execution]
shell = ["/bin/bash", "-c"]
continue_on_failure = false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.Model.Name)
	assert.Equal(t, 500, cfg.Model.TimeoutSecs)
	assert.Equal(t, []string{"/bin/bash", "-c"}, cfg.Execution.Shell)
	assert.False(t, cfg.Execution.ContinueOnFailure)
	assert.Equal(t, "yes, run it", cfg.Execution.DangerousToken)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[model\nname="), 0o600))
	_, err := Load(bad)
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("[model]\nnmae = \"typo\"\n"), 0o600))
	_, err = Load(unknown)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "model.nmae", verr.Field)

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte("[display]\ncolor = \"loud\"\n"), 0o600))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "display.color")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRIVATECODE_MODEL", "env-model")
	t.Setenv("PRIVATECODE_TIMEOUT", "30")
	t.Setenv("PRIVATECODE_COMMAND_TIMEOUT", "5")
	t.Setenv("NO_COLOR", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Model.Name)
	assert.Equal(t, 30*time.Second, cfg.ModelTimeout())
	assert.Equal(t, 5*time.Second, cfg.CommandTimeout())
	assert.Equal(t, "never", cfg.Display.Color)

	t.Setenv("PRIVATECODE_TIMEOUT", "soon")
	_, err = Load(filepath.Join(t.TempDir(), "config.toml"))
	assert.ErrorContains(t, err, "PRIVATECODE_TIMEOUT")
}

func TestLoad_StateDirFromEnv(t *testing.T) {
	clearEnv(t)
	state := t.TempDir()
	t.Setenv("PRIVATECODE_STATE_DIR", state)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(state, "config.toml"), path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, state, cfg.StateDir)
	assert.Equal(t, filepath.Join(state, "privatecode.log"), cfg.LogPath())
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Model.Name = "saved"
	cfg.Safety.ExtraAllow = []string{"make test"}
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Model.Name)
	assert.Equal(t, []string{"make test"}, loaded.Safety.ExtraAllow)
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	val, err := cfg.Get("model.timeout")
	require.NoError(t, err)
	assert.Equal(t, 500, val)

	require.NoError(t, cfg.Set("model.name", "llama3"))
	require.NoError(t, cfg.Set("display.show_thinking", "on"))
	require.NoError(t, cfg.Set("execution.command_timeout", "90"))
	require.NoError(t, cfg.Set("web.requests_per_second", "2.5"))
	require.NoError(t, cfg.Set("safety.extra_deny", "curl , wget,"))

	assert.Equal(t, "llama3", cfg.Model.Name)
	assert.True(t, cfg.Display.ShowThinking)
	assert.Equal(t, 90, cfg.Execution.CommandTimeoutSecs)
	assert.Equal(t, 2.5, cfg.Web.RequestsPerSecond)
	assert.Equal(t, []string{"curl", "wget"}, cfg.Safety.ExtraDeny)

	_, err = cfg.Get("invalid.key")
	assert.Error(t, err)
	_, err = cfg.Get("model")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("model.timeout", "ten"))
	assert.Error(t, cfg.Set("display.markdown", "maybe"))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "model.name")
	assert.Contains(t, keys, "execution.assisted_edits")
	assert.Contains(t, keys, "safety.extra_allow")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestConfig_Clone(t *testing.T) {
	original := Default()
	original.Execution.Shell = []string{"sh", "-c"}

	clone := original.Clone()
	clone.Model.Name = "cloned"
	clone.Execution.Shell[0] = "bash"

	assert.Equal(t, Default().Model.Name, original.Model.Name)
	assert.Equal(t, "sh", original.Execution.Shell[0])
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Save(Default(), path))

	got := make(chan *Config, 4)
	w, err := Watch(path, func(c *Config, err error) {
		if err == nil {
			got <- c
		}
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	cfg := Default()
	cfg.Model.Name = "watched"
	require.NoError(t, Save(cfg, path))

	select {
	case c := <-got:
		assert.Equal(t, "watched", c.Model.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatch_ReportsInvalidEdit(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Save(Default(), path))

	errs := make(chan error, 4)
	w, err := Watch(path, func(c *Config, err error) {
		if err != nil {
			errs <- err
		}
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[display]\ncolor = \"loud\"\n"), 0o600))

	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "display.color")
	case <-time.After(5 * time.Second):
		t.Fatal("no error after invalid write")
	}
}
