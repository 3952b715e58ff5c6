// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Legorobotdude/PrivateCode/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete privatecode configuration.
type Config struct {
	Model     ModelConfig     `toml:"model" json:"model"`
	Execution ExecutionConfig `toml:"execution" json:"execution"`
	Files     FilesConfig     `toml:"files" json:"files"`
	Display   DisplayConfig   `toml:"display" json:"display"`
	Web       WebConfig       `toml:"web" json:"web"`
	Safety    SafetyConfig    `toml:"safety" json:"safety"`

	// StateDir holds config.toml, plans/, runs.db and the log. It is
	// resolved at load time and never written to the file.
	StateDir string `toml:"-" json:"-"`
}

// ModelConfig configures the local model server.
type ModelConfig struct {
	// Name is the model used when none is given
	Name string `toml:"name" json:"name"`
	// OllamaURL is the Ollama API base URL
	OllamaURL string `toml:"ollama_url" json:"ollama_url"`
	// TimeoutSecs bounds one model request
	TimeoutSecs int `toml:"timeout" json:"timeout"`
	// AllowFallback switches to the first installed model when Name is missing
	AllowFallback bool `toml:"allow_fallback" json:"allow_fallback"`
}

// ExecutionConfig configures how plan steps run.
type ExecutionConfig struct {
	// CommandTimeoutSecs bounds one run_command or verify_output step
	CommandTimeoutSecs int `toml:"command_timeout" json:"command_timeout"`
	// DangerousToken must be typed exactly to run a dangerous command
	DangerousToken string `toml:"dangerous_token" json:"dangerous_token"`
	// ContinueOnFailure keeps executing after a failed step
	ContinueOnFailure bool `toml:"continue_on_failure" json:"continue_on_failure"`
	// EditRedirectsToCreate offers to create a missing edit target
	EditRedirectsToCreate bool `toml:"edit_redirects_to_create" json:"edit_redirects_to_create"`
	// AssistedEdits asks the model to redo an edit whose text to replace is gone
	AssistedEdits bool `toml:"assisted_edits" json:"assisted_edits"`
	// Shell is the interpreter prefix, e.g. ["/bin/sh", "-c"]; empty means the platform default
	Shell []string `toml:"shell" json:"shell"`
	// WorkingDir is where commands run and relative paths resolve; empty means the current directory
	WorkingDir string `toml:"working_dir" json:"working_dir"`
}

// FilesConfig configures file changes.
type FilesConfig struct {
	// BackupSuffix is appended to a file's path to name its backup
	BackupSuffix string `toml:"backup_suffix" json:"backup_suffix"`
}

// DisplayConfig configures terminal output.
type DisplayConfig struct {
	// ShowThinking displays model <think> blocks
	ShowThinking bool `toml:"show_thinking" json:"show_thinking"`
	// ThinkingMaxLength truncates displayed thinking blocks
	ThinkingMaxLength int `toml:"thinking_max_length" json:"thinking_max_length"`
	// Markdown renders model replies as terminal markdown
	Markdown bool `toml:"markdown" json:"markdown"`
	// Color is "auto", "always" or "never"
	Color string `toml:"color" json:"color"`
}

// WebConfig configures search and fetch.
type WebConfig struct {
	MaxResults        int     `toml:"max_results" json:"max_results"`
	MaxContentLength  int     `toml:"max_content_length" json:"max_content_length"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	UserAgent         string  `toml:"user_agent" json:"user_agent"`
}

// SafetyConfig extends the built-in command classification rules.
type SafetyConfig struct {
	// ExtraAllow are command prefixes classified safe
	ExtraAllow []string `toml:"extra_allow" json:"extra_allow"`
	// ExtraDeny are substrings classified dangerous
	ExtraDeny []string `toml:"extra_deny" json:"extra_deny"`
}

// ModelTimeout returns the model request timeout.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSecs) * time.Second
}

// CommandTimeout returns the per-command timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Execution.CommandTimeoutSecs) * time.Second
}

// PlansDir returns where plan files are kept.
func (c *Config) PlansDir() string {
	return filepath.Join(c.StateDir, "plans")
}

// LogPath returns the log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.StateDir, "privatecode.log")
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Name:          "qwen2.5-coder:14b",
			OllamaURL:     "http://127.0.0.1:11434",
			TimeoutSecs:   500,
			AllowFallback: true,
		},
		Execution: ExecutionConfig{
			CommandTimeoutSecs:    60,
			DangerousToken:        "yes, run it",
			ContinueOnFailure:     true,
			EditRedirectsToCreate: true,
			AssistedEdits:         false,
		},
		Files: FilesConfig{
			BackupSuffix: ".bak",
		},
		Display: DisplayConfig{
			ShowThinking:      false,
			ThinkingMaxLength: 5000,
			Markdown:          true,
			Color:             "auto",
		},
		Web: WebConfig{
			MaxResults:        5,
			MaxContentLength:  10000,
			RequestsPerSecond: 1,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// StateDir returns the state directory: $PRIVATECODE_STATE_DIR, or ~/.privatecode.
func StateDir() (string, error) {
	if dir := os.Getenv("PRIVATECODE_STATE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".privatecode"), nil
}

// DefaultPath returns the path to the TOML config file.
func DefaultPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the config at path ("" means DefaultPath). A missing file
// yields the defaults. Keys absent from the file keep their default values.
// Environment overrides are applied last, then the result is validated.
func Load(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile decodes the file at path over the defaults without applying
// environment overrides or validating. It is what 'config set' edits.
func ReadFile(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, &ValidationError{Field: undecoded[0].String(), Message: "unknown configuration key"}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if dir := os.Getenv("PRIVATECODE_STATE_DIR"); dir != "" {
		cfg.StateDir = dir
	} else {
		cfg.StateDir = filepath.Dir(path)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration as TOML at path ("" means DefaultPath).
// SECURITY: Config files are written 0600 (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# privatecode configuration file")
	fmt.Fprintln(&buf, "# Edit with care; 'privatecode config set <key> <value>' validates changes.")
	fmt.Fprintln(&buf)

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []*ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes each ValidationError to errors.As.
func (e ValidateErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, v := range e {
		errs[i] = v
	}
	return errs
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// ==========================================================================
	// Model
	// ==========================================================================

	if strings.TrimSpace(c.Model.Name) == "" {
		add("model.name", "must not be empty")
	}
	if u, err := url.Parse(c.Model.OllamaURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("model.ollama_url", "invalid URL '%s', must be http(s)://host:port", c.Model.OllamaURL)
	}
	if c.Model.TimeoutSecs < 1 || c.Model.TimeoutSecs > 3600 {
		add("model.timeout", "must be between 1 and 3600 seconds, got %d", c.Model.TimeoutSecs)
	}

	// ==========================================================================
	// Execution
	// ==========================================================================

	if c.Execution.CommandTimeoutSecs < 1 || c.Execution.CommandTimeoutSecs > 86400 {
		add("execution.command_timeout", "must be between 1 and 86400 seconds, got %d", c.Execution.CommandTimeoutSecs)
	}
	if strings.TrimSpace(c.Execution.DangerousToken) == "" {
		add("execution.dangerous_token", "must not be empty")
	}
	for _, part := range c.Execution.Shell {
		if strings.TrimSpace(part) == "" {
			add("execution.shell", "must not contain empty elements")
			break
		}
	}
	if dir := c.Execution.WorkingDir; dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			add("execution.working_dir", "'%s' is not a directory", dir)
		}
	}

	// ==========================================================================
	// Files and display
	// ==========================================================================

	if c.Files.BackupSuffix == "" || strings.ContainsAny(c.Files.BackupSuffix, `/\`) {
		add("files.backup_suffix", "must be non-empty and contain no path separator")
	}
	if c.Display.ThinkingMaxLength < 1 {
		add("display.thinking_max_length", "must be positive, got %d", c.Display.ThinkingMaxLength)
	}
	switch c.Display.Color {
	case "auto", "always", "never":
	default:
		add("display.color", "invalid value '%s', must be one of: auto, always, never", c.Display.Color)
	}

	// ==========================================================================
	// Web and safety
	// ==========================================================================

	if c.Web.MaxResults < 1 || c.Web.MaxResults > 10 {
		add("web.max_results", "must be between 1 and 10, got %d", c.Web.MaxResults)
	}
	if c.Web.MaxContentLength < 100 {
		add("web.max_content_length", "must be at least 100, got %d", c.Web.MaxContentLength)
	}
	if c.Web.RequestsPerSecond <= 0 {
		add("web.requests_per_second", "must be positive")
	}
	for _, p := range c.Safety.ExtraAllow {
		if strings.TrimSpace(p) == "" {
			add("safety.extra_allow", "must not contain empty patterns")
			break
		}
	}
	for _, p := range c.Safety.ExtraDeny {
		if strings.TrimSpace(p) == "" {
			add("safety.extra_deny", "must not contain empty patterns")
			break
		}
	}

	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errs
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - PRIVATECODE_MODEL: overrides model.name
//   - PRIVATECODE_OLLAMA_URL: overrides model.ollama_url
//   - PRIVATECODE_TIMEOUT: overrides model.timeout (seconds)
//   - PRIVATECODE_COMMAND_TIMEOUT: overrides execution.command_timeout (seconds)
//   - PRIVATECODE_WORKDIR: overrides execution.working_dir
//   - NO_COLOR: forces display.color to "never"
func (c *Config) ApplyEnvOverrides() error {
	if model := os.Getenv("PRIVATECODE_MODEL"); model != "" {
		c.Model.Name = model
	}
	if u := os.Getenv("PRIVATECODE_OLLAMA_URL"); u != "" {
		c.Model.OllamaURL = u
	}
	if v := os.Getenv("PRIVATECODE_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ValidationError{Field: "PRIVATECODE_TIMEOUT", Message: "must be a whole number of seconds"}
		}
		c.Model.TimeoutSecs = n
	}
	if v := os.Getenv("PRIVATECODE_COMMAND_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ValidationError{Field: "PRIVATECODE_COMMAND_TIMEOUT", Message: "must be a whole number of seconds"}
		}
		c.Execution.CommandTimeoutSecs = n
	}
	if dir := os.Getenv("PRIVATECODE_WORKDIR"); dir != "" {
		c.Execution.WorkingDir = dir
	}
	// https://no-color.org: any non-empty value disables color
	if os.Getenv("NO_COLOR") != "" {
		c.Display.Color = "never"
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value by its TOML key (e.g., "model.timeout").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set parses value into the field named by key. Slices take a
// comma-separated list; an empty string clears them.
// The caller validates the result.
func (c *Config) Set(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if err := setFieldValue(field, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// lookup walks the TOML tags of the dotted key.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown key: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section; name one of its keys", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("'%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if tag != "" && tag != "-" && strings.EqualFold(tag, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string with type conversion.
func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %v", err)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %v", err)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("cannot assign to %s", field.Type())
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("cannot assign to %s", field.Type())
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", s)
}

// Keys returns every configuration key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		name, _, _ := strings.Cut(section.Tag.Get("toml"), ",")
		if name == "" || name == "-" || section.Type.Kind() != reflect.Struct {
			continue
		}
		for j := 0; j < section.Type.NumField(); j++ {
			key, _, _ := strings.Cut(section.Type.Field(j).Tag.Get("toml"), ",")
			keys = append(keys, name+"."+key)
		}
	}
	return keys
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Execution.Shell = append([]string(nil), c.Execution.Shell...)
	clone.Safety.ExtraAllow = append([]string(nil), c.Safety.ExtraAllow...)
	clone.Safety.ExtraDeny = append([]string(nil), c.Safety.ExtraDeny...)
	return &clone
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig   *Config
	globalConfigMu sync.RWMutex
)

// Global returns the current configuration snapshot, or the defaults when
// none has been set. Callers must treat it as immutable.
func Global() *Config {
	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	if globalConfig == nil {
		return Default()
	}
	return globalConfig
}

// SetGlobal replaces the configuration snapshot. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	SetGlobal(nil)
}
