// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for rigchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigchat configuration.
type Config struct {
	// Remote model settings
	Model ModelConfig `toml:"model" json:"model"`

	// Access gate applied once per session
	Access AccessConfig `toml:"access" json:"access"`

	// Pasted image limits
	Image ImageConfig `toml:"image" json:"image"`

	// Terminal UI settings
	UI UIConfig `toml:"ui" json:"ui"`

	// Log output
	Log LogConfig `toml:"log" json:"log"`
}

// ModelConfig selects the remote model and how it is called.
type ModelConfig struct {
	// Provider is "anthropic" or "openrouter".
	Provider string `toml:"provider" json:"provider"`

	// Name is the model identifier or a short alias such as "sonnet".
	Name string `toml:"name" json:"name"`

	// MaxTokens caps each reply.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`

	// APIKey is the provider credential.
	APIKey string `toml:"api_key" json:"api_key,omitempty"`

	// BaseURL overrides the provider endpoint. Empty uses the default.
	BaseURL string `toml:"base_url" json:"base_url,omitempty"`

	// StreamIdleTimeoutSecs cancels a stream that delivers nothing for this
	// long. Zero disables the check.
	StreamIdleTimeoutSecs int `toml:"stream_idle_timeout_secs" json:"stream_idle_timeout_secs"`
}

// IdleTimeout returns the stream idle timeout as a duration.
func (m ModelConfig) IdleTimeout() time.Duration {
	return time.Duration(m.StreamIdleTimeoutSecs) * time.Second
}

// ResolvedName returns the full model identifier for Name.
func (m ModelConfig) ResolvedName() string {
	return model.ResolveModel(m.Name)
}

// AccessConfig configures the session access gate.
type AccessConfig struct {
	// Mode is "none", "key" or "totp".
	Mode string `toml:"mode" json:"mode"`

	// KeyHash is the bcrypt hash of the shared secret for mode "key".
	KeyHash string `toml:"key_hash" json:"key_hash,omitempty"`

	// TOTPSecret is the base32 secret for mode "totp".
	TOTPSecret string `toml:"totp_secret" json:"totp_secret,omitempty"`

	// MaxAttempts is the number of failures before lockout.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts"`

	// LockoutMinutes is how long a lockout lasts.
	LockoutMinutes int `toml:"lockout_minutes" json:"lockout_minutes"`
}

// ImageConfig limits pasted images.
type ImageConfig struct {
	// MaxBytes caps the normalized image size.
	MaxBytes int `toml:"max_bytes" json:"max_bytes"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme is "auto", "dark" or "light".
	Theme string `toml:"theme" json:"theme"`

	// WordWrap is the column at which rendered replies wrap.
	WordWrap int `toml:"word_wrap" json:"word_wrap"`

	// MaxFPS limits redraws while a reply streams.
	MaxFPS int `toml:"max_fps" json:"max_fps"`
}

// LogConfig contains log settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level"`

	// File receives log output. "~" expands to the home directory.
	File string `toml:"file" json:"file"`
}

// Provider names.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
)

// Access modes.
const (
	AccessNone = "none"
	AccessKey  = "key"
	AccessTOTP = "totp"
)

// Default returns a new Config with default values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:              ProviderAnthropic,
			Name:                  model.DefaultModel,
			MaxTokens:             1024,
			StreamIdleTimeoutSecs: 60,
		},
		Access: AccessConfig{
			Mode:           AccessNone,
			MaxAttempts:    5,
			LockoutMinutes: 15,
		},
		Image: ImageConfig{
			MaxBytes: 15 * 1024 * 1024,
		},
		UI: UIConfig{
			Theme:    "auto",
			WordWrap: 80,
			MaxFPS:   30,
		},
		Log: LogConfig{
			Level: "info",
			File:  "~/.rigchat/rigchat.log",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ExpandPath replaces a leading "~" with the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ensureSecurePermissions tightens config files to 0600. They may hold API
// keys and access secrets.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default location.
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Values missing from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigchat configuration file\n")
	buf.WriteString("# Generated by rigchat - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
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

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Model
	switch strings.ToLower(c.Model.Provider) {
	case ProviderAnthropic, ProviderOpenRouter:
	default:
		errs = append(errs, ValidationError{
			Field:   "model.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: anthropic, openrouter", c.Model.Provider),
		})
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		errs = append(errs, ValidationError{Field: "model.name", Message: "must not be empty"})
	}
	if c.Model.MaxTokens < 1 || c.Model.MaxTokens > 200000 {
		errs = append(errs, ValidationError{
			Field:   "model.max_tokens",
			Message: fmt.Sprintf("must be between 1 and 200000, got %d", c.Model.MaxTokens),
		})
	}
	if c.Model.BaseURL != "" {
		u, err := url.Parse(c.Model.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{
				Field:   "model.base_url",
				Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host", c.Model.BaseURL),
			})
		}
	}
	if c.Model.StreamIdleTimeoutSecs < 0 || c.Model.StreamIdleTimeoutSecs > 3600 {
		errs = append(errs, ValidationError{
			Field:   "model.stream_idle_timeout_secs",
			Message: fmt.Sprintf("must be between 0 and 3600, got %d", c.Model.StreamIdleTimeoutSecs),
		})
	}

	// Access
	switch strings.ToLower(c.Access.Mode) {
	case AccessNone:
	case AccessKey:
		if c.Access.KeyHash == "" {
			errs = append(errs, ValidationError{Field: "access.key_hash", Message: "required when access.mode is 'key' (see: rigchat config hash-key)"})
		}
	case AccessTOTP:
		if c.Access.TOTPSecret == "" {
			errs = append(errs, ValidationError{Field: "access.totp_secret", Message: "required when access.mode is 'totp' (see: rigchat config totp-secret)"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "access.mode",
			Message: fmt.Sprintf("invalid mode '%s', must be one of: none, key, totp", c.Access.Mode),
		})
	}
	if c.Access.MaxAttempts < 1 || c.Access.MaxAttempts > 100 {
		errs = append(errs, ValidationError{
			Field:   "access.max_attempts",
			Message: fmt.Sprintf("must be between 1 and 100, got %d", c.Access.MaxAttempts),
		})
	}
	if c.Access.LockoutMinutes < 0 {
		errs = append(errs, ValidationError{Field: "access.lockout_minutes", Message: "must not be negative"})
	}

	// Image
	if c.Image.MaxBytes < 1024 {
		errs = append(errs, ValidationError{
			Field:   "image.max_bytes",
			Message: fmt.Sprintf("must be at least 1024, got %d", c.Image.MaxBytes),
		})
	}

	// UI
	validThemes := map[string]bool{"auto": true, "dark": true, "light": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme),
		})
	}
	if c.UI.WordWrap < 20 || c.UI.WordWrap > 400 {
		errs = append(errs, ValidationError{
			Field:   "ui.word_wrap",
			Message: fmt.Sprintf("must be between 20 and 400, got %d", c.UI.WordWrap),
		})
	}
	if c.UI.MaxFPS < 1 || c.UI.MaxFPS > 120 {
		errs = append(errs, ValidationError{
			Field:   "ui.max_fps",
			Message: fmt.Sprintf("must be between 1 and 120, got %d", c.UI.MaxFPS),
		})
	}

	// Log
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values with defaults and normalizes enum casing.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Model.Provider == "" {
		c.Model.Provider = d.Model.Provider
	}
	c.Model.Provider = strings.ToLower(c.Model.Provider)
	if c.Model.Name == "" {
		c.Model.Name = d.Model.Name
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = d.Model.MaxTokens
	}
	c.Model.BaseURL = strings.TrimRight(c.Model.BaseURL, "/")

	if c.Access.Mode == "" {
		c.Access.Mode = d.Access.Mode
	}
	c.Access.Mode = strings.ToLower(c.Access.Mode)
	if c.Access.MaxAttempts == 0 {
		c.Access.MaxAttempts = d.Access.MaxAttempts
	}

	if c.Image.MaxBytes == 0 {
		c.Image.MaxBytes = d.Image.MaxBytes
	}

	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	c.UI.Theme = strings.ToLower(c.UI.Theme)
	if c.UI.WordWrap == 0 {
		c.UI.WordWrap = d.UI.WordWrap
	}
	if c.UI.MaxFPS == 0 {
		c.UI.MaxFPS = d.UI.MaxFPS
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
// Supported variables:
//   - RIGCHAT_API_KEY: overrides model.api_key
//   - ANTHROPIC_API_KEY / OPENROUTER_API_KEY: used when no key is set, for
//     the matching provider
//   - RIGCHAT_MODEL: overrides model.name
//   - RIGCHAT_PROVIDER: overrides model.provider
//   - RIGCHAT_BASE_URL: overrides model.base_url
//   - RIGCHAT_MAX_TOKENS: overrides model.max_tokens
//   - RIGCHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if provider := os.Getenv("RIGCHAT_PROVIDER"); provider != "" {
		c.Model.Provider = provider
	}
	if name := os.Getenv("RIGCHAT_MODEL"); name != "" {
		c.Model.Name = name
	}
	if base := os.Getenv("RIGCHAT_BASE_URL"); base != "" {
		c.Model.BaseURL = base
	}
	if maxTokens := os.Getenv("RIGCHAT_MAX_TOKENS"); maxTokens != "" {
		if n, err := strconv.Atoi(maxTokens); err == nil {
			c.Model.MaxTokens = n
		}
	}
	if level := os.Getenv("RIGCHAT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}

	if key := os.Getenv("RIGCHAT_API_KEY"); key != "" {
		c.Model.APIKey = key
		return
	}
	if c.Model.APIKey != "" {
		return
	}
	switch strings.ToLower(c.Model.Provider) {
	case ProviderOpenRouter:
		c.Model.APIKey = os.Getenv("OPENROUTER_API_KEY")
	default:
		c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "model.name").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "model.name").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks a dotted key down to a leaf field.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a key", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"model.provider",
		"model.name",
		"model.max_tokens",
		"model.api_key",
		"model.base_url",
		"model.stream_idle_timeout_secs",
		"access.mode",
		"access.key_hash",
		"access.totp_secret",
		"access.max_attempts",
		"access.lockout_minutes",
		"image.max_bytes",
		"ui.theme",
		"ui.word_wrap",
		"ui.max_fps",
		"log.level",
		"log.file",
	}
}

// IsSecretKey reports whether a key holds a credential that must not be
// printed.
func IsSecretKey(key string) bool {
	switch strings.ToLower(key) {
	case "model.api_key", "access.key_hash", "access.totp_secret":
		return true
	}
	return false
}

// Clone creates a copy of the configuration. Config holds only value types.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Redacted returns a copy with credentials replaced by a marker.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.Model.APIKey != "" {
		safe.Model.APIKey = "[REDACTED]"
	}
	if safe.Access.KeyHash != "" {
		safe.Access.KeyHash = "[REDACTED]"
	}
	if safe.Access.TOTPSecret != "" {
		safe.Access.TOTPSecret = "[REDACTED]"
	}
	return safe
}

// String returns a redacted JSON rendering for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}

// TOML returns the redacted configuration encoded as TOML.
func (c *Config) TOML() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.Redacted()); err != nil {
		return "", err
	}
	return buf.String(), nil
}
