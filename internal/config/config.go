// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/agentchat/internal/util"
)

// CurrentVersion is written into saved files.
const CurrentVersion = "1"

// Transport names accepted by agent.transport.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "ws"
	TransportDemo      = "demo"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agentchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Agent connection
	Agent AgentConfig `toml:"agent" json:"agent"`

	// Markdown rendering
	Render RenderConfig `toml:"render" json:"render"`

	// Terminal UI
	UI UIConfig `toml:"ui" json:"ui"`

	// Logging
	Log LogConfig `toml:"log" json:"log"`
}

// AgentConfig describes how to reach the remote agent.
type AgentConfig struct {
	// URL is the agent API root, http(s) or ws(s)
	URL string `toml:"url" json:"url"`
	// Transport is "http", "ws" or "demo" (in-process echo agent)
	Transport string `toml:"transport" json:"transport"`
	// SessionID names the conversation on the agent
	SessionID string `toml:"session_id" json:"session_id"`
	// TimeoutSecs bounds non-streaming requests
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// StreamTimeoutSecs bounds the wait for a stream to start
	StreamTimeoutSecs int `toml:"stream_timeout_secs" json:"stream_timeout_secs"`
	// MaxRetries for the clear notification
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// Push opens the agent-initiated message channel on startup
	Push bool `toml:"push" json:"push"`
}

// RenderConfig controls markdown rendering and its cache.
type RenderConfig struct {
	// CacheSize is the number of rendered parts kept
	CacheSize int `toml:"cache_size" json:"cache_size"`
	// WordWrap is the glamour wrap width (0 follows the terminal)
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
	// Style is "auto", "dark", "light" or "ascii"; "auto" follows ui.theme
	Style string `toml:"style" json:"style"`
}

// UIConfig contains presentation settings.
type UIConfig struct {
	// Theme is "dark" or "light"
	Theme string `toml:"theme" json:"theme"`
	// ShowDebug shows each message's JSON below it
	ShowDebug bool `toml:"show_debug" json:"show_debug"`
	// MaxFPS caps redraws while streaming
	MaxFPS int `toml:"max_fps" json:"max_fps"`
	// ShowTimestamps prints HH:MM next to each message
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	// Level is trace, debug, info, warn, error or disabled
	Level string `toml:"level" json:"level"`
	// File is the log path (empty = ~/.agentchat/agentchat.log)
	File string `toml:"file" json:"file"`
	// MaxSizeMB rotates the file at this size
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `toml:"max_backups" json:"max_backups"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Agent: AgentConfig{
			URL:               "http://127.0.0.1:8787",
			Transport:         TransportHTTP,
			SessionID:         "default",
			TimeoutSecs:       10,
			StreamTimeoutSecs: 15,
			MaxRetries:        3,
			Push:              true,
		},
		Render: RenderConfig{
			CacheSize: 256,
			WordWrap:  0,
			Style:     "auto",
		},
		UI: UIConfig{
			Theme:          "dark",
			ShowDebug:      false,
			MaxFPS:         30,
			ShowTimestamps: true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Timeout returns the non-streaming request timeout.
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSecs) * time.Second
}

// StreamTimeout returns the stream start timeout.
func (a AgentConfig) StreamTimeout() time.Duration {
	return time.Duration(a.StreamTimeoutSecs) * time.Second
}

// GlamourStyle returns the render style with "auto" resolved against the theme.
func (c *Config) GlamourStyle() string {
	if c.Render.Style == "" || c.Render.Style == "auto" {
		return c.UI.Theme
	}
	return c.Render.Style
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the agentchat configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".agentchat"), nil
}

// PathTOML returns the path to the TOML config file.
func PathTOML() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// PathJSON returns the path to the JSON config file.
func PathJSON() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultLogFile returns ~/.agentchat/agentchat.log.
func DefaultLogFile() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agentchat.log"), nil
}

// Resolve returns the file Load would read: TOML first, then JSON. The TOML
// path is returned when neither exists.
func Resolve() (string, error) {
	tomlPath, err := PathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := PathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.agentchat/config.toml or config.json, falling back to
// defaults when neither exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Resolve()
	if err != nil {
		return finish(Default())
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file. The format follows
// the extension; anything but .json is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Agent
	if cfg.Agent.URL == "" {
		cfg.Agent.URL = defaults.Agent.URL
	}
	if cfg.Agent.Transport == "" {
		cfg.Agent.Transport = defaults.Agent.Transport
	}
	if cfg.Agent.SessionID == "" {
		cfg.Agent.SessionID = defaults.Agent.SessionID
	}
	if cfg.Agent.TimeoutSecs == 0 {
		cfg.Agent.TimeoutSecs = defaults.Agent.TimeoutSecs
	}
	if cfg.Agent.StreamTimeoutSecs == 0 {
		cfg.Agent.StreamTimeoutSecs = defaults.Agent.StreamTimeoutSecs
	}

	// Render
	if cfg.Render.CacheSize == 0 {
		cfg.Render.CacheSize = defaults.Render.CacheSize
	}
	if cfg.Render.Style == "" {
		cfg.Render.Style = defaults.Render.Style
	}

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.MaxFPS == 0 {
		cfg.UI.MaxFPS = defaults.UI.MaxFPS
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = defaults.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = defaults.Log.MaxBackups
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

const tomlHeader = "# agentchat configuration file\n# Generated by agentchat - edit with care\n\n"

// Save writes cfg to path, choosing the format from the extension.
// The write is atomic; the file is created with 0600 permissions.
func Save(cfg *Config, path string) error {
	var data []byte
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		data = append(b, '\n')
	} else {
		var sb strings.Builder
		sb.WriteString(tomlHeader)
		if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		data = []byte(sb.String())
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validTransports = map[string]bool{TransportHTTP: true, TransportWebSocket: true, TransportDemo: true}
	validStyles     = map[string]bool{"auto": true, "dark": true, "light": true, "ascii": true}
	validThemes     = map[string]bool{"dark": true, "light": true}
	validLevels     = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true}
)

// Validate validates the configuration and returns ValidateErrors on failure.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Agent
	if !validTransports[c.Agent.Transport] {
		add("agent.transport", "invalid transport '%s', must be one of: http, ws, demo", c.Agent.Transport)
	}
	if c.Agent.Transport != TransportDemo {
		u, err := url.Parse(c.Agent.URL)
		switch {
		case err != nil:
			add("agent.url", "invalid URL: %v", err)
		case u.Host == "":
			add("agent.url", "URL '%s' has no host", c.Agent.URL)
		case !schemeFits(c.Agent.Transport, u.Scheme):
			add("agent.url", "scheme '%s' does not fit transport '%s'", u.Scheme, c.Agent.Transport)
		}
	}
	if strings.TrimSpace(c.Agent.SessionID) == "" {
		add("agent.session_id", "must not be empty")
	}
	if c.Agent.TimeoutSecs < 1 || c.Agent.TimeoutSecs > 600 {
		add("agent.timeout_secs", "must be between 1 and 600, got %d", c.Agent.TimeoutSecs)
	}
	if c.Agent.StreamTimeoutSecs < 1 || c.Agent.StreamTimeoutSecs > 600 {
		add("agent.stream_timeout_secs", "must be between 1 and 600, got %d", c.Agent.StreamTimeoutSecs)
	}
	if c.Agent.MaxRetries < 0 || c.Agent.MaxRetries > 10 {
		add("agent.max_retries", "must be between 0 and 10, got %d", c.Agent.MaxRetries)
	}

	// Render
	if c.Render.CacheSize < 1 || c.Render.CacheSize > 100000 {
		add("render.cache_size", "must be between 1 and 100000, got %d", c.Render.CacheSize)
	}
	if c.Render.WordWrap < 0 || c.Render.WordWrap > 1000 {
		add("render.word_wrap", "must be between 0 and 1000, got %d", c.Render.WordWrap)
	}
	if !validStyles[c.Render.Style] {
		add("render.style", "invalid style '%s', must be one of: auto, dark, light, ascii", c.Render.Style)
	}

	// UI
	if !validThemes[c.UI.Theme] {
		add("ui.theme", "invalid theme '%s', must be one of: dark, light", c.UI.Theme)
	}
	if c.UI.MaxFPS < 1 || c.UI.MaxFPS > 120 {
		add("ui.max_fps", "must be between 1 and 120, got %d", c.UI.MaxFPS)
	}

	// Log
	if !validLevels[c.Log.Level] {
		add("log.level", "invalid level '%s'", c.Log.Level)
	}
	if c.Log.MaxSizeMB < 1 {
		add("log.max_size_mb", "must be positive, got %d", c.Log.MaxSizeMB)
	}
	if c.Log.MaxBackups < 0 {
		add("log.max_backups", "must not be negative, got %d", c.Log.MaxBackups)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func schemeFits(transport, scheme string) bool {
	switch transport {
	case TransportHTTP:
		return scheme == "http" || scheme == "https"
	case TransportWebSocket:
		return scheme == "http" || scheme == "https" || scheme == "ws" || scheme == "wss"
	}
	return true
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - AGENTCHAT_URL: overrides agent.url
//   - AGENTCHAT_TRANSPORT: overrides agent.transport
//   - AGENTCHAT_SESSION: overrides agent.session_id
//   - AGENTCHAT_THEME: overrides ui.theme
//   - AGENTCHAT_LOG_LEVEL: overrides log.level
//   - AGENTCHAT_DEBUG: "1" or "true" shows message JSON
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AGENTCHAT_URL"); v != "" {
		c.Agent.URL = v
	}
	if v := os.Getenv("AGENTCHAT_TRANSPORT"); v != "" {
		c.Agent.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTCHAT_SESSION"); v != "" {
		c.Agent.SessionID = v
	}
	if v := os.Getenv("AGENTCHAT_THEME"); v != "" {
		c.UI.Theme = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTCHAT_DEBUG"); v != "" {
		c.UI.ShowDebug = parseBool(v)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "1" || s == "true" || s == "yes"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value using dot notation (e.g., "agent.session_id").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value using dot notation. String values are converted to the
// field's type. The result is not validated.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if field.Kind() == reflect.Struct {
		return fmt.Errorf("cannot set section: %s", key)
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

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
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case or kebab-case to the Go field name.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

func setFieldValue(field reflect.Value, value interface{}) error {
	if s, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(n)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(s))
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
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Keys returns every settable key in dot notation, sorted.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		name := tagName(section)
		if section.Type.Kind() != reflect.Struct {
			keys = append(keys, name)
			continue
		}
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, name+"."+tagName(section.Type.Field(j)))
		}
	}
	sort.Strings(keys)
	return keys
}

func tagName(f reflect.StructField) string {
	if tag := f.Tag.Get("toml"); tag != "" {
		return strings.Split(tag, ",")[0]
	}
	return strings.ToLower(f.Name)
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
