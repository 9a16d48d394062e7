// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"

	"github.com/jeranaias/ownai/internal/ollama"
	"github.com/jeranaias/ownai/internal/storage"
	"github.com/jeranaias/ownai/internal/util"
)

const (
	// DirName is the settings directory under the user's home.
	DirName = ".ownai"

	// FileName is the settings file inside the settings directory.
	FileName = "config.toml"

	// EnvHome moves the settings directory.
	EnvHome = "OWNAI_HOME"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete ownai configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Chat    ChatConfig    `toml:"chat"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig identifies the Ollama server and the selected model.
type ServerConfig struct {
	Address string `toml:"address"`
	Port    string `toml:"port"`
	// Model is the selected model; empty means "first available".
	Model string `toml:"model"`
}

// ChatConfig tunes chat requests.
type ChatConfig struct {
	// NumCtx is sent as options.num_ctx.
	NumCtx int `toml:"num_ctx"`
	// IdleTimeout aborts a reply that stops producing bytes. Zero
	// disables the watchdog.
	IdleTimeout time.Duration `toml:"idle_timeout"`
}

// StorageConfig selects the session store.
type StorageConfig struct {
	// Backend is "sqlite" or "json".
	Backend string `toml:"backend"`
	// Path is the database file or session directory. Empty uses the
	// default inside the settings directory.
	Path string `toml:"path"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File is the log path. Empty uses ownai.log inside the settings
	// directory; "-" logs to stderr.
	File string `toml:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost",
			Port:    "11434",
		},
		Chat: ChatConfig{
			NumCtx:      ollama.DefaultNumCtx,
			IdleTimeout: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: storage.BackendSQLite,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults fills empty values that have a default.
func (c *Config) SetDefaults() {
	def := Default()
	if c.Chat.NumCtx == 0 {
		c.Chat.NumCtx = def.Chat.NumCtx
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

// ClientConfig derives the Ollama client settings.
func (c *Config) ClientConfig() *ollama.ClientConfig {
	cc := ollama.DefaultConfig()
	cc.NumCtx = c.Chat.NumCtx
	cc.IdleTimeout = c.Chat.IdleTimeout
	return cc
}

// Clone returns a copy. Config has no reference fields, so a value copy
// is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the settings directory.
func Dir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return util.ExpandHome(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Path returns the settings file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// StoragePath returns the session store location for this config.
func (c *Config) StoragePath(dir string) string {
	if c.Storage.Path != "" {
		return util.ExpandHome(c.Storage.Path)
	}
	if c.Storage.Backend == storage.BackendJSON {
		return filepath.Join(dir, "sessions")
	}
	return filepath.Join(dir, "sessions.db")
}

// LogPath returns the log file path, or "" for stderr.
func (c *Config) LogPath(dir string) string {
	switch c.Logging.File {
	case "-":
		return ""
	case "":
		return filepath.Join(dir, "ownai.log")
	default:
		return util.ExpandHome(c.Logging.File)
	}
}

// =============================================================================
// LOAD AND SAVE
// =============================================================================

// Load reads the default settings file, then applies .env and process
// environment overrides. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path, ".env")
}

// LoadFromPath reads path and applies overrides from dotenv (if it
// exists) and the process environment, in that order of precedence.
func LoadFromPath(path, dotenv string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides(Environ(dotenv))
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile decodes path on top of the defaults without applying any
// environment overrides. A missing file is not an error.
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	// Unknown keys are tolerated.
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

// Save writes cfg to path atomically with owner-only permissions.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	err := util.WriteAtomic(path, 0o600, func(w io.Writer) error {
		fmt.Fprintln(w, "# ownai configuration file")
		fmt.Fprintln(w, "")
		return toml.NewEncoder(w).Encode(cfg)
	})
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// envKeys maps environment variables to dotted config keys.
var envKeys = map[string]string{
	"OWNAI_ADDRESS":      "server.address",
	"OWNAI_PORT":         "server.port",
	"OWNAI_MODEL":        "server.model",
	"OWNAI_STORAGE":      "storage.backend",
	"OWNAI_STORAGE_PATH": "storage.path",
	"OWNAI_LOG_LEVEL":    "logging.level",
}

// Environ returns the override variables from dotenv overlaid by the
// process environment. The process environment itself is not modified.
func Environ(dotenv string) map[string]string {
	vars := map[string]string{}
	if dotenv != "" {
		if fromFile, err := godotenv.Read(dotenv); err == nil {
			for k, v := range fromFile {
				if _, known := envKeys[k]; known {
					vars[k] = v
				}
			}
		}
	}
	for k := range envKeys {
		if v := os.Getenv(k); v != "" {
			vars[k] = v
		}
	}
	return vars
}

// ApplyEnvOverrides applies the variables returned by Environ.
func (c *Config) ApplyEnvOverrides(vars map[string]string) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key, ok := envKeys[name]
		if !ok || vars[name] == "" {
			continue
		}
		_ = c.Set(key, vars[name])
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks everything except the server address and port.
func (c *Config) Validate() error {
	return validation.Errors{
		"chat": validation.ValidateStruct(&c.Chat,
			validation.Field(&c.Chat.NumCtx, validation.Required, validation.Min(256), validation.Max(1<<20)),
			validation.Field(&c.Chat.IdleTimeout, validation.Min(time.Duration(0))),
		),
		"storage": validation.ValidateStruct(&c.Storage,
			validation.Field(&c.Storage.Backend, validation.Required, validation.In(storage.BackendSQLite, storage.BackendJSON)),
		),
		"logging": validation.ValidateStruct(&c.Logging,
			validation.Field(&c.Logging.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
			validation.Field(&c.Logging.Format, validation.Required, validation.In("text", "json")),
		),
	}.Filter()
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Keys returns every settable key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, section.Tag.Get("toml")+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// field resolves a dotted key such as "chat.num_ctx" against toml tags.
func (c *Config) field(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return reflect.Value{}, fmt.Errorf("invalid key %q: expected section.name", key)
	}
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		found := false
		for j := 0; j < v.NumField(); j++ {
			if v.Type().Field(j).Tag.Get("toml") == part {
				v = v.Field(j)
				found = true
				break
			}
		}
		if !found {
			return reflect.Value{}, fmt.Errorf("unknown key: %s", strings.Join(parts[:i+1], "."))
		}
	}
	return v, nil
}

// Get returns the value of a dotted key formatted as a string.
func (c *Config) Get(key string) (string, error) {
	v, err := c.field(key)
	if err != nil {
		return "", err
	}
	if d, ok := v.Interface().(time.Duration); ok {
		return d.String(), nil
	}
	return fmt.Sprint(v.Interface()), nil
}

// Set parses value into the field named by a dotted key.
func (c *Config) Set(key, value string) error {
	v, err := c.field(key)
	if err != nil {
		return err
	}
	if v.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration: %w", key, err)
		}
		v.SetInt(int64(d))
		return nil
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(value)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: invalid integer: %w", key, err)
		}
		v.SetInt(int64(n))
	default:
		return fmt.Errorf("%s: unsupported type %s", key, v.Type())
	}
	return nil
}
