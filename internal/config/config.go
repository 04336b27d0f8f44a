// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/gigmarket/gig/internal/hostutil"
	"github.com/gigmarket/gig/internal/output"
)

// Built-in environment names.
const (
	EnvLocal  = "local"
	EnvDeploy = "deploy"
)

// DefaultLocalURL is the base URL of a development server started with the
// stock settings.
const DefaultLocalURL = "http://127.0.0.1:8000/api/accounts/"

// Config holds the resolved configuration.
type Config struct {
	// API settings. BaseURL wins over Environment when both are set.
	BaseURL      string            `json:"base_url,omitempty"`
	Environment  string            `json:"environment"`
	Environments map[string]string `json:"environments,omitempty"`

	// Session storage
	SessionBackend string `json:"session_backend,omitempty"`
	RedisURL       string `json:"redis_url,omitempty"`

	// Output settings
	Format string `json:"format"`

	// HTTP timeout for a single send.
	Timeout time.Duration `json:"-"`

	// Behavior preferences (persisted via config set, overridable by flags)
	Stats   *bool `json:"stats,omitempty"`
	Verbose *int  `json:"verbose,omitempty"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceGlobal  Source = "global"
	SourceLocal   Source = "local"
	SourceDotenv  Source = "dotenv"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	BaseURL        string
	Environment    string
	SessionBackend string
	Format         string
	Timeout        time.Duration
}

// Keys lists the keys accepted by Set, in display order.
var Keys = []string{
	"base_url",
	"environment",
	"session_backend",
	"redis_url",
	"format",
	"timeout",
	"stats",
	"verbose",
}

// authorityKeys decide where tokens are sent or stored. They are ignored
// when they come from a working-directory config file.
var authorityKeys = map[string]bool{
	"base_url":        true,
	"environments":    true,
	"session_backend": true,
	"redis_url":       true,
}

var sessionBackends = []string{"keyring", "file", "redis", "memory"}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{
		Environment:  EnvLocal,
		Environments: map[string]string{EnvLocal: DefaultLocalURL},
		Format:       "auto",
		Timeout:      30 * time.Second,
		Sources:      make(map[string]string),
	}
	for _, k := range []string{"environment", "environments", "format", "timeout"} {
		cfg.Sources[k] = string(SourceDefault)
	}
	return cfg
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > .env > local > global > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, globalConfigPath(), SourceGlobal, os.Stderr)
	if p := localConfigPath(); p != "" {
		loadFromFile(cfg, p, SourceLocal, os.Stderr)
	}

	dotenv, err := readDotenv(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed .env: %v\n", err)
	}
	loadFromEnv(cfg, dotenv, SourceDotenv)
	LoadFromEnv(cfg)

	ApplyOverrides(cfg, overrides)

	return cfg, nil
}

// readDotenv returns the entries of a .env file that the real environment
// does not already define.
func readDotenv(path string) (map[string]string, error) {
	entries, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for k := range entries {
		if _, set := os.LookupEnv(k); set {
			delete(entries, k)
		}
	}
	return entries, nil
}

func loadFromFile(cfg *Config, path string, source Source, warn io.Writer) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return // File doesn't exist, skip
	}

	var fileCfg map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &fileCfg); err != nil {
		fmt.Fprintf(warn, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	untrusted := source == SourceLocal
	for key := range authorityKeys {
		if _, ok := fileCfg[key]; ok && untrusted {
			fmt.Fprintf(warn, "warning: ignoring %s from %s config at %s (authority keys are not trusted from local config)\n", key, source, path)
			delete(fileCfg, key)
		}
	}

	setString := func(key string, dst *string) {
		if v, ok := fileCfg[key].(string); ok && v != "" {
			*dst = v
			cfg.Sources[key] = string(source)
		}
	}
	setString("base_url", &cfg.BaseURL)
	setString("environment", &cfg.Environment)
	setString("session_backend", &cfg.SessionBackend)
	setString("redis_url", &cfg.RedisURL)
	setString("format", &cfg.Format)

	if v, ok := fileCfg["environments"].(map[string]any); ok {
		for name, raw := range v {
			if u, ok := raw.(string); ok && u != "" {
				cfg.Environments[name] = u
			}
		}
		cfg.Sources["environments"] = string(source)
	}
	if v, ok := fileCfg["timeout"]; ok {
		if d, ok := parseTimeout(v); ok {
			cfg.Timeout = d
			cfg.Sources["timeout"] = string(source)
		} else {
			fmt.Fprintf(warn, "warning: ignoring invalid timeout %v in %s\n", v, path)
		}
	}
	if v, ok := fileCfg["stats"].(bool); ok {
		cfg.Stats = &v
		cfg.Sources["stats"] = string(source)
	}
	if fv, ok := fileCfg["verbose"].(float64); ok {
		iv := int(fv)
		if iv >= 0 && iv <= 2 && fv == float64(iv) {
			cfg.Verbose = &iv
			cfg.Sources["verbose"] = string(source)
		}
	}
}

// parseTimeout accepts a duration string ("45s") or a number of seconds.
func parseTimeout(v any) (time.Duration, bool) {
	switch val := v.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d, true
		}
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return time.Duration(n) * time.Second, true
		}
	case float64:
		if val > 0 {
			return time.Duration(val * float64(time.Second)), true
		}
	}
	return 0, false
}

// LoadFromEnv applies GIG_* variables from the process environment.
func LoadFromEnv(cfg *Config) {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "GIG_") {
			env[k] = v
		}
	}
	loadFromEnv(cfg, env, SourceEnv)
}

func loadFromEnv(cfg *Config, env map[string]string, source Source) {
	set := func(name, key string, dst *string) {
		if v := env[name]; v != "" {
			*dst = v
			cfg.Sources[key] = string(source)
		}
	}
	set("GIG_BASE_URL", "base_url", &cfg.BaseURL)
	set("GIG_ENV", "environment", &cfg.Environment)
	set("GIG_SESSION_BACKEND", "session_backend", &cfg.SessionBackend)
	set("GIG_REDIS_URL", "redis_url", &cfg.RedisURL)
	set("GIG_FORMAT", "format", &cfg.Format)

	if v := env["GIG_BASE_URL_LOCAL"]; v != "" {
		cfg.Environments[EnvLocal] = v
		cfg.Sources["environments"] = string(source)
	}
	if v := env["GIG_BASE_URL_DEPLOY"]; v != "" {
		cfg.Environments[EnvDeploy] = v
		cfg.Sources["environments"] = string(source)
	}
	if v := env["GIG_TIMEOUT"]; v != "" {
		if d, ok := parseTimeout(v); ok {
			cfg.Timeout = d
			cfg.Sources["timeout"] = string(source)
		}
	}
	if v := env["GIG_STATS"]; v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.Stats = &b
			cfg.Sources["stats"] = string(source)
		}
	}
	if v := env["GIG_DEBUG"]; v != "" {
		if b, ok := parseEnvBool(v); ok && b {
			level := 2
			cfg.Verbose = &level
			cfg.Sources["verbose"] = string(source)
		}
	}
}

// parseEnvBool parses a boolean environment variable strictly.
// Unrecognized values are ignored to preserve three-state pointer semantics.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.Environment != "" {
		cfg.Environment = o.Environment
		cfg.Sources["environment"] = string(SourceFlag)
		// An explicit environment beats a base_url from a weaker layer.
		if o.BaseURL == "" && cfg.BaseURL != "" {
			cfg.BaseURL = ""
			delete(cfg.Sources, "base_url")
		}
	}
	if o.SessionBackend != "" {
		cfg.SessionBackend = o.SessionBackend
		cfg.Sources["session_backend"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
		cfg.Sources["timeout"] = string(SourceFlag)
	}
}

// ResolveBaseURL returns the normalized API base URL: base_url when set,
// otherwise the URL of the selected environment.
func (cfg *Config) ResolveBaseURL() (string, error) {
	raw := cfg.BaseURL
	if raw == "" {
		u, ok := cfg.Environments[cfg.Environment]
		if !ok || u == "" {
			return "", output.ErrUsageHint(
				fmt.Sprintf("No base URL configured for environment %q", cfg.Environment),
				fmt.Sprintf("Set one with: gig config set base_url <url> (known environments: %s)",
					strings.Join(slices.Sorted(maps.Keys(cfg.Environments)), ", ")))
		}
		raw = u
	}
	base, err := hostutil.BaseURL(raw)
	if err != nil {
		return "", output.ErrUsage(err.Error())
	}
	if err := hostutil.RequireSecureURL(base); err != nil {
		return "", output.ErrUsageHint(err.Error(), "Use https:// for remote servers")
	}
	return base, nil
}

// Validate checks the resolved configuration.
func (cfg *Config) Validate() error {
	if _, err := cfg.ResolveBaseURL(); err != nil {
		return err
	}
	if cfg.SessionBackend != "" && !slices.Contains(sessionBackends, cfg.SessionBackend) {
		return output.ErrUsageHint(fmt.Sprintf("Unknown session backend %q", cfg.SessionBackend),
			"Use one of: "+strings.Join(sessionBackends, ", "))
	}
	if cfg.SessionBackend == "redis" && cfg.RedisURL == "" {
		return output.ErrUsageHint("The redis session backend needs redis_url",
			"Set it with: gig config set redis_url redis://host:6379/0")
	}
	if _, err := output.ParseFormat(cfg.Format); err != nil {
		return err
	}
	if cfg.Timeout <= 0 {
		return output.ErrUsage("timeout must be positive")
	}
	return nil
}

// Set writes key=value into the global config file. An empty value removes
// the key.
func Set(key, value string) error {
	return setIn(globalConfigPath(), key, value)
}

func setIn(path, key, value string) error {
	stored, err := normalizeValue(key, value)
	if err != nil {
		return err
	}

	fileCfg := map[string]any{}
	if data, err := os.ReadFile(path); err == nil { //nolint:gosec // G304: global config path
		if err := json.Unmarshal(jsonc.ToJSON(data), &fileCfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if value == "" {
		delete(fileCfg, key)
	} else {
		fileCfg[key] = stored
	}

	data, err := json.MarshalIndent(fileCfg, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, append(data, '\n'))
}

func normalizeValue(key, value string) (any, error) {
	if !slices.Contains(Keys, key) {
		return nil, output.ErrUsageHint(fmt.Sprintf("Unknown config key %q", key),
			"Valid keys: "+strings.Join(Keys, ", "))
	}
	if value == "" {
		return nil, nil
	}
	switch key {
	case "base_url":
		base, err := hostutil.BaseURL(value)
		if err != nil {
			return nil, output.ErrUsage(err.Error())
		}
		if err := hostutil.RequireSecureURL(base); err != nil {
			return nil, output.ErrUsage(err.Error())
		}
		return base, nil
	case "session_backend":
		if !slices.Contains(sessionBackends, value) {
			return nil, output.ErrUsage(fmt.Sprintf("Unknown session backend %q", value))
		}
	case "format":
		if _, err := output.ParseFormat(value); err != nil {
			return nil, err
		}
	case "timeout":
		if _, ok := parseTimeout(value); !ok {
			return nil, output.ErrUsage(fmt.Sprintf("Invalid timeout %q", value))
		}
	case "stats":
		b, ok := parseEnvBool(value)
		if !ok {
			return nil, output.ErrUsage(fmt.Sprintf("stats must be true or false, got %q", value))
		}
		return b, nil
	case "verbose":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > 2 {
			return nil, output.ErrUsage("verbose must be 0, 1 or 2")
		}
		return n, nil
	}
	return value, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Path helpers

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "gig")
}

// GlobalConfigPath returns the file written by Set.
func GlobalConfigPath() string {
	return globalConfigPath()
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.json")
}

// localConfigPath returns .gig/config.json in the working directory, if any.
// Parent directories are not searched.
func localConfigPath() string {
	dir, err := os.Getwd()
	if err != nil {
		return "" // fail closed: can't determine CWD
	}
	p := filepath.Join(dir, ".gig", "config.json")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
