package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultBackendBaseURL = "http://127.0.0.1:8000"
	DefaultLocalUIPort    = 24117

	defaultUploadConcurrency     = 4
	defaultRequestTimeoutSeconds = 60
)

// Config is the on-disk configuration for the yourownrag client.
type Config struct {
	// BackendBaseURL is the RAG backend origin, no trailing slash.
	BackendBaseURL string `json:"backend_base_url"`

	// StateDir holds the local state database and lock file.
	// If empty, the config file's directory is used.
	StateDir string `json:"state_dir,omitempty"`

	// UploadConcurrency caps simultaneous document uploads.
	// nil: default (4). 0: unbounded, matching the original web client.
	UploadConcurrency *int `json:"upload_concurrency,omitempty"`

	// RequestTimeoutSeconds bounds each backend call at the transport level.
	// 0 means the default (60).
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// LocalUIPort is the loopback port for `yourownrag serve`.
	// 0 means the default (24117).
	LocalUIPort int `json:"local_ui_port,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

func Default() *Config {
	return &Config{
		BackendBaseURL: DefaultBackendBaseURL,
		LogFormat:      "text",
		LogLevel:       "info",
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	base := strings.TrimSpace(c.BackendBaseURL)
	if base == "" {
		return errors.New("missing backend_base_url")
	}
	u, err := url.Parse(base)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return fmt.Errorf("invalid backend_base_url %q", c.BackendBaseURL)
	}
	if c.UploadConcurrency != nil && *c.UploadConcurrency < 0 {
		return fmt.Errorf("invalid upload_concurrency: %d", *c.UploadConcurrency)
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("invalid request_timeout_seconds: %d", c.RequestTimeoutSeconds)
	}
	if c.LocalUIPort < 0 || c.LocalUIPort > 65535 {
		return fmt.Errorf("invalid local_ui_port: %d", c.LocalUIPort)
	}
	switch strings.TrimSpace(c.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	switch strings.TrimSpace(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// EffectiveUploadConcurrency resolves the configured cap: the compiled-in
// default when unset, 0 for unbounded.
func (c *Config) EffectiveUploadConcurrency() int {
	if c == nil || c.UploadConcurrency == nil {
		return defaultUploadConcurrency
	}
	return *c.UploadConcurrency
}

func (c *Config) EffectiveRequestTimeoutSeconds() int {
	if c == nil || c.RequestTimeoutSeconds <= 0 {
		return defaultRequestTimeoutSeconds
	}
	return c.RequestTimeoutSeconds
}

func (c *Config) EffectiveLocalUIPort() int {
	if c == nil || c.LocalUIPort == 0 {
		return DefaultLocalUIPort
	}
	return c.LocalUIPort
}

// DefaultConfigPath returns the default config path:
//
//	~/.yourownrag/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "yourownrag.config.json"
	}
	return filepath.Join(home, ".yourownrag", "config.json")
}

// EffectiveStateDir resolves the state directory for a config loaded from
// configPath.
func (c *Config) EffectiveStateDir(configPath string) string {
	if c != nil && strings.TrimSpace(c.StateDir) != "" {
		return filepath.Clean(strings.TrimSpace(c.StateDir))
	}
	return filepath.Dir(filepath.Clean(configPath))
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadOrInit loads the config at path, writing the defaults first when the
// file does not exist yet. The client must start on a clean machine.
func LoadOrInit(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	cfg = Default()
	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("init default config: %w", err)
	}
	return cfg, nil
}
