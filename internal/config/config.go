// Package config provides configuration management for the tcm bridge.
// It uses koanf v2 to load an optional YAML file, overlays TCM_* environment
// variables, applies defaults and validates the result. Save writes a
// config back out, which the daemon uses to emit a starter file.
//
// Configuration is loaded from /etc/tcm-bridge/config.yaml by default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default location for the bridge configuration file.
const DefaultConfigPath = "/etc/tcm-bridge/config.yaml"

// EnvPrefix marks environment variables that override file settings,
// e.g. TCM_LOG_LEVEL=debug.
const EnvPrefix = "TCM_"

// Config holds the bridge configuration.
// Fields are tagged for both koanf (loading) and yaml (saving).
type Config struct {
	// SocketPath is the Unix socket the UI layer connects to.
	// Default: /run/tcm-bridge/bridge.sock.
	SocketPath string `koanf:"socket_path" yaml:"socket_path"`

	// Shell is the privileged interpreter. Default: su.
	Shell string `koanf:"shell" yaml:"shell"`

	// ShellArgs are passed to the interpreter, e.g. ["--mount-master"].
	ShellArgs []string `koanf:"shell_args" yaml:"shell_args,omitempty"`

	// CacheDir is the app cache directory packages are staged in.
	CacheDir string `koanf:"cache_dir" yaml:"cache_dir"`

	// PackageFile is the staged package's file name inside CacheDir.
	// Default: app.apk.
	PackageFile string `koanf:"package_file" yaml:"package_file"`

	// PackageName is the application id of the UI app.
	PackageName string `koanf:"package_name" yaml:"package_name"`

	// FileProviderAuthority exposes CacheDir to the system installer as
	// content:// URIs. Default: <package_name>.fileprovider.
	FileProviderAuthority string `koanf:"file_provider_authority" yaml:"file_provider_authority"`

	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	// Default: "info".
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// LogFormat is "json" or "text". Default: "json".
	LogFormat string `koanf:"log_format" yaml:"log_format"`

	// JournalPath is the bbolt database of operation outcomes. Empty
	// disables the journal.
	JournalPath string `koanf:"journal_path" yaml:"journal_path"`

	// JournalMax caps the number of journal entries. Default: 500.
	JournalMax int `koanf:"journal_max" yaml:"journal_max"`

	// ProbeSchedule is a cron expression for background privilege probes.
	// Empty disables them.
	ProbeSchedule string `koanf:"probe_schedule" yaml:"probe_schedule,omitempty"`

	// DownloadRetries is the retry count for package downloads. Default: 3.
	DownloadRetries int `koanf:"download_retries" yaml:"download_retries"`

	// NATSServers is a comma-separated list of NATS server URLs.
	// If set, requests are also accepted over NATS.
	NATSServers string `koanf:"nats_servers" yaml:"nats_servers,omitempty"`

	// NATSNKeySeed is the NKey seed used to authenticate to NATS.
	NATSNKeySeed string `koanf:"nats_nkey_seed" yaml:"nats_nkey_seed,omitempty"`

	// NATSSubject is the subject prefix requests arrive on.
	// Default: tcm.bridge.
	NATSSubject string `koanf:"nats_subject" yaml:"nats_subject,omitempty"`
}

// Validation errors returned by Load.
var (
	ErrSocketPathRequired  = errors.New("socket_path is required")
	ErrCacheDirRequired    = errors.New("cache_dir is required")
	ErrInvalidPackageFile  = errors.New("package_file must be a plain file name")
	ErrInvalidLogFormat    = errors.New("log_format must be json or text")
	ErrInvalidJournalMax   = errors.New("journal_max must not be negative")
	ErrPackageNameRequired = errors.New("package_name is required")
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from path, if it exists, then applies TCM_*
// environment overrides, defaults and validation. A missing file is not an
// error: the bridge runs on defaults and environment alone.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields.
func (c *Config) applyDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = "/run/tcm-bridge/bridge.sock"
	}
	if c.Shell == "" {
		c.Shell = "su"
	}
	if c.PackageName == "" {
		c.PackageName = "tech.and2long.tcm"
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join("/data/data", c.PackageName, "cache")
	}
	if c.PackageFile == "" {
		c.PackageFile = "app.apk"
	}
	if c.FileProviderAuthority == "" {
		c.FileProviderAuthority = c.PackageName + ".fileprovider"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.JournalMax == 0 {
		c.JournalMax = 500
	}
	if c.DownloadRetries == 0 {
		c.DownloadRetries = 3
	}
	if c.NATSSubject == "" {
		c.NATSSubject = "tcm.bridge"
	}
}

// validate checks that required configuration fields are present and valid.
func (c *Config) validate() error {
	if c.SocketPath == "" {
		return ErrSocketPathRequired
	}
	if c.CacheDir == "" {
		return ErrCacheDirRequired
	}
	if c.PackageName == "" {
		return ErrPackageNameRequired
	}
	if c.PackageFile != filepath.Base(c.PackageFile) || c.PackageFile == "." || c.PackageFile == ".." {
		return ErrInvalidPackageFile
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return ErrInvalidLogFormat
	}
	if c.JournalMax < 0 {
		return ErrInvalidJournalMax
	}
	return nil
}

// PackagePath returns the staged package location.
func (c *Config) PackagePath() string {
	return filepath.Join(c.CacheDir, c.PackageFile)
}

// NATSEnabled returns true if NATS configuration is present.
func (c *Config) NATSEnabled() bool {
	return c.NATSServers != ""
}

// Save writes the configuration to the specified YAML file path with 0600
// permissions, since it may contain an NKey seed.
func Save(path string, cfg *Config) error {
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}

	return nil
}
