// Package config provides configuration management for padsync.
// It supports YAML or TOML configuration files, a .env file, environment
// variables, and sensible defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/klauern/padsync/internal/util"
)

// Remote backends.
const (
	BackendDrive = "drive"
	BackendDir   = "dir"
)

// Config represents the complete padsync configuration.
type Config struct {
	// Store configures the local profile database
	Store StoreConfig `yaml:"store" toml:"store"`

	// Remote configures where synced datasets are kept
	Remote RemoteConfig `yaml:"remote" toml:"remote"`

	// Sync configures synchronization behavior
	Sync SyncConfig `yaml:"sync" toml:"sync"`

	// Logging configures log output
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// Backup configures local snapshots taken before a sync applies changes
	Backup BackupConfig `yaml:"backup" toml:"backup"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output"`
}

// StoreConfig holds local database settings.
type StoreConfig struct {
	// Path is the SQLite database file
	Path string `yaml:"path" toml:"path"`
}

// RemoteConfig holds remote store settings.
type RemoteConfig struct {
	// Backend selects the remote store (drive, dir)
	Backend string `yaml:"backend" toml:"backend"`
	// Directory is the shared folder used by the dir backend
	Directory string `yaml:"directory,omitempty" toml:"directory,omitempty"`
	// CredentialsFile is the OAuth client JSON for the drive backend
	CredentialsFile string `yaml:"credentials_file" toml:"credentials_file"`
	// TokenFile stores the OAuth token for the drive backend
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// SyncConfig holds synchronization settings.
type SyncConfig struct {
	// Interval is the period between background syncs in watch mode
	Interval time.Duration `yaml:"interval" toml:"interval"`
	// Timeout bounds every remote call
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	// AutoBackup snapshots the local dataset before a sync changes it
	AutoBackup bool `yaml:"auto_backup" toml:"auto_backup"`
	// SyncOnStartup runs one sync as soon as watch mode starts
	SyncOnStartup bool `yaml:"sync_on_startup" toml:"sync_on_startup"`
	// ProbeURL is requested to detect connectivity in watch mode
	ProbeURL string `yaml:"probe_url" toml:"probe_url"`
	// ProbeInterval is the period between connectivity probes
	ProbeInterval time.Duration `yaml:"probe_interval" toml:"probe_interval"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	// Level is the minimum level (debug, info, warn, error)
	Level string `yaml:"level" toml:"level"`
	// JSON switches to JSON output
	JSON bool `yaml:"json" toml:"json"`
	// File sends logs to a rotated file instead of stderr
	File       string `yaml:"file,omitempty" toml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// BackupConfig holds backup settings.
type BackupConfig struct {
	// Location is the backup directory path
	Location string `yaml:"location" toml:"location"`
	// MaxBackups is the maximum number of backups to keep per profile
	MaxBackups int `yaml:"max_backups" toml:"max_backups"`
	// MaxAge removes backups older than this during cleanup (0 disables)
	MaxAge time.Duration `yaml:"max_age" toml:"max_age"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path: util.PadsyncDatabasePath(),
		},
		Remote: RemoteConfig{
			Backend:         BackendDrive,
			CredentialsFile: util.PadsyncCredentialsPath(),
			TokenFile:       util.PadsyncTokenPath(),
		},
		Sync: SyncConfig{
			Interval:      15 * time.Minute,
			Timeout:       30 * time.Second,
			AutoBackup:    true,
			SyncOnStartup: true,
			ProbeURL:      "https://www.googleapis.com/generate_204",
			ProbeInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Backup: BackupConfig{
			Location:   util.PadsyncBackupsPath(),
			MaxBackups: 10,
			MaxAge:     30 * 24 * time.Hour,
		},
		Output: OutputConfig{
			Color: "auto",
		},
	}
}

const (
	// configFileName is the name of the default config file.
	configFileName = "config.yaml"
	// envFileName is loaded from the config directory before env overrides apply.
	envFileName = ".env"
)

// FilePath returns the path to the default config file.
func FilePath() string {
	return filepath.Join(util.PadsyncConfigPath(), configFileName)
}

// Load loads the configuration from the default file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg, err := LoadFromPath(FilePath())
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		if err := cfg.loadEnvironment(util.PadsyncConfigPath()); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// LoadFromPath loads configuration from a specific path. Files ending in
// .toml are parsed as TOML, everything else as YAML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.loadEnvironment(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Exists reports whether the default config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}

// Save writes the configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path, as TOML when the
// path ends in .toml.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := c.Marshal(isTOML(path))
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// Marshal renders the configuration as YAML, or TOML when asTOML is set.
func (c *Config) Marshal(asTOML bool) ([]byte, error) {
	if !asTOML {
		return yaml.Marshal(c)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Remote.Backend {
	case BackendDrive:
	case BackendDir:
		if c.Remote.Directory == "" {
			return errors.New("remote.directory is required for the dir backend")
		}
	default:
		return fmt.Errorf("unknown remote backend %q (use %s or %s)", c.Remote.Backend, BackendDrive, BackendDir)
	}
	if c.Sync.Timeout <= 0 {
		return fmt.Errorf("sync.timeout must be positive, got %v", c.Sync.Timeout)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %v", c.Sync.Interval)
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Output.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("output.color must be auto, always or never, got %q", c.Output.Color)
	}
	return nil
}

// SlogLevel parses the configured level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid logging.level %q: %w", l.Level, err)
	}
	return level, nil
}

// StorePath returns the database path with ~ expanded.
func (c *Config) StorePath() string {
	return util.ExpandPath(c.Store.Path, "")
}

// BackupPath returns the backup directory with ~ expanded.
func (c *Config) BackupPath() string {
	return util.ExpandPath(c.Backup.Location, "")
}

// CredentialsFile returns the OAuth client file with ~ expanded.
func (c *Config) CredentialsFile() string {
	return util.ExpandPath(c.Remote.CredentialsFile, "")
}

// TokenFile returns the OAuth token file with ~ expanded.
func (c *Config) TokenFile() string {
	return util.ExpandPath(c.Remote.TokenFile, "")
}

// LogFile returns the log file path with ~ expanded, or "" for stderr.
func (c *Config) LogFile() string {
	return util.ExpandPath(c.Logging.File, "")
}

// RemoteDirectory returns the dir backend folder with ~ expanded.
func (c *Config) RemoteDirectory() string {
	return util.ExpandPath(c.Remote.Directory, "")
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// loadEnvironment reads dir/.env, if present, without overriding variables
// already set, then applies environment overrides.
func (c *Config) loadEnvironment(dir string) error {
	envPath := filepath.Join(dir, envFileName)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}
	c.applyEnvironment()
	return nil
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern PADSYNC_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	// Store settings
	if v := os.Getenv("PADSYNC_STORE_PATH"); v != "" {
		c.Store.Path = v
	}

	// Remote settings
	if v := os.Getenv("PADSYNC_REMOTE_BACKEND"); v != "" {
		c.Remote.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("PADSYNC_REMOTE_DIRECTORY"); v != "" {
		c.Remote.Directory = v
	}
	if v := os.Getenv("PADSYNC_REMOTE_CREDENTIALS_FILE"); v != "" {
		c.Remote.CredentialsFile = v
	}
	if v := os.Getenv("PADSYNC_REMOTE_TOKEN_FILE"); v != "" {
		c.Remote.TokenFile = v
	}

	// Sync settings
	setDuration("PADSYNC_SYNC_INTERVAL", &c.Sync.Interval)
	setDuration("PADSYNC_SYNC_TIMEOUT", &c.Sync.Timeout)
	setDuration("PADSYNC_SYNC_PROBE_INTERVAL", &c.Sync.ProbeInterval)
	if v := os.Getenv("PADSYNC_SYNC_AUTO_BACKUP"); v != "" {
		c.Sync.AutoBackup = parseBool(v)
	}
	if v := os.Getenv("PADSYNC_SYNC_ON_STARTUP"); v != "" {
		c.Sync.SyncOnStartup = parseBool(v)
	}
	if v := os.Getenv("PADSYNC_SYNC_PROBE_URL"); v != "" {
		c.Sync.ProbeURL = v
	}

	// Logging settings
	if v := os.Getenv("PADSYNC_LOGGING_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PADSYNC_LOGGING_JSON"); v != "" {
		c.Logging.JSON = parseBool(v)
	}
	if v := os.Getenv("PADSYNC_LOGGING_FILE"); v != "" {
		c.Logging.File = v
	}

	// Backup settings
	if v := os.Getenv("PADSYNC_BACKUP_LOCATION"); v != "" {
		c.Backup.Location = v
	}
	if v := os.Getenv("PADSYNC_BACKUP_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Backup.MaxBackups = n
		}
	}
	setDuration("PADSYNC_BACKUP_MAX_AGE", &c.Backup.MaxAge)

	// Output settings
	if v := os.Getenv("PADSYNC_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
}

func setDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
