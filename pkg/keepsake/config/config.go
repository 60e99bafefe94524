package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

// EnvPrefix prefixes every environment override, e.g. KEEPSAKE_WATCH_ROOT.
const EnvPrefix = "KEEPSAKE"

// WatchConfig selects what is monitored.
type WatchConfig struct {
	Root       string   `mapstructure:"root" yaml:"root"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	Exclude    []string `mapstructure:"exclude" yaml:"exclude"`
}

// BackupConfig configures per-file backups.
type BackupConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
	Max  int    `mapstructure:"max" yaml:"max"`
}

// LedgerConfig configures daily summaries and consolidated logs.
type LedgerConfig struct {
	SummaryDir       string `mapstructure:"summary_dir" yaml:"summary_dir"`
	LogDir           string `mapstructure:"log_dir" yaml:"log_dir"`
	MaxSummaries     int    `mapstructure:"max_summaries" yaml:"max_summaries"`
	MaxLogs          int    `mapstructure:"max_logs" yaml:"max_logs"`
	Consolidated     bool   `mapstructure:"consolidated" yaml:"consolidated"`
	RolloverSchedule string `mapstructure:"rollover_schedule" yaml:"rollover_schedule"`
}

// SnapshotConfig configures whole-tree snapshots.
type SnapshotConfig struct {
	// Root is where snapshots are written. Empty disables snapshots.
	Root       string `mapstructure:"root" yaml:"root"`
	Max        int    `mapstructure:"max" yaml:"max"`
	OnShutdown bool   `mapstructure:"on_shutdown" yaml:"on_shutdown"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
	Console    bool   `mapstructure:"console" yaml:"console"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Console    string            `mapstructure:"console" yaml:"console"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components"`
}

// DaemonConfig configures the background daemon.
type DaemonConfig struct {
	BinaryPath  string `mapstructure:"binary_path" yaml:"binary_path"` // keepsaked, auto-discovered if empty
	SocketPath  string `mapstructure:"socket_path" yaml:"socket_path"`
	PIDPath     string `mapstructure:"pid_path" yaml:"pid_path"`
	ArchivePath string `mapstructure:"archive_path" yaml:"archive_path"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// Config represents the application configuration.
type Config struct {
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Backup   BackupConfig   `mapstructure:"backup" yaml:"backup"`
	Ledger   LedgerConfig   `mapstructure:"ledger" yaml:"ledger"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Daemon   DaemonConfig   `mapstructure:"daemon" yaml:"daemon"`

	// File is the config file that was read, empty when running on defaults.
	File string `mapstructure:"-" yaml:"-"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("watch.root", "")
	v.SetDefault("watch.extensions", DefaultExtensions)
	v.SetDefault("watch.exclude", DefaultExclude)

	v.SetDefault("backup.root", filepath.Join(DataDir(), "backups"))
	v.SetDefault("backup.max", DefaultMaxBackups)

	v.SetDefault("ledger.summary_dir", filepath.Join(DataDir(), "summaries"))
	v.SetDefault("ledger.log_dir", filepath.Join(DataDir(), "logs"))
	v.SetDefault("ledger.max_summaries", DefaultMaxSummaries)
	v.SetDefault("ledger.max_logs", DefaultMaxLogs)
	v.SetDefault("ledger.consolidated", true)
	v.SetDefault("ledger.rollover_schedule", DefaultRolloverSchedule)

	v.SetDefault("snapshot.root", filepath.Join(DataDir(), "snapshots"))
	v.SetDefault("snapshot.max", DefaultMaxSnapshots)
	v.SetDefault("snapshot.on_shutdown", true)

	v.SetDefault("audit.path", filepath.Join(StateDir(), "audit.log"))
	v.SetDefault("audit.max_size", DefaultAuditMaxSize)
	v.SetDefault("audit.max_backups", DefaultAuditMaxBackups)
	v.SetDefault("audit.compress", false)
	v.SetDefault("audit.console", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.console", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", DefaultComponentLevels)

	v.SetDefault("daemon.binary_path", "")
	v.SetDefault("daemon.socket_path", "") // Empty means use default XDG path
	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.archive_path", "")
	v.SetDefault("daemon.metrics_addr", "")
}

// Load reads configuration from the default locations:
//   - $XDG_CONFIG_HOME/keepsake/config.yaml
//   - $HOME/.config/keepsake/config.yaml
//
// Environment variables are prefixed with KEEPSAKE_ (e.g. KEEPSAKE_WATCH_ROOT).
func Load() (*Config, error) {
	return LoadWith(viper.New(), "")
}

// LoadWith reads configuration into v, which may already carry bound flags.
// A non-empty file overrides the search path and must exist.
func LoadWith(v *viper.Viper, file string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "keepsake"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "keepsake"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv loads KEY=value pairs from .env in the config directory.
// Variables already set in the environment win.
func loadDotEnv() error {
	dir, err := ConfigDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (c *Config) expandPaths() error {
	paths := []*string{
		&c.Watch.Root,
		&c.Backup.Root,
		&c.Ledger.SummaryDir,
		&c.Ledger.LogDir,
		&c.Snapshot.Root,
		&c.Audit.Path,
		&c.Logging.Path,
		&c.Daemon.SocketPath,
		&c.Daemon.PIDPath,
		&c.Daemon.ArchivePath,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

// AuditMaxBytes returns audit.max_size in bytes.
func (c *Config) AuditMaxBytes() (uint64, error) {
	n, err := types.ParseSize(c.Audit.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("audit.max_size: %w", err)
	}
	return uint64(n), nil
}

// LogMaxBytes returns logging.rotation.max_size in bytes.
func (c *Config) LogMaxBytes() (int64, error) {
	if c.Logging.Rotation.MaxSize == "" {
		return 0, nil
	}
	n, err := types.ParseSize(c.Logging.Rotation.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("logging.rotation.max_size: %w", err)
	}
	return n, nil
}

// SocketPath returns the configured socket path or the default.
func (c *Config) SocketPath() string {
	if c.Daemon.SocketPath != "" {
		return c.Daemon.SocketPath
	}
	return DefaultSocketPath()
}

// PIDPath returns the configured PID file path or the default.
func (c *Config) PIDPath() string {
	if c.Daemon.PIDPath != "" {
		return c.Daemon.PIDPath
	}
	return DefaultPIDPath()
}

// ArchivePath returns the configured archive directory or the default.
func (c *Config) ArchivePath() string {
	if c.Daemon.ArchivePath != "" {
		return c.Daemon.ArchivePath
	}
	return DefaultArchivePath()
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return out, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "keepsake"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "keepsake"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists and returns its path.
// An existing file is left untouched.
func WriteDefault(watchRoot string) (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}

	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# keepsake configuration

watch:
  # Directory to monitor (required)
  root: %q
  # Extensions to monitor, case-insensitive
  extensions:
    - .txt
  # Glob patterns for files that are never monitored
  exclude:
    - "~$*"
    - "*.tmp"
    - ".~lock*"

backup:
  # One subdirectory per file stem
  root: %q
  # Backups kept per file
  max: %d

ledger:
  summary_dir: %q
  log_dir: %q
  max_summaries: %d
  max_logs: %d
  # Write log_YYYYMMDD.txt with every event of the day
  consolidated: true
  # Cron expression for the day-rollover check
  rollover_schedule: %q

snapshot:
  # Whole-tree copies; empty disables them
  root: %q
  max: %d
  on_shutdown: true

audit:
  path: %q
  max_size: %s
  max_backups: %d
  # Mirror audit lines to the terminal in foreground mode
  console: false

logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/keepsake/keepsake.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    daemon: info
    watcher: warn
    coordinator: info
    ledger: info
    backup: info

daemon:
  # Unix socket path (empty means use default: $XDG_DATA_HOME/keepsake/keepsake.sock)
  socket_path: ""
  # PID file path (empty means use default: $XDG_DATA_HOME/keepsake/keepsake.pid)
  pid_path: ""
  # Prometheus listen address, e.g. 127.0.0.1:9464 (empty disables metrics)
  metrics_addr: ""
`,
		watchRoot,
		filepath.Join(DataDir(), "backups"), DefaultMaxBackups,
		filepath.Join(DataDir(), "summaries"), filepath.Join(DataDir(), "logs"),
		DefaultMaxSummaries, DefaultMaxLogs, DefaultRolloverSchedule,
		filepath.Join(DataDir(), "snapshots"), DefaultMaxSnapshots,
		filepath.Join(StateDir(), "audit.log"), DefaultAuditMaxSize, DefaultAuditMaxBackups,
	)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/keepsake/ for artifacts, the archive, socket and pid files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "keepsake")
}

// StateDir returns $XDG_STATE_HOME/keepsake/ for log and audit files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "keepsake")
}

// DefaultSocketPath returns the default Unix socket path.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), "keepsake.sock")
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "keepsake.pid")
}

// DefaultArchivePath returns the default badger directory for archived tallies.
func DefaultArchivePath() string {
	return filepath.Join(DataDir(), "archive")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
