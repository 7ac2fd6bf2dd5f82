// Package config handles configuration loading and validation for latchd.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the complete latchd configuration. It is constructed
// once at startup and passed by reference into the components that need
// it; there is no ambient global.
type Config struct {
	// Lock configuration for the lock session itself.
	Lock LockConfig `toml:"lock" yaml:"lock"`

	// Cursor configuration for the lock cursor resource.
	Cursor CursorConfig `toml:"cursor" yaml:"cursor"`

	// Daemon configuration for the background poller.
	Daemon DaemonConfig `toml:"daemon" yaml:"daemon"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" yaml:"logging"`

	// Audit configuration for the lifecycle event store.
	Audit AuditConfig `toml:"audit" yaml:"audit"`
}

// LockConfig holds authentication and display settings.
type LockConfig struct {
	// Display is the X display to lock. Empty means $DISPLAY.
	Display string `toml:"display" yaml:"display"`

	// SecretFile is the path of the fixed-secret file. Empty disables
	// the fixed-secret source.
	SecretFile string `toml:"secret_file" yaml:"secret_file"`

	// UsePAM enables the delegated system authenticator.
	UsePAM bool `toml:"use_pam" yaml:"use_pam"`

	// AllowRoot permits running as the superuser. PAM stacks commonly
	// refuse root authentication, which would make the lock
	// unrecoverable, so this defaults to off.
	AllowRoot bool `toml:"allow_root" yaml:"allow_root"`
}

// CursorConfig holds the cursor resource settings.
type CursorConfig struct {
	// Path overrides the probe order with an explicit descriptor file.
	Path string `toml:"path" yaml:"path"`
}

// DaemonConfig holds the background poller settings.
type DaemonConfig struct {
	// PollIntervalSec is the lock-request poll interval in seconds.
	PollIntervalSec int `toml:"poll_interval_sec" yaml:"poll_interval_sec"`

	// LockFlag is the lock-request flag path.
	LockFlag string `toml:"lock_flag" yaml:"lock_flag"`

	// UnlockFlag is the unlock-override flag path.
	UnlockFlag string `toml:"unlock_flag" yaml:"unlock_flag"`

	// ListenLogind subscribes to the logind session Lock signal as an
	// additional lock trigger and mirrors the lock state into
	// SetLockedHint.
	ListenLogind bool `toml:"listen_logind" yaml:"listen_logind"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file", or "both".
	Output string `toml:"output" yaml:"output"`

	// FilePath is the log file path when Output includes "file".
	FilePath string `toml:"file_path" yaml:"file_path"`
}

// AuditConfig holds the lifecycle event store settings.
type AuditConfig struct {
	// Enabled turns the audit trail on.
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// Path is the SQLite database path.
	Path string `toml:"path" yaml:"path"`
}

// runtimeDir returns the per-user runtime directory for flag files.
func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "latchd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "latchd")
}

// stateDir returns the per-user state directory.
func stateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "latchd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "latchd")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Lock: LockConfig{
			UsePAM: true,
		},
		Daemon: DaemonConfig{
			PollIntervalSec: 2,
			LockFlag:        filepath.Join(runtimeDir(), "lock-request"),
			UnlockFlag:      filepath.Join(runtimeDir(), "unlock-override"),
			ListenLogind:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(stateDir(), "audit.db"),
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "latchd", "latchd.toml")
}

// ApplyEnvOverrides applies LATCHD_* environment variables on top of
// the file configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LATCHD_DISPLAY"); v != "" {
		c.Lock.Display = v
	}
	if v := os.Getenv("LATCHD_SECRET_FILE"); v != "" {
		c.Lock.SecretFile = v
	}
	if v := os.Getenv("LATCHD_USE_PAM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Lock.UsePAM = b
		}
	}
	if v := os.Getenv("LATCHD_LOCK_FLAG"); v != "" {
		c.Daemon.LockFlag = v
	}
	if v := os.Getenv("LATCHD_UNLOCK_FLAG"); v != "" {
		c.Daemon.UnlockFlag = v
	}
	if v := os.Getenv("LATCHD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if !c.Lock.UsePAM && c.Lock.SecretFile == "" {
		errs = append(errs, errors.New("no authentication source: set lock.secret_file or lock.use_pam"))
	}

	if c.Daemon.PollIntervalSec <= 0 {
		errs = append(errs, fmt.Errorf("daemon.poll_interval_sec must be positive, got %d", c.Daemon.PollIntervalSec))
	}
	if c.Daemon.LockFlag == "" {
		errs = append(errs, errors.New("daemon.lock_flag must not be empty"))
	}
	if c.Daemon.UnlockFlag == "" {
		errs = append(errs, errors.New("daemon.unlock_flag must not be empty"))
	}
	if c.Daemon.LockFlag == c.Daemon.UnlockFlag {
		errs = append(errs, errors.New("daemon.lock_flag and daemon.unlock_flag must differ"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	switch strings.ToLower(c.Logging.Output) {
	case "", "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.output %q", c.Logging.Output))
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, errors.New("audit.path must not be empty when audit is enabled"))
	}

	return errors.Join(errs...)
}
