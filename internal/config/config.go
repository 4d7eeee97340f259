package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	TempDir string `toml:"temp_dir"`
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Storage describes the S3-compatible object store.
type Storage struct {
	ServiceURL   string `toml:"service_url"`
	Region       string `toml:"region"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UploadBucket string `toml:"upload_bucket"`
	TempBucket   string `toml:"temp_bucket"`
	StaleAgeDays int    `toml:"stale_age_days"`
}

// Scanner configures the container used for scanning and conversion, and the
// download step that feeds it.
type Scanner struct {
	DockerBinary           string `toml:"docker_binary"`
	Image                  string `toml:"image"`
	CommandTimeout         int    `toml:"command_timeout"`
	DownloadTimeout        int    `toml:"download_timeout"`
	TrustLocalFiles        bool   `toml:"trust_local_files"`
	MinConversionSizeBytes int64  `toml:"min_conversion_size_bytes"`
}

// Callback configures result delivery.
type Callback struct {
	Timeout   int    `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// Workflow contains worker and queue timing settings.
type Workflow struct {
	Workers           int `toml:"workers"`
	QueuePollInterval int `toml:"queue_poll_interval"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
	MaxAttempts       int `toml:"max_attempts"`
	RetryBackoff      int `toml:"retry_backoff"`
}

// API configures the HTTP front-end.
type API struct {
	Bind   string   `toml:"bind"`
	Tokens []string `toml:"tokens"`
}

// Cleanup configures the storage cleanup job and the local temp sweeper.
type Cleanup struct {
	DatabaseURL      string `toml:"database_url"`
	CutoffHours      int    `toml:"cutoff_hours"`
	LocalMaxAgeHours int    `toml:"local_max_age_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the scanner.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Storage  Storage  `toml:"storage"`
	Scanner  Scanner  `toml:"scanner"`
	Callback Callback `toml:"callback"`
	Workflow Workflow `toml:"workflow"`
	API      API      `toml:"api"`
	Cleanup  Cleanup  `toml:"cleanup"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, normalizes and validates a configuration file. A
// missing file is not an error; defaults plus environment values are used.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	env, err := loadEnvironment(filepath.Dir(resolved))
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(env); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("modelscanner.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TempDir, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath is the SQLite file backing the job queue.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath is the flock file that keeps a single daemon per data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "modelscanner.lock")
}

// StaleAge is the age after which temp bucket objects are purged.
func (c *Config) StaleAge() time.Duration {
	return time.Duration(c.Storage.StaleAgeDays) * 24 * time.Hour
}

// CleanupCutoff is the minimum age of an upload before cleanup may touch it.
func (c *Config) CleanupCutoff() time.Duration {
	return time.Duration(c.Cleanup.CutoffHours) * time.Hour
}

func expandPath(value string) (string, error) {
	if value == "" {
		return value, nil
	}
	if strings.HasPrefix(value, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		switch {
		case value == "~":
			value = home
		case len(value) > 1 && (value[1] == '/' || value[1] == '\\'):
			value = filepath.Join(home, value[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(value))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(value string) (string, error) {
	return expandPath(value)
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
