package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// ScheduleURL is the utility's outage-schedule page to scrape.
	ScheduleURL string `yaml:"schedule_url" json:"schedule_url"`

	// Group is the consumer group whose schedule lines are synced
	// (matched as a case-sensitive substring of each entry).
	Group string `yaml:"group" json:"group"`

	// Timezone is the IANA timezone the schedule is published in
	// (e.g. "Asia/Colombo"). All event timestamps are stamped with it.
	Timezone string `yaml:"timezone" json:"timezone"`

	// CalendarID is the target Google calendar. "primary" or a shared
	// calendar address like "...@group.calendar.google.com".
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`

	// CredentialsFile is the OAuth client secret JSON downloaded from the
	// Google Cloud console.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`

	// TokenFile is where the authorized user token is cached between runs.
	TokenFile string `yaml:"token_file" json:"token_file"`

	// SyncCron is a cron-style schedule string for daemon mode
	// (e.g. "30 18 * * *" for 18:30 daily).
	SyncCron string `yaml:"sync_cron" json:"sync_cron"`

	// ICSExport, if non-empty, is a path where each successful extraction
	// is also written as an iCalendar file.
	ICSExport string `yaml:"ics_export,omitempty" json:"ics_export,omitempty"`

	// Listen, if non-empty, enables the HTTP status server on this address.
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, protects the status server endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		ScheduleURL:     "https://cebcare.ceb.lk/Incognito/DemandMgmtSchedule",
		Group:           "K",
		Timezone:        "Asia/Colombo",
		CalendarID:      "primary",
		CredentialsFile: "api_credentials.json",
		TokenFile:       "api_token.json",
		SyncCron:        "30 18 * * *",
		LogLevel:        "info",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.ScheduleURL == "" {
		c.ScheduleURL = "https://cebcare.ceb.lk/Incognito/DemandMgmtSchedule"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Colombo"
	}
	if c.CalendarID == "" {
		c.CalendarID = "primary"
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = "api_credentials.json"
	}
	if c.TokenFile == "" {
		c.TokenFile = "api_token.json"
	}
	if c.SyncCron == "" {
		c.SyncCron = "30 18 * * *"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	if c.Group == "" {
		return errors.New("config: group is required")
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".powercal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}
