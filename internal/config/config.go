package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GridConfig holds the day-grid geometry defaults applied to new views.
type GridConfig struct {
	// HourHeightPx is the pixel height of one hour row.
	HourHeightPx float64 `yaml:"hour_height_px" json:"hour_height_px"`

	// DayStartMinutes shifts the visual start of the day (0-1439), e.g.
	// 300 renders days from 05:00 to 05:00.
	DayStartMinutes int `yaml:"day_start_minutes" json:"day_start_minutes"`

	// SnapMinutes is the drag snapping granularity.
	SnapMinutes int `yaml:"snap_minutes" json:"snap_minutes"`
}

// Config is the top-level application configuration.
type Config struct {
	// CalendarDir is the directory holding one ICS document per calendar.
	CalendarDir string `yaml:"calendar_dir" json:"calendar_dir"`

	// TaskDB is the path of the sqlite task database. Empty disables the
	// merged task view.
	TaskDB string `yaml:"task_db,omitempty" json:"task_db,omitempty"`

	// Timezone is the IANA display timezone (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// AutosaveCron is a five-field cron expression for flushing dirty
	// calendars to disk.
	AutosaveCron string `yaml:"autosave" json:"autosave"`

	// TimerTickMs is the timer runtime poll interval in milliseconds.
	TimerTickMs int `yaml:"timer_tick_ms" json:"timer_tick_ms"`

	// LogLevel overrides the GRIDCAL_LOG env level when set
	// (debug/info/warn/error).
	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty"`

	Grid GridConfig `yaml:"grid" json:"grid"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		CalendarDir:  defaultCalendarDir(),
		Timezone:     "Local",
		AutosaveCron: "*/5 * * * *",
		TimerTickMs:  250,
		Grid: GridConfig{
			HourHeightPx:    60,
			DayStartMinutes: 0,
			SnapMinutes:     15,
		},
	}
}

func defaultCalendarDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./calendars"
	}
	return filepath.Join(home, ".gridcal", "calendars")
}

// Normalize fills missing/zero values with defaults so partially-filled
// configs from older versions still behave.
func (c *Config) Normalize() {
	if c.CalendarDir == "" {
		c.CalendarDir = defaultCalendarDir()
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.AutosaveCron == "" {
		c.AutosaveCron = "*/5 * * * *"
	}
	if c.TimerTickMs <= 0 {
		c.TimerTickMs = 250
	}
	if c.Grid.HourHeightPx <= 0 {
		c.Grid.HourHeightPx = 60
	}
	if c.Grid.DayStartMinutes < 0 || c.Grid.DayStartMinutes > 1439 {
		c.Grid.DayStartMinutes = 0
	}
	if c.Grid.SnapMinutes <= 0 {
		c.Grid.SnapMinutes = 15
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (parent
// directory created as needed, 0600 perms) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
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

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions.
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

	tmp, err := os.CreateTemp(dir, ".gridcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
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
	return os.Rename(tmpName, path)
}
