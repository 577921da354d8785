package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all environment overrides.
const EnvPrefix = "FORCED_ALIGNMENT_"

const defaultWorkers = 4

// Config holds the settings shared by every subcommand. Values come from
// defaults, then the YAML file, then the environment; command-line flags
// are applied last by the caller.
type Config struct {
	PlumcotPath     string `yaml:"plumcot_path"`
	TranscriptsPath string `yaml:"transcripts_path"`
	AlignedPath     string `yaml:"aligned_path"`
	WavPath         string `yaml:"wav_path"`

	ConfThreshold  float64 `yaml:"conf_threshold"`
	Collar         float64 `yaml:"collar"`
	ExpectedTime   float64 `yaml:"expected_time"`
	SplitThreshold float64 `yaml:"split_threshold"`

	Workers      int    `yaml:"workers"`
	WriteAligned bool   `yaml:"write_aligned"`
	DBPath       string `yaml:"db_path"`
	LogLevel     string `yaml:"log_level"`

	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
}

func defaults() Config {
	return Config{
		SplitThreshold:        0.15,
		Workers:               defaultWorkers,
		WriteAligned:          true,
		DBPath:                "data/forced-alignment.db",
		LogLevel:              "info",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides and validates the result. It returns the
// config, any validation warnings, and an error if the file exists but
// cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	warnings := cfg.Validate()
	return cfg, warnings, nil
}

// SerieDir is <plumcot_path>/Plumcot/data/<serie>.
func (c *Config) SerieDir(serie string) string {
	return filepath.Join(c.PlumcotPath, "Plumcot", "data", serie)
}

// TranscriptsDir defaults to <serie dir>/transcripts.
func (c *Config) TranscriptsDir(serie string) string {
	if c.TranscriptsPath != "" {
		return c.TranscriptsPath
	}
	return filepath.Join(c.SerieDir(serie), "transcripts")
}

// AlignedDir defaults to <serie dir>/forced-alignment.
func (c *Config) AlignedDir(serie string) string {
	if c.AlignedPath != "" {
		return c.AlignedPath
	}
	return filepath.Join(c.SerieDir(serie), "forced-alignment")
}

// WavDir is <wav_path>/<serie>, or empty when wav_path is unset.
func (c *Config) WavDir(serie string) string {
	if c.WavPath == "" {
		return ""
	}
	return filepath.Join(c.WavPath, serie)
}

// ParsedLogLevel falls back to info if LogLevel is invalid.
func (c *Config) ParsedLogLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Validate fixes values that cannot be used and reports them.
func (c *Config) Validate() []string {
	var warnings []string

	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		warnings = append(warnings, fmt.Sprintf("conf_threshold %v is outside [0, 1], every term will be treated the same.", c.ConfThreshold))
	}
	if c.Collar < 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid collar %v, using 0.", c.Collar))
		c.Collar = 0
	}
	if c.ExpectedTime < 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid expected_time %v, using 0.", c.ExpectedTime))
		c.ExpectedTime = 0
	}
	if c.SplitThreshold < 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid split_threshold %v, using 0.15.", c.SplitThreshold))
		c.SplitThreshold = 0.15
	}
	if c.Workers <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid workers %d, using %d.", c.Workers, defaultWorkers))
		c.Workers = defaultWorkers
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid log_level %q, using info.", c.LogLevel))
	}
	if c.GDriveFolderID != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); err != nil {
			warnings = append(warnings, fmt.Sprintf("Google credentials %q not readable, Drive upload will fail.", c.GoogleCredentialsFile))
		}
	}

	return warnings
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "PLUMCOT_PATH"); v != "" {
		cfg.PlumcotPath = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPTS_PATH"); v != "" {
		cfg.TranscriptsPath = v
	}
	if v := os.Getenv(EnvPrefix + "ALIGNED_PATH"); v != "" {
		cfg.AlignedPath = v
	}
	if v := os.Getenv(EnvPrefix + "WAV_PATH"); v != "" {
		cfg.WavPath = v
	}
	if v, ok := envFloat("CONF_THRESHOLD"); ok {
		cfg.ConfThreshold = v
	}
	if v, ok := envFloat("COLLAR"); ok {
		cfg.Collar = v
	}
	if v, ok := envFloat("EXPECTED_TIME"); ok {
		cfg.ExpectedTime = v
	}
	if v, ok := envFloat("SPLIT_THRESHOLD"); ok {
		cfg.SplitThreshold = v
	}
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv(EnvPrefix + "WRITE_ALIGNED"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.WriteAligned = b
		}
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func envFloat(key string) (float64, bool) {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
