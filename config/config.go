package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"cyberres/core"
	"cyberres/correlate"
	"cyberres/ingest"

	"github.com/spf13/viper"
)

// Config holds all configuration for a cyberres run
type Config struct {
	Input struct {
		// Path is the events file (CYBERRES_INPUT, default: data/events.csv)
		Path            string `mapstructure:"path"`
		Format          string `mapstructure:"format"`
		ReorderSlackSec int    `mapstructure:"reorder_slack_sec"`
	} `mapstructure:"input"`

	Catalog struct {
		// Dir holds rules.yaml and policies.yaml (CYBERRES_CONFIG_DIR, default: ./config)
		Dir          string `mapstructure:"dir"`
		RulesFile    string `mapstructure:"rules_file"`
		PoliciesFile string `mapstructure:"policies_file"`
	} `mapstructure:"catalog"`

	Output struct {
		// Dir receives every report file (CYBERRES_OUT_DIR, default: ./out)
		Dir        string `mapstructure:"dir"`
		EmitAlerts bool   `mapstructure:"emit_alerts"`
		HTML       bool   `mapstructure:"html"`
	} `mapstructure:"output"`

	Evaluation struct {
		Policies          []string `mapstructure:"policies"`
		HorizonDays       float64  `mapstructure:"horizon_days"`
		Seed              uint64   `mapstructure:"seed"`
		CorrelationGapSec int      `mapstructure:"correlation_gap_sec"`
		Workers           int      `mapstructure:"workers"`
		TruncateAtHorizon bool     `mapstructure:"truncate_at_horizon"`
		BaselineSize      int      `mapstructure:"baseline_size"`
	} `mapstructure:"evaluation"`

	Timing struct {
		Jitter   float64                         `mapstructure:"jitter"`
		Base     map[string]correlate.BaseTiming `mapstructure:"base"`
		Impact   map[string]float64              `mapstructure:"impact"`
		Response map[string]string               `mapstructure:"response"`
	} `mapstructure:"timing"`

	Watch struct {
		PollIntervalMs int `mapstructure:"poll_interval_ms"`
	} `mapstructure:"watch"`

	Diagnostics struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"diagnostics"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

func setDefaults() {
	viper.SetDefault("input.path", "data/events.csv")
	viper.SetDefault("input.format", string(ingest.FormatAuto))
	viper.SetDefault("input.reorder_slack_sec", int(ingest.DefaultReorderSlack/time.Second))

	viper.SetDefault("catalog.dir", "./config")
	viper.SetDefault("catalog.rules_file", "rules.yaml")
	viper.SetDefault("catalog.policies_file", "policies.yaml")

	viper.SetDefault("output.dir", "./out")
	viper.SetDefault("output.emit_alerts", false)
	viper.SetDefault("output.html", true)

	viper.SetDefault("evaluation.policies", []string{"all"})
	viper.SetDefault("evaluation.horizon_days", 0.0)
	viper.SetDefault("evaluation.seed", 42)
	viper.SetDefault("evaluation.correlation_gap_sec", int(correlate.DefaultGap/time.Second))
	viper.SetDefault("evaluation.workers", 0) // 0 = one per CPU
	viper.SetDefault("evaluation.truncate_at_horizon", false)
	viper.SetDefault("evaluation.baseline_size", 4096)

	viper.SetDefault("timing.jitter", correlate.DefaultJitter)

	viper.SetDefault("watch.poll_interval_ms", 1000)

	viper.SetDefault("diagnostics.enabled", false)
	viper.SetDefault("diagnostics.addr", "127.0.0.1:9464")

	viper.SetDefault("logging.level", "info")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("CYBERRES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Shorter names for the paths people override most
	_ = viper.BindEnv("input.path", "CYBERRES_INPUT")
	_ = viper.BindEnv("catalog.dir", "CYBERRES_CONFIG_DIR")
	_ = viper.BindEnv("output.dir", "CYBERRES_OUT_DIR")
}

// LoadConfig loads configuration from config.yaml in . or ./config, the
// environment and any flags bound to viper
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config: %v", core.ErrInvalidConfig, err)
		}
		// No config file: defaults, env and flags only
	}
	return decode()
}

// LoadConfigFile loads configuration from an explicit file
func LoadConfigFile(path string) (*Config, error) {
	viper.SetConfigFile(path)

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to read config %s: %v", core.ErrInvalidConfig, path, err)
	}
	return decode()
}

func decode() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("%w: unable to decode config: %v", core.ErrInvalidConfig, err)
	}
	config.Evaluation.Policies = splitList(config.Evaluation.Policies)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// splitList accepts both list values and a single comma separated string, the
// form flags and environment variables arrive in
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validateConfig(config *Config) error {
	var errs []error

	if strings.TrimSpace(config.Input.Path) == "" {
		errs = append(errs, errors.New("input.path cannot be empty"))
	}
	if _, err := ingest.ParseFormat(config.Input.Format); err != nil {
		errs = append(errs, fmt.Errorf("input.format: %q is not one of auto, csv, jsonl, msgpack", config.Input.Format))
	}
	if config.Input.ReorderSlackSec < 0 {
		errs = append(errs, fmt.Errorf("input.reorder_slack_sec must be >= 0, got %d", config.Input.ReorderSlackSec))
	}

	if config.Catalog.Dir == "" && (!filepath.IsAbs(config.Catalog.RulesFile) || !filepath.IsAbs(config.Catalog.PoliciesFile)) {
		errs = append(errs, errors.New("catalog.dir cannot be empty when catalog files are relative"))
	}
	if config.Catalog.RulesFile == "" || config.Catalog.PoliciesFile == "" {
		errs = append(errs, errors.New("catalog.rules_file and catalog.policies_file are required"))
	}
	if config.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir cannot be empty"))
	}

	if config.Evaluation.HorizonDays < 0 {
		errs = append(errs, fmt.Errorf("evaluation.horizon_days must be >= 0, got %g", config.Evaluation.HorizonDays))
	}
	if config.Evaluation.CorrelationGapSec <= 0 {
		errs = append(errs, fmt.Errorf("evaluation.correlation_gap_sec must be > 0, got %d", config.Evaluation.CorrelationGapSec))
	}
	if config.Evaluation.Workers < 0 {
		errs = append(errs, fmt.Errorf("evaluation.workers must be >= 0, got %d", config.Evaluation.Workers))
	}
	if config.Evaluation.BaselineSize <= 0 {
		errs = append(errs, fmt.Errorf("evaluation.baseline_size must be > 0, got %d", config.Evaluation.BaselineSize))
	}

	if _, err := config.TimingModel(); err != nil {
		errs = append(errs, err)
	}

	if config.Watch.PollIntervalMs < 50 {
		errs = append(errs, fmt.Errorf("watch.poll_interval_ms must be >= 50, got %d", config.Watch.PollIntervalMs))
	}
	if config.Diagnostics.Enabled {
		if _, _, err := net.SplitHostPort(config.Diagnostics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("diagnostics.addr %q: %w", config.Diagnostics.Addr, err))
		}
	}

	switch strings.ToLower(config.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", config.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// TimingModel builds the correlator's timing table. Entries in the config
// override the defaults per threat type.
func (c *Config) TimingModel() (correlate.TimingModel, error) {
	m := correlate.DefaultTimingModel()
	m.Jitter = c.Timing.Jitter
	m.Seed = c.Evaluation.Seed
	for name, b := range c.Timing.Base {
		m.Base[core.ThreatType(strings.ToLower(name))] = b
	}
	for name, v := range c.Timing.Impact {
		m.Impact[core.ThreatType(strings.ToLower(name))] = v
	}
	for name, v := range c.Timing.Response {
		m.Response[core.ThreatType(strings.ToLower(name))] = v
	}
	if err := m.Validate(); err != nil {
		return correlate.TimingModel{}, err
	}
	return m, nil
}

// RulesPath returns the rule catalog location
func (c *Config) RulesPath() string {
	return c.catalogPath(c.Catalog.RulesFile)
}

// PoliciesPath returns the policy catalog location
func (c *Config) PoliciesPath() string {
	return c.catalogPath(c.Catalog.PoliciesFile)
}

func (c *Config) catalogPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Catalog.Dir, name)
}

// InputFormat returns the parsed input format
func (c *Config) InputFormat() ingest.Format {
	f, err := ingest.ParseFormat(c.Input.Format)
	if err != nil {
		return ingest.FormatAuto
	}
	return f
}

// ReorderSlack returns the tolerated out-of-order distance
func (c *Config) ReorderSlack() time.Duration {
	return time.Duration(c.Input.ReorderSlackSec) * time.Second
}

// CorrelationGap returns the implicit grouping gap
func (c *Config) CorrelationGap() time.Duration {
	return time.Duration(c.Evaluation.CorrelationGapSec) * time.Second
}

// PollInterval returns the watch-mode poll period
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollIntervalMs) * time.Millisecond
}
