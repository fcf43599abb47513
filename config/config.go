// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/guardrail/domain/anomaly"
	"github.com/artpar/guardrail/domain/cost"
	"github.com/artpar/guardrail/domain/guardrail"
	"github.com/artpar/guardrail/domain/plan"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/ports"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Policy      PolicyConfig      `yaml:"policy"`
	Trend       TrendConfig       `yaml:"trend"`
	Attribution AttributionConfig `yaml:"attribution"`
	Anomaly     AnomalyConfig     `yaml:"anomaly"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Plans       []PlanConfig      `yaml:"plans"`
	Accounts    []AccountConfig   `yaml:"accounts"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: /metrics
}

// PolicyConfig configures the guardrail tiering thresholds and the
// per-metric limit shapes.
type PolicyConfig struct {
	WarnPercent  float64           `yaml:"warn_percent"`  // default 75
	BlockPercent float64           `yaml:"block_percent"` // default 100
	Shapes       map[string]string `yaml:"shapes"`        // metric -> hard_capped|rate_shaped
}

// TrendConfig configures usage prediction.
type TrendConfig struct {
	Alpha float64 `yaml:"alpha"` // EWMA smoothing factor, default 0.3
}

// AttributionConfig configures cost attribution.
type AttributionConfig struct {
	Budget              time.Duration `yaml:"budget"`    // per-analysis time budget
	CacheTTL            time.Duration `yaml:"cache_ttl"` // snapshot TTL
	CacheHitImprovement float64       `yaml:"cache_hit_improvement"`
	ContextBaselinePct  float64       `yaml:"context_baseline_pct"`
}

// AnomalyConfig configures anomaly scoring and detection.
type AnomalyConfig struct {
	Weights   anomaly.Weights        `yaml:"weights"`
	Detectors anomaly.DetectorConfig `yaml:"detectors"`
}

// AlertsConfig configures alert evaluation.
type AlertsConfig struct {
	Interval       time.Duration `yaml:"interval"` // evaluation sweep interval
	Cooldown       time.Duration `yaml:"cooldown"` // repeat-alert suppression window
	StickyWarnings bool          `yaml:"sticky_warnings"`
}

// PlanConfig configures one subscription plan.
type PlanConfig struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	TokensPerMonth     int64    `yaml:"tokens_per_month"`
	RequestsPerMonth   int64    `yaml:"requests_per_month"`
	LogEntriesPerMonth int64    `yaml:"log_entries_per_month"`
	Projects           int64    `yaml:"projects"`
	Workflows          int64    `yaml:"workflows"`
	Seats              int64    `yaml:"seats"`
	Models             []string `yaml:"models"`
}

// AccountConfig seeds one account's subscription.
type AccountConfig struct {
	ID    string `yaml:"id"`
	Plan  string `yaml:"plan"`
	Seats int    `yaml:"seats"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	GUARDRAIL_SERVER_HOST     - Server host (default: 0.0.0.0)
//	GUARDRAIL_SERVER_PORT     - Server port (default: 8080)
//	GUARDRAIL_DATABASE_DSN    - Database path (default: guardrail.db)
//	GUARDRAIL_LOG_LEVEL       - Log level: debug, info, warn, error (default: info)
//	GUARDRAIL_LOG_FORMAT      - Log format: json or console (default: json)
//	GUARDRAIL_METRICS_ENABLED - Enable /metrics endpoint (default: true)
//	GUARDRAIL_WARN_PERCENT    - Warning tier lower bound (default: 75)
//	GUARDRAIL_BLOCK_PERCENT   - Hard tier lower bound (default: 100)
//	GUARDRAIL_ALERT_INTERVAL  - Alert sweep interval (default: 2m)
//	GUARDRAIL_ALERT_COOLDOWN  - Repeat-alert cooldown (default: 24h)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies GUARDRAIL_* environment variables.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GUARDRAIL_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("GUARDRAIL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GUARDRAIL_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("GUARDRAIL_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if v := os.Getenv("GUARDRAIL_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("GUARDRAIL_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("GUARDRAIL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GUARDRAIL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("GUARDRAIL_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("GUARDRAIL_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	if v := os.Getenv("GUARDRAIL_WARN_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Policy.WarnPercent = f
		}
	}
	if v := os.Getenv("GUARDRAIL_BLOCK_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Policy.BlockPercent = f
		}
	}

	if v := os.Getenv("GUARDRAIL_TREND_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trend.Alpha = f
		}
	}

	if v := os.Getenv("GUARDRAIL_ALERT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerts.Interval = d
		}
	}
	if v := os.Getenv("GUARDRAIL_ALERT_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerts.Cooldown = d
		}
	}
	if v := os.Getenv("GUARDRAIL_ALERT_STICKY_WARNINGS"); v != "" {
		cfg.Alerts.StickyWarnings = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "guardrail.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Policy.WarnPercent == 0 {
		cfg.Policy.WarnPercent = 75
	}
	if cfg.Policy.BlockPercent == 0 {
		cfg.Policy.BlockPercent = 100
	}

	if cfg.Trend.Alpha == 0 {
		cfg.Trend.Alpha = 0.3
	}

	if cfg.Attribution.Budget == 0 {
		cfg.Attribution.Budget = 5 * time.Second
	}
	if cfg.Attribution.CacheTTL == 0 {
		cfg.Attribution.CacheTTL = time.Minute
	}
	if cfg.Attribution.CacheHitImprovement == 0 {
		cfg.Attribution.CacheHitImprovement = 0.6
	}
	if cfg.Attribution.ContextBaselinePct == 0 {
		cfg.Attribution.ContextBaselinePct = 0.5
	}

	if cfg.Anomaly.Weights == (anomaly.Weights{}) {
		cfg.Anomaly.Weights = anomaly.DefaultWeights()
	}
	if cfg.Anomaly.Detectors == (anomaly.DetectorConfig{}) {
		cfg.Anomaly.Detectors = anomaly.DefaultDetectorConfig()
	}
	if cfg.Anomaly.Detectors.SpikeFactor == 0 {
		cfg.Anomaly.Detectors.SpikeFactor = anomaly.DefaultDetectorConfig().SpikeFactor
	}

	if cfg.Alerts.Interval == 0 {
		cfg.Alerts.Interval = 2 * time.Minute
	}
	if cfg.Alerts.Cooldown == 0 {
		cfg.Alerts.Cooldown = 24 * time.Hour
	}

	// Default free plan if none configured
	if len(cfg.Plans) == 0 {
		cfg.Plans = []PlanConfig{
			{
				ID:                 "free",
				Name:               "Free",
				TokensPerMonth:     1_000_000,
				RequestsPerMonth:   1000,
				LogEntriesPerMonth: 10_000,
				Projects:           3,
				Workflows:          5,
				Seats:              1,
			},
		}
	}
}

func validate(cfg *Config) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
	}

	if cfg.Policy.WarnPercent <= 0 || cfg.Policy.WarnPercent >= cfg.Policy.BlockPercent {
		return fmt.Errorf("policy.warn_percent must be positive and below block_percent")
	}
	for metric, shape := range cfg.Policy.Shapes {
		if !usage.IsValidMetric(usage.Metric(metric)) {
			return fmt.Errorf("policy.shapes: unknown metric %q", metric)
		}
		if shape != string(guardrail.ShapeHardCapped) && shape != string(guardrail.ShapeRateShaped) {
			return fmt.Errorf("policy.shapes[%s] must be 'hard_capped' or 'rate_shaped', got %q", metric, shape)
		}
	}

	if cfg.Trend.Alpha <= 0 || cfg.Trend.Alpha >= 1 {
		return fmt.Errorf("trend.alpha must be in (0, 1), got %v", cfg.Trend.Alpha)
	}

	w := cfg.Anomaly.Weights
	if sum := w.Deviation + w.Concentration + w.Spike; sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("anomaly.weights must sum to 1, got %v", sum)
	}

	planIDs := make(map[string]bool, len(cfg.Plans))
	for i, p := range cfg.Plans {
		if p.ID == "" {
			return fmt.Errorf("plans[%d].id is required", i)
		}
		if planIDs[p.ID] {
			return fmt.Errorf("plans[%d]: duplicate plan id %q", i, p.ID)
		}
		planIDs[p.ID] = true
	}

	for i, a := range cfg.Accounts {
		if a.ID == "" {
			return fmt.Errorf("accounts[%d].id is required", i)
		}
		if !planIDs[a.Plan] {
			return fmt.Errorf("accounts[%d]: unknown plan %q", i, a.Plan)
		}
	}

	return nil
}

// ToPlans converts the configured plans into domain values.
func (c *Config) ToPlans() []plan.Plan {
	out := make([]plan.Plan, len(c.Plans))
	for i, p := range c.Plans {
		out[i] = plan.Plan{
			ID:   p.ID,
			Name: p.Name,
			Limits: plan.Limits{
				TokensPerMonth:   p.TokensPerMonth,
				RequestsPerMonth: p.RequestsPerMonth,
				LogsPerMonth:     p.LogEntriesPerMonth,
				Projects:         p.Projects,
				Workflows:        p.Workflows,
				Seats:            p.Seats,
				Models:           p.Models,
			},
		}
	}
	return out
}

// ToAccounts converts the seeded accounts into port values.
func (c *Config) ToAccounts(now time.Time) []ports.Account {
	out := make([]ports.Account, len(c.Accounts))
	for i, a := range c.Accounts {
		seats := a.Seats
		if seats == 0 {
			seats = 1
		}
		out[i] = ports.Account{
			ID:        a.ID,
			PlanID:    a.Plan,
			Seats:     seats,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return out
}

// ToPolicy converts the policy section into the domain policy table.
func (c *Config) ToPolicy() guardrail.Policy {
	p := guardrail.DefaultPolicy()
	p.Thresholds = guardrail.Thresholds{
		WarnPercent:  c.Policy.WarnPercent,
		BlockPercent: c.Policy.BlockPercent,
	}
	for metric, shape := range c.Policy.Shapes {
		p.Shapes[usage.Metric(metric)] = guardrail.LimitShape(shape)
	}
	return p
}

// ToOptimizationParams converts the attribution section.
func (c *Config) ToOptimizationParams() cost.OptimizationParams {
	return cost.OptimizationParams{
		CacheHitImprovement: c.Attribution.CacheHitImprovement,
		ContextBaselinePct:  c.Attribution.ContextBaselinePct,
	}
}
