package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/guardrail/config"
	"github.com/artpar/guardrail/domain/guardrail"
	"github.com/artpar/guardrail/domain/usage"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guardrail.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host, got %s", cfg.Server.Host)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging, got %+v", cfg.Logging)
	}
	if cfg.Policy.WarnPercent != 75 || cfg.Policy.BlockPercent != 100 {
		t.Errorf("expected default thresholds, got %+v", cfg.Policy)
	}
	if cfg.Trend.Alpha != 0.3 {
		t.Errorf("expected default alpha 0.3, got %f", cfg.Trend.Alpha)
	}
	if cfg.Attribution.Budget != 5*time.Second {
		t.Errorf("expected default budget 5s, got %v", cfg.Attribution.Budget)
	}
	if cfg.Alerts.Interval != 2*time.Minute || cfg.Alerts.Cooldown != 24*time.Hour {
		t.Errorf("expected default alert timing, got %+v", cfg.Alerts)
	}
	if len(cfg.Plans) != 1 || cfg.Plans[0].ID != "free" {
		t.Errorf("expected default free plan, got %+v", cfg.Plans)
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 8181
logging:
  level: debug
  format: console
policy:
  warn_percent: 80
  block_percent: 110
  shapes:
    workflows: rate_shaped
alerts:
  sticky_warnings: true
plans:
  - id: free
    name: Free
    tokens_per_month: 100000
    requests_per_month: 1000
    log_entries_per_month: 10000
    projects: 3
    workflows: 5
    seats: 1
    models: ["small-v1"]
  - id: pro
    name: Pro
    tokens_per_month: -1
    requests_per_month: -1
    log_entries_per_month: -1
    projects: -1
    workflows: -1
    seats: 10
    models: ["*"]
accounts:
  - id: acct-1
    plan: free
  - id: acct-2
    plan: pro
    seats: 4
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Policy.WarnPercent != 80 || cfg.Policy.BlockPercent != 110 {
		t.Errorf("unexpected thresholds %+v", cfg.Policy)
	}
	if !cfg.Alerts.StickyWarnings {
		t.Errorf("expected sticky warnings on, got %+v", cfg.Alerts)
	}

	plans := cfg.ToPlans()
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	if plans[0].Limits.TokensPerMonth != 100000 || plans[0].Limits.LogsPerMonth != 10000 {
		t.Errorf("unexpected free limits %+v", plans[0].Limits)
	}
	if plans[1].Limits.TokensPerMonth != -1 {
		t.Errorf("expected unlimited pro tokens, got %d", plans[1].Limits.TokensPerMonth)
	}

	accounts := cfg.ToAccounts(time.Now())
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Seats != 1 {
		t.Errorf("expected omitted seats to default to 1, got %d", accounts[0].Seats)
	}
	if accounts[1].PlanID != "pro" || accounts[1].Seats != 4 {
		t.Errorf("unexpected account %+v", accounts[1])
	}

	policy := cfg.ToPolicy()
	if policy.Thresholds.WarnPercent != 80 {
		t.Errorf("expected policy thresholds from config, got %+v", policy.Thresholds)
	}
	if policy.Shapes[usage.MetricWorkflows] != guardrail.ShapeRateShaped {
		t.Errorf("expected workflows shape override, got %+v", policy.Shapes)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\nlogging:\n  level: info\n")

	t.Setenv("GUARDRAIL_SERVER_PORT", "7070")
	t.Setenv("GUARDRAIL_LOG_LEVEL", "debug")
	t.Setenv("GUARDRAIL_WARN_PERCENT", "60")
	t.Setenv("GUARDRAIL_ALERT_STICKY_WARNINGS", "yes")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected env to override the file, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Policy.WarnPercent != 60 {
		t.Errorf("expected warn 60, got %f", cfg.Policy.WarnPercent)
	}
	if !cfg.Alerts.StickyWarnings {
		t.Errorf("expected sticky warnings on")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GUARDRAIL_DATABASE_DSN", "/tmp/test.db")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.DSN != "/tmp/test.db" {
		t.Errorf("expected DSN from env, got %s", cfg.Database.DSN)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad log level", "logging:\n  level: verbose\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"bad driver", "database:\n  driver: postgres\n"},
		{"warn above block", "policy:\n  warn_percent: 120\n  block_percent: 100\n"},
		{"unknown shape metric", "policy:\n  shapes:\n    bandwidth: hard_capped\n"},
		{"bad shape", "policy:\n  shapes:\n    tokens: capped\n"},
		{"bad alpha", "trend:\n  alpha: 1.5\n"},
		{"weights off", "anomaly:\n  weights:\n    deviation: 0.9\n    concentration: 0.9\n    spike: 0.9\n"},
		{"missing plan id", "plans:\n  - name: Mystery\n"},
		{"duplicate plan id", "plans:\n  - id: free\n  - id: free\n"},
		{"account unknown plan", "accounts:\n  - id: acct-1\n    plan: enterprise\n"},
	}

	for _, tt := range tests {
		path := writeConfig(t, tt.content)
		if _, err := config.Load(path); err == nil {
			t.Errorf("%s: expected validation to fail", tt.name)
		}
	}
}

func TestLoadWithFallback(t *testing.T) {
	cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected env fallback defaults, got %d", cfg.Server.Port)
	}
}
