package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// writeTempConfig creates a configuration file with the provided content and
// returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalConfig = `stratflow:
  name: "TestApp"
  version: "1.0"
simulation:
  pair: "btcusdt"
  timeframe: "1h"
  backtest:
    start: 2024-01-01T00:00:00Z
    end: 2024-02-01T00:00:00Z
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Stratflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Stratflow.Name)
	}
	if cfg.Simulation.Pair != "BTCUSDT" {
		t.Errorf("pair not normalised: %s", cfg.Simulation.Pair)
	}
	if cfg.Simulation.Mode != ModeBacktest {
		t.Errorf("unexpected default mode: %s", cfg.Simulation.Mode)
	}
	if cfg.Simulation.HistoryLimit != 500 {
		t.Errorf("unexpected default history limit: %d", cfg.Simulation.HistoryLimit)
	}
	if cfg.Indicators.MACDSignalFactor != 0.9 {
		t.Errorf("unexpected default macd signal factor: %v", cfg.Indicators.MACDSignalFactor)
	}
	if cfg.Risk.MaxConsecutiveLosses != 3 {
		t.Errorf("unexpected default max consecutive losses: %d", cfg.Risk.MaxConsecutiveLosses)
	}
	if cfg.Source.Exchange != "binance" {
		t.Errorf("unexpected default exchange: %s", cfg.Source.Exchange)
	}
}

func TestLoadConfigRejectsUnknownTimeframe(t *testing.T) {
	content := strings.Replace(minimalConfig, `timeframe: "1h"`, `timeframe: "7m"`, 1)
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported timeframe")
	} else if !strings.Contains(err.Error(), "timeframe") {
		t.Errorf("error does not name the timeframe key: %v", err)
	}
}

func TestLoadConfigRequiresBacktestRange(t *testing.T) {
	content := `stratflow:
  name: "TestApp"
  version: "1.0"
simulation:
  pair: "BTCUSDT"
  timeframe: "1h"
`
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing backtest range")
	}
}

func TestLoadConfigSqueezeRequiresKeltner(t *testing.T) {
	content := minimalConfig + `indicators:
  squeeze: true
  keltner: false
`
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error when squeeze is enabled without keltner")
	}
}

func TestLoadConfigDecisionEndpointOverride(t *testing.T) {
	t.Setenv("DECISION_ENDPOINT", "http://localhost:9000/decide")

	path := writeTempConfig(t, minimalConfig)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Decision.Endpoint != "http://localhost:9000/decide" {
		t.Errorf("endpoint override not applied: %s", cfg.Decision.Endpoint)
	}
}

func TestTimeframe(t *testing.T) {
	cases := []struct {
		tf      Timeframe
		minutes int
		valid   bool
	}{
		{"1m", 1, true},
		{"15m", 15, true},
		{"1h", 60, true},
		{"4h", 240, true},
		{"1d", 1440, true},
		{"7m", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		if got := c.tf.Valid(); got != c.valid {
			t.Errorf("Timeframe(%q).Valid() = %v, want %v", c.tf, got, c.valid)
		}
		if got := c.tf.Minutes(); got != c.minutes {
			t.Errorf("Timeframe(%q).Minutes() = %d, want %d", c.tf, got, c.minutes)
		}
		if got := c.tf.Duration(); got != time.Duration(c.minutes)*time.Minute {
			t.Errorf("Timeframe(%q).Duration() = %v", c.tf, got)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("custom.yml"); got != "custom.yml" {
		t.Errorf("explicit path not preserved: %s", got)
	}
	if got := ResolveConfigPath(""); got != DefaultConfigPath {
		t.Errorf("empty path did not resolve to default: %s", got)
	}

	// No environment specific file exists on disk, so the default wins even
	// for production-like environments.
	t.Setenv("APP_ENV", "prod")
	if got := ResolveConfigPath(DefaultConfigPath); got != DefaultConfigPath {
		t.Errorf("missing env file should fall back to default: %s", got)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
