package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_MissingPathReturnsDefaults(t *testing.T) {
	f, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, Defaults(), f)
}

func TestLoad_NonexistentFileReturnsDefaults(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.NoError(t, err)
	assert.Equal(t, Defaults(), f)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
weeks = 26
top_n_coins = 50
correlation_threshold = 0.8
rsi_period = 21
timeframes = ["4h", "1d"]
low_cap_percentile = 10.0
pubsub_url = "http://example.invalid"
db_path = "custom.db"
`
	assert.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	f, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, 26, f.Weeks)
	assert.Equal(t, 50, f.TopNCoins)
	assert.InDelta(t, 0.8, f.CorrelationThreshold, 1e-9)
	assert.Equal(t, 21, f.RSIPeriod)
	assert.Equal(t, []string{"4h", "1d"}, f.Timeframes)
	assert.InDelta(t, 10.0, f.LowCapPercentile, 1e-9)
	assert.Equal(t, "http://example.invalid", f.PubSubURL)
	assert.Equal(t, "custom.db", f.DBPath)
}

func TestDump_RoundTripsThroughLoad(t *testing.T) {
	out, err := Dump(Defaults())
	assert.NoError(t, err)
	assert.NotEmpty(t, out)

	path := filepath.Join(t.TempDir(), "dumped.toml")
	assert.NoError(t, os.WriteFile(path, []byte(out), 0o600))

	f, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, Defaults(), f)
}

func TestToSessionConfig_MapsAllFields(t *testing.T) {
	f := Defaults()
	cfg := f.ToSessionConfig()
	assert.Equal(t, f.Weeks, cfg.Weeks)
	assert.Equal(t, f.TopNCoins, cfg.TopNCoins)
	assert.InDelta(t, f.CorrelationThreshold, cfg.CorrelationThreshold, 1e-9)
	assert.Equal(t, f.RSIPeriod, cfg.RSIPeriod)
	assert.Equal(t, f.Timeframes, cfg.Timeframes)
	assert.InDelta(t, f.LowCapPercentile, cfg.LowCapPercentile, 1e-9)
	assert.Equal(t, f.PubSubURL, cfg.PubSubURL)
	assert.NoError(t, cfg.Validate())
}
