// Package config loads the AnalysisConfig described in spec §6 from a
// TOML file, grounded on the teacher's own TOML config conventions
// (datasync/dbsyncer/gen_config.go, cmd/utils/nodecmd/dumpconfigcmd.go)
// using the teacher's own TOML library, github.com/naoina/toml.
package config

import (
	"os"

	"github.com/naoina/toml"
	"github.com/pkg/errors"

	"github.com/venantvr/rsi-correlation/session"
)

// File mirrors session.Config field-for-field with TOML tags, matching
// spec §6's configuration table. Fields are plain values (not
// pointers): an absent key simply leaves the default already populated
// by Defaults applied beforehand.
type File struct {
	Weeks                int      `toml:"weeks"`
	TopNCoins            int      `toml:"top_n_coins"`
	CorrelationThreshold float64  `toml:"correlation_threshold"`
	RSIPeriod            int      `toml:"rsi_period"`
	Timeframes           []string `toml:"timeframes"`
	LowCapPercentile     float64  `toml:"low_cap_percentile"`
	PubSubURL            string   `toml:"pubsub_url"`
	DBPath               string   `toml:"db_path"`
}

// Defaults returns spec §6's default table.
func Defaults() File {
	return File{
		Weeks:                50,
		TopNCoins:            200,
		CorrelationThreshold: 0.7,
		RSIPeriod:            14,
		Timeframes:           []string{"1d"},
		LowCapPercentile:     25.0,
		PubSubURL:            "http://localhost:5000",
		DBPath:               "crypto_data.db",
	}
}

// Load reads a TOML file at path, applying it on top of Defaults. A
// missing path is not an error; Defaults alone are then used, matching
// the teacher's dumpconfigcmd "print the defaults" behavior when no
// user file overrides them.
func Load(path string) (File, error) {
	f := Defaults()
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return f, errors.Wrapf(err, "reading config file %s", path)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, errors.Wrapf(err, "parsing config file %s", path)
	}
	return f, nil
}

// Dump serializes f back to TOML, used by the `dumpconfig` CLI
// subcommand.
func Dump(f File) (string, error) {
	b, err := toml.Marshal(f)
	if err != nil {
		return "", errors.Wrap(err, "marshalling config")
	}
	return string(b), nil
}

// ToSessionConfig converts the loaded file into the frozen
// session.Config spec §3 describes.
func (f File) ToSessionConfig() session.Config {
	return session.Config{
		Weeks:                f.Weeks,
		TopNCoins:            f.TopNCoins,
		CorrelationThreshold: f.CorrelationThreshold,
		RSIPeriod:            f.RSIPeriod,
		Timeframes:           f.Timeframes,
		LowCapPercentile:     f.LowCapPercentile,
		PubSubURL:            f.PubSubURL,
	}
}
