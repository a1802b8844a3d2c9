// Package config loads multiplexer configuration from YAML files with
// environment overrides, and can watch a file for changes.
package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "NETMUX"

type Config struct {
	// BindAddr is the local "host:port" the datagram socket binds to.
	BindAddr string `yaml:"bind_addr"`

	// MaxThroughput caps the number of raw packets reconciled per tick.
	// Excess packets stay queued for the next tick.
	MaxThroughput int `yaml:"max_throughput"`
}

func Default() Config {
	return Config{
		BindAddr:      "0.0.0.0:3455",
		MaxThroughput: 10000,
	}
}

func (c Config) Validate() error {
	if c.BindAddr == "" {
		return errors.New("bind_addr must not be empty")
	}
	if c.MaxThroughput <= 0 {
		return errors.Errorf("max_throughput must be positive, got %d", c.MaxThroughput)
	}
	return nil
}

// Load reads path over the defaults, applies environment overrides
// (NETMUX_BIND_ADDR, NETMUX_MAX_THROUGHPUT) and validates the result.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "reading config file")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parsing config file")
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "validating config")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(envPrefix + "_BIND_ADDR"); ok {
		cfg.BindAddr = v
	}
	if v, ok := os.LookupEnv(envPrefix + "_MAX_THROUGHPUT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parsing %s_MAX_THROUGHPUT", envPrefix)
		}
		cfg.MaxThroughput = n
	}
	return nil
}
