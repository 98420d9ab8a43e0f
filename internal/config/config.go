// Package config loads lms settings from an optional YAML file and the
// environment. Command-line flags are applied on top by the caller.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/yuya-takeyama/lms/pkg/errors"
	"github.com/yuya-takeyama/lms/pkg/planner"
)

const (
	// DefaultPath is read when no --config flag is given.
	DefaultPath = "~/.config/lms/config.yaml"

	// WorkersEnv overrides the worker count.
	WorkersEnv = "LMS_WORKERS"

	maxWorkers = 256
)

// homedirExpand will be overridden in tests
var homedirExpand = homedir.Expand

// Config holds every setting that is not a positional argument.
type Config struct {
	// Workers per pool. 0 means one per CPU.
	Workers    int  `yaml:"workers"`
	Sequential bool `yaml:"sequential"`

	// Secure forces the secure compare mode.
	Secure bool `yaml:"secure"`
	// Compare is one of metadata, fast or secure.
	Compare  string `yaml:"compare"`
	NoDelete bool   `yaml:"nodelete"`

	Verbose bool `yaml:"verbose"`
	Quiet   bool `yaml:"quiet"`

	Excludes []string `yaml:"exclude"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Workers: runtime.NumCPU(),
		Compare: planner.PolicyFastHash.String(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path reads
// DefaultPath, which may be absent; an explicit path must exist.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		expanded, err := homedirExpand(DefaultPath)
		if err != nil {
			// No home directory, so no user config either.
			return cfg, nil
		}
		path = expanded
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, errors.WithContext(err, "read config")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv applies environment overrides. Invalid values are ignored.
func (c *Config) ApplyEnv() {
	if env := os.Getenv(WorkersEnv); env != "" {
		if count, err := strconv.Atoi(env); err == nil && count > 0 {
			if count > maxWorkers {
				count = maxWorkers
			}
			c.Workers = count
		}
	}
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Verbose && c.Quiet {
		return fmt.Errorf("verbose and quiet cannot be used together")
	}
	if _, err := planner.ParsePolicy(c.Compare); err != nil {
		return err
	}
	for _, pattern := range c.Excludes {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return nil
}

// Policy returns the compare policy; Secure wins over Compare.
func (c *Config) Policy() planner.Policy {
	if c.Secure {
		return planner.PolicySecure
	}
	policy, err := planner.ParsePolicy(c.Compare)
	if err != nil {
		return planner.PolicyFastHash
	}
	return policy
}
