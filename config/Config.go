// Package config loads and saves the configuration of a training run
package config

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/bebop2/ppo/agent/ppo"
	"github.com/bebop2/ppo/environment/bebop"
	"github.com/bebop2/ppo/experiment"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding
// configuration values, e.g. PPO_AGENT_LEARNING_RATE
const EnvPrefix = "PPO"

// Config is the configuration of a training run
type Config struct {
	Agent      ppo.Config           `mapstructure:"agent" yaml:"agent"`
	Experiment experiment.Config    `mapstructure:"experiment" yaml:"experiment"`
	Env        bebop.Config         `mapstructure:"env" yaml:"env"`
	Loopback   bebop.LoopbackConfig `mapstructure:"loopback" yaml:"loopback"`
	Log        Log                  `mapstructure:"log" yaml:"log"`
	Metrics    Metrics              `mapstructure:"metrics" yaml:"metrics"`

	// CheckpointDir is the directory under which each run creates its
	// own directory
	CheckpointDir string `mapstructure:"checkpoint_dir" yaml:"checkpoint_dir"`
}

// Log configures logging
type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// Metrics configures the telemetry sinks
type Metrics struct {
	// Addr is the address serving Prometheus metrics. Metrics are not
	// served if Addr is empty.
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`

	// PlotEvery is the number of episodes between learning curve
	// plots. No plots are made if PlotEvery is 0.
	PlotEvery int `mapstructure:"plot_every" yaml:"plot_every"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Agent:      ppo.DefaultConfig(),
		Experiment: experiment.DefaultConfig(),
		Env:        bebop.DefaultConfig(),
		Loopback:   bebop.DefaultLoopbackConfig(),
		Log: Log{
			Level:  "info",
			Pretty: true,
		},
		Metrics: Metrics{
			Namespace: "ppo",
			PlotEvery: 100,
		},
		CheckpointDir: "models",
	}
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return errors.Wrap(err, "agent")
	}
	if err := c.Experiment.Validate(); err != nil {
		return errors.Wrap(err, "experiment")
	}
	if err := c.Env.Validate(); err != nil {
		return errors.Wrap(err, "env")
	}
	if err := c.Loopback.Validate(); err != nil {
		return errors.Wrap(err, "loopback")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log")
	}
	if c.Metrics.PlotEvery < 0 {
		return fmt.Errorf("metrics: plot interval must be non-negative, "+
			"have %d", c.Metrics.PlotEvery)
	}
	if c.CheckpointDir == "" {
		return fmt.Errorf("checkpoint directory required")
	}
	return nil
}

// Load loads the configuration at path on top of the defaults and
// applies overrides from environment variables prefixed with EnvPrefix.
// If path is empty only the defaults and environment are used. The
// returned Config is validated.
func Load(path string) (Config, error) {
	vp := viper.New()
	vp.SetConfigType("yaml")

	// Defaults are read as a config so that every key is known to
	// viper, which AutomaticEnv requires
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return Config{}, errors.Wrap(err, "load: could not encode defaults")
	}
	if err := vp.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, errors.Wrap(err, "load: could not read defaults")
	}

	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.MergeInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "load: could not read %v",
				path)
		}
	}

	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var c Config
	if err := vp.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "load: could not decode")
	}
	if err := c.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "load")
	}
	return c, nil
}

// Save writes c to path as YAML
func Save(path string, c Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	return errors.Wrap(ioutil.WriteFile(path, data, 0o644), "save")
}
