// Package experiment implements the loop that runs an agent in an
// environment for a number of episodes
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/bebop2/ppo/experiment/tracker"
	"github.com/bebop2/ppo/utils/retry"
)

// Experiment runs episodes of an agent in an environment. The Run()
// method runs episodes until the episode budget is used up or the
// context is cancelled. The RunEpisode() method runs a single episode.
//
// Experiments send each TimeStep to their Trackers, which cache the
// data they care about. The Save() method saves all tracked data to
// disk.
type Experiment interface {
	Run(ctx context.Context) error
	RunEpisode(ctx context.Context) (finished bool, err error)

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment
	Register(t tracker.Tracker)

	// Save all tracked data to disk
	Save() error
}

// Config represents a configuration of an experiment
type Config struct {
	// Episodes is the total number of episodes to train for, counting
	// the episodes of a resumed agent. If Episodes is 0, episodes are
	// run until the context is cancelled.
	Episodes int `mapstructure:"episodes" yaml:"episodes"`

	// Resets of the environment are attempted ResetAttempts times,
	// waiting ResetBackoff after the first failure and twice as long
	// after each following one, up to MaxResetBackoff
	ResetAttempts   int           `mapstructure:"reset_attempts" yaml:"reset_attempts"`
	ResetBackoff    time.Duration `mapstructure:"reset_backoff" yaml:"reset_backoff"`
	MaxResetBackoff time.Duration `mapstructure:"max_reset_backoff" yaml:"max_reset_backoff"`

	// MaxAborts is the number of consecutive episodes that may be
	// aborted by failing environment steps before the experiment
	// stops. If MaxAborts is 0, there is no limit.
	MaxAborts int `mapstructure:"max_aborts" yaml:"max_aborts"`
}

// DefaultConfig returns the default experiment configuration
func DefaultConfig() Config {
	return Config{
		Episodes:        200000,
		ResetAttempts:   5,
		ResetBackoff:    500 * time.Millisecond,
		MaxResetBackoff: 8 * time.Second,
		MaxAborts:       10,
	}
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.Episodes < 0 {
		return fmt.Errorf("validate: episodes must be non-negative, have %d",
			c.Episodes)
	}
	if c.ResetAttempts < 1 {
		return fmt.Errorf("validate: at least one reset attempt required, "+
			"have %d", c.ResetAttempts)
	}
	if c.ResetBackoff < 0 || c.MaxResetBackoff < 0 {
		return fmt.Errorf("validate: reset backoff must be non-negative")
	}
	if c.MaxAborts < 0 {
		return fmt.Errorf("validate: max aborts must be non-negative, have %d",
			c.MaxAborts)
	}
	return nil
}

// resetPolicy returns the retry policy of environment resets
func (c Config) resetPolicy() retry.Policy {
	return retry.Policy{
		Attempts:   c.ResetAttempts,
		Backoff:    c.ResetBackoff,
		MaxBackoff: c.MaxResetBackoff,
	}
}
