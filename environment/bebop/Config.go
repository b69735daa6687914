package bebop

import (
	"fmt"
	"time"
)

// Config configures the follower task
type Config struct {
	// Mode selects the drones that take off on reset and land on close
	Mode string `mapstructure:"mode" yaml:"mode"`

	// FollowDistance is the distance the follower should keep from the
	// leader. Episodes end once the drones are more than MaxDistance
	// apart.
	FollowDistance float64 `mapstructure:"follow_distance" yaml:"follow_distance"`
	MaxDistance    float64 `mapstructure:"max_distance" yaml:"max_distance"`

	// MaxSpeed scales actions in [-1, 1] to linear velocities
	MaxSpeed float64 `mapstructure:"max_speed" yaml:"max_speed"`

	// After takeoff, the height of the drones is polled HeightPolls
	// times, HeightInterval apart, until it reaches TakeoffHeight
	TakeoffHeight  float64       `mapstructure:"takeoff_height" yaml:"takeoff_height"`
	HeightPolls    int           `mapstructure:"height_polls" yaml:"height_polls"`
	HeightInterval time.Duration `mapstructure:"height_interval" yaml:"height_interval"`

	// EpisodeSteps is the maximum number of steps in an episode
	EpisodeSteps int `mapstructure:"episode_steps" yaml:"episode_steps"`
}

// DefaultConfig returns the default follower task configuration
func DefaultConfig() Config {
	return Config{
		Mode:           Both.String(),
		FollowDistance: 1.0,
		MaxDistance:    5.0,
		MaxSpeed:       1.0,
		TakeoffHeight:  1.0,
		HeightPolls:    40,
		HeightInterval: 100 * time.Millisecond,
		EpisodeSteps:   1000,
	}
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if _, err := ParseMode(c.Mode); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.FollowDistance < 0 {
		return fmt.Errorf("validate: follow distance must be non-negative, "+
			"have %v", c.FollowDistance)
	}
	if c.MaxDistance <= c.FollowDistance {
		return fmt.Errorf("validate: max distance %v must exceed follow "+
			"distance %v", c.MaxDistance, c.FollowDistance)
	}
	if c.MaxSpeed <= 0 {
		return fmt.Errorf("validate: max speed must be positive, have %v",
			c.MaxSpeed)
	}
	if c.HeightPolls < 1 || c.HeightInterval < 0 {
		return fmt.Errorf("validate: invalid height polling %d x %v",
			c.HeightPolls, c.HeightInterval)
	}
	if c.EpisodeSteps < 0 {
		return fmt.Errorf("validate: episode steps must be non-negative, "+
			"have %d", c.EpisodeSteps)
	}
	return nil
}
