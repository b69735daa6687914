package ppo

import (
	"fmt"
	"math"

	"github.com/bebop2/ppo/buffer/gae"
	"github.com/bebop2/ppo/initwfn"
	"github.com/bebop2/ppo/network"
	"github.com/bebop2/ppo/solver"
	"github.com/pkg/errors"
)

// Config implements a configuration of a PPO agent
type Config struct {
	// Dimensions the environment is expected to have
	StateSize  int `mapstructure:"state_size" yaml:"state_size"`
	ActionSize int `mapstructure:"action_size" yaml:"action_size"`

	// Hidden layers of both the actor and critic
	Hidden     []int        `mapstructure:"hidden" yaml:"hidden"`
	Activation string       `mapstructure:"activation" yaml:"activation"`
	InitWFn    initwfn.Spec `mapstructure:"init" yaml:"init"`

	Solver       solver.Spec `mapstructure:"solver" yaml:"solver"`
	LearningRate float64     `mapstructure:"learning_rate" yaml:"learning_rate"`

	// BatchSize is the number of transitions collected before each
	// update. Each epoch of an update takes BatchSize / MinibatchSize
	// gradient steps.
	BatchSize     int  `mapstructure:"batch_size" yaml:"batch_size"`
	MinibatchSize int  `mapstructure:"minibatch_size" yaml:"minibatch_size"`
	Epochs        int  `mapstructure:"epochs" yaml:"epochs"`
	Shuffle       bool `mapstructure:"shuffle" yaml:"shuffle"`

	ClipEpsilon float64 `mapstructure:"clip_epsilon" yaml:"clip_epsilon"`

	// LogStd is the fixed log standard deviation of every action
	// dimension of the Gaussian policy
	LogStd float64 `mapstructure:"log_std" yaml:"log_std"`

	GAE gae.Config `mapstructure:"gae" yaml:"gae"`

	// AverageWindow is the number of most recent episode scores
	// averaged to decide whether to save the best checkpoint
	AverageWindow int `mapstructure:"average_window" yaml:"average_window"`

	// SaveEvery is the number of episodes between numbered checkpoints
	SaveEvery int `mapstructure:"save_every" yaml:"save_every"`

	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// DefaultConfig returns the default PPO configuration
func DefaultConfig() Config {
	return Config{
		StateSize:     3,
		ActionSize:    3,
		Hidden:        []int{128, 64, 32},
		Activation:    "relu",
		InitWFn:       initwfn.DefaultSpec(),
		Solver:        solver.Spec{Type: solver.Adam},
		LearningRate:  0.00025,
		BatchSize:     512,
		MinibatchSize: 32,
		Epochs:        10,
		Shuffle:       true,
		ClipEpsilon:   0.2,
		LogStd:        -0.5,
		GAE:           gae.DefaultConfig(),
		AverageWindow: 50,
		SaveEvery:     500,
		Seed:          1,
	}
}

// Validate checks a Config for errors. Returned errors wrap ErrConfig.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return errors.Wrap(ErrConfig, err.Error())
	}
	return nil
}

func (c Config) validate() error {
	if c.StateSize <= 0 || c.ActionSize <= 0 {
		return fmt.Errorf("validate: state (%d) and action (%d) sizes must "+
			"be positive", c.StateSize, c.ActionSize)
	}
	if len(c.Hidden) == 0 {
		return fmt.Errorf("validate: at least one hidden layer required")
	}
	for i, h := range c.Hidden {
		if h <= 0 {
			return fmt.Errorf("validate: hidden layer %d has size %d", i, h)
		}
	}
	if _, err := network.ParseActivation(c.Activation); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if err := c.InitWFn.Validate(); err != nil {
		return err
	}
	if err := c.Solver.Validate(); err != nil {
		return err
	}
	if c.LearningRate <= 0 || math.IsInf(c.LearningRate, 0) {
		return fmt.Errorf("validate: learning rate must be positive, have %v",
			c.LearningRate)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("validate: batch size must be positive, have %d",
			c.BatchSize)
	}
	if c.MinibatchSize <= 0 || c.MinibatchSize > c.BatchSize {
		return fmt.Errorf("validate: minibatch size must be in [1, %d], "+
			"have %d", c.BatchSize, c.MinibatchSize)
	}
	if c.BatchSize%c.MinibatchSize != 0 {
		return fmt.Errorf("validate: minibatch size %d does not divide "+
			"batch size %d", c.MinibatchSize, c.BatchSize)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("validate: epochs must be positive, have %d",
			c.Epochs)
	}
	if c.ClipEpsilon <= 0 || c.ClipEpsilon >= 1 {
		return fmt.Errorf("validate: clip epsilon must be in (0, 1), have %v",
			c.ClipEpsilon)
	}
	if math.IsNaN(c.LogStd) || math.IsInf(c.LogStd, 0) {
		return fmt.Errorf("validate: log std must be finite")
	}
	if err := c.GAE.Validate(); err != nil {
		return err
	}
	if c.AverageWindow <= 0 {
		return fmt.Errorf("validate: average window must be positive, "+
			"have %d", c.AverageWindow)
	}
	if c.SaveEvery < 0 {
		return fmt.Errorf("validate: save interval must be non-negative, "+
			"have %d", c.SaveEvery)
	}
	return nil
}

// layers returns the hidden layer sizes, biases, and activations of the
// networks described by the Config
func (c Config) layers() ([]int, []bool, []*network.Activation, error) {
	hidden := append([]int(nil), c.Hidden...)
	biases := make([]bool, len(hidden))
	activations := make([]*network.Activation, len(hidden))
	for i := range hidden {
		act, err := network.ParseActivation(c.Activation)
		if err != nil {
			return nil, nil, nil, err
		}
		biases[i] = true
		activations[i] = act
	}
	return hidden, biases, activations, nil
}

// logStd returns the per-dimension log standard deviations of the
// policy
func (c Config) logStd() []float64 {
	logStd := make([]float64, c.ActionSize)
	for i := range logStd {
		logStd[i] = c.LogStd
	}
	return logStd
}
