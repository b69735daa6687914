package environment

import (
	"context"

	"github.com/bebop2/ppo/timestep"
	"gonum.org/v1/gonum/mat"
)

// DefaultEpisodeSteps is the default per-episode timestep limit
const DefaultEpisodeSteps = 1000

// StepLimit wraps an Environment and ends episodes at a specific
// timestep limit
type StepLimit struct {
	Environment
	episodeSteps int
	steps        int
}

// NewStepLimit creates and returns a new step limit wrapping env
func NewStepLimit(env Environment, episodeSteps int) *StepLimit {
	return &StepLimit{Environment: env, episodeSteps: episodeSteps}
}

// Reset resets the wrapped environment and the step counter
func (s *StepLimit) Reset(ctx context.Context) (timestep.TimeStep, error) {
	s.steps = 0
	return s.Environment.Reset(ctx)
}

// Step steps the wrapped environment. If the episode has reached the
// step limit, the returned timestep's StepType field is set to
// timestep.Last.
func (s *StepLimit) Step(ctx context.Context,
	action *mat.VecDense) (timestep.TimeStep, error) {
	t, err := s.Environment.Step(ctx, action)
	if err != nil {
		return t, err
	}

	s.steps++
	if s.episodeSteps > 0 && s.steps >= s.episodeSteps {
		t.StepType = timestep.Last
	}
	return t, nil
}
