// Package environment outlines the interfaces and sturcts needed to
// plug an environment into the training loop
package environment

import (
	"context"

	"github.com/bebop2/ppo/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Environment is a simulated or real process that an agent acts in.
//
// Reset must be callable repeatedly and returns the first TimeStep of a
// new episode. Step advances the environment by a single control step;
// the returned TimeStep is Last when the episode is done. Close releases
// any held resources and must be safe to call more than once.
type Environment interface {
	Reset(ctx context.Context) (timestep.TimeStep, error)
	Step(ctx context.Context, action *mat.VecDense) (timestep.TimeStep, error)
	ObservationSpec() Spec
	ActionSpec() Spec
	Close() error
}
