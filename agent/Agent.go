// Package agent defines an agent interface
package agent

import (
	"context"

	"github.com/bebop2/ppo/timestep"
	"gonum.org/v1/gonum/mat"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Observe records a transition. The Learner may update its weights
	// before returning.
	Observe(ctx context.Context, t timestep.Transition) error

	// EndEpisode records the score of a finished episode
	EndEpisode(score float64) EpisodeReport

	// AbortEpisode discards the remainder of an episode that could not
	// be finished
	AbortEpisode()

	// ForceSave checkpoints the Learner outside of its regular schedule
	ForceSave() error

	// Episode returns the number of episodes the Learner has finished,
	// including those of earlier runs it was resumed from
	Episode() int
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. Agents usually have a
// target and behaviour policy. For a given agent, the Policy and Learner
// should have pointers to the same weights so that any changes the learner
// makes to the weights are reflected in the actions the Policy chooses
type Policy interface {
	// SelectAction returns an action for an observation along with the
	// log probability of selecting it
	SelectAction(obs *mat.VecDense) (*mat.VecDense, float64, error)
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// EpisodeReport summarizes what a Learner did at the end of an episode
type EpisodeReport struct {
	Episode      int
	Score        float64
	Average      float64
	LearningRate float64

	SavedBest     bool
	SavedPeriodic bool

	// SaveErr is the error of a failed checkpoint, if any. Checkpoint
	// failures do not stop learning.
	SaveErr error
}
