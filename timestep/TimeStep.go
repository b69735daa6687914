// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType    StepType
	Reward      float64
	Observation *mat.VecDense
	Number      int
}

// New returns a new TimeStep
func New(t StepType, r float64, o *mat.VecDense, n int) TimeStep {
	return TimeStep{t, r, o, n}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment.
// The last step of an episode is the done signal of a transition.
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Number)
}

// Transition is a single (s, a, r, done, s', log π(a|s)) tuple recorded
// on each environment step.
type Transition struct {
	State     []float64
	Action    []float64
	Reward    float64
	Done      bool
	NextState []float64
	LogProb   float64
}

// NewTransition creates a Transition from two consecutive TimeSteps.
// Slices are copied so that the Transition does not alias the
// environment's observation vectors.
func NewTransition(step TimeStep, action []float64, logProb float64,
	next TimeStep) Transition {
	t := Transition{
		State:     step.Observation.RawVector().Data,
		Action:    action,
		Reward:    next.Reward,
		Done:      next.Last(),
		NextState: next.Observation.RawVector().Data,
		LogProb:   logProb,
	}
	return t.Clone()
}

// Clone returns a deep copy of the Transition
func (t Transition) Clone() Transition {
	return Transition{
		State:     append([]float64(nil), t.State...),
		Action:    append([]float64(nil), t.Action...),
		Reward:    t.Reward,
		Done:      t.Done,
		NextState: append([]float64(nil), t.NextState...),
		LogProb:   t.LogProb,
	}
}

// DoneFloat returns 1 if the transition ended an episode and 0
// otherwise.
func (t Transition) DoneFloat() float64 {
	if t.Done {
		return 1.0
	}
	return 0.0
}
