// Package rollout implements a fixed-capacity, ordered buffer of
// transitions collected between training updates.
package rollout

import (
	"fmt"

	"github.com/bebop2/ppo/timestep"
	"gonum.org/v1/gonum/mat"
)

// Buffer stores transitions in the order they were added until it holds
// exactly its capacity. The buffer owns stored transitions: they are
// deep-copied on Add and dropped on Reset.
type Buffer struct {
	obsSize    int
	actionSize int
	capacity   int

	transitions []timestep.Transition
}

// New returns a new Buffer for transitions with observations of size
// obsSize and actions of size actionSize.
func New(obsSize, actionSize, capacity int) (*Buffer, error) {
	if obsSize <= 0 || actionSize <= 0 {
		return nil, fmt.Errorf("new: observation (%d) and action (%d) "+
			"sizes must be positive", obsSize, actionSize)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("new: capacity must be positive, have %d",
			capacity)
	}

	return &Buffer{
		obsSize:     obsSize,
		actionSize:  actionSize,
		capacity:    capacity,
		transitions: make([]timestep.Transition, 0, capacity),
	}, nil
}

// Add appends a transition to the buffer
func (b *Buffer) Add(t timestep.Transition) error {
	if b.Full() {
		return &Error{Op: "add", Err: errFull}
	}
	if len(t.State) != b.obsSize || len(t.NextState) != b.obsSize {
		return fmt.Errorf("add: illegal obs length \n\twant(%v)\n\thave(%v, %v)",
			b.obsSize, len(t.State), len(t.NextState))
	}
	if len(t.Action) != b.actionSize {
		return fmt.Errorf("add: illegal act length \n\twant(%v)\n\thave(%v)",
			b.actionSize, len(t.Action))
	}

	b.transitions = append(b.transitions, t.Clone())
	return nil
}

// Len returns the number of transitions in the buffer
func (b *Buffer) Len() int {
	return len(b.transitions)
}

// Cap returns the capacity of the buffer
func (b *Buffer) Cap() int {
	return b.capacity
}

// Full returns whether the buffer is at capacity
func (b *Buffer) Full() bool {
	return len(b.transitions) >= b.capacity
}

// Reset removes all transitions from the buffer
func (b *Buffer) Reset() {
	b.transitions = b.transitions[:0]
}

// Truncate marks the most recent transition as the end of an episode.
// It is used when an episode is cut short so that no value is
// bootstrapped across the discontinuity.
func (b *Buffer) Truncate() {
	if len(b.transitions) == 0 {
		return
	}
	b.transitions[len(b.transitions)-1].Done = true
}

// At returns a copy of the transition at index i
func (b *Buffer) At(i int) timestep.Transition {
	return b.transitions[i].Clone()
}

// Batch returns the transitions in the buffer as a Batch
func (b *Buffer) Batch() (Batch, error) {
	n := len(b.transitions)
	if n == 0 {
		return Batch{}, &Error{Op: "batch", Err: errEmpty}
	}

	batch := Batch{
		States:     mat.NewDense(n, b.obsSize, nil),
		Actions:    mat.NewDense(n, b.actionSize, nil),
		NextStates: mat.NewDense(n, b.obsSize, nil),
		Rewards:    make([]float64, n),
		Dones:      make([]float64, n),
		LogProbs:   make([]float64, n),
	}
	for i, t := range b.transitions {
		batch.States.SetRow(i, t.State)
		batch.Actions.SetRow(i, t.Action)
		batch.NextStates.SetRow(i, t.NextState)
		batch.Rewards[i] = t.Reward
		batch.Dones[i] = t.DoneFloat()
		batch.LogProbs[i] = t.LogProb
	}
	return batch, nil
}

// Batch is a batch of transitions where row i of each matrix and
// element i of each vector belong to transition i.
type Batch struct {
	States     *mat.Dense
	Actions    *mat.Dense
	NextStates *mat.Dense
	Rewards    []float64
	Dones      []float64
	LogProbs   []float64
}

// Len returns the number of transitions in the batch
func (b Batch) Len() int {
	return len(b.Rewards)
}

// Gather returns the elements of x at the given indices
func Gather(x []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = x[idx]
	}
	return out
}
