// Package hyperparam implements hyperparameters that may be changed
// while an agent is learning.
package hyperparam

import (
	"math"
	"sync"

	"github.com/pkg/errors"
)

// ErrInvalid is returned when a hyperparameter is set to an illegal
// value
var ErrInvalid = errors.New("invalid hyperparameter value")

// LearningRate is a single-slot, concurrency-safe learning rate cell.
// Any number of readers may read it concurrently; writes are
// serialized.
type LearningRate struct {
	mu    sync.RWMutex
	value float64
}

// NewLearningRate returns a new LearningRate cell holding value
func NewLearningRate(value float64) (*LearningRate, error) {
	if err := validate(value); err != nil {
		return nil, errors.Wrap(err, "newLearningRate")
	}
	return &LearningRate{value: value}, nil
}

// Get returns the current learning rate
func (l *LearningRate) Get() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value
}

// Set sets the learning rate. The value must be positive and finite.
func (l *LearningRate) Set(value float64) error {
	if err := validate(value); err != nil {
		return errors.Wrap(err, "set")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = value
	return nil
}

func validate(value float64) error {
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.Wrapf(ErrInvalid, "learning rate %v", value)
	}
	return nil
}
