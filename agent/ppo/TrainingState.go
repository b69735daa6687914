package ppo

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// TrainingState is the bookkeeping of a training run that is saved
// alongside the networks in every checkpoint
type TrainingState struct {
	// Episode is the number of finished episodes
	Episode int

	// Replay is the number of updates performed
	Replay int

	Scores      []float64
	BestAverage float64
}

// Average returns the mean of the last window scores, or of all scores
// if fewer than window have been recorded. The average of no scores is
// 0.
func (t TrainingState) Average(window int) float64 {
	if len(t.Scores) == 0 {
		return 0
	}
	start := len(t.Scores) - window
	if window <= 0 || start < 0 {
		start = 0
	}
	return stat.Mean(t.Scores[start:], nil)
}

// stateFile adapts the TrainingState of a PPO agent to a checkpoint
// entry. The best average is taken from and restored to the best
// average checkpointer.
type stateFile struct {
	p *PPO
}

// GobEncode implements the gob.GobEncoder interface
func (s stateFile) GobEncode() ([]byte, error) {
	state := s.p.State()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("gobEncode: could not encode training "+
			"state: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (s stateFile) GobDecode(in []byte) error {
	var state TrainingState
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&state); err != nil {
		return fmt.Errorf("gobDecode: could not decode training state: %v",
			err)
	}
	if state.Episode < 0 || state.Replay < 0 {
		return fmt.Errorf("gobDecode: negative counters in training state")
	}
	if math.IsNaN(state.BestAverage) {
		state.BestAverage = math.Inf(-1)
	}

	s.p.state = state
	s.p.best.SetBest(state.BestAverage)
	return nil
}
