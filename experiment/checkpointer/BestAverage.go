package checkpointer

import "math"

// BestAverage checkpoints whenever the running average score is at
// least as high as the best average seen so far.
type BestAverage struct {
	best  float64
	store *Store
}

// NewBestAverage returns a new BestAverage checkpointer. No average has
// been seen yet, so the first call to Checkpoint always saves.
func NewBestAverage(store *Store) *BestAverage {
	return &BestAverage{
		best:  math.Inf(-1),
		store: store,
	}
}

// Best returns the best average seen so far
func (b *BestAverage) Best() float64 {
	return b.best
}

// SetBest sets the best average seen so far, for example when resuming
// from a checkpoint
func (b *BestAverage) SetBest(best float64) {
	b.best = best
}

// Checkpoint saves the best checkpoint if average is at least the best
// average seen so far. The best average is updated before the objects
// are encoded.
func (b *BestAverage) Checkpoint(episode int, average float64) (bool,
	error) {
	if average < b.best || math.IsNaN(average) {
		return false, nil
	}
	b.best = average

	err := b.store.SaveWithAverage(Best, average)
	return err == nil, err
}
