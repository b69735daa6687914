package checkpointer

import "strconv"

// nStep implements checkpointing every N episodes
type nStep struct {
	interval int
	store    *Store
}

// NewNStep returns a checkpointer that checkpoints every n episodes to
// a directory named by the episode number. Episode 0 is never
// checkpointed.
func NewNStep(n int, store *Store) Checkpointer {
	return &nStep{
		interval: n,
		store:    store,
	}
}

// Checkpoint checkpoints the Store's tracked objects if episode is a
// non-zero multiple of the interval
func (n *nStep) Checkpoint(episode int, average float64) (bool, error) {
	if n.interval <= 0 || episode == 0 || episode%n.interval != 0 {
		return false, nil
	}
	err := n.store.SaveWithAverage(strconv.Itoa(episode), average)
	return err == nil, err
}
