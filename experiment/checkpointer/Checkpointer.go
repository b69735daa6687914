// Package checkpointer implements saving and restoring labelled
// snapshots of serializable objects.
package checkpointer

import (
	"encoding/gob"
)

// Serializable is an object that can be saved/serialized
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// Checkpointer decides, at the end of each episode, whether the objects
// of a Store should be checkpointed. It returns whether a checkpoint
// was written.
type Checkpointer interface {
	Checkpoint(episode int, average float64) (bool, error)
}

// Entry is a single object stored in every checkpoint, saved to a file
// named Filename within the checkpoint's directory.
type Entry struct {
	Filename string
	Object   Serializable
}
