package bebop

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Twist is a velocity command
type Twist struct {
	Linear  r3.Vec
	Angular r3.Vec
}

// Odometry is a single odometry reading of a drone
type Odometry struct {
	Position r3.Vec
	Velocity r3.Vec
	Stamp    time.Time
}

// Mailbox holds the most recent Odometry of a sensor topic. Older
// readings are overwritten; readers only ever see the latest one.
// It is safe for concurrent use by a single writer and many readers.
type Mailbox struct {
	mu      sync.Mutex
	latest  Odometry
	version uint64

	// closed and replaced on every Put
	updated chan struct{}
}

// NewMailbox returns a new, empty Mailbox
func NewMailbox() *Mailbox {
	return &Mailbox{updated: make(chan struct{})}
}

// Put stores o as the latest reading
func (m *Mailbox) Put(o Odometry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latest = o
	m.version++
	close(m.updated)
	m.updated = make(chan struct{})
}

// Latest returns the latest reading and whether any reading has been
// received
func (m *Mailbox) Latest() (Odometry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, m.version > 0
}

// Wait blocks until a reading is available and returns the latest one.
// If a reading has already been received it returns immediately.
func (m *Mailbox) Wait(ctx context.Context) (Odometry, error) {
	for {
		m.mu.Lock()
		latest, version, updated := m.latest, m.version, m.updated
		m.mu.Unlock()

		if version > 0 {
			return latest, nil
		}

		select {
		case <-ctx.Done():
			return Odometry{}, ctx.Err()
		case <-updated:
		}
	}
}

// Clear forgets the latest reading
func (m *Mailbox) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = Odometry{}
	m.version = 0
}
