package trackers

import (
	"encoding/gob"
	"os"
	"sort"
	"sync"

	"github.com/bebop2/ppo/experiment/tracker"
	"github.com/pkg/errors"
)

// Point is a single recorded value of a series
type Point struct {
	Step  int
	Value float64
}

// Series records every named series in memory and saves them all to a
// single gob file.
type Series struct {
	mu       sync.Mutex
	series   map[string][]Point
	filename string
}

// NewSeries returns a new Series that saves to filename
func NewSeries(filename string) *Series {
	return &Series{
		series:   make(map[string][]Point),
		filename: filename,
	}
}

// Record implements the Recorder interface
func (s *Series) Record(name string, value float64, step int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[name] = append(s.series[name], Point{Step: step, Value: value})
}

// Get returns a copy of the points recorded for name
func (s *Series) Get(name string) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Point(nil), s.series[name]...)
}

// Names returns the sorted names of all recorded series
func (s *Series) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save saves all recorded series to disk
func (s *Series) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tracker.SaveData(s.filename, s.series)
}

// LoadSeries loads series saved by a Series
func LoadSeries(filename string) (map[string][]Point, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "loadSeries")
	}
	defer file.Close()

	var series map[string][]Point
	if err := gob.NewDecoder(file).Decode(&series); err != nil {
		return nil, errors.Wrap(err, "loadSeries: could not decode")
	}
	return series, nil
}
