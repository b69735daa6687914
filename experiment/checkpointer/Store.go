package checkpointer

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/bebop2/ppo/utils/logging"
	"github.com/google/renameio"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Labels of checkpoints that are not numbered by episode
const (
	Best   = "best"
	Forced = "forced"
)

// SidecarFile is the name of the text file recording the average score
// at the time of a checkpoint
const SidecarFile = "data.txt"

// ErrWrite is returned when a checkpoint could not be written
var ErrWrite = errors.New("checkpoint write failed")

// Store writes checkpoints of a fixed set of objects to directories
// under a root directory, one directory per label. Each file is written
// to a temporary file and then renamed over its target, so that a
// checkpoint file is never observed partially written.
type Store struct {
	root    string
	entries []Entry
	log     zerolog.Logger
}

// NewStore returns a new Store rooted at root which checkpoints each of
// the entries.
func NewStore(root string, log zerolog.Logger, entries ...Entry) (*Store,
	error) {
	if root == "" {
		return nil, fmt.Errorf("newStore: empty root directory")
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Filename == "" || e.Filename == SidecarFile {
			return nil, fmt.Errorf("newStore: illegal filename %q", e.Filename)
		}
		if seen[e.Filename] {
			return nil, fmt.Errorf("newStore: duplicate filename %q",
				e.Filename)
		}
		seen[e.Filename] = true
	}

	return &Store{
		root:    root,
		entries: entries,
		log:     logging.Component(log, "checkpointer"),
	}, nil
}

// Root returns the root directory of the Store
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory in which checkpoints with the given label
// are stored
func (s *Store) Dir(label string) string {
	return filepath.Join(s.root, label)
}

// Save checkpoints all objects under label, without a sidecar file
func (s *Store) Save(label string) error {
	return s.save(label, nil)
}

// SaveWithAverage checkpoints all objects under label together with a
// sidecar file recording average.
func (s *Store) SaveWithAverage(label string, average float64) error {
	return s.save(label, &average)
}

// Force writes the forced checkpoint, used when training is
// interrupted.
func (s *Store) Force() error {
	return s.Save(Forced)
}

func (s *Store) save(label string, average *float64) error {
	dir := s.Dir(label)

	for _, e := range s.entries {
		data, err := e.Object.GobEncode()
		if err != nil {
			return errors.Wrapf(err, "save: could not encode %v", e.Filename)
		}
		if err := s.write(dir, e.Filename, data); err != nil {
			return err
		}
	}

	if average != nil {
		// The recorded average is truncated to an integer
		record := fmt.Sprintf("average : %d\n", int(*average))
		if err := s.write(dir, SidecarFile, []byte(record)); err != nil {
			return err
		}
	}

	s.log.Debug().Str("dir", dir).Msg("checkpoint saved")
	return nil
}

// write atomically writes data to dir/filename. If dir does not exist
// it is created once and the write is retried; a second failure is
// returned.
func (s *Store) write(dir, filename string, data []byte) error {
	err := writeAtomic(dir, filename, data)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(ErrWrite, "write %v: %v", filepath.Join(dir,
			filename), err)
	}

	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		return errors.Wrapf(ErrWrite, "write %v: %v", filepath.Join(dir,
			filename), mkErr)
	}
	if err := writeAtomic(dir, filename, data); err != nil {
		return errors.Wrapf(ErrWrite, "write %v: %v", filepath.Join(dir,
			filename), err)
	}
	return nil
}

// writeAtomic writes data to a temporary file and renames it to
// dir/filename
func writeAtomic(dir, filename string, data []byte) error {
	return renameio.WriteFile(filepath.Join(dir, filename), data, 0o644)
}

// Load restores objects of the Store from the checkpoint in dir. If
// filenames are given only the entries with those filenames are
// restored, otherwise every entry is. Objects are restored all or
// nothing: if any file is missing or cannot be decoded, every object is
// left as it was.
func (s *Store) Load(dir string, filenames ...string) error {
	entries, err := s.selectEntries(filenames)
	if err != nil {
		return errors.Wrap(err, "load")
	}

	data := make([][]byte, len(entries))
	for i, e := range entries {
		b, err := ioutil.ReadFile(filepath.Join(dir, e.Filename))
		if err != nil {
			return errors.Wrap(err, "load")
		}
		data[i] = b
	}

	snapshots := make([][]byte, len(entries))
	for i, e := range entries {
		b, err := e.Object.GobEncode()
		if err != nil {
			return errors.Wrapf(err, "load: could not snapshot %v",
				e.Filename)
		}
		snapshots[i] = b
	}

	for i, e := range entries {
		if err := e.Object.GobDecode(data[i]); err != nil {
			s.restore(entries[:i+1], snapshots[:i+1])
			return errors.Wrapf(err, "load: could not decode %v", e.Filename)
		}
	}

	s.log.Info().Str("dir", dir).Int("files", len(entries)).
		Msg("checkpoint loaded")
	return nil
}

// restore decodes each entry from its snapshot
func (s *Store) restore(entries []Entry, snapshots [][]byte) {
	for i, e := range entries {
		if err := e.Object.GobDecode(snapshots[i]); err != nil {
			s.log.Error().Err(err).Str("file", e.Filename).
				Msg("could not restore object after failed load")
		}
	}
}

// selectEntries returns the entries with the given filenames, or all entries
// if no filenames are given
func (s *Store) selectEntries(filenames []string) ([]Entry, error) {
	if len(filenames) == 0 {
		return s.entries, nil
	}

	entries := make([]Entry, 0, len(filenames))
	for _, name := range filenames {
		found := false
		for _, e := range s.entries {
			if e.Filename == name {
				entries = append(entries, e)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no entry %q", name)
		}
	}
	return entries, nil
}
