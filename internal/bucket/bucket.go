// Package bucket owns the naming scheme and per-bucket file-id bookkeeping
// for a Bitcask-style database: which file a bucket is currently appending
// to, the largest file id it has ever allocated, and the set of ids that
// are free to reuse. Each bucket is an independent subdirectory with its
// own fid namespace, selected by explicit write routing rather than a hash.
package bucket

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileExt is the extension every data file carries.
const FileExt = ".dat"

// fidDigits is the zero-padded width of a file id in a filename.
const fidDigits = 10

// ErrEmptyBucket is returned for operations on a bucket name of "".
var ErrEmptyBucket = errors.New("bucket: empty bucket name")

// state is one bucket's in-memory file bookkeeping.
type state struct {
	actFID   int
	maxFID   int
	freeFIDs map[int]struct{}
}

// Manager tracks act_fid/max_fid/free_fids for every bucket under one
// database root and resolves fids to paths on disk.
type Manager struct {
	root     string
	fileSize int64
	buckets  map[string]*state
}

// NewManager returns a Manager rooted at dir with the given active-file
// size threshold. It performs no I/O; buckets are registered lazily by
// Ensure.
func NewManager(dir string, fileSize int64) *Manager {
	return &Manager{
		root:     dir,
		fileSize: fileSize,
		buckets:  make(map[string]*state),
	}
}

// Ensure registers bucket if it is not already known and returns whether it
// was newly created.
func (m *Manager) Ensure(name string) bool {
	if _, ok := m.buckets[name]; ok {
		return false
	}
	m.buckets[name] = &state{freeFIDs: make(map[int]struct{})}
	return true
}

// Buckets returns the names of every registered bucket. No ordering is
// guaranteed.
func (m *Manager) Buckets() []string {
	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	return names
}

// Has reports whether bucket has been registered.
func (m *Manager) Has(name string) bool {
	_, ok := m.buckets[name]
	return ok
}

// Dir returns the on-disk subdirectory for bucket.
func (m *Manager) Dir(bucket string) string {
	return filepath.Join(m.root, bucket)
}

// Path returns the on-disk path of fid within bucket:
// <root>/<bucket>/NNNNNNNNNN.dat.
func (m *Manager) Path(bucket string, fid int) string {
	return filepath.Join(m.Dir(bucket), fmt.Sprintf("%0*d%s", fidDigits, fid, FileExt))
}

// SetMaxFID records the largest fid found on disk for bucket during open.
// It is called once, before recovery replay, and leaves act_fid pointing
// at the same file so callers can append survivors of partial replay.
func (m *Manager) SetMaxFID(bucket string, fid int) {
	m.Ensure(bucket)
	s := m.buckets[bucket]
	s.maxFID = fid
	s.actFID = fid
}

// MaxFID returns the largest fid known for bucket.
func (m *Manager) MaxFID(bucket string) int {
	m.Ensure(bucket)
	return m.buckets[bucket].maxFID
}

// AddFreeFID marks fid as reusable within bucket: a gap in the fid
// sequence (no file ever existed) or a file GC has vacated.
func (m *Manager) AddFreeFID(bucket string, fid int) {
	m.Ensure(bucket)
	m.buckets[bucket].freeFIDs[fid] = struct{}{}
}

// NextEmptyFID pops a reusable fid from free_fids if one exists, else
// grows max_fid by one. Either way the chosen fid becomes act_fid, and is
// returned.
func (m *Manager) NextEmptyFID(bucket string) int {
	m.Ensure(bucket)
	s := m.buckets[bucket]

	for fid := range s.freeFIDs {
		delete(s.freeFIDs, fid)
		s.actFID = fid
		return s.actFID
	}

	s.maxFID++
	s.actFID = s.maxFID
	return s.actFID
}

// ActiveFID returns the (fid, append-offset) pair the next write to bucket
// should use. Starting from the current act_fid, it inspects that file's
// size: if the file is at or past the size threshold it advances — to
// max_fid if act_fid is not already there, else by allocating a fresh fid
// — and retries. If the landing file does not exist yet, the append offset
// is 0; otherwise it is the file's current size.
func (m *Manager) ActiveFID(bucket string) (int, int64, error) {
	m.Ensure(bucket)
	s := m.buckets[bucket]

	for {
		path := m.Path(bucket, s.actFID)
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return s.actFID, 0, nil
		case err != nil:
			return 0, 0, fmt.Errorf("bucket: stat %s: %w", path, err)
		case info.Size() >= m.fileSize:
			if s.actFID != s.maxFID {
				s.actFID = s.maxFID
			} else {
				m.NextEmptyFID(bucket)
			}
		default:
			return s.actFID, info.Size(), nil
		}
	}
}

// MkdirAll creates bucket's subdirectory if it does not already exist.
func (m *Manager) MkdirAll(bucket string) error {
	if err := os.MkdirAll(m.Dir(bucket), 0o755); err != nil {
		return fmt.Errorf("bucket: mkdir %s: %w", m.Dir(bucket), err)
	}
	return nil
}
