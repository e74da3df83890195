package record

import (
	"io"
	"os"
)

// Reader is the abstraction ReadAt scans over. It is deliberately narrower
// than *os.File so a record can be read from any backing store that can
// answer random-access reads and report its own size.
type Reader interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// DiskReader wraps a *os.File as a Reader. Every database operation that
// reads a file opens one, uses it for that operation's reads (a single
// record for Get, every record for a replay or GC scan), and closes it —
// files are never held open across calls (see the concurrency/resource
// model). Size is stat'd
// once at open time and cached, since a scan loop calls it on every
// iteration and the file's length cannot change under a reader that only
// ever reads.
type DiskReader struct {
	f    *os.File
	size int64
}

// OpenDiskReader opens path read-only, stats it once, and wraps it as a
// Reader.
func OpenDiskReader(path string) (*DiskReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &DiskReader{f: f, size: info.Size()}, nil
}

func (d *DiskReader) ReadAt(b []byte, off int64) (int, error) { return d.f.ReadAt(b, off) }

func (d *DiskReader) Close() error { return d.f.Close() }

func (d *DiskReader) Size() int64 { return d.size }
