// Package record implements the on-disk wire format for a single Bitcask
// record: a fixed 24-byte header followed by the key and, for live
// records, the value.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
)

// HeaderSize is the fixed width of an encoded Header: six little-endian
// uint32 fields. This layout is a compatibility surface and must stay
// bit-exact.
const HeaderSize = 24

// ErrTruncated is returned when a record's header or body is cut short,
// which happens at the tail of a file left by a crash mid-write.
var ErrTruncated = errors.New("record: truncated record")

// Header is the fixed-layout prefix of every record.
type Header struct {
	Time   uint32
	FID    uint32
	Offset uint32
	KSize  uint32
	VSize  uint32
	CRC32  uint32
}

// Tombstone reports whether this header marks a deletion.
func (h Header) Tombstone() bool { return h.VSize == 0 }

// Size returns the total on-disk size of the record this header describes.
func (h Header) Size() int64 {
	return int64(HeaderSize) + int64(h.KSize) + int64(h.VSize)
}

// Next returns the offset of the record immediately following one that
// starts at offset and has this header.
func (h Header) Next(offset int64) int64 {
	return offset + h.Size()
}

// Encode serializes the header to its 24-byte wire form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Time)
	binary.LittleEndian.PutUint32(buf[4:8], h.FID)
	binary.LittleEndian.PutUint32(buf[8:12], h.Offset)
	binary.LittleEndian.PutUint32(buf[12:16], h.KSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.VSize)
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC32)
	return buf
}

// DecodeHeader parses a HeaderSize-byte buffer into a Header. Callers must
// ensure len(buf) >= HeaderSize.
func DecodeHeader(buf []byte) Header {
	return Header{
		Time:   binary.LittleEndian.Uint32(buf[0:4]),
		FID:    binary.LittleEndian.Uint32(buf[4:8]),
		Offset: binary.LittleEndian.Uint32(buf[8:12]),
		KSize:  binary.LittleEndian.Uint32(buf[12:16]),
		VSize:  binary.LittleEndian.Uint32(buf[16:20]),
		CRC32:  binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// CRC32 computes the IEEE CRC32 of key concatenated with value, the
// checksum carried in every live record's header.
func CRC32(key, value []byte) uint32 {
	c := crc32.NewIEEE()
	_, _ = c.Write(key)
	_, _ = c.Write(value)
	return c.Sum32()
}

// Write appends one record — header, key, and (for live records) value —
// to path in a single open-append-close cycle. No partial-record rollback
// is attempted: if a write fails midway, the trailing garbage is left for
// a later scan to treat as end-of-file.
func Write(path string, h Header, key, value []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("record: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(h.Encode()); err != nil {
		return fmt.Errorf("record: write header to %s: %w", path, err)
	}
	if _, err := f.Write(key); err != nil {
		return fmt.Errorf("record: write key to %s: %w", path, err)
	}
	if !h.Tombstone() {
		if _, err := f.Write(value); err != nil {
			return fmt.Errorf("record: write value to %s: %w", path, err)
		}
	}
	return nil
}

// ReadAt decodes one record starting at offset in r. When wantValue is
// false the value bytes are not read (the caller only needs the header and
// key, e.g. during recovery replay). A short header or a body cut off by
// EOF is reported as ErrTruncated rather than a hard error: both are the
// expected shape of a crash-interrupted trailing write and the caller
// should treat them as end-of-file.
func ReadAt(r Reader, offset int64, wantValue bool) (Header, []byte, []byte, error) {
	hbuf := make([]byte, HeaderSize)
	n, _ := r.ReadAt(hbuf, offset)
	if n < HeaderSize {
		return Header{}, nil, nil, ErrTruncated
	}
	h := DecodeHeader(hbuf)

	var key []byte
	if h.KSize > 0 {
		key = make([]byte, h.KSize)
		n, _ = r.ReadAt(key, offset+HeaderSize)
		if n < int(h.KSize) {
			return Header{}, nil, nil, ErrTruncated
		}
	}

	if !wantValue || h.Tombstone() {
		return h, key, nil, nil
	}

	value := make([]byte, h.VSize)
	n, _ = r.ReadAt(value, offset+HeaderSize+int64(h.KSize))
	if n < int(h.VSize) {
		return Header{}, nil, nil, ErrTruncated
	}
	return h, key, value, nil
}
