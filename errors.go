package caskdb

import "errors"

// The error taxonomy is deliberately thin: one sentinel per failure
// category a caller actually needs to branch on — bad arguments, missing
// data, and integrity failures — wrapped with fmt.Errorf where the
// operation and key add useful context.
var (
	// ErrEmptyKey is returned by Set/Get/Remove for a zero-length key.
	ErrEmptyKey = errors.New("caskdb: key must be non-empty")

	// ErrEmptyValue is returned by Set for a zero-length value.
	ErrEmptyValue = errors.New("caskdb: value must be non-empty")

	// ErrKeyNotFound is returned by Get for an unknown key and by Remove
	// for a key that is not currently present.
	ErrKeyNotFound = errors.New("caskdb: key not found")

	// ErrDataCorruption is returned by Get when the stored CRC32 or key
	// does not match what was read back off disk.
	ErrDataCorruption = errors.New("caskdb: data corruption: crc or key mismatch")

	// ErrUnknownBucket is returned by GC for a bucket name the database
	// has never seen (ChangeBucket creates buckets on reference; GC does
	// not, since compacting a bucket that was never written to is never
	// meaningful).
	ErrUnknownBucket = errors.New("caskdb: unknown bucket")
)
