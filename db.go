// Package caskdb implements the façade of a Bitcask-style embedded
// key/value store: database open/recovery, bucket lifecycle, get/set/
// remove, active-file rotation, and per-bucket garbage collection.
package caskdb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nyasuto/caskdb/internal/bucket"
	"github.com/nyasuto/caskdb/internal/config"
	"github.com/nyasuto/caskdb/internal/keydir"
	"github.com/nyasuto/caskdb/internal/record"
)

// DefaultBucket is the name given to the bucket created when a fresh
// database directory contains no buckets at all.
const DefaultBucket = "0"

// DB is a handle to one open database directory. It is single-threaded
// and non-reentrant (see the concurrency/resource model in the design
// notes): the mutex below exists only to keep an accidental concurrent
// call from corrupting in-process state, not to make concurrent use of a
// single instance a supported or correct thing to do.
type DB struct {
	mu      sync.Mutex
	dir     string
	buckets *bucket.Manager
	index   *keydir.Index
	active  string
	log     *zap.Logger
}

// Open opens, or initializes, a database rooted at cfg.Dir: it creates
// the root directory if missing, scans existing buckets (creating the
// default bucket "0" if none exist), replays every bucket's data files in
// fid then file order into one key index, and selects a writable active
// file for each bucket. logger may be nil, in which case logging is a
// no-op.
func Open(cfg config.Config, logger *zap.Logger) (*DB, error) {
	if cfg.Dir == "" {
		return nil, config.ErrMissingDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fileSize := cfg.FileSize
	if fileSize <= 0 {
		fileSize = config.DefaultFileSize
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("caskdb: mkdir %s: %w", cfg.Dir, err)
	}

	db := &DB{
		dir:     cfg.Dir,
		buckets: bucket.NewManager(cfg.Dir, fileSize),
		index:   keydir.New(),
		log:     logger,
	}

	names, err := scanBucketNames(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		if err := db.buckets.MkdirAll(DefaultBucket); err != nil {
			return nil, err
		}
		names = []string{DefaultBucket}
	}

	for _, name := range names {
		if err := db.recoverBucket(name); err != nil {
			return nil, fmt.Errorf("caskdb: recover bucket %q: %w", name, err)
		}
		if _, _, err := db.buckets.ActiveFID(name); err != nil {
			return nil, fmt.Errorf("caskdb: select active file for bucket %q: %w", name, err)
		}
	}

	db.active = names[0]
	logger.Info("database opened",
		zap.String("dir", cfg.Dir),
		zap.Strings("buckets", names),
		zap.Int("keys", db.index.Len()),
	)
	return db, nil
}

// scanBucketNames lists the non-hidden subdirectories of root — each one
// a bucket.
func scanBucketNames(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("caskdb: read dir %s: %w", root, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// parseFID recognizes a NNNNNNNNNN.dat filename and extracts its fid.
func parseFID(name string) (int, bool) {
	if !strings.HasSuffix(name, bucket.FileExt) {
		return 0, false
	}
	base := strings.TrimSuffix(name, bucket.FileExt)
	if len(base) != 10 {
		return 0, false
	}
	fid, err := strconv.Atoi(base)
	if err != nil {
		return 0, false
	}
	return fid, true
}

// recoverBucket computes bucketName's max_fid and free_fids from the data
// files present on disk, then replays every present file's records into
// the global key index in fid order.
func (db *DB) recoverBucket(bucketName string) error {
	db.buckets.Ensure(bucketName)

	dirPath := db.buckets.Dir(bucketName)
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("caskdb: read bucket dir %s: %w", dirPath, err)
	}

	present := make(map[int]bool)
	maxFID := -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fid, ok := parseFID(e.Name())
		if !ok {
			continue
		}
		present[fid] = true
		if fid > maxFID {
			maxFID = fid
		}
	}
	if maxFID < 0 {
		maxFID = 0
	}
	db.buckets.SetMaxFID(bucketName, maxFID)

	for fid := 0; fid < maxFID; fid++ {
		if !present[fid] {
			db.buckets.AddFreeFID(bucketName, fid)
		}
	}

	for fid := 0; fid <= maxFID; fid++ {
		if !present[fid] {
			continue
		}
		if err := db.replayFile(bucketName, fid); err != nil {
			return err
		}
	}
	return nil
}

// replayFile reads every record of bucketName's fid file without reading
// values, updating the key index: a live record overwrites any prior
// descriptor for its key, a tombstone removes the key. A live record's
// header already carries its own physical (fid, offset), so the header
// can be stored directly as the descriptor.
func (db *DB) replayFile(bucketName string, fid int) error {
	path := db.buckets.Path(bucketName, fid)
	r, err := record.OpenDiskReader(path)
	if err != nil {
		return fmt.Errorf("caskdb: open %s: %w", path, err)
	}
	defer r.Close()

	size := r.Size()
	var offset int64
	for offset < size {
		h, key, _, err := record.ReadAt(r, offset, false)
		if err != nil {
			if errors.Is(err, record.ErrTruncated) {
				break
			}
			return fmt.Errorf("caskdb: replay %s: %w", path, err)
		}
		if h.Tombstone() {
			db.index.Delete(key)
		} else {
			db.index.Put(key, keydir.Pos{
				Bucket: bucketName,
				FID:    int(h.FID),
				Offset: int64(h.Offset),
				KSize:  h.KSize,
				VSize:  h.VSize,
				CRC32:  h.CRC32,
				Time:   h.Time,
			})
		}
		offset = h.Next(offset)
	}
	return nil
}

// AllBuckets returns the names of every bucket known to the database, in
// sorted order.
func (db *DB) AllBuckets() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := db.buckets.Buckets()
	sort.Strings(names)
	return names
}

// ChangeBucket routes future writes to bucket name, creating it (and its
// subdirectory) on first reference. It never affects which keys are
// visible to Get — the key index is global across buckets.
func (db *DB) ChangeBucket(name string) error {
	if name == "" {
		return bucket.ErrEmptyBucket
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.buckets.Has(name) {
		if err := db.buckets.MkdirAll(name); err != nil {
			return err
		}
		db.buckets.Ensure(name)
		if _, _, err := db.buckets.ActiveFID(name); err != nil {
			return err
		}
	}
	db.active = name
	return nil
}

// AllKeys returns every live key across all buckets. No ordering is
// guaranteed.
func (db *DB) AllKeys() [][]byte {
	return db.index.Keys()
}

// Get returns the current value of key, or ErrKeyNotFound if it is
// unknown. A CRC or key mismatch against the stored record is reported as
// ErrDataCorruption rather than silently treated as not-found, though
// ErrDataCorruption also satisfies callers that only care about a single
// missing/bad sentinel (errors.Is(err, ErrKeyNotFound) is false for it by
// design — see the error handling design notes).
func (db *DB) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	db.mu.Lock()
	pos, ok := db.index.Get(key)
	db.mu.Unlock()
	if !ok {
		return nil, ErrKeyNotFound
	}

	path := db.buckets.Path(pos.Bucket, pos.FID)
	r, err := record.OpenDiskReader(path)
	if err != nil {
		return nil, fmt.Errorf("caskdb: get %q: %w", key, err)
	}
	defer r.Close()

	h, gotKey, value, err := record.ReadAt(r, pos.Offset, true)
	if err != nil {
		db.log.Warn("get: record unreadable", zap.ByteString("key", key), zap.Error(err))
		return nil, ErrKeyNotFound
	}
	if !bytes.Equal(gotKey, key) {
		db.log.Warn("get: key mismatch", zap.ByteString("key", key))
		return nil, ErrDataCorruption
	}
	if record.CRC32(gotKey, value) != h.CRC32 {
		db.log.Warn("get: crc mismatch", zap.ByteString("key", key))
		return nil, ErrDataCorruption
	}
	return value, nil
}

// Set stores value under key. If key already holds an equal value, the
// call is a pure no-op (no bytes are appended). Otherwise, if key already
// exists, a tombstone for the prior record is appended to the currently
// active bucket before the new record is written — so a crash between the
// two appends leaves the key looking deleted on recovery, an accepted
// durability trade-off documented in the design notes.
func (db *DB) Set(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(value) == 0 {
		return ErrEmptyValue
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	writeBucket := db.active

	if prior, ok := db.index.Get(key); ok {
		same, err := db.sameValue(prior, value)
		if err != nil {
			return fmt.Errorf("caskdb: set %q: %w", key, err)
		}
		if same {
			return nil
		}
		if err := db.appendTombstone(writeBucket, key, prior); err != nil {
			return fmt.Errorf("caskdb: set %q: %w", key, err)
		}
	}

	fid, offset, err := db.buckets.ActiveFID(writeBucket)
	if err != nil {
		return fmt.Errorf("caskdb: set %q: %w", key, err)
	}

	h := record.Header{
		Time:   uint32(time.Now().Unix()),
		FID:    uint32(fid),
		Offset: uint32(offset),
		KSize:  uint32(len(key)),
		VSize:  uint32(len(value)),
		CRC32:  record.CRC32(key, value),
	}
	path := db.buckets.Path(writeBucket, fid)
	if err := record.Write(path, h, key, value); err != nil {
		return fmt.Errorf("caskdb: set %q: %w", key, err)
	}

	db.index.Put(key, keydir.Pos{
		Bucket: writeBucket,
		FID:    fid,
		Offset: offset,
		KSize:  h.KSize,
		VSize:  h.VSize,
		CRC32:  h.CRC32,
		Time:   h.Time,
	})
	return nil
}

// sameValue reads back the value of the record prior describes and
// compares it byte-for-byte against value, implementing Set's same-value
// no-op optimization.
func (db *DB) sameValue(prior keydir.Pos, value []byte) (bool, error) {
	if prior.VSize != uint32(len(value)) {
		return false, nil
	}

	path := db.buckets.Path(prior.Bucket, prior.FID)
	r, err := record.OpenDiskReader(path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	valueOffset := prior.Offset + record.HeaderSize + int64(prior.KSize)
	buf := make([]byte, prior.VSize)
	n, _ := r.ReadAt(buf, valueOffset)
	if n < int(prior.VSize) {
		return false, nil
	}
	return bytes.Equal(buf, value), nil
}

// appendTombstone appends a tombstone for prior's key to writeBucket's
// active file. The tombstone's header carries prior's own (fid, offset)
// and crc so GC can locate and verify the record it shadows.
func (db *DB) appendTombstone(writeBucket string, key []byte, prior keydir.Pos) error {
	fid, _, err := db.buckets.ActiveFID(writeBucket)
	if err != nil {
		return err
	}
	h := record.Header{
		Time:   uint32(time.Now().Unix()),
		FID:    uint32(prior.FID),
		Offset: uint32(prior.Offset),
		KSize:  uint32(len(key)),
		VSize:  0,
		CRC32:  prior.CRC32,
	}
	path := db.buckets.Path(writeBucket, fid)
	return record.Write(path, h, key, nil)
}

// Remove deletes key. It fails with ErrKeyNotFound if key is not
// currently present — callers that want idempotent deletes should treat
// that as success themselves (see the error handling design notes).
func (db *DB) Remove(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	prior, ok := db.index.Get(key)
	if !ok {
		return ErrKeyNotFound
	}
	db.index.Delete(key)

	writeBucket := db.active
	if err := db.appendTombstone(writeBucket, key, prior); err != nil {
		return fmt.Errorf("caskdb: remove %q: %w", key, err)
	}
	return nil
}
