package caskdb

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/nyasuto/caskdb/internal/bucket"
	"github.com/nyasuto/caskdb/internal/keydir"
	"github.com/nyasuto/caskdb/internal/record"
)

// dropSet is the two-level "offsets to drop" working table GC's first
// pass builds: for a given physical file id, the set of byte offsets
// within that file that must not survive into the rewrite. An entry gets
// registered here for two different reasons (see collectTombstones), but
// by the time Pass 2 reads it back the reason no longer matters — it is
// just a location to skip.
type dropSet map[int]map[int64]bool

func (d dropSet) add(fid int, offset int64) {
	m, ok := d[fid]
	if !ok {
		m = make(map[int64]bool)
		d[fid] = m
	}
	m[offset] = true
}

// GC compacts bucketName: for every file that holds a tombstone or a
// record a tombstone shadows, it rewrites the records not shadowed into a
// fresh active file and deletes the source file if at least one record was
// dropped. Files that appear in no tombstone entry are left untouched. Running GC concurrently with writes to the
// same bucket is undefined, per the concurrency model.
func (db *DB) GC(bucketName string) error {
	if bucketName == "" {
		return bucket.ErrEmptyBucket
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.buckets.Has(bucketName) {
		return fmt.Errorf("caskdb: gc %q: %w", bucketName, ErrUnknownBucket)
	}

	drops, err := db.collectTombstones(bucketName)
	if err != nil {
		return fmt.Errorf("caskdb: gc %q: %w", bucketName, err)
	}
	if len(drops) == 0 {
		db.log.Info("gc: nothing to collect", zap.String("bucket", bucketName))
		return nil
	}

	// Advance act_fid before rewriting so survivors never land in a file
	// this pass is still scanning.
	db.buckets.NextEmptyFID(bucketName)

	var filesDeleted, bytesReclaimed int64
	for inFID, offsets := range drops {
		deleted, reclaimed, err := db.gcRewriteFile(bucketName, inFID, offsets)
		if err != nil {
			return fmt.Errorf("caskdb: gc %q: %w", bucketName, err)
		}
		if deleted {
			filesDeleted++
			bytesReclaimed += reclaimed
		}
	}

	db.log.Info("gc complete",
		zap.String("bucket", bucketName),
		zap.Int64("files_deleted", filesDeleted),
		zap.Int64("bytes_reclaimed", bytesReclaimed),
	)
	return nil
}

// collectTombstones is GC's first pass: it scans every file of bucketName
// and, for each tombstone found, registers two drop entries — one under
// the fid the tombstone targets (the shadowed record's own location) and
// one under the tombstone's own physical (fid, offset). Keying both by
// physical fid, rather than by logical target only, is what lets a single
// pass delete a tombstone and the record it shadows even when they live in
// different files.
func (db *DB) collectTombstones(bucketName string) (dropSet, error) {
	drops := make(dropSet)
	maxFID := db.buckets.MaxFID(bucketName)

	for fid := 0; fid <= maxFID; fid++ {
		path := db.buckets.Path(bucketName, fid)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}

		err := func() error {
			r, err := record.OpenDiskReader(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer r.Close()

			size := r.Size()
			var offset int64
			for offset < size {
				h, _, _, err := record.ReadAt(r, offset, false)
				if err != nil {
					if errors.Is(err, record.ErrTruncated) {
						break
					}
					return fmt.Errorf("scan %s: %w", path, err)
				}
				if h.Tombstone() {
					drops.add(int(h.FID), int64(h.Offset))
					drops.add(fid, offset)
				}
				offset = h.Next(offset)
			}
			return nil
		}()
		if err != nil {
			return nil, err
		}
	}
	return drops, nil
}

// gcRewriteFile is GC's second pass applied to a single source file inFID:
// every record at an offset not present in offsets is a live survivor and
// is appended to the bucket's (possibly repeatedly rotating) active file;
// anything else — a dropped offset or an unmatched tombstone — is simply
// not copied. If any record was dropped, the source file is deleted and
// its fid freed for reuse. A missing source file (inFID known to the drop
// table but never created, or already reclaimed) is treated as
// already-compacted rather than an error — the in-process equivalent of
// guarding a nil file handle before closing it.
func (db *DB) gcRewriteFile(bucketName string, inFID int, offsets map[int64]bool) (deleted bool, reclaimed int64, err error) {
	path := db.buckets.Path(bucketName, inFID)
	info, statErr := os.Stat(path)
	if errors.Is(statErr, os.ErrNotExist) {
		return false, 0, nil
	}
	if statErr != nil {
		return false, 0, fmt.Errorf("stat %s: %w", path, statErr)
	}

	r, err := record.OpenDiskReader(path)
	if err != nil {
		return false, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	hasSkip := false
	size := r.Size()
	var offset int64
	for offset < size {
		h, key, value, err := record.ReadAt(r, offset, true)
		if err != nil {
			if errors.Is(err, record.ErrTruncated) {
				break
			}
			return false, 0, fmt.Errorf("scan %s: %w", path, err)
		}
		next := h.Next(offset)

		switch {
		case offsets[offset]:
			hasSkip = true
		case h.Tombstone():
			// An unmatched tombstone (its own entry was already consumed
			// above under its physical fid) is never copied forward.
		default:
			if err := db.gcAppendSurvivor(bucketName, h, key, value); err != nil {
				return false, 0, err
			}
		}
		offset = next
	}

	if !hasSkip {
		return false, 0, nil
	}

	if err := os.Remove(path); err != nil {
		return false, 0, fmt.Errorf("remove %s: %w", path, err)
	}
	db.buckets.AddFreeFID(bucketName, inFID)
	return true, info.Size(), nil
}

// gcAppendSurvivor rewrites one live record into the bucket's current
// active file (rotating first if needed) and repoints the key index at
// its new location.
func (db *DB) gcAppendSurvivor(bucketName string, h record.Header, key, value []byte) error {
	fid, offset, err := db.buckets.ActiveFID(bucketName)
	if err != nil {
		return err
	}

	newH := record.Header{
		Time:   h.Time,
		FID:    uint32(fid),
		Offset: uint32(offset),
		KSize:  h.KSize,
		VSize:  h.VSize,
		CRC32:  h.CRC32,
	}
	path := db.buckets.Path(bucketName, fid)
	if err := record.Write(path, newH, key, value); err != nil {
		return fmt.Errorf("rewrite into %s: %w", path, err)
	}

	db.index.Put(key, keydir.Pos{
		Bucket: bucketName,
		FID:    fid,
		Offset: offset,
		KSize:  h.KSize,
		VSize:  h.VSize,
		CRC32:  h.CRC32,
		Time:   h.Time,
	})
	return nil
}
