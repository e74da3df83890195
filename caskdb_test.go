package caskdb_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyasuto/caskdb"
	"github.com/nyasuto/caskdb/internal/config"
)

func open(t *testing.T, dir string, fileSize int64) *caskdb.DB {
	t.Helper()
	db, err := caskdb.Open(config.Config{Dir: dir, FileSize: fileSize}, nil)
	require.NoError(t, err)
	return db
}

// S1 — basic round trip and tombstone shadowing.
func TestS1Basic(t *testing.T) {
	db := open(t, t.TempDir(), 0)

	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, db.Remove([]byte("k")))
	_, err = db.Get([]byte("k"))
	assert.ErrorIs(t, err, caskdb.ErrKeyNotFound)
}

// S2 — recovery equivalence across a fresh Open of the same directory.
func TestS2Recovery(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 0)

	require.NoError(t, db.Set([]byte("x"), []byte("1")))
	require.NoError(t, db.Set([]byte("y"), []byte("2")))
	require.NoError(t, db.Set([]byte("x"), []byte("11")))

	reopened := open(t, dir, 0)
	x, err := reopened.Get([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("11"), x)

	y, err := reopened.Get([]byte("y"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), y)
}

// S3 — a small file_size threshold forces rotation across two files.
func TestS3Rotation(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 64)

	require.NoError(t, db.Set([]byte("a"), []byte(strings.Repeat("A", 50))))
	require.NoError(t, db.Set([]byte("b"), []byte(strings.Repeat("B", 50))))

	assert.FileExists(t, filepath.Join(dir, "0", "0000000000.dat"))
	assert.FileExists(t, filepath.Join(dir, "0", "0000000001.dat"))

	a, err := db.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("A", 50), string(a))

	b, err := db.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("B", 50), string(b))
}

// S4 — GC reclaims superseded versions of an overwritten key.
func TestS4GCReclaim(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 0)

	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	require.NoError(t, db.Set([]byte("a"), []byte("2")))
	require.NoError(t, db.Set([]byte("a"), []byte("3")))

	before, err := dirSize(filepath.Join(dir, "0"))
	require.NoError(t, err)

	require.NoError(t, db.GC("0"))

	a, err := db.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), a)

	after, err := dirSize(filepath.Join(dir, "0"))
	require.NoError(t, err)
	assert.Less(t, after, before)
}

// S5 — a fresh directory gets a default bucket "0".
func TestS5DefaultBucket(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 0)

	assert.DirExists(t, filepath.Join(dir, "0"))
	assert.Equal(t, []string{"0"}, db.AllBuckets())
}

// S6 — flipping a byte inside the value region makes Get report corruption.
func TestS6Corruption(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 0)

	require.NoError(t, db.Set([]byte("k"), []byte("value-bytes")))

	path := filepath.Join(dir, "0", "0000000000.dat")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = db.Get([]byte("k"))
	assert.ErrorIs(t, err, caskdb.ErrDataCorruption)
}

// Invariant 4 — a same-value write is a pure no-op on disk.
func TestIdempotentSameValueWrite(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 0)

	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	before, err := dirSize(filepath.Join(dir, "0"))
	require.NoError(t, err)

	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	after, err := dirSize(filepath.Join(dir, "0"))
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

// Invariant 7 — no data file exceeds file_size by more than one record.
func TestFileSizeBound(t *testing.T) {
	dir := t.TempDir()
	const fileSize = 64
	const recordSize = 24 + 1 + 10 // header + key + value of the largest record written below
	db := open(t, dir, fileSize)

	for i := 0; i < 20; i++ {
		require.NoError(t, db.Set([]byte(strings.Repeat("k", 1)), []byte(strings.Repeat("v", 10))))
		require.NoError(t, db.Remove([]byte(strings.Repeat("k", 1))))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "0"))
	require.NoError(t, err)
	for _, e := range entries {
		info, err := e.Info()
		require.NoError(t, err)
		assert.LessOrEqual(t, info.Size(), int64(fileSize+recordSize), "file %s exceeded the size bound by more than one record", e.Name())
	}
}

// The key index is global across buckets: switching buckets only changes
// where new writes land, never which keys Get can see (design decision
// D1, preserved from the source behavior).
func TestGlobalIndexAcrossBuckets(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 0)

	require.NoError(t, db.Set([]byte("k1"), []byte("in-bucket-0")))
	require.NoError(t, db.ChangeBucket("analytics"))
	require.NoError(t, db.Set([]byte("k2"), []byte("in-bucket-analytics")))

	v1, err := db.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("in-bucket-0"), v1)

	v2, err := db.Get([]byte("k2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("in-bucket-analytics"), v2)

	assert.ElementsMatch(t, []string{"0", "analytics"}, db.AllBuckets())
}

func TestSetRejectsEmptyKeyOrValue(t *testing.T) {
	db := open(t, t.TempDir(), 0)
	assert.ErrorIs(t, db.Set(nil, []byte("v")), caskdb.ErrEmptyKey)
	assert.ErrorIs(t, db.Set([]byte("k"), nil), caskdb.ErrEmptyValue)
}

func TestGetRejectsEmptyKey(t *testing.T) {
	db := open(t, t.TempDir(), 0)
	_, err := db.Get(nil)
	assert.ErrorIs(t, err, caskdb.ErrEmptyKey)
}

func TestRemoveUnknownKeyFails(t *testing.T) {
	db := open(t, t.TempDir(), 0)
	err := db.Remove([]byte("missing"))
	assert.ErrorIs(t, err, caskdb.ErrKeyNotFound)
}

func TestRemoveRemovesKeyFromAllKeys(t *testing.T) {
	db := open(t, t.TempDir(), 0)
	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	require.NoError(t, db.Remove([]byte("k")))

	for _, k := range db.AllKeys() {
		assert.NotEqual(t, "k", string(k))
	}
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := caskdb.Open(config.Config{}, nil)
	assert.ErrorIs(t, err, config.ErrMissingDir)
}

func TestGCOnEmptyBucketIsNoop(t *testing.T) {
	db := open(t, t.TempDir(), 0)
	assert.NoError(t, db.GC("0"))
}

func TestGCOnUnknownBucketFails(t *testing.T) {
	db := open(t, t.TempDir(), 0)
	assert.ErrorIs(t, db.GC("never-referenced"), caskdb.ErrUnknownBucket)
}

func TestGCPreservesGetForSurvivingKeys(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 0)

	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	require.NoError(t, db.Set([]byte("b"), []byte("2")))
	require.NoError(t, db.Remove([]byte("a")))

	require.NoError(t, db.GC("0"))

	_, err := db.Get([]byte("a"))
	assert.ErrorIs(t, err, caskdb.ErrKeyNotFound)

	b, err := db.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), b)
}

func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
