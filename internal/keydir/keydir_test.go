package keydir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutGetRoundTrip(t *testing.T) {
	idx := New()
	idx.Put([]byte("k"), Pos{FID: 1, Offset: 10})

	got, ok := idx.Get([]byte("k"))
	assert.True(t, ok)
	assert.Equal(t, Pos{FID: 1, Offset: 10}, got)
}

func TestPutOverwritesPriorDescriptor(t *testing.T) {
	idx := New()
	idx.Put([]byte("k"), Pos{FID: 1, Offset: 10})
	idx.Put([]byte("k"), Pos{FID: 2, Offset: 20})

	got, ok := idx.Get([]byte("k"))
	assert.True(t, ok)
	assert.Equal(t, Pos{FID: 2, Offset: 20}, got)
}

func TestDeleteRemovesKey(t *testing.T) {
	idx := New()
	idx.Put([]byte("k"), Pos{FID: 1})
	idx.Delete([]byte("k"))

	_, ok := idx.Get([]byte("k"))
	assert.False(t, ok)
}

func TestDeleteUnknownKeyIsNoop(t *testing.T) {
	idx := New()
	assert.NotPanics(t, func() { idx.Delete([]byte("missing")) })
}

func TestKeysEnumeratesAllLiveKeys(t *testing.T) {
	idx := New()
	idx.Put([]byte("a"), Pos{})
	idx.Put([]byte("b"), Pos{})
	idx.Put([]byte("c"), Pos{})
	idx.Delete([]byte("b"))

	keys := idx.Keys()
	assert.Len(t, keys, 2)
	assert.Equal(t, 2, idx.Len())
}
