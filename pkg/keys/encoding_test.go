package keys

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGenerationKeysShareThePrefix(t *testing.T) {
	gen := uuid.New()
	prefix := EncodeGenerationPrefix(gen)

	for _, key := range [][]byte{
		EncodeMetaKey(gen),
		EncodeChunkKey(gen, CorpusChunkTag, 3),
		EncodeSpaceHeaderKey(gen),
		EncodeVectorKey(gen, 7),
		EncodeDictForwardKey(gen, 'c', "http://ex.org/A"),
		EncodeDictReverseKey(gen, 'p', 2),
	} {
		assert.True(t, bytes.HasPrefix(key, prefix))
		got, ok := DecodeGeneration(key)
		assert.True(t, ok)
		assert.Equal(t, gen, got)
	}

	other := EncodeGenerationPrefix(uuid.New())
	assert.False(t, bytes.HasPrefix(EncodeMetaKey(gen), other))
}

func TestChunkKeysSortNumerically(t *testing.T) {
	gen := uuid.New()
	a := EncodeChunkKey(gen, StatsChunkTag, 2)
	b := EncodeChunkKey(gen, StatsChunkTag, 256)
	assert.Equal(t, -1, bytes.Compare(a, b))
	assert.True(t, bytes.HasPrefix(a, EncodeTagPrefix(gen, StatsChunkTag)))
}

func TestVectorAndReverseKeysRoundTrip(t *testing.T) {
	gen := uuid.New()

	id, ok := DecodeVectorKey(EncodeVectorKey(gen, 12345))
	assert.True(t, ok)
	assert.Equal(t, int32(12345), id)

	id, ok = DecodeDictReverseKey(EncodeDictReverseKey(gen, 'c', 99))
	assert.True(t, ok)
	assert.Equal(t, int32(99), id)
	assert.True(t, bytes.HasPrefix(EncodeDictReverseKey(gen, 'c', 99), EncodeDictReversePrefix(gen, 'c')))
	assert.False(t, bytes.HasPrefix(EncodeDictReverseKey(gen, 'c', 99), EncodeDictReversePrefix(gen, 'p')))

	_, ok = DecodeVectorKey(EncodeMetaKey(gen))
	assert.False(t, ok)

	v, ok := DecodeID(EncodeID(-1))
	assert.True(t, ok)
	assert.Equal(t, int32(-1), v)
}

func TestMarkerKeysDifferPerArtifact(t *testing.T) {
	gen := uuid.New()
	assert.NotEqual(t, EncodeMarkerKey(gen, 'r'), EncodeMarkerKey(gen, 's'))
	assert.True(t, bytes.HasPrefix(EncodeMarkerKey(gen, 'r'), EncodeTagPrefix(gen, MarkerTag)))
}
