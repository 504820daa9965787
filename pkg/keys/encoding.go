package keys

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Prefix constants for the artifact key space.
const (
	// GenerationPrefix starts every key that belongs to one artifact generation:
	// [prefix(1) | generation(16) | tag(1) | ...]
	GenerationPrefix byte = 0x20

	// System keys (0xFF reserved for system metadata)
	SystemPrefix byte = 0xFF
)

// Tags following the generation id.
const (
	MetaTag        byte = 0x01 // generation metadata (JSON)
	MarkerTag      byte = 0x02 // one key per fully written artifact
	CorpusChunkTag byte = 0x10 // encoded corpus, s2 chunks
	StatsChunkTag  byte = 0x11 // relation-frequency table, s2 chunks
	LabelsChunkTag byte = 0x12 // label index (JSON), s2 chunks
	SpaceHeaderTag byte = 0x30 // embedding header
	VectorTag      byte = 0x31 // one embedding vector per id
	DictForwardTag byte = 0x80 // URI -> id
	DictReverseTag byte = 0x81 // id -> URI
)

// Key size constants
const (
	PrefixSize     = 1
	GenerationSize = 16
	TagSize        = 1
	IDSize         = 4

	// GenerationKeySize is prefix(1) + generation(16) = 17 bytes.
	GenerationKeySize = PrefixSize + GenerationSize

	// TaggedKeySize is prefix(1) + generation(16) + tag(1) = 18 bytes.
	TaggedKeySize = GenerationKeySize + TagSize
)

// KeyCurrentGeneration holds the id of the committed generation.
var KeyCurrentGeneration = []byte{SystemPrefix, 0x01}

// EncodeGenerationPrefix returns the prefix shared by every key of gen.
func EncodeGenerationPrefix(gen uuid.UUID) []byte {
	key := make([]byte, GenerationKeySize)
	key[0] = GenerationPrefix
	copy(key[1:], gen[:])
	return key
}

func tagged(gen uuid.UUID, tag byte, extra int) []byte {
	key := make([]byte, TaggedKeySize, TaggedKeySize+extra)
	key[0] = GenerationPrefix
	copy(key[1:17], gen[:])
	key[17] = tag
	return key
}

// EncodeTagPrefix returns [prefix | gen | tag] for range scans.
func EncodeTagPrefix(gen uuid.UUID, tag byte) []byte {
	return tagged(gen, tag, 0)
}

// EncodeMetaKey encodes the metadata key of gen.
func EncodeMetaKey(gen uuid.UUID) []byte {
	return tagged(gen, MetaTag, 0)
}

// EncodeMarkerKey encodes the presence marker of an artifact of gen.
func EncodeMarkerKey(gen uuid.UUID, artifact byte) []byte {
	key := tagged(gen, MarkerTag, 1)
	return append(key, artifact)
}

// EncodeChunkKey encodes the key of chunk idx of an array artifact.
// BigEndian keeps chunks in numeric order during iteration.
func EncodeChunkKey(gen uuid.UUID, tag byte, idx uint32) []byte {
	key := tagged(gen, tag, 4)
	return binary.BigEndian.AppendUint32(key, idx)
}

// EncodeSpaceHeaderKey encodes the embedding header key of gen.
func EncodeSpaceHeaderKey(gen uuid.UUID) []byte {
	return tagged(gen, SpaceHeaderTag, 0)
}

// EncodeVectorKey encodes the key of the vector of node id.
func EncodeVectorKey(gen uuid.UUID, id int32) []byte {
	key := tagged(gen, VectorTag, IDSize)
	return binary.BigEndian.AppendUint32(key, uint32(id))
}

// DecodeVectorKey returns the node id of a vector key.
func DecodeVectorKey(key []byte) (int32, bool) {
	if len(key) != TaggedKeySize+IDSize || key[0] != GenerationPrefix || key[17] != VectorTag {
		return 0, false
	}
	return int32(binary.BigEndian.Uint32(key[TaggedKeySize:])), true
}

// Dictionary encoding format:
// forward: [prefix | gen | DictForwardTag | kind(1) | uri]   -> id(4)
// reverse: [prefix | gen | DictReverseTag | kind(1) | id(4)] -> uri

// EncodeDictForwardKey encodes the URI -> id key for a registry kind.
func EncodeDictForwardKey(gen uuid.UUID, kind byte, uri string) []byte {
	key := tagged(gen, DictForwardTag, 1+len(uri))
	key = append(key, kind)
	return append(key, uri...)
}

// EncodeDictReverseKey encodes the id -> URI key for a registry kind.
func EncodeDictReverseKey(gen uuid.UUID, kind byte, id int32) []byte {
	key := tagged(gen, DictReverseTag, 1+IDSize)
	key = append(key, kind)
	return binary.BigEndian.AppendUint32(key, uint32(id))
}

// EncodeDictReversePrefix returns the prefix of every reverse key of kind.
func EncodeDictReversePrefix(gen uuid.UUID, kind byte) []byte {
	key := tagged(gen, DictReverseTag, 1)
	return append(key, kind)
}

// DecodeDictReverseKey returns the id of a reverse dictionary key.
func DecodeDictReverseKey(key []byte) (int32, bool) {
	if len(key) != TaggedKeySize+1+IDSize || key[0] != GenerationPrefix || key[17] != DictReverseTag {
		return 0, false
	}
	return int32(binary.BigEndian.Uint32(key[TaggedKeySize+1:])), true
}

// EncodeID encodes a dictionary id value.
func EncodeID(id int32) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(id))
}

// DecodeID decodes a dictionary id value.
func DecodeID(b []byte) (int32, bool) {
	if len(b) != IDSize {
		return 0, false
	}
	return int32(binary.BigEndian.Uint32(b)), true
}

// DecodeGeneration extracts the generation id of a generation key.
func DecodeGeneration(key []byte) (uuid.UUID, bool) {
	if len(key) < GenerationKeySize || key[0] != GenerationPrefix {
		return uuid.Nil, false
	}
	var gen uuid.UUID
	copy(gen[:], key[1:GenerationKeySize])
	return gen, true
}
