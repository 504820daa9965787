package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/duynguyendang/lmerec/pkg/keys"
	"github.com/google/uuid"
	"github.com/klauspost/compress/s2"
)

// writeChunks splits data into chunkSize pieces and stores each s2-compressed
// under [gen | tag | idx]. An empty array still gets no chunk keys; presence
// is tracked by marker keys.
func writeChunks(batch *badger.WriteBatch, gen uuid.UUID, tag byte, data []byte, chunkSize int) (int, error) {
	n := 0
	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		compressed := s2.Encode(nil, data[off:end])
		if err := batch.Set(keys.EncodeChunkKey(gen, tag, uint32(n)), compressed); err != nil {
			return n, fmt.Errorf("failed to write chunk %d: %w", n, err)
		}
		n++
	}
	return n, nil
}

// readChunks concatenates every chunk stored under [gen | tag] in index order.
func readChunks(txn *badger.Txn, gen uuid.UUID, tag byte) ([]byte, error) {
	prefix := keys.EncodeTagPrefix(gen, tag)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []byte
	expect := uint32(0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if want := keys.EncodeChunkKey(gen, tag, expect); string(item.Key()) != string(want) {
			return nil, fmt.Errorf("%w: chunk %d missing", ErrCorrupt, expect)
		}
		err := item.Value(func(val []byte) error {
			decoded, err := s2.Decode(nil, val)
			if err != nil {
				return fmt.Errorf("%w: chunk %d: %v", ErrCorrupt, expect, err)
			}
			out = append(out, decoded...)
			return nil
		})
		if err != nil {
			return nil, err
		}
		expect++
	}
	return out, nil
}
