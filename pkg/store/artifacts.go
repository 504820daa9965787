// Package store persists artifact generations in BadgerDB.
//
// Every generation lives under its own uuid key prefix. A generation becomes
// visible only when Commit flips the current-generation pointer; the previous
// generation is dropped afterwards, so readers never see a mix.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/duynguyendang/lmerec/pkg/bundle"
	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/duynguyendang/lmerec/pkg/dict"
	"github.com/duynguyendang/lmerec/pkg/embed"
	"github.com/duynguyendang/lmerec/pkg/keys"
	"github.com/duynguyendang/lmerec/pkg/stats"
	"github.com/google/uuid"
)

var (
	// ErrNoGeneration is returned when nothing has been committed yet.
	ErrNoGeneration = errors.New("store: no committed generation")

	// ErrStaleGeneration is returned when filling an artifact of a
	// generation that is no longer current.
	ErrStaleGeneration = errors.New("store: generation is not current")

	// ErrCorrupt reports unreadable stored data.
	ErrCorrupt = errors.New("store: corrupt artifact")
)

// Artifact markers.
const (
	markerRegistry byte = 'r'
	markerCorpus   byte = 'c'
	markerStats    byte = 's'
	markerSpace    byte = 'v'
	markerLabels   byte = 'l'
)

// Store is a badger-backed bundle.ArtifactStore.
type Store struct {
	db  *badger.DB
	cfg *Config
}

var _ bundle.ArtifactStore = (*Store)(nil)

// Open opens the database and drops generations left uncommitted by an
// interrupted rebuild.
func Open(cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}
	db, err := OpenBadgerDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	s := &Store{db: db, cfg: cfg}
	if !cfg.ReadOnly {
		if err := s.sweep(); err != nil {
			db.Close()
			return nil, err
		}
	}
	slog.Info("artifact store opened", "dir", cfg.DataDir, "in_memory", cfg.InMemory, "profile", cfg.Profile)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Current returns the committed generation.
func (s *Store) Current() (uuid.UUID, error) {
	var gen uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		gen, err = currentIn(txn)
		return err
	})
	return gen, err
}

func currentIn(txn *badger.Txn) (uuid.UUID, error) {
	item, err := txn.Get(keys.KeyCurrentGeneration)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return uuid.Nil, ErrNoGeneration
	}
	if err != nil {
		return uuid.Nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return uuid.Nil, err
	}
	gen, err := uuid.FromBytes(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: current generation pointer: %v", ErrCorrupt, err)
	}
	return gen, nil
}

// sweep removes every generation prefix other than the current one.
func (s *Store) sweep() error {
	current, err := s.Current()
	if err != nil && !errors.Is(err, ErrNoGeneration) {
		return err
	}

	var stale []uuid.UUID
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte{keys.GenerationPrefix}
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); {
			gen, ok := keys.DecodeGeneration(it.Item().Key())
			if !ok {
				it.Next()
				continue
			}
			if gen != current {
				stale = append(stale, gen)
			}
			// Skip the rest of this generation.
			next := keys.EncodeGenerationPrefix(gen)
			next = append(next, 0xFF, 0xFF)
			it.Seek(next)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan generations: %w", err)
	}
	for _, gen := range stale {
		slog.Warn("dropping uncommitted generation", "generation", gen)
		if err := s.Discard(gen); err != nil {
			return err
		}
	}
	return nil
}

// BeginGeneration returns a fresh generation id. Nothing is written until
// artifacts are saved under it.
func (s *Store) BeginGeneration() uuid.UUID {
	return uuid.New()
}

// Discard drops every key of gen.
func (s *Store) Discard(gen uuid.UUID) error {
	if err := s.db.DropPrefix(keys.EncodeGenerationPrefix(gen)); err != nil {
		return fmt.Errorf("failed to drop generation %s: %w", gen, err)
	}
	return nil
}

// Commit writes the metadata of gen and makes it the current generation.
// The previous generation is dropped afterwards.
func (s *Store) Commit(gen uuid.UUID, meta bundle.Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}

	var previous uuid.UUID
	err = s.db.Update(func(txn *badger.Txn) error {
		prev, err := currentIn(txn)
		if err != nil && !errors.Is(err, ErrNoGeneration) {
			return err
		}
		previous = prev
		if err := txn.Set(keys.EncodeMetaKey(gen), data); err != nil {
			return err
		}
		return txn.Set(keys.KeyCurrentGeneration, gen[:])
	})
	if err != nil {
		return fmt.Errorf("failed to commit generation %s: %w", gen, err)
	}

	slog.Info("generation committed", "generation", gen, "previous", previous)
	if previous != uuid.Nil && previous != gen {
		return s.Discard(previous)
	}
	return nil
}

// SaveRegistry writes both directions of a registry under gen.
func (s *Store) SaveRegistry(gen uuid.UUID, enc *dict.Encoder) error {
	batch := s.db.NewWriteBatch()
	defer batch.Cancel()

	kind := byte(enc.Kind())
	for id, uri := range enc.URIs() {
		if err := batch.Set(keys.EncodeDictForwardKey(gen, kind, uri), keys.EncodeID(int32(id))); err != nil {
			return fmt.Errorf("failed to write forward key: %w", err)
		}
		if err := batch.Set(keys.EncodeDictReverseKey(gen, kind, int32(id)), []byte(uri)); err != nil {
			return fmt.Errorf("failed to write reverse key: %w", err)
		}
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s registry: %w", enc.Kind(), err)
	}
	slog.Debug("registry saved", "generation", gen, "kind", enc.Kind().String(), "size", enc.Len())
	return nil
}

func (s *Store) saveArray(gen uuid.UUID, tag, marker byte, data []byte) error {
	batch := s.db.NewWriteBatch()
	defer batch.Cancel()

	n, err := writeChunks(batch, gen, tag, data, s.cfg.ChunkSize)
	if err != nil {
		return err
	}
	if err := batch.Set(keys.EncodeMarkerKey(gen, marker), nil); err != nil {
		return err
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("failed to flush chunks: %w", err)
	}
	slog.Debug("array artifact saved", "generation", gen, "marker", string(marker), "bytes", len(data), "chunks", n)
	return nil
}

func (s *Store) mark(gen uuid.UUID, marker byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keys.EncodeMarkerKey(gen, marker), nil)
	})
}

// SaveCorpus writes the encoded corpus under gen.
func (s *Store) SaveCorpus(gen uuid.UUID, c *corpus.Corpus) error {
	data, err := c.MarshalBinary()
	if err != nil {
		return err
	}
	return s.saveArray(gen, keys.CorpusChunkTag, markerCorpus, data)
}

// SaveStatsTo writes the relation-frequency table under gen.
func (s *Store) SaveStatsTo(gen uuid.UUID, r *stats.Recommender) error {
	data, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	return s.saveArray(gen, keys.StatsChunkTag, markerStats, data)
}

// SaveLabelsTo writes the label index under gen.
func (s *Store) SaveLabelsTo(gen uuid.UUID, labels corpus.Labels) error {
	data, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	return s.saveArray(gen, keys.LabelsChunkTag, markerLabels, data)
}

// SaveSpaceTo writes the embedding header and one key per vector under gen.
func (s *Store) SaveSpaceTo(gen uuid.UUID, sp *embed.Space) error {
	batch := s.db.NewWriteBatch()
	defer batch.Cancel()

	if err := batch.Set(keys.EncodeSpaceHeaderKey(gen), embed.EncodeHeader(sp.Header())); err != nil {
		return fmt.Errorf("failed to write space header: %w", err)
	}
	err := sp.Each(func(id dict.ID, vec []float32) error {
		return batch.Set(keys.EncodeVectorKey(gen, int32(id)), embed.EncodeVector(vec))
	})
	if err != nil {
		return fmt.Errorf("failed to write vectors: %w", err)
	}
	if err := batch.Set(keys.EncodeMarkerKey(gen, markerSpace), nil); err != nil {
		return err
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("failed to flush space: %w", err)
	}
	slog.Debug("embedding saved", "generation", gen, "vectors", sp.Len(), "dim", sp.Dim())
	return nil
}

// SaveGeneration stages every artifact of b under its generation and commits
// it. A failed save discards the staged keys.
func (s *Store) SaveGeneration(ctx context.Context, b *bundle.Bundle) error {
	gen, err := uuid.Parse(b.Generation)
	if err != nil {
		return fmt.Errorf("invalid generation id %q: %w", b.Generation, err)
	}
	start := time.Now()

	stage := func() error {
		if err := s.SaveRegistry(gen, b.Classes); err != nil {
			return err
		}
		if err := s.SaveRegistry(gen, b.Predicates); err != nil {
			return err
		}
		if err := s.mark(gen, markerRegistry); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.SaveCorpus(gen, b.Corpus); err != nil {
			return err
		}
		if err := s.SaveStatsTo(gen, b.Stats); err != nil {
			return err
		}
		if err := s.SaveLabelsTo(gen, b.Labels); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.SaveSpaceTo(gen, b.Space)
	}
	if err := stage(); err != nil {
		if derr := s.Discard(gen); derr != nil {
			slog.Error("failed to discard staged generation", "generation", gen, "error", derr)
		}
		return err
	}
	if err := s.Commit(gen, b.Meta); err != nil {
		return err
	}
	slog.Info("generation saved", "generation", gen, "duration", time.Since(start))
	return nil
}

func (s *Store) requireCurrent(gen string) (uuid.UUID, error) {
	want, err := uuid.Parse(gen)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid generation id %q: %w", gen, err)
	}
	current, err := s.Current()
	if err != nil {
		return uuid.Nil, err
	}
	if current != want {
		return uuid.Nil, fmt.Errorf("%w: %s (current %s)", ErrStaleGeneration, want, current)
	}
	return current, nil
}

// SaveStats fills in the statistics model of the committed generation gen.
func (s *Store) SaveStats(_ context.Context, gen string, r *stats.Recommender) error {
	g, err := s.requireCurrent(gen)
	if err != nil {
		return err
	}
	return s.SaveStatsTo(g, r)
}

// SaveSpace fills in the embedding of the committed generation gen.
func (s *Store) SaveSpace(_ context.Context, gen string, sp *embed.Space) error {
	g, err := s.requireCurrent(gen)
	if err != nil {
		return err
	}
	return s.SaveSpaceTo(g, sp)
}

// Presence reports which artifacts the committed generation holds.
func (s *Store) Presence(_ context.Context) (bundle.Presence, error) {
	var p bundle.Presence
	err := s.db.View(func(txn *badger.Txn) error {
		gen, err := currentIn(txn)
		if errors.Is(err, ErrNoGeneration) {
			return nil
		}
		if err != nil {
			return err
		}
		p.Generation = gen.String()

		has := func(marker byte) (bool, error) {
			_, err := txn.Get(keys.EncodeMarkerKey(gen, marker))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return false, nil
			}
			return err == nil, err
		}
		if p.Registry, err = has(markerRegistry); err != nil {
			return err
		}
		if p.Corpus, err = has(markerCorpus); err != nil {
			return err
		}
		if p.Stats, err = has(markerStats); err != nil {
			return err
		}
		p.Space, err = has(markerSpace)
		return err
	})
	return p, err
}

// view runs fn against the committed generation.
func (s *Store) view(fn func(txn *badger.Txn, gen uuid.UUID) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		gen, err := currentIn(txn)
		if err != nil {
			return err
		}
		return fn(txn, gen)
	})
}

// LoadMeta returns the metadata of the committed generation.
func (s *Store) LoadMeta(_ context.Context) (bundle.Meta, error) {
	var meta bundle.Meta
	err := s.view(func(txn *badger.Txn, gen uuid.UUID) error {
		item, err := txn.Get(keys.EncodeMetaKey(gen))
		if err != nil {
			return fmt.Errorf("meta of %s: %w", gen, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	return meta, err
}

// LoadRegistries restores both registries of the committed generation.
func (s *Store) LoadRegistries(_ context.Context) (*dict.Encoder, *dict.Encoder, error) {
	var classes, predicates *dict.Encoder
	err := s.view(func(txn *badger.Txn, gen uuid.UUID) error {
		var err error
		if classes, err = loadRegistry(txn, gen, dict.KindClass); err != nil {
			return err
		}
		predicates, err = loadRegistry(txn, gen, dict.KindPredicate)
		return err
	})
	return classes, predicates, err
}

func loadRegistry(txn *badger.Txn, gen uuid.UUID, kind dict.Kind) (*dict.Encoder, error) {
	prefix := keys.EncodeDictReversePrefix(gen, byte(kind))
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var uris []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		id, ok := keys.DecodeDictReverseKey(item.Key())
		if !ok || int(id) != len(uris) {
			return nil, fmt.Errorf("%w: %s registry is not dense at id %d", ErrCorrupt, kind, len(uris))
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		uris = append(uris, string(val))
	}
	enc, err := dict.NewEncoderFromURIs(kind, uris)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return enc, nil
}

// LookupID resolves a URI through the forward keys of the committed
// generation without loading the registry.
func (s *Store) LookupID(kind dict.Kind, uri string) (dict.ID, error) {
	id := dict.NotFound
	err := s.view(func(txn *badger.Txn, gen uuid.UUID) error {
		item, err := txn.Get(keys.EncodeDictForwardKey(gen, byte(kind), uri))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, ok := keys.DecodeID(val)
			if !ok {
				return fmt.Errorf("%w: forward value for %q", ErrCorrupt, uri)
			}
			id = dict.ID(v)
			return nil
		})
	})
	return id, err
}

// LoadCorpus restores the encoded corpus of the committed generation.
func (s *Store) LoadCorpus(_ context.Context) (*corpus.Corpus, error) {
	c := &corpus.Corpus{}
	err := s.view(func(txn *badger.Txn, gen uuid.UUID) error {
		data, err := readChunks(txn, gen, keys.CorpusChunkTag)
		if err != nil {
			return err
		}
		return c.UnmarshalBinary(data)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// LoadLabels restores the label index of the committed generation. A
// generation saved without one yields an empty index.
func (s *Store) LoadLabels(_ context.Context) (corpus.Labels, error) {
	labels := corpus.Labels{}
	err := s.view(func(txn *badger.Txn, gen uuid.UUID) error {
		_, err := txn.Get(keys.EncodeMarkerKey(gen, markerLabels))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := readChunks(txn, gen, keys.LabelsChunkTag)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &labels); err != nil {
			return fmt.Errorf("%w: labels of %s: %v", ErrCorrupt, gen, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// LoadStats restores the statistics model of the committed generation.
func (s *Store) LoadStats(_ context.Context) (*stats.Recommender, error) {
	r := &stats.Recommender{}
	err := s.view(func(txn *badger.Txn, gen uuid.UUID) error {
		data, err := readChunks(txn, gen, keys.StatsChunkTag)
		if err != nil {
			return err
		}
		return r.UnmarshalBinary(data)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// LoadSpace restores the embedding of the committed generation.
func (s *Store) LoadSpace(_ context.Context) (*embed.Space, error) {
	var sp *embed.Space
	err := s.view(func(txn *badger.Txn, gen uuid.UUID) error {
		item, err := txn.Get(keys.EncodeSpaceHeaderKey(gen))
		if err != nil {
			return fmt.Errorf("space header of %s: %w", gen, err)
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		h, err := embed.DecodeHeader(raw)
		if err != nil {
			return err
		}

		vectors := make(map[dict.ID][]float32)
		prefix := keys.EncodeTagPrefix(gen, keys.VectorTag)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id, ok := keys.DecodeVectorKey(item.Key())
			if !ok {
				return fmt.Errorf("%w: vector key", ErrCorrupt)
			}
			err := item.Value(func(val []byte) error {
				vec, err := embed.DecodeVector(val, h.Dim)
				if err != nil {
					return err
				}
				vectors[dict.ID(id)] = vec
				return nil
			})
			if err != nil {
				return err
			}
		}
		sp, err = embed.FromParts(h, vectors)
		return err
	})
	return sp, err
}
