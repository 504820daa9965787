package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Config holds the configuration for the artifact BadgerDB.
type Config struct {
	// DataDir is the directory where BadgerDB will store its data.
	DataDir string `yaml:"data_dir"`

	// InMemory enables in-memory mode (useful for testing).
	InMemory bool `yaml:"in_memory"`

	// BlockCacheSize is the size of the block cache in bytes.
	BlockCacheSize int64 `yaml:"block_cache_size"`

	// IndexCacheSize is the size of the index cache in bytes.
	IndexCacheSize int64 `yaml:"index_cache_size"`

	// Compression enables ZSTD compression of SSTables. Array chunks are
	// already s2 compressed.
	Compression bool `yaml:"compression"`

	// SyncWrites enables synchronous writes.
	SyncWrites bool `yaml:"sync_writes"`

	// MemTableSize is the size of the memtable in bytes. 0 keeps badger's default.
	MemTableSize int64 `yaml:"mem_table_size"`

	// NumMemtables is the number of memtables kept in memory. 0 keeps badger's default.
	NumMemtables int `yaml:"num_memtables"`

	// Profile specifies the resource profile ("Ingest-Heavy", "Safe-Serving", "Cloud-Run-LowMem").
	Profile string `yaml:"profile"`

	// ReadOnly opens the database read-only.
	ReadOnly bool `yaml:"read_only"`

	// ChunkSize is the uncompressed size of one array chunk in bytes.
	ChunkSize int `yaml:"chunk_size"`
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.DataDir == "" && !c.InMemory {
		return fmt.Errorf("DataDir must be specified when InMemory is false")
	}
	if c.BlockCacheSize <= 0 {
		return fmt.Errorf("BlockCacheSize must be positive, got %d", c.BlockCacheSize)
	}
	if c.IndexCacheSize <= 0 {
		return fmt.Errorf("IndexCacheSize must be positive, got %d", c.IndexCacheSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("ChunkSize must be positive, got %d", c.ChunkSize)
	}
	return nil
}

// DefaultConfig returns a serving configuration rooted at dataDir.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:        dataDir,
		BlockCacheSize: 256 << 20, // 256MB
		IndexCacheSize: 64 << 20,  // 64MB
		Compression:    true,
		Profile:        "Safe-Serving",
		ChunkSize:      1 << 20, // 1MB
	}
}

// InMemoryConfig returns a configuration for tests and one-shot pipelines.
func InMemoryConfig() *Config {
	cfg := DefaultConfig("")
	cfg.InMemory = true
	return cfg
}

// buildBadgerOptions converts Config to badger.Options based on Profile.
func buildBadgerOptions(cfg *Config) badger.Options {
	if cfg.InMemory {
		return badger.DefaultOptions("").
			WithInMemory(true).
			WithLogger(slogLogger{})
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.DataDir, "badger")).
		WithLogger(slogLogger{})

	opts.ReadOnly = cfg.ReadOnly

	// 1% false positive rate balances memory vs performance
	opts.BloomFalsePositive = 0.01

	if cfg.Compression {
		opts.Compression = options.ZSTD
	} else {
		opts.Compression = options.None
	}

	switch cfg.Profile {
	case "Cloud-Run-LowMem":
		opts.ValueLogFileSize = 32 << 20 // 32MB
		opts.NumCompactors = 2
		opts.IndexCacheSize = 64 << 20

	case "Ingest-Heavy":
		opts.ValueLogFileSize = 1 << 30 // 1GB
		opts.NumCompactors = 4

	case "Safe-Serving":
		fallthrough
	default:
		// Small value log keeps IO stable; badger v4 requires at least 2 compactors.
		opts.ValueLogFileSize = 64 << 20 // 64MB
		opts.NumCompactors = 2
	}

	opts.BlockCacheSize = cfg.BlockCacheSize
	opts.IndexCacheSize = cfg.IndexCacheSize
	opts.SyncWrites = cfg.SyncWrites

	if cfg.MemTableSize > 0 {
		opts.MemTableSize = cfg.MemTableSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	return opts
}

// OpenBadgerDB opens a BadgerDB instance with the given configuration.
func OpenBadgerDB(cfg *Config) (*badger.DB, error) {
	return badger.Open(buildBadgerOptions(cfg))
}

// slogLogger routes badger's own logging through slog.
type slogLogger struct{}

func (slogLogger) Errorf(format string, args ...interface{}) {
	slog.Error(badgerMessage(format, args), "component", "badger")
}

func (slogLogger) Warningf(format string, args ...interface{}) {
	slog.Warn(badgerMessage(format, args), "component", "badger")
}

func (slogLogger) Infof(format string, args ...interface{}) {
	slog.Debug(badgerMessage(format, args), "component", "badger")
}

func (slogLogger) Debugf(format string, args ...interface{}) {
	slog.Debug(badgerMessage(format, args), "component", "badger")
}

func badgerMessage(format string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
