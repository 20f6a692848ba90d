package phantomstate

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
	"go.uber.org/zap"

	"github.com/barnstorm/phantomstate/embedding"
	"github.com/barnstorm/phantomstate/internal/textutil"
)

// Config configures an Engine. VectorDimensions and Embedding (its Kind plus
// that kind's own fields) are required; an empty Path opens an in-memory
// database.
type Config struct {
	// Path is the SQLite data source name. Use ":memory:" for an ephemeral
	// database, or a file path for persistent storage.
	Path string

	// VectorDimensions is the width every embedding must have. Pinned into
	// engine_meta on first Open and validated against on every subsequent
	// Open of the same database (spec §4.1, §4.6).
	VectorDimensions int

	// Embedding selects and configures the text-to-vector backend.
	Embedding embedding.Config

	// DefaultChunker is the granularity load_document falls back to when the
	// caller doesn't specify one.
	DefaultChunker Chunker

	// Logger receives structured diagnostic events. A nil Logger is
	// replaced with zap.NewNop() so callers never need a guard.
	Logger *zap.Logger
}

// DefaultConfig returns a Config for local development: an in-memory
// database, the local ONNX embedding backend at 384 dimensions (the width
// of common small sentence-embedding models), sentence chunking, and a
// no-op logger. The local backend's model and tokenizer paths are left
// empty, so Open fails until the caller sets them.
func DefaultConfig() Config {
	return Config{
		Path:             ":memory:",
		VectorDimensions: 384,
		Embedding: embedding.Config{
			Kind:       embedding.Local,
			Dimensions: 384,
		},
		DefaultChunker: ChunkBySentence,
		Logger:         zap.NewNop(),
	}
}

// Engine is the Phantom State narrative engine. It owns a SQLite database
// (relational tables plus sqlite-vec vector indexes), an embedding backend,
// and the read/write lock serializing access to both, matching the
// mutex-guarded single-DB-handle shape the teacher's SQLiteStore uses.
type Engine struct {
	mu         sync.RWMutex
	db         *sql.DB
	embed      embedding.Backend
	dimensions int
	chunker    Chunker
	logger     *zap.Logger
	mentions   *textutil.MentionIndex
}

// Open opens (creating if necessary) the database at cfg.Path, applies the
// schema, pins or validates the configured vector width, and constructs the
// embedding backend. The returned Engine is safe for concurrent use.
func Open(cfg Config) (*Engine, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.VectorDimensions <= 0 {
		return nil, newErr(KindInvalidEnum, "VectorDimensions must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	chunker := cfg.DefaultChunker
	if chunker == "" {
		chunker = ChunkBySentence
	} else if !validChunker(chunker) {
		return nil, newErr(KindInvalidEnum, fmt.Sprintf("invalid default chunker %q", chunker))
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to open database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, wrapErr(KindStorageError, "failed to apply schema", err)
	}

	if err := pinVectorDimensions(db, cfg.VectorDimensions); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d])`,
		corpusVecTable, cfg.VectorDimensions,
	)); err != nil {
		db.Close()
		return nil, wrapErr(KindStorageError, "failed to create corpus vector index", err)
	}

	embedCfg := cfg.Embedding
	if embedCfg.Dimensions == 0 {
		embedCfg.Dimensions = cfg.VectorDimensions
	}
	backend, err := embedding.Open(embedCfg)
	if err != nil {
		db.Close()
		return nil, wrapErr(KindEmbeddingUnavailable, "failed to construct embedding backend", err)
	}

	logger.Info("phantomstate engine opened",
		zap.String("path", cfg.Path),
		zap.Int("dimensions", cfg.VectorDimensions),
		zap.String("embedding_kind", string(embedCfg.Kind)),
	)

	engine := &Engine{
		db:         db,
		embed:      embedding.Stable(backend, cfg.VectorDimensions),
		dimensions: cfg.VectorDimensions,
		chunker:    chunker,
		logger:     logger,
	}
	if err := engine.rebuildMentionsLocked(); err != nil {
		db.Close()
		return nil, err
	}
	return engine, nil
}

// pinVectorDimensions records want into engine_meta on first use, or
// confirms it matches the previously pinned value. A mismatch means the
// caller pointed a differently-configured engine at an existing database.
func pinVectorDimensions(db *sql.DB, want int) error {
	var stored string
	err := db.QueryRow(`SELECT value FROM engine_meta WHERE key = ?`, metaVectorDimensions).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err := db.Exec(`INSERT INTO engine_meta (key, value) VALUES (?, ?)`,
			metaVectorDimensions, fmt.Sprintf("%d", want))
		if err != nil {
			return wrapErr(KindStorageError, "failed to pin vector dimensions", err)
		}
		return nil
	case err != nil:
		return wrapErr(KindStorageError, "failed to read vector dimensions", err)
	}

	var got int
	if _, err := fmt.Sscanf(stored, "%d", &got); err != nil {
		return wrapErr(KindCorruptRecord, "engine_meta.vector_dimensions is not an integer", err)
	}
	if got != want {
		return newErr(KindDimensionMismatch, fmt.Sprintf(
			"database was created with %d-dimensional vectors, engine configured for %d", got, want))
	}
	return nil
}

// Close closes the underlying database handle. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// Dimensions returns the vector width this engine's database was pinned to.
func (e *Engine) Dimensions() int { return e.dimensions }
