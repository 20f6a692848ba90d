package phantomstate

import (
	"context"
	"os"
	"time"

	"github.com/barnstorm/phantomstate/internal/chunk"
)

// LoadCorpusChunk embeds and stores a single shared, ungated reference
// chunk.
func (e *Engine) LoadCorpusChunk(ctx context.Context, content, source, section, category, version string, metadata Attrs) (CorpusChunk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if content == "" || source == "" {
		return CorpusChunk{}, newErr(KindInvalidEnum, "corpus chunk content and source are required")
	}

	vec, err := e.embed.Embed(ctx, content)
	if err != nil {
		return CorpusChunk{}, wrapErr(KindEmbeddingUnavailable, "failed to embed corpus chunk", err)
	}

	metadata = e.withMentionTags(content, metadata)

	return e.insertCorpusChunkLocked(content, vec, source, section, category, version, metadata)
}

func (e *Engine) insertCorpusChunkLocked(content string, vec []float32, source, section, category, version string, metadata Attrs) (CorpusChunk, error) {
	metaJSON, err := marshalAttrs(metadata)
	if err != nil {
		return CorpusChunk{}, wrapErr(KindStorageError, "failed to marshal corpus metadata", err)
	}

	now := time.Now().Unix()
	res, err := e.db.Exec(`
		INSERT INTO corpus (content, source, section, category, version, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, content, source, section, category, version, now, metaJSON)
	if err != nil {
		return CorpusChunk{}, wrapErr(KindStorageError, "failed to store corpus chunk", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return CorpusChunk{}, wrapErr(KindStorageError, "failed to read new corpus chunk id", err)
	}

	if _, err := e.db.Exec(
		`INSERT INTO `+corpusVecTable+` (rowid, embedding) VALUES (?, ?)`,
		id, vecAsBlob(vec),
	); err != nil {
		return CorpusChunk{}, wrapErr(KindStorageError, "failed to index corpus vector", err)
	}

	return CorpusChunk{
		ID: id, Content: content, Embedding: vec, Source: source, Section: section,
		Category: category, Version: version, CreatedAt: now, Metadata: metadata,
	}, nil
}

// LoadDocument reads a file, splits it with the requested chunker (falling
// back to the engine's DefaultChunker when g is empty), embeds each piece
// and loads it into the corpus under a shared source/category/version tag.
func (e *Engine) LoadDocument(ctx context.Context, path string, g Chunker, source, category, version string) ([]CorpusChunk, error) {
	if g == "" {
		g = e.chunker
	} else if !validChunker(g) {
		return nil, newErr(KindInvalidEnum, "invalid chunker")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to read document", err)
	}

	pieces := chunk.Split(string(raw), chunk.Granularity(g))
	if len(pieces) == 0 {
		return nil, nil
	}

	out := make([]CorpusChunk, 0, len(pieces))
	for i, piece := range pieces {
		c, err := e.LoadCorpusChunk(ctx, piece, source, path, category, version, Attrs{"part": i})
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

// DeleteCorpusVersion removes every corpus chunk tagged with version,
// including their vector-index rows.
func (e *Engine) DeleteCorpusVersion(version string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.db.Query(`SELECT id FROM corpus WHERE version = ?`, version)
	if err != nil {
		return 0, wrapErr(KindStorageError, "failed to find corpus chunks for version", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, wrapErr(KindStorageError, "failed to scan corpus id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, wrapErr(KindStorageError, "failed to read corpus ids", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	idIn, idArgs := ancestryPlaceholders(ids)
	if _, err := e.db.Exec(`DELETE FROM `+corpusVecTable+` WHERE rowid IN (`+idIn+`)`, idArgs...); err != nil {
		return 0, wrapErr(KindStorageError, "failed to delete corpus vectors", err)
	}
	res, err := e.db.Exec(`DELETE FROM corpus WHERE version = ?`, version)
	if err != nil {
		return 0, wrapErr(KindStorageError, "failed to delete corpus chunks", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr(KindStorageError, "failed to read deleted row count", err)
	}
	return int(n), nil
}
