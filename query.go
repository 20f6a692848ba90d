package phantomstate

import (
	"context"
	"database/sql"
	"fmt"
)

// StateQuery parameters gate query_state's view of the world for one
// character at one moment in one take. QueryText is optional; when empty,
// results are ordered chronologically rather than by similarity.
type StateQuery struct {
	CharacterID    string
	TakeID         int64
	MomentID       string
	QueryText      string
	FactLimit      int
	MemoryLimit    int
	CorpusLimit    int
	CorpusSource   string
	CorpusCategory string
	CorpusVersion  string
	IncludeCorpus  bool
}

// QueryState returns everything characterID is entitled to see at momentID
// in takeID: facts and memories gated by take ancestry, temporal cutoff and
// character ownership, plus ungated corpus chunks when requested. Facts are
// always ordered by (sequence ASC, id ASC). When QueryText is set, memories
// and corpus chunks are ranked by embedding similarity; otherwise memories
// are ordered by (sequence ASC, id ASC) and corpus chunks newest first.
func (e *Engine) QueryState(ctx context.Context, q StateQuery) (CharacterState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if q.FactLimit <= 0 {
		q.FactLimit = 50
	}
	if q.MemoryLimit <= 0 {
		q.MemoryLimit = 20
	}
	if q.CorpusLimit <= 0 {
		q.CorpusLimit = 20
	}

	character, err := e.getCharacterLocked(q.CharacterID)
	if err != nil {
		return CharacterState{}, err
	}
	cutoff, err := e.sequenceOf(q.MomentID)
	if err != nil {
		return CharacterState{}, err
	}
	chain, err := e.ancestryLocked(q.TakeID)
	if err != nil {
		return CharacterState{}, err
	}
	placeholders, chainArgs := ancestryPlaceholders(chain)

	var queryVec []float32
	if q.QueryText != "" {
		queryVec, err = e.embed.Embed(ctx, q.QueryText)
		if err != nil {
			return CharacterState{}, wrapErr(KindEmbeddingUnavailable, "failed to embed query text", err)
		}
	}

	facts, err := e.queryFactsLocked(q.CharacterID, cutoff, placeholders, chainArgs, queryVec, q.FactLimit)
	if err != nil {
		return CharacterState{}, err
	}
	memories, err := e.queryMemoriesLocked(q.CharacterID, cutoff, placeholders, chainArgs, queryVec, q.MemoryLimit)
	if err != nil {
		return CharacterState{}, err
	}

	state := CharacterState{
		CharacterID: q.CharacterID,
		Traits:      character.Traits,
		Voice:       character.Voice,
		Facts:       facts,
		Memories:    memories,
	}

	if q.IncludeCorpus {
		corpus, err := e.queryCorpusLocked(CorpusQuery{
			Source: q.CorpusSource, Category: q.CorpusCategory, Version: q.CorpusVersion,
			Limit: q.CorpusLimit,
		}, queryVec)
		if err != nil {
			return CharacterState{}, err
		}
		state.Corpus = corpus
	}

	return state, nil
}

// queryFactsLocked returns facts known to characterID, gated by moment
// cutoff and take ancestry via knowledge_events, ordered by moment sequence
// and then fact id; queryVec does not affect the order.
func (e *Engine) queryFactsLocked(characterID string, cutoff int64, chainIn string, chainArgs []any, queryVec []float32, limit int) ([]Fact, error) {
	// Facts carry no embedding of their own (they're gated truths, not
	// retrievable text) so they stay chronological regardless of QueryText;
	// only memories and corpus chunks are similarity-ranked.
	order := "m.sequence ASC, f.id ASC"

	args := []any{characterID, cutoff}
	args = append(args, chainArgs...)
	args = append(args, limit)

	rows, err := e.db.Query(fmt.Sprintf(`
		SELECT DISTINCT f.id, f.content, f.category, f.created_at
		FROM facts f
		JOIN knowledge_events k ON k.fact_id = f.id
		JOIN moments m ON m.id = k.moment_id
		WHERE k.character_id = ? AND m.sequence <= ? AND k.take_id IN (%s)
		ORDER BY %s
		LIMIT ?
	`, chainIn, order), args...)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to query facts", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var f Fact
		var origin sql.NullString
		if err := rows.Scan(&f.ID, &f.Content, &f.Category, &origin); err != nil {
			return nil, wrapErr(KindStorageError, "failed to scan fact", err)
		}
		f.OriginMomentID = origin.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// queryMemoriesLocked returns characterID's own experiential memories,
// gated by moment cutoff and take ancestry, ranked by similarity against the
// character's private vector table when queryVec is set.
func (e *Engine) queryMemoriesLocked(characterID string, cutoff int64, chainIn string, chainArgs []any, queryVec []float32, limit int) ([]Memory, error) {
	if queryVec != nil {
		return e.queryMemoriesBySimilarityLocked(characterID, cutoff, chainIn, chainArgs, queryVec, limit)
	}

	args := []any{characterID, cutoff}
	args = append(args, chainArgs...)
	args = append(args, limit)

	rows, err := e.db.Query(fmt.Sprintf(`
		SELECT mm.id, mm.character_id, mm.chunk, mm.moment_id, mm.take_id, mm.chunk_type, mm.tags
		FROM memory_metadata mm
		JOIN moments m ON m.id = mm.moment_id
		WHERE mm.character_id = ? AND m.sequence <= ? AND mm.take_id IN (%s)
		ORDER BY m.sequence ASC, mm.id ASC
		LIMIT ?
	`, chainIn), args...)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to query memories", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// queryMemoriesBySimilarityLocked ranks characterID's gated memory ids by
// vector distance, then fetches their rows in that order. sqlite-vec has no
// native join-with-filter, so the candidate set is gathered first and the
// similarity search is restricted to it via an IN clause.
func (e *Engine) queryMemoriesBySimilarityLocked(characterID string, cutoff int64, chainIn string, chainArgs []any, queryVec []float32, limit int) ([]Memory, error) {
	vecTable, err := e.characterVecTable(characterID)
	if err != nil {
		return nil, err
	}

	gatedArgs := []any{characterID, cutoff}
	gatedArgs = append(gatedArgs, chainArgs...)
	idRows, err := e.db.Query(fmt.Sprintf(`
		SELECT mm.id FROM memory_metadata mm
		JOIN moments m ON m.id = mm.moment_id
		WHERE mm.character_id = ? AND m.sequence <= ? AND mm.take_id IN (%s)
	`, chainIn), gatedArgs...)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to gather gated memory ids", err)
	}
	var gatedIDs []int64
	for idRows.Next() {
		var id int64
		if err := idRows.Scan(&id); err != nil {
			idRows.Close()
			return nil, wrapErr(KindStorageError, "failed to scan gated memory id", err)
		}
		gatedIDs = append(gatedIDs, id)
	}
	idRows.Close()
	if err := idRows.Err(); err != nil {
		return nil, wrapErr(KindStorageError, "failed to read gated memory ids", err)
	}
	if len(gatedIDs) == 0 {
		return nil, nil
	}

	idIn, idArgs := ancestryPlaceholders(gatedIDs)
	args := append([]any{vecAsBlob(queryVec)}, idArgs...)
	args = append(args, limit)

	rows, err := e.db.Query(fmt.Sprintf(`
		SELECT mm.id, mm.character_id, mm.chunk, mm.moment_id, mm.take_id, mm.chunk_type, mm.tags
		FROM %s v
		JOIN memory_metadata mm ON mm.id = v.rowid
		WHERE v.embedding MATCH ? AND v.rowid IN (%s)
		ORDER BY v.distance ASC
		LIMIT ?
	`, vecTable, idIn), args...)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to query memories by similarity", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var out []Memory
	for rows.Next() {
		var m Memory
		var tags sql.NullString
		if err := rows.Scan(&m.ID, &m.CharacterID, &m.Chunk, &m.MomentID, &m.TakeID, &m.ChunkType, &tags); err != nil {
			return nil, wrapErr(KindStorageError, "failed to scan memory", err)
		}
		m.Tags = unmarshalAttrs(tags.String)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CorpusQuery parameters for QueryCorpus. Corpus is shared reference text
// with no take/moment/character gating; it's filtered only by its own
// source/category/version tags.
type CorpusQuery struct {
	Source    string
	Category  string
	Version   string
	QueryText string
	Limit     int
}

// QueryCorpus returns ungated corpus chunks, ranked by similarity when
// QueryText is set or by recency otherwise.
func (e *Engine) QueryCorpus(ctx context.Context, q CorpusQuery) ([]CorpusChunk, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if q.Limit <= 0 {
		q.Limit = 20
	}

	var queryVec []float32
	if q.QueryText != "" {
		vec, err := e.embed.Embed(ctx, q.QueryText)
		if err != nil {
			return nil, wrapErr(KindEmbeddingUnavailable, "failed to embed corpus query text", err)
		}
		queryVec = vec
	}

	return e.queryCorpusLocked(q, queryVec)
}

func (e *Engine) queryCorpusLocked(q CorpusQuery, queryVec []float32) ([]CorpusChunk, error) {
	where := "1=1"
	var args []any
	if q.Source != "" {
		where += " AND source = ?"
		args = append(args, q.Source)
	}
	if q.Category != "" {
		where += " AND category = ?"
		args = append(args, q.Category)
	}
	if q.Version != "" {
		where += " AND version = ?"
		args = append(args, q.Version)
	}

	if queryVec == nil {
		args = append(args, q.Limit)
		rows, err := e.db.Query(fmt.Sprintf(`
			SELECT id, content, source, section, category, version, created_at, metadata
			FROM corpus WHERE %s ORDER BY created_at DESC, id DESC LIMIT ?
		`, where), args...)
		if err != nil {
			return nil, wrapErr(KindStorageError, "failed to query corpus", err)
		}
		defer rows.Close()
		return scanCorpus(rows)
	}

	idRows, err := e.db.Query(fmt.Sprintf(`SELECT id FROM corpus WHERE %s`, where), args...)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to gather candidate corpus ids", err)
	}
	var ids []int64
	for idRows.Next() {
		var id int64
		if err := idRows.Scan(&id); err != nil {
			idRows.Close()
			return nil, wrapErr(KindStorageError, "failed to scan candidate corpus id", err)
		}
		ids = append(ids, id)
	}
	idRows.Close()
	if err := idRows.Err(); err != nil {
		return nil, wrapErr(KindStorageError, "failed to read candidate corpus ids", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	idIn, idArgs := ancestryPlaceholders(ids)
	vecArgs := append([]any{vecAsBlob(queryVec)}, idArgs...)
	vecArgs = append(vecArgs, q.Limit)

	rows, err := e.db.Query(fmt.Sprintf(`
		SELECT c.id, c.content, c.source, c.section, c.category, c.version, c.created_at, c.metadata
		FROM %s v
		JOIN corpus c ON c.id = v.rowid
		WHERE v.embedding MATCH ? AND v.rowid IN (%s)
		ORDER BY v.distance ASC
		LIMIT ?
	`, corpusVecTable, idIn), vecArgs...)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to query corpus by similarity", err)
	}
	defer rows.Close()
	return scanCorpus(rows)
}

func scanCorpus(rows *sql.Rows) ([]CorpusChunk, error) {
	var out []CorpusChunk
	for rows.Next() {
		var c CorpusChunk
		var section, category, version, metadata sql.NullString
		if err := rows.Scan(&c.ID, &c.Content, &c.Source, &section, &category, &version, &c.CreatedAt, &metadata); err != nil {
			return nil, wrapErr(KindStorageError, "failed to scan corpus chunk", err)
		}
		c.Section = section.String
		c.Category = category.String
		c.Version = version.String
		c.Metadata = unmarshalAttrs(metadata.String)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (e *Engine) getCharacterLocked(characterID string) (Character, error) {
	var c Character
	var traitsJSON, voiceJSON sql.NullString
	err := e.db.QueryRow(`SELECT id, name, traits, voice FROM characters WHERE id = ?`, characterID).
		Scan(&c.ID, &c.Name, &traitsJSON, &voiceJSON)
	if err == sql.ErrNoRows {
		return Character{}, newErr(KindUnknownCharacter, fmt.Sprintf("character %q does not exist", characterID))
	}
	if err != nil {
		return Character{}, wrapErr(KindStorageError, "failed to read character", err)
	}
	c.Traits = unmarshalAttrs(traitsJSON.String)
	c.Voice = unmarshalAttrs(voiceJSON.String)
	return c, nil
}
