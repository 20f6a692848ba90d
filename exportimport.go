package phantomstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// takeExport is the portable JSON shape Export/Import move a take's state
// through, grounded on the teacher's SQLiteStore.Export/Import: a single
// JSON document covering every row scoped to one take, independent of
// sqlite3's own serialization format.
type takeExport struct {
	Take            Take             `json:"take"`
	KnowledgeEvents []KnowledgeEvent `json:"knowledgeEvents"`
	Memories        []memoryExport   `json:"memories"`
}

type memoryExport struct {
	Memory
	EmbeddingB64 []float32 `json:"embedding"`
}

// Export serializes one take's knowledge events and memories (including
// their embeddings) to JSON, for moving a branch's state between engines or
// snapshotting it outside the database file. Facts themselves are not
// exported: knowledge events carry only the fact id they refer to.
func (e *Engine) Export(takeID int64) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var take Take
	var parent sql.NullInt64
	var branchPoint, notes sql.NullString
	err := e.db.QueryRow(`SELECT id, parent_take_id, branch_point, created_at, status, notes FROM takes WHERE id = ?`, takeID).
		Scan(&take.ID, &parent, &branchPoint, &take.CreatedAt, &take.Status, &notes)
	if err == sql.ErrNoRows {
		return nil, newErr(KindUnknownTake, fmt.Sprintf("take %d does not exist", takeID))
	}
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to read take for export", err)
	}
	if parent.Valid {
		take.ParentID = &parent.Int64
	}
	take.BranchPointID = branchPoint.String
	take.Notes = notes.String

	keRows, err := e.db.Query(`SELECT id, character_id, fact_id, moment_id, take_id, source FROM knowledge_events WHERE take_id = ?`, takeID)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to export knowledge events", err)
	}
	defer keRows.Close()
	var events []KnowledgeEvent
	for keRows.Next() {
		var k KnowledgeEvent
		if err := keRows.Scan(&k.ID, &k.CharacterID, &k.FactID, &k.MomentID, &k.TakeID, &k.Source); err != nil {
			return nil, wrapErr(KindStorageError, "failed to scan knowledge event for export", err)
		}
		events = append(events, k)
	}
	if err := keRows.Err(); err != nil {
		return nil, wrapErr(KindStorageError, "failed to read knowledge events for export", err)
	}

	memRows, err := e.db.Query(`SELECT id, character_id, chunk, moment_id, take_id, chunk_type, tags FROM memory_metadata WHERE take_id = ?`, takeID)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to export memories", err)
	}
	defer memRows.Close()
	var memories []memoryExport
	for memRows.Next() {
		var m Memory
		var tags sql.NullString
		if err := memRows.Scan(&m.ID, &m.CharacterID, &m.Chunk, &m.MomentID, &m.TakeID, &m.ChunkType, &tags); err != nil {
			return nil, wrapErr(KindStorageError, "failed to scan memory for export", err)
		}
		m.Tags = unmarshalAttrs(tags.String)

		vecTable, err := e.characterVecTable(m.CharacterID)
		if err != nil {
			return nil, err
		}
		var blob []byte
		if err := e.db.QueryRow(`SELECT embedding FROM `+vecTable+` WHERE rowid = ?`, m.ID).Scan(&blob); err != nil && err != sql.ErrNoRows {
			return nil, wrapErr(KindStorageError, "failed to read memory vector for export", err)
		}
		memories = append(memories, memoryExport{Memory: m, EmbeddingB64: vecFromBlob(blob)})
	}
	if err := memRows.Err(); err != nil {
		return nil, wrapErr(KindStorageError, "failed to read memories for export", err)
	}

	return json.Marshal(takeExport{Take: take, KnowledgeEvents: events, Memories: memories})
}

// Import restores a previously Exported take's knowledge events and
// memories into the database, re-embedding nothing (the exported vectors
// are reinserted directly). The take itself must already exist; Import only
// replays the events and memories scoped to it.
func (e *Engine) Import(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var doc takeExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return wrapErr(KindCorruptRecord, "failed to parse take export", err)
	}

	var exists int
	err := e.db.QueryRow(`SELECT 1 FROM takes WHERE id = ?`, doc.Take.ID).Scan(&exists)
	if err == sql.ErrNoRows {
		return newErr(KindUnknownTake, fmt.Sprintf("take %d does not exist; create it before importing", doc.Take.ID))
	}
	if err != nil {
		return wrapErr(KindStorageError, "failed to verify take before import", err)
	}

	for _, k := range doc.KnowledgeEvents {
		if _, err := e.db.Exec(`
			INSERT INTO knowledge_events (character_id, fact_id, moment_id, take_id, source)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(character_id, fact_id, take_id) DO NOTHING
		`, k.CharacterID, k.FactID, k.MomentID, k.TakeID, k.Source); err != nil {
			return wrapErr(KindStorageError, fmt.Sprintf("failed to import knowledge event for character %q", k.CharacterID), err)
		}
	}

	for _, m := range doc.Memories {
		vecTable, err := e.characterVecTable(m.CharacterID)
		if err != nil {
			return err
		}
		tagsJSON, err := marshalAttrs(m.Tags)
		if err != nil {
			return wrapErr(KindStorageError, "failed to marshal imported memory tags", err)
		}
		res, err := e.db.Exec(`
			INSERT INTO memory_metadata (character_id, chunk, moment_id, take_id, chunk_type, tags)
			VALUES (?, ?, ?, ?, ?, ?)
		`, m.CharacterID, m.Chunk, m.MomentID, m.TakeID, m.ChunkType, tagsJSON)
		if err != nil {
			return wrapErr(KindStorageError, fmt.Sprintf("failed to import memory for character %q", m.CharacterID), err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return wrapErr(KindStorageError, "failed to read imported memory id", err)
		}
		if _, err := e.db.Exec(`INSERT INTO `+vecTable+` (rowid, embedding) VALUES (?, ?)`,
			id, vecAsBlob(m.EmbeddingB64)); err != nil {
			return wrapErr(KindStorageError, "failed to index imported memory vector", err)
		}
	}

	return nil
}
