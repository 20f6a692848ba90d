package phantomstate

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialogue logs one spoken line as a single atomic fan-out: a "said" memory
// for the speaker and a "heard" memory for each distinct listener, all
// embedded from the same text and gated to the same moment/take. A failure
// partway through (an embed error, a write error) leaves no memory rows
// behind -- the whole fan-out happens inside one transaction, mirroring how
// the teacher's dialogue-adjacent writes (thread message + memory
// extraction) are kept as a pair of related inserts, generalized here to a
// true transaction since dialogue's invariant is all-or-nothing rather than
// best-effort.
func (e *Engine) Dialogue(ctx context.Context, speakerID string, listenerIDs []string, line, momentID string, takeID int64) (DialogueResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if line == "" {
		return DialogueResult{}, newErr(KindInvalidEnum, "dialogue line must not be empty")
	}
	speakerVecTable, err := e.characterVecTable(speakerID)
	if err != nil {
		return DialogueResult{}, err
	}
	if _, err := e.sequenceOf(momentID); err != nil {
		return DialogueResult{}, err
	}
	if _, err := e.ancestryLocked(takeID); err != nil {
		return DialogueResult{}, err
	}

	// De-duplicate listeners, preserving first occurrence, and resolve each
	// one's vector table before any write happens.
	seen := make(map[string]bool, len(listenerIDs))
	listenerVecTables := make(map[string]string, len(listenerIDs))
	var uniqueListeners []string
	for _, id := range listenerIDs {
		if id == "" || id == speakerID || seen[id] {
			continue
		}
		seen[id] = true
		vecTable, err := e.characterVecTable(id)
		if err != nil {
			return DialogueResult{}, err
		}
		listenerVecTables[id] = vecTable
		uniqueListeners = append(uniqueListeners, id)
	}

	vec, err := e.embed.Embed(ctx, line)
	if err != nil {
		return DialogueResult{}, wrapErr(KindEmbeddingUnavailable, "failed to embed dialogue line", err)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return DialogueResult{}, wrapErr(KindStorageError, "failed to begin dialogue transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	lineTags := e.withMentionTags(line, nil)

	speakerMemID, err := insertMemoryTx(tx, speakerVecTable, speakerID, line, vec, momentID, takeID, ChunkSaid, lineTags)
	if err != nil {
		return DialogueResult{}, err
	}

	listenerMemIDs := make([]int64, 0, len(uniqueListeners))
	for _, id := range uniqueListeners {
		memID, err := insertMemoryTx(tx, listenerVecTables[id], id, line, vec, momentID, takeID, ChunkHeard, lineTags)
		if err != nil {
			return DialogueResult{}, err
		}
		listenerMemIDs = append(listenerMemIDs, memID)
	}

	if err := tx.Commit(); err != nil {
		return DialogueResult{}, wrapErr(KindStorageError, "failed to commit dialogue transaction", err)
	}
	committed = true

	return DialogueResult{SpeakerMemoryID: speakerMemID, ListenerMemoryIDs: listenerMemIDs}, nil
}

// insertMemoryTx is insertMemoryLocked's transaction-scoped counterpart, used
// so Dialogue's speaker and listener inserts share one atomic unit of work.
func insertMemoryTx(tx *sql.Tx, vecTable, characterID, chunk string, vec []float32, momentID string, takeID int64, chunkType ChunkType, tags Attrs) (int64, error) {
	tagsJSON, err := marshalAttrs(tags)
	if err != nil {
		return 0, wrapErr(KindStorageError, "failed to marshal memory tags", err)
	}

	res, err := tx.Exec(`
		INSERT INTO memory_metadata (character_id, chunk, moment_id, take_id, chunk_type, tags)
		VALUES (?, ?, ?, ?, ?, ?)
	`, characterID, chunk, momentID, takeID, chunkType, tagsJSON)
	if err != nil {
		return 0, wrapErr(KindStorageError, "failed to store memory", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapErr(KindStorageError, "failed to read new memory id", err)
	}

	if _, err := tx.Exec(fmt.Sprintf(
		`INSERT INTO %s (rowid, embedding) VALUES (?, ?)`, vecTable,
	), id, vecAsBlob(vec)); err != nil {
		return 0, wrapErr(KindStorageError, "failed to index memory vector", err)
	}

	return id, nil
}
