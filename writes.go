package phantomstate

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/barnstorm/phantomstate/internal/textutil"
)

// generateVecTableName creates a random hex suffix for a character's
// surrogate vector table, the same crypto/rand+hex idiom the teacher uses
// for memory ids.
func generateVecTableName() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "char_vec_" + hex.EncodeToString(b)
}

func marshalAttrs(a Attrs) (string, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalAttrs(s string) Attrs {
	if s == "" {
		return nil
	}
	var a Attrs
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return nil
	}
	return a
}

// CreateMoment registers a new sequenced temporal marker. Sequence must be
// unique; callers that retry an identical create (matching id, sequence,
// label and metadata) should treat the resulting DuplicateId error as
// success -- the engine does not special-case that here since equality
// comparison belongs to the caller's retry policy, not the write path.
func (e *Engine) CreateMoment(m Moment) (Moment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m.ID == "" {
		return Moment{}, newErr(KindInvalidEnum, "moment id is required")
	}

	var exists int
	err := e.db.QueryRow(`SELECT 1 FROM moments WHERE id = ?`, m.ID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return Moment{}, wrapErr(KindStorageError, "failed to check for existing moment id", err)
	}
	if err == nil {
		return Moment{}, newErr(KindDuplicateId, fmt.Sprintf("moment id %q already exists", m.ID))
	}

	metaJSON, err := marshalAttrs(m.Metadata)
	if err != nil {
		return Moment{}, wrapErr(KindStorageError, "failed to marshal moment metadata", err)
	}

	_, err = e.db.Exec(`INSERT INTO moments (id, sequence, label, metadata) VALUES (?, ?, ?, ?)`,
		m.ID, m.Sequence, m.Label, metaJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return Moment{}, wrapErr(KindDuplicateSequence, fmt.Sprintf("moment sequence %d already exists", m.Sequence), err)
		}
		return Moment{}, wrapErr(KindStorageError, "failed to create moment", err)
	}
	return m, nil
}

// sequenceOf resolves a moment id to its gating sequence number.
func (e *Engine) sequenceOf(momentID string) (int64, error) {
	var seq int64
	err := e.db.QueryRow(`SELECT sequence FROM moments WHERE id = ?`, momentID).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, newErr(KindUnknownMoment, fmt.Sprintf("moment %q does not exist", momentID))
	}
	if err != nil {
		return 0, wrapErr(KindStorageError, "failed to resolve moment sequence", err)
	}
	return seq, nil
}

// CreateTake opens a new branch, optionally rooted at parentID at
// branchPointMomentID. A nil parentID creates a new root take (the trunk, by
// convention the first take ever created).
func (e *Engine) CreateTake(parentID *int64, branchPointMomentID string, status TakeStatus, notes string) (Take, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if status == "" {
		status = TakeActive
	}
	if !validTakeStatus(status) {
		return Take{}, newErr(KindInvalidEnum, fmt.Sprintf("invalid take status %q", status))
	}
	if parentID != nil {
		if _, err := e.ancestryLocked(*parentID); err != nil {
			return Take{}, err
		}
	}
	if branchPointMomentID != "" {
		if _, err := e.sequenceOf(branchPointMomentID); err != nil {
			return Take{}, err
		}
	}

	now := time.Now().Unix()
	res, err := e.db.Exec(
		`INSERT INTO takes (parent_take_id, branch_point, created_at, status, notes) VALUES (?, ?, ?, ?, ?)`,
		parentID, branchPointMomentID, now, status, notes)
	if err != nil {
		return Take{}, wrapErr(KindStorageError, "failed to create take", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Take{}, wrapErr(KindStorageError, "failed to read new take id", err)
	}

	return Take{
		ID:            id,
		ParentID:      parentID,
		BranchPointID: branchPointMomentID,
		CreatedAt:     now,
		Status:        status,
		Notes:         notes,
	}, nil
}

// Branch is a convenience wrapper over CreateTake for the common case of
// branching an existing take at a moment, carrying no notes.
func (e *Engine) Branch(parentID int64, branchPointMomentID string) (Take, error) {
	return e.CreateTake(&parentID, branchPointMomentID, TakeActive, "")
}

// SetTakeStatus updates a take's lifecycle status (active/archived/trunk).
func (e *Engine) SetTakeStatus(takeID int64, status TakeStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !validTakeStatus(status) {
		return newErr(KindInvalidEnum, fmt.Sprintf("invalid take status %q", status))
	}
	res, err := e.db.Exec(`UPDATE takes SET status = ? WHERE id = ?`, status, takeID)
	if err != nil {
		return wrapErr(KindStorageError, "failed to update take status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return newErr(KindUnknownTake, fmt.Sprintf("take %d does not exist", takeID))
	}
	return nil
}

// ListTakes returns every take, most recently created first.
func (e *Engine) ListTakes() ([]Take, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rows, err := e.db.Query(`SELECT id, parent_take_id, branch_point, created_at, status, notes FROM takes ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, wrapErr(KindStorageError, "failed to list takes", err)
	}
	defer rows.Close()

	var out []Take
	for rows.Next() {
		var t Take
		var parent sql.NullInt64
		var branchPoint, notes sql.NullString
		if err := rows.Scan(&t.ID, &parent, &branchPoint, &t.CreatedAt, &t.Status, &notes); err != nil {
			return nil, wrapErr(KindStorageError, "failed to scan take", err)
		}
		if parent.Valid {
			t.ParentID = &parent.Int64
		}
		t.BranchPointID = branchPoint.String
		t.Notes = notes.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// RegisterCharacter creates or updates a character and provisions its
// private vector table. Re-registering an existing id updates name, traits
// and voice in place and leaves its vector table and memories untouched --
// an Open Question the spec leaves undecided that we resolve this way
// because a character's identity, not its profile snapshot, is what the rest
// of the schema keys off of.
func (e *Engine) RegisterCharacter(c Character) (Character, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c.ID == "" || c.Name == "" {
		return Character{}, newErr(KindInvalidEnum, "character id and name are required")
	}

	traitsJSON, err := marshalAttrs(c.Traits)
	if err != nil {
		return Character{}, wrapErr(KindStorageError, "failed to marshal character traits", err)
	}
	voiceJSON, err := marshalAttrs(c.Voice)
	if err != nil {
		return Character{}, wrapErr(KindStorageError, "failed to marshal character voice", err)
	}

	_, err = e.db.Exec(`
		INSERT INTO characters (id, name, traits, voice) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, traits = excluded.traits, voice = excluded.voice
	`, c.ID, c.Name, traitsJSON, voiceJSON)
	if err != nil {
		return Character{}, wrapErr(KindStorageError, "failed to register character", err)
	}

	if err := e.ensureCharacterVecTable(c.ID); err != nil {
		return Character{}, err
	}
	if err := e.rebuildMentionsLocked(); err != nil {
		return Character{}, err
	}

	return c, nil
}

// rebuildMentionsLocked rebuilds the character-mention scanner from every
// registered character's name and any "aliases" listed in its traits, so
// load_document and EmbedMemory can auto-tag which characters a chunk
// mentions. Caller must hold e.mu for writing, or call this only from Open
// (before the engine is shared).
func (e *Engine) rebuildMentionsLocked() error {
	rows, err := e.db.Query(`SELECT id, name, traits FROM characters`)
	if err != nil {
		return wrapErr(KindStorageError, "failed to load characters for mention index", err)
	}
	defer rows.Close()

	names := make(map[string][]string)
	for rows.Next() {
		var id, name string
		var traitsJSON sql.NullString
		if err := rows.Scan(&id, &name, &traitsJSON); err != nil {
			return wrapErr(KindStorageError, "failed to scan character for mention index", err)
		}
		surfaces := []string{name}
		traits := unmarshalAttrs(traitsJSON.String)
		if raw, ok := traits["aliases"].([]any); ok {
			for _, a := range raw {
				if s, ok := a.(string); ok {
					surfaces = append(surfaces, s)
				}
			}
		}
		names[id] = surfaces
	}
	if err := rows.Err(); err != nil {
		return wrapErr(KindStorageError, "failed to read characters for mention index", err)
	}

	idx, err := textutil.NewMentionIndex(names)
	if err != nil {
		return wrapErr(KindStorageError, "failed to build mention index", err)
	}
	e.mentions = idx
	return nil
}

// withMentionTags merges any characters the mention scanner detects in text,
// plus its stopword-filtered keywords, into tags under the "mentions" and
// "keywords" keys, alongside whatever the caller supplied. Caller-supplied
// keys always win.
func (e *Engine) withMentionTags(text string, tags Attrs) Attrs {
	mentioned := e.mentions.Scan(text)
	keywords := textutil.Keywords(text)
	if len(mentioned) == 0 && len(keywords) == 0 {
		return tags
	}
	if tags == nil {
		tags = Attrs{}
	}
	if _, ok := tags["mentions"]; !ok && len(mentioned) > 0 {
		ids := make([]any, len(mentioned))
		for i, id := range mentioned {
			ids[i] = id
		}
		tags["mentions"] = ids
	}
	if _, ok := tags["keywords"]; !ok && len(keywords) > 0 {
		words := make([]any, len(keywords))
		for i, w := range keywords {
			words[i] = w
		}
		tags["keywords"] = words
	}
	return tags
}

// ensureCharacterVecTable provisions the surrogate vector table for a
// character if one doesn't already exist, recording the mapping in
// character_vec_tables (spec §9: character ids are caller-controlled and
// may not be valid SQL identifiers).
func (e *Engine) ensureCharacterVecTable(characterID string) error {
	var tableName string
	err := e.db.QueryRow(`SELECT table_name FROM character_vec_tables WHERE character_id = ?`, characterID).Scan(&tableName)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return wrapErr(KindStorageError, "failed to look up character vector table", err)
	}

	tableName = generateVecTableName()
	if _, err := e.db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d])`, tableName, e.dimensions,
	)); err != nil {
		return wrapErr(KindStorageError, "failed to create character vector table", err)
	}
	if _, err := e.db.Exec(`INSERT INTO character_vec_tables (character_id, table_name) VALUES (?, ?)`,
		characterID, tableName); err != nil {
		return wrapErr(KindStorageError, "failed to record character vector table", err)
	}
	return nil
}

func (e *Engine) characterVecTable(characterID string) (string, error) {
	var tableName string
	err := e.db.QueryRow(`SELECT table_name FROM character_vec_tables WHERE character_id = ?`, characterID).Scan(&tableName)
	if err == sql.ErrNoRows {
		return "", newErr(KindUnknownCharacter, fmt.Sprintf("character %q does not exist", characterID))
	}
	if err != nil {
		return "", wrapErr(KindStorageError, "failed to resolve character vector table", err)
	}
	return tableName, nil
}

// GetCharacter retrieves a character's profile by id.
func (e *Engine) GetCharacter(characterID string) (Character, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

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

// LogFact records a world truth, independent of any observer.
func (e *Engine) LogFact(content, category, originMomentID string) (Fact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if content == "" {
		return Fact{}, newErr(KindInvalidEnum, "fact content is required")
	}
	if originMomentID != "" {
		if _, err := e.sequenceOf(originMomentID); err != nil {
			return Fact{}, err
		}
	}

	res, err := e.db.Exec(`INSERT INTO facts (content, category, created_at) VALUES (?, ?, ?)`,
		content, category, originMomentID)
	if err != nil {
		return Fact{}, wrapErr(KindStorageError, "failed to log fact", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Fact{}, wrapErr(KindStorageError, "failed to read new fact id", err)
	}
	return Fact{ID: id, Content: content, Category: category, OriginMomentID: originMomentID}, nil
}

// LogKnowledge records that a character came to know a fact at a moment in
// a take. Re-logging the same (character, fact, take) triple is idempotent:
// it returns the existing event rather than erroring, since a caller
// replaying a scene after a retry should not need to special-case "already
// knows this" (spec §8 concrete scenario, and an Open Question resolved in
// favor of idempotent success over a DuplicateId error).
func (e *Engine) LogKnowledge(characterID string, factID int64, momentID string, takeID int64, source KnowledgeSource) (KnowledgeEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.characterVecTable(characterID); err != nil {
		return KnowledgeEvent{}, err
	}
	if _, err := e.sequenceOf(momentID); err != nil {
		return KnowledgeEvent{}, err
	}
	if _, err := e.ancestryLocked(takeID); err != nil {
		return KnowledgeEvent{}, err
	}
	if source != "" {
		switch source {
		case SourceWitnessed, SourceTold, SourceInferred, SourceDiscovered:
		default:
			return KnowledgeEvent{}, newErr(KindInvalidEnum, fmt.Sprintf("invalid knowledge source %q", source))
		}
	}

	var existing KnowledgeEvent
	err := e.db.QueryRow(`
		SELECT id, character_id, fact_id, moment_id, take_id, source FROM knowledge_events
		WHERE character_id = ? AND fact_id = ? AND take_id = ?
	`, characterID, factID, takeID).Scan(&existing.ID, &existing.CharacterID, &existing.FactID,
		&existing.MomentID, &existing.TakeID, &existing.Source)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return KnowledgeEvent{}, wrapErr(KindStorageError, "failed to check existing knowledge event", err)
	}

	res, err := e.db.Exec(`
		INSERT INTO knowledge_events (character_id, fact_id, moment_id, take_id, source)
		VALUES (?, ?, ?, ?, ?)
	`, characterID, factID, momentID, takeID, source)
	if err != nil {
		return KnowledgeEvent{}, wrapErr(KindStorageError, "failed to log knowledge event", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return KnowledgeEvent{}, wrapErr(KindStorageError, "failed to read new knowledge event id", err)
	}
	return KnowledgeEvent{ID: id, CharacterID: characterID, FactID: factID, MomentID: momentID, TakeID: takeID, Source: source}, nil
}

// EmbedMemory embeds chunk and stores it as a private experiential memory
// for characterID, gated to momentID/takeID.
func (e *Engine) EmbedMemory(ctx context.Context, characterID, chunk, momentID string, takeID int64, chunkType ChunkType, tags Attrs) (Memory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !validChunkType(chunkType) {
		return Memory{}, newErr(KindInvalidEnum, fmt.Sprintf("invalid chunk type %q", chunkType))
	}
	vecTable, err := e.characterVecTable(characterID)
	if err != nil {
		return Memory{}, err
	}
	if _, err := e.sequenceOf(momentID); err != nil {
		return Memory{}, err
	}
	if _, err := e.ancestryLocked(takeID); err != nil {
		return Memory{}, err
	}

	vec, err := e.embed.Embed(ctx, chunk)
	if err != nil {
		return Memory{}, wrapErr(KindEmbeddingUnavailable, "failed to embed memory chunk", err)
	}

	tags = e.withMentionTags(chunk, tags)

	return e.insertMemoryLocked(vecTable, characterID, chunk, vec, momentID, takeID, chunkType, tags)
}

// insertMemoryLocked inserts a pre-embedded chunk into memory_metadata and
// its character's vector table under the same rowid, so the two tables join
// on id without a separate foreign key. Caller must hold e.mu.
func (e *Engine) insertMemoryLocked(vecTable, characterID, chunk string, vec []float32, momentID string, takeID int64, chunkType ChunkType, tags Attrs) (Memory, error) {
	tagsJSON, err := marshalAttrs(tags)
	if err != nil {
		return Memory{}, wrapErr(KindStorageError, "failed to marshal memory tags", err)
	}

	res, err := e.db.Exec(`
		INSERT INTO memory_metadata (character_id, chunk, moment_id, take_id, chunk_type, tags)
		VALUES (?, ?, ?, ?, ?, ?)
	`, characterID, chunk, momentID, takeID, chunkType, tagsJSON)
	if err != nil {
		return Memory{}, wrapErr(KindStorageError, "failed to store memory", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Memory{}, wrapErr(KindStorageError, "failed to read new memory id", err)
	}

	if _, err := e.db.Exec(fmt.Sprintf(
		`INSERT INTO %s (rowid, embedding) VALUES (?, ?)`, vecTable,
	), id, vecAsBlob(vec)); err != nil {
		return Memory{}, wrapErr(KindStorageError, "failed to index memory vector", err)
	}

	return Memory{
		ID: id, CharacterID: characterID, Chunk: chunk, Embedding: vec,
		MomentID: momentID, TakeID: takeID, ChunkType: chunkType, Tags: tags,
	}, nil
}

// Count reports row counts for the supplemented Count* aggregate helpers,
// grounded on the teacher's CountNotes/CountEntities/CountEdges.
func (e *Engine) CountMoments() (int, error)         { return e.countTable("moments") }
func (e *Engine) CountTakes() (int, error)           { return e.countTable("takes") }
func (e *Engine) CountCharacters() (int, error)      { return e.countTable("characters") }
func (e *Engine) CountFacts() (int, error)           { return e.countTable("facts") }
func (e *Engine) CountKnowledgeEvents() (int, error) { return e.countTable("knowledge_events") }
func (e *Engine) CountMemories() (int, error)        { return e.countTable("memory_metadata") }
func (e *Engine) CountCorpus() (int, error)          { return e.countTable("corpus") }

func (e *Engine) countTable(table string) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var n int
	if err := e.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return 0, wrapErr(KindStorageError, "failed to count "+table, err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// ncruces/go-sqlite3 wraps SQLITE_CONSTRAINT errors with this text;
	// matching on it avoids importing the driver's error-code type here.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "constraint failed: unique")
}
