// Package phantomstate is a narrative state engine: it stores characters,
// moments, takes (branches), facts, knowledge events and experiential
// memories, and gates every read of that state by take ancestry, temporal
// cutoff and character ownership so that a caller (typically an LLM playing
// a character) can only retrieve what that character is entitled to know at
// a given point in the story.
package phantomstate

// TakeStatus is the lifecycle state of a Take.
type TakeStatus string

const (
	TakeActive   TakeStatus = "active"
	TakeArchived TakeStatus = "archived"
	TakeTrunk    TakeStatus = "trunk"
)

func validTakeStatus(s TakeStatus) bool {
	switch s {
	case TakeActive, TakeArchived, TakeTrunk:
		return true
	}
	return false
}

// KnowledgeSource records how a character came to know a fact.
type KnowledgeSource string

const (
	SourceWitnessed KnowledgeSource = "witnessed"
	SourceTold      KnowledgeSource = "told"
	SourceInferred  KnowledgeSource = "inferred"
	SourceDiscovered KnowledgeSource = "discovered"
)

// ChunkType is the role of an experiential memory.
type ChunkType string

const (
	ChunkSaid      ChunkType = "said"
	ChunkHeard     ChunkType = "heard"
	ChunkInternal  ChunkType = "internal"
	ChunkPerceived ChunkType = "perceived"
	ChunkAction    ChunkType = "action"
)

func validChunkType(c ChunkType) bool {
	switch c {
	case ChunkSaid, ChunkHeard, ChunkInternal, ChunkPerceived, ChunkAction:
		return true
	}
	return false
}

// Chunker selects how load_document splits source text into chunks.
type Chunker string

const (
	ChunkBySentence  Chunker = "sentence"
	ChunkByParagraph Chunker = "paragraph"
	ChunkByPage      Chunker = "page"
	ChunkManual      Chunker = "manual"
)

func validChunker(c Chunker) bool {
	switch c {
	case ChunkBySentence, ChunkByParagraph, ChunkByPage, ChunkManual:
		return true
	}
	return false
}

// Attrs is a free-form JSON attribute bag (traits, voice, metadata, tags).
// It round-trips through encoding/json as a plain map, matching how GoKitt's
// Entity.Aliases and similar fields store caller-defined shapes without a
// fixed schema.
type Attrs map[string]any

// Moment is a sequenced temporal marker. Sequence is the sole gating
// ordinal; wall-clock time plays no role in visibility.
type Moment struct {
	ID       string `json:"id"`
	Sequence int64  `json:"sequence"`
	Label    string `json:"label,omitempty"`
	Metadata Attrs  `json:"metadata,omitempty"`
}

// Take is a branch of narrative state. A Take with no ParentID is a root.
type Take struct {
	ID            int64      `json:"id"`
	ParentID      *int64     `json:"parentId,omitempty"`
	BranchPointID string     `json:"branchPointId,omitempty"`
	CreatedAt     int64      `json:"createdAt"`
	Status        TakeStatus `json:"status"`
	Notes         string     `json:"notes,omitempty"`
}

// Character is a persistent agent with a private experiential-memory store.
type Character struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Traits Attrs  `json:"traits,omitempty"`
	Voice  Attrs  `json:"voice,omitempty"`
}

// Fact is a world truth independent of any observer.
type Fact struct {
	ID              int64  `json:"id"`
	Content         string `json:"content"`
	Category        string `json:"category"`
	OriginMomentID  string `json:"originMomentId,omitempty"`
}

// KnowledgeEvent records that a character came to know a fact in a specific
// take at a specific moment.
type KnowledgeEvent struct {
	ID          int64           `json:"id"`
	CharacterID string          `json:"characterId"`
	FactID      int64           `json:"factId"`
	MomentID    string          `json:"momentId"`
	TakeID      int64           `json:"takeId"`
	Source      KnowledgeSource `json:"source,omitempty"`
}

// Memory is a retrievable chunk private to one character.
type Memory struct {
	ID          int64     `json:"id"`
	CharacterID string    `json:"characterId"`
	Chunk       string    `json:"chunk"`
	Embedding   []float32 `json:"-"`
	MomentID    string    `json:"momentId"`
	TakeID      int64     `json:"takeId"`
	ChunkType   ChunkType `json:"chunkType"`
	Tags        Attrs     `json:"tags,omitempty"`
}

// CorpusChunk is shared, ungated reference text.
type CorpusChunk struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	Source    string    `json:"source"`
	Section   string    `json:"section,omitempty"`
	Category  string    `json:"category,omitempty"`
	Version   string    `json:"version,omitempty"`
	CreatedAt int64     `json:"createdAt"`
	Metadata  Attrs     `json:"metadata,omitempty"`
}

// CharacterState is the unified result of query_state: everything character
// C is entitled to see at moment M in take T.
type CharacterState struct {
	CharacterID string        `json:"characterId"`
	Traits      Attrs         `json:"traits,omitempty"`
	Voice       Attrs         `json:"voice,omitempty"`
	Facts       []Fact        `json:"facts"`
	Memories    []Memory      `json:"memories"`
	Corpus      []CorpusChunk `json:"corpus,omitempty"`
}

// DialogueResult is the atomic fan-out result of dialogue().
type DialogueResult struct {
	SpeakerMemoryID   int64   `json:"speakerMemoryId"`
	ListenerMemoryIDs []int64 `json:"listenerMemoryIds"`
}
