package phantomstate

// schema defines every relational table the engine owns. Applying it is
// idempotent (CREATE TABLE/INDEX IF NOT EXISTS) so Open can run it on every
// startup, the same way GoKitt's SQLiteStore re-applies its schema constant
// unconditionally rather than tracking a migration version.
const schema = `
CREATE TABLE IF NOT EXISTS engine_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS moments (
    id TEXT PRIMARY KEY,
    sequence INTEGER NOT NULL UNIQUE,
    label TEXT,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_moments_sequence ON moments(sequence);

CREATE TABLE IF NOT EXISTS takes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    parent_take_id INTEGER,
    branch_point TEXT,
    created_at INTEGER NOT NULL,
    status TEXT NOT NULL,
    notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_takes_parent ON takes(parent_take_id);
CREATE INDEX IF NOT EXISTS idx_takes_status ON takes(status);

CREATE TABLE IF NOT EXISTS characters (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    traits TEXT,
    voice TEXT
);

-- Maps a character to the surrogate vector-table name provisioned for it.
-- Character ids are caller-controlled strings and may contain characters a
-- SQL identifier cannot; the surrogate keeps vector-table names safe.
CREATE TABLE IF NOT EXISTS character_vec_tables (
    character_id TEXT PRIMARY KEY,
    table_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS facts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    category TEXT,
    created_at TEXT
);

CREATE TABLE IF NOT EXISTS knowledge_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    character_id TEXT NOT NULL,
    fact_id INTEGER NOT NULL,
    moment_id TEXT NOT NULL,
    take_id INTEGER NOT NULL,
    source TEXT,
    UNIQUE(character_id, fact_id, take_id)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_character ON knowledge_events(character_id);
CREATE INDEX IF NOT EXISTS idx_knowledge_take ON knowledge_events(take_id);

CREATE TABLE IF NOT EXISTS memory_metadata (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    character_id TEXT NOT NULL,
    chunk TEXT NOT NULL,
    moment_id TEXT NOT NULL,
    take_id INTEGER NOT NULL,
    chunk_type TEXT NOT NULL,
    tags TEXT
);

CREATE INDEX IF NOT EXISTS idx_memory_lookup
    ON memory_metadata(character_id, moment_id, take_id, chunk_type);

CREATE TABLE IF NOT EXISTS corpus (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    source TEXT NOT NULL,
    section TEXT,
    category TEXT,
    version TEXT,
    created_at INTEGER NOT NULL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_corpus_filter ON corpus(source, category, version);
`

// metaVectorDimensions is the engine_meta key pinning the database's vector
// width at creation time (spec §4.1, §4.6).
const metaVectorDimensions = "vector_dimensions"

// corpusVecTable is the name of the single shared corpus vector index.
const corpusVecTable = "corpus_vec"
