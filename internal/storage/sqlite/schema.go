package sqlite

// Schema contains the SQL statements that create the embedded store's three
// indices (relational table, lexical FTS5 index, vector side table) plus the
// embed cache and knowledge-graph side table, in one file per agent.
const Schema = `
CREATE TABLE IF NOT EXISTS memory (
    id                  TEXT PRIMARY KEY,
    agent               TEXT NOT NULL,
    text                TEXT NOT NULL,
    normalized_text     TEXT NOT NULL,

    category            TEXT NOT NULL,
    memory_type         TEXT,

    importance          REAL NOT NULL DEFAULT 0.5,
    strength            REAL NOT NULL DEFAULT 1.0,

    created_at          INTEGER NOT NULL,
    last_reinforced_at  INTEGER NOT NULL,
    last_accessed_at    INTEGER NOT NULL,

    access_count        INTEGER NOT NULL DEFAULT 0,
    reinforce_count     INTEGER NOT NULL DEFAULT 0,

    pinned              INTEGER NOT NULL DEFAULT 0,
    soft_deleted_at     INTEGER,
    superseded_by       TEXT,

    session             TEXT,
    source              TEXT,
    provenance          TEXT,
    namespace           TEXT NOT NULL DEFAULT '',

    embedding_model     TEXT,
    embedding_dim       INTEGER,
    embedding_status    TEXT NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_memory_agent ON memory(agent);
CREATE INDEX IF NOT EXISTS idx_memory_namespace ON memory(agent, namespace);
CREATE INDEX IF NOT EXISTS idx_memory_category ON memory(agent, category);
CREATE INDEX IF NOT EXISTS idx_memory_soft_deleted ON memory(soft_deleted_at);
CREATE INDEX IF NOT EXISTS idx_memory_pinned ON memory(agent, pinned);
CREATE INDEX IF NOT EXISTS idx_memory_embedding_status ON memory(embedding_status);
CREATE INDEX IF NOT EXISTS idx_memory_created_at ON memory(agent, created_at);

-- vec_memory is the vector index: one embedding per memory, packed as
-- little-endian float32. Kept separate from memory so a re-embed (model
-- change) never touches the relational row.
CREATE TABLE IF NOT EXISTS vec_memory (
    memory_id   TEXT PRIMARY KEY,
    embedding   BLOB NOT NULL,
    dim         INTEGER NOT NULL,
    model       TEXT NOT NULL,
    updated_at  INTEGER NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memory(id) ON DELETE CASCADE
);

-- fts_memory is the lexical index: an external-content FTS5 table over
-- normalized_text, kept in sync by the triggers below so callers never
-- write to it directly.
CREATE VIRTUAL TABLE IF NOT EXISTS fts_memory USING fts5(
    normalized_text,
    content='memory',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS memory_fts_ai AFTER INSERT ON memory BEGIN
    INSERT INTO fts_memory(rowid, normalized_text) VALUES (new.rowid, new.normalized_text);
END;

CREATE TRIGGER IF NOT EXISTS memory_fts_ad AFTER DELETE ON memory BEGIN
    INSERT INTO fts_memory(fts_memory, rowid, normalized_text) VALUES ('delete', old.rowid, old.normalized_text);
END;

CREATE TRIGGER IF NOT EXISTS memory_fts_au AFTER UPDATE ON memory BEGIN
    INSERT INTO fts_memory(fts_memory, rowid, normalized_text) VALUES ('delete', old.rowid, old.normalized_text);
    INSERT INTO fts_memory(rowid, normalized_text) VALUES (new.rowid, new.normalized_text);
END;

-- embed_cache backs the Embedder's persistent cache tier: (content hash,
-- model, dim) -> vector, so re-embedding identical text across memories
-- (or across a WriteMerge retry) never re-calls the remote embedder.
CREATE TABLE IF NOT EXISTS embed_cache (
    hash        TEXT NOT NULL,
    model       TEXT NOT NULL,
    dim         INTEGER NOT NULL,
    embedding   BLOB NOT NULL,
    created_at  INTEGER NOT NULL,
    PRIMARY KEY (hash, model, dim)
);

-- kg_relation is the minimal knowledge-graph side table the core writes to
-- on merge and purge. Entity/relation extraction itself lives outside this
-- store.
CREATE TABLE IF NOT EXISTS kg_relation (
    agent       TEXT NOT NULL,
    subject_id  TEXT NOT NULL,
    predicate   TEXT NOT NULL,
    object_id   TEXT NOT NULL,
    PRIMARY KEY (agent, subject_id, predicate, object_id)
);

CREATE INDEX IF NOT EXISTS idx_kg_relation_object ON kg_relation(agent, object_id);
CREATE INDEX IF NOT EXISTS idx_kg_relation_predicate ON kg_relation(agent, predicate);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
