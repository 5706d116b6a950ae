// Package postgres provides the alternate Postgres + pgvector backend for
// storage.Store, for deployments that outgrow the single-file SQLite store.
package postgres

// Schema creates the relational table, its lexical tsvector index, and the
// knowledge-graph/embed-cache side tables. Vector storage itself is added by
// MigrationPgvector, which NewMemoryStore runs when the extension is
// available — a plain BYTEA
// column here always works, even without the extension installed.
const Schema = `
CREATE TABLE IF NOT EXISTS memory (
    id                  TEXT PRIMARY KEY,
    agent               TEXT NOT NULL,
    text                TEXT NOT NULL,
    normalized_text     TEXT NOT NULL,

    category            TEXT NOT NULL,
    memory_type         TEXT,

    importance          DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    strength            DOUBLE PRECISION NOT NULL DEFAULT 1.0,

    created_at          BIGINT NOT NULL,
    last_reinforced_at  BIGINT NOT NULL,
    last_accessed_at    BIGINT NOT NULL,

    access_count        INTEGER NOT NULL DEFAULT 0,
    reinforce_count     INTEGER NOT NULL DEFAULT 0,

    pinned              BOOLEAN NOT NULL DEFAULT FALSE,
    soft_deleted_at     BIGINT,
    superseded_by       TEXT,

    session             TEXT,
    source              TEXT,
    provenance          TEXT,
    namespace           TEXT NOT NULL DEFAULT '',

    embedding_model     TEXT,
    embedding_dim       INTEGER,
    embedding_status    TEXT NOT NULL DEFAULT 'pending',

    content_tsv         tsvector
);

CREATE INDEX IF NOT EXISTS idx_memory_agent ON memory(agent);
CREATE INDEX IF NOT EXISTS idx_memory_namespace ON memory(agent, namespace);
CREATE INDEX IF NOT EXISTS idx_memory_category ON memory(agent, category);
CREATE INDEX IF NOT EXISTS idx_memory_soft_deleted ON memory(soft_deleted_at);
CREATE INDEX IF NOT EXISTS idx_memory_pinned ON memory(agent, pinned);
CREATE INDEX IF NOT EXISTS idx_memory_created_at ON memory(agent, created_at);
CREATE INDEX IF NOT EXISTS idx_memory_content_tsv ON memory USING GIN(content_tsv);

CREATE OR REPLACE FUNCTION memory_tsv_update() RETURNS TRIGGER AS $$
BEGIN
    NEW.content_tsv := to_tsvector('english', COALESCE(NEW.normalized_text, ''));
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS memory_tsv_trigger ON memory;
CREATE TRIGGER memory_tsv_trigger
    BEFORE INSERT OR UPDATE OF normalized_text ON memory
    FOR EACH ROW EXECUTE FUNCTION memory_tsv_update();

CREATE TABLE IF NOT EXISTS vec_memory (
    memory_id   TEXT PRIMARY KEY REFERENCES memory(id) ON DELETE CASCADE,
    embedding   BYTEA NOT NULL,
    dim         INTEGER NOT NULL,
    model       TEXT NOT NULL,
    updated_at  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS embed_cache (
    hash        TEXT NOT NULL,
    model       TEXT NOT NULL,
    dim         INTEGER NOT NULL,
    embedding   BYTEA NOT NULL,
    created_at  BIGINT NOT NULL,
    PRIMARY KEY (hash, model, dim)
);

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

// MigrationPgvector adds a native vector column and an ivfflat index to
// vec_memory. Applied only when the pgvector extension is installed;
// NewMemoryStore runs this migration when opening the store.
const MigrationPgvector = `
CREATE EXTENSION IF NOT EXISTS vector;

DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'vec_memory' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE vec_memory ADD COLUMN embedding_vec vector;
    END IF;
END
$$;

DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_vec_memory_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM vec_memory LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_vec_memory_cosine ON vec_memory USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
