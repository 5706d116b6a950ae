// Package sqlite implements storage.Store on top of a single SQLite file per
// agent (CGO-free driver, WAL mode, busy_timeout) combining the relational
// table, the FTS5 lexical index, and a vector side table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

// MemoryStore implements storage.Store using SQLite.
type MemoryStore struct {
	db *sql.DB
}

var _ storage.Store = (*MemoryStore)(nil)

// NewMemoryStore opens dsn with WAL self-healing: if the initial open fails
// with an error pattern caused by stale WAL files left behind by a crashed
// process, it verifies no other process holds them (via lsof) and retries
// once after removing the stale -shm/-wal files.
func NewMemoryStore(dsn string) (*MemoryStore, error) {
	store, err := openMemoryStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openMemoryStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func openMemoryStore(dsn string) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serializes writes; WAL mode still lets readers proceed without
	// blocking on it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MemoryStore{db: db}, nil
}

// Insert atomically writes m into the relational table and (if present) the
// vector side table. A failure rolls back both.
func (s *MemoryStore) Insert(ctx context.Context, m *types.Memory) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	if m.ID == "" || m.Agent == "" {
		return fmt.Errorf("%w: id and agent are required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory (
			id, agent, text, normalized_text, category, memory_type,
			importance, strength,
			created_at, last_reinforced_at, last_accessed_at,
			access_count, reinforce_count,
			pinned, soft_deleted_at, superseded_by,
			session, source, provenance, namespace,
			embedding_model, embedding_dim, embedding_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.Agent, m.Text, m.NormalizedText, string(m.Category), nullableString(m.MemoryType),
		m.Importance, m.Strength,
		m.CreatedAt.Unix(), m.LastReinforcedAt.Unix(), m.LastAccessedAt.Unix(),
		m.AccessCount, m.ReinforceCount,
		boolToInt(m.Pinned), nullableUnix(m.SoftDeletedAt), nullableString(m.SupersededBy),
		nullableString(m.Session), nullableString(m.Source), nullableString(m.Provenance), m.Namespace,
		nullableString(m.EmbeddingModel), nullableInt(m.EmbeddingDim), string(m.EmbeddingStatus),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert memory: %w", err)
	}

	if len(m.Embedding) > 0 {
		blob := encodeEmbedding(m.Embedding)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vec_memory (memory_id, embedding, dim, model, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(memory_id) DO UPDATE SET
				embedding = excluded.embedding, dim = excluded.dim,
				model = excluded.model, updated_at = excluded.updated_at
		`, m.ID, blob, len(m.Embedding), m.EmbeddingModel, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("sqlite: insert embedding: %w", err)
		}
	}

	return tx.Commit()
}

const selectMemoryColumns = `
	id, agent, text, normalized_text, category, memory_type,
	importance, strength,
	created_at, last_reinforced_at, last_accessed_at,
	access_count, reinforce_count,
	pinned, soft_deleted_at, superseded_by,
	session, source, provenance, namespace,
	embedding_model, embedding_dim, embedding_status
`

func (s *MemoryStore) Get(ctx context.Context, agent, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectMemoryColumns+" FROM memory WHERE agent = ? AND id = ?", agent, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get memory: %w", err)
	}
	return m, nil
}

// UpdateFields applies a partial patch. Only non-nil fields are written.
func (s *MemoryStore) UpdateFields(ctx context.Context, agent, id string, patch storage.Patch) error {
	var sets []string
	var args []any

	if patch.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *patch.Importance)
	}
	if patch.Strength != nil {
		sets = append(sets, "strength = ?")
		args = append(args, *patch.Strength)
	}
	if patch.LastReinforcedAt != nil {
		sets = append(sets, "last_reinforced_at = ?")
		args = append(args, *patch.LastReinforcedAt)
	}
	if patch.LastAccessedAt != nil {
		sets = append(sets, "last_accessed_at = ?")
		args = append(args, *patch.LastAccessedAt)
	}
	if patch.AccessCount != nil {
		sets = append(sets, "access_count = ?")
		args = append(args, *patch.AccessCount)
	}
	if patch.ReinforceCount != nil {
		sets = append(sets, "reinforce_count = ?")
		args = append(args, *patch.ReinforceCount)
	}
	if patch.Pinned != nil {
		sets = append(sets, "pinned = ?")
		args = append(args, boolToInt(*patch.Pinned))
	}
	if patch.SoftDeletedAt != nil {
		if *patch.SoftDeletedAt == 0 {
			sets = append(sets, "soft_deleted_at = NULL")
		} else {
			sets = append(sets, "soft_deleted_at = ?")
			args = append(args, *patch.SoftDeletedAt)
		}
	}
	if patch.SupersededBy != nil {
		sets = append(sets, "superseded_by = ?")
		args = append(args, nullableString(*patch.SupersededBy))
	}
	if patch.Provenance != nil {
		sets = append(sets, "provenance = ?")
		args = append(args, nullableString(*patch.Provenance))
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, agent, id)
	query := fmt.Sprintf("UPDATE memory SET %s WHERE agent = ? AND id = ?", strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: update fields: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update fields rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, agent, id string, reason string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE memory SET soft_deleted_at = ?, provenance = CASE WHEN ? != '' THEN ? ELSE provenance END WHERE agent = ? AND id = ?",
		time.Now().Unix(), reason, reason, agent, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: soft delete: %w", err)
	}
	return nil
}

func (s *MemoryStore) HardDelete(ctx context.Context, agent, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin hard delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vec_memory WHERE memory_id = ?", id); err != nil {
		return fmt.Errorf("sqlite: delete embedding: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM kg_relation WHERE agent = ? AND (subject_id = ? OR object_id = ?)", agent, id, id); err != nil {
		return fmt.Errorf("sqlite: delete relations: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM memory WHERE agent = ? AND id = ?", agent, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: hard delete rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return tx.Commit()
}

func (s *MemoryStore) SetEmbedding(ctx context.Context, agent, id string, vec []float32, model string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin set embedding: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE memory SET embedding_model = ?, embedding_dim = ?, embedding_status = ? WHERE agent = ? AND id = ?",
		model, len(vec), string(types.EmbeddingPresent), agent, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set embedding status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: set embedding rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	blob := encodeEmbedding(vec)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO vec_memory (memory_id, embedding, dim, model, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			embedding = excluded.embedding, dim = excluded.dim,
			model = excluded.model, updated_at = excluded.updated_at
	`, id, blob, len(vec), model, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite: write embedding: %w", err)
	}

	return tx.Commit()
}

func (s *MemoryStore) MarkEmbeddingFailed(ctx context.Context, agent, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE memory SET embedding_status = ? WHERE agent = ? AND id = ?",
		string(types.EmbeddingFailed), agent, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark embedding failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: mark embedding failed rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter storage.Filter, limit, offset int) ([]*types.Memory, error) {
	where, args := buildFilterClause(filter)
	query := fmt.Sprintf("SELECT %s FROM memory WHERE %s ORDER BY created_at DESC LIMIT ? OFFSET ?", selectMemoryColumns, where)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ScanForMaintenance streams every matching row through fn. Rows are
// buffered into memory first (maintenance datasets are agent-scoped and
// expected to fit) so fn is free to call back into the store without
// holding the read cursor open under the single-connection contract.
func (s *MemoryStore) ScanForMaintenance(ctx context.Context, filter storage.Filter, fn func(*types.Memory) error) error {
	where, args := buildFilterClause(filter)
	query := fmt.Sprintf("SELECT %s FROM memory WHERE %s ORDER BY id", selectMemoryColumns, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: scan for maintenance: %w", err)
	}

	var batch []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scan for maintenance scan: %w", err)
		}
		batch = append(batch, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, m := range batch {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Pin(ctx context.Context, agent, id string) error {
	return s.UpdateFields(ctx, agent, id, storage.Patch{Pinned: boolPtr(true)})
}

func (s *MemoryStore) Unpin(ctx context.Context, agent, id string) error {
	now := time.Now().Unix()
	return s.UpdateFields(ctx, agent, id, storage.Patch{Pinned: boolPtr(false), LastReinforcedAt: &now})
}

func (s *MemoryStore) Export(ctx context.Context, filter storage.Filter) ([]*types.Memory, error) {
	f := filter
	f.IncludeSoftDeleted = true
	return s.List(ctx, f, 1<<30, 0)
}

func (s *MemoryStore) Import(ctx context.Context, records []*types.Memory) (int, error) {
	n := 0
	for _, m := range records {
		existing, err := s.Get(ctx, m.Agent, m.ID)
		if err == nil && existing != nil {
			if _, err := s.db.ExecContext(ctx, "DELETE FROM memory WHERE agent = ? AND id = ?", m.Agent, m.ID); err != nil {
				return n, fmt.Errorf("sqlite: import replace: %w", err)
			}
		}
		if err := s.Insert(ctx, m); err != nil {
			return n, fmt.Errorf("sqlite: import insert %s: %w", m.ID, err)
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) RewriteRelations(ctx context.Context, agent, loserID, winnerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin rewrite relations: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE OR IGNORE kg_relation SET subject_id = ? WHERE agent = ? AND subject_id = ?",
		winnerID, agent, loserID); err != nil {
		return fmt.Errorf("sqlite: rewrite subject: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE OR IGNORE kg_relation SET object_id = ? WHERE agent = ? AND object_id = ?",
		winnerID, agent, loserID); err != nil {
		return fmt.Errorf("sqlite: rewrite object: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM kg_relation WHERE agent = ? AND (subject_id = ? OR object_id = ?)", agent, loserID, loserID); err != nil {
		return fmt.Errorf("sqlite: drop dangling relations: %w", err)
	}
	return tx.Commit()
}

func (s *MemoryStore) DeleteRelationsFor(ctx context.Context, agent, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kg_relation WHERE agent = ? AND (subject_id = ? OR object_id = ?)", agent, id, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete relations for: %w", err)
	}
	return nil
}

func (s *MemoryStore) InsertRelation(ctx context.Context, agent string, rel types.Relation) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO kg_relation (agent, subject_id, predicate, object_id) VALUES (?, ?, ?, ?)",
		agent, rel.SubjectID, rel.Predicate, rel.ObjectID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert relation: %w", err)
	}
	return nil
}

func (s *MemoryStore) RelationsByPredicate(ctx context.Context, agent, predicate string) ([]types.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT subject_id, predicate, object_id FROM kg_relation WHERE agent = ? AND predicate = ?", agent, predicate)
	if err != nil {
		return nil, fmt.Errorf("sqlite: relations by predicate: %w", err)
	}
	defer rows.Close()

	var out []types.Relation
	for rows.Next() {
		var r types.Relation
		if err := rows.Scan(&r.SubjectID, &r.Predicate, &r.ObjectID); err != nil {
			return nil, fmt.Errorf("sqlite: relations by predicate scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *MemoryStore) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return s.db.Close()
}

func buildFilterClause(f storage.Filter) (string, []any) {
	clauses := []string{"agent = ?"}
	args := []any{f.Agent}

	if !f.IncludeSoftDeleted {
		clauses = append(clauses, "soft_deleted_at IS NULL")
	}
	if f.Namespace != "" {
		clauses = append(clauses, "namespace = ?")
		args = append(args, f.Namespace)
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.MinImportance > 0 {
		clauses = append(clauses, "importance >= ?")
		args = append(args, f.MinImportance)
	}
	if f.TimeRangeStart != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, *f.TimeRangeStart)
	}
	if f.TimeRangeEnd != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, *f.TimeRangeEnd)
	}

	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var category, embeddingStatus string
	var memoryType, superseded, session, source, provenance, embeddingModel sql.NullString
	var softDeletedAt sql.NullInt64
	var embeddingDim sql.NullInt64
	var createdAt, lastReinforcedAt, lastAccessedAt int64
	var pinned int

	err := row.Scan(
		&m.ID, &m.Agent, &m.Text, &m.NormalizedText, &category, &memoryType,
		&m.Importance, &m.Strength,
		&createdAt, &lastReinforcedAt, &lastAccessedAt,
		&m.AccessCount, &m.ReinforceCount,
		&pinned, &softDeletedAt, &superseded,
		&session, &source, &provenance, &m.Namespace,
		&embeddingModel, &embeddingDim, &embeddingStatus,
	)
	if err != nil {
		return nil, err
	}

	m.Category = types.Category(category)
	m.EmbeddingStatus = types.EmbeddingStatus(embeddingStatus)
	m.MemoryType = memoryType.String
	m.SupersededBy = superseded.String
	m.Session = session.String
	m.Source = source.String
	m.Provenance = provenance.String
	m.EmbeddingModel = embeddingModel.String
	m.EmbeddingDim = int(embeddingDim.Int64)
	m.Pinned = pinned != 0
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	m.LastReinforcedAt = time.Unix(lastReinforcedAt, 0).UTC()
	m.LastAccessedAt = time.Unix(lastAccessedAt, 0).UTC()
	if softDeletedAt.Valid {
		t := time.Unix(softDeletedAt.Int64, 0).UTC()
		m.SoftDeletedAt = &t
	}

	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boolPtr(b bool) *bool { return &b }

func nullableInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN. Handles bare
// paths and file: URIs; returns "" for in-memory databases.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" {
			return ""
		}
		return path
	}
	return dsn
}

func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist and no other process
// currently holds them open (checked via lsof). Returns false, conservatively,
// if lsof is unavailable.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
