package storefilters

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo toolchain required

	"github.com/cassette-engine/cassette/internal/casserrors"
)

// SQLiteStore implements SemanticFilterMaps and RowHydrator against a small
// relational schema (agents/workspaces/sources/messages), opened in WAL
// mode, serving the id-lookup and row-hydration contracts the query planner
// needs.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

var (
	_ SemanticFilterMaps = (*SQLiteStore)(nil)
	_ RowHydrator        = (*SQLiteStore)(nil)
)

// OpenSQLiteStore opens (creating if absent) the SQLite-backed filter-map
// and row-hydration store at path, in WAL mode for concurrent readers
// during a search while an ingest writer holds the file.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, casserrors.Wrap(casserrors.KindFailed, "create store directory", err)
		}
	} else {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, casserrors.Wrap(casserrors.KindFailed, "open sqlite store", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, casserrors.Wrap(casserrors.KindFailed, "set wal mode", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE
	);
	CREATE TABLE IF NOT EXISTS workspaces (
		id INTEGER PRIMARY KEY,
		path TEXT NOT NULL UNIQUE
	);
	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);
	CREATE TABLE IF NOT EXISTS messages (
		message_id INTEGER PRIMARY KEY,
		agent_id INTEGER,
		workspace_id INTEGER,
		source_id INTEGER,
		role TEXT,
		created_at_ms INTEGER,
		content TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "init store schema", err)
	}
	return nil
}

func (s *SQLiteStore) lookupID(ctx context.Context, table, column, value string) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id uint32
	query := "SELECT id FROM " + table + " WHERE " + column + " = ?"
	err := s.db.QueryRowContext(ctx, query, value).Scan(&id)
	if err != nil {
		return 0, false
	}
	return id, true
}

// AgentID implements SemanticFilterMaps.
func (s *SQLiteStore) AgentID(ctx context.Context, slug string) (uint32, bool) {
	return s.lookupID(ctx, "agents", "slug", slug)
}

// WorkspaceID implements SemanticFilterMaps.
func (s *SQLiteStore) WorkspaceID(ctx context.Context, path string) (uint32, bool) {
	return s.lookupID(ctx, "workspaces", "path", path)
}

// SourceID implements SemanticFilterMaps.
func (s *SQLiteStore) SourceID(ctx context.Context, name string) (uint32, bool) {
	return s.lookupID(ctx, "sources", "name", name)
}

// Hydrate implements RowHydrator, preserving messageIDs order and silently
// dropping ids with no backing row.
func (s *SQLiteStore) Hydrate(ctx context.Context, messageIDs []uint64) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const q = `
	SELECT m.message_id, COALESCE(a.slug, ''), COALESCE(w.path, ''), COALESCE(src.name, ''), COALESCE(m.role, ''), m.created_at_ms, m.content
	FROM messages m
	LEFT JOIN agents a ON a.id = m.agent_id
	LEFT JOIN workspaces w ON w.id = m.workspace_id
	LEFT JOIN sources src ON src.id = m.source_id
	WHERE m.message_id = ?`

	rows := make([]Row, 0, len(messageIDs))
	for _, id := range messageIDs {
		var r Row
		err := s.db.QueryRowContext(ctx, q, id).Scan(&r.MessageID, &r.AgentSlug, &r.Workspace, &r.Source, &r.Role, &r.CreatedAtMs, &r.Content)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, casserrors.Wrap(casserrors.KindFailed, "hydrate message row", err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
