package memory

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// SQLite driver (required for database/sql registration).
	_ "github.com/mattn/go-sqlite3"

	"github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/pkg/protocol"
)

// Store archives conversation turns in SQLite so a session can be resumed
// after a restart. The in-memory ContextStore stays the source of truth
// while the process runs; the archive is only written to and replayed.
type Store struct {
	db *sql.DB
}

// SessionInfo summarizes an archived session.
type SessionInfo struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	TurnCount int
}

// Open opens the archive at path, creating the file and tables if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.CodeArchiveUnavailable, "failed to create archive directory", errors.CategorySystem)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeArchiveUnavailable, "failed to open archive", errors.CategorySystem)
	}

	store := &Store{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeArchiveUnavailable, "failed to initialize archive schema", errors.CategorySystem)
	}

	return store, nil
}

// openDB opens a single SQLite database with optimal settings.
func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Set performance pragmas
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16000",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id              TEXT PRIMARY KEY,
		created_at      INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at      INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		turn_count      INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);

	-- created_at holds unix nanoseconds so that per-model order survives a reload.
	CREATE TABLE IF NOT EXISTS turns (
		id              TEXT PRIMARY KEY,
		session_id      TEXT NOT NULL,
		model           TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, model, created_at);

	CREATE TRIGGER IF NOT EXISTS turns_count_insert
		AFTER INSERT ON turns
		BEGIN
			UPDATE sessions
			SET turn_count = turn_count + 1, updated_at = strftime('%s', 'now')
			WHERE id = NEW.session_id;
		END;

	CREATE TRIGGER IF NOT EXISTS turns_count_delete
		AFTER DELETE ON turns
		BEGIN
			UPDATE sessions
			SET turn_count = turn_count - 1, updated_at = strftime('%s', 'now')
			WHERE id = OLD.session_id;
		END;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return ensureSchemaVersion(s.db, 1, "Initial archive schema")
}

func ensureSchemaVersion(db *sql.DB, version int, description string) error {
	var current sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&current); err != nil {
		return err
	}

	if !current.Valid || int(current.Int64) < version {
		_, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version,
			description,
		)
		return err
	}

	return nil
}

// Record appends turns for one model of one session in a single transaction.
func (s *Store) Record(ctx context.Context, sessionID, modelID string, turns ...protocol.Turn) error {
	if sessionID == "" || modelID == "" {
		return errors.User(errors.CodeInvalidInput, "session and model are required")
	}
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeArchiveFailed, "failed to begin archive transaction", errors.CategoryTemporary)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO sessions (id) VALUES (?)`, sessionID); err != nil {
		return errors.Wrap(err, errors.CodeArchiveFailed, "failed to record session", errors.CategoryTemporary)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO turns (id, session_id, model, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, errors.CodeArchiveFailed, "failed to prepare turn insert", errors.CategoryTemporary)
	}
	defer stmt.Close()

	for _, turn := range turns {
		ts := turn.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), sessionID, modelID, string(turn.Role), turn.Content, ts.UnixNano()); err != nil {
			return errors.Wrap(err, errors.CodeArchiveFailed, "failed to record turn", errors.CategoryTemporary)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CodeArchiveFailed, "failed to commit turns", errors.CategoryTemporary)
	}
	return nil
}

// Load returns the archived turns of a session grouped by model, each
// list oldest first. An unknown session yields an empty map.
func (s *Store) Load(ctx context.Context, sessionID string) (map[string][]protocol.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model, role, content, created_at
		FROM turns
		WHERE session_id = ?
		ORDER BY model, created_at, rowid
	`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeArchiveFailed, "failed to load session", errors.CategoryTemporary)
	}
	defer rows.Close()

	out := make(map[string][]protocol.Turn)
	for rows.Next() {
		var (
			model, role, content string
			created              int64
		)
		if err := rows.Scan(&model, &role, &content, &created); err != nil {
			return nil, errors.Wrap(err, errors.CodeArchiveFailed, "failed to scan turn", errors.CategoryPermanent)
		}
		out[model] = append(out[model], protocol.Turn{
			Role:      protocol.Role(role),
			Content:   content,
			Timestamp: time.Unix(0, created),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeArchiveFailed, "failed to read turns", errors.CategoryTemporary)
	}
	return out, nil
}

// ListSessions returns archived sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at, turn_count
		FROM sessions
		ORDER BY updated_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeArchiveFailed, "failed to list sessions", errors.CategoryTemporary)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var (
			info             SessionInfo
			created, updated int64
		)
		if err := rows.Scan(&info.ID, &created, &updated, &info.TurnCount); err != nil {
			return nil, errors.Wrap(err, errors.CodeArchiveFailed, "failed to scan session", errors.CategoryPermanent)
		}
		info.CreatedAt = time.Unix(created, 0)
		info.UpdatedAt = time.Unix(updated, 0)
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeArchiveFailed, "failed to read sessions", errors.CategoryTemporary)
	}
	return sessions, nil
}

// ClearModel deletes the archived turns of one model in a session.
func (s *Store) ClearModel(ctx context.Context, sessionID, modelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ? AND model = ?`, sessionID, modelID); err != nil {
		return errors.Wrap(err, errors.CodeArchiveFailed, "failed to clear model history", errors.CategoryTemporary)
	}
	return nil
}

// DeleteSession removes a session and all its turns.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return errors.Wrap(err, errors.CodeArchiveFailed, "failed to delete session", errors.CategoryTemporary)
	}
	return nil
}
