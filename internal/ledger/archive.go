package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/hive/pkg/models"
)

// HistoryStore is a SQLite-backed archive sink for terminal task records.
// It is write-mostly: the core never reads it back at runtime; it exists so
// operators can inspect task history after the in-memory ring has rolled
// over. The core itself stays in-memory; the store is optional.
type HistoryStore struct {
	conn *sql.DB
	path string
}

const historySchema = `
CREATE TABLE IF NOT EXISTS task_history (
	id           TEXT NOT NULL,
	owner        TEXT NOT NULL,
	category     TEXT,
	priority     TEXT NOT NULL,
	state        TEXT NOT NULL,
	description  TEXT,
	result       TEXT,
	error        TEXT,
	retry_count  INTEGER NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	started_at   TIMESTAMP,
	completed_at TIMESTAMP,
	archived_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_history_owner ON task_history(owner);
`

// OpenHistory opens (creating if needed) the SQLite history database at the
// given path. WAL mode is enabled for concurrent reads.
func OpenHistory(path string) (*HistoryStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec(historySchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &HistoryStore{conn: conn, path: path}, nil
}

// Archive appends one terminal task record. Implements Archiver.
func (s *HistoryStore) Archive(t models.Task) error {
	var resultJSON []byte
	if t.Result != nil {
		var err error
		resultJSON, err = json.Marshal(t.Result)
		if err != nil {
			resultJSON = []byte(fmt.Sprintf("%q", fmt.Sprint(t.Result)))
		}
	}

	_, err := s.conn.Exec(`
		INSERT INTO task_history
		(id, owner, category, priority, state, description, result, error,
		 retry_count, created_at, started_at, completed_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Owner, t.Category, string(t.Priority), string(t.State),
		t.Description, string(resultJSON), t.Error, t.RetryCount,
		t.CreatedAt, nullableTime(t.StartedAt), nullableTime(t.CompletedAt), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("archive task %s: %w", t.ID, err)
	}
	return nil
}

// ArchivedRecord is a summary row read back from the history table.
type ArchivedRecord struct {
	ID         string
	Owner      string
	State      models.TaskState
	Error      string
	RetryCount int
	ArchivedAt time.Time
}

// Recent returns the most recently archived records, newest first.
func (s *HistoryStore) Recent(limit int) ([]ArchivedRecord, error) {
	rows, err := s.conn.Query(`
		SELECT id, owner, state, error, retry_count, archived_at
		FROM task_history ORDER BY archived_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []ArchivedRecord
	for rows.Next() {
		var r ArchivedRecord
		var state string
		if err := rows.Scan(&r.ID, &r.Owner, &state, &r.Error, &r.RetryCount, &r.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.State = models.TaskState(state)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	return s.conn.Close()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
