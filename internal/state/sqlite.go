package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore keeps one JSON document per session in a SQLite file.
type SQLiteStore struct {
	DB *sql.DB
}

// Open creates (if needed) and opens the state database at path.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The executor is sequential; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	queries := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init state db: %w", err)
		}
	}
	return &SQLiteStore{DB: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.SessionID == "" {
		return errors.New("session id is required")
	}
	sess.UpdatedAt = time.Now().UTC()
	if sess.ApprovedFingerprints == nil {
		sess.ApprovedFingerprints = []string{}
	}
	slices.Sort(sess.ApprovedFingerprints)
	sess.ApprovedFingerprints = slices.Compact(sess.ApprovedFingerprints)

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	query := `INSERT INTO sessions (session_id, task, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET task = excluded.task, data = excluded.data, updated_at = excluded.updated_at`
	if _, err := s.DB.ExecContext(ctx, query, sess.SessionID, sess.Task, string(data), sess.UpdatedAt.UnixNano()); err != nil {
		return fmt.Errorf("save session %s: %w", sess.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	var data string
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM sessions WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return decode(data)
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT data FROM sessions ORDER BY updated_at DESC, session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		sess, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}

func decode(data string) (*Session, error) {
	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if sess.ApprovedFingerprints == nil {
		sess.ApprovedFingerprints = []string{}
	}
	return &sess, nil
}
