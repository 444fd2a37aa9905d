package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"screenrelay/pkg/protocol"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store interface using SQLite backend
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-backed store
func NewSQLiteStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{
		db: db,
	}

	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initDB initializes the database schema
func (s *SQLiteStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS captures (
		request_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		payload BLOB,
		format TEXT,
		width INTEGER,
		height INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_captures_session ON captures(session_id);
	CREATE INDEX IF NOT EXISTS idx_captures_created ON captures(created_at);

	CREATE TABLE IF NOT EXISTS operators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_login DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_operators_username ON operators(username);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveCapture archives a capture payload and returns its storage reference
func (s *SQLiteStore) SaveCapture(requestID, clientSessionID string, payload []byte, meta *protocol.CaptureMeta) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var format string
	var width, height int
	if meta != nil {
		format = meta.Format
		width = meta.Width
		height = meta.Height
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO captures (request_id, session_id, payload, format, width, height, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		requestID, clientSessionID, payload, format, width, height, time.Now(),
	)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("capture:%s", requestID), nil
}

// LoadCapture retrieves an archived capture payload by request ID
func (s *SQLiteStore) LoadCapture(requestID string) ([]byte, *protocol.CaptureMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	var format string
	var width, height int
	err := s.db.QueryRow(`
		SELECT payload, format, width, height FROM captures WHERE request_id = ?`,
		requestID,
	).Scan(&payload, &format, &width, &height)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var meta *protocol.CaptureMeta
	if format != "" {
		meta = &protocol.CaptureMeta{Format: format, Width: width, Height: height}
	}
	return payload, meta, nil
}

// DeleteCapture removes an archived capture
func (s *SQLiteStore) DeleteCapture(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM captures WHERE request_id = ?`, requestID)
	return err
}

// PurgeCaptures deletes archived captures older than the given age and
// returns how many were removed.
func (s *SQLiteStore) PurgeCaptures(olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.Exec(`DELETE FROM captures WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountCaptures returns the number of archived captures
func (s *SQLiteStore) CountCaptures() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM captures`).Scan(&count)
	return count, err
}

// CreateOperator adds a new operator account
func (s *SQLiteStore) CreateOperator(username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO operators (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, time.Now(),
	)
	return err
}

// GetOperator retrieves an operator and its password hash by username
func (s *SQLiteStore) GetOperator(username string) (*Operator, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var op Operator
	var hash string
	var lastLogin sql.NullTime
	err := s.db.QueryRow(`
		SELECT id, username, password_hash, created_at, last_login
		FROM operators WHERE username = ?`,
		username,
	).Scan(&op.ID, &op.Username, &hash, &op.CreatedAt, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	if lastLogin.Valid {
		op.LastLogin = &lastLogin.Time
	}
	return &op, hash, nil
}

// GetAllOperators returns all operator accounts
func (s *SQLiteStore) GetAllOperators() ([]*Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, username, created_at, last_login FROM operators ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var operators []*Operator
	for rows.Next() {
		var op Operator
		var lastLogin sql.NullTime
		if err := rows.Scan(&op.ID, &op.Username, &op.CreatedAt, &lastLogin); err != nil {
			return nil, err
		}
		if lastLogin.Valid {
			op.LastLogin = &lastLogin.Time
		}
		operators = append(operators, &op)
	}
	return operators, rows.Err()
}

// DeleteOperator removes an operator account
func (s *SQLiteStore) DeleteOperator(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM operators WHERE username = ?`, username)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// OperatorExists checks whether an operator account exists
func (s *SQLiteStore) OperatorExists(username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM operators WHERE username = ?`, username).Scan(&count)
	return count > 0, err
}

// UpdateOperatorLastLogin records a successful login
func (s *SQLiteStore) UpdateOperatorLastLogin(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE operators SET last_login = ? WHERE username = ?`, time.Now(), username)
	return err
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
