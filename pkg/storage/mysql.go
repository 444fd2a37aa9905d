package storage

import (
	"database/sql"
	"fmt"
	"time"

	"screenrelay/pkg/protocol"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore implements Store interface using MySQL backend
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a new MySQL-backed store
func NewMySQLStore(dsn string) (Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	s := &MySQLStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) initDB() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS captures (
			request_id VARCHAR(64) PRIMARY KEY,
			session_id VARCHAR(128) NOT NULL,
			payload LONGBLOB,
			format VARCHAR(8),
			width INT,
			height INT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_captures_session (session_id),
			INDEX idx_captures_created (created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS operators (
			id INT PRIMARY KEY AUTO_INCREMENT,
			username VARCHAR(64) NOT NULL UNIQUE,
			password_hash VARCHAR(128) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_login DATETIME
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveCapture archives a capture payload and returns its storage reference
func (s *MySQLStore) SaveCapture(requestID, clientSessionID string, payload []byte, meta *protocol.CaptureMeta) (string, error) {
	var format string
	var width, height int
	if meta != nil {
		format = meta.Format
		width = meta.Width
		height = meta.Height
	}

	_, err := s.db.Exec(`
		INSERT INTO captures (request_id, session_id, payload, format, width, height, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			session_id=VALUES(session_id), payload=VALUES(payload),
			format=VALUES(format), width=VALUES(width), height=VALUES(height)`,
		requestID, clientSessionID, payload, format, width, height, time.Now(),
	)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("capture:%s", requestID), nil
}

// LoadCapture retrieves an archived capture payload by request ID
func (s *MySQLStore) LoadCapture(requestID string) ([]byte, *protocol.CaptureMeta, error) {
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
func (s *MySQLStore) DeleteCapture(requestID string) error {
	_, err := s.db.Exec(`DELETE FROM captures WHERE request_id = ?`, requestID)
	return err
}

// PurgeCaptures deletes archived captures older than the given age
func (s *MySQLStore) PurgeCaptures(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.Exec(`DELETE FROM captures WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountCaptures returns the number of archived captures
func (s *MySQLStore) CountCaptures() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM captures`).Scan(&count)
	return count, err
}

// CreateOperator adds a new operator account
func (s *MySQLStore) CreateOperator(username, passwordHash string) error {
	_, err := s.db.Exec(`
		INSERT INTO operators (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, time.Now(),
	)
	return err
}

// GetOperator retrieves an operator and its password hash by username
func (s *MySQLStore) GetOperator(username string) (*Operator, string, error) {
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
func (s *MySQLStore) GetAllOperators() ([]*Operator, error) {
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
func (s *MySQLStore) DeleteOperator(username string) error {
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
func (s *MySQLStore) OperatorExists(username string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM operators WHERE username = ?`, username).Scan(&count)
	return count > 0, err
}

// UpdateOperatorLastLogin records a successful login
func (s *MySQLStore) UpdateOperatorLastLogin(username string) error {
	_, err := s.db.Exec(`UPDATE operators SET last_login = ? WHERE username = ?`, time.Now(), username)
	return err
}

// Close closes the database
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
