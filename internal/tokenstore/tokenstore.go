// Package tokenstore persists refresh tokens between sessions in a local
// SQLite database. Only refresh tokens are stored; access tokens are
// short-lived and re-minted on demand.
package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned when no token is stored for an account.
var ErrNotFound = errors.New("tokenstore: no token stored for account")

const schema = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
	account       TEXT PRIMARY KEY,
	client_id     TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);`

// Store is a SQLite-backed refresh token store, keyed by account name.
type Store struct {
	db   *sql.DB
	path string
}

// New creates a token store at the specified data directory.
// If dataDir is empty, defaults to ~/.gdauth/tokens.db.
func New(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".gdauth")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tokens.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Save stores or replaces the refresh token for an account.
func (s *Store) Save(ctx context.Context, account, clientID, refreshToken string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (account, client_id, refresh_token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			client_id = excluded.client_id,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		account, clientID, refreshToken, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving refresh token: %w", err)
	}
	return nil
}

// Load returns the refresh token stored for an account.
func (s *Store) Load(ctx context.Context, account string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT refresh_token FROM refresh_tokens WHERE account = ?`, account).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading refresh token: %w", err)
	}
	return token, nil
}

// Delete removes the refresh token stored for an account. Deleting an
// account with no stored token is not an error.
func (s *Store) Delete(ctx context.Context, account string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE account = ?`, account); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}

// Accounts returns the accounts with a stored refresh token, oldest first.
func (s *Store) Accounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account FROM refresh_tokens ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var account string
		if err := rows.Scan(&account); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
