// Package sqlite persists the ledger document in a single-row SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Persister stores the ledger document in row 1 of ledger_document.
type Persister struct {
	db  *sql.DB
	now func() time.Time
}

// New opens dbPath, creating its directory and applying migrations.
func New(dbPath string) (*Persister, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	return &Persister{db: db, now: time.Now}, nil
}

// Load returns nil, nil when no document has been saved.
func (p *Persister) Load(ctx context.Context) ([]byte, error) {
	var body string
	err := p.db.QueryRowContext(ctx, `SELECT body FROM ledger_document WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger document: %w", err)
	}
	return []byte(body), nil
}

// Save upserts the document row.
func (p *Persister) Save(ctx context.Context, doc []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO ledger_document (id, body, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		string(doc), p.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save ledger document: %w", err)
	}
	return nil
}

// Quarantine copies the current document into ledger_quarantine and clears
// the live row in one transaction.
func (p *Persister) Quarantine(ctx context.Context) (string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin quarantine: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_quarantine (body, quarantined_at)
		 SELECT body, ? FROM ledger_document WHERE id = 1`,
		p.now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("copy ledger document: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("quarantine row id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_document WHERE id = 1`); err != nil {
		return "", fmt.Errorf("clear ledger document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit quarantine: %w", err)
	}
	return fmt.Sprintf("ledger_quarantine#%d", rowID), nil
}

// Close closes the database.
func (p *Persister) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
