// Package jsonfile persists the ledger document as a single JSON file.
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Persister reads and writes the ledger document at Path.
type Persister struct {
	path string
	now  func() time.Time
}

// New returns a Persister for path, creating its parent directory.
func New(path string) (*Persister, error) {
	if path == "" {
		return nil, errors.New("jsonfile: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return &Persister{path: path, now: time.Now}, nil
}

// Path returns the file the document is stored in.
func (p *Persister) Path() string { return p.path }

// Load returns nil, nil when the file does not exist yet.
func (p *Persister) Load(_ context.Context) ([]byte, error) {
	raw, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}
	return raw, nil
}

// Save writes doc to a sibling temp file and renames it over the target, so
// readers never observe a half-written document.
func (p *Persister) Save(_ context.Context, doc []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p.path), filepath.Base(p.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", p.path, err)
	}
	return nil
}

// Quarantine moves the current file to <path>.corrupt-<unix seconds>.
func (p *Persister) Quarantine(_ context.Context) (string, error) {
	dest := p.path + ".corrupt-" + strconv.FormatInt(p.now().Unix(), 10)
	if err := os.Rename(p.path, dest); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", p.path, err)
	}
	return dest, nil
}

// Close is a no-op; every Save completes its own file handle.
func (p *Persister) Close() error { return nil }
