// Package file stores the TokenSet as a JSON file that operators can inspect
// and edit by hand.
package file

import (
	"acbridge/internal/core"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const DefaultPath = ".tokens.json"

// document is the on-disk layout. Expiry times are Unix milliseconds so files
// written by earlier deployments stay readable.
type document struct {
	AccessToken       string `json:"accessToken"`
	RefreshToken      string `json:"refreshToken"`
	ExpiryTime        *int64 `json:"expiryTime"`
	RefreshExpiryTime *int64 `json:"refreshExpiryTime,omitempty"`
	LastUpdated       string `json:"lastUpdated,omitempty"`
}

// Store implements core.TokenStore on a single JSON file.
type Store struct {
	path string

	mu          sync.Mutex
	lastWritten [sha256.Size]byte
}

// New creates a file store. The file is created on first Save.
func New(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the file the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load reads the token file. A missing or empty file yields (nil, nil).
func (s *Store) Load(ctx context.Context) (*core.TokenSet, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}
	if doc.AccessToken == "" && doc.RefreshToken == "" {
		return nil, nil
	}

	tokens := &core.TokenSet{
		AccessToken:      doc.AccessToken,
		RefreshToken:     doc.RefreshToken,
		AccessExpiresAt:  fromMillis(doc.ExpiryTime),
		RefreshExpiresAt: fromMillis(doc.RefreshExpiryTime),
	}
	if doc.LastUpdated != "" {
		if t, err := time.Parse(time.RFC3339Nano, doc.LastUpdated); err == nil {
			tokens.UpdatedAt = t
		}
	}
	return tokens, nil
}

// Save writes the tokens atomically with mode 0600.
func (s *Store) Save(ctx context.Context, tokens *core.TokenSet) error {
	doc := document{
		AccessToken:       tokens.AccessToken,
		RefreshToken:      tokens.RefreshToken,
		ExpiryTime:        toMillis(tokens.AccessExpiresAt),
		RefreshExpiryTime: toMillis(tokens.RefreshExpiresAt),
	}
	if !tokens.UpdatedAt.IsZero() {
		doc.LastUpdated = tokens.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	return s.write(data)
}

// Clear resets the file to an empty document.
func (s *Store) Clear(ctx context.Context) error {
	data, err := json.MarshalIndent(document{}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	return s.write(data)
}

func (s *Store) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	s.lastWritten = sha256.Sum256(data)
	return nil
}

// writtenByUs reports whether the file content is what the last Save produced.
func (s *Store) writtenByUs() bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sha256.Sum256(data) == s.lastWritten
}

func toMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms *int64) *time.Time {
	if ms == nil || *ms == 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

var _ core.TokenStore = (*Store)(nil)
