// Package flatfile persists the whole ledger as one JSON snapshot file.
//
// Writes are full-file rewrites through a temp file + rename, suitable for
// small player counts. Upserts only update the in-memory snapshot and mark
// it dirty; the file is rewritten on Flush (autosave interval, force save,
// shutdown). No name cache and no transaction log.
package flatfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/arefy/economyd/internal/storage"
)

const fileName = "accounts.json"

type fileAccount struct {
	Identity  string    `json:"identity"`
	Balance   int64     `json:"balance"`
	Name      string    `json:"name,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type snapshot struct {
	Accounts []fileAccount `json:"accounts"`
}

// Store is the flat-file storage backend.
type Store struct {
	path string

	mu       sync.Mutex
	accounts map[string]storage.AccountRecord
	dirty    bool
}

var _ storage.Backend = (*Store)(nil)

// New opens (or creates) the snapshot file under dataDir.
func New(dataDir string) (*Store, error) {
	err := os.MkdirAll(dataDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		path:     filepath.Join(dataDir, fileName),
		accounts: make(map[string]storage.AccountRecord),
	}

	err = s.load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // first run
		}

		return fmt.Errorf("read %s: %w", s.path, err)
	}

	var snap snapshot

	err = json.Unmarshal(data, &snap)
	if err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}

	for _, a := range snap.Accounts {
		s.accounts[a.Identity] = storage.AccountRecord{
			Identity:  a.Identity,
			Balance:   a.Balance,
			Name:      a.Name,
			UpdatedAt: a.UpdatedAt,
		}
	}

	return nil
}

// LoadAll returns every account in the snapshot.
func (s *Store) LoadAll(ctx context.Context) ([]storage.AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.AccountRecord, 0, len(s.accounts))
	for _, rec := range s.accounts {
		out = append(out, rec)
	}

	return out, nil
}

// Upsert records the account in the in-memory snapshot and marks the file
// dirty. The durable write happens on the next Flush.
func (s *Store) Upsert(ctx context.Context, rec storage.AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[rec.Identity] = rec
	s.dirty = true

	return nil
}

// Flush rewrites the snapshot file if anything changed since the last write.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	err := s.write()
	if err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}

	s.dirty = false

	return nil
}

// write must be called with s.mu held.
func (s *Store) write() error {
	snap := snapshot{Accounts: make([]fileAccount, 0, len(s.accounts))}
	for _, rec := range s.accounts {
		snap.Accounts = append(snap.Accounts, fileAccount{
			Identity:  rec.Identity,
			Balance:   rec.Balance,
			Name:      rec.Name,
			UpdatedAt: rec.UpdatedAt,
		})
	}

	// Stable file content for diffing and tests.
	sort.Slice(snap.Accounts, func(i, j int) bool {
		return snap.Accounts[i].Identity < snap.Accounts[j].Identity
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := s.path + ".tmp"

	err = os.WriteFile(tmp, data, 0o644)
	if err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}

	err = os.Rename(tmp, s.path)
	if err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	return nil
}

// Close flushes any pending snapshot.
func (s *Store) Close(ctx context.Context) error {
	return s.Flush(ctx)
}
