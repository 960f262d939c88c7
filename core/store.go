package core

// Local persistence for the upload manager: a keyed blob store for queued
// bootstrap uploads with a 24h TTL. Grounded on the teacher's on-disk LRU
// cache in core/storage.go
// (newDiskLRU/put/get), generalized from an eviction-by-count cache into
// an eviction-by-age one, and from raw bytes to a JSON envelope since each
// record here carries content plus its write options, not just a blob.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const uploadTTL = 24 * time.Hour

// UploadRecord is one queued bootstrap upload, collapsing what a relational
// uploads(txid, content, file, params, created_at) table would hold into a
// single JSON envelope per record.
type UploadRecord struct {
	TxID      string          `json:"txid"`
	Content   []byte          `json:"content"`
	Params    json.RawMessage `json:"params"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is a directory-backed keyed blob store, one file per txid.
type Store struct {
	mu     sync.Mutex
	dir    string
	ttl    time.Duration
	logger *log.Logger
}

// NewStore opens (creating if necessary) a Store rooted at dir and purges
// any record older than the TTL.
func NewStore(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s := &Store{dir: dir, ttl: uploadTTL, logger: logger}
	purged, err := s.purgeExpired()
	if err != nil {
		return nil, err
	}
	logger.Infof("store: opened %s, purged %d expired record(s)", dir, purged)
	return s, nil
}

func (s *Store) path(txid string) string {
	return filepath.Join(s.dir, txid+".json")
}

// Put persists a record keyed by its funding transaction id.
func (s *Store) Put(rec UploadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}
	if err := os.WriteFile(s.path(rec.TxID), raw, 0o600); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	return nil
}

// Get retrieves a record by txid. ok is false if it is missing or expired
// (an expired record is also deleted as a side effect).
func (s *Store) Get(txid string) (rec UploadRecord, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path(txid))
	if err != nil {
		return UploadRecord{}, false
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return UploadRecord{}, false
	}
	if time.Since(rec.CreatedAt) > s.ttl {
		_ = os.Remove(s.path(txid))
		return UploadRecord{}, false
	}
	return rec, true
}

// Delete removes a record, e.g. once its upload reaches a terminal state.
func (s *Store) Delete(txid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(txid))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

func (s *Store) purgeExpired() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("store: list: %w", err)
	}
	purged := 0
	now := time.Now()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(s.dir, e.Name())
		raw, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var rec UploadRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if now.Sub(rec.CreatedAt) > s.ttl {
			_ = os.Remove(p)
			purged++
		}
	}
	return purged, nil
}
