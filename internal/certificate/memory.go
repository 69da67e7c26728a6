package certificate

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It backs
// tests and database-less development deployments; production uses the
// PostgreSQL Repository.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
	byID    map[uuid.UUID]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[uuid.UUID]*Record)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = uuid.New()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	cp := *rec
	s.records = append(s.records, &cp)
	s.byID[cp.ID] = &cp
	return nil
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// GetByFingerprint implements Store. The most recently created match wins.
func (s *MemoryStore) GetByFingerprint(_ context.Context, fingerprint string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Fingerprint == fingerprint {
			cp := *s.records[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// SearchByRecipient implements Store. Store order is insertion order, so the
// oldest matching record is returned.
func (s *MemoryStore) SearchByRecipient(_ context.Context, query string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	for _, rec := range s.records {
		if strings.Contains(strings.ToLower(rec.RecipientName), q) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListByIssuer implements Store. Newest first, matching the SQL repository.
func (s *MemoryStore) ListByIssuer(_ context.Context, issuerAddress string, limit, offset int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var matched []*Record
	for _, rec := range s.records {
		if rec.IssuerAddress == issuerAddress {
			cp := *rec
			matched = append(matched, &cp)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// UpdateStatus implements Store.
func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// ExpireOverdue implements Store.
func (s *MemoryStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.records {
		if rec.Status == StatusValid && rec.Expired(now) {
			rec.Status = StatusExpired
			rec.UpdatedAt = now.UTC()
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
