/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gallery

import (
	"context"
	"time"

	"github.com/sasha-s/go-deadlock"
)

type entry struct {
	record  Record
	expires time.Time
}

// MemoryStore keeps records in process. Records older than the ttl are
// dropped lazily.
type MemoryStore struct {
	mu      deadlock.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string][]entry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string][]entry),
	}
}

func (m *MemoryStore) Save(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{record: r}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}

	m.records[r.GameID] = append(m.records[r.GameID], e)

	return nil
}

func (m *MemoryStore) List(_ context.Context, gameID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	kept := m.records[gameID][:0]
	out := []Record{}
	for _, e := range m.records[gameID] {
		if !e.expires.IsZero() && now.After(e.expires) {
			continue
		}
		kept = append(kept, e)
		out = append(out, e.record)
	}

	if len(kept) == 0 {
		delete(m.records, gameID)
	} else {
		m.records[gameID] = kept
	}

	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
