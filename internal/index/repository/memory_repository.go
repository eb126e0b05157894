package repository

import (
	"sort"
	"sync"
	"time"

	indexdomain "maildigest/internal/index/domain"

	"github.com/google/uuid"
)

// memoryIndexEntryRepository implements IndexEntryRepository in memory
type memoryIndexEntryRepository struct {
	mu      sync.RWMutex
	entries map[int64]*indexdomain.IndexEntry
	cursor  indexdomain.IndexCursor
}

// NewMemoryIndexEntryRepository creates a new instance of memoryIndexEntryRepository
func NewMemoryIndexEntryRepository() IndexEntryRepository {
	return &memoryIndexEntryRepository{
		entries: make(map[int64]*indexdomain.IndexEntry),
	}
}

func (r *memoryIndexEntryRepository) Upsert(entry *indexdomain.IndexEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stored := *entry
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if existing, ok := r.entries[stored.MessageSeq]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.entries[stored.MessageSeq] = &stored
	return nil
}

func (r *memoryIndexEntryRepository) GetByMessageSeq(seq int64) (*indexdomain.IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[seq]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (r *memoryIndexEntryRepository) list(limit int, keep func(*indexdomain.IndexEntry) bool) []*indexdomain.IndexEntry {
	var out []*indexdomain.IndexEntry
	for _, e := range r.entries {
		if keep(e) {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageSeq < out[j].MessageSeq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *memoryIndexEntryRepository) ListAll(afterSeq int64, limit int) ([]*indexdomain.IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.list(limit, func(e *indexdomain.IndexEntry) bool { return e.MessageSeq > afterSeq }), nil
}

func (r *memoryIndexEntryRepository) ListPendingEmbedding(limit int) ([]*indexdomain.IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.list(limit, func(e *indexdomain.IndexEntry) bool { return e.PendingEmbedding }), nil
}

func (r *memoryIndexEntryRepository) ListStale(currentVersion string, limit int) ([]*indexdomain.IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.list(limit, func(e *indexdomain.IndexEntry) bool {
		return !e.PendingEmbedding && e.ModelVersion != currentVersion
	}), nil
}

func (r *memoryIndexEntryRepository) Delete(messageSeq int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, messageSeq)
	return nil
}

func (r *memoryIndexEntryRepository) Count() (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.entries)), nil
}

func (r *memoryIndexEntryRepository) LoadCursor() (*indexdomain.IndexCursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cursor := r.cursor
	return &cursor, nil
}

func (r *memoryIndexEntryRepository) AdvanceCursor(lastSeq int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cursor.LastSeq = lastSeq
	r.cursor.UpdatedAt = time.Now()
	return nil
}
