package repository

import (
	indexdomain "maildigest/internal/index/domain"
)

// IndexEntryRepository owns IndexEntry rows, keyed by message sequence
// number (a weak back-reference into the message store, not an ownership
// edge).
type IndexEntryRepository interface {
	// Upsert writes the entry for its message sequence, replacing any
	// previous entry. Exactly one entry per message survives concurrent
	// writers.
	Upsert(entry *indexdomain.IndexEntry) error

	// GetByMessageSeq returns the entry for a message, or nil.
	GetByMessageSeq(seq int64) (*indexdomain.IndexEntry, error)

	// ListAll pages through every entry in message-sequence order.
	ListAll(afterSeq int64, limit int) ([]*indexdomain.IndexEntry, error)

	// ListPendingEmbedding returns entries still waiting for a vector.
	ListPendingEmbedding(limit int) ([]*indexdomain.IndexEntry, error)

	// ListStale returns embedded entries whose model version differs from
	// current, for lazy re-embedding.
	ListStale(currentVersion string, limit int) ([]*indexdomain.IndexEntry, error)

	// Delete removes an entry (integrity repair for orphaned entries).
	Delete(messageSeq int64) error

	// Count returns the number of entries.
	Count() (int64, error)

	// LoadCursor returns the indexer watermark, creating it on first use.
	LoadCursor() (*indexdomain.IndexCursor, error)

	// AdvanceCursor records the highest indexed message sequence.
	AdvanceCursor(lastSeq int64) error
}
