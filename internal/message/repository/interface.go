package repository

import (
	messagedomain "maildigest/internal/message/domain"
)

// MessageStore is the durable, deduplicated record of ingested messages plus
// the sync cursor. GetSince is the only read path used by the indexer and the
// digest scheduler, so both always see a consistent, gap-free prefix of
// history.
type MessageStore interface {
	// Put inserts a message, assigning its local sequence number. Duplicate
	// provider ids and duplicate content hashes are absorbed: the existing
	// row wins and PutDuplicateIgnored is returned. Put never mutates an
	// existing record.
	Put(msg *messagedomain.Message) (messagedomain.PutResult, error)

	// GetSince returns up to limit messages with Seq > afterSeq, ascending
	// by Seq. limit <= 0 means no limit.
	GetSince(afterSeq int64, limit int) ([]*messagedomain.Message, error)

	// GetBySeq returns the message with the given sequence number, or nil.
	GetBySeq(seq int64) (*messagedomain.Message, error)

	// LoadCursor returns the singleton sync cursor, creating an empty one
	// on first use.
	LoadCursor() (*messagedomain.SyncCursor, error)

	// AdvanceCursor records the new provider token and the sequence number
	// up to which messages were durably persisted. Called only after the
	// whole page behind the token is stored.
	AdvanceCursor(token string, upToSeq int64) error

	// ResetCursor clears the cursor token after the provider reported it
	// invalid, forcing the next sync pass into a bounded backfill.
	ResetCursor() error

	// MaxSeq returns the highest assigned sequence number (0 when empty).
	MaxSeq() (int64, error)
}
