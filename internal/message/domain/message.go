package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Message is one ingested mailbox message. Seq is the local sequence number
// assigned at ingestion; downstream consumers (indexer, digest scheduler)
// cursor over it, so it must be gap-free and ascending for committed rows.
type Message struct {
	Seq         int64     `json:"seq" gorm:"primaryKey;autoIncrement"`
	ProviderID  string    `json:"provider_id" gorm:"uniqueIndex;not null"`
	ContentHash string    `json:"content_hash" gorm:"uniqueIndex;not null"`
	From        string    `json:"from" gorm:"column:from_address"`
	FromName    string    `json:"from_name"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body" gorm:"type:text"`
	HTMLBody    string    `json:"html_body,omitempty" gorm:"type:text"`
	ReceivedAt  time.Time `json:"received_at" gorm:"index"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// TableName specifies the table name for GORM
func (Message) TableName() string {
	return "messages"
}

// SyncCursor is the singleton sync progress record: the last provider-side
// history token that was fully persisted, and the local sequence number at
// which it was last advanced.
type SyncCursor struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	Token     string    `json:"token"`
	UpToSeq   int64     `json:"up_to_seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (SyncCursor) TableName() string {
	return "sync_cursor"
}

// PutResult reports what Put did with a message.
type PutResult int

const (
	PutInserted PutResult = iota
	PutDuplicateIgnored
)

func (r PutResult) String() string {
	if r == PutInserted {
		return "inserted"
	}
	return "duplicate_ignored"
}

// ComputeContentHash returns the sha-256 of the normalized subject+body.
// Normalization (case-fold, collapse whitespace) makes the hash stable across
// provider re-deliveries that only differ in formatting.
func ComputeContentHash(subject, body string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(subject), " ")) +
		"\n" +
		strings.ToLower(strings.Join(strings.Fields(body), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
