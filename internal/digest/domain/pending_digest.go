package domain

import "time"

type DigestStatus string

const (
	DigestStatusPending DigestStatus = "pending"
	DigestStatusSent    DigestStatus = "sent"
)

// PendingDigest is the durability point of the digest pipeline. A row in
// status "pending" holds fully generated content that has not been confirmed
// delivered yet; a later run may retry delivery from the stored content
// without calling the summarizer again. Confirmed digests are retained with
// status "sent".
type PendingDigest struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	SubscriberID string       `json:"subscriber_id" gorm:"index:idx_pending_digest_sub;not null"`
	Subject      string       `json:"subject"`
	Content      string       `json:"content" gorm:"type:text"`
	TargetSeq    int64        `json:"target_seq"` // watermark value to adopt once delivery is confirmed
	Status       DigestStatus `json:"status" gorm:"index:idx_pending_digest_sub"`
	GeneratedAt  time.Time    `json:"generated_at"`
	SentAt       *time.Time   `json:"sent_at,omitempty"`
}

// TableName specifies the table name for GORM
func (PendingDigest) TableName() string {
	return "pending_digests"
}
