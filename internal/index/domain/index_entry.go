package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// StringArray is a custom type to handle JSON arrays in GORM
type StringArray []string

// Value implements driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*a = []string{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Vector is a custom type to handle a JSON float array in GORM
type Vector []float32

// Value implements driver.Valuer
func (v Vector) Value() (driver.Value, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	var bytes []byte
	switch val := value.(type) {
	case []byte:
		bytes = val
	case string:
		bytes = []byte(val)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*v = nil
		return nil
	}
	return json.Unmarshal(bytes, v)
}

// IndexEntry is the derived searchable representation of one message: the
// lexical token set plus an embedding vector tagged with the model version
// that produced it. PendingEmbedding entries serve lexical search only until
// a later pass fills the vector in.
type IndexEntry struct {
	ID               string      `json:"id" gorm:"primaryKey"`
	MessageSeq       int64       `json:"message_seq" gorm:"uniqueIndex;not null"`
	Tokens           StringArray `json:"tokens" gorm:"type:text"`
	Vector           Vector      `json:"vector,omitempty" gorm:"type:text"`
	ModelVersion     string      `json:"model_version" gorm:"index"`
	PendingEmbedding bool        `json:"pending_embedding" gorm:"index"`
	ReceivedAt       time.Time   `json:"received_at"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (IndexEntry) TableName() string {
	return "index_entries"
}

// IndexCursor is the indexer's own singleton watermark: the highest message
// sequence number that has an IndexEntry.
type IndexCursor struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	LastSeq   int64     `json:"last_seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (IndexCursor) TableName() string {
	return "index_cursor"
}
