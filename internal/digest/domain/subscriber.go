package domain

import "time"

// Subscriber is one digest recipient. Watermark is the local sequence number
// of the last message included in a confirmed digest; it only ever moves
// forward.
type Subscriber struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Name      string    `json:"name"`
	Interests string    `json:"interests,omitempty" gorm:"type:text"` // free-form context handed to the summarizer
	Active    bool      `json:"active" gorm:"index;default:true"`
	Watermark int64     `json:"watermark" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Subscriber) TableName() string {
	return "subscribers"
}
