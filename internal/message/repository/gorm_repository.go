package repository

import (
	"errors"
	"time"

	messagedomain "maildigest/internal/message/domain"

	"gorm.io/gorm"
)

// gormMessageStore implements MessageStore on Postgres via GORM
type gormMessageStore struct {
	db *gorm.DB
}

// NewGormMessageStore creates a new instance of gormMessageStore
func NewGormMessageStore(db *gorm.DB) MessageStore {
	return &gormMessageStore{
		db: db,
	}
}

func (s *gormMessageStore) Put(msg *messagedomain.Message) (messagedomain.PutResult, error) {
	if msg.ContentHash == "" {
		msg.ContentHash = messagedomain.ComputeContentHash(msg.Subject, msg.Body)
	}
	if msg.IngestedAt.IsZero() {
		msg.IngestedAt = time.Now()
	}

	result := messagedomain.PutDuplicateIgnored
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing messagedomain.Message

		// Primary dedup key: provider id
		err := tx.Where("provider_id = ?", msg.ProviderID).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// Secondary guard: content hash, catches re-delivery under a new
		// provider id after a cursor loss
		err = tx.Where("content_hash = ?", msg.ContentHash).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(msg).Error; err != nil {
			// Unique indexes backstop the race between concurrent writers
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil
			}
			return err
		}
		result = messagedomain.PutInserted
		return nil
	})
	if err != nil {
		return messagedomain.PutDuplicateIgnored, err
	}
	return result, nil
}

func (s *gormMessageStore) GetSince(afterSeq int64, limit int) ([]*messagedomain.Message, error) {
	var messages []*messagedomain.Message
	q := s.db.Where("seq > ?", afterSeq).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *gormMessageStore) GetBySeq(seq int64) (*messagedomain.Message, error) {
	var msg messagedomain.Message
	err := s.db.Where("seq = ?", seq).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (s *gormMessageStore) LoadCursor() (*messagedomain.SyncCursor, error) {
	var cursor messagedomain.SyncCursor
	err := s.db.Where("id = ?", 1).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = messagedomain.SyncCursor{ID: 1, UpdatedAt: time.Now()}
		if err := s.db.Create(&cursor).Error; err != nil {
			return nil, err
		}
		return &cursor, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

func (s *gormMessageStore) AdvanceCursor(token string, upToSeq int64) error {
	return s.db.Model(&messagedomain.SyncCursor{}).Where("id = ?", 1).Updates(map[string]interface{}{
		"token":      token,
		"up_to_seq":  upToSeq,
		"updated_at": time.Now(),
	}).Error
}

func (s *gormMessageStore) ResetCursor() error {
	return s.AdvanceCursor("", 0)
}

func (s *gormMessageStore) MaxSeq() (int64, error) {
	var max int64
	err := s.db.Model(&messagedomain.Message{}).Select("COALESCE(MAX(seq), 0)").Scan(&max).Error
	return max, err
}
