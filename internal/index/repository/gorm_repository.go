package repository

import (
	"errors"
	"time"

	indexdomain "maildigest/internal/index/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormIndexEntryRepository implements IndexEntryRepository interface
type gormIndexEntryRepository struct {
	db *gorm.DB
}

// NewGormIndexEntryRepository creates a new instance of gormIndexEntryRepository
func NewGormIndexEntryRepository(db *gorm.DB) IndexEntryRepository {
	return &gormIndexEntryRepository{
		db: db,
	}
}

func (r *gormIndexEntryRepository) Upsert(entry *indexdomain.IndexEntry) error {
	now := time.Now()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "message_seq"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tokens", "vector", "model_version", "pending_embedding", "received_at", "updated_at",
		}),
	}).Create(entry).Error
}

func (r *gormIndexEntryRepository) GetByMessageSeq(seq int64) (*indexdomain.IndexEntry, error) {
	var entry indexdomain.IndexEntry
	err := r.db.Where("message_seq = ?", seq).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *gormIndexEntryRepository) ListAll(afterSeq int64, limit int) ([]*indexdomain.IndexEntry, error) {
	var entries []*indexdomain.IndexEntry
	q := r.db.Where("message_seq > ?", afterSeq).Order("message_seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *gormIndexEntryRepository) ListPendingEmbedding(limit int) ([]*indexdomain.IndexEntry, error) {
	var entries []*indexdomain.IndexEntry
	q := r.db.Where("pending_embedding = ?", true).Order("message_seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *gormIndexEntryRepository) ListStale(currentVersion string, limit int) ([]*indexdomain.IndexEntry, error) {
	var entries []*indexdomain.IndexEntry
	q := r.db.Where("pending_embedding = ? AND model_version <> ?", false, currentVersion).Order("message_seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *gormIndexEntryRepository) Delete(messageSeq int64) error {
	return r.db.Where("message_seq = ?", messageSeq).Delete(&indexdomain.IndexEntry{}).Error
}

func (r *gormIndexEntryRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&indexdomain.IndexEntry{}).Count(&count).Error
	return count, err
}

func (r *gormIndexEntryRepository) LoadCursor() (*indexdomain.IndexCursor, error) {
	var cursor indexdomain.IndexCursor
	err := r.db.Where("id = ?", 1).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = indexdomain.IndexCursor{ID: 1, UpdatedAt: time.Now()}
		if err := r.db.Create(&cursor).Error; err != nil {
			return nil, err
		}
		return &cursor, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

func (r *gormIndexEntryRepository) AdvanceCursor(lastSeq int64) error {
	return r.db.Model(&indexdomain.IndexCursor{}).Where("id = ?", 1).Updates(map[string]interface{}{
		"last_seq":   lastSeq,
		"updated_at": time.Now(),
	}).Error
}
