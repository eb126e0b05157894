package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"maildigest/internal/digest/domain"
)

type gormSubscriberRegistry struct {
	db *gorm.DB
}

func NewGormSubscriberRegistry(db *gorm.DB) SubscriberRegistry {
	return &gormSubscriberRegistry{db: db}
}

func (r *gormSubscriberRegistry) Upsert(sub *domain.Subscriber) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "interests", "active", "updated_at"}),
	}).Create(sub).Error
}

func (r *gormSubscriberRegistry) GetByID(id string) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	if err := r.db.First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormSubscriberRegistry) ListActive() ([]*domain.Subscriber, error) {
	var subs []*domain.Subscriber
	if err := r.db.Where("active = ?", true).Order("created_at asc").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *gormSubscriberRegistry) GetWatermark(subscriberID string) (int64, error) {
	var sub domain.Subscriber
	if err := r.db.Select("watermark").First(&sub, "id = ?", subscriberID).Error; err != nil {
		return 0, err
	}
	return sub.Watermark, nil
}

func (r *gormSubscriberRegistry) SetWatermark(subscriberID string, seq int64) error {
	return r.db.Model(&domain.Subscriber{}).
		Where("id = ? AND watermark < ?", subscriberID, seq).
		Update("watermark", seq).Error
}

type gormPendingDigestRepository struct {
	db *gorm.DB
}

func NewGormPendingDigestRepository(db *gorm.DB) PendingDigestRepository {
	return &gormPendingDigestRepository{db: db}
}

func (r *gormPendingDigestRepository) GetPending(subscriberID string) (*domain.PendingDigest, error) {
	var d domain.PendingDigest
	err := r.db.Where("subscriber_id = ? AND status = ?", subscriberID, domain.DigestStatusPending).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *gormPendingDigestRepository) Record(d *domain.PendingDigest) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		// A crash between Record and ConfirmSent leaves a pending row; the
		// next cycle resends it instead of generating a second one.
		err := tx.Where("subscriber_id = ? AND status = ?", d.SubscriberID, domain.DigestStatusPending).
			Delete(&domain.PendingDigest{}).Error
		if err != nil {
			return err
		}
		return tx.Create(d).Error
	})
}

func (r *gormPendingDigestRepository) ConfirmSent(digestID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var d domain.PendingDigest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, "id = ?", digestID).Error; err != nil {
			return err
		}
		if d.Status == domain.DigestStatusSent {
			return nil
		}
		now := time.Now()
		err := tx.Model(&d).Updates(map[string]interface{}{
			"status":  domain.DigestStatusSent,
			"sent_at": now,
		}).Error
		if err != nil {
			return err
		}
		// Watermark advance and send confirmation commit together.
		return tx.Model(&domain.Subscriber{}).
			Where("id = ? AND watermark < ?", d.SubscriberID, d.TargetSeq).
			Update("watermark", d.TargetSeq).Error
	})
}

func (r *gormPendingDigestRepository) ListBySubscriber(subscriberID string, limit int) ([]*domain.PendingDigest, error) {
	q := r.db.Where("subscriber_id = ?", subscriberID).Order("generated_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var digests []*domain.PendingDigest
	if err := q.Find(&digests).Error; err != nil {
		return nil, err
	}
	return digests, nil
}
