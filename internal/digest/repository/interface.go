package repository

import (
	"maildigest/internal/digest/domain"
)

// SubscriberRegistry manages digest recipients and their per-subscriber
// watermarks.
type SubscriberRegistry interface {
	// Upsert creates the subscriber or updates its profile fields. The
	// watermark of an existing subscriber is never touched by Upsert.
	Upsert(sub *domain.Subscriber) error
	GetByID(id string) (*domain.Subscriber, error)
	ListActive() ([]*domain.Subscriber, error)
	GetWatermark(subscriberID string) (int64, error)
	// SetWatermark moves the watermark forward. A value at or below the
	// current watermark is ignored.
	SetWatermark(subscriberID string, seq int64) error
}

// PendingDigestRepository stores generated digest content across the
// delivery boundary.
type PendingDigestRepository interface {
	// GetPending returns the unsent digest for the subscriber, or nil when
	// there is none.
	GetPending(subscriberID string) (*domain.PendingDigest, error)
	// Record persists freshly generated content in status pending. A
	// subscriber has at most one pending digest at a time.
	Record(d *domain.PendingDigest) error
	// ConfirmSent marks the digest sent and advances the subscriber
	// watermark to the digest's target sequence in a single transaction.
	ConfirmSent(digestID string) error
	// ListBySubscriber returns recent digests for the subscriber, newest
	// first, including sent ones.
	ListBySubscriber(subscriberID string, limit int) ([]*domain.PendingDigest, error)
}
