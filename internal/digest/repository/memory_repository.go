package repository

import (
	"fmt"
	"sync"
	"time"

	"maildigest/internal/digest/domain"
)

// MemoryDigestStore keeps subscribers and digests in memory. It backs both
// SubscriberRegistry and PendingDigestRepository so that ConfirmSent can
// update the watermark and the digest row under one lock, mirroring the
// transactional GORM implementation.
type MemoryDigestStore struct {
	mu          sync.RWMutex
	subscribers map[string]*domain.Subscriber
	digests     map[string]*domain.PendingDigest
}

func NewMemoryDigestStore() *MemoryDigestStore {
	return &MemoryDigestStore{
		subscribers: make(map[string]*domain.Subscriber),
		digests:     make(map[string]*domain.PendingDigest),
	}
}

func (s *MemoryDigestStore) Upsert(sub *domain.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subscribers {
		if existing.Email == sub.Email {
			existing.Name = sub.Name
			existing.Interests = sub.Interests
			existing.Active = sub.Active
			existing.UpdatedAt = time.Now()
			return nil
		}
	}
	cp := *sub
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.subscribers[cp.ID] = &cp
	return nil
}

func (s *MemoryDigestStore) GetByID(id string) (*domain.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscribers[id]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryDigestStore) ListActive() ([]*domain.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var subs []*domain.Subscriber
	for _, sub := range s.subscribers {
		if sub.Active {
			cp := *sub
			subs = append(subs, &cp)
		}
	}
	return subs, nil
}

func (s *MemoryDigestStore) GetWatermark(subscriberID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscribers[subscriberID]
	if !ok {
		return 0, fmt.Errorf("subscriber %s not found", subscriberID)
	}
	return sub.Watermark, nil
}

func (s *MemoryDigestStore) SetWatermark(subscriberID string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setWatermarkLocked(subscriberID, seq)
}

func (s *MemoryDigestStore) setWatermarkLocked(subscriberID string, seq int64) error {
	sub, ok := s.subscribers[subscriberID]
	if !ok {
		return fmt.Errorf("subscriber %s not found", subscriberID)
	}
	if seq > sub.Watermark {
		sub.Watermark = seq
		sub.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryDigestStore) GetPending(subscriberID string) (*domain.PendingDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.digests {
		if d.SubscriberID == subscriberID && d.Status == domain.DigestStatusPending {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryDigestStore) Record(d *domain.PendingDigest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.digests {
		if existing.SubscriberID == d.SubscriberID && existing.Status == domain.DigestStatusPending {
			delete(s.digests, id)
		}
	}
	cp := *d
	s.digests[cp.ID] = &cp
	return nil
}

func (s *MemoryDigestStore) ConfirmSent(digestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.digests[digestID]
	if !ok {
		return fmt.Errorf("digest %s not found", digestID)
	}
	if d.Status == domain.DigestStatusSent {
		return nil
	}
	now := time.Now()
	d.Status = domain.DigestStatusSent
	d.SentAt = &now
	return s.setWatermarkLocked(d.SubscriberID, d.TargetSeq)
}

func (s *MemoryDigestStore) ListBySubscriber(subscriberID string, limit int) ([]*domain.PendingDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var digests []*domain.PendingDigest
	for _, d := range s.digests {
		if d.SubscriberID == subscriberID {
			cp := *d
			digests = append(digests, &cp)
		}
	}
	for i := 0; i < len(digests); i++ {
		for j := i + 1; j < len(digests); j++ {
			if digests[j].GeneratedAt.After(digests[i].GeneratedAt) {
				digests[i], digests[j] = digests[j], digests[i]
			}
		}
	}
	if limit > 0 && len(digests) > limit {
		digests = digests[:limit]
	}
	return digests, nil
}
