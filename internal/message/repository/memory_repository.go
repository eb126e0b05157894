package repository

import (
	"sync"
	"time"

	messagedomain "maildigest/internal/message/domain"
)

// memoryMessageStore implements MessageStore in memory. Used by tests and by
// local runs without a database; the locking mirrors the transactional
// guarantees of the GORM store (a reader never sees a message without its
// sequence number, nor a cursor past unseen messages).
type memoryMessageStore struct {
	mu         sync.RWMutex
	messages   []*messagedomain.Message
	byProvider map[string]*messagedomain.Message
	byHash     map[string]*messagedomain.Message
	nextSeq    int64
	cursor     messagedomain.SyncCursor
}

// NewMemoryMessageStore creates a new instance of memoryMessageStore
func NewMemoryMessageStore() MessageStore {
	return &memoryMessageStore{
		byProvider: make(map[string]*messagedomain.Message),
		byHash:     make(map[string]*messagedomain.Message),
		nextSeq:    1,
	}
}

func (s *memoryMessageStore) Put(msg *messagedomain.Message) (messagedomain.PutResult, error) {
	if msg.ContentHash == "" {
		msg.ContentHash = messagedomain.ComputeContentHash(msg.Subject, msg.Body)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byProvider[msg.ProviderID]; ok {
		return messagedomain.PutDuplicateIgnored, nil
	}
	if _, ok := s.byHash[msg.ContentHash]; ok {
		return messagedomain.PutDuplicateIgnored, nil
	}

	stored := *msg
	stored.Seq = s.nextSeq
	if stored.IngestedAt.IsZero() {
		stored.IngestedAt = time.Now()
	}
	s.nextSeq++

	s.messages = append(s.messages, &stored)
	s.byProvider[stored.ProviderID] = &stored
	s.byHash[stored.ContentHash] = &stored

	msg.Seq = stored.Seq
	msg.IngestedAt = stored.IngestedAt
	return messagedomain.PutInserted, nil
}

func (s *memoryMessageStore) GetSince(afterSeq int64, limit int) ([]*messagedomain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*messagedomain.Message
	for _, m := range s.messages {
		if m.Seq > afterSeq {
			copied := *m
			out = append(out, &copied)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memoryMessageStore) GetBySeq(seq int64) (*messagedomain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if m.Seq == seq {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryMessageStore) LoadCursor() (*messagedomain.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor := s.cursor
	return &cursor, nil
}

func (s *memoryMessageStore) AdvanceCursor(token string, upToSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursor.Token = token
	s.cursor.UpToSeq = upToSeq
	s.cursor.UpdatedAt = time.Now()
	return nil
}

func (s *memoryMessageStore) ResetCursor() error {
	return s.AdvanceCursor("", 0)
}

func (s *memoryMessageStore) MaxSeq() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.nextSeq - 1, nil
}
