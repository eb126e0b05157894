package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"maildigest/internal/digest/domain"
	"maildigest/internal/digest/repository"
	messagedomain "maildigest/internal/message/domain"
	messagerepo "maildigest/internal/message/repository"
	"maildigest/pkg/ai"
	"maildigest/pkg/transport"
)

// State is the per-subscriber position in the digest pipeline, exposed for
// status reporting.
type State string

const (
	StateIdle        State = "idle"
	StateCollecting  State = "collecting"
	StateSummarizing State = "summarizing"
	StateRecording   State = "recording"
	StateSending     State = "sending"
)

// Scheduler generates and delivers digests on a fixed interval. Each
// subscriber advances independently through collect, summarize, record and
// send; the recorded PendingDigest is the durability point, so a crash after
// recording resends the stored content instead of summarizing twice.
type Scheduler struct {
	messages   messagerepo.MessageStore
	registry   repository.SubscriberRegistry
	digests    repository.PendingDigestRepository
	summarizer ai.SummarizerService
	sender     transport.Sender

	interval         time.Duration
	summarizeTimeout time.Duration
	sendTimeout      time.Duration
	maxMessages      int

	mu     sync.RWMutex
	states map[string]State

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewScheduler(
	messages messagerepo.MessageStore,
	registry repository.SubscriberRegistry,
	digests repository.PendingDigestRepository,
	summarizer ai.SummarizerService,
	sender transport.Sender,
	interval time.Duration,
) *Scheduler {
	if interval <= 0 {
		interval = 7 * 24 * time.Hour
	}
	return &Scheduler{
		messages:         messages,
		registry:         registry,
		digests:          digests,
		summarizer:       summarizer,
		sender:           sender,
		interval:         interval,
		summarizeTimeout: 2 * time.Minute,
		sendTimeout:      time.Minute,
		maxMessages:      500,
		states:           make(map[string]State),
		stopChan:         make(chan struct{}),
	}
}

// SubscriberState reports where the subscriber currently is in the pipeline.
func (s *Scheduler) SubscriberState(subscriberID string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[subscriberID]; ok {
		return st
	}
	return StateIdle
}

func (s *Scheduler) setState(subscriberID string, st State) {
	s.mu.Lock()
	s.states[subscriberID] = st
	s.mu.Unlock()
}

// Start runs digest cycles until the context is cancelled or Stop is called.
// The first cycle runs immediately so digests left pending by a previous
// process get delivered without waiting a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	logrus.Infof("[Digest] scheduler started, interval %s", s.interval)

	if err := s.RunCycle(ctx); err != nil {
		logrus.Errorf("[Digest] cycle failed: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("[Digest] scheduler stopped: context cancelled")
			return
		case <-s.stopChan:
			logrus.Info("[Digest] scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				logrus.Errorf("[Digest] cycle failed: %v", err)
			}
		}
	}
}

// Stop signals the scheduler loop to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunCycle processes every active subscriber once. The message sequence is
// snapshotted up front so messages arriving mid-cycle wait for the next one.
// Subscribers run concurrently; one failing does not block the others.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	snapshot, err := s.messages.MaxSeq()
	if err != nil {
		return fmt.Errorf("failed to snapshot sequence: %w", err)
	}

	subs, err := s.registry.ListActive()
	if err != nil {
		return fmt.Errorf("failed to list subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *domain.Subscriber) {
			defer wg.Done()
			if err := s.processSubscriber(ctx, sub, snapshot); err != nil {
				logrus.Errorf("[Digest] subscriber %s: %v", sub.Email, err)
			}
		}(sub)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) processSubscriber(ctx context.Context, sub *domain.Subscriber, snapshot int64) error {
	defer s.setState(sub.ID, StateIdle)

	// A pending digest from an earlier cycle is resent as-is. Its watermark
	// advance happens on confirmation, so generation stays exactly-once.
	pending, err := s.digests.GetPending(sub.ID)
	if err != nil {
		return fmt.Errorf("failed to load pending digest: %w", err)
	}
	if pending != nil {
		logrus.Infof("[Digest] resending pending digest %s to %s", pending.ID, sub.Email)
		return s.deliver(ctx, sub, pending)
	}

	s.setState(sub.ID, StateCollecting)
	watermark, err := s.registry.GetWatermark(sub.ID)
	if err != nil {
		return fmt.Errorf("failed to load watermark: %w", err)
	}

	msgs, err := s.collect(watermark, snapshot)
	if err != nil {
		return fmt.Errorf("failed to collect messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	s.setState(sub.ID, StateSummarizing)
	content, err := s.summarize(ctx, sub, msgs)
	if err != nil {
		// Nothing was recorded; the same range is retried next cycle.
		return fmt.Errorf("failed to summarize: %w", err)
	}

	s.setState(sub.ID, StateRecording)
	// The watermark only advances to the last message actually in the digest.
	// When collect truncates at maxMessages the remainder stays above the
	// watermark and lands in the next cycle's digest.
	digest := &domain.PendingDigest{
		ID:           uuid.New().String(),
		SubscriberID: sub.ID,
		Subject:      digestSubject(msgs),
		Content:      content,
		TargetSeq:    msgs[len(msgs)-1].Seq,
		Status:       domain.DigestStatusPending,
		GeneratedAt:  time.Now(),
	}
	if err := s.digests.Record(digest); err != nil {
		return fmt.Errorf("failed to record digest: %w", err)
	}

	return s.deliver(ctx, sub, digest)
}

// collect returns the messages after the watermark up to and including the
// cycle snapshot, oldest first.
func (s *Scheduler) collect(watermark, snapshot int64) ([]*messagedomain.Message, error) {
	if snapshot <= watermark {
		return nil, nil
	}
	msgs, err := s.messages.GetSince(watermark, s.maxMessages)
	if err != nil {
		return nil, err
	}
	filtered := msgs[:0]
	for _, m := range msgs {
		if m.Seq <= snapshot {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

func (s *Scheduler) summarize(ctx context.Context, sub *domain.Subscriber, msgs []*messagedomain.Message) (string, error) {
	req := ai.DigestRequest{
		SubscriberName: sub.Name,
		Interests:      sub.Interests,
		PeriodStart:    msgs[0].ReceivedAt,
		PeriodEnd:      msgs[len(msgs)-1].ReceivedAt,
	}
	for _, m := range msgs {
		req.Emails = append(req.Emails, ai.DigestEmail{
			From:       m.From,
			Subject:    m.Subject,
			Body:       m.Body,
			ReceivedAt: m.ReceivedAt,
		})
	}

	sctx, cancel := context.WithTimeout(ctx, s.summarizeTimeout)
	defer cancel()
	return s.summarizer.SummarizeDigest(sctx, req)
}

// deliver sends the digest and, on acceptance, confirms it. Confirmation
// marks the digest sent and advances the watermark in one transaction; a
// send failure leaves the pending row untouched for the next cycle.
func (s *Scheduler) deliver(ctx context.Context, sub *domain.Subscriber, digest *domain.PendingDigest) error {
	s.setState(sub.ID, StateSending)

	sctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	err := s.sender.Send(sctx, transport.Digest{
		ToEmail: sub.Email,
		ToName:  sub.Name,
		Subject: digest.Subject,
		Content: digest.Content,
	})
	if err != nil {
		return fmt.Errorf("failed to send digest %s: %w", digest.ID, err)
	}

	if err := s.digests.ConfirmSent(digest.ID); err != nil {
		return fmt.Errorf("failed to confirm digest %s: %w", digest.ID, err)
	}
	logrus.Infof("[Digest] sent digest %s to %s (watermark -> %d)", digest.ID, sub.Email, digest.TargetSeq)
	return nil
}

func digestSubject(msgs []*messagedomain.Message) string {
	last := msgs[len(msgs)-1].ReceivedAt
	return fmt.Sprintf("Your mail digest for the week of %s", last.Format("Jan 2, 2006"))
}
