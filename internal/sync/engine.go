package sync

import (
	"context"
	"errors"
	"time"

	messagedomain "maildigest/internal/message/domain"
	messagerepo "maildigest/internal/message/repository"
	"maildigest/pkg/mailbox"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// ErrFatal wraps conditions the engine cannot recover from on its own
// (credential failures). The loop stops and surfaces it.
var ErrFatal = errors.New("sync: fatal condition")

// Engine drives incremental retrieval from the mailbox source into the
// message store. One long-lived polling loop; the cursor advances only after
// a full page is durably persisted, so a crash between store and advance is
// repaired by dedup on the next run.
type Engine struct {
	store        messagerepo.MessageStore
	source       mailbox.Source
	pollInterval time.Duration
	maxBackoff   time.Duration
	notify       chan<- struct{}
	stopChan     chan struct{}
}

// NewEngine creates a sync engine. notify, if non-nil, receives a signal
// after every pass that stored at least one new message (the index engine
// listens on it).
func NewEngine(store messagerepo.MessageStore, source mailbox.Source, pollInterval time.Duration, notify chan<- struct{}) *Engine {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	return &Engine{
		store:        store,
		source:       source,
		pollInterval: pollInterval,
		maxBackoff:   2 * time.Minute,
		notify:       notify,
		stopChan:     make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled or a fatal
// condition is hit. The returned error is nil on clean shutdown.
func (e *Engine) Start(ctx context.Context) error {
	log.Printf("[Sync] Starting sync loop (poll interval %s)", e.pollInterval)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// Run immediately on start
	if err := e.runPassWithRetry(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ticker.C:
			if err := e.runPassWithRetry(ctx); err != nil {
				return err
			}
		case <-e.stopChan:
			log.Printf("[Sync] Sync loop stopped")
			return nil
		case <-ctx.Done():
			log.Printf("[Sync] Sync loop stopped: %v", ctx.Err())
			return nil
		}
	}
}

// Stop gracefully stops the loop.
func (e *Engine) Stop() {
	close(e.stopChan)
}

// runPassWithRetry retries a pass on transient errors with exponential
// backoff, capped but unbounded in count. Fatal and cancellation errors pass
// through.
func (e *Engine) runPassWithRetry(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = e.maxBackoff
	policy.MaxElapsedTime = 0 // retry until the context is cancelled

	operation := func() error {
		err := e.RunPass(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrFatal) || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		log.Printf("[Sync] Transient error, will retry: %v", err)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunPass performs one full pass: page through everything the source has
// beyond the stored cursor, persisting and advancing page by page.
func (e *Engine) RunPass(ctx context.Context) error {
	cursor, err := e.store.LoadCursor()
	if err != nil {
		return err
	}

	token := cursor.Token
	inserted := 0
	for {
		page, err := e.source.FetchPage(ctx, token)
		if err != nil {
			if errors.Is(err, mailbox.ErrInvalidCursor) {
				log.Printf("[Sync] Cursor rejected by provider, falling back to bounded resync: %v", err)
				if err := e.store.ResetCursor(); err != nil {
					return err
				}
				token = ""
				continue
			}
			if errors.Is(err, mailbox.ErrAuth) {
				return errors.Join(ErrFatal, err)
			}
			return err
		}

		n, err := e.persistPage(page)
		if err != nil {
			return err
		}
		inserted += n

		// Durability point: every item of this page is stored before the
		// cursor moves past it
		maxSeq, err := e.store.MaxSeq()
		if err != nil {
			return err
		}
		if err := e.store.AdvanceCursor(page.NextToken, maxSeq); err != nil {
			return err
		}
		token = page.NextToken

		if !page.HasMore {
			break
		}
	}

	if inserted > 0 {
		log.Printf("[Sync] Pass complete, %d new messages", inserted)
		if e.notify != nil {
			select {
			case e.notify <- struct{}{}:
			default:
				// Indexer already has a pending signal
			}
		}
	}
	return nil
}

func (e *Engine) persistPage(page *mailbox.Page) (int, error) {
	inserted := 0
	for _, item := range page.Items {
		msg := &messagedomain.Message{
			ProviderID: item.ProviderID,
			From:       item.From,
			FromName:   item.FromName,
			Subject:    item.Subject,
			Body:       item.Body,
			HTMLBody:   item.HTMLBody,
			ReceivedAt: item.ReceivedAt,
		}
		result, err := e.store.Put(msg)
		if err != nil {
			return inserted, err
		}
		if result == messagedomain.PutInserted {
			inserted++
		}
	}
	return inserted, nil
}
