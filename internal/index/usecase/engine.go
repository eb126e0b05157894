package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	indexdomain "maildigest/internal/index/domain"
	indexrepo "maildigest/internal/index/repository"
	messagedomain "maildigest/internal/message/domain"
	messagerepo "maildigest/internal/message/repository"
	"maildigest/pkg/embed"

	log "github.com/sirupsen/logrus"
)

// Engine maintains IndexEntry rows in step with the message store. It runs as
// a consumer of GetSince(lastIndexedSeq): new messages get a lexical token
// set immediately and an embedding vector when the embedder cooperates; a
// failing embedder never blocks lexical search.
type Engine struct {
	messages messagerepo.MessageStore
	entries  indexrepo.IndexEntryRepository
	embedder embed.Embedder

	batchSize    int
	reindexBatch int
	workerCount  int
	embedTimeout time.Duration
	vectorWeight float64 // 0 means rank by the higher of the two scores
	passInterval time.Duration
	notify       <-chan struct{}
	stopChan     chan struct{}
}

// NewEngine creates an index engine. notify is signalled by the sync engine
// after passes that stored new messages; the engine also wakes on its own
// interval.
func NewEngine(messages messagerepo.MessageStore, entries indexrepo.IndexEntryRepository, embedder embed.Embedder, notify <-chan struct{}) *Engine {
	return &Engine{
		messages:     messages,
		entries:      entries,
		embedder:     embedder,
		batchSize:    200,
		reindexBatch: 25,
		workerCount:  4,
		embedTimeout: 30 * time.Second,
		passInterval: time.Minute,
		notify:       notify,
		stopChan:     make(chan struct{}),
	}
}

// SetVectorWeight switches hybrid ranking from max-of-scores to a weighted
// sum. weight is the vector share in (0,1].
func (e *Engine) SetVectorWeight(weight float64) {
	e.vectorWeight = weight
}

// SetWorkerCount bounds concurrent embedding calls to the collaborator's
// rate limit.
func (e *Engine) SetWorkerCount(n int) {
	if n > 0 {
		e.workerCount = n
	}
}

// SetReindexBatch bounds how many pending or stale entries each pass
// re-embeds.
func (e *Engine) SetReindexBatch(n int) {
	if n > 0 {
		e.reindexBatch = n
	}
}

// Start runs the indexing loop until the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	log.Printf("[Index] Starting index loop (interval %s, %d embed workers)", e.passInterval, e.workerCount)

	ticker := time.NewTicker(e.passInterval)
	defer ticker.Stop()

	// Catch up immediately on start
	e.runPassLogged(ctx)

	for {
		select {
		case <-e.notify:
			e.runPassLogged(ctx)
		case <-ticker.C:
			e.runPassLogged(ctx)
		case <-e.stopChan:
			log.Printf("[Index] Index loop stopped")
			return
		case <-ctx.Done():
			log.Printf("[Index] Index loop stopped: %v", ctx.Err())
			return
		}
	}
}

// Stop gracefully stops the loop.
func (e *Engine) Stop() {
	close(e.stopChan)
}

func (e *Engine) runPassLogged(ctx context.Context) {
	if err := e.RunPass(ctx); err != nil {
		log.Printf("[Index] Pass failed: %v", err)
	}
}

// RunPass performs one indexing pass: index new messages past the watermark,
// then retry pending embeddings and lazily re-embed a bounded batch of
// entries produced under an older model version.
func (e *Engine) RunPass(ctx context.Context) error {
	cursor, err := e.entries.LoadCursor()
	if err != nil {
		return err
	}

	lastSeq := cursor.LastSeq
	for {
		batch, err := e.messages.GetSince(lastSeq, e.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		if failed := e.indexBatch(ctx, batch); failed > 0 {
			// The watermark must not move past a message without an entry.
			// Holding it here replays the whole batch next pass; Upsert is
			// keyed by sequence, so the entries already written just refresh.
			return fmt.Errorf("%d of %d entries failed to store, watermark held at %d", failed, len(batch), lastSeq)
		}

		lastSeq = batch[len(batch)-1].Seq
		if err := e.entries.AdvanceCursor(lastSeq); err != nil {
			return err
		}
		log.Printf("[Index] Indexed %d messages (watermark %d)", len(batch), lastSeq)

		if len(batch) < e.batchSize {
			break
		}
	}

	if err := e.retryPending(ctx); err != nil {
		return err
	}
	return e.reembedStale(ctx)
}

// indexBatch indexes a batch with a bounded worker pool and returns how many
// entries failed to store. Embedding failures are not failures here, they
// degrade to a lexical-only entry flagged for retry; only repository errors
// count, and the caller keeps the watermark behind those.
func (e *Engine) indexBatch(ctx context.Context, batch []*messagedomain.Message) int {
	sem := make(chan struct{}, e.workerCount)
	var wg sync.WaitGroup
	var failed atomic.Int64

	for _, msg := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(msg *messagedomain.Message) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := e.indexMessage(ctx, msg); err != nil {
				log.Printf("[Index] Failed to index message %d: %v", msg.Seq, err)
				failed.Add(1)
			}
		}(msg)
	}
	wg.Wait()
	return int(failed.Load())
}

func (e *Engine) indexMessage(ctx context.Context, msg *messagedomain.Message) error {
	entry := &indexdomain.IndexEntry{
		MessageSeq: msg.Seq,
		Tokens:     Tokenize(msg.Subject + " " + msg.Body),
		ReceivedAt: msg.ReceivedAt,
	}

	vector, version, err := e.embedMessage(ctx, msg)
	if err != nil {
		log.Printf("[Index] Embedding unavailable for message %d, storing lexical-only: %v", msg.Seq, err)
		entry.PendingEmbedding = true
	} else {
		entry.Vector = vector
		entry.ModelVersion = version
	}

	return e.entries.Upsert(entry)
}

func (e *Engine) embedMessage(ctx context.Context, msg *messagedomain.Message) (indexdomain.Vector, string, error) {
	if e.embedder == nil {
		return nil, "", fmt.Errorf("no embedder configured")
	}

	embedCtx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()

	text := fmt.Sprintf("Subject: %s\n\nBody: %s", msg.Subject, msg.Body)
	vector, err := e.embedder.Embed(embedCtx, text)
	if err != nil {
		return nil, "", err
	}
	return vector, e.embedder.ModelVersion(), nil
}

// retryPending re-attempts embeddings for lexical-only entries.
func (e *Engine) retryPending(ctx context.Context) error {
	if e.embedder == nil {
		return nil
	}

	pending, err := e.entries.ListPendingEmbedding(e.reindexBatch)
	if err != nil {
		return err
	}
	for _, entry := range pending {
		if err := e.refreshEmbedding(ctx, entry); err != nil {
			// Still failing; keep the flag and try again next pass
			log.Printf("[Index] Pending embedding for message %d still failing: %v", entry.MessageSeq, err)
		}
	}
	return nil
}

// reembedStale lazily recomputes vectors produced under an older embedder
// version, a bounded batch per pass so a model switch never stalls indexing.
func (e *Engine) reembedStale(ctx context.Context) error {
	if e.embedder == nil {
		return nil
	}

	stale, err := e.entries.ListStale(e.embedder.ModelVersion(), e.reindexBatch)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		log.Printf("[Index] Re-embedding %d entries from older model versions", len(stale))
	}
	for _, entry := range stale {
		if err := e.refreshEmbedding(ctx, entry); err != nil {
			log.Printf("[Index] Re-embed for message %d failed: %v", entry.MessageSeq, err)
		}
	}
	return nil
}

func (e *Engine) refreshEmbedding(ctx context.Context, entry *indexdomain.IndexEntry) error {
	msg, err := e.messages.GetBySeq(entry.MessageSeq)
	if err != nil {
		return err
	}
	if msg == nil {
		// Integrity violation: entry references a missing message. Drop and
		// move on, never crash.
		log.Printf("[Index] Entry references missing message %d, dropping", entry.MessageSeq)
		return e.entries.Delete(entry.MessageSeq)
	}

	vector, version, err := e.embedMessage(ctx, msg)
	if err != nil {
		return err
	}

	entry.Vector = vector
	entry.ModelVersion = version
	entry.PendingEmbedding = false
	return e.entries.Upsert(entry)
}
