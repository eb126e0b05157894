package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	indexdomain "maildigest/internal/index/domain"
	indexrepo "maildigest/internal/index/repository"
	messagedomain "maildigest/internal/message/domain"
	messagerepo "maildigest/internal/message/repository"
)

// flakyEntryRepo fails the first Upsert for one message sequence, then
// behaves normally.
type flakyEntryRepo struct {
	indexrepo.IndexEntryRepository
	failSeq int64
	tripped atomic.Bool
}

func (r *flakyEntryRepo) Upsert(entry *indexdomain.IndexEntry) error {
	if entry.MessageSeq == r.failSeq && !r.tripped.Swap(true) {
		return fmt.Errorf("connection reset")
	}
	return r.IndexEntryRepository.Upsert(entry)
}

// fakeEmbedder returns a deterministic vector per call and can be switched
// into a failing mode.
type fakeEmbedder struct {
	version string
	fail    atomic.Bool
	calls   atomic.Int64
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, fmt.Errorf("embedding service unavailable")
	}
	// Cheap deterministic vector derived from the text length
	n := float32(len(text) % 7)
	return []float32{n, 1, 0.5}, nil
}

func (f *fakeEmbedder) ModelVersion() string { return f.version }

func seedMessages(t *testing.T, store messagerepo.MessageStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.Put(&messagedomain.Message{
			ProviderID: fmt.Sprintf("p%d", i),
			Subject:    fmt.Sprintf("subject %d", i),
			Body:       fmt.Sprintf("unique body %d", i),
			ReceivedAt: time.Now(),
		})
		require.NoError(t, err)
	}
}

func TestRunPassIndexesEveryMessageOnce(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	entries := indexrepo.NewMemoryIndexEntryRepository()
	embedder := &fakeEmbedder{version: "v1"}

	seedMessages(t, store, 100)

	engine := NewEngine(store, entries, embedder, nil)
	engine.SetWorkerCount(8)
	require.NoError(t, engine.RunPass(context.Background()))

	count, err := entries.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)

	cursor, err := entries.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, int64(100), cursor.LastSeq)

	// Second pass finds nothing new
	before := embedder.calls.Load()
	require.NoError(t, engine.RunPass(context.Background()))
	assert.Equal(t, before, embedder.calls.Load())
}

func TestEmbeddingFailureDegradesToLexicalOnly(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	entries := indexrepo.NewMemoryIndexEntryRepository()
	embedder := &fakeEmbedder{version: "v1"}
	embedder.fail.Store(true)

	seedMessages(t, store, 3)

	engine := NewEngine(store, entries, embedder, nil)
	require.NoError(t, engine.RunPass(context.Background()))

	// Watermark moved despite the failing embedder
	cursor, err := entries.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, int64(3), cursor.LastSeq)

	pending, err := entries.ListPendingEmbedding(10)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
	for _, e := range pending {
		assert.NotEmpty(t, e.Tokens)
		assert.Empty(t, e.Vector)
	}

	// Embedder recovers; the next pass backfills the vectors lazily
	embedder.fail.Store(false)
	require.NoError(t, engine.RunPass(context.Background()))

	pending, err = entries.ListPendingEmbedding(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	entry, err := entries.GetByMessageSeq(1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "v1", entry.ModelVersion)
	assert.False(t, entry.PendingEmbedding)
}

func TestStoreFailureHoldsWatermarkUntilRepaired(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	entries := &flakyEntryRepo{
		IndexEntryRepository: indexrepo.NewMemoryIndexEntryRepository(),
		failSeq:              2,
	}
	embedder := &fakeEmbedder{version: "v1"}

	seedMessages(t, store, 3)

	engine := NewEngine(store, entries, embedder, nil)
	require.Error(t, engine.RunPass(context.Background()))

	// No entry was written for the failed message, so the watermark must not
	// have moved past it
	missing, err := entries.GetByMessageSeq(2)
	require.NoError(t, err)
	assert.Nil(t, missing)

	cursor, err := entries.LoadCursor()
	require.NoError(t, err)
	assert.Zero(t, cursor.LastSeq)

	// The next pass replays the batch and closes the gap
	require.NoError(t, engine.RunPass(context.Background()))

	entry, err := entries.GetByMessageSeq(2)
	require.NoError(t, err)
	require.NotNil(t, entry)

	cursor, err = entries.LoadCursor()
	require.NoError(t, err)
	assert.Equal(t, int64(3), cursor.LastSeq)
}

func TestModelVersionSwitchReembedsBoundedBatches(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	entries := indexrepo.NewMemoryIndexEntryRepository()
	embedder := &fakeEmbedder{version: "v1"}

	seedMessages(t, store, 40)

	engine := NewEngine(store, entries, embedder, nil)
	require.NoError(t, engine.RunPass(context.Background()))

	// Model upgrade
	embedder.version = "v2"

	stale, err := entries.ListStale("v2", 1000)
	require.NoError(t, err)
	assert.Len(t, stale, 40)

	// One pass refreshes at most reindexBatch entries
	require.NoError(t, engine.RunPass(context.Background()))
	stale, err = entries.ListStale("v2", 1000)
	require.NoError(t, err)
	assert.Len(t, stale, 40-engine.reindexBatch)

	// Further passes drain the rest
	require.NoError(t, engine.RunPass(context.Background()))
	stale, err = entries.ListStale("v2", 1000)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestOrphanedEntryIsDropped(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	entries := indexrepo.NewMemoryIndexEntryRepository()
	embedder := &fakeEmbedder{version: "v1"}

	seedMessages(t, store, 1)

	engine := NewEngine(store, entries, embedder, nil)
	require.NoError(t, engine.RunPass(context.Background()))

	// Entry pointing at a message the store never had
	entry, err := entries.GetByMessageSeq(1)
	require.NoError(t, err)
	entry.MessageSeq = 99
	entry.ModelVersion = "v0"
	require.NoError(t, entries.Upsert(entry))

	require.NoError(t, engine.RunPass(context.Background()))

	orphan, err := entries.GetByMessageSeq(99)
	require.NoError(t, err)
	assert.Nil(t, orphan)
}
