package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	indexrepo "maildigest/internal/index/repository"
	messagedomain "maildigest/internal/message/domain"
	messagerepo "maildigest/internal/message/repository"
)

func buildCorpus(t *testing.T) (*Engine, messagerepo.MessageStore) {
	t.Helper()

	store := messagerepo.NewMemoryMessageStore()
	entries := indexrepo.NewMemoryIndexEntryRepository()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	corpus := []struct {
		subject string
		body    string
	}{
		{"Quarterly report ready", "the quarterly report numbers are final"},
		{"Lunch on Friday", "anyone up for lunch near the office"},
		{"Report deadline moved", "the report deadline moved to next week"},
		{"Quarterly planning", "planning session for the next quarter"},
		{"Random newsletter", "nothing relevant in here at all"},
	}
	for i, c := range corpus {
		_, err := store.Put(&messagedomain.Message{
			ProviderID: fmt.Sprintf("c%d", i),
			Subject:    c.subject,
			Body:       c.body,
			ReceivedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	// No embedder: lexical-only ranking
	engine := NewEngine(store, entries, nil, nil)
	require.NoError(t, engine.RunPass(context.Background()))
	return engine, store
}

func TestSearchRanksByLexicalOverlap(t *testing.T) {
	engine, _ := buildCorpus(t)

	results, err := engine.Search(context.Background(), "quarterly report", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Both query tokens hit message 1; everything else matches at most one
	assert.Equal(t, int64(1), results[0].MessageSeq)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	for _, r := range results[1:] {
		assert.Less(t, r.Score, results[0].Score)
	}
}

func TestSearchTopKOrder(t *testing.T) {
	engine, _ := buildCorpus(t)

	results, err := engine.Search(context.Background(), "quarterly report", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Full match first, then the two half matches newest first
	assert.Equal(t, int64(1), results[0].MessageSeq)
	assert.Equal(t, int64(4), results[1].MessageSeq)
	assert.Equal(t, int64(3), results[2].MessageSeq)
}

func TestSearchTieBreaksOnRecency(t *testing.T) {
	engine, _ := buildCorpus(t)

	// "report" alone scores messages 1 and 3 identically; 3 is newer
	results, err := engine.Search(context.Background(), "report", 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 2)
	assert.Equal(t, int64(3), results[0].MessageSeq)
	assert.Equal(t, int64(1), results[1].MessageSeq)
	assert.Equal(t, results[0].Score, results[1].Score)
}

func TestSearchToleratesSingleEditTypo(t *testing.T) {
	engine, _ := buildCorpus(t)

	results, err := engine.Search(context.Background(), "quartely report", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, int64(1), results[0].MessageSeq)
}

func TestSearchRespectsK(t *testing.T) {
	engine, _ := buildCorpus(t)

	results, err := engine.Search(context.Background(), "report quarterly deadline lunch", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchEmptyQuery(t *testing.T) {
	engine, _ := buildCorpus(t)

	results, err := engine.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// seededEmbedder returns a fixed vector for any text containing one of its
// marker substrings. Markers must be unique to one text apiece.
type seededEmbedder struct {
	version string
	vectors map[string][]float32
}

func (s *seededEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	for marker, vec := range s.vectors {
		if strings.Contains(text, marker) {
			return vec, nil
		}
	}
	return []float32{0, -1}, nil
}

func (s *seededEmbedder) ModelVersion() string { return s.version }

// Three messages against the query "travel plans": one full semantic match
// with no lexical overlap, one half lexical match pointed away in vector
// space, and a second semantic match received later.
func buildVectorCorpus(t *testing.T) *Engine {
	t.Helper()

	store := messagerepo.NewMemoryMessageStore()
	entries := indexrepo.NewMemoryIndexEntryRepository()
	embedder := &seededEmbedder{
		version: "v1",
		vectors: map[string][]float32{
			"travel plans": {1, 0},
			"offsite":      {1, 0},
			"itinerary":    {-1, 0},
			"booking":      {1, 0},
		},
	}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	corpus := []struct {
		subject string
		body    string
	}{
		{"Team offsite", "see you at the villa"},
		{"Travel itinerary", "itinerary attached"},
		{"Flight booking", "confirmation inside"},
	}
	for i, c := range corpus {
		_, err := store.Put(&messagedomain.Message{
			ProviderID: fmt.Sprintf("v%d", i),
			Subject:    c.subject,
			Body:       c.body,
			ReceivedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	engine := NewEngine(store, entries, embedder, nil)
	require.NoError(t, engine.RunPass(context.Background()))
	return engine
}

func TestSearchMaxOfScoresPrefersSemanticMatch(t *testing.T) {
	engine := buildVectorCorpus(t)

	results, err := engine.Search(context.Background(), "travel plans", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Both semantic full matches outrank the half lexical match; their tie
	// breaks toward the newer message
	assert.Equal(t, int64(3), results[0].MessageSeq)
	assert.Equal(t, int64(1), results[1].MessageSeq)
	assert.Equal(t, int64(2), results[2].MessageSeq)

	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 1.0, results[0].VectorScore, 1e-9)
	assert.Zero(t, results[0].LexicalScore)
	assert.InDelta(t, 0.5, results[2].Score, 1e-9)
	assert.InDelta(t, 0.5, results[2].LexicalScore, 1e-9)
}

func TestSearchWeightedSumReordersAgainstMax(t *testing.T) {
	engine := buildVectorCorpus(t)
	engine.SetVectorWeight(0.2)

	results, err := engine.Search(context.Background(), "travel plans", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 0.2*vector + 0.8*lexical puts the lexical hit on top; the semantic
	// matches tie behind it and break on recency
	assert.Equal(t, int64(2), results[0].MessageSeq)
	assert.Equal(t, int64(3), results[1].MessageSeq)
	assert.Equal(t, int64(1), results[2].MessageSeq)

	assert.InDelta(t, 0.4, results[0].Score, 1e-9)
	assert.InDelta(t, 0.2, results[1].Score, 1e-9)
}

func TestSearchSkipsVectorsFromOtherModelVersions(t *testing.T) {
	store := messagerepo.NewMemoryMessageStore()
	entries := indexrepo.NewMemoryIndexEntryRepository()
	embedder := &fakeEmbedder{version: "v2"}

	_, err := store.Put(&messagedomain.Message{
		ProviderID: "p1",
		Subject:    "unrelated words entirely",
		Body:       "zebra giraffe",
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	engine := NewEngine(store, entries, embedder, nil)
	require.NoError(t, engine.RunPass(context.Background()))

	// Mark the stored vector as coming from an older model
	entry, err := entries.GetByMessageSeq(1)
	require.NoError(t, err)
	entry.ModelVersion = "v1"
	require.NoError(t, entries.Upsert(entry))

	results, err := engine.Search(context.Background(), "crocodile", 10)
	require.NoError(t, err)
	// No lexical overlap and the vector is version-mismatched, so no hit
	assert.Empty(t, results)
}

func TestNormalizedCosineBounds(t *testing.T) {
	a := []float32{1, 0}
	assert.InDelta(t, 1.0, normalizedCosine(a, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, normalizedCosine(a, []float32{-3, 0}), 1e-9)
	assert.InDelta(t, 0.5, normalizedCosine(a, []float32{0, 5}), 1e-9)
	assert.Zero(t, normalizedCosine(a, []float32{1, 2, 3}))
	assert.Zero(t, normalizedCosine(nil, nil))
}
